// Package ring provides the per-mount bounded FIFO of timestamped data
// chunks that the broadcast loop reads from.
package ring

import (
	"sync"
	"time"
)

// DefaultCapacity matches the ring_buffer_size config default.
const DefaultCapacity = 2000

// Entry is one uploader chunk with the time it was appended.
type Entry struct {
	Timestamp time.Time
	Data      []byte
}

// Buffer is a bounded deque of entries. Overflow discards the oldest entry.
// All methods are safe for concurrent use; critical sections are append or
// snapshot only, never I/O.
type Buffer struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int

	totalBytes   int64
	totalEntries int64
	lastAppend   time.Time
	lastDropped  time.Time
}

func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{capacity: capacity}
}

// Append copies data into the buffer with the current timestamp.
func (b *Buffer) Append(data []byte) {
	b.AppendAt(append([]byte(nil), data...), time.Now())
}

// AppendAt appends an entry with an explicit timestamp. The caller hands
// over ownership of data. Timestamps are forced strictly increasing
// within a buffer so Since's strictly-greater read never loses one of
// two entries stamped in the same clock reading.
func (b *Buffer) AppendAt(data []byte, ts time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !ts.After(b.lastAppend) {
		ts = b.lastAppend.Add(time.Nanosecond)
	}

	if len(b.entries) >= b.capacity {
		b.lastDropped = b.entries[0].Timestamp
		// Shift rather than reslice so the backing array doesn't grow
		// without bound over the lifetime of a mount.
		copy(b.entries, b.entries[1:])
		b.entries = b.entries[:len(b.entries)-1]
	}
	b.entries = append(b.entries, Entry{Timestamp: ts, Data: data})
	b.totalBytes += int64(len(data))
	b.totalEntries++
	b.lastAppend = ts
}

// Since returns a snapshot of all entries with timestamp strictly greater
// than t, oldest first. overrun reports that entries newer than t have
// already been discarded, i.e. the reader's watermark fell behind the
// oldest retained entry.
func (b *Buffer) Since(t time.Time) (entries []Entry, overrun bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// An entry newer than the watermark has already been discarded: the
	// reader lost data it never saw.
	overrun = b.lastDropped.After(t)

	if len(b.entries) == 0 {
		return nil, overrun
	}

	// Entries are in append order; find the first one past t.
	first := len(b.entries)
	for i, e := range b.entries {
		if e.Timestamp.After(t) {
			first = i
			break
		}
	}
	if first == len(b.entries) {
		return nil, overrun
	}

	entries = make([]Entry, len(b.entries)-first)
	copy(entries, b.entries[first:])
	return entries, overrun
}

// Len returns the current number of entries.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// LastAppend returns the timestamp of the most recent append, or the zero
// time if nothing has been appended.
func (b *Buffer) LastAppend() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastAppend
}

// TotalBytes returns the number of bytes ever appended.
func (b *Buffer) TotalBytes() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalBytes
}
