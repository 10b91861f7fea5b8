package broadcast

import (
	"io"
	"sync"
)

// tapChannelDepth bounds how far a tap consumer may lag before chunks
// are dropped. The metadata parser only needs a representative sample,
// never a lossless stream.
const tapChannelDepth = 64

// tap is a drop-on-full pipe from the upload path to one consumer.
type tap struct {
	ch        chan []byte
	done      chan struct{}
	closeOnce sync.Once

	pending []byte // partially consumed chunk
}

func newTap() *tap {
	return &tap{
		ch:   make(chan []byte, tapChannelDepth),
		done: make(chan struct{}),
	}
}

// feed offers data to the consumer without ever blocking the caller.
// Returns false once the tap is closed so the engine can drop it.
func (t *tap) feed(data []byte) bool {
	select {
	case <-t.done:
		return false
	default:
	}

	// The engine shares one data slice between taps and the ring; copy
	// so the consumer can hold it across reads.
	buf := make([]byte, len(data))
	copy(buf, data)

	select {
	case t.ch <- buf:
	default:
		// Consumer is behind; drop this chunk.
	}
	return true
}

func (t *tap) Read(p []byte) (int, error) {
	if len(t.pending) == 0 {
		select {
		case buf := <-t.ch:
			t.pending = buf
		case <-t.done:
			// Drain anything already queued before reporting EOF.
			select {
			case buf := <-t.ch:
				t.pending = buf
			default:
				return 0, io.EOF
			}
		}
	}

	n := copy(p, t.pending)
	t.pending = t.pending[n:]
	return n, nil
}

func (t *tap) Close() error {
	t.closeOnce.Do(func() { close(t.done) })
	return nil
}

// Tap is the consumer-facing handle handed to the metadata parser.
type Tap struct {
	*tap
}

var _ io.ReadCloser = (*Tap)(nil)
