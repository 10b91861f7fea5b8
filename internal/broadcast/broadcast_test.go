package broadcast

import (
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drain reads from conn until it closes, collecting everything.
func drain(conn net.Conn) (<-chan []byte, func()) {
	out := make(chan []byte, 1)
	var once sync.Once
	go func() {
		var got []byte
		buf := make([]byte, 4096)
		for {
			n, err := conn.Read(buf)
			got = append(got, buf[:n]...)
			if err != nil {
				break
			}
		}
		out <- got
	}()
	return out, func() { once.Do(func() { conn.Close() }) }
}

func TestDeliveryPreservesUploaderOrder(t *testing.T) {
	e := New(Config{})
	e.AddMount("MT01")

	server, client := net.Pipe()
	defer server.Close()
	got, closeClient := drain(client)

	e.Subscribe("s1", "alice", "MT01", server, false)
	e.Append("MT01", []byte("AA"))
	e.Append("MT01", []byte("BB"))
	e.Append("MT01", []byte("CC"))
	e.sweep()

	closeClient()
	assert.Equal(t, []byte("AABBCC"), <-got)
}

func TestChunkedFraming(t *testing.T) {
	e := New(Config{})
	e.AddMount("MT01")

	server, client := net.Pipe()
	defer server.Close()
	got, closeClient := drain(client)

	e.Subscribe("s1", "alice", "MT01", server, true)
	e.Append("MT01", []byte("AAAA"))
	e.Append("MT01", []byte("BBBB"))
	e.Append("MT01", []byte("CCCC"))
	e.sweep()

	closeClient()
	assert.Equal(t, []byte("4\r\nAAAA\r\n4\r\nBBBB\r\n4\r\nCCCC\r\n"), <-got)
}

func TestSweepOnlySendsNewEntries(t *testing.T) {
	e := New(Config{})
	e.AddMount("MT01")

	server, client := net.Pipe()
	defer server.Close()
	got, closeClient := drain(client)

	e.Subscribe("s1", "alice", "MT01", server, false)
	e.Append("MT01", []byte("AA"))
	e.sweep()
	// A second sweep with no new data must not resend.
	e.sweep()
	e.Append("MT01", []byte("BB"))
	e.sweep()

	closeClient()
	assert.Equal(t, []byte("AABB"), <-got)
}

func TestOverrunEvictsSubscriber(t *testing.T) {
	var mu sync.Mutex
	var evicted []Reason
	e := New(Config{
		RingSize: 2,
		OnEvict: func(mount, username, id string, reason Reason) {
			mu.Lock()
			evicted = append(evicted, reason)
			mu.Unlock()
		},
	})
	e.AddMount("MT01")

	server, client := net.Pipe()
	got, _ := drain(client)

	e.Subscribe("s1", "alice", "MT01", server, false)
	// Three appends into a 2-entry ring: the first is discarded before
	// the subscriber was ever swept.
	e.Append("MT01", []byte("AA"))
	e.Append("MT01", []byte("BB"))
	e.Append("MT01", []byte("CC"))
	e.sweep()

	// Eviction closed the server side, so the reader finishes on its own.
	assert.Empty(t, <-got)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, evicted, 1)
	assert.Equal(t, ReasonOverrun, evicted[0])
}

func TestSlowConsumerEvictedOthersUnaffected(t *testing.T) {
	var mu sync.Mutex
	evicted := map[string]Reason{}
	e := New(Config{
		SendTimeout: 50 * time.Millisecond,
		OnEvict: func(mount, username, id string, reason Reason) {
			mu.Lock()
			evicted[id] = reason
			mu.Unlock()
		},
	})
	e.AddMount("MT01")

	fastSrv, fastCli := net.Pipe()
	defer fastSrv.Close()
	fastGot, closeFast := drain(fastCli)

	slowSrv, slowCli := net.Pipe()
	defer slowCli.Close() // never read from

	e.Subscribe("fast", "alice", "MT01", fastSrv, false)
	e.Subscribe("slow", "bob", "MT01", slowSrv, false)

	e.Append("MT01", []byte("DATA"))
	e.sweep()

	closeFast()
	assert.Equal(t, []byte("DATA"), <-fastGot)

	mu.Lock()
	defer mu.Unlock()
	require.Contains(t, evicted, "slow")
	assert.Equal(t, ReasonWriteTimeout, evicted["slow"])
	assert.NotContains(t, evicted, "fast")
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	e := New(Config{})
	e.AddMount("MT01")

	server, client := net.Pipe()
	defer server.Close()
	got, closeClient := drain(client)

	e.Subscribe("s1", "alice", "MT01", server, false)
	e.Append("MT01", []byte("AA"))
	e.sweep()
	e.Unsubscribe("MT01", "s1")
	e.Append("MT01", []byte("BB"))
	e.sweep()

	closeClient()
	assert.Equal(t, []byte("AA"), <-got)
}

func TestOnDeliverReportsProgress(t *testing.T) {
	var mu sync.Mutex
	var total int64
	e := New(Config{
		OnDeliver: func(mount, username, id string, n int64, watermark time.Time) {
			mu.Lock()
			total += n
			mu.Unlock()
		},
	})
	e.AddMount("MT01")

	server, client := net.Pipe()
	defer server.Close()
	got, closeClient := drain(client)

	e.Subscribe("s1", "alice", "MT01", server, false)
	e.Append("MT01", []byte("AABB"))
	e.sweep()

	closeClient()
	<-got
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, int64(4), total)
}

func TestTapSeesUploadedData(t *testing.T) {
	e := New(Config{})
	e.AddMount("MT01")

	tap := e.Tap("MT01")
	require.NotNil(t, tap)
	// No tap for a mount that is not online.
	assert.Nil(t, e.Tap("NOPE"))

	e.Append("MT01", []byte("HELLO"))

	buf := make([]byte, 16)
	n, err := tap.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("HELLO"), buf[:n])

	tap.Close()
	_, err = tap.Read(buf)
	assert.Equal(t, io.EOF, err)
}

func TestRemoveMountClosesTaps(t *testing.T) {
	e := New(Config{})
	e.AddMount("MT01")
	tap := e.Tap("MT01")
	require.NotNil(t, tap)

	e.RemoveMount("MT01")

	buf := make([]byte, 16)
	_, err := tap.Read(buf)
	assert.Equal(t, io.EOF, err)

	// Appends after teardown are ignored.
	e.Append("MT01", []byte("LATE"))
}
