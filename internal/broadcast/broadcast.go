// Package broadcast implements the caster's fan-out engine: one loop
// that sweeps every mount's ring buffer and writes fresh entries to
// every attached subscriber. All subscriber writes happen on this one
// goroutine; per-connection tasks only read.
package broadcast

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/go-gnss/ntripcaster/internal/metrics"
	"github.com/go-gnss/ntripcaster/internal/ring"
)

// Reason classifies why the engine dropped a subscriber.
type Reason string

const (
	ReasonOverrun      Reason = "overrun"
	ReasonWriteTimeout Reason = "write_timeout"
	ReasonWriteError   Reason = "write_error"
)

const (
	DefaultInterval    = 10 * time.Millisecond
	DefaultSendTimeout = 5 * time.Second

	// New subscribers start this far back in the buffer so they get a
	// small tail of recent corrections immediately.
	subscriberTailFlush = 5 * time.Second
)

// Config wires the engine to its surroundings. OnEvict and OnDeliver
// run on the broadcast goroutine with no engine locks held.
type Config struct {
	Interval    time.Duration
	SendTimeout time.Duration
	RingSize    int
	Logger      logrus.FieldLogger

	// OnEvict fires after the engine closed the subscriber's socket.
	OnEvict func(mount, username, id string, reason Reason)
	// OnDeliver reports bytes written and the new watermark.
	OnDeliver func(mount, username, id string, n int64, watermark time.Time)
}

type subscriber struct {
	id       string
	username string
	mount    string
	conn     net.Conn
	chunked  bool

	// watermark is read and advanced only by the broadcast goroutine.
	watermark time.Time
}

// Engine owns the per-mount ring buffers, the subscriber sets, and the
// parser taps. Safe for concurrent use.
type Engine struct {
	cfg Config
	log logrus.FieldLogger

	mu      sync.Mutex
	buffers map[string]*ring.Buffer
	subs    map[string]map[string]*subscriber // mount -> id
	taps    map[string][]*tap
}

func New(cfg Config) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{
		cfg:     cfg,
		log:     log.WithField("component", "broadcast"),
		buffers: make(map[string]*ring.Buffer),
		subs:    make(map[string]map[string]*subscriber),
		taps:    make(map[string][]*tap),
	}
}

// Run sweeps until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			e.sweep()
			metrics.BroadcastLoopDuration.Observe(time.Since(start).Seconds())
		}
	}
}

// AddMount creates the mount's ring buffer. An existing buffer is
// replaced (last writer wins, mirroring registry.AddMount).
func (e *Engine) AddMount(mount string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.buffers[mount] = ring.NewBuffer(e.cfg.RingSize)
}

// RemoveMount tears down the buffer and parser taps. Subscribers stay
// attached; they are cleaned up by their own connection paths.
func (e *Engine) RemoveMount(mount string) {
	e.mu.Lock()
	taps := e.taps[mount]
	delete(e.taps, mount)
	delete(e.buffers, mount)
	e.mu.Unlock()

	for _, t := range taps {
		t.Close()
	}
}

// Append records uploader data for the mount and feeds any parser taps.
// Unknown mounts are ignored (data raced a teardown).
func (e *Engine) Append(mount string, data []byte) {
	e.mu.Lock()
	buf := e.buffers[mount]
	taps := e.taps[mount]
	e.mu.Unlock()

	if buf == nil {
		return
	}
	buf.Append(data)
	metrics.BytesReceivedTotal.WithLabelValues(mount).Add(float64(len(data)))

	var dead []*tap
	for _, t := range taps {
		if !t.feed(data) {
			dead = append(dead, t)
		}
	}
	if len(dead) > 0 {
		e.mu.Lock()
		for _, t := range dead {
			e.taps[mount] = removeTap(e.taps[mount], t)
		}
		e.mu.Unlock()
	}
}

// Subscribe attaches a socket to the mount's stream. chunked selects
// NTRIP 2.0 framing. The mount need not be online yet.
func (e *Engine) Subscribe(id, username, mount string, conn net.Conn, chunked bool) {
	s := &subscriber{
		id:        id,
		username:  username,
		mount:     mount,
		conn:      conn,
		chunked:   chunked,
		watermark: time.Now().Add(-subscriberTailFlush),
	}

	e.mu.Lock()
	if e.subs[mount] == nil {
		e.subs[mount] = make(map[string]*subscriber)
	}
	e.subs[mount][id] = s
	e.mu.Unlock()

	metrics.SubscribersOnline.WithLabelValues(mount).Inc()
}

// Unsubscribe detaches a subscriber without closing its socket; the
// caller owns the connection teardown.
func (e *Engine) Unsubscribe(mount, id string) {
	e.mu.Lock()
	subs := e.subs[mount]
	_, ok := subs[id]
	if ok {
		delete(subs, id)
		if len(subs) == 0 {
			delete(e.subs, mount)
		}
	}
	e.mu.Unlock()

	if ok {
		metrics.SubscribersOnline.WithLabelValues(mount).Dec()
	}
}

// Tap returns a reader over the mount's future data, for the metadata
// parser. Returns nil when the mount is not online. The tap drops data
// rather than block the upload path when its consumer falls behind.
func (e *Engine) Tap(mount string) *Tap {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.buffers[mount]; !ok {
		return nil
	}
	t := newTap()
	e.taps[mount] = append(e.taps[mount], t)
	return &Tap{t}
}

type delivery struct {
	sub     *subscriber
	entries []ring.Entry
	overrun bool
}

func (e *Engine) sweep() {
	e.mu.Lock()
	var pending []delivery
	for mount, subs := range e.subs {
		buf := e.buffers[mount]
		if buf == nil {
			continue
		}
		for _, s := range subs {
			entries, overrun := buf.Since(s.watermark)
			if overrun || len(entries) > 0 {
				pending = append(pending, delivery{sub: s, entries: entries, overrun: overrun})
			}
		}
	}
	e.mu.Unlock()

	for _, d := range pending {
		if d.overrun {
			e.evict(d.sub, ReasonOverrun)
			continue
		}
		e.deliver(d.sub, d.entries)
	}
}

func (e *Engine) deliver(s *subscriber, entries []ring.Entry) {
	deadline := time.Now().Add(e.cfg.SendTimeout)
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		e.evict(s, ReasonWriteError)
		return
	}

	var sent int64
	for _, entry := range entries {
		n, err := e.writeEntry(s, entry.Data)
		sent += int64(n)
		if err != nil {
			if sent > 0 {
				e.afterDeliver(s, sent)
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				e.evict(s, ReasonWriteTimeout)
			} else {
				e.evict(s, ReasonWriteError)
			}
			return
		}
		s.watermark = entry.Timestamp
	}
	e.afterDeliver(s, sent)
}

// writeEntry frames one ring entry for the subscriber's protocol: raw
// bytes for NTRIP 1.0, one HTTP chunk per entry for 2.0.
func (e *Engine) writeEntry(s *subscriber, data []byte) (int, error) {
	if !s.chunked {
		return s.conn.Write(data)
	}
	chunk := make([]byte, 0, len(data)+16)
	chunk = append(chunk, fmt.Sprintf("%x\r\n", len(data))...)
	chunk = append(chunk, data...)
	chunk = append(chunk, '\r', '\n')
	return s.conn.Write(chunk)
}

func (e *Engine) afterDeliver(s *subscriber, sent int64) {
	if sent == 0 {
		return
	}
	metrics.BytesSentTotal.WithLabelValues(s.mount).Add(float64(sent))
	if e.cfg.OnDeliver != nil {
		e.cfg.OnDeliver(s.mount, s.username, s.id, sent, s.watermark)
	}
}

func (e *Engine) evict(s *subscriber, reason Reason) {
	e.Unsubscribe(s.mount, s.id)
	s.conn.Close()
	metrics.SubscriberEvictionsTotal.WithLabelValues(string(reason)).Inc()

	e.log.WithFields(logrus.Fields{
		"mount":    s.mount,
		"username": s.username,
		"reason":   reason,
	}).Info("evicted subscriber")

	if e.cfg.OnEvict != nil {
		e.cfg.OnEvict(s.mount, s.username, s.id, reason)
	}
}

func removeTap(taps []*tap, victim *tap) []*tap {
	out := taps[:0]
	for _, t := range taps {
		if t != victim {
			out = append(out, t)
		}
	}
	return out
}
