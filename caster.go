package ntrip

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/go-gnss/ntripcaster/internal/broadcast"
	"github.com/go-gnss/ntripcaster/internal/metrics"
	"github.com/go-gnss/ntripcaster/internal/registry"
)

// KeepAliveOptions configures TCP keep-alive probing on accepted
// sockets.
type KeepAliveOptions struct {
	Enabled  bool
	Idle     time.Duration
	Interval time.Duration
	Count    int
}

// Options assembles a Caster. Zero durations fall back to defaults.
type Options struct {
	Host string
	Port int

	Catalog     Catalog
	Sourcetable SourcetableConfig
	ServerName  string

	MaxConnections             int
	MaxUserConnectionsPerMount int
	BufferSize                 int
	RingSize                   int

	BroadcastInterval time.Duration
	DataSendTimeout   time.Duration
	MountTimeout      time.Duration
	ClientTimeout     time.Duration
	ReapInterval      time.Duration
	ParseWindow       time.Duration

	KeepAlive KeepAliveOptions
	Logger    logrus.FieldLogger
}

const (
	DefaultMountTimeout  = 180 * time.Second
	DefaultClientTimeout = 180 * time.Second
	DefaultReapInterval  = 60 * time.Second
)

// Caster ties the catalog, registry, fan-out engine, and sourcetable
// together behind one TCP listener.
type Caster struct {
	opts Options
	log  logrus.FieldLogger

	catalog     Catalog
	registry    *registry.Registry
	engine      *broadcast.Engine
	sourcetable *Sourcetable

	mu       sync.Mutex
	listener net.Listener

	liveConns atomic.Int64
}

func NewCaster(opts Options) (*Caster, error) {
	if opts.Catalog == nil {
		return nil, errors.New("caster requires a catalog")
	}
	if opts.MountTimeout <= 0 {
		opts.MountTimeout = DefaultMountTimeout
	}
	if opts.ClientTimeout <= 0 {
		opts.ClientTimeout = DefaultClientTimeout
	}
	if opts.ReapInterval <= 0 {
		opts.ReapInterval = DefaultReapInterval
	}
	if opts.ServerName == "" {
		opts.ServerName = "ntripcaster/2.0"
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 4096
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	c := &Caster{
		opts:    opts,
		log:     log.WithField("component", "caster"),
		catalog: opts.Catalog,
	}
	c.registry = registry.New(opts.MaxUserConnectionsPerMount)
	c.sourcetable = NewSourcetable(opts.Sourcetable, log)
	c.engine = broadcast.New(broadcast.Config{
		Interval:    opts.BroadcastInterval,
		SendTimeout: opts.DataSendTimeout,
		RingSize:    opts.RingSize,
		Logger:      log,
		OnEvict: func(mount, username, id string, reason broadcast.Reason) {
			c.registry.RemoveUser(username, id)
		},
		OnDeliver: func(mount, username, id string, n int64, watermark time.Time) {
			c.registry.UpdateActivity(username, id, n, watermark)
		},
	})
	return c, nil
}

// Registry exposes live-connection state to the admin surface.
func (c *Caster) Registry() *registry.Registry { return c.registry }

// GetStatistics snapshots the registry for the admin surface.
func (c *Caster) GetStatistics() registry.Statistics { return c.registry.GetStatistics() }

// ForceDisconnectUser closes every connection the user has. Idempotent.
func (c *Caster) ForceDisconnectUser(username string) int {
	dropped := c.registry.ForceDisconnectUser(username)
	for _, conn := range dropped {
		c.engine.Unsubscribe(conn.Mount, conn.ID)
		conn.Conn.Close()
		metrics.SubscriberEvictionsTotal.WithLabelValues("admin").Inc()
	}
	return len(dropped)
}

// ForceDisconnectMount kicks the mount's uploader; its read loop
// performs the actual teardown. Idempotent.
func (c *Caster) ForceDisconnectMount(mount string) bool {
	m := c.registry.ForceDisconnectMount(mount)
	if m == nil {
		return false
	}
	m.Conn.Close()
	return true
}

// Addr returns the bound listener address, for tests that listen on an
// ephemeral port.
func (c *Caster) Addr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listener == nil {
		return nil
	}
	return c.listener.Addr()
}

// Serve binds the NTRIP port and accepts until ctx is cancelled. The
// only fatal error is failing to bind.
func (c *Caster) Serve(ctx context.Context) error {
	lc := net.ListenConfig{}
	if c.opts.KeepAlive.Enabled {
		lc.KeepAliveConfig = net.KeepAliveConfig{
			Enable:   true,
			Idle:     c.opts.KeepAlive.Idle,
			Interval: c.opts.KeepAlive.Interval,
			Count:    c.opts.KeepAlive.Count,
		}
	}

	addr := fmt.Sprintf("%s:%d", c.opts.Host, c.opts.Port)
	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "failed to bind %s", addr)
	}
	c.mu.Lock()
	c.listener = listener
	c.mu.Unlock()
	c.log.WithField("addr", listener.Addr().String()).Info("ntrip caster listening")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.engine.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		c.reap(ctx)
	}()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			c.log.WithError(err).Warn("accept failed")
			continue
		}
		if n := c.liveConns.Add(1); c.opts.MaxConnections > 0 && n > int64(c.opts.MaxConnections) {
			c.liveConns.Add(-1)
			c.log.WithField("peer", conn.RemoteAddr().String()).Warn("connection limit reached")
			conn.Close()
			continue
		}
		go func() {
			defer c.liveConns.Add(-1)
			c.handleConnection(conn)
		}()
	}

	c.shutdown()
	wg.Wait()
	return nil
}

// reap is the safety net for sockets that die without the OS telling
// us: idle uploaders and subscribers get their sockets closed, and the
// per-connection paths clean up as usual.
func (c *Caster) reap(ctx context.Context) {
	ticker := time.NewTicker(c.opts.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for _, m := range c.registry.StaleMounts(time.Now().Add(-c.opts.MountTimeout)) {
			c.log.WithField("mount", m.Name).Warn("reaping idle uploader")
			m.Conn.Close()
		}
		for _, u := range c.registry.StaleUsers(time.Now().Add(-c.opts.ClientTimeout)) {
			c.log.WithFields(logrus.Fields{
				"username": u.Username,
				"mount":    u.Mount,
			}).Warn("reaping idle subscriber")
			u.Conn.Close()
			metrics.SubscriberEvictionsTotal.WithLabelValues("idle").Inc()
		}
	}
}

// shutdown closes subscribers first, then uploaders. State is all
// in-memory; nothing stream-side is persisted.
func (c *Caster) shutdown() {
	stats := c.registry.GetStatistics()
	for _, u := range stats.Users {
		c.ForceDisconnectUser(u.Username)
	}
	for _, m := range c.registry.OnlineMounts() {
		m.Conn.Close()
	}
	c.log.Info("ntrip caster stopped")
}
