package ntrip

import (
	"encoding/base64"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/go-gnss/ntripcaster/internal/metrics"
	"github.com/go-gnss/ntripcaster/internal/registry"
	"github.com/go-gnss/ntripcaster/internal/rtcm"
)

// request is the decoded first kilobyte of a connection.
type request struct {
	verb    string // "SOURCE" or "GET"
	mount   string
	version registry.ProtocolVersion

	// legacyPassword is the inline password of "SOURCE <pw> <mount>".
	legacyPassword string

	// Basic credentials, when an Authorization header decoded cleanly.
	username string
	password string
	hasAuth  bool
	badAuth  bool

	agent string

	// leftover is any payload that arrived in the same read as the
	// headers; for uploads it is stream data.
	leftover []byte
}

func (r *request) v2() bool { return r.version == registry.NTRIPv2 }

// parseRequest decodes an initial read. The caster tolerates arbitrary
// junk after the header block, so only the header section must be
// well-formed.
func parseRequest(data []byte) (*request, error) {
	head := data
	var leftover []byte
	if i := strings.Index(string(data), "\r\n\r\n"); i >= 0 {
		head = data[:i]
		leftover = data[i+4:]
	}

	lines := strings.Split(string(head), "\r\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return nil, ErrBadRequest
	}
	parts := strings.Fields(lines[0])
	if len(parts) < 2 {
		return nil, ErrBadRequest
	}

	req := &request{
		verb:     strings.ToUpper(parts[0]),
		version:  registry.NTRIPv1,
		leftover: leftover,
	}

	headers := make(map[string]string)
	for _, line := range lines[1:] {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		headers[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}

	httpRequest := len(parts) >= 3 && strings.HasPrefix(strings.ToUpper(parts[len(parts)-1]), "HTTP/1.")

	switch req.verb {
	case "SOURCE":
		if httpRequest {
			// SOURCE /<mount> HTTP/1.x with Basic credentials.
			req.mount = strings.TrimPrefix(parts[1], "/")
		} else {
			if len(parts) < 3 {
				return nil, ErrBadRequest
			}
			req.legacyPassword = parts[1]
			req.mount = strings.TrimPrefix(parts[2], "/")
		}
	case "GET":
		if !httpRequest {
			return nil, ErrBadRequest
		}
		req.mount = strings.TrimPrefix(parts[1], "/")
	default:
		return nil, ErrBadRequest
	}
	if req.mount == "" && req.verb == "SOURCE" {
		return nil, ErrBadRequest
	}

	if httpRequest && strings.EqualFold(parts[len(parts)-1], "HTTP/1.1") &&
		strings.EqualFold(headers[strings.ToLower(NTRIPVersionHeaderKey)], NTRIPVersionHeaderValueV2) {
		req.version = registry.NTRIPv2
	}

	req.agent = headers["user-agent"]
	if req.agent == "" {
		req.agent = headers["source-agent"]
	}

	if auth, ok := headers["authorization"]; ok {
		req.hasAuth = true
		req.username, req.password, req.badAuth = decodeBasic(auth)
	}

	return req, nil
}

// decodeBasic accepts sloppy Basic credentials: surrounding whitespace,
// unpadded base64. A payload without a colon is reported bad rather
// than guessed at.
func decodeBasic(value string) (username, password string, bad bool) {
	fields := strings.Fields(value)
	if len(fields) != 2 || !strings.EqualFold(fields[0], "Basic") {
		return "", "", true
	}

	raw, err := base64.StdEncoding.DecodeString(fields[1])
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(fields[1])
	}
	if err != nil {
		return "", "", true
	}

	username, password, found := strings.Cut(string(raw), ":")
	if !found {
		return "", "", true
	}
	return username, password, false
}

// handleConnection reads the first kilobyte and dispatches.
func (c *Caster) handleConnection(conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			c.log.WithField("panic", r).Error("connection handler panicked")
			conn.Close()
		}
	}()

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	if err != nil {
		conn.Close()
		return
	}
	conn.SetReadDeadline(time.Time{})

	req, err := parseRequest(buf[:n])
	if err != nil {
		metrics.RequestsTotal.WithLabelValues("unknown", "bad_request").Inc()
		conn.Write([]byte("HTTP/1.1 400 Bad Request\r\nConnection: close\r\n\r\n"))
		conn.Close()
		return
	}

	switch req.verb {
	case "SOURCE":
		c.handleUpload(conn, req)
	default:
		if req.mount == "" {
			c.handleSourcetable(conn, req)
		} else {
			c.handleSubscribe(conn, req)
		}
	}
}

// handleUpload authenticates a base station and runs its read loop
// until the socket dies. Subscriber sockets are never touched here.
func (c *Caster) handleUpload(conn net.Conn, req *request) {
	log := c.log.WithFields(logrus.Fields{
		"mount":   req.mount,
		"peer":    conn.RemoteAddr().String(),
		"version": req.version.String(),
	})

	password := req.legacyPassword
	if password == "" && !req.badAuth {
		password = req.password
	}

	stored, err := c.catalog.GetMount(req.mount)
	if err != nil || password == "" || password != stored {
		metrics.AuthFailuresTotal.WithLabelValues("uploader").Inc()
		metrics.RequestsTotal.WithLabelValues("upload", "unauthorized").Inc()
		log.WithError(err).Info("rejected uploader")
		if req.v2() {
			conn.Write([]byte("HTTP/1.1 401 Unauthorized\r\n\r\n"))
		} else {
			conn.Write([]byte("ERROR - Bad Password\r\n"))
		}
		conn.Close()
		return
	}

	if req.v2() {
		conn.Write([]byte("HTTP/1.1 200 OK\r\n" + NTRIPVersionHeaderKey + ": " + NTRIPVersionHeaderValueV2 + "\r\n\r\n"))
	} else {
		conn.Write([]byte("ICY 200 OK\r\n"))
	}
	metrics.RequestsTotal.WithLabelValues("upload", "ok").Inc()

	now := time.Now()
	mount := &registry.MountInfo{
		Name:        req.mount,
		PeerAddr:    conn.RemoteAddr().String(),
		Agent:       req.agent,
		Version:     req.version,
		ConnectTime: now,
		Conn:        conn,
	}

	// Last writer wins: a reconnecting base station replaces its stale
	// predecessor.
	if old := c.registry.AddMount(mount); old != nil {
		log.Info("replacing already-online uploader")
		old.Conn.Close()
	}
	c.engine.AddMount(req.mount)
	metrics.MountsOnline.Set(float64(len(c.registry.OnlineMounts())))

	c.registry.SetMountSTR(req.mount, InitialSTRLine(req.mount, req.agent, c.opts.Sourcetable), false)
	c.sourcetable.Rebuild(c.registry.STRLines())
	c.startStreamParser(req.mount)

	log.Info("uploader online")

	if len(req.leftover) > 0 {
		c.engine.Append(req.mount, req.leftover)
		c.registry.UpdateMountData(req.mount, len(req.leftover))
	}

	buf := make([]byte, c.opts.BufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			c.engine.Append(req.mount, buf[:n])
			c.registry.UpdateMountData(req.mount, n)
		}
		if err != nil {
			break
		}
	}

	// A replacement uploader may already own the mount name; only the
	// current holder tears down shared state.
	if removed := c.registry.RemoveMount(req.mount, conn); removed != nil {
		c.engine.RemoveMount(req.mount)
		c.sourcetable.Rebuild(c.registry.STRLines())
		metrics.MountsOnline.Set(float64(len(c.registry.OnlineMounts())))
		log.Info("uploader offline")
	}
	conn.Close()
}

// startStreamParser taps the mount's stream for a bounded window and
// folds what it learns into the STR line.
func (c *Caster) startStreamParser(mount string) {
	tap := c.engine.Tap(mount)
	if tap == nil {
		return
	}

	apply := func(res rtcm.Result, final bool) {
		if res.HasPosition {
			c.registry.SetMountStation(mount, res.StationID, res.Lat, res.Lon, res.Height, res.CountryISO3, res.City)
		}
		if info, ok := c.registry.GetMount(mount); ok {
			c.registry.SetMountSTR(mount, FinalizeSTRLine(info.STRLine, res), final)
			c.sourcetable.Rebuild(c.registry.STRLines())
		}
	}

	go func() {
		res := rtcm.Run(rtcm.Config{
			Mount:    mount,
			Source:   tap,
			Duration: c.opts.ParseWindow,
			Logger:   c.log,
			OnUpdate: func(res rtcm.Result) { apply(res, false) },
		})
		apply(res, true)
	}()
}

// handleSourcetable serves the cached table and closes.
func (c *Caster) handleSourcetable(conn net.Conn, req *request) {
	metrics.RequestsTotal.WithLabelValues("sourcetable", "ok").Inc()
	body := c.sourcetable.Body()
	fmt.Fprintf(conn, "SOURCETABLE 200 OK\r\nServer: %s\r\nDate: %s\r\nContent-Type: text/plain\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s",
		c.opts.ServerName, time.Now().UTC().Format("Mon, 02 Jan 2006 15:04:05 GMT"), len(body), body)
	conn.Close()
}

// handleSubscribe authenticates a rover, attaches it to the fan-out
// engine, and parks on the socket until it dies.
func (c *Caster) handleSubscribe(conn net.Conn, req *request) {
	log := c.log.WithFields(logrus.Fields{
		"mount":    req.mount,
		"username": req.username,
		"peer":     conn.RemoteAddr().String(),
		"version":  req.version.String(),
	})

	// A path that cannot possibly name a mount is not worth an auth
	// round-trip.
	if strings.Contains(req.mount, "/") || len(req.mount) > 100 {
		metrics.RequestsTotal.WithLabelValues("subscribe", "not_found").Inc()
		conn.Write([]byte("HTTP/1.1 404 Not Found\r\nConnection: close\r\n\r\n"))
		conn.Close()
		return
	}

	// A GET carries no mount password in either dialect; that check is
	// reserved for base-station-style clients that send one inline.
	// Credentials must be present even in 1.0, where they are not bound
	// to the catalog's user table.
	err := ErrBadPassword
	if req.hasAuth && !req.badAuth {
		err = c.catalog.VerifyDownload(req.mount, req.username, req.password, "", req.v2())
	}
	if err != nil {
		metrics.AuthFailuresTotal.WithLabelValues("subscriber").Inc()
		metrics.RequestsTotal.WithLabelValues("subscribe", "unauthorized").Inc()
		log.WithError(err).Info("rejected subscriber")
		if req.hasAuth {
			conn.Write([]byte("HTTP/1.1 401 Unauthorized\r\nConnection: close\r\n\r\n"))
		} else {
			conn.Write([]byte("HTTP/1.1 401 Unauthorized\r\nWWW-Authenticate: Basic realm=\"NTRIP\"\r\nConnection: close\r\n\r\n"))
		}
		conn.Close()
		return
	}

	now := time.Now()
	user := &registry.UserConnection{
		ID:          uuid.NewString(),
		Username:    req.username,
		Mount:       req.mount,
		PeerAddr:    conn.RemoteAddr().String(),
		Agent:       req.agent,
		Version:     req.version,
		ConnectTime: now,
		Conn:        conn,
	}

	// Admission may push out this user's oldest connection to the same
	// mount.
	for _, victim := range c.registry.AddUser(user) {
		log.WithField("victim", victim.ID).Info("evicting oldest connection for admission cap")
		c.engine.Unsubscribe(victim.Mount, victim.ID)
		victim.Conn.Close()
		metrics.SubscriberEvictionsTotal.WithLabelValues("admission_cap").Inc()
	}

	if req.v2() {
		fmt.Fprintf(conn, "HTTP/1.1 200 OK\r\n"+
			NTRIPVersionHeaderKey+": "+NTRIPVersionHeaderValueV2+"\r\n"+
			"Server: %s\r\n"+
			"Date: %s\r\n"+
			"Cache-Control: no-store,max-age=0\r\n"+
			"Pragma: no-cache\r\n"+
			"Connection: close\r\n"+
			"Content-Type: gnss/data\r\n"+
			"Transfer-Encoding: chunked\r\n\r\n",
			c.opts.ServerName, time.Now().UTC().Format("Mon, 02 Jan 2006 15:04:05 GMT"))
	} else {
		conn.Write([]byte("ICY 200 OK\r\n"))
	}
	metrics.RequestsTotal.WithLabelValues("subscribe", "ok").Inc()

	c.engine.Subscribe(user.ID, req.username, req.mount, conn, req.v2())
	log.Info("subscriber online")

	// Subscribers never send data; this read returns when the peer
	// hangs up or the broadcast loop closed the socket on eviction.
	buf := make([]byte, 256)
	for {
		if _, err := conn.Read(buf); err != nil {
			break
		}
	}

	c.engine.Unsubscribe(req.mount, user.ID)
	c.registry.RemoveUser(req.username, user.ID)
	conn.Close()
	log.Info("subscriber offline")
}
