// Package registry tracks which mounts and subscriber connections are
// live right now. It is purely in-memory state behind two independent
// locks; persistent identity lives in the catalog.
package registry

import (
	"net"
	"sort"
	"sync"
	"time"
)

// ProtocolVersion distinguishes the two NTRIP dialects a peer can speak.
type ProtocolVersion int

const (
	NTRIPv1 ProtocolVersion = iota + 1
	NTRIPv2
)

func (v ProtocolVersion) String() string {
	if v == NTRIPv2 {
		return "Ntrip/2.0"
	}
	return "Ntrip/1.0"
}

// DefaultMaxUserConnectionsPerMount caps concurrent subscriptions per
// (username, mount) pair; the oldest is dropped on overflow.
const DefaultMaxUserConnectionsPerMount = 3

// MountInfo is one live uploader. The registry owns the canonical copy;
// accessors hand out value copies so no caller mutates shared state.
type MountInfo struct {
	Name     string
	PeerAddr string
	Agent    string
	Version  ProtocolVersion

	ConnectTime  time.Time
	LastDataTime time.Time
	TotalBytes   int64
	DataRateBPS  float64

	// Station metadata filled in by the stream parser.
	StationID   uint16
	Lat         float64
	Lon         float64
	Height      float64
	CountryISO3 string
	City        string

	STRLine          string
	InitialGenerated bool
	FinalGenerated   bool

	// Conn is retained only for forced disconnects; the registry never
	// performs I/O on it.
	Conn net.Conn
}

// Uptime is the time since the uploader connected.
func (m *MountInfo) Uptime() time.Duration { return time.Since(m.ConnectTime) }

// UserConnection is one live subscriber socket.
type UserConnection struct {
	ID       string
	Username string
	Mount    string
	PeerAddr string
	Agent    string
	Version  ProtocolVersion

	ConnectTime  time.Time
	LastActivity time.Time
	BytesSent    int64
	LastSent     time.Time

	Conn net.Conn
}

// Registry is safe for concurrent use. mountLock and userLock are never
// held together.
type Registry struct {
	maxPerUserMount int

	mountLock sync.RWMutex
	mounts    map[string]*MountInfo

	userLock       sync.RWMutex
	users          map[string][]*UserConnection // keyed by username
	mountConnCount map[string]int               // subscribers per mount
	userConnCount  map[string]int               // connections per username
}

func New(maxPerUserMount int) *Registry {
	if maxPerUserMount <= 0 {
		maxPerUserMount = DefaultMaxUserConnectionsPerMount
	}
	return &Registry{
		maxPerUserMount: maxPerUserMount,
		mounts:          make(map[string]*MountInfo),
		users:           make(map[string][]*UserConnection),
		mountConnCount:  make(map[string]int),
		userConnCount:   make(map[string]int),
	}
}

// AddMount registers an uploader. If the mount is already online the old
// entry is replaced and returned so the caller can close its socket
// (last writer wins).
func (r *Registry) AddMount(m *MountInfo) (evicted *MountInfo) {
	r.mountLock.Lock()
	defer r.mountLock.Unlock()

	evicted = r.mounts[m.Name]
	r.mounts[m.Name] = m
	return evicted
}

// RemoveMount deregisters a mount. Returns the removed entry, or nil if
// current no longer matches what is registered (a replacement uploader
// has taken over and must not be torn down by the loser's cleanup).
func (r *Registry) RemoveMount(name string, current net.Conn) *MountInfo {
	r.mountLock.Lock()
	defer r.mountLock.Unlock()

	m, ok := r.mounts[name]
	if !ok || (current != nil && m.Conn != current) {
		return nil
	}
	delete(r.mounts, name)
	return m
}

// GetMount returns a copy of the mount's state.
func (r *Registry) GetMount(name string) (MountInfo, bool) {
	r.mountLock.RLock()
	defer r.mountLock.RUnlock()

	m, ok := r.mounts[name]
	if !ok {
		return MountInfo{}, false
	}
	return *m, true
}

func (r *Registry) IsMountOnline(name string) bool {
	r.mountLock.RLock()
	defer r.mountLock.RUnlock()
	_, ok := r.mounts[name]
	return ok
}

// UpdateMountData accounts n received bytes against the mount.
func (r *Registry) UpdateMountData(name string, n int) {
	r.mountLock.Lock()
	defer r.mountLock.Unlock()

	m, ok := r.mounts[name]
	if !ok {
		return
	}
	m.TotalBytes += int64(n)
	m.LastDataTime = time.Now()
	if up := m.Uptime().Seconds(); up >= 1 {
		m.DataRateBPS = float64(m.TotalBytes) * 8 / up
	}
}

// SetMountSTR stores a (re)generated STR line for the mount.
func (r *Registry) SetMountSTR(name, line string, final bool) {
	r.mountLock.Lock()
	defer r.mountLock.Unlock()

	m, ok := r.mounts[name]
	if !ok {
		return
	}
	m.STRLine = line
	if final {
		m.FinalGenerated = true
	} else {
		m.InitialGenerated = true
	}
}

// SetMountStation records the parser's station metadata.
func (r *Registry) SetMountStation(name string, stationID uint16, lat, lon, height float64, country, city string) {
	r.mountLock.Lock()
	defer r.mountLock.Unlock()

	m, ok := r.mounts[name]
	if !ok {
		return
	}
	m.StationID = stationID
	m.Lat, m.Lon, m.Height = lat, lon, height
	m.CountryISO3 = country
	m.City = city
}

// STRLines returns the current STR line of every online mount, ordered
// by mount name. The sourcetable formatter builds from this.
func (r *Registry) STRLines() []string {
	r.mountLock.RLock()
	defer r.mountLock.RUnlock()

	names := make([]string, 0, len(r.mounts))
	for name := range r.mounts {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		if line := r.mounts[name].STRLine; line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// OnlineMounts returns copies of every live mount, ordered by name.
func (r *Registry) OnlineMounts() []MountInfo {
	r.mountLock.RLock()
	defer r.mountLock.RUnlock()

	out := make([]MountInfo, 0, len(r.mounts))
	for _, m := range r.mounts {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AddUser admits a subscriber, enforcing the per-(user, mount) cap by
// evicting the oldest connections. Evicted entries are returned so the
// caller can close their sockets outside the lock.
func (r *Registry) AddUser(u *UserConnection) (evicted []*UserConnection) {
	r.userLock.Lock()
	defer r.userLock.Unlock()

	conns := r.users[u.Username]

	// Count existing connections to the same mount; evict oldest first
	// until there is room for the newcomer.
	same := make([]*UserConnection, 0, len(conns))
	for _, c := range conns {
		if c.Mount == u.Mount {
			same = append(same, c)
		}
	}
	sort.Slice(same, func(i, j int) bool { return same[i].ConnectTime.Before(same[j].ConnectTime) })

	for len(same) >= r.maxPerUserMount {
		victim := same[0]
		same = same[1:]
		evicted = append(evicted, victim)
		conns = removeConn(conns, victim.ID)
		r.mountConnCount[victim.Mount]--
		r.userConnCount[victim.Username]--
	}

	r.users[u.Username] = append(conns, u)
	r.mountConnCount[u.Mount]++
	r.userConnCount[u.Username]++
	return evicted
}

// RemoveUser deregisters one connection by id. Returns the removed
// entry, or nil when it was already gone (eviction races teardown).
func (r *Registry) RemoveUser(username, id string) *UserConnection {
	r.userLock.Lock()
	defer r.userLock.Unlock()

	conns := r.users[username]
	var removed *UserConnection
	for _, c := range conns {
		if c.ID == id {
			removed = c
			break
		}
	}
	if removed == nil {
		return nil
	}

	conns = removeConn(conns, id)
	if len(conns) == 0 {
		delete(r.users, username)
	} else {
		r.users[username] = conns
	}
	r.mountConnCount[removed.Mount]--
	r.userConnCount[username]--
	return removed
}

// UpdateActivity records delivery progress for a connection.
func (r *Registry) UpdateActivity(username, id string, bytesSent int64, lastSent time.Time) {
	r.userLock.Lock()
	defer r.userLock.Unlock()

	for _, c := range r.users[username] {
		if c.ID == id {
			c.BytesSent += bytesSent
			c.LastActivity = time.Now()
			if lastSent.After(c.LastSent) {
				c.LastSent = lastSent
			}
			return
		}
	}
}

// UserConnectionCount reports live connections for (username, mount).
func (r *Registry) UserConnectionCount(username, mount string) int {
	r.userLock.RLock()
	defer r.userLock.RUnlock()

	n := 0
	for _, c := range r.users[username] {
		if c.Mount == mount {
			n++
		}
	}
	return n
}

// ForceDisconnectUser removes every connection belonging to username and
// returns them for the caller to close.
func (r *Registry) ForceDisconnectUser(username string) []*UserConnection {
	r.userLock.Lock()
	defer r.userLock.Unlock()

	conns := r.users[username]
	delete(r.users, username)
	for _, c := range conns {
		r.mountConnCount[c.Mount]--
	}
	delete(r.userConnCount, username)
	return conns
}

// ForceDisconnectMount returns the mount's uploader entry, if online.
// Subscribers stay attached; their own reads and writes detect the dead
// mount.
func (r *Registry) ForceDisconnectMount(mount string) *MountInfo {
	r.mountLock.RLock()
	defer r.mountLock.RUnlock()
	return r.mounts[mount]
}

// StaleMounts returns mounts whose last data arrival is older than
// cutoff (connect time when no data has arrived yet).
func (r *Registry) StaleMounts(cutoff time.Time) []MountInfo {
	r.mountLock.RLock()
	defer r.mountLock.RUnlock()

	var stale []MountInfo
	for _, m := range r.mounts {
		last := m.LastDataTime
		if last.IsZero() {
			last = m.ConnectTime
		}
		if last.Before(cutoff) {
			stale = append(stale, *m)
		}
	}
	return stale
}

// StaleUsers returns subscriber connections idle since before cutoff.
func (r *Registry) StaleUsers(cutoff time.Time) []UserConnection {
	r.userLock.RLock()
	defer r.userLock.RUnlock()

	var stale []UserConnection
	for _, conns := range r.users {
		for _, c := range conns {
			last := c.LastActivity
			if last.IsZero() {
				last = c.ConnectTime
			}
			if last.Before(cutoff) {
				stale = append(stale, *c)
			}
		}
	}
	return stale
}

func removeConn(conns []*UserConnection, id string) []*UserConnection {
	out := conns[:0]
	for _, c := range conns {
		if c.ID != id {
			out = append(out, c)
		}
	}
	return out
}
