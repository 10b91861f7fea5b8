package registry

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn is a non-nil net.Conn handle; its methods are never called.
type fakeConn struct{ net.Conn }

func newUser(username, mount string, connectTime time.Time) *UserConnection {
	return &UserConnection{
		ID:          uuid.NewString(),
		Username:    username,
		Mount:       mount,
		Version:     NTRIPv1,
		ConnectTime: connectTime,
	}
}

func TestAddMountLastWriterWins(t *testing.T) {
	r := New(0)
	base := time.Now()

	first := &MountInfo{Name: "MT01", ConnectTime: base}
	require.Nil(t, r.AddMount(first))
	assert.True(t, r.IsMountOnline("MT01"))

	second := &MountInfo{Name: "MT01", ConnectTime: base.Add(time.Second)}
	evicted := r.AddMount(second)
	require.NotNil(t, evicted)
	assert.Equal(t, base, evicted.ConnectTime)

	got, ok := r.GetMount("MT01")
	require.True(t, ok)
	assert.Equal(t, second.ConnectTime, got.ConnectTime)
}

func TestRemoveMountIgnoresReplacedEntry(t *testing.T) {
	r := New(0)
	r.AddMount(&MountInfo{Name: "MT01"})
	r.AddMount(&MountInfo{Name: "MT01"})

	// The first uploader's cleanup must not tear down the replacement.
	// Conn is nil for both here, so simulate via a distinct entry check:
	// removal with a non-matching conn handle is a no-op.
	removed := r.RemoveMount("MT01", &fakeConn{})
	assert.Nil(t, removed)
	assert.True(t, r.IsMountOnline("MT01"))

	removed = r.RemoveMount("MT01", nil)
	require.NotNil(t, removed)
	assert.False(t, r.IsMountOnline("MT01"))
}

func TestAddUserEnforcesConnectionCap(t *testing.T) {
	r := New(3)
	base := time.Now()

	var ids []string
	for i := 0; i < 3; i++ {
		u := newUser("alice", "MT01", base.Add(time.Duration(i)*time.Second))
		ids = append(ids, u.ID)
		assert.Empty(t, r.AddUser(u))
	}
	require.Equal(t, 3, r.UserConnectionCount("alice", "MT01"))

	// Fourth connection evicts the oldest.
	evicted := r.AddUser(newUser("alice", "MT01", base.Add(10*time.Second)))
	require.Len(t, evicted, 1)
	assert.Equal(t, ids[0], evicted[0].ID)
	assert.Equal(t, 3, r.UserConnectionCount("alice", "MT01"))
}

func TestAddUserCapIsPerMount(t *testing.T) {
	r := New(3)
	base := time.Now()

	for i := 0; i < 3; i++ {
		require.Empty(t, r.AddUser(newUser("alice", "MT01", base)))
	}
	// A different mount doesn't count against MT01's cap.
	assert.Empty(t, r.AddUser(newUser("alice", "MT02", base)))
	assert.Equal(t, 3, r.UserConnectionCount("alice", "MT01"))
	assert.Equal(t, 1, r.UserConnectionCount("alice", "MT02"))
}

func TestRemoveUserIsIdempotent(t *testing.T) {
	r := New(0)
	u := newUser("bob", "MT01", time.Now())
	r.AddUser(u)

	require.NotNil(t, r.RemoveUser("bob", u.ID))
	assert.Nil(t, r.RemoveUser("bob", u.ID))
	assert.Equal(t, 0, r.UserConnectionCount("bob", "MT01"))
}

func TestUpdateActivityMonotonicLastSent(t *testing.T) {
	r := New(0)
	u := newUser("bob", "MT01", time.Now())
	r.AddUser(u)

	t1 := time.Now()
	r.UpdateActivity("bob", u.ID, 100, t1)
	// A stale timestamp must not move LastSent backwards.
	r.UpdateActivity("bob", u.ID, 50, t1.Add(-time.Second))

	stats := r.GetStatistics()
	require.Len(t, stats.Users, 1)
	assert.Equal(t, int64(150), stats.Users[0].BytesSent)
	assert.Equal(t, t1, u.LastSent)
}

func TestForceDisconnectUser(t *testing.T) {
	r := New(0)
	r.AddUser(newUser("alice", "MT01", time.Now()))
	r.AddUser(newUser("alice", "MT02", time.Now()))
	r.AddUser(newUser("bob", "MT01", time.Now()))

	dropped := r.ForceDisconnectUser("alice")
	assert.Len(t, dropped, 2)
	assert.Equal(t, 0, r.UserConnectionCount("alice", "MT01"))
	assert.Equal(t, 1, r.UserConnectionCount("bob", "MT01"))
}

func TestSTRLinesSortedByMount(t *testing.T) {
	r := New(0)
	for _, name := range []string{"ZULU", "ALFA", "MIKE"} {
		r.AddMount(&MountInfo{Name: name})
		r.SetMountSTR(name, fmt.Sprintf("STR;%s;rest", name), false)
	}

	lines := r.STRLines()
	require.Len(t, lines, 3)
	assert.Equal(t, "STR;ALFA;rest", lines[0])
	assert.Equal(t, "STR;MIKE;rest", lines[1])
	assert.Equal(t, "STR;ZULU;rest", lines[2])
}

func TestStaleScans(t *testing.T) {
	r := New(0)
	old := time.Now().Add(-10 * time.Minute)

	r.AddMount(&MountInfo{Name: "STALE", ConnectTime: old})
	r.AddMount(&MountInfo{Name: "FRESH", ConnectTime: time.Now()})
	r.UpdateMountData("FRESH", 1024)

	stale := r.StaleMounts(time.Now().Add(-3 * time.Minute))
	require.Len(t, stale, 1)
	assert.Equal(t, "STALE", stale[0].Name)

	r.AddUser(newUser("alice", "STALE", old))
	fresh := newUser("bob", "FRESH", time.Now())
	r.AddUser(fresh)
	r.UpdateActivity("bob", fresh.ID, 1, time.Now())

	staleUsers := r.StaleUsers(time.Now().Add(-3 * time.Minute))
	require.Len(t, staleUsers, 1)
	assert.Equal(t, "alice", staleUsers[0].Username)
}

func TestGetStatisticsSnapshot(t *testing.T) {
	r := New(0)
	r.AddMount(&MountInfo{Name: "MT01", ConnectTime: time.Now(), Version: NTRIPv2})
	r.UpdateMountData("MT01", 4096)
	r.AddUser(newUser("alice", "MT01", time.Now()))
	r.AddUser(newUser("alice", "MT01", time.Now()))

	stats := r.GetStatistics()
	assert.Equal(t, 1, stats.TotalMounts)
	assert.Equal(t, 2, stats.TotalUsers)
	require.Len(t, stats.Mounts, 1)
	assert.Equal(t, "Ntrip/2.0", stats.Mounts[0].Version)
	assert.Equal(t, int64(4096), stats.Mounts[0].TotalBytes)
	assert.Equal(t, 2, stats.Mounts[0].SubscriberCount)
}
