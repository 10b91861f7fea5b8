package catalog

import (
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ntrip "github.com/go-gnss/ntripcaster"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	db, err := NewDB(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestHashPasswordRoundTrip(t *testing.T) {
	h := HashPassword("s3cret")
	assert.True(t, strings.Contains(h, "$"))
	assert.True(t, VerifyPassword(h, "s3cret"))
	assert.False(t, VerifyPassword(h, "wrong"))
	assert.False(t, NeedsUpgrade(h))

	// Two hashes of the same password use different salts.
	assert.NotEqual(t, h, HashPassword("s3cret"))
}

func TestVerifyPasswordLegacyPlaintext(t *testing.T) {
	assert.True(t, VerifyPassword("plain", "plain"))
	assert.False(t, VerifyPassword("plain", "other"))
	assert.True(t, NeedsUpgrade("plain"))
}

func TestSeedDefaultAdmin(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.SeedDefaultAdmin("admin", "admin123"))
	require.NoError(t, db.VerifyAdmin("admin", "admin123"))

	// Seeding again must not replace the existing account.
	require.NoError(t, db.UpdateAdminPassword("admin", "changed"))
	require.NoError(t, db.SeedDefaultAdmin("admin", "admin123"))
	assert.ErrorIs(t, db.VerifyAdmin("admin", "admin123"), ntrip.ErrBadPassword)
	assert.NoError(t, db.VerifyAdmin("admin", "changed"))
}

func TestVerifyAdminUpgradesLegacyRow(t *testing.T) {
	db := newTestDB(t)
	_, err := db.Exec("INSERT INTO admins (username, password) VALUES (?, ?)", "legacy", "oldpw")
	require.NoError(t, err)

	require.NoError(t, db.VerifyAdmin("legacy", "oldpw"))

	var stored string
	require.NoError(t, db.QueryRow("SELECT password FROM admins WHERE username = ?", "legacy").Scan(&stored))
	assert.True(t, strings.Contains(stored, "$"), "legacy password should be rehashed after verify")
	assert.NoError(t, db.VerifyAdmin("legacy", "oldpw"))
}

func TestVerifyAdminErrors(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.SeedDefaultAdmin("admin", "pw"))

	assert.ErrorIs(t, db.VerifyAdmin("ghost", "pw"), ntrip.ErrNoUser)
	assert.ErrorIs(t, db.VerifyAdmin("admin", "nope"), ntrip.ErrBadPassword)
}

func TestUserCRUD(t *testing.T) {
	db := newTestDB(t)

	u, err := db.CreateUser("alice", "pw1")
	require.NoError(t, err)
	assert.NotZero(t, u.ID)

	// Duplicate usernames are rejected by the unique constraint.
	_, err = db.CreateUser("alice", "pw2")
	assert.Error(t, err)

	id, stored, err := db.GetUser("alice")
	require.NoError(t, err)
	assert.Equal(t, u.ID, id)
	assert.True(t, VerifyPassword(stored, "pw1"))

	require.NoError(t, db.UpdateUserPassword("alice", "pw2"))
	_, stored, err = db.GetUser("alice")
	require.NoError(t, err)
	assert.True(t, VerifyPassword(stored, "pw2"))

	users, err := db.ListUsers()
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Empty(t, users[0].Password)

	require.NoError(t, db.DeleteUser("alice"))
	assert.ErrorIs(t, db.DeleteUser("alice"), ntrip.ErrNoUser)
	_, _, err = db.GetUser("alice")
	assert.ErrorIs(t, err, ntrip.ErrNoUser)
}

func TestMountCRUD(t *testing.T) {
	db := newTestDB(t)
	u, err := db.CreateUser("alice", "pw")
	require.NoError(t, err)

	_, err = db.CreateMount("MT01", "secret", &u.ID)
	require.NoError(t, err)

	pw, err := db.GetMount("MT01")
	require.NoError(t, err)
	assert.Equal(t, "secret", pw)

	_, err = db.GetMount("NOPE")
	assert.ErrorIs(t, err, ntrip.ErrNoMount)

	newPw := "changed"
	require.NoError(t, db.UpdateMount("MT01", &newPw, nil, false))
	pw, err = db.GetMount("MT01")
	require.NoError(t, err)
	assert.Equal(t, "changed", pw)

	mounts, err := db.ListMounts()
	require.NoError(t, err)
	require.Len(t, mounts, 1)
	require.NotNil(t, mounts[0].OwnerID)
	assert.Equal(t, u.ID, *mounts[0].OwnerID)

	require.NoError(t, db.DeleteMount("MT01"))
	assert.ErrorIs(t, db.DeleteMount("MT01"), ntrip.ErrNoMount)
}

func TestDeleteUserReleasesMounts(t *testing.T) {
	db := newTestDB(t)
	u, err := db.CreateUser("alice", "pw")
	require.NoError(t, err)
	_, err = db.CreateMount("MT01", "secret", &u.ID)
	require.NoError(t, err)

	require.NoError(t, db.DeleteUser("alice"))

	// The mount survives, ownerless.
	mounts, err := db.ListMounts()
	require.NoError(t, err)
	require.Len(t, mounts, 1)
	assert.Nil(t, mounts[0].OwnerID)
}

func TestVerifyDownloadV2Matrix(t *testing.T) {
	db := newTestDB(t)
	owner, err := db.CreateUser("alice", "alicepw")
	require.NoError(t, err)
	_, err = db.CreateUser("bob", "bobpw")
	require.NoError(t, err)
	_, err = db.CreateMount("OWNED", "mtpw", &owner.ID)
	require.NoError(t, err)
	_, err = db.CreateMount("OPEN", "mtpw", nil)
	require.NoError(t, err)

	assert.ErrorIs(t, db.VerifyDownload("NOPE", "alice", "alicepw", "", true), ntrip.ErrNoMount)
	assert.ErrorIs(t, db.VerifyDownload("OWNED", "ghost", "pw", "", true), ntrip.ErrNoUser)
	assert.ErrorIs(t, db.VerifyDownload("OWNED", "alice", "wrong", "", true), ntrip.ErrBadPassword)
	assert.ErrorIs(t, db.VerifyDownload("OWNED", "bob", "bobpw", "", true), ntrip.ErrForbidden)
	assert.NoError(t, db.VerifyDownload("OWNED", "alice", "alicepw", "", true))

	// Unowned mounts admit any authenticated user.
	assert.NoError(t, db.VerifyDownload("OPEN", "bob", "bobpw", "", true))

	// Missing credentials are a user failure, not a mount one.
	assert.ErrorIs(t, db.VerifyDownload("OPEN", "", "", "", true), ntrip.ErrNoUser)
}

func TestVerifyDownloadV1Matrix(t *testing.T) {
	db := newTestDB(t)
	_, err := db.CreateMount("MT01", "mtpw", nil)
	require.NoError(t, err)

	assert.ErrorIs(t, db.VerifyDownload("NOPE", "", "", "mtpw", false), ntrip.ErrNoMount)
	assert.ErrorIs(t, db.VerifyDownload("MT01", "", "", "wrong", false), ntrip.ErrBadPassword)
	assert.NoError(t, db.VerifyDownload("MT01", "", "", "mtpw", false))
	// Legacy clients that sent no password at all are admitted.
	assert.NoError(t, db.VerifyDownload("MT01", "", "", "", false))
}

func TestVerifyDownloadUpgradesLegacyUserRow(t *testing.T) {
	db := newTestDB(t)
	_, err := db.Exec("INSERT INTO users (username, password) VALUES (?, ?)", "legacy", "oldpw")
	require.NoError(t, err)
	_, err = db.CreateMount("MT01", "mtpw", nil)
	require.NoError(t, err)

	require.NoError(t, db.VerifyDownload("MT01", "legacy", "oldpw", "", true))

	_, stored, err := db.GetUser("legacy")
	require.NoError(t, err)
	assert.False(t, NeedsUpgrade(stored))
	require.NoError(t, db.VerifyDownload("MT01", "legacy", "oldpw", "", true))
}
