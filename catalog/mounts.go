package catalog

import (
	"database/sql"
	"fmt"

	ntrip "github.com/go-gnss/ntripcaster"
)

// Mount is a stream definition: the upload password and an optional
// owning rover user.
type Mount struct {
	ID       int64  `json:"id"`
	Name     string `json:"mount"`
	Password string `json:"password,omitempty"`
	OwnerID  *int64 `json:"user_id,omitempty"`
}

// CreateMount inserts a mount definition. The mount password is stored
// as given; base stations send it verbatim in SOURCE requests.
func (db *DB) CreateMount(name, password string, ownerID *int64) (*Mount, error) {
	result, err := db.Exec(
		"INSERT INTO mounts (mount, password, user_id) VALUES (?, ?, ?)",
		name, password, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert mount: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get mount ID: %w", err)
	}
	return &Mount{ID: id, Name: name, OwnerID: ownerID}, nil
}

// GetMount returns the mount's upload password. Implements
// ntrip.Catalog.
func (db *DB) GetMount(name string) (string, error) {
	password, _, err := db.getMountRow(name)
	return password, err
}

func (db *DB) getMountRow(name string) (password string, ownerID sql.NullInt64, err error) {
	err = db.QueryRow(
		"SELECT password, user_id FROM mounts WHERE mount = ?", name,
	).Scan(&password, &ownerID)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", ownerID, ntrip.ErrNoMount
		}
		return "", ownerID, fmt.Errorf("failed to get mount: %w", err)
	}
	return password, ownerID, nil
}

// ListMounts lists all mount definitions, passwords omitted.
func (db *DB) ListMounts() ([]Mount, error) {
	rows, err := db.Query("SELECT id, mount, user_id FROM mounts ORDER BY mount")
	if err != nil {
		return nil, fmt.Errorf("failed to list mounts: %w", err)
	}
	defer rows.Close()

	var mounts []Mount
	for rows.Next() {
		var m Mount
		var owner sql.NullInt64
		if err := rows.Scan(&m.ID, &m.Name, &owner); err != nil {
			return nil, fmt.Errorf("failed to scan mount: %w", err)
		}
		if owner.Valid {
			m.OwnerID = &owner.Int64
		}
		mounts = append(mounts, m)
	}
	return mounts, rows.Err()
}

// UpdateMount changes a mount's password and/or owner.
func (db *DB) UpdateMount(name string, password *string, ownerID *int64, clearOwner bool) error {
	if password != nil {
		if _, err := db.Exec("UPDATE mounts SET password = ? WHERE mount = ?", *password, name); err != nil {
			return fmt.Errorf("failed to update mount password: %w", err)
		}
	}
	if clearOwner {
		if _, err := db.Exec("UPDATE mounts SET user_id = NULL WHERE mount = ?", name); err != nil {
			return fmt.Errorf("failed to clear mount owner: %w", err)
		}
	} else if ownerID != nil {
		if _, err := db.Exec("UPDATE mounts SET user_id = ? WHERE mount = ?", *ownerID, name); err != nil {
			return fmt.Errorf("failed to update mount owner: %w", err)
		}
	}

	var id int64
	err := db.QueryRow("SELECT id FROM mounts WHERE mount = ?", name).Scan(&id)
	if err == sql.ErrNoRows {
		return ntrip.ErrNoMount
	}
	return err
}

// DeleteMount removes the mount definition.
func (db *DB) DeleteMount(name string) error {
	res, err := db.Exec("DELETE FROM mounts WHERE mount = ?", name)
	if err != nil {
		return fmt.Errorf("failed to delete mount: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check mount delete: %w", err)
	}
	if n == 0 {
		return ntrip.ErrNoMount
	}
	return nil
}

// VerifyDownload authorizes a subscriber per protocol dialect.
// Implements ntrip.Catalog.
//
// NTRIP 2.0 authenticates the rover account: the user must exist, the
// password must match, and a mount bound to an owner admits only that
// owner. NTRIP 1.0 is legacy: the mount must exist and, when the client
// sent a password at all, it must match the mount password.
func (db *DB) VerifyDownload(mount, username, password, mountPassword string, v2 bool) error {
	storedMountPassword, ownerID, err := db.getMountRow(mount)
	if err != nil {
		return err
	}

	if !v2 {
		if mountPassword != "" && mountPassword != storedMountPassword {
			return ntrip.ErrBadPassword
		}
		return nil
	}

	if username == "" || password == "" {
		return ntrip.ErrNoUser
	}

	userID, stored, err := db.GetUser(username)
	if err != nil {
		return err
	}
	if !VerifyPassword(stored, password) {
		return ntrip.ErrBadPassword
	}
	if NeedsUpgrade(stored) {
		if err := db.UpdateUserPassword(username, password); err != nil {
			db.logger.WithError(err).WithField("username", username).Warn("failed to upgrade user password hash")
		}
	}

	if ownerID.Valid && ownerID.Int64 != userID {
		return ntrip.ErrForbidden
	}
	return nil
}
