package catalog

import (
	"database/sql"
	"fmt"

	ntrip "github.com/go-gnss/ntripcaster"
)

// VerifyAdmin authenticates an operator against the admins table.
// Legacy plaintext rows are upgraded in place on a successful match.
func (db *DB) VerifyAdmin(username, password string) error {
	var stored string
	err := db.QueryRow("SELECT password FROM admins WHERE username = ?", username).Scan(&stored)
	if err != nil {
		if err == sql.ErrNoRows {
			return ntrip.ErrNoUser
		}
		return fmt.Errorf("failed to query admin: %w", err)
	}

	if !VerifyPassword(stored, password) {
		return ntrip.ErrBadPassword
	}

	if NeedsUpgrade(stored) {
		if err := db.UpdateAdminPassword(username, password); err != nil {
			db.logger.WithError(err).WithField("username", username).Warn("failed to upgrade admin password hash")
		}
	}
	return nil
}

// UpdateAdminPassword rehashes and stores a new admin password.
func (db *DB) UpdateAdminPassword(username, newPassword string) error {
	res, err := db.Exec(
		"UPDATE admins SET password = ? WHERE username = ?",
		HashPassword(newPassword), username,
	)
	if err != nil {
		return fmt.Errorf("failed to update admin password: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check admin update: %w", err)
	}
	if n == 0 {
		return ntrip.ErrNoUser
	}
	return nil
}
