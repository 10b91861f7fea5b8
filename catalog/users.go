package catalog

import (
	"database/sql"
	"fmt"

	ntrip "github.com/go-gnss/ntripcaster"
)

// User is a rover account allowed to subscribe to mounts.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Password string `json:"password,omitempty"` // input only, never stored or returned
}

// CreateUser inserts a rover user with a hashed password.
func (db *DB) CreateUser(username, password string) (*User, error) {
	result, err := db.Exec(
		"INSERT INTO users (username, password) VALUES (?, ?)",
		username, HashPassword(password),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get user ID: %w", err)
	}

	return &User{ID: id, Username: username}, nil
}

// GetUser returns the user's id and stored credential.
func (db *DB) GetUser(username string) (id int64, storedPassword string, err error) {
	err = db.QueryRow(
		"SELECT id, password FROM users WHERE username = ?", username,
	).Scan(&id, &storedPassword)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, "", ntrip.ErrNoUser
		}
		return 0, "", fmt.Errorf("failed to get user: %w", err)
	}
	return id, storedPassword, nil
}

// ListUsers lists all rover users, passwords omitted.
func (db *DB) ListUsers() ([]User, error) {
	rows, err := db.Query("SELECT id, username FROM users ORDER BY username")
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.Username); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// UpdateUserPassword rehashes and stores a new password for the user.
func (db *DB) UpdateUserPassword(username, newPassword string) error {
	res, err := db.Exec(
		"UPDATE users SET password = ? WHERE username = ?",
		HashPassword(newPassword), username,
	)
	if err != nil {
		return fmt.Errorf("failed to update user password: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check user update: %w", err)
	}
	if n == 0 {
		return ntrip.ErrNoUser
	}
	return nil
}

// DeleteUser removes the account. Mounts owned by the user are released
// (user_id set NULL by the schema), never deleted.
func (db *DB) DeleteUser(username string) error {
	res, err := db.Exec("DELETE FROM users WHERE username = ?", username)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check user delete: %w", err)
	}
	if n == 0 {
		return ntrip.ErrNoUser
	}
	return nil
}
