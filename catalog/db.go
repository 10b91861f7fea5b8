// Package catalog is the caster's persistent store: admins, rover
// users, and mount definitions in a single sqlite file. It implements
// the ntrip.Catalog interface the protocol front-end authenticates
// against.
package catalog

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// DB wraps the sqlite connection.
type DB struct {
	*sql.DB
	logger logrus.FieldLogger
}

// NewDB opens (creating if needed) the catalog database.
func NewDB(dbPath string, logger logrus.FieldLogger) (*DB, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000&_foreign_keys=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	database := &DB{
		DB:     db,
		logger: logger,
	}

	if err := database.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return database, nil
}

// initSchema creates the tables if they don't exist.
func (db *DB) initSchema() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS admins (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			password TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create admins table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			password TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}

	// Deleting a user releases their mounts instead of cascading.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS mounts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			mount TEXT UNIQUE NOT NULL,
			password TEXT NOT NULL,
			user_id INTEGER,
			FOREIGN KEY (user_id) REFERENCES users(id)
				ON DELETE SET NULL
				ON UPDATE CASCADE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create mounts table: %w", err)
	}

	return nil
}

// SeedDefaultAdmin inserts the configured bootstrap admin when the
// admins table is empty. Idempotent across restarts.
func (db *DB) SeedDefaultAdmin(username, password string) error {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM admins").Scan(&count); err != nil {
		return fmt.Errorf("failed to count admins: %w", err)
	}
	if count > 0 {
		return nil
	}

	_, err := db.Exec(
		"INSERT INTO admins (username, password) VALUES (?, ?)",
		username, HashPassword(password),
	)
	if err != nil {
		return fmt.Errorf("failed to seed default admin: %w", err)
	}
	db.logger.WithField("username", username).Warn("created default admin account, change its password")
	return nil
}
