package client

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "github.com/mattn/go-sqlite3"
)

// Preference keys
const (
	PrefSoundEnabled = "isSoundEnabled"
	PrefToken        = "token"
)

// PreferenceStore persists small client settings across sessions
type PreferenceStore interface {
	Bool(key string, def bool) (bool, error)
	SetBool(key string, value bool) error
}

// Preferences is a key/value table in a local sqlite file
type Preferences struct {
	db *sql.DB
}

// OpenPreferences opens or creates the preference database at path
func OpenPreferences(path string) (*Preferences, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS preferences (
  key   TEXT PRIMARY KEY,
  value TEXT NOT NULL
)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate preferences: %w", err)
	}
	return &Preferences{db: db}, nil
}

// String returns the stored value of key, or def when unset
func (p *Preferences) String(key, def string) (string, error) {
	var value string
	err := p.db.QueryRow(`SELECT value FROM preferences WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("read preference %s: %w", key, err)
	}
	return value, nil
}

// SetString stores value under key
func (p *Preferences) SetString(key, value string) error {
	_, err := p.db.Exec(`INSERT INTO preferences (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("write preference %s: %w", key, err)
	}
	return nil
}

// Delete removes key
func (p *Preferences) Delete(key string) error {
	if _, err := p.db.Exec(`DELETE FROM preferences WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete preference %s: %w", key, err)
	}
	return nil
}

func (p *Preferences) Bool(key string, def bool) (bool, error) {
	raw, err := p.String(key, strconv.FormatBool(def))
	if err != nil {
		return def, err
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def, nil
	}
	return v, nil
}

func (p *Preferences) SetBool(key string, value bool) error {
	return p.SetString(key, strconv.FormatBool(value))
}

// Close closes the database
func (p *Preferences) Close() error {
	return p.db.Close()
}
