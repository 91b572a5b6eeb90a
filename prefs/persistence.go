package prefs

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// ErrStorageUnavailable wraps persistence failures (storage disabled, quota,
// I/O). It is logged by the Store, never propagated to callers.
var ErrStorageUnavailable = errors.New("preference storage unavailable")

// Persister is the durability side-effect dependency of the Store.
type Persister interface {
	// Load returns the saved state and true, or false when nothing was saved yet.
	Load() (State, bool, error)
	// Save writes the state, replacing any previous record.
	Save(State) error
}

// NopPersister keeps preferences in memory only.
type NopPersister struct{}

func (NopPersister) Load() (State, bool, error) { return State{}, false, nil }
func (NopPersister) Save(State) error           { return nil }

// SQLitePersister stores the preference record as a single versioned JSON
// blob in a local SQLite database.
type SQLitePersister struct {
	db *sql.DB
}

// NewSQLitePersister opens (creating if needed) the database at path and
// ensures the schema. Use ":memory:" for an ephemeral store.
func NewSQLitePersister(path string) (*SQLitePersister, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrStorageUnavailable, path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping: %v", ErrStorageUnavailable, err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS preferences (
	id      INTEGER PRIMARY KEY CHECK (id = 1),
	version INTEGER NOT NULL,
	payload TEXT    NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrate: %v", ErrStorageUnavailable, err)
	}
	return &SQLitePersister{db: db}, nil
}

// Load implements Persister. A record with an unknown schema version is
// treated as absent; losing saved preferences beats misreading them.
func (p *SQLitePersister) Load() (State, bool, error) {
	var (
		version int
		payload string
	)
	err := p.db.QueryRow(`SELECT version, payload FROM preferences WHERE id = 1`).Scan(&version, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, fmt.Errorf("%w: load: %v", ErrStorageUnavailable, err)
	}
	if version != SchemaVersion {
		return State{}, false, nil
	}

	var st State
	if err := json.Unmarshal([]byte(payload), &st); err != nil {
		return State{}, false, fmt.Errorf("%w: decode saved preferences: %v", ErrStorageUnavailable, err)
	}
	return st, true, nil
}

// Save implements Persister.
func (p *SQLitePersister) Save(st State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("%w: encode preferences: %v", ErrStorageUnavailable, err)
	}
	_, err = p.db.Exec(`
INSERT INTO preferences (id, version, payload) VALUES (1, ?, ?)
ON CONFLICT(id) DO UPDATE SET version = excluded.version, payload = excluded.payload`,
		SchemaVersion, string(raw))
	if err != nil {
		return fmt.Errorf("%w: save: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// Close closes the underlying database. Call during shutdown.
func (p *SQLitePersister) Close() error {
	return p.db.Close()
}
