// Package store persists credential entries on the caller side. The
// dispatch engine itself holds no durable state; a UI (or the CLI) saves
// its configured pool here and reloads it on the next session, including
// stable entry IDs and the activity flags the engine reported through
// OnCredentialError.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"nimbus-chat/relay/pkg/credential"
	"nimbus-chat/relay/pkg/providers"
)

// schema holds the credential table. Position keeps the caller's rotation
// order stable across sessions.
const schema = `
CREATE TABLE IF NOT EXISTS credentials (
	id              TEXT PRIMARY KEY,
	position        INTEGER NOT NULL,
	provider        TEXT NOT NULL,
	secret          TEXT NOT NULL,
	endpoint        TEXT NOT NULL DEFAULT '',
	preferred_model TEXT NOT NULL DEFAULT '',
	active          INTEGER NOT NULL DEFAULT 1,
	usage_quota     INTEGER NOT NULL DEFAULT 1,
	rate_limited    INTEGER NOT NULL DEFAULT 0,
	last_used_at    INTEGER NOT NULL DEFAULT 0,
	last_error_code TEXT NOT NULL DEFAULT '',
	group_id        TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_credentials_position ON credentials(position);
`

// Store is a SQLite-backed credential store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates or opens the store at the given path and initializes the
// schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store %q: %w", path, err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger := slog.Default().With("component", "store")
	logger.Debug("credential store opened", "path", path)

	return &Store{db: db, logger: logger}, nil
}

// Save replaces the persisted pool with the given entries, preserving
// order. The swap is transactional so a crash never leaves a partial pool.
func (s *Store) Save(entries []credential.Entry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM credentials"); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO credentials
			(id, position, provider, secret, endpoint, preferred_model,
			 active, usage_quota, rate_limited, last_used_at,
			 last_error_code, group_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range entries {
		var lastUsed int64
		if !e.LastUsedAt.IsZero() {
			lastUsed = e.LastUsedAt.UnixMilli()
		}
		if _, err := stmt.Exec(
			e.ID, i, string(e.Provider), e.Secret, e.Endpoint, e.PreferredModel,
			boolToInt(e.Active), e.UsageQuota, boolToInt(e.RateLimited), lastUsed,
			string(e.LastErrorCode), e.GroupID,
		); err != nil {
			return fmt.Errorf("failed to insert credential %q: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	s.logger.Debug("credential pool saved", "count", len(entries))
	return nil
}

// Load returns the persisted pool in saved order.
func (s *Store) Load() ([]*credential.Entry, error) {
	rows, err := s.db.Query(`
		SELECT id, provider, secret, endpoint, preferred_model,
		       active, usage_quota, rate_limited, last_used_at,
		       last_error_code, group_id
		FROM credentials ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query credentials: %w", err)
	}
	defer rows.Close()

	var entries []*credential.Entry
	for rows.Next() {
		var e credential.Entry
		var provider, errorCode string
		var active, rateLimited int
		var lastUsed int64

		if err := rows.Scan(
			&e.ID, &provider, &e.Secret, &e.Endpoint, &e.PreferredModel,
			&active, &e.UsageQuota, &rateLimited, &lastUsed,
			&errorCode, &e.GroupID,
		); err != nil {
			return nil, fmt.Errorf("failed to scan credential: %w", err)
		}

		e.Provider = providers.Kind(provider)
		e.Active = active != 0
		e.RateLimited = rateLimited != 0
		e.LastErrorCode = providers.Code(errorCode)
		if lastUsed > 0 {
			e.LastUsedAt = time.UnixMilli(lastUsed)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	return entries, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
