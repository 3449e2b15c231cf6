// Package statecache persists serialized transactions in SQLite so an
// in-flight MFA session can survive a process restart. Callers save the
// record under a key of their choosing (typically the token's
// transaction id), restart, load it back and hand it to mfa.Restore.
package statecache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/aussiebroadwan/sentinel/pkg/mfa"
)

// ErrNotFound is returned when no record exists under the given key.
var ErrNotFound = errors.New("statecache: transaction not found")

type Store struct {
	db *sql.DB
}

// New opens (or creates) the cache database at dsn.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open state cache: %w", err)
	}
	if _, err := db.ExecContext(context.Background(), `PRAGMA journal_mode = WAL;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to configure state cache: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Save upserts the serialized transaction under key.
func (s *Store) Save(ctx context.Context, key string, state mfa.State) error {
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode transaction state: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO transactions (id, state, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE SET
			state = excluded.state,
			updated_at = excluded.updated_at;
	`, key, string(blob))
	if err != nil {
		return fmt.Errorf("failed to save transaction state: %w", err)
	}
	return nil
}

// Load reads the serialized transaction stored under key.
func (s *Store) Load(ctx context.Context, key string) (mfa.State, error) {
	var blob string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM transactions WHERE id = ?;`, key,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return mfa.State{}, ErrNotFound
	}
	if err != nil {
		return mfa.State{}, fmt.Errorf("failed to load transaction state: %w", err)
	}

	var state mfa.State
	if err := json.Unmarshal([]byte(blob), &state); err != nil {
		return mfa.State{}, fmt.Errorf("failed to decode transaction state: %w", err)
	}
	return state, nil
}

// Delete removes the record under key. Deleting a missing key is a
// no-op.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?;`, key); err != nil {
		return fmt.Errorf("failed to delete transaction state: %w", err)
	}
	return nil
}

// Prune removes records not touched within maxAge and reports how many
// were dropped. Serialized transactions go stale as their tokens
// expire, so callers should prune with roughly the token lifetime.
func (s *Store) Prune(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).UTC()
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM transactions WHERE updated_at < datetime(?, 'unixepoch');`, cutoff.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune transaction state: %w", err)
	}
	return res.RowsAffected()
}
