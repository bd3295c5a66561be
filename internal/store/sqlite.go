package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/soloport/devicegate/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS blocks (
	fingerprint   TEXT PRIMARY KEY,
	reason        TEXT NOT NULL,
	first_seen_at TEXT NOT NULL,
	last_seen_at  TEXT NOT NULL,
	attempt_count INTEGER NOT NULL,
	sources       TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS owner (
	slot          INTEGER PRIMARY KEY CHECK (slot = 1),
	fingerprint   TEXT NOT NULL,
	registered_at TEXT NOT NULL
);
`

// SQLiteBackend persists records in a local SQLite database via the
// pure-Go modernc driver. No cgo, single file, good enough for a
// single-owner gate.
type SQLiteBackend struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database file and applies the schema.
func OpenSQLite(path string) (*SQLiteBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single writer goroutine owns all mutations; one connection
	// avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteBackend{db: db}, nil
}

// SaveBlock upserts a block record.
func (s *SQLiteBackend) SaveBlock(ctx context.Context, rec model.BlockRecord) error {
	sources, err := json.Marshal(rec.SourceAddresses)
	if err != nil {
		return fmt.Errorf("marshal sources: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO blocks (fingerprint, reason, first_seen_at, last_seen_at, attempt_count, sources)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET
			last_seen_at  = excluded.last_seen_at,
			attempt_count = excluded.attempt_count,
			sources       = excluded.sources`,
		string(rec.Fingerprint), rec.Reason,
		rec.FirstSeenAt.UTC().Format(time.RFC3339Nano),
		rec.LastSeenAt.UTC().Format(time.RFC3339Nano),
		rec.AttemptCount, string(sources))
	if err != nil {
		return fmt.Errorf("upsert block: %w", err)
	}
	return nil
}

// DeleteBlock removes a block record. Privileged path only.
func (s *SQLiteBackend) DeleteBlock(ctx context.Context, fp model.Fingerprint) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM blocks WHERE fingerprint = ?`, string(fp)); err != nil {
		return fmt.Errorf("delete block: %w", err)
	}
	return nil
}

// LoadBlocks returns every persisted block record.
func (s *SQLiteBackend) LoadBlocks(ctx context.Context) ([]model.BlockRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fingerprint, reason, first_seen_at, last_seen_at, attempt_count, sources
		FROM blocks`)
	if err != nil {
		return nil, fmt.Errorf("query blocks: %w", err)
	}
	defer rows.Close()

	var out []model.BlockRecord
	for rows.Next() {
		var (
			fp, reason, first, last, sources string
			attempts                         int64
		)
		if err := rows.Scan(&fp, &reason, &first, &last, &attempts, &sources); err != nil {
			return nil, fmt.Errorf("scan block: %w", err)
		}

		rec := model.BlockRecord{
			Fingerprint:  model.Fingerprint(fp),
			Reason:       reason,
			AttemptCount: attempts,
		}
		if rec.FirstSeenAt, err = time.Parse(time.RFC3339Nano, first); err != nil {
			return nil, fmt.Errorf("parse first_seen_at: %w", err)
		}
		if rec.LastSeenAt, err = time.Parse(time.RFC3339Nano, last); err != nil {
			return nil, fmt.Errorf("parse last_seen_at: %w", err)
		}
		if err := json.Unmarshal([]byte(sources), &rec.SourceAddresses); err != nil {
			return nil, fmt.Errorf("parse sources: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SaveOwner writes the single owner record.
func (s *SQLiteBackend) SaveOwner(ctx context.Context, rec model.OwnerRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO owner (slot, fingerprint, registered_at) VALUES (1, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			fingerprint   = excluded.fingerprint,
			registered_at = excluded.registered_at`,
		string(rec.Fingerprint), rec.RegisteredAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert owner: %w", err)
	}
	return nil
}

// DeleteOwner clears the owner slot. Privileged path only.
func (s *SQLiteBackend) DeleteOwner(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM owner WHERE slot = 1`); err != nil {
		return fmt.Errorf("delete owner: %w", err)
	}
	return nil
}

// LoadOwner returns the persisted owner record, if any.
func (s *SQLiteBackend) LoadOwner(ctx context.Context) (model.OwnerRecord, bool, error) {
	var fp, registered string
	err := s.db.QueryRowContext(ctx,
		`SELECT fingerprint, registered_at FROM owner WHERE slot = 1`).Scan(&fp, &registered)
	if errors.Is(err, sql.ErrNoRows) {
		return model.OwnerRecord{}, false, nil
	}
	if err != nil {
		return model.OwnerRecord{}, false, fmt.Errorf("query owner: %w", err)
	}

	rec := model.OwnerRecord{Fingerprint: model.Fingerprint(fp)}
	if rec.RegisteredAt, err = time.Parse(time.RFC3339Nano, registered); err != nil {
		return model.OwnerRecord{}, false, fmt.Errorf("parse registered_at: %w", err)
	}
	return rec, true, nil
}

// Close closes the database.
func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}
