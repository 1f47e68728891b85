package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nidhogg/hearsay/internal/memory"
	"github.com/nidhogg/hearsay/internal/rumor"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const sqliteTime = time.RFC3339Nano

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS memory_stores (
		owner_id   TEXT PRIMARY KEY,
		last_decay TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS memory_records (
		owner_id     TEXT NOT NULL,
		id           TEXT NOT NULL,
		seq          INTEGER NOT NULL,
		description  TEXT NOT NULL,
		x            REAL NOT NULL,
		y            REAL NOT NULL,
		participants TEXT NOT NULL DEFAULT '[]',
		tags         TEXT NOT NULL DEFAULT '[]',
		strength     REAL NOT NULL,
		created_at   TEXT NOT NULL,
		PRIMARY KEY (owner_id, id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_memory_records_owner_seq ON memory_records(owner_id, seq)`,
	`CREATE TABLE IF NOT EXISTS rumors (
		id                   TEXT PRIMARY KEY,
		seq                  INTEGER NOT NULL,
		content              TEXT NOT NULL,
		original_content     TEXT NOT NULL,
		originator_id        TEXT NOT NULL,
		x                    REAL NOT NULL,
		y                    REAL NOT NULL,
		confidence           REAL NOT NULL,
		decay_rate           REAL NOT NULL,
		created_at           TEXT NOT NULL,
		generation           INTEGER NOT NULL DEFAULT 0,
		heard_by             TEXT NOT NULL DEFAULT '[]',
		lineage_memory_id    TEXT NOT NULL DEFAULT '',
		lineage_participants TEXT NOT NULL DEFAULT '[]',
		lineage_tags         TEXT NOT NULL DEFAULT '[]'
	)`,
	`CREATE TABLE IF NOT EXISTS network_state (
		id        INTEGER PRIMARY KEY CHECK (id = 1),
		last_tick TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS world_state (
		id         INTEGER PRIMARY KEY CHECK (id = 1),
		world_time TEXT NOT NULL
	)`,
}

// SQLite is the embedded Repository, for single-node runs and tests.
type SQLite struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
func OpenSQLite(path string, logger *zap.Logger) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return initSQLite(db, path, []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}, logger)
}

// OpenSQLiteMemory opens a private in-memory database.
func OpenSQLiteMemory(logger *zap.Logger) (*SQLite, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	// every pooled connection would otherwise get its own empty database
	db.SetMaxOpenConns(1)
	return initSQLite(db, ":memory:", nil, logger)
}

func initSQLite(db *sql.DB, path string, pragmas []string, logger *zap.Logger) (*SQLite, error) {
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	for _, stmt := range sqliteSchema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	logger.Info("SQLite opened", zap.String("path", path))
	return &SQLite{db: db, path: path, logger: logger}, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// SaveMemories replaces an owner's persisted records.
func (s *SQLite) SaveMemories(ctx context.Context, owner string, records []memory.Snapshot, lastDecay time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save memories %s: %w", owner, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM memory_records WHERE owner_id = ?`, owner); err != nil {
		return fmt.Errorf("clear memories %s: %w", owner, err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO memory_records (owner_id, id, seq, description, x, y, participants, tags, strength, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare memory insert: %w", err)
	}
	defer stmt.Close()

	for i, rec := range records {
		participants, err := encodeList(rec.Participants)
		if err != nil {
			return err
		}
		tags, err := encodeList(rec.Tags)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			owner, rec.ID, i, rec.Description, rec.Location.X, rec.Location.Y,
			string(participants), string(tags), rec.Strength, rec.CreatedAt.UTC().Format(sqliteTime),
		); err != nil {
			return fmt.Errorf("insert memory %s: %w", rec.ID, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO memory_stores (owner_id, last_decay) VALUES (?, ?)
		ON CONFLICT (owner_id) DO UPDATE SET last_decay = excluded.last_decay`,
		owner, lastDecay.UTC().Format(sqliteTime),
	); err != nil {
		return fmt.Errorf("save memory store %s: %w", owner, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit memories %s: %w", owner, err)
	}
	return nil
}

// LoadMemories returns an owner's records in their stored order.
func (s *SQLite) LoadMemories(ctx context.Context, owner string) ([]memory.Snapshot, time.Time, error) {
	var rawDecay string
	var lastDecay time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT last_decay FROM memory_stores WHERE owner_id = ?`, owner,
	).Scan(&rawDecay)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, time.Time{}, fmt.Errorf("load memory store %s: %w", owner, err)
	default:
		if lastDecay, err = time.Parse(sqliteTime, rawDecay); err != nil {
			return nil, time.Time{}, fmt.Errorf("parse last decay: %w", err)
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, description, x, y, participants, tags, strength, created_at
		FROM memory_records
		WHERE owner_id = ?
		ORDER BY seq`, owner)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("load memories %s: %w", owner, err)
	}
	defer rows.Close()

	var out []memory.Snapshot
	for rows.Next() {
		var rec memory.Snapshot
		var participants, tags, created string
		if err := rows.Scan(
			&rec.ID, &rec.Description, &rec.Location.X, &rec.Location.Y,
			&participants, &tags, &rec.Strength, &created,
		); err != nil {
			return nil, time.Time{}, fmt.Errorf("scan memory: %w", err)
		}
		if rec.CreatedAt, err = time.Parse(sqliteTime, created); err != nil {
			return nil, time.Time{}, fmt.Errorf("parse memory time: %w", err)
		}
		if rec.Participants, err = decodeList([]byte(participants)); err != nil {
			return nil, time.Time{}, err
		}
		if rec.Tags, err = decodeList([]byte(tags)); err != nil {
			return nil, time.Time{}, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, time.Time{}, fmt.Errorf("load memories %s: %w", owner, err)
	}
	return out, lastDecay, nil
}

// Owners lists every owner with a persisted store.
func (s *SQLite) Owners(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT owner_id FROM memory_stores ORDER BY owner_id`)
	if err != nil {
		return nil, fmt.Errorf("list owners: %w", err)
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan owner: %w", err)
		}
		owners = append(owners, id)
	}
	return owners, rows.Err()
}

// SaveRumors replaces the persisted active set and last-tick timestamp.
func (s *SQLite) SaveRumors(ctx context.Context, rumors []rumor.Rumor, lastTick time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save rumors: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM rumors`); err != nil {
		return fmt.Errorf("clear rumors: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO rumors (id, seq, content, original_content, originator_id, x, y,
			confidence, decay_rate, created_at, generation, heard_by,
			lineage_memory_id, lineage_participants, lineage_tags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare rumor insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range rumors {
		row, err := encodeRumor(r)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			r.ID, i, r.Content, r.OriginalContent, r.OriginatorID, r.Origin.X, r.Origin.Y,
			r.Confidence, r.DecayRate, r.CreatedAt.UTC().Format(sqliteTime), r.Generation,
			string(row.heardBy), r.Lineage.MemoryID, string(row.participants), string(row.tags),
		); err != nil {
			return fmt.Errorf("insert rumor %s: %w", r.ID, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO network_state (id, last_tick) VALUES (1, ?)
		ON CONFLICT (id) DO UPDATE SET last_tick = excluded.last_tick`,
		lastTick.UTC().Format(sqliteTime),
	); err != nil {
		return fmt.Errorf("save network state: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rumors: %w", err)
	}
	return nil
}

// LoadRumors returns the persisted active set in its stored order.
func (s *SQLite) LoadRumors(ctx context.Context) ([]rumor.Rumor, time.Time, error) {
	var rawTick string
	var lastTick time.Time
	err := s.db.QueryRowContext(ctx, `SELECT last_tick FROM network_state WHERE id = 1`).Scan(&rawTick)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, time.Time{}, fmt.Errorf("load network state: %w", err)
	default:
		if lastTick, err = time.Parse(sqliteTime, rawTick); err != nil {
			return nil, time.Time{}, fmt.Errorf("parse last tick: %w", err)
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, original_content, originator_id, x, y, confidence, decay_rate,
		       created_at, generation, heard_by, lineage_memory_id, lineage_participants, lineage_tags
		FROM rumors
		ORDER BY seq`)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("load rumors: %w", err)
	}
	defer rows.Close()

	var out []rumor.Rumor
	for rows.Next() {
		var r rumor.Rumor
		var created, heard, participants, tags string
		if err := rows.Scan(
			&r.ID, &r.Content, &r.OriginalContent, &r.OriginatorID, &r.Origin.X, &r.Origin.Y,
			&r.Confidence, &r.DecayRate, &created, &r.Generation, &heard,
			&r.Lineage.MemoryID, &participants, &tags,
		); err != nil {
			return nil, time.Time{}, fmt.Errorf("scan rumor: %w", err)
		}
		if r.CreatedAt, err = time.Parse(sqliteTime, created); err != nil {
			return nil, time.Time{}, fmt.Errorf("parse rumor time: %w", err)
		}
		if err := decodeRumor(&r, rumorRow{
			participants: []byte(participants),
			tags:         []byte(tags),
			heardBy:      []byte(heard),
		}); err != nil {
			return nil, time.Time{}, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, time.Time{}, fmt.Errorf("load rumors: %w", err)
	}
	return out, lastTick, nil
}

// DeleteMemories drops an owner's store and records.
func (s *SQLite) DeleteMemories(ctx context.Context, owner string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete memories %s: %w", owner, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM memory_records WHERE owner_id = ?`, owner); err != nil {
		return fmt.Errorf("delete memories %s: %w", owner, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM memory_stores WHERE owner_id = ?`, owner); err != nil {
		return fmt.Errorf("delete memory store %s: %w", owner, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete %s: %w", owner, err)
	}
	return nil
}

// SaveWorldTime records the simulated time of the snapshot.
func (s *SQLite) SaveWorldTime(ctx context.Context, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO world_state (id, world_time) VALUES (1, ?)
		ON CONFLICT (id) DO UPDATE SET world_time = excluded.world_time`,
		at.UTC().Format(sqliteTime))
	if err != nil {
		return fmt.Errorf("save world time: %w", err)
	}
	return nil
}

// LoadWorldTime returns the saved simulated time, or the zero time.
func (s *SQLite) LoadWorldTime(ctx context.Context) (time.Time, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT world_time FROM world_state WHERE id = 1`).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return time.Time{}, nil
	case err != nil:
		return time.Time{}, fmt.Errorf("load world time: %w", err)
	}
	at, err := time.Parse(sqliteTime, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse world time: %w", err)
	}
	return at, nil
}
