package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nidhogg/hearsay/internal/memory"
)

// SaveMemories replaces an owner's persisted records.
func (s *Store) SaveMemories(ctx context.Context, owner string, records []memory.Snapshot, lastDecay time.Time) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("save memories %s: %w", owner, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM memory_records WHERE owner_id = $1`, owner); err != nil {
		return fmt.Errorf("clear memories %s: %w", owner, err)
	}

	batch := &pgx.Batch{}
	for i, rec := range records {
		participants, err := encodeList(rec.Participants)
		if err != nil {
			return err
		}
		tags, err := encodeList(rec.Tags)
		if err != nil {
			return err
		}
		batch.Queue(`
			INSERT INTO memory_records (owner_id, id, seq, description, x, y, participants, tags, strength, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			owner, rec.ID, i, rec.Description, rec.Location.X, rec.Location.Y,
			participants, tags, rec.Strength, rec.CreatedAt,
		)
	}
	batch.Queue(`
		INSERT INTO memory_stores (owner_id, last_decay)
		VALUES ($1, $2)
		ON CONFLICT (owner_id) DO UPDATE SET last_decay = EXCLUDED.last_decay`,
		owner, lastDecay,
	)
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert memories %s: %w", owner, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit memories %s: %w", owner, err)
	}
	return nil
}

// LoadMemories returns an owner's records in their stored order.
func (s *Store) LoadMemories(ctx context.Context, owner string) ([]memory.Snapshot, time.Time, error) {
	var lastDecay time.Time
	err := s.db.QueryRow(ctx,
		`SELECT last_decay FROM memory_stores WHERE owner_id = $1`, owner,
	).Scan(&lastDecay)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, time.Time{}, fmt.Errorf("load memory store %s: %w", owner, err)
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, description, x, y, participants, tags, strength, created_at
		FROM memory_records
		WHERE owner_id = $1
		ORDER BY seq`, owner)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("load memories %s: %w", owner, err)
	}
	defer rows.Close()

	var out []memory.Snapshot
	for rows.Next() {
		var rec memory.Snapshot
		var participants, tags []byte
		if err := rows.Scan(
			&rec.ID, &rec.Description, &rec.Location.X, &rec.Location.Y,
			&participants, &tags, &rec.Strength, &rec.CreatedAt,
		); err != nil {
			return nil, time.Time{}, fmt.Errorf("scan memory: %w", err)
		}
		if rec.Participants, err = decodeList(participants); err != nil {
			return nil, time.Time{}, err
		}
		if rec.Tags, err = decodeList(tags); err != nil {
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
func (s *Store) Owners(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT owner_id FROM memory_stores ORDER BY owner_id`)
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

// DeleteMemories drops an owner's store and records.
func (s *Store) DeleteMemories(ctx context.Context, owner string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("delete memories %s: %w", owner, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM memory_records WHERE owner_id = $1`, owner); err != nil {
		return fmt.Errorf("delete memories %s: %w", owner, err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM memory_stores WHERE owner_id = $1`, owner); err != nil {
		return fmt.Errorf("delete memory store %s: %w", owner, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit delete %s: %w", owner, err)
	}
	return nil
}
