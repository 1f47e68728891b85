package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nidhogg/hearsay/internal/rumor"
)

// SaveRumors replaces the persisted active set and last-tick timestamp.
func (s *Store) SaveRumors(ctx context.Context, rumors []rumor.Rumor, lastTick time.Time) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("save rumors: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM rumors`); err != nil {
		return fmt.Errorf("clear rumors: %w", err)
	}

	batch := &pgx.Batch{}
	for i, r := range rumors {
		row, err := encodeRumor(r)
		if err != nil {
			return err
		}
		batch.Queue(`
			INSERT INTO rumors (id, seq, content, original_content, originator_id, x, y,
				confidence, decay_rate, created_at, generation, heard_by,
				lineage_memory_id, lineage_participants, lineage_tags)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			r.ID, i, r.Content, r.OriginalContent, r.OriginatorID, r.Origin.X, r.Origin.Y,
			r.Confidence, r.DecayRate, r.CreatedAt, r.Generation, row.heardBy,
			r.Lineage.MemoryID, row.participants, row.tags,
		)
	}
	batch.Queue(`
		INSERT INTO network_state (id, last_tick) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET last_tick = EXCLUDED.last_tick`,
		lastTick,
	)
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert rumors: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit rumors: %w", err)
	}
	return nil
}

// LoadRumors returns the persisted active set in its stored order.
func (s *Store) LoadRumors(ctx context.Context) ([]rumor.Rumor, time.Time, error) {
	var lastTick time.Time
	err := s.db.QueryRow(ctx, `SELECT last_tick FROM network_state WHERE id = 1`).Scan(&lastTick)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, time.Time{}, fmt.Errorf("load network state: %w", err)
	}

	rows, err := s.db.Query(ctx, `
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
		var row rumorRow
		if err := rows.Scan(
			&r.ID, &r.Content, &r.OriginalContent, &r.OriginatorID, &r.Origin.X, &r.Origin.Y,
			&r.Confidence, &r.DecayRate, &r.CreatedAt, &r.Generation, &row.heardBy,
			&r.Lineage.MemoryID, &row.participants, &row.tags,
		); err != nil {
			return nil, time.Time{}, fmt.Errorf("scan rumor: %w", err)
		}
		if err := decodeRumor(&r, row); err != nil {
			return nil, time.Time{}, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, time.Time{}, fmt.Errorf("load rumors: %w", err)
	}
	return out, lastTick, nil
}

// SaveWorldTime records the simulated time of the snapshot.
func (s *Store) SaveWorldTime(ctx context.Context, at time.Time) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO world_state (id, world_time) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET world_time = EXCLUDED.world_time`, at)
	if err != nil {
		return fmt.Errorf("save world time: %w", err)
	}
	return nil
}

// LoadWorldTime returns the saved simulated time, or the zero time.
func (s *Store) LoadWorldTime(ctx context.Context) (time.Time, error) {
	var at time.Time
	err := s.db.QueryRow(ctx, `SELECT world_time FROM world_state WHERE id = 1`).Scan(&at)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, fmt.Errorf("load world time: %w", err)
	}
	return at, nil
}
