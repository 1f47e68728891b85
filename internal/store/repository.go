package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nidhogg/hearsay/internal/memory"
	"github.com/nidhogg/hearsay/internal/rumor"
)

// Repository persists memory stores and the rumor network as flat records.
// Saves replace whatever was stored before for the same scope.
type Repository interface {
	SaveMemories(ctx context.Context, owner string, records []memory.Snapshot, lastDecay time.Time) error
	LoadMemories(ctx context.Context, owner string) ([]memory.Snapshot, time.Time, error)
	DeleteMemories(ctx context.Context, owner string) error
	Owners(ctx context.Context) ([]string, error)
	SaveRumors(ctx context.Context, rumors []rumor.Rumor, lastTick time.Time) error
	LoadRumors(ctx context.Context) ([]rumor.Rumor, time.Time, error)
	// SaveWorldTime records the simulated time of the snapshot.
	// LoadWorldTime returns the zero time when none was saved.
	SaveWorldTime(ctx context.Context, at time.Time) error
	LoadWorldTime(ctx context.Context) (time.Time, error)
	Close() error
}

var (
	_ Repository = (*Store)(nil)
	_ Repository = (*SQLite)(nil)
)

func encodeList(items []string) ([]byte, error) {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encode list: %w", err)
	}
	return b, nil
}

func decodeList(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var items []string
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}
	return items, nil
}

// rumorRow is the flat column layout shared by both backends.
type rumorRow struct {
	participants []byte
	tags         []byte
	heardBy      []byte
}

func encodeRumor(r rumor.Rumor) (rumorRow, error) {
	var row rumorRow
	var err error
	if row.participants, err = encodeList(r.Lineage.Participants); err != nil {
		return row, err
	}
	if row.tags, err = encodeList(r.Lineage.Tags); err != nil {
		return row, err
	}
	if row.heardBy, err = encodeList(r.HeardBy.Sorted()); err != nil {
		return row, err
	}
	return row, nil
}

func decodeRumor(r *rumor.Rumor, row rumorRow) error {
	participants, err := decodeList(row.participants)
	if err != nil {
		return err
	}
	tags, err := decodeList(row.tags)
	if err != nil {
		return err
	}
	heard, err := decodeList(row.heardBy)
	if err != nil {
		return err
	}
	r.Lineage.Participants = participants
	r.Lineage.Tags = tags
	r.HeardBy = memory.NewSet(heard...)
	return nil
}
