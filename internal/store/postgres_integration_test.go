//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/nidhogg/hearsay/internal/memory"
	"github.com/nidhogg/hearsay/internal/rumor"
	tcpg "github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"
)

func startPostgres(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	container, err := tcpg.Run(ctx, "postgres:16-alpine",
		tcpg.WithDatabase("hearsay_test"),
		tcpg.WithUsername("test"),
		tcpg.WithPassword("test"),
		tcpg.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("pg connection string: %v", err)
	}
	s, err := New(ctx, dsn, zap.NewNop())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Migrate(ctx, "../../migrations"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestPostgresRoundTrip(t *testing.T) {
	s := startPostgres(t)
	ctx := context.Background()

	records := []memory.Snapshot{
		{ID: "m1", Description: "fight at the tavern", Location: memory.Point{X: 10, Y: 20},
			Participants: []string{"guard_001"}, Tags: []string{"combat"}, Strength: 0.9, CreatedAt: t0},
		{ID: "m2", Description: "quiet morning", Location: memory.Point{X: 1, Y: 2},
			Strength: 0.4, CreatedAt: t0.Add(time.Hour)},
	}
	for i := 0; i < 2; i++ {
		if err := s.SaveMemories(ctx, "guard_001", records, t0); err != nil {
			t.Fatalf("save memories (pass %d): %v", i, err)
		}
	}
	got, lastDecay, err := s.LoadMemories(ctx, "guard_001")
	if err != nil {
		t.Fatalf("load memories: %v", err)
	}
	if len(got) != 2 || got[0].ID != "m1" || got[0].Tags[0] != "combat" || !lastDecay.Equal(t0) {
		t.Errorf("memories = %+v, last decay %v", got, lastDecay)
	}
	owners, err := s.Owners(ctx)
	if err != nil || len(owners) != 1 {
		t.Errorf("owners = %v, err = %v", owners, err)
	}

	r := rumor.New("I heard that the well is poisoned", "guard_001", memory.Point{X: 1, Y: 1},
		0.6, 0.05, t0, rumor.Lineage{MemoryID: "m1", Tags: []string{"danger"}})
	r.HeardBy.Add("miller_003")
	if err := s.SaveRumors(ctx, []rumor.Rumor{*r}, t0.Add(24*time.Hour)); err != nil {
		t.Fatalf("save rumors: %v", err)
	}
	rumors, lastTick, err := s.LoadRumors(ctx)
	if err != nil {
		t.Fatalf("load rumors: %v", err)
	}
	if len(rumors) != 1 || rumors[0].Content != r.Content || !rumors[0].HeardBy.Has("miller_003") {
		t.Errorf("rumors = %+v", rumors)
	}
	if !lastTick.Equal(t0.Add(24 * time.Hour)) {
		t.Errorf("last tick = %v", lastTick)
	}

	if err := s.SaveWorldTime(ctx, t0.Add(48*time.Hour)); err != nil {
		t.Fatalf("save world time: %v", err)
	}
	if at, err := ResumeTime(ctx, s); err != nil || !at.Equal(t0.Add(48*time.Hour)) {
		t.Errorf("resume time = %v, err = %v", at, err)
	}

	if err := s.DeleteMemories(ctx, "guard_001"); err != nil {
		t.Fatalf("delete memories: %v", err)
	}
	if owners, err := s.Owners(ctx); err != nil || len(owners) != 0 {
		t.Errorf("owners after delete = %v, err = %v", owners, err)
	}
}
