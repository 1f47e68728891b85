package bus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nidhogg/hearsay/internal/memory"
	"github.com/nidhogg/hearsay/internal/rumor"
	"go.uber.org/zap"
)

var t0 = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func setupTestBus(t *testing.T) (*Bus, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	b, err := New("redis://"+mr.Addr(), zap.NewNop())
	if err != nil {
		mr.Close()
		t.Fatalf("create bus: %v", err)
	}
	t.Cleanup(func() {
		b.Close()
		mr.Close()
	})
	return b, mr
}

func TestNewBadURL(t *testing.T) {
	if _, err := New("not a url", zap.NewNop()); err == nil {
		t.Error("expected parse error")
	}
}

func TestOnDailyTickPublishes(t *testing.T) {
	b, mr := setupTestBus(t)
	ctx := context.Background()

	stats := rumor.TickStats{Spread: 3, Decayed: 5, Expired: 1, Created: 2}
	if err := b.OnDailyTick(ctx, t0, stats); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if !mr.Exists(Stream) {
		t.Fatal("stream not created")
	}
	events, err := b.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.Kind != KindTick || ev.ID == "" || !ev.At.Equal(t0) {
		t.Errorf("event = %+v", ev)
	}
	if ev.Stats == nil || *ev.Stats != stats {
		t.Errorf("stats = %+v", ev.Stats)
	}
}

func TestOnRumorRemovedPublishes(t *testing.T) {
	b, _ := setupTestBus(t)

	r := rumor.New("I heard that the bridge is out", "guard_001", memory.Point{X: 1, Y: 2},
		0.04, 0.05, t0, rumor.Lineage{})
	b.OnRumorRemoved(*r, rumor.RemovedExpired)

	events, err := b.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.Kind != KindRemoved || ev.Reason != "expired" {
		t.Errorf("event = %+v", ev)
	}
	if ev.Rumor == nil || ev.Rumor.ID != r.ID || !ev.Rumor.HeardBy.Has("guard_001") {
		t.Errorf("rumor = %+v", ev.Rumor)
	}
}

func TestRecentNewestFirst(t *testing.T) {
	b, _ := setupTestBus(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := b.OnDailyTick(ctx, t0.Add(time.Duration(i)*24*time.Hour), rumor.TickStats{Spread: i}); err != nil {
			t.Fatal(err)
		}
	}
	events, err := b.Recent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 || events[0].Stats.Spread != 2 || events[1].Stats.Spread != 1 {
		t.Errorf("events = %+v %+v", events[0], events[1])
	}
}

func TestSubscribeFromStart(t *testing.T) {
	b, _ := setupTestBus(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := b.Publish(ctx, &Event{Kind: KindTick, Stats: &rumor.TickStats{Created: 1}}); err != nil {
		t.Fatal(err)
	}
	if err := b.Publish(ctx, &Event{Kind: KindRemoved, Reason: "evicted"}); err != nil {
		t.Fatal(err)
	}

	ch := b.SubscribeFrom(ctx, "0")
	var kinds []Kind
	for len(kinds) < 2 {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatal("channel closed early")
			}
			kinds = append(kinds, ev.Kind)
		case <-ctx.Done():
			t.Fatalf("timed out, got %v", kinds)
		}
	}
	if kinds[0] != KindTick || kinds[1] != KindRemoved {
		t.Errorf("kinds = %v", kinds)
	}

	cancel()
	for range ch {
	}
}
