package memory

import (
	"math"
	"testing"
	"time"

	"github.com/nidhogg/hearsay/internal/sim"
	"go.uber.org/zap"
)

func newTestStore(capacity int) (*Store, *sim.ManualClock) {
	clk := sim.NewManualClock(t0)
	return NewStore("npc_1", capacity, clk, DefaultDecayConfig(), zap.NewNop()), clk
}

func TestStoreDecayAllTenHours(t *testing.T) {
	s, clk := newTestStore(10)
	s.Add(mustRecord(t, "fire", nil, nil, 1.0, t0))

	clk.Advance(10 * time.Hour)
	if purged := s.DecayAll(0.1); purged != 0 {
		t.Fatalf("purged %d, want 0", purged)
	}
	got := s.Records()[0].Strength
	if math.Abs(got-math.Exp(-1)) > 1e-6 {
		t.Errorf("got %f, want %f", got, math.Exp(-1))
	}
	if !s.LastDecay().Equal(t0.Add(10 * time.Hour)) {
		t.Errorf("last decay not advanced: %v", s.LastDecay())
	}
}

func TestStoreDecayAllZeroElapsed(t *testing.T) {
	s, _ := newTestStore(10)
	s.Add(mustRecord(t, "fire", nil, nil, 0.8, t0))
	s.DecayAll(0.1)
	s.DecayAll(0.1)
	if got := s.Records()[0].Strength; got != 0.8 {
		t.Errorf("got %f, want 0.8", got)
	}
}

func TestStoreDecayPurgesWeak(t *testing.T) {
	s, clk := newTestStore(10)
	s.Add(mustRecord(t, "weak", nil, nil, 0.02, t0))
	s.Add(mustRecord(t, "strong", nil, nil, 1.0, t0))

	clk.Advance(10 * time.Hour) // 0.02 * e^-1 < 0.01
	if purged := s.DecayAll(0.1); purged != 1 {
		t.Fatalf("purged %d, want 1", purged)
	}
	recs := s.Records()
	if len(recs) != 1 || recs[0].Description != "strong" {
		t.Errorf("unexpected records: %+v", recs)
	}
}

func TestStoreEvictsEarliestCreated(t *testing.T) {
	s, _ := newTestStore(2)
	s.Add(mustRecord(t, "middle", nil, nil, 0.5, t0.Add(time.Hour)))
	s.Add(mustRecord(t, "oldest", nil, nil, 0.9, t0))
	if ev := s.Add(mustRecord(t, "newest", nil, nil, 0.5, t0.Add(2*time.Hour))); ev != 1 {
		t.Fatalf("evicted %d, want 1", ev)
	}
	recs := s.Records()
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	for _, r := range recs {
		if r.Description == "oldest" {
			t.Error("earliest-created record survived eviction")
		}
	}
}

func TestStoreEvictsExpiredFirst(t *testing.T) {
	s, _ := newTestStore(2)
	s.Add(mustRecord(t, "old", nil, nil, 0.9, t0))
	s.Add(mustRecord(t, "faded", nil, nil, 0.005, t0.Add(2*time.Hour)))
	s.Add(mustRecord(t, "new", nil, nil, 0.9, t0.Add(3*time.Hour)))

	recs := s.Records()
	if len(recs) != 2 || recs[0].Description != "old" || recs[1].Description != "new" {
		t.Errorf("expected faded record evicted first, got %+v", recs)
	}
}

func TestStoreCapacityZero(t *testing.T) {
	s, _ := newTestStore(0)
	if ev := s.Add(mustRecord(t, "gone", nil, nil, 1, t0)); ev != 1 {
		t.Errorf("evicted %d, want 1", ev)
	}
	if s.Count() != 0 {
		t.Errorf("count %d, want 0", s.Count())
	}
}

func TestStoreCapacityInvariant(t *testing.T) {
	s, clk := newTestStore(5)
	for i := 0; i < 40; i++ {
		s.Add(mustRecord(t, "event", nil, nil, float64(i%10)/10, clk.Now()))
		clk.Advance(time.Hour)
		if i%7 == 0 {
			s.DecayAll(0.1)
		}
		if s.Count() > s.Capacity() {
			t.Fatalf("size %d exceeds capacity %d", s.Count(), s.Capacity())
		}
	}
}

func TestStoreRecallOrdering(t *testing.T) {
	s, _ := newTestStore(10)
	s.Add(mustRecord(t, "plain", nil, nil, 0.6, t0))
	s.Add(mustRecord(t, "tagged", nil, []string{"fire"}, 0.4, t0))
	s.Add(mustRecord(t, "faint", nil, nil, 0.05, t0))
	s.Add(mustRecord(t, "with bob", []string{"bob"}, []string{"fire"}, 0.3, t0))

	got := s.Recall([]string{"fire"}, []string{"bob"}, 0.1, 10)
	if len(got) != 3 {
		t.Fatalf("got %d results, want 3: %+v", len(got), got)
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Confidence < got[i].Confidence {
			t.Fatalf("not sorted descending at %d: %+v", i, got)
		}
	}
	for _, r := range got {
		if r.Confidence < 0.1 {
			t.Errorf("result below min confidence: %+v", r)
		}
	}
	// 0.3 * 2 * 2 = 1.2 -> 1
	if got[0].Memory.Description != "with bob" || got[0].Confidence != 1 {
		t.Errorf("top result: %+v", got[0])
	}
	if got[1].Memory.Description != "tagged" {
		t.Errorf("second result: %+v", got[1])
	}
}

func TestStoreRecallMaxResults(t *testing.T) {
	s, _ := newTestStore(10)
	for i := 0; i < 5; i++ {
		s.Add(mustRecord(t, "x", nil, nil, 0.5, t0))
	}
	if got := s.Recall(nil, nil, 0, 2); len(got) != 2 {
		t.Errorf("got %d, want 2", len(got))
	}
}

func TestStoreRecallDecaysFirst(t *testing.T) {
	s, clk := newTestStore(10)
	s.Add(mustRecord(t, "x", nil, nil, 1, t0))
	clk.Advance(10 * time.Hour)
	got := s.Recall(nil, nil, 0, 10)
	if len(got) != 1 || math.Abs(got[0].Confidence-math.Exp(-1)) > 1e-6 {
		t.Errorf("recall did not see decayed strength: %+v", got)
	}
}

func TestStoreStrongest(t *testing.T) {
	s, _ := newTestStore(10)
	s.Add(mustRecord(t, "a", nil, nil, 0.3, t0))
	s.Add(mustRecord(t, "b", nil, nil, 0.9, t0))
	s.Add(mustRecord(t, "c", nil, nil, 0.9, t0))
	s.Add(mustRecord(t, "d", nil, nil, 0.5, t0))

	top := s.Strongest(3)
	if len(top) != 3 {
		t.Fatalf("got %d, want 3", len(top))
	}
	want := []string{"b", "c", "d"}
	for i, w := range want {
		if top[i].Description != w {
			t.Errorf("position %d: got %q, want %q", i, top[i].Description, w)
		}
	}
	if len(s.Strongest(-1)) != 0 {
		t.Error("negative n returned records")
	}
}

func TestStoreRestore(t *testing.T) {
	src, _ := newTestStore(10)
	src.Add(mustRecord(t, "a", []string{"bob"}, []string{"crime"}, 0.7, t0))
	src.Add(mustRecord(t, "b", nil, nil, 0.2, t0))

	dst, _ := newTestStore(10)
	snaps := append(src.Records(), Snapshot{Description: "no id"})
	at := t0.Add(-time.Hour)
	if n := dst.Restore(snaps, at); n != 2 {
		t.Fatalf("restored %d, want 2", n)
	}
	if !dst.LastDecay().Equal(at) {
		t.Errorf("last decay: got %v, want %v", dst.LastDecay(), at)
	}
	if dst.Records()[0].Participants[0] != "bob" {
		t.Errorf("participants lost: %+v", dst.Records()[0])
	}
}

func TestStoreRestoreAheadOfClock(t *testing.T) {
	future := t0.Add(150 * 24 * time.Hour)
	src, _ := newTestStore(2)
	src.Add(mustRecord(t, "old news", nil, nil, 1.0, future))

	dst, clk := newTestStore(2)
	dst.Restore(src.Records(), future)
	if !dst.LastDecay().Equal(t0) {
		t.Fatalf("last decay: got %v, want clock time %v", dst.LastDecay(), t0)
	}
	if got := dst.Records()[0].CreatedAt; !got.Equal(t0) {
		t.Errorf("created at: got %v, want %v", got, t0)
	}

	clk.Advance(10 * time.Hour)
	dst.DecayAll(0.1)
	if got := dst.Records()[0].Strength; math.Abs(got-math.Exp(-1)) > 1e-6 {
		t.Errorf("restored record did not decay: got %f", got)
	}

	dst.Add(mustRecord(t, "fresh news", nil, nil, 1.0, clk.Now()))
	dst.Add(mustRecord(t, "fresher news", nil, nil, 1.0, clk.Now()))
	for _, r := range dst.Records() {
		if r.Description == "old news" {
			t.Errorf("restored record outlived newer ones: %+v", dst.Records())
		}
	}
}

func TestBankOpen(t *testing.T) {
	b := NewBank(5, sim.NewManualClock(t0), DefaultDecayConfig(), zap.NewNop())
	a := b.Open("npc_b")
	if a != b.Open("npc_b") {
		t.Error("Open returned a different store for the same owner")
	}
	b.Open("npc_a")
	if b.Open("") != nil {
		t.Error("empty owner should yield nil")
	}
	owners := b.Owners()
	if len(owners) != 2 || owners[0] != "npc_a" || owners[1] != "npc_b" {
		t.Errorf("owners: %v", owners)
	}
	if _, ok := b.Get("npc_z"); ok {
		t.Error("Get invented a store")
	}
	b.Remove("npc_a")
	if len(b.Owners()) != 1 {
		t.Errorf("owners after remove: %v", b.Owners())
	}
}
