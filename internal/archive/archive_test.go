package archive

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/nidhogg/hearsay/internal/embedding"
	"github.com/nidhogg/hearsay/internal/memory"
	"github.com/nidhogg/hearsay/internal/rumor"
	"github.com/nidhogg/hearsay/internal/vectorstore"
	"go.uber.org/zap"
)

var t0 = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

// memIndex is a brute-force in-memory Index.
type memIndex struct {
	mu          sync.Mutex
	collections map[string]uint64
	points      map[string]vectorstore.Point
	failUpsert  bool
}

func newMemIndex() *memIndex {
	return &memIndex{collections: map[string]uint64{}, points: map[string]vectorstore.Point{}}
}

func (m *memIndex) EnsureCollection(_ context.Context, name string, dim uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[name] = dim
	return nil
}

func (m *memIndex) Upsert(_ context.Context, _ string, points ...vectorstore.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpsert {
		return errors.New("index down")
	}
	for _, p := range points {
		m.points[p.ID] = p
	}
	return nil
}

func (m *memIndex) Search(_ context.Context, _ string, vector []float32, topK uint64, match map[string]string) ([]*vectorstore.SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*vectorstore.SearchResult
	for id, p := range m.points {
		ok := true
		for k, v := range match {
			if p.Payload[k] != v {
				ok = false
			}
		}
		if !ok {
			continue
		}
		var dot float32
		for i := range vector {
			dot += vector[i] * p.Vector[i]
		}
		out = append(out, &vectorstore.SearchResult{ID: id, Score: dot, Payload: p.Payload})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if uint64(len(out)) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (m *memIndex) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.points)
}

func newRumor(content string) rumor.Rumor {
	return *rumor.New(content, "guard_001", memory.Point{X: 1, Y: 1}, 0.5, 0.05, t0, rumor.Lineage{})
}

func TestInitCreatesCollection(t *testing.T) {
	idx := newMemIndex()
	a := New(embedding.NewHashProvider(64), idx, 0, zap.NewNop())
	if err := a.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if dim := idx.collections[Collection]; dim != 64 {
		t.Errorf("collection dim = %d", dim)
	}
}

func TestStoreAndQuery(t *testing.T) {
	idx := newMemIndex()
	a := New(embedding.NewHashProvider(128), idx, 0, zap.NewNop())
	ctx := context.Background()

	bribe := newRumor("I heard that the mayor took a bribe")
	wolves := newRumor("I heard that wolves were seen near the mill")
	if err := a.Store(ctx, bribe, rumor.RemovedExpired); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := a.Store(ctx, wolves, rumor.RemovedEvicted); err != nil {
		t.Fatalf("store: %v", err)
	}

	got, err := a.Query(ctx, "mayor bribe", 1)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 || got[0].RumorID != bribe.ID {
		t.Fatalf("query result = %+v", got)
	}
	e := got[0]
	if e.Reason != "expired" || e.OriginatorID != "guard_001" || e.Confidence != 0.5 || e.ArchivedAt.IsZero() {
		t.Errorf("entry = %+v", e)
	}

	evicted, err := a.QueryReason(ctx, "mayor bribe", 5, rumor.RemovedEvicted)
	if err != nil {
		t.Fatalf("query reason: %v", err)
	}
	if len(evicted) != 1 || evicted[0].RumorID != wolves.ID {
		t.Errorf("evicted = %+v", evicted)
	}

	if none, _ := a.Query(ctx, "anything", 0); len(none) != 0 {
		t.Errorf("topK 0 returned %d", len(none))
	}
}

func TestStoreNonUUIDRumorID(t *testing.T) {
	idx := newMemIndex()
	a := New(embedding.NewHashProvider(32), idx, 0, zap.NewNop())
	r := newRumor("old tale")
	r.ID = "legacy-7"

	if err := a.Store(context.Background(), r, rumor.RemovedExpired); err != nil {
		t.Fatal(err)
	}
	if err := a.Store(context.Background(), r, rumor.RemovedExpired); err != nil {
		t.Fatal(err)
	}
	if idx.count() != 1 {
		t.Errorf("expected stable point id, got %d points", idx.count())
	}
}

func TestRunDrainsQueue(t *testing.T) {
	idx := newMemIndex()
	a := New(embedding.NewHashProvider(32), idx, 8, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	for i := 0; i < 3; i++ {
		a.OnRumorRemoved(newRumor("tale"), rumor.RemovedEvicted)
	}
	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for idx.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if idx.count() != 3 {
		t.Errorf("archived %d, want 3", idx.count())
	}
}

func TestQueueFullDrops(t *testing.T) {
	idx := newMemIndex()
	a := New(embedding.NewHashProvider(32), idx, 1, zap.NewNop())
	a.OnRumorRemoved(newRumor("first"), rumor.RemovedEvicted)
	a.OnRumorRemoved(newRumor("second"), rumor.RemovedEvicted)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a.Run(ctx)

	if idx.count() != 1 {
		t.Errorf("archived %d, want 1", idx.count())
	}
}

func TestStoreIndexFailure(t *testing.T) {
	idx := newMemIndex()
	idx.failUpsert = true
	a := New(embedding.NewHashProvider(32), idx, 0, zap.NewNop())
	if err := a.Store(context.Background(), newRumor("x marks"), rumor.RemovedExpired); err == nil {
		t.Error("expected index error")
	}
}
