package memory

import (
	"sort"
	"sync"

	"github.com/nidhogg/hearsay/internal/sim"
	"go.uber.org/zap"
)

// Bank owns one Store per entity. Stores are created lazily with shared
// capacity and decay settings.
type Bank struct {
	capacity int
	cfg      DecayConfig
	clock    sim.Clock
	stores   map[string]*Store
	mu       sync.RWMutex
	logger   *zap.Logger
}

// NewBank creates an empty bank.
func NewBank(capacity int, clock sim.Clock, cfg DecayConfig, logger *zap.Logger) *Bank {
	return &Bank{
		capacity: capacity,
		cfg:      cfg,
		clock:    clock,
		stores:   make(map[string]*Store),
		logger:   logger,
	}
}

// Get returns the store for owner, if one exists.
func (b *Bank) Get(owner string) (*Store, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.stores[owner]
	return s, ok
}

// Open returns the store for owner, creating it on first use.
// An empty owner id yields nil.
func (b *Bank) Open(owner string) *Store {
	if owner == "" {
		return nil
	}
	if s, ok := b.Get(owner); ok {
		return s
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.stores[owner]; ok {
		return s
	}
	s := NewStore(owner, b.capacity, b.clock, b.cfg, b.logger)
	b.stores[owner] = s
	b.logger.Debug("memory store opened", zap.String("owner", owner))
	return s
}

// Remove drops the store for owner.
func (b *Bank) Remove(owner string) {
	b.mu.Lock()
	delete(b.stores, owner)
	b.mu.Unlock()
}

// Owners lists every owner id in lexical order.
func (b *Bank) Owners() []string {
	b.mu.RLock()
	out := make([]string, 0, len(b.stores))
	for id := range b.stores {
		out = append(out, id)
	}
	b.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Each calls fn for every store, ordered by owner id. The bank lock is not
// held while fn runs.
func (b *Bank) Each(fn func(*Store)) {
	for _, id := range b.Owners() {
		if s, ok := b.Get(id); ok {
			fn(s)
		}
	}
}

// DecayAll decays every store at its configured rate and returns the total
// number of records purged.
func (b *Bank) DecayAll() int {
	purged := 0
	b.Each(func(s *Store) {
		purged += s.DecayAll(s.Config().Rate)
	})
	return purged
}
