package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/nidhogg/hearsay/internal/sim"
	"go.uber.org/zap"
)

// DefaultCapacity is the record limit used when a negative capacity is given.
const DefaultCapacity = 1000

// Store is one entity's bounded, decaying collection of memories.
// All methods are safe for concurrent use.
type Store struct {
	owner     string
	capacity  int
	cfg       DecayConfig
	records   []*Record
	lastDecay time.Time
	clock     sim.Clock
	mu        sync.Mutex
	logger    *zap.Logger
}

// NewStore creates an empty store for owner. A capacity of 0 keeps nothing;
// a negative capacity falls back to DefaultCapacity. Zero fields in cfg take
// their DefaultDecayConfig values.
func NewStore(owner string, capacity int, clock sim.Clock, cfg DecayConfig, logger *zap.Logger) *Store {
	if capacity < 0 {
		capacity = DefaultCapacity
	}
	def := DefaultDecayConfig()
	if cfg.Rate == 0 {
		cfg.Rate = def.Rate
	}
	if cfg.PurgeBelow == 0 {
		cfg.PurgeBelow = def.PurgeBelow
	}
	if cfg.MinConfidence == 0 {
		cfg.MinConfidence = def.MinConfidence
	}
	if cfg.MaxResults == 0 {
		cfg.MaxResults = def.MaxResults
	}
	if clock == nil {
		clock = sim.SystemClock{}
	}
	return &Store{
		owner:     owner,
		capacity:  capacity,
		cfg:       cfg,
		lastDecay: clock.Now(),
		clock:     clock,
		logger:    logger,
	}
}

// Owner returns the id of the entity owning this store.
func (s *Store) Owner() string { return s.owner }

// Capacity returns the record limit.
func (s *Store) Capacity() int { return s.capacity }

// Config returns the decay configuration in effect.
func (s *Store) Config() DecayConfig { return s.cfg }

// Count returns the number of records held.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// LastDecay returns when decay was last applied.
func (s *Store) LastDecay() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastDecay
}

// Add appends rec and evicts until the store is back within capacity.
// It returns how many records were evicted.
func (s *Store) Add(rec *Record) int {
	if rec == nil || rec.ID == "" {
		s.logger.Warn("rejected malformed memory", zap.String("owner", s.owner))
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, rec)
	evicted := s.enforceCapacity()
	if evicted > 0 {
		s.logger.Debug("memory store over capacity",
			zap.String("owner", s.owner),
			zap.Int("evicted", evicted),
			zap.Int("capacity", s.capacity))
	}
	return evicted
}

// enforceCapacity drops records already below the purge floor first, then
// the earliest-created ones (caller must hold lock).
func (s *Store) enforceCapacity() int {
	evicted := 0
	for len(s.records) > s.capacity {
		idx := -1
		for i, r := range s.records {
			if r.strength < s.cfg.PurgeBelow {
				idx = i
				break
			}
		}
		if idx < 0 {
			idx = 0
			for i, r := range s.records {
				if r.CreatedAt.Before(s.records[idx].CreatedAt) {
					idx = i
				}
			}
		}
		s.records = append(s.records[:idx], s.records[idx+1:]...)
		evicted++
	}
	return evicted
}

// DecayAll decays every record by the hours elapsed since the last decay,
// drops records below the purge floor, and returns how many were dropped.
// Zero elapsed time is a no-op.
func (s *Store) DecayAll(rate float64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decayLocked(rate)
}

func (s *Store) decayLocked(rate float64) int {
	now := s.clock.Now()
	hours := sim.HoursBetween(s.lastDecay, now)
	if hours == 0 {
		return 0
	}
	kept := s.records[:0]
	for _, r := range s.records {
		r.Decay(hours, rate)
		if r.strength >= s.cfg.PurgeBelow {
			kept = append(kept, r)
		}
	}
	purged := len(s.records) - len(kept)
	for i := len(kept); i < len(s.records); i++ {
		s.records[i] = nil
	}
	s.records = kept
	s.lastDecay = now
	return purged
}

// Recall decays the store first, then returns records whose recall
// confidence is at least minConfidence, highest first, at most maxResults.
// A non-positive maxResults uses the configured default.
func (s *Store) Recall(queryTags, queryParticipants []string, minConfidence float64, maxResults int) []Recalled {
	if maxResults <= 0 {
		maxResults = s.cfg.MaxResults
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.decayLocked(s.cfg.Rate)

	out := make([]Recalled, 0, len(s.records))
	for _, r := range s.records {
		snap, conf := r.Recall(queryTags, queryParticipants)
		if conf >= minConfidence {
			out = append(out, Recalled{Memory: snap, Confidence: conf})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	if len(out) > maxResults {
		out = out[:maxResults]
	}
	return out
}

// Strongest returns up to n records ordered by strength, strongest first.
func (s *Store) Strongest(n int) []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	sorted := make([]*Record, len(s.records))
	copy(sorted, s.records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].strength > sorted[j].strength
	})
	if n < len(sorted) {
		sorted = sorted[:max(n, 0)]
	}
	out := make([]Snapshot, len(sorted))
	for i, r := range sorted {
		out[i] = r.Snapshot()
	}
	return out
}

// Records returns snapshots of every record in insertion order.
func (s *Store) Records() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Snapshot, len(s.records))
	for i, r := range s.records {
		out[i] = r.Snapshot()
	}
	return out
}

// Restore replaces the store contents with previously persisted records.
// Malformed snapshots are skipped; capacity is enforced afterwards.
// Timestamps later than the store's clock are pulled back to it.
func (s *Store) Restore(snaps []Snapshot, lastDecay time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	clamped := 0
	s.records = s.records[:0]
	for _, snap := range snaps {
		if snap.CreatedAt.After(now) {
			snap.CreatedAt = now
			clamped++
		}
		rec, err := FromSnapshot(snap)
		if err != nil {
			s.logger.Warn("skipping malformed memory snapshot",
				zap.String("owner", s.owner),
				zap.String("id", snap.ID))
			continue
		}
		s.records = append(s.records, rec)
	}
	s.enforceCapacity()
	if lastDecay.After(now) {
		lastDecay = now
		clamped++
	}
	if !lastDecay.IsZero() {
		s.lastDecay = lastDecay
	}
	if clamped > 0 {
		s.logger.Warn("restored memories ahead of the clock",
			zap.String("owner", s.owner),
			zap.Int("clamped", clamped),
			zap.Time("now", now))
	}
	return len(s.records)
}
