package rumor

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nidhogg/hearsay/internal/memory"
	"github.com/nidhogg/hearsay/internal/sim"
	"go.uber.org/zap"
)

var (
	// ErrInvalidInput rejects empty ids and malformed coordinates.
	ErrInvalidInput = memory.ErrInvalidInput
	// ErrUnknownEntity is returned for operations on unregistered entities.
	ErrUnknownEntity = errors.New("unknown entity")
)

// MemorySource is the read-only view the network keeps of an entity's
// memory store.
type MemorySource interface {
	Strongest(n int) []memory.Snapshot
}

// RemovalReason says why a rumor left the active set.
type RemovalReason string

const (
	RemovedExpired RemovalReason = "expired"
	RemovedEvicted RemovalReason = "evicted"
)

// RemovalListener is told about every rumor that leaves the active set.
type RemovalListener interface {
	OnRumorRemoved(r Rumor, reason RemovalReason)
}

// SpreadListener is told about every hand-off a tick makes, with a copy of
// the rumor the target received.
type SpreadListener interface {
	OnRumorSpread(from, to string, child Rumor)
}

type handoff struct {
	from, to string
	child    Rumor
}

// Options configures a Network. Start from DefaultOptions.
type Options struct {
	Capacity         int     // max active rumors
	DecayRate        float64 // confidence decay per hour for seeded rumors
	ExpiryThreshold  float64 // rumors below this confidence are expired
	MutationChance   float64 // per-spread mutation probability
	SeedThreshold    float64 // minimum memory strength seeded during ticks
	SeedChance       float64 // per-entity chance to seed each tick
	SeedMemoryChance float64 // per-memory chance once an entity seeds
	SeedSample       int     // strongest memories sampled per seeding entity
	Mutations        *Mutations
	ContextRules     *ContextRules
}

// DefaultOptions returns the stock network configuration.
func DefaultOptions() Options {
	return Options{
		Capacity:         500,
		DecayRate:        0.05,
		ExpiryThreshold:  0.05,
		MutationChance:   0.3,
		SeedThreshold:    0.7,
		SeedChance:       0.1,
		SeedMemoryChance: 0.3,
		SeedSample:       3,
	}
}

// TickStats summarizes one DailyTick.
type TickStats struct {
	Spread  int `json:"spread"`
	Decayed int `json:"decayed"`
	Expired int `json:"expired"`
	Created int `json:"created"`
	Evicted int `json:"evicted"`
}

type removal struct {
	rumor  *Rumor
	reason RemovalReason
}

// Network is the registry of active rumors and the entities that trade
// them. All methods are safe for concurrent use; a tick holds the network
// lock for its whole duration so readers never observe a partial tick.
type Network struct {
	opts      Options
	clock     sim.Clock
	rng       sim.RandomSource
	sources   map[string]MemorySource
	order     []string
	active    []*Rumor
	lastTick  time.Time
	listeners []RemovalListener
	spreaders []SpreadListener
	mu        sync.RWMutex
	logger    *zap.Logger
}

// NewNetwork creates an empty network. Nil mutation or context tables fall
// back to the defaults; a negative capacity falls back to 500.
func NewNetwork(clock sim.Clock, rng sim.RandomSource, opts Options, logger *zap.Logger) *Network {
	if opts.Capacity < 0 {
		opts.Capacity = DefaultOptions().Capacity
	}
	if opts.Mutations == nil {
		opts.Mutations = DefaultMutations()
	}
	if opts.ContextRules == nil {
		opts.ContextRules = DefaultContextRules()
	}
	if clock == nil {
		clock = sim.SystemClock{}
	}
	if rng == nil {
		rng = sim.NewSeeded(uint64(clock.Now().UnixNano()))
	}
	return &Network{
		opts:     opts,
		clock:    clock,
		rng:      rng,
		sources:  make(map[string]MemorySource),
		lastTick: clock.Now(),
		logger:   logger,
	}
}

// AddRemovalListener registers a listener for expired and evicted rumors.
// Listeners run after the network lock is released.
func (n *Network) AddRemovalListener(l RemovalListener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners = append(n.listeners, l)
}

// AddSpreadListener registers a listener for tick hand-offs. Listeners run
// after the network lock is released.
func (n *Network) AddSpreadListener(l SpreadListener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.spreaders = append(n.spreaders, l)
}

// Options returns the configuration in effect.
func (n *Network) Options() Options { return n.opts }

// Register associates an entity with its memory store for seeding. The
// network only reads from src. Registering an id again replaces its source.
func (n *Network) Register(entityID string, src MemorySource) error {
	if entityID == "" || src == nil {
		return fmt.Errorf("register %q: %w", entityID, ErrInvalidInput)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.sources[entityID]; !ok {
		n.order = append(n.order, entityID)
	}
	n.sources[entityID] = src
	return nil
}

// Unregister drops an entity's association. Rumors it holds are kept.
func (n *Network) Unregister(entityID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.sources[entityID]; !ok {
		return fmt.Errorf("unregister %q: %w", entityID, ErrUnknownEntity)
	}
	delete(n.sources, entityID)
	for i, id := range n.order {
		if id == entityID {
			n.order = append(n.order[:i], n.order[i+1:]...)
			break
		}
	}
	return nil
}

// Registered lists entity ids in registration order.
func (n *Network) Registered() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]string(nil), n.order...)
}

// Seed turns a memory into a rumor originated by entityID when its strength
// reaches threshold. Capacity is enforced immediately. It returns a copy of
// the new rumor, or false when nothing was seeded.
func (n *Network) Seed(entityID string, mem memory.Snapshot, threshold float64) (Rumor, bool) {
	n.mu.Lock()
	r := n.seedLocked(entityID, mem, threshold)
	if r == nil {
		n.mu.Unlock()
		return Rumor{}, false
	}
	out := *r.Clone()
	removed := n.enforceCapacityLocked()
	listeners := n.listeners
	n.mu.Unlock()

	n.notify(listeners, removed)
	return out, true
}

func (n *Network) seedLocked(entityID string, mem memory.Snapshot, threshold float64) *Rumor {
	if entityID == "" || !mem.Location.Valid() {
		n.logger.Warn("rejected rumor seed",
			zap.String("entity", entityID),
			zap.String("memory", mem.ID))
		return nil
	}
	if mem.Strength < threshold {
		return nil
	}

	confidence := mem.Strength
	switch {
	case mem.HasTag("witnessed"):
		confidence *= 1.2
	case mem.HasTag("rumor"):
		confidence *= 0.8
	}

	r := New("I heard that "+mem.Description, entityID, mem.Location,
		confidence, n.opts.DecayRate, n.clock.Now(), Lineage{
			MemoryID:     mem.ID,
			Participants: mem.Participants,
			Tags:         mem.Tags,
		})
	n.active = append(n.active, r)
	n.logger.Debug("rumor seeded",
		zap.String("rumor", r.ID),
		zap.String("entity", entityID),
		zap.Float64("confidence", r.Confidence))
	return r
}

// DailyTick runs one propagation pass: decay, spread, seed, evict, in that
// order. Failures in a single unit of work are logged and skipped.
func (n *Network) DailyTick(locations map[string]memory.Point, socialEdges map[string][]string, spreadRadius, spreadProbability float64) TickStats {
	var stats TickStats

	n.mu.Lock()
	now := n.clock.Now()
	hours := sim.HoursBetween(n.lastTick, now)

	// 1. decay
	for _, r := range n.active {
		before := r.Confidence
		r.Decay(hours)
		if r.Confidence < before {
			stats.Decayed++
		}
	}

	// 2. spread; children join the active set after the pass
	located := sortedLocated(locations)
	var born []*Rumor
	var handoffs []handoff
	for _, r := range n.active {
		if r.IsExpired(n.opts.ExpiryThreshold) {
			continue
		}
		for _, holder := range r.HeardBy.Sorted() {
			at, ok := locations[holder]
			if !ok || !at.Valid() {
				continue
			}
			if n.rng.Float64() >= spreadProbability {
				continue
			}
			targets := spreadTargets(holder, at, located, locations, socialEdges[holder], spreadRadius, r.HeardBy)
			if len(targets) == 0 {
				continue
			}
			target := targets[n.rng.Intn(len(targets))]
			child := r.Spread(holder, target, n.opts.MutationChance, n.rng, n.opts.Mutations)
			r.HeardBy.Add(target)
			born = append(born, child)
			handoffs = append(handoffs, handoff{from: holder, to: target, child: *child.Clone()})
			stats.Spread++
			n.logger.Debug("rumor spread",
				zap.String("rumor", child.ID),
				zap.String("from", holder),
				zap.String("to", target),
				zap.Int("generation", child.Generation))
		}
	}
	n.active = append(n.active, born...)

	// 3. seed from registered stores
	for _, id := range n.order {
		stats.Created += n.seedFrom(id, n.sources[id])
	}

	// 4. evict
	removed := n.enforceCapacityLocked()
	for _, rm := range removed {
		if rm.reason == RemovedExpired {
			stats.Expired++
		} else {
			stats.Evicted++
		}
	}

	// 5.
	n.lastTick = now
	listeners := n.listeners
	spreaders := n.spreaders
	active := len(n.active)
	n.mu.Unlock()

	n.notify(listeners, removed)
	for _, h := range handoffs {
		for _, l := range spreaders {
			l.OnRumorSpread(h.from, h.to, h.child)
		}
	}
	n.logger.Debug("rumor tick complete",
		zap.Int("spread", stats.Spread),
		zap.Int("decayed", stats.Decayed),
		zap.Int("expired", stats.Expired),
		zap.Int("created", stats.Created),
		zap.Int("evicted", stats.Evicted),
		zap.Int("active", active))
	return stats
}

// seedFrom rolls the seeding dice for one entity (caller must hold lock).
// A misbehaving source is logged and skipped.
func (n *Network) seedFrom(entityID string, src MemorySource) (created int) {
	defer func() {
		if p := recover(); p != nil {
			n.logger.Warn("memory source failed during seeding",
				zap.String("entity", entityID),
				zap.Any("panic", p))
		}
	}()
	if src == nil || n.rng.Float64() >= n.opts.SeedChance {
		return 0
	}
	for _, mem := range src.Strongest(n.opts.SeedSample) {
		if n.rng.Float64() >= n.opts.SeedMemoryChance {
			continue
		}
		if n.seedLocked(entityID, mem, n.opts.SeedThreshold) != nil {
			created++
		}
	}
	return created
}

// enforceCapacityLocked removes expired rumors, then the earliest-created
// until the active set fits. Relative order of survivors is preserved.
func (n *Network) enforceCapacityLocked() []removal {
	var removed []removal
	kept := n.active[:0]
	for _, r := range n.active {
		if r.IsExpired(n.opts.ExpiryThreshold) {
			removed = append(removed, removal{r, RemovedExpired})
			continue
		}
		kept = append(kept, r)
	}
	for i := len(kept); i < len(n.active); i++ {
		n.active[i] = nil
	}
	n.active = kept

	over := len(n.active) - n.opts.Capacity
	if over <= 0 {
		return removed
	}
	idx := make([]int, len(n.active))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return n.active[idx[a]].CreatedAt.Before(n.active[idx[b]].CreatedAt)
	})
	drop := make(map[int]bool, over)
	for _, i := range idx[:over] {
		drop[i] = true
	}
	survivors := make([]*Rumor, 0, n.opts.Capacity)
	for i, r := range n.active {
		if drop[i] {
			removed = append(removed, removal{r, RemovedEvicted})
			n.logger.Debug("rumor evicted", zap.String("rumor", r.ID))
			continue
		}
		survivors = append(survivors, r)
	}
	n.active = survivors
	return removed
}

func (n *Network) notify(listeners []RemovalListener, removed []removal) {
	for _, rm := range removed {
		for _, l := range listeners {
			l.OnRumorRemoved(*rm.rumor, rm.reason)
		}
	}
}

// spreadTargets lists, in lexical order, entities that have not heard the
// rumor and are either social neighbors of the holder or within radius of
// it. Entities without a valid location are never targets.
func spreadTargets(holder string, at memory.Point, located []string, locations map[string]memory.Point, neighbors []string, radius float64, heard memory.Set) []string {
	cand := make(memory.Set)
	for _, nb := range neighbors {
		if nb == holder || heard.Has(nb) {
			continue
		}
		if loc, ok := locations[nb]; ok && loc.Valid() {
			cand.Add(nb)
		}
	}
	for _, id := range located {
		if id == holder || heard.Has(id) {
			continue
		}
		if at.Within(locations[id], radius) {
			cand.Add(id)
		}
	}
	return cand.Sorted()
}

func sortedLocated(locations map[string]memory.Point) []string {
	out := make([]string, 0, len(locations))
	for id, p := range locations {
		if id != "" && p.Valid() {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Rewrite applies a context-driven rewrite to one active rumor.
func (n *Network) Rewrite(rumorID string, contextTags []string, environment string) (Rumor, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, r := range n.active {
		if r.ID == rumorID {
			r.Transform(contextTags, environment, n.opts.ContextRules)
			return *r.Clone(), nil
		}
	}
	return Rumor{}, fmt.Errorf("rewrite rumor %q: %w", rumorID, ErrUnknownEntity)
}

// Active returns copies of every active rumor in insertion order.
func (n *Network) Active() []Rumor {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]Rumor, len(n.active))
	for i, r := range n.active {
		out[i] = *r.Clone()
	}
	return out
}

// Len returns the number of active rumors.
func (n *Network) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.active)
}

// LastTick returns when the last tick completed.
func (n *Network) LastTick() time.Time {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.lastTick
}

// Restore replaces the active set with persisted rumors. Rumors without an
// id or originator are skipped. Capacity is enforced afterwards, and
// timestamps later than the network's clock are pulled back to it.
func (n *Network) Restore(rumors []Rumor, lastTick time.Time) int {
	n.mu.Lock()
	now := n.clock.Now()
	clamped := 0
	n.active = n.active[:0]
	for i := range rumors {
		r := rumors[i].Clone()
		if r.ID == "" || r.OriginatorID == "" || !r.Origin.Valid() {
			n.logger.Warn("skipping malformed rumor", zap.String("rumor", r.ID))
			continue
		}
		if r.CreatedAt.After(now) {
			r.CreatedAt = now
			clamped++
		}
		r.HeardBy.Add(r.OriginatorID)
		r.Confidence = memory.Clamp01(r.Confidence)
		n.active = append(n.active, r)
	}
	if lastTick.After(now) {
		lastTick = now
		clamped++
	}
	if !lastTick.IsZero() {
		n.lastTick = lastTick
	}
	if clamped > 0 {
		n.logger.Warn("restored rumors ahead of the clock",
			zap.Int("clamped", clamped),
			zap.Time("now", now))
	}
	removed := n.enforceCapacityLocked()
	listeners := n.listeners
	count := len(n.active)
	n.mu.Unlock()

	n.notify(listeners, removed)
	return count
}
