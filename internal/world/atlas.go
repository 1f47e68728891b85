package world

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/nidhogg/hearsay/internal/memory"
	"go.uber.org/zap"
)

// ErrUnknownResident is returned for moves of entities the atlas has never
// placed.
var ErrUnknownResident = errors.New("unknown resident")

// Resident is an entity's place in the world.
type Resident struct {
	ID       string       `json:"id"`
	Position memory.Point `json:"position"`
	Faction  string       `json:"faction,omitempty"`
}

// Atlas tracks where every resident currently is.
type Atlas struct {
	residents map[string]*Resident
	mu        sync.RWMutex
	logger    *zap.Logger
}

// NewAtlas creates an empty atlas.
func NewAtlas(logger *zap.Logger) *Atlas {
	return &Atlas{
		residents: make(map[string]*Resident),
		logger:    logger,
	}
}

// Place adds or replaces a resident.
func (a *Atlas) Place(id string, pos memory.Point, faction string) error {
	if id == "" || !pos.Valid() {
		return fmt.Errorf("place %q: %w", id, memory.ErrInvalidInput)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.residents[id] = &Resident{ID: id, Position: pos, Faction: faction}
	return nil
}

// Move relocates a placed resident.
func (a *Atlas) Move(id string, pos memory.Point) error {
	if !pos.Valid() {
		return fmt.Errorf("move %q: %w", id, memory.ErrInvalidInput)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.residents[id]
	if !ok {
		return fmt.Errorf("move %q: %w", id, ErrUnknownResident)
	}
	if r.Position != pos {
		a.logger.Debug("resident moved",
			zap.String("resident", id),
			zap.Float64("x", pos.X),
			zap.Float64("y", pos.Y))
	}
	r.Position = pos
	return nil
}

// Remove forgets a resident.
func (a *Atlas) Remove(id string) {
	a.mu.Lock()
	delete(a.residents, id)
	a.mu.Unlock()
}

// Get returns a copy of one resident.
func (a *Atlas) Get(id string) (Resident, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	r, ok := a.residents[id]
	if !ok {
		return Resident{}, false
	}
	return *r, true
}

// Residents returns copies of every resident ordered by id.
func (a *Atlas) Residents() []Resident {
	a.mu.RLock()
	out := make([]Resident, 0, len(a.residents))
	for _, r := range a.residents {
		out = append(out, *r)
	}
	a.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Positions snapshots every resident's location.
func (a *Atlas) Positions() map[string]memory.Point {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]memory.Point, len(a.residents))
	for id, r := range a.residents {
		out[id] = r.Position
	}
	return out
}
