package world

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nidhogg/hearsay/internal/memory"
	"go.uber.org/zap"
)

// ActivityType categorizes what a resident is off doing.
type ActivityType string

const (
	ActivityWork    ActivityType = "work"
	ActivityTrade   ActivityType = "trade"
	ActivitySocial  ActivityType = "social"
	ActivityRest    ActivityType = "rest"
	ActivityPatrol  ActivityType = "patrol"
	ActivityWorship ActivityType = "worship"
)

// RoutineEntry sends a resident to Destination for Duration from StartTime.
type RoutineEntry struct {
	ID          string        `json:"id"`
	Type        ActivityType  `json:"type"`
	Title       string        `json:"title"`
	Destination memory.Point  `json:"destination"`
	StartTime   time.Time     `json:"start_time"`
	Duration    time.Duration `json:"duration"`
	Status      string        `json:"status"` // pending|active|done

	home memory.Point
}

// Routines moves residents around the atlas as their entries come due.
type Routines struct {
	entries map[string][]*RoutineEntry // residentID -> entries
	atlas   *Atlas
	mu      sync.Mutex
	logger  *zap.Logger
}

// NewRoutines creates a routine manager driving atlas.
func NewRoutines(atlas *Atlas, logger *zap.Logger) *Routines {
	return &Routines{
		entries: make(map[string][]*RoutineEntry),
		atlas:   atlas,
		logger:  logger,
	}
}

// AddEntry schedules an entry for a resident and returns its id.
func (m *Routines) AddEntry(residentID string, entry RoutineEntry) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Status == "" {
		entry.Status = "pending"
	}
	e := entry
	m.entries[residentID] = append(m.entries[residentID], &e)
	return e.ID
}

// Entries returns copies of a resident's entries.
func (m *Routines) Entries(residentID string) []RoutineEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RoutineEntry, 0, len(m.entries[residentID]))
	for _, e := range m.entries[residentID] {
		out = append(out, *e)
	}
	return out
}

// OnTick implements ClockListener. Pending entries that have started send
// the resident to their destination; finished entries send them home.
func (m *Routines) OnTick(worldTime time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, residentID := range ids {
		for _, e := range m.entries[residentID] {
			end := e.StartTime.Add(e.Duration)

			switch e.Status {
			case "pending":
				if !worldTime.Before(e.StartTime) && worldTime.Before(end) {
					r, ok := m.atlas.Get(residentID)
					if !ok {
						m.logger.Warn("routine for unplaced resident",
							zap.String("resident", residentID),
							zap.String("title", e.Title))
						e.Status = "done"
						continue
					}
					e.home = r.Position
					if err := m.atlas.Move(residentID, e.Destination); err != nil {
						m.logger.Warn("routine move failed",
							zap.String("resident", residentID),
							zap.Error(err))
						e.Status = "done"
						continue
					}
					e.Status = "active"
					m.logger.Debug("routine started",
						zap.String("resident", residentID),
						zap.String("title", e.Title))
				} else if !worldTime.Before(end) {
					e.Status = "done"
				}
			case "active":
				if !worldTime.Before(end) {
					e.Status = "done"
					if err := m.atlas.Move(residentID, e.home); err != nil {
						m.logger.Warn("routine return failed",
							zap.String("resident", residentID),
							zap.Error(err))
					}
					m.logger.Debug("routine completed",
						zap.String("resident", residentID),
						zap.String("title", e.Title))
				}
			}
		}
	}
}
