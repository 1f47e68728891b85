// Package rumor spreads, mutates and decays secondhand accounts of NPC
// memories across a social and spatial network.
package rumor

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nidhogg/hearsay/internal/memory"
	"github.com/nidhogg/hearsay/internal/sim"
)

// MutationPenalty multiplies confidence whenever spread mutates a rumor.
const MutationPenalty = 0.9

// Lineage is a by-value reference to the memory a rumor was seeded from.
type Lineage struct {
	MemoryID     string   `json:"memory_id"`
	Participants []string `json:"participants"`
	Tags         []string `json:"tags"`
}

// Rumor is a gossip unit held by every entity in HeardBy.
type Rumor struct {
	ID              string       `json:"id"`
	Content         string       `json:"content"`
	OriginalContent string       `json:"original_content"`
	OriginatorID    string       `json:"originator_id"`
	Origin          memory.Point `json:"origin"`
	Confidence      float64      `json:"confidence"`
	DecayRate       float64      `json:"decay_rate"`
	CreatedAt       time.Time    `json:"created_at"`
	Generation      int          `json:"generation"`
	HeardBy         memory.Set   `json:"heard_by"`
	Lineage         Lineage      `json:"lineage"`
}

// New creates a first-generation rumor heard only by its originator.
func New(content, originatorID string, origin memory.Point, confidence, decayRate float64, createdAt time.Time, lineage Lineage) *Rumor {
	return &Rumor{
		ID:              uuid.New().String(),
		Content:         content,
		OriginalContent: content,
		OriginatorID:    originatorID,
		Origin:          origin,
		Confidence:      memory.Clamp01(confidence),
		DecayRate:       decayRate,
		CreatedAt:       createdAt,
		HeardBy:         memory.NewSet(originatorID),
		Lineage:         lineage.clone(),
	}
}

// Spread produces the version of r that targetID hears from spreaderID.
// With probability mutationChance exactly one mutation from table is
// applied and confidence drops by MutationPenalty. The child keeps the
// originator, origin, lineage and creation time of r.
func (r *Rumor) Spread(spreaderID, targetID string, mutationChance float64, rng sim.RandomSource, table *Mutations) *Rumor {
	child := r.Clone()
	child.ID = uuid.New().String()
	child.Generation = r.Generation + 1
	child.HeardBy.Add(targetID)

	if rng.Float64() < mutationChance {
		if table != nil {
			child.Content, _ = table.Apply(r.Content, MutationContext{
				SpreaderID: spreaderID,
				TargetID:   targetID,
				Generation: child.Generation,
			}, rng)
		}
		child.Confidence = memory.Clamp01(child.Confidence * MutationPenalty)
	}
	return child
}

// Decay reduces confidence exponentially over elapsedHours at the rumor's
// own decay rate.
func (r *Rumor) Decay(elapsedHours float64) {
	r.Confidence = memory.DecayValue(r.Confidence, r.DecayRate, elapsedHours)
}

// Transform rewrites the content in place for the given narrative context.
// It does not spread.
func (r *Rumor) Transform(contextTags []string, environment string, rules *ContextRules) {
	if rules == nil {
		return
	}
	r.Content = rules.Apply(r.Content, contextTags, environment)
}

// IsExpired reports whether confidence has fallen below minConfidence.
func (r *Rumor) IsExpired(minConfidence float64) bool {
	return r.Confidence < minConfidence
}

// Age returns hours since creation, as of now.
func (r *Rumor) Age(now time.Time) float64 {
	return sim.HoursBetween(r.CreatedAt, now)
}

// Mentions reports whether id appears in the content, originated the
// rumor, or took part in the seeding memory.
func (r *Rumor) Mentions(id string) bool {
	if id == "" {
		return false
	}
	if r.OriginatorID == id || strings.Contains(r.Content, id) {
		return true
	}
	for _, p := range r.Lineage.Participants {
		if p == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (r *Rumor) Clone() *Rumor {
	c := *r
	c.HeardBy = r.HeardBy.Clone()
	c.Lineage = r.Lineage.clone()
	return &c
}

func (l Lineage) clone() Lineage {
	return Lineage{
		MemoryID:     l.MemoryID,
		Participants: append([]string(nil), l.Participants...),
		Tags:         append([]string(nil), l.Tags...),
	}
}
