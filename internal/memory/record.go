package memory

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidInput rejects malformed coordinates or empty ids.
var ErrInvalidInput = errors.New("invalid input")

// Record is a single perceived event. Everything but Strength is fixed at
// creation; Strength only moves down, through Decay.
type Record struct {
	ID           string
	Description  string
	Location     Point
	Participants Set
	Tags         Set
	CreatedAt    time.Time
	strength     float64
}

// Snapshot is the read-only projection of a Record handed to consumers.
type Snapshot struct {
	ID           string    `json:"id"`
	Description  string    `json:"description"`
	Location     Point     `json:"location"`
	Participants []string  `json:"participants"`
	Tags         []string  `json:"tags"`
	Strength     float64   `json:"strength"`
	CreatedAt    time.Time `json:"created_at"`
}

// Recalled pairs a snapshot with the confidence it was recalled at.
type Recalled struct {
	Memory     Snapshot `json:"memory"`
	Confidence float64  `json:"confidence"`
}

// NewRecord creates a record stamped at createdAt with a fresh id.
// Strength is clamped to [0,1].
func NewRecord(description string, location Point, participants, tags []string, strength float64, createdAt time.Time) (*Record, error) {
	if !location.Valid() {
		return nil, ErrInvalidInput
	}
	return &Record{
		ID:           uuid.New().String(),
		Description:  description,
		Location:     location,
		Participants: NewSet(participants...),
		Tags:         NewSet(tags...),
		CreatedAt:    createdAt,
		strength:     Clamp01(strength),
	}, nil
}

// FromSnapshot rebuilds a record, e.g. after loading it from storage.
func FromSnapshot(s Snapshot) (*Record, error) {
	if s.ID == "" || !s.Location.Valid() {
		return nil, ErrInvalidInput
	}
	return &Record{
		ID:           s.ID,
		Description:  s.Description,
		Location:     s.Location,
		Participants: NewSet(s.Participants...),
		Tags:         NewSet(s.Tags...),
		CreatedAt:    s.CreatedAt,
		strength:     Clamp01(s.Strength),
	}, nil
}

// Strength returns the current strength.
func (r *Record) Strength() float64 { return r.strength }

// HasTag reports whether the record carries tag.
func (r *Record) HasTag(tag string) bool { return r.Tags.Has(tag) }

// Decay applies exponential decay for the given elapsed hours.
func (r *Record) Decay(elapsedHours, rate float64) {
	r.strength = DecayValue(r.strength, rate, elapsedHours)
}

// Recall scores the record against a query. Confidence starts at the
// current strength and is boosted by (1 + overlap ratio) independently for
// tags and participants, clamped to 1 after each boost.
func (r *Record) Recall(queryTags, queryParticipants []string) (Snapshot, float64) {
	confidence := r.strength

	if ratio := overlapRatio(NewSet(queryTags...), r.Tags); ratio > 0 {
		confidence = Clamp01(confidence * (1 + ratio))
	}
	if ratio := overlapRatio(NewSet(queryParticipants...), r.Participants); ratio > 0 {
		confidence = Clamp01(confidence * (1 + ratio))
	}
	return r.Snapshot(), confidence
}

// Snapshot copies the record into its read-only projection.
func (r *Record) Snapshot() Snapshot {
	return Snapshot{
		ID:           r.ID,
		Description:  r.Description,
		Location:     r.Location,
		Participants: r.Participants.Sorted(),
		Tags:         r.Tags.Sorted(),
		Strength:     r.strength,
		CreatedAt:    r.CreatedAt,
	}
}

// HasTag reports whether the snapshot carries tag.
func (s Snapshot) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
