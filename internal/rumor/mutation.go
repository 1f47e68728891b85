package rumor

import (
	"strings"
	"sync"

	"github.com/nidhogg/hearsay/internal/sim"
)

// MutationContext describes the hand-off a mutation happens during.
type MutationContext struct {
	SpreaderID string
	TargetID   string
	Generation int // generation of the rumor being produced
}

// TransformFunc rewrites rumor content.
type TransformFunc func(content string, mc MutationContext) string

// Mutation is a named content transform applied while a rumor spreads.
type Mutation struct {
	Name      string
	Transform TransformFunc
}

// Replace builds a mutation swapping every occurrence of old for repl.
func Replace(old, repl string) Mutation {
	return Mutation{
		Name: old + "->" + repl,
		Transform: func(content string, _ MutationContext) string {
			return strings.ReplaceAll(content, old, repl)
		},
	}
}

// Mutations is a registrable table of spread-time transforms.
type Mutations struct {
	mu    sync.RWMutex
	table []Mutation
}

// NewMutations creates a table holding the given mutations.
func NewMutations(ms ...Mutation) *Mutations {
	t := &Mutations{}
	for _, m := range ms {
		t.Register(m)
	}
	return t
}

// DefaultMutations returns the stock table of exaggerations and
// misattributions.
func DefaultMutations() *Mutations {
	return NewMutations(
		Replace("saw", "heard"),
		Replace("heard", "saw"),
		Replace("might", "definitely"),
		Replace("someone", "everyone"),
		Replace("small", "large"),
		Replace("few", "many"),
		Replace("whispered", "shouted"),
		Replace("maybe", "certainly"),
	)
}

// Register adds a mutation. Mutations without a transform are ignored.
func (t *Mutations) Register(m Mutation) {
	if m.Transform == nil {
		return
	}
	t.mu.Lock()
	t.table = append(t.table, m)
	t.mu.Unlock()
}

// Len returns the number of registered mutations.
func (t *Mutations) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.table)
}

// Apply picks exactly one mutation uniformly at random and applies it.
// The draw is over the mutations that would change content; when none
// would, it falls back to the whole table, leaving content unchanged.
// The chosen mutation's name is returned, or "" for an empty table.
func (t *Mutations) Apply(content string, mc MutationContext, rng sim.RandomSource) (string, string) {
	t.mu.RLock()
	table := make([]Mutation, len(t.table))
	copy(table, t.table)
	t.mu.RUnlock()

	if len(table) == 0 {
		return content, ""
	}

	type candidate struct {
		name string
		out  string
	}
	var changing []candidate
	for _, m := range table {
		if out := m.Transform(content, mc); out != content {
			changing = append(changing, candidate{m.Name, out})
		}
	}
	if len(changing) > 0 {
		c := changing[rng.Intn(len(changing))]
		return c.out, c.name
	}
	m := table[rng.Intn(len(table))]
	return content, m.Name
}
