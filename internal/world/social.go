package world

import (
	"context"
	"sync"

	"github.com/nidhogg/hearsay/internal/memory"
)

// SocialSource supplies the who-talks-to-whom graph for a rumor tick.
type SocialSource interface {
	SocialEdges(ctx context.Context) (map[string][]string, error)
}

// BuildSocialEdges links residents sharing a faction, and residents within
// radius of each other. Adjacency lists are sorted and never contain the
// resident itself.
func BuildSocialEdges(residents []Resident, radius float64) map[string][]string {
	sets := make(map[string]memory.Set, len(residents))
	for _, r := range residents {
		sets[r.ID] = make(memory.Set)
	}
	for i, a := range residents {
		for _, b := range residents[i+1:] {
			if a.ID == b.ID {
				continue
			}
			sameFaction := a.Faction != "" && a.Faction == b.Faction
			if sameFaction || (radius > 0 && a.Position.Within(b.Position, radius)) {
				sets[a.ID].Add(b.ID)
				sets[b.ID].Add(a.ID)
			}
		}
	}
	edges := make(map[string][]string, len(sets))
	for id, s := range sets {
		if len(s) > 0 {
			edges[id] = s.Sorted()
		}
	}
	return edges
}

// StaticSocial is an in-memory social graph.
type StaticSocial struct {
	edges map[string]memory.Set
	mu    sync.RWMutex
}

// NewStaticSocial creates a graph seeded with edges.
func NewStaticSocial(edges map[string][]string) *StaticSocial {
	s := &StaticSocial{edges: make(map[string]memory.Set)}
	for from, tos := range edges {
		for _, to := range tos {
			s.Link(from, to)
		}
	}
	return s
}

// Link adds a directed edge.
func (s *StaticSocial) Link(from, to string) {
	if from == "" || to == "" || from == to {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.edges[from] == nil {
		s.edges[from] = make(memory.Set)
	}
	s.edges[from].Add(to)
}

// SocialEdges implements SocialSource.
func (s *StaticSocial) SocialEdges(context.Context) (map[string][]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]string, len(s.edges))
	for from, tos := range s.edges {
		out[from] = tos.Sorted()
	}
	return out, nil
}

// ProximitySocial derives the social graph from the atlas at tick time.
type ProximitySocial struct {
	atlas  *Atlas
	radius float64
}

// NewProximitySocial creates a SocialSource over atlas factions and
// positions.
func NewProximitySocial(atlas *Atlas, radius float64) *ProximitySocial {
	return &ProximitySocial{atlas: atlas, radius: radius}
}

// SocialEdges implements SocialSource.
func (p *ProximitySocial) SocialEdges(context.Context) (map[string][]string, error) {
	return BuildSocialEdges(p.atlas.Residents(), p.radius), nil
}

// MergedSocial unions several sources; a failing source is skipped.
type MergedSocial []SocialSource

// SocialEdges implements SocialSource. It fails only when every source does.
func (m MergedSocial) SocialEdges(ctx context.Context) (map[string][]string, error) {
	union := make(map[string]memory.Set)
	var lastErr error
	ok := 0
	for _, src := range m {
		edges, err := src.SocialEdges(ctx)
		if err != nil {
			lastErr = err
			continue
		}
		ok++
		for from, tos := range edges {
			if union[from] == nil {
				union[from] = make(memory.Set)
			}
			for _, to := range tos {
				union[from].Add(to)
			}
		}
	}
	if ok == 0 && lastErr != nil {
		return nil, lastErr
	}
	out := make(map[string][]string, len(union))
	for from, tos := range union {
		out[from] = tos.Sorted()
	}
	return out, nil
}
