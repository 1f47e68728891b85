package rumor

import (
	"sort"
	"strings"

	"github.com/nidhogg/hearsay/internal/memory"
)

// NetworkStats describes the active set as a whole.
type NetworkStats struct {
	Total          int            `json:"total"`
	AvgConfidence  float64        `json:"avg_confidence"`
	AvgGeneration  float64        `json:"avg_generation"`
	OldestAgeHours float64        `json:"oldest_age_hours"`
	MostSpread     *SpreadSummary `json:"most_spread,omitempty"`
}

// SpreadSummary identifies the furthest-travelled rumor.
type SpreadSummary struct {
	ID         string  `json:"id"`
	Content    string  `json:"content"`
	Generation int     `json:"generation"`
	Confidence float64 `json:"confidence"`
}

// ByTopic returns rumors whose content contains any keyword, ignoring
// case, most confident first. Blank keywords match nothing.
func (n *Network) ByTopic(keywords []string) []Rumor {
	var needles []string
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			needles = append(needles, k)
		}
	}
	if len(needles) == 0 {
		return []Rumor{}
	}
	return n.filter(func(r *Rumor) bool {
		content := strings.ToLower(r.Content)
		for _, k := range needles {
			if strings.Contains(content, k) {
				return true
			}
		}
		return false
	})
}

// ByActor returns rumors mentioning id in their content, originated by id,
// or seeded from a memory id took part in, most confident first.
func (n *Network) ByActor(id string) []Rumor {
	if id == "" {
		return []Rumor{}
	}
	return n.filter(func(r *Rumor) bool { return r.Mentions(id) })
}

// ByLocation returns rumors that originated within radius of p, most
// confident first.
func (n *Network) ByLocation(p memory.Point, radius float64) []Rumor {
	if !p.Valid() || radius < 0 {
		return []Rumor{}
	}
	return n.filter(func(r *Rumor) bool { return p.Within(r.Origin, radius) })
}

// filter is a linear scan over the active set; ties keep insertion order.
func (n *Network) filter(match func(*Rumor) bool) []Rumor {
	n.mu.RLock()
	out := make([]Rumor, 0)
	for _, r := range n.active {
		if match(r) {
			out = append(out, *r.Clone())
		}
	}
	n.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	return out
}

// Stats summarizes the active set.
func (n *Network) Stats() NetworkStats {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if len(n.active) == 0 {
		return NetworkStats{}
	}

	var conf, gen float64
	oldest, most := n.active[0], n.active[0]
	for _, r := range n.active {
		conf += r.Confidence
		gen += float64(r.Generation)
		if r.CreatedAt.Before(oldest.CreatedAt) {
			oldest = r
		}
		if r.Generation > most.Generation {
			most = r
		}
	}
	total := float64(len(n.active))
	return NetworkStats{
		Total:          len(n.active),
		AvgConfidence:  conf / total,
		AvgGeneration:  gen / total,
		OldestAgeHours: oldest.Age(n.clock.Now()),
		MostSpread: &SpreadSummary{
			ID:         most.ID,
			Content:    most.Content,
			Generation: most.Generation,
			Confidence: most.Confidence,
		},
	}
}
