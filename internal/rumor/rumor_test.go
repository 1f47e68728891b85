package rumor

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/nidhogg/hearsay/internal/memory"
	"github.com/nidhogg/hearsay/internal/sim"
)

var t0 = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func newRumor(content string, confidence float64) *Rumor {
	return New(content, "guard_001", memory.Point{X: 10, Y: 20}, confidence, 0.05, t0, Lineage{
		MemoryID:     "mem-1",
		Participants: []string{"unknown_thief", "merchant_002"},
		Tags:         []string{"crime"},
	})
}

func TestNewRumorHeardByOriginator(t *testing.T) {
	r := newRumor("a", 1.4)
	if !r.HeardBy.Has("guard_001") || len(r.HeardBy) != 1 {
		t.Errorf("heard-by: %v", r.HeardBy.Sorted())
	}
	if r.Confidence != 1 {
		t.Errorf("confidence not clamped: %f", r.Confidence)
	}
	if r.OriginalContent != "a" {
		t.Errorf("original content: %q", r.OriginalContent)
	}
}

func TestSpreadForcedMutation(t *testing.T) {
	r := newRumor("guard saw a small fire", 0.5)
	child := r.Spread("guard_001", "merchant_002", 1.0, sim.NewSequence(0), DefaultMutations())

	if child.Content == r.Content {
		t.Fatalf("content unchanged: %q", child.Content)
	}
	if child.Confidence != 0.45 {
		t.Errorf("confidence: got %v, want 0.45", child.Confidence)
	}
	if child.Generation != 1 {
		t.Errorf("generation: got %d, want 1", child.Generation)
	}
	if child.ID == r.ID {
		t.Error("child reused parent id")
	}
	if !child.HeardBy.Has("guard_001") || !child.HeardBy.Has("merchant_002") {
		t.Errorf("child heard-by: %v", child.HeardBy.Sorted())
	}
	if r.HeardBy.Has("merchant_002") {
		t.Error("spread mutated the parent heard-by set")
	}
	if !child.CreatedAt.Equal(r.CreatedAt) || child.OriginatorID != r.OriginatorID || child.Origin != r.Origin {
		t.Error("child lost originator, origin or creation time")
	}
	if child.OriginalContent != r.OriginalContent {
		t.Errorf("original content drifted: %q", child.OriginalContent)
	}
}

func TestSpreadWithoutMutation(t *testing.T) {
	r := newRumor("guard saw a small fire", 0.5)
	child := r.Spread("guard_001", "merchant_002", 0.3, sim.NewSequence(0.99), DefaultMutations())
	if child.Content != r.Content || child.Confidence != 0.5 {
		t.Errorf("unexpected mutation: %q %f", child.Content, child.Confidence)
	}
}

func TestSpreadMutationPenaltyWithoutTextChange(t *testing.T) {
	r := newRumor("quiet night at the inn", 0.8)
	child := r.Spread("guard_001", "innkeeper_004", 1.0, sim.NewSequence(0), DefaultMutations())
	if child.Content != r.Content {
		t.Errorf("content changed: %q", child.Content)
	}
	if math.Abs(child.Confidence-0.72) > 1e-12 {
		t.Errorf("confidence: got %f, want 0.72", child.Confidence)
	}
}

func TestMutationsPickOnlyChangingRules(t *testing.T) {
	table := DefaultMutations()
	// only "few->many" changes this text, whatever the draw
	for _, v := range []float64{0, 0.5, 0.99} {
		out, name := table.Apply("a few coins", MutationContext{}, sim.NewSequence(v))
		if out != "a many coins" || name != "few->many" {
			t.Errorf("draw %f: got %q via %q", v, out, name)
		}
	}
}

func TestMutationsRegister(t *testing.T) {
	table := NewMutations()
	table.Register(Mutation{Name: "nil"})
	if table.Len() != 0 {
		t.Fatal("registered a mutation without transform")
	}
	table.Register(Mutation{Name: "shout", Transform: func(s string, mc MutationContext) string {
		return strings.ToUpper(s) + " said " + mc.SpreaderID
	}})
	out, _ := table.Apply("hi", MutationContext{SpreaderID: "bob"}, sim.NewSequence(0))
	if out != "HI said bob" {
		t.Errorf("got %q", out)
	}
}

func TestTransform(t *testing.T) {
	rules := DefaultContextRules()

	r := newRumor("an argument broke out", 1)
	r.Transform(nil, "tension", rules)
	if !strings.Contains(r.Content, "violent fight") {
		t.Errorf("tension: %q", r.Content)
	}

	r = newRumor("he took the bread and left", 1)
	r.Transform([]string{"crime"}, "", rules)
	if r.Content != "he stole the bread and fled" {
		t.Errorf("crime: %q", r.Content)
	}

	r = newRumor("they met at dusk", 1)
	r.Transform([]string{"crime", "romance"}, "", rules)
	if r.Content != "they met at dusk" {
		t.Errorf("crime should take precedence over romance: %q", r.Content)
	}
	r.Transform([]string{"romance"}, "", rules)
	if r.Content != "they secretly met at dusk" {
		t.Errorf("romance: %q", r.Content)
	}

	r = newRumor("she stole the show", 1)
	r.Transform(nil, "", rules)
	if r.Content != "she stole the show" {
		t.Errorf("empty context rewrote content: %q", r.Content)
	}
	r.Transform(nil, "celebration", rules)
	if r.Content != "she generously gave the show" {
		t.Errorf("celebration: %q", r.Content)
	}
}

func TestRumorDecayAndExpiry(t *testing.T) {
	r := newRumor("a", 1)
	r.DecayRate = 0.1
	r.Decay(0)
	if r.Confidence != 1 {
		t.Errorf("zero elapsed changed confidence: %f", r.Confidence)
	}
	r.Decay(10)
	if math.Abs(r.Confidence-math.Exp(-1)) > 1e-6 {
		t.Errorf("got %f, want %f", r.Confidence, math.Exp(-1))
	}
	if r.IsExpired(0.05) {
		t.Error("expired too early")
	}
	if !r.IsExpired(0.5) {
		t.Error("should be expired under 0.5")
	}
	if age := r.Age(t0.Add(36 * time.Hour)); age != 36 {
		t.Errorf("age: got %f, want 36", age)
	}
}

func TestMentions(t *testing.T) {
	r := newRumor("I heard that noble_005 met strangers", 1)
	for _, id := range []string{"noble_005", "guard_001", "unknown_thief"} {
		if !r.Mentions(id) {
			t.Errorf("expected mention of %s", id)
		}
	}
	if r.Mentions("farmer_003") || r.Mentions("") {
		t.Error("unexpected mention")
	}
}

func TestCloneIsDeep(t *testing.T) {
	r := newRumor("a", 1)
	c := r.Clone()
	c.HeardBy.Add("eve")
	c.Lineage.Participants[0] = "changed"
	if r.HeardBy.Has("eve") || r.Lineage.Participants[0] != "unknown_thief" {
		t.Error("clone shares state with original")
	}
}
