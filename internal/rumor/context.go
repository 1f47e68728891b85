package rumor

import (
	"strings"
	"sync"
)

// Rewrite is a literal phrase substitution.
type Rewrite struct {
	Old string
	New string
}

type tagRule struct {
	tag      string
	rewrites []Rewrite
}

// ContextRules drive one-shot rewrites from ambient narrative context.
// Environment rewrites apply for an exact environment match; then the
// first registered tag present in the context applies its rewrites.
type ContextRules struct {
	mu          sync.RWMutex
	environment map[string][]Rewrite
	tags        []tagRule
}

// NewContextRules creates an empty rule set.
func NewContextRules() *ContextRules {
	return &ContextRules{environment: make(map[string][]Rewrite)}
}

// DefaultContextRules returns the stock rules: tension escalates,
// celebration softens, crime hardens, romance scandalizes.
func DefaultContextRules() *ContextRules {
	c := NewContextRules()
	c.OnEnvironment("tension",
		Rewrite{"argument", "violent fight"},
		Rewrite{"disagreement", "heated argument"})
	c.OnEnvironment("celebration",
		Rewrite{"stole", "generously gave"},
		Rewrite{"conflict", "friendly competition"})
	c.OnTag("crime",
		Rewrite{"took", "stole"},
		Rewrite{"left", "fled"})
	c.OnTag("romance",
		Rewrite{"talked to", "was seen with"},
		Rewrite{"met", "secretly met"})
	return c
}

// OnEnvironment appends rewrites for an environmental factor.
func (c *ContextRules) OnEnvironment(factor string, rw ...Rewrite) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.environment[factor] = append(c.environment[factor], rw...)
}

// OnTag appends rewrites for a context tag. Tags are consulted in the order
// they were first registered.
func (c *ContextRules) OnTag(tag string, rw ...Rewrite) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.tags {
		if c.tags[i].tag == tag {
			c.tags[i].rewrites = append(c.tags[i].rewrites, rw...)
			return
		}
	}
	c.tags = append(c.tags, tagRule{tag: tag, rewrites: rw})
}

// Apply rewrites content for the given context. With neither tags nor an
// environment the content is returned untouched.
func (c *ContextRules) Apply(content string, tags []string, environment string) string {
	if len(tags) == 0 && environment == "" {
		return content
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	if environment != "" {
		content = applyRewrites(content, c.environment[environment])
	}
	if len(tags) == 0 {
		return content
	}
	have := make(map[string]bool, len(tags))
	for _, t := range tags {
		have[t] = true
	}
	for _, rule := range c.tags {
		if have[rule.tag] {
			return applyRewrites(content, rule.rewrites)
		}
	}
	return content
}

func applyRewrites(content string, rws []Rewrite) string {
	for _, rw := range rws {
		if rw.Old == "" {
			continue
		}
		content = strings.ReplaceAll(content, rw.Old, rw.New)
	}
	return content
}
