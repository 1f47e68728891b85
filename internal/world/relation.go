package world

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/nidhogg/hearsay/internal/rumor"
	"go.uber.org/zap"
)

// RelationType categorizes the relationship between two residents.
type RelationType string

const (
	RelationFriend    RelationType = "friend"
	RelationFamily    RelationType = "family"
	RelationGuildmate RelationType = "guildmate"
	RelationNeighbor  RelationType = "neighbor"
	RelationRival     RelationType = "rival"
	RelationGossip    RelationType = "gossip"
)

const (
	gossipBoost  = 0.05
	historyLimit = 20
	summaryRunes = 120
)

// Relation is a directed social tie: From gossips to To.
type Relation struct {
	FromID    string       `json:"from_id"`
	ToID      string       `json:"to_id"`
	Type      RelationType `json:"type"`
	Strength  float64      `json:"strength"` // 0-1
	History   []string     `json:"history"`  // interaction summaries
	UpdatedAt time.Time    `json:"updated_at"`
}

// RelationGraph manages social ties stored in Neo4j and serves them as
// gossip edges.
type RelationGraph struct {
	driver      neo4j.DriverWithContext
	decayRate   float64 // strength decay per tick, e.g. 0.001
	minStrength float64 // ties weaker than this carry no gossip
	logger      *zap.Logger
}

// NewRelationGraph creates a relation graph backed by Neo4j.
func NewRelationGraph(driver neo4j.DriverWithContext, decayRate, minStrength float64, logger *zap.Logger) *RelationGraph {
	return &RelationGraph{
		driver:      driver,
		decayRate:   decayRate,
		minStrength: minStrength,
		logger:      logger,
	}
}

// SetRelation creates or updates a relationship between two residents.
func (g *RelationGraph) SetRelation(ctx context.Context, rel *Relation) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		`MERGE (a:NPC {id: $from})
		 MERGE (b:NPC {id: $to})
		 MERGE (a)-[r:RELATES_TO {type: $type}]->(b)
		 SET r.strength = $strength, r.history = $history, r.updated_at = datetime()`,
		map[string]interface{}{
			"from":     rel.FromID,
			"to":       rel.ToID,
			"type":     string(rel.Type),
			"strength": rel.Strength,
			"history":  rel.History,
		})
	if err != nil {
		return fmt.Errorf("set relation: %w", err)
	}
	return nil
}

// GetRelations returns all outgoing relationships for a resident.
func (g *RelationGraph) GetRelations(ctx context.Context, npcID string) ([]*Relation, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (a:NPC {id: $npcId})-[r:RELATES_TO]->(b:NPC)
		 RETURN b.id, r.type, r.strength, r.history
		 ORDER BY b.id`,
		map[string]interface{}{"npcId": npcID})
	if err != nil {
		return nil, fmt.Errorf("get relations: %w", err)
	}

	var relations []*Relation
	for result.Next(ctx) {
		rec := result.Record()
		toID, _ := rec.Get("b.id")
		relType, _ := rec.Get("r.type")
		strength, _ := rec.Get("r.strength")
		history, _ := rec.Get("r.history")

		to, _ := toID.(string)
		typ, _ := relType.(string)
		s, _ := strength.(float64)
		relations = append(relations, &Relation{
			FromID:   npcID,
			ToID:     to,
			Type:     RelationType(typ),
			Strength: s,
			History:  stringList(history),
		})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("get relations: %w", err)
	}
	return relations, nil
}

// RecordInteraction strengthens a relationship, creating it at zero strength
// first if needed, and appends a history entry. Only the latest entries of
// the history are kept.
func (g *RelationGraph) RecordInteraction(ctx context.Context, fromID, toID string, relType RelationType, summary string, boost float64) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		`MERGE (a:NPC {id: $from})
		 MERGE (b:NPC {id: $to})
		 MERGE (a)-[r:RELATES_TO {type: $type}]->(b)
		 ON CREATE SET r.strength = 0.0, r.history = []
		 SET r.strength = CASE WHEN r.strength + $boost > 1.0 THEN 1.0 ELSE r.strength + $boost END,
		     r.history = (coalesce(r.history, []) + $summary)[-$limit..],
		     r.updated_at = datetime()`,
		map[string]interface{}{
			"from":    fromID,
			"to":      toID,
			"type":    string(relType),
			"boost":   boost,
			"summary": summary,
			"limit":   historyLimit,
		})
	if err != nil {
		return fmt.Errorf("record interaction: %w", err)
	}
	return nil
}

// OnRumorSpread implements rumor.SpreadListener: telling someone a rumor
// strengthens the teller's gossip tie to them.
func (g *RelationGraph) OnRumorSpread(from, to string, child rumor.Rumor) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	summary := child.Content
	if r := []rune(summary); len(r) > summaryRunes {
		summary = string(r[:summaryRunes])
	}
	if err := g.RecordInteraction(ctx, from, to, RelationGossip, summary, gossipBoost); err != nil {
		g.logger.Warn("failed to record gossip",
			zap.String("from", from),
			zap.String("to", to),
			zap.Error(err))
	}
}

// SocialEdges implements SocialSource: every resident's outgoing ties at or
// above the minimum strength.
func (g *RelationGraph) SocialEdges(ctx context.Context) (map[string][]string, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (a:NPC)-[r:RELATES_TO]->(b:NPC)
		 WHERE r.strength >= $min
		 RETURN DISTINCT a.id AS from, b.id AS to
		 ORDER BY from, to`,
		map[string]interface{}{"min": g.minStrength})
	if err != nil {
		return nil, fmt.Errorf("load social edges: %w", err)
	}

	edges := make(map[string][]string)
	for result.Next(ctx) {
		rec := result.Record()
		from, _ := rec.Get("from")
		to, _ := rec.Get("to")
		f, ok1 := from.(string)
		t, ok2 := to.(string)
		if !ok1 || !ok2 || f == "" || t == "" {
			continue
		}
		edges[f] = append(edges[f], t)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("load social edges: %w", err)
	}
	return edges, nil
}

// OnTick implements ClockListener. Decays all relationship strengths over time.
func (g *RelationGraph) OnTick(worldTime time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		`MATCH ()-[r:RELATES_TO]->()
		 WHERE r.strength > 0
		 SET r.strength = CASE WHEN r.strength - $decay < 0 THEN 0 ELSE r.strength - $decay END`,
		map[string]interface{}{"decay": g.decayRate})
	if err != nil {
		g.logger.Warn("relation decay tick failed", zap.Error(err))
	}
}

func stringList(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
