//go:build integration

package world

import (
	"context"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/nidhogg/hearsay/internal/rumor"
	tcneo4j "github.com/testcontainers/testcontainers-go/modules/neo4j"
	"go.uber.org/zap"
)

func TestRelationGraphSocialEdges(t *testing.T) {
	ctx := context.Background()
	container, err := tcneo4j.Run(ctx, "neo4j:5-community", tcneo4j.WithoutAuthentication())
	if err != nil {
		t.Fatalf("start neo4j: %v", err)
	}
	defer container.Terminate(ctx)

	uri, err := container.BoltUrl(ctx)
	if err != nil {
		t.Fatalf("bolt url: %v", err)
	}
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.NoAuth())
	if err != nil {
		t.Fatalf("driver: %v", err)
	}
	defer driver.Close(ctx)

	g := NewRelationGraph(driver, 0.5, 0.2, zap.NewNop())
	for _, rel := range []*Relation{
		{FromID: "guard_001", ToID: "merchant_002", Type: RelationFriend, Strength: 0.8},
		{FromID: "guard_001", ToID: "innkeeper_004", Type: RelationNeighbor, Strength: 0.6},
		{FromID: "noble_005", ToID: "innkeeper_004", Type: RelationRival, Strength: 0.1},
	} {
		if err := g.SetRelation(ctx, rel); err != nil {
			t.Fatalf("set relation: %v", err)
		}
	}

	edges, err := g.SocialEdges(ctx)
	if err != nil {
		t.Fatalf("social edges: %v", err)
	}
	if got := edges["guard_001"]; len(got) != 2 || got[0] != "innkeeper_004" || got[1] != "merchant_002" {
		t.Errorf("guard edges: %v", got)
	}
	if _, ok := edges["noble_005"]; ok {
		t.Error("weak tie should carry no gossip")
	}

	if err := g.RecordInteraction(ctx, "guard_001", "merchant_002", RelationFriend, "shared a drink", 0.5); err != nil {
		t.Fatalf("record interaction: %v", err)
	}
	rels, err := g.GetRelations(ctx, "guard_001")
	if err != nil {
		t.Fatalf("get relations: %v", err)
	}
	if len(rels) != 2 || rels[1].Strength != 1.0 || len(rels[1].History) != 1 {
		t.Errorf("relations: %+v %+v", rels[0], rels[1])
	}

	// five hand-offs at 0.05 each lift a new gossip tie past the 0.2 floor
	told := rumor.Rumor{Content: "the mayor hid the grain"}
	for i := 0; i < 5; i++ {
		g.OnRumorSpread("merchant_002", "noble_005", told)
	}
	rels, err = g.GetRelations(ctx, "merchant_002")
	if err != nil {
		t.Fatalf("get gossip relations: %v", err)
	}
	if len(rels) != 1 || rels[0].Type != RelationGossip || len(rels[0].History) != 5 || rels[0].History[0] != told.Content {
		t.Fatalf("gossip relations: %+v", rels)
	}
	edges, err = g.SocialEdges(ctx)
	if err != nil {
		t.Fatalf("social edges after gossip: %v", err)
	}
	if got := edges["merchant_002"]; len(got) != 1 || got[0] != "noble_005" {
		t.Errorf("merchant edges: %v", got)
	}

	// decay 0.5 per tick drops the neighbor tie below 0.2
	g.OnTick(t0)
	edges, err = g.SocialEdges(ctx)
	if err != nil {
		t.Fatalf("social edges after decay: %v", err)
	}
	if got := edges["guard_001"]; len(got) != 1 || got[0] != "merchant_002" {
		t.Errorf("guard edges after decay: %v", got)
	}
}
