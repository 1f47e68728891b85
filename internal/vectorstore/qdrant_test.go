package vectorstore

import (
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
)

func TestPayloadConversion(t *testing.T) {
	in := map[string]interface{}{
		"content":    "I heard that the mill burned",
		"confidence": 0.42,
		"generation": 3,
		"ignored":    []string{"not", "supported"},
	}
	pv := toPayload(in)
	if len(pv) != 3 {
		t.Fatalf("expected unsupported values to be dropped, got %d keys", len(pv))
	}
	out := fromPayload(pv)
	if out["content"] != "I heard that the mill burned" {
		t.Errorf("content = %v", out["content"])
	}
	if out["confidence"] != 0.42 {
		t.Errorf("confidence = %v", out["confidence"])
	}
	if out["generation"] != int64(3) {
		t.Errorf("generation = %v (%T)", out["generation"], out["generation"])
	}
}

func TestMatchFilter(t *testing.T) {
	f := matchFilter(map[string]string{"reason": "expired"})
	if len(f.Must) != 1 {
		t.Fatalf("conditions = %d", len(f.Must))
	}
	field := f.Must[0].GetField()
	if field == nil || field.Key != "reason" {
		t.Fatalf("condition = %+v", f.Must[0])
	}
	if kw, ok := field.Match.MatchValue.(*pb.Match_Keyword); !ok || kw.Keyword != "expired" {
		t.Errorf("match = %+v", field.Match)
	}
}
