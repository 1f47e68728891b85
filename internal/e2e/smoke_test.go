//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

var baseURL string

func TestMain(m *testing.M) {
	baseURL = os.Getenv("HEARSAY_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	// Wait for server readiness (up to 30s)
	ready := false
	for i := 0; i < 30; i++ {
		resp, err := http.Get(baseURL + "/api/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				ready = true
				break
			}
		}
		time.Sleep(1 * time.Second)
	}
	if !ready {
		fmt.Fprintf(os.Stderr, "server at %s not ready after 30s\n", baseURL)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

func call(t *testing.T, method, path string, body interface{}, out interface{}) int {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, baseURL+path, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

type rumorView struct {
	ID         string   `json:"id"`
	Content    string   `json:"content"`
	Confidence float64  `json:"confidence"`
	Generation int      `json:"generation"`
	HeardBy    []string `json:"heard_by"`
}

// TestGossipSpreadsThroughTown places a small town, gives one resident a
// vivid memory, and forces daily passes until the story reaches someone
// else. Seeding and spreading are random, so the test allows many days.
func TestGossipSpreadsThroughTown(t *testing.T) {
	suffix := fmt.Sprintf("%d", time.Now().UnixNano())
	town := map[string][2]float64{
		"smoke_guard_" + suffix:    {0, 0},
		"smoke_merchant_" + suffix: {5, 0},
		"smoke_baker_" + suffix:    {0, 5},
	}
	for id, pos := range town {
		if code := call(t, "PUT", "/api/entities/"+id,
			map[string]interface{}{"x": pos[0], "y": pos[1], "faction": "smoke"}, nil); code != http.StatusOK {
			t.Fatalf("place %s: status %d", id, code)
		}
	}
	defer func() {
		for id := range town {
			call(t, "DELETE", "/api/entities/"+id, nil, nil)
		}
	}()

	witness := "smoke_guard_" + suffix
	marker := "smokestack" + suffix
	for _, what := range []string{"collapsed at dawn", "was struck by lightning", "caught fire"} {
		if code := call(t, "POST", "/api/entities/"+witness+"/memories", map[string]interface{}{
			"description": "the " + marker + " " + what,
			"x":           0,
			"y":           0,
			"tags":        []string{"witnessed"},
			"strength":    1.0,
		}, nil); code != http.StatusCreated {
			t.Fatalf("add memory: status %d", code)
		}
	}

	for day := 0; day < 200; day++ {
		if code := call(t, "POST", "/api/tick", nil, nil); code != http.StatusOK {
			t.Fatalf("tick: status %d", code)
		}
		var rumors []rumorView
		call(t, "GET", "/api/rumors?topic="+marker, nil, &rumors)
		for _, r := range rumors {
			if len(r.HeardBy) > 1 {
				t.Logf("story reached %d residents after %d days", len(r.HeardBy), day+1)
				return
			}
		}
	}
	t.Fatal("rumor never spread within 200 days")
}

func TestMalformedQueries(t *testing.T) {
	for _, path := range []string{
		"/api/rumors/near?x=north&y=1",
		"/api/rumors?topic=,",
		"/api/entities/nobody/memories?max=-1",
	} {
		if code := call(t, "GET", path, nil, nil); code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, code)
		}
	}

	var none []interface{}
	if code := call(t, "GET", "/api/entities/nobody/memories", nil, &none); code != http.StatusOK || len(none) != 0 {
		t.Errorf("unknown entity recall: status %d, %d items", code, len(none))
	}
}
