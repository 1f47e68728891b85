package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/nidhogg/hearsay/internal/memory"
	"github.com/nidhogg/hearsay/internal/rumor"
)

// listRumors returns the whole active set, or the rumors matching any of
// the comma-separated topic keywords.
func (h *Handler) listRumors(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if !q.Has("topic") {
		writeJSON(w, http.StatusOK, h.network.Active())
		return
	}
	keywords := splitList(q.Get("topic"))
	if len(keywords) == 0 {
		writeError(w, http.StatusBadRequest, "topic must name at least one keyword")
		return
	}
	writeJSON(w, http.StatusOK, h.network.ByTopic(keywords))
}

func (h *Handler) rumorsByActor(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.network.ByActor(chi.URLParam(r, "id")))
}

func (h *Handler) rumorsNear(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("x") == "" || q.Get("y") == "" {
		writeError(w, http.StatusBadRequest, "x and y are required")
		return
	}
	x, ok := floatParam(w, r, "x", 0)
	if !ok {
		return
	}
	y, ok := floatParam(w, r, "y", 0)
	if !ok {
		return
	}
	radius, ok := floatParam(w, r, "radius", 50)
	if !ok {
		return
	}
	p := memory.Point{X: x, Y: y}
	if !p.Valid() || radius < 0 || math.IsNaN(radius) {
		writeError(w, http.StatusBadRequest, "invalid location or radius")
		return
	}
	writeJSON(w, http.StatusOK, h.network.ByLocation(p, radius))
}

func (h *Handler) rumorStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.network.Stats())
}

type rewriteRequest struct {
	Tags        []string `json:"tags"`
	Environment string   `json:"environment"`
}

func (h *Handler) rewriteRumor(w http.ResponseWriter, r *http.Request) {
	var req rewriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := h.network.Rewrite(chi.URLParam(r, "id"), req.Tags, req.Environment)
	if err != nil {
		if errors.Is(err, rumor.ErrUnknownEntity) {
			writeError(w, http.StatusNotFound, "rumor not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}
