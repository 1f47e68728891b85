package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nidhogg/hearsay/internal/memory"
	"github.com/nidhogg/hearsay/internal/world"
	"go.uber.org/zap"
)

func (h *Handler) listEntities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.atlas.Residents())
}

type placeRequest struct {
	X       *float64 `json:"x"`
	Y       *float64 `json:"y"`
	Faction string   `json:"faction"`
}

// placeEntity puts an entity on the map and joins it to the rumor network
// with its memory store.
func (h *Handler) placeEntity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req placeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.X == nil || req.Y == nil {
		writeError(w, http.StatusBadRequest, "x and y are required")
		return
	}
	if err := h.atlas.Place(id, memory.Point{X: *req.X, Y: *req.Y}, req.Faction); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.network.Register(id, h.bank.Open(id)); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, _ := h.atlas.Get(id)
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) removeEntity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.network.Unregister(id); err != nil {
		writeError(w, http.StatusNotFound, "entity not found")
		return
	}
	h.atlas.Remove(id)
	h.bank.Remove(id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed", "id": id})
}

// recallMemories is a read-only projection: unknown entities recall nothing.
func (h *Handler) recallMemories(w http.ResponseWriter, r *http.Request) {
	st, ok := h.bank.Get(chi.URLParam(r, "id"))
	var def memory.DecayConfig
	if ok {
		def = st.Config()
	}
	minConf, ok2 := floatParam(w, r, "min", def.MinConfidence)
	if !ok2 {
		return
	}
	maxResults, ok2 := intParam(w, r, "max", 0)
	if !ok2 {
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, []memory.Recalled{})
		return
	}
	q := r.URL.Query()
	writeJSON(w, http.StatusOK, st.Recall(splitList(q.Get("tags")), splitList(q.Get("participants")), minConf, maxResults))
}

func (h *Handler) strongestMemories(w http.ResponseWriter, r *http.Request) {
	n, ok := intParam(w, r, "n", 5)
	if !ok {
		return
	}
	st, found := h.bank.Get(chi.URLParam(r, "id"))
	if !found {
		writeJSON(w, http.StatusOK, []memory.Snapshot{})
		return
	}
	writeJSON(w, http.StatusOK, st.Strongest(n))
}

type memoryRequest struct {
	Description  string   `json:"description"`
	X            float64  `json:"x"`
	Y            float64  `json:"y"`
	Participants []string `json:"participants"`
	Tags         []string `json:"tags"`
	Strength     *float64 `json:"strength"`
}

type memoryResponse struct {
	Memory  memory.Snapshot `json:"memory"`
	Evicted int             `json:"evicted"`
}

// addMemory records an event the entity perceived, stamped with world time.
func (h *Handler) addMemory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req memoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Description == "" {
		writeError(w, http.StatusBadRequest, "description is required")
		return
	}
	strength := 1.0
	if req.Strength != nil {
		strength = *req.Strength
	}
	rec, err := memory.NewRecord(req.Description, memory.Point{X: req.X, Y: req.Y},
		req.Participants, req.Tags, strength, h.clock.WorldTime())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	st := h.bank.Open(id)
	if st == nil {
		writeError(w, http.StatusBadRequest, "entity id is required")
		return
	}
	evicted := st.Add(rec)
	h.logger.Debug("memory recorded",
		zap.String("entity", id),
		zap.String("memory", rec.ID),
		zap.Int("evicted", evicted))
	writeJSON(w, http.StatusCreated, memoryResponse{Memory: rec.Snapshot(), Evicted: evicted})
}

func (h *Handler) listRoutines(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.routines.Entries(chi.URLParam(r, "id")))
}

type routineRequest struct {
	Title       string  `json:"title"`
	Type        string  `json:"type"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	DelayMin    float64 `json:"delay_min"`
	DurationMin float64 `json:"duration_min"`
}

func (h *Handler) addRoutine(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.atlas.Get(id); !ok {
		writeError(w, http.StatusNotFound, "entity not found")
		return
	}
	var req routineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Title == "" || req.Type == "" {
		writeError(w, http.StatusBadRequest, "title and type are required")
		return
	}
	dest := memory.Point{X: req.X, Y: req.Y}
	if !dest.Valid() {
		writeError(w, http.StatusBadRequest, "invalid destination")
		return
	}
	if req.DurationMin <= 0 {
		req.DurationMin = 60
	}

	entry := world.RoutineEntry{
		Type:        world.ActivityType(req.Type),
		Title:       req.Title,
		Destination: dest,
		StartTime:   h.clock.WorldTime().Add(time.Duration(req.DelayMin * float64(time.Minute))),
		Duration:    time.Duration(req.DurationMin * float64(time.Minute)),
	}
	entry.ID = h.routines.AddEntry(id, entry)
	entry.Status = "pending"
	writeJSON(w, http.StatusCreated, entry)
}

func (h *Handler) listRelations(w http.ResponseWriter, r *http.Request) {
	if h.relations == nil {
		writeError(w, http.StatusServiceUnavailable, "relation graph not configured")
		return
	}
	rels, err := h.relations.GetRelations(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.logger.Warn("relation read failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if rels == nil {
		rels = []*world.Relation{}
	}
	writeJSON(w, http.StatusOK, rels)
}

type relationRequest struct {
	To       string  `json:"to"`
	Type     string  `json:"type"`
	Strength float64 `json:"strength"`
}

// setRelation creates or replaces the tie from the path entity to req.To.
func (h *Handler) setRelation(w http.ResponseWriter, r *http.Request) {
	if h.relations == nil {
		writeError(w, http.StatusServiceUnavailable, "relation graph not configured")
		return
	}
	id := chi.URLParam(r, "id")
	var req relationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.To == "" || req.Type == "" {
		writeError(w, http.StatusBadRequest, "to and type are required")
		return
	}
	if req.To == id {
		writeError(w, http.StatusBadRequest, "an entity cannot relate to itself")
		return
	}
	if req.Strength < 0 || req.Strength > 1 {
		writeError(w, http.StatusBadRequest, "strength must be in [0, 1]")
		return
	}
	rel := &world.Relation{
		FromID:   id,
		ToID:     req.To,
		Type:     world.RelationType(req.Type),
		Strength: req.Strength,
	}
	if err := h.relations.SetRelation(r.Context(), rel); err != nil {
		h.logger.Warn("relation write failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rel)
}
