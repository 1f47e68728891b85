package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nidhogg/hearsay/internal/archive"
	"github.com/nidhogg/hearsay/internal/bus"
	"github.com/nidhogg/hearsay/internal/memory"
	"github.com/nidhogg/hearsay/internal/rumor"
	"github.com/nidhogg/hearsay/internal/world"
	"go.uber.org/zap"
)

// Folklore searches archived rumors.
type Folklore interface {
	Query(ctx context.Context, text string, topK int) ([]archive.Entry, error)
	QueryReason(ctx context.Context, text string, topK int, reason rumor.RemovalReason) ([]archive.Entry, error)
}

// Relations reads and writes social ties.
type Relations interface {
	SetRelation(ctx context.Context, rel *world.Relation) error
	GetRelations(ctx context.Context, id string) ([]*world.Relation, error)
}

// EventLog reads recent simulation events.
type EventLog interface {
	Recent(ctx context.Context, count int64) ([]*bus.Event, error)
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	network   *rumor.Network
	bank      *memory.Bank
	atlas     *world.Atlas
	routines  *world.Routines
	clock     *world.WorldClock
	ticker    *world.DailyTicker
	folklore  Folklore
	events    EventLog
	relations Relations
	logger    *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(
	network *rumor.Network,
	bank *memory.Bank,
	atlas *world.Atlas,
	routines *world.Routines,
	clock *world.WorldClock,
	ticker *world.DailyTicker,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		network:  network,
		bank:     bank,
		atlas:    atlas,
		routines: routines,
		clock:    clock,
		ticker:   ticker,
		logger:   logger,
	}
}

// SetFolklore enables the archive search route.
func (h *Handler) SetFolklore(f Folklore) { h.folklore = f }

// SetEvents enables the event log route.
func (h *Handler) SetEvents(e EventLog) { h.events = e }

// SetRelations enables the social tie routes.
func (h *Handler) SetRelations(rel Relations) { h.relations = rel }

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)
		r.Get("/world/status", h.worldStatus)
		r.Post("/tick", h.triggerTick)

		// Rumor projections
		r.Get("/rumors", h.listRumors)
		r.Get("/rumors/stats", h.rumorStats)
		r.Get("/rumors/near", h.rumorsNear)
		r.Get("/rumors/actor/{id}", h.rumorsByActor)
		r.Post("/rumors/{id}/rewrite", h.rewriteRumor)

		// Entities and their memories
		r.Get("/entities", h.listEntities)
		r.Put("/entities/{id}", h.placeEntity)
		r.Delete("/entities/{id}", h.removeEntity)
		r.Get("/entities/{id}/memories", h.recallMemories)
		r.Post("/entities/{id}/memories", h.addMemory)
		r.Get("/entities/{id}/memories/strongest", h.strongestMemories)
		r.Get("/entities/{id}/routines", h.listRoutines)
		r.Post("/entities/{id}/routines", h.addRoutine)
		r.Get("/entities/{id}/relations", h.listRelations)
		r.Put("/entities/{id}/relations", h.setRelation)

		r.Get("/folklore", h.searchFolklore)
		r.Get("/events", h.recentEvents)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "hearsay"})
}

func (h *Handler) worldStatus(w http.ResponseWriter, r *http.Request) {
	stats := h.network.Stats()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"world_time":    h.clock.WorldTime(),
		"speed":         h.clock.Speed(),
		"entities":      len(h.network.Registered()),
		"memory_stores": len(h.bank.Owners()),
		"rumors":        stats.Total,
		"last_tick":     h.network.LastTick(),
	})
}

func (h *Handler) triggerTick(w http.ResponseWriter, r *http.Request) {
	if h.ticker == nil {
		writeError(w, http.StatusServiceUnavailable, "ticker not initialized")
		return
	}
	stats := h.ticker.FireNow(h.clock.WorldTime())
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) searchFolklore(w http.ResponseWriter, r *http.Request) {
	if h.folklore == nil {
		writeError(w, http.StatusServiceUnavailable, "folklore archive not configured")
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	k, ok := intParam(w, r, "k", 5)
	if !ok {
		return
	}
	var entries []archive.Entry
	var err error
	switch reason := rumor.RemovalReason(r.URL.Query().Get("reason")); reason {
	case "":
		entries, err = h.folklore.Query(r.Context(), q, k)
	case rumor.RemovedExpired, rumor.RemovedEvicted:
		entries, err = h.folklore.QueryReason(r.Context(), q, k, reason)
	default:
		writeError(w, http.StatusBadRequest, "reason must be expired or evicted")
		return
	}
	if err != nil {
		h.logger.Warn("folklore query failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) recentEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		writeError(w, http.StatusServiceUnavailable, "event bus not configured")
		return
	}
	n, ok := intParam(w, r, "n", 20)
	if !ok {
		return
	}
	events, err := h.events.Recent(r.Context(), int64(n))
	if err != nil {
		h.logger.Warn("event log read failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// splitList turns "a,b, c" into [a b c], dropping blanks.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// floatParam reads an optional float query parameter, writing a 400 and
// returning false when it is malformed.
func floatParam(w http.ResponseWriter, r *http.Request, name string, def float64) (float64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return v, true
}

func intParam(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return v, true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
