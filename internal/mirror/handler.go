package mirror

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"beeftrace/internal/cache"
	"beeftrace/pkg/platform/sentinel"
)

// Handler exposes the mirror's HTTP surface.
type Handler struct {
	store  Store
	logger *slog.Logger
}

// NewHandler wires mirror endpoints to a store.
func NewHandler(store Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{store: store, logger: logger}
}

// Register mounts mirror endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/health", h.HandleHealth)
	r.Get("/stats", h.HandleStats)
	r.Get("/entities/{type}", h.HandleList)
	r.Get("/entities/{type}/owner/{addr}", h.HandleListByOwner)
	r.Get("/entities/{type}/{id}", h.HandleGet)
	r.Post("/bulk-upsert", h.HandleBulkUpsert)
	r.Post("/clear", h.HandleClear)
}

// HandleHealth handles GET /health.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	data, _ := json.Marshal(cache.Health{Status: "healthy", Stats: stats})
	writeJSON(w, http.StatusOK, cache.Envelope{Success: true, Data: data})
}

// HandleStats handles GET /stats.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	data, _ := json.Marshal(stats)
	writeJSON(w, http.StatusOK, cache.Envelope{Success: true, Data: data})
}

// HandleGet handles GET /entities/{type}/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "type")
	if !cache.KnownType(entityType) {
		h.writeError(w, r, http.StatusBadRequest, errors.New("unknown entity type "+entityType))
		return
	}
	payload, err := h.store.Get(r.Context(), entityType, chi.URLParam(r, "id"))
	if errors.Is(err, sentinel.ErrNotFound) {
		h.writeError(w, r, http.StatusNotFound, err)
		return
	}
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, cache.Envelope{Success: true, Data: payload})
}

// HandleList handles GET /entities/{type}.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "type")
	if !cache.KnownType(entityType) {
		h.writeError(w, r, http.StatusBadRequest, errors.New("unknown entity type "+entityType))
		return
	}
	entities, err := h.store.List(r.Context(), entityType)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	h.writeEntityMap(w, r, entities)
}

// HandleListByOwner handles GET /entities/{type}/owner/{addr}. Ownership is
// read from the stored payload, so the filter works for any entity type that
// carries an owner_addr field.
func (h *Handler) HandleListByOwner(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "type")
	if !cache.KnownType(entityType) {
		h.writeError(w, r, http.StatusBadRequest, errors.New("unknown entity type "+entityType))
		return
	}
	entities, err := h.store.List(r.Context(), entityType)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	addr := chi.URLParam(r, "addr")
	filtered := make(map[string]json.RawMessage)
	for id, payload := range entities {
		var owned struct {
			OwnerAddr string `json:"owner_addr"`
		}
		if err := json.Unmarshal(payload, &owned); err != nil {
			continue
		}
		if owned.OwnerAddr == addr {
			filtered[id] = payload
		}
	}
	h.writeEntityMap(w, r, filtered)
}

// HandleBulkUpsert handles POST /bulk-upsert.
func (h *Handler) HandleBulkUpsert(w http.ResponseWriter, r *http.Request) {
	var req cache.BulkUpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, errors.New("malformed bulk upsert body"))
		return
	}
	if !cache.KnownType(req.EntityType) {
		h.writeError(w, r, http.StatusBadRequest, errors.New("unknown entity type "+req.EntityType))
		return
	}
	if err := h.store.BulkUpsert(r.Context(), req.EntityType, req.Data); err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	h.logger.InfoContext(r.Context(), "mirror bulk upsert",
		"entity_type", req.EntityType,
		"count", len(req.Data),
	)
	writeJSON(w, http.StatusOK, cache.Envelope{Success: true, Count: len(req.Data)})
}

// HandleClear handles POST /clear.
func (h *Handler) HandleClear(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Clear(r.Context()); err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	h.logger.InfoContext(r.Context(), "mirror cleared")
	writeJSON(w, http.StatusOK, cache.Envelope{Success: true})
}

func (h *Handler) writeEntityMap(w http.ResponseWriter, r *http.Request, entities map[string]json.RawMessage) {
	data, err := json.Marshal(entities)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, cache.Envelope{Success: true, Data: data, Count: len(entities)})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= 500 {
		h.logger.ErrorContext(r.Context(), "mirror request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeJSON(w, status, cache.Envelope{Success: false, Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
