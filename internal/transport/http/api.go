// Package http exposes the service API: lifecycle transitions, acceptance
// with payment, provenance tokens, rollups, role administration, and sync
// triggers. The cache mirror has its own handler in internal/mirror; this
// router mounts both.
package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"beeftrace/internal/aggregate"
	"beeftrace/internal/domain"
	"beeftrace/internal/ledger"
	"beeftrace/internal/lifecycle"
	"beeftrace/internal/payment"
	"beeftrace/internal/provenance"
	"beeftrace/internal/roles"
	"beeftrace/internal/syncer"
)

// actorHeader identifies the acting wallet. Signature verification is the
// ledger's job; the service only needs to know who to act as.
const actorHeader = "X-Actor-Addr"

// Handler wires API endpoints to the services.
type Handler struct {
	lifecycle  *lifecycle.Service
	payments   *payment.Coordinator
	provenance *provenance.Service
	rollups    *aggregate.Engine
	roles      *roles.Service
	sync       *syncer.Engine
	logger     *slog.Logger
}

// NewHandler constructs the API handler.
func NewHandler(
	lc *lifecycle.Service,
	pay *payment.Coordinator,
	prov *provenance.Service,
	agg *aggregate.Engine,
	rl *roles.Service,
	sync *syncer.Engine,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		lifecycle:  lc,
		payments:   pay,
		provenance: prov,
		rollups:    agg,
		roles:      rl,
		sync:       sync,
		logger:     logger,
	}
}

// Register mounts API endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/animals", h.HandleCreateAnimal)
	r.Post("/animals/{id}/process", h.transition(ledger.RoleProcessor, h.lifecycle.ProcessAnimal))
	r.Post("/animals/{id}/certify", h.transition(ledger.RoleCertifier, h.lifecycle.CertifyAnimal))
	r.Post("/animals/{id}/export", h.transition(ledger.RoleExporter, h.lifecycle.ExportAnimal))
	r.Post("/animals/{id}/quarantine", h.HandleQuarantine)
	r.Post("/animals/{id}/release", h.transition(ledger.RoleVet, h.lifecycle.ClearQuarantine))

	r.Post("/batches", h.HandleCreateBatch)
	r.Post("/batches/{id}/animals", h.HandleAddToBatch)
	r.Post("/batches/{id}/transfer", h.HandleTransferBatch)
	r.Post("/batches/{id}/process", h.transition(ledger.RoleProcessor, h.lifecycle.ProcessBatch))
	r.Post("/batches/{id}/certify", h.transition(ledger.RoleCertifier, h.lifecycle.CertifyBatch))

	r.Post("/cuts", h.HandleCreateCut)

	r.Post("/acceptances", h.HandleAccept)
	r.Get("/acceptances/{type}/{id}", h.HandlePaymentHistory)

	r.Post("/tokens", h.HandleMintToken)
	r.Get("/tokens/{hash}", h.HandleVerifyToken)

	r.Get("/batches/{id}/weight", h.HandleBatchWeight)
	r.Get("/batches/{id}/counts", h.HandleBatchCounts)
	r.Get("/processors/{addr}/stats", h.HandleProcessorStats)

	r.Get("/roles/{role}/members", h.HandleRoleMembers)
	r.Post("/roles/{role}/members", h.HandleGrantRole)
	r.Delete("/roles/{role}/members/{addr}", h.HandleRevokeRole)

	r.Post("/sync", h.HandleFullSync)
	r.Get("/sync/status", h.HandleSyncStatus)
}

// transition adapts the common one-entity lifecycle signature, pre-checking
// the actor's role so unauthorized requests never reach the ledger.
func (h *Handler) transition(role string, op func(ctx context.Context, actor string, id domain.EntityID) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := h.actor(w, r)
		if !ok {
			return
		}
		id, ok := h.entityID(w, r, "id")
		if !ok {
			return
		}
		if !h.requireRole(w, r, role, actor) {
			return
		}
		if err := op(r.Context(), actor, id); err != nil {
			h.writeError(w, r, err)
			return
		}
		h.writeOK(w, map[string]string{"id": id.String()})
	}
}

func (h *Handler) HandleCreateAnimal(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req struct {
		BreedCode   uint32       `json:"breed_code"`
		BirthDate   int64        `json:"birth_date"`
		WeightGrams domain.Grams `json:"weight_grams"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	id, err := h.lifecycle.CreateAnimal(r.Context(), actor, req.BreedCode, req.BirthDate, req.WeightGrams)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeStatus(w, http.StatusCreated, map[string]string{"id": id.String()})
}

func (h *Handler) HandleCreateBatch(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := h.lifecycle.CreateBatch(r.Context(), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeStatus(w, http.StatusCreated, map[string]string{"id": id.String()})
}

func (h *Handler) HandleAddToBatch(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	batchID, ok := h.entityID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		AnimalID domain.EntityID `json:"animal_id"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.lifecycle.AddToBatch(r.Context(), actor, batchID, req.AnimalID); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeOK(w, map[string]string{"batch_id": batchID.String(), "animal_id": req.AnimalID.String()})
}

func (h *Handler) HandleTransferBatch(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	batchID, ok := h.entityID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		ProcessorAddr string `json:"processor_addr"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.lifecycle.TransferBatch(r.Context(), actor, batchID, req.ProcessorAddr); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeOK(w, map[string]string{"batch_id": batchID.String()})
}

func (h *Handler) HandleQuarantine(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.entityID(w, r, "id")
	if !ok {
		return
	}
	if !h.requireRole(w, r, ledger.RoleVet, actor) {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.lifecycle.Quarantine(r.Context(), actor, id, req.Reason); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeOK(w, map[string]string{"id": id.String()})
}

func (h *Handler) HandleCreateCut(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req struct {
		AnimalID    domain.EntityID `json:"animal_id"`
		CutType     domain.CutType  `json:"cut_type"`
		WeightGrams domain.Grams    `json:"weight_grams"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	id, err := h.lifecycle.CreateCut(r.Context(), actor, req.AnimalID, req.CutType, req.WeightGrams)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeStatus(w, http.StatusCreated, map[string]string{"id": id.String()})
}

func (h *Handler) HandleAccept(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req struct {
		SubjectType domain.SubjectType `json:"subject_type"`
		SubjectID   domain.EntityID    `json:"subject_id"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	rec, err := h.payments.AcceptWithPayment(r.Context(), actor, req.SubjectType, req.SubjectID)
	if err != nil {
		// When a record was created before the failure, return it so the
		// caller can see how far the sequence got.
		var payload any
		if rec.ID != uuid.Nil {
			payload = rec
		}
		h.writeErrorPayload(w, r, err, payload)
		return
	}
	h.writeOK(w, rec)
}

func (h *Handler) HandlePaymentHistory(w http.ResponseWriter, r *http.Request) {
	subjectType := domain.SubjectType(chi.URLParam(r, "type"))
	id, ok := h.entityID(w, r, "id")
	if !ok {
		return
	}
	records, err := h.payments.History(r.Context(), subjectType, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeOK(w, records)
}

func (h *Handler) HandleMintToken(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req struct {
		SubjectType domain.SubjectType `json:"subject_type"`
		SubjectID   domain.EntityID    `json:"subject_id"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	tok, err := h.provenance.Mint(r.Context(), actor, req.SubjectType, req.SubjectID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeStatus(w, http.StatusCreated, tok)
}

func (h *Handler) HandleVerifyToken(w http.ResponseWriter, r *http.Request) {
	v, err := h.provenance.Verify(r.Context(), chi.URLParam(r, "hash"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeOK(w, v)
}

func (h *Handler) HandleBatchWeight(w http.ResponseWriter, r *http.Request) {
	id, ok := h.entityID(w, r, "id")
	if !ok {
		return
	}
	weight, err := h.rollups.BatchWeight(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeOK(w, weight)
}

func (h *Handler) HandleBatchCounts(w http.ResponseWriter, r *http.Request) {
	id, ok := h.entityID(w, r, "id")
	if !ok {
		return
	}
	counts, err := h.rollups.BatchCounts(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeOK(w, counts)
}

func (h *Handler) HandleProcessorStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.rollups.ProcessorStats(r.Context(), chi.URLParam(r, "addr"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeOK(w, stats)
}

func (h *Handler) HandleRoleMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.roles.Members(r.Context(), chi.URLParam(r, "role"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeOK(w, map[string]any{"role": chi.URLParam(r, "role"), "members": members})
}

func (h *Handler) HandleGrantRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req struct {
		Addr string `json:"addr"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.roles.Grant(r.Context(), actor, chi.URLParam(r, "role"), req.Addr); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeOK(w, map[string]string{"role": chi.URLParam(r, "role"), "addr": req.Addr})
}

func (h *Handler) HandleRevokeRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	if err := h.roles.Revoke(r.Context(), actor, chi.URLParam(r, "role"), chi.URLParam(r, "addr")); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeOK(w, map[string]string{"role": chi.URLParam(r, "role"), "addr": chi.URLParam(r, "addr")})
}

func (h *Handler) HandleFullSync(w http.ResponseWriter, r *http.Request) {
	report, err := h.sync.FullSync(r.Context())
	if errors.Is(err, syncer.ErrSyncInProgress) {
		h.writeStatus(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeOK(w, report)
}

func (h *Handler) HandleSyncStatus(w http.ResponseWriter, r *http.Request) {
	h.writeOK(w, map[string]bool{"running": h.sync.Running()})
}
