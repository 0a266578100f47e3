package web

import (
	"net/http"

	"warehouse-ledger/internal/app"
	"warehouse-ledger/internal/core"

	"github.com/go-chi/chi/v5"
)

// listStatuses handles GET /api/statuses.
func (h *Handler) listStatuses(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.svc.ListStatuses(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	type response struct {
		Statuses []core.Status `json:"statuses"`
	}
	writeJSON(w, response{Statuses: statuses})
}

// applyStatus handles POST /api/statuses/apply.
func (h *Handler) applyStatus(w http.ResponseWriter, r *http.Request) {
	var req app.ApplyStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if err := h.svc.ApplyStatus(r.Context(), req, actor); err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// clearStatus handles POST /api/statuses/clear.
func (h *Handler) clearStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EntityType string `json:"entity_type"`
		EntityID   int    `json:"entity_id"`
		Reason     string `json:"reason,omitempty"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	err := h.svc.ClearStatus(r.Context(), core.EntityType(req.EntityType), req.EntityID, req.Reason, actor)
	if err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// activeStatus handles GET /api/statuses/{entityType}/{entityID}.
func (h *Handler) activeStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "entityID")
	if !ok {
		return
	}
	status, err := h.svc.ActiveStatus(r.Context(), core.EntityType(chi.URLParam(r, "entityType")), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	type response struct {
		Status *core.EntityStatus `json:"status"`
	}
	writeJSON(w, response{Status: status})
}

// statusHistory handles GET /api/statuses/{entityType}/{entityID}/history.
func (h *Handler) statusHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "entityID")
	if !ok {
		return
	}
	changes, err := h.svc.StatusHistory(r.Context(), core.EntityType(chi.URLParam(r, "entityType")), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	type response struct {
		Changes []core.StatusChange `json:"changes"`
	}
	writeJSON(w, response{Changes: changes})
}
