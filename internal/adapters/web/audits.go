package web

import (
	"net/http"
	"strconv"

	"warehouse-ledger/internal/core"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// openAudit handles POST /api/audits.
func (h *Handler) openAudit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Warehouse string `json:"warehouse"`
		Name      string `json:"name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	session, err := h.svc.OpenAudit(r.Context(), req.Warehouse, req.Name, actor)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, session)
}

// getAudit handles GET /api/audits/{id}.
func (h *Handler) getAudit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	result, err := h.svc.GetAuditSession(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// recordAuditCount handles POST /api/audits/{id}/counts.
func (h *Handler) recordAuditCount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		ItemID  int             `json:"item_id"`
		Counted decimal.Decimal `json:"counted"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	item, err := h.svc.RecordAuditCount(r.Context(), id, req.ItemID, req.Counted, actor)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, item)
}

// finalizeAudit handles POST /api/audits/{id}/finalize.
func (h *Handler) finalizeAudit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	report, err := h.svc.FinalizeAudit(r.Context(), id, actor)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, report)
}

// listAudits handles GET /api/warehouses/{wh}/audits.
func (h *Handler) listAudits(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.svc.ListAuditSessions(r.Context(), warehouseRef(r))
	if err != nil {
		handleError(w, r, err)
		return
	}
	type response struct {
		Sessions []core.AuditSession `json:"sessions"`
	}
	writeJSON(w, response{Sessions: sessions})
}

// pathID parses a numeric URL parameter, writing HTTP 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		writeError(w, r, "invalid "+name+" parameter", "BAD_REQUEST", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
