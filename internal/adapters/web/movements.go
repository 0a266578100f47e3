package web

import (
	"net/http"
	"strconv"

	"warehouse-ledger/internal/app"
	"warehouse-ledger/internal/core"
)

// inbound handles POST /api/movements/inbound.
func (h *Handler) inbound(w http.ResponseWriter, r *http.Request) {
	var req app.MutationInput
	if !decodeJSON(w, r, &req) {
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	res, err := h.svc.Inbound(r.Context(), req, actor)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// outbound handles POST /api/movements/outbound.
func (h *Handler) outbound(w http.ResponseWriter, r *http.Request) {
	var req app.MutationInput
	if !decodeJSON(w, r, &req) {
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	res, err := h.svc.Outbound(r.Context(), req, actor)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// transfer handles POST /api/movements/transfer.
func (h *Handler) transfer(w http.ResponseWriter, r *http.Request) {
	var req app.MutationInput
	if !decodeJSON(w, r, &req) {
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	res, err := h.svc.Transfer(r.Context(), req, actor)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// adjust handles POST /api/movements/adjust.
func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	var req app.MutationInput
	if !decodeJSON(w, r, &req) {
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	res, err := h.svc.Adjust(r.Context(), req, actor)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// getQuantity handles POST /api/stock/quantity. POST because the lot is
// addressed by an attribute map that does not fit a query string.
func (h *Handler) getQuantity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Warehouse  string            `json:"warehouse"`
		Location   string            `json:"location"`
		Product    string            `json:"product"`
		Attributes map[string]string `json:"attributes,omitempty"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.GetQuantity(r.Context(), req.Warehouse, req.Location, req.Product, req.Attributes)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// movementHistory handles GET /api/movements.
func (h *Handler) movementHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	movements, err := h.svc.MovementHistory(r.Context(), app.MovementHistoryRequest{
		Warehouse: q.Get("warehouse"),
		Location:  q.Get("location"),
		Product:   q.Get("product"),
		Type:      q.Get("type"),
		Limit:     limit,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	type response struct {
		Movements []core.StockMovement `json:"movements"`
	}
	writeJSON(w, response{Movements: movements})
}

// processBatch handles POST /api/batch.
func (h *Handler) processBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Requests []core.MutationRequest `json:"requests"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	report, err := h.svc.ProcessBatch(r.Context(), req.Requests, actor)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, report)
}
