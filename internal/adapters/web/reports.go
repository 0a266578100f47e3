package web

import (
	"net/http"

	"warehouse-ledger/internal/core"
)

// stockLevels handles GET /api/warehouses/{wh}/stock.
func (h *Handler) stockLevels(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.StockLevels(r.Context(), warehouseRef(r))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// lowStock handles GET /api/warehouses/{wh}/low-stock.
func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	rows, err := h.svc.LowStock(r.Context(), warehouseRef(r))
	if err != nil {
		handleError(w, r, err)
		return
	}
	type response struct {
		Products []core.LowStockRow `json:"products"`
	}
	writeJSON(w, response{Products: rows})
}
