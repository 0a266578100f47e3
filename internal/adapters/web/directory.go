package web

import (
	"net/http"

	"warehouse-ledger/internal/app"

	"github.com/go-chi/chi/v5"
)

// listWarehouses handles GET /api/warehouses.
func (h *Handler) listWarehouses(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.ListWarehouses(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// createWarehouse handles POST /api/warehouses.
func (h *Handler) createWarehouse(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	wh, err := h.svc.CreateWarehouse(r.Context(), req.Code, req.Name)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, wh)
}

// getWarehouse handles GET /api/warehouses/{wh}.
func (h *Handler) getWarehouse(w http.ResponseWriter, r *http.Request) {
	wh, err := h.svc.GetWarehouse(r.Context(), warehouseRef(r))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, wh)
}

// deactivateWarehouse handles DELETE /api/warehouses/{wh}.
func (h *Handler) deactivateWarehouse(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeactivateWarehouse(r.Context(), warehouseRef(r)); err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listLocations handles GET /api/warehouses/{wh}/locations.
func (h *Handler) listLocations(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.ListLocations(r.Context(), warehouseRef(r))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// createLocation handles POST /api/warehouses/{wh}/locations.
func (h *Handler) createLocation(w http.ResponseWriter, r *http.Request) {
	var req app.CreateLocationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Warehouse = warehouseRef(r)
	loc, err := h.svc.CreateLocation(r.Context(), req)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, loc)
}

// deactivateLocation handles DELETE /api/warehouses/{wh}/locations/{loc}.
func (h *Handler) deactivateLocation(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeactivateLocation(r.Context(), warehouseRef(r), chi.URLParam(r, "loc")); err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// locationPath handles GET /api/warehouses/{wh}/locations/{loc}/path.
func (h *Handler) locationPath(w http.ResponseWriter, r *http.Request) {
	path, err := h.svc.LocationPath(r.Context(), warehouseRef(r), chi.URLParam(r, "loc"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, path)
}

// listProducts handles GET /api/products.
func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.ListProducts(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// createProduct handles POST /api/products.
func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req app.CreateProductRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	product, err := h.svc.CreateProduct(r.Context(), req)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, product)
}

// getProduct handles GET /api/products/{ref}.
func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.svc.GetProduct(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, product)
}
