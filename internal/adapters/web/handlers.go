package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"warehouse-ledger/internal/app"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler holds the ApplicationService and the chi router.
type Handler struct {
	svc    app.ApplicationService
	log    *slog.Logger
	router chi.Router
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(svc app.ApplicationService, log *slog.Logger, allowedOrigins string, exposeMetrics bool) http.Handler {
	h := &Handler{svc: svc, log: log}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(log))
	r.Use(Recoverer(log))
	r.Use(CORS(allowedOrigins))
	r.Use(Actor)

	r.Get("/api/health", h.health)
	if exposeMetrics {
		r.Get("/metrics", promhttp.Handler().ServeHTTP)
	}

	r.Group(func(r chi.Router) {
		// XLSX batch upload manages its own limit inside the handler.
		r.Post("/api/batch/import", h.batchImportXLSX)
		r.Get("/api/warehouses/{wh}/stock/export", h.stockExportXLSX)

		r.Group(func(r chi.Router) {
			r.Use(RequestBodyLimit(1 << 20)) // 1 MB

			// ── Directory ─────────────────────────────────────────────────────
			r.Get("/api/warehouses", h.listWarehouses)
			r.Post("/api/warehouses", h.createWarehouse)
			r.Get("/api/warehouses/{wh}", h.getWarehouse)
			r.Delete("/api/warehouses/{wh}", h.deactivateWarehouse)
			r.Get("/api/warehouses/{wh}/locations", h.listLocations)
			r.Post("/api/warehouses/{wh}/locations", h.createLocation)
			r.Delete("/api/warehouses/{wh}/locations/{loc}", h.deactivateLocation)
			r.Get("/api/warehouses/{wh}/locations/{loc}/path", h.locationPath)
			r.Get("/api/products", h.listProducts)
			r.Post("/api/products", h.createProduct)
			r.Get("/api/products/{ref}", h.getProduct)

			// ── Mutations ─────────────────────────────────────────────────────
			r.Post("/api/movements/inbound", h.inbound)
			r.Post("/api/movements/outbound", h.outbound)
			r.Post("/api/movements/transfer", h.transfer)
			r.Post("/api/movements/adjust", h.adjust)
			r.Post("/api/stock/quantity", h.getQuantity)
			r.Get("/api/movements", h.movementHistory)

			// ── Batch (JSON body) ─────────────────────────────────────────────
			r.Post("/api/batch", h.processBatch)

			// ── Audit ─────────────────────────────────────────────────────────
			r.Post("/api/audits", h.openAudit)
			r.Get("/api/audits/{id}", h.getAudit)
			r.Post("/api/audits/{id}/counts", h.recordAuditCount)
			r.Post("/api/audits/{id}/finalize", h.finalizeAudit)
			r.Get("/api/warehouses/{wh}/audits", h.listAudits)

			// ── Statuses ──────────────────────────────────────────────────────
			r.Get("/api/statuses", h.listStatuses)
			r.Post("/api/statuses/apply", h.applyStatus)
			r.Post("/api/statuses/clear", h.clearStatus)
			r.Get("/api/statuses/{entityType}/{entityID}", h.activeStatus)
			r.Get("/api/statuses/{entityType}/{entityID}/history", h.statusHistory)

			// ── Reporting ─────────────────────────────────────────────────────
			r.Get("/api/warehouses/{wh}/stock", h.stockLevels)
			r.Get("/api/warehouses/{wh}/low-stock", h.lowStock)
		})
	})

	h.router = r
	return r
}

// health returns service status.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Status string `json:"status"`
	}
	writeJSON(w, response{Status: "ok"})
}

// warehouseRef extracts the {wh} URL parameter.
func warehouseRef(r *http.Request) string {
	return chi.URLParam(r, "wh")
}

// decodeJSON decodes the request body into v and returns false + writes an
// appropriate error response on failure. Returns HTTP 413 when the body
// exceeds the size limit set by RequestBodyLimit middleware; HTTP 400 for
// all other decode errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, "request body too large", "REQUEST_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return false
		}
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return false
	}
	return true
}
