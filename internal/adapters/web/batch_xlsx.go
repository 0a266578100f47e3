package web

import (
	"fmt"
	"net/http"
	"time"

	"warehouse-ledger/internal/adapters/xlsx"
)

// maxUploadBytes caps XLSX batch uploads at 10 MB.
const maxUploadBytes = 10 << 20

// batchImportXLSX handles POST /api/batch/import. The body is a multipart
// form with the workbook under the "file" field.
func (h *Handler) batchImportXLSX(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, r, "invalid multipart body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, "missing file field", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()

	requests, err := xlsx.ParseMutations(file)
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	report, err := h.svc.ProcessBatch(r.Context(), requests, actor)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, report)
}

// stockExportXLSX handles GET /api/warehouses/{wh}/stock/export.
func (h *Handler) stockExportXLSX(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.StockLevels(r.Context(), warehouseRef(r))
	if err != nil {
		handleError(w, r, err)
		return
	}

	filename := fmt.Sprintf("stock-%s-%s.xlsx", result.WarehouseCode, time.Now().Format("20060102"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)

	if err := xlsx.WriteStockLevels(w, result.WarehouseCode, result.Levels); err != nil {
		h.log.Error("stock export failed", "err", err, "warehouse", result.WarehouseCode)
	}
}
