// Package xlsx converts between spreadsheet files and batch mutation
// requests. Column layout is header-driven: the first row names the columns,
// order does not matter, unknown columns are ignored.
package xlsx

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"warehouse-ledger/internal/core"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// Recognized header names, lowercased.
const (
	colOperation       = "operation"
	colWarehouse       = "warehouse"
	colLocation        = "location"
	colTargetWarehouse = "target_warehouse"
	colTargetLocation  = "target_location"
	colSKU             = "sku"
	colQuantity        = "quantity"
	colAttributes      = "attributes"
	colNote            = "note"
	colReason          = "reason"
	colIdempotencyKey  = "idempotency_key"
)

// ParseMutations reads an XLSX upload into batch rows. Structural problems
// (no sheet, no header, unparseable quantity) fail the whole parse; business
// validation is left to the batch processor so each row can fail
// independently.
func ParseMutations(r io.Reader) ([]core.MutationRequest, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q is empty", sheet)
	}

	cols := map[string]int{}
	for i, name := range rows[0] {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := cols[colOperation]; !ok {
		return nil, fmt.Errorf("header row is missing the %q column", colOperation)
	}

	cell := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var requests []core.MutationRequest
	for n, row := range rows[1:] {
		rowNum := n + 2 // 1-based, after the header
		if isBlank(row) {
			continue
		}

		qtyRaw := cell(row, colQuantity)
		qty, err := decimal.NewFromString(qtyRaw)
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid quantity %q", rowNum, qtyRaw)
		}

		requests = append(requests, core.MutationRequest{
			RowRef:          fmt.Sprintf("row %d", rowNum),
			Operation:       core.MovementType(strings.ToUpper(cell(row, colOperation))),
			WarehouseCode:   cell(row, colWarehouse),
			LocationCode:    cell(row, colLocation),
			TargetWarehouse: cell(row, colTargetWarehouse),
			TargetLocation:  cell(row, colTargetLocation),
			SKU:             cell(row, colSKU),
			Quantity:        qty,
			Attributes:      parseAttributes(cell(row, colAttributes)),
			Note:            cell(row, colNote),
			Reason:          cell(row, colReason),
			IdempotencyKey:  cell(row, colIdempotencyKey),
		})
	}
	return requests, nil
}

// WriteStockLevels renders a stock report as a single-sheet workbook.
func WriteStockLevels(w io.Writer, warehouseCode string, levels []core.StockLevel) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	header := []any{"sku", "product", "location", "lot", "quantity", "unit", "updated_at"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}

	for i, lv := range levels {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			lv.ProductSKU,
			lv.ProductName,
			lv.LocationCode,
			formatAttributes(lv.Attributes),
			lv.Quantity.String(),
			lv.Unit,
			lv.UpdatedAt.Format("2006-01-02 15:04:05"),
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}

	if err := f.SetSheetName(sheet, warehouseCode); err != nil {
		return err
	}
	return f.Write(w)
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// parseAttributes reads the "k=v;k=v" cell syntax. Pairs without "=" are
// dropped.
func parseAttributes(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	attrs := map[string]string{}
	for _, pair := range strings.Split(raw, ";") {
		k, v, ok := strings.Cut(pair, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if ok && k != "" {
			attrs[k] = v
		}
	}
	if len(attrs) == 0 {
		return nil
	}
	return attrs
}

func formatAttributes(attrs map[string]string) string {
	if len(attrs) == 0 {
		return ""
	}
	pairs := make([]string, 0, len(attrs))
	for k, v := range attrs {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ";")
}
