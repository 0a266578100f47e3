package xlsx

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"warehouse-ledger/internal/core"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

func buildWorkbook(t *testing.T, rows [][]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("Failed to build cell name: %v", err)
		}
		if err := f.SetSheetRow(sheet, cell, &rows[i]); err != nil {
			t.Fatalf("Failed to write row: %v", err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("Failed to serialize workbook: %v", err)
	}
	return &buf
}

func TestParseMutations(t *testing.T) {
	buf := buildWorkbook(t, [][]any{
		{"operation", "warehouse", "location", "target_location", "sku", "quantity", "attributes", "reason", "note"},
		{"inbound", "MAIN", "B1", "", "P001", "100", "batch=B-7;expiry=2026-12-31", "", "first receipt"},
		{"TRANSFER", "MAIN", "B1", "B2", "P001", "30", "batch=B-7", "", ""},
		{"", "", "", "", "", "", "", "", ""}, // blank row, skipped
		{"adjust", "MAIN", "B1", "", "P001", "-5", "", "damaged", ""},
	})

	requests, err := ParseMutations(buf)
	if err != nil {
		t.Fatalf("ParseMutations failed: %v", err)
	}
	if len(requests) != 3 {
		t.Fatalf("Expected 3 rows, got %d", len(requests))
	}

	first := requests[0]
	if first.Operation != core.MovementInbound || first.RowRef != "row 2" {
		t.Errorf("Unexpected first row: %+v", first)
	}
	if !first.Quantity.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected quantity 100, got %s", first.Quantity)
	}
	if first.Attributes["batch"] != "B-7" || first.Attributes["expiry"] != "2026-12-31" {
		t.Errorf("Unexpected attributes: %v", first.Attributes)
	}
	if first.Note != "first receipt" {
		t.Errorf("Unexpected note: %q", first.Note)
	}

	if requests[1].Operation != core.MovementTransfer || requests[1].TargetLocation != "B2" {
		t.Errorf("Unexpected transfer row: %+v", requests[1])
	}

	adjust := requests[2]
	if adjust.Operation != core.MovementAdjust || adjust.RowRef != "row 5" {
		t.Errorf("Unexpected adjust row: %+v", adjust)
	}
	if !adjust.Quantity.Equal(decimal.NewFromInt(-5)) || adjust.Reason != "damaged" {
		t.Errorf("Expected signed quantity and reason, got %+v", adjust)
	}
}

func TestParseMutationsHeaderOrderIrrelevant(t *testing.T) {
	buf := buildWorkbook(t, [][]any{
		{"quantity", "SKU", "Operation", "warehouse", "location", "ignored_column"},
		{"7", "P001", "outbound", "MAIN", "B1", "whatever"},
	})

	requests, err := ParseMutations(buf)
	if err != nil {
		t.Fatalf("ParseMutations failed: %v", err)
	}
	if len(requests) != 1 {
		t.Fatalf("Expected 1 row, got %d", len(requests))
	}
	if requests[0].Operation != core.MovementOutbound || requests[0].SKU != "P001" {
		t.Errorf("Unexpected row: %+v", requests[0])
	}
}

func TestParseMutationsBadQuantityFailsParse(t *testing.T) {
	buf := buildWorkbook(t, [][]any{
		{"operation", "warehouse", "location", "sku", "quantity"},
		{"inbound", "MAIN", "B1", "P001", "ten"},
	})

	_, err := ParseMutations(buf)
	if err == nil || !strings.Contains(err.Error(), "row 2") {
		t.Fatalf("Expected row-2 quantity error, got %v", err)
	}
}

func TestParseMutationsMissingOperationColumn(t *testing.T) {
	buf := buildWorkbook(t, [][]any{
		{"warehouse", "location", "sku", "quantity"},
		{"MAIN", "B1", "P001", "1"},
	})

	if _, err := ParseMutations(buf); err == nil {
		t.Fatal("Expected error for missing operation column")
	}
}

func TestWriteStockLevelsRoundTrip(t *testing.T) {
	levels := []core.StockLevel{
		{
			ProductSKU: "P001", ProductName: "Widget", LocationCode: "B1",
			Attributes: map[string]string{"expiry": "2027-01-01", "batch": "B-7"},
			Quantity:   decimal.NewFromInt(42), Unit: "unit",
			UpdatedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		},
		{
			ProductSKU: "P002", ProductName: "Gadget", LocationCode: "B2",
			Quantity: decimal.RequireFromString("3.5"), Unit: "kg",
			UpdatedAt: time.Date(2026, 8, 2, 9, 30, 0, 0, time.UTC),
		},
	}

	var buf bytes.Buffer
	if err := WriteStockLevels(&buf, "MAIN", levels); err != nil {
		t.Fatalf("WriteStockLevels failed: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("Failed to reopen workbook: %v", err)
	}
	defer func() { _ = f.Close() }()

	if got := f.GetSheetName(0); got != "MAIN" {
		t.Errorf("Expected sheet named after the warehouse, got %q", got)
	}
	rows, err := f.GetRows("MAIN")
	if err != nil {
		t.Fatalf("Failed to read rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("Expected header plus 2 rows, got %d", len(rows))
	}
	if rows[1][0] != "P001" || rows[1][4] != "42" {
		t.Errorf("Unexpected first data row: %v", rows[1])
	}
	// Attribute pairs come out sorted regardless of map order.
	if rows[1][3] != "batch=B-7;expiry=2027-01-01" {
		t.Errorf("Unexpected lot cell: %q", rows[1][3])
	}
	if rows[2][4] != "3.5" || rows[2][5] != "kg" {
		t.Errorf("Unexpected second data row: %v", rows[2])
	}
}

func TestAttributeCellSyntax(t *testing.T) {
	cases := []struct {
		raw  string
		want map[string]string
	}{
		{"", nil},
		{"batch=B-1", map[string]string{"batch": "B-1"}},
		{" batch = B-1 ; expiry = 2026-01-01 ", map[string]string{"batch": "B-1", "expiry": "2026-01-01"}},
		{"garbage", nil},
		{"batch=B-1;garbage", map[string]string{"batch": "B-1"}},
	}
	for _, tc := range cases {
		got := parseAttributes(tc.raw)
		if len(got) != len(tc.want) {
			t.Errorf("parseAttributes(%q) = %v, want %v", tc.raw, got, tc.want)
			continue
		}
		for k, v := range tc.want {
			if got[k] != v {
				t.Errorf("parseAttributes(%q)[%s] = %q, want %q", tc.raw, k, got[k], v)
			}
		}
	}
}
