package core_test

import (
	"context"
	"testing"

	"warehouse-ledger/internal/core"

	"github.com/shopspring/decimal"
)

func TestBatch_MixedOperationsPartialSuccess(t *testing.T) {
	pool := setupTestDB(t)
	mutations := core.NewMutationService(pool)
	batches := core.NewBatchService(mutations)
	ctx := context.Background()

	requests := []core.MutationRequest{
		{RowRef: "row 2", Operation: core.MovementInbound, WarehouseCode: "MAIN", LocationCode: "B1",
			SKU: "P001", Quantity: decimal.NewFromInt(100)},
		{RowRef: "row 3", Operation: core.MovementTransfer, WarehouseCode: "MAIN", LocationCode: "B1",
			TargetLocation: "B2", SKU: "P001", Quantity: decimal.NewFromInt(30)},
		// Unknown SKU: fails, but rows before and after still run.
		{RowRef: "row 4", Operation: core.MovementInbound, WarehouseCode: "MAIN", LocationCode: "B1",
			SKU: "NOPE", Quantity: decimal.NewFromInt(5)},
		{RowRef: "row 5", Operation: core.MovementOutbound, WarehouseCode: "MAIN", LocationCode: "B2",
			SKU: "P001", Quantity: decimal.NewFromInt(10)},
		{RowRef: "row 6", Operation: core.MovementAdjust, WarehouseCode: "MAIN", LocationCode: "B1",
			SKU: "P001", Quantity: decimal.NewFromInt(-7), Reason: "damaged in storage"},
	}

	report, err := batches.ProcessBatch(ctx, requests, testActor)
	if err != nil {
		t.Fatalf("ProcessBatch failed: %v", err)
	}
	if report.Total != 5 || report.Succeeded != 4 || report.Failed != 1 || report.Skipped != 0 {
		t.Fatalf("Unexpected report: %+v", report)
	}
	if len(report.Errors) != 1 {
		t.Fatalf("Expected 1 row error, got %d", len(report.Errors))
	}
	if report.Errors[0].RowRef != "row 4" || report.Errors[0].Code != "NOT_FOUND" {
		t.Errorf("Unexpected row error: %+v", report.Errors[0])
	}

	// 100 in, 30 transferred out, 7 adjusted away.
	if qty := quantityOf(t, ctx, pool, 1, 3, nil); !qty.Equal(decimal.NewFromInt(63)) {
		t.Errorf("Expected B1 at 63, got %s", qty)
	}
	// 30 in, 10 shipped.
	if qty := quantityOf(t, ctx, pool, 1, 4, nil); !qty.Equal(decimal.NewFromInt(20)) {
		t.Errorf("Expected B2 at 20, got %s", qty)
	}
}

func TestBatch_FailedRowDoesNotRollBackEarlierRows(t *testing.T) {
	pool := setupTestDB(t)
	mutations := core.NewMutationService(pool)
	batches := core.NewBatchService(mutations)
	ctx := context.Background()

	requests := []core.MutationRequest{
		{Operation: core.MovementInbound, WarehouseCode: "MAIN", LocationCode: "B1",
			SKU: "P001", Quantity: decimal.NewFromInt(10)},
		{Operation: core.MovementOutbound, WarehouseCode: "MAIN", LocationCode: "B1",
			SKU: "P001", Quantity: decimal.NewFromInt(50)},
	}

	report, err := batches.ProcessBatch(ctx, requests, testActor)
	if err != nil {
		t.Fatalf("ProcessBatch failed: %v", err)
	}
	if report.Succeeded != 1 || report.Failed != 1 {
		t.Fatalf("Unexpected report: %+v", report)
	}
	if report.Errors[0].Code != "INSUFFICIENT_STOCK" {
		t.Errorf("Expected INSUFFICIENT_STOCK, got %s", report.Errors[0].Code)
	}
	// RowRef defaults to the positional row when the caller left it blank.
	if report.Errors[0].RowRef != "row 2" {
		t.Errorf("Expected positional row ref, got %s", report.Errors[0].RowRef)
	}

	if qty := quantityOf(t, ctx, pool, 1, 3, nil); !qty.Equal(decimal.NewFromInt(10)) {
		t.Errorf("Expected the inbound row to stay committed, got %s", qty)
	}
}

func TestBatch_UnknownOperation(t *testing.T) {
	pool := setupTestDB(t)
	batches := core.NewBatchService(core.NewMutationService(pool))

	report, err := batches.ProcessBatch(context.Background(), []core.MutationRequest{
		{Operation: "RESHUFFLE", WarehouseCode: "MAIN", LocationCode: "B1",
			SKU: "P001", Quantity: decimal.NewFromInt(1)},
	}, testActor)
	if err != nil {
		t.Fatalf("ProcessBatch failed: %v", err)
	}
	if report.Failed != 1 || report.Errors[0].Code != "VALIDATION" {
		t.Fatalf("Expected VALIDATION failure, got %+v", report)
	}
}

func TestBatch_CancelledContextSkipsRemainingRows(t *testing.T) {
	pool := setupTestDB(t)
	batches := core.NewBatchService(core.NewMutationService(pool))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := batches.ProcessBatch(ctx, []core.MutationRequest{
		{Operation: core.MovementInbound, WarehouseCode: "MAIN", LocationCode: "B1",
			SKU: "P001", Quantity: decimal.NewFromInt(1)},
		{Operation: core.MovementInbound, WarehouseCode: "MAIN", LocationCode: "B1",
			SKU: "P001", Quantity: decimal.NewFromInt(1)},
	}, testActor)
	if err != nil {
		t.Fatalf("ProcessBatch failed: %v", err)
	}
	if report.Skipped != 2 || report.Succeeded != 0 {
		t.Fatalf("Expected both rows skipped, got %+v", report)
	}
}
