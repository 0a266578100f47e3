package core_test

import (
	"context"
	"errors"
	"testing"

	"warehouse-ledger/internal/core"

	"github.com/shopspring/decimal"
)

func TestMutation_InboundCreatesLotAndMovement(t *testing.T) {
	pool := setupTestDB(t)
	svc := core.NewMutationService(pool)
	ctx := context.Background()

	res, err := svc.Inbound(ctx, core.InboundRequest{
		Warehouse: "MAIN",
		Location:  "B1",
		Product:   "P001",
		Quantity:  decimal.NewFromInt(100),
		Note:      "initial receipt",
		Actor:     testActor,
	})
	if err != nil {
		t.Fatalf("Inbound failed: %v", err)
	}

	if !res.NewQuantity.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected new quantity 100, got %s", res.NewQuantity)
	}
	if res.Movement.Reference != "IN-000001" {
		t.Errorf("Expected reference IN-000001, got %s", res.Movement.Reference)
	}
	if res.Movement.Type != core.MovementInbound {
		t.Errorf("Expected INBOUND movement, got %s", res.Movement.Type)
	}
	if res.Movement.ToLocationID == nil || *res.Movement.ToLocationID != 3 {
		t.Errorf("Expected to_location_id=3 (B1), got %v", res.Movement.ToLocationID)
	}
	if res.Movement.FromLocationID != nil {
		t.Errorf("Inbound must not set from_location_id, got %v", *res.Movement.FromLocationID)
	}
	if res.Movement.ActorID != testActor.ID {
		t.Errorf("Expected actor_id=%d, got %d", testActor.ID, res.Movement.ActorID)
	}

	// A second inbound accumulates on the same lot and gets the next reference.
	res, err = svc.Inbound(ctx, core.InboundRequest{
		Warehouse: "MAIN", Location: "B1", Product: "P001",
		Quantity: decimal.NewFromInt(50), Actor: testActor,
	})
	if err != nil {
		t.Fatalf("Second inbound failed: %v", err)
	}
	if !res.NewQuantity.Equal(decimal.NewFromInt(150)) {
		t.Errorf("Expected accumulated quantity 150, got %s", res.NewQuantity)
	}
	if res.Movement.Reference != "IN-000002" {
		t.Errorf("Expected reference IN-000002, got %s", res.Movement.Reference)
	}
}

func TestMutation_InboundRejectsNonPositiveQuantity(t *testing.T) {
	pool := setupTestDB(t)
	svc := core.NewMutationService(pool)
	ctx := context.Background()

	for _, qty := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-5)} {
		_, err := svc.Inbound(ctx, core.InboundRequest{
			Warehouse: "MAIN", Location: "B1", Product: "P001",
			Quantity: qty, Actor: testActor,
		})
		var ve *core.ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("Quantity %s: expected ValidationError, got %v", qty, err)
		}
	}
	if n := movementCount(t, ctx, pool, core.MovementInbound); n != 0 {
		t.Errorf("Expected no movements after rejected inbounds, got %d", n)
	}
}

func TestMutation_ResolveByNumericID(t *testing.T) {
	pool := setupTestDB(t)
	svc := core.NewMutationService(pool)
	ctx := context.Background()

	// Warehouse 1 = MAIN, location 3 = B1, product 1 = P001.
	res, err := svc.Inbound(ctx, core.InboundRequest{
		Warehouse: "1", Location: "3", Product: "1",
		Quantity: decimal.NewFromInt(7), Actor: testActor,
	})
	if err != nil {
		t.Fatalf("Inbound by numeric IDs failed: %v", err)
	}
	if res.Movement.WarehouseID != 1 || res.Movement.ProductID != 1 {
		t.Errorf("Resolved wrong target: warehouse=%d product=%d",
			res.Movement.WarehouseID, res.Movement.ProductID)
	}
}

func TestMutation_OutboundMissingLot(t *testing.T) {
	pool := setupTestDB(t)
	svc := core.NewMutationService(pool)
	ctx := context.Background()

	_, err := svc.Outbound(ctx, core.OutboundRequest{
		Warehouse: "MAIN", Location: "B1", Product: "P001",
		Quantity: decimal.NewFromInt(1), Actor: testActor,
	})
	var nf *core.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("Expected NotFoundError for missing lot, got %v", err)
	}
}

func TestMutation_OutboundInsufficientStock(t *testing.T) {
	pool := setupTestDB(t)
	svc := core.NewMutationService(pool)
	ctx := context.Background()

	seedStock(t, ctx, svc, "B1", "P001", 10, nil)

	_, err := svc.Outbound(ctx, core.OutboundRequest{
		Warehouse: "MAIN", Location: "B1", Product: "P001",
		Quantity: decimal.NewFromInt(15), Actor: testActor,
	})
	var is *core.InsufficientStockError
	if !errors.As(err, &is) {
		t.Fatalf("Expected InsufficientStockError, got %v", err)
	}
	if !is.Requested.Equal(decimal.NewFromInt(15)) || !is.Available.Equal(decimal.NewFromInt(10)) {
		t.Errorf("Expected requested=15 available=10, got %s/%s", is.Requested, is.Available)
	}

	// The failed outbound must leave no trace: quantity unchanged, no row.
	if qty := quantityOf(t, ctx, pool, 1, 3, nil); !qty.Equal(decimal.NewFromInt(10)) {
		t.Errorf("Expected quantity unchanged at 10, got %s", qty)
	}
	if n := movementCount(t, ctx, pool, core.MovementOutbound); n != 0 {
		t.Errorf("Expected no OUTBOUND movement rows, got %d", n)
	}
}

func TestMutation_OutboundExactDrain(t *testing.T) {
	pool := setupTestDB(t)
	svc := core.NewMutationService(pool)
	ctx := context.Background()

	seedStock(t, ctx, svc, "B1", "P001", 10, nil)

	res, err := svc.Outbound(ctx, core.OutboundRequest{
		Warehouse: "MAIN", Location: "B1", Product: "P001",
		Quantity: decimal.NewFromInt(10), Actor: testActor,
	})
	if err != nil {
		t.Fatalf("Outbound draining the lot failed: %v", err)
	}
	if !res.NewQuantity.IsZero() {
		t.Errorf("Expected quantity 0 after exact drain, got %s", res.NewQuantity)
	}
	if res.Movement.Reference != "OUT-000001" {
		t.Errorf("Expected reference OUT-000001, got %s", res.Movement.Reference)
	}
}

func TestMutation_TransferAtomic(t *testing.T) {
	pool := setupTestDB(t)
	svc := core.NewMutationService(pool)
	ctx := context.Background()

	seedStock(t, ctx, svc, "B1", "P001", 100, nil)

	res, err := svc.Transfer(ctx, core.TransferRequest{
		Warehouse:      "MAIN",
		FromLocation:   "B1",
		TargetLocation: "B2",
		Product:        "P001",
		Quantity:       decimal.NewFromInt(40),
		Actor:          testActor,
	})
	if err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}

	if !res.NewQuantity.Equal(decimal.NewFromInt(60)) {
		t.Errorf("Expected source quantity 60, got %s", res.NewQuantity)
	}
	if res.TargetQuantity == nil || !res.TargetQuantity.Equal(decimal.NewFromInt(40)) {
		t.Errorf("Expected target quantity 40, got %v", res.TargetQuantity)
	}

	// One TRANSFER row carrying both locations, not an OUT + IN pair.
	if n := movementCount(t, ctx, pool, core.MovementTransfer); n != 1 {
		t.Fatalf("Expected exactly 1 TRANSFER movement, got %d", n)
	}
	if res.Movement.FromLocationID == nil || *res.Movement.FromLocationID != 3 {
		t.Errorf("Expected from_location_id=3, got %v", res.Movement.FromLocationID)
	}
	if res.Movement.ToLocationID == nil || *res.Movement.ToLocationID != 4 {
		t.Errorf("Expected to_location_id=4, got %v", res.Movement.ToLocationID)
	}
}

func TestMutation_TransferSameLocationRejected(t *testing.T) {
	pool := setupTestDB(t)
	svc := core.NewMutationService(pool)
	ctx := context.Background()

	seedStock(t, ctx, svc, "B1", "P001", 10, nil)

	_, err := svc.Transfer(ctx, core.TransferRequest{
		Warehouse: "MAIN", FromLocation: "B1", TargetLocation: "B1",
		Product: "P001", Quantity: decimal.NewFromInt(5), Actor: testActor,
	})
	var ve *core.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Expected ValidationError for same-location transfer, got %v", err)
	}
}

func TestMutation_TransferInsufficientRollsBackBothSides(t *testing.T) {
	pool := setupTestDB(t)
	svc := core.NewMutationService(pool)
	ctx := context.Background()

	seedStock(t, ctx, svc, "B1", "P001", 30, nil)

	_, err := svc.Transfer(ctx, core.TransferRequest{
		Warehouse: "MAIN", FromLocation: "B1", TargetLocation: "B2",
		Product: "P001", Quantity: decimal.NewFromInt(50), Actor: testActor,
	})
	var is *core.InsufficientStockError
	if !errors.As(err, &is) {
		t.Fatalf("Expected InsufficientStockError, got %v", err)
	}

	if qty := quantityOf(t, ctx, pool, 1, 3, nil); !qty.Equal(decimal.NewFromInt(30)) {
		t.Errorf("Source must be unchanged at 30, got %s", qty)
	}
	if qty := quantityOf(t, ctx, pool, 1, 4, nil); !qty.IsZero() {
		t.Errorf("Target must stay at 0, got %s", qty)
	}
	if n := movementCount(t, ctx, pool, core.MovementTransfer); n != 0 {
		t.Errorf("Expected no TRANSFER movement rows, got %d", n)
	}
}

func TestMutation_TransferCrossWarehouse(t *testing.T) {
	pool := setupTestDB(t)
	svc := core.NewMutationService(pool)
	ctx := context.Background()

	seedStock(t, ctx, svc, "B1", "P001", 25, nil)

	res, err := svc.Transfer(ctx, core.TransferRequest{
		Warehouse:       "MAIN",
		FromLocation:    "B1",
		TargetWarehouse: "EAST",
		TargetLocation:  "B1", // EAST's own B1, location id 7
		Product:         "P001",
		Quantity:        decimal.NewFromInt(25),
		Actor:           testActor,
	})
	if err != nil {
		t.Fatalf("Cross-warehouse transfer failed: %v", err)
	}
	if res.TargetQuantity == nil || !res.TargetQuantity.Equal(decimal.NewFromInt(25)) {
		t.Errorf("Expected 25 at EAST/B1, got %v", res.TargetQuantity)
	}
	if *res.Movement.ToLocationID != 7 {
		t.Errorf("Expected to_location_id=7, got %d", *res.Movement.ToLocationID)
	}
}

func TestMutation_TransferCrossWarehouseRequiresActiveTarget(t *testing.T) {
	pool := setupTestDB(t)
	svc := core.NewMutationService(pool)
	ctx := context.Background()

	seedStock(t, ctx, svc, "B1", "P001", 25, nil)
	if _, err := pool.Exec(ctx, "UPDATE warehouses SET is_active = false WHERE code = 'EAST'"); err != nil {
		t.Fatalf("Failed to deactivate warehouse: %v", err)
	}

	_, err := svc.Transfer(ctx, core.TransferRequest{
		Warehouse: "MAIN", FromLocation: "B1",
		TargetWarehouse: "EAST", TargetLocation: "B1",
		Product: "P001", Quantity: decimal.NewFromInt(5), Actor: testActor,
	})
	var ve *core.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Expected ValidationError for inactive target warehouse, got %v", err)
	}
}

func TestMutation_AdjustSignedDelta(t *testing.T) {
	pool := setupTestDB(t)
	svc := core.NewMutationService(pool)
	ctx := context.Background()

	seedStock(t, ctx, svc, "B1", "P001", 50, nil)

	// Negative correction.
	res, err := svc.Adjust(ctx, core.AdjustRequest{
		Warehouse: "MAIN", Location: "B1", Product: "P001",
		Delta:  decimal.NewFromInt(-8),
		Reason: "damaged in handling",
		Source: core.AdjustSourceManual,
		Actor:  testActor,
	})
	if err != nil {
		t.Fatalf("Negative adjust failed: %v", err)
	}
	if !res.NewQuantity.Equal(decimal.NewFromInt(42)) {
		t.Errorf("Expected 42 after -8 adjust, got %s", res.NewQuantity)
	}
	// Movement stores the magnitude; direction lives in the location columns.
	if !res.Movement.Quantity.Equal(decimal.NewFromInt(8)) {
		t.Errorf("Expected movement quantity 8, got %s", res.Movement.Quantity)
	}
	if res.Movement.FromLocationID == nil || res.Movement.ToLocationID != nil {
		t.Error("Negative adjust must leave via from_location_id only")
	}

	// Positive correction.
	res, err = svc.Adjust(ctx, core.AdjustRequest{
		Warehouse: "MAIN", Location: "B1", Product: "P001",
		Delta:  decimal.NewFromInt(3),
		Reason: "found during recount",
		Source: core.AdjustSourceManual,
		Actor:  testActor,
	})
	if err != nil {
		t.Fatalf("Positive adjust failed: %v", err)
	}
	if !res.NewQuantity.Equal(decimal.NewFromInt(45)) {
		t.Errorf("Expected 45 after +3 adjust, got %s", res.NewQuantity)
	}
	if res.Movement.ToLocationID == nil || res.Movement.FromLocationID != nil {
		t.Error("Positive adjust must enter via to_location_id only")
	}
}

func TestMutation_AdjustValidation(t *testing.T) {
	pool := setupTestDB(t)
	svc := core.NewMutationService(pool)
	ctx := context.Background()

	seedStock(t, ctx, svc, "B1", "P001", 10, nil)

	cases := []struct {
		name string
		req  core.AdjustRequest
	}{
		{"zero delta", core.AdjustRequest{
			Warehouse: "MAIN", Location: "B1", Product: "P001",
			Delta: decimal.Zero, Reason: "noop", Source: core.AdjustSourceManual, Actor: testActor}},
		{"missing reason", core.AdjustRequest{
			Warehouse: "MAIN", Location: "B1", Product: "P001",
			Delta: decimal.NewFromInt(1), Source: core.AdjustSourceManual, Actor: testActor}},
		{"bad source", core.AdjustRequest{
			Warehouse: "MAIN", Location: "B1", Product: "P001",
			Delta: decimal.NewFromInt(1), Reason: "r", Source: "ROBOT", Actor: testActor}},
	}
	for _, tc := range cases {
		_, err := svc.Adjust(ctx, tc.req)
		var ve *core.ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("%s: expected ValidationError, got %v", tc.name, err)
		}
	}

	// Below-zero adjustment is an insufficiency, not a validation failure.
	_, err := svc.Adjust(ctx, core.AdjustRequest{
		Warehouse: "MAIN", Location: "B1", Product: "P001",
		Delta: decimal.NewFromInt(-11), Reason: "shrinkage",
		Source: core.AdjustSourceManual, Actor: testActor,
	})
	var is *core.InsufficientStockError
	if !errors.As(err, &is) {
		t.Errorf("Expected InsufficientStockError for below-zero adjust, got %v", err)
	}
}

func TestMutation_IdempotencyKeyRejectsReplay(t *testing.T) {
	pool := setupTestDB(t)
	svc := core.NewMutationService(pool)
	ctx := context.Background()

	req := core.InboundRequest{
		Warehouse: "MAIN", Location: "B1", Product: "P001",
		Quantity: decimal.NewFromInt(10), IdempotencyKey: "receipt-42", Actor: testActor,
	}
	if _, err := svc.Inbound(ctx, req); err != nil {
		t.Fatalf("First inbound failed: %v", err)
	}

	_, err := svc.Inbound(ctx, req)
	var ve *core.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Expected ValidationError on replayed idempotency key, got %v", err)
	}

	// The replay must not have touched the ledger.
	if qty := quantityOf(t, ctx, pool, 1, 3, nil); !qty.Equal(decimal.NewFromInt(10)) {
		t.Errorf("Expected quantity 10 after rejected replay, got %s", qty)
	}
}

func TestMutation_LotAttributesSeparateLots(t *testing.T) {
	pool := setupTestDB(t)
	svc := core.NewMutationService(pool)
	ctx := context.Background()

	batchA := map[string]string{"batch": "A", "expiry": "2027-01-01"}
	// Same pairs, different insertion order: must land on the same lot.
	batchAReordered := map[string]string{"expiry": "2027-01-01", "batch": "A"}
	batchB := map[string]string{"batch": "B"}

	seedStock(t, ctx, svc, "B1", "P001", 10, batchA)
	seedStock(t, ctx, svc, "B1", "P001", 5, batchAReordered)
	seedStock(t, ctx, svc, "B1", "P001", 3, batchB)
	seedStock(t, ctx, svc, "B1", "P001", 1, nil)

	if qty := quantityOf(t, ctx, pool, 1, 3, batchA); !qty.Equal(decimal.NewFromInt(15)) {
		t.Errorf("Expected batch A lot at 15, got %s", qty)
	}
	if qty := quantityOf(t, ctx, pool, 1, 3, batchB); !qty.Equal(decimal.NewFromInt(3)) {
		t.Errorf("Expected batch B lot at 3, got %s", qty)
	}
	if qty := quantityOf(t, ctx, pool, 1, 3, nil); !qty.Equal(decimal.NewFromInt(1)) {
		t.Errorf("Expected attribute-less lot at 1, got %s", qty)
	}

	// Outbound addressed to one lot must not touch its siblings.
	_, err := svc.Outbound(ctx, core.OutboundRequest{
		Warehouse: "MAIN", Location: "B1", Product: "P001",
		Quantity: decimal.NewFromInt(15), Attributes: batchA, Actor: testActor,
	})
	if err != nil {
		t.Fatalf("Outbound from batch A failed: %v", err)
	}
	if qty := quantityOf(t, ctx, pool, 1, 3, batchB); !qty.Equal(decimal.NewFromInt(3)) {
		t.Errorf("Batch B lot must be untouched at 3, got %s", qty)
	}
}

func TestMutation_InboundToInactiveLocationRejected(t *testing.T) {
	pool := setupTestDB(t)
	svc := core.NewMutationService(pool)
	ctx := context.Background()

	if _, err := pool.Exec(ctx, "UPDATE locations SET is_active = false WHERE id = 3"); err != nil {
		t.Fatalf("Failed to deactivate location: %v", err)
	}

	_, err := svc.Inbound(ctx, core.InboundRequest{
		Warehouse: "MAIN", Location: "B1", Product: "P001",
		Quantity: decimal.NewFromInt(5), Actor: testActor,
	})
	var ve *core.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Expected ValidationError for inactive inbound target, got %v", err)
	}
}
