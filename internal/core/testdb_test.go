package core_test

import (
	"context"
	"os"
	"testing"

	"warehouse-ledger/internal/core"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

var testActor = core.Actor{ID: 1, Email: "tester@example.com"}

// setupTestDB connects to the dedicated test database, wipes it, and seeds
// two warehouses with a zone/aisle/bin tree each plus a small product catalog.
// Migrations are expected to have run against the test database beforehand.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	_ = godotenv.Load("../../.env")

	// Use a dedicated TEST database to avoid wiping the live app database.
	// Set TEST_DATABASE_URL in your .env or environment to run integration tests.
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test to protect live database")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	_, err = pool.Exec(ctx, `
		TRUNCATE TABLE audit_items, audit_sessions, status_changes, entity_statuses,
			statuses, stock_movements, movement_sequences, stocks,
			products, locations, warehouses CASCADE;

		INSERT INTO warehouses (id, code, name) VALUES
			(1, 'MAIN', 'Main Warehouse'),
			(2, 'EAST', 'East Warehouse');

		INSERT INTO locations (id, warehouse_id, code, parent_id, depth, zone_label, aisle_label, bin_code) VALUES
			(1, 1, 'Z1',    NULL, 0, 'Z1', '',   ''),
			(2, 1, 'Z1-A1', 1,    1, 'Z1', 'A1', ''),
			(3, 1, 'B1',    2,    2, 'Z1', 'A1', 'B1'),
			(4, 1, 'B2',    2,    2, 'Z1', 'A1', 'B2'),
			(5, 2, 'Z1',    NULL, 0, 'Z1', '',   ''),
			(6, 2, 'Z1-A1', 5,    1, 'Z1', 'A1', ''),
			(7, 2, 'B1',    6,    2, 'Z1', 'A1', 'B1');

		INSERT INTO products (id, sku, name, unit, minimum_stock) VALUES
			(1, 'P001', 'Widget', 'unit', 0),
			(2, 'P002', 'Gadget', 'unit', 20);

		INSERT INTO movement_sequences (movement_type) VALUES
			('INBOUND'), ('OUTBOUND'), ('TRANSFER'), ('ADJUST');

		INSERT INTO statuses (id, code, name, effect) VALUES
			(1, 'ACTIVE',      'Active',         'TRANSACTIONS_ALLOWED'),
			(2, 'BLOCKED',     'Blocked',        'TRANSACTIONS_PROHIBITED'),
			(3, 'RECEIVING',   'Receiving only', 'INBOUND_ONLY'),
			(4, 'SHIPPING',    'Shipping only',  'OUTBOUND_ONLY'),
			(5, 'UNDER_AUDIT', 'Under audit',    'AUDIT_ONLY'),
			(6, 'CLOSED',      'Closed',         'CLOSED');

		SELECT setval(pg_get_serial_sequence('warehouses', 'id'), 100);
		SELECT setval(pg_get_serial_sequence('locations', 'id'), 100);
		SELECT setval(pg_get_serial_sequence('products', 'id'), 100);
		SELECT setval(pg_get_serial_sequence('statuses', 'id'), 100);
	`)
	if err != nil {
		t.Fatalf("Failed to seed test database: %v", err)
	}

	t.Cleanup(pool.Close)
	return pool
}

// seedStock runs an inbound so the lot exists with the given quantity.
func seedStock(t *testing.T, ctx context.Context, svc core.MutationService, location, product string, qty int64, attrs map[string]string) {
	t.Helper()
	_, err := svc.Inbound(ctx, core.InboundRequest{
		Warehouse:  "MAIN",
		Location:   location,
		Product:    product,
		Quantity:   decimal.NewFromInt(qty),
		Attributes: attrs,
		Actor:      testActor,
	})
	if err != nil {
		t.Fatalf("Failed to seed stock %s@%s: %v", product, location, err)
	}
}

// quantityOf reads the current quantity of a lot directly.
func quantityOf(t *testing.T, ctx context.Context, pool *pgxpool.Pool, productID, locationID int, attrs map[string]string) decimal.Decimal {
	t.Helper()
	ledger := core.NewStockLedger(pool)
	qty, err := ledger.Quantity(ctx, core.StockKey{
		ProductID:  productID,
		LocationID: locationID,
		LotKey:     core.LotFingerprint(attrs),
	})
	if err != nil {
		t.Fatalf("Failed to read quantity: %v", err)
	}
	return qty
}

// movementCount counts movement rows of one type.
func movementCount(t *testing.T, ctx context.Context, pool *pgxpool.Pool, mtype core.MovementType) int {
	t.Helper()
	var n int
	err := pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM stock_movements WHERE movement_type = $1", string(mtype)).Scan(&n)
	if err != nil {
		t.Fatalf("Failed to count movements: %v", err)
	}
	return n
}
