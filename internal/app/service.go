package app

import (
	"context"

	"warehouse-ledger/internal/core"

	"github.com/shopspring/decimal"
)

// ApplicationService is the single interface all transport adapters (Web,
// XLSX import) call. It decouples presentation from business logic.
// Implementations must contain no display logic of any kind.
type ApplicationService interface {
	// ── Directory ──

	// ListWarehouses returns all warehouses, active and deactivated.
	ListWarehouses(ctx context.Context) (*WarehouseListResult, error)

	// GetWarehouse resolves a warehouse by numeric ID or code.
	GetWarehouse(ctx context.Context, ref string) (*core.Warehouse, error)

	// CreateWarehouse registers a new active warehouse.
	CreateWarehouse(ctx context.Context, code, name string) (*core.Warehouse, error)

	// DeactivateWarehouse soft-deactivates a warehouse. Stock under it stays
	// readable; mutations against it are refused.
	DeactivateWarehouse(ctx context.Context, ref string) error

	// ListLocations returns the location tree of one warehouse.
	ListLocations(ctx context.Context, warehouseRef string) (*LocationListResult, error)

	// CreateLocation adds a zone, aisle or bin under the given warehouse,
	// validating depth and parent rules.
	CreateLocation(ctx context.Context, req CreateLocationRequest) (*core.Location, error)

	// DeactivateLocation soft-deactivates a location.
	DeactivateLocation(ctx context.Context, warehouseRef, locationRef string) error

	// LocationPath returns the chain from root zone down to the location.
	LocationPath(ctx context.Context, warehouseRef, locationRef string) ([]core.Location, error)

	// ListProducts returns the product catalog.
	ListProducts(ctx context.Context) (*ProductListResult, error)

	// GetProduct resolves a product by numeric ID or SKU.
	GetProduct(ctx context.Context, ref string) (*core.Product, error)

	// CreateProduct registers a new product.
	CreateProduct(ctx context.Context, req CreateProductRequest) (*core.Product, error)

	// ── Mutations ──

	// Inbound receives quantity into a location, creating the stock lot if
	// absent.
	Inbound(ctx context.Context, req MutationInput, actor core.Actor) (*core.MovementResult, error)

	// Outbound issues quantity out of an existing stock lot.
	Outbound(ctx context.Context, req MutationInput, actor core.Actor) (*core.MovementResult, error)

	// Transfer moves quantity between two locations, atomically.
	Transfer(ctx context.Context, req MutationInput, actor core.Actor) (*core.MovementResult, error)

	// Adjust applies a signed correction with a mandatory reason.
	Adjust(ctx context.Context, req MutationInput, actor core.Actor) (*core.MovementResult, error)

	// GetQuantity reads the current quantity of one stock lot. Missing lot
	// reads as zero.
	GetQuantity(ctx context.Context, warehouseRef, locationRef, productRef string, attributes map[string]string) (*QuantityResult, error)

	// ── Batch ──

	// ProcessBatch executes a bulk list of mutations with partial success:
	// each row commits or fails independently.
	ProcessBatch(ctx context.Context, requests []core.MutationRequest, actor core.Actor) (*core.BatchReport, error)

	// ── Audit ──

	OpenAudit(ctx context.Context, warehouseRef, name string, actor core.Actor) (*core.AuditSession, error)
	RecordAuditCount(ctx context.Context, sessionID, itemID int, counted decimal.Decimal, actor core.Actor) (*core.AuditItem, error)
	FinalizeAudit(ctx context.Context, sessionID int, actor core.Actor) (*core.FinalizeReport, error)
	GetAuditSession(ctx context.Context, sessionID int) (*AuditSessionResult, error)
	ListAuditSessions(ctx context.Context, warehouseRef string) ([]core.AuditSession, error)

	// ── Statuses ──

	ListStatuses(ctx context.Context) ([]core.Status, error)
	ApplyStatus(ctx context.Context, req ApplyStatusRequest, actor core.Actor) error
	ClearStatus(ctx context.Context, entityType core.EntityType, entityID int, reason string, actor core.Actor) error
	ActiveStatus(ctx context.Context, entityType core.EntityType, entityID int) (*core.EntityStatus, error)
	StatusHistory(ctx context.Context, entityType core.EntityType, entityID int) ([]core.StatusChange, error)

	// ── Reporting ──

	StockLevels(ctx context.Context, warehouseRef string) (*StockLevelsResult, error)
	MovementHistory(ctx context.Context, req MovementHistoryRequest) ([]core.StockMovement, error)
	LowStock(ctx context.Context, warehouseRef string) ([]core.LowStockRow, error)
}
