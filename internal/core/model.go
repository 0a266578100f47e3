package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Actor identifies who performed a mutating call. Identity is resolved by an
// external collaborator; the engine only records it on every movement.
type Actor struct {
	ID    int    `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

// Warehouse is a physical site holding locations. Warehouses are
// soft-deactivated, never deleted while stock references them.
type Warehouse struct {
	ID        int       `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Location depth levels. Locations form a strict tree per warehouse:
// zone (0) → aisle (1) → bin (2).
const (
	DepthZone  = 0
	DepthAisle = 1
	DepthBin   = 2
)

type Location struct {
	ID          int               `json:"id"`
	WarehouseID int               `json:"warehouse_id"`
	Code        string            `json:"code"`
	ParentID    *int              `json:"parent_id,omitempty"`
	Depth       int               `json:"depth"`
	ZoneLabel   string            `json:"zone_label,omitempty"`
	AisleLabel  string            `json:"aisle_label,omitempty"`
	BinCode     string            `json:"bin_code,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	IsActive    bool              `json:"is_active"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Product identity (SKU) is immutable once a movement references it.
type Product struct {
	ID           int             `json:"id"`
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	Unit         string          `json:"unit"`
	Category     string          `json:"category,omitempty"`
	MinimumStock decimal.Decimal `json:"minimum_stock"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Stock is the mutable current-quantity projection: one row per distinct
// (product, location, lot). Quantity is never negative after a committed
// operation; the movement log is the source of truth it is checked against.
type Stock struct {
	ID         int               `json:"id"`
	ProductID  int               `json:"product_id"`
	LocationID int               `json:"location_id"`
	LotKey     string            `json:"lot_key"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Quantity   decimal.Decimal   `json:"quantity"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// StockKey addresses one ledger row.
type StockKey struct {
	ProductID  int
	LocationID int
	LotKey     string
}

// Less orders keys deterministically (product, location, lot). Transfer locks
// its two rows in this order to avoid deadlock between opposite-direction
// transfers.
func (k StockKey) Less(o StockKey) bool {
	if k.ProductID != o.ProductID {
		return k.ProductID < o.ProductID
	}
	if k.LocationID != o.LocationID {
		return k.LocationID < o.LocationID
	}
	return k.LotKey < o.LotKey
}

type MovementType string

const (
	MovementInbound  MovementType = "INBOUND"
	MovementOutbound MovementType = "OUTBOUND"
	MovementTransfer MovementType = "TRANSFER"
	MovementAdjust   MovementType = "ADJUST"
)

// AdjustSource tags who drove an adjustment.
type AdjustSource string

const (
	AdjustSourceAudit  AdjustSource = "AUDIT"
	AdjustSourceManual AdjustSource = "MANUAL"
)

// StockMovement is one append-only row of the transaction log. Rows are never
// updated or deleted; the signed sum of all movements for a key equals the
// current Stock.Quantity for that key.
type StockMovement struct {
	ID             int               `json:"id"`
	UUID           string            `json:"uuid"`
	Reference      string            `json:"reference"`
	Type           MovementType      `json:"type"`
	WarehouseID    int               `json:"warehouse_id"`
	ProductID      int               `json:"product_id"`
	FromLocationID *int              `json:"from_location_id,omitempty"`
	ToLocationID   *int              `json:"to_location_id,omitempty"`
	LotKey         string            `json:"lot_key"`
	Attributes     map[string]string `json:"attributes,omitempty"`
	Quantity       decimal.Decimal   `json:"quantity"`
	Reason         string            `json:"reason,omitempty"`
	Source         AdjustSource      `json:"source,omitempty"`
	Note           string            `json:"note,omitempty"`
	ActorID        int               `json:"actor_id"`
	ActorEmail     string            `json:"actor_email"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// ── Status registry ───────────────────────────────────────────────────────────

type EntityType string

const (
	EntityStock     EntityType = "STOCK"
	EntityLocation  EntityType = "LOCATION"
	EntityWarehouse EntityType = "WAREHOUSE"
	EntityProduct   EntityType = "PRODUCT"
)

// StatusEffect is the closed set of gating policies a status can carry.
// CUSTOM is an escape hatch treated as transactions-prohibited.
type StatusEffect string

const (
	EffectTransactionsAllowed    StatusEffect = "TRANSACTIONS_ALLOWED"
	EffectTransactionsProhibited StatusEffect = "TRANSACTIONS_PROHIBITED"
	EffectClosed                 StatusEffect = "CLOSED"
	EffectInboundOnly            StatusEffect = "INBOUND_ONLY"
	EffectOutboundOnly           StatusEffect = "OUTBOUND_ONLY"
	EffectAuditOnly              StatusEffect = "AUDIT_ONLY"
	EffectCustom                 StatusEffect = "CUSTOM"
)

// Status is a catalog entry mapping a human name to an effect.
type Status struct {
	ID     int          `json:"id"`
	Code   string       `json:"code"`
	Name   string       `json:"name"`
	Effect StatusEffect `json:"effect"`
}

// EntityStatus is the single mutable "current status" pointer per entity.
type EntityStatus struct {
	EntityType EntityType   `json:"entity_type"`
	EntityID   int          `json:"entity_id"`
	StatusID   int          `json:"status_id"`
	StatusCode string       `json:"status_code"`
	Effect     StatusEffect `json:"effect"`
	Reason     string       `json:"reason,omitempty"`
	AppliedBy  int          `json:"applied_by"`
	AppliedAt  time.Time    `json:"applied_at"`
}

// StatusChange is one append-only row of the status history.
type StatusChange struct {
	ID           int        `json:"id"`
	EntityType   EntityType `json:"entity_type"`
	EntityID     int        `json:"entity_id"`
	PrevStatusID *int       `json:"prev_status_id,omitempty"`
	NewStatusID  *int       `json:"new_status_id,omitempty"`
	Reason       string     `json:"reason,omitempty"`
	ActorID      int        `json:"actor_id"`
	CreatedAt    time.Time  `json:"created_at"`
}

// ── Audit sessions ────────────────────────────────────────────────────────────

type AuditSessionStatus string

const (
	AuditOpen      AuditSessionStatus = "OPEN"
	AuditFinalized AuditSessionStatus = "FINALIZED"
)

type AuditSession struct {
	ID          int                `json:"id"`
	WarehouseID int                `json:"warehouse_id"`
	Name        string             `json:"name"`
	Status      AuditSessionStatus `json:"status"`
	CreatedBy   int                `json:"created_by"`
	CreatedAt   time.Time          `json:"created_at"`
	FinalizedAt *time.Time         `json:"finalized_at,omitempty"`
}

type AuditItemStatus string

const (
	AuditItemPending AuditItemStatus = "PENDING"
	AuditItemCounted AuditItemStatus = "COUNTED"
)

// AuditItem is one lot inside a session. SystemQuantity is frozen at session
// open; Variance = CountedQuantity - SystemQuantity once counted.
type AuditItem struct {
	ID                int               `json:"id"`
	SessionID         int               `json:"session_id"`
	ProductID         int               `json:"product_id"`
	LocationID        int               `json:"location_id"`
	LotKey            string            `json:"lot_key"`
	Attributes        map[string]string `json:"attributes,omitempty"`
	SystemQuantity    decimal.Decimal   `json:"system_quantity"`
	CountedQuantity   *decimal.Decimal  `json:"counted_quantity,omitempty"`
	Variance          *decimal.Decimal  `json:"variance,omitempty"`
	Status            AuditItemStatus   `json:"status"`
	AdjustmentApplied bool              `json:"adjustment_applied,omitempty"`
	CountedBy         *int              `json:"counted_by,omitempty"`
	CountedAt         *time.Time        `json:"counted_at,omitempty"`
}

// ── Batch processing ──────────────────────────────────────────────────────────

// MutationRequest is one row of a bulk batch (typically a spreadsheet line).
// RowRef carries the caller's reference (e.g. the source row number) back in
// the report.
type MutationRequest struct {
	RowRef          string            `json:"row_ref"`
	Operation       MovementType      `json:"operation"`
	WarehouseCode   string            `json:"warehouse"`
	LocationCode    string            `json:"location"`
	TargetWarehouse string            `json:"target_warehouse,omitempty"`
	TargetLocation  string            `json:"target_location,omitempty"`
	SKU             string            `json:"sku"`
	Quantity        decimal.Decimal   `json:"quantity"`
	Attributes      map[string]string `json:"attributes,omitempty"`
	Note            string            `json:"note,omitempty"`
	Reason          string            `json:"reason,omitempty"`
	IdempotencyKey  string            `json:"idempotency_key,omitempty"`
}

// BatchItemError reports one failed batch row with its typed reason.
type BatchItemError struct {
	RowRef string `json:"row_ref"`
	Code   string `json:"code"`
	Error  string `json:"error"`
}

// BatchReport is the partial-success result of ProcessBatch. A failed row
// never rolls back rows committed before it.
type BatchReport struct {
	Total     int              `json:"total"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Skipped   int              `json:"skipped"`
	Errors    []BatchItemError `json:"errors,omitempty"`
}
