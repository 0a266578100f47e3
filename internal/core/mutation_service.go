package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// MutationService is the only writer of the stock ledger and the movement
// log. Every operation is one atomic transaction: ledger delta(s) plus the
// movement row commit together or not at all. Identifier resolution and
// status gating happen inside the same transaction, and sufficiency is
// re-checked under the row lock immediately before the write.
type MutationService interface {
	Inbound(ctx context.Context, req InboundRequest) (*MovementResult, error)
	Outbound(ctx context.Context, req OutboundRequest) (*MovementResult, error)
	Transfer(ctx context.Context, req TransferRequest) (*MovementResult, error)
	Adjust(ctx context.Context, req AdjustRequest) (*MovementResult, error)
}

// InboundRequest receives quantity into a location. Warehouse, Location and
// Product accept either a human code or a surrogate id.
type InboundRequest struct {
	Warehouse      string
	Location       string
	Product        string
	Quantity       decimal.Decimal
	Attributes     map[string]string
	Note           string
	IdempotencyKey string
	Actor          Actor
}

// OutboundRequest issues quantity out of a stock lot, addressed by
// warehouse/location/product plus the lot attributes.
type OutboundRequest struct {
	Warehouse      string
	Location       string
	Product        string
	Quantity       decimal.Decimal
	Attributes     map[string]string
	Note           string
	IdempotencyKey string
	Actor          Actor
}

// TransferRequest moves quantity between two locations. TargetWarehouse set
// and different from Warehouse makes it a cross-warehouse transfer, which
// additionally requires both warehouses active.
type TransferRequest struct {
	Warehouse       string
	FromLocation    string
	TargetWarehouse string // empty = same warehouse
	TargetLocation  string
	Product         string
	Quantity        decimal.Decimal
	Attributes      map[string]string
	Note            string
	IdempotencyKey  string
	Actor           Actor
}

// AdjustRequest applies a signed correction, tagged with its reason and
// source (AUDIT or MANUAL).
type AdjustRequest struct {
	Warehouse      string
	Location       string
	Product        string
	Delta          decimal.Decimal
	Attributes     map[string]string
	Reason         string
	Source         AdjustSource
	Note           string
	IdempotencyKey string
	Actor          Actor
}

// MovementResult reports the committed movement and the resulting
// quantity(ies).
type MovementResult struct {
	Movement       StockMovement    `json:"movement"`
	NewQuantity    decimal.Decimal  `json:"new_quantity"`
	TargetQuantity *decimal.Decimal `json:"target_quantity,omitempty"`
}

type mutationService struct {
	pool *pgxpool.Pool
}

func NewMutationService(pool *pgxpool.Pool) MutationService {
	return &mutationService{pool: pool}
}

// ── In-tx resolution ──────────────────────────────────────────────────────────

func resolveWarehouseTx(ctx context.Context, tx pgx.Tx, ref string) (*Warehouse, error) {
	var w Warehouse
	var err error
	if id, convErr := strconv.Atoi(ref); convErr == nil {
		err = tx.QueryRow(ctx,
			"SELECT id, code, name, is_active, created_at FROM warehouses WHERE id = $1", id,
		).Scan(&w.ID, &w.Code, &w.Name, &w.IsActive, &w.CreatedAt)
	} else {
		err = tx.QueryRow(ctx,
			"SELECT id, code, name, is_active, created_at FROM warehouses WHERE code = $1", ref,
		).Scan(&w.ID, &w.Code, &w.Name, &w.IsActive, &w.CreatedAt)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Kind: "warehouse", Ref: ref}
		}
		return nil, fmt.Errorf("failed to resolve warehouse: %w", err)
	}
	return &w, nil
}

func resolveLocationTx(ctx context.Context, tx pgx.Tx, ref string, warehouseID int) (*Location, error) {
	var l Location
	var err error
	if id, convErr := strconv.Atoi(ref); convErr == nil {
		err = tx.QueryRow(ctx,
			"SELECT id, warehouse_id, code, depth, is_active FROM locations WHERE id = $1 AND warehouse_id = $2",
			id, warehouseID,
		).Scan(&l.ID, &l.WarehouseID, &l.Code, &l.Depth, &l.IsActive)
	} else {
		err = tx.QueryRow(ctx,
			"SELECT id, warehouse_id, code, depth, is_active FROM locations WHERE code = $1 AND warehouse_id = $2",
			ref, warehouseID,
		).Scan(&l.ID, &l.WarehouseID, &l.Code, &l.Depth, &l.IsActive)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Kind: "location", Ref: ref}
		}
		return nil, fmt.Errorf("failed to resolve location: %w", err)
	}
	return &l, nil
}

func resolveProductTx(ctx context.Context, tx pgx.Tx, ref string) (*Product, error) {
	var p Product
	var err error
	if id, convErr := strconv.Atoi(ref); convErr == nil {
		err = tx.QueryRow(ctx,
			"SELECT id, sku, name, unit FROM products WHERE id = $1", id,
		).Scan(&p.ID, &p.SKU, &p.Name, &p.Unit)
	} else {
		err = tx.QueryRow(ctx,
			"SELECT id, sku, name, unit FROM products WHERE sku = $1", ref,
		).Scan(&p.ID, &p.SKU, &p.Name, &p.Unit)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Kind: "product", Ref: ref}
		}
		return nil, fmt.Errorf("failed to resolve product: %w", err)
	}
	return &p, nil
}

// ── Status gating ─────────────────────────────────────────────────────────────

// effectBlocks reports whether a status effect forbids an operation.
// TRANSACTIONS_PROHIBITED, CLOSED and CUSTOM block everything; the *_ONLY
// effects allow their own direction plus Adjust, and AUDIT_ONLY allows only
// Adjust.
func effectBlocks(effect StatusEffect, op MovementType) bool {
	switch effect {
	case EffectTransactionsAllowed:
		return false
	case EffectTransactionsProhibited, EffectClosed, EffectCustom:
		return true
	case EffectInboundOnly:
		return op == MovementOutbound
	case EffectOutboundOnly:
		return op == MovementInbound
	case EffectAuditOnly:
		return op != MovementAdjust
	default:
		// Unknown effects are prohibited-by-default, same as CUSTOM.
		return true
	}
}

type gateTarget struct {
	entityType EntityType
	entityID   int
}

// checkGateTx rejects the operation if any of the targeted entities carries a
// blocking status. The most specific entity is checked first so the error
// names the tightest restriction.
func checkGateTx(ctx context.Context, tx pgx.Tx, op MovementType, targets []gateTarget) error {
	for _, t := range targets {
		es, err := activeStatusQ(ctx, tx, t.entityType, t.entityID)
		if err != nil {
			return err
		}
		if es == nil {
			continue
		}
		if effectBlocks(es.Effect, op) {
			return &StatusRestrictionError{
				EntityType: t.entityType,
				StatusCode: es.StatusCode,
				Effect:     es.Effect,
				Operation:  op,
			}
		}
	}
	return nil
}

// ── Operations ────────────────────────────────────────────────────────────────

func (s *mutationService) Inbound(ctx context.Context, req InboundRequest) (*MovementResult, error) {
	if !req.Quantity.IsPositive() {
		return nil, validationf("inbound quantity must be positive, got %s", req.Quantity)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	wh, loc, prod, err := s.resolveTarget(ctx, tx, req.Warehouse, req.Location, req.Product, true)
	if err != nil {
		return nil, err
	}

	key := StockKey{ProductID: prod.ID, LocationID: loc.ID, LotKey: LotFingerprint(req.Attributes)}
	gates := []gateTarget{
		{EntityLocation, loc.ID},
		{EntityProduct, prod.ID},
		{EntityWarehouse, wh.ID},
	}
	if err := checkGateTx(ctx, tx, MovementInbound, gates); err != nil {
		return nil, err
	}

	stockID, current, err := lockStockRowTx(ctx, tx, key, req.Attributes)
	if err != nil {
		return nil, translateConflict("inbound", err)
	}
	// The lot itself may carry a status from a previous life of the row.
	if err := checkGateTx(ctx, tx, MovementInbound, []gateTarget{{EntityStock, stockID}}); err != nil {
		return nil, err
	}

	newQty, err := applyDeltaTx(ctx, tx, stockID, current, req.Quantity)
	if err != nil {
		return nil, err
	}

	toLoc := loc.ID
	movement, err := appendMovementTx(ctx, tx, StockMovement{
		UUID:           uuid.NewString(),
		Type:           MovementInbound,
		WarehouseID:    wh.ID,
		ProductID:      prod.ID,
		ToLocationID:   &toLoc,
		LotKey:         key.LotKey,
		Attributes:     req.Attributes,
		Quantity:       req.Quantity,
		Note:           req.Note,
		ActorID:        req.Actor.ID,
		ActorEmail:     req.Actor.Email,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, translateConflict("inbound", fmt.Errorf("failed to commit inbound: %w", err))
	}
	return &MovementResult{Movement: *movement, NewQuantity: newQty}, nil
}

func (s *mutationService) Outbound(ctx context.Context, req OutboundRequest) (*MovementResult, error) {
	if !req.Quantity.IsPositive() {
		return nil, validationf("outbound quantity must be positive, got %s", req.Quantity)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	wh, loc, prod, err := s.resolveTarget(ctx, tx, req.Warehouse, req.Location, req.Product, false)
	if err != nil {
		return nil, err
	}

	key := StockKey{ProductID: prod.ID, LocationID: loc.ID, LotKey: LotFingerprint(req.Attributes)}

	// An outbound from a lot that never existed is a missing lot, not an
	// insufficiency.
	stockID, current, found, err := lookupStockTx(ctx, tx, key)
	if err != nil {
		return nil, translateConflict("outbound", err)
	}
	if !found {
		return nil, &NotFoundError{Kind: "stock lot", Ref: fmt.Sprintf("%s@%s %s", prod.SKU, loc.Code, key.LotKey)}
	}

	gates := []gateTarget{
		{EntityStock, stockID},
		{EntityLocation, loc.ID},
		{EntityProduct, prod.ID},
		{EntityWarehouse, wh.ID},
	}
	if err := checkGateTx(ctx, tx, MovementOutbound, gates); err != nil {
		return nil, err
	}

	// Explicit sufficiency check under the lock, so the user sees both
	// amounts instead of a constraint failure.
	if current.LessThan(req.Quantity) {
		return nil, &InsufficientStockError{Requested: req.Quantity, Available: current}
	}

	newQty, err := applyDeltaTx(ctx, tx, stockID, current, req.Quantity.Neg())
	if err != nil {
		return nil, err
	}

	fromLoc := loc.ID
	movement, err := appendMovementTx(ctx, tx, StockMovement{
		UUID:           uuid.NewString(),
		Type:           MovementOutbound,
		WarehouseID:    wh.ID,
		ProductID:      prod.ID,
		FromLocationID: &fromLoc,
		LotKey:         key.LotKey,
		Attributes:     req.Attributes,
		Quantity:       req.Quantity,
		Note:           req.Note,
		ActorID:        req.Actor.ID,
		ActorEmail:     req.Actor.Email,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, translateConflict("outbound", fmt.Errorf("failed to commit outbound: %w", err))
	}
	return &MovementResult{Movement: *movement, NewQuantity: newQty}, nil
}

func (s *mutationService) Transfer(ctx context.Context, req TransferRequest) (*MovementResult, error) {
	if !req.Quantity.IsPositive() {
		return nil, validationf("transfer quantity must be positive, got %s", req.Quantity)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	srcWh, err := resolveWarehouseTx(ctx, tx, req.Warehouse)
	if err != nil {
		return nil, err
	}
	srcLoc, err := resolveLocationTx(ctx, tx, req.FromLocation, srcWh.ID)
	if err != nil {
		return nil, err
	}
	prod, err := resolveProductTx(ctx, tx, req.Product)
	if err != nil {
		return nil, err
	}

	// Same-warehouse and cross-warehouse transfer are distinct variants:
	// cross requires both warehouses active.
	dstWh := srcWh
	cross := req.TargetWarehouse != "" && req.TargetWarehouse != req.Warehouse
	if cross {
		dstWh, err = resolveWarehouseTx(ctx, tx, req.TargetWarehouse)
		if err != nil {
			return nil, err
		}
		if dstWh.ID == srcWh.ID {
			cross = false
		}
	}
	if cross && (!srcWh.IsActive || !dstWh.IsActive) {
		return nil, validationf("cross-warehouse transfer requires both warehouses active")
	}
	dstLoc, err := resolveLocationTx(ctx, tx, req.TargetLocation, dstWh.ID)
	if err != nil {
		return nil, err
	}
	if !dstLoc.IsActive {
		return nil, validationf("target location %q is not active", dstLoc.Code)
	}
	if dstLoc.ID == srcLoc.ID {
		return nil, validationf("transfer source and target are the same location")
	}

	lotKey := LotFingerprint(req.Attributes)
	srcKey := StockKey{ProductID: prod.ID, LocationID: srcLoc.ID, LotKey: lotKey}
	dstKey := StockKey{ProductID: prod.ID, LocationID: dstLoc.ID, LotKey: lotKey}

	// Source side must pass the outbound gate, target side the inbound gate.
	if err := checkGateTx(ctx, tx, MovementOutbound, []gateTarget{
		{EntityLocation, srcLoc.ID}, {EntityProduct, prod.ID}, {EntityWarehouse, srcWh.ID},
	}); err != nil {
		return nil, err
	}
	if err := checkGateTx(ctx, tx, MovementInbound, []gateTarget{
		{EntityLocation, dstLoc.ID}, {EntityWarehouse, dstWh.ID},
	}); err != nil {
		return nil, err
	}

	// Both row locks in deterministic key order, so two opposite-direction
	// transfers cannot deadlock.
	first, second := srcKey, dstKey
	if second.Less(first) {
		first, second = second, first
	}
	ids := make(map[StockKey]int, 2)
	qtys := make(map[StockKey]decimal.Decimal, 2)
	for _, k := range []StockKey{first, second} {
		id, qty, err := lockStockRowTx(ctx, tx, k, req.Attributes)
		if err != nil {
			return nil, translateConflict("transfer", err)
		}
		ids[k], qtys[k] = id, qty
	}

	if err := checkGateTx(ctx, tx, MovementOutbound, []gateTarget{{EntityStock, ids[srcKey]}}); err != nil {
		return nil, err
	}
	if err := checkGateTx(ctx, tx, MovementInbound, []gateTarget{{EntityStock, ids[dstKey]}}); err != nil {
		return nil, err
	}

	if qtys[srcKey].LessThan(req.Quantity) {
		return nil, &InsufficientStockError{Requested: req.Quantity, Available: qtys[srcKey]}
	}

	// Two deltas under one tx: a failure on either side rolls back both.
	newSrc, err := applyDeltaTx(ctx, tx, ids[srcKey], qtys[srcKey], req.Quantity.Neg())
	if err != nil {
		return nil, err
	}
	newDst, err := applyDeltaTx(ctx, tx, ids[dstKey], qtys[dstKey], req.Quantity)
	if err != nil {
		return nil, err
	}

	fromLoc, toLoc := srcLoc.ID, dstLoc.ID
	movement, err := appendMovementTx(ctx, tx, StockMovement{
		UUID:           uuid.NewString(),
		Type:           MovementTransfer,
		WarehouseID:    srcWh.ID,
		ProductID:      prod.ID,
		FromLocationID: &fromLoc,
		ToLocationID:   &toLoc,
		LotKey:         lotKey,
		Attributes:     req.Attributes,
		Quantity:       req.Quantity,
		Note:           req.Note,
		ActorID:        req.Actor.ID,
		ActorEmail:     req.Actor.Email,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, translateConflict("transfer", fmt.Errorf("failed to commit transfer: %w", err))
	}
	return &MovementResult{Movement: *movement, NewQuantity: newSrc, TargetQuantity: &newDst}, nil
}

func (s *mutationService) Adjust(ctx context.Context, req AdjustRequest) (*MovementResult, error) {
	if req.Delta.IsZero() {
		return nil, validationf("adjust delta must be nonzero")
	}
	if req.Reason == "" {
		return nil, validationf("adjust reason is required")
	}
	if req.Source != AdjustSourceAudit && req.Source != AdjustSourceManual {
		return nil, validationf("adjust source must be AUDIT or MANUAL, got %q", req.Source)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	wh, loc, prod, err := s.resolveTarget(ctx, tx, req.Warehouse, req.Location, req.Product, false)
	if err != nil {
		return nil, err
	}

	key := StockKey{ProductID: prod.ID, LocationID: loc.ID, LotKey: LotFingerprint(req.Attributes)}
	gates := []gateTarget{
		{EntityLocation, loc.ID},
		{EntityProduct, prod.ID},
		{EntityWarehouse, wh.ID},
	}
	if err := checkGateTx(ctx, tx, MovementAdjust, gates); err != nil {
		return nil, err
	}

	stockID, current, err := lockStockRowTx(ctx, tx, key, req.Attributes)
	if err != nil {
		return nil, translateConflict("adjust", err)
	}
	if err := checkGateTx(ctx, tx, MovementAdjust, []gateTarget{{EntityStock, stockID}}); err != nil {
		return nil, err
	}

	newQty, err := applyDeltaTx(ctx, tx, stockID, current, req.Delta)
	if err != nil {
		return nil, err
	}

	// Movement quantity is always positive; the sign lives in the locations:
	// a negative adjustment leaves the location, a positive one enters it.
	locID := loc.ID
	m := StockMovement{
		UUID:           uuid.NewString(),
		Type:           MovementAdjust,
		WarehouseID:    wh.ID,
		ProductID:      prod.ID,
		LotKey:         key.LotKey,
		Attributes:     req.Attributes,
		Quantity:       req.Delta.Abs(),
		Reason:         req.Reason,
		Source:         req.Source,
		Note:           req.Note,
		ActorID:        req.Actor.ID,
		ActorEmail:     req.Actor.Email,
		IdempotencyKey: req.IdempotencyKey,
	}
	if req.Delta.IsNegative() {
		m.FromLocationID = &locID
	} else {
		m.ToLocationID = &locID
	}
	movement, err := appendMovementTx(ctx, tx, m)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, translateConflict("adjust", fmt.Errorf("failed to commit adjust: %w", err))
	}
	return &MovementResult{Movement: *movement, NewQuantity: newQty}, nil
}

// resolveTarget resolves warehouse → location → product and applies the
// structural preconditions shared by the single-location operations.
// requireActive additionally demands an active warehouse and location
// (inbound targets).
func (s *mutationService) resolveTarget(ctx context.Context, tx pgx.Tx, warehouse, location, product string, requireActive bool) (*Warehouse, *Location, *Product, error) {
	wh, err := resolveWarehouseTx(ctx, tx, warehouse)
	if err != nil {
		return nil, nil, nil, err
	}
	loc, err := resolveLocationTx(ctx, tx, location, wh.ID)
	if err != nil {
		return nil, nil, nil, err
	}
	if requireActive {
		if !wh.IsActive {
			return nil, nil, nil, validationf("warehouse %q is not active", wh.Code)
		}
		if !loc.IsActive {
			return nil, nil, nil, validationf("location %q is not active", loc.Code)
		}
	}
	prod, err := resolveProductTx(ctx, tx, product)
	if err != nil {
		return nil, nil, nil, err
	}
	return wh, loc, prod, nil
}

// lookupStockTx locks an existing stock row without creating one.
func lookupStockTx(ctx context.Context, tx pgx.Tx, key StockKey) (stockID int, qty decimal.Decimal, found bool, err error) {
	err = tx.QueryRow(ctx, `
		SELECT id, quantity FROM stocks
		WHERE product_id = $1 AND location_id = $2 AND lot_key = $3
		FOR UPDATE
	`, key.ProductID, key.LocationID, key.LotKey).Scan(&stockID, &qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, decimal.Zero, false, nil
	}
	if err != nil {
		return 0, decimal.Zero, false, fmt.Errorf("failed to lock stock row: %w", err)
	}
	return stockID, qty, true, nil
}
