package app

import (
	"context"
	"fmt"

	"warehouse-ledger/internal/core"
	"warehouse-ledger/internal/metrics"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type appService struct {
	pool      *pgxpool.Pool
	directory core.DirectoryService
	statuses  core.StatusService
	ledger    *core.StockLedger
	mutations core.MutationService
	audits    core.AuditService
	batches   core.BatchService
	reporting core.ReportingService
}

// NewAppService constructs an appService that satisfies ApplicationService.
func NewAppService(
	pool *pgxpool.Pool,
	directory core.DirectoryService,
	statuses core.StatusService,
	ledger *core.StockLedger,
	mutations core.MutationService,
	audits core.AuditService,
	batches core.BatchService,
	reporting core.ReportingService,
) ApplicationService {
	return &appService{
		pool:      pool,
		directory: directory,
		statuses:  statuses,
		ledger:    ledger,
		mutations: mutations,
		audits:    audits,
		batches:   batches,
		reporting: reporting,
	}
}

// ── Directory ─────────────────────────────────────────────────────────────────

func (s *appService) ListWarehouses(ctx context.Context) (*WarehouseListResult, error) {
	warehouses, err := s.directory.ListWarehouses(ctx)
	if err != nil {
		return nil, err
	}
	return &WarehouseListResult{Warehouses: warehouses}, nil
}

func (s *appService) GetWarehouse(ctx context.Context, ref string) (*core.Warehouse, error) {
	return s.directory.ResolveWarehouse(ctx, ref)
}

func (s *appService) CreateWarehouse(ctx context.Context, code, name string) (*core.Warehouse, error) {
	return s.directory.CreateWarehouse(ctx, code, name)
}

func (s *appService) DeactivateWarehouse(ctx context.Context, ref string) error {
	wh, err := s.directory.ResolveWarehouse(ctx, ref)
	if err != nil {
		return err
	}
	return s.directory.DeactivateWarehouse(ctx, wh.ID)
}

func (s *appService) ListLocations(ctx context.Context, warehouseRef string) (*LocationListResult, error) {
	wh, err := s.directory.ResolveWarehouse(ctx, warehouseRef)
	if err != nil {
		return nil, err
	}
	locations, err := s.directory.ListLocations(ctx, wh.ID)
	if err != nil {
		return nil, err
	}
	return &LocationListResult{WarehouseCode: wh.Code, Locations: locations}, nil
}

func (s *appService) CreateLocation(ctx context.Context, req CreateLocationRequest) (*core.Location, error) {
	wh, err := s.directory.ResolveWarehouse(ctx, req.Warehouse)
	if err != nil {
		return nil, err
	}

	loc := core.Location{
		WarehouseID: wh.ID,
		Code:        req.Code,
		Depth:       req.Depth,
		ZoneLabel:   req.ZoneLabel,
		AisleLabel:  req.AisleLabel,
		BinCode:     req.BinCode,
		Attributes:  req.Attributes,
	}
	if req.Parent != "" {
		parent, err := s.directory.ResolveLocation(ctx, req.Parent, wh.ID)
		if err != nil {
			return nil, err
		}
		loc.ParentID = &parent.ID
	}
	return s.directory.CreateLocation(ctx, loc)
}

func (s *appService) DeactivateLocation(ctx context.Context, warehouseRef, locationRef string) error {
	wh, err := s.directory.ResolveWarehouse(ctx, warehouseRef)
	if err != nil {
		return err
	}
	loc, err := s.directory.ResolveLocation(ctx, locationRef, wh.ID)
	if err != nil {
		return err
	}
	return s.directory.DeactivateLocation(ctx, loc.ID)
}

func (s *appService) LocationPath(ctx context.Context, warehouseRef, locationRef string) ([]core.Location, error) {
	wh, err := s.directory.ResolveWarehouse(ctx, warehouseRef)
	if err != nil {
		return nil, err
	}
	loc, err := s.directory.ResolveLocation(ctx, locationRef, wh.ID)
	if err != nil {
		return nil, err
	}
	return s.directory.LocationPath(ctx, loc.ID)
}

func (s *appService) ListProducts(ctx context.Context) (*ProductListResult, error) {
	products, err := s.directory.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	return &ProductListResult{Products: products}, nil
}

func (s *appService) GetProduct(ctx context.Context, ref string) (*core.Product, error) {
	return s.directory.ResolveProduct(ctx, ref)
}

func (s *appService) CreateProduct(ctx context.Context, req CreateProductRequest) (*core.Product, error) {
	unit := req.Unit
	if unit == "" {
		unit = "unit"
	}
	return s.directory.CreateProduct(ctx, core.Product{
		SKU:          req.SKU,
		Name:         req.Name,
		Unit:         unit,
		Category:     req.Category,
		MinimumStock: req.MinimumStock,
	})
}

// ── Mutations ─────────────────────────────────────────────────────────────────

func (s *appService) Inbound(ctx context.Context, req MutationInput, actor core.Actor) (*core.MovementResult, error) {
	res, err := s.mutations.Inbound(ctx, core.InboundRequest{
		Warehouse:      req.Warehouse,
		Location:       req.Location,
		Product:        req.Product,
		Quantity:       req.Quantity,
		Attributes:     req.Attributes,
		Note:           req.Note,
		IdempotencyKey: req.IdempotencyKey,
		Actor:          actor,
	})
	return observeMovement(core.MovementInbound, res, err)
}

func (s *appService) Outbound(ctx context.Context, req MutationInput, actor core.Actor) (*core.MovementResult, error) {
	res, err := s.mutations.Outbound(ctx, core.OutboundRequest{
		Warehouse:      req.Warehouse,
		Location:       req.Location,
		Product:        req.Product,
		Quantity:       req.Quantity,
		Attributes:     req.Attributes,
		Note:           req.Note,
		IdempotencyKey: req.IdempotencyKey,
		Actor:          actor,
	})
	return observeMovement(core.MovementOutbound, res, err)
}

func (s *appService) Transfer(ctx context.Context, req MutationInput, actor core.Actor) (*core.MovementResult, error) {
	res, err := s.mutations.Transfer(ctx, core.TransferRequest{
		Warehouse:       req.Warehouse,
		FromLocation:    req.Location,
		TargetWarehouse: req.TargetWarehouse,
		TargetLocation:  req.TargetLocation,
		Product:         req.Product,
		Quantity:        req.Quantity,
		Attributes:      req.Attributes,
		Note:            req.Note,
		IdempotencyKey:  req.IdempotencyKey,
		Actor:           actor,
	})
	return observeMovement(core.MovementTransfer, res, err)
}

func (s *appService) Adjust(ctx context.Context, req MutationInput, actor core.Actor) (*core.MovementResult, error) {
	res, err := s.mutations.Adjust(ctx, core.AdjustRequest{
		Warehouse:      req.Warehouse,
		Location:       req.Location,
		Product:        req.Product,
		Delta:          req.Quantity,
		Attributes:     req.Attributes,
		Reason:         req.Reason,
		Source:         core.AdjustSourceManual,
		Note:           req.Note,
		IdempotencyKey: req.IdempotencyKey,
		Actor:          actor,
	})
	return observeMovement(core.MovementAdjust, res, err)
}

func (s *appService) GetQuantity(ctx context.Context, warehouseRef, locationRef, productRef string, attributes map[string]string) (*QuantityResult, error) {
	wh, err := s.directory.ResolveWarehouse(ctx, warehouseRef)
	if err != nil {
		return nil, err
	}
	loc, err := s.directory.ResolveLocation(ctx, locationRef, wh.ID)
	if err != nil {
		return nil, err
	}
	product, err := s.directory.ResolveProduct(ctx, productRef)
	if err != nil {
		return nil, err
	}

	lotKey := core.LotFingerprint(attributes)
	qty, err := s.ledger.Quantity(ctx, core.StockKey{
		ProductID:  product.ID,
		LocationID: loc.ID,
		LotKey:     lotKey,
	})
	if err != nil {
		return nil, err
	}
	return &QuantityResult{
		WarehouseCode: wh.Code,
		LocationCode:  loc.Code,
		ProductSKU:    product.SKU,
		LotKey:        lotKey,
		Attributes:    attributes,
		Quantity:      qty,
	}, nil
}

// ── Batch ─────────────────────────────────────────────────────────────────────

func (s *appService) ProcessBatch(ctx context.Context, requests []core.MutationRequest, actor core.Actor) (*core.BatchReport, error) {
	report, err := s.batches.ProcessBatch(ctx, requests, actor)
	if err != nil {
		return nil, err
	}
	metrics.BatchRowsTotal.WithLabelValues("succeeded").Add(float64(report.Succeeded))
	metrics.BatchRowsTotal.WithLabelValues("failed").Add(float64(report.Failed))
	metrics.BatchRowsTotal.WithLabelValues("skipped").Add(float64(report.Skipped))
	return report, nil
}

// ── Audit ─────────────────────────────────────────────────────────────────────

func (s *appService) OpenAudit(ctx context.Context, warehouseRef, name string, actor core.Actor) (*core.AuditSession, error) {
	wh, err := s.directory.ResolveWarehouse(ctx, warehouseRef)
	if err != nil {
		return nil, err
	}
	return s.audits.OpenSession(ctx, wh.ID, name, actor)
}

func (s *appService) RecordAuditCount(ctx context.Context, sessionID, itemID int, counted decimal.Decimal, actor core.Actor) (*core.AuditItem, error) {
	return s.audits.RecordCount(ctx, sessionID, itemID, counted, actor)
}

func (s *appService) FinalizeAudit(ctx context.Context, sessionID int, actor core.Actor) (*core.FinalizeReport, error) {
	return s.audits.FinalizeSession(ctx, sessionID, actor)
}

func (s *appService) GetAuditSession(ctx context.Context, sessionID int) (*AuditSessionResult, error) {
	session, items, err := s.audits.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &AuditSessionResult{Session: *session, Items: items}, nil
}

func (s *appService) ListAuditSessions(ctx context.Context, warehouseRef string) ([]core.AuditSession, error) {
	wh, err := s.directory.ResolveWarehouse(ctx, warehouseRef)
	if err != nil {
		return nil, err
	}
	return s.audits.ListSessions(ctx, wh.ID)
}

// ── Statuses ──────────────────────────────────────────────────────────────────

func (s *appService) ListStatuses(ctx context.Context) ([]core.Status, error) {
	return s.statuses.ListStatuses(ctx)
}

func (s *appService) ApplyStatus(ctx context.Context, req ApplyStatusRequest, actor core.Actor) error {
	entityType, err := parseEntityType(req.EntityType)
	if err != nil {
		return err
	}

	statusID := req.StatusID
	if statusID == 0 && req.StatusCode != "" {
		statusID, err = s.resolveStatusCode(ctx, req.StatusCode)
		if err != nil {
			return err
		}
	}
	return s.statuses.ApplyStatus(ctx, entityType, req.EntityID, statusID, req.Reason, actor)
}

func (s *appService) ClearStatus(ctx context.Context, entityType core.EntityType, entityID int, reason string, actor core.Actor) error {
	return s.statuses.ClearStatus(ctx, entityType, entityID, reason, actor)
}

func (s *appService) ActiveStatus(ctx context.Context, entityType core.EntityType, entityID int) (*core.EntityStatus, error) {
	return s.statuses.ActiveStatus(ctx, entityType, entityID)
}

func (s *appService) StatusHistory(ctx context.Context, entityType core.EntityType, entityID int) ([]core.StatusChange, error) {
	return s.statuses.StatusHistory(ctx, entityType, entityID)
}

// ── Reporting ─────────────────────────────────────────────────────────────────

func (s *appService) StockLevels(ctx context.Context, warehouseRef string) (*StockLevelsResult, error) {
	wh, err := s.directory.ResolveWarehouse(ctx, warehouseRef)
	if err != nil {
		return nil, err
	}
	levels, err := s.reporting.StockLevels(ctx, wh.ID)
	if err != nil {
		return nil, err
	}
	return &StockLevelsResult{WarehouseCode: wh.Code, Levels: levels}, nil
}

func (s *appService) MovementHistory(ctx context.Context, req MovementHistoryRequest) ([]core.StockMovement, error) {
	f := core.MovementFilter{Limit: req.Limit}
	if req.Warehouse != "" {
		wh, err := s.directory.ResolveWarehouse(ctx, req.Warehouse)
		if err != nil {
			return nil, err
		}
		f.WarehouseID = wh.ID
		if req.Location != "" {
			loc, err := s.directory.ResolveLocation(ctx, req.Location, wh.ID)
			if err != nil {
				return nil, err
			}
			f.LocationID = loc.ID
		}
	}
	if req.Product != "" {
		product, err := s.directory.ResolveProduct(ctx, req.Product)
		if err != nil {
			return nil, err
		}
		f.ProductID = product.ID
	}
	if req.Type != "" {
		f.Type = core.MovementType(req.Type)
	}
	return s.reporting.MovementHistory(ctx, f)
}

func (s *appService) LowStock(ctx context.Context, warehouseRef string) ([]core.LowStockRow, error) {
	wh, err := s.directory.ResolveWarehouse(ctx, warehouseRef)
	if err != nil {
		return nil, err
	}
	return s.reporting.LowStock(ctx, wh.ID)
}

// ── private helpers ───────────────────────────────────────────────────────────

// observeMovement feeds the movement counters and passes the result through.
func observeMovement(t core.MovementType, res *core.MovementResult, err error) (*core.MovementResult, error) {
	if err != nil {
		metrics.MovementFailures.WithLabelValues(core.ErrorCode(err)).Inc()
		return nil, err
	}
	metrics.MovementsTotal.WithLabelValues(string(t)).Inc()
	return res, nil
}

func parseEntityType(raw string) (core.EntityType, error) {
	switch t := core.EntityType(raw); t {
	case core.EntityStock, core.EntityLocation, core.EntityWarehouse, core.EntityProduct:
		return t, nil
	default:
		return "", &core.ValidationError{Msg: fmt.Sprintf("unknown entity type %q", raw)}
	}
}

// resolveStatusCode maps a status code to its catalog ID.
func (s *appService) resolveStatusCode(ctx context.Context, code string) (int, error) {
	var id int
	err := s.pool.QueryRow(ctx, "SELECT id FROM statuses WHERE code = $1", code).Scan(&id)
	if err != nil {
		return 0, &core.NotFoundError{Kind: "status", Ref: code}
	}
	return id, nil
}
