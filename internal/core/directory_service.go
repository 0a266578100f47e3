package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DirectoryService resolves warehouse/location references (human code or
// surrogate id) to canonical records and enforces the zone→aisle→bin
// hierarchy. Reads only, except for the directory management calls backing
// the admin screens.
type DirectoryService interface {
	ResolveWarehouse(ctx context.Context, ref string) (*Warehouse, error)
	ResolveLocation(ctx context.Context, ref string, warehouseID int) (*Location, error)
	ValidateHierarchy(ctx context.Context, candidate Location) error
	LocationPath(ctx context.Context, locationID int) ([]Location, error)

	CreateWarehouse(ctx context.Context, code, name string) (*Warehouse, error)
	CreateLocation(ctx context.Context, candidate Location) (*Location, error)
	DeactivateWarehouse(ctx context.Context, warehouseID int) error
	DeactivateLocation(ctx context.Context, locationID int) error
	ListWarehouses(ctx context.Context) ([]Warehouse, error)
	ListLocations(ctx context.Context, warehouseID int) ([]Location, error)

	ResolveProduct(ctx context.Context, ref string) (*Product, error)
	CreateProduct(ctx context.Context, p Product) (*Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
}

type directoryService struct {
	pool *pgxpool.Pool
}

func NewDirectoryService(pool *pgxpool.Pool) DirectoryService {
	return &directoryService{pool: pool}
}

const locationColumns = `id, warehouse_id, code, parent_id, depth, zone_label, aisle_label, bin_code, attributes, is_active, created_at`

func scanLocation(row pgx.Row) (*Location, error) {
	var l Location
	var attrs []byte
	err := row.Scan(&l.ID, &l.WarehouseID, &l.Code, &l.ParentID, &l.Depth,
		&l.ZoneLabel, &l.AisleLabel, &l.BinCode, &attrs, &l.IsActive, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &l.Attributes); err != nil {
			return nil, fmt.Errorf("failed to decode location attributes: %w", err)
		}
	}
	return &l, nil
}

// ResolveWarehouse accepts a surrogate id (decimal string) or a human code.
// Callers must not assume which form they were given; everything downstream
// uses the surrogate id.
func (s *directoryService) ResolveWarehouse(ctx context.Context, ref string) (*Warehouse, error) {
	var w Warehouse
	var err error
	if id, convErr := strconv.Atoi(ref); convErr == nil {
		err = s.pool.QueryRow(ctx,
			"SELECT id, code, name, is_active, created_at FROM warehouses WHERE id = $1", id,
		).Scan(&w.ID, &w.Code, &w.Name, &w.IsActive, &w.CreatedAt)
	} else {
		err = s.pool.QueryRow(ctx,
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

// ResolveLocation resolves a location reference within one warehouse.
func (s *directoryService) ResolveLocation(ctx context.Context, ref string, warehouseID int) (*Location, error) {
	var row pgx.Row
	if id, convErr := strconv.Atoi(ref); convErr == nil {
		row = s.pool.QueryRow(ctx,
			"SELECT "+locationColumns+" FROM locations WHERE id = $1 AND warehouse_id = $2",
			id, warehouseID)
	} else {
		row = s.pool.QueryRow(ctx,
			"SELECT "+locationColumns+" FROM locations WHERE code = $1 AND warehouse_id = $2",
			ref, warehouseID)
	}
	l, err := scanLocation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Kind: "location", Ref: ref}
		}
		return nil, fmt.Errorf("failed to resolve location: %w", err)
	}
	return l, nil
}

// ValidateHierarchy enforces the depth/parent/label rules:
// depth 0 = zone (no parent, zone label), depth 1 = aisle (depth-0 parent,
// aisle label), depth 2 = bin (depth-1 parent, bin code). Parents must live
// in the same warehouse.
func (s *directoryService) ValidateHierarchy(ctx context.Context, c Location) error {
	switch c.Depth {
	case DepthZone:
		if c.ParentID != nil {
			return validationf("hierarchy: zone location %q must not have a parent", c.Code)
		}
		if c.ZoneLabel == "" {
			return validationf("hierarchy: zone location %q must carry a zone label", c.Code)
		}
		return nil
	case DepthAisle:
		if c.AisleLabel == "" {
			return validationf("hierarchy: aisle location %q must carry an aisle label", c.Code)
		}
	case DepthBin:
		if c.BinCode == "" {
			return validationf("hierarchy: bin location %q must carry a bin code", c.Code)
		}
	default:
		return validationf("hierarchy: depth %d is invalid, want 0 (zone), 1 (aisle) or 2 (bin)", c.Depth)
	}

	if c.ParentID == nil {
		return validationf("hierarchy: location %q at depth %d must have a parent", c.Code, c.Depth)
	}

	var parentDepth, parentWarehouse int
	err := s.pool.QueryRow(ctx,
		"SELECT depth, warehouse_id FROM locations WHERE id = $1", *c.ParentID,
	).Scan(&parentDepth, &parentWarehouse)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &NotFoundError{Kind: "location", Ref: strconv.Itoa(*c.ParentID)}
		}
		return fmt.Errorf("failed to fetch parent location: %w", err)
	}
	if parentDepth != c.Depth-1 {
		return validationf("hierarchy: location %q at depth %d requires a depth-%d parent, got depth %d",
			c.Code, c.Depth, c.Depth-1, parentDepth)
	}
	if parentWarehouse != c.WarehouseID {
		return validationf("hierarchy: location %q and its parent belong to different warehouses", c.Code)
	}
	return nil
}

// LocationPath walks parent_id up to the zone and returns the chain
// zone-first.
func (s *directoryService) LocationPath(ctx context.Context, locationID int) ([]Location, error) {
	var path []Location
	next := &locationID
	for next != nil {
		l, err := scanLocation(s.pool.QueryRow(ctx,
			"SELECT "+locationColumns+" FROM locations WHERE id = $1", *next))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, &NotFoundError{Kind: "location", Ref: strconv.Itoa(*next)}
			}
			return nil, fmt.Errorf("failed to walk location path: %w", err)
		}
		path = append([]Location{*l}, path...)
		next = l.ParentID
		if len(path) > DepthBin+1 {
			return nil, fmt.Errorf("location %d has a parent chain deeper than the hierarchy allows", locationID)
		}
	}
	return path, nil
}

func (s *directoryService) CreateWarehouse(ctx context.Context, code, name string) (*Warehouse, error) {
	if code == "" || name == "" {
		return nil, validationf("warehouse code and name are required")
	}
	var w Warehouse
	err := s.pool.QueryRow(ctx, `
		INSERT INTO warehouses (code, name, is_active)
		VALUES ($1, $2, true)
		RETURNING id, code, name, is_active, created_at
	`, code, name).Scan(&w.ID, &w.Code, &w.Name, &w.IsActive, &w.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, validationf("warehouse code %q already exists", code)
		}
		return nil, fmt.Errorf("failed to create warehouse: %w", err)
	}
	return &w, nil
}

func (s *directoryService) CreateLocation(ctx context.Context, c Location) (*Location, error) {
	if c.Code == "" {
		return nil, validationf("location code is required")
	}
	if err := s.ValidateHierarchy(ctx, c); err != nil {
		return nil, err
	}
	attrs, err := json.Marshal(c.Attributes)
	if err != nil {
		return nil, fmt.Errorf("failed to encode location attributes: %w", err)
	}
	l, err := scanLocation(s.pool.QueryRow(ctx, `
		INSERT INTO locations (warehouse_id, code, parent_id, depth, zone_label, aisle_label, bin_code, attributes, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, true)
		RETURNING `+locationColumns,
		c.WarehouseID, c.Code, c.ParentID, c.Depth, c.ZoneLabel, c.AisleLabel, c.BinCode, attrs))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, validationf("location code %q already exists in warehouse %d", c.Code, c.WarehouseID)
		}
		return nil, fmt.Errorf("failed to create location: %w", err)
	}
	return l, nil
}

func (s *directoryService) DeactivateWarehouse(ctx context.Context, warehouseID int) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE warehouses SET is_active = false WHERE id = $1", warehouseID)
	if err != nil {
		return fmt.Errorf("failed to deactivate warehouse: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Kind: "warehouse", Ref: strconv.Itoa(warehouseID)}
	}
	return nil
}

func (s *directoryService) DeactivateLocation(ctx context.Context, locationID int) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE locations SET is_active = false WHERE id = $1", locationID)
	if err != nil {
		return fmt.Errorf("failed to deactivate location: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Kind: "location", Ref: strconv.Itoa(locationID)}
	}
	return nil
}

func (s *directoryService) ListWarehouses(ctx context.Context) ([]Warehouse, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT id, code, name, is_active, created_at FROM warehouses ORDER BY code")
	if err != nil {
		return nil, fmt.Errorf("failed to query warehouses: %w", err)
	}
	defer rows.Close()

	var out []Warehouse
	for rows.Next() {
		var w Warehouse
		if err := rows.Scan(&w.ID, &w.Code, &w.Name, &w.IsActive, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan warehouse: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *directoryService) ListLocations(ctx context.Context, warehouseID int) ([]Location, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+locationColumns+" FROM locations WHERE warehouse_id = $1 ORDER BY depth, code",
		warehouseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query locations: %w", err)
	}
	defer rows.Close()

	var out []Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func (s *directoryService) ResolveProduct(ctx context.Context, ref string) (*Product, error) {
	var p Product
	var err error
	if id, convErr := strconv.Atoi(ref); convErr == nil {
		err = s.pool.QueryRow(ctx,
			"SELECT id, sku, name, unit, category, minimum_stock, created_at FROM products WHERE id = $1", id,
		).Scan(&p.ID, &p.SKU, &p.Name, &p.Unit, &p.Category, &p.MinimumStock, &p.CreatedAt)
	} else {
		err = s.pool.QueryRow(ctx,
			"SELECT id, sku, name, unit, category, minimum_stock, created_at FROM products WHERE sku = $1", ref,
		).Scan(&p.ID, &p.SKU, &p.Name, &p.Unit, &p.Category, &p.MinimumStock, &p.CreatedAt)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Kind: "product", Ref: ref}
		}
		return nil, fmt.Errorf("failed to resolve product: %w", err)
	}
	return &p, nil
}

func (s *directoryService) CreateProduct(ctx context.Context, p Product) (*Product, error) {
	if p.SKU == "" || p.Name == "" {
		return nil, validationf("product sku and name are required")
	}
	if p.Unit == "" {
		p.Unit = "unit"
	}
	var created Product
	err := s.pool.QueryRow(ctx, `
		INSERT INTO products (sku, name, unit, category, minimum_stock)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, sku, name, unit, category, minimum_stock, created_at
	`, p.SKU, p.Name, p.Unit, p.Category, p.MinimumStock,
	).Scan(&created.ID, &created.SKU, &created.Name, &created.Unit, &created.Category,
		&created.MinimumStock, &created.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, validationf("product sku %q already exists", p.SKU)
		}
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	return &created, nil
}

func (s *directoryService) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT id, sku, name, unit, category, minimum_stock, created_at FROM products ORDER BY sku")
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Unit, &p.Category, &p.MinimumStock, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
