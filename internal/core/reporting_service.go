package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ReportingService serves the read-side screens: current stock levels,
// movement history, and low-stock alerts. It never writes.
type ReportingService interface {
	StockLevels(ctx context.Context, warehouseID int) ([]StockLevel, error)
	MovementHistory(ctx context.Context, f MovementFilter) ([]StockMovement, error)
	LowStock(ctx context.Context, warehouseID int) ([]LowStockRow, error)
}

// StockLevel is a read view of one stock row joined with product and
// location info.
type StockLevel struct {
	ProductSKU   string            `json:"sku"`
	ProductName  string            `json:"product_name"`
	LocationCode string            `json:"location_code"`
	LotKey       string            `json:"lot_key"`
	Attributes   map[string]string `json:"attributes,omitempty"`
	Quantity     decimal.Decimal   `json:"quantity"`
	Unit         string            `json:"unit"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// LowStockRow flags a product whose total warehouse quantity fell below its
// minimum-stock threshold.
type LowStockRow struct {
	ProductSKU   string          `json:"sku"`
	ProductName  string          `json:"product_name"`
	Quantity     decimal.Decimal `json:"quantity"`
	MinimumStock decimal.Decimal `json:"minimum_stock"`
}

// MovementFilter narrows the history query. Zero values mean "no filter";
// Limit defaults to 100.
type MovementFilter struct {
	WarehouseID int
	ProductID   int
	LocationID  int
	Type        MovementType
	Limit       int
}

type reportingService struct {
	pool *pgxpool.Pool
}

func NewReportingService(pool *pgxpool.Pool) ReportingService {
	return &reportingService{pool: pool}
}

func (s *reportingService) StockLevels(ctx context.Context, warehouseID int) ([]StockLevel, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.sku, p.name, l.code, st.lot_key, st.attributes, st.quantity, p.unit, st.updated_at
		FROM stocks st
		JOIN products p  ON p.id = st.product_id
		JOIN locations l ON l.id = st.location_id
		WHERE l.warehouse_id = $1
		ORDER BY p.sku, l.code, st.lot_key
	`, warehouseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock levels: %w", err)
	}
	defer rows.Close()

	var out []StockLevel
	for rows.Next() {
		var sl StockLevel
		var attrs []byte
		if err := rows.Scan(&sl.ProductSKU, &sl.ProductName, &sl.LocationCode, &sl.LotKey,
			&attrs, &sl.Quantity, &sl.Unit, &sl.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan stock level: %w", err)
		}
		if len(attrs) > 0 {
			if err := json.Unmarshal(attrs, &sl.Attributes); err != nil {
				return nil, fmt.Errorf("failed to decode stock attributes: %w", err)
			}
		}
		out = append(out, sl)
	}
	return out, rows.Err()
}

func (s *reportingService) MovementHistory(ctx context.Context, f MovementFilter) ([]StockMovement, error) {
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := `
		SELECT id, uuid, reference, movement_type, warehouse_id, product_id,
		       from_location_id, to_location_id, lot_key, attributes, quantity,
		       reason, source, note, actor_id, actor_email, idempotency_key, created_at
		FROM stock_movements
		WHERE ($1 = 0 OR warehouse_id = $1)
		  AND ($2 = 0 OR product_id = $2)
		  AND ($3 = 0 OR from_location_id = $3 OR to_location_id = $3)
		  AND ($4 = '' OR movement_type = $4)
		ORDER BY id DESC
		LIMIT $5
	`
	rows, err := s.pool.Query(ctx, query, f.WarehouseID, f.ProductID, f.LocationID, string(f.Type), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query movements: %w", err)
	}
	defer rows.Close()

	var out []StockMovement
	for rows.Next() {
		var m StockMovement
		var attrs []byte
		var source, idemKey *string
		if err := rows.Scan(&m.ID, &m.UUID, &m.Reference, &m.Type, &m.WarehouseID, &m.ProductID,
			&m.FromLocationID, &m.ToLocationID, &m.LotKey, &attrs, &m.Quantity,
			&m.Reason, &source, &m.Note, &m.ActorID, &m.ActorEmail, &idemKey, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan movement: %w", err)
		}
		if source != nil {
			m.Source = AdjustSource(*source)
		}
		if idemKey != nil {
			m.IdempotencyKey = *idemKey
		}
		if len(attrs) > 0 {
			if err := json.Unmarshal(attrs, &m.Attributes); err != nil {
				return nil, fmt.Errorf("failed to decode movement attributes: %w", err)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *reportingService) LowStock(ctx context.Context, warehouseID int) ([]LowStockRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.sku, p.name, COALESCE(w.qty, 0) AS qty, p.minimum_stock
		FROM products p
		LEFT JOIN (
			SELECT st.product_id, SUM(st.quantity) AS qty
			FROM stocks st
			JOIN locations l ON l.id = st.location_id
			WHERE l.warehouse_id = $1
			GROUP BY st.product_id
		) w ON w.product_id = p.id
		WHERE p.minimum_stock > 0 AND COALESCE(w.qty, 0) < p.minimum_stock
		ORDER BY p.sku
	`, warehouseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query low stock: %w", err)
	}
	defer rows.Close()

	var out []LowStockRow
	for rows.Next() {
		var r LowStockRow
		if err := rows.Scan(&r.ProductSKU, &r.ProductName, &r.Quantity, &r.MinimumStock); err != nil {
			return nil, fmt.Errorf("failed to scan low stock row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
