package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// AuditService owns count sessions and their items. It never writes stocks
// directly: reconciliation goes through the Mutation Engine's Adjust, one
// independently atomic call per item.
type AuditService interface {
	// OpenSession snapshots every nonzero stock lot of the warehouse into a
	// new OPEN session. The snapshot quantities are frozen at this moment.
	OpenSession(ctx context.Context, warehouseID int, name string, actor Actor) (*AuditSession, error)
	// RecordCount enters a counted quantity for one item of an OPEN session.
	RecordCount(ctx context.Context, sessionID, itemID int, counted decimal.Decimal, actor Actor) (*AuditItem, error)
	// FinalizeSession applies every nonzero variance via Adjust. Any failed
	// adjustment leaves the session OPEN; it only becomes FINALIZED when all
	// variances apply.
	FinalizeSession(ctx context.Context, sessionID int, actor Actor) (*FinalizeReport, error)
	GetSession(ctx context.Context, sessionID int) (*AuditSession, []AuditItem, error)
	ListSessions(ctx context.Context, warehouseID int) ([]AuditSession, error)
}

// FinalizeFailure is one audit item whose adjustment did not apply, with the
// typed reason (e.g. a concurrent outbound already consumed the stock a
// negative variance needed).
type FinalizeFailure struct {
	ItemID int    `json:"item_id"`
	Code   string `json:"code"`
	Error  string `json:"error"`
}

type FinalizeReport struct {
	SessionID int               `json:"session_id"`
	Finalized bool              `json:"finalized"`
	Adjusted  int               `json:"adjusted"`
	ZeroVar   int               `json:"zero_variance"`
	Uncounted int               `json:"uncounted"`
	Failures  []FinalizeFailure `json:"failures,omitempty"`
}

type auditService struct {
	pool      *pgxpool.Pool
	mutations MutationService
}

func NewAuditService(pool *pgxpool.Pool, mutations MutationService) AuditService {
	return &auditService{pool: pool, mutations: mutations}
}

func (s *auditService) OpenSession(ctx context.Context, warehouseID int, name string, actor Actor) (*AuditSession, error) {
	if name == "" {
		return nil, validationf("audit session name is required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var whActive bool
	if err := tx.QueryRow(ctx,
		"SELECT is_active FROM warehouses WHERE id = $1", warehouseID,
	).Scan(&whActive); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Kind: "warehouse", Ref: strconv.Itoa(warehouseID)}
		}
		return nil, fmt.Errorf("failed to check warehouse: %w", err)
	}

	var session AuditSession
	err = tx.QueryRow(ctx, `
		INSERT INTO audit_sessions (warehouse_id, name, status, created_by)
		VALUES ($1, $2, $3, $4)
		RETURNING id, warehouse_id, name, status, created_by, created_at
	`, warehouseID, name, string(AuditOpen), actor.ID,
	).Scan(&session.ID, &session.WarehouseID, &session.Name, &session.Status,
		&session.CreatedBy, &session.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit session: %w", err)
	}

	// Snapshot the ledger: every nonzero lot in the warehouse becomes one
	// PENDING item with its system quantity frozen.
	_, err = tx.Exec(ctx, `
		INSERT INTO audit_items (session_id, product_id, location_id, lot_key, attributes, system_quantity, status)
		SELECT $1, st.product_id, st.location_id, st.lot_key, st.attributes, st.quantity, $2
		FROM stocks st
		JOIN locations l ON l.id = st.location_id
		WHERE l.warehouse_id = $3 AND st.quantity <> 0
	`, session.ID, string(AuditItemPending), warehouseID)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot audit items: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit audit session: %w", err)
	}
	return &session, nil
}

func (s *auditService) RecordCount(ctx context.Context, sessionID, itemID int, counted decimal.Decimal, actor Actor) (*AuditItem, error) {
	if counted.IsNegative() {
		return nil, validationf("counted quantity cannot be negative, got %s", counted)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var status AuditSessionStatus
	if err := tx.QueryRow(ctx,
		"SELECT status FROM audit_sessions WHERE id = $1 FOR UPDATE", sessionID,
	).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Kind: "audit session", Ref: strconv.Itoa(sessionID)}
		}
		return nil, fmt.Errorf("failed to fetch audit session: %w", err)
	}
	if status != AuditOpen {
		return nil, validationf("audit session %d is %s, counts are only accepted while OPEN", sessionID, status)
	}

	item, err := scanAuditItem(tx.QueryRow(ctx, `
		UPDATE audit_items
		SET counted_quantity = $1,
		    variance = $1 - system_quantity,
		    status = $2,
		    counted_by = $3,
		    counted_at = NOW()
		WHERE id = $4 AND session_id = $5
		RETURNING `+auditItemColumns,
		counted, string(AuditItemCounted), actor.ID, itemID, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Kind: "audit item", Ref: strconv.Itoa(itemID)}
		}
		return nil, fmt.Errorf("failed to record count: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit count: %w", err)
	}
	return item, nil
}

// FinalizeSession walks the items sequentially; each Adjust is independently
// atomic and no lock is held across the whole session. Partial finalization
// is disallowed: one failure keeps the session OPEN so the operator can
// resolve conflicts and retry.
func (s *auditService) FinalizeSession(ctx context.Context, sessionID int, actor Actor) (*FinalizeReport, error) {
	session, items, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == AuditFinalized {
		return nil, validationf("audit session %d is already FINALIZED", sessionID)
	}

	report := &FinalizeReport{SessionID: sessionID}
	for _, item := range items {
		if item.Status != AuditItemCounted || item.Variance == nil {
			report.Uncounted++
			continue
		}
		variance := *item.Variance
		if variance.IsZero() {
			report.ZeroVar++
			continue
		}
		// A retried finalize must not apply a variance twice: items already
		// reconciled by a previous attempt are skipped, and the per-item
		// idempotency key backstops the race where the flag write was lost.
		if item.AdjustmentApplied {
			report.Adjusted++
			continue
		}
		_, err := s.mutations.Adjust(ctx, AdjustRequest{
			Warehouse:      strconv.Itoa(session.WarehouseID),
			Location:       strconv.Itoa(item.LocationID),
			Product:        strconv.Itoa(item.ProductID),
			Delta:          variance,
			Attributes:     item.Attributes,
			Reason:         "AUDIT",
			Source:         AdjustSourceAudit,
			Note:           fmt.Sprintf("audit session %d (%s), item %d", session.ID, session.Name, item.ID),
			IdempotencyKey: fmt.Sprintf("audit-%d-item-%d", session.ID, item.ID),
			Actor:          actor,
		})
		if err != nil {
			report.Failures = append(report.Failures, FinalizeFailure{
				ItemID: item.ID,
				Code:   ErrorCode(err),
				Error:  err.Error(),
			})
			continue
		}
		if _, err := s.pool.Exec(ctx,
			"UPDATE audit_items SET adjustment_applied = true WHERE id = $1", item.ID); err != nil {
			return nil, fmt.Errorf("failed to mark audit item %d adjusted: %w", item.ID, err)
		}
		report.Adjusted++
	}

	if len(report.Failures) > 0 {
		return report, nil
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE audit_sessions SET status = $1, finalized_at = NOW()
		WHERE id = $2 AND status = $3
	`, string(AuditFinalized), sessionID, string(AuditOpen))
	if err != nil {
		return nil, fmt.Errorf("failed to finalize audit session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Raced with another finalize; the adjustments were idempotent.
		return nil, validationf("audit session %d is already FINALIZED", sessionID)
	}
	report.Finalized = true
	return report, nil
}

const auditItemColumns = `id, session_id, product_id, location_id, lot_key, attributes, system_quantity, counted_quantity, variance, status, adjustment_applied, counted_by, counted_at`

func scanAuditItem(row pgx.Row) (*AuditItem, error) {
	var it AuditItem
	var attrs []byte
	var countedAt *time.Time
	err := row.Scan(&it.ID, &it.SessionID, &it.ProductID, &it.LocationID, &it.LotKey, &attrs,
		&it.SystemQuantity, &it.CountedQuantity, &it.Variance, &it.Status, &it.AdjustmentApplied,
		&it.CountedBy, &countedAt)
	if err != nil {
		return nil, err
	}
	it.CountedAt = countedAt
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &it.Attributes); err != nil {
			return nil, fmt.Errorf("failed to decode audit item attributes: %w", err)
		}
	}
	return &it, nil
}

func (s *auditService) GetSession(ctx context.Context, sessionID int) (*AuditSession, []AuditItem, error) {
	var session AuditSession
	err := s.pool.QueryRow(ctx, `
		SELECT id, warehouse_id, name, status, created_by, created_at, finalized_at
		FROM audit_sessions WHERE id = $1
	`, sessionID).Scan(&session.ID, &session.WarehouseID, &session.Name, &session.Status,
		&session.CreatedBy, &session.CreatedAt, &session.FinalizedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, &NotFoundError{Kind: "audit session", Ref: strconv.Itoa(sessionID)}
		}
		return nil, nil, fmt.Errorf("failed to fetch audit session: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		"SELECT "+auditItemColumns+" FROM audit_items WHERE session_id = $1 ORDER BY id", sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query audit items: %w", err)
	}
	defer rows.Close()

	var items []AuditItem
	for rows.Next() {
		it, err := scanAuditItem(rows)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to scan audit item: %w", err)
		}
		items = append(items, *it)
	}
	return &session, items, rows.Err()
}

func (s *auditService) ListSessions(ctx context.Context, warehouseID int) ([]AuditSession, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, warehouse_id, name, status, created_by, created_at, finalized_at
		FROM audit_sessions
		WHERE warehouse_id = $1
		ORDER BY id DESC
	`, warehouseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit sessions: %w", err)
	}
	defer rows.Close()

	var out []AuditSession
	for rows.Next() {
		var a AuditSession
		if err := rows.Scan(&a.ID, &a.WarehouseID, &a.Name, &a.Status, &a.CreatedBy,
			&a.CreatedAt, &a.FinalizedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit session: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
