package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// StockLedger owns the current-quantity projection (stocks) and the
// append-only movement log. Reads go through the pool; writes happen only via
// the tx-scoped helpers below, and only the Mutation Engine calls those.
type StockLedger struct {
	pool *pgxpool.Pool
}

func NewStockLedger(pool *pgxpool.Pool) *StockLedger {
	return &StockLedger{pool: pool}
}

// Quantity returns the current quantity for a ledger key, zero when the row
// does not exist. Calling it twice without an intervening mutation returns
// the same value.
func (l *StockLedger) Quantity(ctx context.Context, key StockKey) (decimal.Decimal, error) {
	var qty decimal.Decimal
	err := l.pool.QueryRow(ctx, `
		SELECT quantity FROM stocks
		WHERE product_id = $1 AND location_id = $2 AND lot_key = $3
	`, key.ProductID, key.LocationID, key.LotKey).Scan(&qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read stock quantity: %w", err)
	}
	return qty, nil
}

// GetStock returns the full stock row for a key, or NotFoundError.
func (l *StockLedger) GetStock(ctx context.Context, key StockKey) (*Stock, error) {
	var st Stock
	var attrs []byte
	err := l.pool.QueryRow(ctx, `
		SELECT id, product_id, location_id, lot_key, attributes, quantity, updated_at
		FROM stocks
		WHERE product_id = $1 AND location_id = $2 AND lot_key = $3
	`, key.ProductID, key.LocationID, key.LotKey).Scan(
		&st.ID, &st.ProductID, &st.LocationID, &st.LotKey, &attrs, &st.Quantity, &st.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Kind: "stock lot", Ref: fmt.Sprintf("%d/%d/%s", key.ProductID, key.LocationID, key.LotKey)}
		}
		return nil, fmt.Errorf("failed to read stock row: %w", err)
	}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &st.Attributes); err != nil {
			return nil, fmt.Errorf("failed to decode stock attributes: %w", err)
		}
	}
	return &st, nil
}

// lockStockRowTx ensures the row for key exists and locks it, returning the
// quantity as of the lock. The upsert-then-lock sequence means concurrent
// mutations on the same key serialize on the row lock, never on a table lock.
func lockStockRowTx(ctx context.Context, tx pgx.Tx, key StockKey, attrs map[string]string) (stockID int, qty decimal.Decimal, err error) {
	attrsJSON, err := json.Marshal(attrs)
	if err != nil {
		return 0, decimal.Zero, fmt.Errorf("failed to encode lot attributes: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO stocks (product_id, location_id, lot_key, attributes, quantity)
		VALUES ($1, $2, $3, $4, 0)
		ON CONFLICT (product_id, location_id, lot_key) DO NOTHING
	`, key.ProductID, key.LocationID, key.LotKey, attrsJSON)
	if err != nil {
		return 0, decimal.Zero, fmt.Errorf("failed to upsert stock row: %w", err)
	}

	err = tx.QueryRow(ctx, `
		SELECT id, quantity FROM stocks
		WHERE product_id = $1 AND location_id = $2 AND lot_key = $3
		FOR UPDATE
	`, key.ProductID, key.LocationID, key.LotKey).Scan(&stockID, &qty)
	if err != nil {
		return 0, decimal.Zero, fmt.Errorf("failed to lock stock row: %w", err)
	}
	return stockID, qty, nil
}

// applyDeltaTx adds delta to an already locked stock row. The non-negative
// invariant is enforced here, under the lock, so the check and the write are
// one atomic step.
func applyDeltaTx(ctx context.Context, tx pgx.Tx, stockID int, current, delta decimal.Decimal) (decimal.Decimal, error) {
	newQty := current.Add(delta)
	if newQty.IsNegative() {
		return decimal.Zero, &InsufficientStockError{
			Requested: delta.Neg(),
			Available: current,
		}
	}
	_, err := tx.Exec(ctx, `
		UPDATE stocks SET quantity = $1, updated_at = NOW() WHERE id = $2
	`, newQty, stockID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to update stock quantity: %w", err)
	}
	return newQty, nil
}

// movement reference prefixes, one gapless sequence per type.
var referencePrefix = map[MovementType]string{
	MovementInbound:  "IN",
	MovementOutbound: "OUT",
	MovementTransfer: "TRF",
	MovementAdjust:   "ADJ",
}

// nextReferenceTx allocates the next gapless reference for a movement type.
// The sequence row is locked for the rest of the enclosing tx, so references
// are only consumed by movements that actually commit.
func nextReferenceTx(ctx context.Context, tx pgx.Tx, mtype MovementType) (string, error) {
	var last int64
	err := tx.QueryRow(ctx, `
		UPDATE movement_sequences SET last_number = last_number + 1
		WHERE movement_type = $1
		RETURNING last_number
	`, string(mtype)).Scan(&last)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("movement sequence for %s is not seeded", mtype)
		}
		return "", fmt.Errorf("failed to advance movement sequence: %w", err)
	}
	return fmt.Sprintf("%s-%06d", referencePrefix[mtype], last), nil
}

// appendMovementTx writes one transaction-log row inside the mutation's tx.
// With an idempotency key set, a replay hits the unique index and surfaces as
// a ValidationError naming the key.
func appendMovementTx(ctx context.Context, tx pgx.Tx, m StockMovement) (*StockMovement, error) {
	reference, err := nextReferenceTx(ctx, tx, m.Type)
	if err != nil {
		return nil, err
	}
	m.Reference = reference

	attrsJSON, err := json.Marshal(m.Attributes)
	if err != nil {
		return nil, fmt.Errorf("failed to encode movement attributes: %w", err)
	}

	var idemKey *string
	if m.IdempotencyKey != "" {
		idemKey = &m.IdempotencyKey
	}
	var source *string
	if m.Source != "" {
		s := string(m.Source)
		source = &s
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO stock_movements
			(uuid, reference, movement_type, warehouse_id, product_id, from_location_id, to_location_id,
			 lot_key, attributes, quantity, reason, source, note, actor_id, actor_email, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id, created_at
	`, m.UUID, m.Reference, string(m.Type), m.WarehouseID, m.ProductID, m.FromLocationID, m.ToLocationID,
		m.LotKey, attrsJSON, m.Quantity, m.Reason, source, m.Note, m.ActorID, m.ActorEmail, idemKey,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, validationf("duplicate mutation: idempotency key %q already used", m.IdempotencyKey)
		}
		return nil, fmt.Errorf("failed to append movement: %w", err)
	}
	return &m, nil
}
