package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StatusService is the registry gating mutations. Each entity carries at most
// one active status; the current pointer is mutable but every change appends
// an immutable status_changes row.
type StatusService interface {
	// ActiveStatus returns the entity's current status, or nil when none is
	// applied (the default TRANSACTIONS_ALLOWED case).
	ActiveStatus(ctx context.Context, entityType EntityType, entityID int) (*EntityStatus, error)
	// ApplyStatus replaces the active status and records the change.
	ApplyStatus(ctx context.Context, entityType EntityType, entityID, statusID int, reason string, actor Actor) error
	// ClearStatus removes the active status, restoring default gating.
	ClearStatus(ctx context.Context, entityType EntityType, entityID int, reason string, actor Actor) error
	ListStatuses(ctx context.Context) ([]Status, error)
	StatusHistory(ctx context.Context, entityType EntityType, entityID int) ([]StatusChange, error)
}

type statusService struct {
	pool *pgxpool.Pool
}

func NewStatusService(pool *pgxpool.Pool) StatusService {
	return &statusService{pool: pool}
}

func (s *statusService) ActiveStatus(ctx context.Context, entityType EntityType, entityID int) (*EntityStatus, error) {
	return activeStatusQ(ctx, s.pool, entityType, entityID)
}

// querier lets the same lookups run on the pool or inside a mutation's tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func activeStatusQ(ctx context.Context, q querier, entityType EntityType, entityID int) (*EntityStatus, error) {
	var es EntityStatus
	err := q.QueryRow(ctx, `
		SELECT es.entity_type, es.entity_id, es.status_id, st.code, st.effect, es.reason, es.applied_by, es.applied_at
		FROM entity_statuses es
		JOIN statuses st ON st.id = es.status_id
		WHERE es.entity_type = $1 AND es.entity_id = $2
	`, string(entityType), entityID).Scan(
		&es.EntityType, &es.EntityID, &es.StatusID, &es.StatusCode, &es.Effect,
		&es.Reason, &es.AppliedBy, &es.AppliedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch active status: %w", err)
	}
	return &es, nil
}

func (s *statusService) ApplyStatus(ctx context.Context, entityType EntityType, entityID, statusID int, reason string, actor Actor) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM statuses WHERE id = $1)", statusID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check status: %w", err)
	}
	if !exists {
		return &NotFoundError{Kind: "status", Ref: strconv.Itoa(statusID)}
	}

	var prev *int
	err = tx.QueryRow(ctx, `
		SELECT status_id FROM entity_statuses
		WHERE entity_type = $1 AND entity_id = $2
		FOR UPDATE
	`, string(entityType), entityID).Scan(&prev)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to lock current status: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO entity_statuses (entity_type, entity_id, status_id, reason, applied_by, applied_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (entity_type, entity_id)
		DO UPDATE SET status_id = EXCLUDED.status_id, reason = EXCLUDED.reason,
		              applied_by = EXCLUDED.applied_by, applied_at = NOW()
	`, string(entityType), entityID, statusID, reason, actor.ID)
	if err != nil {
		return fmt.Errorf("failed to apply status: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO status_changes (entity_type, entity_id, prev_status_id, new_status_id, reason, actor_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, string(entityType), entityID, prev, statusID, reason, actor.ID)
	if err != nil {
		return fmt.Errorf("failed to record status change: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *statusService) ClearStatus(ctx context.Context, entityType EntityType, entityID int, reason string, actor Actor) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var prev int
	err = tx.QueryRow(ctx, `
		DELETE FROM entity_statuses WHERE entity_type = $1 AND entity_id = $2
		RETURNING status_id
	`, string(entityType), entityID).Scan(&prev)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &NotFoundError{Kind: "status", Ref: fmt.Sprintf("%s/%d", entityType, entityID)}
		}
		return fmt.Errorf("failed to clear status: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO status_changes (entity_type, entity_id, prev_status_id, new_status_id, reason, actor_id)
		VALUES ($1, $2, $3, NULL, $4, $5)
	`, string(entityType), entityID, prev, reason, actor.ID)
	if err != nil {
		return fmt.Errorf("failed to record status change: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *statusService) ListStatuses(ctx context.Context) ([]Status, error) {
	rows, err := s.pool.Query(ctx, "SELECT id, code, name, effect FROM statuses ORDER BY code")
	if err != nil {
		return nil, fmt.Errorf("failed to query statuses: %w", err)
	}
	defer rows.Close()

	var out []Status
	for rows.Next() {
		var st Status
		if err := rows.Scan(&st.ID, &st.Code, &st.Name, &st.Effect); err != nil {
			return nil, fmt.Errorf("failed to scan status: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *statusService) StatusHistory(ctx context.Context, entityType EntityType, entityID int) ([]StatusChange, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, entity_type, entity_id, prev_status_id, new_status_id, reason, actor_id, created_at
		FROM status_changes
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY id
	`, string(entityType), entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query status history: %w", err)
	}
	defer rows.Close()

	var out []StatusChange
	for rows.Next() {
		var c StatusChange
		if err := rows.Scan(&c.ID, &c.EntityType, &c.EntityID, &c.PrevStatusID, &c.NewStatusID,
			&c.Reason, &c.ActorID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan status change: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
