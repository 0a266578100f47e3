// verify-ledger replays the movement log against the stocks projection and
// reports every divergence. The signed sum of all movements touching a
// (product, location, lot) key must equal that key's current quantity, no
// quantity may be negative, and each reference sequence must be gapless.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

func main() {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		log.Fatal("[CONNECT] DATABASE_URL not set")
	}

	ctx := context.Background()
	pool := connectDB(ctx, url)
	defer pool.Close()

	problems := 0
	problems += verifyProjection(ctx, pool)
	problems += verifyNonNegative(ctx, pool)
	problems += verifySequences(ctx, pool)

	if problems > 0 {
		log.Fatalf("[DONE] %d problem(s) found", problems)
	}
	log.Println("[DONE] ledger is consistent")
}

func connectDB(ctx context.Context, url string) *pgxpool.Pool {
	connCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		log.Fatalf("[CONNECT] failed to create pool: %v", err)
	}
	if err := pool.Ping(connCtx); err != nil {
		log.Fatalf("[CONNECT] failed to ping database: %v", err)
	}
	log.Println("[CONNECT] success")
	return pool
}

// verifyProjection compares the signed movement sums against stocks. Every
// inbound leg counts toward its to_location, every outbound leg against its
// from_location; a TRANSFER row contributes both legs.
func verifyProjection(ctx context.Context, pool *pgxpool.Pool) int {
	rows, err := pool.Query(ctx, `
		WITH flows AS (
			SELECT product_id, to_location_id AS location_id, lot_key, quantity
			FROM stock_movements WHERE to_location_id IS NOT NULL
			UNION ALL
			SELECT product_id, from_location_id, lot_key, -quantity
			FROM stock_movements WHERE from_location_id IS NOT NULL
		),
		replayed AS (
			SELECT product_id, location_id, lot_key, SUM(quantity) AS qty
			FROM flows GROUP BY product_id, location_id, lot_key
		)
		SELECT
			COALESCE(r.product_id, s.product_id),
			COALESCE(r.location_id, s.location_id),
			COALESCE(r.lot_key, s.lot_key),
			COALESCE(r.qty, 0),
			COALESCE(s.quantity, 0)
		FROM replayed r
		FULL OUTER JOIN stocks s
			ON s.product_id = r.product_id
			AND s.location_id = r.location_id
			AND s.lot_key = r.lot_key
		WHERE COALESCE(r.qty, 0) <> COALESCE(s.quantity, 0)
	`)
	if err != nil {
		log.Fatalf("[PROJECTION] query failed: %v", err)
	}
	defer rows.Close()

	problems := 0
	for rows.Next() {
		var productID, locationID int
		var lotKey string
		var replayed, stored decimal.Decimal
		if err := rows.Scan(&productID, &locationID, &lotKey, &replayed, &stored); err != nil {
			log.Fatalf("[PROJECTION] scan failed: %v", err)
		}
		log.Printf("[PROJECTION] mismatch product=%d location=%d lot=%s replayed=%s stored=%s",
			productID, locationID, lotKey, replayed, stored)
		problems++
	}
	if err := rows.Err(); err != nil {
		log.Fatalf("[PROJECTION] rows failed: %v", err)
	}
	if problems == 0 {
		log.Println("[PROJECTION] ok")
	}
	return problems
}

func verifyNonNegative(ctx context.Context, pool *pgxpool.Pool) int {
	var count int
	err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM stocks WHERE quantity < 0").Scan(&count)
	if err != nil {
		log.Fatalf("[NEGATIVE] query failed: %v", err)
	}
	if count > 0 {
		log.Printf("[NEGATIVE] %d stock row(s) below zero", count)
		return count
	}
	log.Println("[NEGATIVE] ok")
	return 0
}

// verifySequences checks that each movement type has exactly last_number
// references and no duplicates, i.e. the numbering never skipped or reused
// a value.
func verifySequences(ctx context.Context, pool *pgxpool.Pool) int {
	rows, err := pool.Query(ctx, `
		SELECT ms.movement_type, ms.last_number,
			COUNT(sm.id), COUNT(DISTINCT sm.reference)
		FROM movement_sequences ms
		LEFT JOIN stock_movements sm ON sm.movement_type = ms.movement_type
		GROUP BY ms.movement_type, ms.last_number
	`)
	if err != nil {
		log.Fatalf("[SEQUENCE] query failed: %v", err)
	}
	defer rows.Close()

	problems := 0
	for rows.Next() {
		var movementType string
		var lastNumber, count, distinct int64
		if err := rows.Scan(&movementType, &lastNumber, &count, &distinct); err != nil {
			log.Fatalf("[SEQUENCE] scan failed: %v", err)
		}
		if count != lastNumber || distinct != count {
			log.Printf("[SEQUENCE] %s: last_number=%d rows=%d distinct=%d",
				movementType, lastNumber, count, distinct)
			problems++
		}
	}
	if err := rows.Err(); err != nil {
		log.Fatalf("[SEQUENCE] rows failed: %v", err)
	}
	if problems == 0 {
		log.Println("[SEQUENCE] ok")
	}
	return problems
}
