package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kim-el/voice-pos-system/internal/cart"
)

const schema = `CREATE TABLE IF NOT EXISTS orders (
	id BIGSERIAL PRIMARY KEY,
	item_name TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	price DOUBLE PRECISION NOT NULL,
	total_price DOUBLE PRECISION NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Postgres persists committed sales. It implements cart.Persister.
type Postgres struct {
	db *sql.DB
}

// Open dials the database via the pgx stdlib driver, retrying pings for a
// bounded window, and ensures the orders table exists.
func Open(ctx context.Context, dsn string) (*Postgres, error) {
	const (
		maxRetries = 10
		retryDelay = 2 * time.Second
		pingTTL    = 5 * time.Second
	)

	var db *sql.DB
	var err error
	for i := 1; i <= maxRetries; i++ {
		db, err = sql.Open("pgx", dsn)
		if err == nil {
			pctx, cancel := context.WithTimeout(ctx, pingTTL)
			err = db.PingContext(pctx)
			cancel()
			if err == nil {
				break
			}
			_ = db.Close()
			db = nil
		}
		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return nil, fmt.Errorf("db open canceled: %w", ctx.Err())
		}
	}
	if db == nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure orders table: %w", err)
	}
	return &Postgres{db: db}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() error { return p.db.Close() }

// CompleteSale stores every line of a committed sale in one transaction and
// returns the stored items with their assigned ids. Either all lines are
// persisted or none are.
func (p *Postgres) CompleteSale(ctx context.Context, lines []cart.Line, total float64) ([]cart.PersistedItem, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	saved := make([]cart.PersistedItem, 0, len(lines))
	for _, ln := range lines {
		lineTotal := ln.UnitPrice * float64(ln.Quantity)
		var id int64
		err = tx.QueryRowContext(ctx, `
			INSERT INTO orders (item_name, quantity, price, total_price)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, ln.Name, ln.Quantity, ln.UnitPrice, lineTotal).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("insert order line %q: %w", ln.Name, err)
		}
		saved = append(saved, cart.PersistedItem{
			ID:         id,
			Name:       ln.Name,
			Quantity:   ln.Quantity,
			Price:      ln.UnitPrice,
			TotalPrice: lineTotal,
		})
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return saved, nil
}

// OrderRow is one stored order line.
type OrderRow struct {
	ID         int64     `json:"id"`
	ItemName   string    `json:"item_name"`
	Quantity   int       `json:"quantity"`
	Price      float64   `json:"price"`
	TotalPrice float64   `json:"total_price"`
	CreatedAt  time.Time `json:"timestamp"`
}

// RecentOrders returns stored order lines, newest first.
func (p *Postgres) RecentOrders(ctx context.Context, limit int) ([]OrderRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, item_name, quantity, price, total_price, created_at
		FROM orders
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var out []OrderRow
	for rows.Next() {
		var r OrderRow
		if err := rows.Scan(&r.ID, &r.ItemName, &r.Quantity, &r.Price, &r.TotalPrice, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
