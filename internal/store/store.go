package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pocketbase/dbx"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Store is the relational backing store. Every conditional update it exposes
// reports the number of rows it changed so callers can tell a race loser
// from a winner.
type Store struct {
	db     *dbx.DB
	driver string
}

// Open connects to the store. Supported drivers are "sqlite" and "postgres".
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	db, err := dbx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("dbx.Open(%s): %w", driver, err)
	}

	// sqlite allows a single writer; one connection keeps two deferred
	// transactions from deadlocking on lock upgrade.
	if driver == "sqlite" {
		db.DB().SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.DB().PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store ping: %w", err)
	}

	return &Store{db: db, driver: driver}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.db.DB().PingContext(ctx); err != nil {
		return fmt.Errorf("store health check failed: %w", err)
	}
	return nil
}

// Queries returns a query set bound to the connection pool.
func (s *Store) Queries() *Queries {
	return &Queries{b: s.db}
}

// Tx runs fn inside one transaction. fn must only use the Queries it is
// given: with sqlite the pool holds a single connection.
func (s *Store) Tx(ctx context.Context, fn func(q *Queries) error) error {
	return s.db.TransactionalContext(ctx, nil, func(tx *dbx.Tx) error {
		return fn(&Queries{b: tx})
	})
}

// Queries groups the table operations. It runs either on the pool or inside
// a transaction.
type Queries struct {
	b dbx.Builder
}

func affected(res sql.Result, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func toAny(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

func ms(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMS(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMilli(v).UTC()
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate key")
}
