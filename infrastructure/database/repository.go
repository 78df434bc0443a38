// Package database provides the Postgres-backed persistence layer for the
// transactional core. Every domain aggregate (cart, terminal, tranlog
// counter, delivery status, stock, report) is stored as a JSONB document
// in its own table, keyed by (tenant_id, id) in most tables (the
// delivery-status tables by id alone) — a schemaless document shape over
// relational storage. The per-terminal counters are bumped by one atomic
// upsert statement; the stock consumer's quantity write and its dedup
// record are separate writes, not one SQL transaction.
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Repository wraps a *sqlx.DB and exposes the generic document-store
// operations every domain repository is built on.
type Repository struct {
	db *sqlx.DB
}

// Open connects to Postgres via lib/pq and verifies the connection with a ping.
func Open(ctx context.Context, dsn string) (*Repository, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %v", ErrDatabaseError, err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Repository{db: db}, nil
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) DB() *sqlx.DB { return r.db }

func (r *Repository) Close() error { return r.db.Close() }

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: ping: %v", ErrDatabaseError, err)
	}
	return nil
}

// documentRow is the shape every generic-document table shares.
type documentRow struct {
	ID        string    `db:"id"`
	TenantID  string    `db:"tenant_id"`
	Data      []byte    `db:"data"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Tx runs fn inside a database transaction, committing on success and
// rolling back on error or panic. Nothing in this module calls it.
func (r *Repository) Tx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", ErrDatabaseError, err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	return fn(tx)
}

func marshalDoc(model any) ([]byte, error) {
	data, err := json.Marshal(model)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal: %v", ErrDatabaseError, err)
	}
	return data, nil
}

func unmarshalDoc(data []byte, target any) error {
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: unmarshal: %v", ErrDatabaseError, err)
	}
	return nil
}

func scanNoRows(err error) bool {
	return err == sql.ErrNoRows
}
