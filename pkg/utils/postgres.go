package utils

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// PostgresOptions describes the call database. The DSN is never logged or
// echoed in errors.
type PostgresOptions struct {
	DSN             string
	MaxConns        int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
	// Schema statements must be idempotent. They run in order, in one
	// transaction, right after the first ping.
	Schema []string
}

func (o PostgresOptions) normalized() PostgresOptions {
	if o.MaxConns <= 0 {
		o.MaxConns = 10
	}
	if o.ConnMaxLifetime <= 0 {
		o.ConnMaxLifetime = 30 * time.Minute
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 5 * time.Second
	}
	return o
}

// OpenPostgres returns a pgx-backed *sql.DB that answered a ping and carries
// the schema.
func OpenPostgres(ctx context.Context, o PostgresOptions) (*sql.DB, error) {
	o = o.normalized()

	cc, err := pgx.ParseConfig(o.DSN)
	if err != nil {
		return nil, errors.New("postgres: invalid DSN")
	}
	if cc.ConnectTimeout == 0 {
		cc.ConnectTimeout = o.ConnectTimeout
	}
	db := stdlib.OpenDB(*cc)
	db.SetMaxOpenConns(o.MaxConns)
	db.SetMaxIdleConns(o.MaxConns)
	db.SetConnMaxLifetime(o.ConnMaxLifetime)

	if err := prepare(ctx, db, o); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func prepare(ctx context.Context, db *sql.DB, o PostgresOptions) error {
	pingCtx, cancel := context.WithTimeout(ctx, o.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("postgres: ping: %w", err)
	}
	return ApplySchema(ctx, db, o.Schema)
}

// ApplySchema runs stmts in one transaction.
func ApplySchema(ctx context.Context, db *sql.DB, stmts []string) error {
	if len(stmts) == 0 {
		return nil
	}
	return WithTx(ctx, db, func(tx *sql.Tx) error {
		for i, s := range stmts {
			if _, err := tx.ExecContext(ctx, s); err != nil {
				return fmt.Errorf("postgres: schema statement %d: %w", i, err)
			}
		}
		return nil
	})
}

// WithTx commits when fn returns nil and rolls back otherwise. A failed
// rollback is joined to fn's error; a panic rolls back and is re-raised.
func WithTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("postgres: rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}
