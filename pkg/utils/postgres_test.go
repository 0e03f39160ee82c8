package utils

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPostgresOptions_Normalized(t *testing.T) {
	o := PostgresOptions{}.normalized()
	if o.MaxConns != 10 || o.ConnectTimeout != 5*time.Second || o.ConnMaxLifetime != 30*time.Minute {
		t.Fatalf("unexpected defaults: %+v", o)
	}

	o = PostgresOptions{MaxConns: 4, ConnectTimeout: time.Second}.normalized()
	if o.MaxConns != 4 || o.ConnectTimeout != time.Second {
		t.Fatalf("explicit values must be kept: %+v", o)
	}
}

func TestOpenPostgres_RejectsBadDSNWithoutEchoingIt(t *testing.T) {
	_, err := OpenPostgres(context.Background(), PostgresOptions{DSN: "postgres://u:hunter2@db:notaport/calls"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if got := err.Error(); got != "postgres: invalid DSN" {
		t.Fatalf("unexpected error %q", got)
	}
}

func TestRedisConfig_Defaults(t *testing.T) {
	c := RedisConfig{Addr: "localhost:6379"}.withDefaults()
	if c.PoolSize != 20 {
		t.Fatalf("expected pool size 20, got %d", c.PoolSize)
	}
	if c.DialTimeout != 3*time.Second {
		t.Fatalf("expected 3s dial timeout, got %s", c.DialTimeout)
	}
}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE calls`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := WithTx(context.Background(), db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE calls SET state = 'listening'`)
		return err
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestWithTx_RollsBackAndKeepsError(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	sentinel := errors.New("calls: call finalized")
	err := WithTx(context.Background(), db, func(tx *sql.Tx) error { return sentinel })
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestApplySchema_RunsStatementsInOrder(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS calls`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE INDEX IF NOT EXISTS calls_company_start_idx`).WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	err := ApplySchema(context.Background(), db, []string{
		`CREATE TABLE IF NOT EXISTS calls (call_id TEXT PRIMARY KEY)`,
		`CREATE INDEX IF NOT EXISTS calls_company_start_idx ON calls (company_id, start_time)`,
	})
	if err == nil {
		t.Fatalf("expected failing statement to surface")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
