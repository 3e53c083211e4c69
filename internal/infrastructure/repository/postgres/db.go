package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/civic-records/internal/core/domain"
)

const schemaLockKey = int64(2024031501)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockKey); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS requests (
	request_id TEXT PRIMARY KEY,
	reference_number TEXT NOT NULL UNIQUE,
	document_type TEXT NOT NULL,
	citizen_id TEXT NOT NULL,
	citizen_name TEXT NOT NULL DEFAULT '',
	assigned_officer TEXT,
	approver TEXT,
	approved_at TIMESTAMPTZ,
	status TEXT NOT NULL,
	priority TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	notes TEXT NOT NULL DEFAULT '',
	fields JSONB NOT NULL DEFAULT '{}'::jsonb,
	rejection_reason TEXT,
	additional_info_request TEXT,
	additional_info_response TEXT,
	resulting_document TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	submitted_date TIMESTAMPTZ NOT NULL,
	due_date TIMESTAMPTZ NOT NULL,
	completed_date TIMESTAMPTZ,
	version BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_requests_citizen ON requests(citizen_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_requests_status ON requests(status);
CREATE INDEX IF NOT EXISTS idx_requests_type_submitted ON requests(document_type, submitted_date);

CREATE TABLE IF NOT EXISTS documents (
	document_id TEXT PRIMARY KEY,
	document_type TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	content JSONB NOT NULL DEFAULT '{}'::jsonb,
	citizen_id TEXT NOT NULL CHECK (citizen_id <> ''),
	issued_by TEXT,
	status TEXT NOT NULL,
	issue_date TIMESTAMPTZ NOT NULL,
	valid_from TIMESTAMPTZ NOT NULL,
	valid_until TIMESTAMPTZ,
	request_id TEXT UNIQUE,
	revoked_reason TEXT,
	fingerprint TEXT NOT NULL DEFAULT '',
	ledger_status BOOLEAN NOT NULL DEFAULT FALSE,
	ledger_tx_id TEXT,
	ledger_timestamp TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_citizen ON documents(citizen_id);

CREATE TABLE IF NOT EXISTS request_sequences (
	type_code TEXT NOT NULL,
	day DATE NOT NULL,
	value BIGINT NOT NULL,
	PRIMARY KEY (type_code, day)
);

CREATE TABLE IF NOT EXISTS ledger_outbox (
	document_id TEXT PRIMARY KEY,
	attempts INTEGER NOT NULL,
	last_error TEXT NOT NULL DEFAULT '',
	enqueued_at TIMESTAMPTZ NOT NULL,
	next_attempt TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ledger_outbox_next_attempt ON ledger_outbox(next_attempt);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func mapWriteError(op string, err error) error {
	if isUniqueViolation(err) {
		return domain.WrapError(domain.ErrConcurrentModification, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
