package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kirillkom/civic-records/internal/core/domain"
	"github.com/kirillkom/civic-records/internal/core/ports"
)

const defaultTxTimeout = 5 * time.Second

type UnitOfWork struct {
	db      *sql.DB
	timeout time.Duration
}

func NewUnitOfWork(db *sql.DB, timeout time.Duration) *UnitOfWork {
	if timeout <= 0 {
		timeout = defaultTxTimeout
	}
	return &UnitOfWork{db: db, timeout: timeout}
}

func (u *UnitOfWork) RunInTx(ctx context.Context, fn func(stores ports.Stores) error) error {
	if err := ctx.Err(); err != nil {
		return domain.WrapError(domain.ErrTemporary, "begin transaction", err)
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()
	}

	tx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(ports.Stores{
		Requests:  &RequestRepository{db: tx},
		Documents: &DocumentRepository{db: tx},
		Outbox:    &Outbox{db: tx, lease: defaultOutboxLease},
	}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
