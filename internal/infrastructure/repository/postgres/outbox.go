package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/kirillkom/civic-records/internal/core/domain"
)

const defaultOutboxLease = 2 * time.Minute

type Outbox struct {
	db    dbtx
	lease time.Duration
}

// NewOutbox returns the ledger outbox. Due leases the entries it returns for
// lease so that worker replicas draining at the same time pick disjoint rows.
func NewOutbox(db *sql.DB, lease time.Duration) *Outbox {
	if lease <= 0 {
		lease = defaultOutboxLease
	}
	return &Outbox{db: db, lease: lease}
}

func (o *Outbox) Schedule(ctx context.Context, documentID string, notBefore time.Time) error {
	_, err := o.db.ExecContext(ctx, `
INSERT INTO ledger_outbox (document_id, attempts, last_error, enqueued_at, next_attempt)
VALUES ($1, 0, '', $2, $3)
ON CONFLICT (document_id) DO NOTHING
`, documentID, time.Now().UTC(), notBefore)
	if err != nil {
		return fmt.Errorf("schedule outbox entry: %w", err)
	}
	return nil
}

func (o *Outbox) Enqueue(ctx context.Context, documentID, lastError string, nextAttempt time.Time) error {
	_, err := o.db.ExecContext(ctx, `
INSERT INTO ledger_outbox (document_id, attempts, last_error, enqueued_at, next_attempt)
VALUES ($1, 1, $2, $3, $4)
ON CONFLICT (document_id) DO UPDATE
SET attempts = ledger_outbox.attempts + 1, last_error = EXCLUDED.last_error, next_attempt = EXCLUDED.next_attempt
`, documentID, lastError, time.Now().UTC(), nextAttempt)
	if err != nil {
		return fmt.Errorf("enqueue outbox entry: %w", err)
	}
	return nil
}

// Due claims up to limit due entries by pushing their next attempt to the
// end of the lease. Rows locked by another drainer are skipped.
func (o *Outbox) Due(ctx context.Context, now time.Time, limit int) ([]domain.OutboxEntry, error) {
	rows, err := o.db.QueryContext(ctx, `
UPDATE ledger_outbox
SET next_attempt = $3
WHERE document_id IN (
	SELECT document_id
	FROM ledger_outbox
	WHERE next_attempt <= $1
	ORDER BY next_attempt, document_id
	LIMIT $2
	FOR UPDATE SKIP LOCKED
)
RETURNING document_id, attempts, last_error, enqueued_at, next_attempt
`, now, limit, now.Add(o.lease))
	if err != nil {
		return nil, fmt.Errorf("claim due outbox entries: %w", err)
	}
	defer rows.Close()

	out := make([]domain.OutboxEntry, 0)
	for rows.Next() {
		var e domain.OutboxEntry
		if err := rows.Scan(&e.DocumentID, &e.Attempts, &e.LastError, &e.EnqueuedAt, &e.NextAttempt); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox entries: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocumentID < out[j].DocumentID })
	return out, nil
}

func (o *Outbox) Remove(ctx context.Context, documentID string) error {
	if _, err := o.db.ExecContext(ctx, `DELETE FROM ledger_outbox WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("remove outbox entry: %w", err)
	}
	return nil
}

func (o *Outbox) CountPending(ctx context.Context) (int, error) {
	var n int
	if err := o.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ledger_outbox`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count outbox entries: %w", err)
	}
	return n, nil
}
