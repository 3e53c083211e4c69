// Package simulator is an in-process stand-in for the provenance ledger.
// Events live only as long as the process.
package simulator

import (
	"context"
	"encoding/hex"
	"fmt"
	"maps"
	"sync"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/zeebo/blake3"

	"github.com/kirillkom/civic-records/internal/core/domain"
)

const statusConfirmed = "confirmed"

type eventKey struct {
	kind    string
	subject string
}

type Ledger struct {
	clock clock.Clock

	mu     sync.Mutex
	block  int64
	events map[eventKey]domain.LedgerRecord
}

func New(clk clock.Clock) *Ledger {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Ledger{
		clock:  clk,
		events: make(map[eventKey]domain.LedgerRecord),
	}
}

// RecordEvent stores the latest event for (kind, subjectID). Re-recording
// the same subject mints a new transaction, like a real chain would.
func (l *Ledger) RecordEvent(ctx context.Context, kind, subjectID string, data map[string]any) (domain.LedgerReceipt, error) {
	if err := ctx.Err(); err != nil {
		return domain.LedgerReceipt{}, domain.WrapError(domain.ErrLedgerUnavailable, "record ledger event", err)
	}
	if kind == "" || subjectID == "" {
		return domain.LedgerReceipt{}, domain.WrapError(domain.ErrInvalidInput, "record ledger event", fmt.Errorf("kind and subject are required"))
	}

	now := l.clock.Now().UTC()
	txID := "0x" + transactionHash(kind, subjectID, uuid.NewString())

	l.mu.Lock()
	defer l.mu.Unlock()
	l.block++
	l.events[eventKey{kind: kind, subject: subjectID}] = domain.LedgerRecord{
		Kind:      kind,
		SubjectID: subjectID,
		TxID:      txID,
		Data:      maps.Clone(data),
		Timestamp: now,
	}
	return domain.LedgerReceipt{
		TxID:        txID,
		Status:      statusConfirmed,
		BlockNumber: l.block,
		Timestamp:   now,
	}, nil
}

func (l *Ledger) QueryEvent(ctx context.Context, kind, subjectID string) (domain.LedgerRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.LedgerRecord{}, domain.WrapError(domain.ErrLedgerUnavailable, "query ledger event", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.events[eventKey{kind: kind, subject: subjectID}]
	if !ok {
		return domain.LedgerRecord{}, domain.WrapError(domain.ErrNotFound, "query ledger event", fmt.Errorf("no %s event for %s", kind, subjectID))
	}
	rec.Data = maps.Clone(rec.Data)
	return rec, nil
}

func transactionHash(kind, subjectID, nonce string) string {
	sum := blake3.Sum256([]byte(kind + "\x00" + subjectID + "\x00" + nonce))
	return hex.EncodeToString(sum[:])
}
