package memory

import (
	"context"
	"sort"
	"time"

	"github.com/kirillkom/civic-records/internal/core/domain"
)

// Outbox is the anchoring outbox of a Store. Inside RunInTx it writes to the
// staged tables, so an owed ledger write commits with its document.
type Outbox struct {
	store *Store
	tx    *txView
}

func (o *Outbox) Schedule(_ context.Context, documentID string, notBefore time.Time) error {
	return access(o.store, o.tx, true, func(t *tables) error {
		if _, ok := t.outbox[documentID]; ok {
			return nil
		}
		t.outbox[documentID] = domain.OutboxEntry{
			DocumentID:  documentID,
			EnqueuedAt:  o.store.clock.Now(),
			NextAttempt: notBefore,
		}
		return nil
	})
}

// Enqueue adds an entry or, when one exists, records another failed attempt.
func (o *Outbox) Enqueue(_ context.Context, documentID, lastError string, nextAttempt time.Time) error {
	return access(o.store, o.tx, true, func(t *tables) error {
		entry, ok := t.outbox[documentID]
		if !ok {
			entry = domain.OutboxEntry{DocumentID: documentID, EnqueuedAt: o.store.clock.Now()}
		}
		entry.Attempts++
		entry.LastError = lastError
		entry.NextAttempt = nextAttempt
		t.outbox[documentID] = entry
		return nil
	})
}

// Due lists entries whose next attempt has passed. A single process drains
// the memory outbox, so entries are not leased.
func (o *Outbox) Due(_ context.Context, now time.Time, limit int) ([]domain.OutboxEntry, error) {
	out := make([]domain.OutboxEntry, 0)
	err := access(o.store, o.tx, false, func(t *tables) error {
		for _, e := range t.outbox {
			if !e.NextAttempt.After(now) {
				out = append(out, e)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].NextAttempt.Equal(out[j].NextAttempt) {
			return out[i].NextAttempt.Before(out[j].NextAttempt)
		}
		return out[i].DocumentID < out[j].DocumentID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (o *Outbox) Remove(_ context.Context, documentID string) error {
	return access(o.store, o.tx, true, func(t *tables) error {
		delete(t.outbox, documentID)
		return nil
	})
}

func (o *Outbox) CountPending(context.Context) (int, error) {
	n := 0
	err := access(o.store, o.tx, false, func(t *tables) error {
		n = len(t.outbox)
		return nil
	})
	return n, err
}
