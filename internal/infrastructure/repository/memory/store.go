// Package memory keeps requests, documents, sequences and the anchoring
// outbox in process memory. It backs single-node deployments and tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/juju/clock"

	"github.com/kirillkom/civic-records/internal/core/domain"
	"github.com/kirillkom/civic-records/internal/core/ports"
)

type tables struct {
	requests  map[string]*domain.Request
	documents map[string]*domain.Document
	outbox    map[string]domain.OutboxEntry
}

func (t tables) clone() tables {
	return tables{
		requests:  maps.Clone(t.requests),
		documents: maps.Clone(t.documents),
		outbox:    maps.Clone(t.outbox),
	}
}

// Store holds requests, documents and the anchoring outbox. Stored values are
// never mutated in place, so a transaction can stage on a shallow copy of the
// maps.
type Store struct {
	mu    sync.RWMutex
	data  tables
	clock clock.Clock
}

func NewStore(clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Store{
		data: tables{
			requests:  make(map[string]*domain.Request),
			documents: make(map[string]*domain.Document),
			outbox:    make(map[string]domain.OutboxEntry),
		},
		clock: clk,
	}
}

func (s *Store) Requests() *RequestRepository {
	return &RequestRepository{store: s}
}

func (s *Store) Documents() *DocumentRepository {
	return &DocumentRepository{store: s}
}

func (s *Store) Outbox() *Outbox {
	return &Outbox{store: s}
}

// RunInTx serializes with every other writer, stages fn's writes on a copy
// and publishes the copy only when fn succeeds.
func (s *Store) RunInTx(ctx context.Context, fn func(stores ports.Stores) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := &txView{data: s.data.clone()}
	if err := fn(ports.Stores{
		Requests:  &RequestRepository{tx: staged},
		Documents: &DocumentRepository{tx: staged},
		Outbox:    &Outbox{store: s, tx: staged},
	}); err != nil {
		return err
	}
	s.data = staged.data
	return nil
}

type txView struct {
	data tables
}

// access runs fn against the live tables under the store lock, or against
// the staged tables when the repository belongs to a transaction.
func access(store *Store, tx *txView, write bool, fn func(t *tables) error) error {
	if tx != nil {
		return fn(&tx.data)
	}
	if write {
		store.mu.Lock()
		defer store.mu.Unlock()
	} else {
		store.mu.RLock()
		defer store.mu.RUnlock()
	}
	return fn(&store.data)
}

type RequestRepository struct {
	store *Store
	tx    *txView
}

func (r *RequestRepository) Create(_ context.Context, req *domain.Request) error {
	return access(r.store, r.tx, true, func(t *tables) error {
		if _, ok := t.requests[req.RequestID]; ok {
			return domain.WrapError(domain.ErrInvalidInput, "create request", fmt.Errorf("duplicate request id %s", req.RequestID))
		}
		t.requests[req.RequestID] = req.Clone()
		return nil
	})
}

func (r *RequestRepository) Get(_ context.Context, requestID string) (*domain.Request, error) {
	var out *domain.Request
	err := access(r.store, r.tx, false, func(t *tables) error {
		req, ok := t.requests[requestID]
		if !ok {
			return domain.WrapError(domain.ErrNotFound, "get request", fmt.Errorf("request %s", requestID))
		}
		out = req.Clone()
		return nil
	})
	return out, err
}

func (r *RequestRepository) Update(_ context.Context, req *domain.Request, expectedVersion int64) error {
	return access(r.store, r.tx, true, func(t *tables) error {
		cur, ok := t.requests[req.RequestID]
		if !ok {
			return domain.WrapError(domain.ErrNotFound, "update request", fmt.Errorf("request %s", req.RequestID))
		}
		if cur.Version != expectedVersion {
			return domain.WrapError(domain.ErrConcurrentModification, "update request",
				fmt.Errorf("request %s: expected version %d, stored %d", req.RequestID, expectedVersion, cur.Version))
		}
		t.requests[req.RequestID] = req.Clone()
		return nil
	})
}

func (r *RequestRepository) List(_ context.Context, filter domain.RequestFilter) ([]domain.Request, error) {
	out := make([]domain.Request, 0)
	err := access(r.store, r.tx, false, func(t *tables) error {
		for _, req := range t.requests {
			if matches(req, filter) {
				out = append(out, *req.Clone())
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].RequestID > out[j].RequestID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func matches(req *domain.Request, f domain.RequestFilter) bool {
	if f.CitizenID != "" && req.CitizenID != f.CitizenID {
		return false
	}
	if f.Status != "" && req.Status != f.Status {
		return false
	}
	if f.DocumentType != "" && req.DocumentType != f.DocumentType {
		return false
	}
	if f.From != nil && req.SubmittedDate.Before(*f.From) {
		return false
	}
	if f.To != nil && !req.SubmittedDate.Before(*f.To) {
		return false
	}
	return true
}

// CountByTypeAndDate counts requests of typeCode submitted on day, where day
// is a midnight in the deployment's time zone.
func (r *RequestRepository) CountByTypeAndDate(_ context.Context, typeCode string, day time.Time) (int, error) {
	start := day
	end := day.AddDate(0, 0, 1)
	n := 0
	err := access(r.store, r.tx, false, func(t *tables) error {
		for _, req := range t.requests {
			if req.DocumentType == typeCode && !req.SubmittedDate.Before(start) && req.SubmittedDate.Before(end) {
				n++
			}
		}
		return nil
	})
	return n, err
}

type DocumentRepository struct {
	store *Store
	tx    *txView
}

func (r *DocumentRepository) Create(_ context.Context, doc *domain.Document) error {
	if doc.CitizenID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "create document", errors.New("citizen id is required"))
	}
	return access(r.store, r.tx, true, func(t *tables) error {
		if _, ok := t.documents[doc.DocumentID]; ok {
			return domain.WrapError(domain.ErrInvalidInput, "create document", fmt.Errorf("duplicate document id %s", doc.DocumentID))
		}
		t.documents[doc.DocumentID] = doc.Clone()
		return nil
	})
}

func (r *DocumentRepository) Get(_ context.Context, documentID string) (*domain.Document, error) {
	var out *domain.Document
	err := access(r.store, r.tx, false, func(t *tables) error {
		doc, ok := t.documents[documentID]
		if !ok {
			return domain.WrapError(domain.ErrNotFound, "get document", fmt.Errorf("document %s", documentID))
		}
		out = doc.Clone()
		return nil
	})
	return out, err
}

func (r *DocumentRepository) Update(_ context.Context, doc *domain.Document) error {
	return access(r.store, r.tx, true, func(t *tables) error {
		if _, ok := t.documents[doc.DocumentID]; !ok {
			return domain.WrapError(domain.ErrNotFound, "update document", fmt.Errorf("document %s", doc.DocumentID))
		}
		t.documents[doc.DocumentID] = doc.Clone()
		return nil
	})
}

func (r *DocumentRepository) MarkAnchored(_ context.Context, documentID, txID string, at time.Time) error {
	return access(r.store, r.tx, true, func(t *tables) error {
		cur, ok := t.documents[documentID]
		if !ok {
			return domain.WrapError(domain.ErrNotFound, "mark document anchored", fmt.Errorf("document %s", documentID))
		}
		next := cur.Clone()
		next.LedgerStatus = true
		next.LedgerTxID = domain.StringPtr(txID)
		next.LedgerTimestamp = domain.TimePtr(at)
		next.UpdatedAt = at
		t.documents[documentID] = next
		return nil
	})
}
