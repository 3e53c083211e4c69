package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/civic-records/internal/core/domain"
)

// RequestRepository persists requests. Update is a compare-and-swap on
// Version: it fails with domain.ErrConcurrentModification when the stored
// version differs from expectedVersion.
type RequestRepository interface {
	Create(ctx context.Context, req *domain.Request) error
	Get(ctx context.Context, requestID string) (*domain.Request, error)
	Update(ctx context.Context, req *domain.Request, expectedVersion int64) error
	List(ctx context.Context, filter domain.RequestFilter) ([]domain.Request, error)
	CountByTypeAndDate(ctx context.Context, typeCode string, day time.Time) (int, error)
}

// DocumentRepository persists issued documents.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	Get(ctx context.Context, documentID string) (*domain.Document, error)
	Update(ctx context.Context, doc *domain.Document) error
	MarkAnchored(ctx context.Context, documentID, txID string, at time.Time) error
}

// Stores groups the repositories a unit of work operates on.
type Stores struct {
	Requests  RequestRepository
	Documents DocumentRepository
	Outbox    AnchorOutbox
}

// UnitOfWork runs fn atomically: either every write made through stores is
// kept or none is.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(stores Stores) error) error
}

// SequenceAllocator hands out a strictly increasing per-(type, day) counter
// starting at 1. Allocation is atomic across concurrent callers.
type SequenceAllocator interface {
	Next(ctx context.Context, typeCode string, day time.Time) (int64, error)
}

// DocumentTypeCatalog resolves document types by code first, then by name.
type DocumentTypeCatalog interface {
	Lookup(identifier string) (domain.DocumentType, error)
	List() []domain.DocumentType
}

// LedgerAdapter records provenance events. No ordering or durability is
// assumed from it.
type LedgerAdapter interface {
	RecordEvent(ctx context.Context, kind, subjectID string, data map[string]any) (domain.LedgerReceipt, error)
	QueryEvent(ctx context.Context, kind, subjectID string) (domain.LedgerRecord, error)
}

// MessageQueue publishes/consumes document issuance events.
type MessageQueue interface {
	PublishDocumentIssued(ctx context.Context, documentID string) error
	SubscribeDocumentIssued(ctx context.Context, handler func(context.Context, string) error) error
}

// AnchorOutbox keeps every ledger write still owed. Schedule is called in
// the unit of work that issues the document and leaves an existing entry
// alone; Enqueue records a failed attempt. An entry leaves the outbox only
// when the document is anchored or gone.
type AnchorOutbox interface {
	Schedule(ctx context.Context, documentID string, notBefore time.Time) error
	Enqueue(ctx context.Context, documentID, lastError string, nextAttempt time.Time) error
	// Due returns entries whose next attempt has passed. Shared
	// implementations lease what they return so concurrent drainers do not
	// receive the same entry.
	Due(ctx context.Context, now time.Time, limit int) ([]domain.OutboxEntry, error)
	Remove(ctx context.Context, documentID string) error
	CountPending(ctx context.Context) (int, error)
}

// StaffDirectory supplies a fallback issuer when a request carries none.
type StaffDirectory interface {
	AnyStaff(ctx context.Context) (string, bool, error)
}

// Fingerprinter computes a stable content hash for anchoring.
type Fingerprinter interface {
	Fingerprint(payload map[string]any) (string, error)
}

// RequestReportWriter renders requests and per-day counts as a report.
type RequestReportWriter interface {
	WriteRequests(w io.Writer, requests []domain.Request, summary []domain.DailyCount) error
}

// LifecycleObserver receives lifecycle outcomes for metrics.
type LifecycleObserver interface {
	RequestSubmitted(documentType string)
	Transitioned(from, to domain.RequestStatus, err error)
	DocumentIssued(documentType, source string)
	AnchorFinished(duration time.Duration, err error)
}
