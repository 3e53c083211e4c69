package ports

import (
	"context"
	"io"

	"github.com/kirillkom/civic-records/internal/core/domain"
)

// RequestLifecycle is the inbound contract for request state changes.
type RequestLifecycle interface {
	Submit(ctx context.Context, citizen domain.Actor, input domain.SubmitInput) (*domain.Request, error)
	Transition(ctx context.Context, requestID string, target domain.RequestStatus, actor domain.Actor, payload domain.TransitionPayload) (*domain.Request, error)
	Approve(ctx context.Context, requestID string, actor domain.Actor, expectedVersion int64) (*domain.Request, error)
	CompleteDocument(ctx context.Context, requestID string) (*domain.Document, error)
}

// RequestReader is the inbound read model for requests.
type RequestReader interface {
	Get(ctx context.Context, actor domain.Actor, requestID string) (*domain.Request, error)
	List(ctx context.Context, actor domain.Actor, filter domain.RequestFilter) ([]domain.Request, error)
}

// DocumentService is the inbound contract for issued documents.
type DocumentService interface {
	Get(ctx context.Context, actor domain.Actor, documentID string) (*domain.Document, error)
	Validity(ctx context.Context, actor domain.Actor, documentID string) (domain.DocumentValidity, error)
	IssueManual(ctx context.Context, actor domain.Actor, input domain.ManualIssueInput) (*domain.Document, error)
	Revoke(ctx context.Context, actor domain.Actor, documentID, reason string) (*domain.Document, error)
}

// DocumentAnchorer anchors issued documents on the ledger.
type DocumentAnchorer interface {
	AnchorByID(ctx context.Context, documentID string) error
	VerifyByID(ctx context.Context, documentID string) (domain.LedgerVerification, error)
	DrainOutbox(ctx context.Context, limit int) (int, error)
}

// IssuanceNotifier is told about documents that should be anchored. It never
// blocks or fails the caller.
type IssuanceNotifier interface {
	DocumentIssued(ctx context.Context, documentID string)
}

// RequestReporter exports request reports.
type RequestReporter interface {
	ExportRequests(ctx context.Context, actor domain.Actor, filter domain.RequestFilter, w io.Writer) error
}

// DocumentTypeReader exposes the catalog to callers.
type DocumentTypeReader interface {
	Lookup(identifier string) (domain.DocumentType, error)
	List() []domain.DocumentType
}
