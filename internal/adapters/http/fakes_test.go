package httpadapter

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/kirillkom/civic-records/internal/core/domain"
)

type lifecycleFake struct {
	mu sync.Mutex

	submitActor  domain.Actor
	submitInput  domain.SubmitInput
	target       domain.RequestStatus
	payload      domain.TransitionPayload
	approveVer   int64
	completeCall int

	req *domain.Request
	doc *domain.Document
	err error
}

func (f *lifecycleFake) Submit(_ context.Context, actor domain.Actor, input domain.SubmitInput) (*domain.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitActor, f.submitInput = actor, input
	return f.req, f.err
}

func (f *lifecycleFake) Transition(_ context.Context, _ string, target domain.RequestStatus, _ domain.Actor, payload domain.TransitionPayload) (*domain.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.target, f.payload = target, payload
	return f.req, f.err
}

func (f *lifecycleFake) Approve(_ context.Context, _ string, _ domain.Actor, expectedVersion int64) (*domain.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.approveVer = expectedVersion
	return f.req, f.err
}

func (f *lifecycleFake) CompleteDocument(context.Context, string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completeCall++
	return f.doc, f.err
}

type readerFake struct {
	filter domain.RequestFilter
	req    *domain.Request
	err    error
}

func (f *readerFake) Get(context.Context, domain.Actor, string) (*domain.Request, error) {
	return f.req, f.err
}

func (f *readerFake) List(_ context.Context, _ domain.Actor, filter domain.RequestFilter) ([]domain.Request, error) {
	f.filter = filter
	if f.err != nil {
		return nil, f.err
	}
	return []domain.Request{}, nil
}

type documentsFake struct {
	reason string
	doc    *domain.Document
	err    error
}

func (f *documentsFake) Get(context.Context, domain.Actor, string) (*domain.Document, error) {
	return f.doc, f.err
}

func (f *documentsFake) Validity(context.Context, domain.Actor, string) (domain.DocumentValidity, error) {
	if f.err != nil {
		return domain.DocumentValidity{}, f.err
	}
	return domain.DocumentValidity{DocumentID: f.doc.DocumentID, Status: f.doc.Status, Valid: true}, nil
}

func (f *documentsFake) IssueManual(context.Context, domain.Actor, domain.ManualIssueInput) (*domain.Document, error) {
	return f.doc, f.err
}

func (f *documentsFake) Revoke(_ context.Context, _ domain.Actor, _ string, reason string) (*domain.Document, error) {
	f.reason = reason
	return f.doc, f.err
}

type anchorerFake struct {
	verified []string
	result   domain.LedgerVerification
	err      error
}

func (f *anchorerFake) AnchorByID(context.Context, string) error { return nil }

func (f *anchorerFake) VerifyByID(_ context.Context, documentID string) (domain.LedgerVerification, error) {
	f.verified = append(f.verified, documentID)
	return f.result, f.err
}

func (f *anchorerFake) DrainOutbox(context.Context, int) (int, error) { return 0, nil }

type reporterFake struct {
	err error
}

func (f *reporterFake) ExportRequests(_ context.Context, _ domain.Actor, _ domain.RequestFilter, w io.Writer) error {
	if f.err != nil {
		return f.err
	}
	_, err := w.Write([]byte("PK-fake-workbook"))
	return err
}

type catalogFake struct{}

func (catalogFake) Lookup(identifier string) (domain.DocumentType, error) {
	if identifier == "CMND" || identifier == "Chứng minh nhân dân" {
		return domain.DocumentType{Code: "CMND", Name: "Chứng minh nhân dân"}, nil
	}
	return domain.DocumentType{}, domain.WrapError(domain.ErrUnknownDocumentType, "lookup document type", fmt.Errorf("identifier=%s", identifier))
}

func (catalogFake) List() []domain.DocumentType {
	return []domain.DocumentType{{Code: "CMND", Name: "Chứng minh nhân dân"}}
}
