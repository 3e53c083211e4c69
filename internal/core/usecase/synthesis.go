package usecase

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"github.com/kirillkom/civic-records/internal/core/domain"
	"github.com/kirillkom/civic-records/internal/core/ports"
)

const defaultAnchorDelay = time.Minute

type SynthesisConfig struct {
	// Location defines the calendar day written as the issue date.
	Location *time.Location
	// AnchorDelay is how long the queued hand-off owns a new ledger write
	// before the outbox sweep takes it over.
	AnchorDelay time.Duration
}

// Synthesizer turns a completed request into its issued document.
type Synthesizer struct {
	staff         ports.StaffDirectory
	fingerprinter ports.Fingerprinter
	loc           *time.Location
	anchorDelay   time.Duration
}

func NewSynthesizer(staff ports.StaffDirectory, fingerprinter ports.Fingerprinter, cfg SynthesisConfig) *Synthesizer {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	delay := cfg.AnchorDelay
	if delay <= 0 {
		delay = defaultAnchorDelay
	}
	return &Synthesizer{staff: staff, fingerprinter: fingerprinter, loc: loc, anchorDelay: delay}
}

// Synthesize returns the document for req, creating it through stores when it
// does not exist yet. req.ResultingDocument is set on the passed request; the
// caller persists the request in the same unit of work. The boolean reports
// whether a new document was created.
func (s *Synthesizer) Synthesize(
	ctx context.Context,
	stores ports.Stores,
	req *domain.Request,
	docType domain.DocumentType,
	now time.Time,
) (*domain.Document, bool, error) {
	if req.ResultingDocument != nil {
		doc, err := stores.Documents.Get(ctx, *req.ResultingDocument)
		if err != nil {
			return nil, false, fmt.Errorf("load resulting document: %w", err)
		}
		return doc, false, nil
	}

	documentID := domain.DocumentIDFor(req)
	existing, err := stores.Documents.Get(ctx, documentID)
	switch {
	case err == nil:
		if existing.RequestID == nil || *existing.RequestID != req.RequestID {
			return nil, false, domain.WrapError(domain.ErrConcurrentModification, "synthesize document",
				fmt.Errorf("document %s belongs to another request", documentID))
		}
		req.ResultingDocument = domain.StringPtr(existing.DocumentID)
		slog.Info("document_relinked", "document_id", existing.DocumentID, "request_id", req.RequestID)
		return existing, false, nil
	case !domain.IsKind(err, domain.ErrNotFound):
		return nil, false, fmt.Errorf("probe document %s: %w", documentID, err)
	}

	issueDate := now.In(s.loc)
	if req.CompletedDate != nil {
		issueDate = req.CompletedDate.In(s.loc)
	}
	issuedBy, err := s.issuer(ctx, req)
	if err != nil {
		return nil, false, err
	}

	doc := &domain.Document{
		DocumentID:   documentID,
		DocumentType: docType.Code,
		Title:        strings.TrimSpace(docType.Name + " - " + req.CitizenName),
		Description:  fmt.Sprintf("Issued for request %s", req.RequestID),
		Content:      buildContent(req, docType, issueDate),
		CitizenID:    req.CitizenID,
		IssuedBy:     issuedBy,
		Status:       domain.DocumentActive,
		IssueDate:    issueDate,
		ValidFrom:    issueDate,
		RequestID:    domain.StringPtr(req.RequestID),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	fp, err := s.fingerprinter.Fingerprint(AnchorPayload(doc, s.loc))
	if err != nil {
		return nil, false, fmt.Errorf("fingerprint document: %w", err)
	}
	doc.Fingerprint = fp

	if err := stores.Documents.Create(ctx, doc); err != nil {
		return nil, false, fmt.Errorf("create document: %w", err)
	}
	if docType.StoreOnLedger {
		if err := stores.Outbox.Schedule(ctx, doc.DocumentID, now.Add(s.anchorDelay)); err != nil {
			return nil, false, fmt.Errorf("schedule ledger anchor: %w", err)
		}
	}
	req.ResultingDocument = domain.StringPtr(doc.DocumentID)
	return doc, true, nil
}

func (s *Synthesizer) issuer(ctx context.Context, req *domain.Request) (*string, error) {
	if req.AssignedOfficer != nil && *req.AssignedOfficer != "" {
		return domain.StringPtr(*req.AssignedOfficer), nil
	}
	if req.Approver != nil && *req.Approver != "" {
		return domain.StringPtr(*req.Approver), nil
	}
	if s.staff == nil {
		return nil, nil
	}
	id, ok, err := s.staff.AnyStaff(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve fallback issuer: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return domain.StringPtr(id), nil
}

// AnchorPayload is the part of a document whose fingerprint goes on the
// ledger. Revocation and ledger bookkeeping do not change it. The issue date
// is the calendar day in loc, so a value read back in another zone hashes
// the same.
func AnchorPayload(doc *domain.Document, loc *time.Location) map[string]any {
	return map[string]any{
		"document_id":   doc.DocumentID,
		"document_type": doc.DocumentType,
		"citizen_id":    doc.CitizenID,
		"issue_date":    issueDay(doc.IssueDate, loc),
		"content":       doc.Content,
	}
}

func issueDay(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(time.DateOnly)
}

type contentTemplate func(req *domain.Request, issueDate time.Time) map[string]any

var contentTemplates = []struct {
	marker string
	build  contentTemplate
}{
	{marker: "CMND", build: identityContent},
	{marker: "CCCD", build: identityContent},
	{marker: "DKKH", build: marriageContent},
	{marker: "GCT", build: deathContent},
	{marker: "KS", build: birthContent},
}

func buildContent(req *domain.Request, docType domain.DocumentType, issueDate time.Time) map[string]any {
	code := strings.ToUpper(docType.Code)
	for _, tpl := range contentTemplates {
		if strings.Contains(code, tpl.marker) {
			return tpl.build(req, issueDate)
		}
	}
	return genericContent(req, issueDate)
}

func identityContent(req *domain.Request, issueDate time.Time) map[string]any {
	idNumber := field(req, "id_number")
	if idNumber == "" {
		idNumber = deriveIDNumber(req.RequestID)
	}
	return map[string]any{
		"fullName":         fieldOr(req, "full_name", req.CitizenName),
		"idNumber":         idNumber,
		"dateOfBirth":      field(req, "date_of_birth"),
		"placeOfOrigin":    field(req, "place_of_origin"),
		"placeOfResidence": field(req, "place_of_residence"),
		"issueDate":        issueDate.Format(time.DateOnly),
	}
}

func marriageContent(req *domain.Request, issueDate time.Time) map[string]any {
	return map[string]any{
		"husbandName":        field(req, "husband_name"),
		"wifeName":           field(req, "wife_name"),
		"registrationPlace":  field(req, "registration_place"),
		"registrationNumber": req.ReferenceNumber,
		"issueDate":          issueDate.Format(time.DateOnly),
	}
}

func deathContent(req *domain.Request, issueDate time.Time) map[string]any {
	return map[string]any{
		"deceasedName":       field(req, "deceased_name"),
		"dateOfDeath":        field(req, "date_of_death"),
		"placeOfDeath":       field(req, "place_of_death"),
		"declarantName":      req.CitizenName,
		"registrationNumber": req.ReferenceNumber,
		"issueDate":          issueDate.Format(time.DateOnly),
	}
}

func birthContent(req *domain.Request, issueDate time.Time) map[string]any {
	return map[string]any{
		"childName":          field(req, "child_name"),
		"dateOfBirth":        field(req, "date_of_birth"),
		"placeOfBirth":       field(req, "place_of_birth"),
		"fatherName":         field(req, "father_name"),
		"motherName":         field(req, "mother_name"),
		"registrationNumber": req.ReferenceNumber,
		"issueDate":          issueDate.Format(time.DateOnly),
	}
}

func genericContent(req *domain.Request, issueDate time.Time) map[string]any {
	fields := make(map[string]any, len(req.Fields))
	for k, v := range req.Fields {
		fields[k] = v
	}
	return map[string]any{
		"citizenName":     req.CitizenName,
		"requestId":       req.RequestID,
		"referenceNumber": req.ReferenceNumber,
		"documentType":    req.DocumentType,
		"issueDate":       issueDate.Format(time.DateOnly),
		"fields":          fields,
	}
}

func field(req *domain.Request, key string) string {
	return strings.TrimSpace(req.Fields[key])
}

func fieldOr(req *domain.Request, key, fallback string) string {
	if v := field(req, key); v != "" {
		return v
	}
	return fallback
}

// deriveIDNumber maps a request id to a stable 12-digit number.
func deriveIDNumber(requestID string) string {
	sum := blake3.Sum256([]byte(requestID))
	n := binary.BigEndian.Uint64(sum[:8]) % 1_000_000_000_000
	return fmt.Sprintf("%012d", n)
}
