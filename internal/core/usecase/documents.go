package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"

	"github.com/kirillkom/civic-records/internal/core/domain"
	"github.com/kirillkom/civic-records/internal/core/ports"
)

type DocumentConfig struct {
	ChairmanActsAsOfficer bool
	Location              *time.Location
	AnchorDelay           time.Duration
	Observer              ports.LifecycleObserver
}

type DocumentUseCase struct {
	catalog       ports.DocumentTypeCatalog
	documents     ports.DocumentRepository
	uow           ports.UnitOfWork
	fingerprinter ports.Fingerprinter
	notifier      ports.IssuanceNotifier
	clock         clock.Clock

	loc         *time.Location
	anchorDelay time.Duration
	issuerGate  domain.RoleGate
	observer    ports.LifecycleObserver
}

func NewDocumentUseCase(
	catalog ports.DocumentTypeCatalog,
	documents ports.DocumentRepository,
	uow ports.UnitOfWork,
	fingerprinter ports.Fingerprinter,
	notifier ports.IssuanceNotifier,
	clk clock.Clock,
	cfg DocumentConfig,
) *DocumentUseCase {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	observer := cfg.Observer
	if observer == nil {
		observer = noopObserver{}
	}
	if clk == nil {
		clk = clock.WallClock
	}
	delay := cfg.AnchorDelay
	if delay <= 0 {
		delay = defaultAnchorDelay
	}
	return &DocumentUseCase{
		catalog:       catalog,
		documents:     documents,
		uow:           uow,
		fingerprinter: fingerprinter,
		notifier:      notifier,
		clock:         clk,
		loc:           loc,
		anchorDelay:   delay,
		issuerGate:    domain.OfficerGateWithPolicy(cfg.ChairmanActsAsOfficer),
		observer:      observer,
	}
}

func (uc *DocumentUseCase) Get(ctx context.Context, actor domain.Actor, documentID string) (*domain.Document, error) {
	if strings.TrimSpace(actor.UserID) == "" {
		return nil, domain.WrapError(domain.ErrUnauthorized, "get document", errors.New("missing actor"))
	}
	doc, err := uc.documents.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if !domain.OwnerOrStaffGate.Allows(actor, doc.CitizenID) {
		return nil, domain.WrapError(domain.ErrForbidden, "get document", fmt.Errorf("document %s is not visible to %s", documentID, actor.UserID))
	}
	return doc, nil
}

func (uc *DocumentUseCase) Validity(ctx context.Context, actor domain.Actor, documentID string) (domain.DocumentValidity, error) {
	doc, err := uc.Get(ctx, actor, documentID)
	if err != nil {
		return domain.DocumentValidity{}, err
	}
	now := uc.now()
	return domain.DocumentValidity{
		DocumentID: doc.DocumentID,
		Status:     doc.Status,
		ValidUntil: doc.ValidUntil,
		Valid:      doc.IsValid(now),
		CheckedAt:  now,
	}, nil
}

// IssueManual creates a document that no request produced. The citizen is
// mandatory.
func (uc *DocumentUseCase) IssueManual(ctx context.Context, actor domain.Actor, input domain.ManualIssueInput) (*domain.Document, error) {
	if strings.TrimSpace(actor.UserID) == "" {
		return nil, domain.WrapError(domain.ErrUnauthorized, "issue document", errors.New("missing actor"))
	}
	if !uc.issuerGate.Allows(actor, "") {
		return nil, domain.WrapError(domain.ErrForbidden, "issue document", fmt.Errorf("actor %s requires %s", actor.UserID, uc.issuerGate))
	}
	citizenID := strings.TrimSpace(input.CitizenID)
	if citizenID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "issue document", errors.New("citizen_id is required"))
	}
	docType, err := uc.catalog.Lookup(input.DocumentType)
	if err != nil {
		return nil, fmt.Errorf("issue document: %w", err)
	}

	now := uc.now()
	if input.ValidUntil != nil && domain.StartOfDay(input.ValidUntil.In(uc.loc)).Before(domain.StartOfDay(now)) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "issue document", errors.New("valid_until is in the past"))
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = docType.Name
	}
	content := domain.CloneContent(input.Content)
	if content == nil {
		content = map[string]any{}
	}

	doc := &domain.Document{
		DocumentID:   fmt.Sprintf("DOC-%s-%s", docType.Code, strings.ToUpper(uuid.NewString()[:8])),
		DocumentType: docType.Code,
		Title:        title,
		Description:  strings.TrimSpace(input.Description),
		Content:      content,
		CitizenID:    citizenID,
		IssuedBy:     domain.StringPtr(actor.UserID),
		Status:       domain.DocumentActive,
		IssueDate:    now,
		ValidFrom:    now,
		ValidUntil:   input.ValidUntil,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	fp, err := uc.fingerprinter.Fingerprint(AnchorPayload(doc, uc.loc))
	if err != nil {
		return nil, fmt.Errorf("fingerprint document: %w", err)
	}
	doc.Fingerprint = fp
	err = uc.uow.RunInTx(ctx, func(stores ports.Stores) error {
		if err := stores.Documents.Create(ctx, doc); err != nil {
			return fmt.Errorf("create document: %w", err)
		}
		if !docType.StoreOnLedger {
			return nil
		}
		if err := stores.Outbox.Schedule(ctx, doc.DocumentID, now.Add(uc.anchorDelay)); err != nil {
			return fmt.Errorf("schedule ledger anchor: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.observer.DocumentIssued(doc.DocumentType, "manual")
	slog.Info("document_issued",
		"document_id", doc.DocumentID,
		"document_type", doc.DocumentType,
		"issued_by", actor.UserID,
		"store_on_ledger", docType.StoreOnLedger,
	)
	if docType.StoreOnLedger && uc.notifier != nil {
		uc.notifier.DocumentIssued(ctx, doc.DocumentID)
	}
	return doc, nil
}

func (uc *DocumentUseCase) Revoke(ctx context.Context, actor domain.Actor, documentID, reason string) (*domain.Document, error) {
	if strings.TrimSpace(actor.UserID) == "" {
		return nil, domain.WrapError(domain.ErrUnauthorized, "revoke document", errors.New("missing actor"))
	}
	if !domain.OfficerOrChairmanGate.Allows(actor, "") {
		return nil, domain.WrapError(domain.ErrForbidden, "revoke document", fmt.Errorf("actor %s requires %s", actor.UserID, domain.OfficerOrChairmanGate))
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "revoke document", errors.New("reason is required"))
	}
	doc, err := uc.documents.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.Status != domain.DocumentActive {
		return nil, domain.WrapError(domain.ErrInvalidTransition, "revoke document", fmt.Errorf("document %s is %s", documentID, doc.Status))
	}

	doc.Status = domain.DocumentRevoked
	doc.RevokedReason = domain.StringPtr(reason)
	doc.UpdatedAt = uc.now()
	if err := uc.documents.Update(ctx, doc); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}
	slog.Info("document_revoked", "document_id", documentID, "actor", actor.UserID)
	return doc, nil
}

func (uc *DocumentUseCase) now() time.Time {
	return uc.clock.Now().In(uc.loc)
}
