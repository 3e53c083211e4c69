package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/juju/clock"

	"github.com/kirillkom/civic-records/internal/core/domain"
	"github.com/kirillkom/civic-records/internal/core/ports"
)

type LifecycleConfig struct {
	// ChairmanActsAsOfficer admits the chairman role wherever the officer
	// role is required.
	ChairmanActsAsOfficer bool
	// Location defines calendar days for sequences and due dates.
	Location *time.Location
	Observer ports.LifecycleObserver
}

type LifecycleEngine struct {
	catalog   ports.DocumentTypeCatalog
	requests  ports.RequestRepository
	uow       ports.UnitOfWork
	sequences ports.SequenceAllocator
	synth     *Synthesizer
	notifier  ports.IssuanceNotifier
	clock     clock.Clock

	loc                   *time.Location
	table                 domain.TransitionTable
	chairmanActsAsOfficer bool
	observer              ports.LifecycleObserver
}

func NewLifecycleEngine(
	catalog ports.DocumentTypeCatalog,
	requests ports.RequestRepository,
	uow ports.UnitOfWork,
	sequences ports.SequenceAllocator,
	synth *Synthesizer,
	notifier ports.IssuanceNotifier,
	clk clock.Clock,
	cfg LifecycleConfig,
) *LifecycleEngine {
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
	return &LifecycleEngine{
		catalog:   catalog,
		requests:  requests,
		uow:       uow,
		sequences: sequences,
		synth:     synth,
		notifier:  notifier,
		clock:     clk,
		loc:       loc,
		table:     domain.NewTransitionTable(cfg.ChairmanActsAsOfficer),
		observer:  observer,

		chairmanActsAsOfficer: cfg.ChairmanActsAsOfficer,
	}
}

func (e *LifecycleEngine) Submit(ctx context.Context, citizen domain.Actor, input domain.SubmitInput) (*domain.Request, error) {
	if strings.TrimSpace(citizen.UserID) == "" {
		return nil, domain.WrapError(domain.ErrUnauthorized, "submit request", errors.New("missing actor"))
	}
	if !domain.CitizenGate.Allows(citizen, "") {
		return nil, domain.WrapError(domain.ErrForbidden, "submit request", fmt.Errorf("actor %s requires role %s", citizen.UserID, domain.RoleCitizen))
	}

	docType, err := e.catalog.Lookup(input.DocumentType)
	if err != nil {
		return nil, fmt.Errorf("submit request: %w", err)
	}
	fields := normalizeFields(input.Fields)
	if missing := docType.MissingFields(fields); len(missing) > 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit request", fmt.Errorf("missing required fields: %s", strings.Join(missing, ", ")))
	}
	priority, err := domain.ParsePriority(input.Priority)
	if err != nil {
		return nil, err
	}

	now := e.now()
	day := domain.StartOfDay(now)
	seq, err := e.sequences.Next(ctx, docType.Code, day)
	if err != nil {
		return nil, fmt.Errorf("allocate request sequence: %w", err)
	}
	requestID, reference := domain.FormatRequestID(docType.Code, day, seq)

	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = strings.TrimSpace(docType.Name + " - " + citizen.FullName)
	}

	req := &domain.Request{
		RequestID:       requestID,
		ReferenceNumber: reference,
		DocumentType:    docType.Code,
		CitizenID:       citizen.UserID,
		CitizenName:     citizen.FullName,
		Status:          domain.RequestPending,
		Priority:        priority,
		Title:           title,
		Description:     strings.TrimSpace(input.Description),
		Fields:          fields,
		CreatedAt:       now,
		UpdatedAt:       now,
		SubmittedDate:   now,
		DueDate:         day.AddDate(0, 0, docType.EstimatedProcessingDays),
		Version:         1,
	}
	if err := e.requests.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	e.observer.RequestSubmitted(docType.Code)
	slog.Info("request_submitted",
		"request_id", req.RequestID,
		"document_type", req.DocumentType,
		"citizen_id", req.CitizenID,
		"due_date", req.DueDate.Format(time.DateOnly),
	)
	return req, nil
}

func (e *LifecycleEngine) Transition(
	ctx context.Context,
	requestID string,
	target domain.RequestStatus,
	actor domain.Actor,
	payload domain.TransitionPayload,
) (*domain.Request, error) {
	if strings.TrimSpace(actor.UserID) == "" {
		return nil, domain.WrapError(domain.ErrUnauthorized, "transition request", errors.New("missing actor"))
	}
	req, err := e.requests.Get(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("load request: %w", err)
	}

	from := req.Status
	updated, issued, docType, err := e.applyTransition(ctx, req, target, actor, payload)
	e.observer.Transitioned(from, target, err)
	if err != nil {
		slog.Warn("request_transition_refused",
			"request_id", requestID,
			"from", from,
			"to", target,
			"actor", actor.UserID,
			"error", err,
		)
		return nil, err
	}

	slog.Info("request_transitioned",
		"request_id", updated.RequestID,
		"from", from,
		"to", updated.Status,
		"actor", actor.UserID,
		"version", updated.Version,
	)
	if issued != nil {
		e.afterIssue(ctx, issued, docType)
	}
	return updated, nil
}

func (e *LifecycleEngine) applyTransition(
	ctx context.Context,
	req *domain.Request,
	target domain.RequestStatus,
	actor domain.Actor,
	payload domain.TransitionPayload,
) (*domain.Request, *domain.Document, domain.DocumentType, error) {
	from := req.Status
	gate, ok := e.table.Gate(from, target)
	if !ok {
		return nil, nil, domain.DocumentType{}, &domain.TransitionError{
			Kind:      domain.ErrInvalidTransition,
			RequestID: req.RequestID,
			From:      from,
			To:        target,
			Reason:    fmt.Sprintf("allowed targets from %s: %s", from, formatTargets(e.table.Targets(from))),
		}
	}
	if !gate.Allows(actor, req.CitizenID) {
		return nil, nil, domain.DocumentType{}, &domain.TransitionError{
			Kind:      domain.ErrForbidden,
			RequestID: req.RequestID,
			From:      from,
			To:        target,
			Roles:     actor.RoleList(),
			Required:  gate.String(),
		}
	}
	if payload.ExpectedVersion != 0 && payload.ExpectedVersion != req.Version {
		return nil, nil, domain.DocumentType{}, domain.WrapError(
			domain.ErrConcurrentModification,
			"transition request",
			fmt.Errorf("request %s: expected version %d, stored %d", req.RequestID, payload.ExpectedVersion, req.Version),
		)
	}

	now := e.now()
	expected := req.Version
	next := req.Clone()
	var docType domain.DocumentType

	switch target {
	case domain.RequestProcessing:
		if from == domain.RequestPending {
			assignee := strings.TrimSpace(payload.AssignTo)
			if assignee == "" {
				assignee = actor.UserID
			}
			next.AssignedOfficer = domain.StringPtr(assignee)
		} else {
			response := strings.TrimSpace(payload.InfoResponse)
			if response == "" {
				return nil, nil, docType, e.refuse(req, target, domain.ErrInvalidInput, "additional info response is required")
			}
			next.AdditionalInfoResponse = domain.StringPtr(response)
		}
	case domain.RequestAdditionalInfoRequested:
		question := strings.TrimSpace(payload.InfoRequest)
		if question == "" {
			return nil, nil, docType, e.refuse(req, target, domain.ErrInvalidInput, "additional info request text is required")
		}
		next.AdditionalInfoRequest = domain.StringPtr(question)
		next.AdditionalInfoResponse = nil
	case domain.RequestRejected:
		reason := strings.TrimSpace(payload.Reason)
		if reason == "" {
			return nil, nil, docType, e.refuse(req, target, domain.ErrMissingRejectionReason, "rejection reason is required")
		}
		next.RejectionReason = domain.StringPtr(reason)
		next.CompletedDate = domain.TimePtr(now)
	case domain.RequestCompleted:
		var err error
		docType, err = e.catalog.Lookup(req.DocumentType)
		if err != nil {
			return nil, nil, docType, fmt.Errorf("resolve document type: %w", err)
		}
		// Completing as chairman counts as approval only under the
		// chairman-as-officer policy; otherwise approval is a separate step,
		// also for actors holding both roles.
		if docType.RequiresChairmanApproval && next.Approver == nil {
			if !e.chairmanActsAsOfficer || !actor.HasRole(domain.RoleChairman) {
				return nil, nil, docType, &domain.TransitionError{
					Kind:      domain.ErrForbidden,
					RequestID: req.RequestID,
					From:      from,
					To:        target,
					Roles:     actor.RoleList(),
					Required:  "recorded chairman approval",
					Reason:    "chairman approval required for " + docType.Code,
				}
			}
			next.Approver = domain.StringPtr(actor.UserID)
			next.ApprovedAt = domain.TimePtr(now)
		}
		next.CompletedDate = domain.TimePtr(now)
	}

	if notes := strings.TrimSpace(payload.Notes); notes != "" {
		next.Notes = notes
	}
	next.Status = target
	next.UpdatedAt = now
	next.Version = expected + 1

	if target != domain.RequestCompleted {
		if err := e.requests.Update(ctx, next, expected); err != nil {
			return nil, nil, docType, fmt.Errorf("save request: %w", err)
		}
		return next, nil, docType, nil
	}

	var issued *domain.Document
	err := e.uow.RunInTx(ctx, func(stores ports.Stores) error {
		doc, _, err := e.synth.Synthesize(ctx, stores, next, docType, now)
		if err != nil {
			return err
		}
		if err := stores.Requests.Update(ctx, next, expected); err != nil {
			return fmt.Errorf("save request: %w", err)
		}
		issued = doc
		return nil
	})
	if err != nil {
		return nil, nil, docType, err
	}
	return next, issued, docType, nil
}

// Approve records the chairman's approval on a processing request. Approving
// an already approved request returns it unchanged.
func (e *LifecycleEngine) Approve(ctx context.Context, requestID string, actor domain.Actor, expectedVersion int64) (*domain.Request, error) {
	if strings.TrimSpace(actor.UserID) == "" {
		return nil, domain.WrapError(domain.ErrUnauthorized, "approve request", errors.New("missing actor"))
	}
	req, err := e.requests.Get(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("load request: %w", err)
	}
	if !domain.ChairmanGate.Allows(actor, req.CitizenID) {
		return nil, &domain.TransitionError{
			Kind:      domain.ErrForbidden,
			RequestID: req.RequestID,
			From:      req.Status,
			To:        req.Status,
			Roles:     actor.RoleList(),
			Required:  domain.ChairmanGate.String(),
			Reason:    "approval",
		}
	}
	if req.Status != domain.RequestProcessing {
		return nil, &domain.TransitionError{
			Kind:      domain.ErrInvalidTransition,
			RequestID: req.RequestID,
			From:      req.Status,
			To:        req.Status,
			Reason:    "approval requires status processing",
		}
	}
	if expectedVersion != 0 && expectedVersion != req.Version {
		return nil, domain.WrapError(
			domain.ErrConcurrentModification,
			"approve request",
			fmt.Errorf("request %s: expected version %d, stored %d", req.RequestID, expectedVersion, req.Version),
		)
	}
	if req.Approver != nil {
		return req, nil
	}

	now := e.now()
	next := req.Clone()
	next.Approver = domain.StringPtr(actor.UserID)
	next.ApprovedAt = domain.TimePtr(now)
	next.UpdatedAt = now
	next.Version = req.Version + 1
	if err := e.requests.Update(ctx, next, req.Version); err != nil {
		return nil, fmt.Errorf("save approval: %w", err)
	}
	slog.Info("request_approved", "request_id", next.RequestID, "approver", actor.UserID)
	return next, nil
}

// CompleteDocument is the completion trigger on its own: it returns the
// document linked to a completed request, synthesizing it when missing.
// Calling it any number of times yields the same document.
func (e *LifecycleEngine) CompleteDocument(ctx context.Context, requestID string) (*domain.Document, error) {
	var (
		result  *domain.Document
		created bool
		docType domain.DocumentType
	)
	err := e.uow.RunInTx(ctx, func(stores ports.Stores) error {
		req, err := stores.Requests.Get(ctx, requestID)
		if err != nil {
			return fmt.Errorf("load request: %w", err)
		}
		if req.Status != domain.RequestCompleted {
			return &domain.TransitionError{
				Kind:      domain.ErrInvalidTransition,
				RequestID: req.RequestID,
				From:      req.Status,
				To:        domain.RequestCompleted,
				Reason:    "document synthesis requires a completed request",
			}
		}
		docType, err = e.catalog.Lookup(req.DocumentType)
		if err != nil {
			return fmt.Errorf("resolve document type: %w", err)
		}

		expected := req.Version
		linked := req.ResultingDocument != nil
		doc, isNew, err := e.synth.Synthesize(ctx, stores, req, docType, e.now())
		if err != nil {
			return err
		}
		if !linked {
			req.UpdatedAt = e.now()
			req.Version = expected + 1
			if err := stores.Requests.Update(ctx, req, expected); err != nil {
				return fmt.Errorf("link resulting document: %w", err)
			}
		}
		result, created = doc, isNew
		return nil
	})
	if err != nil {
		return nil, err
	}
	if created {
		e.afterIssue(ctx, result, docType)
	}
	return result, nil
}

func (e *LifecycleEngine) afterIssue(ctx context.Context, doc *domain.Document, docType domain.DocumentType) {
	e.observer.DocumentIssued(doc.DocumentType, "request")
	slog.Info("document_issued",
		"document_id", doc.DocumentID,
		"document_type", doc.DocumentType,
		"request_id", derefString(doc.RequestID),
		"store_on_ledger", docType.StoreOnLedger,
	)
	if docType.StoreOnLedger && e.notifier != nil {
		e.notifier.DocumentIssued(ctx, doc.DocumentID)
	}
}

func (e *LifecycleEngine) refuse(req *domain.Request, target domain.RequestStatus, kind error, reason string) error {
	return &domain.TransitionError{
		Kind:      kind,
		RequestID: req.RequestID,
		From:      req.Status,
		To:        target,
		Reason:    reason,
	}
}

func (e *LifecycleEngine) now() time.Time {
	return e.clock.Now().In(e.loc)
}

func normalizeFields(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		key := strings.TrimSpace(k)
		if key == "" {
			continue
		}
		out[key] = strings.TrimSpace(v)
	}
	return out
}

func formatTargets(targets []domain.RequestStatus) string {
	if len(targets) == 0 {
		return "none (terminal)"
	}
	parts := make([]string, 0, len(targets))
	for _, t := range targets {
		parts = append(parts, string(t))
	}
	return strings.Join(parts, ", ")
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

type noopObserver struct{}

func (noopObserver) RequestSubmitted(string)                                        {}
func (noopObserver) Transitioned(domain.RequestStatus, domain.RequestStatus, error) {}
func (noopObserver) DocumentIssued(string, string)                                  {}
func (noopObserver) AnchorFinished(time.Duration, error)                            {}
