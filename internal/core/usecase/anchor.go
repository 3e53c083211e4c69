package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/juju/clock"

	"github.com/kirillkom/civic-records/internal/core/domain"
	"github.com/kirillkom/civic-records/internal/core/ports"
)

type AnchorConfig struct {
	// Location defines the calendar day of the anchored issue date.
	Location        *time.Location
	RetryBackoff    time.Duration
	MaxRetryBackoff time.Duration
	Observer        ports.LifecycleObserver
}

// AnchorUseCase writes document fingerprints to the ledger and keeps failed
// writes in the outbox until a later attempt succeeds.
type AnchorUseCase struct {
	documents     ports.DocumentRepository
	ledger        ports.LedgerAdapter
	outbox        ports.AnchorOutbox
	fingerprinter ports.Fingerprinter
	clock         clock.Clock
	cfg           AnchorConfig
	observer      ports.LifecycleObserver
}

func NewAnchorUseCase(
	documents ports.DocumentRepository,
	ledger ports.LedgerAdapter,
	outbox ports.AnchorOutbox,
	fingerprinter ports.Fingerprinter,
	clk clock.Clock,
	cfg AnchorConfig,
) *AnchorUseCase {
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 30 * time.Second
	}
	if cfg.MaxRetryBackoff < cfg.RetryBackoff {
		cfg.MaxRetryBackoff = 30 * time.Minute
	}
	observer := cfg.Observer
	if observer == nil {
		observer = noopObserver{}
	}
	if clk == nil {
		clk = clock.WallClock
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &AnchorUseCase{
		documents:     documents,
		ledger:        ledger,
		outbox:        outbox,
		fingerprinter: fingerprinter,
		clock:         clk,
		cfg:           cfg,
		observer:      observer,
	}
}

func (uc *AnchorUseCase) AnchorByID(ctx context.Context, documentID string) error {
	return uc.anchor(ctx, documentID, 0)
}

func (uc *AnchorUseCase) anchor(ctx context.Context, documentID string, attempts int) error {
	doc, err := uc.documents.Get(ctx, documentID)
	if err != nil {
		if domain.IsKind(err, domain.ErrNotFound) {
			_ = uc.outbox.Remove(ctx, documentID)
		}
		return fmt.Errorf("load document: %w", err)
	}
	if doc.LedgerStatus {
		return uc.outbox.Remove(ctx, documentID)
	}

	fp := doc.Fingerprint
	if fp == "" {
		fp, err = uc.fingerprinter.Fingerprint(AnchorPayload(doc, uc.cfg.Location))
		if err != nil {
			return fmt.Errorf("fingerprint document: %w", err)
		}
	}

	started := uc.clock.Now()
	receipt, err := uc.ledger.RecordEvent(ctx, domain.LedgerEventDocumentIssued, doc.DocumentID, map[string]any{
		"fingerprint":   fp,
		"document_type": doc.DocumentType,
		"citizen_id":    doc.CitizenID,
		"issue_date":    issueDay(doc.IssueDate, uc.cfg.Location),
	})
	uc.observer.AnchorFinished(uc.clock.Now().Sub(started), err)
	if err != nil {
		next := uc.clock.Now().Add(uc.backoff(attempts + 1))
		if qErr := uc.outbox.Enqueue(ctx, documentID, err.Error(), next); qErr != nil {
			slog.Error("ledger_outbox_enqueue_failed", "document_id", documentID, "error", qErr)
		}
		slog.Warn("ledger_anchor_failed",
			"document_id", documentID,
			"attempt", attempts+1,
			"next_attempt", next,
			"error", err,
		)
		return domain.WrapError(domain.ErrLedgerUnavailable, "anchor document", err)
	}

	at := receipt.Timestamp
	if at.IsZero() {
		at = uc.clock.Now()
	}
	if err := uc.documents.MarkAnchored(ctx, documentID, receipt.TxID, at); err != nil {
		return fmt.Errorf("mark document anchored: %w", err)
	}
	if err := uc.outbox.Remove(ctx, documentID); err != nil {
		slog.Warn("ledger_outbox_remove_failed", "document_id", documentID, "error", err)
	}
	slog.Info("document_anchored",
		"document_id", documentID,
		"tx_id", receipt.TxID,
		"block_number", receipt.BlockNumber,
	)
	return nil
}

// VerifyByID compares the fingerprint recorded on the ledger with one
// computed from the stored document.
func (uc *AnchorUseCase) VerifyByID(ctx context.Context, documentID string) (domain.LedgerVerification, error) {
	doc, err := uc.documents.Get(ctx, documentID)
	if err != nil {
		return domain.LedgerVerification{}, fmt.Errorf("load document: %w", err)
	}
	current, err := uc.fingerprinter.Fingerprint(AnchorPayload(doc, uc.cfg.Location))
	if err != nil {
		return domain.LedgerVerification{}, fmt.Errorf("fingerprint document: %w", err)
	}
	out := domain.LedgerVerification{
		DocumentID:         doc.DocumentID,
		CurrentFingerprint: current,
	}

	record, err := uc.ledger.QueryEvent(ctx, domain.LedgerEventDocumentIssued, doc.DocumentID)
	if err != nil {
		if domain.IsKind(err, domain.ErrNotFound) {
			return out, nil
		}
		return domain.LedgerVerification{}, domain.WrapError(domain.ErrLedgerUnavailable, "query ledger", err)
	}
	recorded, _ := record.Data["fingerprint"].(string)
	out.Anchored = true
	out.TxID = record.TxID
	out.RecordedFingerprint = recorded
	out.Matches = recorded != "" && recorded == current
	if !record.Timestamp.IsZero() {
		out.RecordedAt = domain.TimePtr(record.Timestamp)
	}
	return out, nil
}

// DrainOutbox retries due outbox entries and returns how many were anchored.
func (uc *AnchorUseCase) DrainOutbox(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 50
	}
	entries, err := uc.outbox.Due(ctx, uc.clock.Now(), limit)
	if err != nil {
		return 0, fmt.Errorf("load outbox: %w", err)
	}
	anchored := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return anchored, err
		}
		err := uc.anchor(ctx, entry.DocumentID, entry.Attempts)
		switch {
		case err == nil:
			anchored++
		case errors.Is(err, domain.ErrLedgerUnavailable), domain.IsKind(err, domain.ErrNotFound):
		default:
			slog.Error("ledger_outbox_entry_failed", "document_id", entry.DocumentID, "error", err)
		}
	}
	return anchored, nil
}

func (uc *AnchorUseCase) backoff(attempt int) time.Duration {
	d := uc.cfg.RetryBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= uc.cfg.MaxRetryBackoff {
			return uc.cfg.MaxRetryBackoff
		}
	}
	return d
}
