package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/juju/clock/testclock"

	"github.com/kirillkom/civic-records/internal/core/domain"
)

func newAnchorFixture(t *testing.T) (*AnchorUseCase, *storeFake, *ledgerFake, *outboxFake, *testclock.Clock) {
	t.Helper()
	store := newStoreFake()
	ledger := &ledgerFake{}
	outbox := store.outbox
	clk := testclock.NewClock(time.Date(2024, 3, 15, 10, 0, 0, 0, ict))
	uc := NewAnchorUseCase(store.Documents(), ledger, outbox, fingerprintFake{}, clk, AnchorConfig{
		Location:        ict,
		RetryBackoff:    time.Minute,
		MaxRetryBackoff: 4 * time.Minute,
		Observer:        &observerFake{},
	})
	store.putDocument(&domain.Document{
		DocumentID:   "DOC-REF-CMND-20240315-001",
		DocumentType: "CMND",
		CitizenID:    citizenAn.UserID,
		Status:       domain.DocumentActive,
		IssueDate:    time.Date(2024, 3, 15, 9, 0, 0, 0, ict),
		Content:      map[string]any{"fullName": "Nguyen Van An"},
	})
	return uc, store, ledger, outbox, clk
}

func TestAnchorByIDMarksDocument(t *testing.T) {
	uc, store, ledger, outbox, _ := newAnchorFixture(t)
	ctx := context.Background()

	if err := uc.AnchorByID(ctx, "DOC-REF-CMND-20240315-001"); err != nil {
		t.Fatalf("AnchorByID() error = %v", err)
	}
	doc, _ := store.Documents().Get(ctx, "DOC-REF-CMND-20240315-001")
	if !doc.LedgerStatus || doc.LedgerTxID == nil || *doc.LedgerTxID != "0xtx1" || doc.LedgerTimestamp == nil {
		t.Fatalf("expected ledger fields to be set, got %+v", doc)
	}
	if n, _ := outbox.CountPending(ctx); n != 0 {
		t.Fatalf("expected empty outbox, got %d", n)
	}

	if err := uc.AnchorByID(ctx, "DOC-REF-CMND-20240315-001"); err != nil {
		t.Fatalf("second AnchorByID() error = %v", err)
	}
	if ledger.calls != 1 {
		t.Fatalf("anchored document must not be recorded twice, calls=%d", ledger.calls)
	}
}

func TestAnchorFailureGoesToOutboxAndDrains(t *testing.T) {
	uc, store, ledger, outbox, clk := newAnchorFixture(t)
	ctx := context.Background()
	ledger.err = errors.New("gateway timeout")

	err := uc.AnchorByID(ctx, "DOC-REF-CMND-20240315-001")
	if !domain.IsKind(err, domain.ErrLedgerUnavailable) {
		t.Fatalf("expected ledger unavailable, got %v", err)
	}
	entry, ok := outbox.entry("DOC-REF-CMND-20240315-001")
	if !ok || entry.Attempts != 1 || entry.LastError != "gateway timeout" {
		t.Fatalf("unexpected outbox entry %+v", entry)
	}
	if want := clk.Now().Add(time.Minute); !entry.NextAttempt.Equal(want) {
		t.Fatalf("expected next attempt %s, got %s", want, entry.NextAttempt)
	}
	doc, _ := store.Documents().Get(ctx, "DOC-REF-CMND-20240315-001")
	if doc.LedgerStatus || doc.Status != domain.DocumentActive {
		t.Fatalf("failed anchoring must leave the document active and unanchored")
	}

	n, err := uc.DrainOutbox(ctx, 10)
	if err != nil || n != 0 {
		t.Fatalf("entry is not due yet, got %d, %v", n, err)
	}

	clk.Advance(time.Minute)
	n, err = uc.DrainOutbox(ctx, 10)
	if err != nil || n != 0 {
		t.Fatalf("expected failing retry, got %d, %v", n, err)
	}
	entry, _ = outbox.entry("DOC-REF-CMND-20240315-001")
	if entry.Attempts != 2 || !entry.NextAttempt.Equal(clk.Now().Add(2*time.Minute)) {
		t.Fatalf("expected doubled backoff, got %+v", entry)
	}

	ledger.mu.Lock()
	ledger.err = nil
	ledger.mu.Unlock()
	clk.Advance(2 * time.Minute)
	n, err = uc.DrainOutbox(ctx, 10)
	if err != nil || n != 1 {
		t.Fatalf("expected one anchored entry, got %d, %v", n, err)
	}
	if _, ok := outbox.entry("DOC-REF-CMND-20240315-001"); ok {
		t.Fatalf("expected outbox entry to be removed")
	}
}

func TestBackoffIsCapped(t *testing.T) {
	uc, _, _, _, _ := newAnchorFixture(t)
	cases := map[int]time.Duration{1: time.Minute, 2: 2 * time.Minute, 3: 4 * time.Minute, 9: 4 * time.Minute}
	for attempt, want := range cases {
		if got := uc.backoff(attempt); got != want {
			t.Fatalf("backoff(%d) = %s, want %s", attempt, got, want)
		}
	}
}

func TestDrainOutboxDropsMissingDocuments(t *testing.T) {
	uc, _, _, outbox, clk := newAnchorFixture(t)
	ctx := context.Background()
	_ = outbox.Enqueue(ctx, "DOC-GONE", "boom", clk.Now())

	if _, err := uc.DrainOutbox(ctx, 10); err != nil {
		t.Fatalf("DrainOutbox() error = %v", err)
	}
	if _, ok := outbox.entry("DOC-GONE"); ok {
		t.Fatalf("expected entry for missing document to be removed")
	}
}

func TestVerifyByIDDetectsTampering(t *testing.T) {
	uc, store, _, _, _ := newAnchorFixture(t)
	ctx := context.Background()

	v, err := uc.VerifyByID(ctx, "DOC-REF-CMND-20240315-001")
	if err != nil || v.Anchored {
		t.Fatalf("expected unanchored verification, got %+v, %v", v, err)
	}

	if err := uc.AnchorByID(ctx, "DOC-REF-CMND-20240315-001"); err != nil {
		t.Fatalf("AnchorByID() error = %v", err)
	}
	v, err = uc.VerifyByID(ctx, "DOC-REF-CMND-20240315-001")
	if err != nil || !v.Anchored || !v.Matches || v.TxID == "" {
		t.Fatalf("expected matching verification, got %+v, %v", v, err)
	}

	doc, _ := store.Documents().Get(ctx, "DOC-REF-CMND-20240315-001")
	doc.Content["fullName"] = "Someone Else"
	if err := store.Documents().Update(ctx, doc); err != nil {
		t.Fatalf("update document: %v", err)
	}
	v, err = uc.VerifyByID(ctx, "DOC-REF-CMND-20240315-001")
	if err != nil || v.Matches {
		t.Fatalf("expected fingerprint mismatch, got %+v, %v", v, err)
	}
}

func TestVerifyByIDLedgerDown(t *testing.T) {
	uc, _, ledger, _, _ := newAnchorFixture(t)
	ledger.queryErr = errors.New("connection refused")

	_, err := uc.VerifyByID(context.Background(), "DOC-REF-CMND-20240315-001")
	if !domain.IsKind(err, domain.ErrLedgerUnavailable) {
		t.Fatalf("expected ledger unavailable, got %v", err)
	}
}

func TestAsyncNotifierFallsBackToOutbox(t *testing.T) {
	queue := &queueFake{err: errors.New("nats: no servers available")}
	outbox := &outboxFake{}
	n := NewAsyncNotifier(queue, outbox, testclock.NewClock(time.Date(2024, 3, 15, 10, 0, 0, 0, ict)), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	n.DocumentIssued(ctx, "DOC-1")
	cancel()
	n.Wait()

	entry, ok := outbox.entry("DOC-1")
	if !ok || entry.LastError != "nats: no servers available" {
		t.Fatalf("expected outbox fallback, got %+v", entry)
	}

	queue.err = nil
	n.DocumentIssued(context.Background(), "DOC-2")
	n.Wait()
	if len(queue.published) != 1 || queue.published[0] != "DOC-2" {
		t.Fatalf("expected DOC-2 to be published, got %v", queue.published)
	}
	if _, ok := outbox.entry("DOC-2"); ok {
		t.Fatalf("published document must not be in the outbox")
	}
}

func TestDirectNotifierAnchors(t *testing.T) {
	uc, store, _, _, _ := newAnchorFixture(t)
	n := NewDirectNotifier(uc, time.Second)

	n.DocumentIssued(context.Background(), "DOC-REF-CMND-20240315-001")
	n.Wait()

	doc, _ := store.Documents().Get(context.Background(), "DOC-REF-CMND-20240315-001")
	if !doc.LedgerStatus {
		t.Fatalf("expected document to be anchored")
	}
}

func TestVerifyByIDMatchesAfterStorageChangesZone(t *testing.T) {
	uc, store, _, _, _ := newAnchorFixture(t)
	ctx := context.Background()
	store.putDocument(&domain.Document{
		DocumentID:   "DOC-EARLY",
		DocumentType: "CMND",
		CitizenID:    citizenAn.UserID,
		Status:       domain.DocumentActive,
		IssueDate:    time.Date(2026, 10, 16, 6, 30, 0, 0, ict),
		Content:      map[string]any{"fullName": "Nguyen Van An"},
	})
	if err := uc.AnchorByID(ctx, "DOC-EARLY"); err != nil {
		t.Fatalf("AnchorByID() error = %v", err)
	}

	doc, _ := store.Documents().Get(ctx, "DOC-EARLY")
	doc.IssueDate = doc.IssueDate.UTC()
	store.putDocument(doc)

	v, err := uc.VerifyByID(ctx, "DOC-EARLY")
	if err != nil {
		t.Fatalf("VerifyByID() error = %v", err)
	}
	if !v.Anchored || !v.Matches {
		t.Fatalf("untouched document must verify, got %+v", v)
	}
}

func TestIssuedDocumentIsAnchoredWhenQueueDeliveryIsLost(t *testing.T) {
	f := newEngineFixture(t, false)
	ctx := context.Background()
	queue := &queueFake{}
	async := NewAsyncNotifier(queue, f.store.outbox, f.clock, time.Second)
	f.engine.notifier = async

	req := f.submit(t, cmndInput())
	f.move(t, req.RequestID, domain.RequestProcessing, officerLan, domain.TransitionPayload{})
	completed := f.move(t, req.RequestID, domain.RequestCompleted, officerLan, domain.TransitionPayload{})
	async.Wait()
	docID := *completed.ResultingDocument

	// The publish succeeded but nobody consumed it.
	if len(queue.published) != 1 || queue.published[0] != docID {
		t.Fatalf("expected one publish, got %v", queue.published)
	}

	ledger := &ledgerFake{}
	uc := NewAnchorUseCase(f.store.Documents(), ledger, f.store.outbox, fingerprintFake{}, f.clock, AnchorConfig{Location: ict})
	n, err := uc.DrainOutbox(ctx, 10)
	if err != nil || n != 0 {
		t.Fatalf("queued hand-off must get its delay first, got %d, %v", n, err)
	}

	f.clock.Advance(time.Minute)
	n, err = uc.DrainOutbox(ctx, 10)
	if err != nil || n != 1 {
		t.Fatalf("DrainOutbox() = %d, %v", n, err)
	}
	doc, _ := f.store.Documents().Get(ctx, docID)
	if !doc.LedgerStatus {
		t.Fatalf("expected document to be anchored")
	}
	if pending, _ := f.store.outbox.CountPending(ctx); pending != 0 {
		t.Fatalf("expected empty outbox, got %d", pending)
	}
}
