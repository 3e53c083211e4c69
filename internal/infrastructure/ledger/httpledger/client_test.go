package httpledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/civic-records/internal/core/domain"
	"github.com/kirillkom/civic-records/internal/infrastructure/resilience"
)

func testExecutor() *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		AttemptTimeout:      time.Second,
		BreakerEnabled:      false,
	})
}

func TestRecordEventRetriesUnavailableGateway(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/events" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected authorization %q", got)
		}
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var body recordRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.Kind != domain.LedgerEventDocumentIssued || body.SubjectID != "DOC-1" || body.Data["fingerprint"] != "abc" {
			t.Errorf("unexpected body %+v", body)
		}
		_ = json.NewEncoder(w).Encode(domain.LedgerReceipt{TxID: "0xfeed", Status: "confirmed", BlockNumber: 7})
	}))
	defer srv.Close()

	client := New(srv.URL+"/", Options{Token: "secret", Executor: testExecutor()})
	receipt, err := client.RecordEvent(context.Background(), domain.LedgerEventDocumentIssued, "DOC-1", map[string]any{"fingerprint": "abc"})
	if err != nil {
		t.Fatalf("RecordEvent() error = %v", err)
	}
	if receipt.TxID != "0xfeed" || receipt.BlockNumber != 7 {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestRecordEventDoesNotRetryRejectedPayload(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "bad subject", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := New(srv.URL, Options{Executor: testExecutor()}).RecordEvent(context.Background(), "document_issued", "DOC-1", nil)
	if !domain.IsKind(err, domain.ErrLedgerUnavailable) {
		t.Fatalf("expected ErrLedgerUnavailable, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single call, got %d", calls.Load())
	}
}

func TestRecordEventRequiresTransactionID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"pending"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, Options{}).RecordEvent(context.Background(), "document_issued", "DOC-1", nil)
	if !domain.IsKind(err, domain.ErrLedgerUnavailable) {
		t.Fatalf("expected ErrLedgerUnavailable, got %v", err)
	}
}

func TestQueryEventMapsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/events/document_issued/DOC-1" {
			_ = json.NewEncoder(w).Encode(domain.LedgerRecord{
				Kind:      "document_issued",
				SubjectID: "DOC-1",
				TxID:      "0xfeed",
				Data:      map[string]any{"fingerprint": "abc"},
			})
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()
	client := New(srv.URL, Options{Executor: testExecutor()})

	rec, err := client.QueryEvent(context.Background(), "document_issued", "DOC-1")
	if err != nil {
		t.Fatalf("QueryEvent() error = %v", err)
	}
	if rec.TxID != "0xfeed" || rec.Data["fingerprint"] != "abc" {
		t.Fatalf("unexpected record %+v", rec)
	}

	_, err = client.QueryEvent(context.Background(), "document_issued", "DOC-404")
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClassifyLedgerError(t *testing.T) {
	if !classifyLedgerError(&HTTPStatusError{StatusCode: http.StatusBadGateway}).Retryable {
		t.Fatalf("502 should be retryable")
	}
	class := classifyLedgerError(&HTTPStatusError{StatusCode: http.StatusConflict})
	if class.Retryable || class.RecordFailure {
		t.Fatalf("409 should be neither retried nor counted, got %+v", class)
	}
}
