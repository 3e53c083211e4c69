package domain

import "time"

const LedgerEventDocumentIssued = "document_issued"

type LedgerReceipt struct {
	TxID        string    `json:"tx_id"`
	Status      string    `json:"status"`
	BlockNumber int64     `json:"block_number,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

type LedgerRecord struct {
	Kind      string         `json:"kind"`
	SubjectID string         `json:"subject_id"`
	TxID      string         `json:"tx_id"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// LedgerVerification compares what the ledger holds for a document with
// the fingerprint of its current content.
type LedgerVerification struct {
	DocumentID          string     `json:"document_id"`
	Anchored            bool       `json:"anchored"`
	TxID                string     `json:"tx_id,omitempty"`
	RecordedFingerprint string     `json:"recorded_fingerprint,omitempty"`
	CurrentFingerprint  string     `json:"current_fingerprint"`
	Matches             bool       `json:"matches"`
	RecordedAt          *time.Time `json:"recorded_at,omitempty"`
}

// OutboxEntry is a ledger write waiting for an out-of-band retry.
type OutboxEntry struct {
	DocumentID  string    `json:"document_id"`
	Attempts    int       `json:"attempts"`
	LastError   string    `json:"last_error,omitempty"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
	NextAttempt time.Time `json:"next_attempt"`
}
