package domain

import (
	"fmt"
	"strings"
	"time"
)

type DocumentStatus string

const (
	DocumentDraft   DocumentStatus = "draft"
	DocumentActive  DocumentStatus = "active"
	DocumentRevoked DocumentStatus = "revoked"
	DocumentExpired DocumentStatus = "expired"
)

func ParseDocumentStatus(raw string) (DocumentStatus, error) {
	s := DocumentStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case DocumentDraft, DocumentActive, DocumentRevoked, DocumentExpired:
		return s, nil
	default:
		return "", WrapError(ErrInvalidInput, "parse document status", fmt.Errorf("unknown status %q", raw))
	}
}

// Document is an issued administrative credential. RequestID is set when the
// document was synthesized from a completed request.
type Document struct {
	DocumentID    string         `json:"document_id"`
	DocumentType  string         `json:"document_type"`
	Title         string         `json:"title"`
	Description   string         `json:"description,omitempty"`
	Content       map[string]any `json:"content"`
	CitizenID     string         `json:"citizen_id"`
	IssuedBy      *string        `json:"issued_by,omitempty"`
	Status        DocumentStatus `json:"status"`
	IssueDate     time.Time      `json:"issue_date"`
	ValidFrom     time.Time      `json:"valid_from"`
	ValidUntil    *time.Time     `json:"valid_until,omitempty"`
	RequestID     *string        `json:"request_id,omitempty"`
	RevokedReason *string        `json:"revoked_reason,omitempty"`
	Fingerprint   string         `json:"fingerprint,omitempty"`

	LedgerStatus    bool       `json:"ledger_status"`
	LedgerTxID      *string    `json:"ledger_tx_id,omitempty"`
	LedgerTimestamp *time.Time `json:"ledger_timestamp,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsValid reports whether the document is active and not past its
// validity date as of now. Dates are compared by calendar day in now's
// location, whatever location ValidUntil was stored or parsed in.
func (d *Document) IsValid(now time.Time) bool {
	if d == nil || d.Status != DocumentActive {
		return false
	}
	if d.ValidUntil == nil {
		return true
	}
	until := StartOfDay(d.ValidUntil.In(now.Location()))
	return !until.Before(StartOfDay(now))
}

func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := *d
	out.IssuedBy = cloneString(d.IssuedBy)
	out.ValidUntil = cloneTime(d.ValidUntil)
	out.RequestID = cloneString(d.RequestID)
	out.RevokedReason = cloneString(d.RevokedReason)
	out.LedgerTxID = cloneString(d.LedgerTxID)
	out.LedgerTimestamp = cloneTime(d.LedgerTimestamp)
	out.Content = CloneContent(d.Content)
	return &out
}

// CloneContent deep-copies document content. Nested maps and slices are
// copied; other values are shared.
func CloneContent(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneContent(t)
	case map[string]string:
		m := make(map[string]string, len(t))
		for k, s := range t {
			m[k] = s
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = cloneValue(e)
		}
		return s
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

// DocumentIDFor derives the id of the document produced by a request.
func DocumentIDFor(r *Request) string {
	if strings.TrimSpace(r.ReferenceNumber) != "" {
		return "DOC-" + r.ReferenceNumber
	}
	return "DOC-REF-" + r.RequestID
}
