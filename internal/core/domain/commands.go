package domain

import "time"

type SubmitInput struct {
	DocumentType string            `json:"document_type"`
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	Priority     string            `json:"priority"`
	Fields       map[string]string `json:"fields"`
}

// TransitionPayload carries the data an edge needs. ExpectedVersion, when
// non-zero, must match the stored version or the call fails with
// ErrConcurrentModification.
type TransitionPayload struct {
	Reason          string `json:"reason,omitempty"`
	InfoRequest     string `json:"info_request,omitempty"`
	InfoResponse    string `json:"info_response,omitempty"`
	AssignTo        string `json:"assign_to,omitempty"`
	Notes           string `json:"notes,omitempty"`
	ExpectedVersion int64  `json:"-"`
}

type ManualIssueInput struct {
	DocumentType string         `json:"document_type"`
	CitizenID    string         `json:"citizen_id"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Content      map[string]any `json:"content"`
	ValidUntil   *time.Time     `json:"valid_until,omitempty"`
}

type DocumentValidity struct {
	DocumentID string         `json:"document_id"`
	Status     DocumentStatus `json:"status"`
	ValidUntil *time.Time     `json:"valid_until,omitempty"`
	Valid      bool           `json:"valid"`
	CheckedAt  time.Time      `json:"checked_at"`
}
