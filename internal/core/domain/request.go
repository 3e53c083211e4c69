package domain

import (
	"fmt"
	"strings"
	"time"
)

type RequestStatus string

const (
	RequestPending                 RequestStatus = "pending"
	RequestProcessing              RequestStatus = "processing"
	RequestAdditionalInfoRequested RequestStatus = "additional_info_requested"
	RequestCompleted               RequestStatus = "completed"
	RequestRejected                RequestStatus = "rejected"
	RequestCancelled               RequestStatus = "cancelled"
)

var requestStatuses = []RequestStatus{
	RequestPending,
	RequestProcessing,
	RequestAdditionalInfoRequested,
	RequestCompleted,
	RequestRejected,
	RequestCancelled,
}

func RequestStatuses() []RequestStatus {
	return append([]RequestStatus(nil), requestStatuses...)
}

func ParseRequestStatus(raw string) (RequestStatus, error) {
	s := RequestStatus(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range requestStatuses {
		if s == known {
			return s, nil
		}
	}
	return "", WrapError(ErrInvalidInput, "parse request status", fmt.Errorf("unknown status %q", raw))
}

// IsTerminal reports whether no further transitions leave s.
func (s RequestStatus) IsTerminal() bool {
	switch s {
	case RequestCompleted, RequestRejected, RequestCancelled:
		return true
	default:
		return false
	}
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func ParsePriority(raw string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(raw)))
	switch p {
	case "":
		return PriorityMedium, nil
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return p, nil
	default:
		return "", WrapError(ErrInvalidInput, "parse priority", fmt.Errorf("unknown priority %q", raw))
	}
}

// Request is a citizen's application for one document. Status changes only
// through the lifecycle engine; Version increments on every stored change.
type Request struct {
	RequestID       string            `json:"request_id"`
	ReferenceNumber string            `json:"reference_number"`
	DocumentType    string            `json:"document_type"`
	CitizenID       string            `json:"citizen_id"`
	CitizenName     string            `json:"citizen_name"`
	AssignedOfficer *string           `json:"assigned_officer,omitempty"`
	Approver        *string           `json:"approver,omitempty"`
	ApprovedAt      *time.Time        `json:"approved_at,omitempty"`
	Status          RequestStatus     `json:"status"`
	Priority        Priority          `json:"priority"`
	Title           string            `json:"title"`
	Description     string            `json:"description,omitempty"`
	Notes           string            `json:"notes,omitempty"`
	Fields          map[string]string `json:"fields,omitempty"`

	RejectionReason        *string `json:"rejection_reason,omitempty"`
	AdditionalInfoRequest  *string `json:"additional_info_request,omitempty"`
	AdditionalInfoResponse *string `json:"additional_info_response,omitempty"`
	ResultingDocument      *string `json:"resulting_document,omitempty"`

	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	SubmittedDate time.Time  `json:"submitted_date"`
	DueDate       time.Time  `json:"due_date"`
	CompletedDate *time.Time `json:"completed_date,omitempty"`
	Version       int64      `json:"version"`
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	out := *r
	out.AssignedOfficer = cloneString(r.AssignedOfficer)
	out.Approver = cloneString(r.Approver)
	out.ApprovedAt = cloneTime(r.ApprovedAt)
	out.RejectionReason = cloneString(r.RejectionReason)
	out.AdditionalInfoRequest = cloneString(r.AdditionalInfoRequest)
	out.AdditionalInfoResponse = cloneString(r.AdditionalInfoResponse)
	out.ResultingDocument = cloneString(r.ResultingDocument)
	out.CompletedDate = cloneTime(r.CompletedDate)
	if r.Fields != nil {
		out.Fields = make(map[string]string, len(r.Fields))
		for k, v := range r.Fields {
			out.Fields[k] = v
		}
	}
	return &out
}

// FormatRequestID renders the human-readable request id and reference number
// for the seq-th request of typeCode on day.
func FormatRequestID(typeCode string, day time.Time, seq int64) (requestID, reference string) {
	requestID = fmt.Sprintf("%s-%s-%03d", typeCode, day.Format("20060102"), seq)
	return requestID, "REF-" + requestID
}

type RequestFilter struct {
	CitizenID    string
	Status       RequestStatus
	DocumentType string
	From         *time.Time
	To           *time.Time
	Limit        int
}

func StringPtr(s string) *string {
	return &s
}

func TimePtr(t time.Time) *time.Time {
	return &t
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DailyCount is the number of requests of one type submitted on one day.
type DailyCount struct {
	DocumentType string    `json:"document_type"`
	Day          time.Time `json:"day"`
	Count        int       `json:"count"`
}
