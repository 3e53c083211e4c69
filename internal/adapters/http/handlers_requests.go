package httpadapter

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/civic-records/internal/core/domain"
)

func (rt *Router) submitRequest(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var input domain.SubmitInput
	if !decodeJSON(w, r, &input) {
		writeError(w, r, invalidJSON("submit request"))
		return
	}

	req, err := rt.svc.Lifecycle.Submit(r.Context(), actor, input)
	if err != nil {
		writeError(w, r, err)
		return
	}
	setETag(w, req.Version)
	w.Header().Set("Location", "/v1/requests/"+url.PathEscape(req.RequestID))
	writeJSON(w, http.StatusCreated, req)
}

func (rt *Router) listRequests(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	filter, err := rt.parseRequestFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}

	requests, err := rt.svc.Requests.List(r.Context(), actor, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": requests})
}

func (rt *Router) getRequest(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := rt.svc.Requests.Get(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	setETag(w, req.Version)
	writeJSON(w, http.StatusOK, req)
}

type transitionBody struct {
	To           string `json:"to"`
	Reason       string `json:"reason"`
	InfoRequest  string `json:"info_request"`
	InfoResponse string `json:"info_response"`
	AssignTo     string `json:"assign_to"`
	Notes        string `json:"notes"`
}

func (rt *Router) transitionRequest(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	expected, err := parseIfMatch(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body transitionBody
	if !decodeJSON(w, r, &body) {
		writeError(w, r, invalidJSON("transition request"))
		return
	}
	target, err := domain.ParseRequestStatus(body.To)
	if err != nil {
		writeError(w, r, err)
		return
	}

	req, err := rt.svc.Lifecycle.Transition(r.Context(), r.PathValue("id"), target, actor, domain.TransitionPayload{
		Reason:          body.Reason,
		InfoRequest:     body.InfoRequest,
		InfoResponse:    body.InfoResponse,
		AssignTo:        body.AssignTo,
		Notes:           body.Notes,
		ExpectedVersion: expected,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	setETag(w, req.Version)
	writeJSON(w, http.StatusOK, req)
}

func (rt *Router) approveRequest(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	expected, err := parseIfMatch(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	req, err := rt.svc.Lifecycle.Approve(r.Context(), r.PathValue("id"), actor, expected)
	if err != nil {
		writeError(w, r, err)
		return
	}
	setETag(w, req.Version)
	writeJSON(w, http.StatusOK, req)
}

// completeDocument re-runs synthesis for a completed request. Safe to repeat.
func (rt *Router) completeDocument(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !domain.OfficerOrChairmanGate.Allows(actor, "") {
		writeError(w, r, domain.WrapError(domain.ErrForbidden, "complete document", fmt.Errorf("requires %s", domain.OfficerOrChairmanGate)))
		return
	}

	doc, err := rt.svc.Lifecycle.CompleteDocument(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) exportRequests(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	filter, err := rt.parseRequestFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := rt.svc.Reports.ExportRequests(r.Context(), actor, filter, &buf); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="requests.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// parseRequestFilter reads status, document_type, citizen_id, limit and the
// from/to day bounds. Both days are inclusive and read in the portal timezone.
func (rt *Router) parseRequestFilter(q url.Values) (domain.RequestFilter, error) {
	filter := domain.RequestFilter{
		DocumentType: strings.TrimSpace(q.Get("document_type")),
		CitizenID:    strings.TrimSpace(q.Get("citizen_id")),
	}
	if raw := q.Get("status"); raw != "" {
		status, err := domain.ParseRequestStatus(raw)
		if err != nil {
			return domain.RequestFilter{}, err
		}
		filter.Status = status
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return domain.RequestFilter{}, domain.WrapError(domain.ErrInvalidInput, "parse filter", fmt.Errorf("limit must be a non-negative integer"))
		}
		filter.Limit = n
	}
	if raw := q.Get("from"); raw != "" {
		day, err := time.ParseInLocation(time.DateOnly, raw, rt.loc)
		if err != nil {
			return domain.RequestFilter{}, domain.WrapError(domain.ErrInvalidInput, "parse filter", fmt.Errorf("from: %w", err))
		}
		filter.From = &day
	}
	if raw := q.Get("to"); raw != "" {
		day, err := time.ParseInLocation(time.DateOnly, raw, rt.loc)
		if err != nil {
			return domain.RequestFilter{}, domain.WrapError(domain.ErrInvalidInput, "parse filter", fmt.Errorf("to: %w", err))
		}
		end := day.AddDate(0, 0, 1)
		filter.To = &end
	}
	return filter, nil
}

func invalidJSON(op string) error {
	return domain.WrapError(domain.ErrInvalidInput, op, errors.New("invalid json body"))
}
