package httpadapter

import (
	"net/http"

	"github.com/kirillkom/civic-records/internal/core/domain"
)

func (rt *Router) issueManualDocument(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var input domain.ManualIssueInput
	if !decodeJSON(w, r, &input) {
		writeError(w, r, invalidJSON("issue document"))
		return
	}

	doc, err := rt.svc.Documents.IssueManual(r.Context(), actor, input)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	doc, err := rt.svc.Documents.Get(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) documentValidity(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	validity, err := rt.svc.Documents.Validity(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, validity)
}

func (rt *Router) revokeDocument(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if !decodeJSON(w, r, &body) {
		writeError(w, r, invalidJSON("revoke document"))
		return
	}

	doc, err := rt.svc.Documents.Revoke(r.Context(), actor, r.PathValue("id"), body.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// verifyDocument is visible to whoever may read the document itself.
func (rt *Router) verifyDocument(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	doc, err := rt.svc.Documents.Get(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	verification, err := rt.svc.Anchorer.VerifyByID(r.Context(), doc.DocumentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, verification)
}
