package domain

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestFormatRequestID(t *testing.T) {
	day := time.Date(2026, 3, 7, 15, 4, 0, 0, time.UTC)
	id, ref := FormatRequestID("CMND", day, 1)
	if id != "CMND-20260307-001" {
		t.Fatalf("unexpected request id %q", id)
	}
	if ref != "REF-CMND-20260307-001" {
		t.Fatalf("unexpected reference %q", ref)
	}

	id, _ = FormatRequestID("GCT", day, 1234)
	if id != "GCT-20260307-1234" {
		t.Fatalf("expected sequence wider than 3 digits to be kept, got %q", id)
	}
}

func TestDocumentIsValid(t *testing.T) {
	loc := time.FixedZone("ICT", 7*3600)
	now := time.Date(2026, 5, 10, 9, 0, 0, 0, loc)
	yesterday := now.AddDate(0, 0, -1)
	laterToday := time.Date(2026, 5, 10, 0, 30, 0, 0, loc)
	tomorrow := now.AddDate(0, 0, 1)

	cases := []struct {
		name   string
		status DocumentStatus
		until  *time.Time
		want   bool
	}{
		{name: "active indefinite", status: DocumentActive, until: nil, want: true},
		{name: "active until tomorrow", status: DocumentActive, until: &tomorrow, want: true},
		{name: "active until today", status: DocumentActive, until: &laterToday, want: true},
		{name: "active expired yesterday", status: DocumentActive, until: &yesterday, want: false},
		{name: "revoked indefinite", status: DocumentRevoked, until: nil, want: false},
		{name: "draft", status: DocumentDraft, until: &tomorrow, want: false},
		{name: "expired status", status: DocumentExpired, until: nil, want: false},
	}
	for _, tc := range cases {
		doc := &Document{Status: tc.status, ValidUntil: tc.until}
		if got := doc.IsValid(now); got != tc.want {
			t.Fatalf("%s: IsValid() = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestDocumentIsValidUsesCallerDay(t *testing.T) {
	ict := time.FixedZone("ICT", 7*3600)
	// Last valid day is 2026-10-17 local; the stored value comes back in UTC.
	until := time.Date(2026, 10, 17, 0, 0, 0, 0, ict).UTC()
	doc := &Document{Status: DocumentActive, ValidUntil: &until}

	if !doc.IsValid(time.Date(2026, 10, 17, 10, 0, 0, 0, ict)) {
		t.Fatalf("document must stay valid through its last local day")
	}
	if !doc.IsValid(time.Date(2026, 10, 17, 23, 59, 0, 0, ict)) {
		t.Fatalf("document must stay valid until local midnight")
	}
	if doc.IsValid(time.Date(2026, 10, 18, 0, 1, 0, 0, ict)) {
		t.Fatalf("document must expire on the next local day")
	}
}

func TestDocumentCloneCopiesNestedContent(t *testing.T) {
	doc := &Document{Content: map[string]any{
		"fields": map[string]any{"child_name": "Binh"},
		"tags":   []any{"a", map[string]any{"k": "v"}},
		"names":  []string{"An"},
	}}
	cp := doc.Clone()
	cp.Content["fields"].(map[string]any)["child_name"] = "changed"
	cp.Content["tags"].([]any)[1].(map[string]any)["k"] = "changed"
	cp.Content["names"].([]string)[0] = "changed"

	if doc.Content["fields"].(map[string]any)["child_name"] != "Binh" {
		t.Fatalf("nested map shared with clone")
	}
	if doc.Content["tags"].([]any)[1].(map[string]any)["k"] != "v" {
		t.Fatalf("map inside slice shared with clone")
	}
	if doc.Content["names"].([]string)[0] != "An" {
		t.Fatalf("string slice shared with clone")
	}
}

func TestRoleGates(t *testing.T) {
	citizen := NewActor("c-1", "Nguyen Van A", RoleCitizen)
	other := NewActor("c-2", "Tran Thi B", RoleCitizen)
	officer := NewActor("o-1", "Officer", RoleOfficer)
	chairman := NewActor("ch-1", "Chairman", RoleChairman)

	if !CitizenGate.Allows(citizen, "c-1") || CitizenGate.Allows(other, "c-1") {
		t.Fatalf("citizen gate must admit only the owner")
	}
	if !CitizenGate.Allows(citizen, "") {
		t.Fatalf("citizen gate must admit a citizen when there is no owner yet")
	}
	if CitizenGate.Allows(officer, "") {
		t.Fatalf("citizen gate must refuse staff")
	}
	if !OfficerGate.Allows(officer, "") || OfficerGate.Allows(chairman, "") {
		t.Fatalf("default officer gate must refuse chairman")
	}
	if !OfficerGateWithPolicy(true).Allows(chairman, "") {
		t.Fatalf("officer gate with policy must admit chairman")
	}
	if !OfficerOrChairmanGate.Allows(chairman, "") || OfficerOrChairmanGate.Allows(citizen, "") {
		t.Fatalf("officer-or-chairman gate mismatch")
	}
	if !OwnerOrStaffGate.Allows(citizen, "c-1") || OwnerOrStaffGate.Allows(other, "c-1") || !OwnerOrStaffGate.Allows(officer, "c-1") {
		t.Fatalf("owner-or-staff gate mismatch")
	}
}

func TestNewActorNormalizesRoles(t *testing.T) {
	a := NewActor("u", "", " Officer ", "", "CHAIRMAN")
	if !a.HasRole(RoleOfficer) || !a.HasRole(RoleChairman) || len(a.Roles) != 2 {
		t.Fatalf("unexpected roles %v", a.Roles)
	}
}

func TestTransitionTableEdges(t *testing.T) {
	table := NewTransitionTable(false)
	if table.Allowed(RequestPending, RequestCompleted) {
		t.Fatalf("pending -> completed must not exist")
	}
	for _, s := range []RequestStatus{RequestCompleted, RequestRejected, RequestCancelled} {
		if len(table.Targets(s)) != 0 {
			t.Fatalf("terminal status %s must have no targets", s)
		}
		if !s.IsTerminal() {
			t.Fatalf("%s must be terminal", s)
		}
	}
	targets := table.Targets(RequestProcessing)
	if len(targets) != 3 {
		t.Fatalf("expected 3 targets from processing, got %v", targets)
	}
}

func TestTransitionErrorReportsEdgeAndRoles(t *testing.T) {
	err := error(&TransitionError{
		Kind:      ErrForbidden,
		RequestID: "CMND-20260101-001",
		From:      RequestPending,
		To:        RequestProcessing,
		Roles:     []Role{RoleCitizen},
		Required:  "officer",
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden kind")
	}
	msg := err.Error()
	for _, part := range []string{"pending -> processing", "citizen", "requires officer"} {
		if !strings.Contains(msg, part) {
			t.Fatalf("expected %q in %q", part, msg)
		}
	}
	if KindName(err) != "forbidden" {
		t.Fatalf("unexpected kind name %q", KindName(err))
	}
}

func TestMissingFields(t *testing.T) {
	dt := DocumentType{Code: "KS", Name: "Birth", RequiredFields: []string{"child_name", "date_of_birth"}}
	missing := dt.MissingFields(map[string]string{"child_name": " ", "other": "x"})
	if len(missing) != 2 || missing[0] != "child_name" || missing[1] != "date_of_birth" {
		t.Fatalf("unexpected missing fields %v", missing)
	}
}
