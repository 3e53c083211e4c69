package domain

import "strings"

type Role string

const (
	RoleCitizen  Role = "citizen"
	RoleOfficer  Role = "officer"
	RoleChairman Role = "chairman"
)

// Actor is the caller of a core operation. Identity systems may keep roles in
// more than one place; they are collapsed into Roles before reaching the core.
type Actor struct {
	UserID   string
	FullName string
	Roles    map[Role]struct{}
}

func NewActor(userID, fullName string, roles ...Role) Actor {
	set := make(map[Role]struct{}, len(roles))
	for _, r := range roles {
		r = Role(strings.ToLower(strings.TrimSpace(string(r))))
		if r == "" {
			continue
		}
		set[r] = struct{}{}
	}
	return Actor{UserID: userID, FullName: fullName, Roles: set}
}

func (a Actor) HasRole(r Role) bool {
	_, ok := a.Roles[r]
	return ok
}

func (a Actor) IsStaff() bool {
	return a.HasRole(RoleOfficer) || a.HasRole(RoleChairman)
}

func (a Actor) RoleList() []Role {
	out := make([]Role, 0, len(a.Roles))
	for r := range a.Roles {
		out = append(out, r)
	}
	return out
}

// RoleGate decides whether an actor may act on a resource owned by owner.
// owner is empty when the resource has no owner yet (e.g. a new submission).
type RoleGate interface {
	Allows(actor Actor, owner string) bool
	String() string
}

type citizenGate struct{}

func (citizenGate) Allows(a Actor, owner string) bool {
	if !a.HasRole(RoleCitizen) {
		return false
	}
	return owner == "" || owner == a.UserID
}

func (citizenGate) String() string { return "citizen owner" }

type officerGate struct {
	chairmanActsAsOfficer bool
}

func (g officerGate) Allows(a Actor, _ string) bool {
	if a.HasRole(RoleOfficer) {
		return true
	}
	return g.chairmanActsAsOfficer && a.HasRole(RoleChairman)
}

func (g officerGate) String() string {
	if g.chairmanActsAsOfficer {
		return "officer (chairman admitted)"
	}
	return "officer"
}

type chairmanGate struct{}

func (chairmanGate) Allows(a Actor, _ string) bool { return a.HasRole(RoleChairman) }
func (chairmanGate) String() string                { return "chairman" }

type officerOrChairmanGate struct{}

func (officerOrChairmanGate) Allows(a Actor, _ string) bool { return a.IsStaff() }
func (officerOrChairmanGate) String() string                { return "officer or chairman" }

type ownerOrStaffGate struct{}

func (ownerOrStaffGate) Allows(a Actor, owner string) bool {
	if a.IsStaff() {
		return true
	}
	return a.UserID != "" && a.UserID == owner
}

func (ownerOrStaffGate) String() string { return "owner or staff" }

var (
	CitizenGate           RoleGate = citizenGate{}
	OfficerGate           RoleGate = officerGate{}
	ChairmanGate          RoleGate = chairmanGate{}
	OfficerOrChairmanGate RoleGate = officerOrChairmanGate{}
	OwnerOrStaffGate      RoleGate = ownerOrStaffGate{}
)

// OfficerGateWithPolicy returns the officer gate, optionally admitting the
// chairman role as well.
func OfficerGateWithPolicy(chairmanActsAsOfficer bool) RoleGate {
	return officerGate{chairmanActsAsOfficer: chairmanActsAsOfficer}
}
