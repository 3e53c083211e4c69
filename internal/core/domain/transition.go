package domain

type edge struct {
	from RequestStatus
	to   RequestStatus
}

// TransitionTable is the closed set of lifecycle edges and the gate guarding
// each one.
type TransitionTable struct {
	edges map[edge]RoleGate
}

func NewTransitionTable(chairmanActsAsOfficer bool) TransitionTable {
	officer := OfficerGateWithPolicy(chairmanActsAsOfficer)
	return TransitionTable{edges: map[edge]RoleGate{
		{RequestPending, RequestProcessing}:                 officer,
		{RequestPending, RequestCancelled}:                  CitizenGate,
		{RequestProcessing, RequestAdditionalInfoRequested}: officer,
		{RequestAdditionalInfoRequested, RequestProcessing}: CitizenGate,
		{RequestProcessing, RequestCompleted}:               officer,
		{RequestProcessing, RequestRejected}:                OfficerOrChairmanGate,
	}}
}

// Gate returns the gate for from -> to, or false when the edge does not exist.
func (t TransitionTable) Gate(from, to RequestStatus) (RoleGate, bool) {
	g, ok := t.edges[edge{from: from, to: to}]
	return g, ok
}

func (t TransitionTable) Allowed(from, to RequestStatus) bool {
	_, ok := t.edges[edge{from: from, to: to}]
	return ok
}

// Targets lists the statuses reachable from from in one step.
func (t TransitionTable) Targets(from RequestStatus) []RequestStatus {
	var out []RequestStatus
	for _, s := range requestStatuses {
		if t.Allowed(from, s) {
			out = append(out, s)
		}
	}
	return out
}
