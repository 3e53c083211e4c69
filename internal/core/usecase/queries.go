package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/civic-records/internal/core/domain"
	"github.com/kirillkom/civic-records/internal/core/ports"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type RequestQueries struct {
	requests ports.RequestRepository
}

func NewRequestQueries(requests ports.RequestRepository) *RequestQueries {
	return &RequestQueries{requests: requests}
}

func (q *RequestQueries) Get(ctx context.Context, actor domain.Actor, requestID string) (*domain.Request, error) {
	if strings.TrimSpace(actor.UserID) == "" {
		return nil, domain.WrapError(domain.ErrUnauthorized, "get request", errors.New("missing actor"))
	}
	req, err := q.requests.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !domain.OwnerOrStaffGate.Allows(actor, req.CitizenID) {
		return nil, domain.WrapError(domain.ErrForbidden, "get request", fmt.Errorf("request %s is not visible to %s", requestID, actor.UserID))
	}
	return req, nil
}

// List returns requests visible to actor. Non-staff actors only ever see
// their own requests, whatever the filter says.
func (q *RequestQueries) List(ctx context.Context, actor domain.Actor, filter domain.RequestFilter) ([]domain.Request, error) {
	if strings.TrimSpace(actor.UserID) == "" {
		return nil, domain.WrapError(domain.ErrUnauthorized, "list requests", errors.New("missing actor"))
	}
	if !actor.IsStaff() {
		if !actor.HasRole(domain.RoleCitizen) {
			return nil, domain.WrapError(domain.ErrForbidden, "list requests", fmt.Errorf("actor %s has no portal role", actor.UserID))
		}
		filter.CitizenID = actor.UserID
	}
	filter.Limit = clampLimit(filter.Limit)
	return q.requests.List(ctx, filter)
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}
