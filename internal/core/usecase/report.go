package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/kirillkom/civic-records/internal/core/domain"
	"github.com/kirillkom/civic-records/internal/core/ports"
)

type ReportUseCase struct {
	requests ports.RequestRepository
	writer   ports.RequestReportWriter
	loc      *time.Location
}

func NewReportUseCase(requests ports.RequestRepository, writer ports.RequestReportWriter, loc *time.Location) *ReportUseCase {
	if loc == nil {
		loc = time.UTC
	}
	return &ReportUseCase{requests: requests, writer: writer, loc: loc}
}

// ExportRequests writes the requests matching filter together with per-type
// daily submission counts.
func (uc *ReportUseCase) ExportRequests(ctx context.Context, actor domain.Actor, filter domain.RequestFilter, w io.Writer) error {
	if strings.TrimSpace(actor.UserID) == "" {
		return domain.WrapError(domain.ErrUnauthorized, "export requests", errors.New("missing actor"))
	}
	if !domain.OfficerOrChairmanGate.Allows(actor, "") {
		return domain.WrapError(domain.ErrForbidden, "export requests", fmt.Errorf("actor %s requires %s", actor.UserID, domain.OfficerOrChairmanGate))
	}
	if filter.Limit <= 0 {
		filter.Limit = maxListLimit
	}
	requests, err := uc.requests.List(ctx, filter)
	if err != nil {
		return fmt.Errorf("list requests: %w", err)
	}

	type key struct {
		code string
		day  string
	}
	seen := make(map[key]time.Time)
	for _, r := range requests {
		day := domain.StartOfDay(r.SubmittedDate.In(uc.loc))
		seen[key{code: r.DocumentType, day: day.Format(time.DateOnly)}] = day
	}
	summary := make([]domain.DailyCount, 0, len(seen))
	for k, day := range seen {
		n, err := uc.requests.CountByTypeAndDate(ctx, k.code, day)
		if err != nil {
			return fmt.Errorf("count %s on %s: %w", k.code, k.day, err)
		}
		summary = append(summary, domain.DailyCount{DocumentType: k.code, Day: day, Count: n})
	}
	sort.Slice(summary, func(i, j int) bool {
		if !summary[i].Day.Equal(summary[j].Day) {
			return summary[i].Day.Before(summary[j].Day)
		}
		return summary[i].DocumentType < summary[j].DocumentType
	})

	if err := uc.writer.WriteRequests(w, requests, summary); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
