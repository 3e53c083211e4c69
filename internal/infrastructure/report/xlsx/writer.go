// Package xlsx renders request exports as Excel workbooks.
package xlsx

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/civic-records/internal/core/domain"
)

const (
	RequestsSheet = "Requests"
	SummarySheet  = "Summary"
)

var requestHeader = []any{
	"Request ID", "Reference", "Type", "Citizen ID", "Citizen", "Status", "Priority",
	"Assigned officer", "Approver", "Submitted", "Due", "Completed", "Document", "Rejection reason",
}

type Writer struct {
	loc *time.Location
}

func NewWriter(loc *time.Location) *Writer {
	if loc == nil {
		loc = time.UTC
	}
	return &Writer{loc: loc}
}

func (w *Writer) WriteRequests(out io.Writer, requests []domain.Request, summary []domain.DailyCount) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", RequestsSheet); err != nil {
		return fmt.Errorf("rename requests sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	if err := w.writeRows(f, RequestsSheet, requestHeader, len(requests), func(i int) []any {
		return w.requestRow(requests[i])
	}); err != nil {
		return err
	}
	if err := f.SetRowStyle(RequestsSheet, 1, 1, bold); err != nil {
		return fmt.Errorf("style requests header: %w", err)
	}
	if err := f.SetColWidth(RequestsSheet, "A", "N", 20); err != nil {
		return fmt.Errorf("size requests columns: %w", err)
	}

	if _, err := f.NewSheet(SummarySheet); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}
	if err := w.writeRows(f, SummarySheet, []any{"Date", "Type", "Requests"}, len(summary), func(i int) []any {
		c := summary[i]
		return []any{c.Day.In(w.loc).Format(time.DateOnly), c.DocumentType, c.Count}
	}); err != nil {
		return err
	}
	if err := f.SetRowStyle(SummarySheet, 1, 1, bold); err != nil {
		return fmt.Errorf("style summary header: %w", err)
	}

	if err := f.Write(out); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func (w *Writer) writeRows(f *excelize.File, sheet string, header []any, n int, row func(int) []any) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write %s header: %w", sheet, err)
	}
	for i := 0; i < n; i++ {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("%s row %d: %w", sheet, i+2, err)
		}
		values := row(i)
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+2, err)
		}
	}
	return nil
}

func (w *Writer) requestRow(r domain.Request) []any {
	return []any{
		r.RequestID,
		r.ReferenceNumber,
		r.DocumentType,
		r.CitizenID,
		r.CitizenName,
		string(r.Status),
		string(r.Priority),
		deref(r.AssignedOfficer),
		deref(r.Approver),
		w.stamp(&r.SubmittedDate),
		r.DueDate.In(w.loc).Format(time.DateOnly),
		w.stamp(r.CompletedDate),
		deref(r.ResultingDocument),
		deref(r.RejectionReason),
	}
}

func (w *Writer) stamp(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.In(w.loc).Format("2006-01-02 15:04")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
