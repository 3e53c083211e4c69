package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/civic-records/internal/core/domain"
)

const requestColumns = `request_id, reference_number, document_type, citizen_id, citizen_name, assigned_officer, approver, approved_at,
	status, priority, title, description, notes, fields, rejection_reason, additional_info_request, additional_info_response,
	resulting_document, created_at, updated_at, submitted_date, due_date, completed_date, version`

type RequestRepository struct {
	db dbtx
}

func NewRequestRepository(db *sql.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

func (r *RequestRepository) Create(ctx context.Context, req *domain.Request) error {
	fieldsJSON, err := marshalFields(req.Fields)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO requests (`+requestColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)
`,
		req.RequestID, req.ReferenceNumber, req.DocumentType, req.CitizenID, req.CitizenName,
		req.AssignedOfficer, req.Approver, req.ApprovedAt,
		string(req.Status), string(req.Priority), req.Title, req.Description, req.Notes, fieldsJSON,
		req.RejectionReason, req.AdditionalInfoRequest, req.AdditionalInfoResponse, req.ResultingDocument,
		req.CreatedAt, req.UpdatedAt, req.SubmittedDate, req.DueDate, req.CompletedDate, req.Version,
	)
	if err != nil {
		return mapWriteError("insert request", err)
	}
	return nil
}

func (r *RequestRepository) Get(ctx context.Context, requestID string) (*domain.Request, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM requests WHERE request_id = $1`, requestID)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get request", fmt.Errorf("request %s", requestID))
		}
		return nil, fmt.Errorf("get request: %w", err)
	}
	return &req, nil
}

// Update writes req only when the stored version still equals
// expectedVersion.
func (r *RequestRepository) Update(ctx context.Context, req *domain.Request, expectedVersion int64) error {
	fieldsJSON, err := marshalFields(req.Fields)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE requests
SET assigned_officer = $3, approver = $4, approved_at = $5, status = $6, priority = $7, title = $8,
	description = $9, notes = $10, fields = $11, rejection_reason = $12, additional_info_request = $13,
	additional_info_response = $14, resulting_document = $15, updated_at = $16, completed_date = $17, version = $18
WHERE request_id = $1 AND version = $2
`,
		req.RequestID, expectedVersion,
		req.AssignedOfficer, req.Approver, req.ApprovedAt, string(req.Status), string(req.Priority), req.Title,
		req.Description, req.Notes, fieldsJSON, req.RejectionReason, req.AdditionalInfoRequest,
		req.AdditionalInfoResponse, req.ResultingDocument, req.UpdatedAt, req.CompletedDate, req.Version,
	)
	if err != nil {
		return fmt.Errorf("update request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update request rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var stored int64
	err = r.db.QueryRowContext(ctx, `SELECT version FROM requests WHERE request_id = $1`, req.RequestID).Scan(&stored)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WrapError(domain.ErrNotFound, "update request", fmt.Errorf("request %s", req.RequestID))
		}
		return fmt.Errorf("probe request version: %w", err)
	}
	return domain.WrapError(domain.ErrConcurrentModification, "update request",
		fmt.Errorf("request %s: expected version %d, stored %d", req.RequestID, expectedVersion, stored))
}

func (r *RequestRepository) List(ctx context.Context, filter domain.RequestFilter) ([]domain.Request, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.CitizenID != "" {
		add("citizen_id = $%d", filter.CitizenID)
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.DocumentType != "" {
		add("document_type = $%d", filter.DocumentType)
	}
	if filter.From != nil {
		add("submitted_date >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("submitted_date < $%d", *filter.To)
	}

	query := `SELECT ` + requestColumns + ` FROM requests`
	if len(where) > 0 {
		query += "\nWHERE " + strings.Join(where, " AND ")
	}
	query += "\nORDER BY created_at DESC, request_id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf("\nLIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Request, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate requests: %w", err)
	}
	return out, nil
}

func (r *RequestRepository) CountByTypeAndDate(ctx context.Context, typeCode string, day time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM requests
WHERE document_type = $1 AND submitted_date >= $2 AND submitted_date < $3
`, typeCode, day, day.AddDate(0, 0, 1)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count requests: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (domain.Request, error) {
	var (
		req              domain.Request
		status, priority string
		fieldsRaw        []byte
	)
	err := row.Scan(
		&req.RequestID, &req.ReferenceNumber, &req.DocumentType, &req.CitizenID, &req.CitizenName,
		&req.AssignedOfficer, &req.Approver, &req.ApprovedAt,
		&status, &priority, &req.Title, &req.Description, &req.Notes, &fieldsRaw,
		&req.RejectionReason, &req.AdditionalInfoRequest, &req.AdditionalInfoResponse, &req.ResultingDocument,
		&req.CreatedAt, &req.UpdatedAt, &req.SubmittedDate, &req.DueDate, &req.CompletedDate, &req.Version,
	)
	if err != nil {
		return domain.Request{}, err
	}
	req.Status = domain.RequestStatus(status)
	req.Priority = domain.Priority(priority)
	if len(fieldsRaw) > 0 {
		if err := json.Unmarshal(fieldsRaw, &req.Fields); err != nil {
			return domain.Request{}, fmt.Errorf("unmarshal fields: %w", err)
		}
	}
	return req, nil
}

func marshalFields(fields map[string]string) ([]byte, error) {
	if fields == nil {
		fields = map[string]string{}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal fields: %w", err)
	}
	return raw, nil
}
