package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/civic-records/internal/core/domain"
)

const documentColumns = `document_id, document_type, title, description, content, citizen_id, issued_by, status,
	issue_date, valid_from, valid_until, request_id, revoked_reason, fingerprint,
	ledger_status, ledger_tx_id, ledger_timestamp, created_at, updated_at`

type DocumentRepository struct {
	db dbtx
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	if doc.CitizenID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "insert document", errors.New("citizen id is required"))
	}
	contentJSON, err := marshalContent(doc.Content)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO documents (`+documentColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
`,
		doc.DocumentID, doc.DocumentType, doc.Title, doc.Description, contentJSON, doc.CitizenID, doc.IssuedBy,
		string(doc.Status), doc.IssueDate, doc.ValidFrom, doc.ValidUntil, doc.RequestID, doc.RevokedReason,
		doc.Fingerprint, doc.LedgerStatus, doc.LedgerTxID, doc.LedgerTimestamp, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return mapWriteError("insert document", err)
	}
	return nil
}

func (r *DocumentRepository) Get(ctx context.Context, documentID string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE document_id = $1`, documentID)

	var (
		doc        domain.Document
		contentRaw []byte
		status     string
	)
	err := row.Scan(
		&doc.DocumentID, &doc.DocumentType, &doc.Title, &doc.Description, &contentRaw, &doc.CitizenID, &doc.IssuedBy,
		&status, &doc.IssueDate, &doc.ValidFrom, &doc.ValidUntil, &doc.RequestID, &doc.RevokedReason, &doc.Fingerprint,
		&doc.LedgerStatus, &doc.LedgerTxID, &doc.LedgerTimestamp, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get document", fmt.Errorf("document %s", documentID))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}

	if len(contentRaw) > 0 {
		if err := json.Unmarshal(contentRaw, &doc.Content); err != nil {
			return nil, fmt.Errorf("unmarshal content: %w", err)
		}
	}
	doc.Status = domain.DocumentStatus(status)
	return &doc, nil
}

func (r *DocumentRepository) Update(ctx context.Context, doc *domain.Document) error {
	contentJSON, err := marshalContent(doc.Content)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET title = $2, description = $3, content = $4, issued_by = $5, status = $6, valid_until = $7,
	revoked_reason = $8, fingerprint = $9, updated_at = $10
WHERE document_id = $1
`, doc.DocumentID, doc.Title, doc.Description, contentJSON, doc.IssuedBy, string(doc.Status), doc.ValidUntil,
		doc.RevokedReason, doc.Fingerprint, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	return requireRow(res, "update document", doc.DocumentID)
}

func (r *DocumentRepository) MarkAnchored(ctx context.Context, documentID, txID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET ledger_status = TRUE, ledger_tx_id = $2, ledger_timestamp = $3, updated_at = $4
WHERE document_id = $1
`, documentID, txID, at, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark document anchored: %w", err)
	}
	return requireRow(res, "mark document anchored", documentID)
}

func requireRow(res sql.Result, op, documentID string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrNotFound, op, fmt.Errorf("document %s", documentID))
	}
	return nil
}

func marshalContent(content map[string]any) ([]byte, error) {
	if content == nil {
		content = map[string]any{}
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("marshal content: %w", err)
	}
	return raw, nil
}
