package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SequenceAllocator keeps one counter row per (type, day). The upsert takes
// a row lock, so concurrent callers each receive a distinct value.
type SequenceAllocator struct {
	db *sql.DB
}

func NewSequenceAllocator(db *sql.DB) *SequenceAllocator {
	return &SequenceAllocator{db: db}
}

func (a *SequenceAllocator) Next(ctx context.Context, typeCode string, day time.Time) (int64, error) {
	var value int64
	err := a.db.QueryRowContext(ctx, `
INSERT INTO request_sequences (type_code, day, value)
VALUES ($1, $2, 1)
ON CONFLICT (type_code, day) DO UPDATE SET value = request_sequences.value + 1
RETURNING value
`, typeCode, day.Format(time.DateOnly)).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("allocate sequence: %w", err)
	}
	return value, nil
}
