// Package identity holds the staff roster used when a document needs an
// issuer and the request names none.
package identity

import (
	"context"
	"strings"
)

type StaticDirectory struct {
	staff []string
}

// NewStaticDirectory keeps the non-blank ids in order. The first one is the
// fallback issuer.
func NewStaticDirectory(ids ...string) *StaticDirectory {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return &StaticDirectory{staff: out}
}

func (d *StaticDirectory) AnyStaff(ctx context.Context) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	if len(d.staff) == 0 {
		return "", false, nil
	}
	return d.staff[0], true, nil
}
