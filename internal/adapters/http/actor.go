package httpadapter

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/kirillkom/civic-records/internal/core/domain"
)

// Identity comes from the gateway in front of the API. These headers are
// trusted as is.
const (
	userIDHeader    = "X-User-Id"
	userNameHeader  = "X-User-Name"
	userRolesHeader = "X-User-Roles"
)

func actorFromRequest(r *http.Request) (domain.Actor, error) {
	userID := strings.TrimSpace(r.Header.Get(userIDHeader))
	if userID == "" {
		return domain.Actor{}, domain.WrapError(domain.ErrUnauthorized, "identify caller", errors.New("missing "+userIDHeader))
	}

	var roles []domain.Role
	for _, raw := range strings.Split(r.Header.Get(userRolesHeader), ",") {
		switch role := domain.Role(strings.ToLower(strings.TrimSpace(raw))); role {
		case domain.RoleCitizen, domain.RoleOfficer, domain.RoleChairman:
			roles = append(roles, role)
		}
	}
	return domain.NewActor(userID, strings.TrimSpace(r.Header.Get(userNameHeader)), roles...), nil
}

// parseIfMatch reads the expected request version. A missing header means
// the caller does not care; 0 is returned.
func parseIfMatch(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.Header.Get("If-Match"))
	if raw == "" || raw == "*" {
		return 0, nil
	}
	raw = strings.TrimPrefix(raw, "W/")
	raw = strings.Trim(raw, `"`)
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return 0, domain.WrapError(domain.ErrInvalidInput, "parse If-Match", fmt.Errorf("version must be a positive integer, got %q", raw))
	}
	return v, nil
}

func setETag(w http.ResponseWriter, version int64) {
	w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(version, 10)))
}
