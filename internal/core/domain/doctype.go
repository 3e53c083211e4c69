package domain

import (
	"fmt"
	"strings"
)

// DocumentType is a catalog entry describing one category of request and
// the document it produces. Values are read-only once the catalog is loaded.
type DocumentType struct {
	Code                     string   `json:"code" yaml:"code"`
	Name                     string   `json:"name" yaml:"name"`
	Description              string   `json:"description,omitempty" yaml:"description"`
	RequiredFields           []string `json:"required_fields" yaml:"required_fields"`
	RequiresOfficerApproval  bool     `json:"requires_officer_approval" yaml:"requires_officer_approval"`
	RequiresChairmanApproval bool     `json:"requires_chairman_approval" yaml:"requires_chairman_approval"`
	EstimatedProcessingDays  int      `json:"estimated_processing_days" yaml:"estimated_processing_days"`
	Fee                      int64    `json:"fee" yaml:"fee"`
	StoreOnLedger            bool     `json:"store_on_ledger" yaml:"store_on_ledger"`
}

func (t DocumentType) Validate() error {
	if strings.TrimSpace(t.Code) == "" {
		return WrapError(ErrInvalidInput, "validate document type", fmt.Errorf("empty code"))
	}
	if strings.TrimSpace(t.Name) == "" {
		return WrapError(ErrInvalidInput, "validate document type", fmt.Errorf("code=%s: empty name", t.Code))
	}
	if t.EstimatedProcessingDays < 0 {
		return WrapError(ErrInvalidInput, "validate document type", fmt.Errorf("code=%s: negative processing days", t.Code))
	}
	if t.Fee < 0 {
		return WrapError(ErrInvalidInput, "validate document type", fmt.Errorf("code=%s: negative fee", t.Code))
	}
	seen := make(map[string]struct{}, len(t.RequiredFields))
	for _, f := range t.RequiredFields {
		if _, ok := seen[f]; ok {
			return WrapError(ErrInvalidInput, "validate document type", fmt.Errorf("code=%s: duplicate required field %q", t.Code, f))
		}
		seen[f] = struct{}{}
	}
	return nil
}

// MissingFields lists required fields absent or blank in fields, in catalog order.
func (t DocumentType) MissingFields(fields map[string]string) []string {
	var missing []string
	for _, name := range t.RequiredFields {
		if strings.TrimSpace(fields[name]) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}
