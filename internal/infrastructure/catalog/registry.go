package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/civic-records/internal/core/domain"
)

//go:embed default.yaml
var defaultCatalog []byte

type file struct {
	DocumentTypes []domain.DocumentType `yaml:"document_types"`
}

// Registry is a read-only set of document types indexed by code and name.
type Registry struct {
	ordered []domain.DocumentType
	byCode  map[string]int
	byName  map[string]int
}

// Default returns the registry built from the embedded catalog.
func Default() (*Registry, error) {
	return Parse(bytes.NewReader(defaultCatalog))
}

// Load reads a catalog file. An empty path yields the embedded catalog.
func Load(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

func Parse(r io.Reader) (*Registry, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc file
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, domain.WrapError(domain.ErrInvalidInput, "parse catalog", errors.New("empty catalog"))
		}
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse catalog", err)
	}
	return New(doc.DocumentTypes)
}

// New validates types and builds the registry. Codes and names must be unique.
func New(types []domain.DocumentType) (*Registry, error) {
	if len(types) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "build catalog", errors.New("no document types"))
	}
	ordered := make([]domain.DocumentType, 0, len(types))
	for _, t := range types {
		t.Code = strings.TrimSpace(t.Code)
		t.Name = strings.TrimSpace(t.Name)
		if err := t.Validate(); err != nil {
			return nil, err
		}
		t.RequiredFields = append([]string(nil), t.RequiredFields...)
		ordered = append(ordered, t)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Code < ordered[j].Code })

	reg := &Registry{
		ordered: ordered,
		byCode:  make(map[string]int, len(ordered)),
		byName:  make(map[string]int, len(ordered)),
	}
	for i, t := range ordered {
		if _, dup := reg.byCode[t.Code]; dup {
			return nil, domain.WrapError(domain.ErrInvalidInput, "build catalog", fmt.Errorf("duplicate code %q", t.Code))
		}
		if _, dup := reg.byName[t.Name]; dup {
			return nil, domain.WrapError(domain.ErrInvalidInput, "build catalog", fmt.Errorf("duplicate name %q", t.Name))
		}
		reg.byCode[t.Code] = i
		reg.byName[t.Name] = i
	}
	return reg, nil
}

// Lookup resolves identifier as a code first, then as a display name.
func (r *Registry) Lookup(identifier string) (domain.DocumentType, error) {
	id := strings.TrimSpace(identifier)
	if i, ok := r.byCode[id]; ok {
		return r.copyAt(i), nil
	}
	if i, ok := r.byName[id]; ok {
		return r.copyAt(i), nil
	}
	return domain.DocumentType{}, domain.WrapError(domain.ErrUnknownDocumentType, "lookup document type", fmt.Errorf("%q", identifier))
}

func (r *Registry) List() []domain.DocumentType {
	out := make([]domain.DocumentType, len(r.ordered))
	for i := range r.ordered {
		out[i] = r.copyAt(i)
	}
	return out
}

func (r *Registry) copyAt(i int) domain.DocumentType {
	t := r.ordered[i]
	t.RequiredFields = append([]string(nil), t.RequiredFields...)
	return t
}
