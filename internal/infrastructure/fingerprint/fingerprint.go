// Package fingerprint computes the content hash anchored on the ledger for
// every issued document.
package fingerprint

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
)

// domainTag separates document fingerprints from any other BLAKE3 use.
const domainTag = "civic-records/document-fingerprint/v1\x00"

// Hasher encodes a payload with CBOR Core Deterministic Encoding (sorted
// map keys, shortest integers) and hashes the bytes with BLAKE3.
type Hasher struct {
	enc cbor.EncMode
}

func New() (*Hasher, error) {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("cbor encoder: %w", err)
	}
	return &Hasher{enc: enc}, nil
}

// Fingerprint returns the hex digest of payload. Values are first passed
// through JSON so a document read back from storage hashes exactly like the
// one that was written.
func (h *Hasher) Fingerprint(payload map[string]any) (string, error) {
	normalized, err := normalize(payload)
	if err != nil {
		return "", err
	}
	encoded, err := h.enc.Marshal(normalized)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}

	hasher := blake3.New()
	_, _ = hasher.Write([]byte(domainTag))
	_, _ = hasher.Write(encoded)
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func normalize(payload map[string]any) (any, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("normalize payload: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("normalize payload: %w", err)
	}
	return out, nil
}
