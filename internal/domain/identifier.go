package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// objectID is the wrapper shape {"$oid": "..."} used by document stores.
type objectID struct {
	OID *string `json:"$oid"`
}

// CanonicalID resolves a single identifier value sent as either a bare
// string or an {"$oid": "..."} wrapper.
func CanonicalID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", fmt.Errorf("%w: missing", ErrValidation)
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("%w: %w", ErrValidation, err)
		}
		return NormalizeID(s)
	case '{':
		var oid objectID
		if err := json.Unmarshal(raw, &oid); err != nil || oid.OID == nil {
			return "", fmt.Errorf("%w: object without $oid", ErrValidation)
		}
		return NormalizeID(*oid.OID)
	}
	return "", fmt.Errorf("%w: unsupported shape %s", ErrValidation, truncate(raw, 32))
}

// NormalizeID canonicalizes an identifier typed by a caller.
func NormalizeID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%w: empty", ErrValidation)
	}
	return id, nil
}

// resolveTaskID picks the identifier of a task record. _id wins over id,
// and a top-level $oid is the last resort.
func resolveTaskID(mongoID, id, oid json.RawMessage) (string, error) {
	for _, candidate := range []json.RawMessage{mongoID, id} {
		if isAbsent(candidate) {
			continue
		}
		return CanonicalID(candidate)
	}
	if !isAbsent(oid) {
		return CanonicalID(oid)
	}
	return "", fmt.Errorf("%w: record has neither _id nor id", ErrValidation)
}

func isAbsent(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
