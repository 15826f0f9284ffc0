package server

import (
	"fmt"
	"net/http"
	"strings"

	"quicksand/internal/store"
)

const maxIDPathLength = 64

// pathID extracts and validates the {id} path segment. A file extension
// suffix is tolerated and stripped so browser-style links keep working.
func pathID(r *http.Request) (string, error) {
	raw := r.PathValue("id")
	if dot := strings.IndexByte(raw, '.'); dot >= 0 {
		raw = raw[:dot]
	}
	if raw == "" {
		return "", badRequestCode(fmt.Errorf("id is required"), ErrCodeMissingRequired)
	}
	if len(raw) > maxIDPathLength || !store.ValidID(raw) {
		return "", badRequestCode(fmt.Errorf("invalid id %q", raw), ErrCodeInvalidID)
	}
	return raw, nil
}
