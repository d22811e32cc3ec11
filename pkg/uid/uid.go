// Package uid generates job and request identifiers.
package uid

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a random UUID in canonical form.
func New() string {
	return uuid.NewString()
}

// Valid reports whether id is a UUID in canonical form. Job ids are only
// looked up when they pass this check.
func Valid(id string) bool {
	u, err := uuid.Parse(id)
	return err == nil && u.String() == strings.ToLower(id)
}
