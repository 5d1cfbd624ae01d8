// Package publicid generates the short human-readable book codes.
package publicid

import (
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const Prefix = "BK-"

var pattern = regexp.MustCompile(`^BK-[0-9A-F]{6}$`)

// New returns a code such as "BK-3F7A2C". Codes are not guaranteed unique;
// callers retry on a storage conflict.
func New() string {
	id := uuid.New()
	return Prefix + strings.ToUpper(hex.EncodeToString(id[:3]))
}

// Valid reports whether s has the shape of a book code.
func Valid(s string) bool {
	return pattern.MatchString(s)
}
