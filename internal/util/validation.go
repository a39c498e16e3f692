package util

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

const MaxPlayerNameLength = 64

// IsValidUUID accepts only the canonical lowercase hyphenated form.
func IsValidUUID(s string) bool {
	id, err := uuid.Parse(s)
	if err != nil {
		return false
	}
	return id.String() == s
}

// NormalizeName trims a display name and reports whether it is acceptable:
// non-empty, at most MaxPlayerNameLength runes, and free of control characters.
func NormalizeName(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > MaxPlayerNameLength {
		return name, false
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return name, false
		}
	}
	return name, true
}
