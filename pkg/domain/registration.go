// Package domain provides the vehicle registration primitive shared by every
// resolver component.
package domain

import (
	"strings"
	"unicode"

	dErrors "garagedata/pkg/domain-errors"
)

// MaxRegistrationLength bounds accepted registrations. UK marks are at most
// seven characters; the slack covers personalised and foreign plates.
const MaxRegistrationLength = 12

// Registration is a normalized vehicle registration mark (VRM).
// The zero value is not a valid registration.
type Registration string

// NormalizeRegistration uppercases the input and strips all whitespace.
// "AB12 CDE", "ab12cde" and " AB12CDE\t" all normalize to "AB12CDE".
func NormalizeRegistration(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// ParseRegistration normalizes and validates a registration at a trust boundary.
func ParseRegistration(s string) (Registration, error) {
	n := NormalizeRegistration(s)
	if n == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "registration cannot be empty")
	}
	if len(n) > MaxRegistrationLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "registration too long")
	}
	for _, r := range n {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", dErrors.New(dErrors.CodeInvalidInput, "registration must be alphanumeric")
		}
	}
	return Registration(n), nil
}

func (r Registration) String() string { return string(r) }

func (r Registration) IsNil() bool { return r == "" }

// Redacted returns the registration with all but the last three characters
// masked, for log lines.
func (r Registration) Redacted() string {
	s := string(r)
	if len(s) <= 3 {
		return "***"
	}
	return strings.Repeat("*", len(s)-3) + s[len(s)-3:]
}
