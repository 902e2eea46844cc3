// Package validate holds the address and input predicates used at every
// boundary where untrusted strings reach network or storage code.
package validate

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	v = validator.New()

	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9 \-_.]`)
)

// IPv4 reports whether s is a dotted-quad IPv4 address.
// IPv4-mapped IPv6 forms are rejected.
func IPv4(s string) bool {
	if s == "" || strings.Contains(s, ":") {
		return false
	}
	return v.Var(s, "ipv4") == nil
}

// Port reports whether p is within 1..65535.
func Port(p int) bool {
	return v.Var(p, "min=1,max=65535") == nil
}

// Sanitize strips everything except letters, digits, spaces, hyphens,
// underscores and dots.
func Sanitize(s string) string {
	return unsafeChars.ReplaceAllString(s, "")
}

// Struct runs the struct-tag validation rules on s.
func Struct(s any) error {
	return v.Struct(s)
}
