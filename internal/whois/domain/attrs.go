package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// dirTimeLayout is the directory's fixed textual timestamp encoding
// (generalized time, e.g. "20140102150405Z").
const dirTimeLayout = "20060102150405Z"

// First returns the first element of a possibly-empty attribute value list.
// Directory attributes are multi-valued on the wire even when the schema
// only ever stores one value.
func First(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// LocalID strips directory DN decoration from an identifier attribute,
// yielding the bare local name: "uid=alice,o=users,dc=example" becomes
// "alice". A value without DN structure passes through unchanged.
func LocalID(dn string) string {
	dn = strings.TrimSpace(dn)
	if idx := strings.IndexByte(dn, ','); idx >= 0 {
		dn = dn[:idx]
	}
	if idx := strings.IndexByte(dn, '='); idx >= 0 {
		dn = dn[idx+1:]
	}
	return dn
}

// ParseDirectoryTime parses the directory's generalized-time encoding.
// Callers treat a failed parse as an absent value, never as a fatal error.
func ParseDirectoryTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	t, err := time.Parse(dirTimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed directory timestamp %q: %w", s, err)
	}
	return t, nil
}

// FormatDate renders a timestamp as the calendar date shown to clients.
func FormatDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// IsDisabled interprets the zone disabled flag. Only the case-sensitive
// literal "TRUE" disables a zone; absence or any other value does not.
func IsDisabled(v string) bool {
	return v == "TRUE"
}

// RedactEmail blunts address harvesting by spelling out the at-sign.
func RedactEmail(s string) string {
	return strings.ReplaceAll(s, "@", " AT ")
}

// SanitizeLine strips control characters from a directory value before it is
// interpolated into the line protocol, so stored data can never inject extra
// lines into a response.
func SanitizeLine(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
