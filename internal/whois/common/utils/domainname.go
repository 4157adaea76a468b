package utils

import (
	"strings"

	"golang.org/x/net/publicsuffix"
)

// QualifyDomain returns a queried name in the form used for directory search
// filters:
// - Lowercased
// - Trimmed of surrounding whitespace
// - A bare label (no dots) gets a trailing dot, matching how root zones are
//   registered in the directory.
func QualifyDomain(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ToLower(name)
	if name == "" {
		return ""
	}
	if !strings.Contains(name, ".") {
		name += "."
	}
	return name
}

// ICANNManaged reports whether the name's public suffix is ICANN-managed.
// Queries for ICANN domains can never resolve against this registry, so the
// answer is only used to annotate not-found logging.
func ICANNManaged(name string) bool {
	name = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(name)), ".")
	if name == "" {
		return false
	}
	_, icann := publicsuffix.PublicSuffix(name)
	return icann
}
