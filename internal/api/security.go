package api

import (
	"net/url"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// isPathTraversal performs robust checks against path traversal
// attempts in client-supplied identifiers. It decodes the input
// multiple times to catch double-encoding, applies Unicode
// normalization, and searches for dangerous sequences including NULs.
func isPathTraversal(p string) bool {
	decoded := p
	for i := 0; i < 3; i++ {
		prev := decoded
		if d, err := url.PathUnescape(decoded); err == nil {
			decoded = d
		} else if d2, err2 := url.QueryUnescape(decoded); err2 == nil {
			decoded = d2
		}
		if decoded == prev {
			break
		}
	}

	lower := strings.ToLower(decoded)
	dangerSubstrings := []string{
		"..",
		"/",
		"\\",
		"%00",
		"\x00",
	}
	for _, pat := range dangerSubstrings {
		if strings.Contains(lower, pat) {
			return true
		}
	}

	normalized := strings.ToLower(norm.NFC.String(decoded))
	return strings.Contains(normalized, "..") || strings.ContainsAny(normalized, "/\\")
}
