// Package auth provides bearer-token principal resolution and the
// visibility check used by the streaming surface.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/clipforge/clipforge/internal/video"
)

// Principal identifies an authenticated caller.
type Principal struct {
	ID             string `json:"id" yaml:"id"`
	OrganizationID string `json:"organizationId" yaml:"organizationId"`
	Role           string `json:"role" yaml:"role"`
}

// IsAdmin reports whether the principal carries the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == "admin"
}

// Verifier resolves an opaque bearer token to a principal.
type Verifier interface {
	Verify(token string) (Principal, bool)
}

// StaticVerifier verifies tokens against a configured token table.
type StaticVerifier struct {
	Tokens map[string]Principal
}

// Verify resolves token using constant-time comparison against every
// configured token, so lookup timing does not leak near-matches.
func (v *StaticVerifier) Verify(token string) (Principal, bool) {
	if token == "" {
		return Principal{}, false
	}
	var (
		found     bool
		principal Principal
	)
	for candidate, p := range v.Tokens {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(token)) == 1 {
			found = true
			principal = p
		}
	}
	return principal, found
}

// ExtractToken retrieves the bearer token from the request.
//  1. Authorization: Bearer <token>
//  2. Query: ?token= (if allowed) — browser media elements cannot
//     attach custom headers to range requests.
func ExtractToken(r *http.Request, allowQuery bool) string {
	if authz := r.Header.Get("Authorization"); strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	if allowQuery {
		if t := r.URL.Query().Get("token"); t != "" {
			return t
		}
	}
	return ""
}

// CanView applies the visibility rules: public videos are viewable by
// anyone, organization videos by members of the owning organization,
// private videos by the owner or an admin of the same organization.
func CanView(p Principal, v *video.Video) bool {
	switch v.Visibility {
	case video.VisibilityPublic:
		return true
	case video.VisibilityOrganization:
		return p.OrganizationID == v.OrganizationID
	case video.VisibilityPrivate:
		if p.ID == v.OwnerID {
			return true
		}
		return p.IsAdmin() && p.OrganizationID == v.OrganizationID
	}
	return false
}
