// Package shared holds cross-cutting types and helpers used by every
// transport and domain package: the authenticated principal, its context
// plumbing, and the per-key mutex serializing room mutations.
package shared

import "slices"

// Principal is the identity recovered from a verified token. It lives for
// one request or one connection and is never persisted.
type Principal struct {
	Subject     string
	Authorities []string
}

// HasAuthority reports whether the principal carries the given role label.
func (p *Principal) HasAuthority(role string) bool {
	return p != nil && slices.Contains(p.Authorities, role)
}
