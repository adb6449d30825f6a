package validation

import "regexp"

// Scope string rules (service.resource.action):
// - Exactly three dot-separated segments.
// - service/resource: lowercase alphanumerics, may contain "_" or "-" in the
//   middle, 1..32 chars each.
// - action: one of read|write|delete|all (closed set).
//
// Examples valid: auth.user.read, auth.role.all, billing.api-key.write
// Examples invalid: auth.user, AUTH.user.read, auth..read, auth.user.create
var scopeRe = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9_-]{0,30}[a-z0-9])?\.[a-z0-9](?:[a-z0-9_-]{0,30}[a-z0-9])?\.(?:read|write|delete|all)$`)

// ValidScope returns true if s matches the service.resource.action pattern.
func ValidScope(s string) bool {
	return scopeRe.MatchString(s)
}
