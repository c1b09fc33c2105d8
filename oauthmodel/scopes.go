package oauthmodel

import "strings"

// ScopeOpenID marks an OpenID Connect request; its presence on a user grant
// causes an ID token to be issued alongside the access token.
const ScopeOpenID = "openid"

// SplitScopes splits a space separated scope string into individual scopes,
// dropping empty entries.
func SplitScopes(scope string) []string {
	return strings.Fields(scope)
}

// JoinScopes renders scopes back into the space separated wire format.
func JoinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}

// ScopeSubset reports whether every requested scope appears in allowed.
// An empty requested list is trivially a subset.
func ScopeSubset(requested, allowed []string) bool {
	for _, scope := range requested {
		if !containsScope(allowed, scope) {
			return false
		}
	}
	return true
}

// MergeScopes unions two scope lists, preserving the order of first
// appearance. Used when consent approvals accumulate across requests.
func MergeScopes(existing, added []string) []string {
	merged := make([]string, 0, len(existing)+len(added))
	merged = append(merged, existing...)
	for _, scope := range added {
		if !containsScope(merged, scope) {
			merged = append(merged, scope)
		}
	}
	return merged
}

// MissingScopes returns the requested scopes not present in approved,
// preserving request order.
func MissingScopes(requested, approved []string) []string {
	var missing []string
	for _, scope := range requested {
		if !containsScope(approved, scope) {
			missing = append(missing, scope)
		}
	}
	return missing
}

// IntersectScopes returns the requested scopes that also appear in allowed,
// preserving request order.
func IntersectScopes(requested, allowed []string) []string {
	var kept []string
	for _, scope := range requested {
		if containsScope(allowed, scope) {
			kept = append(kept, scope)
		}
	}
	return kept
}

func containsScope(scopes []string, scope string) bool {
	for _, s := range scopes {
		if s == scope {
			return true
		}
	}
	return false
}
