package auth

// Scopes understood by the streak API.
const (
	ScopeActivityWrite = "activity:write"
	ScopeActivityRead  = "activity:read"
	ScopeGroupsWrite   = "groups:write"
)

// AllScopes lists every scope, in the order operators usually grant them.
var AllScopes = []string{ScopeActivityRead, ScopeActivityWrite, ScopeGroupsWrite}
