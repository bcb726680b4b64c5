package auth

// Package auth contains domain-level types for authentication and sessions.
// It is pure and free of framework/adapter concerns.

import "slices"

// Permission is a single resource/action grant from the backend RBAC model.
type Permission struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

// Role is a named RBAC role assigned to a user.
type Role struct {
	ID           string `json:"id,omitempty"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	IsSystemRole bool   `json:"is_system_role,omitempty"`
}

// UserProfile is the cached copy of the authenticated user.
// It may be stale relative to the server and is only used for UI gating.
type UserProfile struct {
	ID          string       `json:"id"`
	Email       string       `json:"email"`
	Name        string       `json:"naam,omitempty"`
	LegacyRole  string       `json:"rol,omitempty"`
	Active      bool         `json:"is_actief,omitempty"`
	Permissions []Permission `json:"permissions"`
	Roles       []Role       `json:"roles,omitempty"`
}

// HasPermission reports whether the cached profile carries the resource/action grant.
func (u UserProfile) HasPermission(resource, action string) bool {
	return slices.ContainsFunc(u.Permissions, func(p Permission) bool {
		return p.Resource == resource && p.Action == action
	})
}

// IsAdmin returns true for admin:access.
func (u UserProfile) IsAdmin() bool { return u.HasPermission("admin", "access") }

// IsStaff returns true for staff:access or any admin.
func (u UserProfile) IsStaff() bool { return u.HasPermission("staff", "access") || u.IsAdmin() }

// RoleNames returns the names of all assigned roles.
func (u UserProfile) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, r.Name)
	}
	return names
}

// HasRole reports whether a role with the given name is assigned.
func (u UserProfile) HasRole(name string) bool {
	return slices.Contains(u.RoleNames(), name)
}

// TokenPair is an access token together with the refresh token issued alongside it.
// The two are only ever stored and replaced together.
type TokenPair struct {
	AccessToken  string `json:"token"`
	RefreshToken string `json:"refresh_token"`
}

// Valid returns true if both halves are present.
func (p TokenPair) Valid() bool { return p.AccessToken != "" && p.RefreshToken != "" }

// Session is the persisted client session: one token pair plus the cached user.
type Session struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	User         UserProfile `json:"user"`
}

// Tokens returns the session's token pair.
func (s Session) Tokens() TokenPair {
	return TokenPair{AccessToken: s.AccessToken, RefreshToken: s.RefreshToken}
}

// WithTokens returns a copy of the session with both tokens replaced.
func (s Session) WithTokens(p TokenPair) Session {
	s.AccessToken = p.AccessToken
	s.RefreshToken = p.RefreshToken
	return s
}

// IsZero returns true if the session carries no tokens.
func (s Session) IsZero() bool { return s.AccessToken == "" && s.RefreshToken == "" }
