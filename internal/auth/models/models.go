// Package models holds the client-side auth data model: the user profile,
// the observable auth state, and the server-owned session record.
package models

import "time"

// Role is the backend-assigned access level of an account.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleStaff     Role = "staff"
	RoleReception Role = "reception"
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleStaff, RoleReception, RoleAssistant, RoleUser:
		return true
	}
	return false
}

// UserProfile mirrors the profile object returned by the backend.
type UserProfile struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	FirstName     string    `json:"firstName"`
	LastName      string    `json:"lastName"`
	Role          Role      `json:"role"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`
}

// HasRole reports whether the profile carries the given role.
func (u *UserProfile) HasRole(role Role) bool {
	return u != nil && u.Role == role
}

// IsAdmin reports whether the account is an administrator.
func (u *UserProfile) IsAdmin() bool { return u.HasRole(RoleAdmin) }

// IsReception reports whether the account works the reception desk.
func (u *UserProfile) IsReception() bool { return u.HasRole(RoleReception) }

// IsEmployee reports whether the account is staff-side (anything but a plain
// visitor account).
func (u *UserProfile) IsEmployee() bool {
	if u == nil {
		return false
	}
	switch u.Role {
	case RoleAdmin, RoleStaff, RoleReception, RoleAssistant:
		return true
	}
	return false
}

// State is the process-wide observable auth state.
//
// Invariant: IsAuthenticated is true iff User != nil and a non-expired token
// is held in the token store. IsLoading is true only while an auth operation
// is in flight.
type State struct {
	User            *UserProfile
	IsAuthenticated bool
	IsLoading       bool
	Err             string
}

// Session is a server-tracked login instance. The client lists and deletes
// sessions; it never mutates them.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	IPAddress string    `json:"ipAddress"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}
