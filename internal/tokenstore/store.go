// Package tokenstore persists the bearer token and associated identity
// fields. It is pure storage: no expiry logic, no network, no state machine.
// Nothing outside this package touches persisted credentials directly.
package tokenstore

import "context"

// Field names under which credentials are persisted. Fixed so that every
// backend (file, redis) stays readable by the same client version.
const (
	FieldToken  = "token"
	FieldUserID = "userId"
	FieldRole   = "role"
)

// Credentials is the persisted client-side session state. Written on a
// successful sign-in or OTP verification, cleared atomically on logout.
type Credentials struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// Store is the persistence abstraction for credentials.
//
// Error contract: Load returns sentinel.ErrNotFound (wrapped) when no
// credentials are stored; Clear is idempotent; all backends are
// read-after-write consistent within a process.
type Store interface {
	Save(ctx context.Context, creds Credentials) error
	Load(ctx context.Context) (*Credentials, error)
	Clear(ctx context.Context) error
}
