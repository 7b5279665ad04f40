package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and transport layers return
// these (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrExpired: token/session/code has expired
// - ErrConflict: concurrent modification detected
// - ErrUnavailable: service or resource temporarily unavailable
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrExpired     = errors.New("expired")
	ErrUnavailable = errors.New("unavailable")
)
