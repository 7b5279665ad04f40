// Package session lists and revokes the server-tracked sessions of the
// signed-in account. Every call requires stored credentials; a missing token
// is a distinct failure, never a silent no-op.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"gatehouse/internal/auth/models"
	"gatehouse/internal/gateway"
	domainerrors "gatehouse/pkg/domain-errors"
)

const (
	pathLogout    = "/api/auth/logout"
	pathLogoutAll = "/api/auth/logout-all"
	pathSessions  = "/api/auth/sessions"
)

// Gateway is the slice of the API gateway this manager needs.
type Gateway interface {
	Do(ctx context.Context, req gateway.Request) (*gateway.Envelope, error)
}

// LocalSignOut clears local credentials and auth state. Wired to the auth
// manager's ForceSignOut so session teardown and the observable state stay
// in step.
type LocalSignOut func(ctx context.Context)

// ListResult is the outcome of ListSessions. Success false comes with an
// empty slice so callers can render an empty list without nil checks.
type ListResult struct {
	Success  bool
	Sessions []models.Session
	Total    int
}

// LogoutResult reports how a logout went. Acknowledged is false when the
// backend did not confirm but the logout was still locally effective.
type LogoutResult struct {
	Acknowledged bool
	Message      string
	RevokedCount int
}

// Manager wraps the authenticated session endpoints.
type Manager struct {
	gw        Gateway
	localExit LocalSignOut
	logger    *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// New constructs a Manager. localExit is invoked whenever a logout becomes
// locally effective or the backend rejects the token.
func New(gw Gateway, localExit LocalSignOut, opts ...Option) (*Manager, error) {
	if gw == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	if localExit == nil {
		return nil, fmt.Errorf("local sign-out hook is required")
	}
	m := &Manager{gw: gw, localExit: localExit, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// LogoutCurrent ends the current session. The backend call is best-effort:
// local credentials and state are always cleared, even when the server is
// unreachable, so logout can never be observed to fail locally.
func (m *Manager) LogoutCurrent(ctx context.Context) (*LogoutResult, error) {
	env, err := m.gw.Do(ctx, gateway.Request{
		Method:        http.MethodPost,
		Path:          pathLogout,
		Authenticated: true,
		Name:          "logout",
	})
	if domainerrors.CodeOf(err) == domainerrors.CodeTokenNotFound {
		return nil, err
	}
	if err != nil {
		m.logger.WarnContext(ctx, "backend logout failed, clearing locally", "error", err)
	}

	m.localExit(ctx)
	return &LogoutResult{
		Acknowledged: err == nil && env.Success,
		Message:      env.Message,
	}, nil
}

// LogoutAllDevices revokes every session of the account. Local state is
// cleared only once the backend confirms, except for a rejected token which
// is already locally dead.
func (m *Manager) LogoutAllDevices(ctx context.Context) (*LogoutResult, error) {
	env, err := m.gw.Do(ctx, gateway.Request{
		Method:        http.MethodPost,
		Path:          pathLogoutAll,
		Authenticated: true,
		Name:          "logout_all",
	})
	if err != nil {
		if domainerrors.CodeOf(err) == domainerrors.CodeUnauthenticated {
			m.localExit(ctx)
		}
		return nil, err
	}
	if !env.Success {
		return nil, domainerrors.New(domainerrors.CodeInternal,
			failureMessage(env, "failed to log out other devices"))
	}

	var payload struct {
		RevokedCount int `json:"revokedCount"`
	}
	if len(env.Data) > 0 {
		if decodeErr := env.DecodeData(&payload); decodeErr != nil {
			m.logger.WarnContext(ctx, "malformed logout-all payload", "error", decodeErr)
		}
	}

	m.localExit(ctx)
	return &LogoutResult{
		Acknowledged: true,
		Message:      env.Message,
		RevokedCount: payload.RevokedCount,
	}, nil
}

// ListSessions returns the sessions of the current account. Backend failures
// yield {Success:false, Sessions:[]} instead of an error so UIs can render an
// empty list; only a missing token is surfaced as an error.
func (m *Manager) ListSessions(ctx context.Context) (ListResult, error) {
	empty := ListResult{Sessions: []models.Session{}}

	env, err := m.gw.Do(ctx, gateway.Request{
		Method:        http.MethodGet,
		Path:          pathSessions,
		Authenticated: true,
		Name:          "list_sessions",
	})
	if domainerrors.CodeOf(err) == domainerrors.CodeTokenNotFound {
		return empty, err
	}
	if err != nil {
		if domainerrors.CodeOf(err) == domainerrors.CodeUnauthenticated {
			m.localExit(ctx)
		}
		m.logger.WarnContext(ctx, "failed to list sessions", "error", err)
		return empty, nil
	}
	if !env.Success {
		m.logger.WarnContext(ctx, "backend refused session list", "message", env.FailureMessage())
		return empty, nil
	}

	var payload struct {
		Sessions      []models.Session `json:"sessions"`
		TotalSessions int              `json:"totalSessions"`
	}
	if decodeErr := env.DecodeData(&payload); decodeErr != nil {
		m.logger.WarnContext(ctx, "malformed session list", "error", decodeErr)
		return empty, nil
	}
	if payload.Sessions == nil {
		payload.Sessions = []models.Session{}
	}
	return ListResult{
		Success:  true,
		Sessions: payload.Sessions,
		Total:    payload.TotalSessions,
	}, nil
}

// TerminateSession revokes one session by id. Revoking the caller's own
// current session is the server's call; the local state is only dropped when
// the backend starts rejecting the token.
func (m *Manager) TerminateSession(ctx context.Context, sessionID string) (string, error) {
	if sessionID == "" {
		return "", domainerrors.New(domainerrors.CodeValidation, "session id is required")
	}

	env, err := m.gw.Do(ctx, gateway.Request{
		Method:        http.MethodDelete,
		Path:          pathSessions + "/" + sessionID,
		Authenticated: true,
		Name:          "terminate_session",
	})
	if err != nil {
		if domainerrors.CodeOf(err) == domainerrors.CodeUnauthenticated {
			m.localExit(ctx)
		}
		return "", err
	}
	if !env.Success {
		return "", domainerrors.New(domainerrors.CodeInternal,
			failureMessage(env, "failed to terminate session"))
	}
	return env.Message, nil
}

func failureMessage(env *gateway.Envelope, fallback string) string {
	if msg := env.FailureMessage(); msg != "" {
		return msg
	}
	return fallback
}
