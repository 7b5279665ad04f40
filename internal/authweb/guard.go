// Package authweb exposes the auth manager to HTTP handlers: chi route
// guards that gate on the settled auth state, a request-context carrier for
// the signed-in profile, and a channel view of state changes.
package authweb

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"gatehouse/internal/auth/models"
)

const (
	defaultLoginURL        = "/login"
	defaultUnauthorizedURL = "/unauthorized"
)

// Authenticator is the slice of the auth manager the guards need.
type Authenticator interface {
	Initialize(ctx context.Context) error
	State() models.State
	Subscribe(fn func(models.State)) func()
}

// Guard builds route middlewares on top of an Authenticator.
type Guard struct {
	auth            Authenticator
	loginURL        string
	unauthorizedURL string
	logger          *slog.Logger
}

// Option configures a Guard.
type Option func(*Guard)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) { g.logger = logger }
}

// WithLoginURL sets where unauthenticated requests are sent.
func WithLoginURL(u string) Option {
	return func(g *Guard) { g.loginURL = u }
}

// WithUnauthorizedURL sets where authenticated but under-privileged requests
// are sent.
func WithUnauthorizedURL(u string) Option {
	return func(g *Guard) { g.unauthorizedURL = u }
}

func NewGuard(auth Authenticator, opts ...Option) (*Guard, error) {
	if auth == nil {
		return nil, fmt.Errorf("authenticator is required")
	}
	g := &Guard{
		auth:            auth,
		loginURL:        defaultLoginURL,
		unauthorizedURL: defaultUnauthorizedURL,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

type contextKey struct{}

// UserFrom returns the signed-in profile a guard attached to the request
// context.
func UserFrom(ctx context.Context) (*models.UserProfile, bool) {
	user, ok := ctx.Value(contextKey{}).(*models.UserProfile)
	return user, ok && user != nil
}

// RequireAuth admits only authenticated requests. It waits for the manager to
// settle its initial state first so a slow startup does not bounce users to
// the login page, then attaches the profile to the request context.
func (g *Guard) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := g.settle(w, r)
		if !ok {
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, user)))
	})
}

// RequireRole admits only authenticated requests whose profile carries the
// given role. Admins pass every role gate.
func (g *Guard) RequireRole(role models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := g.settle(w, r)
			if !ok {
				return
			}
			if !user.HasRole(role) && !user.IsAdmin() {
				g.logger.InfoContext(r.Context(), "role gate refused request",
					"path", r.URL.Path, "required", role, "role", user.Role)
				http.Redirect(w, r, g.unauthorizedURL, http.StatusFound)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, user)))
		})
	}
}

// RequireEmployee admits any staff-side role (anything but the plain visitor
// account).
func (g *Guard) RequireEmployee(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := g.settle(w, r)
		if !ok {
			return
		}
		if !user.IsEmployee() {
			http.Redirect(w, r, g.unauthorizedURL, http.StatusFound)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, user)))
	})
}

// settle waits for the auth state and redirects to login when the request is
// not authenticated. The requested URL rides along as ?next= so the login
// flow can return the user.
func (g *Guard) settle(w http.ResponseWriter, r *http.Request) (*models.UserProfile, bool) {
	if err := g.auth.Initialize(r.Context()); err != nil {
		g.logger.WarnContext(r.Context(), "auth state unavailable", "error", err)
	}
	state := g.auth.State()
	if !state.IsAuthenticated || state.User == nil {
		g.redirectToLogin(w, r)
		return nil, false
	}
	return state.User, true
}

func (g *Guard) redirectToLogin(w http.ResponseWriter, r *http.Request) {
	target := g.loginURL + "?next=" + url.QueryEscape(r.URL.RequestURI())
	http.Redirect(w, r, target, http.StatusFound)
}

// Watch returns a channel of auth state changes. The subscription is dropped
// and the channel closed when ctx is cancelled. Slow consumers see the most
// recent states; intermediate ones may be skipped under backpressure.
func (g *Guard) Watch(ctx context.Context) <-chan models.State {
	out := make(chan models.State, 1)
	in := make(chan models.State, 16)

	unsubscribe := g.auth.Subscribe(func(st models.State) {
		select {
		case in <- st:
		case <-ctx.Done():
		}
	})

	go func() {
		defer close(out)
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case st := <-in:
				select {
				case out <- st:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
