package authweb_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"gatehouse/internal/auth"
	"gatehouse/internal/auth/models"
	"gatehouse/internal/authweb"
	"gatehouse/internal/gateway"
	"gatehouse/internal/tokenstore"
	"gatehouse/pkg/testutil"
)

type GuardSuite struct {
	suite.Suite
	backend *testutil.Backend
	store   *tokenstore.InMemoryStore
	manager *auth.Manager
	guard   *authweb.Guard
	router  chi.Router
}

func TestGuardSuite(t *testing.T) {
	suite.Run(t, new(GuardSuite))
}

func (s *GuardSuite) SetupTest() {
	s.backend = testutil.NewBackend(s.T())
	s.store = tokenstore.NewMemory()

	gw, err := gateway.New(gateway.Config{
		BaseURL:    s.backend.URL(),
		AppID:      "gatehouse-web",
		ServiceKey: "sk-test",
		Timeout:    2 * time.Second,
	}, s.store)
	s.Require().NoError(err)

	s.manager, err = auth.New(gw, s.store)
	s.Require().NoError(err)

	s.guard, err = authweb.NewGuard(s.manager)
	s.Require().NoError(err)

	okHandler := func(w http.ResponseWriter, r *http.Request) {
		user, ok := authweb.UserFrom(r.Context())
		s.Require().True(ok)
		w.Header().Set("X-User-Id", user.ID)
		w.WriteHeader(http.StatusOK)
	}

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(s.guard.RequireAuth)
		r.Get("/dashboard", okHandler)
	})
	r.Group(func(r chi.Router) {
		r.Use(s.guard.RequireRole(models.RoleReception))
		r.Get("/reception", okHandler)
	})
	r.Group(func(r chi.Router) {
		r.Use(s.guard.RequireEmployee)
		r.Get("/staff", okHandler)
	})
	s.router = r
}

func (s *GuardSuite) storeCredentials(role string) {
	err := s.store.Save(context.Background(), tokenstore.Credentials{
		Token:  "tok-guard",
		UserID: "7",
		Role:   role,
	})
	s.Require().NoError(err)
}

func (s *GuardSuite) scriptProfile(role string) {
	s.backend.Respond(http.MethodGet, "/api/auth/me", http.StatusOK, testutil.BackendEnvelope{
		Success: true,
		Data: map[string]any{
			"user": map[string]any{
				"id":    "7",
				"email": "pat@gatehouse.example",
				"role":  role,
			},
		},
	})
}

func (s *GuardSuite) TestRequireAuthRedirectsAnonymous() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/dashboard"))
	s.Equal(http.StatusFound, rr.Code)
	s.Equal("/login?next=%2Fdashboard", rr.Header().Get("Location"))
}

func (s *GuardSuite) TestRequireAuthAdmitsSignedIn() {
	s.storeCredentials("reception")
	s.scriptProfile("reception")

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/dashboard"))
	s.Equal(http.StatusOK, rr.Code)
	s.Equal("7", rr.Header().Get("X-User-Id"))
}

func (s *GuardSuite) TestRequireAuthInitializesOnce() {
	s.storeCredentials("reception")
	s.scriptProfile("reception")

	for i := 0; i < 3; i++ {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/dashboard"))
		s.Equal(http.StatusOK, rr.Code)
	}
	s.Equal(1, s.backend.CallCount(http.MethodGet, "/api/auth/me"))
}

func (s *GuardSuite) TestRequireRoleMatch() {
	s.storeCredentials("reception")
	s.scriptProfile("reception")

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/reception"))
	s.Equal(http.StatusOK, rr.Code)
}

func (s *GuardSuite) TestRequireRoleMismatchRedirects() {
	s.storeCredentials("staff")
	s.scriptProfile("staff")

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/reception"))
	s.Equal(http.StatusFound, rr.Code)
	s.Equal("/unauthorized", rr.Header().Get("Location"))
}

func (s *GuardSuite) TestAdminPassesEveryRoleGate() {
	s.storeCredentials("admin")
	s.scriptProfile("admin")

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/reception"))
	s.Equal(http.StatusOK, rr.Code)
}

func (s *GuardSuite) TestRequireEmployeeRejectsVisitorAccount() {
	s.storeCredentials("user")
	s.scriptProfile("user")

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/staff"))
	s.Equal(http.StatusFound, rr.Code)
	s.Equal("/unauthorized", rr.Header().Get("Location"))
}

func (s *GuardSuite) TestCustomRedirectTargets() {
	guard, err := authweb.NewGuard(s.manager,
		authweb.WithLoginURL("/auth/sign-in"),
		authweb.WithUnauthorizedURL("/denied"))
	s.Require().NoError(err)

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(guard.RequireAuth)
		r.Get("/private", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	rr := testutil.DoRequest(r, testutil.NewRequest(s.T(), http.MethodGet, "/private"))
	s.Equal(http.StatusFound, rr.Code)
	s.Equal("/auth/sign-in?next=%2Fprivate", rr.Header().Get("Location"))
}

func (s *GuardSuite) TestWatchDeliversStateChanges() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	states := s.guard.Watch(ctx)

	s.backend.Respond(http.MethodPost, "/api/auth/login", http.StatusOK, testutil.BackendEnvelope{
		Success: true,
		Data: map[string]any{
			"token": "tok-watch",
			"user":  map[string]any{"id": "7", "email": "pat@gatehouse.example", "role": "staff"},
		},
	})
	_, err := s.manager.SignIn(context.Background(), "pat@gatehouse.example", "correct-horse")
	s.Require().NoError(err)

	select {
	case st := <-states:
		s.True(st.IsAuthenticated)
		s.Require().NotNil(st.User)
		s.Equal("7", st.User.ID)
	case <-time.After(time.Second):
		s.Fail("no state delivered")
	}

	cancel()
	select {
	case _, open := <-states:
		s.False(open)
	case <-time.After(time.Second):
		s.Fail("channel not closed after cancel")
	}
}
