// Package auth implements the client-side authentication state machine: a
// single observable auth state plus the sign-in, OTP, password and sign-out
// flows against the backend.
package auth

//go:generate mockgen -source=manager.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"gatehouse/internal/auth/metrics"
	"gatehouse/internal/auth/models"
	"gatehouse/internal/gateway"
	"gatehouse/internal/tokenstore"
	domainerrors "gatehouse/pkg/domain-errors"
	"gatehouse/pkg/platform/sentinel"
)

// Backend endpoints owned by this package.
const (
	pathLogin                = "/api/auth/login"
	pathVerifyOTP            = "/api/auth/verify-otp"
	pathSignup               = "/api/auth/signup"
	pathLogout               = "/api/auth/logout"
	pathProfile              = "/api/auth/me"
	pathChangePassword       = "/api/auth/change-password"
	pathPasswordResetRequest = "/api/auth/password-reset/request"
	pathPasswordResetVerify  = "/api/auth/password-reset/verify"
	pathPasswordResetConfirm = "/api/auth/password-reset/confirm"
)

// Gateway is the slice of the API gateway the manager needs.
type Gateway interface {
	Do(ctx context.Context, req gateway.Request) (*gateway.Envelope, error)
}

// TokenStore is the credential persistence seam (see internal/tokenstore).
type TokenStore interface {
	Save(ctx context.Context, creds tokenstore.Credentials) error
	Load(ctx context.Context) (*tokenstore.Credentials, error)
	Clear(ctx context.Context) error
}

// SignInResult is the outcome of a SignIn call. Exactly one of User and
// OTPRequired is meaningful: OTPRequired means the backend deferred token
// issuance and the caller must collect a code.
type SignInResult struct {
	User        *models.UserProfile
	OTPRequired bool
}

// SignUpParams carries the fields of a registration request.
type SignUpParams struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// Manager owns the process-wide auth state. It is a constructed service
// object, not a package singleton: tests build isolated instances.
//
// Concurrency policy: mutating operations (SignIn, VerifyOTP, SignOut,
// ChangePassword) are serialized; a second mutating call while one is in
// flight is rejected with OPERATION_IN_FLIGHT. Subscribers are therefore
// notified in operation settle order, exactly once per operation, with the
// settled state only.
type Manager struct {
	gw      Gateway
	store   TokenStore
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu          sync.Mutex
	state       models.State
	subs        map[int]func(models.State)
	nextSubID   int
	initialized bool
	opInFlight  bool

	initGroup singleflight.Group
}

// Option configures a Manager.
type Option func(*Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

func WithMetrics(mx *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mx }
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New constructs a Manager. The state starts as loading until Initialize
// settles it.
func New(gw Gateway, store TokenStore, opts ...Option) (*Manager, error) {
	if gw == nil {
		return nil, errors.New("gateway is required")
	}
	if store == nil {
		return nil, errors.New("token store is required")
	}
	m := &Manager{
		gw:     gw,
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
		state:  models.State{IsLoading: true},
		subs:   make(map[int]func(models.State)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// State returns a snapshot of the current auth state.
func (m *Manager) State() models.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers fn for state notifications and returns its
// unsubscribe function. Unsubscribing removes exactly this registration.
func (m *Manager) Subscribe(fn func(models.State)) func() {
	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// Close drops all subscribers. The manager must not be used afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	m.subs = make(map[int]func(models.State))
	m.mu.Unlock()
}

// notifyLocked snapshots state and subscribers under m.mu, then invokes the
// callbacks outside the lock so a subscriber may call back into the manager.
func (m *Manager) settle(mutate func(*models.State)) {
	m.mu.Lock()
	if mutate != nil {
		mutate(&m.state)
	}
	m.state.IsLoading = false
	m.opInFlight = false
	state := m.state
	fns := make([]func(models.State), 0, len(m.subs))
	ids := make([]int, 0, len(m.subs))
	for id := range m.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, m.subs[id])
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}

// beginOp rejects overlapping mutating operations and flips IsLoading.
func (m *Manager) beginOp() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.opInFlight {
		return domainerrors.New(domainerrors.CodeOperationInFlight,
			"another auth operation is in flight")
	}
	m.opInFlight = true
	m.state.IsLoading = true
	return nil
}

// Initialize hydrates auth state from the token store. It is idempotent:
// repeated calls after the first settle are no-ops and fire no extra
// notifications; concurrent calls collapse into one hydration.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	if m.initialized {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	_, err, _ := m.initGroup.Do("initialize", func() (any, error) {
		m.mu.Lock()
		if m.initialized {
			m.mu.Unlock()
			return nil, nil
		}
		m.mu.Unlock()
		return nil, m.initialize(ctx)
	})
	return err
}

func (m *Manager) initialize(ctx context.Context) error {
	start := m.now()
	defer func() { m.metrics.ObserveOperation("initialize", m.now().Sub(start)) }()

	settleSignedOut := func() {
		m.mu.Lock()
		m.initialized = true
		m.mu.Unlock()
		m.settle(func(st *models.State) {
			st.User = nil
			st.IsAuthenticated = false
			st.Err = ""
		})
	}

	creds, err := m.store.Load(ctx)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			m.logger.WarnContext(ctx, "failed to read stored credentials", "error", err)
		}
		settleSignedOut()
		return nil
	}

	if tokenExpired(creds.Token, m.now()) {
		if err := m.store.Clear(ctx); err != nil {
			m.logger.ErrorContext(ctx, "failed to clear expired credentials", "error", err)
		}
		settleSignedOut()
		return nil
	}

	// Token looks live: treat as authenticated and hydrate the profile.
	user, err := m.fetchProfile(ctx)
	if err != nil {
		code := domainerrors.CodeOf(err)
		if code == domainerrors.CodeUnauthenticated || code == domainerrors.CodeTokenNotFound {
			// The backend rejected the token; the gateway already cleared it.
			settleSignedOut()
			return nil
		}
		// Transient failure: stay authenticated on the minimal profile the
		// store can reconstruct; a later fetch fills in the rest.
		m.logger.WarnContext(ctx, "profile hydration failed, using stored identity",
			"error", err, "user_id", creds.UserID)
		user = &models.UserProfile{ID: creds.UserID, Role: models.Role(creds.Role)}
	}

	m.mu.Lock()
	m.initialized = true
	m.mu.Unlock()
	m.settle(func(st *models.State) {
		st.User = user
		st.IsAuthenticated = true
		st.Err = ""
	})
	return nil
}

func (m *Manager) fetchProfile(ctx context.Context) (*models.UserProfile, error) {
	env, err := m.gw.Do(ctx, gateway.Request{
		Method:        http.MethodGet,
		Path:          pathProfile,
		Authenticated: true,
		Name:          "profile",
	})
	if err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, domainerrors.New(domainerrors.CodeInternal, env.FailureMessage())
	}
	var payload struct {
		User *models.UserProfile `json:"user"`
	}
	if err := env.DecodeData(&payload); err != nil || payload.User == nil {
		return nil, domainerrors.New(domainerrors.CodeInternal, "malformed profile response")
	}
	return payload.User, nil
}

// sessionPayload is the token-issuing response shape shared by login and
// OTP verification.
type sessionPayload struct {
	Token       string              `json:"token"`
	User        *models.UserProfile `json:"user"`
	OTPRequired bool                `json:"otpRequired"`
}

// SignIn authenticates with email and password. Three outcomes: direct
// success (credentials stored, state authenticated), OTP required (no token
// yet, state unchanged), or a coded failure with the state error set.
func (m *Manager) SignIn(ctx context.Context, email, password string) (*SignInResult, error) {
	// The guard comes first: a validation failure must settle only its own
	// operation, never release one already in flight.
	if err := m.beginOp(); err != nil {
		return nil, err
	}
	if err := validateEmail(email); err != nil {
		m.settleError(err)
		return nil, err
	}
	if password == "" {
		err := domainerrors.New(domainerrors.CodeValidation, "password is required")
		m.settleError(err)
		return nil, err
	}
	start := m.now()
	defer func() { m.metrics.ObserveOperation("sign_in", m.now().Sub(start)) }()

	env, err := m.gw.Do(ctx, gateway.Request{
		Method: http.MethodPost,
		Path:   pathLogin,
		Body:   map[string]string{"email": email, "password": password},
		Name:   "login",
	})
	if err != nil {
		m.metrics.ObserveSignIn(metrics.OutcomeFailure)
		m.settleError(err)
		return nil, err
	}
	if !env.Success {
		err := domainerrors.New(domainerrors.CodeInvalidCredentials, failureMessage(env, "invalid email or password"))
		m.metrics.ObserveSignIn(metrics.OutcomeFailure)
		m.settleError(err)
		return nil, err
	}

	var payload sessionPayload
	if decodeErr := env.DecodeData(&payload); decodeErr != nil {
		err := domainerrors.Wrap(decodeErr, domainerrors.CodeInternal, "malformed login response")
		m.metrics.ObserveSignIn(metrics.OutcomeFailure)
		m.settleError(err)
		return nil, err
	}

	if payload.OTPRequired {
		// No token was issued; stay unauthenticated while the UI collects
		// the emailed code.
		m.metrics.ObserveSignIn(metrics.OutcomeOTPRequired)
		m.settle(func(st *models.State) { st.Err = "" })
		return &SignInResult{OTPRequired: true}, nil
	}

	user, err := m.adoptSession(ctx, &payload)
	if err != nil {
		m.metrics.ObserveSignIn(metrics.OutcomeFailure)
		m.settleError(err)
		return nil, err
	}
	m.metrics.ObserveSignIn(metrics.OutcomeSuccess)
	m.logger.InfoContext(ctx, "signed in", "user_id", user.ID, "role", user.Role)
	return &SignInResult{User: user}, nil
}

// VerifyOTP exchanges the emailed code for a token after an OTP-required
// sign-in. A wrong or expired code leaves the state unauthenticated; the
// caller may retry without re-entering the password.
func (m *Manager) VerifyOTP(ctx context.Context, email, code string) (*models.UserProfile, error) {
	if err := m.beginOp(); err != nil {
		return nil, err
	}
	if err := validateEmail(email); err != nil {
		m.settleError(err)
		return nil, err
	}
	if err := validateOTPCode(code); err != nil {
		m.settleError(err)
		return nil, err
	}
	start := m.now()
	defer func() { m.metrics.ObserveOperation("verify_otp", m.now().Sub(start)) }()

	env, err := m.gw.Do(ctx, gateway.Request{
		Method: http.MethodPost,
		Path:   pathVerifyOTP,
		Body:   map[string]string{"email": email, "otpCode": code},
		Name:   "verify_otp",
	})
	if err != nil {
		m.metrics.ObserveOTPVerification(metrics.OutcomeFailure)
		m.settleError(err)
		return nil, err
	}
	if !env.Success {
		err := domainerrors.New(domainerrors.CodeOTPInvalid, failureMessage(env, "invalid or expired code"))
		m.metrics.ObserveOTPVerification(metrics.OutcomeFailure)
		m.settleError(err)
		return nil, err
	}

	var payload sessionPayload
	if decodeErr := env.DecodeData(&payload); decodeErr != nil {
		err := domainerrors.Wrap(decodeErr, domainerrors.CodeInternal, "malformed verification response")
		m.metrics.ObserveOTPVerification(metrics.OutcomeFailure)
		m.settleError(err)
		return nil, err
	}

	user, err := m.adoptSession(ctx, &payload)
	if err != nil {
		m.metrics.ObserveOTPVerification(metrics.OutcomeFailure)
		m.settleError(err)
		return nil, err
	}
	m.metrics.ObserveOTPVerification(metrics.OutcomeSuccess)
	m.logger.InfoContext(ctx, "otp verified", "user_id", user.ID, "role", user.Role)
	return user, nil
}

// adoptSession stores the issued token and settles the state authenticated.
func (m *Manager) adoptSession(ctx context.Context, payload *sessionPayload) (*models.UserProfile, error) {
	if payload.Token == "" || payload.User == nil {
		return nil, domainerrors.New(domainerrors.CodeInternal, "backend returned no session")
	}
	err := m.store.Save(ctx, tokenstore.Credentials{
		Token:  payload.Token,
		UserID: payload.User.ID,
		Role:   string(payload.User.Role),
	})
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "failed to persist credentials")
	}

	user := payload.User
	m.mu.Lock()
	m.initialized = true
	m.mu.Unlock()
	m.settle(func(st *models.State) {
		st.User = user
		st.IsAuthenticated = true
		st.Err = ""
	})
	return user, nil
}

// SignOut ends the session. The backend call is best-effort: local
// credentials are cleared and the state reset even when the network fails,
// so a logout never leaves a usable token behind.
func (m *Manager) SignOut(ctx context.Context) error {
	if err := m.beginOp(); err != nil {
		return err
	}
	start := m.now()
	defer func() { m.metrics.ObserveOperation("sign_out", m.now().Sub(start)) }()

	if _, err := m.gw.Do(ctx, gateway.Request{
		Method:        http.MethodPost,
		Path:          pathLogout,
		Authenticated: true,
		Name:          "logout",
	}); err != nil {
		m.logger.WarnContext(ctx, "backend logout failed, clearing locally", "error", err)
	}

	clearErr := m.store.Clear(ctx)
	m.settle(func(st *models.State) {
		st.User = nil
		st.IsAuthenticated = false
		st.Err = ""
	})
	m.metrics.ObserveSignOut()

	if clearErr != nil {
		return domainerrors.Wrap(clearErr, domainerrors.CodeInternal, "failed to clear credentials")
	}
	return nil
}

// ForceSignOut clears local credentials and state without a backend call.
// Session teardown paths use it after the backend already rejected or
// revoked the token.
func (m *Manager) ForceSignOut(ctx context.Context) {
	if err := m.store.Clear(ctx); err != nil {
		m.logger.ErrorContext(ctx, "failed to clear credentials", "error", err)
	}
	m.settle(func(st *models.State) {
		st.User = nil
		st.IsAuthenticated = false
		st.Err = ""
	})
	m.metrics.ObserveSignOut()
}

// SignUp registers a new account. It never authenticates: the backend sends
// a verification code by email and the account signs in afterwards.
func (m *Manager) SignUp(ctx context.Context, params SignUpParams) (string, error) {
	if err := validateEmail(params.Email); err != nil {
		return "", err
	}
	if err := validatePassword(params.Password); err != nil {
		return "", err
	}
	if err := validateName("first name", params.FirstName); err != nil {
		return "", err
	}
	if err := validateName("last name", params.LastName); err != nil {
		return "", err
	}

	env, err := m.gw.Do(ctx, gateway.Request{
		Method: http.MethodPost,
		Path:   pathSignup,
		Body:   params,
		Name:   "signup",
	})
	if err != nil {
		return "", err
	}
	if !env.Success {
		return "", domainerrors.New(domainerrors.CodeValidation, failureMessage(env, "registration failed"))
	}
	return env.Message, nil
}

// RequestPasswordReset asks the backend to email a reset code. Stateless:
// the live session, if any, is untouched.
func (m *Manager) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	if err := validateEmail(email); err != nil {
		return "", err
	}
	env, err := m.gw.Do(ctx, gateway.Request{
		Method: http.MethodPost,
		Path:   pathPasswordResetRequest,
		Body:   map[string]string{"email": email},
		Name:   "password_reset_request",
	})
	if err != nil {
		return "", err
	}
	if !env.Success {
		return "", domainerrors.New(domainerrors.CodeInternal, failureMessage(env, "could not request password reset"))
	}
	return env.Message, nil
}

// VerifyPasswordResetOTP validates a reset code without changing the
// password yet.
func (m *Manager) VerifyPasswordResetOTP(ctx context.Context, email, code string) (string, error) {
	if err := validateEmail(email); err != nil {
		return "", err
	}
	if err := validateOTPCode(code); err != nil {
		return "", err
	}
	env, err := m.gw.Do(ctx, gateway.Request{
		Method: http.MethodPost,
		Path:   pathPasswordResetVerify,
		Body:   map[string]string{"email": email, "otpCode": code},
		Name:   "password_reset_verify",
	})
	if err != nil {
		return "", err
	}
	if !env.Success {
		return "", domainerrors.New(domainerrors.CodeOTPInvalid, failureMessage(env, "invalid or expired code"))
	}
	return env.Message, nil
}

// ConfirmPasswordReset applies the new password. The backend requires the
// same code it validated in the verify step.
func (m *Manager) ConfirmPasswordReset(ctx context.Context, email, code, newPassword string) (string, error) {
	if err := validateEmail(email); err != nil {
		return "", err
	}
	if err := validateOTPCode(code); err != nil {
		return "", err
	}
	if err := validatePassword(newPassword); err != nil {
		return "", err
	}
	env, err := m.gw.Do(ctx, gateway.Request{
		Method: http.MethodPost,
		Path:   pathPasswordResetConfirm,
		Body:   map[string]string{"email": email, "otpCode": code, "newPassword": newPassword},
		Name:   "password_reset_confirm",
	})
	if err != nil {
		return "", err
	}
	if !env.Success {
		return "", domainerrors.New(domainerrors.CodeOTPInvalid, failureMessage(env, "password reset failed"))
	}
	return env.Message, nil
}

// ChangePassword updates the password of the signed-in account. Requires a
// stored token; the gateway fails fast with TOKEN_NOT_FOUND when none is
// held. A 401 means the token was rejected: the gateway has cleared it and
// the manager resets the local state.
func (m *Manager) ChangePassword(ctx context.Context, current, next string) (string, error) {
	if err := validatePassword(next); err != nil {
		return "", err
	}
	if err := m.beginOp(); err != nil {
		return "", err
	}
	start := m.now()
	defer func() { m.metrics.ObserveOperation("change_password", m.now().Sub(start)) }()

	env, err := m.gw.Do(ctx, gateway.Request{
		Method:        http.MethodPost,
		Path:          pathChangePassword,
		Body:          map[string]string{"currentPassword": current, "newPassword": next},
		Authenticated: true,
		Name:          "change_password",
	})
	if err != nil {
		if domainerrors.CodeOf(err) == domainerrors.CodeUnauthenticated {
			m.settle(func(st *models.State) {
				st.User = nil
				st.IsAuthenticated = false
				st.Err = domainerrors.MessageOf(err)
			})
			return "", err
		}
		m.settleError(err)
		return "", err
	}
	if !env.Success {
		err := domainerrors.New(domainerrors.CodeInvalidCredentials, failureMessage(env, "current password is incorrect"))
		m.settleError(err)
		return "", err
	}
	m.settle(func(st *models.State) { st.Err = "" })
	return env.Message, nil
}

// settleError records the failure on the state and notifies subscribers
// exactly once, with loading reset.
func (m *Manager) settleError(err error) {
	m.settle(func(st *models.State) {
		st.Err = domainerrors.MessageOf(err)
	})
}

func failureMessage(env *gateway.Envelope, fallback string) string {
	if msg := env.FailureMessage(); msg != "" {
		return msg
	}
	return fallback
}
