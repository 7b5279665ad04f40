// Package gateway builds authenticated requests against the visitor-management
// backend and normalizes every response into a single envelope shape.
//
// The envelope is the one error-shape contract the auth and session managers
// rely on: transport failures never escape as raw errors, they come back as
// `{Success:false, Message:"Network error occurred"}` plus a coded error so
// callers branch uniformly.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"gatehouse/internal/gateway/metrics"
	"gatehouse/internal/tokenstore"
	domainerrors "gatehouse/pkg/domain-errors"
	"gatehouse/pkg/platform/circuit"
	"gatehouse/pkg/platform/sentinel"
)

// Headers attached to every backend call.
const (
	HeaderAppID      = "X-App-Id"
	HeaderServiceKey = "X-Service-Key"
	HeaderRequestID  = "X-Request-Id"
)

// Envelope is the normalized backend response shape.
type Envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// DecodeData unmarshals the envelope payload into target.
func (e *Envelope) DecodeData(target any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("envelope has no data")
	}
	if err := json.Unmarshal(e.Data, target); err != nil {
		return fmt.Errorf("decode envelope data: %w", err)
	}
	return nil
}

// FailureMessage returns the best renderable message for a failed envelope.
func (e *Envelope) FailureMessage() string {
	if e.Error != "" {
		return e.Error
	}
	return e.Message
}

// Request describes one backend call.
type Request struct {
	Method string
	Path   string
	Body   any
	// Authenticated requires stored credentials; absence fails fast with
	// TOKEN_NOT_FOUND before any network I/O.
	Authenticated bool
	// Name is the low-cardinality metrics label; defaults to Path.
	Name string
}

// Config carries the connection identity of the client.
type Config struct {
	BaseURL    string
	AppID      string
	ServiceKey string
	Timeout    time.Duration
}

// Client is the authenticated HTTP client for the backend.
type Client struct {
	cfg     Config
	http    *http.Client
	store   tokenstore.Store
	breaker *circuit.Breaker
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Client.
type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithBreaker installs a circuit breaker over transport failures.
func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// WithHTTPClient overrides the underlying http.Client, for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New constructs a Client. The store supplies bearer tokens for
// authenticated requests and is cleared when the backend rejects one.
func New(cfg Config, store tokenstore.Store, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if store == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Do executes one backend call and always returns a non-nil envelope. The
// error, when present, is coded; callers branch on domainerrors.CodeOf.
//
// Status mapping for authenticated calls: 401 clears the stored credentials
// and surfaces UNAUTHENTICATED so callers can force a full local logout.
// 429 maps to RATE_LIMITED on every call. Other non-2xx statuses come back
// as a failed envelope with a nil error; the calling manager owns the
// domain-specific code (wrong password vs expired OTP and so on).
func (c *Client) Do(ctx context.Context, req Request) (*Envelope, error) {
	name := req.Name
	if name == "" {
		name = req.Path
	}
	start := time.Now()

	env, outcome, err := c.do(ctx, req)
	c.metrics.ObserveRequest(name, outcome, time.Since(start))
	return env, err
}

func (c *Client) do(ctx context.Context, req Request) (*Envelope, string, error) {
	var bearer string
	if req.Authenticated {
		creds, err := c.store.Load(ctx)
		if errors.Is(err, sentinel.ErrNotFound) {
			return failure("authentication required"), metrics.OutcomeFailure,
				domainerrors.New(domainerrors.CodeTokenNotFound, "no stored credentials")
		}
		if err != nil {
			return failure("authentication required"), metrics.OutcomeFailure,
				domainerrors.Wrap(err, domainerrors.CodeTokenNotFound, "failed to read stored credentials")
		}
		bearer = creds.Token
	}

	if c.breaker != nil && !c.breaker.Allow() {
		return failure("Network error occurred"), metrics.OutcomeBreakerOpen,
			domainerrors.New(domainerrors.CodeNetwork, "Network error occurred")
	}

	httpReq, err := c.buildRequest(ctx, req, bearer)
	if err != nil {
		return failure("invalid request"), metrics.OutcomeFailure,
			domainerrors.Wrap(err, domainerrors.CodeInternal, "failed to build request")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if c.breaker != nil {
			if c.breaker.RecordFailure() {
				c.logger.WarnContext(ctx, "circuit breaker opened", "endpoint", req.Path)
			}
		}
		if isTimeout(ctx, err) {
			return failure("request timed out"), metrics.OutcomeTimeout,
				domainerrors.Wrap(err, domainerrors.CodeTimeout, "request timed out")
		}
		return failure("Network error occurred"), metrics.OutcomeNetworkError,
			domainerrors.Wrap(err, domainerrors.CodeNetwork, "Network error occurred")
	}
	defer resp.Body.Close()

	if c.breaker != nil {
		if c.breaker.RecordSuccess() {
			c.logger.InfoContext(ctx, "circuit breaker closed", "endpoint", req.Path)
		}
	}

	env := decodeEnvelope(resp)

	switch {
	case resp.StatusCode == http.StatusUnauthorized && req.Authenticated:
		// A rejected token must not be retried; drop it as part of this call.
		if clearErr := c.store.Clear(ctx); clearErr != nil {
			c.logger.ErrorContext(ctx, "failed to clear credentials after 401", "error", clearErr)
		}
		msg := env.FailureMessage()
		if msg == "" {
			msg = "authentication failed"
		}
		return env, metrics.OutcomeUnauthenticated,
			domainerrors.New(domainerrors.CodeUnauthenticated, msg)

	case resp.StatusCode == http.StatusTooManyRequests:
		msg := env.FailureMessage()
		if msg == "" {
			msg = "too many requests"
		}
		return env, metrics.OutcomeRateLimited,
			domainerrors.New(domainerrors.CodeRateLimited, msg)
	}

	if !env.Success {
		return env, metrics.OutcomeFailure, nil
	}
	return env, metrics.OutcomeSuccess, nil
}

func (c *Client) buildRequest(ctx context.Context, req Request, bearer string) (*http.Request, error) {
	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.cfg.BaseURL+req.Path, body)
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(HeaderAppID, c.cfg.AppID)
	httpReq.Header.Set(HeaderServiceKey, c.cfg.ServiceKey)
	httpReq.Header.Set(HeaderRequestID, uuid.NewString())
	if bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+bearer)
	}
	return httpReq, nil
}

// decodeEnvelope parses the response body, synthesizing an envelope from the
// HTTP status when the backend returned something unparseable.
func decodeEnvelope(resp *http.Response) *Envelope {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err == nil && len(data) > 0 {
		var env Envelope
		if jsonErr := json.Unmarshal(data, &env); jsonErr == nil {
			return &env
		}
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return &Envelope{Success: true}
	}
	return failure(http.StatusText(resp.StatusCode))
}

func failure(msg string) *Envelope {
	return &Envelope{Success: false, Message: msg}
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr) && urlErr.Timeout()
}
