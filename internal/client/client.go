package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/esignworks/signflow/internal/circuitbreaker"
	"github.com/esignworks/signflow/internal/models"
	"github.com/esignworks/signflow/internal/observability"
)

// API is the part of the DocuSign client the service layer depends on.
type API interface {
	LoginInformation(ctx context.Context) (models.LoginInformation, error)
	SetAccount(accountID string)
	AccountID() string
	CheckCredentials(ctx context.Context) error
	CreateEnvelope(ctx context.Context, envelope *models.Envelope) (string, error)
	CreateEnvelopeFromTemplate(ctx context.Context, envelope *models.Envelope) (string, error)
	EnvelopeRecipients(ctx context.Context, envelopeID string) (models.RecipientsResponse, error)
	RecipientView(ctx context.Context, req RecipientViewRequest) (string, error)
	Template(ctx context.Context, templateID string) (json.RawMessage, error)
}

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotFound           = errors.New("not found")
	ErrRateLimited        = errors.New("rate limited")
	ErrUpstreamFailure    = errors.New("upstream failure")
	ErrUnexpectedStatus   = errors.New("unexpected status")
)

// Config holds SignClient construction parameters.
type Config struct {
	RootURL       string
	Username      string
	Password      string
	IntegratorKey string
	AccountID     string
	AppToken      string
	OAuth2Token   string
	Timeout       time.Duration

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

// SignClient talks to the DocuSign REST API v2. Safe for concurrent use.
type SignClient struct {
	rootURL       string
	username      string
	password      string
	integratorKey string
	appToken      string
	oauth2Token   string
	timeout       time.Duration

	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration

	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker

	mu        sync.RWMutex
	accountID string
}

// New builds a SignClient from cfg. Either an OAuth2 token or the legacy
// username/password/integrator-key triple must be present.
func New(cfg Config) (*SignClient, error) {
	if cfg.RootURL == "" {
		return nil, fmt.Errorf("root URL is required")
	}
	if cfg.OAuth2Token == "" {
		if cfg.Username == "" || cfg.Password == "" || cfg.IntegratorKey == "" {
			return nil, fmt.Errorf("%w: OAuth2 token or username/password/integrator key required", ErrInvalidCredentials)
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 100 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 2 * time.Second
	}

	return &SignClient{
		rootURL:        strings.TrimRight(cfg.RootURL, "/"),
		username:       cfg.Username,
		password:       cfg.Password,
		integratorKey:  cfg.IntegratorKey,
		appToken:       cfg.AppToken,
		oauth2Token:    cfg.OAuth2Token,
		timeout:        cfg.Timeout,
		retryAttempts:  cfg.RetryAttempts,
		retryBaseDelay: cfg.RetryBaseDelay,
		retryMaxDelay:  cfg.RetryMaxDelay,
		accountID:      cfg.AccountID,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}, nil
}

// SetCircuitBreaker wraps every API call in cb. Call before first use.
func (c *SignClient) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.breaker = cb
}

// SetAccount sets the account ID used to build per-account request paths.
func (c *SignClient) SetAccount(accountID string) {
	c.mu.Lock()
	c.accountID = accountID
	c.mu.Unlock()
}

// AccountID returns the account ID, empty until set or resolved via LoginInformation.
func (c *SignClient) AccountID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accountID
}

// accountPath returns "/accounts/{id}", resolving the account through
// LoginInformation when it is not yet known.
func (c *SignClient) accountPath(ctx context.Context) (string, error) {
	if id := c.AccountID(); id != "" {
		return "/accounts/" + id, nil
	}
	if _, err := c.LoginInformation(ctx); err != nil {
		return "", err
	}
	return "/accounts/" + c.AccountID(), nil
}

// baseHeaders returns the headers common to all API requests. With an OAuth2
// token the bearer scheme is used and soboEmail maps to X-DocuSign-Act-As-User;
// otherwise the legacy X-DocuSign-Authentication JSON header carries the
// credentials and the optional SendOnBehalfOf field.
func (c *SignClient) baseHeaders(soboEmail string) (http.Header, error) {
	h := http.Header{}
	h.Set("Accept", "application/json")
	h.Set("Content-Type", "application/json")

	if c.oauth2Token != "" {
		h.Set("Authorization", "Bearer "+c.oauth2Token)
		if soboEmail != "" {
			h.Set("X-DocuSign-Act-As-User", soboEmail)
		}
		return h, nil
	}

	auth := map[string]string{
		"Username":      c.username,
		"Password":      c.password,
		"IntegratorKey": c.integratorKey,
	}
	if soboEmail != "" {
		auth["SendOnBehalfOf"] = soboEmail
	}
	raw, err := json.Marshal(auth)
	if err != nil {
		return nil, fmt.Errorf("marshal auth header: %w", err)
	}
	h.Set("X-DocuSign-Authentication", string(raw))
	return h, nil
}

// requestOpts shapes one API call for the request core.
type requestOpts struct {
	body         interface{} // JSON-marshalled when set
	rawBody      []byte      // used verbatim when set (multipart, uploads)
	contentType  string      // overrides Content-Type for rawBody
	headers      map[string]string
	expectStatus int // default 200
	sobo         string
}

// do performs one API call with retries, backoff and metrics. Returns the
// response body on success.
func (c *SignClient) do(ctx context.Context, operation, method, path string, opts requestOpts) ([]byte, error) {
	if opts.expectStatus == 0 {
		opts.expectStatus = http.StatusOK
	}

	var lastErr error
	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.SignAPIRetriesTotal.Inc()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.backoff(attempt)):
			}
		}

		body, err := c.doOnce(ctx, operation, method, path, opts)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("exhausted retries: %w", lastErr)
}

func (c *SignClient) doOnce(ctx context.Context, operation, method, path string, opts requestOpts) ([]byte, error) {
	if c.breaker == nil {
		return c.roundTrip(ctx, operation, method, path, opts)
	}
	var body []byte
	err := c.breaker.Call(ctx, func() error {
		var callErr error
		body, callErr = c.roundTrip(ctx, operation, method, path, opts)
		return callErr
	})
	return body, err
}

func (c *SignClient) roundTrip(ctx context.Context, operation, method, path string, opts requestOpts) ([]byte, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, method, path, opts)
	if err != nil {
		observability.RecordAPICall(operation, "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		observability.RecordAPICall(operation, "error", time.Since(start).Seconds())
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("request timeout: %w", err)
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	observability.RecordAPICall(operation, statusLabel(resp.StatusCode), time.Since(start).Seconds())

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode != opts.expectStatus {
		return nil, statusError(method, req.URL.String(), resp.StatusCode, opts.expectStatus, body)
	}
	return body, nil
}

func (c *SignClient) buildRequest(ctx context.Context, method, path string, opts requestOpts) (*http.Request, error) {
	var reader io.Reader
	switch {
	case opts.rawBody != nil:
		reader = bytes.NewReader(opts.rawBody)
	case opts.body != nil:
		raw, err := json.Marshal(opts.body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.rootURL+path, reader)
	if err != nil {
		return nil, err
	}

	headers, err := c.baseHeaders(opts.sobo)
	if err != nil {
		return nil, err
	}
	req.Header = headers
	if opts.contentType != "" {
		req.Header.Set("Content-Type", opts.contentType)
	}
	for k, v := range opts.headers {
		req.Header.Set(k, v)
	}
	if corrID := correlationIDFromContext(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}
	return req, nil
}

// statusError maps a status code mismatch onto a typed sentinel so callers
// can errors.Is, keeping method/URL/body in the message.
func statusError(method, url string, got, want int, body []byte) error {
	var kind error
	switch {
	case got == http.StatusUnauthorized:
		kind = ErrInvalidCredentials
	case got == http.StatusNotFound:
		kind = ErrNotFound
	case got == http.StatusTooManyRequests:
		kind = ErrRateLimited
	case got >= 500:
		kind = ErrUpstreamFailure
	default:
		kind = ErrUnexpectedStatus
	}
	return fmt.Errorf("%w: %s %s returned %d while expecting %d: %s",
		kind, method, url, got, want, truncateBody(body))
}

func truncateBody(body []byte) string {
	const max = 512
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamFailure) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "context deadline exceeded") ||
		strings.Contains(errStr, "connection refused")
}

func (c *SignClient) backoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}
	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func statusLabel(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "success"
	case statusCode == http.StatusTooManyRequests:
		return "rate_limited"
	case statusCode >= 400 && statusCode < 500:
		return "client_error"
	case statusCode >= 500:
		return "server_error"
	default:
		return "error"
	}
}

func correlationIDFromContext(ctx context.Context) string {
	if v := ctx.Value("correlation_id"); v != nil {
		if corrID, ok := v.(string); ok {
			return corrID
		}
	}
	return ""
}

// LoginInformation calls GET /login_information and remembers the first
// account's ID for subsequent per-account paths.
func (c *SignClient) LoginInformation(ctx context.Context) (models.LoginInformation, error) {
	body, err := c.do(ctx, "loginInformation", http.MethodGet, "/login_information", requestOpts{})
	if err != nil {
		return models.LoginInformation{}, err
	}
	var info models.LoginInformation
	if err := json.Unmarshal(body, &info); err != nil {
		return models.LoginInformation{}, fmt.Errorf("parse login information: %w", err)
	}
	if len(info.LoginAccounts) == 0 {
		return models.LoginInformation{}, fmt.Errorf("%w: login information has no accounts", ErrUnexpectedStatus)
	}
	c.SetAccount(info.LoginAccounts[0].AccountID)
	return info, nil
}

// CheckCredentials verifies the configured credentials against the API.
// Used by the health endpoint.
func (c *SignClient) CheckCredentials(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := c.LoginInformation(ctx)
	return err
}
