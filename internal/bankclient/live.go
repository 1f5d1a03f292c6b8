package bankclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// refreshSkew renews the bearer token this long before it expires.
	refreshSkew      = 30 * time.Second
	defaultTokenTTL  = 1800 * time.Second
	defaultRetries   = 3
	maxResponseBytes = 4 << 20
	dateParamLayout  = "2006-01-02"
)

// LiveClient calls the VBank HTTP API. One bearer token is cached per
// client; concurrent callers needing a new token share a single auth call.
type LiveClient struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	log        *zap.SugaredLogger
	now        func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
	tokens    singleflight.Group
}

// NewLiveClient creates a LiveClient. Zero timeouts and retry settings get
// defaults.
func NewLiveClient(cfg Config, httpClient *http.Client, log *zap.SugaredLogger) *LiveClient {
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = 5 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultRetries
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 200 * time.Millisecond
	}
	if cfg.BankCode == "" {
		cfg.BankCode = ProviderVBank
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &LiveClient{
		cfg:        cfg,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		log:        log,
		now:        time.Now,
	}
}

// Provider returns the provider tag for imported rows.
func (c *LiveClient) Provider() string { return ProviderVBank }

// GetAccounts fetches every account visible to the configured credentials.
func (c *LiveClient) GetAccounts(ctx context.Context) ([]AccountRecord, error) {
	var payload accountsPayload
	if err := c.getJSON(ctx, "fetching accounts", "/accounts", nil, &payload); err != nil {
		return nil, err
	}
	return payload.records(), nil
}

// GetTransactions fetches transactions for one account, optionally bounded
// by booking date.
func (c *LiveClient) GetTransactions(ctx context.Context, accountExternalID string, from, to *time.Time) ([]TransactionRecord, error) {
	query := url.Values{}
	if from != nil {
		query.Set("dateFrom", from.Format(dateParamLayout))
	}
	if to != nil {
		query.Set("dateTo", to.Format(dateParamLayout))
	}

	var payload transactionsPayload
	path := "/accounts/" + url.PathEscape(accountExternalID) + "/transactions"
	if err := c.getJSON(ctx, "fetching transactions", path, query, &payload); err != nil {
		return nil, err
	}
	return payload.records(), nil
}

// getJSON performs an authenticated GET with retries. A 401 drops the cached
// token and the call is repeated once with a fresh one.
func (c *LiveClient) getJSON(ctx context.Context, op, path string, query url.Values, out any) error {
	err := c.withRetry(ctx, op, func() error { return c.doGet(ctx, op, path, query, out) })

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
		c.log.Infow("bank rejected cached token, re-authenticating", "op", op)
		c.invalidateToken()
		err = c.withRetry(ctx, op, func() error { return c.doGet(ctx, op, path, query, out) })
	}
	return err
}

func (c *LiveClient) doGet(ctx context.Context, op, path string, query url.Values, out any) error {
	bearer, err := c.bearerToken(ctx)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")

	body, status, err := c.do(req)
	if err != nil {
		return transportError(op, err)
	}
	if status < 200 || status >= 300 {
		return upstreamError(op, status, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return decodeError(op, err)
	}
	return nil
}

// bearerToken returns the cached token or fetches a new one.
func (c *LiveClient) bearerToken(ctx context.Context) (string, error) {
	if tok, ok := c.cachedToken(); ok {
		return tok, nil
	}

	v, err, _ := c.tokens.Do("token", func() (any, error) {
		if tok, ok := c.cachedToken(); ok {
			return tok, nil
		}
		// Detached from the first caller's cancellation since every waiter shares the result.
		tok, ttl, err := c.fetchToken(context.WithoutCancel(ctx))
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.token = tok
		c.expiresAt = c.now().Add(ttl)
		c.mu.Unlock()
		return tok, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *LiveClient) cachedToken() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.now().Before(c.expiresAt.Add(-refreshSkew)) {
		return c.token, true
	}
	return "", false
}

func (c *LiveClient) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}

func (c *LiveClient) fetchToken(ctx context.Context) (string, time.Duration, error) {
	const op = "authenticating"

	ctx, cancel := context.WithTimeout(ctx, c.cfg.AuthTimeout)
	defer cancel()

	query := url.Values{}
	query.Set("client_id", c.cfg.ClientID)
	query.Set("client_secret", c.cfg.ClientSecret)

	payload, err := json.Marshal(map[string]string{"bank": c.cfg.BankCode})
	if err != nil {
		return "", 0, fmt.Errorf("marshaling auth request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/bank-token?"+query.Encode(), bytes.NewReader(payload))
	if err != nil {
		return "", 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, status, err := c.do(req)
	if err != nil {
		apiErr := transportError(op, err)
		c.log.Errorw("bank auth request failed", "kind", apiErr.Kind.String(), "error", err)
		return "", 0, apiErr
	}
	if status < 200 || status >= 300 {
		c.log.Errorw("bank auth rejected", "status", status)
		return "", 0, upstreamError(op, status, string(body))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", 0, decodeError(op, err)
	}
	tok := firstNonEmpty(tr.AccessToken, tr.Token)
	if tok == "" {
		return "", 0, decodeError(op, errors.New("no token in response"))
	}
	ttl := defaultTokenTTL
	if tr.ExpiresIn > 0 {
		ttl = time.Duration(tr.ExpiresIn) * time.Second
	}
	return tok, ttl, nil
}

func (c *LiveClient) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

// withRetry repeats fn with exponential backoff while it fails with a
// retryable APIError.
func (c *LiveClient) withRetry(ctx context.Context, op string, fn func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.cfg.RetryBaseDelay
	policy.MaxInterval = 10 * c.cfg.RetryBaseDelay
	policy.MaxElapsedTime = 0

	attempt := func() error {
		err := fn()
		if err == nil {
			return nil
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.retryable() {
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, wait time.Duration) {
		c.log.Warnw("bank request failed, retrying", "op", op, "error", err, "wait", wait)
	}

	err := backoff.RetryNotify(attempt, backoff.WithContext(backoff.WithMaxRetries(policy, c.cfg.MaxRetries), ctx), notify)
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return transportError(op, err)
	}
	return err
}
