// Package apiclient talks to the skill progression API. It implements the
// TreeSource, ProgressStore and ItemSource interfaces so the controller never
// sees HTTP.
package apiclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/skilltree/api/schemas"
	"github.com/xkilldash9x/skilltree/internal/config"
)

// API routes.
const (
	PathSkillTree     = "/api/skill-tree"
	PathSkillProgress = "/api/skill-progress"
	PathItem          = "/api/item/"

	HeaderRequestID = "X-Request-ID"
	HeaderPlayerID  = "X-Player-ID"
)

const defaultMaxRetryElapsed = 30 * time.Second

// maxErrorBody bounds how much of a failed response is read.
const maxErrorBody = 64 << 10

// ErrNotFound is matched by APIErrors with a 404 status.
var ErrNotFound = errors.New("apiclient: resource not found")

// APIError is a non-2xx response.
type APIError struct {
	Method    string
	Path      string
	Status    int
	Code      string
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.Path, e.Status, e.Code, msg)
	}
	return fmt.Sprintf("%s %s: %d: %s", e.Method, e.Path, e.Status, msg)
}

func (e *APIError) Unwrap() error {
	if e.Status == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

// Temporary reports whether the request may succeed if repeated.
func (e *APIError) Temporary() bool {
	switch e.Status {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Client is safe for concurrent use.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	limiter    *rate.Limiter
	token      string
	playerID   string
	newBackOff func() backoff.BackOff
	logger     *zap.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithBackOff replaces the retry policy used for GET requests.
func WithBackOff(factory func() backoff.BackOff) Option {
	return func(c *Client) { c.newBackOff = factory }
}

// New builds a Client for cfg.BaseURL. httpClient may be nil.
func New(cfg config.APIConfig, httpClient *http.Client, logger *zap.Logger, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("apiclient: api.base_url is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("apiclient: invalid base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("apiclient: unsupported base url scheme %q", base.Scheme)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	maxElapsed := cfg.MaxRetryElapsed
	if maxElapsed <= 0 {
		// Zero disables the elapsed limit in backoff, which would retry forever.
		maxElapsed = defaultMaxRetryElapsed
	}
	c := &Client{
		baseURL:    base,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, burst),
		token:      cfg.Token,
		playerID:   cfg.PlayerID,
		logger:     logger.Named("apiclient"),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			b.MaxElapsedTime = maxElapsed
			return b
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FetchTree implements schemas.TreeSource.
func (c *Client) FetchTree(ctx context.Context) (schemas.SkillTreeData, error) {
	var tree schemas.SkillTreeData
	if err := c.do(ctx, http.MethodGet, PathSkillTree, nil, &tree); err != nil {
		return schemas.SkillTreeData{}, fmt.Errorf("failed to fetch skill tree: %w", err)
	}
	return tree, nil
}

// LoadProgress implements schemas.ProgressStore.
func (c *Client) LoadProgress(ctx context.Context) (schemas.PlayerProgress, error) {
	var progress schemas.PlayerProgress
	if err := c.do(ctx, http.MethodGet, PathSkillProgress, nil, &progress); err != nil {
		return schemas.PlayerProgress{}, fmt.Errorf("failed to load progress: %w", err)
	}
	progress.Normalize()
	return progress, nil
}

// SaveProgress implements schemas.ProgressStore. The whole record is posted
// and the stored record is returned. Saves are never retried: a save that
// times out may still have been applied.
func (c *Client) SaveProgress(ctx context.Context, progress schemas.PlayerProgress) (schemas.PlayerProgress, error) {
	var saved schemas.PlayerProgress
	if err := c.do(ctx, http.MethodPost, PathSkillProgress, progress, &saved); err != nil {
		return schemas.PlayerProgress{}, fmt.Errorf("failed to save progress: %w", err)
	}
	saved.Normalize()
	return saved, nil
}

// FetchItem implements schemas.ItemSource.
func (c *Client) FetchItem(ctx context.Context, id string) (schemas.Item, error) {
	if id == "" {
		return schemas.Item{}, errors.New("item id is required")
	}
	var item schemas.Item
	if err := c.do(ctx, http.MethodGet, PathItem+url.PathEscape(id), nil, &item); err != nil {
		return schemas.Item{}, fmt.Errorf("failed to fetch item %q: %w", id, err)
	}
	return item, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = schemas.JSON.Marshal(in); err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	requestID := uuid.NewString()
	logger := c.logger.With(zap.String("request_id", requestID), zap.String("method", method), zap.String("path", path))
	endpoint := c.baseURL.String() + path

	attempt := 0
	operation := func() error {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		var body io.Reader = http.NoBody
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to build request: %w", err))
		}
		c.setHeaders(req, requestID, payload != nil)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		defer resp.Body.Close()

		logger.Debug("API response received.", zap.Int("status", resp.StatusCode), zap.Int("attempt", attempt))
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return c.handleAPIError(req, resp, requestID)
		}
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := schemas.JSON.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response body: %w", err))
		}
		return nil
	}

	var policy backoff.BackOff = &backoff.StopBackOff{}
	if method == http.MethodGet {
		policy = c.newBackOff()
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("API request failed, retrying.", zap.Error(err), zap.Duration("wait", wait))
	}
	if err := backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), notify); err != nil {
		logger.Debug("API request failed.", zap.Error(err), zap.Int("attempts", attempt))
		return err
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request, requestID string, hasBody bool) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "skilltree-client")
	req.Header.Set(HeaderRequestID, requestID)
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.playerID != "" {
		req.Header.Set(HeaderPlayerID, c.playerID)
	}
}

// handleAPIError turns a failed response into an APIError. Transient statuses
// are left retryable, everything else is permanent.
func (c *Client) handleAPIError(req *http.Request, resp *http.Response, requestID string) error {
	apiErr := &APIError{
		Method:    req.Method,
		Path:      req.URL.Path,
		Status:    resp.StatusCode,
		RequestID: requestID,
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var envelope schemas.ErrorEnvelope
	if len(raw) > 0 && schemas.JSON.Unmarshal(raw, &envelope) == nil {
		apiErr.Code = envelope.Code
		apiErr.Message = envelope.Error
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}

	if apiErr.Temporary() {
		return apiErr
	}
	return backoff.Permanent(apiErr)
}
