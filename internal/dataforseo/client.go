// Package dataforseo implements the authenticated client for the DataForSEO
// v3 API. Every endpoint funnels through a single invoke path that applies
// caching, sliding-window rate limiting and retry with exponential backoff.
package dataforseo

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/seoforge/orchestrator/internal/cache"
	"github.com/seoforge/orchestrator/internal/config"
	"github.com/seoforge/orchestrator/internal/ratelimit"
)

// Response is the decoded API envelope. Raw preserves the exact bytes so
// cached responses round-trip byte-identically.
type Response struct {
	StatusCode    int     `json:"status_code"`
	StatusMessage string  `json:"status_message"`
	Cost          float64 `json:"cost"`
	Tasks         []Task  `json:"tasks"`

	FromCache bool   `json:"-"`
	Raw       []byte `json:"-"`
}

type Task struct {
	ID            string          `json:"id"`
	StatusCode    int             `json:"status_code"`
	StatusMessage string          `json:"status_message"`
	Result        json.RawMessage `json:"result"`
}

type Client struct {
	baseURL  string
	username string
	password string
	location string
	language string

	httpClient *http.Client
	limiter    *ratelimit.Limiter
	store      cache.Store
	logger     *zap.Logger

	maxRetries  int
	backoffBase time.Duration
	cacheTTL    time.Duration
}

func New(cfg config.DataForSEOConfig, ttl time.Duration, store cache.Store, logger *zap.Logger) (*Client, error) {
	if cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("dataforseo: credentials are required")
	}
	window := config.ParseDuration(cfg.RateWindow, time.Minute)
	timeout := config.ParseDuration(cfg.RequestTimeout, 30*time.Second)
	backoff := config.ParseDuration(cfg.BackoffBase, time.Second)
	if store == nil {
		store = cache.Disabled{}
	}
	return &Client{
		baseURL:     cfg.BaseURL,
		username:    cfg.Username,
		password:    cfg.Password,
		location:    cfg.Location,
		language:    cfg.Language,
		httpClient:  &http.Client{Timeout: timeout},
		limiter:     ratelimit.New(cfg.RateLimit, window),
		store:       store,
		logger:      logger,
		maxRetries:  cfg.MaxRetries,
		backoffBase: backoff,
		cacheTTL:    ttl,
	}, nil
}

// Limiter exposes the limiter for diagnostics and backpressure signaling.
func (c *Client) Limiter() *ratelimit.Limiter {
	return c.limiter
}

// invoke performs one logical API call. Cache hits consume no limiter slot
// and make no network call.
func (c *Client) invoke(ctx context.Context, endpoint string, payload any, ttl time.Duration) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("dataforseo: encode payload: %w", err)
	}
	key := cacheKey(endpoint, body)

	if ttl > 0 {
		if raw, ok, err := c.store.Get(ctx, key); err != nil {
			c.logger.Warn("cache read failed", zap.String("endpoint", endpoint), zap.Error(err))
		} else if ok {
			resp, err := decode(raw)
			if err == nil {
				resp.FromCache = true
				return resp, nil
			}
			c.logger.Warn("cache entry undecodable, refetching", zap.String("endpoint", endpoint), zap.Error(err))
		}
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		resp, err := c.call(ctx, endpoint, body)
		if err == nil {
			if ttl > 0 {
				if err := c.store.Set(ctx, key, resp.Raw, ttl); err != nil {
					c.logger.Warn("cache write failed", zap.String("endpoint", endpoint), zap.Error(err))
				}
			}
			return resp, nil
		}
		lastErr = err
		if !Retryable(err) || attempt >= c.maxRetries {
			return nil, lastErr
		}
		wait := c.backoffBase << attempt
		c.logger.Warn("retrying api call",
			zap.String("endpoint", endpoint),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", wait),
			zap.Error(err))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *Client) call(ctx context.Context, endpoint string, body []byte) (*Response, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("dataforseo: build request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrAuthentication
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: http status %d", ErrTransient, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, StatusMessage: string(text)}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrTransient, err)
	}
	decoded, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("dataforseo: %s: %w", endpoint, err)
	}
	return decoded, classify(endpoint, decoded)
}

func classify(endpoint string, resp *Response) error {
	switch resp.StatusCode {
	case statusOK:
		return nil
	case statusAuthFailed:
		return ErrAuthentication
	case statusInsufficientCredits:
		return ErrInsufficientQuota
	case statusRateLimited:
		return ErrRateLimited
	default:
		return &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, StatusMessage: resp.StatusMessage}
	}
}

func decode(raw []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	resp.Raw = raw
	return &resp, nil
}

func cacheKey(endpoint string, body []byte) string {
	sum := sha256.Sum256(append([]byte(endpoint+"\x00"), body...))
	return "dataforseo:" + hex.EncodeToString(sum[:])
}
