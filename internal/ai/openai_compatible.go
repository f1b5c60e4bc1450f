package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"docrag/internal/pkg/retry"
)

const maxErrorBody = 512

var errEmptyResponse = errors.New("provider returned an empty response")

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ClientConfig describes one OpenAI-compatible endpoint.
type ClientConfig struct {
	Name    string
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Retry   retry.Policy
	// RequestsPerSecond throttles outgoing calls; zero disables throttling.
	RequestsPerSecond float64
}

type Option func(*OpenAICompatibleClient)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *OpenAICompatibleClient) {
		cl.httpClient = c
	}
}

// OpenAICompatibleClient posts JSON to an OpenAI-compatible API with the
// shared retry policy and an optional client side rate limit.
type OpenAICompatibleClient struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	policy     retry.Policy
	limiter    *rate.Limiter
}

func NewOpenAICompatibleClient(cfg ClientConfig, opts ...Option) *OpenAICompatibleClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	policy := cfg.Retry
	policy.Name = cfg.Name
	policy.Retryable = retry.IsTransient

	c := &OpenAICompatibleClient{
		name:       cfg.Name,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		policy:     policy,
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func fatalf(format string, args ...any) error {
	return retry.Permanent(fmt.Errorf(format, args...))
}

// postJSON sends body to path and decodes the answer into out. check runs on
// every decoded answer; a Permanent error from it stops the retries.
func (c *OpenAICompatibleClient) postJSON(ctx context.Context, path string, body, out any, check func() error) (uint, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("marshal %s request failed: %w", c.name, err)
	}

	return c.policy.Do(ctx, func(ctx context.Context) error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return fatalf("build %s request failed: %v", c.name, err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%s request failed: %w", c.name, err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read %s response failed: %w", c.name, err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &retry.StatusError{StatusCode: resp.StatusCode, Body: truncate(string(raw), maxErrorBody)}
		}
		// reset between attempts
		reflect.ValueOf(out).Elem().SetZero()
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("parse %s json failed: %w", c.name, err)
		}
		if check != nil {
			return check()
		}
		return nil
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
