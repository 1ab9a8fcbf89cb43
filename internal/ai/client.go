package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"email-task-extractor/internal/routing"
)

// Extractor turns email text into candidate tasks.
type Extractor interface {
	Enabled() bool
	Extract(ctx context.Context, req Request) (Extraction, error)
}

// Provider selects the hosted model API.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// Config holds model endpoint configuration.
type Config struct {
	Provider       Provider
	APIKey         string
	Model          string
	BaseURL        string
	Temperature    float64
	MaxTokens      int
	Timeout        time.Duration
	RateLimit      float64
	MaxRetries     int
	InitialBackoff time.Duration
}

var (
	ErrDisabled        = errors.New("ai extractor disabled")
	ErrInvalidResponse = errors.New("invalid model response")
	ErrUnknownProvider = errors.New("unknown ai provider")
)

const (
	defaultAnthropicModel   = "claude-sonnet-4-20250514"
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	defaultOpenAIModel      = "gpt-4.1-mini"
	defaultOpenAIBaseURL    = "https://api.openai.com/v1"
	defaultMaxTokens        = 2000
	defaultTimeout          = 60 * time.Second
	defaultRateLimit        = 2.0
	defaultMaxRetries       = 3
	defaultInitialBackoff   = 2 * time.Second
	maxBackoff              = 10 * time.Second
	maxErrorBody            = 4096
)

// Client implements Extractor against a hosted LLM.
type Client struct {
	httpClient  *http.Client
	provider    Provider
	apiKey      string
	model       string
	baseURL     string
	temperature float64
	maxTokens   int
	limiter     *rate.Limiter
	maxRetries  int
	backoff     time.Duration
}

// NewClient constructs a Client if the supplied configuration is usable.
func NewClient(cfg Config) (*Client, error) {
	provider := Provider(strings.ToLower(strings.TrimSpace(string(cfg.Provider))))
	if provider == "" {
		provider = ProviderAnthropic
	}
	model := strings.TrimSpace(cfg.Model)
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	switch provider {
	case ProviderAnthropic:
		if model == "" {
			model = defaultAnthropicModel
		}
		if baseURL == "" {
			baseURL = defaultAnthropicBaseURL
		}
	case ProviderOpenAI:
		if model == "" {
			model = defaultOpenAIModel
		}
		if baseURL == "" {
			baseURL = defaultOpenAIBaseURL
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrDisabled
	}

	temp := cfg.Temperature
	if temp < 0 || math.IsNaN(temp) {
		temp = 0
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaultInitialBackoff
	}

	return &Client{
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		provider:    provider,
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       model,
		baseURL:     baseURL,
		temperature: temp,
		maxTokens:   cfg.MaxTokens,
		limiter:     rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		maxRetries:  cfg.MaxRetries,
		backoff:     cfg.InitialBackoff,
	}, nil
}

// Enabled reports whether the client can make outbound calls.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

// Model returns the model identifier requests are sent to.
func (c *Client) Model() string {
	if c == nil {
		return ""
	}
	return c.model
}

// Provider returns the configured API flavour.
func (c *Client) Provider() Provider {
	if c == nil {
		return ""
	}
	return c.provider
}

// Extract asks the model for the tasks in req and returns the sanitized reply.
func (c *Client) Extract(ctx context.Context, req Request) (Extraction, error) {
	if !c.Enabled() {
		return Extraction{}, ErrDisabled
	}
	prompt := BuildPrompt(req)

	text, err := c.completeWithRetry(ctx, prompt)
	if err != nil {
		return Extraction{}, err
	}

	extraction, err := ParseExtraction(text)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"provider": c.provider,
			"model":    c.model,
			"raw":      truncate(text, 512),
		}).WithError(err).Warn("model reply is not valid extraction json")
		return Extraction{}, err
	}
	extraction.Model = c.model
	extraction.ExtractedAt = time.Now().UTC()
	return extraction, nil
}

func (c *Client) completeWithRetry(ctx context.Context, prompt string) (string, error) {
	delay := c.backoff
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > maxBackoff {
				delay = maxBackoff
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter: %w", err)
		}

		text, err := c.complete(ctx, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !isRetryable(err) {
			return "", err
		}
		logrus.WithFields(logrus.Fields{
			"provider": c.provider,
			"attempt":  attempt + 1,
		}).WithError(err).Debug("retrying model request")
	}
	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	switch c.provider {
	case ProviderOpenAI:
		return c.completeOpenAI(ctx, prompt)
	default:
		return c.completeAnthropic(ctx, prompt)
	}
}

func (c *Client) post(ctx context.Context, url string, payload any, headers map[string]string, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &transportError{err: fmt.Errorf("%s request: %w", c.provider, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Provider: c.provider, Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// StatusError is a non-200 reply from the model API.
type StatusError struct {
	Provider Provider
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s status %d: %s", e.Provider, e.Code, e.Body)
}

type transportError struct {
	err error
}

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	var status *StatusError
	if errors.As(err, &status) {
		return status.Code == http.StatusTooManyRequests || status.Code >= http.StatusInternalServerError
	}
	var transport *transportError
	return errors.As(err, &transport)
}

// ParseExtraction decodes a model reply into a sanitized Extraction.
func ParseExtraction(text string) (Extraction, error) {
	content := normalizeJSONBlock(text)
	if content == "" {
		return Extraction{}, fmt.Errorf("%w: empty reply", ErrInvalidResponse)
	}
	var extraction Extraction
	if err := json.Unmarshal([]byte(content), &extraction); err != nil {
		return Extraction{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	sanitizeExtraction(&extraction)
	return extraction, nil
}

func normalizeJSONBlock(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.IndexRune(trimmed, '\n'); idx >= 0 {
			trimmed = trimmed[idx+1:]
		}
		if strings.HasSuffix(trimmed, "```") {
			trimmed = trimmed[:len(trimmed)-3]
		}
	}
	trimmed = strings.TrimSpace(trimmed)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end >= start {
		return strings.TrimSpace(trimmed[start : end+1])
	}
	return trimmed
}

func sanitizeExtraction(e *Extraction) {
	e.OverallConfidence = clampFloat(e.OverallConfidence, 0, 1)
	ambiguities := make([]string, 0, len(e.Ambiguities))
	for _, a := range e.Ambiguities {
		if a = strings.TrimSpace(a); a != "" {
			ambiguities = append(ambiguities, a)
		}
	}

	tasks := make([]Task, 0, len(e.Tasks))
	for i, t := range e.Tasks {
		t.Description = strings.TrimSpace(t.Description)
		if t.Description == "" {
			ambiguities = append(ambiguities, fmt.Sprintf("Dropped task %d: no description given", i+1))
			continue
		}
		t.Assignee = strings.TrimSpace(t.Assignee)
		t.Deadline = strings.TrimSpace(t.Deadline)
		t.Reasoning = strings.TrimSpace(t.Reasoning)
		if p, ok := routing.ParsePriority(t.Priority); ok {
			t.Priority = string(p)
		} else {
			t.Priority = ""
		}
		t.ConfidenceScore = clampFloat(t.ConfidenceScore, 0, 1)
		tasks = append(tasks, t)
	}
	e.Tasks = tasks
	e.Ambiguities = ambiguities
}

func clampFloat(value, min, max float64) float64 {
	if math.IsNaN(value) {
		return min
	}
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
