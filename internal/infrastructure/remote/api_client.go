package remote

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
	"time"

	"github.com/scrapedeck/console/internal/core/ports"
	"github.com/scrapedeck/console/internal/domain"
	"github.com/scrapedeck/console/internal/infrastructure/logger"
)

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: server returned status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Detail extracts the FastAPI-style {"detail": "..."} message when present.
func (e *StatusError) Detail() string {
	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal([]byte(e.Body), &body); err == nil && body.Detail != "" {
		return body.Detail
	}
	return e.Body
}

type APIClient struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
	version    string
	logger     *logger.Logger
}

type APIClientConfig struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	Version    string
	HTTPClient *http.Client
	Logger     *logger.Logger
}

func NewAPIClient(cfg APIClientConfig) *APIClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}

	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	return &APIClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		version:    version,
		logger:     log,
	}
}

var _ ports.TaskAPI = (*APIClient)(nil)

func (c *APIClient) ListTasks(ctx context.Context) ([]json.RawMessage, error) {
	body, err := c.get(ctx, "/tasks")
	if err != nil {
		return nil, err
	}

	var records []json.RawMessage
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("failed to parse task list: %w", err)
	}
	return records, nil
}

func (c *APIClient) GetTask(ctx context.Context, id string) (json.RawMessage, error) {
	return c.get(ctx, taskPath(id, ""))
}

func (c *APIClient) CreateTask(ctx context.Context, spec domain.TaskSpec) (string, error) {
	body, err := c.send(ctx, http.MethodPost, "/tasks", spec)
	if err != nil {
		return "", err
	}

	var resp struct {
		TaskID json.RawMessage `json:"task_id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to parse create response: %w", err)
	}
	id, err := domain.CanonicalID(resp.TaskID)
	if err != nil {
		return "", fmt.Errorf("create response: %w", err)
	}
	return id, nil
}

func (c *APIClient) ExecuteTask(ctx context.Context, id string) (json.RawMessage, error) {
	return c.send(ctx, http.MethodPost, taskPath(id, "/execute"), nil)
}

func (c *APIClient) RetryTask(ctx context.Context, id string) error {
	_, err := c.send(ctx, http.MethodPost, taskPath(id, "/retry"), nil)
	return err
}

func (c *APIClient) DeleteTask(ctx context.Context, id string) error {
	_, err := c.send(ctx, http.MethodDelete, taskPath(id, ""), nil)
	return err
}

func (c *APIClient) TaskLogs(ctx context.Context, id string) (json.RawMessage, error) {
	return c.get(ctx, taskPath(id, "/logs"))
}

func (c *APIClient) TaskResults(ctx context.Context, id string) (json.RawMessage, error) {
	return c.get(ctx, taskPath(id, "/results"))
}

func taskPath(id, suffix string) string {
	return "/tasks/" + url.PathEscape(id) + suffix
}

// get is idempotent and is retried with a linear backoff on transport
// errors and 5xx responses.
func (c *APIClient) get(ctx context.Context, path string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay * time.Duration(attempt)
			c.logger.Infow("api_request_retry",
				"path", path,
				"attempt", attempt,
				"delay_ms", delay.Milliseconds(),
				"error", lastErr,
			)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %w", domain.ErrTransport, ctx.Err())
			case <-time.After(delay):
			}
		}

		body, err := c.do(ctx, http.MethodGet, path, nil)
		if err == nil {
			return body, nil
		}
		if !retryable(err) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (c *APIClient) send(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
	}
	return c.do(ctx, method, path, body)
}

func (c *APIClient) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	start := time.Now()
	endpoint := c.baseURL + path

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", fmt.Sprintf("scrapedeck/%s", c.version))

	c.logger.Debugw("api_request",
		"method", method,
		"url", endpoint,
		"payload_bytes", len(body),
	)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warnw("api_network_error", "method", method, "url", endpoint, "error", err)
		return nil, fmt.Errorf("%w: %s %s: %w", domain.ErrTransport, method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %w", domain.ErrTransport, err)
	}

	c.logger.Debugw("api_response",
		"method", method,
		"url", endpoint,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
		"resp_bytes", len(respBody),
	)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warnw("api_bad_status", "method", method, "url", endpoint, "status", resp.StatusCode)
		return nil, &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	return respBody, nil
}

func retryable(err error) bool {
	if errors.Is(err, domain.ErrTransport) {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= http.StatusInternalServerError
	}
	return false
}
