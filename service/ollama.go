package service

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"storylab-server/config"
)

// StatusError is a terminal upstream failure: the generation service answered
// with a non-success status outside the retryable 5xx range.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("generation service returned %d: %s", e.Code, e.Body)
}

// GenerateError wraps the last cause after every attempt has failed.
type GenerateError struct {
	Cause error
}

func (e *GenerateError) Error() string {
	return fmt.Sprintf("generation failed after retries: %v", e.Cause)
}

func (e *GenerateError) Unwrap() error { return e.Cause }

// OllamaClient exchanges generate requests with the external text-generation
// service. It holds one reusable http.Client for its lifetime; Close releases
// the pooled connections.
type OllamaClient struct {
	baseURL string
	http    *http.Client

	timeout     time.Duration
	temperature float64
	maxTokens   int
	retries     int
	backoff     float64

	// sleep is swapped out in tests to observe the backoff schedule.
	sleep func(time.Duration)
}

func NewOllamaClient(cfg config.AIConfig) *OllamaClient {
	return &OllamaClient{
		baseURL:     strings.TrimRight(cfg.OllamaBaseURL, "/"),
		http:        &http.Client{},
		timeout:     cfg.Timeout(),
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		retries:     cfg.Retries,
		backoff:     cfg.Backoff,
		sleep:       time.Sleep,
	}
}

func (c *OllamaClient) Close() {
	c.http.CloseIdleConnections()
}

// GenerateOptions tune a single Generate call. Nil/zero fields fall back to
// the client defaults.
type GenerateOptions struct {
	Temperature *float64
	MaxTokens   *int
	Stream      bool
	Timeout     time.Duration
	Retries     *int
	Backoff     *float64
}

type generatePayload struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type generateChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func (c *OllamaClient) buildPayload(model, prompt string, opts GenerateOptions) generatePayload {
	temp := c.temperature
	if opts.Temperature != nil {
		temp = *opts.Temperature
	}
	maxTokens := c.maxTokens
	if opts.MaxTokens != nil {
		maxTokens = *opts.MaxTokens
	}
	return generatePayload{
		Model:  model,
		Prompt: prompt,
		Stream: opts.Stream,
		Options: generateOptions{
			Temperature: temp,
			NumPredict:  maxTokens,
		},
	}
}

// Generate calls POST /api/generate and returns the full generated text.
// Transport failures and 5xx statuses are retried with linear backoff;
// any other error status surfaces immediately as a *StatusError. The text is
// returned as-is: a non-streaming body without a "response" field is an
// empty result, not an error.
func (c *OllamaClient) Generate(ctx context.Context, model, prompt string, opts GenerateOptions) (string, error) {
	payload, err := json.Marshal(c.buildPayload(model, prompt, opts))
	if err != nil {
		return "", err
	}

	timeout := c.timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	retries := c.retries
	if opts.Retries != nil {
		retries = *opts.Retries
	}
	backoff := c.backoff
	if opts.Backoff != nil {
		backoff = *opts.Backoff
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			c.sleep(time.Duration(backoff * float64(attempt) * float64(time.Second)))
		}

		text, err := c.doGenerate(ctx, payload, opts.Stream, timeout)
		if err == nil {
			return text, nil
		}
		var se *StatusError
		if errors.As(err, &se) && se.Code < 500 {
			return "", err
		}
		lastErr = err
	}
	return "", &GenerateError{Cause: lastErr}
}

// doGenerate runs a single attempt under its own deadline.
func (c *OllamaClient) doGenerate(ctx context.Context, payload []byte, stream bool, timeout time.Duration) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	if !stream {
		var chunk generateChunk
		if err := json.NewDecoder(resp.Body).Decode(&chunk); err != nil {
			return "", fmt.Errorf("decode response failed: %w", err)
		}
		return chunk.Response, nil
	}

	// Streaming mode: NDJSON, one object per line. Unparseable lines are
	// keep-alives or noise and get skipped.
	var sb strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var chunk generateChunk
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			continue
		}
		sb.WriteString(chunk.Response)
		if chunk.Done {
			return sb.String(), nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read stream failed: %w", err)
	}
	return sb.String(), nil
}

// GenerateStream runs a streaming generate call and hands each text fragment
// to emit as it arrives. Used by the websocket scene endpoint; no retry, the
// caller sees a live stream or an error.
func (c *OllamaClient) GenerateStream(ctx context.Context, model, prompt string, opts GenerateOptions, emit func(fragment string) error) (string, error) {
	opts.Stream = true
	payload, err := json.Marshal(c.buildPayload(model, prompt, opts))
	if err != nil {
		return "", err
	}

	timeout := c.timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	var sb strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var chunk generateChunk
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			continue
		}
		if chunk.Response != "" {
			sb.WriteString(chunk.Response)
			if err := emit(chunk.Response); err != nil {
				return sb.String(), err
			}
		}
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return sb.String(), fmt.Errorf("read stream failed: %w", err)
	}
	return sb.String(), nil
}

// ModelInfo is one entry of the service's model catalog.
type ModelInfo struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size,omitempty"`
	ModifiedAt time.Time `json:"modified_at,omitempty"`
}

// ListModels fetches GET /api/tags. Best effort: no retry.
func (c *OllamaClient) ListModels(ctx context.Context) ([]ModelInfo, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	var out struct {
		Models []ModelInfo `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode model list failed: %w", err)
	}
	return out.Models, nil
}
