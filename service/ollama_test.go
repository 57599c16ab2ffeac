package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storylab-server/config"
)

func testAIConfig(baseURL string) config.AIConfig {
	return config.AIConfig{
		OllamaBaseURL:  baseURL,
		TextDefault:    "llama3.1:8b",
		SceneDefault:   "openhermes:7b",
		Temperature:    0.8,
		MaxTokens:      256,
		TimeoutSeconds: 5,
		Retries:        2,
		Backoff:        1.5,
	}
}

func newTestClient(baseURL string) (*OllamaClient, *[]time.Duration) {
	c := NewOllamaClient(testAIConfig(baseURL))
	var sleeps []time.Duration
	c.sleep = func(d time.Duration) { sleeps = append(sleeps, d) }
	return c, &sleeps
}

func TestGenerateNonStreaming(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %q, want /api/generate", r.URL.Path)
		}
		fmt.Fprint(w, `{"response":"ONCE UPON A TIME","done":true}`)
	}))
	defer ts.Close()

	c, _ := newTestClient(ts.URL)
	defer c.Close()

	got, err := c.Generate(context.Background(), "llama3.1:8b", "tell a story", GenerateOptions{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "ONCE UPON A TIME" {
		t.Errorf("text = %q", got)
	}
}

func TestGenerateMissingResponseField(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"done":true,"total_duration":12}`)
	}))
	defer ts.Close()

	c, _ := newTestClient(ts.URL)
	defer c.Close()

	got, err := c.Generate(context.Background(), "llama3.1:8b", "p", GenerateOptions{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "" {
		t.Errorf("text = %q, want empty", got)
	}
}

func TestGenerateStreaming(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"response":"INT. ","done":false}`)
		fmt.Fprintln(w, `this line is not json and must be skipped`)
		fmt.Fprintln(w, `{"response":"HOUSE - ","done":false}`)
		fmt.Fprintln(w, ``)
		fmt.Fprintln(w, `{"response":"NIGHT","done":true}`)
		fmt.Fprintln(w, `{"response":"AFTER DONE","done":false}`)
	}))
	defer ts.Close()

	c, _ := newTestClient(ts.URL)
	defer c.Close()

	got, err := c.Generate(context.Background(), "openhermes:7b", "p", GenerateOptions{Stream: true})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "INT. HOUSE - NIGHT" {
		t.Errorf("text = %q, want \"INT. HOUSE - NIGHT\"", got)
	}
}

func TestGenerateRetriesThenSucceeds(t *testing.T) {
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls <= 2 {
			http.Error(w, "model loading", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"response":"recovered","done":true}`)
	}))
	defer ts.Close()

	c, sleeps := newTestClient(ts.URL)
	defer c.Close()

	got, err := c.Generate(context.Background(), "llama3.1:8b", "p", GenerateOptions{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "recovered" {
		t.Errorf("text = %q", got)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if len(*sleeps) != 2 {
		t.Fatalf("sleeps = %d, want 2", len(*sleeps))
	}
	if (*sleeps)[1] <= (*sleeps)[0] {
		t.Errorf("backoff not increasing: %v", *sleeps)
	}
	if (*sleeps)[0] != 1500*time.Millisecond || (*sleeps)[1] != 3*time.Second {
		t.Errorf("backoff schedule = %v, want [1.5s 3s]", *sleeps)
	}
}

func TestGenerateRetriesExhausted(t *testing.T) {
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer ts.Close()

	c, sleeps := newTestClient(ts.URL)
	defer c.Close()

	_, err := c.Generate(context.Background(), "llama3.1:8b", "p", GenerateOptions{})
	var genErr *GenerateError
	if !errors.As(err, &genErr) {
		t.Fatalf("error = %v, want *GenerateError", err)
	}
	var statusErr *StatusError
	if !errors.As(genErr.Cause, &statusErr) || statusErr.Code != http.StatusBadGateway {
		t.Errorf("cause = %v, want wrapped 502 StatusError", genErr.Cause)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3 (1 + 2 retries)", calls)
	}
	if len(*sleeps) != 2 {
		t.Errorf("sleeps = %d, want 2", len(*sleeps))
	}
}

func TestGenerateTerminalStatus(t *testing.T) {
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer ts.Close()

	c, sleeps := newTestClient(ts.URL)
	defer c.Close()

	_, err := c.Generate(context.Background(), "no-such-model", "p", GenerateOptions{})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("error = %v, want *StatusError", err)
	}
	if statusErr.Code != http.StatusNotFound {
		t.Errorf("code = %d, want 404", statusErr.Code)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry on 4xx)", calls)
	}
	if len(*sleeps) != 0 {
		t.Errorf("sleeps = %d, want 0", len(*sleeps))
	}
}

func TestGenerateConnectionRefusedRetries(t *testing.T) {
	// A closed listener: every attempt fails at the transport level.
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close()

	c, sleeps := newTestClient(ts.URL)
	defer c.Close()

	_, err := c.Generate(context.Background(), "llama3.1:8b", "p", GenerateOptions{})
	var genErr *GenerateError
	if !errors.As(err, &genErr) {
		t.Fatalf("error = %v, want *GenerateError", err)
	}
	if len(*sleeps) != 2 {
		t.Errorf("sleeps = %d, want 2", len(*sleeps))
	}
}

func TestGenerateStreamEmitsFragments(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"response":"fade ","done":false}`)
		fmt.Fprintln(w, `{"response":"in","done":true}`)
	}))
	defer ts.Close()

	c, _ := newTestClient(ts.URL)
	defer c.Close()

	var fragments []string
	got, err := c.GenerateStream(context.Background(), "openhermes:7b", "p", GenerateOptions{}, func(f string) error {
		fragments = append(fragments, f)
		return nil
	})
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}
	if got != "fade in" {
		t.Errorf("text = %q", got)
	}
	if len(fragments) != 2 || fragments[0] != "fade " || fragments[1] != "in" {
		t.Errorf("fragments = %v", fragments)
	}
}

func TestListModels(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("path = %q, want /api/tags", r.URL.Path)
		}
		fmt.Fprint(w, `{"models":[{"name":"llama3.1:8b"},{"name":"qwen2.5:32b"}]}`)
	}))
	defer ts.Close()

	c, _ := newTestClient(ts.URL)
	defer c.Close()

	got, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(got) != 2 || got[0].Name != "llama3.1:8b" || got[1].Name != "qwen2.5:32b" {
		t.Errorf("models = %+v", got)
	}
}

func TestListModelsError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer ts.Close()

	c, _ := newTestClient(ts.URL)
	defer c.Close()

	var statusErr *StatusError
	if _, err := c.ListModels(context.Background()); !errors.As(err, &statusErr) {
		t.Fatalf("error = %v, want *StatusError", err)
	}
}
