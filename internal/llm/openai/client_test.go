package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"portfolio-backend/internal/llm"
)

func TestIsReasoningModel(t *testing.T) {
	tests := []struct {
		name  string
		model string
		want  bool
	}{
		{name: "gpt5", model: "gpt-5", want: true},
		{name: "gpt5 variant", model: "gpt-5-mini", want: true},
		{name: "gpt5 uppercase", model: " GPT-5o ", want: true},
		{name: "o3", model: "o3-mini", want: true},
		{name: "gpt4", model: "gpt-4o", want: false},
		{name: "empty", model: "", want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := isReasoningModel(tt.model); got != tt.want {
				t.Fatalf("isReasoningModel(%q) = %v, want %v", tt.model, got, tt.want)
			}
		})
	}
}

func newTestServer(t *testing.T, status int, response string) (*httptest.Server, func() map[string]any) {
	t.Helper()
	var (
		mu       sync.Mutex
		lastBody map[string]any
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		mu.Lock()
		lastBody = payload
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(server.Close)

	oldURL := apiURL
	apiURL = server.URL
	t.Cleanup(func() { apiURL = oldURL })

	return server, func() map[string]any {
		mu.Lock()
		defer mu.Unlock()
		return lastBody
	}
}

func TestGenerateSendsSystemAndUserMessages(t *testing.T) {
	_, last := newTestServer(t, http.StatusOK, `{"choices":[{"message":{"role":"assistant","content":"  rewritten  "},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`)

	client, err := NewClient("test-key")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	out, err := client.Generate(context.Background(), llm.Request{
		Model:       "gpt-4o-mini",
		System:      "be terse",
		User:        "rewrite this",
		Temperature: 0.4,
		MaxTokens:   512,
		JSON:        true,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "rewritten" {
		t.Fatalf("unexpected output %q", out)
	}

	body := last()
	msgs, _ := body["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("expected system and user messages, got %v", body["messages"])
	}
	if body["temperature"] != 0.4 {
		t.Fatalf("expected temperature 0.4, got %v", body["temperature"])
	}
	if body["max_tokens"] != float64(512) {
		t.Fatalf("expected max_tokens 512, got %v", body["max_tokens"])
	}
	rf, _ := body["response_format"].(map[string]any)
	if rf["type"] != "json_object" {
		t.Fatalf("expected json response format, got %v", body["response_format"])
	}
}

func TestGenerateOmitsTemperatureForReasoningModels(t *testing.T) {
	_, last := newTestServer(t, http.StatusOK, `{"choices":[{"message":{"content":"ok"}}]}`)

	client, err := NewClient("test-key")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := client.Generate(context.Background(), llm.Request{Model: "gpt-5-mini", User: "x", MaxTokens: 100}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	body := last()
	if _, ok := body["temperature"]; ok {
		t.Fatalf("expected temperature omitted")
	}
	if body["max_completion_tokens"] != float64(100) {
		t.Fatalf("expected max_completion_tokens, got %v", body)
	}
}

func TestGenerateReportsHTTPStatus(t *testing.T) {
	newTestServer(t, http.StatusServiceUnavailable, `{"error":{"message":"overloaded","type":"server_error"}}`)

	client, err := NewClient("test-key")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = client.Generate(context.Background(), llm.Request{Model: "gpt-4o", User: "x"})
	if err == nil || !strings.Contains(err.Error(), "http status 503") {
		t.Fatalf("expected status error, got %v", err)
	}
	if !llm.ShouldRetry(err) {
		t.Fatalf("expected 503 to be retryable")
	}
}

func TestGenerateRejectsEmptyContent(t *testing.T) {
	newTestServer(t, http.StatusOK, `{"choices":[{"message":{"content":"   "}}]}`)

	client, err := NewClient("test-key")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := client.Generate(context.Background(), llm.Request{Model: "gpt-4o", User: "x"}); err == nil {
		t.Fatalf("expected empty content error")
	}
}

func TestSupports(t *testing.T) {
	if !Supports("gpt-4o-mini") || !Supports("o3-mini") {
		t.Fatalf("expected openai models to be supported")
	}
	if Supports("claude-sonnet-4-5") {
		t.Fatalf("claude models must not route to openai")
	}
}
