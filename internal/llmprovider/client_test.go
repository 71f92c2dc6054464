package llmprovider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ai-deid-pipeline/internal/identifier"
)

func TestChat_ParsesChoiceContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var body chatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body.ResponseFormat == nil || body.ResponseFormat.Type != "json_object" {
			t.Errorf("expected json_object response format to be forwarded")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"{\"entities\":[]}"},"finish_reason":"stop"}],"model":"qwen2.5:7b","usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Model: "qwen2.5:7b"}, nil)
	resp, err := c.Chat(context.Background(), identifier.ChatRequest{
		Messages:       []identifier.ChatMessage{{Role: "user", Content: "hi"}},
		ResponseFormat: "json_object",
	})
	if err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
	if !strings.Contains(resp.Content, "entities") {
		t.Errorf("expected content to be forwarded, got %q", resp.Content)
	}
	if resp.TotalTokens != 15 {
		t.Errorf("expected total tokens 15, got %d", resp.TotalTokens)
	}
}

func TestChat_NonRetryableErrorReturnsImmediately(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"bad request"}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Model: "m"}, nil)
	_, err := c.Chat(context.Background(), identifier.ChatRequest{Messages: []identifier.ChatMessage{{Role: "user", Content: "hi"}}})
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
	if calls != 1 {
		t.Errorf("expected no retries on non-retryable status, got %d calls", calls)
	}
}

func TestChat_EmptyChoicesIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Model: "m"}, nil)
	_, err := c.Chat(context.Background(), identifier.ChatRequest{Messages: []identifier.ChatMessage{{Role: "user", Content: "hi"}}})
	if err == nil {
		t.Fatal("expected error for empty choices")
	}
}
