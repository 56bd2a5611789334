package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kaluza/askbot/llm"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := New(Config{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "claude-sonnet-4-20250514",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return client
}

func TestChatReturnsJoinedText(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body["model"] != "claude-sonnet-4-20250514" {
			t.Errorf("model = %v", body["model"])
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":          "msg_01",
			"type":        "message",
			"role":        "assistant",
			"model":       "claude-sonnet-4-20250514",
			"stop_reason": "end_turn",
			"content": []map[string]any{
				{"type": "text", "text": "Expenses need "},
				{"type": "text", "text": "a receipt."},
			},
			"usage": map[string]any{"input_tokens": 12, "output_tokens": 7},
		})
	})

	res, err := client.Chat(context.Background(), llm.Request{
		System:   "You are a finance assistant.",
		Messages: []llm.Message{{Role: "user", Content: "expense policy?"}},
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if res.Text != "Expenses need a receipt." {
		t.Fatalf("Chat() text = %q", res.Text)
	}
	if res.InputTokens != 12 || res.OutputTokens != 7 {
		t.Fatalf("Chat() usage = %d/%d", res.InputTokens, res.OutputTokens)
	}
}

func TestChatClassifiesAuthError(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	})

	_, err := client.Chat(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	})
	if err == nil {
		t.Fatalf("Chat() error = nil, want auth error")
	}
	if kind := llm.KindOf(err); kind != llm.ErrorKindAuth {
		t.Fatalf("KindOf() = %q, want %q", kind, llm.ErrorKindAuth)
	}
}

func TestChatClassifiesRateLimit(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	})

	_, err := client.Chat(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	})
	if kind := llm.KindOf(err); kind != llm.ErrorKindRateLimit {
		t.Fatalf("KindOf() = %q, want %q", kind, llm.ErrorKindRateLimit)
	}
}

func TestChatRejectsEmptyRequest(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected upstream call")
	})
	if _, err := client.Chat(context.Background(), llm.Request{}); err == nil {
		t.Fatalf("Chat() error = nil, want no-messages error")
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{}); err == nil {
		t.Fatalf("New() error = nil, want missing key error")
	}
}
