package slackcmd

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestAuthTest(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth.test" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer xoxb-test" {
			t.Errorf("Authorization = %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok": true, "team_id": "T1", "user_id": "UBOT", "bot_id": "B1",
		})
	}))
	defer srv.Close()

	api := newSlackAPI(srv.Client(), srv.URL, "xoxb-test", "xapp-test")
	auth, err := api.authTest(context.Background())
	if err != nil {
		t.Fatalf("authTest() error = %v", err)
	}
	if auth.TeamID != "T1" || auth.UserID != "UBOT" || auth.BotID != "B1" {
		t.Fatalf("authTest() = %+v", auth)
	}
}

func TestAuthTestAPIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "invalid_auth"})
	}))
	defer srv.Close()

	api := newSlackAPI(srv.Client(), srv.URL, "xoxb-bad", "xapp-test")
	if _, err := api.authTest(context.Background()); err == nil {
		t.Fatalf("authTest() expected error for ok=false response")
	}
}

func TestPostThreadReply(t *testing.T) {
	t.Parallel()

	var got slackPostMessageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat.postMessage" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "ts": "101.000"})
	}))
	defer srv.Close()

	api := newSlackAPI(srv.Client(), srv.URL, "xoxb-test", "xapp-test")
	if err := api.PostThreadReply(context.Background(), "CFIN", "100.000", "hello"); err != nil {
		t.Fatalf("PostThreadReply() error = %v", err)
	}
	if got.Channel != "CFIN" || got.ThreadTS != "100.000" || got.Text != "hello" {
		t.Fatalf("request body = %+v", got)
	}
}

func TestPostThreadReplyRetriesRateLimit(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "ratelimited"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "ts": "101.000"})
	}))
	defer srv.Close()

	api := newSlackAPI(srv.Client(), srv.URL, "xoxb-test", "xapp-test")
	if err := api.PostThreadReply(context.Background(), "CFIN", "100.000", "hello"); err != nil {
		t.Fatalf("PostThreadReply() error = %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want retry after 429", calls.Load())
	}
}

func TestConversationsHistoryPaginates(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/conversations.history" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("channel"); got != "CFIN" {
			t.Errorf("channel = %q", got)
		}
		if r.URL.Query().Get("oldest") == "" {
			t.Errorf("oldest bound missing")
		}
		if r.URL.Query().Get("cursor") == "" {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"ok": true,
				"messages": []map[string]any{
					{"ts": "2.0", "user": "U2", "text": "second"},
				},
				"has_more":          true,
				"response_metadata": map[string]any{"next_cursor": "c2"},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"messages": []map[string]any{
				{"ts": "1.0", "user": "U1", "text": "first", "reply_count": 2},
			},
		})
	}))
	defer srv.Close()

	api := newSlackAPI(srv.Client(), srv.URL, "xoxb-test", "xapp-test")
	msgs, err := api.ConversationsHistory(context.Background(), "CFIN", time.Unix(1700000000, 0))
	if err != nil {
		t.Fatalf("ConversationsHistory() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want both pages", len(msgs))
	}
	if msgs[0].TS != "2.0" || msgs[1].TS != "1.0" {
		t.Fatalf("messages = %+v", msgs)
	}
	if msgs[1].ReplyCount != 2 {
		t.Fatalf("reply_count = %d", msgs[1].ReplyCount)
	}
}

func TestConversationsRepliesRequiresThreadTS(t *testing.T) {
	t.Parallel()

	api := newSlackAPI(nil, "https://slack.invalid/api", "xoxb-test", "xapp-test")
	if _, err := api.ConversationsReplies(context.Background(), "CFIN", ""); err == nil {
		t.Fatalf("ConversationsReplies() expected error for empty thread_ts")
	}
}

func TestUserEmail(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users.info" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("user"); got != "U1" {
			t.Errorf("user = %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"user": map[string]any{
				"id":      "U1",
				"profile": map[string]any{"email": "sam@kaluza.com"},
			},
		})
	}))
	defer srv.Close()

	api := newSlackAPI(srv.Client(), srv.URL, "xoxb-test", "xapp-test")
	email, err := api.UserEmail(context.Background(), "U1")
	if err != nil {
		t.Fatalf("UserEmail() error = %v", err)
	}
	if email != "sam@kaluza.com" {
		t.Fatalf("UserEmail() = %q", email)
	}
}

func TestUserEmailAPIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "user_not_found"})
	}))
	defer srv.Close()

	api := newSlackAPI(srv.Client(), srv.URL, "xoxb-test", "xapp-test")
	if _, err := api.UserEmail(context.Background(), "UNOPE"); err == nil {
		t.Fatalf("UserEmail() expected error for ok=false response")
	}
}

func TestFormatSlackTS(t *testing.T) {
	t.Parallel()

	got := formatSlackTS(time.Unix(1700000000, 500000000))
	if got != "1700000000.500000" {
		t.Fatalf("formatSlackTS() = %q", got)
	}
}
