package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sobesednik/sobesednik/llm"
)

func TestChatSendsMessagesAndMaxTokens(t *testing.T) {
	var got chatCompletionRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/v1/chat/completions") {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, &got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices":[{"message":{"content":"Hi there"}}],
			"usage":{"prompt_tokens":10,"completion_tokens":4,"total_tokens":14}
		}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "KEY", 10*time.Second)
	res, err := c.Chat(context.Background(), llm.Request{
		Model: "gpt-4o",
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "be brief"},
			{Role: llm.RoleUser, Content: "Hello"},
		},
		MaxTokens: 700,
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if res.Text != "Hi there" {
		t.Fatalf("unexpected text: %q", res.Text)
	}
	if res.Usage.TotalTokens != 14 {
		t.Fatalf("unexpected usage: %+v", res.Usage)
	}
	if auth != "Bearer KEY" {
		t.Fatalf("unexpected auth header: %q", auth)
	}
	if got.Model != "gpt-4o" || got.MaxTokens != 700 || len(got.Messages) != 2 {
		t.Fatalf("unexpected request body: %+v", got)
	}
	if got.Messages[1].Role != "user" || got.Messages[1].Content != "Hello" {
		t.Fatalf("message order not preserved: %+v", got.Messages)
	}
}

func TestChatMapsAPIErrorToCompletionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"quota exceeded","type":"insufficient_quota"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "KEY", 10*time.Second)
	_, err := c.Chat(context.Background(), llm.Request{Model: "gpt-4o", Messages: []llm.Message{{Role: "user", Content: "hi"}}})
	var ce *CompletionError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CompletionError, got %T: %v", err, err)
	}
	if ce.StatusCode != http.StatusTooManyRequests || ce.Message != "quota exceeded" {
		t.Fatalf("unexpected error fields: %+v", ce)
	}
}

func TestChatEmptyChoicesIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "", 10*time.Second)
	_, err := c.Chat(context.Background(), llm.Request{Model: "gpt-4o"})
	var ce *CompletionError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CompletionError, got %v", err)
	}
}
