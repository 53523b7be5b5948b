package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sobesednik/sobesednik/llm"
)

type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// CompletionError is returned when the completion endpoint rejects or fails
// a request (non-2xx status, quota exhaustion, malformed response).
type CompletionError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *CompletionError) Error() string {
	msg := strings.TrimSpace(e.Message)
	switch {
	case e.StatusCode > 0 && msg != "":
		return fmt.Sprintf("openai completion http %d: %s", e.StatusCode, msg)
	case e.StatusCode > 0:
		return fmt.Sprintf("openai completion http %d", e.StatusCode)
	case msg != "":
		return "openai completion: " + msg
	case e.Err != nil:
		return "openai completion: " + e.Err.Error()
	default:
		return "openai completion failed"
	}
}

func (e *CompletionError) Unwrap() error { return e.Err }

type chatCompletionRequest struct {
	Model     string        `json:"model"`
	Messages  []llm.Message `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (c *Client) Chat(ctx context.Context, req llm.Request) (llm.Result, error) {
	start := time.Now()

	body := chatCompletionRequest{
		Model:     req.Model,
		Messages:  req.Messages,
		MaxTokens: req.MaxTokens,
	}
	b, err := json.Marshal(body)
	if err != nil {
		return llm.Result{}, &CompletionError{Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/chat/completions", bytes.NewReader(b))
	if err != nil {
		return llm.Result{}, &CompletionError{Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return llm.Result{}, &CompletionError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return llm.Result{}, &CompletionError{StatusCode: resp.StatusCode, Err: err}
	}

	var out chatCompletionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return llm.Result{}, &CompletionError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw)), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(raw))
		if out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		return llm.Result{}, &CompletionError{StatusCode: resp.StatusCode, Message: msg}
	}
	if len(out.Choices) == 0 {
		return llm.Result{}, &CompletionError{StatusCode: resp.StatusCode, Message: "empty choices"}
	}

	return llm.Result{
		Text: strings.TrimSpace(out.Choices[0].Message.Content),
		Usage: llm.Usage{
			InputTokens:  out.Usage.PromptTokens,
			OutputTokens: out.Usage.CompletionTokens,
			TotalTokens:  out.Usage.TotalTokens,
		},
		Duration: time.Since(start),
	}, nil
}
