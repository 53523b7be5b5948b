// Package handler implements the conversation flow: take an incoming user
// message, build the prompt, call the completion endpoint and record the
// exchange.
package handler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sobesednik/sobesednik/internal/assemble"
	"github.com/sobesednik/sobesednik/llm"
)

// Store is the slice of the history store the handler writes through.
type Store interface {
	AppendExchange(ctx context.Context, userID int64, userText, assistantText string) error
	Reset(ctx context.Context, userID int64) (int64, error)
	SetPreference(ctx context.Context, userID int64, useContext bool) error
}

// Transcriber converts an audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, path string, model string) (string, error)
}

type Handler struct {
	store       Store
	assembler   *assemble.Assembler
	completer   llm.Client
	transcriber Transcriber

	model     string
	maxTokens int
	sttModel  string

	logger *slog.Logger
}

type Options struct {
	Model     string
	MaxTokens int
	STTModel  string
	Logger    *slog.Logger
}

func New(store Store, assembler *assemble.Assembler, completer llm.Client, transcriber Transcriber, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:       store,
		assembler:   assembler,
		completer:   completer,
		transcriber: transcriber,
		model:       opts.Model,
		maxTokens:   opts.MaxTokens,
		sttModel:    opts.STTModel,
		logger:      logger,
	}
}

// HandleText runs one text exchange. The user and assistant turns are
// persisted together only after the completion succeeds, so a failed call
// leaves the stored history untouched.
func (h *Handler) HandleText(ctx context.Context, userID int64, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty message")
	}

	msgs, err := h.assembler.Build(ctx, userID, text)
	if err != nil {
		return "", err
	}

	res, err := h.completer.Chat(ctx, llm.Request{
		Model:     h.model,
		Messages:  msgs,
		MaxTokens: h.maxTokens,
	})
	if err != nil {
		return "", err
	}

	h.logger.Debug("completion ok",
		"user_id", userID,
		"input_tokens", res.Usage.InputTokens,
		"output_tokens", res.Usage.OutputTokens,
		"duration", res.Duration,
	)

	if err := h.store.AppendExchange(ctx, userID, text, res.Text); err != nil {
		// The user already has a reply worth delivering; losing one
		// exchange from history is the lesser failure.
		h.logger.Warn("failed to persist exchange", "user_id", userID, "error", err)
	}
	return res.Text, nil
}

// HandleVoice transcribes the audio file and runs the recognized text
// through the normal text flow. It returns the recognized text alongside
// the reply so the caller can echo what was understood.
func (h *Handler) HandleVoice(ctx context.Context, userID int64, audioPath string) (recognized string, reply string, err error) {
	if h.transcriber == nil {
		return "", "", fmt.Errorf("voice messages are not supported")
	}
	recognized, err = h.transcriber.Transcribe(ctx, audioPath, h.sttModel)
	if err != nil {
		return "", "", err
	}
	reply, err = h.HandleText(ctx, userID, recognized)
	if err != nil {
		return recognized, "", err
	}
	return recognized, reply, nil
}

// Greeting is the static reply to /start.
func (h *Handler) Greeting() string {
	return "Hi! Send me a text or voice message and I will answer. " +
		"Use /reset to clear our conversation and /ctx to toggle whether I remember it."
}

// Reset clears the user's stored history and reports how many turns were
// removed.
func (h *Handler) Reset(ctx context.Context, userID int64) (int64, error) {
	return h.store.Reset(ctx, userID)
}

// ToggleContext flips the user's context preference and returns the new
// effective value.
func (h *Handler) ToggleContext(ctx context.Context, userID int64) (bool, error) {
	current, err := h.assembler.UseContext(ctx, userID)
	if err != nil {
		return false, err
	}
	next := !current
	if err := h.store.SetPreference(ctx, userID, next); err != nil {
		return false, err
	}
	return next, nil
}
