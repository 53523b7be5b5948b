// Package assemble turns stored conversation turns into the message stack
// sent to the completion endpoint.
package assemble

import (
	"context"

	"github.com/sobesednik/sobesednik/internal/history"
	"github.com/sobesednik/sobesednik/llm"
)

// HistorySource is the slice of the history store the assembler needs.
type HistorySource interface {
	Recent(ctx context.Context, userID int64, limit int) ([]history.Turn, error)
	GetPreference(ctx context.Context, userID int64) (value bool, ok bool, err error)
}

type Config struct {
	SystemPrompt      string
	MaxMessages       int
	UseContextDefault bool
}

type Assembler struct {
	source HistorySource
	cfg    Config
}

func New(source HistorySource, cfg Config) *Assembler {
	return &Assembler{source: source, cfg: cfg}
}

// UseContext resolves the effective context flag for the user: their stored
// preference when one exists, the configured default otherwise.
func (a *Assembler) UseContext(ctx context.Context, userID int64) (bool, error) {
	v, ok, err := a.source.GetPreference(ctx, userID)
	if err != nil {
		return false, err
	}
	if !ok {
		return a.cfg.UseContextDefault, nil
	}
	return v, nil
}

// Build produces the message stack for one completion call: the system
// prompt (if configured), then the bounded history window when context is
// enabled for the user, then the current user text. The current text is
// appended in-memory only; persisting it is the caller's decision after the
// completion succeeds.
func (a *Assembler) Build(ctx context.Context, userID int64, userText string) ([]llm.Message, error) {
	var msgs []llm.Message
	if a.cfg.SystemPrompt != "" {
		msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: a.cfg.SystemPrompt})
	}

	useContext, err := a.UseContext(ctx, userID)
	if err != nil {
		return nil, err
	}
	if useContext {
		turns, err := a.source.Recent(ctx, userID, a.cfg.MaxMessages)
		if err != nil {
			return nil, err
		}
		for _, t := range turns {
			msgs = append(msgs, llm.Message{Role: t.Role, Content: t.Text})
		}
	}

	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: userText})
	return msgs, nil
}
