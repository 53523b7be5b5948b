package assemble

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sobesednik/sobesednik/internal/history"
	"github.com/sobesednik/sobesednik/llm"
)

type fakeSource struct {
	turns   []history.Turn
	pref    bool
	prefSet bool
	err     error

	gotLimit int
}

func (f *fakeSource) Recent(ctx context.Context, userID int64, limit int) ([]history.Turn, error) {
	f.gotLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	if limit <= 0 {
		return nil, nil
	}
	turns := f.turns
	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns, nil
}

func (f *fakeSource) GetPreference(ctx context.Context, userID int64) (bool, bool, error) {
	if f.err != nil {
		return false, false, f.err
	}
	return f.pref, f.prefSet, nil
}

func TestBuildSystemPromptFirst(t *testing.T) {
	src := &fakeSource{
		turns: []history.Turn{
			{Role: "user", Text: "earlier question"},
			{Role: "assistant", Text: "earlier answer"},
		},
	}
	a := New(src, Config{SystemPrompt: "be brief", MaxMessages: 12, UseContextDefault: true})

	msgs, err := a.Build(context.Background(), 1, "Hello")
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, llm.Message{Role: llm.RoleSystem, Content: "be brief"}, msgs[0])
	assert.Equal(t, "earlier question", msgs[1].Content)
	assert.Equal(t, "earlier answer", msgs[2].Content)
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "Hello"}, msgs[3])
}

func TestBuildHonorsMaxMessages(t *testing.T) {
	src := &fakeSource{
		turns: []history.Turn{
			{Role: "user", Text: "m1"},
			{Role: "assistant", Text: "m2"},
			{Role: "user", Text: "m3"},
			{Role: "assistant", Text: "m4"},
			{Role: "user", Text: "m5"},
		},
	}
	a := New(src, Config{MaxMessages: 2, UseContextDefault: true})

	msgs, err := a.Build(context.Background(), 1, "now")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, 2, src.gotLimit)
	assert.Equal(t, "m4", msgs[0].Content)
	assert.Equal(t, "m5", msgs[1].Content)
	assert.Equal(t, "now", msgs[2].Content)
}

func TestBuildContextDisabledByPreference(t *testing.T) {
	src := &fakeSource{
		turns:   []history.Turn{{Role: "user", Text: "old"}},
		pref:    false,
		prefSet: true,
	}
	a := New(src, Config{SystemPrompt: "sys", MaxMessages: 12, UseContextDefault: true})

	msgs, err := a.Build(context.Background(), 1, "fresh")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Equal(t, "fresh", msgs[1].Content)
}

func TestBuildNoSystemPrompt(t *testing.T) {
	a := New(&fakeSource{}, Config{UseContextDefault: true, MaxMessages: 12})

	msgs, err := a.Build(context.Background(), 1, "hi")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, llm.RoleUser, msgs[0].Role)
}

func TestUseContextFallsBackToDefault(t *testing.T) {
	a := New(&fakeSource{prefSet: false}, Config{UseContextDefault: true})
	v, err := a.UseContext(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, v)

	a = New(&fakeSource{pref: false, prefSet: true}, Config{UseContextDefault: true})
	v, err = a.UseContext(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, v)
}

func TestBuildPropagatesStoreError(t *testing.T) {
	boom := errors.New("db locked")
	a := New(&fakeSource{err: boom}, Config{UseContextDefault: true, MaxMessages: 12})

	_, err := a.Build(context.Background(), 1, "hi")
	require.ErrorIs(t, err, boom)
}
