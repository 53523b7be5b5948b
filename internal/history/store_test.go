package history

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAppendAndRecentOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Append(ctx, 1, "user", "first"))
	require.NoError(t, s.Append(ctx, 1, "assistant", "second"))
	require.NoError(t, s.Append(ctx, 1, "user", "third"))

	turns, err := s.Recent(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, "first", turns[0].Text)
	assert.Equal(t, "second", turns[1].Text)
	assert.Equal(t, "third", turns[2].Text)
	assert.Equal(t, "assistant", turns[1].Role)
}

func TestRecentReturnsNewestWindow(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(ctx, 7, "user", fmt.Sprintf("msg-%d", i)))
	}

	turns, err := s.Recent(ctx, 7, 2)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "msg-3", turns[0].Text)
	assert.Equal(t, "msg-4", turns[1].Text)
}

func TestRecentNonPositiveLimit(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Append(ctx, 1, "user", "hello"))

	turns, err := s.Recent(ctx, 1, 0)
	require.NoError(t, err)
	assert.Empty(t, turns)

	turns, err = s.Recent(ctx, 1, -3)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestHistoryIsolatedPerUser(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Append(ctx, 1, "user", "alpha"))
	require.NoError(t, s.Append(ctx, 2, "user", "beta"))

	turns, err := s.Recent(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "alpha", turns[0].Text)
}

func TestAppendExchangeStoresBothTurns(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.AppendExchange(ctx, 9, "Hello", "Hi there"))

	turns, err := s.Recent(ctx, 9, 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "user", turns[0].Role)
	assert.Equal(t, "Hello", turns[0].Text)
	assert.Equal(t, "assistant", turns[1].Role)
	assert.Equal(t, "Hi there", turns[1].Text)
}

func TestResetDeletesOnlyThatUser(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.AppendExchange(ctx, 1, "a", "b"))
	require.NoError(t, s.Append(ctx, 2, "user", "keep"))

	n, err := s.Reset(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	turns, err := s.Recent(ctx, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, turns)

	turns, err = s.Recent(ctx, 2, 10)
	require.NoError(t, err)
	assert.Len(t, turns, 1)
}

func TestResetEmptyHistoryIsNoop(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	n, err := s.Reset(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestPreferenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, ok, err := s.GetPreference(ctx, 5)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetPreference(ctx, 5, false))
	v, ok, err := s.GetPreference(ctx, 5)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, v)

	require.NoError(t, s.SetPreference(ctx, 5, true))
	v, ok, err = s.GetPreference(ctx, 5)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, v)
}

func TestPreferenceSurvivesReset(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SetPreference(ctx, 3, false))
	require.NoError(t, s.Append(ctx, 3, "user", "hi"))

	_, err := s.Reset(ctx, 3)
	require.NoError(t, err)

	v, ok, err := s.GetPreference(ctx, 3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, v)
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, 1, "user", "persisted"))
	require.NoError(t, s.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	turns, err := s2.Recent(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "persisted", turns[0].Text)
}

func TestOpenEmptyPath(t *testing.T) {
	_, err := Open("  ")
	var se *StorageError
	require.True(t, errors.As(err, &se))
}
