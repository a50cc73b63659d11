package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/evaproject/eva/internal/models"
)

func newTestSessions(t *testing.T, maxTurns int) *RedisSessions {
	t.Helper()
	srv := miniredis.RunT(t)
	cache, err := NewRedisSessions(context.Background(), srv.Addr(), 0, maxTurns, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })
	return cache
}

func TestAppendAndRecentTurns(t *testing.T) {
	cache := newTestSessions(t, 10)
	ctx := context.Background()

	base := time.Now().Truncate(time.Second)
	for i := 0; i < 3; i++ {
		err := cache.AppendTurn(ctx, "sess-1", models.Turn{
			User:      fmt.Sprintf("pergunta %d", i),
			Assistant: fmt.Sprintf("resposta %d", i),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	turns, err := cache.RecentTurns(ctx, "sess-1", 10)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	// Chronological order.
	assert.Equal(t, "pergunta 0", turns[0].User)
	assert.Equal(t, "resposta 2", turns[2].Assistant)

	// Sessions are isolated.
	other, err := cache.RecentTurns(ctx, "sess-2", 10)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestTurnWindowTrimmed(t *testing.T) {
	cache := newTestSessions(t, 3)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		err := cache.AppendTurn(ctx, "s", models.Turn{User: fmt.Sprintf("t%d", i)})
		require.NoError(t, err)
	}

	turns, err := cache.RecentTurns(ctx, "s", 10)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	// Only the newest three survive.
	assert.Equal(t, "t3", turns[0].User)
	assert.Equal(t, "t5", turns[2].User)
}

func TestClearSession(t *testing.T) {
	cache := newTestSessions(t, 10)
	ctx := context.Background()

	require.NoError(t, cache.AppendTurn(ctx, "s", models.Turn{User: "oi"}))
	require.NoError(t, cache.Clear(ctx, "s"))

	turns, err := cache.RecentTurns(ctx, "s", 10)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestConnectFailure(t *testing.T) {
	_, err := NewRedisSessions(context.Background(), "127.0.0.1:1", 0, 10, zap.NewNop())
	assert.Error(t, err)
}
