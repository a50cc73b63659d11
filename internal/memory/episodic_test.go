package memory

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/evaproject/eva/internal/models"
)

func newTestEpisodic(t *testing.T, maxEntries int) *SQLiteEpisodic {
	t.Helper()
	s, err := NewSQLiteEpisodic(filepath.Join(t.TempDir(), "episodic.db"), maxEntries, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreAndSessionHistory(t *testing.T) {
	s := newTestEpisodic(t, 0)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		_, err := s.StoreInteraction(ctx, models.Interaction{
			SessionID: "sess-1",
			UserInput: fmt.Sprintf("pergunta %d", i),
			Reply:     fmt.Sprintf("resposta %d", i),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}
	_, err := s.StoreInteraction(ctx, models.Interaction{
		SessionID: "sess-2",
		UserInput: "outra sessão",
		Reply:     "ok",
		Timestamp: base,
	})
	require.NoError(t, err)

	history, err := s.SessionHistory(ctx, "sess-1", 10)
	require.NoError(t, err)
	require.Len(t, history, 3)
	// Chronological order.
	assert.Equal(t, "pergunta 0", history[0].User)
	assert.Equal(t, "resposta 2", history[2].Assistant)
}

func TestSearchSimilarRanksByOverlap(t *testing.T) {
	s := newTestEpisodic(t, 0)
	ctx := context.Background()

	inputs := []string{
		"como funciona fotossíntese nas plantas",
		"qual a receita de bolo de chocolate",
		"fotossíntese usa luz solar nas plantas verdes",
	}
	for i, in := range inputs {
		_, err := s.StoreInteraction(ctx, models.Interaction{
			SessionID: "s",
			UserInput: in,
			Reply:     "resposta",
			Timestamp: time.Now().Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	results, err := s.SearchSimilar(ctx, "fotossíntese plantas luz", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "fotossíntese usa luz solar nas plantas verdes", results[0].UserInput)

	// Unrelated query finds nothing.
	none, err := s.SearchSimilar(ctx, "astronomia telescópio", 5)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSearchByCategory(t *testing.T) {
	s := newTestEpisodic(t, 0)
	ctx := context.Background()

	_, err := s.StoreInteraction(ctx, models.Interaction{
		SessionID: "s",
		UserInput: "me ajude com uma tarefa",
		Reply:     "claro",
		Metadata:  map[string]string{"intent": "task"},
	})
	require.NoError(t, err)
	_, err = s.StoreInteraction(ctx, models.Interaction{
		SessionID: "s",
		UserInput: "escreva um poema",
		Reply:     "aqui está",
		Metadata:  map[string]string{"intent": "creative_request"},
	})
	require.NoError(t, err)

	results, err := s.SearchByCategory(ctx, "creative_request", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "escreva um poema", results[0].UserInput)
}

func TestEpisodicEntryCap(t *testing.T) {
	s := newTestEpisodic(t, 5)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 8; i++ {
		_, err := s.StoreInteraction(ctx, models.Interaction{
			SessionID: "s",
			UserInput: fmt.Sprintf("entrada %d", i),
			Reply:     "r",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.TotalEntries)

	// Oldest entries were the ones evicted.
	recent, err := s.RecentEntries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 5)
	assert.Equal(t, "entrada 7", recent[0].UserInput)
	assert.Equal(t, "entrada 3", recent[4].UserInput)
}

func TestEpisodicStats(t *testing.T) {
	s := newTestEpisodic(t, 0)
	ctx := context.Background()

	for _, sess := range []string{"a", "a", "b"} {
		_, err := s.StoreInteraction(ctx, models.Interaction{
			SessionID: sess, UserInput: "oi tudo bem", Reply: "tudo",
		})
		require.NoError(t, err)
	}
	_, err := s.SearchSimilar(ctx, "tudo bem", 1)
	require.NoError(t, err)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalEntries)
	assert.Equal(t, 2, stats.UniqueSessions)
	assert.Equal(t, 1, stats.SearchCount)
}
