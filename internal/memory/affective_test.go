package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/evaproject/eva/internal/models"
)

func newTestAffective(t *testing.T, maxEntries int) *BadgerAffective {
	t.Helper()
	b, err := NewBadgerAffective(t.TempDir(), maxEntries, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestWeightedIntensity(t *testing.T) {
	assert.Equal(t, 0.0, WeightedIntensity(nil))
	assert.Equal(t, 0.0, WeightedIntensity(models.EmotionalState{}))

	// A single emotion at full strength yields its value regardless of
	// weight.
	assert.InDelta(t, 1.0, WeightedIntensity(models.EmotionalState{"raiva": 1.0}), 1e-9)

	// Anger weighs more than calm, so the blend skews above the midpoint
	// of a plain average weighted toward raiva.
	mixed := WeightedIntensity(models.EmotionalState{"raiva": 1.0, "calma": 0.0})
	assert.Greater(t, mixed, 0.5)
}

func TestRelationshipImpact(t *testing.T) {
	positive := RelationshipImpact(
		models.EmotionalState{"alegria": 0.8, "confianca": 0.6},
		"obrigado, foi perfeito",
		"fico feliz em ajudar com isso")
	assert.Greater(t, positive, 0.5)

	negative := RelationshipImpact(
		models.EmotionalState{"raiva": 0.9, "tristeza": 0.5},
		"isso foi terrível, odeio essa resposta",
		"sinto muito")
	assert.Less(t, negative, -0.5)

	// Always clamped.
	assert.LessOrEqual(t, positive, 1.0)
	assert.GreaterOrEqual(t, negative, -1.0)
}

func TestStoreInteractionBuildsSummary(t *testing.T) {
	b := newTestAffective(t, 0)
	ctx := context.Background()

	happy := models.EmotionalState{"alegria": 0.8, "confianca": 0.7}
	for i := 0; i < 3; i++ {
		_, err := b.StoreInteraction(ctx, "sess-1", happy,
			"obrigado pela ajuda, gosto muito",
			"que bom, estou aqui sempre que precisar de algo")
		require.NoError(t, err)
	}

	summary, err := b.RelationshipSummary(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, 3, summary.TotalInteractions)
	assert.Greater(t, summary.Quality, 0.5)
	assert.Greater(t, summary.TrustLevel, 0.5)
	assert.InDelta(t, 1.0, summary.DominantEmotions["alegria"], 1e-9)
	assert.False(t, summary.Preferences["prefers_emotional_support"])

	// Unknown session has no summary.
	missing, err := b.RelationshipSummary(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestPreferencesEmergeWithHistory(t *testing.T) {
	b := newTestAffective(t, 0)
	ctx := context.Background()

	intense := models.EmotionalState{"tristeza": 0.9, "raiva": 0.8}
	for i := 0; i < 6; i++ {
		_, err := b.StoreInteraction(ctx, "sess-1", intense,
			"estou me sentindo muito mal hoje",
			"sinto muito, estou aqui com você")
		require.NoError(t, err)
	}

	summary, err := b.RelationshipSummary(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.True(t, summary.Preferences["prefers_emotional_support"])
	assert.False(t, summary.Preferences["prefers_creative_content"])
}

func TestCommunicationStyle(t *testing.T) {
	tests := []struct {
		intensity, impact float64
		want              string
	}{
		{0.8, 0.4, "expressive"},
		{0.2, 0.1, "calm"},
		{0.5, 0.6, "supportive"},
		{0.5, -0.5, "cautious"},
		{0.5, 0.1, "balanced"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, communicationStyle(tt.intensity, tt.impact))
	}
}

func TestRelevantMemoriesByIntensity(t *testing.T) {
	b := newTestAffective(t, 0)
	ctx := context.Background()

	calm := models.EmotionalState{"calma": 0.4}
	intense := models.EmotionalState{"raiva": 0.95, "medo": 0.9}

	_, err := b.StoreInteraction(ctx, "s", calm, "dia tranquilo hoje", "que bom")
	require.NoError(t, err)
	_, err = b.StoreInteraction(ctx, "s", intense, "estou furioso com tudo", "entendo sua frustração")
	require.NoError(t, err)

	// A calm query should surface the calm memory, not the intense one.
	memories, err := b.RelevantMemories(ctx, models.EmotionalState{"calma": 0.5}, 5)
	require.NoError(t, err)
	require.Len(t, memories, 1)
	assert.Contains(t, memories[0], "dia tranquilo")
}

func TestReflections(t *testing.T) {
	b := newTestAffective(t, 0)
	ctx := context.Background()

	for _, text := range []string{"primeira reflexão", "segunda reflexão"} {
		require.NoError(t, b.StoreReflection(ctx, models.Reflection{
			SessionID: "sess-1",
			Text:      text,
		}))
	}

	got, err := b.RecentReflections(ctx, "sess-1", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Newest first.
	assert.Equal(t, "segunda reflexão", got[0].Text)

	other, err := b.RecentReflections(ctx, "other", 10)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestAffectiveEntryCap(t *testing.T) {
	b := newTestAffective(t, 3)
	ctx := context.Background()

	state := models.EmotionalState{"calma": 0.5}
	for i := 0; i < 6; i++ {
		_, err := b.StoreInteraction(ctx, "s", state, "entrada", "resposta")
		require.NoError(t, err)
	}

	stats, err := b.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalEntries)
}

func TestAffectiveStats(t *testing.T) {
	b := newTestAffective(t, 0)
	ctx := context.Background()

	_, err := b.StoreInteraction(ctx, "s",
		models.EmotionalState{"alegria": 1.0}, "obrigado", "de nada")
	require.NoError(t, err)
	require.NoError(t, b.StoreReflection(ctx, models.Reflection{SessionID: "s", Text: "nota"}))

	stats, err := b.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalEntries)
	assert.Equal(t, 1, stats.TotalReflections)
	assert.Greater(t, stats.AvgIntensity, 0.0)
}
