package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/evaproject/eva/internal/models"
)

func TestParseEmotionalState(t *testing.T) {
	state, err := parseEmotionalState(`{"alegria": 0.8, "tristeza": 0.1}`)
	require.NoError(t, err)
	assert.Equal(t, 0.8, state["alegria"])

	// Fenced and chatty output still parses.
	state, err = parseEmotionalState("Claro! Aqui está:\n```json\n{\"raiva\": 0.5}\n```")
	require.NoError(t, err)
	assert.Equal(t, 0.5, state["raiva"])

	// Out-of-range values are clamped, non-numeric values dropped.
	state, err = parseEmotionalState(`{"medo": 1.7, "calma": -0.2, "nota": "alta"}`)
	require.NoError(t, err)
	assert.Equal(t, 1.0, state["medo"])
	assert.Equal(t, 0.0, state["calma"])
	assert.NotContains(t, state, "nota")

	_, err = parseEmotionalState("não sei dizer")
	assert.Error(t, err)

	_, err = parseEmotionalState(`{"tudo": "texto"}`)
	assert.Error(t, err)
}

func TestSenseFallsBackToNeutral(t *testing.T) {
	gen := &fakeGenerator{failAll: true}
	sensor := NewEmotionSensor(gen, "m", zap.NewNop())

	state := sensor.Sense(context.Background(), "oi")
	assert.Equal(t, NeutralEmotionalState(), state)
}

func TestSenseParsesModelOutput(t *testing.T) {
	gen := &fakeGenerator{responses: map[string]string{
		"estado emocional": `{"energia": 0.9, "alegria": 0.7}`,
	}}
	sensor := NewEmotionSensor(gen, "m", zap.NewNop())

	state := sensor.Sense(context.Background(), "que dia incrível!")
	assert.Equal(t, models.EmotionalState{"energia": 0.9, "alegria": 0.7}, state)
}
