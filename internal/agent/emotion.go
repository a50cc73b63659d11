package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/evaproject/eva/internal/models"
)

// EmotionSensor estimates the emotional profile of an utterance with a
// low-temperature model call. Any failure falls back to a neutral profile
// so a turn never depends on it.
type EmotionSensor struct {
	generator Generator
	model     string
	logger    *zap.Logger
}

// NewEmotionSensor builds a sensor that uses the named model.
func NewEmotionSensor(generator Generator, model string, logger *zap.Logger) *EmotionSensor {
	return &EmotionSensor{generator: generator, model: model, logger: logger}
}

// Sense returns the estimated emotional state of the input. It never
// returns an error.
func (e *EmotionSensor) Sense(ctx context.Context, userInput string) models.EmotionalState {
	prompt := fmt.Sprintf(emotionalAnalysisPrompt, userInput)

	resp, err := e.generator.Generate(ctx, e.model, "", prompt, 0.3)
	if err != nil {
		e.logger.Warn("emotional analysis failed", zap.Error(err))
		return NeutralEmotionalState()
	}

	state, err := parseEmotionalState(resp.Text)
	if err != nil {
		e.logger.Warn("could not parse emotional analysis", zap.Error(err))
		return NeutralEmotionalState()
	}
	return state
}

// NeutralEmotionalState is the profile assumed when sensing is unavailable.
func NeutralEmotionalState() models.EmotionalState {
	return models.EmotionalState{
		"alegria":   0.3,
		"tristeza":  0.1,
		"raiva":     0.1,
		"medo":      0.1,
		"surpresa":  0.2,
		"confianca": 0.4,
		"energia":   0.3,
		"calma":     0.5,
	}
}

// parseEmotionalState extracts a JSON object from possibly chatty model
// output, drops non-numeric values and clamps the rest to [0, 1].
func parseEmotionalState(raw string) (models.EmotionalState, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &parsed); err != nil {
		return nil, fmt.Errorf("invalid emotion JSON: %w", err)
	}

	state := make(models.EmotionalState)
	for emotion, v := range parsed {
		value, ok := v.(float64)
		if !ok {
			continue
		}
		if value < 0 {
			value = 0
		}
		if value > 1 {
			value = 1
		}
		state[emotion] = value
	}
	if len(state) == 0 {
		return nil, fmt.Errorf("no numeric emotions in response")
	}
	return state, nil
}
