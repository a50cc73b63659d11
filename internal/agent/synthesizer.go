package agent

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/evaproject/eva/internal/config"
	"github.com/evaproject/eva/internal/models"
)

// fallbackResponses is what the synthesizer says when every persona fails.
var fallbackResponses = []string{
	"Desculpe, estou tendo algumas dificuldades técnicas no momento. Pode repetir sua pergunta?",
	"Parece que estou com um pequeno problema interno. Vamos tentar novamente?",
	"Estou passando por uma pequena instabilidade. Pode me dar um momento e tentar de novo?",
	"Algo não está funcionando como deveria. Pode reformular sua pergunta?",
}

// synthesisHistoryCap bounds the in-memory synthesis log.
const synthesisHistoryCap = 100

// synthesisRecord captures one completed synthesis for stats.
type synthesisRecord struct {
	Timestamp     time.Time
	PersonasUsed  []models.Persona
	Confidences   map[models.Persona]float64
	Intent        models.Intent
	ResponseWords int
	Synthesized   bool
}

// SynthesizerStats summarizes recent synthesizer activity.
type SynthesizerStats struct {
	TotalSyntheses int
	PersonaUsage   map[models.Persona]int
	AvgConfidence  float64
}

// PersonaSynthesizer runs the selected personas against the model and merges
// their responses into one reply. It degrades instead of failing: persona
// errors shrink the response set, and an empty set yields an apology.
type PersonaSynthesizer struct {
	generator Generator
	cfg       *config.Config
	logger    *zap.Logger

	mu      sync.Mutex
	history []synthesisRecord
	rng     *rand.Rand
}

// NewPersonaSynthesizer builds a synthesizer over the given generator.
func NewPersonaSynthesizer(generator Generator, cfg *config.Config, logger *zap.Logger) *PersonaSynthesizer {
	return &PersonaSynthesizer{
		generator: generator,
		cfg:       cfg,
		logger:    logger,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Respond produces the final reply for a turn: one generation per required
// persona, then a synthesis pass when more than one succeeded.
func (s *PersonaSynthesizer) Respond(
	ctx context.Context,
	conv models.ConversationContext,
	analysis models.AttentionAnalysis,
	memories models.MemorySet,
) string {
	responses := s.generateAll(ctx, conv, analysis, memories)
	if len(responses) == 0 {
		s.logger.Error("all personas failed", zap.String("session", conv.SessionID))
		return s.fallback()
	}

	final, synthesized := s.merge(ctx, conv, analysis, responses)
	s.record(responses, final, analysis, synthesized)
	return final
}

func (s *PersonaSynthesizer) generateAll(
	ctx context.Context,
	conv models.ConversationContext,
	analysis models.AttentionAnalysis,
	memories models.MemorySet,
) []models.PersonaResponse {
	type result struct {
		resp models.PersonaResponse
		err  error
	}

	results := make([]result, len(analysis.RequiredPersonas))
	var wg sync.WaitGroup
	for i, persona := range analysis.RequiredPersonas {
		wg.Add(1)
		go func(i int, persona models.Persona) {
			defer wg.Done()
			// A panicking persona counts as a failed one; the others
			// still answer.
			defer func() {
				if r := recover(); r != nil {
					results[i] = result{err: fmt.Errorf("persona %s panicked: %v", persona, r)}
				}
			}()
			resp, err := s.generateOne(ctx, persona, conv, analysis, memories)
			results[i] = result{resp, err}
		}(i, persona)
	}
	wg.Wait()

	var responses []models.PersonaResponse
	for i, r := range results {
		if r.err != nil {
			s.logger.Warn("persona generation failed",
				zap.String("persona", string(analysis.RequiredPersonas[i])),
				zap.Error(r.err))
			continue
		}
		responses = append(responses, r.resp)
	}
	return responses
}

func (s *PersonaSynthesizer) generateOne(
	ctx context.Context,
	persona models.Persona,
	conv models.ConversationContext,
	analysis models.AttentionAnalysis,
	memories models.MemorySet,
) (models.PersonaResponse, error) {
	prompt, contextUsed := buildPersonaPrompt(persona, conv, analysis, memories)

	start := time.Now()
	resp, err := s.generator.Generate(ctx, s.cfg.DefaultModel,
		personaSystemPrompts[persona], prompt, PersonaTemperature(persona))
	if err != nil {
		return models.PersonaResponse{}, fmt.Errorf("persona %s: %w", persona, err)
	}

	return models.PersonaResponse{
		Persona:     persona,
		Text:        resp.Text,
		Confidence:  ResponseConfidence(resp.Text, persona),
		Latency:     time.Since(start),
		ContextUsed: contextUsed,
	}, nil
}

// buildPersonaPrompt assembles the persona's working context: routing
// summary, significant emotions, recent history, the persona's memory slice
// and the current input.
func buildPersonaPrompt(
	persona models.Persona,
	conv models.ConversationContext,
	analysis models.AttentionAnalysis,
	memories models.MemorySet,
) (string, []string) {
	var b strings.Builder
	var contextUsed []string

	fmt.Fprintf(&b, `Análise de contexto:
- Intenção: %s
- Complexidade: %d/5
- Intensidade emocional: %.2f
- Urgência: %.2f
`, analysis.PrimaryIntent, analysis.ComplexityLevel, analysis.EmotionalIntensity, analysis.Urgency)

	var significant []string
	for emotion, value := range conv.EmotionalState {
		if value > 0.3 {
			significant = append(significant, fmt.Sprintf("%s=%.2f", emotion, value))
		}
	}
	if len(significant) > 0 {
		fmt.Fprintf(&b, "\nEstado emocional detectado: %s\n", strings.Join(significant, ", "))
		contextUsed = append(contextUsed, "emotional_state")
	}

	if len(conv.History) > 0 {
		recent := conv.History
		if len(recent) > 3 {
			recent = recent[len(recent)-3:]
		}
		b.WriteString("\nHistórico recente da conversa:\n")
		for _, turn := range recent {
			fmt.Fprintf(&b, "Usuário: %s\nEVA: %s\n", turn.User, turn.Assistant)
		}
		contextUsed = append(contextUsed, "history")
	}

	kind := personaMemoryKinds[persona]
	if entries := memories[kind]; len(entries) > 0 {
		if len(entries) > 3 {
			entries = entries[:3]
		}
		fmt.Fprintf(&b, "\n%s\n", personaMemoryHeaders[persona])
		for _, entry := range entries {
			fmt.Fprintf(&b, "- %s\n", entry)
		}
		contextUsed = append(contextUsed, string(kind))
	}

	fmt.Fprintf(&b, "\nEntrada atual do usuário: %q\n\n", conv.UserInput)
	b.WriteString("Responda de acordo com sua especialização, mantendo consistência com a personalidade da EVA e o contexto da conversa.")

	return b.String(), contextUsed
}

// ResponseConfidence estimates how usable a persona response is. It is a
// ranking heuristic, not a calibrated probability.
func ResponseConfidence(response string, persona models.Persona) float64 {
	confidence := 0.5

	words := strings.Fields(response)
	switch {
	case len(words) >= 20 && len(words) <= 200:
		confidence += 0.2
	case len(words) < 5:
		confidence -= 0.3
	}

	for _, marker := range []string{"1.", "2.", "-", "*"} {
		if strings.Contains(response, marker) {
			confidence += 0.1
			break
		}
	}

	if len(words) > 0 {
		unique := make(map[string]struct{}, len(words))
		for _, w := range words {
			unique[w] = struct{}{}
		}
		if float64(len(unique))/float64(len(words)) > 0.7 {
			confidence += 0.1
		}
	}

	lower := strings.ToLower(response)
	keywordBoost := 0.0
	for _, kw := range personaKeywords[persona] {
		if strings.Contains(lower, kw) {
			keywordBoost += 0.05
		}
	}
	if keywordBoost > 0.2 {
		keywordBoost = 0.2
	}
	confidence += keywordBoost

	if confidence < 0.1 {
		return 0.1
	}
	if confidence > 1.0 {
		return 1.0
	}
	return confidence
}

// merge returns the final reply. One response passes through untouched; two
// or more go through a synthesis generation, falling back to the highest
// confidence response if that fails.
func (s *PersonaSynthesizer) merge(
	ctx context.Context,
	conv models.ConversationContext,
	analysis models.AttentionAnalysis,
	responses []models.PersonaResponse,
) (string, bool) {
	if len(responses) == 1 {
		return responses[0].Text, false
	}

	var parts []string
	for _, r := range responses {
		parts = append(parts, fmt.Sprintf("**%s** (confiança: %.2f):\n%s", r.Persona, r.Confidence, r.Text))
	}

	prompt := fmt.Sprintf(`%s

Entrada do usuário: %q

Análise de contexto:
- Intenção: %s
- Intensidade emocional: %.2f
- Urgência: %.2f

Respostas dos módulos cognitivos:
%s

Sintetize essas perspectivas em uma resposta única, natural e coerente que reflita a personalidade empática e inteligente da EVA.`,
		synthesisPrompt, conv.UserInput,
		analysis.PrimaryIntent, analysis.EmotionalIntensity, analysis.Urgency,
		strings.Join(parts, "\n\n"))

	resp, err := s.generator.Generate(ctx, s.cfg.SynthesisModel, "", prompt, 0.6)
	if err != nil {
		s.logger.Warn("synthesis failed, using best persona response", zap.Error(err))
		best := responses[0]
		for _, r := range responses[1:] {
			if r.Confidence > best.Confidence {
				best = r
			}
		}
		return best.Text, false
	}
	return resp.Text, true
}

// Reflect runs the reflective persona over a completed interaction.
func (s *PersonaSynthesizer) Reflect(ctx context.Context, conv models.ConversationContext, reply string, interactionCount int) (string, error) {
	prompt := fmt.Sprintf(`%s

%s

Interação analisada:
Entrada do usuário: %q
Resposta da EVA: %q
Número da interação: %d

Forneça uma reflexão estruturada e insights acionáveis.`,
		personaSystemPrompts[models.PersonaReflective], reflectionPrompt,
		conv.UserInput, reply, interactionCount)

	resp, err := s.generator.Generate(ctx, s.cfg.DefaultModel, "", prompt, 0.5)
	if err != nil {
		return "", fmt.Errorf("reflection generation failed: %w", err)
	}
	return resp.Text, nil
}

func (s *PersonaSynthesizer) fallback() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fallbackResponses[s.rng.Intn(len(fallbackResponses))]
}

func (s *PersonaSynthesizer) record(
	responses []models.PersonaResponse,
	final string,
	analysis models.AttentionAnalysis,
	synthesized bool,
) {
	rec := synthesisRecord{
		Timestamp:     time.Now(),
		Confidences:   make(map[models.Persona]float64, len(responses)),
		Intent:        analysis.PrimaryIntent,
		ResponseWords: len(strings.Fields(final)),
		Synthesized:   synthesized,
	}
	for _, r := range responses {
		rec.PersonasUsed = append(rec.PersonasUsed, r.Persona)
		rec.Confidences[r.Persona] = r.Confidence
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, rec)
	if len(s.history) > synthesisHistoryCap {
		s.history = s.history[len(s.history)-synthesisHistoryCap:]
	}
}

// Stats summarizes the recent synthesis history.
func (s *PersonaSynthesizer) Stats() SynthesizerStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := SynthesizerStats{
		TotalSyntheses: len(s.history),
		PersonaUsage:   make(map[models.Persona]int),
	}
	var confSum float64
	var confCount int
	for _, rec := range s.history {
		for _, p := range rec.PersonasUsed {
			stats.PersonaUsage[p]++
		}
		for _, c := range rec.Confidences {
			confSum += c
			confCount++
		}
	}
	if confCount > 0 {
		stats.AvgConfidence = confSum / float64(confCount)
	}
	return stats
}
