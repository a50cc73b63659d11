package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/evaproject/eva/internal/config"
	"github.com/evaproject/eva/internal/memory"
	"github.com/evaproject/eva/internal/models"
)

// memEpisodic is an in-memory episodic store for orchestrator tests.
type memEpisodic struct {
	mu          sync.Mutex
	entries     []models.Interaction
	historyErr  error
	nextID      int64
	searchCalls int
}

func (m *memEpisodic) StoreInteraction(ctx context.Context, in models.Interaction) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	in.ID = m.nextID
	m.entries = append(m.entries, in)
	return in.ID, nil
}

func (m *memEpisodic) SearchSimilar(ctx context.Context, query string, limit int) ([]models.Interaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searchCalls++
	return nil, nil
}

func (m *memEpisodic) SearchByCategory(ctx context.Context, category string, limit int) ([]models.Interaction, error) {
	return nil, nil
}

func (m *memEpisodic) SessionHistory(ctx context.Context, sessionID string, limit int) ([]models.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.historyErr != nil {
		return nil, m.historyErr
	}
	var turns []models.Turn
	for _, e := range m.entries {
		if e.SessionID == sessionID {
			turns = append(turns, models.Turn{User: e.UserInput, Assistant: e.Reply})
		}
	}
	return turns, nil
}

func (m *memEpisodic) RecentEntries(ctx context.Context, limit int) ([]models.Interaction, error) {
	return nil, nil
}

func (m *memEpisodic) Stats(ctx context.Context) (memory.EpisodicStats, error) {
	return memory.EpisodicStats{}, nil
}

func (m *memEpisodic) Close() error { return nil }

func (m *memEpisodic) stored() []models.Interaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Interaction{}, m.entries...)
}

// memAffective is an in-memory affective store for orchestrator tests.
type memAffective struct {
	mu          sync.Mutex
	stored      int
	reflections []models.Reflection
}

func (m *memAffective) StoreInteraction(ctx context.Context, sessionID string, state models.EmotionalState, userInput, reply string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stored++
	return "id", nil
}

func (m *memAffective) RelevantMemories(ctx context.Context, state models.EmotionalState, limit int) ([]string, error) {
	return []string{"memória afetiva"}, nil
}

func (m *memAffective) RelationshipSummary(ctx context.Context, sessionID string) (*models.RelationshipSummary, error) {
	return nil, nil
}

func (m *memAffective) StoreReflection(ctx context.Context, r models.Reflection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reflections = append(m.reflections, r)
	return nil
}

func (m *memAffective) RecentReflections(ctx context.Context, sessionID string, limit int) ([]models.Reflection, error) {
	return nil, nil
}

func (m *memAffective) Stats(ctx context.Context) (memory.AffectiveStats, error) {
	return memory.AffectiveStats{}, nil
}

func (m *memAffective) Close() error { return nil }

func (m *memAffective) reflectionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reflections)
}

func newTestOrchestrator(t *testing.T, gen Generator, cfg *config.Config) (*Orchestrator, *memEpisodic, *memAffective) {
	t.Helper()
	if cfg == nil {
		cfg = config.Default()
	}
	logger := zap.NewNop()
	episodic := &memEpisodic{}
	affective := &memAffective{}

	o := NewOrchestrator(
		context.Background(),
		cfg,
		NewAttentionAnalyzer(cfg),
		NewEmotionSensor(gen, cfg.DefaultModel, logger),
		NewPersonaSynthesizer(gen, cfg, logger),
		episodic,
		affective,
		nil,
		logger,
	)
	return o, episodic, affective
}

func TestProcessTurnStoresInteraction(t *testing.T) {
	gen := &fakeGenerator{responses: map[string]string{
		"estado emocional": `{"alegria": 0.6, "calma": 0.7}`,
	}}
	o, episodic, affective := newTestOrchestrator(t, gen, nil)

	reply := o.ProcessTurn(context.Background(), "oi, tudo bem?")
	assert.NotEmpty(t, reply)

	stored := episodic.stored()
	require.Len(t, stored, 1)
	assert.Equal(t, "oi, tudo bem?", stored[0].UserInput)
	assert.Equal(t, reply, stored[0].Reply)
	assert.Equal(t, string(models.IntentCasualChat), stored[0].Metadata["intent"])

	affective.mu.Lock()
	assert.Equal(t, 1, affective.stored)
	affective.mu.Unlock()

	stats := o.Stats()
	assert.Equal(t, 1, stats.InteractionCount)
	assert.Equal(t, 1, stats.SuccessfulInteractions)
}

func TestProcessTurnNeverErrorsOnBackendFailure(t *testing.T) {
	gen := &fakeGenerator{failAll: true}
	o, _, _ := newTestOrchestrator(t, gen, nil)

	reply := o.ProcessTurn(context.Background(), "como funciona a fotossíntese?")
	// Every model call failed, so the reply is one of the apologies.
	assert.Contains(t, fallbackResponses, reply)
}

func TestProcessTurnHistoryFailureYieldsApology(t *testing.T) {
	gen := &fakeGenerator{}
	o, episodic, _ := newTestOrchestrator(t, gen, nil)
	episodic.historyErr = errors.New("disk gone")

	reply := o.ProcessTurn(context.Background(), "oi")
	assert.Contains(t, errorResponses, reply)

	stats := o.Stats()
	assert.Equal(t, 1, stats.InteractionCount)
	assert.Equal(t, 0, stats.SuccessfulInteractions)
}

// panicEpisodic lets individual store calls blow up.
type panicEpisodic struct {
	*memEpisodic
	panicHistory bool
	panicSearch  bool
}

func (p *panicEpisodic) SessionHistory(ctx context.Context, sessionID string, limit int) ([]models.Turn, error) {
	if p.panicHistory {
		panic("episodic store corrupted")
	}
	return p.memEpisodic.SessionHistory(ctx, sessionID, limit)
}

func (p *panicEpisodic) SearchSimilar(ctx context.Context, query string, limit int) ([]models.Interaction, error) {
	if p.panicSearch {
		panic("episodic index corrupted")
	}
	return p.memEpisodic.SearchSimilar(ctx, query, limit)
}

func newPanickingOrchestrator(t *testing.T, episodic memory.EpisodicStore) (*Orchestrator, *memAffective) {
	t.Helper()
	cfg := config.Default()
	gen := &fakeGenerator{}
	logger := zap.NewNop()
	affective := &memAffective{}

	o := NewOrchestrator(
		context.Background(),
		cfg,
		NewAttentionAnalyzer(cfg),
		NewEmotionSensor(gen, cfg.DefaultModel, logger),
		NewPersonaSynthesizer(gen, cfg, logger),
		episodic,
		affective,
		nil,
		logger,
	)
	return o, affective
}

func TestProcessTurnRecoversFromPanic(t *testing.T) {
	episodic := &panicEpisodic{memEpisodic: &memEpisodic{}, panicHistory: true}
	o, _ := newPanickingOrchestrator(t, episodic)

	reply := o.ProcessTurn(context.Background(), "oi")
	assert.Contains(t, errorResponses, reply)
}

func TestRetrievalPanicDoesNotFailTurn(t *testing.T) {
	episodic := &panicEpisodic{memEpisodic: &memEpisodic{}, panicSearch: true}
	o, _ := newPanickingOrchestrator(t, episodic)

	reply := o.ProcessTurn(context.Background(), "como funciona a fotossíntese?")
	assert.NotEmpty(t, reply)
	assert.NotContains(t, errorResponses, reply)

	stats := o.Stats()
	assert.Equal(t, 1, stats.SuccessfulInteractions)
}

func TestReflectionRunsAtInterval(t *testing.T) {
	cfg := config.Default()
	cfg.ReflectionInterval = 2
	cfg.EnableReflection = true
	cfg.DrainReflections = true

	gen := &fakeGenerator{}
	o, _, affective := newTestOrchestrator(t, gen, cfg)

	o.ProcessTurn(context.Background(), "primeira mensagem para conversar")
	assert.Equal(t, 0, affective.reflectionCount())

	o.ProcessTurn(context.Background(), "segunda mensagem para conversar")
	o.Shutdown()
	assert.Equal(t, 1, affective.reflectionCount())

	// Counter resets after a reflection.
	o.ProcessTurn(context.Background(), "terceira mensagem")
	o.Shutdown()
	assert.Equal(t, 1, affective.reflectionCount())

	o.ProcessTurn(context.Background(), "quarta mensagem")
	o.Shutdown()
	assert.Equal(t, 2, affective.reflectionCount())
}

func TestReflectionDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.ReflectionInterval = 1
	cfg.EnableReflection = false
	cfg.DrainReflections = true

	gen := &fakeGenerator{}
	o, _, affective := newTestOrchestrator(t, gen, cfg)

	for i := 0; i < 3; i++ {
		o.ProcessTurn(context.Background(), "mensagem")
	}
	o.Shutdown()
	assert.Equal(t, 0, affective.reflectionCount())
}

func TestNewSessionChangesID(t *testing.T) {
	gen := &fakeGenerator{}
	o, _, _ := newTestOrchestrator(t, gen, nil)

	first := o.SessionID()
	second := o.NewSession()
	assert.NotEqual(t, first, second)
	assert.Equal(t, second, o.SessionID())
}

func TestTurnsAccumulateHistory(t *testing.T) {
	gen := &fakeGenerator{}
	o, episodic, _ := newTestOrchestrator(t, gen, nil)

	o.ProcessTurn(context.Background(), "primeira pergunta sobre o tempo")
	o.ProcessTurn(context.Background(), "segunda pergunta relacionada")

	stored := episodic.stored()
	require.Len(t, stored, 2)
	assert.Equal(t, stored[0].SessionID, stored[1].SessionID)

	start := time.Now()
	_ = o.Stats()
	assert.Less(t, time.Since(start), time.Second)
}
