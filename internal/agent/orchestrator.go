package agent

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/evaproject/eva/internal/config"
	"github.com/evaproject/eva/internal/memory"
	"github.com/evaproject/eva/internal/models"
)

// errorResponses is what the orchestrator says when a turn fails outright.
var errorResponses = []string{
	"Desculpe, estou tendo algumas dificuldades técnicas no momento. Pode tentar novamente?",
	"Parece que algo não funcionou como esperado. Vamos tentar de novo?",
	"Estou passando por um pequeno problema interno. Pode repetir sua pergunta?",
	"Algo deu errado do meu lado. Pode me dar mais uma chance?",
}

// OrchestratorStats summarizes orchestrator activity since startup.
type OrchestratorStats struct {
	InteractionCount       int
	SuccessfulInteractions int
	ReflectionCount        int
	AvgResponseTime        time.Duration
}

// Orchestrator drives a full conversation turn: emotion sensing, attention
// analysis, memory retrieval, persona synthesis, storage and the periodic
// background reflection. ProcessTurn never returns an error; failures
// degrade into apologetic replies.
type Orchestrator struct {
	cfg         *config.Config
	attention   *AttentionAnalyzer
	emotions    *EmotionSensor
	synthesizer *PersonaSynthesizer
	episodic    memory.EpisodicStore
	affective   memory.AffectiveStore
	sessions    memory.SessionCache
	logger      *zap.Logger

	// baseCtx outlives individual turns so background reflections are not
	// cancelled with the turn that spawned them.
	baseCtx context.Context

	mu                  sync.Mutex
	sessionID           string
	interactionCount    int
	lastReflectionCount int
	successCount        int
	totalResponseTime   time.Duration
	reflectionCount     int
	rng                 *rand.Rand

	reflections sync.WaitGroup
}

// NewOrchestrator wires the cognitive core to the memory stores. sessions
// may be nil when no Redis cache is configured.
func NewOrchestrator(
	baseCtx context.Context,
	cfg *config.Config,
	attention *AttentionAnalyzer,
	emotions *EmotionSensor,
	synthesizer *PersonaSynthesizer,
	episodic memory.EpisodicStore,
	affective memory.AffectiveStore,
	sessions memory.SessionCache,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:         cfg,
		attention:   attention,
		emotions:    emotions,
		synthesizer: synthesizer,
		episodic:    episodic,
		affective:   affective,
		sessions:    sessions,
		logger:      logger,
		baseCtx:     baseCtx,
		sessionID:   uuid.NewString(),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SessionID returns the current session identifier.
func (o *Orchestrator) SessionID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessionID
}

// NewSession starts a fresh session and returns its identifier.
func (o *Orchestrator) NewSession() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sessionID = uuid.NewString()
	return o.sessionID
}

// ProcessTurn handles one user input end to end and returns the reply. It
// never returns an error: internal failures, panics included, produce an
// apology instead.
func (o *Orchestrator) ProcessTurn(ctx context.Context, userInput string) (reply string) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("panic during turn",
				zap.Any("panic", r),
				zap.Stack("stack"))
			reply = o.errorResponse()
		}
	}()

	start := time.Now()

	o.mu.Lock()
	o.interactionCount++
	sessionID := o.sessionID
	o.mu.Unlock()

	o.logger.Info("processing user input",
		zap.String("session", sessionID),
		zap.String("input", truncateForLog(userInput, 100)))

	conv, err := o.buildContext(ctx, sessionID, userInput)
	if err != nil {
		o.logger.Error("failed to build conversation context", zap.Error(err))
		return o.errorResponse()
	}

	analysis := o.attention.Analyze(conv)
	memories := o.retrieveMemories(ctx, conv, analysis)

	reply = o.synthesizer.Respond(ctx, conv, analysis, memories)

	o.storeInteraction(ctx, conv, analysis, reply)

	if o.cfg.EnableReflection && o.shouldReflect() {
		o.spawnReflection(conv, reply)
	}

	elapsed := time.Since(start)
	o.mu.Lock()
	o.successCount++
	o.totalResponseTime += elapsed
	o.mu.Unlock()

	o.logger.Info("turn complete",
		zap.String("session", sessionID),
		zap.String("intent", string(analysis.PrimaryIntent)),
		zap.Int("personas", len(analysis.RequiredPersonas)),
		zap.Duration("took", elapsed))

	return reply
}

func (o *Orchestrator) buildContext(ctx context.Context, sessionID, userInput string) (models.ConversationContext, error) {
	conv := models.ConversationContext{
		UserInput: userInput,
		SessionID: sessionID,
		Timestamp: time.Now(),
	}

	// Recent turns come from the fast cache when available, the episodic
	// store otherwise.
	var history []models.Turn
	var err error
	if o.sessions != nil {
		history, err = o.sessions.RecentTurns(ctx, sessionID, o.cfg.MaxConversationHistory)
		if err != nil {
			o.logger.Warn("session cache read failed, falling back to episodic store", zap.Error(err))
		}
	}
	if history == nil {
		history, err = o.episodic.SessionHistory(ctx, sessionID, o.cfg.MaxConversationHistory)
		if err != nil {
			return conv, err
		}
	}
	conv.History = history
	conv.EmotionalState = o.emotions.Sense(ctx, userInput)
	return conv, nil
}

// retrieveMemories gathers the memory slices the personas draw on. Lookups
// run concurrently; a failed lookup just leaves its slice empty.
func (o *Orchestrator) retrieveMemories(ctx context.Context, conv models.ConversationContext, analysis models.AttentionAnalysis) models.MemorySet {
	memories := make(models.MemorySet)
	var mu sync.Mutex
	set := func(kind models.MemoryKind, entries []string) {
		mu.Lock()
		memories[kind] = entries
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(o.guarded(func() error {
		entries, err := o.episodic.SearchSimilar(gctx, conv.UserInput, 5)
		if err != nil {
			o.logger.Warn("episodic retrieval failed", zap.Error(err))
			return nil
		}
		set(models.MemoryEpisodic, describeInteractions(entries))
		return nil
	}))

	g.Go(o.guarded(func() error {
		entries, err := o.affective.RelevantMemories(gctx, conv.EmotionalState, 3)
		if err != nil {
			o.logger.Warn("affective retrieval failed", zap.Error(err))
			return nil
		}
		set(models.MemoryAffective, entries)
		return nil
	}))

	switch analysis.PrimaryIntent {
	case models.IntentCreativeRequest:
		g.Go(o.guarded(func() error {
			entries, err := o.episodic.SearchByCategory(gctx, string(models.IntentCreativeRequest), 3)
			if err != nil {
				o.logger.Warn("creative retrieval failed", zap.Error(err))
				return nil
			}
			set(models.MemoryCreative, describeInteractions(entries))
			return nil
		}))
	case models.IntentTask:
		g.Go(o.guarded(func() error {
			entries, err := o.episodic.SearchByCategory(gctx, string(models.IntentTask), 3)
			if err != nil {
				o.logger.Warn("task retrieval failed", zap.Error(err))
				return nil
			}
			set(models.MemoryTasks, describeInteractions(entries))
			return nil
		}))
	}

	for _, p := range analysis.RequiredPersonas {
		if p == models.PersonaReflective {
			g.Go(o.guarded(func() error {
				reflections, err := o.affective.RecentReflections(gctx, conv.SessionID, 3)
				if err != nil {
					o.logger.Warn("reflection retrieval failed", zap.Error(err))
					return nil
				}
				texts := make([]string, len(reflections))
				for i, r := range reflections {
					texts[i] = r.Text
				}
				set(models.MemoryReflections, texts)
				return nil
			}))
			break
		}
	}

	// Lookups swallow their own errors, so Wait only propagates context
	// cancellation.
	_ = g.Wait()
	return memories
}

// guarded converts a panic in a retrieval goroutine into a logged miss, so a
// broken store cannot take the process down from inside the errgroup.
func (o *Orchestrator) guarded(fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				o.logger.Error("panic during memory retrieval", zap.Any("panic", r))
			}
		}()
		return fn()
	}
}

func describeInteractions(entries []models.Interaction) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = truncateForLog(e.UserInput, 80) + " -> " + truncateForLog(e.Reply, 80)
	}
	return out
}

func (o *Orchestrator) storeInteraction(ctx context.Context, conv models.ConversationContext, analysis models.AttentionAnalysis, reply string) {
	metadata := map[string]string{
		"intent":     string(analysis.PrimaryIntent),
		"complexity": strconv.Itoa(analysis.ComplexityLevel),
	}

	if _, err := o.episodic.StoreInteraction(ctx, models.Interaction{
		SessionID: conv.SessionID,
		UserInput: conv.UserInput,
		Reply:     reply,
		Timestamp: conv.Timestamp,
		Metadata:  metadata,
	}); err != nil {
		o.logger.Error("failed to store episodic interaction", zap.Error(err))
	}

	if _, err := o.affective.StoreInteraction(ctx, conv.SessionID, conv.EmotionalState, conv.UserInput, reply); err != nil {
		o.logger.Error("failed to store affective interaction", zap.Error(err))
	}

	if o.sessions != nil {
		if err := o.sessions.AppendTurn(ctx, conv.SessionID, models.Turn{
			User:      conv.UserInput,
			Assistant: reply,
			Timestamp: conv.Timestamp,
		}); err != nil {
			o.logger.Warn("failed to cache session turn", zap.Error(err))
		}
	}
}

func (o *Orchestrator) shouldReflect() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.interactionCount-o.lastReflectionCount >= o.cfg.ReflectionInterval
}

// spawnReflection runs the post-interaction reflection in the background,
// off the turn's context so it survives the turn ending.
func (o *Orchestrator) spawnReflection(conv models.ConversationContext, reply string) {
	o.mu.Lock()
	o.lastReflectionCount = o.interactionCount
	count := o.interactionCount
	o.mu.Unlock()

	o.reflections.Add(1)
	go func() {
		defer o.reflections.Done()
		defer func() {
			if r := recover(); r != nil {
				o.logger.Error("panic during reflection", zap.Any("panic", r))
			}
		}()

		text, err := o.synthesizer.Reflect(o.baseCtx, conv, reply, count)
		if err != nil {
			o.logger.Warn("post-interaction reflection failed", zap.Error(err))
			return
		}

		if err := o.affective.StoreReflection(o.baseCtx, models.Reflection{
			SessionID: conv.SessionID,
			Text:      text,
			Timestamp: time.Now(),
		}); err != nil {
			o.logger.Warn("failed to store reflection", zap.Error(err))
			return
		}

		o.mu.Lock()
		o.reflectionCount++
		o.mu.Unlock()
		o.logger.Debug("post-interaction reflection stored",
			zap.String("session", conv.SessionID))
	}()
}

// Shutdown optionally waits for in-flight reflections, per config.
func (o *Orchestrator) Shutdown() {
	if o.cfg.DrainReflections {
		o.reflections.Wait()
	}
}

// Stats returns a snapshot of orchestrator counters.
func (o *Orchestrator) Stats() OrchestratorStats {
	o.mu.Lock()
	defer o.mu.Unlock()

	stats := OrchestratorStats{
		InteractionCount:       o.interactionCount,
		SuccessfulInteractions: o.successCount,
		ReflectionCount:        o.reflectionCount,
	}
	if o.successCount > 0 {
		stats.AvgResponseTime = o.totalResponseTime / time.Duration(o.successCount)
	}
	return stats
}

func (o *Orchestrator) errorResponse() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return errorResponses[o.rng.Intn(len(errorResponses))]
}

func truncateForLog(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
