package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/evaproject/eva/internal/models"
)

// Key layout. Entry keys embed a fixed-width nanosecond timestamp so
// lexicographic iteration is chronological.
const (
	entryPrefix      = "entry:"
	summaryPrefix    = "summary:"
	reflectionPrefix = "reflection:"
)

// emotionWeights skews intensity toward destabilizing emotions.
var emotionWeights = map[string]float64{
	"alegria":   1.0,
	"tristeza":  1.2,
	"raiva":     1.5,
	"medo":      1.3,
	"surpresa":  0.8,
	"confianca": 0.9,
	"energia":   0.7,
	"calma":     0.5,
}

var (
	positiveEmotions = []string{"alegria", "confianca", "energia", "calma"}
	negativeEmotions = []string{"tristeza", "raiva", "medo"}

	positiveKeywords = []string{"obrigado", "gosto", "amo", "perfeito", "excelente", "maravilhoso"}
	negativeKeywords = []string{"não gosto", "ruim", "terrível", "odeio", "péssimo"}
)

type affectiveEntry struct {
	ID             string                `json:"id"`
	SessionID      string                `json:"session_id"`
	EmotionalState models.EmotionalState `json:"emotional_state"`
	UserInput      string                `json:"user_input"`
	Reply          string                `json:"reply"`
	Timestamp      int64                 `json:"timestamp"`
	Intensity      float64               `json:"intensity"`
	Impact         float64               `json:"impact"`
}

// BadgerAffective is the Badger-backed affective store.
type BadgerAffective struct {
	db         *badger.DB
	logger     *zap.Logger
	maxEntries int
}

// NewBadgerAffective opens (or creates) the affective store at dir.
func NewBadgerAffective(dir string, maxEntries int, logger *zap.Logger) (*BadgerAffective, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open affective store: %w", err)
	}
	return &BadgerAffective{db: db, logger: logger, maxEntries: maxEntries}, nil
}

func entryKey(ts time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", entryPrefix, ts.UnixNano(), id))
}

// WeightedIntensity condenses an emotional state into one scalar using the
// per-emotion weights.
func WeightedIntensity(state models.EmotionalState) float64 {
	if len(state) == 0 {
		return 0
	}
	var total, weightSum float64
	for emotion, value := range state {
		w, ok := emotionWeights[emotion]
		if !ok {
			w = 1.0
		}
		total += value * w
		weightSum += w
	}
	if weightSum == 0 {
		return 0
	}
	return total / weightSum
}

// RelationshipImpact scores how one exchange moved the relationship, in
// [-1, 1]. Positive emotions, a substantive reply and appreciative wording
// push it up; negative emotions and complaints pull it down.
func RelationshipImpact(state models.EmotionalState, userInput, reply string) float64 {
	var positive, negative float64
	for _, e := range positiveEmotions {
		positive += state[e]
	}
	for _, e := range negativeEmotions {
		negative += state[e]
	}

	impact := (positive - negative) * 0.5

	responseQuality := math.Min(float64(len(strings.Fields(reply)))/50, 1.0)
	impact += responseQuality * 0.2

	lower := strings.ToLower(userInput)
	for _, kw := range positiveKeywords {
		if strings.Contains(lower, kw) {
			impact += 0.3
		}
	}
	for _, kw := range negativeKeywords {
		if strings.Contains(lower, kw) {
			impact -= 0.3
		}
	}

	return clamp(impact, -1, 1)
}

// StoreInteraction records the emotional dimension of one exchange and
// refreshes the session's relationship summary.
func (b *BadgerAffective) StoreInteraction(ctx context.Context, sessionID string, state models.EmotionalState, userInput, reply string) (string, error) {
	now := time.Now()
	entry := affectiveEntry{
		ID:             uuid.NewString(),
		SessionID:      sessionID,
		EmotionalState: state,
		UserInput:      userInput,
		Reply:          reply,
		Timestamp:      now.UnixNano(),
		Intensity:      WeightedIntensity(state),
		Impact:         RelationshipImpact(state, userInput, reply),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("failed to marshal affective entry: %w", err)
	}

	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entryKey(now, entry.ID), data)
	})
	if err != nil {
		return "", fmt.Errorf("failed to store affective entry: %w", err)
	}

	if err := b.updateSummary(sessionID); err != nil {
		b.logger.Warn("failed to update relationship summary",
			zap.String("session", sessionID), zap.Error(err))
	}
	if err := b.enforceLimit(); err != nil {
		b.logger.Warn("affective cleanup failed", zap.Error(err))
	}

	return entry.ID, nil
}

func (b *BadgerAffective) sessionEntries(sessionID string) ([]affectiveEntry, error) {
	var entries []affectiveEntry
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(entryPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var e affectiveEntry
				if err := json.Unmarshal(val, &e); err != nil {
					return nil
				}
				if sessionID == "" || e.SessionID == sessionID {
					entries = append(entries, e)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return entries, err
}

func (b *BadgerAffective) updateSummary(sessionID string) error {
	entries, err := b.sessionEntries(sessionID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	summary := buildSummary(entries)
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(summaryPrefix+sessionID), data)
	})
}

func buildSummary(entries []affectiveEntry) models.RelationshipSummary {
	n := len(entries)

	var intensitySum, impactSum float64
	emotionTotals := make(map[string]float64)
	for _, e := range entries {
		intensitySum += e.Intensity
		impactSum += e.Impact
		for emotion, value := range e.EmotionalState {
			emotionTotals[emotion] += value
		}
	}
	avgIntensity := intensitySum / float64(n)
	avgImpact := impactSum / float64(n)

	dominant := make(map[string]float64, len(emotionTotals))
	var maxTotal float64
	for _, total := range emotionTotals {
		if total > maxTotal {
			maxTotal = total
		}
	}
	if maxTotal > 0 {
		for emotion, total := range emotionTotals {
			dominant[emotion] = total / maxTotal
		}
	}

	return models.RelationshipSummary{
		TotalInteractions:  n,
		AvgIntensity:       avgIntensity,
		DominantEmotions:   dominant,
		Quality:            relationshipQuality(avgImpact, avgIntensity, n),
		TrustLevel:         trustLevel(entries),
		CommunicationStyle: communicationStyle(avgIntensity, avgImpact),
		Preferences:        extractPreferences(n, avgIntensity),
		LastUpdated:        time.Now(),
	}
}

// extractPreferences infers coarse interaction preferences once enough
// history has accumulated.
func extractPreferences(total int, avgIntensity float64) map[string]bool {
	prefs := map[string]bool{
		"prefers_detailed_responses":  false,
		"prefers_emotional_support":   false,
		"prefers_creative_content":    false,
		"prefers_analytical_approach": false,
	}
	if total > 5 && avgIntensity > 0.6 {
		prefs["prefers_emotional_support"] = true
	}
	return prefs
}

func relationshipQuality(avgImpact, avgIntensity float64, total int) float64 {
	impactScore := (avgImpact + 1) / 2
	consistencyBonus := math.Min(float64(total)/100, 0.2)
	intensityPenalty := math.Max(0, (avgIntensity-0.7)*0.3)
	return clamp(impactScore+consistencyBonus-intensityPenalty, 0, 1)
}

// trustLevel weights recent impacts more heavily and rewards stability.
func trustLevel(entries []affectiveEntry) float64 {
	n := len(entries)
	if n == 0 {
		return 0.5
	}

	var weightedSum float64
	for i, e := range entries {
		weight := float64(i+1) / float64(n)
		weightedSum += e.Impact * weight
	}
	trust := (weightedSum/float64(n) + 1) / 2

	if n > 1 {
		var mean float64
		for _, e := range entries {
			mean += e.Impact
		}
		mean /= float64(n)
		var variance float64
		for _, e := range entries {
			d := e.Impact - mean
			variance += d * d
		}
		variance /= float64(n)
		trust += math.Max(0, (0.5-variance)*0.2)
	}

	return clamp(trust, 0, 1)
}

func communicationStyle(avgIntensity, avgImpact float64) string {
	switch {
	case avgIntensity > 0.7 && avgImpact > 0.3:
		return "expressive"
	case avgIntensity < 0.3 && avgImpact > 0:
		return "calm"
	case avgImpact > 0.5:
		return "supportive"
	case avgImpact < -0.2:
		return "cautious"
	default:
		return "balanced"
	}
}

// RelevantMemories returns descriptions of past exchanges whose emotional
// intensity is close to the current state's.
func (b *BadgerAffective) RelevantMemories(ctx context.Context, state models.EmotionalState, limit int) ([]string, error) {
	current := WeightedIntensity(state)

	entries, err := b.sessionEntries("")
	if err != nil {
		return nil, fmt.Errorf("failed to scan affective entries: %w", err)
	}

	var memories []string
	// Newest first.
	for i := len(entries) - 1; i >= 0 && len(memories) < limit; i-- {
		e := entries[i]
		if math.Abs(e.Intensity-current) < 0.3 {
			memories = append(memories, fmt.Sprintf(
				"Interação anterior (intensidade: %.2f): '%s' -> '%s'",
				e.Intensity, truncate(e.UserInput, 100), truncate(e.Reply, 100)))
		}
	}
	return memories, nil
}

// RelationshipSummary returns the stored summary for a session, or nil when
// the session has no affective history yet.
func (b *BadgerAffective) RelationshipSummary(ctx context.Context, sessionID string) (*models.RelationshipSummary, error) {
	var summary *models.RelationshipSummary
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(summaryPrefix + sessionID))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var s models.RelationshipSummary
			if err := json.Unmarshal(val, &s); err != nil {
				return fmt.Errorf("failed to unmarshal summary: %w", err)
			}
			summary = &s
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load relationship summary: %w", err)
	}
	return summary, nil
}

// StoreReflection persists a post-interaction reflection.
func (b *BadgerAffective) StoreReflection(ctx context.Context, r models.Reflection) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal reflection: %w", err)
	}

	key := fmt.Sprintf("%s%s:%020d", reflectionPrefix, r.SessionID, r.Timestamp.UnixNano())
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("failed to store reflection: %w", err)
	}
	return nil
}

// RecentReflections returns a session's reflections, newest first.
func (b *BadgerAffective) RecentReflections(ctx context.Context, sessionID string, limit int) ([]models.Reflection, error) {
	var reflections []models.Reflection
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(reflectionPrefix + sessionID + ":")
		// Reverse iteration starts just past the prefix range.
		seek := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix) && len(reflections) < limit; it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var r models.Reflection
				if err := json.Unmarshal(val, &r); err != nil {
					return nil
				}
				reflections = append(reflections, r)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load reflections: %w", err)
	}
	return reflections, nil
}

func (b *BadgerAffective) enforceLimit() error {
	if b.maxEntries <= 0 {
		return nil
	}

	var keys [][]byte
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(entryPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return err
	}

	excess := len(keys) - b.maxEntries
	if excess <= 0 {
		return nil
	}

	// Keys sort oldest first.
	err = b.db.Update(func(txn *badger.Txn) error {
		for _, key := range keys[:excess] {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	b.logger.Info("removed old affective entries", zap.Int("count", excess))
	return nil
}

// Stats reports store-level counters.
func (b *BadgerAffective) Stats(ctx context.Context) (AffectiveStats, error) {
	var stats AffectiveStats
	entries, err := b.sessionEntries("")
	if err != nil {
		return stats, fmt.Errorf("failed to scan affective entries: %w", err)
	}

	stats.TotalEntries = len(entries)
	for _, e := range entries {
		stats.AvgIntensity += e.Intensity
		stats.AvgImpact += e.Impact
	}
	if len(entries) > 0 {
		stats.AvgIntensity /= float64(len(entries))
		stats.AvgImpact /= float64(len(entries))
	}

	err = b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(reflectionPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			stats.TotalReflections++
		}
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("failed to count reflections: %w", err)
	}
	return stats, nil
}

// Close closes the store.
func (b *BadgerAffective) Close() error {
	return b.db.Close()
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
