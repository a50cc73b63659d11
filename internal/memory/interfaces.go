// Package memory implements the persistent stores: an episodic store backed
// by SQLite for conversation history and retrieval, an affective store backed
// by Badger for emotional context and relationship tracking, and a Redis
// cache for recent per-session turns.
package memory

import (
	"context"

	"github.com/evaproject/eva/internal/models"
)

// EpisodicStore records raw interactions and retrieves them by similarity,
// category and session.
type EpisodicStore interface {
	StoreInteraction(ctx context.Context, in models.Interaction) (int64, error)
	SearchSimilar(ctx context.Context, query string, limit int) ([]models.Interaction, error)
	SearchByCategory(ctx context.Context, category string, limit int) ([]models.Interaction, error)
	SessionHistory(ctx context.Context, sessionID string, limit int) ([]models.Turn, error)
	RecentEntries(ctx context.Context, limit int) ([]models.Interaction, error)
	Stats(ctx context.Context) (EpisodicStats, error)
	Close() error
}

// AffectiveStore records the emotional dimension of interactions and the
// evolving relationship state derived from them.
type AffectiveStore interface {
	StoreInteraction(ctx context.Context, sessionID string, state models.EmotionalState, userInput, reply string) (string, error)
	RelevantMemories(ctx context.Context, state models.EmotionalState, limit int) ([]string, error)
	RelationshipSummary(ctx context.Context, sessionID string) (*models.RelationshipSummary, error)
	StoreReflection(ctx context.Context, r models.Reflection) error
	RecentReflections(ctx context.Context, sessionID string, limit int) ([]models.Reflection, error)
	Stats(ctx context.Context) (AffectiveStats, error)
	Close() error
}

// SessionCache keeps a bounded window of recent turns per session for fast
// prompt assembly.
type SessionCache interface {
	AppendTurn(ctx context.Context, sessionID string, turn models.Turn) error
	RecentTurns(ctx context.Context, sessionID string, limit int) ([]models.Turn, error)
	Clear(ctx context.Context, sessionID string) error
	Close() error
}

// EpisodicStats summarizes the episodic store.
type EpisodicStats struct {
	TotalEntries   int
	UniqueSessions int
	SearchCount    int
}

// AffectiveStats summarizes the affective store.
type AffectiveStats struct {
	TotalEntries     int
	TotalReflections int
	AvgIntensity     float64
	AvgImpact        float64
}
