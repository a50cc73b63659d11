package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/evaproject/eva/internal/models"
)

// SQLiteEpisodic is the SQLite-backed episodic store.
type SQLiteEpisodic struct {
	db         *sql.DB
	logger     *zap.Logger
	maxEntries int

	mu          sync.Mutex
	searchCount int
}

// NewSQLiteEpisodic opens (or creates) the episodic database at path.
func NewSQLiteEpisodic(path string, maxEntries int, logger *zap.Logger) (*SQLiteEpisodic, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create episodic directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open episodic database: %w", err)
	}

	s := &SQLiteEpisodic{db: db, logger: logger, maxEntries: maxEntries}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteEpisodic) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS episodic_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		user_input TEXT NOT NULL,
		reply TEXT NOT NULL,
		timestamp REAL NOT NULL,
		metadata TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_episodic_session ON episodic_entries(session_id);
	CREATE INDEX IF NOT EXISTS idx_episodic_timestamp ON episodic_entries(timestamp);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize episodic schema: %w", err)
	}
	return nil
}

// StoreInteraction persists one turn and enforces the entry cap.
func (s *SQLiteEpisodic) StoreInteraction(ctx context.Context, in models.Interaction) (int64, error) {
	metadata, err := json.Marshal(in.Metadata)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	ts := in.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO episodic_entries (session_id, user_input, reply, timestamp, metadata)
		VALUES (?, ?, ?, ?, ?)`,
		in.SessionID, in.UserInput, in.Reply, float64(ts.UnixNano())/1e9, string(metadata))
	if err != nil {
		return 0, fmt.Errorf("failed to store interaction: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read insert id: %w", err)
	}

	if err := s.enforceLimit(ctx); err != nil {
		s.logger.Warn("episodic cleanup failed", zap.Error(err))
	}

	return id, nil
}

func (s *SQLiteEpisodic) enforceLimit(ctx context.Context) error {
	if s.maxEntries <= 0 {
		return nil
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM episodic_entries`).Scan(&total); err != nil {
		return err
	}
	excess := total - s.maxEntries
	if excess <= 0 {
		return nil
	}

	_, err := s.db.ExecContext(ctx, `
		DELETE FROM episodic_entries WHERE id IN (
			SELECT id FROM episodic_entries ORDER BY timestamp ASC LIMIT ?
		)`, excess)
	if err != nil {
		return err
	}
	s.logger.Info("removed old episodic entries", zap.Int("count", excess))
	return nil
}

// SearchSimilar ranks recent entries by keyword overlap with the query. It
// is a lexical approximation of semantic search that needs no external
// embedding model.
func (s *SQLiteEpisodic) SearchSimilar(ctx context.Context, query string, limit int) ([]models.Interaction, error) {
	queryWords := tokenize(query)
	if len(queryWords) == 0 {
		return nil, nil
	}

	// Scan a recency window wider than the requested limit, score, keep the
	// best matches.
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, user_input, reply, timestamp, metadata
		FROM episodic_entries ORDER BY timestamp DESC LIMIT 200`)
	if err != nil {
		return nil, fmt.Errorf("similarity query failed: %w", err)
	}
	defer rows.Close()

	type scored struct {
		entry models.Interaction
		score float64
	}
	var candidates []scored

	for rows.Next() {
		entry, err := scanInteraction(rows)
		if err != nil {
			return nil, err
		}
		score := overlapScore(queryWords, tokenize(entry.UserInput+" "+entry.Reply))
		if score > 0 {
			candidates = append(candidates, scored{entry, score})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("similarity scan failed: %w", err)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	out := make([]models.Interaction, len(candidates))
	for i, c := range candidates {
		out[i] = c.entry
	}

	s.mu.Lock()
	s.searchCount++
	s.mu.Unlock()

	return out, nil
}

// SearchByCategory matches entries whose metadata contains the category.
func (s *SQLiteEpisodic) SearchByCategory(ctx context.Context, category string, limit int) ([]models.Interaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, user_input, reply, timestamp, metadata
		FROM episodic_entries
		WHERE metadata LIKE ?
		ORDER BY timestamp DESC LIMIT ?`,
		`%"`+category+`"%`, limit)
	if err != nil {
		return nil, fmt.Errorf("category query failed: %w", err)
	}
	defer rows.Close()

	return collectInteractions(rows)
}

// SessionHistory returns the session's most recent turns in chronological
// order.
func (s *SQLiteEpisodic) SessionHistory(ctx context.Context, sessionID string, limit int) ([]models.Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_input, reply, timestamp
		FROM episodic_entries
		WHERE session_id = ?
		ORDER BY timestamp DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("history query failed: %w", err)
	}
	defer rows.Close()

	var turns []models.Turn
	for rows.Next() {
		var userInput, reply string
		var ts float64
		if err := rows.Scan(&userInput, &reply, &ts); err != nil {
			return nil, fmt.Errorf("history scan failed: %w", err)
		}
		turns = append(turns, models.Turn{
			User:      userInput,
			Assistant: reply,
			Timestamp: time.Unix(0, int64(ts*1e9)),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history scan failed: %w", err)
	}

	// Rows came newest first; flip to chronological.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// RecentEntries returns the newest entries across all sessions.
func (s *SQLiteEpisodic) RecentEntries(ctx context.Context, limit int) ([]models.Interaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, user_input, reply, timestamp, metadata
		FROM episodic_entries ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent query failed: %w", err)
	}
	defer rows.Close()

	return collectInteractions(rows)
}

// Stats reports store-level counters.
func (s *SQLiteEpisodic) Stats(ctx context.Context) (EpisodicStats, error) {
	var stats EpisodicStats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT session_id) FROM episodic_entries`).
		Scan(&stats.TotalEntries, &stats.UniqueSessions)
	if err != nil {
		return stats, fmt.Errorf("stats query failed: %w", err)
	}

	s.mu.Lock()
	stats.SearchCount = s.searchCount
	s.mu.Unlock()
	return stats, nil
}

// Close closes the database.
func (s *SQLiteEpisodic) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInteraction(r rowScanner) (models.Interaction, error) {
	var in models.Interaction
	var ts float64
	var metadata sql.NullString
	if err := r.Scan(&in.ID, &in.SessionID, &in.UserInput, &in.Reply, &ts, &metadata); err != nil {
		return in, fmt.Errorf("entry scan failed: %w", err)
	}
	in.Timestamp = time.Unix(0, int64(ts*1e9))
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &in.Metadata); err != nil {
			in.Metadata = nil
		}
	}
	return in, nil
}

func collectInteractions(rows *sql.Rows) ([]models.Interaction, error) {
	var out []models.Interaction
	for rows.Next() {
		in, err := scanInteraction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("entry scan failed: %w", err)
	}
	return out, nil
}

func tokenize(text string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(text))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.Trim(w, ".,!?;:\"'()")
		if len(w) > 2 {
			set[w] = struct{}{}
		}
	}
	return set
}

func overlapScore(query, doc map[string]struct{}) float64 {
	if len(query) == 0 {
		return 0
	}
	matches := 0
	for w := range query {
		if _, ok := doc[w]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(query))
}
