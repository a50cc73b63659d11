package models

import "time"

// Intent classifies what the user is trying to do with an utterance.
type Intent string

const (
	IntentQuestion         Intent = "question"
	IntentTask             Intent = "task"
	IntentEmotionalSupport Intent = "emotional_support"
	IntentCreativeRequest  Intent = "creative_request"
	IntentCasualChat       Intent = "casual_chat"
	IntentSystemCommand    Intent = "system_command"
	IntentReflection       Intent = "reflection"
)

// Persona identifies one cognitive specialization. The set is closed:
// code that dispatches on Persona switches over AllPersonas and nothing else.
type Persona string

const (
	PersonaAnalytical Persona = "analytical"
	PersonaCreative   Persona = "creative"
	PersonaEmpathetic Persona = "empathetic"
	PersonaExecutive  Persona = "executive"
	PersonaReflective Persona = "reflective"
)

// AllPersonas lists every persona in declaration order. Declaration order is
// the tie-break used when responses have equal confidence.
var AllPersonas = []Persona{
	PersonaAnalytical,
	PersonaCreative,
	PersonaEmpathetic,
	PersonaExecutive,
	PersonaReflective,
}

// Valid reports whether p names a known persona.
func (p Persona) Valid() bool {
	switch p {
	case PersonaAnalytical, PersonaCreative, PersonaEmpathetic, PersonaExecutive, PersonaReflective:
		return true
	}
	return false
}

// AttentionAnalysis is the per-turn routing decision: which intent won, how
// strongly, which personas to invoke and the auxiliary scores that shape
// their prompts. Immutable once produced.
type AttentionAnalysis struct {
	PrimaryIntent      Intent            `json:"primary_intent"`
	Confidence         float64           `json:"confidence"`
	RequiredPersonas   []Persona         `json:"required_personas"`
	ComplexityLevel    int               `json:"complexity_level"`    // 1-5
	EmotionalIntensity float64           `json:"emotional_intensity"` // 0-1
	Urgency            float64           `json:"urgency"`             // 0-1
	ContextFactors     map[string]string `json:"context_factors"`
}

// Turn is one prior user/assistant exchange.
type Turn struct {
	User      string    `json:"user"`
	Assistant string    `json:"assistant"`
	Timestamp time.Time `json:"timestamp"`
}

// EmotionalState maps emotion names to intensities in [0,1]. Values are
// independent; they are not required to sum to one.
type EmotionalState map[string]float64

// Max returns the strongest intensity in the state, zero when empty.
func (s EmotionalState) Max() float64 {
	max := 0.0
	for _, v := range s {
		if v > max {
			max = v
		}
	}
	return max
}

// ConversationContext carries everything one turn needs. The orchestrator
// owns it for the duration of the turn; history comes from episodic memory
// and is never mutated by the core.
type ConversationContext struct {
	UserInput      string
	History        []Turn
	EmotionalState EmotionalState
	SessionID      string
	Timestamp      time.Time
}

// PersonaResponse is the ephemeral output of one persona invocation.
// Confidence is heuristic, derived from the text itself, never from the
// model; it ranks fallback candidates and nothing more.
type PersonaResponse struct {
	Persona     Persona
	Text        string
	Confidence  float64
	Latency     time.Duration
	ContextUsed []string
}

// Interaction is a stored user/assistant exchange with routing metadata.
type Interaction struct {
	ID        int64             `json:"id"`
	SessionID string            `json:"session_id"`
	UserInput string            `json:"user_input"`
	Reply     string            `json:"reply"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata"`
}

// Reflection is a stored post-interaction insight produced by the
// reflective persona.
type Reflection struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// RelationshipSummary aggregates the affective history of one session.
type RelationshipSummary struct {
	TotalInteractions  int                `json:"total_interactions"`
	AvgIntensity       float64            `json:"avg_intensity"`
	DominantEmotions   map[string]float64 `json:"dominant_emotions"`
	Quality            float64            `json:"quality"`
	TrustLevel         float64            `json:"trust_level"`
	CommunicationStyle string             `json:"communication_style"`
	Preferences        map[string]bool    `json:"preferences"`
	LastUpdated        time.Time          `json:"last_updated"`
}

// MemoryKind partitions retrieved memories by which persona consumes them.
type MemoryKind string

const (
	MemoryEpisodic    MemoryKind = "episodic"
	MemoryAffective   MemoryKind = "affective"
	MemoryCreative    MemoryKind = "creative"
	MemoryTasks       MemoryKind = "tasks"
	MemoryReflections MemoryKind = "reflections"
)

// MemorySet is the bundle of retrieved memories for one turn, keyed by kind.
// Each value is a short textual excerpt ready for prompt injection.
type MemorySet map[MemoryKind][]string
