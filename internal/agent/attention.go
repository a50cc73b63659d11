// Package agent contains the cognitive core: the attention analyzer that
// routes each utterance, the persona synthesizer that produces and merges
// perspective responses, and the orchestrator that drives a full turn.
package agent

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/evaproject/eva/internal/config"
	"github.com/evaproject/eva/internal/models"
)

// intentRules maps each intent to its recognition patterns. Input is
// lowercased before matching.
var intentRules = map[models.Intent][]*regexp.Regexp{
	models.IntentQuestion: compileAll(
		`\b(o que|como|quando|onde|por que|qual|quem)\b`,
		`\?`,
		`\b(explique|me diga|você sabe|pode me dizer)\b`,
		`\b(qual é|como funciona|por que acontece)\b`,
	),
	models.IntentTask: compileAll(
		`\b(faça|crie|gere|escreva|calcule|analise|execute)\b`,
		`\b(preciso que|pode fazer|me ajude a|quero que)\b`,
		`\b(realize|complete|desenvolva|implemente)\b`,
		`\b(organize|planeje|estruture)\b`,
	),
	models.IntentEmotionalSupport: compileAll(
		`\b(triste|feliz|ansioso|preocupado|estressado|deprimido)\b`,
		`\b(me sinto|estou me sentindo|estou passando por)\b`,
		`\b(preciso de apoio|me ajude|estou sofrendo)\b`,
		`\b(não aguento mais|estou cansado|me sinto só|sozinho)\b`,
	),
	models.IntentCreativeRequest: compileAll(
		`\b(imagine|invente|crie uma história|escreva um poema)\b`,
		`\b(seja criativo|use sua imaginação|invente algo)\b`,
		`\b(arte|música|poesia|poema|história|desenho)\b`,
		`\b(inspiração|ideia criativa|brainstorm)\b`,
	),
	models.IntentCasualChat: compileAll(
		`\b(oi|olá|como vai|tudo bem|e aí)\b`,
		`\b(conversar|bater papo|falar sobre|vamos conversar)\b`,
		`\b(o que acha|sua opinião|o que pensa)\b`,
		`\b(como está|como você está|tudo certo)\b`,
	),
	models.IntentSystemCommand: compileAll(
		`\b(configure|ajuste|mude|altere|defina)\b`,
		`\b(status|estado|informações do sistema)\b`,
		`\b(reinicie|pare|inicie|ative|desative)\b`,
		`\b(salve|carregue|exporte|importe)\b`,
	),
}

// scoredIntents fixes the evaluation order so tie-breaking is deterministic.
var scoredIntents = []models.Intent{
	models.IntentQuestion,
	models.IntentTask,
	models.IntentEmotionalSupport,
	models.IntentCreativeRequest,
	models.IntentCasualChat,
	models.IntentSystemCommand,
}

var intentPersonas = map[models.Intent][]models.Persona{
	models.IntentQuestion:         {models.PersonaAnalytical, models.PersonaEmpathetic},
	models.IntentTask:             {models.PersonaExecutive, models.PersonaAnalytical},
	models.IntentEmotionalSupport: {models.PersonaEmpathetic, models.PersonaReflective},
	models.IntentCreativeRequest:  {models.PersonaCreative, models.PersonaEmpathetic},
	models.IntentCasualChat:       {models.PersonaEmpathetic, models.PersonaCreative},
	models.IntentSystemCommand:    {models.PersonaExecutive, models.PersonaAnalytical},
	models.IntentReflection:       {models.PersonaReflective, models.PersonaEmpathetic},
}

var (
	highComplexityWords = []string{
		"complexo", "complicado", "detalhado", "profundo", "análise",
		"múltiplos", "vários", "diferentes", "comparar", "avaliar",
	}
	lowComplexityWords = []string{
		"simples", "rápido", "básico", "resumo", "sim ou não",
	}

	highIntensityWords = []string{
		"muito", "extremamente", "totalmente", "completamente",
		"desesperado", "urgente", "crítico", "importante",
		"amo", "odeio", "adoro", "detesto", "triste", "sozinho",
	}
	mediumIntensityWords = []string{
		"bastante", "bem", "meio", "um pouco",
		"gosto", "não gosto", "prefiro",
	}
	lowIntensityWords = []string{
		"talvez", "possivelmente", "pode ser", "acho que",
	}

	urgencyKeywords = []string{
		"urgente", "rápido", "agora", "imediatamente", "já",
		"preciso agora", "é urgente", "rapidamente", "depressa",
		"o quanto antes", "com pressa",
	}

	creativeTriggerWords   = []string{"criativo", "imaginação", "arte", "poesia", "história", "inventar"}
	analyticalTriggerWords = []string{"analisar", "comparar", "avaliar", "dados", "estatística", "lógica"}
	executiveTriggerWords  = []string{"planejar", "organizar", "executar", "implementar", "gerenciar"}

	formalIndicators   = []string{"por favor", "gostaria", "poderia", "solicito"}
	informalIndicators = []string{"oi", "e aí", "cara", "mano", "tipo"}

	repeatedCharsRe = regexp.MustCompile(`(.)\1{2,}`)
	codeRe          = regexp.MustCompile("```|`[^`]+`|def |class |import ")
	numberRe        = regexp.MustCompile(`\d+`)
	urlRe           = regexp.MustCompile(`http[s]?://|www\.`)
)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

// maxActivePersonas caps how many personas a single turn may activate.
const maxActivePersonas = 3

// AttentionAnalyzer classifies an utterance and decides which personas to
// activate. It is pure heuristics over the input text, never calls a model
// and never fails.
type AttentionAnalyzer struct {
	cfg *config.Config
}

// NewAttentionAnalyzer builds an analyzer whose persona truncation order
// follows the configured persona weights.
func NewAttentionAnalyzer(cfg *config.Config) *AttentionAnalyzer {
	return &AttentionAnalyzer{cfg: cfg}
}

// Analyze inspects the conversation context and returns the routing
// decision. Identical input always yields identical output.
func (a *AttentionAnalyzer) Analyze(ctx models.ConversationContext) models.AttentionAnalysis {
	input := strings.ToLower(ctx.UserInput)

	intent, confidence := classifyIntent(input)
	personas := a.selectPersonas(intent, input, ctx.EmotionalState)

	return models.AttentionAnalysis{
		PrimaryIntent:      intent,
		Confidence:         confidence,
		RequiredPersonas:   personas,
		ComplexityLevel:    assessComplexity(input, ctx.History),
		EmotionalIntensity: assessEmotionalIntensity(input, ctx.EmotionalState),
		Urgency:            assessUrgency(input),
		ContextFactors:     identifyContextFactors(input, ctx.History),
	}
}

// DefaultAnalysis is the conservative routing used when analysis cannot be
// trusted.
func DefaultAnalysis() models.AttentionAnalysis {
	return models.AttentionAnalysis{
		PrimaryIntent:      models.IntentCasualChat,
		Confidence:         0.5,
		RequiredPersonas:   []models.Persona{models.PersonaEmpathetic},
		ComplexityLevel:    2,
		EmotionalIntensity: 0.3,
		Urgency:            0.1,
		ContextFactors:     map[string]string{"is_default": "true"},
	}
}

// classifyIntent scores each intent by pattern hits. The score counts total
// matches plus the number of distinct patterns that fired, normalized by the
// intent's pattern count.
func classifyIntent(input string) (models.Intent, float64) {
	best := models.IntentCasualChat
	bestScore := 0.0

	for _, intent := range scoredIntents {
		rules := intentRules[intent]
		matches := 0
		hits := 0
		for _, re := range rules {
			n := len(re.FindAllStringIndex(input, -1))
			if n > 0 {
				hits++
				matches += n
			}
		}
		if matches == 0 {
			continue
		}
		score := float64(matches+hits) / float64(len(rules))
		if score > bestScore {
			best = intent
			bestScore = score
		}
	}

	if bestScore == 0 {
		return models.IntentCasualChat, 0.5
	}
	if bestScore > 1 {
		bestScore = 1
	}
	return best, bestScore
}

func (a *AttentionAnalyzer) selectPersonas(intent models.Intent, input string, state models.EmotionalState) []models.Persona {
	base, ok := intentPersonas[intent]
	if !ok {
		base = []models.Persona{models.PersonaEmpathetic}
	}
	personas := append([]models.Persona{}, base...)

	add := func(p models.Persona) {
		for _, existing := range personas {
			if existing == p {
				return
			}
		}
		personas = append(personas, p)
	}

	if state.Max() > 0.6 {
		add(models.PersonaEmpathetic)
	}
	if containsAny(input, creativeTriggerWords) {
		add(models.PersonaCreative)
	}
	if containsAny(input, analyticalTriggerWords) {
		add(models.PersonaAnalytical)
	}
	if containsAny(input, executiveTriggerWords) {
		add(models.PersonaExecutive)
	}

	if len(personas) > maxActivePersonas {
		personas = a.prioritize(personas)[:maxActivePersonas]
	}
	return personas
}

// prioritize orders personas by configured priority, stable so equal
// priorities keep their selection order.
func (a *AttentionAnalyzer) prioritize(personas []models.Persona) []models.Persona {
	out := append([]models.Persona{}, personas...)
	// Insertion sort keeps it stable without pulling in sort for a handful
	// of elements.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && a.cfg.PersonaPriority(out[j]) > a.cfg.PersonaPriority(out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func assessComplexity(input string, history []models.Turn) int {
	score := 2

	for _, w := range highComplexityWords {
		if strings.Contains(input, w) {
			score++
		}
	}
	for _, w := range lowComplexityWords {
		if strings.Contains(input, w) {
			score--
		}
	}

	wordCount := len(strings.Fields(input))
	if wordCount > 50 {
		score++
	} else if wordCount < 10 {
		score--
	}

	if strings.Count(input, "?") > 1 {
		score++
	}
	if len(history) > 5 {
		score++
	}

	if score < 1 {
		return 1
	}
	if score > 5 {
		return 5
	}
	return score
}

func assessEmotionalIntensity(input string, state models.EmotionalState) float64 {
	score := 0.0

	for _, w := range highIntensityWords {
		if strings.Contains(input, w) {
			score += 0.3
		}
	}
	for _, w := range mediumIntensityWords {
		if strings.Contains(input, w) {
			score += 0.2
		}
	}
	for _, w := range lowIntensityWords {
		if strings.Contains(input, w) {
			score += 0.1
		}
	}

	score += state.Max() * 0.4

	exclamations := float64(strings.Count(input, "!")) * 0.1
	if exclamations > 0.3 {
		exclamations = 0.3
	}
	score += exclamations

	if len(input) > 0 {
		upper := 0
		for _, r := range input {
			if unicode.IsUpper(r) {
				upper++
			}
		}
		capsBoost := float64(upper) / float64(len([]rune(input))) * 0.5
		if capsBoost > 0.2 {
			capsBoost = 0.2
		}
		score += capsBoost
	}

	repeats := float64(len(repeatedCharsRe.FindAllString(input, -1))) * 0.1
	if repeats > 0.2 {
		repeats = 0.2
	}
	score += repeats

	if score > 1 {
		return 1
	}
	return score
}

func assessUrgency(input string) float64 {
	score := 0.0

	for _, kw := range urgencyKeywords {
		if strings.Contains(input, kw) {
			score += 0.3
		}
	}

	multi := float64(strings.Count(input, "!!")+strings.Count(input, "!!!")) * 0.2
	if multi > 0.4 {
		multi = 0.4
	}
	score += multi

	capsWords := 0
	for _, w := range strings.Fields(input) {
		if len(w) > 2 && w == strings.ToUpper(w) && w != strings.ToLower(w) {
			capsWords++
		}
	}
	capsBoost := float64(capsWords) * 0.1
	if capsBoost > 0.3 {
		capsBoost = 0.3
	}
	score += capsBoost

	if score > 1 {
		return 1
	}
	return score
}

func identifyContextFactors(input string, history []models.Turn) map[string]string {
	factors := map[string]string{
		"is_first_interaction": boolStr(len(history) == 0),
		"is_follow_up":         boolStr(len(history) > 0),
		"has_code":             boolStr(codeRe.MatchString(input)),
		"has_numbers":          boolStr(numberRe.MatchString(input)),
		"has_urls":             boolStr(urlRe.MatchString(input)),
	}

	formal := countContains(input, formalIndicators)
	informal := countContains(input, informalIndicators)
	switch {
	case formal > informal:
		factors["tone"] = "formal"
	case informal > formal:
		factors["tone"] = "informal"
	default:
		factors["tone"] = "neutral"
	}

	wordCount := len(strings.Fields(input))
	switch {
	case wordCount < 5:
		factors["length"] = "short"
	case wordCount > 30:
		factors["length"] = "long"
	default:
		factors["length"] = "medium"
	}

	return factors
}

func containsAny(input string, words []string) bool {
	for _, w := range words {
		if strings.Contains(input, w) {
			return true
		}
	}
	return false
}

func countContains(input string, words []string) int {
	n := 0
	for _, w := range words {
		if strings.Contains(input, w) {
			n++
		}
	}
	return n
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
