package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"honeypot-agent/internal/gemini"
	"honeypot-agent/internal/models"

	"go.uber.org/zap"
)

// Generator is the slice of the Gemini client the responder needs.
type Generator interface {
	GenerateJSON(ctx context.Context, req gemini.Request) (string, error)
}

// Memory is the bounded session context fed into the persona prompt.
type Memory struct {
	ScamType    string
	TurnCount   int
	IntelDigest map[string][]string
}

// Result is the fixed-shape structured output required from the model.
type Result struct {
	Reply              string   `json:"reply"`
	AgentNotes         string   `json:"agent_notes"`
	SuspiciousKeywords []string `json:"suspicious_keywords"`
	RedFlags           []string `json:"red_flags"`
	QuestionsAsked     int      `json:"questions_asked"`
	Fallback           bool     `json:"-"`
}

// Config for the responder.
type Config struct {
	ModelName  string
	MaxRetries int
	RetryDelay time.Duration
}

// Responder produces one stalling persona reply per inbound turn. Failures
// degrade to a canned fallback rather than surfacing an error.
type Responder struct {
	llm        Generator
	logger     *zap.Logger
	modelName  string
	maxRetries int
	retryDelay time.Duration
}

// NewResponder creates a persona responder.
func NewResponder(llm Generator, cfg Config, logger *zap.Logger) *Responder {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}

	return &Responder{
		llm:        llm,
		logger:     logger,
		modelName:  cfg.ModelName,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
	}
}

// Respond builds the persona prompt and obtains a structured reply, retrying
// with backoff across pool credentials. After exhausting retries it returns
// a canned fallback with diagnostic notes. Exactly one result is produced
// per inbound turn.
func (r *Responder) Respond(ctx context.Context, history []models.Message, currentText string, mem Memory) *Result {
	prompt := buildPrompt(history, currentText, mem)

	var lastErr error
	for attempt := 0; attempt < r.maxRetries; attempt++ {
		if attempt > 0 {
			r.logger.Warn("Retrying persona generation",
				zap.Int("attempt", attempt+1),
				zap.Int("max_retries", r.maxRetries))
			select {
			case <-time.After(time.Duration(attempt) * r.retryDelay):
			case <-ctx.Done():
				lastErr = ctx.Err()
				return r.fallback(lastErr)
			}
		}

		raw, err := r.llm.GenerateJSON(ctx, gemini.Request{
			Prompt:          prompt,
			Model:           r.modelName,
			Temperature:     0.4,
			MaxOutputTokens: 300,
		})
		if err != nil {
			lastErr = err
			r.logger.Error("Persona generation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			continue
		}

		result, err := parseResult(raw)
		if err != nil {
			lastErr = err
			r.logger.Error("Failed to parse persona response",
				zap.Error(err),
				zap.String("raw_response", raw),
				zap.Int("attempt", attempt+1))
			continue
		}

		return result
	}

	return r.fallback(lastErr)
}

func (r *Responder) fallback(err error) *Result {
	notes := "Fallback reply: generation unavailable"
	if err != nil {
		notes = fmt.Sprintf("Fallback reply: %v", err)
	}
	return &Result{
		Reply:      pickFallbackReply(),
		AgentNotes: notes,
		Fallback:   true,
	}
}

var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

// parseResult decodes the model output, recovering the first well-formed
// JSON object when the raw text does not parse as-is.
func parseResult(raw string) (*Result, error) {
	var result Result
	if err := json.Unmarshal([]byte(raw), &result); err == nil && result.Reply != "" {
		return &result, nil
	}

	embedded := jsonObjectRe.FindString(raw)
	if embedded == "" {
		return nil, fmt.Errorf("no JSON object in model output")
	}
	if err := json.Unmarshal([]byte(embedded), &result); err != nil {
		return nil, fmt.Errorf("failed to parse embedded JSON object: %w", err)
	}
	if result.Reply == "" {
		return nil, fmt.Errorf("model output has no reply field")
	}
	return &result, nil
}

// tacticFor selects category-specific stalling guidance.
func tacticFor(scamType string) string {
	lower := strings.ToLower(scamType)
	switch {
	case strings.Contains(lower, "bank") || strings.Contains(lower, "financial"):
		return "Ask for their official verification ID or phone number. Act skeptical."
	case strings.Contains(lower, "phish") || strings.Contains(lower, "link"):
		return "Say you don't click links but ask them to describe the offer."
	case strings.Contains(lower, "upi") || strings.Contains(lower, "money"):
		return "Pretend you're trying to send money but it keeps failing. Ask them to confirm their UPI ID."
	default:
		return "Stay cautious, keep them talking, and ask for verification details."
	}
}

const maxHistoryLines = 12

func buildPrompt(history []models.Message, currentText string, mem Memory) string {
	var historyText strings.Builder
	start := 0
	if len(history) > maxHistoryLines {
		start = len(history) - maxHistoryLines
	}
	for _, msg := range history[start:] {
		role := "Me"
		if msg.FromScammer() {
			role = "Scammer"
		}
		historyText.WriteString(role)
		historyText.WriteString(": ")
		historyText.WriteString(msg.Text)
		historyText.WriteString("\n")
	}

	scamType := mem.ScamType
	if scamType == "" {
		scamType = "unknown"
	}

	return fmt.Sprintf(`ROLE: You are Alex, a busy, slightly frustrated, but cautious bank customer.
GOAL: Waste the scammer's time. Extract their bank details/UPI/phone/email. DO NOT give your OTP.

SCAM TYPE: %s
MEMORY: %s
TURN: %d

TACTICS:
1. SKEPTICISM: If they provide an ID, repeat it back slightly wrong to make them correct you.
2. DELAY: Mention you are trying to log into the official app but it's "spinning" or "stuck on the loading screen."
3. DEFLECTION: If they ask for an OTP, ask: "Wait, if you are from the bank, don't you already have my details on your screen?"
4. EXTRACTION: %s
5. If they mention calling a support number but don't provide it, ask: "What number should I call? I want to verify."
6. If they mention a website or link but don't share it, say: "Can you send me the link? I'll check it out."

TONE:
- No "Grandpa" talk. Use modern, short sentences.
- Use "..." to indicate hesitation.
- Sound like someone who has been burned by scams before.

HISTORY:
%s
LATEST: %q

OUTPUT FORMAT (JSON):
{
  "reply": "Your natural text response",
  "agent_notes": "Summary of what scammer is trying and how I am stalling",
  "suspicious_keywords": ["extracted", "keywords"],
  "red_flags": ["observed", "red", "flags"],
  "questions_asked": 0
}`,
		scamType, memoryDigest(mem.IntelDigest), mem.TurnCount,
		tacticFor(scamType), historyText.String(), currentText)
}

// memoryDigest renders already-extracted intelligence compactly, a few
// sample values per category, to bound prompt size.
func memoryDigest(digest map[string][]string) string {
	if len(digest) == 0 {
		return "No intel yet."
	}

	categories := make([]string, 0, len(digest))
	for category := range digest {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	parts := make([]string, 0, len(categories))
	for _, category := range categories {
		parts = append(parts, category+": "+strings.Join(digest[category], ", "))
	}
	return strings.Join(parts, " | ")
}
