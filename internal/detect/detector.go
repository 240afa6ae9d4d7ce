package detect

import (
	"context"
	"encoding/json"
	"fmt"

	"honeypot-agent/internal/gemini"
	"honeypot-agent/internal/intel"
	"honeypot-agent/internal/models"

	"go.uber.org/zap"
)

// Generator is the slice of the Gemini client the detector needs.
type Generator interface {
	GenerateJSON(ctx context.Context, req gemini.Request) (string, error)
}

// Detector runs the tiered scam classification: lexicon, structured
// patterns, model-assisted intent, then history escalation. The injection
// guard lives in IsInjection and is the caller's responsibility to check
// first.
type Detector struct {
	llm    Generator
	logger *zap.Logger
	model  string
}

// NewDetector creates a detector. llm may be nil, in which case the
// model-assisted tier is skipped.
func NewDetector(llm Generator, model string, logger *zap.Logger) *Detector {
	return &Detector{llm: llm, logger: logger, model: model}
}

const intentPromptTemplate = `Analyze this message for scam intent (impersonation, urgency, or asking for sensitive data).
Message: %q
Respond ONLY in JSON: {"is_scam": true/false, "category": "Short Label"}`

type intentResponse struct {
	IsScam   bool   `json:"is_scam"`
	Category string `json:"category"`
}

// Classify evaluates the tiers in order over the current message and, if
// none fires, escalates over the counterpart's prior messages. The first
// positive tier wins and supplies the category label.
func (d *Detector) Classify(ctx context.Context, currentText string, history []models.Message) (bool, string) {
	// Tier: keyword lexicon (fast, free).
	if ok, category := MatchLexicon(currentText); ok {
		return true, category
	}

	// Tier: structured patterns.
	if intel.HasFindings(intel.Extract(currentText)) {
		return true, "Financial Pattern"
	}

	// Tier: model-assisted intent. Failures are treated as negative.
	if ok, category := d.classifyIntent(ctx, currentText); ok {
		return true, category
	}

	// Tier: history escalation over counterpart messages.
	for _, msg := range history {
		if !msg.FromScammer() || msg.Text == "" {
			continue
		}
		if ok, category := MatchLexicon(msg.Text); ok {
			return true, category
		}
		if intel.HasFindings(intel.Extract(msg.Text)) {
			return true, "Historical Pattern"
		}
	}

	return false, "Safe"
}

func (d *Detector) classifyIntent(ctx context.Context, text string) (bool, string) {
	if d.llm == nil {
		return false, "Safe"
	}

	raw, err := d.llm.GenerateJSON(ctx, gemini.Request{
		Prompt:          fmt.Sprintf(intentPromptTemplate, text),
		Model:           d.model,
		Temperature:     0.1,
		MaxOutputTokens: 100,
	})
	if err != nil {
		d.logger.Warn("Intent classification call failed, treating as negative", zap.Error(err))
		return false, "Safe"
	}

	var resp intentResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		d.logger.Warn("Failed to parse intent response, treating as negative", zap.Error(err))
		return false, "Safe"
	}

	if resp.IsScam && resp.Category == "" {
		resp.Category = "Suspicious Intent"
	}
	return resp.IsScam, resp.Category
}
