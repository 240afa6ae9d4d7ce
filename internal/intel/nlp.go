package intel

import (
	"context"
	"encoding/json"
	"fmt"

	"honeypot-agent/internal/gemini"
	"honeypot-agent/internal/models"

	"go.uber.org/zap"
)

// Generator is the slice of the Gemini client the NLP pass needs.
type Generator interface {
	GenerateJSON(ctx context.Context, req gemini.Request) (string, error)
}

// NLPExtractor is the secondary, model-assisted extraction pass. It feeds
// the same accumulators as the regex pass with union semantics; callers
// treat any failure as an empty result.
type NLPExtractor struct {
	llm    Generator
	logger *zap.Logger
	model  string
}

// NewNLPExtractor creates a model-assisted extractor.
func NewNLPExtractor(llm Generator, model string, logger *zap.Logger) *NLPExtractor {
	return &NLPExtractor{llm: llm, logger: logger, model: model}
}

const entityPromptTemplate = `Extract any financial information from this message:
%q

Return a JSON object with these keys, each a list of strings (empty if nothing found):
- phoneNumbers
- bankAccounts
- upiIds
- phishingLinks
- emailAddresses`

type entityResponse struct {
	PhoneNumbers   []string `json:"phoneNumbers"`
	BankAccounts   []string `json:"bankAccounts"`
	UPIIDs         []string `json:"upiIds"`
	PhishingLinks  []string `json:"phishingLinks"`
	EmailAddresses []string `json:"emailAddresses"`
}

// ExtractEntities asks the model for identifiers the regex pass may have
// missed in unstructured description. Errors are returned for logging but
// never carry intelligence loss beyond this pass.
func (e *NLPExtractor) ExtractEntities(ctx context.Context, text string) (map[string][]string, error) {
	raw, err := e.llm.GenerateJSON(ctx, gemini.Request{
		Prompt:          fmt.Sprintf(entityPromptTemplate, text),
		Model:           e.model,
		Temperature:     0.1,
		MaxOutputTokens: 300,
	})
	if err != nil {
		return nil, fmt.Errorf("entity extraction call failed: %w", err)
	}

	var resp entityResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse entity response: %w", err)
	}

	out := newAccumulator()
	for category, values := range map[string][]string{
		models.CategoryPhoneNumbers:   resp.PhoneNumbers,
		models.CategoryBankAccounts:   resp.BankAccounts,
		models.CategoryUPIIDs:         resp.UPIIDs,
		models.CategoryPhishingLinks:  resp.PhishingLinks,
		models.CategoryEmailAddresses: resp.EmailAddresses,
	} {
		for _, v := range values {
			out.add(category, v)
		}
	}
	return out.result(), nil
}
