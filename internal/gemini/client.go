package gemini

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"honeypot-agent/internal/keypool"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Client wraps one genai client per pool credential and routes every call
// through the pool's round-robin selection.
type Client struct {
	clients     map[string]*genai.Client
	pool        *keypool.Pool
	limiter     *RateLimiter
	logger      *zap.Logger
	modelName   string
	callTimeout time.Duration
}

// Config for the Gemini client.
type Config struct {
	APIKeys           []string
	ModelName         string // Default: "gemini-2.0-flash-exp"
	RequestsPerMinute int
	CallTimeout       time.Duration
}

// Request describes a single generation call. Model overrides the client
// default when set.
type Request struct {
	Prompt          string
	Model           string
	Temperature     float32
	MaxOutputTokens int32
}

// NewClient creates a Gemini client backed by the credential pool.
func NewClient(cfg Config, pool *keypool.Pool, logger *zap.Logger) (*Client, error) {
	if cfg.ModelName == "" {
		cfg.ModelName = "gemini-2.0-flash-exp"
	}
	if cfg.RequestsPerMinute == 0 {
		cfg.RequestsPerMinute = 8 // Conservative default for free tier
	}
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = 20 * time.Second
	}

	ctx := context.Background()
	clients := make(map[string]*genai.Client, len(cfg.APIKeys))
	for _, key := range cfg.APIKeys {
		if key == "" {
			continue
		}
		client, err := genai.NewClient(ctx, option.WithAPIKey(key))
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini client: %w", err)
		}
		clients[key] = client
	}
	if len(clients) == 0 {
		return nil, fmt.Errorf("gemini API key is required")
	}

	logger.Info("Gemini client initialized",
		zap.String("model", cfg.ModelName),
		zap.Int("credentials", len(clients)),
		zap.Int("requests_per_minute", cfg.RequestsPerMinute))

	return &Client{
		clients:     clients,
		pool:        pool,
		limiter:     NewRateLimiter(cfg.RequestsPerMinute),
		logger:      logger,
		modelName:   cfg.ModelName,
		callTimeout: cfg.CallTimeout,
	}, nil
}

// Close closes all underlying genai clients.
func (c *Client) Close() error {
	var lastErr error
	for _, client := range c.clients {
		if err := client.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// GenerateJSON performs one generation call with a JSON response MIME type
// and returns the raw text, stripped of markdown fences. A rate-limit error
// marks the used credential exhausted before returning.
func (c *Client) GenerateJSON(ctx context.Context, req Request) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	token := c.pool.Acquire()
	client, ok := c.clients[token]
	if !ok {
		return "", fmt.Errorf("no client for acquired credential")
	}

	modelName := req.Model
	if modelName == "" {
		modelName = c.modelName
	}

	model := client.GenerativeModel(modelName)
	model.ResponseMIMEType = "application/json"
	model.GenerationConfig = genai.GenerationConfig{
		Temperature:     genai.Ptr[float32](req.Temperature),
		MaxOutputTokens: genai.Ptr[int32](req.MaxOutputTokens),
	}

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	resp, err := model.GenerateContent(callCtx, genai.Text(req.Prompt))
	if err != nil {
		if IsRateLimitError(err) {
			c.pool.MarkExhausted(token, RetryDelayFrom(err))
		}
		return "", fmt.Errorf("gemini API error: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty response from gemini")
	}

	textPart, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return "", fmt.Errorf("unexpected response type from gemini")
	}

	// Strip markdown code blocks if present.
	cleanJSON := strings.TrimSpace(string(textPart))
	cleanJSON = strings.TrimPrefix(cleanJSON, "```json")
	cleanJSON = strings.TrimPrefix(cleanJSON, "```")
	cleanJSON = strings.TrimSuffix(cleanJSON, "```")
	cleanJSON = strings.TrimSpace(cleanJSON)

	return cleanJSON, nil
}

// GetModelInfo returns model information.
func (c *Client) GetModelInfo() map[string]interface{} {
	return map[string]interface{}{
		"provider":    "gemini",
		"model":       c.modelName,
		"credentials": len(c.clients),
	}
}

// IsRateLimitError checks if err is a quota or rate-limit error.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == 429 {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "quota") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "ResourceExhausted")
}

var retryDelayRe = regexp.MustCompile(`retryDelay["']?\s*[:=]\s*"?(\d+)`)

// RetryDelayFrom recovers the provider-suggested retry delay embedded in a
// quota error, falling back to the pool default when absent.
func RetryDelayFrom(err error) time.Duration {
	if err == nil {
		return keypool.DefaultCooldown
	}
	m := retryDelayRe.FindStringSubmatch(err.Error())
	if len(m) != 2 {
		return keypool.DefaultCooldown
	}
	secs, convErr := strconv.Atoi(m[1])
	if convErr != nil || secs <= 0 {
		return keypool.DefaultCooldown
	}
	return time.Duration(secs) * time.Second
}
