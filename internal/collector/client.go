package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"honeypot-agent/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Client posts final reports to the external collector endpoint. Delivery is
// fire-and-forget with a short timeout; the endpoint and credentials come
// from configuration.
type Client struct {
	endpoint   string
	authToken  string
	httpClient *http.Client
	logger     *zap.Logger
}

// Config for the collector client.
type Config struct {
	Endpoint  string
	AuthToken string
	Timeout   time.Duration
}

// NewClient creates a collector client. An empty endpoint disables delivery.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}

	return &Client{
		endpoint:  cfg.Endpoint,
		authToken: cfg.AuthToken,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

// Deliver posts one final report. Failures are returned for logging only;
// the caller never retries.
func (c *Client) Deliver(ctx context.Context, report *models.FinalReport) error {
	if c.endpoint == "" {
		c.logger.Info("Collector endpoint not configured, skipping delivery",
			zap.String("session_id", report.SessionID))
		return nil
	}

	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.New().String())
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver report: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("collector returned status %d: %s", resp.StatusCode, string(body))
	}

	c.logger.Info("Report delivered to collector",
		zap.String("session_id", report.SessionID),
		zap.Float64("confidence", report.ConfidenceLevel))
	return nil
}
