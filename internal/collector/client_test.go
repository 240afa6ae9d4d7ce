package collector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"honeypot-agent/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sampleReport() *models.FinalReport {
	return &models.FinalReport{
		SessionID:       "sess-1",
		ScamDetected:    true,
		ScamType:        "Financial",
		ConfidenceLevel: 0.66,
		ExtractedIntelligence: models.ReportIntelligence{
			UPIIDs: []string{"scammer@upi"},
		},
		AgentNotes: "Scammer pushing OTP.",
	}
}

func TestDeliverPostsReport(t *testing.T) {
	var received models.FinalReport
	var gotHeaders http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(Config{
		Endpoint:  server.URL,
		AuthToken: "collector-token",
		Timeout:   time.Second,
	}, zap.NewNop())

	err := client.Deliver(context.Background(), sampleReport())
	require.NoError(t, err)

	assert.Equal(t, "sess-1", received.SessionID)
	assert.Equal(t, []string{"scammer@upi"}, received.ExtractedIntelligence.UPIIDs)
	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
	assert.Equal(t, "Bearer collector-token", gotHeaders.Get("Authorization"))
	assert.NotEmpty(t, gotHeaders.Get("X-Request-ID"))
}

func TestDeliverNon2xxIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad payload", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := NewClient(Config{Endpoint: server.URL, Timeout: time.Second}, zap.NewNop())

	err := client.Deliver(context.Background(), sampleReport())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
	assert.Contains(t, err.Error(), "bad payload")
}

func TestDeliverSkipsWithoutEndpoint(t *testing.T) {
	client := NewClient(Config{}, zap.NewNop())
	assert.NoError(t, client.Deliver(context.Background(), sampleReport()))
}

func TestDeliverHonorsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client := NewClient(Config{Endpoint: server.URL, Timeout: time.Second}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, client.Deliver(ctx, sampleReport()))
}
