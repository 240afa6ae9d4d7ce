package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"honeypot-agent/internal/models"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// StoredReport is one archived final report row.
type StoredReport struct {
	ID              int64     `json:"id"`
	SessionID       string    `json:"session_id"`
	ScamDetected    bool      `json:"scam_detected"`
	ScamType        string    `json:"scam_type"`
	ConfidenceLevel float64   `json:"confidence_level"`
	TotalMessages   int       `json:"total_messages"`
	DurationSeconds int       `json:"duration_seconds"`
	Intelligence    string    `json:"intelligence"`
	AgentNotes      string    `json:"agent_notes"`
	Delivered       bool      `json:"delivered"`
	CreatedAt       time.Time `json:"created_at"`
}

// ReportRepository archives emitted final reports for operator review.
type ReportRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewReportRepository opens the archive database and creates the schema.
func NewReportRepository(dbPath string, logger *zap.Logger) (*ReportRepository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	repo := &ReportRepository{
		db:     db,
		logger: logger,
	}

	if err := repo.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info("Report repository initialized", zap.String("db_path", dbPath))

	return repo, nil
}

func (r *ReportRepository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS reports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		scam_detected BOOLEAN NOT NULL,
		scam_type TEXT,
		confidence_level REAL NOT NULL,
		total_messages INTEGER NOT NULL,
		duration_seconds INTEGER NOT NULL,
		intelligence TEXT NOT NULL,
		agent_notes TEXT,
		delivered BOOLEAN NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reports_session_id ON reports(session_id);
	CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports(created_at);
	`

	_, err := r.db.Exec(schema)
	return err
}

// SaveReport archives a final report together with its delivery outcome.
func (r *ReportRepository) SaveReport(report *models.FinalReport, delivered bool) error {
	intelJSON, err := json.Marshal(report.ExtractedIntelligence)
	if err != nil {
		return fmt.Errorf("failed to marshal intelligence: %w", err)
	}

	query := `
		INSERT INTO reports (
			session_id, scam_detected, scam_type, confidence_level,
			total_messages, duration_seconds, intelligence, agent_notes,
			delivered, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		report.SessionID,
		report.ScamDetected,
		report.ScamType,
		report.ConfidenceLevel,
		report.TotalMessagesExchanged,
		report.EngagementDurationSeconds,
		string(intelJSON),
		report.AgentNotes,
		delivered,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}

	return nil
}

// GetReportsBySession retrieves every archived report for a session, most
// recent first.
func (r *ReportRepository) GetReportsBySession(sessionID string) ([]*StoredReport, error) {
	query := `
		SELECT id, session_id, scam_detected, scam_type, confidence_level,
		       total_messages, duration_seconds, intelligence, agent_notes,
		       delivered, created_at
		FROM reports
		WHERE session_id = ?
		ORDER BY created_at DESC
	`

	rows, err := r.db.Query(query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var reports []*StoredReport
	for rows.Next() {
		rep := &StoredReport{}
		err := rows.Scan(
			&rep.ID,
			&rep.SessionID,
			&rep.ScamDetected,
			&rep.ScamType,
			&rep.ConfidenceLevel,
			&rep.TotalMessages,
			&rep.DurationSeconds,
			&rep.Intelligence,
			&rep.AgentNotes,
			&rep.Delivered,
			&rep.CreatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to scan report", zap.Error(err))
			continue
		}
		reports = append(reports, rep)
	}

	return reports, rows.Err()
}

// GetStats returns archive statistics grouped by scam type.
func (r *ReportRepository) GetStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM reports").Scan(&total); err != nil {
		return nil, err
	}
	stats["total"] = total

	var delivered int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM reports WHERE delivered = 1").Scan(&delivered); err != nil {
		return nil, err
	}
	stats["delivered"] = delivered

	rows, err := r.db.Query(`
		SELECT scam_type, COUNT(*) AS count
		FROM reports
		GROUP BY scam_type
		ORDER BY count DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byType := make(map[string]int)
	for rows.Next() {
		var scamType string
		var count int
		if err := rows.Scan(&scamType, &count); err != nil {
			continue
		}
		byType[scamType] = count
	}
	stats["by_scam_type"] = byType

	return stats, nil
}

// Close closes the database connection.
func (r *ReportRepository) Close() error {
	return r.db.Close()
}
