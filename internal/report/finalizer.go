package report

import (
	"context"
	"math"
	"strings"
	"time"

	"honeypot-agent/internal/models"
	"honeypot-agent/internal/session"

	"go.uber.org/zap"
)

// Deliverer posts a final report to the external collector.
type Deliverer interface {
	Deliver(ctx context.Context, report *models.FinalReport) error
}

// Archiver records emitted reports; nil disables archiving.
type Archiver interface {
	SaveReport(report *models.FinalReport, delivered bool) error
}

// Confidence scoring constants. The score is monotone because sessions only
// ever accumulate intelligence and red flags.
const (
	confidenceBase        = 0.5
	confidencePerCategory = 0.08
	confidenceCategoryCap = 0.4
	confidenceFlagBonus   = 0.1
	redFlagThreshold      = 3
)

// Config for the finalizer.
type Config struct {
	MaxTurns        int
	DeliveryDelay   time.Duration
	DeliveryTimeout time.Duration
}

// Finalizer decides when a session's evidence is sufficient for a final
// report and manages the delayed, cancellable delivery to the collector.
type Finalizer struct {
	deliverer       Deliverer
	archive         Archiver
	logger          *zap.Logger
	maxTurns        int
	deliveryDelay   time.Duration
	deliveryTimeout time.Duration
}

// NewFinalizer creates a finalizer.
func NewFinalizer(deliverer Deliverer, archive Archiver, cfg Config, logger *zap.Logger) *Finalizer {
	if cfg.MaxTurns == 0 {
		cfg.MaxTurns = 10
	}
	if cfg.DeliveryDelay == 0 {
		cfg.DeliveryDelay = 10 * time.Second
	}
	if cfg.DeliveryTimeout == 0 {
		cfg.DeliveryTimeout = 5 * time.Second
	}

	return &Finalizer{
		deliverer:       deliverer,
		archive:         archive,
		logger:          logger,
		maxTurns:        cfg.MaxTurns,
		deliveryDelay:   cfg.DeliveryDelay,
		deliveryTimeout: cfg.DeliveryTimeout,
	}
}

// Evaluate builds a final report when the session's evidence is sufficient:
// scam detected and either any intelligence accumulated or the turn ceiling
// reached. Returns nil otherwise. The caller must hold the session lock.
func (f *Finalizer) Evaluate(sess *session.Session, totalMessages int) *models.FinalReport {
	if !sess.ScamDetected {
		return nil
	}
	if !sess.HasIntelligence() && sess.TurnCount < f.maxTurns {
		return nil
	}

	scamType := sess.ScamType
	if scamType == "" {
		scamType = "unknown"
	}

	return &models.FinalReport{
		SessionID:                 sess.ID,
		ScamDetected:              true,
		ScamType:                  scamType,
		ConfidenceLevel:           confidence(sess),
		TotalMessagesExchanged:    totalMessages,
		EngagementDurationSeconds: int(sess.LastActivity.Sub(sess.CreatedAt).Seconds()),
		ExtractedIntelligence: models.ReportIntelligence{
			PhoneNumbers:   sess.Intelligence(models.CategoryPhoneNumbers),
			BankAccounts:   sess.Intelligence(models.CategoryBankAccounts),
			UPIIDs:         sess.Intelligence(models.CategoryUPIIDs),
			PhishingLinks:  sess.Intelligence(models.CategoryPhishingLinks),
			EmailAddresses: sess.Intelligence(models.CategoryEmailAddresses),
			CaseIDs:        sess.Intelligence(models.CategoryCaseIDs),
			PolicyNumbers:  sess.Intelligence(models.CategoryPolicyNumbers),
			OrderNumbers:   sess.Intelligence(models.CategoryOrderNumbers),
		},
		AgentNotes: agentNotes(sess),
	}
}

// Schedule arms the delayed delivery for a report, cancelling any previously
// pending timer so at most one delivery is outstanding per session. The
// caller must hold the session lock. Sessions that already delivered are
// never re-armed.
func (f *Finalizer) Schedule(sess *session.Session, report *models.FinalReport) {
	if sess.DeliverySent {
		return
	}

	sess.ScheduleDelivery(f.deliveryDelay, func() {
		f.deliver(report)
	})

	f.logger.Debug("Delivery scheduled",
		zap.String("session_id", sess.ID),
		zap.Duration("delay", f.deliveryDelay))
}

// deliver performs the single best-effort delivery attempt. Failure is
// logged and archived as not-delivered, never retried.
func (f *Finalizer) deliver(report *models.FinalReport) {
	ctx, cancel := context.WithTimeout(context.Background(), f.deliveryTimeout)
	defer cancel()

	err := f.deliverer.Deliver(ctx, report)
	if err != nil {
		f.logger.Error("Report delivery failed",
			zap.String("session_id", report.SessionID),
			zap.Error(err))
	}

	if f.archive != nil {
		if archiveErr := f.archive.SaveReport(report, err == nil); archiveErr != nil {
			f.logger.Error("Failed to archive report",
				zap.String("session_id", report.SessionID),
				zap.Error(archiveErr))
		}
	}
}

// confidence computes the bounded evidence score: a base for detection, an
// increment per populated intelligence category (saturating) and a bonus
// once red flags reach the threshold, clamped to [0, 1] and rounded to two
// decimals.
func confidence(sess *session.Session) float64 {
	score := confidenceBase

	intelBoost := float64(sess.PopulatedCategories()) * confidencePerCategory
	if intelBoost > confidenceCategoryCap {
		intelBoost = confidenceCategoryCap
	}
	score += intelBoost

	if len(sess.RedFlags) >= redFlagThreshold {
		score += confidenceFlagBonus
	}

	score = math.Max(0, math.Min(1, score))
	return math.Round(score*100) / 100
}

// agentNotes concatenates every recorded turn note and red flag.
func agentNotes(sess *session.Session) string {
	parts := make([]string, 0, len(sess.Notes)+1)
	parts = append(parts, sess.Notes...)
	if len(sess.RedFlags) > 0 {
		parts = append(parts, "Red flags: "+strings.Join(sess.RedFlags, "; "))
	}
	if len(parts) == 0 {
		return "Engaged scammer and extracted intelligence."
	}
	return strings.Join(parts, " ")
}
