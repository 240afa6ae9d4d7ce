package service

import (
	"context"
	"time"

	"honeypot-agent/internal/agent"
	"honeypot-agent/internal/detect"
	"honeypot-agent/internal/intel"
	"honeypot-agent/internal/models"
	"honeypot-agent/internal/report"
	"honeypot-agent/internal/session"

	"go.uber.org/zap"
)

// Classifier decides whether a message (plus history) shows scam intent.
type Classifier interface {
	Classify(ctx context.Context, currentText string, history []models.Message) (bool, string)
}

// Responder produces the persona reply for a scam-positive turn.
type Responder interface {
	Respond(ctx context.Context, history []models.Message, currentText string, mem agent.Memory) *agent.Result
}

// EntityExtractor is the model-assisted extraction pass; nil disables it.
type EntityExtractor interface {
	ExtractEntities(ctx context.Context, text string) (map[string][]string, error)
}

// Engine orchestrates one inbound turn: session resolution, tiered
// detection, intelligence aggregation, persona response and finalization.
// Every code path yields a reply.
type Engine struct {
	store     *session.Store
	detector  Classifier
	responder Responder
	entities  EntityExtractor
	finalizer *report.Finalizer
	logger    *zap.Logger
}

// NewEngine creates the orchestration engine.
func NewEngine(
	store *session.Store,
	detector Classifier,
	responder Responder,
	entities EntityExtractor,
	finalizer *report.Finalizer,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		store:     store,
		detector:  detector,
		responder: responder,
		entities:  entities,
		finalizer: finalizer,
		logger:    logger,
	}
}

// ProcessTurn handles one inbound message and returns the immediate reply.
// The session lock is held for the whole turn, so concurrent messages for
// the same session id are serialized while other sessions proceed freely.
func (e *Engine) ProcessTurn(ctx context.Context, req *models.IncomingRequest) *models.AgentReply {
	sess := e.store.Acquire(req.SessionID)
	defer sess.Unlock()

	sess.RecordTurn(time.Now().UTC())
	currentText := req.Message.Text

	// Injection attempts bypass classification and the responder entirely.
	if detect.IsInjection(currentText) {
		e.logger.Warn("Injection attempt detected",
			zap.String("session_id", sess.ID),
			zap.Int("turn", sess.TurnCount))
		return &models.AgentReply{Status: "success", Reply: agent.PickInjectionReply()}
	}

	// Sticky detection: once flagged, later turns skip classification and
	// keep the original category.
	if !sess.ScamDetected {
		if isScam, category := e.detector.Classify(ctx, currentText, req.ConversationHistory); isScam {
			sess.MarkScam(category)
			e.logger.Info("Scam detected",
				zap.String("session_id", sess.ID),
				zap.String("category", category),
				zap.Int("turn", sess.TurnCount))
		}
	}

	if !sess.ScamDetected {
		return &models.AgentReply{Status: "success", Reply: agent.PickPassiveReply()}
	}

	result := e.responder.Respond(ctx, req.ConversationHistory, currentText, agent.Memory{
		ScamType:    sess.ScamType,
		TurnCount:   sess.TurnCount,
		IntelDigest: sess.IntelDigest(3),
	})

	e.gatherIntelligence(ctx, sess, req, result)

	totalMessages := len(req.ConversationHistory) + 1
	if rep := e.finalizer.Evaluate(sess, totalMessages); rep != nil {
		sess.SetFinalReport(rep)
		e.finalizer.Schedule(sess, rep)
	}

	return &models.AgentReply{Status: "success", Reply: result.Reply}
}

// gatherIntelligence merges every extraction source into the session
// accumulators: pattern rules over the current message and unscanned
// history, the model-assisted pass, and the responder's signal metadata.
func (e *Engine) gatherIntelligence(ctx context.Context, sess *session.Session, req *models.IncomingRequest, result *agent.Result) {
	sess.MergeIntelligenceMap(intel.AggregateFromHistory(req.ConversationHistory, req.Message.Text))

	if e.entities != nil {
		entities, err := e.entities.ExtractEntities(ctx, req.Message.Text)
		if err != nil {
			e.logger.Warn("Model-assisted extraction failed",
				zap.String("session_id", sess.ID),
				zap.Error(err))
		} else {
			sess.MergeIntelligenceMap(entities)
		}
	}

	sess.MergeIntelligence(models.CategorySuspiciousKeywords, result.SuspiciousKeywords)
	sess.AppendRedFlags(result.RedFlags)
	sess.AppendNote(result.AgentNotes)
	sess.QuestionsAsked += result.QuestionsAsked
}

// FinalReport returns the most recent report snapshot for a session, if any.
func (e *Engine) FinalReport(sessionID string) (*models.FinalReport, bool) {
	sess, ok := e.store.Get(sessionID)
	if !ok {
		return nil, false
	}

	sess.Lock()
	defer sess.Unlock()
	if sess.LastReport == nil {
		return nil, false
	}
	return sess.LastReport, true
}
