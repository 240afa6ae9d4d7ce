package report

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"honeypot-agent/internal/models"
	"honeypot-agent/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeDeliverer struct {
	mu       sync.Mutex
	reports  []*models.FinalReport
	err      error
	notified chan struct{}
}

func newFakeDeliverer() *fakeDeliverer {
	return &fakeDeliverer{notified: make(chan struct{}, 16)}
}

func (f *fakeDeliverer) Deliver(ctx context.Context, report *models.FinalReport) error {
	f.mu.Lock()
	f.reports = append(f.reports, report)
	f.mu.Unlock()
	f.notified <- struct{}{}
	return f.err
}

func (f *fakeDeliverer) delivered() []*models.FinalReport {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.FinalReport, len(f.reports))
	copy(out, f.reports)
	return out
}

type fakeArchiver struct {
	mu      sync.Mutex
	saved   []*models.FinalReport
	flags   []bool
	saveErr error
}

func (f *fakeArchiver) SaveReport(report *models.FinalReport, delivered bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, report)
	f.flags = append(f.flags, delivered)
	return f.saveErr
}

func newTestSession(t *testing.T, id string) *session.Session {
	t.Helper()
	store := session.NewStore(time.Hour, zap.NewNop())
	return store.Resolve(id)
}

func newTestFinalizer(d Deliverer, a Archiver, delay time.Duration) *Finalizer {
	return NewFinalizer(d, a, Config{
		MaxTurns:        10,
		DeliveryDelay:   delay,
		DeliveryTimeout: time.Second,
	}, zap.NewNop())
}

func TestEvaluateRequiresDetection(t *testing.T) {
	f := newTestFinalizer(newFakeDeliverer(), nil, time.Second)
	sess := newTestSession(t, "s1")

	sess.Lock()
	defer sess.Unlock()
	sess.RecordTurn(time.Now())
	sess.MergeIntelligence(models.CategoryUPIIDs, []string{"scammer@upi"})

	assert.Nil(t, f.Evaluate(sess, 2), "no report without a detection")
}

func TestEvaluateRequiresIntelOrTurnCeiling(t *testing.T) {
	f := newTestFinalizer(newFakeDeliverer(), nil, time.Second)
	sess := newTestSession(t, "s1")

	sess.Lock()
	defer sess.Unlock()
	sess.RecordTurn(time.Now())
	sess.MarkScam("Financial")

	assert.Nil(t, f.Evaluate(sess, 2), "detection alone is not enough")

	sess.MergeIntelligence(models.CategoryPhoneNumbers, []string{"9876543210"})
	report := f.Evaluate(sess, 2)
	require.NotNil(t, report)
	assert.Equal(t, "s1", report.SessionID)
	assert.True(t, report.ScamDetected)
	assert.Equal(t, "Financial", report.ScamType)
	assert.Equal(t, []string{"9876543210"}, report.ExtractedIntelligence.PhoneNumbers)
	assert.Equal(t, 2, report.TotalMessagesExchanged)
}

func TestEvaluateTurnCeilingWithoutIntel(t *testing.T) {
	f := newTestFinalizer(newFakeDeliverer(), nil, time.Second)
	sess := newTestSession(t, "s1")

	sess.Lock()
	defer sess.Unlock()
	sess.MarkScam("Urgency")
	for i := 0; i < 10; i++ {
		sess.RecordTurn(time.Now())
	}

	report := f.Evaluate(sess, 20)
	require.NotNil(t, report, "turn ceiling triggers a report even with empty intelligence")
	assert.Equal(t, "Urgency", report.ScamType)
}

func TestConfidenceScoring(t *testing.T) {
	f := newTestFinalizer(newFakeDeliverer(), nil, time.Second)
	sess := newTestSession(t, "s1")

	sess.Lock()
	defer sess.Unlock()
	sess.RecordTurn(time.Now())
	sess.MarkScam("Financial")
	sess.MergeIntelligence(models.CategoryPhoneNumbers, []string{"9876543210"})

	report := f.Evaluate(sess, 2)
	require.NotNil(t, report)
	assert.InDelta(t, 0.58, report.ConfidenceLevel, 1e-9, "base plus one category")

	sess.MergeIntelligence(models.CategoryUPIIDs, []string{"a@upi"})
	prev := report.ConfidenceLevel
	report = f.Evaluate(sess, 3)
	assert.GreaterOrEqual(t, report.ConfidenceLevel, prev, "confidence never decreases as evidence grows")
	assert.InDelta(t, 0.66, report.ConfidenceLevel, 1e-9)

	sess.AppendRedFlags([]string{"asked for OTP", "threatened arrest", "fake case id"})
	report = f.Evaluate(sess, 4)
	assert.InDelta(t, 0.76, report.ConfidenceLevel, 1e-9, "red flag bonus at threshold")
}

func TestConfidenceSaturatesAndStaysBounded(t *testing.T) {
	f := newTestFinalizer(newFakeDeliverer(), nil, time.Second)
	sess := newTestSession(t, "s1")

	sess.Lock()
	defer sess.Unlock()
	sess.RecordTurn(time.Now())
	sess.MarkScam("Financial")
	for i, category := range models.IntelCategories {
		sess.MergeIntelligence(category, []string{string(rune('a' + i))})
	}
	sess.AppendRedFlags([]string{"a", "b", "c", "d"})

	report := f.Evaluate(sess, 2)
	require.NotNil(t, report)
	assert.InDelta(t, 1.0, report.ConfidenceLevel, 1e-9, "category boost saturates and total clamps at 1")
}

func TestAgentNotesDefault(t *testing.T) {
	f := newTestFinalizer(newFakeDeliverer(), nil, time.Second)
	sess := newTestSession(t, "s1")

	sess.Lock()
	defer sess.Unlock()
	sess.RecordTurn(time.Now())
	sess.MarkScam("Financial")
	sess.MergeIntelligence(models.CategoryUPIIDs, []string{"a@upi"})

	report := f.Evaluate(sess, 2)
	require.NotNil(t, report)
	assert.Equal(t, "Engaged scammer and extracted intelligence.", report.AgentNotes)

	sess.AppendNote("Scammer pushing OTP.")
	sess.AppendRedFlags([]string{"OTP request"})
	report = f.Evaluate(sess, 3)
	assert.Equal(t, "Scammer pushing OTP. Red flags: OTP request", report.AgentNotes)
}

func TestScheduleDeliversOnceAndArchives(t *testing.T) {
	deliverer := newFakeDeliverer()
	archive := &fakeArchiver{}
	f := newTestFinalizer(deliverer, archive, 5*time.Millisecond)
	sess := newTestSession(t, "s1")

	report := &models.FinalReport{SessionID: "s1", ScamDetected: true}
	sess.Lock()
	f.Schedule(sess, report)
	sess.Unlock()

	select {
	case <-deliverer.notified:
	case <-time.After(2 * time.Second):
		t.Fatal("delivery never fired")
	}
	time.Sleep(20 * time.Millisecond)

	require.Len(t, deliverer.delivered(), 1)
	archive.mu.Lock()
	require.Len(t, archive.saved, 1)
	assert.True(t, archive.flags[0], "successful delivery archived as delivered")
	archive.mu.Unlock()

	sess.Lock()
	assert.True(t, sess.DeliverySent)
	assert.False(t, sess.HasPendingDelivery())
	sess.Unlock()
}

func TestScheduleSupersedesPendingReport(t *testing.T) {
	deliverer := newFakeDeliverer()
	f := newTestFinalizer(deliverer, nil, 20*time.Millisecond)
	sess := newTestSession(t, "s1")

	stale := &models.FinalReport{SessionID: "s1", TotalMessagesExchanged: 2}
	fresh := &models.FinalReport{SessionID: "s1", TotalMessagesExchanged: 4}

	sess.Lock()
	f.Schedule(sess, stale)
	f.Schedule(sess, fresh)
	sess.Unlock()

	select {
	case <-deliverer.notified:
	case <-time.After(2 * time.Second):
		t.Fatal("delivery never fired")
	}
	time.Sleep(50 * time.Millisecond)

	got := deliverer.delivered()
	require.Len(t, got, 1, "superseded timer must never fire")
	assert.Equal(t, 4, got[0].TotalMessagesExchanged)
}

func TestScheduleNoopAfterDeliverySent(t *testing.T) {
	deliverer := newFakeDeliverer()
	f := newTestFinalizer(deliverer, nil, time.Millisecond)
	sess := newTestSession(t, "s1")

	sess.Lock()
	f.Schedule(sess, &models.FinalReport{SessionID: "s1"})
	sess.Unlock()

	<-deliverer.notified

	sess.Lock()
	f.Schedule(sess, &models.FinalReport{SessionID: "s1"})
	armed := sess.HasPendingDelivery()
	sess.Unlock()

	assert.False(t, armed, "a delivered session is never re-armed")
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, deliverer.delivered(), 1)
}

func TestDeliveryFailureArchivedNotRetried(t *testing.T) {
	deliverer := newFakeDeliverer()
	deliverer.err = errors.New("collector unreachable")
	archive := &fakeArchiver{}
	f := newTestFinalizer(deliverer, archive, time.Millisecond)
	sess := newTestSession(t, "s1")

	sess.Lock()
	f.Schedule(sess, &models.FinalReport{SessionID: "s1"})
	sess.Unlock()

	<-deliverer.notified
	time.Sleep(20 * time.Millisecond)

	assert.Len(t, deliverer.delivered(), 1, "failed delivery is not retried")
	archive.mu.Lock()
	require.Len(t, archive.flags, 1)
	assert.False(t, archive.flags[0], "failed delivery archived as not delivered")
	archive.mu.Unlock()
}
