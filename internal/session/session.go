package session

import (
	"sync"
	"time"

	"honeypot-agent/internal/models"
)

// Session holds all conversational state for one session identifier. All
// mutation happens under the session's own lock; callers take the lock via
// Lock/Unlock for the whole turn so concurrent messages for the same id are
// serialized while different sessions never contend.
type Session struct {
	ID string

	mu sync.Mutex

	TurnCount      int
	ScamDetected   bool
	ScamType       string
	RedFlags       []string
	Notes          []string
	QuestionsAsked int

	CreatedAt    time.Time
	LastActivity time.Time

	DeliverySent bool
	LastReport   *models.FinalReport

	intel     map[string][]string
	intelSeen map[string]map[string]bool
	redSeen   map[string]bool

	pending     *time.Timer
	deliveryGen uint64
}

func newSession(id string, now time.Time) *Session {
	return &Session{
		ID:           id,
		CreatedAt:    now,
		LastActivity: now,
		intel:        make(map[string][]string),
		intelSeen:    make(map[string]map[string]bool),
		redSeen:      make(map[string]bool),
	}
}

// Lock serializes a turn for this session.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the turn lock.
func (s *Session) Unlock() { s.mu.Unlock() }

// RecordTurn bumps the turn counter and activity timestamp.
func (s *Session) RecordTurn(now time.Time) {
	s.TurnCount++
	s.LastActivity = now
}

// MarkScam flips the sticky detection flag. The category is set once, on
// first detection, and never overwritten by later re-detections.
func (s *Session) MarkScam(category string) {
	if !s.ScamDetected {
		s.ScamDetected = true
		s.ScamType = category
	}
}

// MergeIntelligence unions values into a category accumulator. Entries are
// never removed and duplicates are dropped, so order of arrival does not
// affect the final set.
func (s *Session) MergeIntelligence(category string, values []string) {
	if len(values) == 0 {
		return
	}
	if s.intelSeen[category] == nil {
		s.intelSeen[category] = make(map[string]bool)
	}
	for _, v := range values {
		if v == "" || s.intelSeen[category][v] {
			continue
		}
		s.intelSeen[category][v] = true
		s.intel[category] = append(s.intel[category], v)
	}
}

// MergeIntelligenceMap unions a whole category→values mapping.
func (s *Session) MergeIntelligenceMap(m map[string][]string) {
	for category, values := range m {
		s.MergeIntelligence(category, values)
	}
}

// Intelligence returns a copy of one category's accumulated values.
func (s *Session) Intelligence(category string) []string {
	return append([]string(nil), s.intel[category]...)
}

// PopulatedCategories counts intelligence categories holding at least one value.
func (s *Session) PopulatedCategories() int {
	n := 0
	for _, values := range s.intel {
		if len(values) > 0 {
			n++
		}
	}
	return n
}

// HasIntelligence reports whether any category is non-empty.
func (s *Session) HasIntelligence() bool {
	return s.PopulatedCategories() > 0
}

// IntelDigest returns at most maxSamples values per populated category, used
// to bound the responder prompt.
func (s *Session) IntelDigest(maxSamples int) map[string][]string {
	digest := make(map[string][]string, len(s.intel))
	for category, values := range s.intel {
		if len(values) == 0 {
			continue
		}
		n := len(values)
		if n > maxSamples {
			n = maxSamples
		}
		digest[category] = append([]string(nil), values[:n]...)
	}
	return digest
}

// AppendRedFlags appends unseen flags, preserving arrival order.
func (s *Session) AppendRedFlags(flags []string) {
	for _, f := range flags {
		if f == "" || s.redSeen[f] {
			continue
		}
		s.redSeen[f] = true
		s.RedFlags = append(s.RedFlags, f)
	}
}

// AppendNote records one turn's responder notes.
func (s *Session) AppendNote(note string) {
	if note != "" {
		s.Notes = append(s.Notes, note)
	}
}

// SetFinalReport stores the most recently computed report snapshot.
func (s *Session) SetFinalReport(report *models.FinalReport) {
	s.LastReport = report
}

// ScheduleDelivery arms a delayed delivery, cancelling any previously
// pending timer first so at most one delivery is ever outstanding. A
// superseded timer that has already started firing finds its generation
// stale and does nothing. fire runs outside the session lock with
// DeliverySent already set.
func (s *Session) ScheduleDelivery(delay time.Duration, fire func()) {
	s.cancelPendingLocked()
	s.deliveryGen++
	gen := s.deliveryGen
	s.pending = time.AfterFunc(delay, func() {
		s.mu.Lock()
		if gen != s.deliveryGen || s.DeliverySent {
			s.mu.Unlock()
			return
		}
		s.pending = nil
		s.DeliverySent = true
		s.mu.Unlock()
		fire()
	})
}

// HasPendingDelivery reports whether a delivery timer is armed.
func (s *Session) HasPendingDelivery() bool {
	return s.pending != nil
}

func (s *Session) cancelPendingLocked() {
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	s.deliveryGen++
}
