package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Store owns the lifecycle of all sessions: creation on first reference,
// lazy eviction on access and periodic sweeps of idle sessions.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	maxIdle  time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewStore creates a session store evicting sessions idle longer than maxIdle.
func NewStore(maxIdle time.Duration, logger *zap.Logger) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		maxIdle:  maxIdle,
		logger:   logger,
		now:      time.Now,
	}
}

// Resolve returns the live session for id, creating one if absent. A stale
// session is evicted first — its lock is taken before deletion so an
// in-flight turn finishes before the state is dropped — and the next message
// for the id starts fresh with reset counters.
func (s *Store) Resolve(id string) *Session {
	for {
		s.mu.Lock()
		sess, ok := s.sessions[id]
		if !ok {
			sess = newSession(id, s.now())
			s.sessions[id] = sess
			s.mu.Unlock()
			return sess
		}
		s.mu.Unlock()

		sess.mu.Lock()
		stale := s.now().Sub(sess.LastActivity) > s.maxIdle
		if !stale {
			sess.mu.Unlock()
			return sess
		}
		sess.cancelPendingLocked()
		sess.mu.Unlock()

		s.logger.Info("Evicting idle session", zap.String("session_id", id))
		s.removeIfSame(id, sess)
	}
}

// Acquire resolves the session for id and returns it with its lock held.
// Map membership is re-verified after the lock is taken, so a sweep landing
// between resolution and locking cannot evict the session out from under
// the turn; the caller always mutates a session that is still reachable.
func (s *Store) Acquire(id string) *Session {
	for {
		sess := s.Resolve(id)
		sess.Lock()

		s.mu.RLock()
		current := s.sessions[id]
		s.mu.RUnlock()
		if current == sess {
			return sess
		}
		sess.Unlock()
	}
}

// Get returns the session for id without creating or evicting.
func (s *Store) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Clear drops a session outright, cancelling any pending delivery.
func (s *Store) Clear(id string) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if ok {
		sess.mu.Lock()
		sess.cancelPendingLocked()
		sess.mu.Unlock()
	}
}

// Sweep evicts every session idle beyond the threshold and returns how many
// were removed.
func (s *Store) Sweep() int {
	s.mu.RLock()
	candidates := make([]*Session, 0)
	for _, sess := range s.sessions {
		candidates = append(candidates, sess)
	}
	s.mu.RUnlock()

	evicted := 0
	for _, sess := range candidates {
		sess.mu.Lock()
		stale := s.now().Sub(sess.LastActivity) > s.maxIdle
		if stale {
			sess.cancelPendingLocked()
		}
		sess.mu.Unlock()

		if stale && s.removeIfSame(sess.ID, sess) {
			evicted++
		}
	}

	if evicted > 0 {
		s.logger.Info("Session sweep completed", zap.Int("evicted", evicted))
	}
	return evicted
}

// Run sweeps on a fixed interval until the context is cancelled.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	s.logger.Info("Session sweeper started", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Session sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// removeIfSame deletes id only if it still maps to the same session pointer,
// guarding against a fresh session created for the id in the meantime.
func (s *Store) removeIfSame(id string, sess *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[id] == sess {
		delete(s.sessions, id)
		return true
	}
	return false
}
