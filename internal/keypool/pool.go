package keypool

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultCooldown is applied when the provider gives no retry hint.
const DefaultCooldown = 60 * time.Second

type credential struct {
	token         string
	cooldownUntil time.Time
}

// Pool hands out API credentials in round-robin order, skipping any that are
// cooling down after a rate-limit signal. Safe for concurrent use.
type Pool struct {
	mu     sync.Mutex
	creds  []*credential
	next   int
	logger *zap.Logger
	now    func() time.Time
}

// New creates a pool from the configured tokens.
func New(tokens []string, logger *zap.Logger) (*Pool, error) {
	creds := make([]*credential, 0, len(tokens))
	for _, t := range tokens {
		if t == "" {
			continue
		}
		creds = append(creds, &credential{token: t})
	}
	if len(creds) == 0 {
		return nil, fmt.Errorf("no API credentials configured")
	}

	logger.Info("Credential pool initialized", zap.Int("credentials", len(creds)))

	return &Pool{
		creds:  creds,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Acquire returns the next credential whose cooldown has elapsed. When every
// credential is cooling down it returns the first one anyway; callers must
// tolerate an immediate rate-limit error in that degraded mode.
func (p *Pool) Acquire() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for i := 0; i < len(p.creds); i++ {
		cred := p.creds[p.next]
		p.next = (p.next + 1) % len(p.creds)
		if now.After(cred.cooldownUntil) {
			return cred.token
		}
	}

	p.logger.Warn("All credentials cooling down, reusing first credential")
	return p.creds[0].token
}

// MarkExhausted puts a credential into cooldown for retryAfter (or the
// default when retryAfter is not positive). Idempotent; unknown tokens are
// ignored.
func (p *Pool) MarkExhausted(token string, retryAfter time.Duration) {
	if retryAfter <= 0 {
		retryAfter = DefaultCooldown
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, cred := range p.creds {
		if cred.token != token {
			continue
		}
		cred.cooldownUntil = p.now().Add(retryAfter)
		p.logger.Warn("Credential exhausted, cooling down",
			zap.String("token_prefix", prefix(token)),
			zap.Duration("retry_after", retryAfter))
		return
	}
}

// Size returns the number of credentials in the pool.
func (p *Pool) Size() int {
	return len(p.creds)
}

func prefix(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8]
}
