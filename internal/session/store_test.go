package session

import (
	"sync"
	"testing"
	"time"

	"honeypot-agent/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(maxIdle time.Duration) (*Store, *time.Time) {
	store := NewStore(maxIdle, zap.NewNop())
	now := time.Now()
	store.now = func() time.Time { return now }
	return store, &now
}

func TestResolveCreatesOnce(t *testing.T) {
	store, _ := newTestStore(time.Minute)

	a := store.Resolve("s1")
	b := store.Resolve("s1")

	assert.Same(t, a, b)
	assert.Equal(t, 1, store.Len())
}

func TestResolveEvictsStaleSession(t *testing.T) {
	store, now := newTestStore(time.Minute)

	old := store.Resolve("s1")
	old.Lock()
	old.RecordTurn(*now)
	old.MarkScam("Financial")
	old.MergeIntelligence(models.CategoryPhoneNumbers, []string{"9876543210"})
	old.Unlock()

	*now = now.Add(2 * time.Minute)

	fresh := store.Resolve("s1")
	require.NotSame(t, old, fresh)
	assert.Equal(t, 0, fresh.TurnCount)
	assert.False(t, fresh.ScamDetected)
	assert.False(t, fresh.HasIntelligence())
}

func TestAcquireReturnsLiveLockedSession(t *testing.T) {
	store, _ := newTestStore(time.Minute)

	sess := store.Acquire("s1")
	current, ok := store.Get("s1")
	require.True(t, ok)
	assert.Same(t, sess, current, "acquired session is the one reachable in the store")
	sess.Unlock()
}

func TestAcquireNeverReturnsEvictedSession(t *testing.T) {
	store, _ := newTestStore(time.Minute)

	orphan := store.Resolve("s1")
	store.Clear("s1")

	sess := store.Acquire("s1")
	defer sess.Unlock()

	require.NotSame(t, orphan, sess, "a session dropped from the store is never handed to a turn")
	current, ok := store.Get("s1")
	require.True(t, ok)
	assert.Same(t, sess, current)
}

func TestAcquireSerializesSameSession(t *testing.T) {
	store, _ := newTestStore(time.Minute)

	var order []int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess := store.Acquire("s1")
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			sess.TurnCount++
			sess.Unlock()
		}(i)
	}
	wg.Wait()

	sess := store.Acquire("s1")
	defer sess.Unlock()
	assert.Equal(t, 8, sess.TurnCount)
	assert.Len(t, order, 8)
}

func TestSweepEvictsIdleSessions(t *testing.T) {
	store, now := newTestStore(time.Minute)

	store.Resolve("idle")
	*now = now.Add(2 * time.Minute)
	active := store.Resolve("active")
	active.Lock()
	active.RecordTurn(*now)
	active.Unlock()

	evicted := store.Sweep()

	assert.Equal(t, 1, evicted)
	assert.Equal(t, 1, store.Len())
	_, ok := store.Get("idle")
	assert.False(t, ok)
	_, ok = store.Get("active")
	assert.True(t, ok)
}

func TestClearCancelsPendingDelivery(t *testing.T) {
	store, _ := newTestStore(time.Minute)

	fired := make(chan struct{}, 1)
	sess := store.Resolve("s1")
	sess.Lock()
	sess.ScheduleDelivery(20*time.Millisecond, func() { fired <- struct{}{} })
	sess.Unlock()

	store.Clear("s1")

	select {
	case <-fired:
		t.Fatal("cancelled delivery must not fire")
	case <-time.After(60 * time.Millisecond):
	}
}

func TestMarkScamIsSticky(t *testing.T) {
	sess := newSession("s1", time.Now())

	sess.MarkScam("Financial")
	sess.MarkScam("Urgency")

	assert.True(t, sess.ScamDetected)
	assert.Equal(t, "Financial", sess.ScamType, "first category wins")
}

func TestMergeIntelligenceDeduplicates(t *testing.T) {
	sess := newSession("s1", time.Now())

	sess.MergeIntelligence(models.CategoryBankAccounts, []string{"123456789012"})
	sess.MergeIntelligence(models.CategoryBankAccounts, []string{"123456789012", "999988887777"})
	sess.MergeIntelligence(models.CategoryUPIIDs, []string{"scammer@upi"})
	sess.MergeIntelligence(models.CategoryUPIIDs, []string{"scammer@upi"})

	assert.Equal(t, []string{"123456789012", "999988887777"}, sess.Intelligence(models.CategoryBankAccounts))
	assert.Equal(t, []string{"scammer@upi"}, sess.Intelligence(models.CategoryUPIIDs))
	assert.Equal(t, 2, sess.PopulatedCategories())
}

func TestAppendRedFlagsOrderedUnique(t *testing.T) {
	sess := newSession("s1", time.Now())

	sess.AppendRedFlags([]string{"asked for OTP", "fake urgency"})
	sess.AppendRedFlags([]string{"asked for OTP", "threatened arrest"})

	assert.Equal(t, []string{"asked for OTP", "fake urgency", "threatened arrest"}, sess.RedFlags)
}

func TestIntelDigestBoundsSamples(t *testing.T) {
	sess := newSession("s1", time.Now())
	sess.MergeIntelligence(models.CategoryPhoneNumbers, []string{"9000000001", "9000000002", "9000000003", "9000000004"})

	digest := sess.IntelDigest(3)

	assert.Len(t, digest[models.CategoryPhoneNumbers], 3)
}

func TestScheduleDeliveryReplacesPendingTimer(t *testing.T) {
	sess := newSession("s1", time.Now())

	var mu sync.Mutex
	var fired []string

	sess.Lock()
	sess.ScheduleDelivery(30*time.Millisecond, func() {
		mu.Lock()
		fired = append(fired, "first")
		mu.Unlock()
	})
	sess.ScheduleDelivery(30*time.Millisecond, func() {
		mu.Lock()
		fired = append(fired, "second")
		mu.Unlock()
	})
	assert.True(t, sess.HasPendingDelivery())
	sess.Unlock()

	time.Sleep(80 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"second"}, fired, "a superseded timer must never fire")

	sess.Lock()
	defer sess.Unlock()
	assert.True(t, sess.DeliverySent)
	assert.False(t, sess.HasPendingDelivery())
}

func TestScheduleDeliveryAfterSentIsIgnoredByCallback(t *testing.T) {
	sess := newSession("s1", time.Now())
	sess.DeliverySent = true

	fired := make(chan struct{}, 1)
	sess.Lock()
	sess.ScheduleDelivery(10*time.Millisecond, func() { fired <- struct{}{} })
	sess.Unlock()

	select {
	case <-fired:
		t.Fatal("delivery must not fire once DeliverySent is set")
	case <-time.After(40 * time.Millisecond):
	}
}

func TestConcurrentSessionsDoNotContend(t *testing.T) {
	store, _ := newTestStore(time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := string(rune('a' + n%5))
			sess := store.Resolve(id)
			sess.Lock()
			sess.RecordTurn(time.Now())
			sess.MergeIntelligence(models.CategorySuspiciousKeywords, []string{"otp"})
			sess.Unlock()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 5, store.Len())
	sess, ok := store.Get("a")
	require.True(t, ok)
	assert.Equal(t, 4, sess.TurnCount)
	assert.Equal(t, []string{"otp"}, sess.Intelligence(models.CategorySuspiciousKeywords))
}
