package security

import (
	"container/list"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Pacing defaults. A client talks about a handful of identifiers, so the
// table stays tiny; the cap only matters when something scripted feeds it.
const (
	defaultMaxPacedIdentifiers = 1000
	pacingCleanupInterval      = 5 * time.Minute
	pacingMaxIdle              = 30 * time.Minute
)

// pacerEntry is one identifier's token bucket plus its LRU bookkeeping.
type pacerEntry struct {
	identifier string
	bucket     *rate.Limiter
	lastSeen   time.Time
}

// RateLimiter paces login and MFA submissions per account identifier with a
// token bucket. It is independent of the lockout escalation in LoginGuard:
// pacing answers "not so fast", lockout answers "stop trying". Idle buckets
// are dropped in the background and the table is capped with LRU eviction.
type RateLimiter struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List // front = most recently seen *pacerEntry

	perSecond  int
	burst      int
	maxEntries int
	logger     *slog.Logger

	evictions int64
	stop      chan struct{}
	stopOnce  sync.Once
}

// NewRateLimiter creates a submission pacer allowing perSecond sustained
// submissions with the given burst, per identifier. Call Stop when done to
// end the background cleanup goroutine.
func NewRateLimiter(perSecond, burst int, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	rl := &RateLimiter{
		entries:    make(map[string]*list.Element),
		lru:        list.New(),
		perSecond:  perSecond,
		burst:      burst,
		maxEntries: defaultMaxPacedIdentifiers,
		logger:     logger,
		stop:       make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Allow reports whether a submission for the identifier may proceed now.
func (rl *RateLimiter) Allow(identifier string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if elem, ok := rl.entries[identifier]; ok {
		rl.lru.MoveToFront(elem)
		entry := elem.Value.(*pacerEntry)
		entry.lastSeen = now
		return entry.bucket.Allow()
	}

	if len(rl.entries) >= rl.maxEntries {
		rl.evictOldest()
	}

	entry := &pacerEntry{
		identifier: identifier,
		bucket:     rate.NewLimiter(rate.Limit(rl.perSecond), rl.burst),
		lastSeen:   now,
	}
	rl.entries[identifier] = rl.lru.PushFront(entry)
	return entry.bucket.Allow()
}

// evictOldest drops the least recently seen identifier. Caller holds mu.
func (rl *RateLimiter) evictOldest() {
	elem := rl.lru.Back()
	if elem == nil {
		return
	}
	entry := elem.Value.(*pacerEntry)
	delete(rl.entries, entry.identifier)
	rl.lru.Remove(elem)
	rl.evictions++
	rl.logger.Debug("Submission pacer evicted identifier",
		"evictions", rl.evictions,
		"entries", len(rl.entries))
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(pacingCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.dropIdle(pacingMaxIdle)
		case <-rl.stop:
			return
		}
	}
}

// dropIdle removes buckets not seen for maxIdle.
func (rl *RateLimiter) dropIdle(maxIdle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	var next *list.Element
	for elem := rl.lru.Front(); elem != nil; elem = next {
		next = elem.Next()
		entry := elem.Value.(*pacerEntry)
		if now.Sub(entry.lastSeen) > maxIdle {
			delete(rl.entries, entry.identifier)
			rl.lru.Remove(elem)
		}
	}
}

// Stop ends the background cleanup goroutine. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}
