package ratelimit

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/yoshikouki/aias-sub000/pkg/clock"
	"github.com/yoshikouki/aias-sub000/pkg/keylock"
)

// DefaultSweepProbability is the chance per Check of a global sweep of
// idle keys when no explicit probability is configured.
const DefaultSweepProbability = 0.01

// SlidingWindow implements Limiter with a sliding window log: each
// admission's timestamp is kept per key, and a check counts the entries
// still inside the trailing window. Expired entries are dropped inline
// on every check, so correctness never depends on the background sweep.
type SlidingWindow struct {
	cfg       Config
	clk       clock.Clock
	locks     *keylock.KeyedMutex
	sweepProb float64
	logger    *slog.Logger

	// mu guards histories. Entries are timestamps of admissions in
	// chronological order. The per-key lock above serializes whole
	// check sequences; mu only protects the map accesses inside them
	// and lets the sweep visit every key without taking its lock.
	mu        sync.Mutex
	histories map[string][]int64
}

// Option configures a SlidingWindow.
type Option func(*SlidingWindow)

// WithSweepProbability sets the chance, per Check call, of sweeping all
// keys for expired entries. Zero disables the sweep entirely; one runs
// it on every call. Values outside [0, 1] are clamped.
func WithSweepProbability(p float64) Option {
	return func(l *SlidingWindow) {
		if p < 0 {
			p = 0
		}
		if p > 1 {
			p = 1
		}
		l.sweepProb = p
	}
}

// WithLogger sets the logger used for sweep reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(l *SlidingWindow) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New creates a sliding window limiter for the given policy. The clock
// may be nil, in which case the wall clock is used. Configuration is
// validated here once; Check never re-validates.
func New(cfg Config, clk clock.Clock, opts ...Option) (*SlidingWindow, error) {
	if cfg.MaxRequests <= 0 {
		return nil, ErrInvalidMaxRequests
	}
	if cfg.WindowMs <= 0 {
		return nil, ErrInvalidWindow
	}
	if clk == nil {
		clk = clock.Real()
	}

	l := &SlidingWindow{
		cfg:       cfg,
		clk:       clk,
		locks:     keylock.New(),
		sweepProb: DefaultSweepProbability,
		logger:    slog.Default(),
		histories: make(map[string][]int64),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Config returns the limiter's admission policy.
func (l *SlidingWindow) Config() Config {
	return l.cfg
}

// Check decides whether key may be admitted right now and records the
// admission if so. The whole step runs under key's lock, so concurrent
// callers are decided strictly in arrival order and the budget is never
// oversubscribed. Rejected requests consume no quota.
func (l *SlidingWindow) Check(ctx context.Context, key string) (Result, error) {
	var res Result
	err := l.locks.WithLock(ctx, key, func(ctx context.Context) error {
		res = l.checkLocked(key)
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	l.maybeSweep()
	return res, nil
}

// checkLocked is the admission step. Callers must hold key's lock.
func (l *SlidingWindow) checkLocked(key string) Result {
	now := l.clk.Now()
	windowStart := now - l.cfg.WindowMs

	l.mu.Lock()
	defer l.mu.Unlock()

	live := pruneExpired(l.histories[key], windowStart)
	count := len(live)
	remaining := l.cfg.MaxRequests - count

	info := Info{
		Limit: l.cfg.MaxRequests,
		Reset: windowStart + l.cfg.WindowMs,
	}

	if remaining <= 0 {
		l.histories[key] = live
		// live is non-empty whenever we reject, so the oldest counted
		// admission tells when the next slot frees.
		return Result{
			Allowed:    false,
			Info:       info,
			RetryAfter: time.Duration(live[0]+l.cfg.WindowMs-now) * time.Millisecond,
		}
	}

	live = append(live, now)
	l.histories[key] = live
	info.Remaining = remaining - 1
	return Result{Allowed: true, Info: info}
}

// Peek reports key's current quota without recording anything. Expired
// entries are still pruned so idle keys shrink on inspection too.
func (l *SlidingWindow) Peek(ctx context.Context, key string) (Info, error) {
	var info Info
	err := l.locks.WithLock(ctx, key, func(ctx context.Context) error {
		now := l.clk.Now()
		windowStart := now - l.cfg.WindowMs

		l.mu.Lock()
		defer l.mu.Unlock()

		live := pruneExpired(l.histories[key], windowStart)
		if len(live) == 0 {
			delete(l.histories, key)
		} else {
			l.histories[key] = live
		}

		remaining := l.cfg.MaxRequests - len(live)
		if remaining < 0 {
			remaining = 0
		}
		info = Info{
			Remaining: remaining,
			Limit:     l.cfg.MaxRequests,
			Reset:     windowStart + l.cfg.WindowMs,
		}
		return nil
	})
	if err != nil {
		return Info{}, err
	}
	return info, nil
}

// Reset clears key's history, restoring its full quota immediately. It
// runs under key's lock so it cannot interleave with an in-flight
// check on the same key.
func (l *SlidingWindow) Reset(ctx context.Context, key string) error {
	return l.locks.WithLock(ctx, key, func(ctx context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.histories, key)
		return nil
	})
}

// ResetAll drops every key's history.
func (l *SlidingWindow) ResetAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.histories = make(map[string][]int64)
}

// SweepNow prunes expired entries from every key and deletes keys whose
// history emptied. It returns the number of keys deleted. The sweep
// only removes entries an inline check would also have dropped, so it
// never changes any admission decision.
func (l *SlidingWindow) SweepNow() int {
	windowStart := l.clk.Now() - l.cfg.WindowMs

	l.mu.Lock()
	defer l.mu.Unlock()

	deleted := 0
	for key, hist := range l.histories {
		live := pruneExpired(hist, windowStart)
		if len(live) == 0 {
			delete(l.histories, key)
			deleted++
			continue
		}
		l.histories[key] = live
	}
	return deleted
}

// maybeSweep runs SweepNow on a small random fraction of calls. The
// common path stays proportional to one key's history; only the
// occasional winner pays for a pass over all keys.
func (l *SlidingWindow) maybeSweep() {
	if l.sweepProb <= 0 {
		return
	}
	if l.sweepProb < 1 && rand.Float64() >= l.sweepProb {
		return
	}
	if deleted := l.SweepNow(); deleted > 0 {
		l.logger.Debug("rate limit sweep evicted idle keys",
			slog.Int("deleted", deleted))
	}
}

// Size reports how many keys currently have recorded history. Intended
// for tests.
func (l *SlidingWindow) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.histories)
}

// Dump returns a copy of all recorded histories. Intended for tests.
func (l *SlidingWindow) Dump() map[string][]int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string][]int64, len(l.histories))
	for key, hist := range l.histories {
		cp := make([]int64, len(hist))
		copy(cp, hist)
		out[key] = cp
	}
	return out
}

// pruneExpired drops timestamps at or before windowStart, in place.
// Entries are chronological, so survivors keep their order.
func pruneExpired(hist []int64, windowStart int64) []int64 {
	if len(hist) == 0 {
		return hist
	}
	live := hist[:0]
	for _, ts := range hist {
		if ts > windowStart {
			live = append(live, ts)
		}
	}
	return live
}
