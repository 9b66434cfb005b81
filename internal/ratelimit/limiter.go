package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Level represents the level of rate limiting
type Level string

const (
	LevelProject Level = "project"
	LevelUser    Level = "user"
)

// Config contains rate limit configuration
type Config struct {
	// Sends per minute per project. Zero disables the project limit.
	ProjectPerMinute int `yaml:"project_per_minute"`
	// Sends per minute per user. Zero disables the user limit.
	UserPerMinute int `yaml:"user_per_minute"`
	// Burst size for every bucket. Defaults to 1.
	Burst int `yaml:"burst"`
	// Idle buckets are evicted after this long.
	IdleTTL time.Duration `yaml:"idle_ttl"`
}

// Request describes the action being limited
type Request struct {
	ProjectID string
	UserID    string
}

// Result is the outcome of Allow
type Result struct {
	Allowed    bool
	DeniedBy   Level
	DeniedKey  string
	RetryAfter time.Duration
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type check struct {
	level Level
	key   string
	limit rate.Limit
}

// Limiter implements token bucket limiting keyed by project and user
type Limiter struct {
	config  Config
	buckets map[string]*bucket
	mu      sync.Mutex
	now     func() time.Time
	stopCh  chan struct{}
	once    sync.Once
}

// NewLimiter creates a new rate limiter and starts idle bucket eviction
func NewLimiter(cfg Config) *Limiter {
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}

	l := &Limiter{
		config:  cfg,
		buckets: make(map[string]*bucket),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}

	go l.cleanupLoop()

	return l
}

// ExceededError is returned by Check when a bucket is empty.
type ExceededError struct {
	Level      Level
	Key        string
	RetryAfter time.Duration
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry in %s", e.Level, e.RetryAfter.Round(time.Second))
}

// Check is Allow returning an *ExceededError on denial.
func (l *Limiter) Check(ctx context.Context, req *Request) error {
	res := l.Allow(ctx, req)
	if res.Allowed {
		return nil
	}
	return &ExceededError{Level: res.DeniedBy, Key: res.DeniedKey, RetryAfter: res.RetryAfter}
}

// Allow takes one token from every applicable bucket. When a bucket is
// empty nothing is consumed and the result carries the wait time.
func (l *Limiter) Allow(ctx context.Context, req *Request) *Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	checks := l.getChecks(req)

	reservations := make([]*rate.Reservation, 0, len(checks))
	for _, c := range checks {
		b := l.getOrCreateBucket(c, now)
		r := b.limiter.ReserveN(now, 1)
		if delay := r.DelayFrom(now); !r.OK() || delay > 0 {
			r.CancelAt(now)
			for _, prev := range reservations {
				prev.CancelAt(now)
			}
			return &Result{
				Allowed:    false,
				DeniedBy:   c.level,
				DeniedKey:  c.key,
				RetryAfter: delay,
			}
		}
		reservations = append(reservations, r)
	}

	return &Result{Allowed: true}
}

// Stop stops idle bucket eviction
func (l *Limiter) Stop() {
	l.once.Do(func() { close(l.stopCh) })
}

func (l *Limiter) getChecks(req *Request) []check {
	var checks []check
	if l.config.ProjectPerMinute > 0 && req.ProjectID != "" {
		checks = append(checks, check{
			level: LevelProject,
			key:   string(LevelProject) + ":" + req.ProjectID,
			limit: perMinute(l.config.ProjectPerMinute),
		})
	}
	if l.config.UserPerMinute > 0 && req.UserID != "" {
		checks = append(checks, check{
			level: LevelUser,
			key:   string(LevelUser) + ":" + req.UserID,
			limit: perMinute(l.config.UserPerMinute),
		})
	}
	return checks
}

func (l *Limiter) getOrCreateBucket(c check, now time.Time) *bucket {
	b, ok := l.buckets[c.key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(c.limit, l.config.Burst)}
		l.buckets[c.key] = b
	}
	b.lastSeen = now
	return b
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(l.config.IdleTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.evictIdle()
		case <-l.stopCh:
			return
		}
	}
}

func (l *Limiter) evictIdle() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.config.IdleTTL)
	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}

func perMinute(n int) rate.Limit {
	return rate.Every(time.Minute / time.Duration(n))
}
