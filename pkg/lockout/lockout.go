// Package lockout tracks consecutive failed logins and the lockout
// windows they trigger.
package lockout

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/qrdesk/qrdesk/pkg/domain"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultMaxAttempts is the number of consecutive failures that
	// triggers a lockout.
	DefaultMaxAttempts = 3

	// DefaultDuration is how long a lockout lasts.
	DefaultDuration = 90 * time.Second

	// DefaultSweepInterval is how often Run clears expired lockouts.
	DefaultSweepInterval = time.Second

	// GlobalKey is the key shared by every attempt when lockout is not
	// scoped per client.
	GlobalKey = "global"
)

// State is the lockout bookkeeping for one key.
type State struct {
	FailedAttempts int       `json:"failed_attempts"`
	LockedUntil    time.Time `json:"locked_until,omitempty"`
}

// Locked reports whether the state rejects attempts at now.
func (s State) Locked(now time.Time) bool {
	return !s.LockedUntil.IsZero() && now.Before(s.LockedUntil)
}

// expired reports whether a lockout was set and has passed.
func (s State) expired(now time.Time) bool {
	return !s.LockedUntil.IsZero() && !now.Before(s.LockedUntil)
}

// Option configures a Policy.
type Option func(*Policy)

// WithMaxAttempts sets the failure threshold. Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(p *Policy) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithDuration sets the lockout window. Non-positive values are ignored.
func WithDuration(d time.Duration) Option {
	return func(p *Policy) {
		if d > 0 {
			p.duration = d
		}
	}
}

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Policy) {
		if now != nil {
			p.now = now
		}
	}
}

// Policy holds one State per key. It is safe for concurrent use.
type Policy struct {
	log         logrus.FieldLogger
	mu          sync.Mutex
	states      map[string]*State
	maxAttempts int
	duration    time.Duration
	now         func() time.Time
}

// NewPolicy creates a Policy with the given options.
func NewPolicy(log logrus.FieldLogger, opts ...Option) *Policy {
	p := &Policy{
		log:         log.WithField("component", "lockout"),
		states:      make(map[string]*State, 16),
		maxAttempts: DefaultMaxAttempts,
		duration:    DefaultDuration,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// MaxAttempts returns the configured failure threshold.
func (p *Policy) MaxAttempts() int {
	return p.maxAttempts
}

// Check returns a LockedOut error while key is locked. An expired lockout
// is cleared as a side effect.
func (p *Policy) Check(key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.states[key]
	if !ok {
		return nil
	}

	now := p.now()

	if st.Locked(now) {
		return domain.LockedOut(remainingSeconds(st.LockedUntil, now))
	}

	if st.expired(now) {
		p.clearLocked(key, "lazy")
	}

	return nil
}

// Fail records a failed attempt for key. It returns InvalidCredential with
// the attempts left, or TooManyAttempts once the threshold is reached.
func (p *Policy) Fail(key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()

	st, ok := p.states[key]
	if !ok {
		st = &State{}
		p.states[key] = st
	}

	// A concurrent attempt may have locked the key after our Check.
	if st.Locked(now) {
		return domain.LockedOut(remainingSeconds(st.LockedUntil, now))
	}

	if st.expired(now) {
		st.FailedAttempts = 0
		st.LockedUntil = time.Time{}
	}

	st.FailedAttempts++

	if st.FailedAttempts >= p.maxAttempts {
		st.LockedUntil = now.Add(p.duration)

		p.log.WithFields(logrus.Fields{
			"key":      key,
			"attempts": st.FailedAttempts,
			"until":    st.LockedUntil.Format(time.RFC3339),
		}).Warn("Login locked after repeated failures")

		return domain.TooManyAttempts(remainingSeconds(st.LockedUntil, now))
	}

	p.log.WithFields(logrus.Fields{
		"key":      key,
		"attempts": st.FailedAttempts,
	}).Info("Failed login attempt")

	return domain.InvalidCredential(p.maxAttempts - st.FailedAttempts)
}

// Succeed resets the state for key.
func (p *Policy) Succeed(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.states, key)
}

// Status returns a copy of the state for key.
func (p *Policy) Status(key string) State {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.states[key]
	if !ok {
		return State{}
	}

	return *st
}

// Sweep clears every expired lockout and returns how many were cleared.
func (p *Policy) Sweep() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	cleared := 0

	for key, st := range p.states {
		if st.expired(now) {
			p.clearLocked(key, "sweep")
			cleared++
		}
	}

	return cleared
}

// Run sweeps expired lockouts every interval until ctx is done.
func (p *Policy) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.Sweep()
		case <-ctx.Done():
			return
		}
	}
}

// clearLocked drops the state for key. Callers hold p.mu.
func (p *Policy) clearLocked(key, reason string) {
	delete(p.states, key)

	p.log.WithFields(logrus.Fields{
		"key":    key,
		"reason": reason,
	}).Info("Login lockout expired")
}

func remainingSeconds(until, now time.Time) int {
	return int(math.Ceil(until.Sub(now).Seconds()))
}
