// ABOUTME: Debounced persistence scheduler coalescing rapid triggers per key.
// ABOUTME: Only the most recent write scheduled within the delay window executes.

package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Status describes a scheduled write's lifecycle as observed by callers.
type Status string

const (
	StatusSaving Status = "saving"
	StatusSaved  Status = "saved"
	StatusError  Status = "error"
)

// WriteFunc performs the persisted write for a key.
type WriteFunc func(ctx context.Context) error

// Observer receives status transitions for a key's writes. err is non-nil
// only for StatusError.
type Observer func(key string, status Status, err error)

// entry tracks the pending write for one key.
type entry struct {
	generation uint64
	timer      *time.Timer
	fn         WriteFunc
}

// Scheduler coalesces rapid Schedule calls into one delayed write per key.
// A new Schedule call for a key replaces, not queues, the prior pending
// action. The scheduler does not prevent overlapping in-flight writes for
// the same key if the caller schedules again mid-flight; that guarantee
// belongs to the caller.
type Scheduler struct {
	mu      sync.Mutex
	pending map[string]*entry
	delay   time.Duration
	observe Observer
	logger  *slog.Logger
	closed  bool
}

// New creates a scheduler with the given debounce delay. observe may be
// nil when the caller does not track save status.
func New(delay time.Duration, observe Observer) *Scheduler {
	return &Scheduler{
		pending: make(map[string]*entry),
		delay:   delay,
		observe: observe,
		logger:  slog.Default().With("component", "scheduler"),
	}
}

// Schedule records fn as the pending action for key and (re)starts the
// delay timer. Any previously pending action for the key is discarded.
func (s *Scheduler) Schedule(key string, fn WriteFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	e, ok := s.pending[key]
	if !ok {
		e = &entry{}
		s.pending[key] = e
	}

	// Bumping the generation invalidates any timer already counting down;
	// a stale timer that fires re-checks its captured generation and bails.
	e.generation++
	e.fn = fn
	if e.timer != nil {
		e.timer.Stop()
	}

	generation := e.generation
	e.timer = time.AfterFunc(s.delay, func() {
		s.fire(key, generation)
	})

	s.logger.Debug("write scheduled", "key", key, "generation", generation)
}

// Cancel clears any pending timer for key without executing it. Calling
// it when nothing is pending, or after the write already ran, is a no-op.
func (s *Scheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.pending[key]
	if !ok {
		return
	}

	e.generation++
	if e.timer != nil {
		e.timer.Stop()
	}
	delete(s.pending, key)

	s.logger.Debug("write cancelled", "key", key)
}

// Flush executes any pending write for key immediately, bypassing the
// delay, and returns its error. Returns nil when nothing is pending.
func (s *Scheduler) Flush(key string) error {
	s.mu.Lock()
	e, ok := s.pending[key]
	if !ok {
		s.mu.Unlock()
		return nil
	}

	e.generation++
	if e.timer != nil {
		e.timer.Stop()
	}
	fn := e.fn
	delete(s.pending, key)
	s.mu.Unlock()

	return s.execute(key, fn)
}

// Pending reports whether a write is currently scheduled for key.
func (s *Scheduler) Pending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[key]
	return ok
}

// Close cancels all pending writes. Scheduling after Close is a no-op.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, e := range s.pending {
		e.generation++
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(s.pending, key)
	}
	s.closed = true
}

// fire runs when a key's delay elapses. The captured generation must
// still be current, otherwise a newer Schedule or a Cancel superseded
// this timer.
func (s *Scheduler) fire(key string, generation uint64) {
	s.mu.Lock()
	e, ok := s.pending[key]
	if !ok || e.generation != generation {
		s.mu.Unlock()
		return
	}
	fn := e.fn
	delete(s.pending, key)
	s.mu.Unlock()

	s.execute(key, fn)
}

// execute runs fn with status notifications around it.
func (s *Scheduler) execute(key string, fn WriteFunc) error {
	s.notify(key, StatusSaving, nil)

	err := fn(context.Background())
	if err != nil {
		s.logger.Error("scheduled write failed", "key", key, "error", err)
		s.notify(key, StatusError, err)
		return err
	}

	s.notify(key, StatusSaved, nil)
	return nil
}

func (s *Scheduler) notify(key string, status Status, err error) {
	if s.observe != nil {
		s.observe(key, status, err)
	}
}
