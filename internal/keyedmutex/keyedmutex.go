// Package keyedmutex serializes operations that share a string key while
// letting operations on distinct keys run in parallel. It is purely
// in-process; the coordination scope is a single memory space.
package keyedmutex

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrWaitTimeout is returned when a caller gives up waiting for a key before
// its critical section ever started. No side effects have happened.
var ErrWaitTimeout = errors.New("keyedmutex: wait timeout")

// entry represents "someone currently holds this key". done is closed exactly
// once, by whichever of normal release or the hold timer removes the entry
// from the table first.
type entry struct {
	timer *time.Timer
	done  chan struct{}
}

// KeyedMutex maps keys to in-flight critical sections. The table-level mutex
// makes the free-check and the claim a single atomic step, so two goroutines
// can never both observe a key as free.
//
// A held key is force-released when its hold deadline fires, even if the
// operation is still running. That unblocks queued waiters at the cost of the
// exclusivity guarantee for the overrunning operation: from that point on a
// second caller may enter the same key concurrently. The overrunning
// operation itself is not cancelled. Callers should size HoldTimeout well
// above their worst-case critical section.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*entry

	waitTimeout time.Duration
	holdTimeout time.Duration

	// OnHoldExpired, if set, is called with the key whenever a hold deadline
	// force-releases it. Used for metrics; must not block.
	OnHoldExpired func(key string)
}

type Option func(*KeyedMutex)

// WithWaitTimeout bounds how long Run waits to acquire a key.
func WithWaitTimeout(d time.Duration) Option {
	return func(m *KeyedMutex) { m.waitTimeout = d }
}

// WithHoldTimeout bounds how long a critical section may occupy a key before
// it is force-released for other waiters.
func WithHoldTimeout(d time.Duration) Option {
	return func(m *KeyedMutex) { m.holdTimeout = d }
}

func New(opts ...Option) *KeyedMutex {
	m := &KeyedMutex{
		entries:     make(map[string]*entry),
		waitTimeout: 3 * time.Second,
		holdTimeout: 10 * time.Second,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Run executes fn while holding key. If the key is free it is claimed
// immediately; otherwise Run waits for the current holder to finish,
// re-checking each time the holder's completion signal fires. Waiting stops
// with ErrWaitTimeout once the wait budget is spent, or with ctx.Err() if the
// context ends first; in both cases fn never ran.
//
// Errors from fn are returned as-is after the key has been released; they are
// not lock failures.
func (m *KeyedMutex) Run(ctx context.Context, key string, fn func() error) error {
	var deadline *time.Timer
	var expired <-chan time.Time
	if m.waitTimeout > 0 {
		deadline = time.NewTimer(m.waitTimeout)
		defer deadline.Stop()
		expired = deadline.C
	}

	for {
		m.mu.Lock()
		cur, held := m.entries[key]
		if !held {
			e := &entry{done: make(chan struct{})}
			if m.holdTimeout > 0 {
				e.timer = time.AfterFunc(m.holdTimeout, func() { m.expire(key, e) })
			}
			m.entries[key] = e
			m.mu.Unlock()

			err := fn()
			m.release(key, e)
			return err
		}
		ch := cur.done
		m.mu.Unlock()

		select {
		case <-ch:
			// Holder finished or was force-released; loop and re-check.
		case <-expired:
			return ErrWaitTimeout
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// release removes e from the table if it is still the current entry for key.
// Identity is compared so a release racing a fired hold timer (or a stale
// holder releasing after a force-release) is a no-op.
func (m *KeyedMutex) release(key string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries[key] != e {
		return
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	delete(m.entries, key)
	close(e.done)
}

func (m *KeyedMutex) expire(key string, e *entry) {
	m.mu.Lock()
	if m.entries[key] != e {
		m.mu.Unlock()
		return
	}
	delete(m.entries, key)
	close(e.done)
	m.mu.Unlock()

	slog.Warn("keyedmutex: hold deadline expired, key force-released", "key", key, "hold_timeout", m.holdTimeout)
	if m.OnHoldExpired != nil {
		m.OnHoldExpired(key)
	}
}

// Held reports whether key currently has an in-flight critical section.
func (m *KeyedMutex) Held(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	return ok
}
