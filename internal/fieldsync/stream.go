// Package fieldsync schedules the network writes of individually edited fields.
//
// Every (entity, field) pair gets its own Stream. Rapid edits are coalesced:
// a value becomes ready after the field has been quiet for the configured
// delay, and no two emissions of one stream start closer together than that
// delay. Only the latest value is ever sent. Calls of one stream never
// overlap; a newer value supersedes the call in flight by cancelling its
// context and is sent once that call has returned. Separate streams are
// independent.
package fieldsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultDelay is the debounce and throttle window used when Config.Delay is zero.
const DefaultDelay = time.Second

// Key identifies one synchronized field.
type Key struct {
	Entity uuid.UUID
	Field  string
}

func (k Key) String() string { return fmt.Sprintf("%s.%s", k.Entity, k.Field) }

// SendFunc performs the network write of one value.
type SendFunc[T any] func(ctx context.Context, v T) error

// Config tunes a Stream. The zero value is usable.
type Config struct {
	Delay   time.Duration
	Clock   Clock
	Log     zerolog.Logger
	OnError func(Key, error)
	// Track, when set, is called as each call starts; the returned func runs
	// once the call has returned and any queued successor has started.
	Track func() (done func())
}

func (c Config) withDefaults() Config {
	if c.Delay <= 0 {
		c.Delay = DefaultDelay
	}
	if c.Clock == nil {
		c.Clock = RealClock()
	}
	return c
}

type call struct {
	cancel     context.CancelFunc
	superseded bool
}

// Stream coalesces the edits of one field into ordered network writes.
type Stream[T comparable] struct {
	key  Key
	cfg  Config
	send SendFunc[T]

	mu       sync.Mutex
	gen      uint64
	timer    Timer
	pending  bool
	value     T
	sent      T // last value handed to the pipeline
	confirmed T // last value the server accepted
	lastEmit time.Time
	emitted  bool
	inflight *call
	queued   bool
	next     T
	closed   bool

	wg sync.WaitGroup
}

// New creates a stream whose dedupe baseline is the currently known value.
func New[T comparable](key Key, baseline T, send SendFunc[T], cfg Config) *Stream[T] {
	cfg = cfg.withDefaults()
	cfg.Log = cfg.Log.With().Str("field", key.String()).Logger()
	return &Stream[T]{key: key, cfg: cfg, send: send, sent: baseline, confirmed: baseline}
}

// Key returns the field this stream writes.
func (s *Stream[T]) Key() Key { return s.key }

// Push records a new local value. It is sent once the field has been quiet
// for the delay, unless a later Push or Commit replaces it first or it equals
// the last value handed to the pipeline.
func (s *Stream[T]) Push(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.value = v
	s.pending = true
	s.schedule(s.cfg.Delay)
}

// Commit flushes v immediately, dropping any debounced value. It reports
// whether a write was issued: v equal to the last value handed to the
// pipeline is not sent again.
func (s *Stream[T]) Commit(v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.disarm()
	s.pending = false
	if v == s.sent {
		return false
	}
	s.ready(v)
	return true
}

// Pending reports whether a value is waiting to be sent.
func (s *Stream[T]) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending || s.queued
}

// Close drops the debounced value, if any. A call already in flight, and a
// value already waiting for it, still complete.
func (s *Stream[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.pending = false
	s.disarm()
}

// Rebase adopts v as the value the server holds, for instance after the
// session was fetched again. The debounced value, if any, is dropped. While a
// call is in flight only the confirmed value moves; the dedupe baseline
// follows once the pipeline is idle.
func (s *Stream[T]) Rebase(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disarm()
	s.pending = false
	s.confirmed = v
	if s.inflight == nil && !s.queued {
		s.sent = v
	}
}

// Wait blocks until every call started by the stream has returned.
func (s *Stream[T]) Wait() { s.wg.Wait() }

func (s *Stream[T]) disarm() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Stream[T]) schedule(d time.Duration) {
	s.disarm()
	gen := s.gen
	s.timer = s.cfg.Clock.AfterFunc(d, func() { s.fire(gen) })
}

func (s *Stream[T]) fire(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.closed || !s.pending {
		return
	}
	s.timer = nil

	if s.emitted {
		if since := s.cfg.Clock.Now().Sub(s.lastEmit); since < s.cfg.Delay {
			s.schedule(s.cfg.Delay - since)
			return
		}
	}
	s.pending = false
	if s.value == s.sent {
		return
	}
	s.ready(s.value)
}

// ready hands v to the pipeline. Callers hold s.mu.
func (s *Stream[T]) ready(v T) {
	s.sent = v
	if s.inflight != nil {
		s.next = v
		s.queued = true
		s.inflight.superseded = true
		s.inflight.cancel()
		return
	}
	s.start(v)
}

func (s *Stream[T]) start(v T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &call{cancel: cancel}
	s.inflight = c
	s.lastEmit = s.cfg.Clock.Now()
	s.emitted = true

	done := func() {}
	if s.cfg.Track != nil {
		done = s.cfg.Track()
	}
	s.wg.Add(1)
	go s.run(ctx, c, v, done)
}

func (s *Stream[T]) run(ctx context.Context, c *call, v T, done func()) {
	defer s.wg.Done()
	defer done()

	err := s.send(ctx, v)
	c.cancel()

	s.mu.Lock()
	superseded := c.superseded
	s.inflight = nil
	switch {
	case err == nil:
		s.confirmed = v
	case !s.queued:
		// v never arrived; an identical retry must go out again.
		s.sent = s.confirmed
	}
	if s.queued {
		s.queued = false
		s.start(s.next)
	}
	s.mu.Unlock()

	if err == nil {
		return
	}
	if superseded && errors.Is(err, context.Canceled) {
		s.cfg.Log.Debug().Msg("superseded write cancelled")
		return
	}
	s.cfg.Log.Error().Err(err).Msg("field sync failed")
	if s.cfg.OnError != nil {
		s.cfg.OnError(s.key, err)
	}
}
