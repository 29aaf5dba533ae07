package fieldsync_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/classpoll/internal/fieldsync"
	"github.com/stemsi/classpoll/internal/fieldsync/fieldsynctest"
)

const delay = time.Second

type sendCall struct {
	value   string
	ctx     context.Context
	release chan error
}

// sender hands every call to the test and blocks until it is released.
// With honorCancel set, a cancelled context also ends the call.
type sender struct {
	calls       chan *sendCall
	honorCancel bool
}

func newSender(honorCancel bool) *sender {
	return &sender{calls: make(chan *sendCall, 16), honorCancel: honorCancel}
}

func (s *sender) send(ctx context.Context, v string) error {
	c := &sendCall{value: v, ctx: ctx, release: make(chan error, 1)}
	s.calls <- c
	if s.honorCancel {
		select {
		case err := <-c.release:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return <-c.release
}

func (s *sender) next(t *testing.T) *sendCall {
	t.Helper()
	select {
	case c := <-s.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("expected a network call")
		return nil
	}
}

func (s *sender) none(t *testing.T) {
	t.Helper()
	select {
	case c := <-s.calls:
		t.Fatalf("unexpected network call with %q", c.value)
	case <-time.After(20 * time.Millisecond):
	}
}

type errSink struct {
	mu   sync.Mutex
	errs []error
}

func (e *errSink) record(_ fieldsync.Key, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errs = append(e.errs, err)
}

func (e *errSink) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.errs)
}

func newStream(baseline string, s *sender) (*fieldsync.Stream[string], *fieldsynctest.Clock, *errSink) {
	clock := fieldsynctest.NewClock()
	sink := &errSink{}
	key := fieldsync.Key{Entity: uuid.New(), Field: "title"}
	st := fieldsync.New(key, baseline, s.send, fieldsync.Config{Delay: delay, Clock: clock, OnError: sink.record})
	return st, clock, sink
}

func TestPushCoalescesTyping(t *testing.T) {
	s := newSender(false)
	st, clock, _ := newStream("", s)

	st.Push("A")
	clock.Advance(150 * time.Millisecond)
	st.Push("AB")
	clock.Advance(180 * time.Millisecond)
	st.Push("ABC")
	clock.Advance(delay - time.Millisecond)
	s.none(t)
	if !st.Pending() {
		t.Fatal("value should still be pending")
	}

	clock.Advance(time.Millisecond)
	c := s.next(t)
	if c.value != "ABC" {
		t.Fatalf("sent %q, want %q", c.value, "ABC")
	}
	c.release <- nil
	st.Wait()
	s.none(t)
}

func TestSupersedeCancelsInFlight(t *testing.T) {
	s := newSender(true)
	st, clock, sink := newStream("", s)

	st.Push("A")
	clock.Advance(delay)
	first := s.next(t)

	st.Push("B")
	clock.Advance(delay)
	second := s.next(t)
	if second.value != "B" {
		t.Fatalf("sent %q, want B", second.value)
	}
	if !errors.Is(first.ctx.Err(), context.Canceled) {
		t.Fatal("superseded call must be cancelled before the next one starts")
	}
	second.release <- nil
	st.Wait()

	if n := sink.count(); n != 0 {
		t.Fatalf("superseded cancellation reported %d errors", n)
	}
}

func TestCallsNeverOverlap(t *testing.T) {
	s := newSender(false) // ignores cancellation
	st, clock, _ := newStream("", s)

	st.Push("A")
	clock.Advance(delay)
	first := s.next(t)

	st.Push("B")
	clock.Advance(delay)
	s.none(t)
	if !st.Pending() {
		t.Fatal("B should wait for the call in flight")
	}

	first.release <- nil
	second := s.next(t)
	if second.value != "B" {
		t.Fatalf("sent %q, want B", second.value)
	}
	second.release <- nil
	st.Wait()
}

func TestThrottleHoldsTrailingValue(t *testing.T) {
	s := newSender(false)
	st, clock, _ := newStream("", s)

	st.Push("A")
	clock.Advance(delay) // t=1000, A starts
	first := s.next(t)

	clock.Advance(300 * time.Millisecond)
	st.Push("B")
	clock.Advance(delay) // t=2300, B ready and queued behind A
	clock.Advance(100 * time.Millisecond)
	st.Push("C") // quiet at t=3400

	clock.Advance(400 * time.Millisecond) // t=2800
	first.release <- nil
	second := s.next(t) // B starts at t=2800
	if second.value != "B" {
		t.Fatalf("sent %q, want B", second.value)
	}
	second.release <- nil
	st.Wait()

	clock.Advance(600 * time.Millisecond) // t=3400, only 600ms since B started
	s.none(t)

	clock.Advance(400 * time.Millisecond) // t=3800
	third := s.next(t)
	if third.value != "C" {
		t.Fatalf("sent %q, want C", third.value)
	}
	third.release <- nil
	st.Wait()
}

func TestCommitSkipsDebounceAndDedupes(t *testing.T) {
	s := newSender(false)
	st, clock, _ := newStream("Lesson", s)

	if st.Commit("Lesson") {
		t.Fatal("committing the baseline must not send")
	}
	s.none(t)

	st.Push("Lesson 2")
	if !st.Commit("Lesson 2") {
		t.Fatal("commit of a new value must send")
	}
	c := s.next(t)
	if c.value != "Lesson 2" {
		t.Fatalf("sent %q", c.value)
	}
	c.release <- nil
	st.Wait()

	clock.Advance(2 * delay)
	s.none(t)

	if st.Commit("Lesson 2") {
		t.Fatal("second commit of the same value must not send")
	}
}

func TestCommitRevertDropsPending(t *testing.T) {
	s := newSender(false)
	st, clock, _ := newStream("A", s)

	st.Push("AB")
	if st.Commit("A") {
		t.Fatal("reverting to the synced value must not send")
	}
	clock.Advance(2 * delay)
	s.none(t)
}

func TestCloseDropsPendingButKeepsInFlight(t *testing.T) {
	s := newSender(false)
	st, clock, sink := newStream("", s)

	st.Push("A")
	clock.Advance(delay)
	first := s.next(t)

	st.Push("B")
	st.Close()
	clock.Advance(2 * delay)
	s.none(t)

	if errors.Is(first.ctx.Err(), context.Canceled) {
		t.Fatal("close must not cancel the call in flight")
	}
	first.release <- nil
	st.Wait()

	st.Push("C")
	clock.Advance(2 * delay)
	s.none(t)
	if sink.count() != 0 {
		t.Fatal("no errors expected")
	}
}

func TestFailureReportedOnce(t *testing.T) {
	s := newSender(false)
	st, clock, sink := newStream("", s)

	st.Push("A")
	clock.Advance(delay)
	c := s.next(t)
	c.release <- errors.New("503")
	st.Wait()

	if n := sink.count(); n != 1 {
		t.Fatalf("reported %d errors, want 1", n)
	}
	clock.Advance(5 * delay)
	s.none(t)
}

func TestStreamsAreIndependent(t *testing.T) {
	s := newSender(false)
	clock := fieldsynctest.NewClock()
	cfg := fieldsync.Config{Delay: delay, Clock: clock}
	entity := uuid.New()
	title := fieldsync.New(fieldsync.Key{Entity: entity, Field: "title"}, "", s.send, cfg)
	effect := fieldsync.New(fieldsync.Key{Entity: entity, Field: "effect"}, "", s.send, cfg)

	title.Push("x")
	effect.Push("y")
	clock.Advance(delay)

	a, b := s.next(t), s.next(t)
	if a.value == b.value {
		t.Fatal("expected one call per stream")
	}
	a.release <- nil
	b.release <- nil
	title.Wait()
	effect.Wait()
}

func TestRetryAfterFailureIsSent(t *testing.T) {
	tests := []struct {
		name string
		emit func(st *fieldsync.Stream[string], clock *fieldsynctest.Clock, v string)
	}{
		{"commit", func(st *fieldsync.Stream[string], _ *fieldsynctest.Clock, v string) { st.Commit(v) }},
		{"push", func(st *fieldsync.Stream[string], clock *fieldsynctest.Clock, v string) {
			st.Push(v)
			clock.Advance(delay)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSender(false)
			st, clock, sink := newStream("old", s)

			tt.emit(st, clock, "new")
			c := s.next(t)
			c.release <- errors.New("503")
			st.Wait()
			if sink.count() != 1 {
				t.Fatalf("reported %d errors, want 1", sink.count())
			}

			clock.Advance(delay)
			tt.emit(st, clock, "new")
			c = s.next(t)
			if c.value != "new" {
				t.Fatalf("retry sent %q, want %q", c.value, "new")
			}
			c.release <- nil
			st.Wait()

			if st.Commit("new") {
				t.Fatal("value accepted by the server must not be sent again")
			}
		})
	}
}

func TestRebaseMovesDedupeBaseline(t *testing.T) {
	s := newSender(false)
	st, clock, _ := newStream("A", s)

	st.Commit("B")
	s.next(t).release <- nil
	st.Wait()

	// The server went back to A behind our back; B must be sendable again.
	st.Rebase("A")
	if st.Commit("A") {
		t.Fatal("rebased value must not be sent")
	}
	clock.Advance(delay)
	if !st.Commit("B") {
		t.Fatal("B differs from the rebased value and must be sent")
	}
	s.next(t).release <- nil
	st.Wait()
}

func TestRebaseDropsDebouncedValue(t *testing.T) {
	s := newSender(false)
	st, clock, _ := newStream("A", s)

	st.Push("typed")
	st.Rebase("server")
	clock.Advance(2 * delay)
	s.none(t)
	if st.Pending() {
		t.Fatal("nothing should be pending after a rebase")
	}
}

func TestTrackCoversQueuedSuccessor(t *testing.T) {
	s := newSender(true)
	clock := fieldsynctest.NewClock()
	var mu sync.Mutex
	active, peak := 0, 0
	track := func() func() {
		mu.Lock()
		active++
		peak = max(peak, active)
		mu.Unlock()
		return func() {
			mu.Lock()
			active--
			mu.Unlock()
		}
	}
	key := fieldsync.Key{Entity: uuid.New(), Field: "title"}
	st := fieldsync.New(key, "", s.send, fieldsync.Config{Delay: delay, Clock: clock, Track: track})

	st.Commit("one")
	first := s.next(t)
	st.Commit("two")
	<-first.ctx.Done()
	second := s.next(t)

	mu.Lock()
	if active < 1 {
		mu.Unlock()
		t.Fatal("tracked count dropped to zero while the successor runs")
	}
	mu.Unlock()

	second.release <- nil
	st.Wait()
	mu.Lock()
	defer mu.Unlock()
	if active != 0 || peak > 2 {
		t.Fatalf("active = %d, peak = %d", active, peak)
	}
}
