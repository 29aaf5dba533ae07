package editor

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/classpoll/internal/model"
)

// Write is a network call that has been issued and has not returned yet.
// Before is the snapshot from just before the optimistic patch it carries,
// which is what a rollback would restore.
type Write struct {
	ID      uint64
	Op      string
	Entity  uuid.UUID
	Before  *model.Session
	Started time.Time
}

// Ledger tracks in-flight writes.
type Ledger struct {
	mu     sync.Mutex
	next   uint64
	writes map[uint64]Write
}

func newLedger() *Ledger {
	return &Ledger{writes: make(map[uint64]Write)}
}

func (l *Ledger) begin(op string, entity uuid.UUID, before *model.Session, now time.Time) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next++
	l.writes[l.next] = Write{ID: l.next, Op: op, Entity: entity, Before: before, Started: now}
	return l.next
}

func (l *Ledger) end(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.writes, id)
}

// InFlight lists the open writes in issue order.
func (l *Ledger) InFlight() []Write {
	l.mu.Lock()
	out := make([]Write, 0, len(l.writes))
	for _, w := range l.writes {
		out = append(out, w)
	}
	l.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// flight counts dispatched calls that have not returned. Unlike the ledger it
// also covers the gap between a stream call and the queued value it hands
// off to, so Wait never observes zero while a successor is pending.
type flight struct {
	mu   sync.Mutex
	idle *sync.Cond
	n    int
}

func newFlight() *flight {
	f := &flight{}
	f.idle = sync.NewCond(&f.mu)
	return f
}

func (f *flight) start() {
	f.mu.Lock()
	f.n++
	f.mu.Unlock()
}

func (f *flight) done() {
	f.mu.Lock()
	f.n--
	if f.n == 0 {
		f.idle.Broadcast()
	}
	f.mu.Unlock()
}

// track is a fieldsync.Config.Track hook.
func (f *flight) track() func() {
	f.start()
	return f.done
}

func (f *flight) wait() {
	f.mu.Lock()
	for f.n > 0 {
		f.idle.Wait()
	}
	f.mu.Unlock()
}
