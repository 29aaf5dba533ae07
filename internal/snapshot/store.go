// Package snapshot holds the client-side copy of one learning session tree.
//
// Snapshots are immutable: a *model.Session returned by the store, and every
// *model.Question and *model.Option reachable from it, must never be modified.
// All writes go through Store.Apply, which runs a patch against a copy-on-write
// Draft, or Store.Replace, which swaps the whole tree. Untouched branches are
// shared between consecutive snapshots, so consumers can skip work by comparing
// pointers or Revision numbers instead of contents.
package snapshot

import (
	"errors"
	"sync"

	"github.com/stemsi/classpoll/internal/model"
)

// ErrNoSnapshot is returned by Apply before the first snapshot is loaded.
var ErrNoSnapshot = errors.New("no snapshot loaded")

// Store owns the current snapshot and fans new snapshots out to subscribers.
type Store struct {
	// writeMu serializes writers and keeps publications in commit order.
	writeMu sync.Mutex

	mu      sync.RWMutex
	current *model.Session
	rev     uint64

	subsMu sync.Mutex
	subs   map[int]func(*model.Session)
	nextID int
}

// New creates a store. initial may be nil; it is stamped like a Replace.
func New(initial *model.Session) *Store {
	s := &Store{subs: make(map[int]func(*model.Session))}
	if initial != nil {
		s.rev = 1
		stampTree(initial, s.rev)
		s.current = initial
	}
	return s
}

// Snapshot returns the current snapshot, or nil before the first load.
func (s *Store) Snapshot() *model.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Revision returns the revision of the current snapshot.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rev
}

// Apply runs patch against a draft of the current snapshot and publishes the
// result. If patch returns an error nothing changes and the current snapshot
// is returned with that error. If patch touches nothing, no new snapshot is
// created and subscribers are not notified.
func (s *Store) Apply(patch func(d *Draft) error) (*model.Session, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	base := s.Snapshot()
	if base == nil {
		return nil, ErrNoSnapshot
	}

	d := newDraft(base)
	if err := patch(d); err != nil {
		return base, err
	}
	if !d.dirty() {
		return base, nil
	}

	s.mu.Lock()
	s.rev++
	next := d.commit(s.rev)
	s.current = next
	s.mu.Unlock()

	s.publish(next)
	return next, nil
}

// Replace swaps the whole tree. The store takes ownership of next: the caller
// must not touch it afterwards.
func (s *Store) Replace(next *model.Session) *model.Session {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.rev++
	stampTree(next, s.rev)
	s.current = next
	s.mu.Unlock()

	s.publish(next)
	return next
}

// Subscribe registers fn to receive every new snapshot. fn runs on the writer's
// goroutine while writes are serialized, so it must not call Apply or Replace.
// The returned function removes the subscription.
func (s *Store) Subscribe(fn func(*model.Session)) (cancel func()) {
	s.subsMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, id)
			s.subsMu.Unlock()
		})
	}
}

func (s *Store) publish(next *model.Session) {
	s.subsMu.Lock()
	fns := make([]func(*model.Session), 0, len(s.subs))
	for id := 0; id < s.nextID; id++ {
		if fn, ok := s.subs[id]; ok {
			fns = append(fns, fn)
		}
	}
	s.subsMu.Unlock()

	for _, fn := range fns {
		fn(next)
	}
}

func stampTree(sess *model.Session, rev uint64) {
	if sess == nil {
		return
	}
	sess.Revision = rev
	for _, q := range sess.Questions {
		q.Revision = rev
		for _, o := range q.Options {
			o.Revision = rev
		}
	}
}
