package editor

import (
	"context"

	"github.com/google/uuid"
	"github.com/stemsi/classpoll/internal/fieldsync"
	"github.com/stemsi/classpoll/internal/model"
)

type questionStreams struct {
	title         *fieldsync.Stream[string]
	defaultOption *fieldsync.Stream[uuid.UUID]
}

func (s *questionStreams) close() {
	s.title.Close()
	s.defaultOption.Close()
}

type optionStreams struct {
	questionID uuid.UUID
	title      *fieldsync.Stream[string]
	reward     *fieldsync.Stream[int]
	effect     *fieldsync.Stream[bool]
}

func (s *optionStreams) close() {
	s.title.Close()
	s.reward.Close()
	s.effect.Close()
}

// MountQuestion starts the field streams of a question. Scalar edits of a
// question are only accepted while it is mounted. Mounting twice is a no-op.
func (e *Editor) MountQuestion(questionID uuid.UUID) error {
	q := e.store.Snapshot().Question(questionID)
	if q == nil {
		return ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.questions[questionID]; ok {
		return nil
	}

	var def uuid.UUID
	if q.DefaultOptionID != nil {
		def = *q.DefaultOptionID
	}
	qs := &questionStreams{
		title: newStream(e, questionID, string(model.QuestionFieldTitle), q.Title, func(ctx context.Context, v string) error {
			return e.backend.UpdateQuestionField(ctx, questionID, model.QuestionFieldTitle, v)
		}),
		defaultOption: newStream(e, questionID, string(model.QuestionFieldDefaultOption), def, func(ctx context.Context, v uuid.UUID) error {
			return e.backend.UpdateQuestionField(ctx, questionID, model.QuestionFieldDefaultOption, v)
		}),
	}
	e.questions[questionID] = qs
	return nil
}

// UnmountQuestion ends the question's streams, dropping debounced values.
func (e *Editor) UnmountQuestion(questionID uuid.UUID) {
	e.mu.Lock()
	qs, ok := e.questions[questionID]
	delete(e.questions, questionID)
	e.mu.Unlock()
	if ok {
		qs.close()
	}
}

// MountOption starts the field streams of an option.
func (e *Editor) MountOption(optionID uuid.UUID) error {
	q, o := findOption(e.store.Snapshot(), optionID)
	if o == nil {
		return ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.options[optionID]; ok {
		return nil
	}

	os := &optionStreams{
		questionID: q.ID,
		title: newStream(e, optionID, string(model.OptionFieldTitle), o.Title, func(ctx context.Context, v string) error {
			return e.backend.UpdateOptionField(ctx, optionID, model.OptionFieldTitle, v)
		}),
		reward: newStream(e, optionID, string(model.OptionFieldRewardPoint), o.RewardPoint, func(ctx context.Context, v int) error {
			return e.backend.UpdateOptionField(ctx, optionID, model.OptionFieldRewardPoint, v)
		}),
		effect: newStream(e, optionID, string(model.OptionFieldEffect), o.Effect, func(ctx context.Context, v bool) error {
			return e.backend.UpdateOptionField(ctx, optionID, model.OptionFieldEffect, v)
		}),
	}
	e.options[optionID] = os
	return nil
}

// UnmountOption ends the option's streams, dropping debounced values.
func (e *Editor) UnmountOption(optionID uuid.UUID) {
	e.mu.Lock()
	os, ok := e.options[optionID]
	delete(e.options, optionID)
	e.mu.Unlock()
	if ok {
		os.close()
	}
}

// MountAll mounts every question and option of the current snapshot.
func (e *Editor) MountAll() error {
	s := e.store.Snapshot()
	if s == nil {
		return ErrNotLoaded
	}
	for _, q := range s.Questions {
		if err := e.MountQuestion(q.ID); err != nil {
			return err
		}
		for _, o := range q.Options {
			if err := e.MountOption(o.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Editor) unmountTree(q *model.Question) {
	if q == nil {
		return
	}
	for _, o := range q.Options {
		e.UnmountOption(o.ID)
	}
	e.UnmountQuestion(q.ID)
}

// unmountMissing ends the streams of entities absent from s.
func (e *Editor) unmountMissing(s *model.Session) {
	e.mu.Lock()
	var questions, options []uuid.UUID
	for id := range e.questions {
		if s.Question(id) == nil {
			questions = append(questions, id)
		}
	}
	for id, os := range e.options {
		if s.Question(os.questionID).Option(id) == nil {
			options = append(options, id)
		}
	}
	e.mu.Unlock()

	for _, id := range options {
		e.UnmountOption(id)
	}
	for _, id := range questions {
		e.UnmountQuestion(id)
	}
}

// rebaseMounted tells every mounted stream what the server holds now, so a
// value the server lost is sent again when the user re-enters it. Debounced
// values are dropped along with their bursts.
func (e *Editor) rebaseMounted(s *model.Session) {
	e.mu.Lock()
	qs := make(map[uuid.UUID]*questionStreams, len(e.questions))
	for id, st := range e.questions {
		qs[id] = st
	}
	os := make(map[uuid.UUID]*optionStreams, len(e.options))
	for id, st := range e.options {
		os[id] = st
	}
	clear(e.bursts)
	e.mu.Unlock()

	for id, st := range qs {
		q := s.Question(id)
		if q == nil {
			continue
		}
		var def uuid.UUID
		if q.DefaultOptionID != nil {
			def = *q.DefaultOptionID
		}
		st.title.Rebase(q.Title)
		st.defaultOption.Rebase(def)
	}
	for id, st := range os {
		o := s.Question(st.questionID).Option(id)
		if o == nil {
			continue
		}
		st.title.Rebase(o.Title)
		st.reward.Rebase(o.RewardPoint)
		st.effect.Rebase(o.Effect)
	}
}

func (e *Editor) mountedQuestion(id uuid.UUID) (*questionStreams, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	qs, ok := e.questions[id]
	if !ok {
		return nil, ErrNotMounted
	}
	return qs, nil
}

func (e *Editor) mountedOption(id uuid.UUID) (*optionStreams, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	os, ok := e.options[id]
	if !ok {
		return nil, ErrNotMounted
	}
	return os, nil
}

// newStream builds a field stream whose writes are recorded in the ledger
// together with the snapshot that preceded the burst they carry.
func newStream[T comparable](e *Editor, entity uuid.UUID, field string, baseline T, send fieldsync.SendFunc[T]) *fieldsync.Stream[T] {
	key := fieldsync.Key{Entity: entity, Field: field}
	op := "update_" + field
	tracked := func(ctx context.Context, v T) error {
		id := e.ledger.begin(op, entity, e.takeBurst(key), e.clock.Now())
		defer e.ledger.end(id)
		return send(ctx, v)
	}
	return fieldsync.New(key, baseline, tracked, fieldsync.Config{
		Delay: e.debounce,
		Clock: e.clock,
		Log:   e.log,
		Track: e.flight.track,
		OnError: func(k fieldsync.Key, err error) {
			e.report(&SyncError{Key: k, Err: err})
		},
	})
}

func findOption(s *model.Session, optionID uuid.UUID) (*model.Question, *model.Option) {
	if s == nil {
		return nil, nil
	}
	for _, q := range s.Questions {
		if o := q.Option(optionID); o != nil {
			return q, o
		}
	}
	return nil, nil
}
