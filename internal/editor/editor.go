// Package editor applies teacher edits to the local session snapshot first and
// synchronizes them with the server afterwards.
//
// Every edit is validated locally, patched into the snapshot store and
// published before any network call is made. Scalar fields go through
// per-field fieldsync streams, order changes are sent as one complete batch,
// and deletes are sent as one-shot calls. Adds are the exception: the new
// entity only appears once the server has returned its ID. Failed writes are
// logged and reported through Options.OnError; the optimistic state is kept
// until the next revalidation.
package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/classpoll/internal/fieldsync"
	"github.com/stemsi/classpoll/internal/guard"
	"github.com/stemsi/classpoll/internal/model"
	"github.com/stemsi/classpoll/internal/reorder"
	"github.com/stemsi/classpoll/internal/snapshot"
)

const (
	titleRule  = "required,max=255"
	rewardRule = "min=0,max=10000"
)

// Options configures an Editor. The zero value is usable.
type Options struct {
	Debounce time.Duration
	Clock    fieldsync.Clock
	Log      zerolog.Logger
	// OnError receives every failed background write exactly once.
	OnError func(error)
}

// Editor is the optimistic mutator for one learning session.
type Editor struct {
	backend  Backend
	store    *snapshot.Store
	clock    fieldsync.Clock
	debounce time.Duration
	log      zerolog.Logger
	onError  func(error)
	validate *validator.Validate
	ledger   *Ledger

	mu        sync.Mutex
	sessionID uuid.UUID
	questions map[uuid.UUID]*questionStreams
	options   map[uuid.UUID]*optionStreams
	bursts    map[fieldsync.Key]*model.Session

	flight   *flight
	qmu      sync.Mutex
	queue    []oneShot
	draining bool
}

type oneShot struct {
	op     string
	entity uuid.UUID
	before *model.Session
	call   func(ctx context.Context) error
}

// New creates an editor with an empty store. Call Load before editing.
func New(backend Backend, opts Options) *Editor {
	if opts.Clock == nil {
		opts.Clock = fieldsync.RealClock()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = fieldsync.DefaultDelay
	}
	return &Editor{
		backend:   backend,
		store:     snapshot.New(nil),
		clock:     opts.Clock,
		debounce:  opts.Debounce,
		log:       opts.Log.With().Str("component", "editor").Logger(),
		onError:   opts.OnError,
		validate:  validator.New(),
		ledger:    newLedger(),
		questions: make(map[uuid.UUID]*questionStreams),
		options:   make(map[uuid.UUID]*optionStreams),
		bursts:    make(map[fieldsync.Key]*model.Session),
		flight:    newFlight(),
	}
}

// Store exposes the snapshot store for views.
func (e *Editor) Store() *snapshot.Store { return e.store }

// Snapshot returns the current session tree.
func (e *Editor) Snapshot() *model.Session { return e.store.Snapshot() }

// InFlight lists the writes that have been issued and not yet answered.
func (e *Editor) InFlight() []Write { return e.ledger.InFlight() }

// Load fetches the session and installs it as the current snapshot.
func (e *Editor) Load(ctx context.Context, sessionID uuid.UUID) (*model.Session, error) {
	e.mu.Lock()
	e.sessionID = sessionID
	e.mu.Unlock()
	return e.Revalidate(ctx)
}

func (e *Editor) session() (uuid.UUID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sessionID == uuid.Nil {
		return uuid.Nil, ErrNotLoaded
	}
	return e.sessionID, nil
}

// ----------------------------------------------------------------
// Scalar fields
// ----------------------------------------------------------------

// SetQuestionTitle records a keystroke-level title edit.
func (e *Editor) SetQuestionTitle(questionID uuid.UUID, title string) error {
	st, err := e.questionTitleStream(questionID, title)
	if err != nil {
		return err
	}
	st.Push(title)
	return nil
}

// CommitQuestionTitle flushes a title when the input loses focus.
func (e *Editor) CommitQuestionTitle(questionID uuid.UUID, title string) error {
	st, err := e.questionTitleStream(questionID, title)
	if err != nil {
		return err
	}
	if !st.Commit(title) {
		e.dropBurst(st.Key())
	}
	return nil
}

func (e *Editor) questionTitleStream(questionID uuid.UUID, title string) (*fieldsync.Stream[string], error) {
	if err := e.validate.Var(title, titleRule); err != nil {
		return nil, invalid(string(model.QuestionFieldTitle), err)
	}
	qs, err := e.mountedQuestion(questionID)
	if err != nil {
		return nil, err
	}
	err = e.patch(qs.title.Key(), func(d *snapshot.Draft) error {
		q := d.Lookup(questionID)
		if q == nil {
			return ErrNotFound
		}
		if q.Title != title {
			d.Question(questionID).Title = title
		}
		return nil
	})
	return qs.title, err
}

// SetDefaultOption makes optionID the question's default option.
func (e *Editor) SetDefaultOption(questionID, optionID uuid.UUID) error {
	qs, err := e.mountedQuestion(questionID)
	if err != nil {
		return err
	}
	err = e.patch(qs.defaultOption.Key(), func(d *snapshot.Draft) error {
		q := d.Lookup(questionID)
		if q == nil {
			return ErrNotFound
		}
		if err := guard.CheckDefaultOption(q, optionID); err != nil {
			return invalid(string(model.QuestionFieldDefaultOption), err)
		}
		if !q.IsDefault(optionID) {
			id := optionID
			d.Question(questionID).DefaultOptionID = &id
		}
		return nil
	})
	if err != nil {
		return err
	}
	qs.defaultOption.Push(optionID)
	return nil
}

// SetOptionTitle records a keystroke-level option title edit.
func (e *Editor) SetOptionTitle(optionID uuid.UUID, title string) error {
	st, err := e.optionTitleStream(optionID, title)
	if err != nil {
		return err
	}
	st.Push(title)
	return nil
}

// CommitOptionTitle flushes an option title when the input loses focus.
func (e *Editor) CommitOptionTitle(optionID uuid.UUID, title string) error {
	st, err := e.optionTitleStream(optionID, title)
	if err != nil {
		return err
	}
	if !st.Commit(title) {
		e.dropBurst(st.Key())
	}
	return nil
}

func (e *Editor) optionTitleStream(optionID uuid.UUID, title string) (*fieldsync.Stream[string], error) {
	if err := e.validate.Var(title, titleRule); err != nil {
		return nil, invalid(string(model.OptionFieldTitle), err)
	}
	os, err := e.mountedOption(optionID)
	if err != nil {
		return nil, err
	}
	err = e.patchOption(os, os.title.Key(), func(o *model.Option) bool { return o.Title != title },
		func(o *model.Option) { o.Title = title })
	return os.title, err
}

// SetRewardPoint changes the points granted for choosing the option.
func (e *Editor) SetRewardPoint(optionID uuid.UUID, points int) error {
	if err := e.validate.Var(points, rewardRule); err != nil {
		return invalid(string(model.OptionFieldRewardPoint), err)
	}
	os, err := e.mountedOption(optionID)
	if err != nil {
		return err
	}
	err = e.patchOption(os, os.reward.Key(), func(o *model.Option) bool { return o.RewardPoint != points },
		func(o *model.Option) { o.RewardPoint = points })
	if err != nil {
		return err
	}
	os.reward.Push(points)
	return nil
}

// SetEffect toggles the option's effect flag.
func (e *Editor) SetEffect(optionID uuid.UUID, effect bool) error {
	os, err := e.mountedOption(optionID)
	if err != nil {
		return err
	}
	err = e.patchOption(os, os.effect.Key(), func(o *model.Option) bool { return o.Effect != effect },
		func(o *model.Option) { o.Effect = effect })
	if err != nil {
		return err
	}
	os.effect.Push(effect)
	return nil
}

func (e *Editor) patchOption(os *optionStreams, key fieldsync.Key, changed func(*model.Option) bool, set func(*model.Option)) error {
	return e.patch(key, func(d *snapshot.Draft) error {
		o := d.Lookup(os.questionID).Option(key.Entity)
		if o == nil {
			return ErrNotFound
		}
		if changed(o) {
			set(d.Option(os.questionID, key.Entity))
		}
		return nil
	})
}

// patch applies fn and, when it produced a new snapshot, remembers the
// snapshot it replaced as the start of the field's current burst.
func (e *Editor) patch(key fieldsync.Key, fn func(*snapshot.Draft) error) error {
	before := e.store.Snapshot()
	after, err := e.store.Apply(fn)
	if err != nil {
		return wrapStoreErr(err)
	}
	if after != before {
		e.mu.Lock()
		if _, ok := e.bursts[key]; !ok {
			e.bursts[key] = before
		}
		e.mu.Unlock()
	}
	return nil
}

func (e *Editor) takeBurst(key fieldsync.Key) *model.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	before := e.bursts[key]
	delete(e.bursts, key)
	return before
}

func (e *Editor) dropBurst(key fieldsync.Key) { e.takeBurst(key) }

// ----------------------------------------------------------------
// Structural edits
// ----------------------------------------------------------------

// DeleteQuestion removes a question and its options locally, re-packs the
// remaining question orders and asks the server to delete it.
func (e *Editor) DeleteQuestion(questionID uuid.UUID) error {
	if _, err := e.session(); err != nil {
		return err
	}
	before := e.store.Snapshot()
	_, err := e.store.Apply(func(d *snapshot.Draft) error {
		if !d.RemoveQuestion(questionID) {
			return ErrNotFound
		}
		return d.SetQuestionOrder(d.Session().QuestionIDs())
	})
	if err != nil {
		return wrapStoreErr(err)
	}

	e.unmountTree(before.Question(questionID))
	e.dispatch(oneShot{op: "delete_question", entity: questionID, before: before, call: func(ctx context.Context) error {
		return e.backend.DeleteQuestion(ctx, questionID)
	}})
	return nil
}

// DeleteOption removes an option locally and asks the server to delete it.
// The default option cannot be deleted.
func (e *Editor) DeleteOption(questionID, optionID uuid.UUID) error {
	if _, err := e.session(); err != nil {
		return err
	}
	before := e.store.Snapshot()
	_, err := e.store.Apply(func(d *snapshot.Draft) error {
		q := d.Lookup(questionID)
		if q.Option(optionID) == nil {
			return ErrNotFound
		}
		if err := guard.CheckOptionDeletion(q.DefaultOptionID, optionID); err != nil {
			return invalid("option", err)
		}
		d.RemoveOption(questionID, optionID)
		return d.SetOptionOrder(questionID, d.Lookup(questionID).OptionIDs())
	})
	if err != nil {
		return wrapStoreErr(err)
	}

	e.UnmountOption(optionID)
	e.dispatch(oneShot{op: "delete_option", entity: optionID, before: before, call: func(ctx context.Context) error {
		return e.backend.DeleteOption(ctx, optionID)
	}})
	return nil
}

// AddQuestion creates a question on the server and merges the returned
// subtree. An empty title falls back to the default question title. Nothing
// is added locally if the call fails.
func (e *Editor) AddQuestion(ctx context.Context, title string) (*model.Question, error) {
	if title == "" {
		title = model.DefaultQuestionTitle
	}
	if err := e.validate.Var(title, titleRule); err != nil {
		return nil, invalid(string(model.QuestionFieldTitle), err)
	}
	sessionID, err := e.session()
	if err != nil {
		return nil, err
	}
	q, err := e.backend.CreateQuestion(ctx, sessionID, title)
	if err != nil {
		return nil, fmt.Errorf("create question: %w", err)
	}
	return q, e.mergeQuestion(q)
}

// DuplicateQuestion copies a question with its options on the server and
// merges the copy.
func (e *Editor) DuplicateQuestion(ctx context.Context, questionID uuid.UUID) (*model.Question, error) {
	if e.store.Snapshot().Question(questionID) == nil {
		return nil, ErrNotFound
	}
	q, err := e.backend.DuplicateQuestion(ctx, questionID)
	if err != nil {
		return nil, fmt.Errorf("duplicate question: %w", err)
	}
	return q, e.mergeQuestion(q)
}

func (e *Editor) mergeQuestion(q *model.Question) error {
	_, err := e.store.Apply(func(d *snapshot.Draft) error {
		if d.Lookup(q.ID) != nil {
			return nil
		}
		d.InsertQuestion(q)
		return d.SetQuestionOrder(d.Session().QuestionIDs())
	})
	return wrapStoreErr(err)
}

// AddOption creates an option on the server and merges it into its question.
func (e *Editor) AddOption(ctx context.Context, questionID uuid.UUID, title string) (*model.Option, error) {
	if err := e.validate.Var(title, titleRule); err != nil {
		return nil, invalid(string(model.OptionFieldTitle), err)
	}
	if e.store.Snapshot().Question(questionID) == nil {
		return nil, ErrNotFound
	}
	o, err := e.backend.CreateOption(ctx, questionID, title)
	if err != nil {
		return nil, fmt.Errorf("create option: %w", err)
	}
	return o, e.mergeOption(questionID, o)
}

// DuplicateOption copies an option on the server and merges the copy.
func (e *Editor) DuplicateOption(ctx context.Context, questionID, optionID uuid.UUID) (*model.Option, error) {
	if e.store.Snapshot().Question(questionID).Option(optionID) == nil {
		return nil, ErrNotFound
	}
	o, err := e.backend.DuplicateOption(ctx, optionID)
	if err != nil {
		return nil, fmt.Errorf("duplicate option: %w", err)
	}
	return o, e.mergeOption(questionID, o)
}

func (e *Editor) mergeOption(questionID uuid.UUID, o *model.Option) error {
	_, err := e.store.Apply(func(d *snapshot.Draft) error {
		q := d.Lookup(questionID)
		if q == nil {
			// Deleted while the call was in flight.
			return nil
		}
		if q.Option(o.ID) != nil {
			return nil
		}
		d.InsertOption(questionID, o)
		return d.SetOptionOrder(questionID, d.Lookup(questionID).OptionIDs())
	})
	return wrapStoreErr(err)
}

// ----------------------------------------------------------------
// Reorder
// ----------------------------------------------------------------

// MoveQuestion moves the question at index from to index to and sends the
// complete new question order in one call.
func (e *Editor) MoveQuestion(from, to int) error {
	sessionID, err := e.session()
	if err != nil {
		return err
	}
	before := e.store.Snapshot()
	if before == nil {
		return ErrNotLoaded
	}
	plan, ok, err := reorder.NewPlan(before.QuestionIDs(), from, to)
	if err != nil {
		return invalid("index", err)
	}
	if !ok {
		return nil
	}
	if _, err := e.store.Apply(func(d *snapshot.Draft) error { return d.SetQuestionOrder(plan.IDs) }); err != nil {
		return wrapStoreErr(err)
	}
	e.dispatch(oneShot{op: "reorder_questions", entity: sessionID, before: before, call: func(ctx context.Context) error {
		return e.backend.UpdateQuestionsOrder(ctx, sessionID, plan.Items)
	}})
	return nil
}

// MoveOption moves an option within its question.
func (e *Editor) MoveOption(questionID uuid.UUID, from, to int) error {
	if _, err := e.session(); err != nil {
		return err
	}
	before := e.store.Snapshot()
	q := before.Question(questionID)
	if q == nil {
		return ErrNotFound
	}
	plan, ok, err := reorder.NewPlan(q.OptionIDs(), from, to)
	if err != nil {
		return invalid("index", err)
	}
	if !ok {
		return nil
	}
	if _, err := e.store.Apply(func(d *snapshot.Draft) error { return d.SetOptionOrder(questionID, plan.IDs) }); err != nil {
		return wrapStoreErr(err)
	}
	e.dispatch(oneShot{op: "reorder_options", entity: questionID, before: before, call: func(ctx context.Context) error {
		return e.backend.UpdateOptionsOrder(ctx, questionID, plan.Items)
	}})
	return nil
}

// ----------------------------------------------------------------
// Live counts
// ----------------------------------------------------------------

// ApplyCounts patches response counts received from the live feed.
// Unknown option IDs are ignored.
func (e *Editor) ApplyCounts(counts map[uuid.UUID]int) error {
	_, err := e.store.Apply(func(d *snapshot.Draft) error {
		for _, q := range d.Base().Questions {
			for _, o := range q.Options {
				if n, ok := counts[o.ID]; ok && n != o.ResponseCount {
					d.Option(q.ID, o.ID).ResponseCount = n
				}
			}
		}
		return nil
	})
	return wrapStoreErr(err)
}

// ----------------------------------------------------------------
// Dispatch
// ----------------------------------------------------------------

// dispatch queues a one-shot call. Queued calls run one at a time in the
// order they were issued, so a delete always reaches the server before the
// reorder that follows it.
func (e *Editor) dispatch(c oneShot) {
	e.flight.start()
	e.qmu.Lock()
	e.queue = append(e.queue, c)
	start := !e.draining
	e.draining = true
	e.qmu.Unlock()

	if start {
		go e.drain()
	}
}

func (e *Editor) drain() {
	for {
		e.qmu.Lock()
		if len(e.queue) == 0 {
			e.draining = false
			e.qmu.Unlock()
			return
		}
		c := e.queue[0]
		e.queue = e.queue[1:]
		e.qmu.Unlock()

		e.run(c)
		e.flight.done()
	}
}

func (e *Editor) run(c oneShot) {
	id := e.ledger.begin(c.op, c.entity, c.before, e.clock.Now())
	err := c.call(context.Background())
	e.ledger.end(id)
	if err != nil {
		e.log.Error().Err(err).Str("op", c.op).Str("entity", c.entity.String()).Msg("write failed")
		e.report(fmt.Errorf("%s %s: %w", c.op, c.entity, err))
	}
}

func (e *Editor) report(err error) {
	if e.onError != nil {
		e.onError(err)
	}
}

// Wait blocks until every write issued so far has returned, including writes
// of streams that have since been unmounted.
func (e *Editor) Wait() { e.flight.wait() }

// Close unmounts every entity. Debounced values that have not fired are dropped.
func (e *Editor) Close() {
	e.mu.Lock()
	qs := make([]*questionStreams, 0, len(e.questions))
	for _, s := range e.questions {
		qs = append(qs, s)
	}
	os := make([]*optionStreams, 0, len(e.options))
	for _, s := range e.options {
		os = append(os, s)
	}
	e.questions = make(map[uuid.UUID]*questionStreams)
	e.options = make(map[uuid.UUID]*optionStreams)
	e.mu.Unlock()

	for _, s := range qs {
		s.close()
	}
	for _, s := range os {
		s.close()
	}
}

func wrapStoreErr(err error) error {
	if errors.Is(err, snapshot.ErrNoSnapshot) {
		return ErrNotLoaded
	}
	return err
}
