package snapshot

import (
	"errors"

	"github.com/google/uuid"
	"github.com/stemsi/classpoll/internal/model"
)

// ErrSiblingMismatch is returned when a new order does not list exactly the current siblings.
var ErrSiblingMismatch = errors.New("order does not match siblings")

// Draft is a copy-on-write view of a snapshot. Accessors clone an entity the
// first time it is requested, together with the slice that holds it, and leave
// every other branch shared with the base snapshot.
//
// Pointers returned by Session, Question and Option may be mutated freely,
// except for their Questions/Options slices, which change only through the
// Draft methods.
type Draft struct {
	base *model.Session
	root *model.Session

	questionsOwned bool
	questions      map[uuid.UUID]*model.Question
	optionsOwned   map[uuid.UUID]bool
	options        map[uuid.UUID]*model.Option
}

func newDraft(base *model.Session) *Draft {
	return &Draft{
		base:         base,
		questions:    make(map[uuid.UUID]*model.Question),
		optionsOwned: make(map[uuid.UUID]bool),
		options:      make(map[uuid.UUID]*model.Option),
	}
}

// Base returns the snapshot the draft started from.
func (d *Draft) Base() *model.Session { return d.base }

// Session returns the mutable root.
func (d *Draft) Session() *model.Session {
	if d.root == nil {
		root := *d.base
		d.root = &root
	}
	return d.root
}

// view returns the root as currently drafted, without cloning it.
func (d *Draft) view() *model.Session {
	if d.root != nil {
		return d.root
	}
	return d.base
}

// Lookup returns the question as currently drafted without cloning it.
// The result must not be modified.
func (d *Draft) Lookup(id uuid.UUID) *model.Question {
	return d.view().Question(id)
}

func (d *Draft) ownQuestions() []*model.Question {
	root := d.Session()
	if !d.questionsOwned {
		root.Questions = append([]*model.Question(nil), root.Questions...)
		d.questionsOwned = true
	}
	return root.Questions
}

// Question returns a mutable clone of the question, or nil if it does not exist.
func (d *Draft) Question(id uuid.UUID) *model.Question {
	if q, ok := d.questions[id]; ok {
		return q
	}
	qs := d.view().Questions
	for i, q := range qs {
		if q.ID != id {
			continue
		}
		clone := *q
		d.ownQuestions()[i] = &clone
		d.questions[id] = &clone
		return &clone
	}
	return nil
}

func (d *Draft) ownOptions(q *model.Question) []*model.Option {
	if !d.optionsOwned[q.ID] {
		q.Options = append([]*model.Option(nil), q.Options...)
		d.optionsOwned[q.ID] = true
	}
	return q.Options
}

// Option returns a mutable clone of the option, or nil if either the question
// or the option does not exist. The parent question is cloned as well.
func (d *Draft) Option(questionID, optionID uuid.UUID) *model.Option {
	q := d.Question(questionID)
	if q == nil {
		return nil
	}
	if o, ok := d.options[optionID]; ok && o.QuestionID == questionID {
		return o
	}
	for i, o := range q.Options {
		if o.ID != optionID {
			continue
		}
		clone := *o
		d.ownOptions(q)[i] = &clone
		d.options[optionID] = &clone
		return &clone
	}
	return nil
}

// SetQuestionOrder reorders the questions to ids and rewrites Order = position+1.
// Only questions whose Order changes are cloned.
func (d *Draft) SetQuestionOrder(ids []uuid.UUID) error {
	current := questionIDs(d.view().Questions)
	if !sameSet(current, ids) {
		return ErrSiblingMismatch
	}
	if sameSequence(current, ids) && dense(d.view().Questions) {
		return nil
	}

	next := make([]*model.Question, len(ids))
	for i, id := range ids {
		q := d.view().Question(id)
		if q.Order != i+1 {
			q = d.Question(id)
			q.Order = i + 1
		}
		next[i] = q
	}
	d.Session().Questions = next
	d.questionsOwned = true
	return nil
}

// SetOptionOrder reorders the options of a question to ids and rewrites
// Order = position+1.
func (d *Draft) SetOptionOrder(questionID uuid.UUID, ids []uuid.UUID) error {
	q := d.Lookup(questionID)
	if q == nil || !sameSet(q.OptionIDs(), ids) {
		return ErrSiblingMismatch
	}
	if sameSequence(q.OptionIDs(), ids) && denseOptions(q.Options) {
		return nil
	}

	mq := d.Question(questionID)
	next := make([]*model.Option, len(ids))
	for i, id := range ids {
		o := mq.Option(id)
		if o.Order != i+1 {
			o = d.Option(questionID, id)
			o.Order = i + 1
		}
		next[i] = o
	}
	mq.Options = next
	d.optionsOwned[questionID] = true
	return nil
}

// InsertQuestion adds a new question, keeping the slice sorted by Order.
// The draft takes ownership of q and its options.
func (d *Draft) InsertQuestion(q *model.Question) {
	qs := d.ownQuestions()
	at := len(qs)
	for i, existing := range qs {
		if existing.Order > q.Order {
			at = i
			break
		}
	}
	qs = append(qs, nil)
	copy(qs[at+1:], qs[at:])
	qs[at] = q
	d.Session().Questions = qs

	d.questions[q.ID] = q
	d.optionsOwned[q.ID] = true
	for _, o := range q.Options {
		d.options[o.ID] = o
	}
}

// RemoveQuestion drops a question and reports whether it existed.
func (d *Draft) RemoveQuestion(id uuid.UUID) bool {
	if d.Lookup(id) == nil {
		return false
	}
	qs := d.ownQuestions()
	for i, q := range qs {
		if q.ID == id {
			d.Session().Questions = append(qs[:i], qs[i+1:]...)
			break
		}
	}
	delete(d.questions, id)
	return true
}

// InsertOption adds a new option to a question, keeping options sorted by Order.
// It reports false if the question does not exist.
func (d *Draft) InsertOption(questionID uuid.UUID, o *model.Option) bool {
	q := d.Question(questionID)
	if q == nil {
		return false
	}
	opts := d.ownOptions(q)
	at := len(opts)
	for i, existing := range opts {
		if existing.Order > o.Order {
			at = i
			break
		}
	}
	opts = append(opts, nil)
	copy(opts[at+1:], opts[at:])
	opts[at] = o
	q.Options = opts
	d.options[o.ID] = o
	return true
}

// RemoveOption drops an option and reports whether it existed.
func (d *Draft) RemoveOption(questionID, optionID uuid.UUID) bool {
	if d.Lookup(questionID).Option(optionID) == nil {
		return false
	}
	q := d.Question(questionID)
	opts := d.ownOptions(q)
	for i, o := range opts {
		if o.ID == optionID {
			q.Options = append(opts[:i], opts[i+1:]...)
			break
		}
	}
	delete(d.options, optionID)
	return true
}

func (d *Draft) dirty() bool { return d.root != nil }

func (d *Draft) commit(rev uint64) *model.Session {
	d.root.Revision = rev
	for _, q := range d.questions {
		q.Revision = rev
	}
	for _, o := range d.options {
		o.Revision = rev
	}
	return d.root
}

func questionIDs(qs []*model.Question) []uuid.UUID {
	ids := make([]uuid.UUID, len(qs))
	for i, q := range qs {
		ids[i] = q.ID
	}
	return ids
}

func sameSet(a, b []uuid.UUID) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[uuid.UUID]int, len(a))
	for _, id := range a {
		seen[id]++
	}
	for _, id := range b {
		if seen[id] == 0 {
			return false
		}
		seen[id]--
	}
	return true
}

func sameSequence(a, b []uuid.UUID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func dense(qs []*model.Question) bool {
	for i, q := range qs {
		if q.Order != i+1 {
			return false
		}
	}
	return true
}

func denseOptions(opts []*model.Option) bool {
	for i, o := range opts {
		if o.Order != i+1 {
			return false
		}
	}
	return true
}
