package editor_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/classpoll/internal/editor"
	"github.com/stemsi/classpoll/internal/fieldsync/fieldsynctest"
	"github.com/stemsi/classpoll/internal/guard"
	"github.com/stemsi/classpoll/internal/model"
)

const debounce = time.Second

type backendCall struct {
	op     string
	entity uuid.UUID
	field  string
	value  any
	items  []model.OrderItem
}

// fakeBackend records calls and serves a fixed session tree.
type fakeBackend struct {
	mu      sync.Mutex
	server  *model.Session
	calls   []backendCall
	fetches int
	fail    map[string]error
	gate    chan struct{}

	onCreateQuestion func()
}

func newFakeBackend(s *model.Session) *fakeBackend {
	return &fakeBackend{server: s, fail: make(map[string]error)}
}

func (b *fakeBackend) record(c backendCall) error {
	b.mu.Lock()
	b.calls = append(b.calls, c)
	err := b.fail[c.op]
	gate := b.gate
	b.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return err
}

func (b *fakeBackend) callsFor(op string) []backendCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []backendCall
	for _, c := range b.calls {
		if c.op == op {
			out = append(out, c)
		}
	}
	return out
}

func (b *fakeBackend) total() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

func (b *fakeBackend) FetchSession(_ context.Context, id uuid.UUID) (*model.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fetches++
	if b.server.ID != id {
		return nil, errors.New("not found")
	}
	return cloneSession(b.server), nil
}

func (b *fakeBackend) UpdateQuestionField(_ context.Context, id uuid.UUID, f model.QuestionField, v any) error {
	return b.record(backendCall{op: "question_field", entity: id, field: string(f), value: v})
}

func (b *fakeBackend) UpdateOptionField(_ context.Context, id uuid.UUID, f model.OptionField, v any) error {
	return b.record(backendCall{op: "option_field", entity: id, field: string(f), value: v})
}

func (b *fakeBackend) UpdateQuestionsOrder(_ context.Context, id uuid.UUID, items []model.OrderItem) error {
	return b.record(backendCall{op: "questions_order", entity: id, items: items})
}

func (b *fakeBackend) UpdateOptionsOrder(_ context.Context, id uuid.UUID, items []model.OrderItem) error {
	return b.record(backendCall{op: "options_order", entity: id, items: items})
}

func (b *fakeBackend) CreateQuestion(_ context.Context, sessionID uuid.UUID, title string) (*model.Question, error) {
	if b.onCreateQuestion != nil {
		b.onCreateQuestion()
	}
	if err := b.record(backendCall{op: "create_question", entity: sessionID, value: title}); err != nil {
		return nil, err
	}
	q := &model.Question{ID: uuid.New(), SessionID: sessionID, Order: len(b.server.Questions) + 1, Title: title}
	o := &model.Option{ID: uuid.New(), QuestionID: q.ID, Order: 1, Title: model.DefaultOptionTitle}
	q.Options = []*model.Option{o}
	q.DefaultOptionID = &o.ID
	return q, nil
}

func (b *fakeBackend) DuplicateQuestion(_ context.Context, id uuid.UUID) (*model.Question, error) {
	if err := b.record(backendCall{op: "duplicate_question", entity: id}); err != nil {
		return nil, err
	}
	return nil, errors.New("not implemented")
}

func (b *fakeBackend) DeleteQuestion(_ context.Context, id uuid.UUID) error {
	return b.record(backendCall{op: "delete_question", entity: id})
}

func (b *fakeBackend) CreateOption(_ context.Context, questionID uuid.UUID, title string) (*model.Option, error) {
	if err := b.record(backendCall{op: "create_option", entity: questionID, value: title}); err != nil {
		return nil, err
	}
	return &model.Option{ID: uuid.New(), QuestionID: questionID, Order: 99, Title: title}, nil
}

func (b *fakeBackend) DuplicateOption(_ context.Context, id uuid.UUID) (*model.Option, error) {
	if err := b.record(backendCall{op: "duplicate_option", entity: id}); err != nil {
		return nil, err
	}
	return nil, errors.New("not implemented")
}

func (b *fakeBackend) DeleteOption(_ context.Context, id uuid.UUID) error {
	return b.record(backendCall{op: "delete_option", entity: id})
}

func cloneSession(s *model.Session) *model.Session {
	out := *s
	out.Questions = nil
	for _, q := range s.Questions {
		qc := *q
		qc.Options = nil
		for _, o := range q.Options {
			oc := *o
			qc.Options = append(qc.Options, &oc)
		}
		if q.DefaultOptionID != nil {
			id := *q.DefaultOptionID
			qc.DefaultOptionID = &id
		}
		out.Questions = append(out.Questions, &qc)
	}
	return &out
}

// serverTree builds a session with nq questions of no options each; the
// first option of every question is its default.
func serverTree(nq, no int) *model.Session {
	s := &model.Session{ID: uuid.New(), Title: "Lesson", AccessCode: "CLS001", IsActive: true}
	for i := 0; i < nq; i++ {
		q := &model.Question{ID: uuid.New(), SessionID: s.ID, Order: i + 1, Title: "Q"}
		for j := 0; j < no; j++ {
			q.Options = append(q.Options, &model.Option{ID: uuid.New(), QuestionID: q.ID, Order: j + 1, Title: "O"})
		}
		if no > 0 {
			id := q.Options[0].ID
			q.DefaultOptionID = &id
		}
		s.Questions = append(s.Questions, q)
	}
	return s
}

type harness struct {
	ed      *editor.Editor
	backend *fakeBackend
	clock   *fieldsynctest.Clock
	errs    *errorSink
}

type errorSink struct {
	mu   sync.Mutex
	errs []error
}

func (s *errorSink) add(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

func (s *errorSink) all() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errs...)
}

func setup(t *testing.T, nq, no int) *harness {
	t.Helper()
	b := newFakeBackend(serverTree(nq, no))
	clock := fieldsynctest.NewClock()
	sink := &errorSink{}
	ed := editor.New(b, editor.Options{Debounce: debounce, Clock: clock, OnError: sink.add})
	if _, err := ed.Load(context.Background(), b.server.ID); err != nil {
		t.Fatal(err)
	}
	if err := ed.MountAll(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		ed.Close()
		ed.Wait()
	})
	return &harness{ed: ed, backend: b, clock: clock, errs: sink}
}

func orders(qs []*model.Question) []int {
	out := make([]int, len(qs))
	for i, q := range qs {
		out[i] = q.Order
	}
	return out
}

func TestTitleTypingCoalescesToOneCall(t *testing.T) {
	h := setup(t, 1, 1)
	q := h.ed.Snapshot().Questions[0]

	for _, v := range []string{"A", "AB", "ABC"} {
		if err := h.ed.SetQuestionTitle(q.ID, v); err != nil {
			t.Fatal(err)
		}
		if got := h.ed.Snapshot().Questions[0].Title; got != v {
			t.Fatalf("snapshot title = %q, want %q immediately", got, v)
		}
		h.clock.Advance(150 * time.Millisecond)
	}
	if n := h.backend.total(); n != 0 {
		t.Fatalf("%d calls before the debounce window closed", n)
	}

	h.clock.Advance(debounce)
	h.ed.Wait()

	calls := h.backend.callsFor("question_field")
	if len(calls) != 1 || calls[0].value != "ABC" || calls[0].field != "title" {
		t.Fatalf("calls = %+v, want one title call with ABC", calls)
	}
}

func TestCommitTitleSendsOnlyChanges(t *testing.T) {
	h := setup(t, 1, 1)
	q := h.ed.Snapshot().Questions[0]

	if err := h.ed.CommitQuestionTitle(q.ID, "Q"); err != nil {
		t.Fatal(err)
	}
	if err := h.ed.CommitQuestionTitle(q.ID, "Photosynthesis"); err != nil {
		t.Fatal(err)
	}
	h.ed.Wait()

	calls := h.backend.callsFor("question_field")
	if len(calls) != 1 || calls[0].value != "Photosynthesis" {
		t.Fatalf("calls = %+v, want only the changed title", calls)
	}
}

func TestValidationRejectsBeforeTouchingAnything(t *testing.T) {
	h := setup(t, 1, 2)
	before := h.ed.Snapshot()
	q := before.Questions[0]
	o := q.Options[1]

	tests := []struct {
		name string
		edit func() error
	}{
		{"empty title", func() error { return h.ed.SetQuestionTitle(q.ID, "") }},
		{"long title", func() error { return h.ed.CommitQuestionTitle(q.ID, strings.Repeat("あ", 256)) }},
		{"empty option title", func() error { return h.ed.SetOptionTitle(o.ID, "") }},
		{"negative reward", func() error { return h.ed.SetRewardPoint(o.ID, -1) }},
		{"reward too large", func() error { return h.ed.SetRewardPoint(o.ID, model.MaxRewardPoint+1) }},
		{"move out of range", func() error { return h.ed.MoveQuestion(0, 3) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.edit()
			var ve *editor.ValidationError
			if !errors.As(err, &ve) || !errors.Is(err, editor.ErrValidation) {
				t.Fatalf("err = %v, want validation error", err)
			}
			if h.ed.Snapshot() != before {
				t.Fatal("snapshot changed")
			}
		})
	}

	h.clock.Advance(2 * debounce)
	h.ed.Wait()
	if n := h.backend.total(); n != 0 {
		t.Fatalf("%d network calls after rejected edits", n)
	}
}

func TestTitleAtLimitIsAccepted(t *testing.T) {
	h := setup(t, 1, 0)
	q := h.ed.Snapshot().Questions[0]
	if err := h.ed.CommitQuestionTitle(q.ID, strings.Repeat("あ", 255)); err != nil {
		t.Fatalf("255 runes rejected: %v", err)
	}
}

func TestSetDefaultOptionIsExclusive(t *testing.T) {
	h := setup(t, 2, 3)
	s := h.ed.Snapshot()
	q, other := s.Questions[0], s.Questions[1]

	err := h.ed.SetDefaultOption(q.ID, other.Options[0].ID)
	if !errors.Is(err, guard.ErrForeignDefault) || !errors.Is(err, editor.ErrValidation) {
		t.Fatalf("foreign default: err = %v", err)
	}

	target := q.Options[2].ID
	if err := h.ed.SetDefaultOption(q.ID, target); err != nil {
		t.Fatal(err)
	}
	got := h.ed.Snapshot().Questions[0]
	if !got.IsDefault(target) || got.IsDefault(q.Options[0].ID) {
		t.Fatal("question must have exactly the new default")
	}

	h.clock.Advance(debounce)
	h.ed.Wait()
	calls := h.backend.callsFor("question_field")
	if len(calls) != 1 || calls[0].field != "default_option_id" || calls[0].value != target {
		t.Fatalf("calls = %+v", calls)
	}
}

func TestEditOnUnmountedEntity(t *testing.T) {
	h := setup(t, 1, 1)
	q := h.ed.Snapshot().Questions[0]
	h.ed.UnmountQuestion(q.ID)

	if err := h.ed.SetQuestionTitle(q.ID, "x"); !errors.Is(err, editor.ErrNotMounted) {
		t.Fatalf("err = %v, want ErrNotMounted", err)
	}
}

func TestUnmountDropsPendingEdit(t *testing.T) {
	h := setup(t, 1, 1)
	o := h.ed.Snapshot().Questions[0].Options[0]

	if err := h.ed.SetRewardPoint(o.ID, 40); err != nil {
		t.Fatal(err)
	}
	h.ed.UnmountOption(o.ID)
	h.clock.Advance(2 * debounce)
	h.ed.Wait()

	if n := h.backend.total(); n != 0 {
		t.Fatalf("%d calls after unmount", n)
	}
	if got := h.ed.Snapshot().Questions[0].Options[0].RewardPoint; got != 40 {
		t.Fatalf("optimistic reward = %d, want 40", got)
	}
}

func TestMoveQuestionSendsCompleteOrder(t *testing.T) {
	h := setup(t, 3, 0)
	s := h.ed.Snapshot()
	q1, q2, q3 := s.Questions[0].ID, s.Questions[1].ID, s.Questions[2].ID

	if err := h.ed.MoveQuestion(2, 0); err != nil {
		t.Fatal(err)
	}
	got := h.ed.Snapshot().Questions
	if got[0].ID != q3 || got[1].ID != q1 || got[2].ID != q2 {
		t.Fatal("unexpected question sequence")
	}
	if o := orders(got); o[0] != 1 || o[1] != 2 || o[2] != 3 {
		t.Fatalf("orders = %v, want dense", o)
	}

	h.ed.Wait()
	calls := h.backend.callsFor("questions_order")
	if len(calls) != 1 {
		t.Fatalf("got %d order calls, want 1", len(calls))
	}
	want := []model.OrderItem{{ID: q3, Order: 1}, {ID: q1, Order: 2}, {ID: q2, Order: 3}}
	for i, it := range calls[0].items {
		if it != want[i] {
			t.Errorf("item %d = %+v, want %+v", i, it, want[i])
		}
	}
}

func TestMoveOntoItselfIsNoop(t *testing.T) {
	h := setup(t, 3, 2)
	before := h.ed.Snapshot()

	if err := h.ed.MoveQuestion(1, 1); err != nil {
		t.Fatal(err)
	}
	if err := h.ed.MoveOption(before.Questions[0].ID, 0, 0); err != nil {
		t.Fatal(err)
	}
	h.ed.Wait()
	if h.ed.Snapshot() != before {
		t.Fatal("snapshot must not change")
	}
	if n := h.backend.total(); n != 0 {
		t.Fatalf("%d calls, want 0", n)
	}
}

func TestMoveOption(t *testing.T) {
	h := setup(t, 1, 3)
	q := h.ed.Snapshot().Questions[0]
	o1, o3 := q.Options[0].ID, q.Options[2].ID

	if err := h.ed.MoveOption(q.ID, 0, 2); err != nil {
		t.Fatal(err)
	}
	opts := h.ed.Snapshot().Questions[0].Options
	if opts[2].ID != o1 || opts[1].ID != o3 || opts[2].Order != 3 {
		t.Fatal("unexpected option sequence")
	}
	h.ed.Wait()
	if calls := h.backend.callsFor("options_order"); len(calls) != 1 || len(calls[0].items) != 3 {
		t.Fatalf("calls = %+v, want one batch with 3 items", calls)
	}
}

func TestDeleteDefaultOptionRejected(t *testing.T) {
	h := setup(t, 1, 2)
	before := h.ed.Snapshot()
	q := before.Questions[0]

	err := h.ed.DeleteOption(q.ID, *q.DefaultOptionID)
	if !errors.Is(err, guard.ErrDeleteDefaultOption) {
		t.Fatalf("err = %v, want ErrDeleteDefaultOption", err)
	}
	if h.ed.Snapshot() != before || h.backend.total() != 0 {
		t.Fatal("rejected delete must not touch snapshot or network")
	}
}

func TestDeleteOptionRepacksSiblings(t *testing.T) {
	h := setup(t, 1, 3)
	q := h.ed.Snapshot().Questions[0]
	middle := q.Options[1].ID

	if err := h.ed.DeleteOption(q.ID, middle); err != nil {
		t.Fatal(err)
	}
	opts := h.ed.Snapshot().Questions[0].Options
	if len(opts) != 2 || opts[0].Order != 1 || opts[1].Order != 2 {
		t.Fatalf("options after delete: %d, orders must be dense", len(opts))
	}
	if err := h.ed.SetEffect(middle, true); !errors.Is(err, editor.ErrNotMounted) {
		t.Fatalf("deleted option must be unmounted, err = %v", err)
	}

	h.ed.Wait()
	if calls := h.backend.callsFor("delete_option"); len(calls) != 1 || calls[0].entity != middle {
		t.Fatalf("calls = %+v", calls)
	}
}

func TestDeleteQuestionRepacksAndUnmounts(t *testing.T) {
	h := setup(t, 3, 1)
	s := h.ed.Snapshot()
	first := s.Questions[0]

	if err := h.ed.DeleteQuestion(first.ID); err != nil {
		t.Fatal(err)
	}
	if o := orders(h.ed.Snapshot().Questions); len(o) != 2 || o[0] != 1 || o[1] != 2 {
		t.Fatalf("orders = %v", o)
	}
	if err := h.ed.SetOptionTitle(first.Options[0].ID, "x"); !errors.Is(err, editor.ErrNotMounted) {
		t.Fatalf("err = %v, want ErrNotMounted", err)
	}
	if err := h.ed.DeleteQuestion(first.ID); !errors.Is(err, editor.ErrNotFound) {
		t.Fatalf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestAddQuestionMergesAfterRoundTrip(t *testing.T) {
	h := setup(t, 2, 1)
	before := h.ed.Snapshot()
	h.backend.onCreateQuestion = func() {
		if h.ed.Snapshot() != before {
			t.Error("snapshot changed before the server answered")
		}
	}

	q, err := h.ed.AddQuestion(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if q.Title != model.DefaultQuestionTitle {
		t.Errorf("title = %q, want default", q.Title)
	}

	s := h.ed.Snapshot()
	if len(s.Questions) != 3 || s.Questions[2].ID != q.ID || s.Questions[2].Order != 3 {
		t.Fatal("new question must be appended with order 3")
	}
	added := s.Questions[2]
	if len(added.Options) != 1 || !added.IsDefault(added.Options[0].ID) {
		t.Fatal("new question must carry its default option")
	}
	if added.Options[0].Title != model.DefaultOptionTitle {
		t.Errorf("option title = %q", added.Options[0].Title)
	}
}

func TestFailedAddLeavesNoEntity(t *testing.T) {
	h := setup(t, 1, 1)
	before := h.ed.Snapshot()
	h.backend.fail["create_option"] = errors.New("500")

	if _, err := h.ed.AddOption(context.Background(), before.Questions[0].ID, "B"); err == nil {
		t.Fatal("expected error")
	}
	if h.ed.Snapshot() != before {
		t.Fatal("failed add must not change the snapshot")
	}
	if len(h.errs.all()) != 0 {
		t.Fatal("add failures go to the caller, not OnError")
	}
}

func TestAddOptionRepacks(t *testing.T) {
	h := setup(t, 1, 2)
	q := h.ed.Snapshot().Questions[0]

	o, err := h.ed.AddOption(context.Background(), q.ID, "C")
	if err != nil {
		t.Fatal(err)
	}
	opts := h.ed.Snapshot().Questions[0].Options
	if len(opts) != 3 || opts[2].ID != o.ID || opts[2].Order != 3 {
		t.Fatal("added option must land last with a dense order")
	}
}

func TestFailedSyncKeepsOptimisticStateAndReportsOnce(t *testing.T) {
	h := setup(t, 1, 1)
	o := h.ed.Snapshot().Questions[0].Options[0]
	h.backend.fail["option_field"] = errors.New("503")

	if err := h.ed.SetRewardPoint(o.ID, 7); err != nil {
		t.Fatal(err)
	}
	h.clock.Advance(debounce)
	h.ed.Wait()

	errs := h.errs.all()
	if len(errs) != 1 {
		t.Fatalf("reported %d errors, want 1", len(errs))
	}
	var se *editor.SyncError
	if !errors.As(errs[0], &se) || se.Key.Entity != o.ID {
		t.Fatalf("err = %v, want SyncError for the option", errs[0])
	}
	if got := h.ed.Snapshot().Questions[0].Options[0].RewardPoint; got != 7 {
		t.Fatalf("reward = %d, optimistic value must be kept", got)
	}
	if h.backend.fetches != 1 {
		t.Fatal("failure must not trigger a refetch")
	}
}

func TestInFlightLedgerKeepsPrePatchSnapshot(t *testing.T) {
	h := setup(t, 2, 1)
	before := h.ed.Snapshot()
	gate := make(chan struct{})
	h.backend.mu.Lock()
	h.backend.gate = gate
	h.backend.mu.Unlock()

	if err := h.ed.DeleteQuestion(before.Questions[1].ID); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	var inflight []editor.Write
	for time.Now().Before(deadline) {
		if inflight = h.ed.InFlight(); len(inflight) == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if len(inflight) != 1 || inflight[0].Op != "delete_question" || inflight[0].Before != before {
		t.Fatalf("in flight = %+v", inflight)
	}

	close(gate)
	h.ed.Wait()
	if n := len(h.ed.InFlight()); n != 0 {
		t.Fatalf("%d writes still in flight", n)
	}
}

func TestRefreshModes(t *testing.T) {
	h := setup(t, 2, 1)
	q := h.ed.Snapshot().Questions[0]
	if err := h.ed.CommitQuestionTitle(q.ID, "local"); err != nil {
		t.Fatal(err)
	}
	h.ed.Wait()

	s, err := h.ed.Refresh(context.Background(), editor.ModeOptimisticTrust)
	if err != nil {
		t.Fatal(err)
	}
	if s.Questions[0].Title != "local" || h.backend.fetches != 1 {
		t.Fatal("trust mode must keep the local snapshot without fetching")
	}

	s, err = h.ed.Refresh(context.Background(), editor.ModeRevalidate)
	if err != nil {
		t.Fatal(err)
	}
	if s.Questions[0].Title != "Q" || h.backend.fetches != 2 {
		t.Fatal("revalidate must replace the snapshot with the server tree")
	}
}

func TestApplyCounts(t *testing.T) {
	h := setup(t, 2, 2)
	before := h.ed.Snapshot()
	o := before.Questions[1].Options[1]

	if err := h.ed.ApplyCounts(map[uuid.UUID]int{o.ID: 12, uuid.New(): 3}); err != nil {
		t.Fatal(err)
	}
	after := h.ed.Snapshot()
	if after.Questions[1].Options[1].ResponseCount != 12 {
		t.Fatal("count not applied")
	}
	if after.Questions[0] != before.Questions[0] {
		t.Fatal("untouched question must be shared")
	}
	if h.backend.total() != 0 {
		t.Fatal("counts must not cause writes")
	}
}

func TestEditsBeforeLoad(t *testing.T) {
	ed := editor.New(newFakeBackend(serverTree(0, 0)), editor.Options{})
	if err := ed.MoveQuestion(0, 1); !errors.Is(err, editor.ErrNotLoaded) {
		t.Fatalf("err = %v, want ErrNotLoaded", err)
	}
	if _, err := ed.AddQuestion(context.Background(), "x"); !errors.Is(err, editor.ErrNotLoaded) {
		t.Fatalf("err = %v, want ErrNotLoaded", err)
	}
}

func TestRetryAfterFailedWriteAndRevalidate(t *testing.T) {
	h := setup(t, 1, 1)
	q := h.ed.Snapshot().Questions[0]
	h.backend.mu.Lock()
	h.backend.fail["question_field"] = errors.New("503")
	h.backend.mu.Unlock()

	if err := h.ed.CommitQuestionTitle(q.ID, "New"); err != nil {
		t.Fatal(err)
	}
	h.ed.Wait()
	if n, errs := h.backend.total(), len(h.errs.all()); n != 1 || errs != 1 {
		t.Fatalf("calls = %d, errors = %d after failed commit", n, errs)
	}

	h.backend.mu.Lock()
	delete(h.backend.fail, "question_field")
	h.backend.mu.Unlock()

	s, err := h.ed.Revalidate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if s.Questions[0].Title != "Q" {
		t.Fatalf("revalidated title = %q, want server value", s.Questions[0].Title)
	}

	if err := h.ed.CommitQuestionTitle(q.ID, "New"); err != nil {
		t.Fatal(err)
	}
	h.ed.Wait()
	calls := h.backend.callsFor("question_field")
	if len(calls) != 2 || calls[1].value != "New" {
		t.Fatalf("calls = %+v, the retried title must reach the server", calls)
	}
}

func TestRetryWithoutRevalidate(t *testing.T) {
	h := setup(t, 1, 1)
	o := h.ed.Snapshot().Questions[0].Options[0]
	h.backend.mu.Lock()
	h.backend.fail["option_field"] = errors.New("503")
	h.backend.mu.Unlock()

	if err := h.ed.SetRewardPoint(o.ID, 5); err != nil {
		t.Fatal(err)
	}
	h.clock.Advance(debounce)
	h.ed.Wait()

	h.backend.mu.Lock()
	delete(h.backend.fail, "option_field")
	h.backend.mu.Unlock()

	if err := h.ed.SetRewardPoint(o.ID, 5); err != nil {
		t.Fatal(err)
	}
	h.clock.Advance(debounce)
	h.ed.Wait()
	if calls := h.backend.callsFor("option_field"); len(calls) != 2 {
		t.Fatalf("calls = %+v, want the failed value sent again", calls)
	}
}

func TestWaitCoversUnmountedStream(t *testing.T) {
	h := setup(t, 1, 1)
	q := h.ed.Snapshot().Questions[0]
	gate := make(chan struct{})
	h.backend.mu.Lock()
	h.backend.gate = gate
	h.backend.mu.Unlock()

	if err := h.ed.CommitQuestionTitle(q.ID, "Gated"); err != nil {
		t.Fatal(err)
	}
	h.ed.UnmountQuestion(q.ID)

	done := make(chan struct{})
	go func() {
		h.ed.Wait()
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("Wait returned while the unmounted stream's call was in flight")
	case <-time.After(20 * time.Millisecond):
	}

	close(gate)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after the call finished")
	}

	if err := h.ed.MountQuestion(q.ID); err != nil {
		t.Fatal(err)
	}
	if err := h.ed.CommitQuestionTitle(q.ID, "Remounted"); err != nil {
		t.Fatal(err)
	}
	h.ed.Wait()
	if calls := h.backend.callsFor("question_field"); len(calls) != 2 || calls[1].value != "Remounted" {
		t.Fatalf("calls = %+v", calls)
	}
}
