package editor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/classpoll/internal/fieldsync/fieldsynctest"
	"github.com/stemsi/classpoll/internal/model"
)

// titleBackend serves one session and accepts question title writes; the
// embedded interface panics on anything else.
type titleBackend struct {
	Backend
	session *model.Session

	mu     sync.Mutex
	titles []string
}

func (b *titleBackend) FetchSession(context.Context, uuid.UUID) (*model.Session, error) {
	out := *b.session
	return &out, nil
}

func (b *titleBackend) UpdateQuestionField(_ context.Context, _ uuid.UUID, _ model.QuestionField, v any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.titles = append(b.titles, v.(string))
	return nil
}

func TestMountCyclesReleaseStreams(t *testing.T) {
	q := &model.Question{ID: uuid.New(), Order: 1, Title: "Q"}
	s := &model.Session{ID: uuid.New(), Questions: []*model.Question{q}}
	q.SessionID = s.ID
	b := &titleBackend{session: s}

	ed := New(b, Options{Debounce: time.Second, Clock: fieldsynctest.NewClock()})
	if _, err := ed.Load(context.Background(), s.ID); err != nil {
		t.Fatal(err)
	}

	const cycles = 50
	for i := range cycles {
		if err := ed.MountQuestion(q.ID); err != nil {
			t.Fatal(err)
		}
		title := "T" + string(rune('a'+i%26))
		if i%2 == 1 {
			title += "!"
		}
		if err := ed.CommitQuestionTitle(q.ID, title); err != nil {
			t.Fatal(err)
		}
		ed.UnmountQuestion(q.ID)
	}
	ed.Wait()

	ed.mu.Lock()
	mounted := len(ed.questions) + len(ed.options)
	ed.mu.Unlock()
	if mounted != 0 {
		t.Fatalf("%d entities still mounted", mounted)
	}
	ed.flight.mu.Lock()
	n := ed.flight.n
	ed.flight.mu.Unlock()
	if n != 0 {
		t.Fatalf("flight count = %d after Wait", n)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.titles) != cycles {
		t.Fatalf("sent %d titles, want one per cycle", len(b.titles))
	}
}
