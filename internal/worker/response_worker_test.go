package worker

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/classpoll/internal/service"
)

func TestCoalesceKeepsNewestPerStudentQuestion(t *testing.T) {
	sess := uuid.New()
	q1, q2 := uuid.New(), uuid.New()
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	t0 := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)

	batch := []service.ResponsePayload{
		{StudentID: 1, SessionID: sess, QuestionID: q1, OptionID: a, At: t0},
		{StudentID: 2, SessionID: sess, QuestionID: q1, OptionID: a, At: t0},
		{StudentID: 1, SessionID: sess, QuestionID: q1, OptionID: b, At: t0.Add(time.Second)},
		{StudentID: 1, SessionID: sess, QuestionID: q2, OptionID: c, At: t0},
		// Arrived late but older: must not win.
		{StudentID: 1, SessionID: sess, QuestionID: q1, OptionID: c, At: t0.Add(-time.Second)},
	}

	got := coalesce(batch)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].StudentID != 1 || got[0].QuestionID != q1 || got[0].OptionID != b {
		t.Errorf("got[0] = %+v, want student 1 on q1 at b", got[0])
	}
	if got[1].StudentID != 2 || got[1].OptionID != a {
		t.Errorf("got[1] = %+v", got[1])
	}
	if got[2].QuestionID != q2 || got[2].OptionID != c {
		t.Errorf("got[2] = %+v", got[2])
	}
}

func TestTouchedIsDistinct(t *testing.T) {
	s1, s2 := uuid.New(), uuid.New()
	q1, q2 := uuid.New(), uuid.New()
	batch := []service.ResponsePayload{
		{SessionID: s1, QuestionID: q1},
		{SessionID: s1, QuestionID: q1},
		{SessionID: s2, QuestionID: q2},
	}

	questions, sessions := touched(batch)
	if len(questions) != 2 || questions[0] != q1 || questions[1] != q2 {
		t.Errorf("questions = %v", questions)
	}
	if len(sessions) != 2 || sessions[0] != s1 || sessions[1] != s2 {
		t.Errorf("sessions = %v", sessions)
	}
}

func TestToResponsesCarriesTimestamp(t *testing.T) {
	at := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	p := service.ResponsePayload{StudentID: 7, QuestionID: uuid.New(), OptionID: uuid.New(), At: at}

	rows := toResponses([]service.ResponsePayload{p})
	if len(rows) != 1 {
		t.Fatalf("len = %d", len(rows))
	}
	r := rows[0]
	if r.StudentID != 7 || r.QuestionID != p.QuestionID || r.OptionID != p.OptionID || !r.UpdatedAt.Equal(at) {
		t.Fatalf("row = %+v", r)
	}
}
