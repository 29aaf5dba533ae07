package service

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stemsi/classpoll/internal/model"
)

func TestMergeLatest(t *testing.T) {
	const student = 7
	q1, q2, gone := uuid.New(), uuid.New(), uuid.New()
	q1Default, q1Other, q2Default := uuid.New(), uuid.New(), uuid.New()
	deletedOption := uuid.New()
	parents := map[uuid.UUID]uuid.UUID{q1Default: q1, q1Other: q1, q2Default: q2}

	seeded := []model.Response{
		{StudentID: student, QuestionID: q1, OptionID: q1Default},
		{StudentID: student, QuestionID: q2, OptionID: q2Default},
	}
	field := func(studentID int, q uuid.UUID) string { return fmt.Sprintf("%d:%s", studentID, q) }

	tests := []struct {
		name   string
		queued map[string]string
		want   map[uuid.UUID]uuid.UUID
	}{
		{
			name: "seeded defaults without queued choices",
			want: map[uuid.UUID]uuid.UUID{q1: q1Default, q2: q2Default},
		},
		{
			name:   "queued choice wins over persisted one",
			queued: map[string]string{field(student, q1): q1Other.String()},
			want:   map[uuid.UUID]uuid.UUID{q1: q1Other, q2: q2Default},
		},
		{
			name:   "queued choice on a deleted option falls back to the reassigned row",
			queued: map[string]string{field(student, q1): deletedOption.String()},
			want:   map[uuid.UUID]uuid.UUID{q1: q1Default, q2: q2Default},
		},
		{
			name:   "queued choice for a deleted question is dropped",
			queued: map[string]string{field(student, gone): q1Other.String()},
			want:   map[uuid.UUID]uuid.UUID{q1: q1Default, q2: q2Default},
		},
		{
			name:   "option of another question is ignored",
			queued: map[string]string{field(student, q2): q1Other.String()},
			want:   map[uuid.UUID]uuid.UUID{q1: q1Default, q2: q2Default},
		},
		{
			name: "other students and malformed fields are ignored",
			queued: map[string]string{
				field(student+1, q1):     q1Other.String(),
				field(student, q1) + "x": q1Other.String(),
				fmt.Sprintf("%d:", 70):   q1Other.String(),
				field(student, q2):       "not-a-uuid",
			},
			want: map[uuid.UUID]uuid.UUID{q1: q1Default, q2: q2Default},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mergeLatest(student, seeded, tt.queued, parents)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for q, o := range tt.want {
				if got[q] != o {
					t.Fatalf("question %s: got %s, want %s", q, got[q], o)
				}
			}
		})
	}
}
