package model

import (
	"time"

	"github.com/google/uuid"
)

// Session is a learning session: an ordered list of questions answered by enrolled students.
// A *Session handed out by the snapshot store is immutable; see package snapshot.
type Session struct {
	ID         uuid.UUID   `json:"id"`
	TeacherID  int         `json:"teacher_id"`
	Title      string      `json:"title"`
	AccessCode string      `json:"access_code"`
	IsActive   bool        `json:"is_active"`
	Questions  []*Question `json:"questions"`
	Revision   uint64      `json:"-"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// Question returns the child question with the given ID, or nil.
func (s *Session) Question(id uuid.UUID) *Question {
	if s == nil {
		return nil
	}
	for _, q := range s.Questions {
		if q.ID == id {
			return q
		}
	}
	return nil
}

// QuestionIDs returns the child question IDs in slice order.
func (s *Session) QuestionIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(s.Questions))
	for i, q := range s.Questions {
		ids[i] = q.ID
	}
	return ids
}

// CreateSessionRequest is the payload for creating a learning session.
type CreateSessionRequest struct {
	Title      string `json:"title" binding:"required,min=1,max=255"`
	AccessCode string `json:"access_code" binding:"required,accesscode"`
}

// UpdateSessionRequest is the payload for the plain attribute edits of a session.
// The access code is immutable and deliberately absent.
type UpdateSessionRequest struct {
	Title    *string `json:"title" binding:"omitempty,min=1,max=255"`
	IsActive *bool   `json:"is_active"`
}

// JoinSessionRequest is sent by a student to enroll with an access code.
type JoinSessionRequest struct {
	AccessCode string `json:"access_code" binding:"required,accesscode"`
}
