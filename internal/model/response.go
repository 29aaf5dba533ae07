package model

import (
	"time"

	"github.com/google/uuid"
)

// Response is a student's current choice for one question.
type Response struct {
	StudentID  int       `json:"student_id"`
	QuestionID uuid.UUID `json:"question_id"`
	OptionID   uuid.UUID `json:"option_id"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SubmitResponseRequest is the payload a student sends to pick an option.
type SubmitResponseRequest struct {
	OptionID uuid.UUID `json:"option_id" binding:"required"`
}

// OptionCount is the live aggregate of one option.
type OptionCount struct {
	OptionID uuid.UUID `json:"option_id"`
	Count    int       `json:"count"`
}

// CountsEvent is published whenever the counts of a session change.
type CountsEvent struct {
	SessionID uuid.UUID     `json:"session_id"`
	Counts    []OptionCount `json:"counts"`
}
