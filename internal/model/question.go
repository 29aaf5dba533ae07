package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Question is one poll question of a session.
// DefaultOptionID is nil only while the question is being created.
type Question struct {
	ID              uuid.UUID  `json:"id"`
	SessionID       uuid.UUID  `json:"session_id"`
	Order           int        `json:"order"`
	Title           string     `json:"title"`
	DefaultOptionID *uuid.UUID `json:"default_option_id"`
	Options         []*Option  `json:"options"`
	Revision        uint64     `json:"-"`
}

// Option returns the child option with the given ID, or nil.
func (q *Question) Option(id uuid.UUID) *Option {
	if q == nil {
		return nil
	}
	for _, o := range q.Options {
		if o.ID == id {
			return o
		}
	}
	return nil
}

// OptionIDs returns the child option IDs in slice order.
func (q *Question) OptionIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(q.Options))
	for i, o := range q.Options {
		ids[i] = o.ID
	}
	return ids
}

// IsDefault reports whether optionID is the question's default option.
func (q *Question) IsDefault(optionID uuid.UUID) bool {
	return q.DefaultOptionID != nil && *q.DefaultOptionID == optionID
}

// QuestionField names an individually synchronized question attribute.
type QuestionField string

const (
	QuestionFieldTitle         QuestionField = "title"
	QuestionFieldDefaultOption QuestionField = "default_option_id"
)

// DefaultQuestionTitle is used when a question is added without a title.
const DefaultQuestionTitle = "設問1"

// CreateQuestionRequest is the payload for adding a question to a session.
type CreateQuestionRequest struct {
	Title string `json:"title" binding:"omitempty,max=255"`
}

// UpdateFieldRequest carries a single field edit for a question or an option.
type UpdateFieldRequest struct {
	Field string          `json:"field" binding:"required,max=64"`
	Value json.RawMessage `json:"value" binding:"required"`
}
