package editor

import (
	"context"

	"github.com/google/uuid"
	"github.com/stemsi/classpoll/internal/model"
)

// Backend is the remote API the editor writes through.
// Create and duplicate calls return the new subtree with server-assigned IDs.
type Backend interface {
	FetchSession(ctx context.Context, sessionID uuid.UUID) (*model.Session, error)

	UpdateQuestionField(ctx context.Context, questionID uuid.UUID, field model.QuestionField, value any) error
	UpdateOptionField(ctx context.Context, optionID uuid.UUID, field model.OptionField, value any) error

	UpdateQuestionsOrder(ctx context.Context, sessionID uuid.UUID, items []model.OrderItem) error
	UpdateOptionsOrder(ctx context.Context, questionID uuid.UUID, items []model.OrderItem) error

	CreateQuestion(ctx context.Context, sessionID uuid.UUID, title string) (*model.Question, error)
	DuplicateQuestion(ctx context.Context, questionID uuid.UUID) (*model.Question, error)
	DeleteQuestion(ctx context.Context, questionID uuid.UUID) error

	CreateOption(ctx context.Context, questionID uuid.UUID, title string) (*model.Option, error)
	DuplicateOption(ctx context.Context, optionID uuid.UUID) (*model.Option, error)
	DeleteOption(ctx context.Context, optionID uuid.UUID) error
}
