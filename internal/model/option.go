package model

import "github.com/google/uuid"

// Option is one answer choice of a question.
// ResponseCount is derived server-side and never written by clients.
type Option struct {
	ID            uuid.UUID `json:"id"`
	QuestionID    uuid.UUID `json:"question_id"`
	Order         int       `json:"order"`
	Title         string    `json:"title"`
	RewardPoint   int       `json:"reward_point"`
	Effect        bool      `json:"effect"`
	ResponseCount int       `json:"response_count"`
	Revision      uint64    `json:"-"`
}

// OptionField names an individually synchronized option attribute.
type OptionField string

const (
	OptionFieldTitle       OptionField = "title"
	OptionFieldRewardPoint OptionField = "reward_point"
	OptionFieldEffect      OptionField = "effect"
)

// DefaultOptionTitle is the title of the option seeded with every new question.
const DefaultOptionTitle = "選択肢1"

// MaxRewardPoint bounds Option.RewardPoint.
const MaxRewardPoint = 10000

// CreateOptionRequest is the payload for adding an option to a question.
type CreateOptionRequest struct {
	Title string `json:"title" binding:"required,min=1,max=255"`
}
