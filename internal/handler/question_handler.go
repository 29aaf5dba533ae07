package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/classpoll/internal/middleware"
	"github.com/stemsi/classpoll/internal/model"
	"github.com/stemsi/classpoll/internal/response"
	"github.com/stemsi/classpoll/internal/service"
	"github.com/stemsi/classpoll/internal/validator"
)

// Questions is the part of service.QuestionService the question endpoints use.
type Questions interface {
	Create(ctx context.Context, actor service.Actor, sessionID uuid.UUID, title string) (*model.Question, error)
	Duplicate(ctx context.Context, actor service.Actor, questionID uuid.UUID) (*model.Question, error)
	UpdateField(ctx context.Context, actor service.Actor, questionID uuid.UUID, field string, raw json.RawMessage) error
	Reorder(ctx context.Context, actor service.Actor, sessionID uuid.UUID, items []model.OrderItem) ([]model.OrderItem, error)
	Delete(ctx context.Context, actor service.Actor, questionID uuid.UUID) error
}

// QuestionHandler handles question management endpoints.
type QuestionHandler struct {
	questions Questions
	log       zerolog.Logger
}

// NewQuestionHandler creates a new QuestionHandler.
func NewQuestionHandler(questions Questions, log zerolog.Logger) *QuestionHandler {
	return &QuestionHandler{questions: questions, log: log.With().Str("component", "question_handler").Logger()}
}

// CreateQuestion godoc
// POST /api/v1/sessions/:id/questions
// Appends a question. The response carries the server-assigned IDs,
// including the auto-created default option.
func (h *QuestionHandler) CreateQuestion(c *gin.Context) {
	sessionID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req model.CreateQuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	q, err := h.questions.Create(c.Request.Context(), middleware.GetActor(c), sessionID, req.Title)
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusCreated, q)
}

// DuplicateQuestion godoc
// POST /api/v1/questions/:id/duplicate
func (h *QuestionHandler) DuplicateQuestion(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	q, err := h.questions.Duplicate(c.Request.Context(), middleware.GetActor(c), id)
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusCreated, q)
}

// UpdateQuestion godoc
// PATCH /api/v1/questions/:id
// Applies one field edit: title or default_option_id.
func (h *QuestionHandler) UpdateQuestion(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req model.UpdateFieldRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.questions.UpdateField(c.Request.Context(), middleware.GetActor(c), id, req.Field, req.Value); err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}

// ReorderQuestions godoc
// PUT /api/v1/sessions/:id/questions/order
// Takes the complete {id, order} set of the session's questions and returns
// the dense order actually stored.
func (h *QuestionHandler) ReorderQuestions(c *gin.Context) {
	sessionID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req model.UpdateOrderRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	items, err := h.questions.Reorder(c.Request.Context(), middleware.GetActor(c), sessionID, req.Items)
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, model.UpdateOrderRequest{Items: items})
}

// DeleteQuestion godoc
// DELETE /api/v1/questions/:id
func (h *QuestionHandler) DeleteQuestion(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := h.questions.Delete(c.Request.Context(), middleware.GetActor(c), id); err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}
