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

// Options is the part of service.OptionService the option endpoints use.
type Options interface {
	Create(ctx context.Context, actor service.Actor, questionID uuid.UUID, title string) (*model.Option, error)
	Duplicate(ctx context.Context, actor service.Actor, optionID uuid.UUID) (*model.Option, error)
	UpdateField(ctx context.Context, actor service.Actor, optionID uuid.UUID, field string, raw json.RawMessage) error
	Reorder(ctx context.Context, actor service.Actor, questionID uuid.UUID, items []model.OrderItem) ([]model.OrderItem, error)
	Delete(ctx context.Context, actor service.Actor, optionID uuid.UUID) error
}

// OptionHandler handles option management endpoints.
type OptionHandler struct {
	options Options
	log     zerolog.Logger
}

// NewOptionHandler creates a new OptionHandler.
func NewOptionHandler(options Options, log zerolog.Logger) *OptionHandler {
	return &OptionHandler{options: options, log: log.With().Str("component", "option_handler").Logger()}
}

// CreateOption godoc
// POST /api/v1/questions/:id/options
func (h *OptionHandler) CreateOption(c *gin.Context) {
	questionID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req model.CreateOptionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	o, err := h.options.Create(c.Request.Context(), middleware.GetActor(c), questionID, req.Title)
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusCreated, o)
}

// DuplicateOption godoc
// POST /api/v1/options/:id/duplicate
func (h *OptionHandler) DuplicateOption(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	o, err := h.options.Duplicate(c.Request.Context(), middleware.GetActor(c), id)
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusCreated, o)
}

// UpdateOption godoc
// PATCH /api/v1/options/:id
// Applies one field edit: title, reward_point or effect.
func (h *OptionHandler) UpdateOption(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req model.UpdateFieldRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.options.UpdateField(c.Request.Context(), middleware.GetActor(c), id, req.Field, req.Value); err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}

// ReorderOptions godoc
// PUT /api/v1/questions/:id/options/order
func (h *OptionHandler) ReorderOptions(c *gin.Context) {
	questionID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req model.UpdateOrderRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	items, err := h.options.Reorder(c.Request.Context(), middleware.GetActor(c), questionID, req.Items)
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, model.UpdateOrderRequest{Items: items})
}

// DeleteOption godoc
// DELETE /api/v1/options/:id
// The question's default option cannot be deleted.
func (h *OptionHandler) DeleteOption(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := h.options.Delete(c.Request.Context(), middleware.GetActor(c), id); err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}
