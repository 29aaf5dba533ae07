package handler

import (
	"context"
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

// Sessions is the part of service.SessionService the teacher endpoints use.
type Sessions interface {
	Create(ctx context.Context, actor service.Actor, req *model.CreateSessionRequest) (*model.Session, error)
	List(ctx context.Context, actor service.Actor) ([]model.Session, error)
	Get(ctx context.Context, actor service.Actor, id uuid.UUID) (*model.Session, error)
	Update(ctx context.Context, actor service.Actor, id uuid.UUID, req *model.UpdateSessionRequest) (*model.Session, error)
	Delete(ctx context.Context, actor service.Actor, id uuid.UUID) error
}

// SessionHandler handles learning session management endpoints.
type SessionHandler struct {
	sessions Sessions
	log      zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions Sessions, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, log: log.With().Str("component", "session_handler").Logger()}
}

// CreateSession godoc
// POST /api/v1/sessions
// Creates a session. The access code must be unique and cannot be changed later.
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req model.CreateSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	sess, err := h.sessions.Create(c.Request.Context(), middleware.GetActor(c), &req)
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusCreated, sess)
}

// ListSessions godoc
// GET /api/v1/sessions
func (h *SessionHandler) ListSessions(c *gin.Context) {
	sessions, err := h.sessions.List(c.Request.Context(), middleware.GetActor(c))
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, sessions)
}

// GetSession godoc
// GET /api/v1/sessions/:id
// Returns the full tree: questions and options sorted by order.
func (h *SessionHandler) GetSession(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	sess, err := h.sessions.Get(c.Request.Context(), middleware.GetActor(c), id)
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, sess)
}

// UpdateSession godoc
// PATCH /api/v1/sessions/:id
func (h *SessionHandler) UpdateSession(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req model.UpdateSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	sess, err := h.sessions.Update(c.Request.Context(), middleware.GetActor(c), id, &req)
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, sess)
}

// DeleteSession godoc
// DELETE /api/v1/sessions/:id
// Deletes the session with its questions, options, enrollments and responses.
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := h.sessions.Delete(c.Request.Context(), middleware.GetActor(c), id); err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}
