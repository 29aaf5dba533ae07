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
	"github.com/stemsi/classpoll/internal/validator"
)

// StudentSessions is the part of service.SessionService the student portal uses.
type StudentSessions interface {
	Join(ctx context.Context, studentID int, code string) (*model.Session, error)
	StudentView(ctx context.Context, studentID int, id uuid.UUID) (*model.Session, error)
}

// Responder is the part of service.ResponseService the student portal uses.
type Responder interface {
	Submit(ctx context.Context, studentID int, questionID, optionID uuid.UUID) (*model.Response, error)
	Latest(ctx context.Context, studentID int, sessionID uuid.UUID) (map[uuid.UUID]uuid.UUID, error)
}

// StudentHandler handles the student-facing session endpoints.
type StudentHandler struct {
	sessions  StudentSessions
	responses Responder
	log       zerolog.Logger
}

// NewStudentHandler creates a new StudentHandler.
func NewStudentHandler(sessions StudentSessions, responses Responder, log zerolog.Logger) *StudentHandler {
	return &StudentHandler{
		sessions:  sessions,
		responses: responses,
		log:       log.With().Str("component", "student_handler").Logger(),
	}
}

// JoinSession godoc
// POST /api/v1/student/join
// Enrolls the student by access code and returns the session tree.
func (h *StudentHandler) JoinSession(c *gin.Context) {
	var req model.JoinSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	sess, err := h.sessions.Join(c.Request.Context(), middleware.GetActor(c).ID, req.AccessCode)
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, sess)
}

// GetSession godoc
// GET /api/v1/student/sessions/:id
func (h *StudentHandler) GetSession(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	sess, err := h.sessions.StudentView(c.Request.Context(), middleware.GetActor(c).ID, id)
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, sess)
}

// SubmitResponse godoc
// PUT /api/v1/student/questions/:id/response
// Records the student's choice. The last submission wins.
func (h *StudentHandler) SubmitResponse(c *gin.Context) {
	questionID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req model.SubmitResponseRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	r, err := h.responses.Submit(c.Request.Context(), middleware.GetActor(c).ID, questionID, req.OptionID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Accepted(c, r)
}

// MyResponses godoc
// GET /api/v1/student/sessions/:id/responses
// Returns question ID → chosen option ID for the caller.
func (h *StudentHandler) MyResponses(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	studentID := middleware.GetActor(c).ID
	// Enrollment check doubles as the existence check.
	if _, err := h.sessions.StudentView(c.Request.Context(), studentID, id); err != nil {
		failWith(c, h.log, err)
		return
	}

	latest, err := h.responses.Latest(c.Request.Context(), studentID, id)
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, latest)
}
