package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/classpoll/internal/model"
	"github.com/stemsi/classpoll/internal/response"
	"github.com/stemsi/classpoll/internal/validator"
)

// RoleChanger is the part of service.UserService the admin endpoints use.
type RoleChanger interface {
	ChangeRole(ctx context.Context, userID int, to model.Role) (*model.User, error)
}

// AdminHandler handles user administration.
type AdminHandler struct {
	users RoleChanger
	log   zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(users RoleChanger, log zerolog.Logger) *AdminHandler {
	return &AdminHandler{users: users, log: log.With().Str("component", "admin_handler").Logger()}
}

// ChangeRole godoc
// PUT /api/v1/admin/users/:id/role
// Moves a user one step up the STUDENT → TEACHER → ADMIN lattice.
func (h *AdminHandler) ChangeRole(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id < 1 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.ChangeRoleRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	u, err := h.users.ChangeRole(c.Request.Context(), id, req.Role)
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, u)
}
