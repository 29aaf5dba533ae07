package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/classpoll/internal/response"
	"github.com/stemsi/classpoll/internal/service"
)

// Dashboard is the part of service.DashboardService the dashboard endpoint uses.
type Dashboard interface {
	GetDashboardData(ctx context.Context) (*service.DashboardData, error)
}

// DashboardHandler handles admin dashboard endpoints.
type DashboardHandler struct {
	dashboard Dashboard
	log       zerolog.Logger
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(dashboard Dashboard, log zerolog.Logger) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard, log: log.With().Str("component", "dashboard_handler").Logger()}
}

// GetDashboardData godoc
// GET /api/v1/admin/dashboard
// Returns headline counters, users per role and the busiest sessions.
func (h *DashboardHandler) GetDashboardData(c *gin.Context) {
	data, err := h.dashboard.GetDashboardData(c.Request.Context())
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, data)
}
