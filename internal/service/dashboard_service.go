package service

import (
	"context"
	"fmt"

	"github.com/stemsi/classpoll/internal/model"
	"github.com/stemsi/classpoll/internal/repository"
)

const busiestSessionsLimit = 5

// DashboardData consolidates all metrics for the admin dashboard.
type DashboardData struct {
	repository.DashboardSummary
	Users           map[model.Role]int            `json:"users"`
	BusiestSessions []repository.DashboardSession `json:"busiest_sessions"`
}

// DashboardService handles admin dashboard business logic.
type DashboardService struct {
	repo *repository.DashboardRepository
}

// NewDashboardService creates a new DashboardService.
func NewDashboardService(repo *repository.DashboardRepository) *DashboardService {
	return &DashboardService{repo: repo}
}

// GetDashboardData gathers the dashboard metrics sequentially.
func (s *DashboardService) GetDashboardData(ctx context.Context) (*DashboardData, error) {
	summary, err := s.repo.GetSummaryCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("summary counts: %w", err)
	}

	roles, err := s.repo.GetRoleCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("role counts: %w", err)
	}

	busiest, err := s.repo.GetBusiestSessions(ctx, busiestSessionsLimit)
	if err != nil {
		return nil, fmt.Errorf("busiest sessions: %w", err)
	}

	return &DashboardData{
		DashboardSummary: summary,
		Users:            roles,
		BusiestSessions:  busiest,
	}, nil
}
