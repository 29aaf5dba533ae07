package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/classpoll/internal/model"
)

// DashboardRepository handles admin dashboard data access.
type DashboardRepository struct {
	pool *pgxpool.Pool
}

// NewDashboardRepository creates a new DashboardRepository.
func NewDashboardRepository(pool *pgxpool.Pool) *DashboardRepository {
	return &DashboardRepository{pool: pool}
}

// DashboardSummary holds the headline counters.
type DashboardSummary struct {
	TotalSessions  int `json:"total_sessions"`
	ActiveSessions int `json:"active_sessions"`
	TotalQuestions int `json:"total_questions"`
	TotalResponses int `json:"total_responses"`
}

// GetSummaryCounts retrieves the high-level metrics for the dashboard.
func (r *DashboardRepository) GetSummaryCounts(ctx context.Context) (DashboardSummary, error) {
	var s DashboardSummary
	err := r.pool.QueryRow(ctx,
		`SELECT
			(SELECT COUNT(*) FROM learning_sessions),
			(SELECT COUNT(*) FROM learning_sessions WHERE is_active),
			(SELECT COUNT(*) FROM questions),
			(SELECT COUNT(*) FROM responses)`,
	).Scan(&s.TotalSessions, &s.ActiveSessions, &s.TotalQuestions, &s.TotalResponses)
	return s, err
}

// GetRoleCounts retrieves the distribution of users by role.
func (r *DashboardRepository) GetRoleCounts(ctx context.Context) (map[model.Role]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT role, COUNT(*) FROM users GROUP BY role`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[model.Role]int{model.RoleStudent: 0, model.RoleTeacher: 0, model.RoleAdmin: 0}
	for rows.Next() {
		var role model.Role
		var count int
		if err := rows.Scan(&role, &count); err != nil {
			return nil, err
		}
		counts[role] = count
	}
	return counts, rows.Err()
}

// DashboardSession is one row of the busiest-sessions table.
type DashboardSession struct {
	ID            uuid.UUID `json:"id"`
	Title         string    `json:"title"`
	AccessCode    string    `json:"access_code"`
	IsActive      bool      `json:"is_active"`
	Participants  int       `json:"participants"`
	QuestionCount int       `json:"question_count"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// GetBusiestSessions returns the N sessions with the most enrolled students.
func (r *DashboardRepository) GetBusiestSessions(ctx context.Context, limit int) ([]DashboardSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT s.id, s.title, s.access_code, s.is_active,
		        (SELECT COUNT(*) FROM enrollments e WHERE e.session_id = s.id) AS participants,
		        (SELECT COUNT(*) FROM questions q WHERE q.session_id = s.id),
		        s.updated_at
		 FROM learning_sessions s
		 ORDER BY participants DESC, s.updated_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []DashboardSession{}
	for rows.Next() {
		var d DashboardSession
		if err := rows.Scan(&d.ID, &d.Title, &d.AccessCode, &d.IsActive, &d.Participants, &d.QuestionCount, &d.UpdatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, d)
	}
	return sessions, rows.Err()
}
