package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/classpoll/internal/database"
	"github.com/stemsi/classpoll/internal/model"
)

// SessionRepository handles learning session and enrollment data access.
type SessionRepository struct {
	db database.DBTX
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{db: pool}
}

// WithTx returns a copy of the repository bound to tx.
func (r *SessionRepository) WithTx(tx pgx.Tx) *SessionRepository {
	return &SessionRepository{db: tx}
}

const sessionColumns = `id, teacher_id, title, access_code, is_active, created_at, updated_at`

func scanSession(row pgx.Row) (*model.Session, error) {
	s := &model.Session{}
	err := row.Scan(&s.ID, &s.TeacherID, &s.Title, &s.AccessCode, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Create inserts a new session. Access code collisions surface as a unique
// violation on learning_sessions_access_code_key.
func (r *SessionRepository) Create(ctx context.Context, s *model.Session) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO learning_sessions (teacher_id, title, access_code, is_active)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at, updated_at`,
		s.TeacherID, s.Title, s.AccessCode, s.IsActive,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
}

// GetByID retrieves a session without its questions.
func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	return scanSession(r.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM learning_sessions WHERE id = $1`, id))
}

// LockByID retrieves a session and locks its row. Every sibling mutation
// under the session takes this lock first so order repacks serialize.
func (r *SessionRepository) LockByID(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	return scanSession(r.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM learning_sessions WHERE id = $1 FOR UPDATE`, id))
}

// GetByAccessCode retrieves a session by its access code.
func (r *SessionRepository) GetByAccessCode(ctx context.Context, code string) (*model.Session, error) {
	return scanSession(r.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM learning_sessions WHERE access_code = $1`, code))
}

// ListByTeacher returns a teacher's sessions, newest first.
func (r *SessionRepository) ListByTeacher(ctx context.Context, teacherID int) ([]model.Session, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+sessionColumns+` FROM learning_sessions
		 WHERE teacher_id = $1
		 ORDER BY created_at DESC`, teacherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []model.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// Update applies the non-nil attributes. The access code is never updated.
func (r *SessionRepository) Update(ctx context.Context, id uuid.UUID, title *string, isActive *bool) (*model.Session, error) {
	return scanSession(r.db.QueryRow(ctx,
		`UPDATE learning_sessions
		 SET title = COALESCE($2, title),
		     is_active = COALESCE($3, is_active),
		     updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+sessionColumns,
		id, title, isActive,
	))
}

// Delete removes a session; questions, options, enrollments and responses cascade.
func (r *SessionRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM learning_sessions WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// LoadTree returns the session with its questions and options sorted by order.
func (r *SessionRepository) LoadTree(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	s, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, session_id, "order", title, default_option_id
		 FROM questions
		 WHERE session_id = $1
		 ORDER BY "order", id`, id)
	if err != nil {
		return nil, err
	}
	s.Questions = []*model.Question{}
	byID := make(map[uuid.UUID]*model.Question)
	for rows.Next() {
		q := &model.Question{Options: []*model.Option{}}
		if err := rows.Scan(&q.ID, &q.SessionID, &q.Order, &q.Title, &q.DefaultOptionID); err != nil {
			rows.Close()
			return nil, err
		}
		s.Questions = append(s.Questions, q)
		byID[q.ID] = q
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.db.Query(ctx,
		`SELECT o.id, o.question_id, o."order", o.title, o.reward_point, o.effect, o.response_count
		 FROM options o
		 JOIN questions q ON q.id = o.question_id
		 WHERE q.session_id = $1
		 ORDER BY o.question_id, o."order", o.id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		o, err := scanOption(rows)
		if err != nil {
			return nil, err
		}
		if q := byID[o.QuestionID]; q != nil {
			q.Options = append(q.Options, o)
		}
	}
	return s, rows.Err()
}

// Enroll adds a student to a session. It reports false when the student was already enrolled.
func (r *SessionRepository) Enroll(ctx context.Context, sessionID uuid.UUID, studentID int) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO enrollments (session_id, student_id) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`, sessionID, studentID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// EnrollMany enrolls students in bulk with COPY. Callers filter out existing enrollments.
func (r *SessionRepository) EnrollMany(ctx context.Context, sessionID uuid.UUID, studentIDs []int) (int64, error) {
	return r.db.CopyFrom(
		ctx,
		pgx.Identifier{"enrollments"},
		[]string{"session_id", "student_id"},
		pgx.CopyFromSlice(len(studentIDs), func(i int) ([]any, error) {
			return []any{sessionID, studentIDs[i]}, nil
		}),
	)
}

// IsEnrolled reports whether a student has joined a session.
func (r *SessionRepository) IsEnrolled(ctx context.Context, sessionID uuid.UUID, studentID int) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM enrollments WHERE session_id = $1 AND student_id = $2)`,
		sessionID, studentID,
	).Scan(&ok)
	return ok, err
}

// ListEnrolledIDs returns the IDs of every student enrolled in a session.
func (r *SessionRepository) ListEnrolledIDs(ctx context.Context, sessionID uuid.UUID) ([]int, error) {
	rows, err := r.db.Query(ctx, `SELECT student_id FROM enrollments WHERE session_id = $1 ORDER BY student_id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []int{}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
