package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/classpoll/internal/database"
	"github.com/stemsi/classpoll/internal/model"
)

// QuestionRepository handles question data access.
type QuestionRepository struct {
	db database.DBTX
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{db: pool}
}

// WithTx returns a copy of the repository bound to tx.
func (r *QuestionRepository) WithTx(tx pgx.Tx) *QuestionRepository {
	return &QuestionRepository{db: tx}
}

// Owner is the parent chain of a question or option, used for ownership checks.
type Owner struct {
	QuestionID uuid.UUID
	SessionID  uuid.UUID
	TeacherID  int
}

// OwnerOf returns the session and teacher a question belongs to.
func (r *QuestionRepository) OwnerOf(ctx context.Context, questionID uuid.UUID) (Owner, error) {
	o := Owner{QuestionID: questionID}
	err := r.db.QueryRow(ctx,
		`SELECT q.session_id, s.teacher_id
		 FROM questions q
		 JOIN learning_sessions s ON s.id = q.session_id
		 WHERE q.id = $1`, questionID,
	).Scan(&o.SessionID, &o.TeacherID)
	return o, err
}

// NextOrder returns max(order)+1 among a session's questions.
func (r *QuestionRepository) NextOrder(ctx context.Context, sessionID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(MAX("order"), 0) + 1 FROM questions WHERE session_id = $1`, sessionID,
	).Scan(&n)
	return n, err
}

// Create inserts a question without a default option.
func (r *QuestionRepository) Create(ctx context.Context, q *model.Question) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO questions (session_id, "order", title)
		 VALUES ($1, $2, $3)
		 RETURNING id`,
		q.SessionID, q.Order, q.Title,
	).Scan(&q.ID)
}

// GetWithOptions returns a question and its options sorted by order.
func (r *QuestionRepository) GetWithOptions(ctx context.Context, id uuid.UUID) (*model.Question, error) {
	q := &model.Question{}
	err := r.db.QueryRow(ctx,
		`SELECT id, session_id, "order", title, default_option_id FROM questions WHERE id = $1`, id,
	).Scan(&q.ID, &q.SessionID, &q.Order, &q.Title, &q.DefaultOptionID)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, question_id, "order", title, reward_point, effect, response_count
		 FROM options WHERE question_id = $1 ORDER BY "order", id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	q.Options = []*model.Option{}
	for rows.Next() {
		o, err := scanOption(rows)
		if err != nil {
			return nil, err
		}
		q.Options = append(q.Options, o)
	}
	return q, rows.Err()
}

// SiblingIDs returns a session's question IDs in their current order.
func (r *QuestionRepository) SiblingIDs(ctx context.Context, sessionID uuid.UUID) ([]uuid.UUID, error) {
	return queryIDs(ctx, r.db,
		`SELECT id FROM questions WHERE session_id = $1 ORDER BY "order", id`, sessionID)
}

// UpdateTitle sets a question's title.
func (r *QuestionRepository) UpdateTitle(ctx context.Context, id uuid.UUID, title string) error {
	_, err := r.db.Exec(ctx, `UPDATE questions SET title = $1, updated_at = NOW() WHERE id = $2`, title, id)
	return err
}

// SetDefaultOption points a question at one of its options.
func (r *QuestionRepository) SetDefaultOption(ctx context.Context, id, optionID uuid.UUID) error {
	_, err := r.db.Exec(ctx,
		`UPDATE questions SET default_option_id = $1, updated_at = NOW() WHERE id = $2`, optionID, id)
	return err
}

// ApplyOrder writes a complete order assignment in one statement.
func (r *QuestionRepository) ApplyOrder(ctx context.Context, items []model.OrderItem) error {
	return applyOrder(ctx, r.db, "questions", items)
}

// Delete removes a question; its options and responses cascade.
func (r *QuestionRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM questions WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ----------------------------------------------------------------
// Shared helpers
// ----------------------------------------------------------------

// applyOrder is a bulk UPDATE using UNNEST + alias. table is always a
// constant supplied by this package.
func applyOrder(ctx context.Context, db database.DBTX, table string, items []model.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(items))
	orders := make([]int32, len(items))
	for i, it := range items {
		ids[i] = it.ID
		orders[i] = int32(it.Order)
	}

	query := `
		UPDATE ` + table + ` AS t
		SET "order" = u.ord,
		    updated_at = NOW()
		FROM (
			SELECT u.id, u.ord
			FROM UNNEST(
				$1::uuid[],
				$2::int[]
			) AS u (id, ord)
		) AS u
		WHERE t.id = u.id
	`
	_, err := db.Exec(ctx, query, ids, orders)
	return err
}

func queryIDs(ctx context.Context, db database.DBTX, query string, args ...any) ([]uuid.UUID, error) {
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
