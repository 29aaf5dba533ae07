package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/classpoll/internal/database"
	"github.com/stemsi/classpoll/internal/model"
)

// OptionRepository handles option data access.
type OptionRepository struct {
	db database.DBTX
}

// NewOptionRepository creates a new OptionRepository.
func NewOptionRepository(pool *pgxpool.Pool) *OptionRepository {
	return &OptionRepository{db: pool}
}

// WithTx returns a copy of the repository bound to tx.
func (r *OptionRepository) WithTx(tx pgx.Tx) *OptionRepository {
	return &OptionRepository{db: tx}
}

func scanOption(row pgx.Row) (*model.Option, error) {
	o := &model.Option{}
	err := row.Scan(&o.ID, &o.QuestionID, &o.Order, &o.Title, &o.RewardPoint, &o.Effect, &o.ResponseCount)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// OwnerOf returns the question, session and teacher an option belongs to.
func (r *OptionRepository) OwnerOf(ctx context.Context, optionID uuid.UUID) (Owner, error) {
	var o Owner
	err := r.db.QueryRow(ctx,
		`SELECT o.question_id, q.session_id, s.teacher_id
		 FROM options o
		 JOIN questions q ON q.id = o.question_id
		 JOIN learning_sessions s ON s.id = q.session_id
		 WHERE o.id = $1`, optionID,
	).Scan(&o.QuestionID, &o.SessionID, &o.TeacherID)
	return o, err
}

// ParentsInSession maps every option of a session to its question.
func (r *OptionRepository) ParentsInSession(ctx context.Context, sessionID uuid.UUID) (map[uuid.UUID]uuid.UUID, error) {
	rows, err := r.db.Query(ctx,
		`SELECT o.id, o.question_id
		 FROM options o
		 JOIN questions q ON q.id = o.question_id
		 WHERE q.session_id = $1`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	parents := make(map[uuid.UUID]uuid.UUID)
	for rows.Next() {
		var optionID, questionID uuid.UUID
		if err := rows.Scan(&optionID, &questionID); err != nil {
			return nil, err
		}
		parents[optionID] = questionID
	}
	return parents, rows.Err()
}

// GetByID retrieves an option.
func (r *OptionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Option, error) {
	return scanOption(r.db.QueryRow(ctx,
		`SELECT id, question_id, "order", title, reward_point, effect, response_count
		 FROM options WHERE id = $1`, id))
}

// NextOrder returns max(order)+1 among a question's options.
func (r *OptionRepository) NextOrder(ctx context.Context, questionID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(MAX("order"), 0) + 1 FROM options WHERE question_id = $1`, questionID,
	).Scan(&n)
	return n, err
}

// Create inserts an option.
func (r *OptionRepository) Create(ctx context.Context, o *model.Option) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO options (question_id, "order", title, reward_point, effect, response_count)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		o.QuestionID, o.Order, o.Title, o.RewardPoint, o.Effect, o.ResponseCount,
	).Scan(&o.ID)
}

// CreateMany bulk-inserts options with COPY. IDs must be assigned by the caller.
func (r *OptionRepository) CreateMany(ctx context.Context, opts []*model.Option) (int64, error) {
	return r.db.CopyFrom(
		ctx,
		pgx.Identifier{"options"},
		[]string{"id", "question_id", "order", "title", "reward_point", "effect", "response_count"},
		pgx.CopyFromSlice(len(opts), func(i int) ([]any, error) {
			o := opts[i]
			return []any{o.ID, o.QuestionID, int32(o.Order), o.Title, int32(o.RewardPoint), o.Effect, int32(o.ResponseCount)}, nil
		}),
	)
}

// SiblingIDs returns a question's option IDs in their current order.
func (r *OptionRepository) SiblingIDs(ctx context.Context, questionID uuid.UUID) ([]uuid.UUID, error) {
	return queryIDs(ctx, r.db,
		`SELECT id FROM options WHERE question_id = $1 ORDER BY "order", id`, questionID)
}

var optionColumns = map[model.OptionField]string{
	model.OptionFieldTitle:       "title",
	model.OptionFieldRewardPoint: "reward_point",
	model.OptionFieldEffect:      "effect",
}

// UpdateField sets one synchronized attribute of an option.
func (r *OptionRepository) UpdateField(ctx context.Context, id uuid.UUID, field model.OptionField, value any) error {
	col, ok := optionColumns[field]
	if !ok {
		return fmt.Errorf("unknown option field %q", field)
	}
	_, err := r.db.Exec(ctx,
		`UPDATE options SET `+col+` = $1, updated_at = NOW() WHERE id = $2`, value, id)
	return err
}

// ApplyOrder writes a complete order assignment in one statement.
func (r *OptionRepository) ApplyOrder(ctx context.Context, items []model.OrderItem) error {
	return applyOrder(ctx, r.db, "options", items)
}

// Delete removes an option; responses pointing at it cascade.
func (r *OptionRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM options WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
