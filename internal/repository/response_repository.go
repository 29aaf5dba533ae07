package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/classpoll/internal/database"
	"github.com/stemsi/classpoll/internal/model"
)

// ResponseRepository handles student responses and the derived option counts.
type ResponseRepository struct {
	db database.DBTX
}

// NewResponseRepository creates a new ResponseRepository.
func NewResponseRepository(pool *pgxpool.Pool) *ResponseRepository {
	return &ResponseRepository{db: pool}
}

// WithTx returns a copy of the repository bound to tx.
func (r *ResponseRepository) WithTx(tx pgx.Tx) *ResponseRepository {
	return &ResponseRepository{db: tx}
}

// SeedForQuestion gives every enrolled student a response pointing at optionID.
// Returns the number of responses created.
func (r *ResponseRepository) SeedForQuestion(ctx context.Context, sessionID, questionID, optionID uuid.UUID) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO responses (student_id, question_id, option_id)
		 SELECT e.student_id, $2, $3
		 FROM enrollments e
		 WHERE e.session_id = $1
		 ON CONFLICT (student_id, question_id) DO NOTHING`,
		sessionID, questionID, optionID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// SeedForStudent gives a newly enrolled student a response at every
// question's default option.
func (r *ResponseRepository) SeedForStudent(ctx context.Context, sessionID uuid.UUID, studentID int) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO responses (student_id, question_id, option_id)
		 SELECT $2, q.id, q.default_option_id
		 FROM questions q
		 WHERE q.session_id = $1 AND q.default_option_id IS NOT NULL
		 ON CONFLICT (student_id, question_id) DO NOTHING`,
		sessionID, studentID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// SeedMany writes explicit responses with COPY. Used when duplicating a
// question, where every copied response needs the new option ID.
func (r *ResponseRepository) SeedMany(ctx context.Context, responses []model.Response) (int64, error) {
	return r.db.CopyFrom(
		ctx,
		pgx.Identifier{"responses"},
		[]string{"student_id", "question_id", "option_id"},
		pgx.CopyFromSlice(len(responses), func(i int) ([]any, error) {
			rs := responses[i]
			return []any{int32(rs.StudentID), rs.QuestionID, rs.OptionID}, nil
		}),
	)
}

// ListByQuestion returns every response to a question.
func (r *ResponseRepository) ListByQuestion(ctx context.Context, questionID uuid.UUID) ([]model.Response, error) {
	rows, err := r.db.Query(ctx,
		`SELECT student_id, question_id, option_id, updated_at
		 FROM responses WHERE question_id = $1`, questionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Response{}
	for rows.Next() {
		var rs model.Response
		if err := rows.Scan(&rs.StudentID, &rs.QuestionID, &rs.OptionID, &rs.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, rs)
	}
	return out, rows.Err()
}

// ListByStudent returns a student's persisted responses in a session.
// Responses to deleted questions are gone with their question.
func (r *ResponseRepository) ListByStudent(ctx context.Context, sessionID uuid.UUID, studentID int) ([]model.Response, error) {
	rows, err := r.db.Query(ctx,
		`SELECT r.student_id, r.question_id, r.option_id, r.updated_at
		 FROM responses r
		 JOIN questions q ON q.id = r.question_id
		 WHERE q.session_id = $1 AND r.student_id = $2`, sessionID, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Response{}
	for rows.Next() {
		var rs model.Response
		if err := rows.Scan(&rs.StudentID, &rs.QuestionID, &rs.OptionID, &rs.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, rs)
	}
	return out, rows.Err()
}

// Reassign moves every response on one option to another.
func (r *ResponseRepository) Reassign(ctx context.Context, fromOptionID, toOptionID uuid.UUID) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE responses SET option_id = $2, updated_at = NOW() WHERE option_id = $1`,
		fromOptionID, toOptionID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Upsert records one student's choice unless a newer one is already stored.
func (r *ResponseRepository) Upsert(ctx context.Context, rs model.Response) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO responses (student_id, question_id, option_id, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (student_id, question_id) DO UPDATE
		 SET option_id = EXCLUDED.option_id, updated_at = EXCLUDED.updated_at
		 WHERE responses.updated_at <= EXCLUDED.updated_at`,
		rs.StudentID, rs.QuestionID, rs.OptionID, rs.UpdatedAt)
	return err
}

// UpsertMany is the bulk form of Upsert using UNNEST. The batch must not
// contain two rows for the same (student, question).
func (r *ResponseRepository) UpsertMany(ctx context.Context, batch []model.Response) error {
	if len(batch) == 0 {
		return nil
	}
	students := make([]int32, len(batch))
	questions := make([]uuid.UUID, len(batch))
	options := make([]uuid.UUID, len(batch))
	updatedAts := make([]time.Time, len(batch))
	for i, rs := range batch {
		students[i] = int32(rs.StudentID)
		questions[i] = rs.QuestionID
		options[i] = rs.OptionID
		updatedAts[i] = rs.UpdatedAt
	}

	query := `
		INSERT INTO responses (student_id, question_id, option_id, updated_at)
		SELECT u.student_id, u.question_id, u.option_id, u.updated_at
		FROM UNNEST(
			$1::int[],
			$2::uuid[],
			$3::uuid[],
			$4::timestamptz[]
		) AS u (student_id, question_id, option_id, updated_at)
		ON CONFLICT (student_id, question_id) DO UPDATE
		SET option_id = EXCLUDED.option_id,
		    updated_at = EXCLUDED.updated_at
		WHERE responses.updated_at <= EXCLUDED.updated_at
	`
	_, err := r.db.Exec(ctx, query, students, questions, options, updatedAts)
	return err
}

// Recount recomputes response_count for every option of the given questions.
func (r *ResponseRepository) Recount(ctx context.Context, questionIDs []uuid.UUID) error {
	if len(questionIDs) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx,
		`UPDATE options AS o
		 SET response_count = c.n
		 FROM (
			SELECT op.id, COUNT(rs.option_id)::int AS n
			FROM options op
			LEFT JOIN responses rs ON rs.option_id = op.id
			WHERE op.question_id = ANY($1)
			GROUP BY op.id
		 ) AS c
		 WHERE o.id = c.id AND o.response_count <> c.n`,
		questionIDs)
	return err
}

// Counts returns the stored response_count of every option in a session.
func (r *ResponseRepository) Counts(ctx context.Context, sessionID uuid.UUID) ([]model.OptionCount, error) {
	rows, err := r.db.Query(ctx,
		`SELECT o.id, o.response_count
		 FROM options o
		 JOIN questions q ON q.id = o.question_id
		 WHERE q.session_id = $1
		 ORDER BY q."order", o."order"`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := []model.OptionCount{}
	for rows.Next() {
		var c model.OptionCount
		if err := rows.Scan(&c.OptionID, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// SessionsOf maps question IDs to their session IDs.
func (r *ResponseRepository) SessionsOf(ctx context.Context, questionIDs []uuid.UUID) (map[uuid.UUID]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `SELECT id, session_id FROM questions WHERE id = ANY($1)`, questionIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[uuid.UUID]uuid.UUID, len(questionIDs))
	for rows.Next() {
		var qid, sid uuid.UUID
		if err := rows.Scan(&qid, &sid); err != nil {
			return nil, err
		}
		out[qid] = sid
	}
	return out, rows.Err()
}
