package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/classpoll/internal/database"
	"github.com/stemsi/classpoll/internal/model"
)

// UserRepository handles user and role profile data access.
type UserRepository struct {
	db database.DBTX
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: pool}
}

// WithTx returns a copy of the repository bound to tx.
func (r *UserRepository) WithTx(tx pgx.Tx) *UserRepository {
	return &UserRepository{db: tx}
}

const userColumns = `id, email, name, password_hash, role, created_at, updated_at`

func scanUser(row pgx.Row) (*model.User, error) {
	u := &model.User{}
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Create inserts a new user.
func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO users (email, name, password_hash, role)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at, updated_at`,
		u.Email, u.Name, u.PasswordHash, u.Role,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
}

// GetByEmail retrieves a user by email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id int) (*model.User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetByIDForUpdate retrieves a user and locks the row until the transaction ends.
func (r *UserRepository) GetByIDForUpdate(ctx context.Context, id int) (*model.User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
}

// UpdateRole sets a user's role.
func (r *UserRepository) UpdateRole(ctx context.Context, id int, role model.Role) error {
	_, err := r.db.Exec(ctx, `UPDATE users SET role = $1, updated_at = NOW() WHERE id = $2`, role, id)
	return err
}

// CreateProfile provisions the sub-profile row that role requires.
// Students have no profile row.
func (r *UserRepository) CreateProfile(ctx context.Context, id int, role model.Role) error {
	var query string
	switch role {
	case model.RoleTeacher:
		query = `INSERT INTO teacher_profiles (user_id) VALUES ($1) ON CONFLICT DO NOTHING`
	case model.RoleAdmin:
		query = `INSERT INTO admin_profiles (user_id) VALUES ($1) ON CONFLICT DO NOTHING`
	default:
		return nil
	}
	_, err := r.db.Exec(ctx, query, id)
	return err
}

// CreateMany bulk-inserts users with COPY. IDs are not populated; use
// ListIDsByEmail to resolve them.
func (r *UserRepository) CreateMany(ctx context.Context, users []model.User) (int64, error) {
	return r.db.CopyFrom(
		ctx,
		pgx.Identifier{"users"},
		[]string{"email", "name", "password_hash", "role"},
		pgx.CopyFromSlice(len(users), func(i int) ([]any, error) {
			u := users[i]
			return []any{u.Email, u.Name, u.PasswordHash, string(u.Role)}, nil
		}),
	)
}

// ListIDsByEmail maps each existing email to its user ID.
func (r *UserRepository) ListIDsByEmail(ctx context.Context, emails []string) (map[string]int, error) {
	rows, err := r.db.Query(ctx, `SELECT id, email FROM users WHERE email = ANY($1)`, emails)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]int, len(emails))
	for rows.Next() {
		var id int
		var email string
		if err := rows.Scan(&id, &email); err != nil {
			return nil, err
		}
		ids[email] = id
	}
	return ids, rows.Err()
}
