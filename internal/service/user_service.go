package service

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stemsi/classpoll/internal/database"
	"github.com/stemsi/classpoll/internal/guard"
	"github.com/stemsi/classpoll/internal/model"
	"github.com/stemsi/classpoll/internal/repository"
)

// UserService handles role changes.
type UserService struct {
	pool     *pgxpool.Pool
	userRepo *repository.UserRepository
	log      zerolog.Logger
}

// NewUserService creates a new UserService.
func NewUserService(pool *pgxpool.Pool, userRepo *repository.UserRepository, log zerolog.Logger) *UserService {
	return &UserService{
		pool:     pool,
		userRepo: userRepo,
		log:      log.With().Str("component", "user_service").Logger(),
	}
}

// ChangeRole moves a user one step up the role lattice and provisions the
// matching profile in the same transaction. Asking for the current role is a
// successful no-op.
func (s *UserService) ChangeRole(ctx context.Context, userID int, to model.Role) (*model.User, error) {
	var out *model.User
	err := database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		users := s.userRepo.WithTx(tx)

		u, err := users.GetByIDForUpdate(ctx, userID)
		if err != nil {
			if database.IsNotFound(err) {
				return ErrNotFound
			}
			return fmt.Errorf("get user: %w", err)
		}

		noop, err := guard.CheckRoleTransition(u.Role, to)
		if err != nil {
			return err
		}
		out = u
		if noop {
			return nil
		}

		if err := users.CreateProfile(ctx, userID, to); err != nil {
			return fmt.Errorf("create profile: %w", err)
		}
		if err := users.UpdateRole(ctx, userID, to); err != nil {
			return fmt.Errorf("update role: %w", err)
		}
		u.Role = to
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Int("user_id", userID).Str("role", string(out.Role)).Msg("Role changed")
	return out, nil
}

// Escalate walks a user up the lattice one legal step at a time until it reaches to.
func (s *UserService) Escalate(ctx context.Context, userID int, to model.Role) (*model.User, error) {
	for {
		u, err := s.userRepo.GetByID(ctx, userID)
		if err != nil {
			if database.IsNotFound(err) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("get user: %w", err)
		}
		if u.Role.AtLeast(to) {
			return u, nil
		}
		next := model.RoleTeacher
		if u.Role == model.RoleTeacher {
			next = model.RoleAdmin
		}
		if _, err := s.ChangeRole(ctx, userID, next); err != nil {
			return nil, err
		}
	}
}
