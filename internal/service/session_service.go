package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/classpoll/internal/config"
	"github.com/stemsi/classpoll/internal/database"
	"github.com/stemsi/classpoll/internal/guard"
	"github.com/stemsi/classpoll/internal/model"
	"github.com/stemsi/classpoll/internal/repository"
)

// Domain Errors
var (
	ErrNotFound          = errors.New("resource not found")
	ErrNotSessionOwner   = errors.New("not the owner of this session")
	ErrNotEnrolled       = errors.New("not enrolled in this session")
	ErrSessionInactive   = errors.New("session is not active")
	ErrInvalidAccessCode = errors.New("no session uses this access code")
)

// Actor is the authenticated caller of a service method.
type Actor struct {
	ID   int
	Role model.Role
}

// owns reports whether the actor may edit content of a session owned by teacherID.
// Admins may edit every session.
func (a Actor) owns(teacherID int) bool {
	return a.Role == model.RoleAdmin || a.ID == teacherID
}

// SessionService handles learning sessions, enrollment and the Redis tree cache.
type SessionService struct {
	pool         *pgxpool.Pool
	sessionRepo  *repository.SessionRepository
	responseRepo *repository.ResponseRepository
	counts       *CountsService
	rdb          *redis.Client
	ttl          time.Duration
	log          zerolog.Logger
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	pool *pgxpool.Pool,
	sessionRepo *repository.SessionRepository,
	responseRepo *repository.ResponseRepository,
	counts *CountsService,
	rdb *redis.Client,
	ttl time.Duration,
	log zerolog.Logger,
) *SessionService {
	return &SessionService{
		pool:         pool,
		sessionRepo:  sessionRepo,
		responseRepo: responseRepo,
		counts:       counts,
		rdb:          rdb,
		ttl:          ttl,
		log:          log.With().Str("component", "session_service").Logger(),
	}
}

// Create inserts a session owned by the actor. Access code collisions are
// reported as guard.ErrAccessCodeTaken and never retried.
func (s *SessionService) Create(ctx context.Context, actor Actor, req *model.CreateSessionRequest) (*model.Session, error) {
	sess := &model.Session{
		TeacherID:  actor.ID,
		Title:      req.Title,
		AccessCode: req.AccessCode,
		IsActive:   true,
		Questions:  []*model.Question{},
	}
	if err := s.sessionRepo.Create(ctx, sess); err != nil {
		if database.IsUniqueViolation(err, "learning_sessions_access_code_key") {
			return nil, guard.ErrAccessCodeTaken
		}
		return nil, fmt.Errorf("create session: %w", err)
	}
	s.log.Info().Str("session_id", sess.ID.String()).Int("teacher_id", actor.ID).Msg("Session created")
	return sess, nil
}

// List returns the actor's sessions without their questions.
func (s *SessionService) List(ctx context.Context, actor Actor) ([]model.Session, error) {
	return s.sessionRepo.ListByTeacher(ctx, actor.ID)
}

// Get returns the full tree of a session the actor owns.
func (s *SessionService) Get(ctx context.Context, actor Actor, id uuid.UUID) (*model.Session, error) {
	tree, err := s.Tree(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.owns(tree.TeacherID) {
		return nil, ErrNotSessionOwner
	}
	return tree, nil
}

// Update edits the title and active flag of a session.
func (s *SessionService) Update(ctx context.Context, actor Actor, id uuid.UUID, req *model.UpdateSessionRequest) (*model.Session, error) {
	if err := s.Authorize(ctx, actor, id); err != nil {
		return nil, err
	}
	sess, err := s.sessionRepo.Update(ctx, id, req.Title, req.IsActive)
	if err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	s.Invalidate(ctx, id)
	return sess, nil
}

// Delete removes a session and everything under it.
func (s *SessionService) Delete(ctx context.Context, actor Actor, id uuid.UUID) error {
	if err := s.Authorize(ctx, actor, id); err != nil {
		return err
	}
	if _, err := s.sessionRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	s.Invalidate(ctx, id)
	s.log.Info().Str("session_id", id.String()).Msg("Session deleted")
	return nil
}

// Authorize checks that the session exists and the actor owns it.
func (s *SessionService) Authorize(ctx context.Context, actor Actor, id uuid.UUID) error {
	sess, err := s.sessionRepo.GetByID(ctx, id)
	if err != nil {
		if database.IsNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("get session: %w", err)
	}
	if !actor.owns(sess.TeacherID) {
		return ErrNotSessionOwner
	}
	return nil
}

// Join enrolls a student by access code and seeds a response at every
// question's default option. Joining twice is a no-op.
func (s *SessionService) Join(ctx context.Context, studentID int, code string) (*model.Session, error) {
	sess, err := s.sessionRepo.GetByAccessCode(ctx, code)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, ErrInvalidAccessCode
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	if !sess.IsActive {
		return nil, ErrSessionInactive
	}

	var joined bool
	err = database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		joined, err = s.sessionRepo.WithTx(tx).Enroll(ctx, sess.ID, studentID)
		if err != nil || !joined {
			return err
		}
		responses := s.responseRepo.WithTx(tx)
		if _, err := responses.SeedForStudent(ctx, sess.ID, studentID); err != nil {
			return fmt.Errorf("seed responses: %w", err)
		}
		tree, err := s.sessionRepo.WithTx(tx).LoadTree(ctx, sess.ID)
		if err != nil {
			return err
		}
		return responses.Recount(ctx, tree.QuestionIDs())
	})
	if err != nil {
		return nil, err
	}

	if joined {
		s.Invalidate(ctx, sess.ID)
		s.counts.Publish(ctx, sess.ID)
		s.log.Info().Str("session_id", sess.ID.String()).Int("student_id", studentID).Msg("Student joined")
	}
	return s.Tree(ctx, sess.ID)
}

// StudentView returns the tree of a session the student is enrolled in.
func (s *SessionService) StudentView(ctx context.Context, studentID int, id uuid.UUID) (*model.Session, error) {
	ok, err := s.sessionRepo.IsEnrolled(ctx, id, studentID)
	if err != nil {
		return nil, fmt.Errorf("check enrollment: %w", err)
	}
	if !ok {
		return nil, ErrNotEnrolled
	}
	return s.Tree(ctx, id)
}

// ----------------------------------------------------------------
// Tree cache
// ----------------------------------------------------------------

// Tree returns the full question tree of a session, served from Redis when cached.
func (s *SessionService) Tree(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	key := config.CacheKey.SessionTreeKey(id.String())

	raw, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var tree model.Session
		if err := json.Unmarshal(raw, &tree); err == nil {
			return &tree, nil
		}
		s.log.Warn().Str("session_id", id.String()).Msg("Discarding undecodable cached tree")
	} else if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Msg("Tree cache read failed, loading from database")
	}

	tree, err := s.sessionRepo.LoadTree(ctx, id)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load tree: %w", err)
	}

	if buf, err := json.Marshal(tree); err == nil {
		if err := s.rdb.Set(ctx, key, buf, s.ttl).Err(); err != nil {
			s.log.Warn().Err(err).Msg("Tree cache write failed")
		}
	}
	return tree, nil
}

// Invalidate drops the cached tree of a session. Every mutation calls it.
func (s *SessionService) Invalidate(ctx context.Context, id uuid.UUID) {
	if err := s.rdb.Del(ctx, config.CacheKey.SessionTreeKey(id.String())).Err(); err != nil {
		s.log.Warn().Err(err).Str("session_id", id.String()).Msg("Tree cache invalidation failed")
	}
}

// CanWatch checks that the actor may follow a session's live counts: the
// owning teacher, an admin, or an enrolled student.
func (s *SessionService) CanWatch(ctx context.Context, actor Actor, id uuid.UUID) error {
	if actor.Role.AtLeast(model.RoleTeacher) {
		return s.Authorize(ctx, actor, id)
	}
	ok, err := s.sessionRepo.IsEnrolled(ctx, id, actor.ID)
	if err != nil {
		return fmt.Errorf("check enrollment: %w", err)
	}
	if !ok {
		return ErrNotEnrolled
	}
	return nil
}
