package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/classpoll/internal/config"
	"github.com/stemsi/classpoll/internal/database"
	"github.com/stemsi/classpoll/internal/model"
	"github.com/stemsi/classpoll/internal/repository"
)

// ErrOptionMismatch is returned when a response names an option of another question.
var ErrOptionMismatch = errors.New("option does not belong to the question")

// ResponsePayload is the queue entry persisted by the response worker.
type ResponsePayload struct {
	StudentID  int       `json:"student_id"`
	SessionID  uuid.UUID `json:"session_id"`
	QuestionID uuid.UUID `json:"question_id"`
	OptionID   uuid.UUID `json:"option_id"`
	At         time.Time `json:"at"`
}

// ResponseService accepts student responses into the Redis fast lane.
type ResponseService struct {
	sessionRepo  *repository.SessionRepository
	optionRepo   *repository.OptionRepository
	responseRepo *repository.ResponseRepository
	rdb          *redis.Client
	log          zerolog.Logger
}

// NewResponseService creates a new ResponseService.
func NewResponseService(
	sessionRepo *repository.SessionRepository,
	optionRepo *repository.OptionRepository,
	responseRepo *repository.ResponseRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *ResponseService {
	return &ResponseService{
		sessionRepo:  sessionRepo,
		optionRepo:   optionRepo,
		responseRepo: responseRepo,
		rdb:          rdb,
		log:          log.With().Str("component", "response_service").Logger(),
	}
}

// Submit records a student's choice for a question. The latest choice is kept
// in Redis immediately and persisted by the response worker.
func (s *ResponseService) Submit(ctx context.Context, studentID int, questionID, optionID uuid.UUID) (*model.Response, error) {
	owner, err := s.optionRepo.OwnerOf(ctx, optionID)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get option owner: %w", err)
	}
	if owner.QuestionID != questionID {
		return nil, ErrOptionMismatch
	}

	sess, err := s.sessionRepo.GetByID(ctx, owner.SessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if !sess.IsActive {
		return nil, ErrSessionInactive
	}
	ok, err := s.sessionRepo.IsEnrolled(ctx, sess.ID, studentID)
	if err != nil {
		return nil, fmt.Errorf("check enrollment: %w", err)
	}
	if !ok {
		return nil, ErrNotEnrolled
	}

	p := ResponsePayload{
		StudentID:  studentID,
		SessionID:  sess.ID,
		QuestionID: questionID,
		OptionID:   optionID,
		At:         time.Now().UTC(),
	}
	buf, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}

	sid := sess.ID.String()
	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, config.CacheKey.SessionResponsesKey(sid),
		config.CacheKey.ResponseField(studentID, questionID.String()), optionID.String())
	pipe.RPush(ctx, config.WorkerKey.PersistResponsesQueue, buf)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("queue response: %w", err)
	}

	s.log.Debug().
		Int("student_id", studentID).
		Str("question_id", questionID.String()).
		Str("option_id", optionID.String()).
		Msg("Response queued")

	return &model.Response{
		StudentID:  studentID,
		QuestionID: questionID,
		OptionID:   optionID,
		UpdatedAt:  p.At,
	}, nil
}

// Latest returns the student's current choice per question of a session.
// Persisted responses (including the ones seeded at default options) are
// overlaid with choices still waiting in the queue.
func (s *ResponseService) Latest(ctx context.Context, studentID int, sessionID uuid.UUID) (map[uuid.UUID]uuid.UUID, error) {
	persisted, err := s.responseRepo.ListByStudent(ctx, sessionID, studentID)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	queued, err := s.rdb.HGetAll(ctx, config.CacheKey.SessionResponsesKey(sessionID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("read queued responses: %w", err)
	}
	parents, err := s.optionRepo.ParentsInSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list options: %w", err)
	}
	return mergeLatest(studentID, persisted, queued, parents), nil
}

// mergeLatest overlays queued choices on the persisted ones. A queued choice
// only counts while its question still has a persisted response and its
// option still belongs to that question; entries left behind by a deleted
// option or question are ignored.
func mergeLatest(studentID int, persisted []model.Response, queued map[string]string, parents map[uuid.UUID]uuid.UUID) map[uuid.UUID]uuid.UUID {
	out := make(map[uuid.UUID]uuid.UUID, len(persisted))
	for _, rs := range persisted {
		out[rs.QuestionID] = rs.OptionID
	}

	prefix := fmt.Sprintf("%d:", studentID)
	for field, value := range queued {
		rest, ok := strings.CutPrefix(field, prefix)
		if !ok {
			continue
		}
		qid, err := uuid.Parse(rest)
		if err != nil {
			continue
		}
		oid, err := uuid.Parse(value)
		if err != nil {
			continue
		}
		if _, ok := out[qid]; !ok || parents[oid] != qid {
			continue
		}
		out[qid] = oid
	}
	return out
}
