package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stemsi/classpoll/internal/database"
	"github.com/stemsi/classpoll/internal/guard"
	"github.com/stemsi/classpoll/internal/model"
	"github.com/stemsi/classpoll/internal/repository"
)

// QuestionService handles questions. Every sibling mutation locks the parent
// session row so concurrent writers see dense orders.
type QuestionService struct {
	pool         *pgxpool.Pool
	sessionRepo  *repository.SessionRepository
	questionRepo *repository.QuestionRepository
	optionRepo   *repository.OptionRepository
	responseRepo *repository.ResponseRepository
	sessions     *SessionService
	counts       *CountsService
	log          zerolog.Logger
}

// NewQuestionService creates a new QuestionService.
func NewQuestionService(
	pool *pgxpool.Pool,
	sessionRepo *repository.SessionRepository,
	questionRepo *repository.QuestionRepository,
	optionRepo *repository.OptionRepository,
	responseRepo *repository.ResponseRepository,
	sessions *SessionService,
	counts *CountsService,
	log zerolog.Logger,
) *QuestionService {
	return &QuestionService{
		pool:         pool,
		sessionRepo:  sessionRepo,
		questionRepo: questionRepo,
		optionRepo:   optionRepo,
		responseRepo: responseRepo,
		sessions:     sessions,
		counts:       counts,
		log:          log.With().Str("component", "question_service").Logger(),
	}
}

// txRepos groups the repositories bound to one transaction.
type txRepos struct {
	sessions  *repository.SessionRepository
	questions *repository.QuestionRepository
	options   *repository.OptionRepository
	responses *repository.ResponseRepository
}

func (s *QuestionService) bind(tx pgx.Tx) txRepos {
	return txRepos{
		sessions:  s.sessionRepo.WithTx(tx),
		questions: s.questionRepo.WithTx(tx),
		options:   s.optionRepo.WithTx(tx),
		responses: s.responseRepo.WithTx(tx),
	}
}

// lockSession locks the session row and checks ownership.
func lockSession(ctx context.Context, repo *repository.SessionRepository, actor Actor, sessionID uuid.UUID) error {
	sess, err := repo.LockByID(ctx, sessionID)
	if err != nil {
		if database.IsNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("lock session: %w", err)
	}
	if !actor.owns(sess.TeacherID) {
		return ErrNotSessionOwner
	}
	return nil
}

// lockQuestion resolves a question's session, then locks it and checks ownership.
func lockQuestion(ctx context.Context, r txRepos, actor Actor, questionID uuid.UUID) (repository.Owner, error) {
	owner, err := r.questions.OwnerOf(ctx, questionID)
	if err != nil {
		if database.IsNotFound(err) {
			return owner, ErrNotFound
		}
		return owner, fmt.Errorf("get question owner: %w", err)
	}
	return owner, lockSession(ctx, r.sessions, actor, owner.SessionID)
}

// Create appends a question with one default option named 選択肢1 and gives
// every enrolled student a response pointing at it, in one transaction.
func (s *QuestionService) Create(ctx context.Context, actor Actor, sessionID uuid.UUID, title string) (*model.Question, error) {
	if title == "" {
		title = model.DefaultQuestionTitle
	}

	var out *model.Question
	err := database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		r := s.bind(tx)
		if err := lockSession(ctx, r.sessions, actor, sessionID); err != nil {
			return err
		}

		order, err := r.questions.NextOrder(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("next order: %w", err)
		}
		q := &model.Question{SessionID: sessionID, Order: order, Title: title}
		if err := r.questions.Create(ctx, q); err != nil {
			return fmt.Errorf("create question: %w", err)
		}

		opt := &model.Option{QuestionID: q.ID, Order: 1, Title: model.DefaultOptionTitle}
		if err := r.options.Create(ctx, opt); err != nil {
			return fmt.Errorf("create default option: %w", err)
		}
		if err := r.questions.SetDefaultOption(ctx, q.ID, opt.ID); err != nil {
			return fmt.Errorf("set default option: %w", err)
		}

		if err := seedAtDefault(ctx, r, sessionID, q.ID, opt.ID); err != nil {
			return err
		}

		out, err = r.questions.GetWithOptions(ctx, q.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.afterWrite(ctx, sessionID)
	s.log.Info().Str("question_id", out.ID.String()).Str("session_id", sessionID.String()).Msg("Question created")
	return out, nil
}

// Duplicate appends a copy of a question with copies of its options. The
// copy's default maps to the copy of the source default, and responses are
// seeded there.
func (s *QuestionService) Duplicate(ctx context.Context, actor Actor, questionID uuid.UUID) (*model.Question, error) {
	var (
		out   *model.Question
		owner repository.Owner
	)
	err := database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		r := s.bind(tx)
		var err error
		if owner, err = lockQuestion(ctx, r, actor, questionID); err != nil {
			return err
		}

		src, err := r.questions.GetWithOptions(ctx, questionID)
		if err != nil {
			return fmt.Errorf("get question: %w", err)
		}
		order, err := r.questions.NextOrder(ctx, src.SessionID)
		if err != nil {
			return fmt.Errorf("next order: %w", err)
		}
		q := &model.Question{SessionID: src.SessionID, Order: order, Title: src.Title}
		if err := r.questions.Create(ctx, q); err != nil {
			return fmt.Errorf("create question: %w", err)
		}

		copies := make([]*model.Option, len(src.Options))
		var defaultID uuid.UUID
		for i, o := range src.Options {
			copies[i] = &model.Option{
				ID:          uuid.New(),
				QuestionID:  q.ID,
				Order:       i + 1,
				Title:       o.Title,
				RewardPoint: o.RewardPoint,
				Effect:      o.Effect,
			}
			if src.IsDefault(o.ID) || (i == 0 && src.DefaultOptionID == nil) {
				defaultID = copies[i].ID
			}
		}
		if _, err := r.options.CreateMany(ctx, copies); err != nil {
			return fmt.Errorf("copy options: %w", err)
		}
		if defaultID != uuid.Nil {
			if err := r.questions.SetDefaultOption(ctx, q.ID, defaultID); err != nil {
				return fmt.Errorf("set default option: %w", err)
			}
			if err := seedAtDefault(ctx, r, src.SessionID, q.ID, defaultID); err != nil {
				return err
			}
		}

		out, err = r.questions.GetWithOptions(ctx, q.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.afterWrite(ctx, owner.SessionID)
	return out, nil
}

// UpdateField applies a single title or default option edit.
func (s *QuestionService) UpdateField(ctx context.Context, actor Actor, questionID uuid.UUID, field string, raw json.RawMessage) error {
	var owner repository.Owner
	err := database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		r := s.bind(tx)
		var err error
		if owner, err = lockQuestion(ctx, r, actor, questionID); err != nil {
			return err
		}

		switch model.QuestionField(field) {
		case model.QuestionFieldTitle:
			title, err := decodeField[string](field, raw, titleRule)
			if err != nil {
				return err
			}
			return r.questions.UpdateTitle(ctx, questionID, title)

		case model.QuestionFieldDefaultOption:
			optionID, err := decodeField[uuid.UUID](field, raw, "")
			if err != nil {
				return err
			}
			q, err := r.questions.GetWithOptions(ctx, questionID)
			if err != nil {
				return fmt.Errorf("get question: %w", err)
			}
			if err := guard.CheckDefaultOption(q, optionID); err != nil {
				return err
			}
			return r.questions.SetDefaultOption(ctx, questionID, optionID)

		default:
			return fmt.Errorf("%w: %q", ErrUnknownField, field)
		}
	})
	if err != nil {
		return err
	}
	s.sessions.Invalidate(ctx, owner.SessionID)
	return nil
}

// Reorder applies a batched order payload that must name every question of
// the session. The stored order is always dense.
func (s *QuestionService) Reorder(ctx context.Context, actor Actor, sessionID uuid.UUID, items []model.OrderItem) ([]model.OrderItem, error) {
	var out []model.OrderItem
	err := database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		r := s.bind(tx)
		if err := lockSession(ctx, r.sessions, actor, sessionID); err != nil {
			return err
		}
		current, err := r.questions.SiblingIDs(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("list questions: %w", err)
		}
		out, err = guard.NormalizeOrder(current, items)
		if err != nil {
			return err
		}
		return r.questions.ApplyOrder(ctx, out)
	})
	if err != nil {
		return nil, err
	}
	s.sessions.Invalidate(ctx, sessionID)
	return out, nil
}

// Delete removes a question and repacks the remaining orders.
func (s *QuestionService) Delete(ctx context.Context, actor Actor, questionID uuid.UUID) error {
	var owner repository.Owner
	err := database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		r := s.bind(tx)
		var err error
		if owner, err = lockQuestion(ctx, r, actor, questionID); err != nil {
			return err
		}
		if _, err := r.questions.Delete(ctx, questionID); err != nil {
			return fmt.Errorf("delete question: %w", err)
		}
		rest, err := r.questions.SiblingIDs(ctx, owner.SessionID)
		if err != nil {
			return fmt.Errorf("list questions: %w", err)
		}
		return r.questions.ApplyOrder(ctx, guard.Repack(rest))
	})
	if err != nil {
		return err
	}

	s.afterWrite(ctx, owner.SessionID)
	s.log.Info().Str("question_id", questionID.String()).Msg("Question deleted")
	return nil
}

// afterWrite drops the cached tree and pushes fresh counts to live viewers.
func (s *QuestionService) afterWrite(ctx context.Context, sessionID uuid.UUID) {
	s.sessions.Invalidate(ctx, sessionID)
	s.counts.Publish(ctx, sessionID)
}

// seedAtDefault gives every enrolled student a response at optionID and sets
// the option's count accordingly.
func seedAtDefault(ctx context.Context, r txRepos, sessionID, questionID, optionID uuid.UUID) error {
	if _, err := r.responses.SeedForQuestion(ctx, sessionID, questionID, optionID); err != nil {
		return fmt.Errorf("seed responses: %w", err)
	}
	if err := r.responses.Recount(ctx, []uuid.UUID{questionID}); err != nil {
		return fmt.Errorf("recount: %w", err)
	}
	return nil
}
