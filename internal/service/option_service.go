package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/classpoll/internal/database"
	"github.com/stemsi/classpoll/internal/guard"
	"github.com/stemsi/classpoll/internal/model"
	"github.com/stemsi/classpoll/internal/repository"
)

// OptionService handles the options of a question. It shares the question
// service's transaction plumbing.
type OptionService struct {
	q   *QuestionService
	log zerolog.Logger
}

// NewOptionService creates a new OptionService.
func NewOptionService(questions *QuestionService, log zerolog.Logger) *OptionService {
	return &OptionService{
		q:   questions,
		log: log.With().Str("component", "option_service").Logger(),
	}
}

// lockOption resolves an option's parents, then locks the session and checks ownership.
func lockOption(ctx context.Context, r txRepos, actor Actor, optionID uuid.UUID) (repository.Owner, error) {
	owner, err := r.options.OwnerOf(ctx, optionID)
	if err != nil {
		if database.IsNotFound(err) {
			return owner, ErrNotFound
		}
		return owner, fmt.Errorf("get option owner: %w", err)
	}
	return owner, lockSession(ctx, r.sessions, actor, owner.SessionID)
}

// Create appends an option to a question.
func (s *OptionService) Create(ctx context.Context, actor Actor, questionID uuid.UUID, title string) (*model.Option, error) {
	var (
		out   *model.Option
		owner repository.Owner
	)
	err := database.WithTx(ctx, s.q.pool, func(tx pgx.Tx) error {
		r := s.q.bind(tx)
		var err error
		if owner, err = lockQuestion(ctx, r, actor, questionID); err != nil {
			return err
		}
		order, err := r.options.NextOrder(ctx, questionID)
		if err != nil {
			return fmt.Errorf("next order: %w", err)
		}
		out = &model.Option{QuestionID: questionID, Order: order, Title: title}
		if err := r.options.Create(ctx, out); err != nil {
			return fmt.Errorf("create option: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.q.afterWrite(ctx, owner.SessionID)
	return out, nil
}

// Duplicate appends a copy of an option to the same question. Responses are not copied.
func (s *OptionService) Duplicate(ctx context.Context, actor Actor, optionID uuid.UUID) (*model.Option, error) {
	var (
		out   *model.Option
		owner repository.Owner
	)
	err := database.WithTx(ctx, s.q.pool, func(tx pgx.Tx) error {
		r := s.q.bind(tx)
		var err error
		if owner, err = lockOption(ctx, r, actor, optionID); err != nil {
			return err
		}
		src, err := r.options.GetByID(ctx, optionID)
		if err != nil {
			return fmt.Errorf("get option: %w", err)
		}
		order, err := r.options.NextOrder(ctx, src.QuestionID)
		if err != nil {
			return fmt.Errorf("next order: %w", err)
		}
		out = &model.Option{
			QuestionID:  src.QuestionID,
			Order:       order,
			Title:       src.Title,
			RewardPoint: src.RewardPoint,
			Effect:      src.Effect,
		}
		if err := r.options.Create(ctx, out); err != nil {
			return fmt.Errorf("create option: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.q.afterWrite(ctx, owner.SessionID)
	return out, nil
}

// UpdateField applies a single title, reward point or effect edit.
func (s *OptionService) UpdateField(ctx context.Context, actor Actor, optionID uuid.UUID, field string, raw json.RawMessage) error {
	value, err := decodeOptionField(model.OptionField(field), raw)
	if err != nil {
		return err
	}

	var owner repository.Owner
	err = database.WithTx(ctx, s.q.pool, func(tx pgx.Tx) error {
		r := s.q.bind(tx)
		var err error
		if owner, err = lockOption(ctx, r, actor, optionID); err != nil {
			return err
		}
		return r.options.UpdateField(ctx, optionID, model.OptionField(field), value)
	})
	if err != nil {
		return err
	}
	s.q.sessions.Invalidate(ctx, owner.SessionID)
	return nil
}

// Reorder applies a batched order payload that must name every option of the question.
func (s *OptionService) Reorder(ctx context.Context, actor Actor, questionID uuid.UUID, items []model.OrderItem) ([]model.OrderItem, error) {
	var (
		out   []model.OrderItem
		owner repository.Owner
	)
	err := database.WithTx(ctx, s.q.pool, func(tx pgx.Tx) error {
		r := s.q.bind(tx)
		var err error
		if owner, err = lockQuestion(ctx, r, actor, questionID); err != nil {
			return err
		}
		current, err := r.options.SiblingIDs(ctx, questionID)
		if err != nil {
			return fmt.Errorf("list options: %w", err)
		}
		out, err = guard.NormalizeOrder(current, items)
		if err != nil {
			return err
		}
		return r.options.ApplyOrder(ctx, out)
	})
	if err != nil {
		return nil, err
	}
	s.q.sessions.Invalidate(ctx, owner.SessionID)
	return out, nil
}

// Delete removes a non-default option. Responses on it move to the question's
// default option, then the remaining orders are repacked.
func (s *OptionService) Delete(ctx context.Context, actor Actor, optionID uuid.UUID) error {
	var owner repository.Owner
	err := database.WithTx(ctx, s.q.pool, func(tx pgx.Tx) error {
		r := s.q.bind(tx)
		var err error
		if owner, err = lockOption(ctx, r, actor, optionID); err != nil {
			return err
		}
		q, err := r.questions.GetWithOptions(ctx, owner.QuestionID)
		if err != nil {
			return fmt.Errorf("get question: %w", err)
		}
		if err := guard.CheckOptionDeletion(q.DefaultOptionID, optionID); err != nil {
			return err
		}

		if q.DefaultOptionID != nil {
			if _, err := r.responses.Reassign(ctx, optionID, *q.DefaultOptionID); err != nil {
				return fmt.Errorf("reassign responses: %w", err)
			}
		}
		if _, err := r.options.Delete(ctx, optionID); err != nil {
			return fmt.Errorf("delete option: %w", err)
		}
		rest, err := r.options.SiblingIDs(ctx, owner.QuestionID)
		if err != nil {
			return fmt.Errorf("list options: %w", err)
		}
		if err := r.options.ApplyOrder(ctx, guard.Repack(rest)); err != nil {
			return fmt.Errorf("repack options: %w", err)
		}
		return r.responses.Recount(ctx, []uuid.UUID{owner.QuestionID})
	})
	if err != nil {
		return err
	}

	s.q.afterWrite(ctx, owner.SessionID)
	s.log.Info().Str("option_id", optionID.String()).Msg("Option deleted")
	return nil
}
