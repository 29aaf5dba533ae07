package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/classpoll/internal/config"
	"github.com/stemsi/classpoll/internal/model"
	"github.com/stemsi/classpoll/internal/repository"
)

// CountsService reads live option counts and fans them out over Redis PubSub.
type CountsService struct {
	responseRepo *repository.ResponseRepository
	rdb          *redis.Client
	log          zerolog.Logger
}

// NewCountsService creates a new CountsService.
func NewCountsService(responseRepo *repository.ResponseRepository, rdb *redis.Client, log zerolog.Logger) *CountsService {
	return &CountsService{
		responseRepo: responseRepo,
		rdb:          rdb,
		log:          log.With().Str("component", "counts_service").Logger(),
	}
}

// Snapshot returns the current counts of a session.
func (s *CountsService) Snapshot(ctx context.Context, sessionID uuid.UUID) (model.CountsEvent, error) {
	counts, err := s.responseRepo.Counts(ctx, sessionID)
	if err != nil {
		return model.CountsEvent{}, fmt.Errorf("read counts: %w", err)
	}
	return model.CountsEvent{SessionID: sessionID, Counts: counts}, nil
}

// Publish broadcasts the current counts of a session. Failures are logged;
// live viewers catch up on the next publish.
func (s *CountsService) Publish(ctx context.Context, sessionID uuid.UUID) {
	ev, err := s.Snapshot(ctx, sessionID)
	if err != nil {
		s.log.Error().Err(err).Str("session_id", sessionID.String()).Msg("Failed to read counts")
		return
	}
	buf, err := json.Marshal(ev)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to encode counts")
		return
	}
	if err := s.rdb.Publish(ctx, config.CacheKey.SessionCountsChannel(sessionID.String()), buf).Err(); err != nil {
		s.log.Error().Err(err).Str("session_id", sessionID.String()).Msg("Failed to publish counts")
	}
}

// Subscribe opens a PubSub subscription to a session's counts channel and
// returns once Redis has confirmed it, so anything published afterwards is
// delivered. The caller closes it.
func (s *CountsService) Subscribe(ctx context.Context, sessionID uuid.UUID) (*redis.PubSub, error) {
	sub := s.rdb.Subscribe(ctx, config.CacheKey.SessionCountsChannel(sessionID.String()))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe counts: %w", err)
	}
	return sub, nil
}
