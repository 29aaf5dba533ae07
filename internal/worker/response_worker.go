package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/classpoll/internal/config"
	"github.com/stemsi/classpoll/internal/database"
	"github.com/stemsi/classpoll/internal/model"
	"github.com/stemsi/classpoll/internal/repository"
	"github.com/stemsi/classpoll/internal/service"
)

const (
	ResponseBatchTimeout = 500 * time.Millisecond
	ResponsePollTimeout  = 250 * time.Millisecond
)

// ResponseWorker consumes persist_responses_queue, bulk-upserts responses,
// recomputes the affected counts and publishes them to live viewers.
type ResponseWorker struct {
	responseRepo *repository.ResponseRepository
	sessions     *service.SessionService
	counts       *service.CountsService
	rdb          *redis.Client
	batchSize    int
	log          zerolog.Logger
}

// NewResponseWorker creates a new ResponseWorker.
func NewResponseWorker(
	responseRepo *repository.ResponseRepository,
	sessions *service.SessionService,
	counts *service.CountsService,
	rdb *redis.Client,
	batchSize int,
	log zerolog.Logger,
) *ResponseWorker {
	if batchSize < 1 {
		batchSize = 100
	}
	return &ResponseWorker{
		responseRepo: responseRepo,
		sessions:     sessions,
		counts:       counts,
		rdb:          rdb,
		batchSize:    batchSize,
		log:          log.With().Str("component", "response_worker").Logger(),
	}
}

// Start begins the worker loop. Call in a goroutine.
func (w *ResponseWorker) Start(ctx context.Context) {
	w.log.Info().Int("batch_size", w.batchSize).Msg("ResponseWorker started")

	batch := make([]service.ResponsePayload, 0, w.batchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= w.batchSize || time.Since(lastFlush) >= ResponseBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, ResponsePollTimeout, config.WorkerKey.PersistResponsesQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var p service.ResponsePayload
			if err := json.Unmarshal([]byte(item[1]), &p); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, p)
		}
	}
}

func (w *ResponseWorker) flushSafe(ctx context.Context, batch []service.ResponsePayload) {
	if len(batch) == 0 {
		return
	}

	latest := coalesce(batch)
	rows := toResponses(latest)

	if err := w.responseRepo.UpsertMany(ctx, rows); err != nil {
		w.log.Warn().Err(err).Msg("bulk response upsert failed, using fallback")

		for i, rs := range rows {
			err := w.responseRepo.Upsert(ctx, rs)
			switch {
			case err == nil:
			case database.IsForeignKeyViolation(err):
				// The question or option was deleted after the student answered.
				w.log.Warn().Err(err).Int("student_id", rs.StudentID).Msg("Dropping response to deleted entity")
			default:
				w.log.Error().Err(err).Msg("Upsert failed, requeueing")
				raw, _ := json.Marshal(latest[i])
				w.rdb.RPush(ctx, config.WorkerKey.PersistResponsesQueue, raw)
			}
		}
	}

	questions, sessions := touched(latest)
	if err := w.responseRepo.Recount(ctx, questions); err != nil {
		w.log.Error().Err(err).Msg("Recount failed")
		return
	}
	for _, sid := range sessions {
		w.sessions.Invalidate(ctx, sid)
		w.counts.Publish(ctx, sid)
	}

	w.log.Debug().Int("received", len(batch)).Int("persisted", len(rows)).Msg("Batch flushed")
}

// coalesce keeps the newest payload per (student, question), preserving first-seen order.
// A bulk upsert cannot touch the same row twice.
func coalesce(batch []service.ResponsePayload) []service.ResponsePayload {
	type key struct {
		student  int
		question uuid.UUID
	}
	index := make(map[key]int, len(batch))
	out := make([]service.ResponsePayload, 0, len(batch))
	for _, p := range batch {
		k := key{p.StudentID, p.QuestionID}
		if i, ok := index[k]; ok {
			if !p.At.Before(out[i].At) {
				out[i] = p
			}
			continue
		}
		index[k] = len(out)
		out = append(out, p)
	}
	return out
}

func toResponses(batch []service.ResponsePayload) []model.Response {
	rows := make([]model.Response, len(batch))
	for i, p := range batch {
		rows[i] = model.Response{
			StudentID:  p.StudentID,
			QuestionID: p.QuestionID,
			OptionID:   p.OptionID,
			UpdatedAt:  p.At,
		}
	}
	return rows
}

// touched returns the distinct question and session IDs of a batch in first-seen order.
func touched(batch []service.ResponsePayload) (questions, sessions []uuid.UUID) {
	seenQ := make(map[uuid.UUID]bool)
	seenS := make(map[uuid.UUID]bool)
	for _, p := range batch {
		if !seenQ[p.QuestionID] {
			seenQ[p.QuestionID] = true
			questions = append(questions, p.QuestionID)
		}
		if !seenS[p.SessionID] {
			seenS[p.SessionID] = true
			sessions = append(sessions, p.SessionID)
		}
	}
	return questions, sessions
}
