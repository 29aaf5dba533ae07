package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/classpoll/internal/middleware"
	"github.com/stemsi/classpoll/internal/model"
	"github.com/stemsi/classpoll/internal/service"
	ws "github.com/stemsi/classpoll/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// Watchers is the part of service.SessionService the live feed uses.
type Watchers interface {
	CanWatch(ctx context.Context, actor service.Actor, id uuid.UUID) error
}

// CountsFeed is the part of service.CountsService the live feed uses.
type CountsFeed interface {
	Snapshot(ctx context.Context, sessionID uuid.UUID) (model.CountsEvent, error)
	Subscribe(ctx context.Context, sessionID uuid.UUID) (*redis.PubSub, error)
}

// WSHandler streams live response counts of a session.
type WSHandler struct {
	sessions Watchers
	counts   CountsFeed
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessions Watchers, counts CountsFeed, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessions: sessions,
		counts:   counts,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// LiveCounts godoc
// WS /api/v1/sessions/:id/live
// Sends the current counts on connect, then every change. Clients may send
// {"action":"ping"} to keep the connection open.
func (h *WSHandler) LiveCounts(c *gin.Context) {
	sessionID, ok := paramID(c, "id")
	if !ok {
		return
	}
	actor := middleware.GetActor(c)
	if err := h.sessions.CanWatch(c.Request.Context(), actor, sessionID); err != nil {
		failWith(c, h.log, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Int("user_id", actor.ID).
		Str("session_id", sessionID.String()).
		Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Subscribe (confirmed) before the snapshot so no change between the two is lost.
	sub, err := h.counts.Subscribe(ctx, sessionID)
	if err != nil {
		wsLog.Error().Err(err).Msg("Counts subscription failed")
		ws.WriteError(conn, "counts unavailable")
		return
	}
	defer sub.Close()

	snap, err := h.counts.Snapshot(ctx, sessionID)
	if err != nil {
		wsLog.Error().Err(err).Msg("Initial counts failed")
		ws.WriteError(conn, "counts unavailable")
		return
	}
	if err := ws.WriteTyped(conn, ws.NewCountsMessage(snap)); err != nil {
		return
	}

	wsLog.Info().Msg("Viewer connected")

	// gorilla/websocket allows one concurrent writer; the reader hands pongs
	// to the writer loop instead of writing itself.
	pings := make(chan struct{}, 1)
	go h.readLoop(conn, wsLog, pings, cancel)

	feed := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			wsLog.Debug().Msg("Viewer disconnected")
			return
		case <-pings:
			if err := ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong}); err != nil {
				return
			}
		case msg, ok := <-feed:
			if !ok {
				return
			}
			var ev model.CountsEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				wsLog.Warn().Err(err).Msg("Dropping undecodable counts event")
				continue
			}
			if err := ws.WriteTyped(conn, ws.NewCountsMessage(ev)); err != nil {
				return
			}
		}
	}
}

// readLoop consumes client frames until the connection closes, then cancels ctx.
func (h *WSHandler) readLoop(conn *websocket.Conn, log zerolog.Logger, pings chan<- struct{}, cancel context.CancelFunc) {
	defer cancel()
	for {
		var msg ws.RequestEnvelope
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("Unexpected close")
			}
			return
		}
		switch msg.Action {
		case ws.ActionPing:
			select {
			case pings <- struct{}{}:
			default:
			}
		default:
			log.Debug().Str("action", string(msg.Action)).Msg("Ignoring unknown action")
		}
	}
}
