package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	ws "github.com/stemsi/classpoll/internal/websocket"
)

const pingInterval = 30 * time.Second

// LiveFeed streams the response counts of one session.
type LiveFeed struct {
	url    string
	header http.Header
	dialer *websocket.Dialer
	log    zerolog.Logger
}

// NewLiveFeed builds a feed for the session from an http(s) API base URL.
func NewLiveFeed(baseURL, token string, sessionID uuid.UUID, log zerolog.Logger) (*LiveFeed, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported api url scheme %q", u.Scheme)
	}
	u.Path += apiPrefix + "/sessions/" + sessionID.String() + "/live"

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return &LiveFeed{
		url:    u.String(),
		header: header,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:    log.With().Str("component", "live_feed").Str("session_id", sessionID.String()).Logger(),
	}, nil
}

// Run connects and calls onCounts for every counts message until ctx is
// cancelled, which returns nil, or the connection fails.
func (f *LiveFeed) Run(ctx context.Context, onCounts func(map[uuid.UUID]int)) error {
	conn, resp, err := f.dialer.DialContext(ctx, f.url, f.header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial live feed: %w (status %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("dial live feed: %w", err)
	}
	defer conn.Close()
	f.log.Info().Msg("live feed connected")

	done := make(chan struct{})
	defer close(done)
	go f.keepalive(ctx, conn, done)

	for {
		var raw json.RawMessage
		if err := ws.ReadJSON(conn, &raw); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read live feed: %w", err)
		}

		var head struct {
			Event ws.Event `json:"event"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			f.log.Warn().Err(err).Msg("malformed live message")
			continue
		}

		switch head.Event {
		case ws.EventCounts:
			var msg ws.CountsMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				f.log.Warn().Err(err).Msg("malformed counts message")
				continue
			}
			onCounts(ws.CountsMap(msg))
		case ws.EventError:
			var msg ws.ErrorResponse
			_ = json.Unmarshal(raw, &msg)
			return errors.New("live feed: " + msg.Error)
		case ws.EventPong:
		default:
			f.log.Debug().Str("event", string(head.Event)).Msg("ignoring live event")
		}
	}
}

// keepalive pings the server and closes the connection when ctx ends.
func (f *LiveFeed) keepalive(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			conn.Close()
			return
		case <-ticker.C:
			if err := ws.WriteTyped(conn, ws.RequestEnvelope{Action: ws.ActionPing}); err != nil {
				f.log.Debug().Err(err).Msg("ping failed")
				return
			}
		}
	}
}
