package websocket

import (
	"github.com/google/uuid"
	"github.com/stemsi/classpoll/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionPing Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError  Event = "error"
	EventCounts Event = "counts"
	EventPong   Event = "pong"
)

// CountsMessage carries the current response count of every option of a session.
// It is sent once on connect and again whenever a response changes.
type CountsMessage struct {
	Event     Event               `json:"event"`
	SessionID uuid.UUID           `json:"session_id"`
	Counts    []model.OptionCount `json:"counts"`
}

// NewCountsMessage wraps a published counts event for the wire.
func NewCountsMessage(ev model.CountsEvent) CountsMessage {
	return CountsMessage{Event: EventCounts, SessionID: ev.SessionID, Counts: ev.Counts}
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
