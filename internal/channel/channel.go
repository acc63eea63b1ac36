// internal/channel/channel.go

// Package channel abstracts the per-session pub/sub topic every peer
// subscribes to. The transport delivers JSON events at-least-once, with no
// ordering between publishers and nothing for subscribers that joined after
// a message was sent; the session layer is built to tolerate exactly that.
package channel

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/parlor-games/parlor/internal/turn"
)

// EventType enumerates the session wire events.
type EventType string

const (
	// EventInitState carries the host's full serialized state; bootstrap and resync.
	EventInitState EventType = "init_state"
	// EventRequestState asks the host to resend init_state.
	EventRequestState EventType = "request_state"
	// EventMove proposes a move (guest, no State) or confirms one (host, with State).
	EventMove EventType = "move"
	// EventNewGame restarts play within the same lobby.
	EventNewGame EventType = "new_game"
	// EventGameOver announces the terminal state and winner.
	EventGameOver EventType = "game_over"
)

// Event is the JSON payload exchanged on a session topic.
type Event struct {
	Type   EventType              `json:"type"`
	Actor  uuid.UUID              `json:"actor,omitempty"`
	Move   map[string]interface{} `json:"move,omitempty"`
	Effect turn.Effect            `json:"effect,omitempty"`
	State  json.RawMessage        `json:"state,omitempty"`
	Cursor *turn.Cursor           `json:"cursor,omitempty"`
	Seed   int64                  `json:"seed,omitempty"`
	Winner int                    `json:"winner,omitempty"`
}

// Confirmed reports whether a move event carries the host's resulting
// state, i.e. is authoritative rather than a proposal.
func (e Event) Confirmed() bool {
	return e.Type == EventMove && len(e.State) > 0
}

// Channel is one peer's subscription to a session topic. Publish is
// fire-and-forget; Events yields everything published on the topic,
// including the peer's own messages, until Close.
type Channel interface {
	Publish(ctx context.Context, ev Event) error
	Events() <-chan Event
	Close() error
}

// TopicFor names the pub/sub topic for a lobby's session.
func TopicFor(lobbyID uuid.UUID) string {
	return "session:" + lobbyID.String()
}
