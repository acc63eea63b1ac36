// internal/session/game.go

// Package session holds the host-authoritative state synchronizer and the
// narrow contracts every game plugs into it: Game for move application and
// serialization, MoveSource for anything that can produce the next move.
package session

import (
	"context"
	"encoding/json"

	"github.com/parlor-games/parlor/internal/turn"
)

// Game is the per-game policy behind the synchronizer. The session layer
// never inspects game internals; it applies moves, snapshots the whole
// state for broadcast, and restores snapshots wholesale on guests.
type Game interface {
	// Apply validates and applies a move for the given seat, returning the
	// turn effect the move declares.
	Apply(seat int, mv map[string]interface{}) (turn.Effect, error)
	// Snapshot serializes the entire state.
	Snapshot() (json.RawMessage, error)
	// Restore replaces the entire state from a snapshot. Restoring the same
	// snapshot twice must be a no-op.
	Restore(data json.RawMessage) error
	// Over reports whether play has reached a terminal state.
	Over() bool
	// Winner returns the winning seat, or -1 for none/draw.
	Winner() int
	// Reset reinitializes the state for a new game.
	Reset(seed int64)
}

// Drawer is implemented by games whose moves can force an opponent to draw
// from a draw source (deck, bag, pool).
type Drawer interface {
	DrawPenalty(seat, count int) error
}

// MoveSource produces one legal move when its seat becomes active. Humans,
// remote peers, and AI policies all satisfy this shape: remote peers
// through the broadcast channel, humans through Synchronizer.Submit, and
// AI through a registered source invoked by the synchronizer itself.
type MoveSource interface {
	ChooseMove(ctx context.Context, g Game, seat int) (map[string]interface{}, error)
}
