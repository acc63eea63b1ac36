// internal/turn/turn.go

// Package turn is the generic turn-order engine shared by every game:
// active seat, direction, and the per-move effects (skip, reverse, extra
// turn, forced draw) that modify how the cursor advances.
package turn

import "fmt"

// EffectKind enumerates the turn modifiers a move can declare.
type EffectKind string

const (
	EffectNone      EffectKind = "none"
	EffectSkip      EffectKind = "skip"
	EffectReverse   EffectKind = "reverse"
	EffectExtraTurn EffectKind = "extra_turn"
	EffectForceDraw EffectKind = "force_draw"
)

// Effect is a move's declared turn modifier. Draw is only meaningful for
// EffectForceDraw.
type Effect struct {
	Kind EffectKind `json:"kind"`
	Draw int        `json:"draw,omitempty"`
}

// None is the zero effect: advance one seat.
var None = Effect{Kind: EffectNone}

// ForceDraw builds a forced-draw effect for n items.
func ForceDraw(n int) Effect {
	return Effect{Kind: EffectForceDraw, Draw: n}
}

// Cursor tracks whose turn it is. Direction is +1 or -1. PendingDraw holds
// the outstanding forced-draw count assigned by the last advance, for
// display and for games that defer the actual draw to their draw source.
type Cursor struct {
	Active      int `json:"active"`
	Players     int `json:"players"`
	Direction   int `json:"direction"`
	PendingDraw int `json:"pending_draw,omitempty"`
}

// Penalty names the seat that must draw items before play continues.
type Penalty struct {
	Seat  int
	Count int
}

// NewCursor initializes the cursor at seat 0 moving forward.
func NewCursor(players int) Cursor {
	return Cursor{Active: 0, Players: players, Direction: 1}
}

// step moves n seats from the active one in the current direction.
func (c Cursor) step(n int) int {
	return ((c.Active+n*c.Direction)%c.Players + c.Players) % c.Players
}

// Advance computes the cursor after a move with the given effect, and the
// penalty draw it assigns, if any. Effects compose in a fixed order: the
// forced draw lands on the victim (the next seat, before any skip), then
// the victim's turn is skipped, then skip/reverse adjust the advancing
// pointer. A drawn-and-skipped seat therefore never acts immediately after
// drawing. In a two-player session a reverse behaves as a skip, since
// flipping direction returns to the same seat.
func Advance(c Cursor, e Effect) (Cursor, *Penalty) {
	next := c
	next.PendingDraw = 0

	switch e.Kind {
	case EffectExtraTurn:
		// Same seat stays active.
		return next, nil
	case EffectForceDraw:
		victim := c.step(1)
		next.Active = c.step(2)
		next.PendingDraw = e.Draw
		return next, &Penalty{Seat: victim, Count: e.Draw}
	case EffectReverse:
		if c.Players == 2 {
			next.Active = c.step(2)
			return next, nil
		}
		next.Direction = -c.Direction
		next.Active = next.step(1)
		return next, nil
	case EffectSkip:
		next.Active = c.step(2)
		return next, nil
	case EffectNone, "":
		next.Active = c.step(1)
		return next, nil
	default:
		// Unknown kinds advance normally rather than stalling the session.
		next.Active = c.step(1)
		return next, nil
	}
}

// Valid reports whether the cursor describes a usable session.
func (c Cursor) Valid() error {
	if c.Players < 1 {
		return fmt.Errorf("cursor has %d players", c.Players)
	}
	if c.Direction != 1 && c.Direction != -1 {
		return fmt.Errorf("cursor direction %d is not +1/-1", c.Direction)
	}
	if c.Active < 0 || c.Active >= c.Players {
		return fmt.Errorf("cursor active seat %d out of range", c.Active)
	}
	return nil
}
