// internal/ai/ai.go

// Package ai provides the local AI move source: a bounded-depth minimax
// search with alpha-beta pruning over a game-supplied position view. The
// AI is a single-player construct; it satisfies the same contract a remote
// peer does and rides the same apply pipeline.
package ai

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/parlor-games/parlor/internal/session"
)

// Position is the game-tree view the search needs. Games that want an AI
// opponent implement it alongside session.Game; simple games may instead
// skip Position and register a RandomPolicy.
type Position interface {
	// Moves returns the legal moves for the given seat.
	Moves(seat int) []map[string]interface{}
	// Play returns the successor position after seat makes the move. The
	// receiver must not be mutated.
	Play(seat int, mv map[string]interface{}) Position
	// Score evaluates the position from the given seat's perspective;
	// larger is better.
	Score(seat int) int
	// Terminal reports whether the position ends the game.
	Terminal() bool
	// Seats returns the number of seats in the game.
	Seats() int
}

const scoreInf = 1 << 20

// Search runs depth-bounded minimax with alpha-beta pruning and returns the
// best move for the seat, or nil if it has none. Depth trades strength for
// responsiveness and is tuned per game.
func Search(p Position, seat, depth int) map[string]interface{} {
	moves := p.Moves(seat)
	if len(moves) == 0 {
		return nil
	}

	var best map[string]interface{}
	alpha, beta := -scoreInf, scoreInf
	for _, mv := range moves {
		score := -negamax(p.Play(seat, mv), nextSeat(p, seat), depth-1, -beta, -alpha)
		if best == nil || score > alpha {
			alpha = score
			best = mv
		}
	}
	return best
}

// negamax scores the position for the seat to move, relative to that seat.
// Two-seat zero-sum framing: each level negates the child's score.
func negamax(p Position, seat, depth, alpha, beta int) int {
	if p.Terminal() || depth <= 0 {
		return p.Score(seat)
	}
	moves := p.Moves(seat)
	if len(moves) == 0 {
		return p.Score(seat)
	}
	best := -scoreInf
	for _, mv := range moves {
		score := -negamax(p.Play(seat, mv), nextSeat(p, seat), depth-1, -beta, -alpha)
		if score > best {
			best = score
		}
		if best > alpha {
			alpha = best
		}
		if alpha >= beta {
			break
		}
	}
	return best
}

func nextSeat(p Position, seat int) int {
	return (seat + 1) % p.Seats()
}

// Policy is a session.MoveSource backed by the search. The synchronizer
// handles the artificial thinking delay; ChooseMove itself is synchronous
// and deterministic given the state.
type Policy struct {
	Depth int
}

// ChooseMove picks the best move for the seat via bounded search.
func (p Policy) ChooseMove(_ context.Context, g session.Game, seat int) (map[string]interface{}, error) {
	pos, ok := g.(Position)
	if !ok {
		return nil, fmt.Errorf("game %T does not expose a search position", g)
	}
	depth := p.Depth
	if depth <= 0 {
		depth = 4
	}
	mv := Search(pos, seat, depth)
	if mv == nil {
		return nil, fmt.Errorf("no legal moves for seat %d", seat)
	}
	return mv, nil
}

// RandomPolicy picks uniformly among legal moves, for games where search
// adds nothing.
type RandomPolicy struct {
	Rng *rand.Rand
}

// ChooseMove picks any legal move for the seat.
func (p RandomPolicy) ChooseMove(_ context.Context, g session.Game, seat int) (map[string]interface{}, error) {
	pos, ok := g.(Position)
	if !ok {
		return nil, fmt.Errorf("game %T does not expose a search position", g)
	}
	moves := pos.Moves(seat)
	if len(moves) == 0 {
		return nil, fmt.Errorf("no legal moves for seat %d", seat)
	}
	if p.Rng == nil {
		return moves[0], nil
	}
	return moves[p.Rng.Intn(len(moves))], nil
}
