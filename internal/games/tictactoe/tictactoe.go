// internal/games/tictactoe/tictactoe.go

// Package tictactoe is the reference game policy: the smallest game that
// exercises the full session pipeline (apply, snapshot, restore, AI search).
package tictactoe

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/parlor-games/parlor/internal/ai"
	"github.com/parlor-games/parlor/internal/turn"
)

const empty = -1

var lines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8}, // rows
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8}, // columns
	{0, 4, 8}, {2, 4, 6}, // diagonals
}

// Game is a 3x3 board; cells hold the seat that marked them, or -1.
type Game struct {
	mu    sync.Mutex
	board [9]int
	moves int
}

type snapshot struct {
	Board [9]int `json:"board"`
	Moves int    `json:"moves"`
}

// New returns an empty board.
func New() *Game {
	g := &Game{}
	g.Reset(0)
	return g
}

// Reset clears the board. Tic-tac-toe has no randomness; the seed is unused.
func (g *Game) Reset(_ int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.board {
		g.board[i] = empty
	}
	g.moves = 0
}

// Apply marks the cell named by the move for the seat. Moves travel as
// JSON, so the cell index may arrive as float64.
func (g *Game) Apply(seat int, mv map[string]interface{}) (turn.Effect, error) {
	cell, ok := cellIndex(mv)
	if !ok {
		return turn.None, fmt.Errorf("move has no cell")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if cell < 0 || cell >= len(g.board) {
		return turn.None, fmt.Errorf("cell %d out of range", cell)
	}
	if g.board[cell] != empty {
		return turn.None, fmt.Errorf("cell %d already taken", cell)
	}
	g.board[cell] = seat
	g.moves++
	return turn.None, nil
}

// Snapshot serializes the board.
func (g *Game) Snapshot() (json.RawMessage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return json.Marshal(snapshot{Board: g.board, Moves: g.moves})
}

// Restore replaces the board from a snapshot.
func (g *Game) Restore(data json.RawMessage) error {
	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("bad board snapshot: %w", err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.board = s.Board
	g.moves = s.Moves
	return nil
}

// Over reports a win or a full board.
func (g *Game) Over() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return winnerOf(g.board) != empty || g.moves == len(g.board)
}

// Winner returns the winning seat, or -1 for none/draw.
func (g *Game) Winner() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return winnerOf(g.board)
}

// Cell returns the seat holding the cell, or -1.
func (g *Game) Cell(i int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.board[i]
}

// Board returns a copy of the raw board, for rendering.
func (g *Game) Board() [9]int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.board
}

func winnerOf(board [9]int) int {
	for _, ln := range lines {
		a := board[ln[0]]
		if a != empty && a == board[ln[1]] && a == board[ln[2]] {
			return a
		}
	}
	return empty
}

func cellIndex(mv map[string]interface{}) (int, bool) {
	switch v := mv["cell"].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}

// Move builds the wire payload for marking a cell.
func Move(cell int) map[string]interface{} {
	return map[string]interface{}{"cell": float64(cell)}
}

// --- ai.Position ---

// position is an immutable board for the search tree.
type position struct {
	board [9]int
	moves int
}

// Moves returns every open cell.
func (p position) Moves(_ int) []map[string]interface{} {
	if winnerOf(p.board) != empty {
		return nil
	}
	var out []map[string]interface{}
	for i, c := range p.board {
		if c == empty {
			out = append(out, Move(i))
		}
	}
	return out
}

// Play returns the position after the seat marks the cell.
func (p position) Play(seat int, mv map[string]interface{}) ai.Position {
	cell, _ := cellIndex(mv)
	next := p
	next.board[cell] = seat
	next.moves++
	return next
}

// Score favors quicker wins: a win at fewer moves scores higher.
func (p position) Score(seat int) int {
	w := winnerOf(p.board)
	switch {
	case w == seat:
		return 100 - p.moves
	case w != empty:
		return p.moves - 100
	default:
		return 0
	}
}

// Terminal reports a decided or full board.
func (p position) Terminal() bool {
	return winnerOf(p.board) != empty || p.moves == len(p.board)
}

// Seats is always two.
func (p position) Seats() int { return 2 }

// Moves implements ai.Position on *Game by copying the live board.
func (g *Game) Moves(seat int) []map[string]interface{} {
	return g.pos().Moves(seat)
}

// Play implements ai.Position on *Game; successors are value copies and
// never touch the live board.
func (g *Game) Play(seat int, mv map[string]interface{}) ai.Position {
	return g.pos().Play(seat, mv)
}

// Score implements ai.Position on *Game.
func (g *Game) Score(seat int) int { return g.pos().Score(seat) }

// Terminal implements ai.Position on *Game.
func (g *Game) Terminal() bool { return g.pos().Terminal() }

// Seats implements ai.Position on *Game.
func (g *Game) Seats() int { return 2 }

func (g *Game) pos() position {
	g.mu.Lock()
	defer g.mu.Unlock()
	return position{board: g.board, moves: g.moves}
}
