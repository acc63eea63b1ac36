// internal/models/lobby.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// LobbyStatus is the lifecycle phase of a lobby row. It only ever moves
// forward: waiting -> playing -> closed.
type LobbyStatus string

const (
	StatusWaiting LobbyStatus = "waiting"
	StatusPlaying LobbyStatus = "playing"
	StatusClosed  LobbyStatus = "closed"
)

// Lobby represents a row in the lobbies table of the shared directory.
// HostID is an explicit column rather than a "first player is host"
// convention, so kicks and reorders cannot change who owns the lobby.
type Lobby struct {
	ID            uuid.UUID   `json:"id"`
	GameType      string      `json:"game_type"`
	HostID        uuid.UUID   `json:"host_id"`
	Players       []Player    `json:"players"`
	MaxPlayers    int         `json:"max_players"`
	Public        bool        `json:"is_public"`
	Code          string      `json:"lobby_code,omitempty"`
	Status        LobbyStatus `json:"status"`
	LastHeartbeat time.Time   `json:"last_heartbeat"`
	CreatedAt     time.Time   `json:"created_at"`
}

// Full reports whether the lobby has no remaining seats.
func (l *Lobby) Full() bool {
	return len(l.Players) >= l.MaxPlayers
}

// HasPlayer reports whether the given user already holds a seat.
func (l *Lobby) HasPlayer(id uuid.UUID) bool {
	for _, p := range l.Players {
		if p.ID == id {
			return true
		}
	}
	return false
}

// Seat returns the index of the given user in the ordered player list, or -1.
func (l *Lobby) Seat(id uuid.UUID) int {
	for i, p := range l.Players {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// RemovePlayer drops the given user from the player list, preserving order.
func (l *Lobby) RemovePlayer(id uuid.UUID) {
	for i, p := range l.Players {
		if p.ID == id {
			l.Players = append(l.Players[:i], l.Players[i+1:]...)
			return
		}
	}
}
