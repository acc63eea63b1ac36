// internal/models/lobby_test.go
package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestLobbySeatHelpers(t *testing.T) {
	a := Player{ID: uuid.New(), Name: "alice"}
	b := Player{ID: uuid.New(), Name: "bob"}
	l := &Lobby{
		ID:         uuid.New(),
		HostID:     a.ID,
		Players:    []Player{a, b},
		MaxPlayers: 2,
	}

	assert.True(t, l.Full())
	assert.True(t, l.HasPlayer(b.ID))
	assert.False(t, l.HasPlayer(uuid.New()))
	assert.Equal(t, 0, l.Seat(a.ID))
	assert.Equal(t, 1, l.Seat(b.ID))
	assert.Equal(t, -1, l.Seat(uuid.New()))
}

func TestLobbyRemovePlayer(t *testing.T) {
	a := Player{ID: uuid.New()}
	b := Player{ID: uuid.New()}
	c := Player{ID: uuid.New()}
	l := &Lobby{Players: []Player{a, b, c}, MaxPlayers: 3}

	l.RemovePlayer(b.ID)
	assert.Equal(t, []Player{a, c}, l.Players, "removal preserves seat order")
	assert.False(t, l.Full())

	// Removing an absent player is a no-op.
	l.RemovePlayer(uuid.New())
	assert.Len(t, l.Players, 2)
}
