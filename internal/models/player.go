// internal/models/player.go
package models

import "github.com/google/uuid"

// Player is one seat holder in a lobby. The ID is stable for the session:
// either an authenticated user id or a freshly minted guest id.
type Player struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Guest bool      `json:"is_guest"`
}
