// internal/identity/identity.go
package identity

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/parlor-games/parlor/internal/models"
)

// publicKey verifies tokens issued by the account service. Identity is the
// only piece of auth this peer touches; login itself happens elsewhere.
var publicKey ed25519.PublicKey

// Init loads the base64-encoded ed25519 verification key from AUTH_PUBLIC_KEY.
// Peers without a key simply treat every participant as a guest.
func Init() error {
	raw := os.Getenv("AUTH_PUBLIC_KEY")
	if raw == "" {
		return nil
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return fmt.Errorf("failed to decode AUTH_PUBLIC_KEY: %w", err)
	}
	if len(data) != ed25519.PublicKeySize {
		return fmt.Errorf("AUTH_PUBLIC_KEY has wrong length %d", len(data))
	}
	publicKey = ed25519.PublicKey(data)
	return nil
}

// FromToken verifies a signed user token and returns the authenticated player.
func FromToken(tokenStr string) (models.Player, error) {
	if publicKey == nil {
		return models.Player{}, fmt.Errorf("no verification key configured")
	}
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return publicKey, nil
	})
	if err != nil {
		return models.Player{}, fmt.Errorf("failed to parse user token: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return models.Player{}, fmt.Errorf("invalid user token")
	}
	sub, _ := claims["sub"].(string)
	id, err := uuid.Parse(sub)
	if err != nil {
		return models.Player{}, fmt.Errorf("token sub is not a uuid: %w", err)
	}
	name, _ := claims["name"].(string)
	if name == "" {
		name = "User_" + sub[:4]
	}
	return models.Player{ID: id, Name: name}, nil
}

// NewGuest mints a per-session guest identity.
func NewGuest() models.Player {
	id := uuid.New()
	return models.Player{
		ID:    id,
		Name:  "Guest_" + id.String()[:4],
		Guest: true,
	}
}
