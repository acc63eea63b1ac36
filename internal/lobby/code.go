// internal/lobby/code.go
package lobby

import "math/rand"

const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// newJoinCode generates the short code guests type to join a private lobby.
// Ambiguous glyphs (I, L, O, 0, 1) are excluded from the alphabet.
func newJoinCode() string {
	b := make([]byte, 6)
	for i := range b {
		b[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
	}
	return string(b)
}
