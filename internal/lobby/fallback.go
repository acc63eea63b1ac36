// internal/lobby/fallback.go
package lobby

import (
	"errors"

	"github.com/sirupsen/logrus"
)

// withFallback runs the primary (atomic RPC) path and, if it fails, logs the
// error and runs the degraded path. Only the fallback's own failure reaches
// the caller; the directory schema may lack the optional server-side
// functions, so primary errors are logged and absorbed.
func withFallback(log *logrus.Entry, primary, fallback func() error) error {
	if err := primary(); err != nil {
		log.WithError(err).Debug("primary path failed, using fallback")
		return fallback()
	}
	return nil
}

// fallbackTo is the value-returning form of withFallback.
func fallbackTo[T any](log *logrus.Entry, primary, fallback func() (T, error)) (T, error) {
	v, err := primary()
	if err == nil {
		return v, nil
	}
	// Matchmaking misses from the primary are real answers, not RPC
	// failures; only infrastructure errors trigger the fallback.
	if errors.Is(err, ErrNoOpenLobby) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrLobbyFull) {
		return v, err
	}
	log.WithError(err).Debug("primary path failed, using fallback")
	return fallback()
}
