// internal/lobby/heartbeat.go
package lobby

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// heartbeat refreshes a held lobby's liveness timestamp on a fixed interval
// until cancelled. One per manager; leaving a lobby cancels it in the same
// cleanup step that releases the seat.
type heartbeat struct {
	lobbyID uuid.UUID
	cancel  context.CancelFunc
	done    chan struct{}
}

// startHeartbeat begins refreshing the lobby's last_heartbeat column.
// Any previous monitor is stopped first; a peer holds at most one lobby.
func (m *Manager) startHeartbeat(lobbyID uuid.UUID) {
	m.stopHeartbeat()

	ctx, cancel := context.WithCancel(context.Background())
	hb := &heartbeat{lobbyID: lobbyID, cancel: cancel, done: make(chan struct{})}
	m.hb = hb

	go func() {
		defer close(hb.done)
		ticker := time.NewTicker(m.heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				beat, cancelBeat := context.WithTimeout(ctx, m.heartbeatInterval)
				if err := m.dir.Touch(beat, lobbyID); err != nil {
					// A missed beat is tolerated; six in a row make a ghost.
					m.log.WithError(err).WithField("lobby_id", lobbyID).
						Warn("heartbeat refresh failed")
				}
				cancelBeat()
			}
		}
	}()
}

// stopHeartbeat cancels the active monitor, if any, and waits for it to exit.
func (m *Manager) stopHeartbeat() {
	if m.hb == nil {
		return
	}
	m.hb.cancel()
	<-m.hb.done
	m.hb = nil
}
