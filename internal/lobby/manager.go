// internal/lobby/manager.go

// Package lobby implements the lobby lifecycle: create, join (public and
// by code), leave, start, plus the heartbeat monitor and ghost reclamation
// layered on the directory client.
package lobby

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/parlor-games/parlor/internal/directory"
	"github.com/parlor-games/parlor/internal/models"
)

var (
	// ErrNoOpenLobby means no public lobby had a free seat. Informational,
	// the caller typically offers to host instead.
	ErrNoOpenLobby = errors.New("no open lobby found")
	// ErrLobbyFull means the targeted lobby has no remaining seats.
	ErrLobbyFull = errors.New("lobby is full")
	// ErrNotFound mirrors the directory sentinel for callers that only
	// import this package.
	ErrNotFound = directory.ErrNotFound
)

// Directory is the slice of the directory client the manager consumes.
type Directory interface {
	CreateLobbyFunc(ctx context.Context, l *models.Lobby) error
	InsertLobby(ctx context.Context, l *models.Lobby) error
	ClaimPublicSeat(ctx context.Context, gameType string, p models.Player) (*models.Lobby, error)
	ClaimCodeSeat(ctx context.Context, code string, p models.Player) (*models.Lobby, error)
	GetLobby(ctx context.Context, id uuid.UUID) (*models.Lobby, error)
	GetLobbyByCode(ctx context.Context, code string) (*models.Lobby, error)
	ListOpenPublic(ctx context.Context, gameType string) ([]models.Lobby, error)
	UpdatePlayers(ctx context.Context, id uuid.UUID, players []models.Player) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.LobbyStatus) error
	Touch(ctx context.Context, id uuid.UUID) error
	DeleteLobby(ctx context.Context, id uuid.UUID) error
	DeleteGhosts(ctx context.Context, cutoff time.Time) (int64, error)
}

// Manager drives one peer's view of the lobby lifecycle.
type Manager struct {
	dir  Directory
	log  *logrus.Logger
	self models.Player

	heartbeatInterval time.Duration
	ghostTimeout      time.Duration

	hb *heartbeat
}

// NewManager builds a Manager for the given local identity.
func NewManager(dir Directory, log *logrus.Logger, self models.Player, heartbeatInterval, ghostTimeout time.Duration) *Manager {
	if heartbeatInterval <= 0 {
		heartbeatInterval = 5 * time.Second
	}
	if ghostTimeout <= 0 {
		ghostTimeout = 30 * time.Second
	}
	return &Manager{
		dir:               dir,
		log:               log,
		self:              self,
		heartbeatInterval: heartbeatInterval,
		ghostTimeout:      ghostTimeout,
	}
}

// Self returns the local player identity the manager acts as.
func (m *Manager) Self() models.Player { return m.self }

// Create builds a new lobby hosted by the local player. The atomic
// server-side creation function is tried first; schema gaps degrade to a
// plain insert rather than failing the user-visible action. Private lobbies
// get a locally generated join code. The heartbeat monitor starts
// immediately so the new row never looks like a ghost.
func (m *Manager) Create(ctx context.Context, gameType string, maxPlayers int, public bool) (*models.Lobby, error) {
	l := &models.Lobby{
		ID:         uuid.New(),
		GameType:   gameType,
		HostID:     m.self.ID,
		Players:    []models.Player{m.self},
		MaxPlayers: maxPlayers,
		Public:     public,
		Status:     models.StatusWaiting,
	}
	if !public {
		l.Code = newJoinCode()
	}

	err := withFallback(m.log.WithField("op", "create_lobby"),
		func() error { return m.dir.CreateLobbyFunc(ctx, l) },
		func() error { return m.dir.InsertLobby(ctx, l) },
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create lobby: %w", err)
	}

	m.startHeartbeat(l.ID)
	m.log.WithFields(logrus.Fields{
		"lobby_id":  l.ID,
		"game_type": gameType,
		"public":    public,
	}).Info("lobby created")
	return l, nil
}

// JoinPublic claims a seat in the oldest open public lobby for the game type.
// The atomic claim avoids the race between two simultaneous joiners; on
// fallback we sweep ghosts, list open lobbies by creation time, filter by
// capacity, and append ourselves. The fallback leaves a small window where
// two concurrent joiners can both append past capacity; the claim function
// is the path that prevents it, and the fallback keeps the known limitation
// rather than bolting on client-side locking.
func (m *Manager) JoinPublic(ctx context.Context, gameType string) (*models.Lobby, error) {
	lobby, err := fallbackTo(m.log.WithField("op", "join_public"),
		func() (*models.Lobby, error) {
			l, err := m.dir.ClaimPublicSeat(ctx, gameType, m.self)
			if errors.Is(err, directory.ErrNotFound) {
				return nil, ErrNoOpenLobby
			}
			return l, err
		},
		func() (*models.Lobby, error) { return m.joinPublicFallback(ctx, gameType) },
	)
	if err != nil {
		return nil, err
	}

	m.startHeartbeat(lobby.ID)
	m.log.WithFields(logrus.Fields{
		"lobby_id": lobby.ID,
		"players":  len(lobby.Players),
	}).Info("joined public lobby")
	return lobby, nil
}

func (m *Manager) joinPublicFallback(ctx context.Context, gameType string) (*models.Lobby, error) {
	// Lazy ghost reclamation: stale rows would otherwise surface as
	// joinable lobbies nobody is hosting.
	if _, err := m.SweepGhosts(ctx); err != nil {
		m.log.WithError(err).Warn("ghost sweep during join failed")
	}

	lobbies, err := m.dir.ListOpenPublic(ctx, gameType)
	if err != nil {
		return nil, fmt.Errorf("failed to list open lobbies: %w", err)
	}
	for i := range lobbies {
		l := &lobbies[i]
		if l.Full() || l.HasPlayer(m.self.ID) {
			continue
		}
		l.Players = append(l.Players, m.self)
		if err := m.dir.UpdatePlayers(ctx, l.ID, l.Players); err != nil {
			return nil, fmt.Errorf("failed to take seat in lobby %s: %w", l.ID, err)
		}
		return l, nil
	}
	return nil, ErrNoOpenLobby
}

// JoinPrivate claims a seat in the waiting lobby matching the join code.
// A full lobby fails with ErrLobbyFull, a missing code with ErrNotFound.
func (m *Manager) JoinPrivate(ctx context.Context, code string) (*models.Lobby, error) {
	lobby, err := fallbackTo(m.log.WithField("op", "join_private"),
		func() (*models.Lobby, error) {
			l, err := m.dir.ClaimCodeSeat(ctx, code, m.self)
			if errors.Is(err, directory.ErrNotFound) {
				// The claim function reports a full lobby and a missing code
				// the same way; look the row up to tell the caller which.
				if existing, lookErr := m.dir.GetLobbyByCode(ctx, code); lookErr == nil && existing.Full() {
					return nil, ErrLobbyFull
				}
				return nil, directory.ErrNotFound
			}
			return l, err
		},
		func() (*models.Lobby, error) { return m.joinPrivateFallback(ctx, code) },
	)
	if err != nil {
		return nil, err
	}

	m.startHeartbeat(lobby.ID)
	m.log.WithField("lobby_id", lobby.ID).Info("joined private lobby")
	return lobby, nil
}

func (m *Manager) joinPrivateFallback(ctx context.Context, code string) (*models.Lobby, error) {
	l, err := m.dir.GetLobbyByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if l.Full() {
		return nil, ErrLobbyFull
	}
	if !l.HasPlayer(m.self.ID) {
		l.Players = append(l.Players, m.self)
		if err := m.dir.UpdatePlayers(ctx, l.ID, l.Players); err != nil {
			return nil, fmt.Errorf("failed to take seat in lobby %s: %w", l.ID, err)
		}
	}
	return l, nil
}

// Start transitions a waiting lobby to playing. Host only.
func (m *Manager) Start(ctx context.Context, l *models.Lobby) error {
	if l.HostID != m.self.ID {
		return fmt.Errorf("only the host can start lobby %s", l.ID)
	}
	if l.Status != models.StatusWaiting {
		return fmt.Errorf("lobby %s is not waiting (status %s)", l.ID, l.Status)
	}
	if err := m.dir.UpdateStatus(ctx, l.ID, models.StatusPlaying); err != nil {
		return fmt.Errorf("failed to start lobby %s: %w", l.ID, err)
	}
	l.Status = models.StatusPlaying
	m.log.WithField("lobby_id", l.ID).Info("lobby started")
	return nil
}

// Leave stops this peer's heartbeat and removes it from the lobby. A host
// leaving a waiting lobby deletes the row outright, ending the session for
// everyone; guests only remove their own seat.
func (m *Manager) Leave(ctx context.Context, l *models.Lobby) error {
	m.stopHeartbeat()

	if l.HostID == m.self.ID {
		if err := m.dir.DeleteLobby(ctx, l.ID); err != nil {
			return fmt.Errorf("failed to delete lobby %s: %w", l.ID, err)
		}
		m.log.WithField("lobby_id", l.ID).Info("host left, lobby deleted")
		return nil
	}

	l.RemovePlayer(m.self.ID)
	if err := m.dir.UpdatePlayers(ctx, l.ID, l.Players); err != nil {
		return fmt.Errorf("failed to leave lobby %s: %w", l.ID, err)
	}
	m.log.WithField("lobby_id", l.ID).Info("left lobby")
	return nil
}

// SweepGhosts deletes every lobby whose heartbeat age exceeds the ghost
// timeout. Called eagerly once at boot and lazily from the fallback join
// path. Never surfaced to users: ghosts have no one left to tell.
func (m *Manager) SweepGhosts(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-m.ghostTimeout)
	n, err := m.dir.DeleteGhosts(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.log.WithField("reclaimed", n).Info("ghost lobbies reclaimed")
	}
	return n, nil
}
