// internal/directory/lobby.go
package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/parlor-games/parlor/internal/models"
)

const lobbyColumns = `
	id, game_type, host_id, players, max_players,
	is_public, lobby_code, status, last_heartbeat, created_at`

func scanLobby(row pgx.Row) (*models.Lobby, error) {
	var l models.Lobby
	err := row.Scan(
		&l.ID,
		&l.GameType,
		&l.HostID,
		&l.Players,
		&l.MaxPlayers,
		&l.Public,
		&l.Code,
		&l.Status,
		&l.LastHeartbeat,
		&l.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// CreateLobbyFunc invokes the server-side parlor_create_lobby function, which
// inserts the row and stamps heartbeat/created_at atomically.
func (s *Store) CreateLobbyFunc(ctx context.Context, l *models.Lobby) error {
	q := `SELECT ` + lobbyColumns + ` FROM parlor_create_lobby($1, $2, $3, $4, $5, $6, $7)`
	created, err := scanLobby(s.pool.QueryRow(ctx, q,
		l.ID, l.GameType, l.HostID, l.Players, l.MaxPlayers, l.Public, l.Code,
	))
	if err != nil {
		return fmt.Errorf("parlor_create_lobby: %w", err)
	}
	*l = *created
	return nil
}

// InsertLobby is the fallback creation path: a plain insert with the minimal
// column set, used when the server-side function is unavailable.
func (s *Store) InsertLobby(ctx context.Context, l *models.Lobby) error {
	now := time.Now().UTC()
	l.LastHeartbeat = now
	l.CreatedAt = now
	q := `
	INSERT INTO lobbies (id, game_type, host_id, players, max_players,
	                     is_public, lobby_code, status, last_heartbeat, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q,
			l.ID, l.GameType, l.HostID, l.Players, l.MaxPlayers,
			l.Public, l.Code, l.Status, l.LastHeartbeat, l.CreatedAt,
		)
		return err
	})
}

// ClaimPublicSeat invokes parlor_claim_public_seat, which appends the player
// to the oldest open public lobby of the given game type under a row lock.
// Returns ErrNotFound when no open lobby exists.
func (s *Store) ClaimPublicSeat(ctx context.Context, gameType string, p models.Player) (*models.Lobby, error) {
	q := `SELECT ` + lobbyColumns + ` FROM parlor_claim_public_seat($1, $2)`
	l, err := scanLobby(s.pool.QueryRow(ctx, q, gameType, p))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("parlor_claim_public_seat: %w", err)
	}
	return l, nil
}

// ClaimCodeSeat invokes parlor_claim_code_seat for private lobbies.
// Returns ErrNotFound when no waiting lobby matches the code or it is full.
func (s *Store) ClaimCodeSeat(ctx context.Context, code string, p models.Player) (*models.Lobby, error) {
	q := `SELECT ` + lobbyColumns + ` FROM parlor_claim_code_seat($1, $2)`
	l, err := scanLobby(s.pool.QueryRow(ctx, q, code, p))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("parlor_claim_code_seat: %w", err)
	}
	return l, nil
}

// GetLobby fetches a lobby by ID.
func (s *Store) GetLobby(ctx context.Context, id uuid.UUID) (*models.Lobby, error) {
	q := `SELECT ` + lobbyColumns + ` FROM lobbies WHERE id = $1`
	return scanLobby(s.pool.QueryRow(ctx, q, id))
}

// GetLobbyByCode fetches a waiting private lobby by its join code.
func (s *Store) GetLobbyByCode(ctx context.Context, code string) (*models.Lobby, error) {
	q := `SELECT ` + lobbyColumns + ` FROM lobbies WHERE lobby_code = $1 AND status = 'waiting'`
	return scanLobby(s.pool.QueryRow(ctx, q, code))
}

// ListOpenPublic returns public waiting lobbies for a game type, oldest first.
func (s *Store) ListOpenPublic(ctx context.Context, gameType string) ([]models.Lobby, error) {
	q := `SELECT ` + lobbyColumns + `
	FROM lobbies
	WHERE game_type = $1 AND is_public AND status = 'waiting'
	ORDER BY created_at ASC`
	rows, err := s.pool.Query(ctx, q, gameType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lobbies []models.Lobby
	for rows.Next() {
		l, err := scanLobby(rows)
		if err != nil {
			return nil, err
		}
		lobbies = append(lobbies, *l)
	}
	return lobbies, rows.Err()
}

// UpdatePlayers overwrites the ordered player list of a lobby.
func (s *Store) UpdatePlayers(ctx context.Context, id uuid.UUID, players []models.Player) error {
	q := `UPDATE lobbies SET players = $2 WHERE id = $1`
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, id, players)
		return err
	})
}

// UpdateStatus moves a lobby to a new lifecycle status.
func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, status models.LobbyStatus) error {
	q := `UPDATE lobbies SET status = $2 WHERE id = $1`
	_, err := s.pool.Exec(ctx, q, id, status)
	return err
}

// Touch refreshes the liveness timestamp of a lobby.
func (s *Store) Touch(ctx context.Context, id uuid.UUID) error {
	q := `UPDATE lobbies SET last_heartbeat = now() WHERE id = $1`
	_, err := s.pool.Exec(ctx, q, id)
	return err
}

// DeleteLobby removes a lobby row.
func (s *Store) DeleteLobby(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM lobbies WHERE id = $1`, id)
	return err
}

// DeleteGhosts removes every lobby whose heartbeat is older than the cutoff.
// Ghosts by definition have no live participants, so deletion needs no notice.
func (s *Store) DeleteGhosts(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM lobbies WHERE last_heartbeat < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
