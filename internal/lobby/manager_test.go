// internal/lobby/manager_test.go
package lobby

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parlor-games/parlor/internal/directory"
	"github.com/parlor-games/parlor/internal/models"
)

var errSchemaGap = errors.New("function parlor_claim_public_seat does not exist")

// fakeDirectory is an in-memory stand-in for the Postgres store. It keeps
// the same sentinel contract: the claim functions return
// directory.ErrNotFound on a matchmaking miss. Setting rpcErr makes every
// function-backed call fail, forcing the plain-SQL fallback path.
type fakeDirectory struct {
	mu      sync.Mutex
	lobbies map[uuid.UUID]*models.Lobby
	rpcErr  error
	touches map[uuid.UUID]int
	seq     int
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		lobbies: make(map[uuid.UUID]*models.Lobby),
		touches: make(map[uuid.UUID]int),
	}
}

func (f *fakeDirectory) CreateLobbyFunc(ctx context.Context, l *models.Lobby) error {
	if f.rpcErr != nil {
		return f.rpcErr
	}
	return f.InsertLobby(ctx, l)
}

func (f *fakeDirectory) InsertLobby(_ context.Context, l *models.Lobby) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	l.LastHeartbeat = now
	// Monotonic creation times so ordering is deterministic even when two
	// lobbies are created within the clock's resolution.
	f.seq++
	l.CreatedAt = now.Add(time.Duration(f.seq) * time.Microsecond)
	cp := *l
	f.lobbies[l.ID] = &cp
	return nil
}

func (f *fakeDirectory) ClaimPublicSeat(_ context.Context, gameType string, p models.Player) (*models.Lobby, error) {
	if f.rpcErr != nil {
		return nil, f.rpcErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var oldest *models.Lobby
	for _, l := range f.lobbies {
		if l.GameType != gameType || !l.Public || l.Status != models.StatusWaiting || l.Full() {
			continue
		}
		if oldest == nil || l.CreatedAt.Before(oldest.CreatedAt) {
			oldest = l
		}
	}
	if oldest == nil {
		return nil, directory.ErrNotFound
	}
	oldest.Players = append(oldest.Players, p)
	cp := *oldest
	return &cp, nil
}

func (f *fakeDirectory) ClaimCodeSeat(_ context.Context, code string, p models.Player) (*models.Lobby, error) {
	if f.rpcErr != nil {
		return nil, f.rpcErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.lobbies {
		if l.Code != code || l.Status != models.StatusWaiting {
			continue
		}
		if l.Full() {
			return nil, directory.ErrNotFound
		}
		l.Players = append(l.Players, p)
		cp := *l
		return &cp, nil
	}
	return nil, directory.ErrNotFound
}

func (f *fakeDirectory) GetLobby(_ context.Context, id uuid.UUID) (*models.Lobby, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.lobbies[id]
	if !ok {
		return nil, directory.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (f *fakeDirectory) GetLobbyByCode(_ context.Context, code string) (*models.Lobby, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.lobbies {
		if l.Code == code && l.Status == models.StatusWaiting {
			cp := *l
			return &cp, nil
		}
	}
	return nil, directory.ErrNotFound
}

func (f *fakeDirectory) ListOpenPublic(_ context.Context, gameType string) ([]models.Lobby, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Lobby
	for _, l := range f.lobbies {
		if l.GameType == gameType && l.Public && l.Status == models.StatusWaiting {
			out = append(out, *l)
		}
	}
	for i := range out {
		for j := i + 1; j < len(out); j++ {
			if out[j].CreatedAt.Before(out[i].CreatedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (f *fakeDirectory) UpdatePlayers(_ context.Context, id uuid.UUID, players []models.Player) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.lobbies[id]
	if !ok {
		return directory.ErrNotFound
	}
	l.Players = append([]models.Player(nil), players...)
	return nil
}

func (f *fakeDirectory) UpdateStatus(_ context.Context, id uuid.UUID, status models.LobbyStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.lobbies[id]
	if !ok {
		return directory.ErrNotFound
	}
	l.Status = status
	return nil
}

func (f *fakeDirectory) Touch(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.lobbies[id]
	if !ok {
		return directory.ErrNotFound
	}
	l.LastHeartbeat = time.Now().UTC()
	f.touches[id]++
	return nil
}

func (f *fakeDirectory) DeleteLobby(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.lobbies, id)
	return nil
}

func (f *fakeDirectory) DeleteGhosts(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, l := range f.lobbies {
		if l.LastHeartbeat.Before(cutoff) {
			delete(f.lobbies, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeDirectory) touchCount(id uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.touches[id]
}

func (f *fakeDirectory) setHeartbeat(id uuid.UUID, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if l, ok := f.lobbies[id]; ok {
		l.LastHeartbeat = at
	}
}

func testManager(dir Directory, name string) *Manager {
	log := logrus.New()
	log.SetOutput(io.Discard)
	self := models.Player{ID: uuid.New(), Name: name, Guest: true}
	return NewManager(dir, log, self, time.Hour, 30*time.Second)
}

func TestCreatePublicLobby(t *testing.T) {
	ctx := context.Background()
	dir := newFakeDirectory()
	m := testManager(dir, "alice")
	defer m.stopHeartbeat()

	l, err := m.Create(ctx, "tictactoe", 2, true)
	require.NoError(t, err)
	assert.Equal(t, m.Self().ID, l.HostID)
	assert.Equal(t, models.StatusWaiting, l.Status)
	assert.Empty(t, l.Code, "public lobbies carry no join code")
	require.Len(t, l.Players, 1)
	assert.Equal(t, m.Self().ID, l.Players[0].ID)
}

func TestCreatePrivateLobbyGetsCode(t *testing.T) {
	ctx := context.Background()
	dir := newFakeDirectory()
	m := testManager(dir, "alice")
	defer m.stopHeartbeat()

	l, err := m.Create(ctx, "tictactoe", 2, false)
	require.NoError(t, err)
	assert.Len(t, l.Code, 6)
	for _, r := range l.Code {
		assert.Contains(t, codeAlphabet, string(r))
	}
}

func TestJoinPublicMatchesOldestLobby(t *testing.T) {
	ctx := context.Background()
	dir := newFakeDirectory()
	host := testManager(dir, "alice")
	defer host.stopHeartbeat()
	joiner := testManager(dir, "bob")
	defer joiner.stopHeartbeat()

	first, err := host.Create(ctx, "tictactoe", 2, true)
	require.NoError(t, err)
	other := testManager(dir, "carol")
	defer other.stopHeartbeat()
	_, err = other.Create(ctx, "tictactoe", 2, true)
	require.NoError(t, err)

	got, err := joiner.JoinPublic(ctx, "tictactoe")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID, "matchmaking should prefer the oldest open lobby")
	assert.Len(t, got.Players, 2)
	assert.True(t, got.HasPlayer(joiner.Self().ID))
}

func TestJoinPublicNoOpenLobby(t *testing.T) {
	ctx := context.Background()
	dir := newFakeDirectory()
	m := testManager(dir, "bob")

	_, err := m.JoinPublic(ctx, "tictactoe")
	assert.ErrorIs(t, err, ErrNoOpenLobby)
}

func TestJoinPublicSkipsFullAndForeignLobbies(t *testing.T) {
	ctx := context.Background()
	dir := newFakeDirectory()
	host := testManager(dir, "alice")
	defer host.stopHeartbeat()

	full, err := host.Create(ctx, "tictactoe", 1, true)
	require.NoError(t, err)
	require.True(t, full.Full())

	otherGame := testManager(dir, "carol")
	defer otherGame.stopHeartbeat()
	_, err = otherGame.Create(ctx, "checkers", 2, true)
	require.NoError(t, err)

	joiner := testManager(dir, "bob")
	_, err = joiner.JoinPublic(ctx, "tictactoe")
	assert.ErrorIs(t, err, ErrNoOpenLobby, "full lobbies and other game types are not joinable")

	got, _ := dir.GetLobby(ctx, full.ID)
	assert.Len(t, got.Players, 1, "a seat must never be claimed past capacity")
}

func TestJoinPublicFallbackWhenFunctionsMissing(t *testing.T) {
	ctx := context.Background()
	dir := newFakeDirectory()
	host := testManager(dir, "alice")
	defer host.stopHeartbeat()
	l, err := host.Create(ctx, "tictactoe", 2, true)
	require.NoError(t, err)

	// Degrade the directory: claim functions now error, as they would on a
	// schema without the parlor_* functions.
	dir.rpcErr = errSchemaGap

	joiner := testManager(dir, "bob")
	defer joiner.stopHeartbeat()
	got, err := joiner.JoinPublic(ctx, "tictactoe")
	require.NoError(t, err, "fallback join should mask the schema gap")
	assert.Equal(t, l.ID, got.ID)
	assert.True(t, got.HasPlayer(joiner.Self().ID))
}

func TestJoinPublicMissDoesNotTriggerFallback(t *testing.T) {
	ctx := context.Background()
	dir := newFakeDirectory()
	host := testManager(dir, "alice")
	defer host.stopHeartbeat()
	full, err := host.Create(ctx, "tictactoe", 1, true)
	require.NoError(t, err)

	joiner := testManager(dir, "bob")
	_, err = joiner.JoinPublic(ctx, "tictactoe")
	assert.ErrorIs(t, err, ErrNoOpenLobby)

	got, _ := dir.GetLobby(ctx, full.ID)
	assert.Len(t, got.Players, 1, "a matchmaking miss must not retry through the fallback and overfill")
}

func TestJoinPrivate(t *testing.T) {
	ctx := context.Background()
	dir := newFakeDirectory()
	host := testManager(dir, "alice")
	defer host.stopHeartbeat()
	l, err := host.Create(ctx, "tictactoe", 2, false)
	require.NoError(t, err)

	joiner := testManager(dir, "bob")
	defer joiner.stopHeartbeat()
	got, err := joiner.JoinPrivate(ctx, l.Code)
	require.NoError(t, err)
	assert.Equal(t, l.ID, got.ID)
	assert.Len(t, got.Players, 2)
}

func TestJoinPrivateUnknownCode(t *testing.T) {
	ctx := context.Background()
	dir := newFakeDirectory()
	m := testManager(dir, "bob")

	_, err := m.JoinPrivate(ctx, "ZZZZZZ")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestJoinPrivateFullLobbyAtomicPath(t *testing.T) {
	ctx := context.Background()
	dir := newFakeDirectory()
	host := testManager(dir, "alice")
	defer host.stopHeartbeat()
	l, err := host.Create(ctx, "tictactoe", 1, false)
	require.NoError(t, err)
	require.True(t, l.Full())

	// Healthy directory, correct code, no seats left: the caller must learn
	// the lobby is full, not that it does not exist.
	joiner := testManager(dir, "bob")
	_, err = joiner.JoinPrivate(ctx, l.Code)
	assert.ErrorIs(t, err, ErrLobbyFull)
	assert.NotErrorIs(t, err, ErrNotFound)

	got, _ := dir.GetLobby(ctx, l.ID)
	assert.Len(t, got.Players, 1, "the failed join must not take a seat")
}

func TestJoinPrivateFullLobbyViaFallback(t *testing.T) {
	ctx := context.Background()
	dir := newFakeDirectory()
	host := testManager(dir, "alice")
	defer host.stopHeartbeat()
	l, err := host.Create(ctx, "tictactoe", 1, false)
	require.NoError(t, err)

	dir.rpcErr = errSchemaGap
	joiner := testManager(dir, "bob")
	_, err = joiner.JoinPrivate(ctx, l.Code)
	assert.ErrorIs(t, err, ErrLobbyFull)
}

func TestStartIsHostOnlyAndWaitingOnly(t *testing.T) {
	ctx := context.Background()
	dir := newFakeDirectory()
	host := testManager(dir, "alice")
	defer host.stopHeartbeat()
	l, err := host.Create(ctx, "tictactoe", 2, true)
	require.NoError(t, err)

	guest := testManager(dir, "bob")
	assert.Error(t, guest.Start(ctx, l), "a guest must not be able to start the lobby")

	require.NoError(t, host.Start(ctx, l))
	assert.Equal(t, models.StatusPlaying, l.Status)
	stored, _ := dir.GetLobby(ctx, l.ID)
	assert.Equal(t, models.StatusPlaying, stored.Status)

	assert.Error(t, host.Start(ctx, l), "starting twice is invalid")
}

func TestLeaveGuestKeepsLobby(t *testing.T) {
	ctx := context.Background()
	dir := newFakeDirectory()
	host := testManager(dir, "alice")
	defer host.stopHeartbeat()
	l, err := host.Create(ctx, "tictactoe", 2, true)
	require.NoError(t, err)

	guest := testManager(dir, "bob")
	joined, err := guest.JoinPublic(ctx, "tictactoe")
	require.NoError(t, err)

	require.NoError(t, guest.Leave(ctx, joined))
	stored, err := dir.GetLobby(ctx, l.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Players, 1)
	assert.False(t, stored.HasPlayer(guest.Self().ID))
}

func TestLeaveHostDeletesLobby(t *testing.T) {
	ctx := context.Background()
	dir := newFakeDirectory()
	host := testManager(dir, "alice")
	l, err := host.Create(ctx, "tictactoe", 2, true)
	require.NoError(t, err)

	require.NoError(t, host.Leave(ctx, l))
	_, err = dir.GetLobby(ctx, l.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSweepGhostsReclaimsStaleLobbies(t *testing.T) {
	ctx := context.Background()
	dir := newFakeDirectory()
	host := testManager(dir, "alice")
	defer host.stopHeartbeat()
	stale, err := host.Create(ctx, "tictactoe", 2, true)
	require.NoError(t, err)

	live := testManager(dir, "carol")
	defer live.stopHeartbeat()
	fresh, err := live.Create(ctx, "tictactoe", 2, true)
	require.NoError(t, err)

	// Simulate a crashed host: its heartbeat stops aging forward.
	dir.setHeartbeat(stale.ID, time.Now().Add(-time.Minute))

	sweeper := testManager(dir, "bob")
	n, err := sweeper.SweepGhosts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = dir.GetLobby(ctx, stale.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = dir.GetLobby(ctx, fresh.ID)
	assert.NoError(t, err, "lobbies inside the timeout must survive the sweep")
}

func TestGhostsReclaimedLazilyDuringJoin(t *testing.T) {
	ctx := context.Background()
	dir := newFakeDirectory()
	host := testManager(dir, "alice")
	defer host.stopHeartbeat()
	ghost, err := host.Create(ctx, "tictactoe", 2, true)
	require.NoError(t, err)
	dir.setHeartbeat(ghost.ID, time.Now().Add(-time.Minute))

	// Force the fallback path, which is where the lazy sweep lives.
	dir.rpcErr = errSchemaGap

	joiner := testManager(dir, "bob")
	_, err = joiner.JoinPublic(ctx, "tictactoe")
	assert.ErrorIs(t, err, ErrNoOpenLobby, "the ghost must not be matched")
	_, err = dir.GetLobby(ctx, ghost.ID)
	assert.ErrorIs(t, err, ErrNotFound, "the join attempt should have swept the ghost")
}

func TestHeartbeatRefreshesLobby(t *testing.T) {
	ctx := context.Background()
	dir := newFakeDirectory()
	log := logrus.New()
	log.SetOutput(io.Discard)
	self := models.Player{ID: uuid.New(), Name: "alice"}
	m := NewManager(dir, log, self, 10*time.Millisecond, 30*time.Second)

	l, err := m.Create(ctx, "tictactoe", 2, true)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return dir.touchCount(l.ID) >= 3
	}, 2*time.Second, 5*time.Millisecond, "heartbeat never touched the lobby")

	m.stopHeartbeat()
	settled := dir.touchCount(l.ID)
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, dir.touchCount(l.ID), settled+1, "heartbeat kept beating after stop")
}
