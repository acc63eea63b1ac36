// internal/session/session.go
package session

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/parlor-games/parlor/internal/channel"
	"github.com/parlor-games/parlor/internal/turn"
)

// Role distinguishes the single authoritative peer from everyone else.
type Role int

const (
	// RoleHost owns the canonical state and is the only peer whose applied
	// moves count. Authority is structural: no guest code path writes to
	// canonical state.
	RoleHost Role = iota
	// RoleGuest holds a read-only shadow copy rebuilt from host broadcasts.
	RoleGuest
)

// Config wires one peer's synchronizer.
type Config struct {
	LobbyID uuid.UUID
	Self    uuid.UUID
	Role    Role
	// Players is the ordered seat list, host at seat 0.
	Players []uuid.UUID
	Game    Game
	Channel channel.Channel
	Log     *logrus.Logger

	// SettleDelay is how long the host waits after subscribing before the
	// first init_state, letting guests finish subscribing. Default 400ms.
	SettleDelay time.Duration
	// ResyncRetry is how long a guest waits for init_state before asking
	// for it, re-armed until one lands. Default 600ms.
	ResyncRetry time.Duration

	// Sources maps seats to local move sources (the AI in solo play).
	// Host-side only; remote seats stay nil and arrive over the channel.
	Sources map[int]MoveSource
	// AIDelayMin/Max bound the artificial thinking delay before a local
	// source is consulted, preserving turn pacing.
	AIDelayMin time.Duration
	AIDelayMax time.Duration

	// OnUpdate, if set, is called from the event loop after the local view
	// of the state changes; UIs hang rendering off it.
	OnUpdate func()
	// OnGameOver, if set, is called from the event loop when the session
	// reaches its terminal state.
	OnGameOver func(winner int)
}

type tickKind int

const (
	tickSettle tickKind = iota
	tickResync
	tickSource
)

type tick struct {
	kind tickKind
	seq  int
}

// Synchronizer runs one peer's half of the session protocol. All state
// transitions happen on the single Run goroutine, the Go rendition of the
// original single-threaded event loop; the mutex only covers the accessors.
type Synchronizer struct {
	cfg    Config
	log    *logrus.Entry
	rng    *rand.Rand
	cursor turn.Cursor

	mu         sync.Mutex
	synced     bool
	over       bool
	winner     int
	pendingOwn bool
	seq        int // increments on every cursor change; staleness guard for timers

	submits  chan map[string]interface{}
	restarts chan int64
	ticks    chan tick
	done     chan struct{}
	once     sync.Once

	settleTimer *time.Timer
	resyncTimer *time.Timer
	sourceTimer *time.Timer
}

// New builds a Synchronizer; call Run to start it.
func New(cfg Config) (*Synchronizer, error) {
	if cfg.Game == nil || cfg.Channel == nil {
		return nil, fmt.Errorf("session config missing game or channel")
	}
	if len(cfg.Players) < 1 {
		return nil, fmt.Errorf("session has no players")
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 400 * time.Millisecond
	}
	if cfg.ResyncRetry <= 0 {
		cfg.ResyncRetry = 600 * time.Millisecond
	}
	if cfg.AIDelayMin <= 0 {
		cfg.AIDelayMin = 300 * time.Millisecond
	}
	if cfg.AIDelayMax < cfg.AIDelayMin {
		cfg.AIDelayMax = cfg.AIDelayMin
	}
	if cfg.Log == nil {
		cfg.Log = logrus.New()
	}
	s := &Synchronizer{
		cfg: cfg,
		log: cfg.Log.WithFields(logrus.Fields{
			"lobby_id": cfg.LobbyID,
			"peer":     cfg.Self,
			"host":     cfg.Role == RoleHost,
		}),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		cursor:  turn.NewCursor(len(cfg.Players)),
		winner:  -1,
		submits:  make(chan map[string]interface{}, 8),
		restarts: make(chan int64, 1),
		ticks:    make(chan tick, 8),
		done:     make(chan struct{}),
	}
	return s, nil
}

// Run drives the session until the context is cancelled or Close is called.
// It is the only goroutine that touches game state.
func (s *Synchronizer) Run(ctx context.Context) error {
	defer s.stopTimers()

	if s.cfg.Role == RoleHost {
		s.armSettle()
	} else {
		s.armResync()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		case ev, ok := <-s.cfg.Channel.Events():
			if !ok {
				return nil
			}
			s.dispatch(ctx, ev)
		case mv := <-s.submits:
			s.submitLocal(ctx, mv)
		case seed := <-s.restarts:
			s.restart(ctx, seed)
		case tk := <-s.ticks:
			s.handleTick(ctx, tk)
		}
	}
}

// Close unsubscribes the channel and stops every timer in one cleanup step.
// Safe to call more than once.
func (s *Synchronizer) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.cfg.Channel.Close()
	})
	return err
}

// Submit hands the local player's move to the session. On the host this is
// a direct local dispatch through the same apply path network moves take;
// on a guest it is applied optimistically and proposed to the host.
func (s *Synchronizer) Submit(mv map[string]interface{}) {
	select {
	case s.submits <- mv:
	case <-s.done:
	}
}

// Cursor returns the peer's current view of the turn cursor.
func (s *Synchronizer) Cursor() turn.Cursor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Synced reports whether a guest has received its first snapshot. Hosts are
// always synced.
func (s *Synchronizer) Synced() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Role == RoleHost || s.synced
}

// Over reports whether the session reached its terminal state, with the
// winning seat (-1 for none/draw).
func (s *Synchronizer) Over() (bool, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.over, s.winner
}

// ActivePlayer returns the id of the seat the cursor points at.
func (s *Synchronizer) ActivePlayer() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Players[s.cursor.Active]
}

// NewGame restarts play within the same lobby. Host only; guests learn of
// the restart from the new_game broadcast. The restart itself runs on the
// event loop goroutine, like every other state transition.
func (s *Synchronizer) NewGame(_ context.Context, seed int64) error {
	if s.cfg.Role != RoleHost {
		return fmt.Errorf("only the host can start a new game")
	}
	select {
	case s.restarts <- seed:
	case <-s.done:
	}
	return nil
}

func (s *Synchronizer) restart(ctx context.Context, seed int64) {
	s.mu.Lock()
	s.cfg.Game.Reset(seed)
	s.cursor = turn.NewCursor(len(s.cfg.Players))
	s.over = false
	s.winner = -1
	s.seq++
	s.mu.Unlock()

	s.publish(ctx, channel.Event{Type: channel.EventNewGame, Actor: s.cfg.Self, Seed: seed})
	s.publishInit(ctx)
	s.notifyUpdate()
	s.armSource(ctx)
}

func (s *Synchronizer) dispatch(ctx context.Context, ev channel.Event) {
	if s.cfg.Role == RoleHost {
		s.dispatchHost(ctx, ev)
	} else {
		s.dispatchGuest(ctx, ev)
	}
}

// dispatchHost: the host reacts to guest proposals and resync requests and
// ignores its own echoed broadcasts.
func (s *Synchronizer) dispatchHost(ctx context.Context, ev channel.Event) {
	switch ev.Type {
	case channel.EventRequestState:
		// Sole recovery mechanism for late or gapped guests.
		s.publishInit(ctx)
	case channel.EventMove:
		if ev.Confirmed() {
			return // our own confirmation echoed back
		}
		s.applyAsHost(ctx, ev.Actor, ev.Move)
	case channel.EventInitState, channel.EventNewGame, channel.EventGameOver:
		// Host is the only sender of these; echoes carry nothing new.
	}
}

// dispatchGuest: guests rebuild their shadow copy from host broadcasts and
// never apply anything else.
func (s *Synchronizer) dispatchGuest(ctx context.Context, ev channel.Event) {
	switch ev.Type {
	case channel.EventInitState:
		s.restoreSnapshot(ev, "init_state")
	case channel.EventMove:
		if !ev.Confirmed() {
			return // proposals, including our own echo, are the host's business
		}
		s.applyConfirmed(ev)
	case channel.EventNewGame:
		s.mu.Lock()
		s.synced = false
		s.pendingOwn = false
		s.mu.Unlock()
		s.armResync()
	case channel.EventGameOver:
		s.restoreSnapshot(ev, "game_over")
		s.mu.Lock()
		s.over = true
		s.winner = ev.Winner
		cb := s.cfg.OnGameOver
		s.mu.Unlock()
		if cb != nil {
			cb(ev.Winner)
		}
	case channel.EventRequestState:
		// Another guest asking; only the host answers.
	}
}

func (s *Synchronizer) submitLocal(ctx context.Context, mv map[string]interface{}) {
	if s.cfg.Role == RoleHost {
		// Local dispatch: the host's own move runs through the exact path a
		// remote move takes, keeping the code paths symmetric.
		s.applyAsHost(ctx, s.cfg.Self, mv)
		return
	}

	// Guest: optimistic local apply, then propose and wait for the
	// host-confirmed update.
	seat := s.seatOf(s.cfg.Self)
	s.mu.Lock()
	effect, err := s.cfg.Game.Apply(seat, mv)
	if err != nil {
		s.mu.Unlock()
		s.log.WithError(err).Warn("local move rejected by game rules")
		return
	}
	next, penalty := turn.Advance(s.cursor, effect)
	if penalty != nil {
		// Mirror the host: the optimistic shadow copy applies the penalty
		// draw too, or the local view lags until the next snapshot.
		if d, ok := s.cfg.Game.(Drawer); ok {
			if err := d.DrawPenalty(penalty.Seat, penalty.Count); err != nil {
				s.log.WithError(err).Warn("penalty draw failed")
			}
		}
	}
	s.cursor = next
	s.pendingOwn = true
	s.mu.Unlock()

	s.publish(ctx, channel.Event{
		Type:   channel.EventMove,
		Actor:  s.cfg.Self,
		Move:   mv,
		Effect: effect,
	})
	s.notifyUpdate()
}

// applyAsHost validates the move against the turn cursor, applies it to
// canonical state, advances the cursor, and rebroadcasts the move together
// with the resulting full state so peers converge without re-deriving
// effects.
func (s *Synchronizer) applyAsHost(ctx context.Context, actor uuid.UUID, mv map[string]interface{}) {
	s.mu.Lock()
	if s.over {
		s.mu.Unlock()
		return
	}
	seat := s.seatOf(actor)
	if seat != s.cursor.Active {
		s.mu.Unlock()
		s.log.WithFields(logrus.Fields{
			"actor": actor,
			"seat":  seat,
		}).Warn("dropping move from inactive seat")
		return
	}

	effect, err := s.cfg.Game.Apply(seat, mv)
	if err != nil {
		s.mu.Unlock()
		s.log.WithError(err).WithField("actor", actor).Warn("dropping illegal move")
		return
	}

	next, penalty := turn.Advance(s.cursor, effect)
	if penalty != nil {
		if d, ok := s.cfg.Game.(Drawer); ok {
			if err := d.DrawPenalty(penalty.Seat, penalty.Count); err != nil {
				s.log.WithError(err).Warn("penalty draw failed")
			}
		}
	}
	s.cursor = next
	s.seq++

	gameOver := s.cfg.Game.Over()
	if gameOver {
		s.over = true
		s.winner = s.cfg.Game.Winner()
	}
	winner := s.winner
	cb := s.cfg.OnGameOver
	s.mu.Unlock()

	snap, err := s.snapshot()
	if err != nil {
		s.log.WithError(err).Error("failed to snapshot state after move")
		return
	}

	if gameOver {
		cursor := s.Cursor()
		s.publish(ctx, channel.Event{
			Type:   channel.EventGameOver,
			Actor:  s.cfg.Self,
			State:  snap,
			Cursor: &cursor,
			Winner: winner,
		})
		s.notifyUpdate()
		if cb != nil {
			cb(winner)
		}
		return
	}

	cursor := s.Cursor()
	s.publish(ctx, channel.Event{
		Type:   channel.EventMove,
		Actor:  actor,
		Move:   mv,
		Effect: effect,
		State:  snap,
		Cursor: &cursor,
	})
	s.notifyUpdate()

	s.armSource(ctx)
}

// applyConfirmed folds a host-confirmed move into the guest's shadow copy.
// The guest's own confirmed move only adopts the cursor: the optimistic
// local apply already happened, and the echo must not count twice.
func (s *Synchronizer) applyConfirmed(ev channel.Event) {
	s.mu.Lock()

	if ev.Actor == s.cfg.Self && s.pendingOwn {
		s.pendingOwn = false
		if ev.Cursor != nil {
			s.cursor = *ev.Cursor
		}
		s.mu.Unlock()
		s.notifyUpdate()
		return
	}

	if err := s.cfg.Game.Restore(ev.State); err != nil {
		s.log.WithError(err).Warn("failed to restore confirmed state; requesting resync")
		s.synced = false
		s.mu.Unlock()
		s.armResync()
		return
	}
	if ev.Cursor != nil {
		s.cursor = *ev.Cursor
	}
	// A confirmed move carries the full state, so it also syncs a guest
	// that missed init_state.
	s.synced = true
	s.mu.Unlock()
	s.notifyUpdate()
}

func (s *Synchronizer) restoreSnapshot(ev channel.Event, what string) {
	s.mu.Lock()
	if err := s.cfg.Game.Restore(ev.State); err != nil {
		s.mu.Unlock()
		s.log.WithError(err).Warnf("failed to restore %s snapshot", what)
		return
	}
	if ev.Cursor != nil {
		s.cursor = *ev.Cursor
	}
	s.synced = true
	s.pendingOwn = false
	s.mu.Unlock()
	s.notifyUpdate()
}

func (s *Synchronizer) handleTick(ctx context.Context, tk tick) {
	switch tk.kind {
	case tickSettle:
		s.publishInit(ctx)
		s.armSource(ctx)
	case tickResync:
		s.mu.Lock()
		needed := !s.synced && !s.over
		s.mu.Unlock()
		if needed {
			s.publish(ctx, channel.Event{Type: channel.EventRequestState, Actor: s.cfg.Self})
			s.armResync()
		}
	case tickSource:
		s.runSource(ctx, tk.seq)
	}
}

// runSource consults the locally registered move source for the active
// seat, unless the turn already moved on while the thinking delay elapsed.
func (s *Synchronizer) runSource(ctx context.Context, seq int) {
	s.mu.Lock()
	if seq != s.seq || s.over {
		s.mu.Unlock()
		return
	}
	seat := s.cursor.Active
	src := s.cfg.Sources[seat]
	actor := s.cfg.Players[seat]
	s.mu.Unlock()
	if src == nil {
		return
	}

	mv, err := src.ChooseMove(ctx, s.cfg.Game, seat)
	if err != nil {
		s.log.WithError(err).WithField("seat", seat).Warn("move source failed")
		return
	}
	s.applyAsHost(ctx, actor, mv)
}

// armSource schedules the active seat's local move source after an
// artificial thinking delay, if one is registered. Host only: in
// multiplayer no seat has a local source except the host's own input,
// which arrives through Submit instead.
func (s *Synchronizer) armSource(ctx context.Context) {
	if s.cfg.Role != RoleHost || len(s.cfg.Sources) == 0 {
		return
	}
	s.mu.Lock()
	seat := s.cursor.Active
	seq := s.seq
	over := s.over
	_, hasSource := s.cfg.Sources[seat]
	s.mu.Unlock()
	if over || !hasSource {
		return
	}

	delay := s.cfg.AIDelayMin
	if jitter := s.cfg.AIDelayMax - s.cfg.AIDelayMin; jitter > 0 {
		delay += time.Duration(s.rng.Int63n(int64(jitter)))
	}
	if s.sourceTimer != nil {
		s.sourceTimer.Stop()
	}
	s.sourceTimer = time.AfterFunc(delay, func() {
		select {
		case s.ticks <- tick{kind: tickSource, seq: seq}:
		case <-s.done:
		}
	})
}

func (s *Synchronizer) armSettle() {
	if s.settleTimer != nil {
		s.settleTimer.Stop()
	}
	s.settleTimer = time.AfterFunc(s.cfg.SettleDelay, func() {
		select {
		case s.ticks <- tick{kind: tickSettle}:
		case <-s.done:
		}
	})
}

func (s *Synchronizer) armResync() {
	if s.resyncTimer != nil {
		s.resyncTimer.Stop()
	}
	s.resyncTimer = time.AfterFunc(s.cfg.ResyncRetry, func() {
		select {
		case s.ticks <- tick{kind: tickResync}:
		case <-s.done:
		}
	})
}

func (s *Synchronizer) stopTimers() {
	for _, t := range []*time.Timer{s.settleTimer, s.resyncTimer, s.sourceTimer} {
		if t != nil {
			t.Stop()
		}
	}
}

func (s *Synchronizer) publishInit(ctx context.Context) {
	snap, err := s.snapshot()
	if err != nil {
		s.log.WithError(err).Error("failed to snapshot state for init_state")
		return
	}
	cursor := s.Cursor()
	s.publish(ctx, channel.Event{
		Type:   channel.EventInitState,
		Actor:  s.cfg.Self,
		State:  snap,
		Cursor: &cursor,
	})
}

func (s *Synchronizer) snapshot() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Game.Snapshot()
}

// publish is fire-and-forget: a dropped move is repaired by the next
// full-state broadcast, not retried.
func (s *Synchronizer) publish(ctx context.Context, ev channel.Event) {
	if err := s.cfg.Channel.Publish(ctx, ev); err != nil {
		s.log.WithError(err).WithField("event", ev.Type).Warn("publish failed")
	}
}

func (s *Synchronizer) notifyUpdate() {
	if s.cfg.OnUpdate != nil {
		s.cfg.OnUpdate()
	}
}

func (s *Synchronizer) seatOf(id uuid.UUID) int {
	for i, p := range s.cfg.Players {
		if p == id {
			return i
		}
	}
	return -1
}
