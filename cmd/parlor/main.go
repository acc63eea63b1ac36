// cmd/parlor/main.go
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/parlor-games/parlor/internal/ai"
	"github.com/parlor-games/parlor/internal/channel"
	"github.com/parlor-games/parlor/internal/config"
	"github.com/parlor-games/parlor/internal/directory"
	"github.com/parlor-games/parlor/internal/games/tictactoe"
	"github.com/parlor-games/parlor/internal/identity"
	"github.com/parlor-games/parlor/internal/lobby"
	"github.com/parlor-games/parlor/internal/models"
	"github.com/parlor-games/parlor/internal/session"
)

const gameType = "tictactoe"

func main() {
	var (
		solo    = flag.Bool("solo", false, "play against the local AI, no network")
		host    = flag.Bool("host", false, "create a lobby and wait for an opponent")
		public  = flag.Bool("public", true, "with -host: list the lobby publicly")
		join    = flag.Bool("join", false, "join an open public lobby")
		code    = flag.String("code", "", "join a private lobby by code")
		verbose = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	logger := logrus.New()
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	if err := identity.Init(); err != nil {
		logger.Fatalf("identity init failed: %v", err)
	}
	self := resolveIdentity(logger)
	cfg := config.Load()

	switch {
	case *solo:
		runSolo(logger, cfg, self)
	case *host || *join || *code != "":
		runNetworked(logger, cfg, self, *host, *public, *code)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

// resolveIdentity uses a signed token from AUTH_TOKEN when present,
// otherwise mints a per-session guest.
func resolveIdentity(logger *logrus.Logger) models.Player {
	if token := os.Getenv("AUTH_TOKEN"); token != "" {
		p, err := identity.FromToken(token)
		if err == nil {
			return p
		}
		logger.WithError(err).Warn("user token rejected, continuing as guest")
	}
	return identity.NewGuest()
}

// runSolo wires a host synchronizer against the in-process bus with the AI
// registered as the opposing move source.
func runSolo(logger *logrus.Logger, cfg config.Config, self models.Player) {
	game := tictactoe.New()
	bus := channel.NewBus()
	opponent := identity.NewGuest()

	sync, err := session.New(session.Config{
		Self:        self.ID,
		Role:        session.RoleHost,
		Players:     []uuid.UUID{self.ID, opponent.ID},
		Game:        game,
		Channel:     bus.Subscribe("solo"),
		Log:         logger,
		SettleDelay: 10 * time.Millisecond,
		Sources:     map[int]session.MoveSource{1: ai.Policy{Depth: cfg.AIDepth}},
		AIDelayMin:  cfg.AIDelayMin,
		AIDelayMax:  cfg.AIDelayMax,
		OnUpdate:    func() { render(game) },
		OnGameOver:  func(winner int) { reportWinner(winner) },
	})
	if err != nil {
		logger.Fatalf("session setup failed: %v", err)
	}

	play(logger, sync, game)
}

// runNetworked forms a lobby through the directory, then runs the session
// over Redis pub/sub (or the websocket relay when RELAY_URL is set).
func runNetworked(logger *logrus.Logger, cfg config.Config, self models.Player, host, public bool, code string) {
	ctx := context.Background()

	store, err := directory.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("directory connect failed: %v", err)
	}
	defer store.Close()

	mgr := lobby.NewManager(store, logger, self, cfg.HeartbeatInterval, cfg.GhostTimeout)
	if _, err := mgr.SweepGhosts(ctx); err != nil {
		logger.WithError(err).Warn("boot ghost sweep failed")
	}

	var lb *models.Lobby
	switch {
	case host:
		lb, err = mgr.Create(ctx, gameType, 2, public)
		if err != nil {
			logger.Fatalf("create lobby failed: %v", err)
		}
		if !public {
			fmt.Printf("lobby code: %s\n", lb.Code)
		}
		lb = waitForOpponent(ctx, logger, store, lb)
		if err := mgr.Start(ctx, lb); err != nil {
			logger.Fatalf("start lobby failed: %v", err)
		}
	case code != "":
		lb, err = mgr.JoinPrivate(ctx, code)
		if err != nil {
			logger.Fatalf("join by code failed: %v", err)
		}
	default:
		lb, err = mgr.JoinPublic(ctx, gameType)
		if errors.Is(err, lobby.ErrNoOpenLobby) {
			logger.Fatal("no open lobby found; try -host")
		}
		if err != nil {
			logger.Fatalf("join failed: %v", err)
		}
	}
	defer func() {
		if err := mgr.Leave(context.Background(), lb); err != nil {
			logger.WithError(err).Warn("leave failed")
		}
	}()

	ch, err := openChannel(ctx, logger, cfg, lb)
	if err != nil {
		logger.Fatalf("channel subscribe failed: %v", err)
	}

	role := session.RoleGuest
	if lb.HostID == self.ID {
		role = session.RoleHost
	}
	seats := make([]uuid.UUID, 0, len(lb.Players))
	for _, p := range lb.Players {
		seats = append(seats, p.ID)
	}

	game := tictactoe.New()
	sync, err := session.New(session.Config{
		LobbyID:     lb.ID,
		Self:        self.ID,
		Role:        role,
		Players:     seats,
		Game:        game,
		Channel:     ch,
		Log:         logger,
		SettleDelay: cfg.SettleDelay,
		ResyncRetry: cfg.ResyncRetry,
		OnUpdate:    func() { render(game) },
		OnGameOver:  func(winner int) { reportWinner(winner) },
	})
	if err != nil {
		logger.Fatalf("session setup failed: %v", err)
	}

	play(logger, sync, game)
}

func openChannel(ctx context.Context, logger *logrus.Logger, cfg config.Config, lb *models.Lobby) (channel.Channel, error) {
	topic := channel.TopicFor(lb.ID)
	if cfg.RelayURL != "" {
		return channel.DialRelay(ctx, cfg.RelayURL, topic, logger)
	}
	rdb, err := channel.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		return nil, err
	}
	return channel.SubscribeRedis(ctx, rdb, topic, logger)
}

// waitForOpponent polls the directory until a second seat fills.
func waitForOpponent(ctx context.Context, logger *logrus.Logger, store *directory.Store, lb *models.Lobby) *models.Lobby {
	logger.Info("waiting for an opponent...")
	for {
		time.Sleep(2 * time.Second)
		fresh, err := store.GetLobby(ctx, lb.ID)
		if err != nil {
			logger.WithError(err).Warn("lobby poll failed")
			continue
		}
		if len(fresh.Players) >= 2 {
			return fresh
		}
	}
}

// play runs the session loop in the background and feeds stdin moves in.
func play(logger *logrus.Logger, sync *session.Synchronizer, game *tictactoe.Game) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer sync.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- sync.Run(ctx) }()

	render(game)
	fmt.Println("enter a cell number 0-8, or q to quit")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "q" {
			return
		}
		cell, err := strconv.Atoi(line)
		if err != nil || cell < 0 || cell > 8 {
			fmt.Println("cells are 0-8")
			continue
		}
		sync.Submit(tictactoe.Move(cell))
		if over, _ := sync.Over(); over {
			return
		}
	}
	cancel()
	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Error("session ended")
	}
}

func render(game *tictactoe.Game) {
	marks := map[int]string{-1: ".", 0: "X", 1: "O"}
	board := game.Board()
	fmt.Println()
	for row := 0; row < 3; row++ {
		fmt.Printf(" %s %s %s\n",
			marks[board[row*3]], marks[board[row*3+1]], marks[board[row*3+2]])
	}
}

func reportWinner(winner int) {
	switch winner {
	case -1:
		fmt.Println("draw")
	case 0:
		fmt.Println("X wins")
	default:
		fmt.Println("O wins")
	}
}
