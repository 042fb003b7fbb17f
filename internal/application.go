package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rocketscienceinc/magic-tictactoe/internal/config"
	"github.com/rocketscienceinc/magic-tictactoe/internal/repository"
	"github.com/rocketscienceinc/magic-tictactoe/internal/repository/storage"
	"github.com/rocketscienceinc/magic-tictactoe/internal/selfplay"
	"github.com/rocketscienceinc/magic-tictactoe/internal/service"
	"github.com/rocketscienceinc/magic-tictactoe/internal/tictactoe"
	"github.com/rocketscienceinc/magic-tictactoe/transport/rest"
	"github.com/rocketscienceinc/magic-tictactoe/transport/websocket"
)

const shutdownTimeout = 5 * time.Second

var ErrAddrNotFound = errors.New("redis address string is empty")

// RunApp - runs the application until SIGINT or SIGTERM.
func RunApp(logger *slog.Logger, conf *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return Run(ctx, logger, conf)
}

// Run serves HTTP until ctx is cancelled, then shuts the server down gracefully.
func Run(ctx context.Context, logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	matchRepo, closeRepo, err := newMatchRepository(ctx, log, conf)
	if err != nil {
		return err
	}
	defer closeRepo()

	seed := time.Now().UnixNano()
	matchService := service.NewMatchService(logger, matchRepo, tictactoe.NewPolicy(rand.NewSource(seed)))
	selfPlayer := selfplay.New(logger, &http.Client{}, tictactoe.NewPolicy(rand.NewSource(seed+1)), conf.SelfPlay.Timeout)

	handlers := rest.NewHandlers(logger, matchService, selfPlayer)
	wsServer := websocket.New(logger, matchService)
	srv := rest.NewServer(conf.HTTPPort, rest.NewRouter(handlers, wsServer.Watch))

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("Starting HTTP server", "port", conf.HTTPPort, "storage", conf.Storage)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("Application context canceled, shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down HTTP server: %w", err)
		}
		return nil
	})

	if err = group.Wait(); err != nil {
		return fmt.Errorf("app stopped: %w", err)
	}

	return nil
}

func newMatchRepository(ctx context.Context, log *slog.Logger, conf *config.Config) (repository.MatchRepository, func(), error) {
	if conf.Storage != config.StorageRedis {
		return repository.NewMemoryMatchRepository(), func() {}, nil
	}

	if conf.Redis.Host == "" || conf.Redis.Port == "" {
		return nil, nil, ErrAddrNotFound
	}

	redisStorage, err := storage.NewRedisStorage(ctx, conf.Redis.GetRedisAddr(), conf.Redis.Password, conf.Redis.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("could not connect to redis storage: %w", err)
	}

	closeFn := func() {
		if err := redisStorage.Close(); err != nil {
			log.Error("could not close redis storage", "error", err)
		}
	}

	return repository.NewMatchRepository(redisStorage.Connection, conf.Redis.MatchTTL), closeFn, nil
}
