package suite

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"

	"github.com/rocketscienceinc/magic-tictactoe/internal/entity"
	"github.com/rocketscienceinc/magic-tictactoe/internal/repository"
	"github.com/rocketscienceinc/magic-tictactoe/internal/repository/storage"
)

const (
	containerLifetime = 120
	maxWaitDuration   = 120 * time.Second
)

const (
	redisPort  = "6379/tcp"
	redisImage = "redis"
	redisTag   = "alpine"
)

// Suite is a match repository backed by a throwaway Redis container.
type Suite struct {
	*testing.T

	Storage *storage.RedisStorage
	Matches repository.MatchRepository
}

// New starts Redis in Docker and wires a match repository with the given ttl to it.
// Tests are skipped when Docker is unavailable.
func New(t *testing.T, ttl time.Duration) (context.Context, *Suite) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), maxWaitDuration)
	t.Cleanup(cancel)

	redisStorage := startRedis(ctx, t)

	return ctx, &Suite{
		T:       t,
		Storage: redisStorage,
		Matches: repository.NewMatchRepository(redisStorage.Connection, ttl),
	}
}

// SaveMatch stores a match built from alternating positions, first mover first.
func (that *Suite) SaveMatch(ctx context.Context, id string, serverStarts bool, positions ...int) *entity.Match {
	that.Helper()

	match := entity.NewMatch(id)
	match.ServerStarts = serverStarts

	for _, position := range positions {
		if err := match.ApplyMove(position, match.Turn()); err != nil {
			that.Fatalf("could not play %d: %v", position, err)
		}
		match.UpdateStatus()
	}

	if err := that.Matches.CreateOrUpdate(ctx, match); err != nil {
		that.Fatalf("could not save match: %v", err)
	}

	return match
}

func startRedis(ctx context.Context, t *testing.T) *storage.RedisStorage {
	t.Helper()

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("docker is not available: %v", err)
	}

	if err = pool.Client.Ping(); err != nil {
		t.Skipf("docker is not reachable: %v", err)
	}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: redisImage,
		Tag:        redisTag,
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("could not start redis: %v", err)
	}

	// hard kill if cleanup never runs
	_ = resource.Expire(containerLifetime)

	pool.MaxWait = maxWaitDuration

	var redisStorage *storage.RedisStorage
	if err = pool.Retry(func() error {
		var connErr error
		redisStorage, connErr = storage.NewRedisStorage(ctx, resource.GetHostPort(redisPort), "", 0)
		return connErr
	}); err != nil {
		_ = pool.Purge(resource)
		t.Fatalf("could not connect to redis: %v", err)
	}

	t.Cleanup(func() {
		if err := shutdown(pool, resource, redisStorage); err != nil {
			t.Errorf("could not stop redis: %v", err)
		}
	})

	return redisStorage
}

func shutdown(pool *dockertest.Pool, resource *dockertest.Resource, redisStorage *storage.RedisStorage) error {
	closeErr := redisStorage.Close()

	if err := pool.Purge(resource); err != nil {
		return fmt.Errorf("failed to purge container: %w", err)
	}

	return closeErr
}
