package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/HuongNV13/moodle/cmd/syncworker/worker"
	"github.com/HuongNV13/moodle/common/bootstrap"
	"github.com/HuongNV13/moodle/common/clients"
	rediscommon "github.com/HuongNV13/moodle/common/redis"
	"github.com/HuongNV13/moodle/common/repository"
	"github.com/HuongNV13/moodle/common/server"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The worker needs no in-process cache
	components, err := bootstrap.Setup(ctx, "syncworker", bootstrap.WithoutCache())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap syncworker: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	cfg := components.Config

	redisRaw := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisRaw.Close()
	redisClient := rediscommon.NewClient(redisRaw, components.Logger)

	queueRepo := repository.NewSyncQueueRepository(components.DB)
	roomRepo := repository.NewRoomRepository(components.DB)

	httpClient := clients.NewHTTPClient(&http.Client{Timeout: 30 * time.Second}, components.Logger)
	gateway := clients.NewRoomsClient(cfg.Sync.RoomsURL, httpClient, components.Logger)

	drainer := worker.NewDrainer(
		queueRepo,
		roomRepo,
		gateway,
		redisClient,
		cfg.Sync.LeaseTTL,
		components.Logger,
	)

	go runDrainLoop(ctx, drainer, cfg.Sync.Interval, components)

	// The health listener doubles as the process lifecycle: it blocks until
	// SIGTERM, then the deferred cleanup runs.
	srv := server.New("syncworker", cfg.Service.Port, server.HealthHandler(), components.Logger)
	if err := srv.Start(); err != nil {
		components.Logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// runDrainLoop invokes the drainer on the configured interval until the
// context is cancelled. One invocation drains at most one entry type.
func runDrainLoop(ctx context.Context, drainer *worker.Drainer, interval time.Duration, components *bootstrap.Components) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	components.Logger.Info("sync drain loop started", "interval", interval.String())

	for {
		select {
		case <-ctx.Done():
			components.Logger.Info("sync drain loop stopped")
			return
		case <-ticker.C:
			if err := drainer.Drain(ctx); err != nil {
				components.Logger.Error("drain invocation failed", "error", err)
			}
		}
	}
}
