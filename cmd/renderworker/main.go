package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/wowsvault/replay-api/internal/blob"
	"github.com/wowsvault/replay-api/internal/config"
	"github.com/wowsvault/replay-api/internal/notify"
	"github.com/wowsvault/replay-api/internal/queue"
	"github.com/wowsvault/replay-api/internal/render"
	"github.com/wowsvault/replay-api/internal/replay"
	"github.com/wowsvault/replay-api/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	var logger *zap.Logger
	if cfg.Env == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pg, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalw("Postgres connect failed", "error", err)
	}
	defer pg.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalw("Redis URL invalid", "error", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	blobs, err := blob.NewStore(cfg.BlobRoot, cfg.BlobSigningKey, cfg.BlobURLTTL)
	if err != nil {
		log.Fatalw("Blob store init failed", "error", err)
	}

	worker := render.NewWorker(render.WorkerConfig{
		Timeout:  cfg.RenderTimeout,
		Renderer: render.NewRenderer(cfg.FFmpegPath, logger),
		Decoder:  replay.NewDecoder(logger),
		Store:    store.New(pg, logger),
		Blobs:    blobs,
		Queue:    queue.New(rdb),
		Notifier: notify.New(cfg.DiscordWebhookURL, cfg.FrontendURL, logger),
		Logger:   logger,
	})
	worker.Start(ctx)

	<-ctx.Done()
	worker.Stop()
	log.Info("Render worker stopped")
}
