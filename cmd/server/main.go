package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wowsvault/replay-api/internal/analytics"
	"github.com/wowsvault/replay-api/internal/assembler"
	"github.com/wowsvault/replay-api/internal/blob"
	"github.com/wowsvault/replay-api/internal/config"
	"github.com/wowsvault/replay-api/internal/handlers"
	"github.com/wowsvault/replay-api/internal/pipeline"
	"github.com/wowsvault/replay-api/internal/queue"
	"github.com/wowsvault/replay-api/internal/replay"
	"github.com/wowsvault/replay-api/internal/stats"
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

	// Schema first: everything below assumes the tables exist.
	if err := store.Migrate(cfg.PostgresURL); err != nil {
		log.Fatalw("Migration failed", "error", err)
	}

	pg, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalw("Postgres connect failed", "error", err)
	}
	defer pg.Close()

	chOpts, err := clickhouse.ParseDSN(cfg.ClickHouseURL)
	if err != nil {
		log.Fatalw("ClickHouse DSN invalid", "error", err)
	}
	ch, err := clickhouse.Open(chOpts)
	if err != nil {
		log.Fatalw("ClickHouse connect failed", "error", err)
	}
	defer ch.Close()

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

	ships, err := stats.LoadShipParams()
	if err != nil {
		log.Fatalw("Ship params load failed", "error", err)
	}
	mods, err := stats.LoadModernizations()
	if err != nil {
		log.Fatalw("Modernizations load failed", "error", err)
	}

	var statsSink pipeline.StatsSink
	chWriter := analytics.NewWriter(ch, logger)
	if err := chWriter.EnsureSchema(ctx); err != nil {
		// Analytics is a derived sink; run degraded rather than refuse.
		log.Warnw("ClickHouse schema setup failed, analytics disabled", "error", err)
	} else {
		statsSink = chWriter
	}

	jobs := queue.New(rdb)
	st := store.New(pg, logger)

	pool := pipeline.NewPool(pipeline.PoolConfig{
		WorkerCount:   cfg.WorkerCount,
		DecodeTimeout: cfg.DecodeTimeout,
		Decoder:       replay.NewDecoder(logger),
		Parser:        stats.NewParser(ships, mods, logger),
		Assembler:     assembler.New(ships),
		Store:         st,
		Analytics:     statsSink,
		Blobs:         blobs,
		Queue:         jobs,
		Logger:        logger,
	})
	pool.Start(ctx)
	defer pool.Stop()

	h := handlers.New(handlers.Config{
		Store:          st,
		Blobs:          blobs,
		Queue:          jobs,
		Redis:          rdb,
		Postgres:       pg,
		Logger:         logger,
		MaxUploadBytes: cfg.MaxUploadBytes,
		RatePerMinute:  cfg.UploadRatePerMinute,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h.Router(cfg.AllowedOrigins),
		ReadTimeout:  2 * time.Minute,
		WriteTimeout: 5 * time.Minute,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infow("HTTP server listening", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if cfg.ReplayRetention > 0 {
		g.Go(func() error {
			return runJanitor(gctx, blobs, cfg.ReplayRetention, log)
		})
	}

	if err := g.Wait(); err != nil {
		log.Fatalw("Server exited", "error", err)
	}
	log.Info("Server stopped")
}

// runJanitor prunes raw replay blobs past the retention window once an hour.
func runJanitor(ctx context.Context, blobs *blob.Store, retention time.Duration, log *zap.SugaredLogger) error {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			pruned, err := blobs.PruneReplays(retention)
			if err != nil {
				log.Warnw("Replay prune failed", "error", err)
				continue
			}
			if pruned > 0 {
				log.Infow("Pruned expired replay blobs", "count", pruned)
			}
		}
	}
}
