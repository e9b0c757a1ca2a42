package handlers

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/wowsvault/replay-api/internal/models"
	"github.com/wowsvault/replay-api/internal/queue"
)

// MatchStore is the persistence surface the handlers depend on.
// *store.Store satisfies it; tests substitute mocks.
type MatchStore interface {
	Search(ctx context.Context, req models.SearchRequest) (*models.SearchResponse, error)
	MatchDetail(ctx context.Context, arenaID string) (*models.MatchDetail, error)
	FindMatch(ctx context.Context, arenaID string) (*models.MatchRecord, error)
}

// JobQueue is the job-enqueue surface of the Redis queues.
type JobQueue interface {
	EnqueueDecode(ctx context.Context, job queue.DecodeJob) error
	EnqueueRender(ctx context.Context, job queue.RenderJob) error
	DecodeDepth(ctx context.Context) int
	RenderDepth(ctx context.Context) int
}

// BlobStore is the object-store surface of the handlers.
type BlobStore interface {
	Put(key string, data []byte) error
	Get(key string) ([]byte, error)
	SignedPath(key string) string
	VerifySignedPath(key string, expires int64, sig string) error
}

type Config struct {
	Store          MatchStore
	Blobs          BlobStore
	Queue          JobQueue
	Redis          *redis.Client
	Postgres       PgQuerier
	Logger         *zap.Logger
	MaxUploadBytes int64
	RatePerMinute  int
}

type Handler struct {
	store          MatchStore
	blobs          BlobStore
	queue          JobQueue
	redis          *redis.Client
	pg             PgQuerier
	logger         *zap.SugaredLogger
	validator      *validator.Validate
	maxUploadBytes int64
	ratePerMinute  int
}

func New(cfg Config) *Handler {
	maxBytes := cfg.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = 50 * 1024 * 1024
	}
	return &Handler{
		store:          cfg.Store,
		blobs:          cfg.Blobs,
		queue:          cfg.Queue,
		redis:          cfg.Redis,
		pg:             cfg.Postgres,
		logger:         cfg.Logger.Sugar(),
		validator:      validator.New(),
		maxUploadBytes: maxBytes,
		ratePerMinute:  cfg.RatePerMinute,
	}
}
