// Package pipeline implements the decode worker pool: each worker pulls an
// upload off the decode queue and runs Decoder -> StatsParser ->
// MatchAssembler -> Persister, then enqueues render jobs. Workers are
// straight-line sequential; concurrency comes from running several of them.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/wowsvault/replay-api/internal/assembler"
	"github.com/wowsvault/replay-api/internal/models"
	"github.com/wowsvault/replay-api/internal/queue"
	"github.com/wowsvault/replay-api/internal/replay"
	"github.com/wowsvault/replay-api/internal/stats"
	"github.com/wowsvault/replay-api/internal/store"
)

// Prometheus metrics
var (
	replaysDecoded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wows_replays_decoded_total",
		Help: "Total number of replays decoded successfully",
	})

	replaysFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wows_replays_failed_total",
		Help: "Total number of replays that failed decoding, by failure kind",
	}, []string{"kind"})

	matchesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wows_matches_created_total",
		Help: "Total number of MATCH records created",
	})

	matchesMerged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wows_matches_merged_total",
		Help: "Total number of uploads merged into existing MATCH records",
	})

	decodeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wows_decode_duration_seconds",
		Help:    "Duration of the full decode pipeline per upload",
		Buckets: prometheus.DefBuckets,
	})

	renderJobsEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wows_render_jobs_enqueued_total",
		Help: "Total number of render jobs enqueued",
	})
)

// Persister is the write surface of the store the pipeline depends on.
// *store.Store satisfies it; tests substitute fakes.
type Persister interface {
	CreateOrMergeMatch(ctx context.Context, match *models.MatchRecord) (store.PutResult, error)
	PutStats(ctx context.Context, stats *models.StatsRecord) (bool, error)
	PutUpload(ctx context.Context, upload *models.UploadRecord) error
	WriteIndexes(ctx context.Context, match *models.MatchRecord) error
	RecordDecodeFailure(ctx context.Context, uploadKey, kind, detail string) error
}

// JobQueue is the queue surface of the pipeline.
type JobQueue interface {
	DequeueDecode(ctx context.Context, timeout time.Duration) (*queue.DecodeJob, error)
	EnqueueRender(ctx context.Context, job queue.RenderJob) error
}

// BlobGetter fetches uploaded replay blobs.
type BlobGetter interface {
	Get(key string) ([]byte, error)
}

// StatsSink receives flattened per-player rows; nil disables analytics.
type StatsSink interface {
	WriteMatch(ctx context.Context, match *models.MatchRecord, stats *models.StatsRecord) error
}

// PoolConfig configures the pipeline worker pool.
type PoolConfig struct {
	WorkerCount   int
	DecodeTimeout time.Duration

	Decoder   *replay.Decoder
	Parser    *stats.Parser
	Assembler *assembler.Assembler
	Store     Persister
	Analytics StatsSink
	Blobs     BlobGetter
	Queue     JobQueue
	Logger    *zap.Logger
}

// Pool manages the decode workers.
type Pool struct {
	cfg    PoolConfig
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.SugaredLogger
}

func NewPool(cfg PoolConfig) *Pool {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.DecodeTimeout <= 0 {
		cfg.DecodeTimeout = 30 * time.Second
	}
	return &Pool{cfg: cfg, logger: cfg.Logger.Sugar()}
}

// Start launches the worker goroutines.
func (p *Pool) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)

	for i := 0; i < p.cfg.WorkerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	p.logger.Infow("Pipeline worker pool started", "workers", p.cfg.WorkerCount)
}

// Stop cancels the pool context, which in-flight jobs run under, and waits for
// the workers to return.
func (p *Pool) Stop() {
	p.logger.Info("Stopping pipeline worker pool...")
	p.cancel()
	p.wg.Wait()
	p.logger.Info("Pipeline worker pool stopped")
}

// worker pulls decode jobs until the pool context is canceled.
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	p.logger.Infow("Pipeline worker started", "worker", id)
	for {
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		job, err := p.cfg.Queue.DequeueDecode(p.ctx, 5*time.Second)
		if err != nil {
			if p.ctx.Err() != nil {
				return
			}
			p.logger.Errorw("Dequeue failed", "worker", id, "error", err)
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			continue
		}

		p.ProcessUpload(p.ctx, job)
	}
}

// ProcessUpload runs the full pipeline for one uploaded replay. It is
// idempotent: re-running the same job converges on identical records, so a
// crashed worker is recovered by re-enqueueing the storage event.
func (p *Pool) ProcessUpload(ctx context.Context, job *queue.DecodeJob) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.DecodeTimeout)
	defer cancel()

	start := time.Now()
	defer func() { decodeDuration.Observe(time.Since(start).Seconds()) }()

	log := p.logger.With("uploadKey", job.UploadKey, "blobKey", job.BlobKey)

	data, err := p.cfg.Blobs.Get(job.BlobKey)
	if err != nil {
		log.Errorw("Replay blob missing", "error", err)
		p.recordFailure(ctx, job, err)
		return
	}

	decoded, err := p.cfg.Decoder.Decode(data)
	if err != nil {
		log.Warnw("Decode failed", "kind", replay.FailureKind(err), "error", err)
		p.recordFailure(ctx, job, err)
		return
	}

	playerStats, err := p.cfg.Parser.Parse(decoded)
	if err != nil {
		if errors.Is(err, stats.ErrIndexMissing) {
			// Same operational meaning as an unsupported client version:
			// a new client shipped before its index table landed.
			log.Errorw("Index table missing for client version", "version", decoded.ClientVersion)
			p.recordFailure(ctx, job, err)
			return
		}
		log.Warnw("Stats parse failed, persisting metadata only", "error", err)
	}
	if decoded.BattleStats == nil {
		log.Infow("Incomplete replay, persisting without stats")
	}

	asm, err := p.cfg.Assembler.Assemble(decoded, playerStats, assembler.UploadInfo{
		BlobKey:    job.BlobKey,
		FileName:   job.FileName,
		FileSize:   job.FileSize,
		UploadedBy: job.UploadedBy,
		UploadedAt: job.UploadedAt,
	})
	if err != nil {
		log.Errorw("Assembly failed", "error", err)
		p.recordFailure(ctx, job, err)
		return
	}

	result, err := p.cfg.Store.CreateOrMergeMatch(ctx, &asm.Match)
	if err != nil {
		// Exhausted conflict retries are transient; the next storage event
		// for this key re-runs the pipeline.
		log.Errorw("Match write failed", "arenaUniqueID", asm.Match.ArenaUniqueID, "error", err)
		return
	}
	if result.Created {
		matchesCreated.Inc()
	} else {
		matchesMerged.Inc()
	}

	statsCreated := false
	if asm.Stats != nil {
		statsCreated, err = p.cfg.Store.PutStats(ctx, asm.Stats)
		if err != nil {
			log.Errorw("Stats write failed", "error", err)
		}
	}

	if err := p.cfg.Store.PutUpload(ctx, &asm.Upload); err != nil {
		log.Errorw("Upload record write failed", "error", err)
	}

	// Indexes only follow a created MATCH, never a merge.
	if result.Created {
		if err := p.cfg.Store.WriteIndexes(ctx, &asm.Match); err != nil {
			// Recoverable: the MATCH row is the source of truth and a
			// backfill can re-emit index rows.
			log.Errorw("Index write failed", "error", err)
		}
	}

	if statsCreated && p.cfg.Analytics != nil {
		if err := p.cfg.Analytics.WriteMatch(ctx, &asm.Match, asm.Stats); err != nil {
			log.Warnw("Analytics write failed", "error", err)
		}
	}

	replaysDecoded.Inc()
	log.Infow("Upload persisted",
		"arenaUniqueID", asm.Match.ArenaUniqueID,
		"gameType", asm.Match.GameType,
		"created", result.Created,
		"dualFlipped", result.DualFlipped,
	)

	p.enqueueRender(ctx, &asm.Match, asm.Upload.PlayerID, result)
}

// enqueueRender decides which render job, if any, this upload triggers: the
// first upload queues a single-perspective render; the first opposing upload
// queues the dual render exactly once.
func (p *Pool) enqueueRender(ctx context.Context, match *models.MatchRecord, playerID int64, result store.PutResult) {
	switch {
	case result.Created:
		job := queue.RenderJob{
			ArenaUniqueID: match.ArenaUniqueID,
			GameType:      string(match.GameType),
			PlayerID:      playerID,
		}
		if err := p.cfg.Queue.EnqueueRender(ctx, job); err != nil {
			p.logger.Errorw("Failed to enqueue render", "arenaUniqueID", match.ArenaUniqueID, "error", err)
			return
		}
		renderJobsEnqueued.Inc()
	case result.DualFlipped:
		job := queue.RenderJob{
			ArenaUniqueID: match.ArenaUniqueID,
			GameType:      string(match.GameType),
			PlayerID:      playerID,
			Dual:          true,
		}
		if err := p.cfg.Queue.EnqueueRender(ctx, job); err != nil {
			p.logger.Errorw("Failed to enqueue dual render", "arenaUniqueID", match.ArenaUniqueID, "error", err)
			return
		}
		renderJobsEnqueued.Inc()
	}
}

// recordFailure writes the DECODE_FAILED marker and bumps the failure metric.
func (p *Pool) recordFailure(ctx context.Context, job *queue.DecodeJob, cause error) {
	kind := replay.FailureKind(cause)
	if errors.Is(cause, stats.ErrIndexMissing) {
		kind = "IndexMissing"
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		kind = "TimedOut"
	}
	replaysFailed.WithLabelValues(kind).Inc()

	// The marker write gets a fresh context: the pipeline deadline may be
	// the reason we are here.
	markerCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.cfg.Store.RecordDecodeFailure(markerCtx, job.UploadKey, kind, cause.Error()); err != nil {
		p.logger.Errorw("Failed to record decode failure", "uploadKey", job.UploadKey, "error", err)
	}
}
