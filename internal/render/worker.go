package render

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/wowsvault/replay-api/internal/blob"
	"github.com/wowsvault/replay-api/internal/models"
	"github.com/wowsvault/replay-api/internal/notify"
	"github.com/wowsvault/replay-api/internal/queue"
	"github.com/wowsvault/replay-api/internal/replay"
	"github.com/wowsvault/replay-api/internal/store"
)

var (
	rendersCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wows_renders_completed_total",
		Help: "Total number of completed video renders, by variant",
	}, []string{"variant"})

	rendersFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wows_renders_failed_total",
		Help: "Total number of failed video renders",
	})

	renderDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wows_render_duration_seconds",
		Help:    "Duration of video renders",
		Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
	})
)

// WorkerConfig configures the render worker.
type WorkerConfig struct {
	Timeout  time.Duration
	Renderer *Renderer
	Decoder  *replay.Decoder
	Store    *store.Store
	Blobs    *blob.Store
	Queue    *queue.Queue
	Notifier *notify.Notifier
	Logger   *zap.Logger
}

// Worker consumes render jobs. Renders occupy the worker for their whole
// duration, so a deployment runs few of these with long deadlines.
type Worker struct {
	cfg    WorkerConfig
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.SugaredLogger
}

func NewWorker(cfg WorkerConfig) *Worker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	return &Worker{cfg: cfg, logger: cfg.Logger.Sugar()}
}

// Start launches the consume loop.
func (w *Worker) Start(ctx context.Context) {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.loop()
	w.logger.Info("Render worker started")
}

// Stop cancels the worker context, which aborts an in-flight render, and waits
// for the consume loop to return.
func (w *Worker) Stop() {
	w.cancel()
	w.wg.Wait()
	w.logger.Info("Render worker stopped")
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		default:
		}

		job, err := w.cfg.Queue.DequeueRender(w.ctx, 5*time.Second)
		if err != nil {
			if w.ctx.Err() != nil {
				return
			}
			w.logger.Errorw("Render dequeue failed", "error", err)
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			continue
		}

		if err := w.ProcessJob(w.ctx, job); err != nil {
			rendersFailed.Inc()
			// Not retried automatically: a user-initiated regenerate
			// request re-enqueues the job.
			w.logger.Errorw("Render failed", "arenaUniqueID", job.ArenaUniqueID, "dual", job.Dual, "error", err)
		}
	}
}

// ProcessJob renders one job and stamps the MATCH record.
func (w *Worker) ProcessJob(ctx context.Context, job *queue.RenderJob) error {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	defer cancel()

	start := time.Now()
	defer func() { renderDuration.Observe(time.Since(start).Seconds()) }()

	gt := models.GameType(job.GameType)
	match, err := w.cfg.Store.GetMatch(ctx, gt, job.ArenaUniqueID)
	if err != nil {
		return fmt.Errorf("load match: %w", err)
	}

	uploads, err := w.cfg.Store.GetUploads(ctx, gt, job.ArenaUniqueID)
	if err != nil {
		return fmt.Errorf("load uploads: %w", err)
	}
	if len(uploads) == 0 {
		return errors.New("no uploads for match")
	}

	if job.Dual {
		return w.renderDual(ctx, match, uploads)
	}
	return w.renderSingle(ctx, match, uploads, job.PlayerID)
}

func (w *Worker) renderSingle(ctx context.Context, match *models.MatchRecord, uploads []models.UploadRecord, playerID int64) error {
	upload := pickUpload(uploads, playerID)

	decoded, err := w.decodeBlob(upload.BlobKey)
	if err != nil {
		return err
	}

	mp4, err := w.cfg.Renderer.Render(ctx, decoded)
	if err != nil {
		return err
	}

	key := blob.VideoKey(match.ArenaUniqueID, fmt.Sprintf("single-%d", upload.PlayerID))
	if err := w.cfg.Blobs.Put(key, mp4); err != nil {
		return fmt.Errorf("store video: %w", err)
	}

	if err := w.cfg.Store.SetVideo(ctx, match.GameType, match.ArenaUniqueID, key, time.Now()); err != nil {
		return fmt.Errorf("stamp video: %w", err)
	}

	rendersCompleted.WithLabelValues("single").Inc()
	w.logger.Infow("Render complete", "arenaUniqueID", match.ArenaUniqueID, "key", key)

	w.notifyIfClan(ctx, match)
	return nil
}

func (w *Worker) renderDual(ctx context.Context, match *models.MatchRecord, uploads []models.UploadRecord) error {
	var green, red *models.UploadRecord
	for i := range uploads {
		switch uploads[i].Team {
		case models.TeamAlly:
			if green == nil {
				green = &uploads[i]
			}
		case models.TeamEnemy:
			if red == nil {
				red = &uploads[i]
			}
		}
	}
	if green == nil || red == nil {
		return errors.New("dual render needs uploads from both teams")
	}

	greenDecoded, err := w.decodeBlob(green.BlobKey)
	if err != nil {
		return err
	}
	redDecoded, err := w.decodeBlob(red.BlobKey)
	if err != nil {
		return err
	}

	mp4, err := w.cfg.Renderer.RenderDual(ctx, greenDecoded, redDecoded)
	if err != nil {
		return err
	}

	key := blob.VideoKey(match.ArenaUniqueID, "dual")
	if err := w.cfg.Blobs.Put(key, mp4); err != nil {
		return fmt.Errorf("store dual video: %w", err)
	}

	if err := w.cfg.Store.SetDualVideo(ctx, match.GameType, match.ArenaUniqueID, key); err != nil {
		return fmt.Errorf("stamp dual video: %w", err)
	}

	rendersCompleted.WithLabelValues("dual").Inc()
	w.logger.Infow("Dual render complete", "arenaUniqueID", match.ArenaUniqueID, "key", key)

	w.notifyIfClan(ctx, match)
	return nil
}

func (w *Worker) decodeBlob(blobKey string) (*models.DecodedReplay, error) {
	data, err := w.cfg.Blobs.Get(blobKey)
	if err != nil {
		return nil, fmt.Errorf("load replay blob: %w", err)
	}
	decoded, err := w.cfg.Decoder.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode replay: %w", err)
	}
	return decoded, nil
}

// notifyIfClan fires the outbound webhook for rendered clan battles.
func (w *Worker) notifyIfClan(ctx context.Context, match *models.MatchRecord) {
	if match.GameType != models.GameTypeClan || w.cfg.Notifier == nil {
		return
	}
	if err := w.cfg.Notifier.MatchRendered(ctx, match); err != nil {
		w.logger.Warnw("Notification failed", "arenaUniqueID", match.ArenaUniqueID, "error", err)
	}
}

func pickUpload(uploads []models.UploadRecord, playerID int64) *models.UploadRecord {
	for i := range uploads {
		if uploads[i].PlayerID == playerID {
			return &uploads[i]
		}
	}
	return &uploads[0]
}
