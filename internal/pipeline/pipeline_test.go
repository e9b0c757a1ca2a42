package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/wowsvault/replay-api/internal/assembler"
	"github.com/wowsvault/replay-api/internal/models"
	"github.com/wowsvault/replay-api/internal/queue"
	"github.com/wowsvault/replay-api/internal/replay"
	"github.com/wowsvault/replay-api/internal/replay/replaytest"
	"github.com/wowsvault/replay-api/internal/stats"
	"github.com/wowsvault/replay-api/internal/store"
)

// Fakes

type fakePersister struct {
	matchResult store.PutResult
	matchErr    error

	matches  []*models.MatchRecord
	stats    []*models.StatsRecord
	uploads  []*models.UploadRecord
	indexed  []*models.MatchRecord
	failures map[string]string
}

func newFakePersister() *fakePersister {
	return &fakePersister{failures: make(map[string]string)}
}

func (f *fakePersister) CreateOrMergeMatch(ctx context.Context, match *models.MatchRecord) (store.PutResult, error) {
	f.matches = append(f.matches, match)
	return f.matchResult, f.matchErr
}

func (f *fakePersister) PutStats(ctx context.Context, s *models.StatsRecord) (bool, error) {
	f.stats = append(f.stats, s)
	return true, nil
}

func (f *fakePersister) PutUpload(ctx context.Context, u *models.UploadRecord) error {
	f.uploads = append(f.uploads, u)
	return nil
}

func (f *fakePersister) WriteIndexes(ctx context.Context, match *models.MatchRecord) error {
	f.indexed = append(f.indexed, match)
	return nil
}

func (f *fakePersister) RecordDecodeFailure(ctx context.Context, uploadKey, kind, detail string) error {
	f.failures[uploadKey] = kind
	return nil
}

type fakeQueue struct {
	renderJobs []queue.RenderJob
}

func (f *fakeQueue) DequeueDecode(ctx context.Context, timeout time.Duration) (*queue.DecodeJob, error) {
	return nil, nil
}

func (f *fakeQueue) EnqueueRender(ctx context.Context, job queue.RenderJob) error {
	f.renderJobs = append(f.renderJobs, job)
	return nil
}

type fakeBlobs struct {
	objects map[string][]byte
}

func (f *fakeBlobs) Get(key string) ([]byte, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, errors.New("missing blob")
	}
	return data, nil
}

type fakeSink struct {
	written int
}

func (f *fakeSink) WriteMatch(ctx context.Context, match *models.MatchRecord, stats *models.StatsRecord) error {
	f.written++
	return nil
}

func newTestPool(t *testing.T, persister *fakePersister, q *fakeQueue, blobs *fakeBlobs, sink StatsSink) *Pool {
	t.Helper()
	logger := zap.NewNop()
	ships, err := stats.LoadShipParams()
	if err != nil {
		t.Fatalf("LoadShipParams: %v", err)
	}
	mods, err := stats.LoadModernizations()
	if err != nil {
		t.Fatalf("LoadModernizations: %v", err)
	}
	return NewPool(PoolConfig{
		Decoder:   replay.NewDecoder(logger),
		Parser:    stats.NewParser(ships, mods, logger),
		Assembler: assembler.New(ships),
		Store:     persister,
		Analytics: sink,
		Blobs:     blobs,
		Queue:     q,
		Logger:    logger,
	})
}

func testJob() *queue.DecodeJob {
	return &queue.DecodeJob{
		UploadKey:  "upload-1",
		BlobKey:    "replays/discord-1/test.wowsreplay",
		FileName:   "test.wowsreplay",
		FileSize:   1024,
		UploadedBy: "discord-1",
		UploadedAt: 1767480502,
	}
}

func TestProcessUpload_FirstUploadCreatesAndQueuesRender(t *testing.T) {
	persister := newFakePersister()
	persister.matchResult = store.PutResult{Created: true}
	q := &fakeQueue{}
	sink := &fakeSink{}
	blobs := &fakeBlobs{objects: map[string][]byte{
		testJob().BlobKey: replaytest.BuildComplete(),
	}}

	pool := newTestPool(t, persister, q, blobs, sink)
	pool.ProcessUpload(context.Background(), testJob())

	if len(persister.matches) != 1 {
		t.Fatalf("matches written = %d", len(persister.matches))
	}
	if len(persister.stats) != 1 {
		t.Errorf("stats written = %d", len(persister.stats))
	}
	if len(persister.uploads) != 1 {
		t.Errorf("uploads written = %d", len(persister.uploads))
	}
	if len(persister.indexed) != 1 {
		t.Errorf("indexes written for %d matches, want 1", len(persister.indexed))
	}
	if sink.written != 1 {
		t.Errorf("analytics writes = %d", sink.written)
	}
	if len(q.renderJobs) != 1 || q.renderJobs[0].Dual {
		t.Errorf("render jobs = %+v, want one single render", q.renderJobs)
	}
	if len(persister.failures) != 0 {
		t.Errorf("unexpected failures: %v", persister.failures)
	}
}

func TestProcessUpload_MergeSkipsIndexes(t *testing.T) {
	persister := newFakePersister()
	persister.matchResult = store.PutResult{} // merged, no dual flip
	q := &fakeQueue{}
	blobs := &fakeBlobs{objects: map[string][]byte{
		testJob().BlobKey: replaytest.BuildComplete(),
	}}

	pool := newTestPool(t, persister, q, blobs, nil)
	pool.ProcessUpload(context.Background(), testJob())

	if len(persister.indexed) != 0 {
		t.Error("indexes must only be written when the MATCH was created")
	}
	if len(q.renderJobs) != 0 {
		t.Errorf("plain merge must not enqueue renders, got %+v", q.renderJobs)
	}
}

func TestProcessUpload_DualFlipQueuesDualRenderOnce(t *testing.T) {
	persister := newFakePersister()
	persister.matchResult = store.PutResult{DualFlipped: true}
	q := &fakeQueue{}
	blobs := &fakeBlobs{objects: map[string][]byte{
		testJob().BlobKey: replaytest.BuildComplete(),
	}}

	pool := newTestPool(t, persister, q, blobs, nil)
	pool.ProcessUpload(context.Background(), testJob())

	if len(q.renderJobs) != 1 || !q.renderJobs[0].Dual {
		t.Fatalf("render jobs = %+v, want exactly one dual render", q.renderJobs)
	}
}

func TestProcessUpload_DecodeFailureRecordsMarker(t *testing.T) {
	persister := newFakePersister()
	q := &fakeQueue{}
	blobs := &fakeBlobs{objects: map[string][]byte{
		testJob().BlobKey: []byte("not a replay"),
	}}

	pool := newTestPool(t, persister, q, blobs, nil)
	pool.ProcessUpload(context.Background(), testJob())

	if kind := persister.failures["upload-1"]; kind != "MalformedHeader" {
		t.Errorf("failure kind = %q, want MalformedHeader", kind)
	}
	if len(persister.matches) != 0 {
		t.Error("failed decode must not write a MATCH record")
	}
}

func TestProcessUpload_MissingBlobRecordsFailure(t *testing.T) {
	persister := newFakePersister()
	pool := newTestPool(t, persister, &fakeQueue{}, &fakeBlobs{objects: map[string][]byte{}}, nil)

	pool.ProcessUpload(context.Background(), testJob())

	if _, ok := persister.failures["upload-1"]; !ok {
		t.Error("missing blob should record a failure marker")
	}
}

func TestProcessUpload_IncompleteReplayPersistsWithoutStats(t *testing.T) {
	persister := newFakePersister()
	persister.matchResult = store.PutResult{Created: true}
	q := &fakeQueue{}
	blobs := &fakeBlobs{objects: map[string][]byte{
		testJob().BlobKey: replaytest.BuildIncomplete(),
	}}

	pool := newTestPool(t, persister, q, blobs, nil)
	pool.ProcessUpload(context.Background(), testJob())

	if len(persister.matches) != 1 {
		t.Fatalf("matches written = %d, incomplete replay must still persist", len(persister.matches))
	}
	if len(persister.stats) != 0 {
		t.Errorf("stats written = %d, want none for incomplete replay", len(persister.stats))
	}
	if len(persister.uploads) != 1 {
		t.Errorf("uploads written = %d", len(persister.uploads))
	}
}

func TestProcessUpload_PersistConflictLeavesNoPartialState(t *testing.T) {
	persister := newFakePersister()
	persister.matchErr = store.ErrConflict
	q := &fakeQueue{}
	blobs := &fakeBlobs{objects: map[string][]byte{
		testJob().BlobKey: replaytest.BuildComplete(),
	}}

	pool := newTestPool(t, persister, q, blobs, nil)
	pool.ProcessUpload(context.Background(), testJob())

	if len(persister.stats) != 0 || len(persister.uploads) != 0 || len(q.renderJobs) != 0 {
		t.Error("a failed MATCH write must stop the pipeline before dependent writes")
	}
}
