// Package queue provides the Redis-backed job queues that glue the pipeline
// stages together: an upload enqueues a decode job, a persisted match
// enqueues render jobs. List semantics give at-least-once delivery; every
// consumer is idempotent by construction.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	decodeQueueKey = "jobs:decode"
	renderQueueKey = "jobs:render"
)

// DecodeJob asks the pipeline to decode one uploaded blob.
type DecodeJob struct {
	UploadKey  string `json:"uploadKey"`
	BlobKey    string `json:"blobKey"`
	FileName   string `json:"fileName"`
	FileSize   int64  `json:"fileSize"`
	UploadedBy string `json:"uploadedBy"`
	UploadedAt int64  `json:"uploadedAt"`
}

// RenderJob asks the render worker to produce a match video.
type RenderJob struct {
	ArenaUniqueID string `json:"arenaUniqueID"`
	GameType      string `json:"gameType"`
	PlayerID      int64  `json:"playerID"`
	Dual          bool   `json:"dual"`
}

// Queue wraps the two Redis lists.
type Queue struct {
	client *redis.Client
}

func New(client *redis.Client) *Queue {
	return &Queue{client: client}
}

// EnqueueDecode pushes a decode job.
func (q *Queue) EnqueueDecode(ctx context.Context, job DecodeJob) error {
	return q.push(ctx, decodeQueueKey, job)
}

// EnqueueRender pushes a render job.
func (q *Queue) EnqueueRender(ctx context.Context, job RenderJob) error {
	return q.push(ctx, renderQueueKey, job)
}

func (q *Queue) push(ctx context.Context, key string, job any) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, key, payload).Err(); err != nil {
		return fmt.Errorf("queue: push %s: %w", key, err)
	}
	return nil
}

// DequeueDecode blocks up to timeout for the next decode job. Returns
// (nil, nil) on timeout so callers can re-check their shutdown signal.
func (q *Queue) DequeueDecode(ctx context.Context, timeout time.Duration) (*DecodeJob, error) {
	payload, err := q.pop(ctx, decodeQueueKey, timeout)
	if err != nil || payload == nil {
		return nil, err
	}
	var job DecodeJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return nil, fmt.Errorf("queue: bad decode job: %w", err)
	}
	return &job, nil
}

// DequeueRender blocks up to timeout for the next render job.
func (q *Queue) DequeueRender(ctx context.Context, timeout time.Duration) (*RenderJob, error) {
	payload, err := q.pop(ctx, renderQueueKey, timeout)
	if err != nil || payload == nil {
		return nil, err
	}
	var job RenderJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return nil, fmt.Errorf("queue: bad render job: %w", err)
	}
	return &job, nil
}

func (q *Queue) pop(ctx context.Context, key string, timeout time.Duration) ([]byte, error) {
	res, err := q.client.BRPop(ctx, timeout, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: pop %s: %w", key, err)
	}
	if len(res) != 2 {
		return nil, nil
	}
	return []byte(res[1]), nil
}

// DecodeDepth reports the decode backlog, for readiness reporting.
func (q *Queue) DecodeDepth(ctx context.Context) int {
	n, err := q.client.LLen(ctx, decodeQueueKey).Result()
	if err != nil {
		return 0
	}
	return int(n)
}

// RenderDepth reports the render backlog.
func (q *Queue) RenderDepth(ctx context.Context) int {
	n, err := q.client.LLen(ctx, renderQueueKey).Result()
	if err != nil {
		return 0
	}
	return int(n)
}
