package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const QueueGenerateVideo = "queue:generate_video"

type Queue struct {
	client *redis.Client
}

// Message is the dispatch record for one submitted job. The job's full state
// lives in the job store; the queue only carries the identifier, so a job is
// picked up by exactly one worker.
type Message struct {
	JobID     string    `json:"job_id"`
	CreatedAt time.Time `json:"created_at"`
}

func New(redisURL string) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Queue{client: client}, nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

// EnqueueGenerate dispatches a submitted job to the worker pool.
func (q *Queue) EnqueueGenerate(ctx context.Context, jobID string) error {
	msg := Message{JobID: jobID, CreatedAt: time.Now()}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal queue message: %w", err)
	}

	return q.client.RPush(ctx, QueueGenerateVideo, data).Err()
}

// Dequeue blocks up to timeout waiting for the next job. A nil message with
// a nil error means the timeout elapsed with nothing queued.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Message, error) {
	result, err := q.client.BLPop(ctx, timeout, QueueGenerateVideo).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected redis response")
	}

	var msg Message
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal queue message: %w", err)
	}

	return &msg, nil
}

// Length returns the number of pending jobs.
func (q *Queue) Length(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, QueueGenerateVideo).Result()
}
