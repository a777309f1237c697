package worker

import (
	"context"
	"log"
	"sync"
	"time"

	"slidecast/internal/pipeline"
	"slidecast/internal/queue"
)

const dequeueTimeout = 5 * time.Second

// Worker consumes generation jobs from the Redis queue and runs the
// pipeline for each. Concurrency holds the number of jobs processed in
// parallel; each slot is an independent blocking-pop loop, so a long job in
// one slot never stalls the others.
type Worker struct {
	queue        *queue.Queue
	orchestrator *pipeline.Orchestrator
	concurrency  int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(q *queue.Queue, orch *pipeline.Orchestrator, concurrency int) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Worker{
		queue:        q,
		orchestrator: orch,
		concurrency:  concurrency,
	}
}

// Start launches the consumer loops. It returns immediately; Stop blocks
// until in-flight jobs finish.
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	log.Printf("[Worker] Starting %d consumer(s)", w.concurrency)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.loop(ctx, i)
	}
}

// Stop signals the consumers to exit and waits for jobs in flight. Jobs
// interrupted mid-stage fail with an internal error via the pipeline's
// normal failure path.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	log.Printf("[Worker] Stopped")
}

func (w *Worker) loop(ctx context.Context, slot int) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, err := w.queue.Dequeue(ctx, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[Worker] Slot %d dequeue error: %v", slot, err)
			time.Sleep(time.Second)
			continue
		}
		if msg == nil {
			continue // timed out empty, poll again
		}

		log.Printf("[Worker] Slot %d picked up job %s", slot, msg.JobID)
		if err := w.orchestrator.Run(ctx, msg.JobID); err != nil {
			log.Printf("[Worker] Slot %d job %s ended with error: %v", slot, msg.JobID, err)
		}
	}
}
