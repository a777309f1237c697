package jobstore

import (
	"log"
	"os"
	"path/filepath"
	"time"
)

// Sweeper periodically removes terminal jobs older than the retention window,
// together with their job-scoped artifact directories and output files. The
// sweep is time-driven, never request-driven, and only ever touches jobs the
// store reports as expired — an in-flight job can never race with it.
type Sweeper struct {
	store     *Store
	workDir   string
	outputDir string
	interval  time.Duration
	retention time.Duration
	stopChan  chan struct{}
}

func NewSweeper(store *Store, workDir, outputDir string, interval, retention time.Duration) *Sweeper {
	return &Sweeper{
		store:     store,
		workDir:   workDir,
		outputDir: outputDir,
		interval:  interval,
		retention: retention,
		stopChan:  make(chan struct{}),
	}
}

// Start runs the sweep loop in the background until Stop is called.
func (s *Sweeper) Start() {
	ticker := time.NewTicker(s.interval)

	go func() {
		for {
			select {
			case <-ticker.C:
				s.Sweep(time.Now())
			case <-s.stopChan:
				ticker.Stop()
				return
			}
		}
	}()

	log.Printf("[Cleanup] Sweeper started (interval: %s, retention: %s)", s.interval, s.retention)
}

func (s *Sweeper) Stop() {
	close(s.stopChan)
	log.Println("[Cleanup] Sweeper stopped")
}

// Sweep removes all expired jobs as of now and returns how many were deleted.
func (s *Sweeper) Sweep(now time.Time) int {
	expired := s.store.ListExpired(now, s.retention)

	for _, job := range expired {
		if err := os.RemoveAll(filepath.Join(s.workDir, job.ID)); err != nil {
			log.Printf("[Cleanup] Failed to remove work dir for job %s: %v", job.ID, err)
		}
		if job.Result != nil {
			if err := os.Remove(job.Result.VideoPath); err != nil && !os.IsNotExist(err) {
				log.Printf("[Cleanup] Failed to remove video for job %s: %v", job.ID, err)
			}
		}
		s.store.Delete(job.ID)
	}

	if len(expired) > 0 {
		log.Printf("[Cleanup] Removed %d expired jobs", len(expired))
	}
	return len(expired)
}
