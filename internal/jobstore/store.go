package jobstore

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"slidecast/internal/models"
)

var (
	ErrNotFound     = fmt.Errorf("job not found")
	ErrTerminal     = fmt.Errorf("job is in a terminal state")
	ErrStageSkipped = fmt.Errorf("stage transition out of order")
)

// Store holds all job records in memory, keyed by job ID. Every mutation of
// a job runs under the store lock via Update, and every read hands out a deep
// copy, so concurrent status polls observe either the pre- or post-mutation
// state and never a torn record.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*models.Job
}

func New() *Store {
	return &Store{
		jobs: make(map[string]*models.Job),
	}
}

// Create registers a new queued job with the given input and captured
// configuration snapshot, and returns a copy of the record.
func (s *Store) Create(input models.JobInput, cfg models.GenerationConfig, params models.VideoParams) models.Job {
	job := &models.Job{
		ID:        uuid.New().String(),
		Status:    models.JobStatusQueued,
		Stage:     models.StageNone,
		Progress:  0,
		Message:   "Queued for processing",
		Input:     input,
		Config:    cfg,
		Params:    params,
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	return snapshot(job)
}

// Get returns a snapshot copy of the job.
func (s *Store) Get(id string) (models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return models.Job{}, ErrNotFound
	}
	return snapshot(job), nil
}

// Update applies mutate to the job atomically. Terminal jobs are immutable;
// any update against one fails with ErrTerminal.
func (s *Store) Update(id string, mutate func(*models.Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status.IsTerminal() {
		return ErrTerminal
	}

	mutate(job)
	return nil
}

// AdvanceStage moves a job to the next pipeline stage. The transition is
// validated: a stage can only follow its immediate predecessor, so a job can
// never skip forward.
func (s *Store) AdvanceStage(id string, next models.Stage, progress int, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status.IsTerminal() {
		return ErrTerminal
	}
	if next.Ordinal() != job.Stage.Ordinal()+1 {
		return fmt.Errorf("%w: %s -> %s", ErrStageSkipped, job.Stage, next)
	}

	job.Status = models.JobStatusProcessing
	job.Stage = next
	job.Message = message
	if progress > job.Progress {
		job.Progress = progress
	}
	return nil
}

// Complete records a successful result and moves the job to its terminal
// completed state.
func (s *Store) Complete(id string, result models.VideoResult) error {
	now := time.Now()
	return s.Update(id, func(job *models.Job) {
		job.Status = models.JobStatusCompleted
		job.Progress = 100
		job.Message = "Video generation completed"
		job.Result = &result
		job.CompletedAt = &now
	})
}

// Fail moves the job to its terminal error state with a machine-checkable
// error kind and a human-readable message.
func (s *Store) Fail(id string, kind models.ErrorKind, message string) error {
	now := time.Now()
	return s.Update(id, func(job *models.Job) {
		job.Status = models.JobStatusError
		job.Message = message
		job.ErrorKind = kind
		job.ErrorMessage = message
		job.CompletedAt = &now
	})
}

// RequestCancel flags a running job for cancellation. The orchestrator
// observes the flag at the next stage boundary; terminal jobs are left alone.
func (s *Store) RequestCancel(id string) error {
	err := s.Update(id, func(job *models.Job) {
		job.CancelRequested = true
	})
	if err == ErrTerminal {
		return nil
	}
	return err
}

// ListExpired returns snapshots of terminal jobs whose completion time is
// older than the retention window. In-flight jobs are never eligible.
func (s *Store) ListExpired(now time.Time, retention time.Duration) []models.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var expired []models.Job
	for _, job := range s.jobs {
		if !job.Status.IsTerminal() || job.CompletedAt == nil {
			continue
		}
		if now.Sub(*job.CompletedAt) > retention {
			expired = append(expired, snapshot(job))
		}
	}
	return expired
}

// Delete removes a job record. Artifact removal is the sweeper's business.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.jobs, id)
	s.mu.Unlock()
}

// Len returns the number of stored job records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// snapshot deep-copies a job so callers can read it without holding the lock.
func snapshot(job *models.Job) models.Job {
	cp := *job
	cp.Slides = append([]models.SlideUnit(nil), job.Slides...)
	cp.Audio = append([]models.SlideAudio(nil), job.Audio...)
	cp.Images = append([]models.SlideImage(nil), job.Images...)
	if job.Result != nil {
		r := *job.Result
		cp.Result = &r
	}
	if job.CompletedAt != nil {
		t := *job.CompletedAt
		cp.CompletedAt = &t
	}
	return cp
}
