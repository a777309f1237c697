package jobstore

import (
	"errors"
	"sync"
	"testing"
	"time"

	"slidecast/internal/models"
)

func testInput() (models.JobInput, models.GenerationConfig, models.VideoParams) {
	input := models.JobInput{Text: "Some article text."}
	cfg := models.GenerationConfig{
		Language:         "en",
		MaxSlides:        8,
		WordsPerSlide:    50,
		MinSlideDuration: 3.0,
		MaxSlideDuration: 8.0,
		MinTextLength:    10,
		MaxTextLength:    50000,
	}
	params := models.VideoParams{Width: 1920, Height: 1080, FPS: 24, TransitionDuration: 0.5}
	return input, cfg, params
}

func TestCreateAndGet(t *testing.T) {
	s := New()
	input, cfg, params := testInput()

	job := s.Create(input, cfg, params)
	if job.ID == "" {
		t.Fatal("expected a job ID")
	}
	if job.Status != models.JobStatusQueued {
		t.Errorf("status = %s, want queued", job.Status)
	}
	if job.Stage != models.StageNone {
		t.Errorf("stage = %q, want empty", job.Stage)
	}

	got, err := s.Get(job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != job.ID || got.Input.Text != input.Text {
		t.Error("stored job does not match created job")
	}

	if _, err := s.Get("no-such-id"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// TestStageOrdering verifies stages advance strictly one at a time and a
// skipped stage is rejected.
func TestStageOrdering(t *testing.T) {
	s := New()
	input, cfg, params := testInput()
	job := s.Create(input, cfg, params)

	// Skipping straight to audio must fail.
	if err := s.AdvanceStage(job.ID, models.StageAudio, 50, "narrating"); !errors.Is(err, ErrStageSkipped) {
		t.Fatalf("expected ErrStageSkipped, got %v", err)
	}

	steps := []struct {
		stage    models.Stage
		progress int
	}{
		{models.StageContent, 0},
		{models.StageAudio, 25},
		{models.StageImages, 50},
		{models.StageVideo, 75},
	}
	for _, step := range steps {
		if err := s.AdvanceStage(job.ID, step.stage, step.progress, "working"); err != nil {
			t.Fatalf("advance to %s: %v", step.stage, err)
		}
	}

	got, _ := s.Get(job.ID)
	if got.Stage != models.StageVideo {
		t.Errorf("stage = %s, want video", got.Stage)
	}
	if got.Status != models.JobStatusProcessing {
		t.Errorf("status = %s, want processing", got.Status)
	}

	// Re-advancing to the same stage must also fail.
	if err := s.AdvanceStage(job.ID, models.StageVideo, 95, "again"); !errors.Is(err, ErrStageSkipped) {
		t.Fatalf("expected ErrStageSkipped on repeat, got %v", err)
	}
}

// TestProgressMonotonic checks progress never moves backwards.
func TestProgressMonotonic(t *testing.T) {
	s := New()
	input, cfg, params := testInput()
	job := s.Create(input, cfg, params)

	if err := s.AdvanceStage(job.ID, models.StageContent, 25, "content"); err != nil {
		t.Fatalf("advance: %v", err)
	}
	// A lower progress value on the next stage must not decrease it.
	if err := s.AdvanceStage(job.ID, models.StageAudio, 10, "audio"); err != nil {
		t.Fatalf("advance: %v", err)
	}

	got, _ := s.Get(job.ID)
	if got.Progress != 25 {
		t.Errorf("progress = %d, want 25 (monotonic)", got.Progress)
	}
}

// TestTerminalImmutable verifies completed and failed jobs reject every
// further mutation.
func TestTerminalImmutable(t *testing.T) {
	s := New()
	input, cfg, params := testInput()

	completed := s.Create(input, cfg, params)
	if err := s.Complete(completed.ID, models.VideoResult{VideoPath: "/out/a.mp4", Duration: 30}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	failed := s.Create(input, cfg, params)
	if err := s.Fail(failed.ID, models.ErrKindRenderFailed, "render exploded"); err != nil {
		t.Fatalf("fail: %v", err)
	}

	for _, id := range []string{completed.ID, failed.ID} {
		if err := s.Update(id, func(j *models.Job) { j.Message = "mutated" }); !errors.Is(err, ErrTerminal) {
			t.Errorf("update on terminal job %s: got %v, want ErrTerminal", id, err)
		}
		if err := s.AdvanceStage(id, models.StageContent, 25, "restart"); !errors.Is(err, ErrTerminal) {
			t.Errorf("advance on terminal job %s: got %v, want ErrTerminal", id, err)
		}
	}

	got, _ := s.Get(completed.ID)
	if got.Progress != 100 || got.CompletedAt == nil || got.Result == nil {
		t.Error("completed job missing result fields")
	}

	got, _ = s.Get(failed.ID)
	if got.ErrorKind != models.ErrKindRenderFailed {
		t.Errorf("error kind = %s, want render_failed", got.ErrorKind)
	}
	if got.Result != nil {
		t.Error("failed job must not carry a result")
	}
}

// TestRequestCancelOnTerminal checks cancelling a finished job is a no-op,
// not an error.
func TestRequestCancelOnTerminal(t *testing.T) {
	s := New()
	input, cfg, params := testInput()

	job := s.Create(input, cfg, params)
	if err := s.Complete(job.ID, models.VideoResult{VideoPath: "/out/a.mp4"}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if err := s.RequestCancel(job.ID); err != nil {
		t.Fatalf("cancel on terminal job: %v", err)
	}
	got, _ := s.Get(job.ID)
	if got.CancelRequested {
		t.Error("terminal job must not be flagged for cancellation")
	}

	if err := s.RequestCancel("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// TestSnapshotIsolation verifies a returned snapshot is not aliased to the
// stored record: later mutations must not show through, and concurrent
// readers never observe a torn job.
func TestSnapshotIsolation(t *testing.T) {
	s := New()
	input, cfg, params := testInput()
	job := s.Create(input, cfg, params)

	if err := s.Update(job.ID, func(j *models.Job) {
		j.Slides = []models.SlideUnit{{Index: 0, Text: "one"}}
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	snap, _ := s.Get(job.ID)
	snap.Slides[0].Text = "tampered"

	fresh, _ := s.Get(job.ID)
	if fresh.Slides[0].Text != "one" {
		t.Error("mutating a snapshot leaked into the store")
	}

	// Concurrent readers against a writer; run with -race.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := 0; n < 100; n++ {
				got, err := s.Get(job.ID)
				if err != nil {
					t.Errorf("get: %v", err)
					return
				}
				if len(got.Slides) == 0 {
					t.Error("snapshot lost slides")
					return
				}
			}
		}()
	}
	for n := 0; n < 100; n++ {
		_ = s.Update(job.ID, func(j *models.Job) {
			j.Message = "tick"
		})
	}
	wg.Wait()
}

func TestListExpired(t *testing.T) {
	s := New()
	input, cfg, params := testInput()

	old := s.Create(input, cfg, params)
	if err := s.Complete(old.ID, models.VideoResult{VideoPath: "/out/old.mp4"}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	fresh := s.Create(input, cfg, params)
	if err := s.Fail(fresh.ID, models.ErrKindInternal, "boom"); err != nil {
		t.Fatalf("fail: %v", err)
	}

	running := s.Create(input, cfg, params)
	if err := s.AdvanceStage(running.ID, models.StageContent, 25, "working"); err != nil {
		t.Fatalf("advance: %v", err)
	}

	// Viewed from 26h out, both terminal jobs are past the 24h window.
	future := time.Now().Add(26 * time.Hour)
	s.mu.Lock()
	past := time.Now().Add(-48 * time.Hour)
	s.jobs[old.ID].CompletedAt = &past
	s.mu.Unlock()

	expired := s.ListExpired(future, 24*time.Hour)
	if len(expired) != 2 {
		t.Fatalf("expected 2 expired jobs, got %d", len(expired))
	}
	for _, j := range expired {
		if j.ID == running.ID {
			t.Error("in-flight job must never be listed as expired")
		}
	}

	// With a future-proof retention only the backdated one qualifies.
	expired = s.ListExpired(time.Now(), 24*time.Hour)
	if len(expired) != 1 || expired[0].ID != old.ID {
		t.Fatalf("expected only the backdated job, got %d", len(expired))
	}
}
