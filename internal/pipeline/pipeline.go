package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"slidecast/internal/config"
	"slidecast/internal/jobstore"
	"slidecast/internal/models"
	"slidecast/internal/scraper"
	"slidecast/internal/segmenter"
	"slidecast/internal/services"
)

// Extractor pulls readable article content from a URL.
type Extractor interface {
	Extract(ctx context.Context, rawURL string) (*models.ArticleContent, error)
}

// failure carries the error classification a stage reports when it gives up.
type failure struct {
	kind models.ErrorKind
	err  error
}

func (f *failure) Error() string { return f.err.Error() }

func failf(kind models.ErrorKind, format string, args ...interface{}) *failure {
	return &failure{kind: kind, err: fmt.Errorf(format, args...)}
}

// Orchestrator drives a job through the four pipeline stages in order:
// content, audio, images, video. All job mutation goes through the store;
// the orchestrator itself holds no job state between stages.
type Orchestrator struct {
	store     *jobstore.Store
	narrator  services.Narrator
	renderer  services.SlideRenderer
	composer  services.Composer
	prober    services.DurationProber
	extractor Extractor

	workDir          string
	slideConcurrency int
	adapterRetries   int
	stageTimeout     time.Duration
}

func New(
	store *jobstore.Store,
	narrator services.Narrator,
	renderer services.SlideRenderer,
	composer services.Composer,
	prober services.DurationProber,
	extractor Extractor,
	cfg *config.Config,
) *Orchestrator {
	return &Orchestrator{
		store:            store,
		narrator:         narrator,
		renderer:         renderer,
		composer:         composer,
		prober:           prober,
		extractor:        extractor,
		workDir:          cfg.WorkDir,
		slideConcurrency: cfg.SlideConcurrency,
		adapterRetries:   cfg.AdapterRetries,
		stageTimeout:     time.Duration(cfg.StageTimeoutSec) * time.Second,
	}
}

// Run executes the full pipeline for one job. A failed stage moves the job
// to its terminal error state and stops the pipeline; the error return is
// for the worker's log only, never for job state.
func (o *Orchestrator) Run(ctx context.Context, jobID string) error {
	job, err := o.store.Get(jobID)
	if err != nil {
		return fmt.Errorf("job %s: %w", jobID, err)
	}
	if job.Status.IsTerminal() {
		log.Printf("[Pipeline] Job %s already terminal (%s), skipping", jobID, job.Status)
		return nil
	}

	log.Printf("[Pipeline] Starting job %s", jobID)

	// Progress is a four-step completion checkpoint: 25/50/75/100, each
	// recorded when its stage finishes. Advancing into a stage therefore
	// carries the previous stage's value; Complete records the final 100.
	stages := []struct {
		stage    models.Stage
		progress int
		message  string
		run      func(ctx context.Context, job *models.Job) *failure
	}{
		{models.StageContent, 0, "Preparing content", o.runContent},
		{models.StageAudio, 25, "Synthesizing narration", o.runAudio},
		{models.StageImages, 50, "Rendering slide images", o.runImages},
		{models.StageVideo, 75, "Composing final video", o.runVideo},
	}

	for _, st := range stages {
		// Cancellation is observed at stage boundaries only; a stage that
		// already started runs to completion.
		job, err = o.store.Get(jobID)
		if err != nil {
			return fmt.Errorf("job %s: %w", jobID, err)
		}
		if job.CancelRequested {
			return o.fail(jobID, failf(models.ErrKindCancelled, "cancelled by request"))
		}

		if err := o.store.AdvanceStage(jobID, st.stage, st.progress, st.message); err != nil {
			return o.fail(jobID, failf(models.ErrKindInternal, "advance to %s: %v", st.stage, err))
		}

		stageCtx, cancel := context.WithTimeout(ctx, o.stageTimeout)
		ferr := st.run(stageCtx, &job)
		cancel()

		if ferr != nil {
			if errors.Is(stageCtx.Err(), context.DeadlineExceeded) {
				ferr = failf(models.ErrKindInternal, "stage %s timed out after %s", st.stage, o.stageTimeout)
			}
			return o.fail(jobID, ferr)
		}
	}

	return nil
}

// fail records the terminal error state and discards the job's partial
// working artifacts. The final video, if any, never exists for a failed job.
func (o *Orchestrator) fail(jobID string, f *failure) error {
	log.Printf("[Pipeline] Job %s failed (%s): %v", jobID, f.kind, f.err)
	if err := o.store.Fail(jobID, f.kind, f.err.Error()); err != nil {
		log.Printf("[Pipeline] Failed to record error for job %s: %v", jobID, err)
	}
	if err := os.RemoveAll(filepath.Join(o.workDir, jobID)); err != nil {
		log.Printf("[Pipeline] Failed to remove work dir for job %s: %v", jobID, err)
	}
	return f.err
}

// runContent resolves the job's input to plain text (extracting the article
// when a URL was submitted) and segments it into slide units.
func (o *Orchestrator) runContent(ctx context.Context, job *models.Job) *failure {
	text := job.Input.Text
	title := job.Input.Title
	author := job.Input.Author

	if job.Input.URL != "" {
		article, err := o.extractor.Extract(ctx, job.Input.URL)
		if err != nil {
			if errors.Is(err, scraper.ErrInvalidURL) {
				return failf(models.ErrKindInvalidURL, "invalid article URL: %v", err)
			}
			return failf(models.ErrKindExtractionFailed, "article extraction failed: %v", err)
		}
		text = article.Text
		if title == "" {
			title = article.Title
		}
		if author == "" {
			author = article.Author
		}
		log.Printf("[Pipeline] Extracted article %q (%d chars)", title, len(text))
	}

	slides, err := segmenter.Segment(text, job.Config)
	if err != nil {
		switch {
		case errors.Is(err, segmenter.ErrContentTooShort):
			return failf(models.ErrKindContentTooShort, "content too short: %v", err)
		case errors.Is(err, segmenter.ErrContentTooLong):
			return failf(models.ErrKindContentTooLong, "content too long: %v", err)
		default:
			return failf(models.ErrKindInternal, "segmentation failed: %v", err)
		}
	}

	if author != "" {
		for i := range slides {
			slides[i].Author = author
		}
	}
	if title != "" && len(slides) > 0 {
		slides[0].Title = title
	}

	log.Printf("[Pipeline] Job %s segmented into %d slides (~%.1fs)", job.ID, len(slides), segmenter.EstimateTotalDuration(slides))

	uerr := o.store.Update(job.ID, func(j *models.Job) {
		j.Slides = slides
		if j.Input.URL != "" {
			j.Input.Title = title
			j.Input.Author = author
		}
	})
	if uerr != nil {
		return failf(models.ErrKindInternal, "store slides: %v", uerr)
	}
	job.Slides = slides
	return nil
}

// runAudio synthesizes narration for every slide concurrently, bounded by
// the configured slide concurrency. Each written file is probed for its real
// duration; the provider's estimate is only a fallback.
func (o *Orchestrator) runAudio(ctx context.Context, job *models.Job) *failure {
	jobDir := filepath.Join(o.workDir, job.ID)
	if err := os.MkdirAll(jobDir, 0755); err != nil {
		return failf(models.ErrKindInternal, "create job dir: %v", err)
	}

	audio := make([]models.SlideAudio, len(job.Slides))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.slideConcurrency)

	for _, slide := range job.Slides {
		slide := slide
		g.Go(func() error {
			var speech *services.SpeechResult
			err := o.withRetry(gctx, func() error {
				var serr error
				speech, serr = o.narrator.Synthesize(gctx, slide.Text, job.Config.Language, job.Config.VoiceRef)
				return serr
			})
			if err != nil {
				return fmt.Errorf("slide %d: %w", slide.Index, err)
			}

			path := filepath.Join(jobDir, fmt.Sprintf("audio_%d.%s", slide.Index, speech.Format))
			if err := os.WriteFile(path, speech.AudioData, 0644); err != nil {
				return fmt.Errorf("slide %d: write audio: %w", slide.Index, err)
			}

			duration := speech.Duration
			if measured, err := o.prober.AudioDuration(gctx, path); err == nil && measured > 0 {
				duration = measured
			}

			audio[slide.Index] = models.SlideAudio{
				Index:    slide.Index,
				Path:     path,
				Duration: duration,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return failf(models.ErrKindSynthesisFailed, "narration synthesis failed: %v", err)
	}

	uerr := o.store.Update(job.ID, func(j *models.Job) {
		j.Audio = audio
	})
	if uerr != nil {
		return failf(models.ErrKindInternal, "store audio: %v", uerr)
	}
	job.Audio = audio
	return nil
}

// runImages renders one illustration per slide concurrently. A single slide
// that exhausts its retries fails the whole job; a video with a missing
// slide image is never produced.
func (o *Orchestrator) runImages(ctx context.Context, job *models.Job) *failure {
	jobDir := filepath.Join(o.workDir, job.ID)
	images := make([]models.SlideImage, len(job.Slides))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.slideConcurrency)

	for _, slide := range job.Slides {
		slide := slide
		g.Go(func() error {
			var data []byte
			err := o.withRetry(gctx, func() error {
				var rerr error
				data, rerr = o.renderer.Render(gctx, slide.Text, slide.Title)
				return rerr
			})
			if err != nil {
				return fmt.Errorf("slide %d: %w", slide.Index, err)
			}

			path := filepath.Join(jobDir, fmt.Sprintf("image_%d.png", slide.Index))
			if err := os.WriteFile(path, data, 0644); err != nil {
				return fmt.Errorf("slide %d: write image: %w", slide.Index, err)
			}

			images[slide.Index] = models.SlideImage{
				Index: slide.Index,
				Path:  path,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return failf(models.ErrKindRenderFailed, "slide image rendering failed: %v", err)
	}

	uerr := o.store.Update(job.ID, func(j *models.Job) {
		j.Images = images
	})
	if uerr != nil {
		return failf(models.ErrKindInternal, "store images: %v", uerr)
	}
	job.Images = images
	return nil
}

// runVideo pairs each slide's image and audio in index order and hands the
// complete asset list to the composer in a single call.
func (o *Orchestrator) runVideo(ctx context.Context, job *models.Job) *failure {
	assets, err := buildAssets(job)
	if err != nil {
		return failf(models.ErrKindInternal, "assemble slide assets: %v", err)
	}

	result, err := o.composer.Compose(ctx, job.ID, assets, job.Params)
	if err != nil {
		return failf(models.ErrKindCompositionFailed, "video composition failed: %v", err)
	}

	// A cancel that arrived while composing still wins: the result is
	// discarded before the terminal transition, never after it.
	snap, err := o.store.Get(job.ID)
	if err != nil {
		return failf(models.ErrKindInternal, "reload job: %v", err)
	}
	if snap.CancelRequested {
		if rerr := os.Remove(result.VideoPath); rerr != nil && !os.IsNotExist(rerr) {
			log.Printf("[Pipeline] Failed to discard cancelled video for job %s: %v", job.ID, rerr)
		}
		return failf(models.ErrKindCancelled, "cancelled by request")
	}

	if err := o.store.Complete(job.ID, *result); err != nil {
		return failf(models.ErrKindInternal, "record result: %v", err)
	}

	log.Printf("[Pipeline] Job %s completed (%.1fs video at %s)", job.ID, result.Duration, result.VideoPath)
	return nil
}

// buildAssets zips the audio and image lists into ordered slide assets.
// Every slide must have both; composition never runs on a partial set.
func buildAssets(job *models.Job) ([]services.SlideAsset, error) {
	if len(job.Audio) != len(job.Slides) || len(job.Images) != len(job.Slides) {
		return nil, fmt.Errorf("asset count mismatch: %d slides, %d audio, %d images",
			len(job.Slides), len(job.Audio), len(job.Images))
	}

	assets := make([]services.SlideAsset, len(job.Slides))
	for i, slide := range job.Slides {
		if job.Audio[i].Path == "" || job.Images[i].Path == "" {
			return nil, fmt.Errorf("slide %d is missing an asset", slide.Index)
		}
		assets[i] = services.SlideAsset{
			Index:     slide.Index,
			ImagePath: job.Images[i].Path,
			AudioPath: job.Audio[i].Path,
			Duration:  job.Audio[i].Duration,
		}
	}

	sort.Slice(assets, func(a, b int) bool { return assets[a].Index < assets[b].Index })
	return assets, nil
}

// withRetry runs fn up to 1+adapterRetries times with a short linear backoff.
func (o *Orchestrator) withRetry(ctx context.Context, fn func() error) error {
	var err error
	attempts := 1 + o.adapterRetries
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt < attempts {
			log.Printf("[Pipeline] Attempt %d/%d failed, retrying: %v", attempt, attempts, err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}
	}
	return err
}
