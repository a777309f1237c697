package services

import (
	"context"

	"slidecast/internal/models"
)

// SlideAsset is one ordered (image, audio, duration) tuple handed to the
// composer. Duration is the measured narration length for the slide.
type SlideAsset struct {
	Index     int
	ImagePath string
	AudioPath string
	Duration  float64
}

// Composer assembles the ordered slide assets into the final video. It is
// called exactly once per job, after every slide has both its image and its
// audio; composition failures are never retried.
type Composer interface {
	Compose(ctx context.Context, jobID string, assets []SlideAsset, params models.VideoParams) (*models.VideoResult, error)
}

// DurationProber measures the real duration of a media file. The
// orchestrator uses it to record actual narration durations instead of
// trusting provider estimates, and the voice upload handler uses it to
// enforce the minimum sample length.
type DurationProber interface {
	AudioDuration(ctx context.Context, path string) (float64, error)
}
