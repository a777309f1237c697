package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"slidecast/internal/models"
)

// ---------------------------------------------------------------------------
// FFmpegService — video composition backend
// Renders one clip per slide (still image + narration audio with fade
// transitions), concatenates the clips into the final video, and probes
// media durations with ffprobe.
// ---------------------------------------------------------------------------

type FFmpegService struct {
	workDir   string
	outputDir string
}

var (
	_ Composer       = (*FFmpegService)(nil)
	_ DurationProber = (*FFmpegService)(nil)
)

func NewFFmpegService(workDir, outputDir string) *FFmpegService {
	for _, dir := range []string{workDir, outputDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			panic(fmt.Sprintf("failed to create dir %s: %v", dir, err))
		}
	}
	return &FFmpegService{
		workDir:   workDir,
		outputDir: outputDir,
	}
}

// JobDir returns the job-scoped artifact directory, creating it if needed.
// Keeping every temp file under a per-job directory avoids cross-job path
// collisions and makes cleanup a single RemoveAll.
func (s *FFmpegService) JobDir(jobID string) (string, error) {
	dir := filepath.Join(s.workDir, jobID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create job dir: %w", err)
	}
	return dir, nil
}

// Compose renders each slide clip and concatenates them into the final
// video. Returns the output path together with measured duration and size.
func (s *FFmpegService) Compose(ctx context.Context, jobID string, assets []SlideAsset, params models.VideoParams) (*models.VideoResult, error) {
	if len(assets) == 0 {
		return nil, fmt.Errorf("no slide assets to compose")
	}

	jobDir, err := s.JobDir(jobID)
	if err != nil {
		return nil, err
	}

	clipPaths := make([]string, 0, len(assets))
	for _, asset := range assets {
		clipPath := filepath.Join(jobDir, fmt.Sprintf("clip_%d.mp4", asset.Index))
		if err := s.renderSlideClip(ctx, asset, clipPath, params); err != nil {
			return nil, fmt.Errorf("failed to render clip %d: %w", asset.Index, err)
		}
		clipPaths = append(clipPaths, clipPath)
	}

	outputPath := filepath.Join(s.outputDir, jobID+".mp4")
	if err := s.concatenateClips(ctx, jobDir, clipPaths, outputPath); err != nil {
		return nil, fmt.Errorf("failed to concatenate clips: %w", err)
	}

	duration, err := s.VideoDuration(ctx, outputPath)
	if err != nil {
		log.Printf("[FFmpeg] Warning: could not measure final video duration: %v", err)
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat final video: %w", err)
	}

	log.Printf("[FFmpeg] Final video composed (%d clips, %.1fs, %d bytes)", len(clipPaths), duration, info.Size())

	return &models.VideoResult{
		VideoPath: outputPath,
		Duration:  duration,
		SizeBytes: info.Size(),
	}, nil
}

// renderSlideClip turns a still image plus narration audio into one video
// clip. The image is scaled and padded to the output resolution, the clip
// runs for the slide's narration duration, and a fade in/out of half the
// transition duration smooths the cut between consecutive slides.
func (s *FFmpegService) renderSlideClip(ctx context.Context, asset SlideAsset, outputPath string, params models.VideoParams) error {
	fade := params.TransitionDuration / 2
	fadeOutStart := asset.Duration - fade
	if fadeOutStart < 0 {
		fadeOutStart = 0
	}

	vf := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,fps=%d,fade=t=in:st=0:d=%.2f,fade=t=out:st=%.2f:d=%.2f",
		params.Width, params.Height, params.Width, params.Height, params.FPS,
		fade, fadeOutStart, fade,
	)

	args := []string{
		"-loop", "1",
		"-i", asset.ImagePath,
		"-i", asset.AudioPath,
		"-t", fmt.Sprintf("%.3f", asset.Duration),
		"-vf", vf,
		"-c:v", "libx264",
		"-c:a", "aac",
		"-b:a", "192k",
		"-pix_fmt", "yuv420p",
		"-shortest",
		"-y",
		outputPath,
	}

	log.Printf("[FFmpeg] Rendering slide clip %d (duration=%.1fs)", asset.Index, asset.Duration)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg render slide clip failed: %w", err)
	}

	return nil
}

// concatenateClips combines the ordered slide clips into one video.
func (s *FFmpegService) concatenateClips(ctx context.Context, jobDir string, clipPaths []string, outputPath string) error {
	if len(clipPaths) == 0 {
		return fmt.Errorf("no clips to concatenate")
	}

	// Create a concat list file
	listPath := filepath.Join(jobDir, "concat_list.txt")
	f, err := os.Create(listPath)
	if err != nil {
		return fmt.Errorf("failed to create concat list: %w", err)
	}

	for _, path := range clipPaths {
		// FFmpeg concat format
		fmt.Fprintf(f, "file '%s'\n", path)
	}
	f.Close()
	defer os.Remove(listPath)

	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy", // Copy without re-encoding
		"-y",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg concatenate failed: %w", err)
	}

	return nil
}

// AudioDuration returns the duration of an audio file in seconds.
func (s *FFmpegService) AudioDuration(ctx context.Context, audioPath string) (float64, error) {
	return probeDuration(ctx, audioPath)
}

// VideoDuration returns the duration of a video file in seconds.
func (s *FFmpegService) VideoDuration(ctx context.Context, videoPath string) (float64, error) {
	return probeDuration(ctx, videoPath)
}

func probeDuration(ctx context.Context, path string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}

	cmd := exec.CommandContext(ctx, "ffprobe", args...)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	var durationSec float64
	if _, err := fmt.Sscanf(strings.TrimSpace(string(output)), "%f", &durationSec); err != nil {
		return 0, fmt.Errorf("failed to parse duration: %w", err)
	}

	return durationSec, nil
}

// Cleanup removes a job's working directory. The final video in the output
// directory is kept; the sweeper removes it after the retention window.
func (s *FFmpegService) Cleanup(jobID string) {
	if err := os.RemoveAll(filepath.Join(s.workDir, jobID)); err != nil {
		log.Printf("[FFmpeg] Failed to clean up job dir for %s: %v", jobID, err)
	}
}
