package models

import "time"

// Enums

type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusError      JobStatus = "error"
)

// IsTerminal reports whether the status admits no further transitions.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusError
}

// Stage is one of the four ordered pipeline phases. Stages advance strictly
// in declaration order; the job store rejects any attempt to skip one.
type Stage string

const (
	StageNone    Stage = ""
	StageContent Stage = "content"
	StageAudio   Stage = "audio"
	StageImages  Stage = "images"
	StageVideo   Stage = "video"
)

var stageOrder = map[Stage]int{
	StageNone:    0,
	StageContent: 1,
	StageAudio:   2,
	StageImages:  3,
	StageVideo:   4,
}

// Ordinal returns the stage's position in the pipeline (0 = not started).
func (s Stage) Ordinal() int {
	return stageOrder[s]
}

// ErrorKind is the machine-checkable failure classification stored on a job.
type ErrorKind string

const (
	ErrKindContentTooShort   ErrorKind = "content_too_short"
	ErrKindContentTooLong    ErrorKind = "content_too_long"
	ErrKindInvalidURL        ErrorKind = "invalid_url"
	ErrKindExtractionFailed  ErrorKind = "extraction_failed"
	ErrKindSynthesisFailed   ErrorKind = "synthesis_failed"
	ErrKindRenderFailed      ErrorKind = "render_failed"
	ErrKindCompositionFailed ErrorKind = "composition_failed"
	ErrKindNotFound          ErrorKind = "not_found"
	ErrKindNotReady          ErrorKind = "not_ready"
	ErrKindCancelled         ErrorKind = "cancelled"
	ErrKindInternal          ErrorKind = "internal"
)

// Models

// GenerationConfig is the per-job segmentation and narration configuration.
// It is captured once at submission and never mutated afterwards, so every
// stage of a job reads the same values even if global defaults change.
type GenerationConfig struct {
	Language         string  `json:"language"`
	MaxSlides        int     `json:"max_slides"`
	WordsPerSlide    int     `json:"words_per_slide"`
	MinSlideDuration float64 `json:"min_slide_duration"`
	MaxSlideDuration float64 `json:"max_slide_duration"`
	MinTextLength    int     `json:"min_text_length"`
	MaxTextLength    int     `json:"max_text_length"`
	VoiceRef         string  `json:"voice_ref,omitempty"`
}

// VideoParams are the global composition parameters, snapshotted per job.
type VideoParams struct {
	Width              int     `json:"width"`
	Height             int     `json:"height"`
	FPS                int     `json:"fps"`
	TransitionDuration float64 `json:"transition_duration"`
}

// SlideUnit is one timed segment of narrated content. Slides are produced
// once by the segmenter and are immutable afterwards; the audio, image and
// composition stages consume them in index order.
type SlideUnit struct {
	Index     int     `json:"index"`
	Title     string  `json:"title"`
	Text      string  `json:"text"`
	WordCount int     `json:"word_count"`
	Duration  float64 `json:"duration"` // target seconds, clamped to config bounds
	Author    string  `json:"author,omitempty"`
}

// SlideAudio records the synthesized narration for one slide. Duration is
// the measured duration of the produced file, which may legitimately differ
// from the slide's estimated target.
type SlideAudio struct {
	Index    int     `json:"index"`
	Path     string  `json:"path"`
	Duration float64 `json:"duration"`
}

// SlideImage records the rendered image for one slide.
type SlideImage struct {
	Index int    `json:"index"`
	Path  string `json:"path"`
}

// JobInput is the submitted content; exactly one of Text or URL is set.
type JobInput struct {
	Text     string `json:"text,omitempty"`
	URL      string `json:"url,omitempty"`
	Title    string `json:"title,omitempty"`
	Author   string `json:"author,omitempty"`
	VoiceRef string `json:"voice_ref,omitempty"`
}

// VideoResult references the produced artifact of a completed job.
type VideoResult struct {
	VideoPath string  `json:"video_path"`
	Duration  float64 `json:"duration"`
	SizeBytes int64   `json:"size_bytes"`
}

// Job is the unit of work. It is owned exclusively by the job store; the
// orchestrator mutates it only through store.Update so status readers always
// observe a consistent snapshot.
type Job struct {
	ID              string           `json:"id"`
	Status          JobStatus        `json:"status"`
	Stage           Stage            `json:"stage"`
	Progress        int              `json:"progress"`
	Message         string           `json:"message"`
	Input           JobInput         `json:"input"`
	Config          GenerationConfig `json:"config"`
	Params          VideoParams      `json:"params"`
	Slides          []SlideUnit      `json:"slides,omitempty"`
	Audio           []SlideAudio     `json:"audio,omitempty"`
	Images          []SlideImage     `json:"images,omitempty"`
	Result          *VideoResult     `json:"result,omitempty"`
	ErrorKind       ErrorKind        `json:"error_kind,omitempty"`
	ErrorMessage    string           `json:"error_message,omitempty"`
	CancelRequested bool             `json:"cancel_requested,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`
}

// DTOs for API responses

type GenerateRequest struct {
	Text     string `json:"text,omitempty"`
	URL      string `json:"url,omitempty"`
	Title    string `json:"title,omitempty"`
	Author   string `json:"author,omitempty"`
	VoiceID  string `json:"voice_id,omitempty"`
	Language string `json:"language,omitempty"`

	// Optional per-request segmentation overrides; zero means "use defaults".
	MaxSlides     int `json:"max_slides,omitempty"`
	WordsPerSlide int `json:"words_per_slide,omitempty"`
}

type GenerateResponse struct {
	JobID  string    `json:"job_id"`
	Status JobStatus `json:"status"`
}

type StatusResponse struct {
	JobID        string     `json:"job_id"`
	Status       JobStatus  `json:"status"`
	Stage        Stage      `json:"stage,omitempty"`
	Progress     int        `json:"progress"`
	Message      string     `json:"message"`
	SlideCount   int        `json:"slide_count,omitempty"`
	Duration     float64    `json:"duration,omitempty"`
	ErrorKind    ErrorKind  `json:"error_kind,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

type VoiceUploadResponse struct {
	VoiceID  string  `json:"voice_id"`
	Duration float64 `json:"duration"`
}

type ArticlePreviewRequest struct {
	URL string `json:"url"`
}

type ArticlePreviewResponse struct {
	Title    string `json:"title"`
	Author   string `json:"author,omitempty"`
	Text     string `json:"text"`
	TopImage string `json:"top_image,omitempty"`
}

// ArticleContent is what the extraction collaborator returns for a URL.
type ArticleContent struct {
	Title    string
	Author   string
	Text     string
	TopImage string
}
