package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"slidecast/internal/config"
	"slidecast/internal/jobstore"
	"slidecast/internal/models"
	"slidecast/internal/pipeline"
	"slidecast/internal/services"
)

// JobQueue is the handler's view of the processing queue: dispatch on
// submit, depth for the health payload.
type JobQueue interface {
	EnqueueGenerate(ctx context.Context, jobID string) error
	Length(ctx context.Context) (int64, error)
}

type Handler struct {
	store     *jobstore.Store
	queue     JobQueue
	extractor pipeline.Extractor
	prober    services.DurationProber
	cfg       *config.Config
}

func NewHandler(store *jobstore.Store, q JobQueue, extractor pipeline.Extractor, prober services.DurationProber, cfg *config.Config) *Handler {
	return &Handler{
		store:     store,
		queue:     q,
		extractor: extractor,
		prober:    prober,
		cfg:       cfg,
	}
}

// CreateVideo handles POST /v1/videos
// Accepts either raw text or an article URL (exactly one). Raw text is
// length-validated here so obviously bad submissions are rejected before a
// job is created; URL content can only be validated after extraction, so
// those failures surface on the job instead.
func (h *Handler) CreateVideo(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Text = strings.TrimSpace(req.Text)
	req.URL = strings.TrimSpace(req.URL)

	if (req.Text == "") == (req.URL == "") {
		respondError(w, http.StatusBadRequest, "Provide exactly one of text or url")
		return
	}

	if req.Text != "" {
		n := utf8.RuneCountInString(req.Text)
		if n < h.cfg.MinTextLength {
			respondErrorKind(w, http.StatusBadRequest, models.ErrKindContentTooShort,
				fmt.Sprintf("Text is too short: %d characters (minimum %d)", n, h.cfg.MinTextLength))
			return
		}
		if n > h.cfg.MaxTextLength {
			respondErrorKind(w, http.StatusBadRequest, models.ErrKindContentTooLong,
				fmt.Sprintf("Text is too long: %d characters (maximum %d)", n, h.cfg.MaxTextLength))
			return
		}
	}

	if req.URL != "" {
		u, err := url.Parse(req.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			respondErrorKind(w, http.StatusBadRequest, models.ErrKindInvalidURL, "Invalid article URL")
			return
		}
	}

	genCfg := h.generationConfig(&req)

	input := models.JobInput{
		Text:     req.Text,
		URL:      req.URL,
		Title:    req.Title,
		Author:   req.Author,
		VoiceRef: req.VoiceID,
	}

	params := models.VideoParams{
		Width:              h.cfg.VideoWidth,
		Height:             h.cfg.VideoHeight,
		FPS:                h.cfg.VideoFPS,
		TransitionDuration: h.cfg.TransitionDuration,
	}

	job := h.store.Create(input, genCfg, params)

	if err := h.queue.EnqueueGenerate(r.Context(), job.ID); err != nil {
		h.store.Delete(job.ID)
		respondError(w, http.StatusInternalServerError, "Failed to enqueue job")
		return
	}

	respondJSON(w, http.StatusAccepted, models.GenerateResponse{
		JobID:  job.ID,
		Status: job.Status,
	})
}

// generationConfig captures the effective segmentation settings for a job:
// global defaults overlaid with the request's per-job overrides.
func (h *Handler) generationConfig(req *models.GenerateRequest) models.GenerationConfig {
	cfg := models.GenerationConfig{
		Language:         h.cfg.Language,
		MaxSlides:        h.cfg.MaxSlides,
		WordsPerSlide:    h.cfg.WordsPerSlide,
		MinSlideDuration: h.cfg.MinSlideDuration,
		MaxSlideDuration: h.cfg.MaxSlideDuration,
		MinTextLength:    h.cfg.MinTextLength,
		MaxTextLength:    h.cfg.MaxTextLength,
		VoiceRef:         req.VoiceID,
	}
	if req.Language != "" {
		cfg.Language = req.Language
	}
	if req.MaxSlides > 0 {
		cfg.MaxSlides = req.MaxSlides
	}
	if req.WordsPerSlide > 0 {
		cfg.WordsPerSlide = req.WordsPerSlide
	}
	return cfg
}

// GetVideo handles GET /v1/videos/{id}
func (h *Handler) GetVideo(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookupJob(w, r)
	if !ok {
		return
	}

	resp := models.StatusResponse{
		JobID:        job.ID,
		Status:       job.Status,
		Stage:        job.Stage,
		Progress:     job.Progress,
		Message:      job.Message,
		SlideCount:   len(job.Slides),
		ErrorKind:    job.ErrorKind,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt,
		CompletedAt:  job.CompletedAt,
	}
	if job.Result != nil {
		resp.Duration = job.Result.Duration
	}

	respondJSON(w, http.StatusOK, resp)
}

// DownloadVideo handles GET /v1/videos/{id}/download
// Only completed jobs have a video; anything else is 409 so pollers can tell
// "not yet" apart from "no such job".
func (h *Handler) DownloadVideo(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookupJob(w, r)
	if !ok {
		return
	}

	if job.Status != models.JobStatusCompleted || job.Result == nil {
		respondErrorKind(w, http.StatusConflict, models.ErrKindNotReady,
			fmt.Sprintf("Video not ready: job is %s", job.Status))
		return
	}

	if _, err := os.Stat(job.Result.VideoPath); err != nil {
		respondErrorKind(w, http.StatusNotFound, models.ErrKindNotFound, "Video file no longer available")
		return
	}

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", job.ID+".mp4"))
	http.ServeFile(w, r, job.Result.VideoPath)
}

// CancelVideo handles DELETE /v1/videos/{id}
// Cancellation is cooperative: the flag is set here and the pipeline
// observes it at its next stage boundary. Cancelling a terminal job is a
// harmless no-op.
func (h *Handler) CancelVideo(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	if err := h.store.RequestCancel(jobID); err != nil {
		if errors.Is(err, jobstore.ErrNotFound) {
			respondErrorKind(w, http.StatusNotFound, models.ErrKindNotFound, "Job not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to request cancellation")
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{
		"job_id": jobID,
		"status": "cancel_requested",
	})
}

// UploadVoice handles POST /v1/voices
// Accepts a multipart audio sample and enforces the minimum sample length
// before accepting it as a cloning reference.
func (h *Handler) UploadVoice(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Missing file field")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	switch ext {
	case ".mp3", ".wav", ".m4a", ".ogg":
	default:
		respondError(w, http.StatusBadRequest, "Unsupported audio format (expected mp3, wav, m4a or ogg)")
		return
	}

	if err := os.MkdirAll(h.cfg.VoiceDir, 0755); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to store voice sample")
		return
	}

	voiceID := uuid.New().String()
	path := filepath.Join(h.cfg.VoiceDir, voiceID+ext)

	out, err := os.Create(path)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to store voice sample")
		return
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		os.Remove(path)
		respondError(w, http.StatusInternalServerError, "Failed to store voice sample")
		return
	}
	out.Close()

	duration, err := h.prober.AudioDuration(r.Context(), path)
	if err != nil {
		os.Remove(path)
		respondError(w, http.StatusBadRequest, "Could not read audio sample")
		return
	}
	if duration < h.cfg.MinVoiceSampleSec {
		os.Remove(path)
		respondError(w, http.StatusBadRequest,
			fmt.Sprintf("Voice sample too short: %.1fs (minimum %.0fs)", duration, h.cfg.MinVoiceSampleSec))
		return
	}

	respondJSON(w, http.StatusCreated, models.VoiceUploadResponse{
		VoiceID:  voiceID,
		Duration: duration,
	})
}

// PreviewArticle handles POST /v1/articles/preview
// Runs extraction synchronously so a client can show the article content
// before committing to a generation job.
func (h *Handler) PreviewArticle(w http.ResponseWriter, r *http.Request) {
	var req models.ArticlePreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	article, err := h.extractor.Extract(r.Context(), req.URL)
	if err != nil {
		respondErrorKind(w, http.StatusUnprocessableEntity, models.ErrKindExtractionFailed,
			fmt.Sprintf("Extraction failed: %v", err))
		return
	}

	respondJSON(w, http.StatusOK, models.ArticlePreviewResponse{
		Title:    article.Title,
		Author:   article.Author,
		Text:     article.Text,
		TopImage: article.TopImage,
	})
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	payload := map[string]interface{}{
		"status": "ok",
		"jobs":   h.store.Len(),
	}
	if depth, err := h.queue.Length(r.Context()); err == nil {
		payload["queue_depth"] = depth
	}
	respondJSON(w, http.StatusOK, payload)
}

func (h *Handler) lookupJob(w http.ResponseWriter, r *http.Request) (models.Job, bool) {
	jobID := chi.URLParam(r, "id")

	job, err := h.store.Get(jobID)
	if err != nil {
		if errors.Is(err, jobstore.ErrNotFound) {
			respondErrorKind(w, http.StatusNotFound, models.ErrKindNotFound, "Job not found")
		} else {
			respondError(w, http.StatusInternalServerError, "Failed to load job")
		}
		return models.Job{}, false
	}
	return job, true
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func respondErrorKind(w http.ResponseWriter, status int, kind models.ErrorKind, message string) {
	respondJSON(w, status, map[string]string{
		"error":      message,
		"error_kind": string(kind),
	})
}
