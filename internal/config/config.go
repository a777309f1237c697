package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	APIPort            string
	WorkerEnabled      bool
	BackendAPIKey      string // API key for authenticating requests (empty = no auth, dev mode)
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)

	// Redis
	RedisURL string

	// Directories
	WorkDir   string // job-scoped temp artifacts (audio/image files per job)
	OutputDir string // final rendered videos
	VoiceDir  string // uploaded voice samples

	// TTS providers
	ElevenLabsKey     string
	ElevenLabsVoiceID string
	OpenAIKey         string

	// Gemini (slide imagery)
	GeminiKey   string
	VisualStyle string // prompt hint for the slide illustration style

	// Segmentation defaults (captured into each job's GenerationConfig)
	Language         string
	MaxSlides        int
	WordsPerSlide    int
	MinSlideDuration float64
	MaxSlideDuration float64
	MinTextLength    int
	MaxTextLength    int

	// Video composition defaults
	VideoWidth         int
	VideoHeight        int
	VideoFPS           int
	TransitionDuration float64

	// Voice sample validation
	MinVoiceSampleSec float64

	// Pipeline behavior
	MaxConcurrentJobs  int     // worker pool size (jobs in flight)
	SlideConcurrency   int     // per-job fan-out bound for audio/image generation
	AdapterRetries     int     // extra attempts per slide before the job fails
	StageTimeoutSec    int     // per-stage timeout; expiry is an internal failure
	RetentionHours     float64 // terminal jobs older than this are swept
	CleanupIntervalMin int
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:            getEnv("API_PORT", "8080"),
		WorkerEnabled:      getEnvBool("WORKER_ENABLED", true),
		BackendAPIKey:      getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		WorkDir:            getEnv("WORK_DIR", "/tmp/slidecast"),
		OutputDir:          getEnv("OUTPUT_DIR", "output"),
		VoiceDir:           getEnv("VOICE_DIR", "voices"),
		ElevenLabsKey:      getEnv("ELEVENLABS_API_KEY", ""),
		ElevenLabsVoiceID:  getEnv("ELEVENLABS_VOICE_ID", ""),
		OpenAIKey:          getEnv("OPENAI_API_KEY", ""),
		GeminiKey:          getEnv("GEMINI_API_KEY", ""),
		VisualStyle:        getEnv("VISUAL_STYLE", "clean editorial illustration"),
		Language:           getEnv("DEFAULT_LANGUAGE", "en"),
		MaxSlides:          getEnvInt("MAX_SLIDES", 8),
		WordsPerSlide:      getEnvInt("WORDS_PER_SLIDE", 50),
		MinSlideDuration:   getEnvFloat("MIN_SLIDE_DURATION", 3.0),
		MaxSlideDuration:   getEnvFloat("MAX_SLIDE_DURATION", 8.0),
		MinTextLength:      getEnvInt("MIN_TEXT_LENGTH", 100),
		MaxTextLength:      getEnvInt("MAX_TEXT_LENGTH", 50000),
		VideoWidth:         getEnvInt("VIDEO_WIDTH", 1920),
		VideoHeight:        getEnvInt("VIDEO_HEIGHT", 1080),
		VideoFPS:           getEnvInt("VIDEO_FPS", 24),
		TransitionDuration: getEnvFloat("TRANSITION_DURATION", 0.5),
		MinVoiceSampleSec:  getEnvFloat("MIN_VOICE_SAMPLE_SEC", 6.0),
		MaxConcurrentJobs:  getEnvInt("MAX_CONCURRENT_JOBS", 3),
		SlideConcurrency:   getEnvInt("SLIDE_CONCURRENCY", 4),
		AdapterRetries:     getEnvInt("ADAPTER_RETRIES", 2),
		StageTimeoutSec:    getEnvInt("STAGE_TIMEOUT_SEC", 600),
		RetentionHours:     getEnvFloat("RETENTION_HOURS", 24),
		CleanupIntervalMin: getEnvInt("CLEANUP_INTERVAL_MIN", 30),
	}

	// Validate required fields
	if cfg.ElevenLabsKey == "" && cfg.OpenAIKey == "" {
		return nil, fmt.Errorf("either ELEVENLABS_API_KEY or OPENAI_API_KEY is required for TTS")
	}

	if cfg.GeminiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}

	if cfg.MinSlideDuration <= 0 || cfg.MaxSlideDuration < cfg.MinSlideDuration {
		return nil, fmt.Errorf("invalid slide duration bounds: min=%.1f max=%.1f", cfg.MinSlideDuration, cfg.MaxSlideDuration)
	}

	if cfg.MinTextLength <= 0 || cfg.MaxTextLength < cfg.MinTextLength {
		return nil, fmt.Errorf("invalid text length bounds: min=%d max=%d", cfg.MinTextLength, cfg.MaxTextLength)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}
