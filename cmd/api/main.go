package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"slidecast/internal/api"
	"slidecast/internal/config"
	"slidecast/internal/jobstore"
	"slidecast/internal/pipeline"
	"slidecast/internal/queue"
	"slidecast/internal/scraper"
	"slidecast/internal/services"
	"slidecast/internal/worker"
)

func main() {
	log.Println("Starting Slidecast API...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to Redis queue
	q, err := queue.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()
	log.Println("Connected to Redis queue")

	// In-memory job store plus the retention sweeper that prunes it
	store := jobstore.New()
	sweeper := jobstore.NewSweeper(store, cfg.WorkDir, cfg.OutputDir,
		time.Duration(cfg.CleanupIntervalMin)*time.Minute,
		time.Duration(cfg.RetentionHours*float64(time.Hour)))
	sweeper.Start()
	defer sweeper.Stop()

	// Shared collaborators
	ffmpegSvc := services.NewFFmpegService(cfg.WorkDir, cfg.OutputDir)
	extractor := scraper.New(15 * time.Second)

	// Create API handler
	handler := api.NewHandler(store, q, extractor, ffmpegSvc, cfg)
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	if cfg.BackendAPIKey != "" {
		log.Println("API key authentication enabled")
	} else {
		log.Println("WARNING: No BACKEND_API_KEY set — API is unprotected (dev mode)")
	}

	// Start HTTP server
	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	// Start worker if enabled
	var w *worker.Worker
	if cfg.WorkerEnabled {
		log.Println("Worker enabled, starting background processing...")

		// Narration provider — ElevenLabs preferred, OpenAI TTS as fallback
		var narrator services.Narrator
		if cfg.ElevenLabsKey != "" {
			narrator = services.NewElevenLabsService(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID)
			log.Printf("Narration provider: ElevenLabs (voice: %s)", cfg.ElevenLabsVoiceID)
		} else {
			narrator = services.NewOpenAITTSService(cfg.OpenAIKey, "")
			log.Println("Narration provider: OpenAI TTS")
		}

		geminiSvc := services.NewGeminiService(cfg.GeminiKey, cfg.VisualStyle)

		orch := pipeline.New(store, narrator, geminiSvc, ffmpegSvc, ffmpegSvc, extractor, cfg)

		w = worker.New(q, orch, cfg.MaxConcurrentJobs)
		w.Start(context.Background())
	}

	// Start server in goroutine
	go func() {
		log.Printf("API server listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Shutdown worker
	if w != nil {
		w.Stop()
	}

	// Shutdown HTTP server
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
