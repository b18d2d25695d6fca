package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jwebster45206/ability-forge/internal/cache"
	"github.com/jwebster45206/ability-forge/internal/config"
	"github.com/jwebster45206/ability-forge/internal/forge"
	"github.com/jwebster45206/ability-forge/internal/handlers"
	"github.com/jwebster45206/ability-forge/internal/logger"
	"github.com/jwebster45206/ability-forge/internal/middleware"
	"github.com/jwebster45206/ability-forge/internal/services"
	"github.com/jwebster45206/ability-forge/internal/services/events"
	"github.com/jwebster45206/ability-forge/internal/worker"
	"github.com/jwebster45206/ability-forge/pkg/textfilter"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting Ability Forge",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"llm_provider", cfg.LLMProvider,
		"model_name", cfg.ModelName,
		"cache_backend", cfg.CacheBackend)

	llmService, err := services.NewLLMService(cfg, log)
	if err != nil {
		log.Error("Invalid LLM provider specified", "error", err)
		os.Exit(1)
	}
	guarded := services.NewGuardedLLM(llmService)

	// Redis is needed by the redis cache backend and for lifecycle events.
	var redisService *services.RedisService
	if cfg.RedisURL != "" {
		redisService, err = services.NewRedisService(cfg.RedisURL, log)
		if err != nil {
			log.Error("Invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		redisCtx, redisCancel := context.WithTimeout(context.Background(), 2*time.Minute)
		err = redisService.WaitForConnection(redisCtx)
		redisCancel()
		if err != nil {
			log.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		log.Info("Redis connection established successfully")
	}

	var opener cache.Opener
	switch cfg.CacheBackend {
	case config.BackendRedis:
		opener = cache.RedisOpener(redisService.GetClient())
	case config.BackendMemory:
		opener = cache.MemoryOpener()
	default:
		if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
			log.Error("Failed to create cache directory", "error", err, "dir", cfg.CacheDir)
			os.Exit(1)
		}
		opener = cache.SQLiteOpener(cfg.CacheDir)
	}
	caches := cache.NewRegistry(opener)

	// Initialize the model on startup
	initCtx, initCancel := context.WithTimeout(context.Background(), 10*time.Minute)
	if err := guarded.InitModel(initCtx, cfg.ModelName); err != nil {
		initCancel()
		log.Error("Failed to initialize LLM model", "error", err, "model", cfg.ModelName)
		os.Exit(1)
	}
	initCancel()

	opts := worker.Options{ResultBuffer: cfg.ResultBuffer}
	var redisPing handlers.Pinger
	if redisService != nil {
		opts.Publisher = events.NewBroadcaster(redisService.GetClient(), log)
		redisPing = redisService
	}
	gen := worker.NewGenerator(guarded, cfg.InferenceTimeout, log).WithAttempts(cfg.Attempts)
	if cfg.ContentFilter {
		gen.WithFilter(textfilter.New())
	}
	w := worker.New(gen, log, opts)
	if err := w.Start(); err != nil {
		log.Error("Failed to start worker", "error", err)
		os.Exit(1)
	}

	f := forge.New(caches, w, log)
	loopCtx, stopLoop := context.WithCancel(context.Background())
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		f.Run(loopCtx, cfg.TickRate)
	}()

	mux := http.NewServeMux()
	mux.Handle("GET /health", handlers.NewHealthHandler(redisPing, guarded, w, log))
	handlers.NewAbilitiesHandler(f, log).Register(mux)
	mux.Handle("POST /v1/abilities/simulate", handlers.NewSimulateHandler(log))
	if redisService != nil {
		mux.Handle("GET /v1/events/players/{player_id}", handlers.NewEventsHandler(redisService.GetClient(), log))
	}

	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     middleware.Logger(log, mux),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: the event stream is long-lived.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Server is shutting down...")
	shutdown(log, cfg, server, w, stopLoop, loopDone, caches, redisService)
	log.Info("Server exited")
}

// shutdown stops intake first, then the worker, then the owner loop, so
// results that arrive during the worker's grace period are still cached.
func shutdown(log *slog.Logger, cfg *config.Config, server *http.Server, w *worker.Worker,
	stopLoop context.CancelFunc, loopDone <-chan struct{}, caches *cache.Registry, redisService *services.RedisService) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	if err := w.Stop(cfg.ShutdownGrace); err != nil {
		log.Warn("Worker stop", "error", err)
	}
	stopLoop()
	<-loopDone

	if err := caches.Close(); err != nil {
		log.Error("Error closing ability caches", "error", err)
	}
	if redisService != nil {
		if err := redisService.Close(); err != nil {
			log.Error("Error closing Redis connection", "error", err)
		}
	}
}
