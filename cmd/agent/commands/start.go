package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"companion-agent/internal/agent"
	"companion-agent/internal/common/config"
	"companion-agent/internal/common/database"
	"companion-agent/internal/common/logger"
	"companion-agent/internal/common/observability"
	"companion-agent/internal/directory"
	"companion-agent/internal/livekit"
	"companion-agent/internal/media"
	"companion-agent/internal/memory"
	"companion-agent/internal/search"
	"companion-agent/internal/store"
	"companion-agent/internal/workflow"
)

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Run the agent worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runAgent(cfg)
		},
	}
}

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func runAgent(cfg *config.Config) error {
	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting companion agent...",
		zap.String("agentName", cfg.LiveKit.AgentName),
		zap.String("environment", cfg.App.Environment),
	)

	meter, err := observability.NewMeter(cfg.App.Name)
	if err != nil {
		return fmt.Errorf("observability setup failed: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgresClient(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.HealthCheck(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		return err
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedisClient(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.HealthCheck(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		return err
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init external service clients ---
	templates, err := workflow.NewTemplateStore(cfg.Workflow.TemplateDir)
	if err != nil {
		return fmt.Errorf("workflow template store: %w", err)
	}

	entrypoint := agent.NewEntrypoint(
		cfg,
		directory.NewClient(cfg.Directory.BaseURL, config.GetDuration(cfg.Directory.Timeout), log),
		memory.NewClient(cfg.Memory.BaseURL, cfg.Memory.APIKey, log),
		memory.NewContextCache(rdb, time.Duration(cfg.Memory.ContextTTL)*time.Second, log),
		workflow.NewClient(cfg.Workflow.BaseURL, cfg.Workflow.APIKey, cfg.Workflow.CallbackURL, templates, log),
		search.NewClient(cfg.Search.BaseURL, cfg.Search.APIKey, cfg.Search.Model, config.GetDuration(cfg.Search.Timeout), log),
		media.NewClient(cfg.Media.BaseURL, cfg.Media.APIKey, cfg.Media.Region, cfg.Media.Language, cfg.Media.MaxResults, log),
		store.NewCallLog(pg, log),
		meter,
		log,
	)

	worker := livekit.NewWorker(livekit.WorkerOptions{
		URL:            cfg.LiveKit.URL,
		APIKey:         cfg.LiveKit.APIKey,
		APISecret:      cfg.LiveKit.APISecret,
		AgentName:      cfg.LiveKit.AgentName,
		Version:        cfg.App.Version,
		MaxConcurrency: cfg.LiveKit.MaxConcurrency,
		PingInterval:   time.Duration(cfg.LiveKit.PingInterval) * time.Second,
	}, entrypoint.Handle, log)

	// --- Probe the LiveKit server with retry ---
	err = retryWithBackoff(func() error {
		return worker.Connect(ctx)
	}, 10, 2*time.Second, zapLog, "LiveKit server connection")

	if err != nil {
		return err
	}
	zapLog.Info("LiveKit server reachable, registering worker")

	healthSrv := startHealthServer(cfg.Health.Port, pg, rdb, zapLog)

	errCh := make(chan error, 1)
	go func() {
		errCh <- worker.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		zapLog.Info("Shutdown signal received, draining sessions...")
		<-errCh
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			zapLog.Error("Worker stopped unexpectedly", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Health server shutdown failed", zap.Error(err))
	}
	if err := meter.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Meter shutdown failed", zap.Error(err))
	}

	zapLog.Info("Agent stopped gracefully")
	return nil
}

// startHealthServer serves /health, /ready and /metrics on the health port.
func startHealthServer(port int, pg *database.PostgresClient, rdb *database.RedisClient, zapLog *zap.Logger) *http.Server {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: healthMux(pg, rdb),
	}

	go func() {
		zapLog.Info("Health/Metrics server listening", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	return srv
}

// healthMux routes the health endpoints. Readiness reflects the database
// and cache connections.
func healthMux(pg *database.PostgresClient, rdb *database.RedisClient) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		checks := map[string]string{"postgres": "ok", "redis": "ok"}
		ready := true
		if err := pg.HealthCheck(r.Context()); err != nil {
			checks["postgres"] = err.Error()
			ready = false
		}
		if err := rdb.HealthCheck(r.Context()); err != nil {
			checks["redis"] = err.Error()
			ready = false
		}

		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"ready":  ready,
			"checks": checks,
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	mux.Handle("/metrics", promhttp.Handler())
	return mux
}
