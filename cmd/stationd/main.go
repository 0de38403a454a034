// Command stationd is the Segment Production Pipeline daemon: it runs the
// Embedder Worker (C3) and Segment Generation Worker (C7) pools against
// the Durable Job Queue (C1), the Scheduler's (C5) periodic tick, the
// Time Service (C8), the Cleanup Service (A6), and the HTTP API (A3) as
// one long-lived process, grounded in the teacher's cmd/tarsy/main.go
// config/gin wiring plus the worker pool's signal.NotifyContext
// graceful-shutdown idiom.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sashabaranov/go-openai"

	"github.com/stationfm/segmentpipe/pkg/api"
	"github.com/stationfm/segmentpipe/pkg/cleanup"
	"github.com/stationfm/segmentpipe/pkg/config"
	"github.com/stationfm/segmentpipe/pkg/embedder"
	"github.com/stationfm/segmentpipe/pkg/generation"
	"github.com/stationfm/segmentpipe/pkg/notify"
	"github.com/stationfm/segmentpipe/pkg/queue"
	"github.com/stationfm/segmentpipe/pkg/retrieval"
	"github.com/stationfm/segmentpipe/pkg/scheduler"
	"github.com/stationfm/segmentpipe/pkg/segment"
	"github.com/stationfm/segmentpipe/pkg/store"
	"github.com/stationfm/segmentpipe/pkg/timeservice"
	"github.com/stationfm/segmentpipe/pkg/version"
)

func main() {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")

	configDir := "."
	if len(os.Args) > 1 {
		configDir = os.Args[1]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, configDir); err != nil {
		slog.Error("stationd exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configDir string) error {
	cfg, err := config.Initialize(ctx, configDir)
	if err != nil {
		return err
	}

	pool, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	slog.Info("starting stationd", "version", version.Full())

	timeSvc := timeservice.New(cfg.Time)
	timeSvc.Start(ctx)

	embedKey := os.Getenv(cfg.LLM.APIKeyEnv)
	openaiClient := openai.NewClient(embedKey)
	retrievalEngine := retrieval.New(pool, openaiClient, cfg.Retrieval, cfg.Defaults.EmbeddingModel)
	segmentStore := segment.New(pool)

	jobStore := queue.NewStore(pool, cfg.Queue)

	var ops *notify.Service
	if slackToken := os.Getenv(cfg.Slack.TokenEnv); slackToken != "" {
		ops = notify.New(cfg.Slack, slackToken)
	}
	jobStore.OnDeadLetter(func(ctx context.Context, dl queue.DeadLetterEntry) {
		ops.NotifyDeadLetter(ctx, notify.DeadLetterInput{
			JobID:        dl.JobID,
			JobType:      string(dl.JobType),
			FailureCount: dl.FailureCount,
			LastError:    dl.LastError,
		})
	})

	embedHandler := embedder.New(pool, openaiClient, cfg.Defaults.EmbeddingModel)
	embedderPool := queue.NewPool("embedder", "embedder", jobStore, pool, embedHandler, cfg.Queue)

	scriptGen := generation.NewHTTPScriptGenerator(cfg.LLM, os.Getenv(cfg.LLM.APIKeyEnv))
	generationHandler := generation.New(pool, jobStore, segmentStore, retrievalEngine, scriptGen, timeSvc)
	generationHandler.SetNotifier(ops)
	generationPool := queue.NewPool("generation", "generation", jobStore, pool, generationHandler, cfg.Queue)

	sched := scheduler.New(pool, jobStore, cfg.Time.ScheduleHorizon, cfg.Defaults.LeadTimeBySlotType, timeSvc.NowReal)

	cleanupSvc := cleanup.NewService(cfg.Retention, pool)

	apiServer := api.New(pool, retrievalEngine, timeSvc)
	httpServer := &http.Server{Addr: cfg.HTTP.Addr, Handler: apiServer.Handler()}

	embedderPool.Start(ctx)
	generationPool.Start(ctx)
	go sched.Run(ctx, 15*time.Minute)
	cleanupSvc.Start(ctx)
	go func() {
		ticker := time.NewTicker(cfg.Queue.JanitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := jobStore.RunJanitor(ctx); err != nil {
					slog.Error("janitor sweep failed", "error", err)
				}
			}
		}
	}()

	httpErrCh := make(chan error, 1)
	go func() {
		slog.Info("http api listening", "addr", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErrCh <- err
			return
		}
		httpErrCh <- nil
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining")
	case err := <-httpErrCh:
		if err != nil {
			slog.Error("http api failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Queue.GracefulShutdownTimeout)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)

	embedderPool.Stop()
	generationPool.Stop()
	cleanupSvc.Stop()

	slog.Info("stationd stopped")
	return nil
}
