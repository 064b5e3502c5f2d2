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

	"github.com/joho/godotenv"
	anyllm "github.com/mozilla-ai/any-llm-go"

	"github.com/antoniostano/minerva/internal/audit"
	"github.com/antoniostano/minerva/internal/config"
	"github.com/antoniostano/minerva/internal/escalation"
	"github.com/antoniostano/minerva/internal/guardrail"
	"github.com/antoniostano/minerva/internal/httpapi"
	"github.com/antoniostano/minerva/internal/job"
	"github.com/antoniostano/minerva/internal/llm"
	"github.com/antoniostano/minerva/internal/observability"
	"github.com/antoniostano/minerva/internal/orchestrator"
	"github.com/antoniostano/minerva/internal/routing"
	"github.com/antoniostano/minerva/internal/session"
	"github.com/antoniostano/minerva/internal/specialist"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	window := observability.NewPipelineWindow(cfg.PerfWindowSize)

	ctx := context.Background()
	var sink audit.Sink = audit.NopSink{}
	if cfg.DatabaseURL != "" {
		pg, err := audit.NewPostgresSink(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("audit sink init failed: %v", err)
		}
		defer pg.Close()
		sink = pg
	} else {
		slog.Warn("DATABASE_URL not set, audit trail is in-memory only")
		sink = audit.NewMemorySink()
	}

	newClient := func(role, spec string) *llm.Client {
		var opts []anyllm.Option
		if key := cfg.APIKeyFor(spec); key != "" {
			opts = append(opts, anyllm.WithAPIKey(key))
		}
		c, err := llm.New(spec, opts...)
		if err != nil {
			log.Fatalf("%s model init failed: %v", role, err)
		}
		return c
	}

	router := routing.NewLLMRouter(newClient("classifier", cfg.ClassifierModel))
	registry := specialist.NewRegistry(
		specialist.NewMathSpecialist(newClient("math", cfg.MathModel)),
		specialist.NewHistorySpecialist(newClient("history", cfg.HistoryModel)),
		specialist.NewEnglishSpecialist(newClient("english", cfg.EnglishModel)),
	)

	moderator, err := guardrail.NewOpenAIModerator(cfg.OpenAIAPIKey, cfg.ModerationTimeout)
	if err != nil {
		log.Fatalf("moderator init failed: %v", err)
	}
	rewriter := guardrail.NewLLMRewriter(newClient("rewriter", cfg.GuardrailRewriteModel))
	safety := guardrail.NewService(moderator, rewriter)
	filter := guardrail.NewSentenceFilter(safety)

	sessions := session.NewManager()
	jobs := job.NewStore(cfg.JobTTL)
	bus := escalation.NewBus(cfg.TeacherWSBaseURL, sink)

	svc := orchestrator.New(orchestrator.Options{
		Router:      router,
		Specialists: registry,
		Filter:      filter,
		Safety:      safety,
		Jobs:        jobs,
		Sessions:    sessions,
		Sink:        sink,
		Bus:         bus,
		Metrics:     metrics,
		Window:      window,
		MaxWait:     cfg.WaitTimeoutMax,
	})

	api := httpapi.New(cfg, svc, bus, metrics, window)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	jobs.StartReclaimer(runCtx, cfg.JobReapInterval)

	go func() {
		slog.Info("server listening", "addr", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutdown signal received")

	// Stop the reclaimer; in-flight pipelines run to completion so late
	// waiters can still pick up their results.
	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
		_ = httpServer.Close()
	}

	slog.Info("shutdown complete")
}
