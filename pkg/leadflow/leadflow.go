package leadflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/RealZimboGuy/leadflow/internal/analytics"
	"github.com/RealZimboGuy/leadflow/internal/collaborators"
	"github.com/RealZimboGuy/leadflow/internal/config"
	"github.com/RealZimboGuy/leadflow/internal/controllers"
	"github.com/RealZimboGuy/leadflow/internal/engine"
	"github.com/RealZimboGuy/leadflow/internal/ingress"
	"github.com/RealZimboGuy/leadflow/internal/repository"
	"github.com/RealZimboGuy/leadflow/pkg/leadflow/core"
)

// Channels served by the configured sender.
var DefaultChannels = []string{"email", "sms", "log"}

// App is a fully wired engine: database, repositories, collaborators and
// the ingress. Run serves it; the single-shot commands use its pieces.
type App struct {
	DB        *sql.DB
	Graphs    *repository.GraphRepository
	Manager   *engine.Manager
	Ingress   *ingress.Service
	Notifier  *repository.Notifier
	Queue     *ingress.Queue
	Auth      *collaborators.APIKeyAuthenticator
	collector analytics.Collector
	meters    *sdkmetric.MeterProvider
}

// Setup validates the configuration, opens and migrates the database and
// builds the application from the settings.
func Setup(ctx context.Context) (*App, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	db, err := repository.Open(ctx)
	if err != nil {
		return nil, err
	}

	collector, err := analytics.New(config.GetSystemSettingString(config.ANALYTICS_FILE))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("analytics: %w", err)
	}

	meters, err := setupMetrics()
	if err != nil {
		_ = collector.Close()
		_ = db.Close()
		return nil, err
	}
	var meterProvider metric.MeterProvider
	if meters != nil {
		meterProvider = meters
	}

	graphs := repository.NewGraphRepository(db)
	m := engine.NewManager(engine.ManagerConfig{
		ExecutorName:      config.ExecutorName(),
		Workers:           config.GetSystemSettingInteger(config.ENGINE_EXECUTOR_SIZE),
		BatchSize:         config.GetSystemSettingInteger(config.ENGINE_BATCH_SIZE),
		OutboxBatchSize:   config.GetSystemSettingInteger(config.ENGINE_OUTBOX_BATCH_SIZE),
		PollInterval:      config.GetSystemSettingDuration(config.ENGINE_CHECK_DB_INTERVAL),
		OutboxInterval:    config.GetSystemSettingDuration(config.ENGINE_OUTBOX_INTERVAL),
		LeaseDuration:     config.GetSystemSettingDuration(config.ENGINE_LEASE_DURATION),
		HeartbeatInterval: config.GetSystemSettingDuration(config.ENGINE_HEARTBEAT_INTERVAL),
		MeterProvider:     meterProvider,
	}, core.NewRealClock())
	m.Graphs = graphs
	m.Runs = repository.NewRunRepository(db)
	m.Steps = repository.NewStepRepository(db)
	m.Outbox = repository.NewOutboxRepository(db)
	m.StepActions = repository.NewStepActionRepository(db)
	m.ExecutorRepo = repository.NewExecutorRepository(db)
	m.Tagger = newTagger()
	m.Senders = newSenders()
	m.Collector = collector

	notifier := repository.NewNotifier(db)
	app := &App{
		DB:        db,
		Graphs:    graphs,
		Manager:   m,
		Ingress:   ingress.NewService(m.Matcher(), m, notifier),
		Notifier:  notifier,
		Auth:      collaborators.NewAPIKeyAuthenticator(config.GetSystemSettingString(config.AUTH_API_KEY_HASH)),
		collector: collector,
		meters:    meters,
	}
	if addr := config.GetSystemSettingString(config.REDIS_ADDR); addr != "" {
		app.Queue = ingress.NewQueue(strings.Split(addr, ","), config.GetSystemSettingString(config.REDIS_QUEUE))
	}
	return app, nil
}

func newSenders() *collaborators.Registry {
	registry := collaborators.NewRegistry()
	var sender engine.Sender = collaborators.LogSender{}
	if url := config.GetSystemSettingString(config.SENDERS_WEBHOOK_URL); url != "" {
		sender = collaborators.NewWebhookSender(url)
		slog.Info("Delivering messages through webhook", "url", url)
	}
	for _, channel := range DefaultChannels {
		registry.Register(channel, sender)
	}
	return registry
}

func newTagger() engine.EntityTagger {
	if url := config.GetSystemSettingString(config.TAGGING_URL); url != "" {
		return collaborators.NewHTTPTagger(url)
	}
	return collaborators.LogTagger{}
}

func (a *App) Close() {
	if a.Queue != nil {
		_ = a.Queue.Close()
	}
	if a.collector != nil {
		_ = a.collector.Close()
	}
	if a.meters != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.meters.Shutdown(ctx); err != nil {
			slog.Warn("Failed to flush metrics", "error", err)
		}
	}
	_ = a.DB.Close()
}

// RegisterRoutes wires every HTTP endpoint onto mux.
func (a *App) RegisterRoutes(mux *http.ServeMux) {
	if !a.Auth.Enabled() {
		slog.Warn("No API key hash configured, the API is unauthenticated", "setting", config.AUTH_API_KEY_HASH)
	}
	var queue controllers.EventQueue
	if a.Queue != nil {
		queue = a.Queue
	}
	controllers.NewEventsController(a.Ingress, queue, a.Auth).RegisterRoutes(mux)
	controllers.NewTickController(a.Manager.StepScheduler(), a.Manager.OutboxDispatcher(), a.Auth).RegisterRoutes(mux)
	controllers.NewRunsController(a.Manager.Runs, a.Manager.Steps, a.Manager.Outbox, a.Manager.StepActions, a.Auth).RegisterRoutes(mux)
	controllers.NewGraphsController(a.Manager.Inspector(), a.Auth).RegisterRoutes(mux)
	controllers.NewExecutorsController(a.Manager.ExecutorRepo, a.Auth).RegisterRoutes(mux)
	controllers.RegisterHealthRoute(mux)
}

// Run starts the engine workers, the optional Redis consumer and the HTTP
// server. It blocks until ctx is cancelled or the server fails.
func (a *App) Run(ctx context.Context, mux *http.ServeMux) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.Queue != nil {
		if err := a.Queue.Ping(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	// register first so the tick endpoints carry this executor's identity
	if err := a.Manager.Register(ctx); err != nil {
		return err
	}

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.Manager.StartEngine(ctx); err != nil {
			errs <- fmt.Errorf("engine: %w", err)
		}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.Notifier.Listen(ctx, a.Manager.Wakeup)
	}()
	if a.Queue != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.Queue.Consume(ctx, a.Ingress); err != nil {
				errs <- fmt.Errorf("event consumer: %w", err)
			}
		}()
	}

	if mux == nil {
		mux = http.NewServeMux()
	}
	a.RegisterRoutes(mux)

	addr := config.ListenAddr()
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		slog.Info("Starting HTTP server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errs:
		slog.Error("Shutting down after failure", "error", runErr)
	}
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown failed", "error", err)
	}
	wg.Wait()
	return runErr
}

// SetupLogger installs a tint handler at the given level as the default logger.
func SetupLogger(level string) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      l,
			TimeFormat: time.RFC3339Nano,
		}),
	))
}
