package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kode4food/timebox"

	app "github.com/kode4food/paisley"
	"github.com/kode4food/paisley/internal/archive"
	"github.com/kode4food/paisley/internal/config"
	"github.com/kode4food/paisley/internal/engine"
	"github.com/kode4food/paisley/internal/executor"
	"github.com/kode4food/paisley/internal/metrics"
	"github.com/kode4food/paisley/internal/server"
	"github.com/kode4food/paisley/pkg/log"
	"github.com/kode4food/paisley/pkg/util/call"
)

type paisley struct {
	cfg           *config.Config
	timebox       *timebox.Timebox
	engineStore   *timebox.Store
	stateStore    *timebox.Store
	stepExec      executor.StepExecutor
	engine        *engine.Engine
	archiveStore  *archive.Store
	archiveWorker *engine.ArchiveWorker
	archiveRunner *archive.Runner
	archiveCancel context.CancelFunc
	listener      *metrics.Listener
	apiServer     *server.Server
	httpServer    *http.Server
	quit          chan os.Signal
}

var (
	ErrCreateTimebox     = errors.New("failed to create timebox")
	ErrCreateEngineStore = errors.New("failed to create engine store")
	ErrCreateStateStore  = errors.New("failed to create state store")
	ErrOpenArchiveBucket = errors.New("failed to open archive bucket")
)

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

func main() {
	cfg := config.NewDefaultConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		slog.Error("Invalid configuration", log.Error(err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", log.Error(err))
		os.Exit(1)
	}

	s := &paisley{
		cfg:  cfg,
		quit: make(chan os.Signal, 1),
	}
	s.setupLogging()

	if err := s.run(); err != nil {
		slog.Error("Failed to start application", log.Error(err))
		os.Exit(1)
	}
}

func (s *paisley) run() error {
	if err := call.Perform(
		s.initializeStores,
		s.initializeEngine,
	); err != nil {
		return err
	}
	s.startArchiving()
	s.startServer()

	signal.Notify(s.quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(s.quit)
	<-s.quit

	s.shutdown()
	return nil
}

func (s *paisley) setupLogging() {
	level, ok := logLevels[s.cfg.LogLevel]
	if !ok {
		level = slog.LevelInfo
	}

	env := os.Getenv("ENV")
	logger := log.NewWithLevel(app.Name, env, app.Version, level)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level)

	slog.Info("Paisley Engine starting",
		slog.String("log_level", s.cfg.LogLevel))

	slog.Info("Configuration loaded",
		slog.String("engine_redis_addr", s.cfg.EngineStore.Addr),
		slog.Int("engine_redis_db", s.cfg.EngineStore.DB),
		slog.String("state_redis_addr", s.cfg.StateStore.Addr),
		slog.Int("state_redis_db", s.cfg.StateStore.DB),
		slog.Bool("archive_enabled", s.cfg.ArchiveEnabled()),
		slog.String("api_host", s.cfg.APIHost),
		slog.Int("api_port", s.cfg.APIPort))
}

func (s *paisley) initializeStores() error {
	var err error

	s.timebox, err = timebox.NewTimebox(timebox.Config{
		MaxRetries: timebox.DefaultMaxRetries,
		CacheSize:  s.cfg.StateCacheSize,
		Workers:    true,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCreateTimebox, err)
	}

	s.engineStore, err = s.timebox.NewStore(s.cfg.EngineStore)
	if err != nil {
		_ = s.timebox.Close()
		return fmt.Errorf("%w: %w", ErrCreateEngineStore, err)
	}

	s.stateStore, err = s.timebox.NewStore(s.cfg.StateStore)
	if err != nil {
		_ = s.timebox.Close()
		return fmt.Errorf("%w: %w", ErrCreateStateStore, err)
	}

	return nil
}

func (s *paisley) initializeEngine() error {
	s.stepExec = executor.NewHTTPExecutor(
		time.Duration(s.cfg.StepTimeout) * time.Millisecond,
	)

	if s.cfg.ArchiveEnabled() {
		store, err := archive.NewStore(
			context.Background(), s.cfg.Archive.BucketURL,
			s.cfg.Archive.Prefix,
		)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrOpenArchiveBucket, err)
		}
		s.archiveStore = store
	}

	eng, err := engine.New(s.cfg, engine.Dependencies{
		EngineStore: s.engineStore,
		StateStore:  s.stateStore,
		StepExec:    s.stepExec,
		Hub:         s.timebox.GetHub(),
		Archive:     s.archiveStore,
	})
	if err != nil {
		return err
	}
	s.engine = eng
	return s.engine.Start()
}

func (s *paisley) startArchiving() {
	if !s.cfg.ArchiveEnabled() {
		return
	}

	s.archiveWorker = engine.NewArchiveWorker(s.engine, s.cfg)
	s.archiveWorker.Start()

	runner, err := archive.NewRunner(
		s.stateStore, s.archiveStore, s.cfg.Archive.CheckInterval,
		s.engine.MarkStateArchived,
	)
	if err != nil {
		slog.Error("Archive runner disabled", log.Error(err))
		return
	}
	s.archiveRunner = runner

	ctx, cancel := context.WithCancel(context.Background())
	s.archiveCancel = cancel
	go func() {
		if err := s.archiveRunner.Run(ctx); err != nil {
			slog.Error("Archive runner stopped", log.Error(err))
		}
	}()
}

func (s *paisley) startServer() {
	s.listener = metrics.NewListener(s.timebox.GetHub())
	s.listener.Start()

	s.apiServer = server.NewServer(s.engine, s.timebox.GetHub())
	mux := s.apiServer.SetupRoutes()

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.APIHost, s.cfg.APIPort),
		Handler: mux,
	}

	go func() {
		slog.Info("HTTP server starting",
			slog.String("addr", s.httpServer.Addr))
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", log.Error(err))
		}
	}()
}

func (s *paisley) shutdown() {
	slog.Info("Shutting down")

	ctx, cancel := context.WithTimeout(
		context.Background(), s.cfg.ShutdownTimeout,
	)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		slog.Error("Shutdown failed", log.Error(err))
	}

	s.apiServer.CloseWebSockets()
	s.listener.Stop()

	if s.archiveCancel != nil {
		s.archiveCancel()
	}
	if s.archiveWorker != nil {
		s.archiveWorker.Stop()
	}

	if err := s.engine.Stop(); err != nil {
		slog.Error("Engine shutdown failed", log.Error(err))
	}

	_ = s.timebox.Close()

	slog.Info("Server exited")
}
