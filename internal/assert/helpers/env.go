package helpers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/kode4food/timebox"
	"github.com/stretchr/testify/require"

	"github.com/kode4food/paisley/internal/archive"
	"github.com/kode4food/paisley/internal/config"
	"github.com/kode4food/paisley/internal/engine"
	"github.com/kode4food/paisley/pkg/api"
	"github.com/kode4food/paisley/pkg/events"

	_ "gocloud.dev/blob/memblob"
)

// TestEngineEnv holds all the components needed for engine testing
type TestEngineEnv struct {
	Engine      *engine.Engine
	Redis       *miniredis.Miniredis
	MockExec    *MockExecutor
	Config      *config.Config
	Archive     *archive.Store
	EventHub    timebox.EventHub
	Cleanup     func()
	engineStore *timebox.Store
	stateStore  *timebox.Store
}

const defaultStoreTimeout = 5 * time.Second

// NewTestConfig creates a default configuration with debug logging enabled
func NewTestConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.LogLevel = "debug"
	return cfg
}

// NewTestEngine creates a fully configured test engine environment with an
// in-memory Redis backend, a mock step executor, and an in-memory archive
// bucket
func NewTestEngine(t *testing.T) *TestEngineEnv {
	t.Helper()
	ctx := context.Background()

	server, err := miniredis.Run()
	require.NoError(t, err)

	tb, err := timebox.NewTimebox(timebox.Config{
		MaxRetries: timebox.DefaultMaxRetries,
		CacheSize:  100,
		Workers:    true,
	})
	require.NoError(t, err)

	engineConfig := config.NewDefaultConfig().EngineStore
	engineConfig.Addr = server.Addr()
	engineConfig.Prefix = "test-engine"

	engineStore, err := tb.NewStore(engineConfig)
	require.NoError(t, err)

	stateConfig := config.NewDefaultConfig().StateStore
	stateConfig.Addr = server.Addr()
	stateConfig.Prefix = "test-state"

	stateStore, err := tb.NewStore(stateConfig)
	require.NoError(t, err)

	archiveStore, err := archive.NewStore(ctx, "mem://", "test/")
	require.NoError(t, err)

	mockExec := NewMockExecutor()

	cfg := &config.Config{
		APIPort:         8080,
		APIHost:         "localhost",
		StepTimeout:     5 * api.Second,
		StateCacheSize:  100,
		ShutdownTimeout: 2 * time.Second,
		Retry: api.RetryPolicy{
			MaxAttempts: 3,
			DelayMs:     10,
			MaxDelayMs:  100,
			BackoffType: api.BackoffTypeFixed,
		},
		Loop: config.LoopConfig{
			MaxIterations: 100,
			TimeoutMs:     10 * api.Second,
		},
		History: config.HistoryConfig{
			CompactDelay: 50 * time.Millisecond,
			MaxEntries:   50,
			Retain:       10,
		},
	}

	hub := tb.GetHub()
	eng, err := engine.New(cfg, engine.Dependencies{
		EngineStore: engineStore,
		StateStore:  stateStore,
		StepExec:    mockExec,
		Hub:         hub,
		Archive:     archiveStore,
	})
	require.NoError(t, err)

	cleanup := func() {
		_ = eng.Stop()
		_ = tb.Close()
		server.Close()
	}

	return &TestEngineEnv{
		Engine:      eng,
		Redis:       server,
		MockExec:    mockExec,
		Config:      cfg,
		Archive:     archiveStore,
		EventHub:    hub,
		Cleanup:     cleanup,
		engineStore: engineStore,
		stateStore:  stateStore,
	}
}

// NewEngineInstance creates a new engine instance sharing the same stores
// and mock executor. Used to simulate process restart after crash
func (e *TestEngineEnv) NewEngineInstance(t *testing.T) *engine.Engine {
	t.Helper()
	eng, err := engine.New(e.Config, engine.Dependencies{
		EngineStore: e.engineStore,
		StateStore:  e.stateStore,
		StepExec:    e.MockExec,
		Hub:         e.EventHub,
		Archive:     e.Archive,
	})
	require.NoError(t, err)
	return eng
}

// NewEngineWithoutArchive creates an engine instance sharing the same
// stores but with no archive bucket wired
func (e *TestEngineEnv) NewEngineWithoutArchive(t *testing.T) *engine.Engine {
	t.Helper()
	eng, err := engine.New(e.Config, engine.Dependencies{
		EngineStore: e.engineStore,
		StateStore:  e.stateStore,
		StepExec:    e.MockExec,
		Hub:         e.EventHub,
	})
	require.NoError(t, err)
	return eng
}

// StateEvents returns the raw persisted events for a state record
func (e *TestEngineEnv) StateEvents(
	stateID api.StateID,
) ([]*timebox.Event, error) {
	ctx, cancel := context.WithTimeout(
		context.Background(), defaultStoreTimeout,
	)
	defer cancel()
	return e.stateStore.GetEvents(ctx, events.StateKey(stateID), 0)
}

// LoopEvents returns the raw persisted events for a loop execution
func (e *TestEngineEnv) LoopEvents(
	loopID api.LoopID,
) ([]*timebox.Event, error) {
	ctx, cancel := context.WithTimeout(
		context.Background(), defaultStoreTimeout,
	)
	defer cancel()
	return e.stateStore.GetEvents(ctx, events.LoopKey(loopID), 0)
}

// AppendStateEvents appends state events directly to the state store
func (e *TestEngineEnv) AppendStateEvents(
	stateID api.StateID, evs ...*timebox.Event,
) error {
	return e.appendEvents(events.StateKey(stateID), evs)
}

// AppendLoopEvents appends loop events directly to the state store
func (e *TestEngineEnv) AppendLoopEvents(
	loopID api.LoopID, evs ...*timebox.Event,
) error {
	return e.appendEvents(events.LoopKey(loopID), evs)
}

func (e *TestEngineEnv) appendEvents(
	aggregateID timebox.AggregateID, evs []*timebox.Event,
) error {
	ctx, cancel := context.WithTimeout(
		context.Background(), defaultStoreTimeout,
	)
	defer cancel()

	seq, err := e.getSequence(ctx, aggregateID)
	if err != nil {
		return err
	}

	for i, ev := range evs {
		ev.AggregateID = aggregateID
		ev.Sequence = seq + int64(i)
		if ev.Timestamp.IsZero() {
			ev.Timestamp = time.Now()
		}
	}

	err = e.stateStore.AppendEvents(ctx, aggregateID, seq, evs)
	if err == nil {
		return nil
	}

	conflict := new(timebox.VersionConflictError)
	if !errors.As(err, &conflict) {
		return err
	}

	seq = conflict.ActualSequence
	for i, ev := range evs {
		ev.Sequence = seq + int64(i)
	}

	return e.stateStore.AppendEvents(ctx, aggregateID, seq, evs)
}

func (e *TestEngineEnv) getSequence(
	ctx context.Context, aggregateID timebox.AggregateID,
) (int64, error) {
	eventsInStore, err := e.stateStore.GetEvents(ctx, aggregateID, 0)
	if err != nil {
		return 0, err
	}
	return int64(len(eventsInStore)), nil
}

// WithTestEnv creates a test engine environment, executes the provided
// function with it, and ensures cleanup happens automatically
func WithTestEnv(t *testing.T, fn func(*TestEngineEnv)) {
	t.Helper()
	testEnv := NewTestEngine(t)
	defer testEnv.Cleanup()
	fn(testEnv)
}

// WithEngine creates a test engine, executes the provided function with it,
// and ensures cleanup happens automatically
func WithEngine(t *testing.T, fn func(*engine.Engine)) {
	t.Helper()
	WithTestEnv(t, func(env *TestEngineEnv) {
		fn(env.Engine)
	})
}

// WithStartedEngine creates a test engine, starts it, executes the provided
// function with the engine, and ensures cleanup happens automatically
func WithStartedEngine(t *testing.T, fn func(*engine.Engine)) {
	t.Helper()
	WithTestEnv(t, func(env *TestEngineEnv) {
		require.NoError(t, env.Engine.Start())
		fn(env.Engine)
	})
}

// WithStartedEnv creates a test engine environment, starts the engine, and
// executes the provided function with the environment
func WithStartedEnv(t *testing.T, fn func(*TestEngineEnv)) {
	t.Helper()
	WithTestEnv(t, func(env *TestEngineEnv) {
		require.NoError(t, env.Engine.Start())
		fn(env)
	})
}
