package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/kode4food/timebox"

	"github.com/kode4food/paisley/pkg/api"
)

type (
	// Config holds configuration settings for the workflow state engine
	Config struct {
		// API Server
		APIHost  string
		APIPort  int
		LogLevel string

		// Stores & Archiving
		EngineStore timebox.StoreConfig
		StateStore  timebox.StoreConfig
		Archive     ArchiveConfig

		// Loops & Retry
		Loop  LoopConfig
		Retry api.RetryPolicy

		// Engine
		History         HistoryConfig
		StepTimeout     int64
		StateCacheSize  int
		ShutdownTimeout time.Duration
	}

	// ArchiveConfig controls the export of cold state records to blob
	// storage. An empty BucketURL disables archiving
	ArchiveConfig struct {
		BucketURL     string
		Prefix        string
		CheckInterval time.Duration
		MaxAge        time.Duration
		MemoryPercent float64
	}

	// LoopConfig supplies the safety bounds applied when a loop step names
	// no bounds of its own
	LoopConfig struct {
		MaxIterations int
		TimeoutMs     int64
	}

	// HistoryConfig bounds transition history growth. States whose history
	// exceeds MaxEntries are scheduled for compaction down to Retain
	// entries after CompactDelay
	HistoryConfig struct {
		CompactDelay time.Duration
		MaxEntries   int
		Retain       int
	}
)

const (
	DefaultStepTimeout     = 30 * api.Second
	DefaultShutdownTimeout = 10 * time.Second

	DefaultAPIPort = 8080
	DefaultAPIHost = "0.0.0.0"
	MaxTCPPort     = 65535
	DefaultRedisDB = 0

	DefaultRedisEndpoint       = "localhost:6379"
	DefaultRedisPrefix         = "paisley"
	DefaultSnapshotWorkers     = 4
	DefaultSnapshotQueueSize   = 1000
	DefaultSnapshotSaveTimeout = 30 * time.Second
	DefaultStateCacheSize      = 4096

	DefaultRetryMaxAttempts = 3
	DefaultRetryDelay       = api.Second
	DefaultRetryMaxDelay    = api.Minute
	DefaultRetryBackoffType = api.BackoffTypeExponential

	DefaultLoopMaxIterations = 1000
	DefaultLoopTimeout       = 60 * api.Second

	DefaultHistoryMaxEntries   = 1000
	DefaultHistoryRetain       = 100
	DefaultHistoryCompactDelay = 5 * time.Second

	DefaultArchivePrefix        = "archive/"
	DefaultArchiveCheckInterval = time.Hour
	DefaultArchiveMaxAge        = 30 * 24 * time.Hour
	DefaultArchiveMemoryPct     = 80.0

	MaxStateCacheSize   = 1_000_000
	MaxRetryAttempts    = 1000
	MaxStepTimeout      = api.Day
	MaxRetryDelay       = api.Day
	MaxLoopIterations   = 10_000_000
	MaxLoopTimeout      = api.Day
	MaxHistoryEntries   = 1_000_000
	MaxArchiveMemoryPct = 100.0
	MinArchiveInterval  = time.Second
	MinHistoryRetain    = 2
)

var (
	ErrInvalidAPIPort       = errors.New("invalid API port")
	ErrInvalidStepTimeout   = errors.New("step timeout must be positive")
	ErrInvalidRetryAttempts = errors.New("retry attempts cannot be negative")
	ErrInvalidRetryDelay    = errors.New("retry delay must be positive")
	ErrInvalidRetryMaxDelay = errors.New(
		"retry max delay must be at least the base delay",
	)
	ErrInvalidBackoffType    = errors.New("invalid retry backoff type")
	ErrInvalidLoopIterations = errors.New(
		"loop max iterations must be positive",
	)
	ErrInvalidLoopTimeout   = errors.New("loop timeout must be positive")
	ErrInvalidHistoryRetain = errors.New(
		"history retain must be at least 2 and no more than max entries",
	)
	ErrInvalidArchiveInterval = errors.New(
		"archive check interval must be at least one second",
	)
	ErrInvalidArchiveMemory = errors.New(
		"archive memory percent out of range",
	)
)

// NewDefaultConfig creates a configuration with sensible defaults for the
// API server, stores, loop bounds, and retry behavior
func NewDefaultConfig() *Config {
	return &Config{
		APIPort: DefaultAPIPort,
		APIHost: DefaultAPIHost,
		EngineStore: timebox.StoreConfig{
			Addr:         DefaultRedisEndpoint,
			Password:     "",
			DB:           DefaultRedisDB,
			Prefix:       DefaultRedisPrefix,
			WorkerCount:  DefaultSnapshotWorkers,
			MaxQueueSize: DefaultSnapshotQueueSize,
			SaveTimeout:  DefaultSnapshotSaveTimeout,
			TrimEvents:   true,
		},
		StateStore: timebox.StoreConfig{
			Addr:         DefaultRedisEndpoint,
			Password:     "",
			DB:           DefaultRedisDB,
			Prefix:       DefaultRedisPrefix,
			WorkerCount:  DefaultSnapshotWorkers,
			MaxQueueSize: DefaultSnapshotQueueSize,
			SaveTimeout:  DefaultSnapshotSaveTimeout,
		},
		Archive: ArchiveConfig{
			Prefix:        DefaultArchivePrefix,
			CheckInterval: DefaultArchiveCheckInterval,
			MaxAge:        DefaultArchiveMaxAge,
			MemoryPercent: DefaultArchiveMemoryPct,
		},
		Loop: LoopConfig{
			MaxIterations: DefaultLoopMaxIterations,
			TimeoutMs:     DefaultLoopTimeout,
		},
		Retry: api.RetryPolicy{
			MaxAttempts: DefaultRetryMaxAttempts,
			DelayMs:     DefaultRetryDelay,
			MaxDelayMs:  DefaultRetryMaxDelay,
			BackoffType: DefaultRetryBackoffType,
		},
		History: HistoryConfig{
			MaxEntries:   DefaultHistoryMaxEntries,
			Retain:       DefaultHistoryRetain,
			CompactDelay: DefaultHistoryCompactDelay,
		},
		StepTimeout:     DefaultStepTimeout,
		StateCacheSize:  DefaultStateCacheSize,
		ShutdownTimeout: DefaultShutdownTimeout,
		LogLevel:        "info",
	}
}

// LoadFromEnv populates configuration values from environment variables.
// Returns an error if any env var cannot be parsed
func (c *Config) LoadFromEnv() error {
	LoadStoreConfigFromEnv(&c.EngineStore, "ENGINE")
	LoadStoreConfigFromEnv(&c.StateStore, "STATE")

	if apiHost := os.Getenv("API_HOST"); apiHost != "" {
		c.APIHost = apiHost
	}
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.LogLevel = logLevel
	}
	if backoff := os.Getenv("RETRY_BACKOFF_TYPE"); backoff != "" {
		c.Retry.BackoffType = api.BackoffType(backoff)
	}
	if bucketURL := os.Getenv("ARCHIVE_BUCKET_URL"); bucketURL != "" {
		c.Archive.BucketURL = bucketURL
	}
	if prefix := os.Getenv("ARCHIVE_PREFIX"); prefix != "" {
		c.Archive.Prefix = prefix
	}

	if err := loadEnvInt("API_PORT", &c.APIPort, 0, MaxTCPPort); err != nil {
		return err
	}
	if err := loadEnvInt(
		"STEP_TIMEOUT", &c.StepTimeout, 0, MaxStepTimeout,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		"STATE_CACHE_SIZE", &c.StateCacheSize, 0, MaxStateCacheSize,
	); err != nil {
		return err
	}

	if err := loadEnvInt(
		"RETRY_MAX_ATTEMPTS", &c.Retry.MaxAttempts, -1, MaxRetryAttempts,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		"RETRY_DELAY", &c.Retry.DelayMs, 0, MaxRetryDelay,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		"RETRY_MAX_DELAY", &c.Retry.MaxDelayMs, 0, MaxRetryDelay,
	); err != nil {
		return err
	}

	if err := loadEnvInt(
		"LOOP_MAX_ITERATIONS", &c.Loop.MaxIterations, 0, MaxLoopIterations,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		"LOOP_TIMEOUT", &c.Loop.TimeoutMs, 0, MaxLoopTimeout,
	); err != nil {
		return err
	}

	if err := loadEnvInt(
		"HISTORY_MAX_ENTRIES", &c.History.MaxEntries, 0, MaxHistoryEntries,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		"HISTORY_RETAIN", &c.History.Retain, 0, MaxHistoryEntries,
	); err != nil {
		return err
	}

	if err := loadEnvDuration(
		"ARCHIVE_CHECK_INTERVAL", &c.Archive.CheckInterval,
	); err != nil {
		return err
	}
	return loadEnvDuration("ARCHIVE_MAX_AGE", &c.Archive.MaxAge)
}

// WithRetryDefaults returns a copy of the config with zero-valued retry
// fields filled in from defaults
func (c *Config) WithRetryDefaults() *Config {
	res := *c
	if res.Retry.MaxAttempts == 0 {
		res.Retry.MaxAttempts = DefaultRetryMaxAttempts
	}
	if res.Retry.DelayMs <= 0 {
		res.Retry.DelayMs = DefaultRetryDelay
	}
	if res.Retry.MaxDelayMs <= 0 {
		res.Retry.MaxDelayMs = DefaultRetryMaxDelay
	}
	if res.Retry.BackoffType == "" {
		res.Retry.BackoffType = DefaultRetryBackoffType
	}
	return &res
}

// ArchiveEnabled returns true when a blob bucket has been configured
func (c *Config) ArchiveEnabled() bool {
	return c.Archive.BucketURL != ""
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.APIPort <= 0 || c.APIPort > MaxTCPPort {
		return fmt.Errorf("%w: %d", ErrInvalidAPIPort, c.APIPort)
	}
	if c.StepTimeout <= 0 {
		return ErrInvalidStepTimeout
	}

	if c.Retry.MaxAttempts < 0 {
		return ErrInvalidRetryAttempts
	}
	if c.Retry.DelayMs <= 0 {
		return ErrInvalidRetryDelay
	}
	if c.Retry.MaxDelayMs < c.Retry.DelayMs {
		return ErrInvalidRetryMaxDelay
	}
	switch c.Retry.BackoffType {
	case api.BackoffTypeFixed, api.BackoffTypeLinear,
		api.BackoffTypeExponential:
	default:
		return fmt.Errorf("%w: %s", ErrInvalidBackoffType,
			c.Retry.BackoffType)
	}

	if c.Loop.MaxIterations <= 0 {
		return ErrInvalidLoopIterations
	}
	if c.Loop.TimeoutMs <= 0 {
		return ErrInvalidLoopTimeout
	}

	if c.History.Retain < MinHistoryRetain ||
		c.History.Retain > c.History.MaxEntries {
		return ErrInvalidHistoryRetain
	}

	if c.ArchiveEnabled() {
		if c.Archive.CheckInterval < MinArchiveInterval {
			return ErrInvalidArchiveInterval
		}
		if c.Archive.MemoryPercent <= 0 ||
			c.Archive.MemoryPercent > MaxArchiveMemoryPct {
			return fmt.Errorf("%w: %.1f", ErrInvalidArchiveMemory,
				c.Archive.MemoryPercent)
		}
	}
	return nil
}

// LoadStoreConfigFromEnv loads Redis store configuration from environment
// variables with the given prefix (e.g., "ENGINE" or "STATE")
func LoadStoreConfigFromEnv(s *timebox.StoreConfig, prefix string) {
	if addr := os.Getenv(prefix + "_REDIS_ADDR"); addr != "" {
		s.Addr = addr
	}
	if password := os.Getenv(prefix + "_REDIS_PASSWORD"); password != "" {
		s.Password = password
	}
	if dbStr := os.Getenv(prefix + "_REDIS_DB"); dbStr != "" {
		if db, err := strconv.Atoi(dbStr); err == nil {
			s.DB = db
		}
	}
	if envPrefix := os.Getenv(prefix + "_REDIS_PREFIX"); envPrefix != "" {
		s.Prefix = envPrefix
	}
	if envCount := os.Getenv(prefix + "_SNAPSHOT_WORKERS"); envCount != "" {
		if wc, err := strconv.Atoi(envCount); err == nil && wc >= 0 {
			s.WorkerCount = wc
		}
	}
}

func loadEnvInt[T ~int | ~int64](key string, dst *T, min, max T) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, s)
	}
	tv := T(v)
	if tv <= min || tv > max {
		return fmt.Errorf("invalid %s: %d out of range (%d, %d]",
			key, tv, min, max)
	}
	*dst = tv
	return nil
}

func loadEnvDuration(key string, dst *time.Duration) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, s)
	}
	*dst = d
	return nil
}
