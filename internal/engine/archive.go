package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kode4food/paisley/internal/config"
	"github.com/kode4food/paisley/pkg/api"
	"github.com/kode4food/paisley/pkg/events"
	"github.com/kode4food/paisley/pkg/log"
)

type (
	// ArchiveWorker watches memory pressure and record age, exporting cold
	// state records out of hot storage. Deactivated states become
	// candidates; the export itself is drained from the store's archive
	// queue by the blob runner
	ArchiveWorker struct {
		engine      *Engine
		redisClient *redis.Client
		config      *config.Config
		ctx         context.Context
		cancel      context.CancelFunc
		wg          sync.WaitGroup
		mu          sync.Mutex
	}

	reserveOptions struct {
		limit        int
		maxAge       time.Duration
		leaseTimeout time.Duration
	}
)

const (
	archiveBatchSize    = 16
	archivePressureSize = 64
	archiveLeaseTimeout = 15 * time.Minute
)

var ErrStateNotTerminal = errors.New(
	"state has not reached a terminal status",
)

// NewArchiveWorker creates a worker that monitors the state store's Redis
// for memory pressure and queues deactivated states for export
func NewArchiveWorker(e *Engine, cfg *config.Config) *ArchiveWorker {
	ctx, cancel := context.WithCancel(context.Background())

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.StateStore.Addr,
		Password: cfg.StateStore.Password,
		DB:       cfg.StateStore.DB,
	})

	return &ArchiveWorker{
		engine:      e,
		redisClient: client,
		config:      cfg,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start begins the archive monitoring loop
func (w *ArchiveWorker) Start() {
	w.wg.Add(1)
	go w.run()
}

// Stop gracefully shuts down the archive worker
func (w *ArchiveWorker) Stop() {
	w.cancel()
	w.wg.Wait()
	_ = w.redisClient.Close()
}

func (w *ArchiveWorker) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.Archive.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.checkAndArchive()
		}
	}
}

// checkAndArchive runs one selection cycle. Under memory pressure age no
// longer matters; otherwise only records older than MaxAge are taken
func (w *ArchiveWorker) checkAndArchive() {
	w.mu.Lock()
	defer w.mu.Unlock()

	opts := reserveOptions{
		limit:        archiveBatchSize,
		maxAge:       w.config.Archive.MaxAge,
		leaseTimeout: archiveLeaseTimeout,
	}
	if ratio := w.checkMemoryPressure(); ratio > 0 {
		opts.limit = archivePressureSize
		opts.maxAge = 0
	}

	ids, err := w.reserveStates(opts)
	if err != nil {
		slog.Warn("Failed to reserve states for archiving", log.Error(err))
		return
	}
	w.exportStates(ids)
}

func (w *ArchiveWorker) checkMemoryPressure() float64 {
	info, err := w.redisClient.Info(w.ctx, "memory").Result()
	if err != nil {
		slog.Warn("Failed to read Redis memory info", log.Error(err))
		return 0
	}

	usedMemory, maxMemory := parseMemoryInfo(info)
	if maxMemory == 0 {
		return 0
	}

	usedPercent := (float64(usedMemory) / float64(maxMemory)) * 100
	if usedPercent < w.config.Archive.MemoryPercent {
		return 0
	}
	return usedPercent / 100
}

// reserveStates selects candidates and marks them in-flight in the same
// command, so concurrent workers cannot take the same record
func (w *ArchiveWorker) reserveStates(
	opts reserveOptions,
) ([]api.StateID, error) {
	now := time.Now()
	var ids []api.StateID

	_, err := w.engine.execEngine(w.ctx,
		func(st *api.EngineState, ag *EngineAggregator) error {
			ids = selectArchiveStates(st, now, opts)
			for _, id := range ids {
				if err := events.Raise(ag, api.EventStateArchiving,
					api.StateArchivingEvent{StateID: id},
				); err != nil {
					return err
				}
			}
			return nil
		},
	)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (w *ArchiveWorker) exportStates(ids []api.StateID) {
	if len(ids) == 0 {
		return
	}

	bg := context.Background()
	store := w.engine.stateExec.GetStore()
	for _, id := range ids {
		if err := store.Archive(bg, events.StateKey(id)); err != nil {
			slog.Warn("Failed to queue state for export",
				log.StateID(id),
				log.Error(err))
			continue
		}
		slog.Info("State queued for export", log.StateID(id))
	}
}

func selectArchiveStates(
	st *api.EngineState, now time.Time, opts reserveOptions,
) []api.StateID {
	if st == nil || opts.limit <= 0 {
		return nil
	}
	selected := make([]api.StateID, 0, opts.limit)

	// retake leases an earlier run never finished
	for id, since := range st.Archiving {
		if now.Sub(since) <= opts.leaseTimeout {
			continue
		}
		selected = append(selected, id)
		if len(selected) >= opts.limit {
			return selected
		}
	}

	for _, d := range st.Deactivated {
		if d == nil {
			continue
		}
		if opts.maxAge > 0 && now.Sub(d.DeactivatedAt) <= opts.maxAge {
			continue
		}
		selected = append(selected, d.StateID)
		if len(selected) >= opts.limit {
			return selected
		}
	}
	return selected
}

func parseMemoryInfo(info string) (used, max int64) {
	lines := strings.SplitSeq(info, "\n")
	for line := range lines {
		line = strings.TrimSpace(line)
		if after, ok := strings.CutPrefix(line, "used_memory:"); ok {
			used, _ = strconv.ParseInt(after, 10, 64)
		} else if after, ok := strings.CutPrefix(line, "maxmemory:"); ok {
			max, _ = strconv.ParseInt(after, 10, 64)
		}
	}
	return
}

// ArchiveState immediately queues a state's record for export. The state
// must have reached a terminal status first
func (e *Engine) ArchiveState(ctx context.Context, id api.StateID) error {
	st, err := e.GetState(ctx, id)
	if err != nil {
		return err
	}
	if !st.Machine.IsTerminal(st.Status) {
		return fmt.Errorf("%w: %s", ErrStateNotTerminal, id)
	}

	if _, err := e.execEngine(ctx,
		func(_ *api.EngineState, ag *EngineAggregator) error {
			return events.Raise(ag, api.EventStateArchiving,
				api.StateArchivingEvent{StateID: id})
		},
	); err != nil {
		return err
	}
	return e.stateExec.GetStore().Archive(ctx, events.StateKey(id))
}

// MarkStateArchived records the blob location of an exported state and
// clears the record from the engine's bookkeeping. The blob runner calls
// this after it lands each export
func (e *Engine) MarkStateArchived(
	ctx context.Context, id api.StateID, ref string,
) error {
	err := e.raiseEngineEvent(ctx, api.EventStateArchived,
		api.StateArchivedEvent{StateID: id, Ref: ref})
	if err != nil {
		return err
	}
	slog.Info("State archived",
		log.StateID(id),
		slog.String("ref", ref))
	return nil
}
