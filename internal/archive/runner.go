package archive

import (
	"context"
	"errors"
	"time"

	"github.com/kode4food/timebox"

	"github.com/kode4food/paisley/pkg/api"
	"github.com/kode4food/paisley/pkg/events"
)

type (
	// Runner drains the state store's archive queue into the blob bucket
	Runner struct {
		poller       ArchivePoller
		store        *Store
		onArchived   ArchivedFunc
		pollInterval time.Duration
	}

	// ArchivePoller hands pending archive records to a handler. The state
	// store satisfies it
	ArchivePoller interface {
		PollArchive(
			context.Context, time.Duration, timebox.ArchiveHandler,
		) error
	}

	// ArchivedFunc is told where each exported state record landed
	ArchivedFunc func(context.Context, api.StateID, string) error
)

var (
	ErrPollerRequired      = errors.New("archive poller is required")
	ErrStoreRequired       = errors.New("archive store is required")
	ErrPollIntervalInvalid = errors.New("poll interval must be positive")
)

// NewRunner creates a runner that writes polled archive records through
// the store. onArchived may be nil
func NewRunner(
	poller ArchivePoller, store *Store, pollInterval time.Duration,
	onArchived ArchivedFunc,
) (*Runner, error) {
	if poller == nil {
		return nil, ErrPollerRequired
	}
	if store == nil {
		return nil, ErrStoreRequired
	}
	if pollInterval <= 0 {
		return nil, ErrPollIntervalInvalid
	}
	return &Runner{
		poller:       poller,
		store:        store,
		onArchived:   onArchived,
		pollInterval: pollInterval,
	}, nil
}

// Run drains archive records until the context is cancelled
func (r *Runner) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		if err := r.RunOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
	return nil
}

// RunOnce performs a single blocking poll for the next record
func (r *Runner) RunOnce(ctx context.Context) error {
	return r.poller.PollArchive(ctx, r.pollInterval, r.handle)
}

func (r *Runner) handle(
	ctx context.Context, record *timebox.ArchiveRecord,
) error {
	ref, err := r.store.Write(ctx, record)
	if err != nil {
		return err
	}
	if r.onArchived == nil {
		return nil
	}
	id, ok := stateIDOf(record)
	if !ok {
		return nil
	}
	return r.onArchived(ctx, id, ref)
}

func stateIDOf(record *timebox.ArchiveRecord) (api.StateID, bool) {
	id := record.AggregateID
	if len(id) < 2 || id[0] != events.StatePrefix {
		return "", false
	}
	return api.StateID(id[1]), true
}
