package event_test

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kode4food/timebox"
	"github.com/stretchr/testify/assert"

	"github.com/kode4food/paisley/internal/engine/event"
	"github.com/kode4food/paisley/pkg/api"
	"github.com/kode4food/paisley/pkg/events"
)

const eventTimeout = 3 * time.Second

func makeEvent(t *testing.T, value int) *timebox.Event {
	t.Helper()
	data, err := json.Marshal(value)
	assert.NoError(t, err)
	return &timebox.Event{
		Timestamp:   time.Now(),
		AggregateID: events.StateKey("state-1"),
		Type:        timebox.EventType(api.EventStateActivated),
		Data:        data,
	}
}

func TestQueueOrdered(t *testing.T) {
	var mu sync.Mutex
	var order []int
	done := make(chan struct{})

	q := event.NewQueue(
		func(batch []*timebox.Event) error {
			for _, ev := range batch {
				if ev.Type == "" {
					return errors.New("missing event type")
				}
				var value int
				if err := json.Unmarshal(ev.Data, &value); err != nil {
					return err
				}
				mu.Lock()
				order = append(order, value)
				if value == 3 {
					close(done)
				}
				mu.Unlock()
			}
			return nil
		},
		128,
	)
	q.Start()
	t.Cleanup(q.Flush)

	q.Enqueue(makeEvent(t, 1))
	q.Enqueue(makeEvent(t, 2))
	q.Enqueue(makeEvent(t, 3))

	select {
	case <-done:
	case <-time.After(eventTimeout):
		assert.Fail(t, "timed out waiting for events")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestQueueHandlerError(t *testing.T) {
	done := make(chan struct{})
	var mu sync.Mutex
	calls := 0

	q := event.NewQueue(
		func(batch []*timebox.Event) error {
			mu.Lock()
			calls++
			n := calls
			mu.Unlock()
			if n == 1 {
				return errors.New("handler error")
			}
			close(done)
			return nil
		},
		128,
	)
	q.Start()
	t.Cleanup(q.Flush)

	q.Enqueue(makeEvent(t, 1))

	select {
	case <-done:
	case <-time.After(eventTimeout):
		assert.Fail(t, "timed out waiting for events")
	}
}

func TestQueueHandlerPanic(t *testing.T) {
	done := make(chan struct{})
	var mu sync.Mutex
	calls := 0

	q := event.NewQueue(
		func(batch []*timebox.Event) error {
			mu.Lock()
			calls++
			n := calls
			mu.Unlock()
			if n == 1 {
				panic("test panic")
			}
			close(done)
			return nil
		},
		128,
	)
	q.Start()
	t.Cleanup(q.Flush)

	q.Enqueue(makeEvent(t, 1))

	select {
	case <-done:
	case <-time.After(eventTimeout):
		assert.Fail(t, "timed out waiting for events")
	}
}

func TestQueueCancel(t *testing.T) {
	handled := make(chan struct{}, 1)

	q := event.NewQueue(
		func(batch []*timebox.Event) error {
			handled <- struct{}{}
			return nil
		},
		128,
	)
	q.Start()

	q.Cancel()
	q.Cancel()

	select {
	case <-handled:
		t.Fatal("unexpected event handled after cancel")
	default:
	}
}
