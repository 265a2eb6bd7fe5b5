package helpers

import (
	"context"
	"sync"
	"time"

	"github.com/kode4food/paisley/pkg/api"
)

// MockExecutor is a StepExecutor implementation that records invocations
// and returns configured responses or errors per step ID
type MockExecutor struct {
	responses map[api.StepID]api.Variables
	errors    map[api.StepID]error
	failCount map[api.StepID]int
	invoked   []api.StepID
	args      map[api.StepID][]api.Variables
	metadata  map[api.StepID][]api.Metadata
	invokedCh map[api.StepID]chan struct{}
	mu        sync.Mutex
}

// NewMockExecutor creates a mock step executor that allows setting
// responses and errors for specific step IDs
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{
		responses: map[api.StepID]api.Variables{},
		errors:    map[api.StepID]error{},
		failCount: map[api.StepID]int{},
		invoked:   []api.StepID{},
		args:      map[api.StepID][]api.Variables{},
		metadata:  map[api.StepID][]api.Metadata{},
		invokedCh: map[api.StepID]chan struct{}{},
	}
}

// Invoke records the invocation and returns the configured outputs or error
func (m *MockExecutor) Invoke(
	_ context.Context, step *api.Step, args api.Variables, md api.Metadata,
) (api.Variables, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.invoked = append(m.invoked, step.ID)
	m.args[step.ID] = append(m.args[step.ID], args.Clone())
	m.metadata[step.ID] = append(m.metadata[step.ID], md)
	if ch, ok := m.invokedCh[step.ID]; ok {
		select {
		case ch <- struct{}{}:
		default:
		}
	}

	if err, ok := m.errors[step.ID]; ok {
		if remaining, bounded := m.failCount[step.ID]; bounded {
			if remaining <= 1 {
				delete(m.errors, step.ID)
				delete(m.failCount, step.ID)
			} else {
				m.failCount[step.ID] = remaining - 1
			}
		}
		return nil, err
	}
	if outputs, ok := m.responses[step.ID]; ok {
		return outputs, nil
	}
	return api.Variables{}, nil
}

// SetResponse configures the mock to return specific outputs for a step
func (m *MockExecutor) SetResponse(stepID api.StepID, outputs api.Variables) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[stepID] = outputs
}

// SetError configures the mock to return an error for a step
func (m *MockExecutor) SetError(stepID api.StepID, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[stepID] = err
}

// ClearError removes any configured error for a step
func (m *MockExecutor) ClearError(stepID api.StepID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.errors, stepID)
	delete(m.failCount, stepID)
}

// FailTimes configures the mock to fail the step the given number of times
// before succeeding
func (m *MockExecutor) FailTimes(stepID api.StepID, err error, times int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[stepID] = err
	m.failCount[stepID] = times
}

// GetInvocations returns the list of step IDs that were invoked
func (m *MockExecutor) GetInvocations() []api.StepID {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]api.StepID, len(m.invoked))
	copy(result, m.invoked)
	return result
}

// InvocationCount returns how many times a step was invoked
func (m *MockExecutor) InvocationCount(stepID api.StepID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, id := range m.invoked {
		if id == stepID {
			count++
		}
	}
	return count
}

// WasInvoked returns whether a specific step was invoked
func (m *MockExecutor) WasInvoked(stepID api.StepID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wasInvokedLocked(stepID)
}

// WaitForInvocation blocks until a step is invoked or the timeout expires
func (m *MockExecutor) WaitForInvocation(
	stepID api.StepID, timeout time.Duration,
) bool {
	m.mu.Lock()
	if m.wasInvokedLocked(stepID) {
		m.mu.Unlock()
		return true
	}
	ch, ok := m.invokedCh[stepID]
	if !ok {
		ch = make(chan struct{}, 1)
		m.invokedCh[stepID] = ch
	}
	m.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ch:
		return true
	case <-timer.C:
		return m.WasInvoked(stepID)
	}
}

// LastArgs returns the most recent arguments passed for a step invocation
func (m *MockExecutor) LastArgs(stepID api.StepID) api.Variables {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := m.args[stepID]
	if len(entries) == 0 {
		return nil
	}
	return entries[len(entries)-1]
}

// AllArgs returns the arguments of every invocation of a step in order
func (m *MockExecutor) AllArgs(stepID api.StepID) []api.Variables {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := m.args[stepID]
	result := make([]api.Variables, len(entries))
	copy(result, entries)
	return result
}

// LastMetadata returns the most recent metadata passed for a step
// invocation
func (m *MockExecutor) LastMetadata(stepID api.StepID) api.Metadata {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := m.metadata[stepID]
	if len(entries) == 0 {
		return nil
	}
	return entries[len(entries)-1]
}

func (m *MockExecutor) wasInvokedLocked(stepID api.StepID) bool {
	for _, id := range m.invoked {
		if id == stepID {
			return true
		}
	}
	return false
}
