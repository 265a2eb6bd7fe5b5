package scheduler

import (
	"container/heap"
	"strings"
	"time"

	"github.com/kode4food/paisley/pkg/util"
)

type (
	// Task describes a scheduled function and its execution metadata
	Task struct {
		Func  TaskFunc
		At    time.Time
		Path  taskPath
		id    string
		index int
	}

	// TaskHeap stores scheduled tasks ordered by execution time. Tasks
	// carrying a path are also indexed for replacement and cancellation
	TaskHeap struct {
		tasks  []*Task
		byID   map[string]*Task
		byPath *util.PathTree[*Task]
	}

	taskPath []string
)

// keys cannot contain NUL, so it is a safe path separator
const pathSep = "\x00"

// NewTaskHeap creates an empty task heap with keyed lookup indexes
func NewTaskHeap() *TaskHeap {
	h := &TaskHeap{
		byID:   map[string]*Task{},
		byPath: util.NewPathTree[*Task](),
	}
	heap.Init(h)
	return h
}

// Insert adds a task to the heap. A keyed task whose path is already
// scheduled replaces the pending one instead of queueing alongside it
func (h *TaskHeap) Insert(t *Task) {
	if t == nil || t.Func == nil || t.At.IsZero() {
		return
	}
	if len(t.Path) > 0 {
		t.id = t.Path.key()
		if pending, ok := h.byID[t.id]; ok && pending != nil {
			pending.Func = t.Func
			pending.At = t.At
			heap.Fix(h, pending.index)
			return
		}
	}
	heap.Push(h, t)
}

// PopTask removes and returns the next scheduled task
func (h *TaskHeap) PopTask() *Task {
	if h.Len() == 0 {
		return nil
	}
	return heap.Pop(h).(*Task)
}

// Peek returns the next scheduled task without removing it
func (h *TaskHeap) Peek() *Task {
	if len(h.tasks) == 0 {
		return nil
	}
	return h.tasks[0]
}

// Cancel removes the keyed task for the exact path
func (h *TaskHeap) Cancel(path []string) {
	if len(path) == 0 {
		return
	}
	if t, ok := h.byID[taskPath(path).key()]; ok && t != nil {
		heap.Remove(h, t.index)
	}
}

// CancelPrefix removes all keyed tasks under the provided prefix
func (h *TaskHeap) CancelPrefix(prefix []string) {
	if len(prefix) == 0 {
		return
	}
	h.byPath.DetachWith(prefix, func(t *Task) {
		delete(h.byID, t.id)
		heap.Remove(h, t.index)
	})
}

// Len returns the number of scheduled tasks in the heap
func (h *TaskHeap) Len() int {
	return len(h.tasks)
}

// Less reports whether the task at i should sort before the task at j
func (h *TaskHeap) Less(i, j int) bool {
	return h.tasks[i].At.Before(h.tasks[j].At)
}

// Swap exchanges the heap items at the provided indexes
func (h *TaskHeap) Swap(i, j int) {
	h.tasks[i], h.tasks[j] = h.tasks[j], h.tasks[i]
	h.tasks[i].index = i
	h.tasks[j].index = j
}

// Push adds a task to the underlying heap implementation
func (h *TaskHeap) Push(x any) {
	t := x.(*Task)
	t.index = len(h.tasks)
	h.tasks = append(h.tasks, t)
	if len(t.Path) > 0 {
		if t.id == "" {
			t.id = t.Path.key()
		}
		h.byID[t.id] = t
		h.byPath.Insert(t.Path, t)
	}
}

// Pop removes a task from the underlying heap implementation
func (h *TaskHeap) Pop() any {
	n := len(h.tasks)
	if n == 0 {
		return nil
	}
	t := h.tasks[n-1]
	h.tasks[n-1] = nil
	h.tasks = h.tasks[:n-1]
	t.index = -1
	if len(t.Path) > 0 {
		delete(h.byID, t.id)
		h.byPath.Remove(t.Path)
	}
	return t
}

func (p taskPath) key() string {
	return strings.Join(p, pathSep)
}
