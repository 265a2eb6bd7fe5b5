package builder

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/kode4food/paisley/pkg/api"
)

type (
	// TaskHandler is the function signature for task step implementations.
	// It receives the merged step arguments and the invocation metadata,
	// and returns the variables to merge back into the loop scope
	TaskHandler func(
		context.Context, api.Variables, api.Metadata,
	) (api.Variables, error)

	// TaskMux routes task requests to named handlers under one endpoint
	TaskMux struct {
		mux *http.ServeMux
	}
)

// Handle wraps a task handler as an HTTP handler speaking the engine's
// task protocol. Handler errors come back as unsuccessful task results
// with an OK status; transport problems are the only HTTP errors
func Handle(h TaskHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed",
				http.StatusMethodNotAllowed)
			return
		}

		var req api.TaskRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		outputs, err := h(r.Context(), req.Args, req.Metadata)
		res := api.TaskResult{
			Outputs: outputs,
			Success: err == nil,
		}
		if err != nil {
			res.Error = err.Error()
			res.Outputs = nil
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(&res)
	})
}

// NewTaskMux creates an empty task handler mux
func NewTaskMux() *TaskMux {
	return &TaskMux{mux: http.NewServeMux()}
}

// Handle registers a task handler under the given path
func (m *TaskMux) Handle(path string, h TaskHandler) *TaskMux {
	m.mux.Handle(path, Handle(h))
	return m
}

// ServeHTTP dispatches to the registered handlers
func (m *TaskMux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mux.ServeHTTP(w, r)
}
