package controllers

import (
	"net/http"

	"github.com/mailroom-sh/mailroom/internal/delivery"
	"github.com/mailroom-sh/mailroom/internal/runtime"
)

// TasksController exposes delivery queue state for operators.
type TasksController struct {
	rt *runtime.Runtime
}

// NewTasksController creates a new tasks controller.
func NewTasksController(rt *runtime.Runtime) *TasksController {
	return &TasksController{rt: rt}
}

// RegisterRoutes registers task routes with the given mux.
func (c *TasksController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/tasks/failed", c.handleFailed)
	mux.HandleFunc("/v1/tasks/completed", c.handleCompleted)
	mux.HandleFunc("/v1/tasks/stats", c.handleStats)
}

// handleFailed lists terminally failed tasks. An optional CEL expression in
// the filter query parameter narrows the result, e.g.
// attempts >= 3 && last_error.contains("550").
func (c *TasksController) handleFailed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	filter, err := newTaskFilter(r.URL.Query().Get("filter"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid filter: "+err.Error())
		return
	}
	limit := parseLimit(r.URL.Query().Get("limit"))
	tasks, err := c.rt.Queue().ListFailed(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list tasks")
		return
	}
	out := make([]delivery.Task, 0, len(tasks))
	for _, t := range tasks {
		if filter.Eval(t) {
			out = append(out, t)
		}
	}
	writeJSON(w, map[string]any{"tasks": out})
}

// handleCompleted lists recent completed deliveries, newest first.
func (c *TasksController) handleCompleted(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	limit := parseLimit(r.URL.Query().Get("limit"))
	entries, err := c.rt.Queue().ListCompleted(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list completed deliveries")
		return
	}
	if entries == nil {
		entries = []delivery.CompletedEntry{}
	}
	writeJSON(w, map[string]any{"completed": entries})
}

// handleStats reports queue population by state.
func (c *TasksController) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	stats, err := c.rt.Queue().Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute stats")
		return
	}
	writeJSON(w, stats)
}
