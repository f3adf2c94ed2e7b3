package controllers

import (
	"net/http"

	"github.com/mailroom-sh/mailroom/internal/publisher"
	"github.com/mailroom-sh/mailroom/internal/runtime"
)

// ControllerRegistry manages all HTTP controllers.
//
// It provides a centralized way to register all controller routes
// and manages the lifecycle of individual controllers.
type ControllerRegistry struct {
	general     *GeneralController
	issues      *IssuesController
	subscribers *SubscribersController
	tasks       *TasksController
}

// NewControllerRegistry creates a new controller registry.
func NewControllerRegistry(rt *runtime.Runtime, proc *publisher.Processor) *ControllerRegistry {
	return &ControllerRegistry{
		general:     NewGeneralController(rt),
		issues:      NewIssuesController(rt, proc),
		subscribers: NewSubscribersController(rt),
		tasks:       NewTasksController(rt),
	}
}

// RegisterAllRoutes registers all controller routes with the given mux.
func (r *ControllerRegistry) RegisterAllRoutes(mux *http.ServeMux) {
	r.general.RegisterRoutes(mux)
	r.issues.RegisterRoutes(mux)
	r.subscribers.RegisterRoutes(mux)
	r.tasks.RegisterRoutes(mux)
}
