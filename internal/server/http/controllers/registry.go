package controllers

import (
	"net/http"

	"github.com/oxbow-io/oxbow/internal/runtime"
	bufsvc "github.com/oxbow-io/oxbow/internal/services/buffers"
)

// ControllerRegistry manages all HTTP controllers.
//
// It provides a centralized way to register all controller routes.
type ControllerRegistry struct {
	general  *GeneralController
	streams  *StreamsController
	messages *MessagesController
}

// NewControllerRegistry creates a new controller registry.
func NewControllerRegistry(rt *runtime.Runtime, svc *bufsvc.Service) *ControllerRegistry {
	return &ControllerRegistry{
		general:  NewGeneralController(rt, svc),
		streams:  NewStreamsController(rt, svc),
		messages: NewMessagesController(rt, svc),
	}
}

// RegisterAllRoutes registers all controller routes with the given mux.
func (r *ControllerRegistry) RegisterAllRoutes(mux *http.ServeMux) {
	r.general.RegisterRoutes(mux)
	r.streams.RegisterRoutes(mux)
	r.messages.RegisterRoutes(mux)
}
