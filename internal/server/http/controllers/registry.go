package controllers

import (
	"net/http"

	bussvc "github.com/rzbill/eventbus/internal/services/bus"
)

// ControllerRegistry manages all HTTP controllers.
type ControllerRegistry struct {
	general   *GeneralController
	channels  *ChannelsController
	consumers *ConsumersController
}

// NewControllerRegistry creates a new controller registry around the bus service.
func NewControllerRegistry(svc *bussvc.Service) *ControllerRegistry {
	return &ControllerRegistry{
		general:   NewGeneralController(svc),
		channels:  NewChannelsController(svc),
		consumers: NewConsumersController(svc),
	}
}

// RegisterAllRoutes registers all controller routes with the given mux.
func (r *ControllerRegistry) RegisterAllRoutes(mux *http.ServeMux) {
	r.general.RegisterRoutes(mux)
	r.channels.RegisterRoutes(mux)
	r.consumers.RegisterRoutes(mux)
}
