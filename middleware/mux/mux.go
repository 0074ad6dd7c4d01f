// Package mux mounts the bridge endpoints on a gorilla/mux router
package mux

import (
	"github.com/gorilla/mux"

	"github.com/mihaimyh/rolebridge/pkg/api"
)

// Register adds the handler's routes to r and returns them so callers can
// attach names or extra matchers.
func Register(r *mux.Router, h *api.Handler) []*mux.Route {
	routes := make([]*mux.Route, 0, 4)
	for _, route := range h.Routes() {
		routes = append(routes, r.Handle(route.Path, route.Handler).Methods(route.Method))
	}
	return routes
}
