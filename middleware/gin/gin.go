// Package gin mounts the bridge endpoints on a Gin engine
package gin

import (
	gongin "github.com/gin-gonic/gin"

	"github.com/mihaimyh/rolebridge/pkg/api"
)

// Register adds the handler's routes to r. Extra middleware runs before
// every bridge route, e.g. request logging or authentication for the
// payment link endpoint.
func Register(r gongin.IRoutes, h *api.Handler, middleware ...gongin.HandlerFunc) {
	for _, route := range h.Routes() {
		handlers := append(append([]gongin.HandlerFunc{}, middleware...), gongin.WrapH(route.Handler))
		r.Handle(route.Method, route.Path, handlers...)
	}
}
