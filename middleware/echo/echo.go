// Package echo mounts the bridge endpoints on an Echo instance
package echo

import (
	"github.com/labstack/echo/v4"

	"github.com/mihaimyh/rolebridge/pkg/api"
)

// Router is satisfied by *echo.Echo and *echo.Group.
type Router interface {
	Add(method, path string, handler echo.HandlerFunc, middleware ...echo.MiddlewareFunc) *echo.Route
}

// Register adds the handler's routes to r with optional route middleware.
func Register(r Router, h *api.Handler, middleware ...echo.MiddlewareFunc) {
	for _, route := range h.Routes() {
		r.Add(route.Method, route.Path, echo.WrapHandler(route.Handler), middleware...)
	}
}
