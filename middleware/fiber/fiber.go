// Package fiber mounts the bridge endpoints on a Fiber app
package fiber

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/mihaimyh/rolebridge/pkg/api"
)

// Register adds the handler's routes to r. The net/http handlers see the
// raw request body, which signature verification depends on.
func Register(r fiber.Router, h *api.Handler, middleware ...fiber.Handler) {
	for _, route := range h.Routes() {
		handlers := append(append([]fiber.Handler{}, middleware...), adaptor.HTTPHandler(route.Handler))
		r.Add(route.Method, route.Path, handlers...)
	}
}
