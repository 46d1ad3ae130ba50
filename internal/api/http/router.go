package http

import (
	"flushbot/internal/usecasees"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

func RegisterHTTPEndpoints(f *fiber.App, engines usecasees.StatusSource, l *logrus.Logger) {
	h := NewHandler(engines, l)
	router := f.Group("api")
	router.Get("/healthcheck", h.HealthCheck)
	router.Get("/engines", h.Engines)
}
