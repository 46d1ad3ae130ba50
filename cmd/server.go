package main

import (
	api "flushbot/internal/api/http"
	"flushbot/internal/usecasees"

	"github.com/gofiber/fiber/v2"
)

// initHTTPServer serves the health check, the engine list and /metrics in
// the background.
func (a *App) initHTTPServer(engines usecasees.StatusSource) {
	a.Fiber = fiber.New(fiber.Config{
		AppName:               appName,
		DisableStartupMessage: true,
	})

	api.NewMiddleware(a.Fiber, appName).UseMetrics()
	api.RegisterHTTPEndpoints(a.Fiber, engines, a.LogRus)

	go func() {
		if err := a.Fiber.Listen(a.Config.HTTPAddr); err != nil {
			a.LogRus.WithError(err).Error("http server stopped")
		}
	}()
}
