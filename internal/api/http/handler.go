package http

import (
	"flushbot/internal/usecasees"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	engines usecasees.StatusSource
	logger  *logrus.Logger
}

func NewHandler(engines usecasees.StatusSource, l *logrus.Logger) *Handler {
	return &Handler{
		engines: engines,
		logger:  l,
	}
}

func (h *Handler) HealthCheck(c *fiber.Ctx) error {
	body := struct {
		Status bool `json:"status"`
	}{
		Status: true,
	}

	if err := c.JSON(body); err != nil {
		return err
	}

	return nil
}

// Engines lists the engine statuses. ?stopped=true keeps the stopped ones.
func (h *Handler) Engines(c *fiber.Ctx) error {
	statuses := h.engines.Statuses()

	if c.Query("stopped") == "true" {
		stopped := statuses[:0]
		for _, s := range statuses {
			if s.Stopped {
				stopped = append(stopped, s)
			}
		}
		statuses = stopped
	}

	if err := c.JSON(statuses); err != nil {
		h.logger.WithField("method", "Engines").WithError(err).Error("encode statuses")
		return err
	}

	return nil
}
