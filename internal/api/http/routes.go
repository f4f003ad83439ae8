package httpapi

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/i474232898/weather-etl/internal/store"
)

var validate = validator.New()

// MetricsReader is the read side of the metrics table.
type MetricsReader interface {
	List(ctx context.Context, limit int) ([]store.MetricRow, error)
	Latest(ctx context.Context) (store.MetricRow, error)
	Ping(ctx context.Context) error
}

// RegisterRoutes wires the HTTP handlers into the Fiber app. gatherer may be
// nil, in which case /metrics is not exposed.
func RegisterRoutes(app *fiber.App, reader MetricsReader, gatherer prometheus.Gatherer) {
	app.Get("/health", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := reader.Ping(ctx); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "degraded",
				"error":  err.Error(),
			})
		}
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "weather-etl",
		})
	})

	if gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	v1 := app.Group("/api/v1")

	v1.Get("/metrics", func(c *fiber.Ctx) error {
		var q listQuery
		if err := c.QueryParser(&q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "limit must be an integer")
		}
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		rows, err := reader.List(c.UserContext(), q.Limit)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to read weather metrics")
		}
		return c.JSON(fiber.Map{
			"count": len(rows),
			"rows":  rows,
		})
	})

	v1.Get("/metrics/latest", func(c *fiber.Ctx) error {
		row, err := reader.Latest(c.UserContext())
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no weather metrics stored yet")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to read weather metrics")
		}
		return c.JSON(row)
	})
}

// ErrorHandler renders handler errors as a JSON body with the matching
// status code.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

// listQuery holds query parameters for the list endpoint. Zero means all rows.
type listQuery struct {
	Limit int `query:"limit" validate:"gte=0,lte=10000"`
}
