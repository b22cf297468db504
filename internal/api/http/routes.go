package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/i474232898/forecast-panels/internal/logger"
	"github.com/i474232898/forecast-panels/internal/refresh"
	"github.com/i474232898/forecast-panels/internal/store"
	"github.com/i474232898/forecast-panels/internal/weather"
)

var validate = validator.New()

// Refresher is the part of the refresh coordinator the routes depend on.
type Refresher interface {
	TriggerRefresh(ctx context.Context) (*weather.Artifact, error)
	Current() (*weather.Artifact, error)
	Status() refresh.Status
}

// NewApp builds the Fiber app with access logging, panic recovery and JSON errors.
func NewApp(log logger.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "forecast-panels",
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			}
			if code >= fiber.StatusInternalServerError {
				log.Error(c.UserContext(), "request failed",
					logger.String("path", c.Path()), logger.Err(err))
			}
			return c.Status(code).JSON(fiber.Map{"error": errorMessage(code, err)})
		},
	})
	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))
	return app
}

// RegisterRoutes wires the HTTP handlers into the Fiber app. A nil metrics
// handler leaves /metrics unregistered.
func RegisterRoutes(app *fiber.App, r Refresher, metrics http.Handler) {
	app.Get("/", func(c *fiber.Ctx) error {
		var q pageQuery
		if err := bindQuery(c, &q); err != nil {
			return err
		}

		var refreshErr error
		if q.fresh() {
			_, refreshErr = r.TriggerRefresh(c.UserContext())
		}

		a, err := r.Current()
		status := fiber.StatusOK
		if err != nil {
			status = fiber.StatusServiceUnavailable
			a = nil
		}
		return renderPage(c.Status(status), pageData{
			Artifact: a,
			Stage:    failedStage(refreshErr),
		})
	})

	app.Get("/plot.png", func(c *fiber.Ctx) error {
		a, err := r.Current()
		if err != nil {
			return notReady(c, r, err)
		}

		etag := `"` + a.ID + `"`
		c.Set(fiber.HeaderETag, etag)
		c.Set(fiber.HeaderCacheControl, "no-cache")
		if match := c.Get(fiber.HeaderIfNoneMatch); match != "" && strings.Contains(match, etag) {
			return c.SendStatus(fiber.StatusNotModified)
		}

		c.Set(fiber.HeaderLastModified, a.GeneratedAt.UTC().Format(http.TimeFormat))
		c.Type("png")
		return c.Send(a.Image)
	})

	v1 := app.Group("/api/v1")

	v1.Get("/artifact", func(c *fiber.Ctx) error {
		a, err := r.Current()
		if err != nil {
			return notReady(c, r, err)
		}
		return c.JSON(fiber.Map{
			"artifact": a,
			"status":   r.Status(),
		})
	})

	v1.Post("/refresh", func(c *fiber.Ctx) error {
		a, err := r.TriggerRefresh(c.UserContext())
		if err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "refresh failed",
				"stage": failedStage(err),
			})
		}
		return c.JSON(fiber.Map{
			"artifact": a,
			"status":   r.Status(),
		})
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		_, err := r.Current()
		return c.JSON(fiber.Map{
			"status": "ok",
			"ready":  err == nil,
			"state":  r.Status().State,
		})
	})

	if metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(metrics))
	}
}

// pageQuery holds the index page's query parameters.
type pageQuery struct {
	Fresh string `query:"fresh" validate:"omitempty,oneof=true false 1 0"`
}

func (q pageQuery) fresh() bool {
	return q.Fresh == "true" || q.Fresh == "1"
}

func bindQuery(c *fiber.Ctx, out interface{}) error {
	if err := c.QueryParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return nil
}

func notReady(c *fiber.Ctx, r Refresher, err error) error {
	if !errors.Is(err, store.ErrNotReady) {
		return err
	}
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error":  "artifact not yet available",
		"status": r.Status(),
	})
}

// failedStage reduces a refresh error to what may be shown to a client.
func failedStage(err error) string {
	if err == nil {
		return ""
	}
	var serr *refresh.StageError
	if errors.As(err, &serr) {
		return string(serr.Stage)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "interrupted"
	}
	return "unknown"
}

func errorMessage(code int, err error) string {
	if code >= fiber.StatusInternalServerError {
		return http.StatusText(code)
	}
	return err.Error()
}
