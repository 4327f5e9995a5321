package bootstrap

import (
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ideabox/adapter/in/http"
	"ideabox/core/port/in"
	"ideabox/infra/middleware"
	"ideabox/pkg/logger"
)

// NewAPI builds the HTTP app. rewards is the pool-backed reward service;
// intake may be nil when this process does not run intake.
func NewAPI(deps *Dependencies, rewards in.RewardService, intake in.IntakeTrigger) *fiber.App {
	cfg := deps.Config

	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),

		// go-json: 표준 encoding/json 대비 2~3배 빠른 JSON 직렬화
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,

		BodyLimit:    64 * 1024,
		ReadTimeout:  15 * time.Second,
		IdleTimeout:  2 * time.Minute,
		ServerHeader: "",
	})

	// Global middleware stack (order matters)
	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.SecurityHeaders())
	app.Use(middleware.RequestLogger())
	app.Use(middleware.Metrics())

	// SSE responses must stay uncompressed so frames flush immediately.
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
		Next: func(c *fiber.Ctx) bool {
			return strings.HasPrefix(c.Path(), "/api/events")
		},
	}))

	// No credentials; the dashboard is a static page opened from anywhere.
	app.Use(cors.New(cors.Config{
		AllowOrigins:  strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods:  "GET,POST,PUT,OPTIONS",
		AllowHeaders:  "Origin,Content-Type,Accept,X-Request-ID",
		ExposeHeaders: "X-Request-ID,X-RateLimit-Limit,X-RateLimit-Remaining,X-RateLimit-Reset",
		MaxAge:        86400,
	}))

	http.NewHealthHandler(deps.Checks).Register(app)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")

	// Reward and ingest reach external systems; limit them per client.
	limiter := middleware.NewRateLimiter(30, time.Minute)
	api.Use("/reward", limiter.Handler())
	api.Use("/ingest", limiter.Handler())

	http.NewSubmissionHandler(deps.SubmissionService, rewards, intake).Register(api)
	http.NewSSEHandler(deps.SSEHub, deps.ZLog).Register(api)

	logger.Info("API server initialized (persistence: %s, intake: %t)", cfg.PersistBackend, intake != nil)
	return app
}
