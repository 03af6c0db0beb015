package system

import (
	"strings"
	"time"

	"github.com/getevo/evo/v2"
	"github.com/getevo/evo/v2/lib/log"
	"github.com/getevo/evo/v2/lib/settings"
	"github.com/getevo/restify"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
)

// RateLimitRequests is the per IP budget per minute
const RateLimitRequests = 300

var StartupTime = time.Now()

type App struct{}

func (a App) Register() error {
	setLogLevel(settings.Get("APP.LOG_LEVEL", "info").String())

	var app = evo.GetFiber()

	if settings.Get("APP.LOG_REQUESTS").Bool() {
		app.Use(logger.New())
	}

	if settings.Get("APP.RATE_LIMIT", true).Bool() {
		limit := settings.Get("APP.RATE_LIMIT_REQUESTS", RateLimitRequests).Int()
		app.Use(limiter.New(limiter.Config{
			Max:        limit,
			Expiration: 1 * time.Minute,
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
					"error": "Too many requests. Please try again later.",
				})
			},
		}))
		log.Info("Rate limiting enabled: %d requests per minute", limit)
	}

	restify.SetPrefix("/api/restify")
	return nil
}

func setLogLevel(level string) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "dev", "development":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn", "warning":
		log.SetLevel(log.WarningLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	case "critical", "crit":
		log.SetLevel(log.CriticalLevel)
	default:
		log.SetLevel(log.WarningLevel)
	}
}

func (a App) Router() error {
	var controller Controller
	evo.Get("/health", controller.HealthHandler)
	evo.Get("/uptime", controller.UptimeHandler)
	return nil
}

func (a App) WhenReady() error {
	return nil
}

func (a App) Name() string {
	return "system"
}
