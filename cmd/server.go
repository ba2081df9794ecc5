package main

import (
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"

	"github.com/beejcap/lsp-auth/pkg/config"
	"github.com/beejcap/lsp-auth/pkg/iam/iamhttp"
	"github.com/beejcap/lsp-auth/pkg/logx"
)

func main() {
	// 1. Initialize Logger
	logx.SetDefaultLogger(logx.NewLogger(logx.LoadFromEnv()))

	logx.Info("🚀 Starting LSP Auth API Server...")

	// 2. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		logx.Fatalf("Configuration error: %v", err)
	}

	// 3. Initialize Dependency Container
	container := NewContainer(cfg)
	defer container.Cleanup()

	// 4. Create Fiber App with Config
	app := fiber.New(fiber.Config{
		AppName:               "LSP Auth API",
		DisableStartupMessage: true,
		ErrorHandler:          iamhttp.ErrorHandler,
		BodyLimit:             1 * 1024 * 1024,
		IdleTimeout:           120 * time.Second,
	})

	// 5. Global Middleware
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	app.Use(requestid.New(requestid.Config{
		Header: "X-Request-ID",
		Generator: func() string {
			return uuid.NewString()
		},
	}))

	app.Use(cors.New(cors.Config{
		AllowOrigins:  corsOrigins(cfg),
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, X-Request-ID",
		AllowMethods:  "GET, POST, PUT, DELETE, PATCH, HEAD, OPTIONS",
		ExposeHeaders: "X-Request-ID",
	}))

	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path} | ${ip} | ${reqHeader:X-Request-ID}\n",
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "Local",
	}))

	// 6. Health Check
	app.Get("/health", healthCheckHandler(container))

	// 7. Register Routes
	api := app.Group(cfg.Server.APIPrefix)
	container.Handler.Register(api)
	logx.Infof("✓ Identity routes registered under %s", cfg.Server.APIPrefix)

	// 8. 404 Handler
	app.Use(notFoundHandler)

	// 9. Start Server with Graceful Shutdown
	startServer(app, cfg)
}

// ============================================================================
// Handler Functions
// ============================================================================

func healthCheckHandler(container *Container) fiber.Handler {
	return func(c *fiber.Ctx) error {
		health := fiber.Map{
			"status":  "healthy",
			"service": "lsp-auth",
		}

		if container.DB != nil {
			if err := container.DB.Ping(); err != nil {
				health["store"] = "unhealthy"
				health["status"] = "degraded"
			} else {
				health["store"] = "healthy"
			}
		}

		if container.Redis != nil {
			if err := container.Redis.Ping(c.Context()).Err(); err != nil {
				health["redis"] = "unhealthy"
				health["status"] = "degraded"
			} else {
				health["redis"] = "healthy"
			}
		}

		status := fiber.StatusOK
		if health["status"] == "degraded" {
			status = fiber.StatusServiceUnavailable
		}
		return c.Status(status).JSON(health)
	}
}

func notFoundHandler(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"status":  "error",
		"message": "The requested endpoint does not exist",
		"path":    c.Path(),
		"method":  c.Method(),
	})
}

// ============================================================================
// Utility Functions
// ============================================================================

func corsOrigins(cfg *config.Config) string {
	if len(cfg.Server.CORSOrigins) == 0 {
		return "*"
	}
	origins := cfg.Server.CORSOrigins[0]
	for _, o := range cfg.Server.CORSOrigins[1:] {
		origins += ", " + o
	}
	return origins
}

// startServer starts the server with graceful shutdown
func startServer(app *fiber.App, cfg *config.Config) {
	port := strconv.Itoa(cfg.Server.Port)

	go func() {
		logx.Infof("🚀 Server listening on port %s", port)
		logx.Infof("💚 Health Check: http://localhost:%s/health", port)

		if err := app.Listen(":" + port); err != nil {
			logx.Fatalf("Server error: %v", err)
		}
	}()

	gracefulShutdown(app)
}

// gracefulShutdown handles graceful server shutdown
func gracefulShutdown(app *fiber.App) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	logx.Infof("🛑 Received signal: %v", sig)
	logx.Info("Shutting down gracefully...")

	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		logx.Errorf("Server forced to shutdown: %v", err)
	}

	logx.Info("✅ Server exited successfully")
}
