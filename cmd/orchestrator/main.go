package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/weftlabs/weft/cmd/orchestrator/container"
	"github.com/weftlabs/weft/cmd/orchestrator/routes"
	"github.com/weftlabs/weft/common/bootstrap"
	"github.com/weftlabs/weft/common/metrics"
	"github.com/weftlabs/weft/common/middleware"
	"github.com/weftlabs/weft/common/ratelimit"
	"github.com/weftlabs/weft/common/server"
)

func main() {
	ctx := context.Background()

	// Bootstrap common components (config, logger, DB, bus, cache, telemetry)
	components, err := bootstrap.Setup(ctx, "weft")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to bootstrap weft: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	info := metrics.GetSystemInfo()
	components.Logger.Info("host environment",
		"os", info.OSVersion,
		"arch", info.Arch,
		"cpu_cores", info.CPUCores,
		"memory_mb", info.TotalMemoryMB,
		"go", info.GoVersion,
		"container", info.InContainer)

	// Initialize service container (all services created once)
	c, err := container.NewContainer(ctx, components)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize service container: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()

	e := setupEcho()
	setupMiddleware(e, c)
	setupHealthCheck(e, c)
	registerRoutes(e, c)

	// Serve until shutdown signal, then drain in-flight requests
	srv := server.New("weft", components.Config.Service.Port, e, components.Logger)
	if err := srv.Start(); err != nil {
		components.Logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// setupEcho initializes the Echo server with basic configuration
func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	return e
}

// setupMiddleware configures all middleware for the Echo server
func setupMiddleware(e *echo.Echo, c *container.Container) {
	e.Use(echomw.Recover())
	e.Use(echomw.CORS())
	e.Use(echomw.RequestID())

	// Global request ceiling in front of the per-tier run throttle
	if c.Limiter != nil {
		e.Use(middleware.GlobalRateLimit(c.Limiter, ratelimit.DefaultGlobalConfig.Limit))
	}
}

// setupHealthCheck registers the health check endpoint
func setupHealthCheck(e *echo.Echo, c *container.Container) {
	e.GET("/health", func(ec echo.Context) error {
		if err := c.Components.Health(ec.Request().Context()); err != nil {
			return ec.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
		}
		return ec.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "weft",
		})
	})
}

// registerRoutes registers all application routes using the service container
func registerRoutes(e *echo.Echo, c *container.Container) {
	routes.RegisterWorkflowRoutes(e, c)
	routes.RegisterRunRoutes(e, c)
}
