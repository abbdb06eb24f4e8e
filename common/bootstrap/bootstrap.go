package bootstrap

import (
	"context"
	"fmt"

	"github.com/weftlabs/weft/common/cache"
	"github.com/weftlabs/weft/common/config"
	"github.com/weftlabs/weft/common/db"
	"github.com/weftlabs/weft/common/logger"
	"github.com/weftlabs/weft/common/queue"
	"github.com/weftlabs/weft/common/telemetry"
)

// Setup builds the shared infrastructure for one weft binary: config,
// logging, and the optional database, event bus, cache and pprof
// listener. Dependencies come up in order and Shutdown tears them down
// in reverse.
func Setup(ctx context.Context, serviceName string, opts ...Option) (*Components, error) {
	s := newSettings()
	for _, opt := range opts {
		opt(s)
	}

	c := &Components{Config: s.config, Logger: s.logger}

	if c.Config == nil {
		cfg, err := config.Load(serviceName)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		c.Config = cfg
	}
	if c.Logger == nil {
		c.Logger = logger.New(c.Config.Service.LogLevel, c.Config.Service.LogFormat)
	}

	c.Logger.Info("starting service",
		"service", serviceName,
		"environment", c.Config.Service.Environment)

	if s.database {
		if err := c.openDatabase(ctx); err != nil {
			c.Shutdown(ctx)
			return nil, err
		}
	}
	if s.bus {
		c.startBus()
	}
	if s.cache && c.Config.Cache.Enabled {
		c.startCache()
	}
	if s.pprof && c.Config.Telemetry.EnablePprof {
		c.startTelemetry(ctx)
	}

	c.Logger.Info("service ready",
		"service", serviceName,
		"database", c.DB != nil,
		"bus", c.Queue != nil,
		"cache", c.Cache != nil)

	return c, nil
}

func (c *Components) openDatabase(ctx context.Context) error {
	database, err := db.New(ctx, c.Config, c.Logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	c.DB = database
	c.AddProbe("database", database.Health)
	c.onShutdown(func() error {
		database.Close()
		return nil
	})
	return nil
}

func (c *Components) startBus() {
	bus := queue.NewMemoryQueue(c.Logger)
	c.Queue = bus
	c.onShutdown(bus.Close)
}

func (c *Components) startCache() {
	store := cache.NewMemoryCache(c.Logger)
	c.Cache = store
	c.onShutdown(store.Close)
}

func (c *Components) startTelemetry(ctx context.Context) {
	c.Telemetry = telemetry.New(c.Config.Telemetry.PprofPort, c.Logger)
	if err := c.Telemetry.Start(ctx); err != nil {
		// The service runs fine without pprof
		c.Logger.Warn("pprof listener failed to start", "error", err)
	}
}
