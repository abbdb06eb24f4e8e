package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/weftlabs/weft/common/cache"
	"github.com/weftlabs/weft/common/config"
	"github.com/weftlabs/weft/common/db"
	"github.com/weftlabs/weft/common/logger"
	"github.com/weftlabs/weft/common/queue"
	"github.com/weftlabs/weft/common/telemetry"
)

// Components holds the shared infrastructure one weft binary runs on.
// Setup fills in whatever the service asked for; everything else stays
// nil and callers branch on that.
type Components struct {
	Config    *config.Config
	Logger    *logger.Logger
	DB        *db.DB
	Queue     queue.Queue
	Cache     cache.Cache
	Telemetry *telemetry.Telemetry

	probes   []probe
	cleanups []func() error
}

type probe struct {
	name  string
	check func(context.Context) error
}

// AddProbe registers a named health check. Setup registers one for
// each dependency it opens; services add their own for connections
// they manage themselves.
func (c *Components) AddProbe(name string, check func(context.Context) error) {
	c.probes = append(c.probes, probe{name: name, check: check})
}

// Health runs the registered probes in order. The first failure names
// the dependency that is down.
func (c *Components) Health(ctx context.Context) error {
	for _, p := range c.probes {
		if err := p.check(ctx); err != nil {
			return fmt.Errorf("%s unhealthy: %w", p.name, err)
		}
	}
	return nil
}

// Shutdown releases everything Setup acquired, most recent first, and
// keeps going past failures so one stuck dependency cannot hold the
// rest open.
func (c *Components) Shutdown(ctx context.Context) error {
	c.Logger.Info("shutting down components")

	var errs []error
	for i := len(c.cleanups) - 1; i >= 0; i-- {
		if err := c.cleanups[i](); err != nil {
			c.Logger.Error("cleanup failed", "error", err)
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	c.Logger.Info("shutdown complete")
	return nil
}

func (c *Components) onShutdown(fn func() error) {
	c.cleanups = append(c.cleanups, fn)
}
