package bootstrap

import (
	"github.com/weftlabs/weft/common/config"
	"github.com/weftlabs/weft/common/logger"
)

// Option tailors Setup to one binary. The orchestrator takes the full
// stack; smaller services switch off what they never touch.
type Option func(*settings)

type settings struct {
	database bool
	bus      bool
	cache    bool
	pprof    bool
	logger   *logger.Logger
	config   *config.Config
}

func newSettings() *settings {
	return &settings{database: true, bus: true, cache: true, pprof: true}
}

// WithoutDatabase skips the Postgres pool.
func WithoutDatabase() Option {
	return func(s *settings) { s.database = false }
}

// WithoutEventBus skips the in-process event bus.
func WithoutEventBus() Option {
	return func(s *settings) { s.bus = false }
}

// WithoutCache skips the cache even when config enables it.
func WithoutCache() Option {
	return func(s *settings) { s.cache = false }
}

// WithoutTelemetry skips the pprof listener even when config enables
// it. Useful when two binaries share a host in development.
func WithoutTelemetry() Option {
	return func(s *settings) { s.pprof = false }
}

// WithLogger substitutes a prebuilt logger, mainly for tests that
// capture output.
func WithLogger(log *logger.Logger) Option {
	return func(s *settings) { s.logger = log }
}

// WithConfig substitutes a prebuilt config instead of reading the
// environment.
func WithConfig(cfg *config.Config) Option {
	return func(s *settings) { s.config = cfg }
}
