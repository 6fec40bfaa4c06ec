package bootstrap

import (
	"context"
	"fmt"

	"github.com/HuongNV13/moodle/common/cache"
	"github.com/HuongNV13/moodle/common/config"
	"github.com/HuongNV13/moodle/common/db"
	"github.com/HuongNV13/moodle/common/logger"
	"github.com/HuongNV13/moodle/common/metrics"
	"github.com/HuongNV13/moodle/common/telemetry"
)

// Setup is the common entry point for every binary: config, logger, database
// pool, cache and telemetry, each skippable per option. On success the caller
// owns the components and must defer Shutdown.
func Setup(ctx context.Context, serviceName string, opts ...Option) (*Components, error) {
	s := newSettings()
	for _, opt := range opts {
		opt(&s)
	}

	cfg := s.config
	if cfg == nil {
		var err error
		cfg, err = config.Load(serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	c := &Components{
		Config: cfg,
		Logger: logger.New(cfg.Service.LogLevel, cfg.Service.LogFormat),
	}

	c.Logger.Info("initializing service",
		"service", serviceName,
		"environment", cfg.Service.Environment,
	)
	c.Logger.Info("runtime environment", metrics.Capture().LogFields()...)

	if s.database {
		pool, err := db.New(ctx, cfg, c.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		c.DB = pool
		c.onShutdown(func() error {
			pool.Close()
			return nil
		})
	}

	if s.cache {
		mc := cache.NewMemoryCache(c.Logger)
		c.Cache = mc
		c.onShutdown(mc.Close)
	}

	if s.telemetry && cfg.Telemetry.EnablePprof {
		c.Telemetry = telemetry.New(cfg.Telemetry.PprofPort, c.Logger)
		if err := c.Telemetry.Start(ctx); err != nil {
			// pprof is diagnostics only; the service still starts
			c.Logger.Warn("failed to start telemetry listener", "error", err)
		}
	}

	c.Logger.Info("service initialized",
		"service", serviceName,
		"db", c.DB != nil,
		"cache", c.Cache != nil,
		"pprof", c.Telemetry != nil,
	)
	return c, nil
}
