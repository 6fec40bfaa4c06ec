package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/HuongNV13/moodle/common/cache"
	"github.com/HuongNV13/moodle/common/config"
	"github.com/HuongNV13/moodle/common/db"
	"github.com/HuongNV13/moodle/common/logger"
	"github.com/HuongNV13/moodle/common/telemetry"
)

// Components holds the shared dependencies a binary gets from Setup
type Components struct {
	Config    *config.Config
	Logger    *logger.Logger
	DB        *db.DB
	Cache     cache.Cache
	Telemetry *telemetry.Telemetry

	cleanups []func() error
}

// onShutdown registers a cleanup; Shutdown runs them newest-first so
// dependents close before what they depend on
func (c *Components) onShutdown(fn func() error) {
	c.cleanups = append(c.cleanups, fn)
}

// Shutdown tears the components down in reverse initialization order.
// Call it with defer right after Setup.
func (c *Components) Shutdown(ctx context.Context) error {
	c.Logger.Info("shutting down components")

	var errs []error
	for i := len(c.cleanups) - 1; i >= 0; i-- {
		if err := c.cleanups[i](); err != nil {
			c.Logger.Error("cleanup failed", "error", err)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown finished with errors: %w", errors.Join(errs...))
	}

	c.Logger.Info("shutdown complete")
	return nil
}

// Health reports whether the stateful components are reachable
func (c *Components) Health(ctx context.Context) error {
	if c.DB == nil {
		return nil
	}
	if err := c.DB.Health(ctx); err != nil {
		return fmt.Errorf("database unhealthy: %w", err)
	}
	return nil
}
