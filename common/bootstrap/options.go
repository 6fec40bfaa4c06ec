package bootstrap

import "github.com/HuongNV13/moodle/common/config"

// Option adjusts what Setup initializes
type Option func(*settings)

type settings struct {
	database  bool
	cache     bool
	telemetry bool
	config    *config.Config
}

func newSettings() settings {
	return settings{database: true, cache: true, telemetry: true}
}

// WithoutDB skips the database pool, for binaries that never touch postgres
func WithoutDB() Option {
	return func(s *settings) { s.database = false }
}

// WithoutCache skips the in-process cache
func WithoutCache() Option {
	return func(s *settings) { s.cache = false }
}

// WithoutTelemetry skips the pprof listener regardless of config
func WithoutTelemetry() Option {
	return func(s *settings) { s.telemetry = false }
}

// WithConfig injects a pre-built config instead of loading from env, used by
// tests
func WithConfig(cfg *config.Config) Option {
	return func(s *settings) { s.config = cfg }
}
