// internal/config/normalize.go
package config

// Defaults applied by Normalize.
const (
	DefaultBaud      = 1000000
	DefaultTimeoutMs = 50
)

// Normalize applies post-validation defaults.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}
	if cfg.Bus.Baud == 0 {
		cfg.Bus.Baud = DefaultBaud
	}
	if cfg.Bus.TimeoutMs == 0 {
		cfg.Bus.TimeoutMs = DefaultTimeoutMs
	}
}
