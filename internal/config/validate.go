// internal/config/validate.go
package config

import "fmt"

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg.Bus.Port != "" && cfg.Bus.Net != "" {
		return fmt.Errorf("config: bus.port and bus.net are mutually exclusive")
	}
	if cfg.Bus.Baud < 0 {
		return fmt.Errorf("config: bus.baud must be positive, found %d", cfg.Bus.Baud)
	}
	if cfg.Bus.TimeoutMs < 0 {
		return fmt.Errorf("config: bus.timeout_ms must be positive, found %d", cfg.Bus.TimeoutMs)
	}
	for _, path := range cfg.DeviceTypes {
		if path == "" {
			return fmt.Errorf("config: device_types entries must not be empty")
		}
	}
	return nil
}
