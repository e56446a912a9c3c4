// internal/config/config.go

// Package config loads the driver configuration from YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Bus         BusConfig `yaml:"bus"`
	DeviceTypes []string  `yaml:"device_types"`
}

// ---- BUS ----

type BusConfig struct {
	// Port is the serial device. Net selects a host:port serial bridge
	// instead; at most one of the two may be set.
	Port string `yaml:"port"`
	Net  string `yaml:"net"`

	Baud      int `yaml:"baud"`
	TimeoutMs int `yaml:"timeout_ms"`

	ShowPackets bool `yaml:"show_packets"`
}

// Load reads and decodes a YAML config file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %v", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %v", path, err)
	}
	return &cfg, nil
}
