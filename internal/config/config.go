// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

// Package config loads the relay server's configuration from an optional
// YAML file with environment-variable overrides layered on top, following
// the same file-then-env-override precedence as the rest of this lineage.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the relay server's tunable parameters.
type Config struct {
	// Port is the TCP port the relay HTTP/WebSocket server listens on.
	Port int `yaml:"port"`
	// MetricsAddr is the listen address for the Prometheus endpoint. Empty
	// disables the metrics server.
	MetricsAddr string `yaml:"metrics_addr"`
	// LogLevel selects the minimum logger.Level by name.
	LogLevel string `yaml:"log_level"`
	// MailboxCapacity is the number of buffered messages a connection's
	// mailbox holds; a sender to a full mailbox waits until a slot frees up.
	MailboxCapacity int `yaml:"mailbox_capacity"`
	// IDMin and IDMax bound the relay ID space allocated to connections.
	IDMin uint16 `yaml:"id_min"`
	IDMax uint16 `yaml:"id_max"`
	// IDAllocMaxRetries is the number of random IDs tried before a new
	// connection is rejected with 503 Service Unavailable.
	IDAllocMaxRetries int `yaml:"id_alloc_max_retries"`
}

// Default returns the configuration used when no file or environment
// override is present.
func Default() *Config {
	return &Config{
		Port:              8000,
		MetricsAddr:       "",
		LogLevel:          "info",
		MailboxCapacity:   2,
		IDMin:             10,
		IDMax:             999,
		IDAllocMaxRetries: 100,
	}
}

// Load builds a Config starting from Default, optionally overlaying a YAML
// file at path (skipped if path is empty or the file does not exist), then
// applying environment variable overrides. A ".env" file in the working
// directory is loaded first, if present, so local development can set
// environment variables without exporting them manually.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		if err := mergeFile(cfg, path); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if cfg.IDMin == 0 || cfg.IDMax == 0 || cfg.IDMin > cfg.IDMax {
		return nil, fmt.Errorf("config: invalid id range [%d, %d]", cfg.IDMin, cfg.IDMax)
	}
	if cfg.MailboxCapacity < 1 {
		return nil, fmt.Errorf("config: mailbox_capacity must be at least 1, got %d", cfg.MailboxCapacity)
	}

	return cfg, nil
}

func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v := os.Getenv("PINGER_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("PINGER_LOG"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("PINGER_MAILBOX_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MailboxCapacity = n
		}
	}
	if v := os.Getenv("PINGER_ID_MIN"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 16); err == nil {
			cfg.IDMin = uint16(n)
		}
	}
	if v := os.Getenv("PINGER_ID_MAX"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 16); err == nil {
			cfg.IDMax = uint16(n)
		}
	}
	if v := os.Getenv("PINGER_ID_ALLOC_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.IDAllocMaxRetries = n
		}
	}
}
