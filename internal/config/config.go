/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	MetricsBind string

	DBBackend DatabaseBackend
	DBDSN     string

	// DataDir holds compiled profile files staged for upload.
	DataDir string

	// DeviceTarget is the agent link: a serial port name ("/dev/ttyACM0")
	// or "tcp://host:port" for an agent listening on TCP.
	DeviceTarget string
	DeviceBaud   int

	// RunTimeout bounds how long the host waits for a run to finish
	// before declaring the device unresponsive.
	RunTimeout time.Duration

	LogBufferSize int

	LegacyEnvWarnings []string
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnvAny([]string{"VOLUND_ENV", "VB_ENV"}, "development"),
		HTTPBind:    getEnvAny([]string{"VOLUND_HTTP_BIND", "VB_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:    getEnvIntAny([]string{"VOLUND_HTTP_PORT", "VB_HTTP_PORT"}, 8080),
		MetricsBind: getEnvAny([]string{"VOLUND_METRICS_BIND", "VB_METRICS_BIND"}, "127.0.0.1:9000"),

		DBBackend: DatabaseBackend(getEnvAny([]string{"VOLUND_DB_BACKEND", "VB_DB_BACKEND"}, string(DatabaseSQLite))),
		DBDSN:     getEnvAny([]string{"VOLUND_DB_DSN", "VB_DB_DSN"}, "volund.db"),

		DataDir: getEnvAny([]string{"VOLUND_DATA_DIR", "VB_DATA_DIR"}, "./data"),

		DeviceTarget: getEnvAny([]string{"VOLUND_DEVICE", "VB_DEVICE"}, ""),
		DeviceBaud:   getEnvIntAny([]string{"VOLUND_DEVICE_BAUD", "VB_DEVICE_BAUD"}, 115200),

		RunTimeout: time.Duration(getEnvIntAny([]string{"VOLUND_RUN_TIMEOUT_SECONDS", "VB_RUN_TIMEOUT_SECONDS"}, 120)) * time.Second,

		LogBufferSize: getEnvIntAny([]string{"VOLUND_LOG_BUFFER_SIZE", "VB_LOG_BUFFER_SIZE"}, 10000),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("VOLUND_DB_DSN or VB_DB_DSN must be provided")
	}

	if cfg.DeviceBaud <= 0 {
		return nil, fmt.Errorf("VOLUND_DEVICE_BAUD must be positive")
	}

	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"ENVIRONMENT":  "use VOLUND_ENV (or VB_ENV)",
		"DEVICE_PORT":  "use VOLUND_DEVICE (or VB_DEVICE)",
		"PROFILE_DIR":  "use VOLUND_DATA_DIR (or VB_DATA_DIR)",
		"METRICS_BIND": "use VOLUND_METRICS_BIND (or VB_METRICS_BIND)",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

// HTTPAddr returns the bind address for the API listener.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}
