package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DBBackend != DatabaseSQLite {
		t.Fatalf("default backend = %q", cfg.DBBackend)
	}
	if cfg.DBDSN != "volund.db" {
		t.Fatalf("default dsn = %q", cfg.DBDSN)
	}
	if cfg.DeviceBaud != 115200 {
		t.Fatalf("default baud = %d", cfg.DeviceBaud)
	}
	if cfg.RunTimeout != 120*time.Second {
		t.Fatalf("default run timeout = %v", cfg.RunTimeout)
	}
	if got := cfg.HTTPAddr(); got != "0.0.0.0:8080" {
		t.Fatalf("http addr = %q", got)
	}
}

func TestLoadReadsEnvKeys(t *testing.T) {
	t.Setenv("VOLUND_DB_BACKEND", "postgres")
	t.Setenv("VOLUND_DB_DSN", "host=localhost user=test dbname=test sslmode=disable")
	t.Setenv("VOLUND_DEVICE", "tcp://bench-1:9300")
	t.Setenv("VB_HTTP_PORT", "9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DBBackend != DatabasePostgres {
		t.Fatalf("backend = %q", cfg.DBBackend)
	}
	if cfg.DeviceTarget != "tcp://bench-1:9300" {
		t.Fatalf("device target = %q", cfg.DeviceTarget)
	}
	if cfg.HTTPPort != 9090 {
		t.Fatalf("short-prefix port not honored: %d", cfg.HTTPPort)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("VOLUND_DB_BACKEND", "oracle")

	if _, err := Load(); err == nil {
		t.Fatal("expected load to fail for unknown backend")
	}
}

func TestLoadReportsLegacyEnvWarnings(t *testing.T) {
	t.Setenv("DEVICE_PORT", "/dev/ttyACM0")
	t.Setenv("PROFILE_DIR", "/tmp/profiles")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if len(cfg.LegacyEnvWarnings) != 2 {
		t.Fatalf("warnings = %v", cfg.LegacyEnvWarnings)
	}
}

func TestLoadAgentConfigDefaults(t *testing.T) {
	cfg, err := LoadAgentConfig("")
	if err != nil {
		t.Fatalf("load agent config: %v", err)
	}
	if cfg.Listen != "0.0.0.0:9300" || cfg.Backend != "sim" || cfg.ProfileDir != "./profiles" {
		t.Fatalf("defaults = %+v", cfg)
	}
}

func TestLoadAgentConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	doc := `listen: "stdio"
backend: gpio
profile_dir: /var/lib/volund
pin_map:
  2: 17
  3: 27
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadAgentConfig(path)
	if err != nil {
		t.Fatalf("load agent config: %v", err)
	}
	if cfg.Listen != "stdio" || cfg.Backend != "gpio" || cfg.ProfileDir != "/var/lib/volund" {
		t.Fatalf("parsed = %+v", cfg)
	}
	if cfg.PinMap[2] != 17 || cfg.PinMap[3] != 27 {
		t.Fatalf("pin map = %v", cfg.PinMap)
	}
}

func TestLoadAgentConfigRejectsUnknownBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	if err := os.WriteFile(path, []byte("backend: fpga\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := LoadAgentConfig(path); err == nil {
		t.Fatal("expected unknown backend to be rejected")
	}
}
