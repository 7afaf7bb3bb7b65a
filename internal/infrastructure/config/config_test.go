package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
bridge:
  id: "eo-test"
  data_dir: "/tmp/dpride"
  control_file: "filter.txt"
  domain: "Sensors/"
  scan_interval: 250ms
  workers: 4
mqtt:
  broker:
    host: "broker.local"
    port: 1883
  qos: 1
api:
  port: 9000
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Bridge.ID != "eo-test" {
		t.Errorf("Bridge.ID = %q, want %q", cfg.Bridge.ID, "eo-test")
	}
	if cfg.Bridge.DataDir != "/tmp/dpride" {
		t.Errorf("Bridge.DataDir = %q, want %q", cfg.Bridge.DataDir, "/tmp/dpride")
	}
	if cfg.Bridge.Domain != "Sensors/" {
		t.Errorf("Bridge.Domain = %q, want %q", cfg.Bridge.Domain, "Sensors/")
	}
	if cfg.Bridge.ScanInterval != 250*time.Millisecond {
		t.Errorf("Bridge.ScanInterval = %v, want 250ms", cfg.Bridge.ScanInterval)
	}
	if cfg.Bridge.Workers != 4 {
		t.Errorf("Bridge.Workers = %d, want 4", cfg.Bridge.Workers)
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
	if cfg.API.Port != 9000 {
		t.Errorf("API.Port = %d, want 9000", cfg.API.Port)
	}

	// Untouched values keep their defaults.
	if cfg.Bridge.MaxNameLength != DefaultMaxNameLength {
		t.Errorf("Bridge.MaxNameLength = %d, want %d", cfg.Bridge.MaxNameLength, DefaultMaxNameLength)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(path)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeConfig(t, `
bridge:
  id: ""
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() expected validation error for empty bridge.id, got nil")
	}
	if !strings.Contains(err.Error(), "bridge.id") {
		t.Errorf("error = %v, want mention of bridge.id", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
bridge:
  domain: "FromFile/"
`)

	t.Setenv("EOBRIDGE_BRIDGE_DOMAIN", "FromEnv/")
	t.Setenv("EOBRIDGE_BRIDGE_DATA_DIR", "/srv/eo")
	t.Setenv("EOBRIDGE_BRIDGE_SCAN_INTERVAL", "2s")
	t.Setenv("EOBRIDGE_API_PORT", "17000")
	t.Setenv("EOBRIDGE_MQTT_PASSWORD", "secret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Bridge.Domain != "FromEnv/" {
		t.Errorf("Bridge.Domain = %q, want %q", cfg.Bridge.Domain, "FromEnv/")
	}
	if cfg.Bridge.DataDir != "/srv/eo" {
		t.Errorf("Bridge.DataDir = %q, want %q", cfg.Bridge.DataDir, "/srv/eo")
	}
	if cfg.Bridge.ScanInterval != 2*time.Second {
		t.Errorf("Bridge.ScanInterval = %v, want 2s", cfg.Bridge.ScanInterval)
	}
	if cfg.API.Port != 17000 {
		t.Errorf("API.Port = %d, want 17000", cfg.API.Port)
	}
	if cfg.MQTT.Auth.Password != "secret" {
		t.Error("MQTT.Auth.Password was not overridden")
	}
}

func TestLoad_InvalidEnvIgnored(t *testing.T) {
	path := writeConfig(t, "bridge:\n  id: eo\n")

	t.Setenv("EOBRIDGE_API_PORT", "not-a-number")
	t.Setenv("EOBRIDGE_BRIDGE_SCAN_INTERVAL", "soon")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.Port != 16664 {
		t.Errorf("API.Port = %d, want default 16664", cfg.API.Port)
	}
	if cfg.Bridge.ScanInterval != time.Second {
		t.Errorf("Bridge.ScanInterval = %v, want default 1s", cfg.Bridge.ScanInterval)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
	if cfg.Bridge.DataDir != "/var/tmp/dpride" {
		t.Errorf("Bridge.DataDir = %q, want /var/tmp/dpride", cfg.Bridge.DataDir)
	}
	if cfg.Bridge.ControlFile != "eofilter.txt" {
		t.Errorf("Bridge.ControlFile = %q, want eofilter.txt", cfg.Bridge.ControlFile)
	}
	if cfg.API.Port != 16664 {
		t.Errorf("API.Port = %d, want 16664", cfg.API.Port)
	}
	if cfg.Bridge.ScanInterval != time.Second {
		t.Errorf("Bridge.ScanInterval = %v, want 1s", cfg.Bridge.ScanInterval)
	}
	if !cfg.Notify.MQTT || cfg.Notify.MQTTTopic != "" {
		t.Errorf("Notify = %+v, want MQTT on with the standard topic", cfg.Notify)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid defaults",
			mutate: func(*Config) {},
		},
		{
			name:    "missing bridge id",
			mutate:  func(c *Config) { c.Bridge.ID = "" },
			wantErr: "bridge.id",
		},
		{
			name:    "missing control file",
			mutate:  func(c *Config) { c.Bridge.ControlFile = "" },
			wantErr: "bridge.control_file",
		},
		{
			name:    "domain too long",
			mutate:  func(c *Config) { c.Bridge.Domain = strings.Repeat("x", MaxDomainLength+1) },
			wantErr: "bridge.domain",
		},
		{
			name:    "scan interval too short",
			mutate:  func(c *Config) { c.Bridge.ScanInterval = time.Millisecond },
			wantErr: "bridge.scan_interval",
		},
		{
			name:    "zero workers",
			mutate:  func(c *Config) { c.Bridge.Workers = 0 },
			wantErr: "bridge.workers",
		},
		{
			name:    "negative retention",
			mutate:  func(c *Config) { c.Database.RetentionDays = -1 },
			wantErr: "database.retention_days",
		},
		{
			name:    "bad qos",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name: "influxdb enabled without url",
			mutate: func(c *Config) {
				c.InfluxDB.Enabled = true
				c.InfluxDB.Bucket = "eo"
			},
			wantErr: "influxdb.url",
		},
		{
			name: "redis enabled without addr",
			mutate: func(c *Config) {
				c.Redis.Enabled = true
				c.Redis.Addr = ""
			},
			wantErr: "redis.addr",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: "api.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate_CollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Bridge.ID = ""
	cfg.API.Port = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() error = nil")
	}
	for _, want := range []string{"bridge.id", "api.port"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestMQTTAuthConfig_StringRedactsPassword(t *testing.T) {
	a := MQTTAuthConfig{Username: "eo", Password: "hunter2"}
	s := a.String()
	if strings.Contains(s, "hunter2") {
		t.Errorf("String() leaked password: %s", s)
	}
	if !strings.Contains(s, "[REDACTED]") {
		t.Errorf("String() = %s, want redaction marker", s)
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := Default()

	if got := cfg.GetHealthInterval(); got != 30*time.Second {
		t.Errorf("GetHealthInterval() = %v, want 30s", got)
	}
	if got := cfg.GetReadTimeout(); got != 30*time.Second {
		t.Errorf("GetReadTimeout() = %v, want 30s", got)
	}
	if got := cfg.GetIdleTimeout(); got != 60*time.Second {
		t.Errorf("GetIdleTimeout() = %v, want 60s", got)
	}
}
