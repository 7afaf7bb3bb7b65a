package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-enocean/internal/bridges/enocean"
	"github.com/nerrad567/gray-logic-enocean/internal/infrastructure/config"
)

// writeConfig writes a minimal config with every external service disabled.
func writeConfig(t *testing.T, dataDir string, port int) string {
	t.Helper()
	content := fmt.Sprintf(`
bridge:
  id: test-bridge
  data_dir: %q
  control_file: eofilter.txt
  domain: "Sensors/"
  scan_interval: 20ms

database:
  enabled: false

mqtt:
  enabled: false

logging:
  level: error
  format: text
  output: stdout

api:
  host: "127.0.0.1"
  port: %d
`, dataDir, port)

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

// freePort returns a port that was free a moment ago.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

// captureRun returns a run function that records the config it is given.
func captureRun(got **config.Config) func(context.Context, *config.Config) error {
	return func(_ context.Context, cfg *config.Config) error {
		*got = cfg
		return nil
	}
}

func TestRootCmd_FlagsOverrideConfig(t *testing.T) {
	path := writeConfig(t, t.TempDir(), 16664)

	var cfg *config.Config
	cmd := newRootCmd(captureRun(&cfg))
	cmd.SetArgs([]string{"-c", path, "-D", "-L", "-d", "Building/", "-p", "18080"})
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if !cfg.Bridge.Debug || !cfg.Bridge.LogSamples {
		t.Errorf("debug = %v, log_samples = %v, want both true", cfg.Bridge.Debug, cfg.Bridge.LogSamples)
	}
	if cfg.Bridge.Domain != "Building/" {
		t.Errorf("domain = %q, want Building/", cfg.Bridge.Domain)
	}
	if cfg.API.Port != 18080 {
		t.Errorf("port = %d, want 18080", cfg.API.Port)
	}
}

func TestRootCmd_UnsetFlagsKeepConfig(t *testing.T) {
	path := writeConfig(t, t.TempDir(), 16664)

	var cfg *config.Config
	cmd := newRootCmd(captureRun(&cfg))
	cmd.SetArgs([]string{"--config", path})
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if cfg.Bridge.Domain != "Sensors/" || cfg.API.Port != 16664 || cfg.Bridge.Debug {
		t.Errorf("config changed without flags: domain %q port %d debug %v",
			cfg.Bridge.Domain, cfg.API.Port, cfg.Bridge.Debug)
	}
	if cfg.Bridge.ScanInterval != 20*time.Millisecond {
		t.Errorf("scan_interval = %v", cfg.Bridge.ScanInterval)
	}
}

func TestRootCmd_Errors(t *testing.T) {
	path := writeConfig(t, t.TempDir(), 16664)

	tests := []struct {
		name string
		args []string
	}{
		{"missing config", []string{"-c", "/nonexistent/path/config.yaml"}},
		{"port out of range", []string{"-c", path, "-p", "70000"}},
		{"unexpected argument", []string{"-c", path, "extra"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			cmd := newRootCmd(func(context.Context, *config.Config) error {
				called = true
				return nil
			})
			cmd.SetArgs(tt.args)
			cmd.SetOut(&discard{})
			cmd.SetErr(&discard{})

			if err := cmd.ExecuteContext(context.Background()); err == nil {
				t.Error("Execute() error = nil")
			}
			if called {
				t.Error("run was called despite invalid input")
			}
		})
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func TestRun_MissingControlFile(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, t.TempDir(), freePort(t)))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = run(ctx, cfg)
	if !errors.Is(err, enocean.ErrConfigOpen) {
		t.Fatalf("run() error = %v, want ErrConfigOpen", err)
	}
	if code := exitCode(err); code != 2 {
		t.Errorf("exitCode() = %d, want 2", code)
	}
}

func TestExitCode(t *testing.T) {
	if exitCode(nil) != 0 {
		t.Error("nil error should exit 0")
	}
	if exitCode(errors.New("boom")) != 1 {
		t.Error("generic error should exit 1")
	}
}

func TestRun_PublishesUntilCancelled(t *testing.T) {
	dataDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dataDir, "eofilter.txt"),
		[]byte("0017A2B3,A5-02-05,Outdoor Temp,temp1.txt\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dataDir, "temp1.txt"), []byte("21.4 C\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	port := freePort(t)
	cfg, err := config.Load(writeConfig(t, dataDir, port))
	if err != nil {
		t.Fatal(err)
	}
	cfg.Database.Enabled = true
	cfg.Database.Path = filepath.Join(t.TempDir(), "eobridge.db")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg) }()

	url := fmt.Sprintf("http://127.0.0.1:%d/api/v1/points/Sensors/temp1.txt", port)
	deadline := time.Now().Add(5 * time.Second)
	var value float64
	for time.Now().Before(deadline) {
		if v, ok := fetchValue(url); ok && v != 0 {
			value = v
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if value != 21.4 {
		t.Fatalf("point value = %v, want 21.4", value)
	}

	base := fmt.Sprintf("http://127.0.0.1:%d/api/v1", port)
	var history struct {
		Samples []struct {
			Value     float64 `json:"value"`
			EnOceanID string  `json:"enocean_id"`
		} `json:"samples"`
	}
	// The history row is written right after the point server is updated.
	for deadline := time.Now().Add(5 * time.Second); time.Now().Before(deadline); {
		if status := fetchJSON(t, base+"/history/Sensors/temp1.txt?limit=10", &history); status != http.StatusOK {
			t.Fatalf("history status = %d", status)
		}
		if len(history.Samples) > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if len(history.Samples) == 0 || history.Samples[0].Value != 21.4 || history.Samples[0].EnOceanID != "0017A2B3" {
		t.Errorf("history = %+v", history.Samples)
	}

	var channels struct {
		Channels []enocean.ChannelRecord `json:"channels"`
	}
	if status := fetchJSON(t, base+"/channels", &channels); status != http.StatusOK {
		t.Fatalf("channels status = %d", status)
	}
	if len(channels.Channels) != 1 || channels.Channels[0].ID != 0x0017A2B3 {
		t.Errorf("channels = %+v", channels.Channels)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run() error = %v, want nil on clean shutdown", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run() did not return after cancel")
	}
}

func fetchValue(url string) (float64, bool) {
	resp, err := http.Get(url) //nolint:gosec,noctx // test-only local URL
	if err != nil {
		return 0, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, false
	}
	var p struct {
		Value float64 `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return 0, false
	}
	return p.Value, true
}

func fetchJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url) //nolint:gosec,noctx // test-only local URL
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decoding %s: %v", url, err)
	}
	return resp.StatusCode
}

func TestMigrateCmd(t *testing.T) {
	t.Setenv("EOBRIDGE_DATABASE_PATH", filepath.Join(t.TempDir(), "eobridge.db"))
	path := writeConfig(t, t.TempDir(), 16664)

	migrate := func(sub string) string {
		t.Helper()
		var out bytes.Buffer
		cmd := newRootCmd(func(context.Context, *config.Config) error {
			t.Fatal("run should not be called for migrate")
			return nil
		})
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"migrate", sub, "-c", path})
		if err := cmd.ExecuteContext(context.Background()); err != nil {
			t.Fatalf("migrate %s error = %v", sub, err)
		}
		return out.String()
	}

	if out := migrate("status"); strings.Count(out, "pending") != 2 {
		t.Errorf("fresh status = %q, want two pending", out)
	}

	migrate("up")
	if out := migrate("status"); strings.Count(out, "applied") != 2 || strings.Contains(out, "pending") {
		t.Errorf("status after up = %q", out)
	}

	if out := migrate("down"); !strings.Contains(out, "rolled back 20260301_091500") {
		t.Errorf("down = %q", out)
	}
	out := migrate("status")
	if !strings.Contains(out, "pending  20260301_091500  point_history") || strings.Count(out, "applied") != 1 {
		t.Errorf("status after down = %q", out)
	}

	migrate("down")
	if out := migrate("down"); !strings.Contains(out, "nothing to roll back") {
		t.Errorf("down on empty schema = %q", out)
	}
}
