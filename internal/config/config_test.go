package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/motion.report/internal/window"
	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config is invalid: %v", err)
	}

	if cfg.GetListenAddr() != "0.0.0.0:30007" {
		t.Errorf("GetListenAddr() = %q, want 0.0.0.0:30007", cfg.GetListenAddr())
	}
	if cfg.GetReadChunkBytes() != 1024 {
		t.Errorf("GetReadChunkBytes() = %d, want 1024", cfg.GetReadChunkBytes())
	}
	if cfg.GetOutputDir() != "output" {
		t.Errorf("GetOutputDir() = %q, want output", cfg.GetOutputDir())
	}
	if cfg.GetDBPath() != "motion.db" {
		t.Errorf("GetDBPath() = %q, want motion.db", cfg.GetDBPath())
	}
	if cfg.GetAdminListen() != "localhost:8080" {
		t.Errorf("GetAdminListen() = %q, want localhost:8080", cfg.GetAdminListen())
	}
	if !cfg.GetAsyncRender() {
		t.Error("GetAsyncRender() = false, want true")
	}
	if cfg.GetReadPollInterval() != 100*time.Millisecond {
		t.Errorf("GetReadPollInterval() = %v, want 100ms", cfg.GetReadPollInterval())
	}
	if diff := cmp.Diff(window.DefaultConfig(), cfg.WindowConfig()); diff != "" {
		t.Errorf("WindowConfig() mismatch (-want +got):\n%s", diff)
	}
}

func TestEmptyConfigMatchesDefaults(t *testing.T) {
	empty := &Config{}
	def := DefaultConfig()

	if empty.GetListenAddr() != def.GetListenAddr() {
		t.Errorf("listen addr: empty %q, default %q", empty.GetListenAddr(), def.GetListenAddr())
	}
	if empty.GetReadPollInterval() != def.GetReadPollInterval() {
		t.Errorf("poll interval: empty %v, default %v", empty.GetReadPollInterval(), def.GetReadPollInterval())
	}
	if diff := cmp.Diff(def.WindowConfig(), empty.WindowConfig()); diff != "" {
		t.Errorf("WindowConfig() mismatch (-default +empty):\n%s", diff)
	}
}

func TestDefaultsFileMatchesDefaultConfig(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("..", "..", DefaultConfigPath))
	if err != nil {
		t.Fatalf("LoadConfig(defaults) error: %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("defaults file drifted from DefaultConfig (-code +file):\n%s", diff)
	}
}

func TestLoadConfig_Partial(t *testing.T) {
	path := writeConfig(t, "motion.json", `{"listen_port": 4000, "window_size": 600, "arm_threshold": 500, "async_render": false}`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.GetListenPort() != 4000 {
		t.Errorf("GetListenPort() = %d, want 4000", cfg.GetListenPort())
	}
	if cfg.GetListenHost() != "0.0.0.0" {
		t.Errorf("GetListenHost() = %q, want default", cfg.GetListenHost())
	}
	if cfg.GetAsyncRender() {
		t.Error("GetAsyncRender() = true, want false")
	}
	w := cfg.WindowConfig()
	if w.Size != 600 || w.ArmAt != 500 || w.RotateBelow != 50 {
		t.Errorf("WindowConfig() = %+v, want size 600 arm 500 rotate 50", w)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		invalid bool
		wantMsg string
	}{
		{name: "wrong extension", file: "motion.yaml", body: "{}", wantMsg: ".json extension"},
		{name: "bad json", file: "motion.json", body: "{", wantMsg: "parse config JSON"},
		{name: "unknown type", file: "motion.json", body: `{"listen_port": "x"}`, wantMsg: "parse config JSON"},
		{name: "port range", file: "motion.json", body: `{"listen_port": 70000}`, invalid: true},
		{name: "chunk", file: "motion.json", body: `{"read_chunk_bytes": 0}`, invalid: true},
		{name: "empty output", file: "motion.json", body: `{"output_dir": ""}`, invalid: true},
		{name: "poll interval", file: "motion.json", body: `{"read_poll_interval": "soon"}`, invalid: true},
		{name: "negative poll", file: "motion.json", body: `{"read_poll_interval": "-1s"}`, invalid: true},
		{name: "arm past size", file: "motion.json", body: `{"arm_threshold": 300}`, invalid: true},
		{name: "rotate above arm", file: "motion.json", body: `{"rotate_threshold": 260}`, invalid: true},
		{name: "zero gyro scale", file: "motion.json", body: `{"gyro_scale": 0}`, invalid: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.file, tt.body))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if tt.invalid && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error %v is not ErrInvalidConfig", err)
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not contain %q", err, tt.wantMsg)
			}
		})
	}
}

func TestValidate_WrapsWindowError(t *testing.T) {
	cfg := &Config{WindowSize: ptrInt(0)}
	err := cfg.Validate()
	if !errors.Is(err, ErrInvalidConfig) || !errors.Is(err, window.ErrInvalidConfig) {
		t.Errorf("Validate() = %v, want both config and window ErrInvalidConfig", err)
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadConfig_TooLarge(t *testing.T) {
	body := `{"output_dir": "` + strings.Repeat("a", 1024*1024) + `"}`
	_, err := LoadConfig(writeConfig(t, "big.json", body))
	if err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("LoadConfig(big) = %v, want too large error", err)
	}
}

func TestGetReadPollInterval_BadValue(t *testing.T) {
	cfg := &Config{ReadPollInterval: ptrString("later")}
	if got := cfg.GetReadPollInterval(); got != 100*time.Millisecond {
		t.Errorf("GetReadPollInterval() = %v, want default", got)
	}
}
