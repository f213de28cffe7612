package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
sources:
  file:
    enabled: false
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v, want defaults applied", cfg.Logging)
	}
	if cfg.Admin.Addr != ":8090" {
		t.Errorf("Admin.Addr = %q, want default", cfg.Admin.Addr)
	}
}

func TestLoadFullConfig(t *testing.T) {
	path := writeTempConfig(t, `
logging:
  level: debug
  format: console
sources:
  cli: true
  file:
    enabled: true
    path: /etc/edgepipe/vars.json
admin:
  addr: ":9091"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "console" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if !cfg.Sources.File.Enabled || cfg.Sources.File.Path != "/etc/edgepipe/vars.json" {
		t.Errorf("Sources.File = %+v", cfg.Sources.File)
	}
	if cfg.Admin.Addr != ":9091" {
		t.Errorf("Admin.Addr = %q", cfg.Admin.Addr)
	}
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("Load() expected error")
	}
}

func TestLoadInvalidYAMLReturnsError(t *testing.T) {
	path := writeTempConfig(t, "logging: [\n")
	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() expected error")
	}
}

func TestLoadRejectsFileSourceWithoutPath(t *testing.T) {
	path := writeTempConfig(t, `
sources:
  file:
    enabled: true
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() expected validation error")
	}
}

func TestLoadEnvOverridesSeedFiles(t *testing.T) {
	path := writeTempConfig(t, "")
	t.Setenv("PIPELINE_CONFIG_PIPELINES_FILE", "/tmp/pipelines.json")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.PipelinesFile != "/tmp/pipelines.json" {
		t.Errorf("PipelinesFile = %q, want override", cfg.PipelinesFile)
	}
}
