package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestValidate_Defaults(t *testing.T) {
	warnings := Default().Validate()
	if len(warnings) != 0 {
		t.Errorf("default config should have no warnings, got %v", warnings)
	}
}

func TestValidate_Warnings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"workers", func(c *Config) { c.Scan.Workers = 0 }, "workers"},
		{"no_extensions", func(c *Config) { c.Scan.Extensions = nil }, "extensions is empty"},
		{"extension_dot", func(c *Config) { c.Scan.Extensions = []string{"rs"} }, "does not start with"},
		{"max_file_size", func(c *Config) { c.Scan.MaxFileSize = -1 }, "max_file_size"},
		{"preview_limit", func(c *Config) { c.Report.PreviewLimit = -3 }, "preview_limit"},
		{"sample_rate", func(c *Config) { c.Tracing.SampleRate = 1.5 }, "sample_rate"},
		{"graph_password", func(c *Config) { c.Graph.URI = "bolt://localhost:7687" }, "password"},
		{"log_format", func(c *Config) { c.Log.Format = "xml" }, "log format"},
		{"gate_severity", func(c *Config) { c.Gate.CycleSeverity = "fatal" }, "cycle_severity"},
		{"gate_other_share", func(c *Config) { c.Gate.MaxOtherShare = 2 }, "max_other_share"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			found := false
			for _, w := range cfg.Validate() {
				if strings.Contains(w, tt.want) {
					found = true
				}
			}
			if !found {
				t.Errorf("expected warning containing %q", tt.want)
			}
		})
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "layermap.yaml")
	content := `scan:
  workers: 4
  exclude:
    - target
    - vendor
report:
  output: out/deps.json
  preview_limit: 5
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Scan.Workers != 4 {
		t.Errorf("expected 4 workers, got %d", cfg.Scan.Workers)
	}
	if !reflect.DeepEqual(cfg.Scan.Exclude, []string{"target", "vendor"}) {
		t.Errorf("unexpected exclude %v", cfg.Scan.Exclude)
	}
	if cfg.Report.Output != "out/deps.json" || cfg.Report.PreviewLimit != 5 {
		t.Errorf("unexpected report config %+v", cfg.Report)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected debug level, got %s", cfg.Log.Level)
	}
	// Unset keys keep their defaults.
	if !reflect.DeepEqual(cfg.Scan.Extensions, []string{".rs"}) {
		t.Errorf("expected default extensions, got %v", cfg.Scan.Extensions)
	}
	if cfg.Temporal.TaskQueue != "layermap" {
		t.Errorf("expected default task queue, got %s", cfg.Temporal.TaskQueue)
	}
	if !cfg.Report.Write {
		t.Error("expected report.write to default to true")
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Error("expected error for missing explicit config file")
	}
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	chdirTemp(t)
	t.Setenv("LAYERMAP_SCAN_WORKERS", "8")
	t.Setenv("LAYERMAP_GRAPH_PROJECT", "gitai")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Scan.Workers != 8 {
		t.Errorf("expected env workers 8, got %d", cfg.Scan.Workers)
	}
	if cfg.Graph.Project != "gitai" {
		t.Errorf("expected env project gitai, got %s", cfg.Graph.Project)
	}
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("LAYERMAP_TEST_DOTENV=loaded\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LAYERMAP_TEST_DOTENV", "")
	os.Unsetenv("LAYERMAP_TEST_DOTENV")

	if err := LoadEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadEnv failed: %v", err)
	}
	if got := os.Getenv("LAYERMAP_TEST_DOTENV"); got != "loaded" {
		t.Errorf("expected loaded, got %q", got)
	}
}

// chdirTemp changes into a fresh temp dir and restores the previous working
// directory on cleanup (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdirTemp(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Errorf("restore working dir: %v", err)
		}
	})
}
