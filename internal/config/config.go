package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. LAYERMAP_SCAN_WORKERS.
const EnvPrefix = "LAYERMAP"

// Config holds all application configuration.
type Config struct {
	Scan     ScanConfig     `mapstructure:"scan"`
	Report   ReportConfig   `mapstructure:"report"`
	Plan     PlanConfig     `mapstructure:"plan"`
	Graph    GraphConfig    `mapstructure:"graph"`
	Gate     GateConfig     `mapstructure:"gate"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Temporal TemporalConfig `mapstructure:"temporal"`
	Health   HealthConfig   `mapstructure:"health"`
	Log      LogConfig      `mapstructure:"log"`
}

type ScanConfig struct {
	Extensions       []string `mapstructure:"extensions"`
	Exclude          []string `mapstructure:"exclude"`
	Workers          int      `mapstructure:"workers"`
	RespectGitignore bool     `mapstructure:"respect_gitignore"`
	MaxFileSize      int64    `mapstructure:"max_file_size"`
}

type ReportConfig struct {
	// Output is resolved against the scan root unless absolute.
	Output       string `mapstructure:"output"`
	PreviewLimit int    `mapstructure:"preview_limit"`
	Write        bool   `mapstructure:"write"`
}

type PlanConfig struct {
	IncludeUnobserved bool `mapstructure:"include_unobserved"`
}

type GraphConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	// Project scopes stored categories so several repositories can share a database.
	Project string `mapstructure:"project"`
}

// GateConfig sets the limits the check command enforces. A negative limit
// disables that gate.
type GateConfig struct {
	MaxCycles        int     `mapstructure:"max_cycles"`
	CycleSeverity    string  `mapstructure:"cycle_severity"`
	MaxUpwardEdges   int     `mapstructure:"max_upward_edges"`
	LayeringSeverity string  `mapstructure:"layering_severity"`
	MaxSkipped       int     `mapstructure:"max_skipped"`
	SkipSeverity     string  `mapstructure:"skip_severity"`
	MaxOtherShare    float64 `mapstructure:"max_other_share"`
	OtherSeverity    string  `mapstructure:"other_severity"`
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Environment string  `mapstructure:"environment"`
}

type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Output  string `mapstructure:"output"`
}

type TemporalConfig struct {
	Host      string `mapstructure:"host"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type HealthConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	return &Config{
		Scan: ScanConfig{
			Extensions:  []string{".rs"},
			Exclude:     []string{"target", "src.backup"},
			Workers:     1,
			MaxFileSize: 1 << 20,
		},
		Report: ReportConfig{
			Output:       "tools/dependency_analysis.json",
			PreviewLimit: 10,
			Write:        true,
		},
		Graph: GraphConfig{
			Username: "neo4j",
			Project:  "default",
		},
		Gate: GateConfig{
			MaxCycles:        0,
			CycleSeverity:    "required",
			MaxUpwardEdges:   -1,
			LayeringSeverity: "advisory",
			MaxSkipped:       -1,
			SkipSeverity:     "advisory",
			MaxOtherShare:    1.0,
			OtherSeverity:    "advisory",
		},
		Tracing: TracingConfig{
			SampleRate:  1.0,
			Environment: "development",
		},
		Audit: AuditConfig{
			Output: "stderr",
		},
		Temporal: TemporalConfig{
			Host:      "localhost:7233",
			Namespace: "default",
			TaskQueue: "layermap",
		},
		Health: HealthConfig{
			Addr: ":8080",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("scan.extensions", d.Scan.Extensions)
	v.SetDefault("scan.exclude", d.Scan.Exclude)
	v.SetDefault("scan.workers", d.Scan.Workers)
	v.SetDefault("scan.respect_gitignore", d.Scan.RespectGitignore)
	v.SetDefault("scan.max_file_size", d.Scan.MaxFileSize)
	v.SetDefault("report.output", d.Report.Output)
	v.SetDefault("report.preview_limit", d.Report.PreviewLimit)
	v.SetDefault("report.write", d.Report.Write)
	v.SetDefault("plan.include_unobserved", d.Plan.IncludeUnobserved)
	v.SetDefault("graph.uri", d.Graph.URI)
	v.SetDefault("graph.username", d.Graph.Username)
	v.SetDefault("graph.password", d.Graph.Password)
	v.SetDefault("graph.project", d.Graph.Project)
	v.SetDefault("gate.max_cycles", d.Gate.MaxCycles)
	v.SetDefault("gate.cycle_severity", d.Gate.CycleSeverity)
	v.SetDefault("gate.max_upward_edges", d.Gate.MaxUpwardEdges)
	v.SetDefault("gate.layering_severity", d.Gate.LayeringSeverity)
	v.SetDefault("gate.max_skipped", d.Gate.MaxSkipped)
	v.SetDefault("gate.skip_severity", d.Gate.SkipSeverity)
	v.SetDefault("gate.max_other_share", d.Gate.MaxOtherShare)
	v.SetDefault("gate.other_severity", d.Gate.OtherSeverity)
	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.environment", d.Tracing.Environment)
	v.SetDefault("audit.enabled", d.Audit.Enabled)
	v.SetDefault("audit.output", d.Audit.Output)
	v.SetDefault("temporal.host", d.Temporal.Host)
	v.SetDefault("temporal.namespace", d.Temporal.Namespace)
	v.SetDefault("temporal.task_queue", d.Temporal.TaskQueue)
	v.SetDefault("health.addr", d.Health.Addr)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if c.Scan.Workers < 1 {
		warnings = append(warnings, fmt.Sprintf("scan workers %d is below 1; running sequentially", c.Scan.Workers))
	}
	if len(c.Scan.Extensions) == 0 {
		warnings = append(warnings, "scan extensions is empty; defaulting to .rs")
	}
	for _, ext := range c.Scan.Extensions {
		if !strings.HasPrefix(ext, ".") {
			warnings = append(warnings, fmt.Sprintf("scan extension '%s' does not start with '.'", ext))
		}
	}
	if c.Scan.MaxFileSize < 0 {
		warnings = append(warnings, fmt.Sprintf("scan max_file_size %d is negative", c.Scan.MaxFileSize))
	}
	if c.Report.PreviewLimit < 0 {
		warnings = append(warnings, fmt.Sprintf("report preview_limit %d is negative", c.Report.PreviewLimit))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		warnings = append(warnings, fmt.Sprintf("tracing sample_rate %.2f is outside [0.0, 1.0]", c.Tracing.SampleRate))
	}
	if c.Graph.URI != "" && c.Graph.Password == "" {
		warnings = append(warnings, "graph uri is configured but password is empty")
	}
	for _, sev := range []struct{ name, value string }{
		{"cycle_severity", c.Gate.CycleSeverity},
		{"layering_severity", c.Gate.LayeringSeverity},
		{"skip_severity", c.Gate.SkipSeverity},
		{"other_severity", c.Gate.OtherSeverity},
	} {
		switch sev.value {
		case "", "critical", "required", "advisory":
		default:
			warnings = append(warnings, fmt.Sprintf("gate %s '%s' is unknown; using required", sev.name, sev.value))
		}
	}
	if c.Gate.MaxOtherShare > 1 {
		warnings = append(warnings, fmt.Sprintf("gate max_other_share %.2f is above 1.0", c.Gate.MaxOtherShare))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		warnings = append(warnings, fmt.Sprintf("log format '%s' is unknown; using text", c.Log.Format))
	}

	return warnings
}

// Load reads configuration from path (optional) and the environment. An empty
// path falls back to ./layermap.{yaml,toml,json} when one exists.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("layermap")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if warnings := cfg.Validate(); len(warnings) > 0 {
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
		}
	}

	return &cfg, nil
}

// LoadEnv loads .env style files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}
