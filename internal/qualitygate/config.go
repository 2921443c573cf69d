package qualitygate

import (
	"fmt"
	"strings"

	"github.com/efebarandurmaz/layermap/internal/config"
)

// parseSeverity converts a string to GateSeverity, defaulting to required.
func parseSeverity(s string) GateSeverity {
	switch s {
	case "critical":
		return SeverityCritical
	case "advisory":
		return SeverityAdvisory
	default:
		return SeverityRequired
	}
}

// BuildPipeline constructs a gate pipeline from configuration. Gates with a
// negative limit are left out.
func BuildPipeline(cfg config.GateConfig) *Pipeline {
	p := NewPipeline()
	if cfg.MaxCycles >= 0 {
		p.AddGate(NewCycleGate(cfg.MaxCycles, parseSeverity(cfg.CycleSeverity)))
	}
	if cfg.MaxUpwardEdges >= 0 {
		p.AddGate(NewLayeringGate(cfg.MaxUpwardEdges, parseSeverity(cfg.LayeringSeverity)))
	}
	if cfg.MaxSkipped >= 0 {
		p.AddGate(NewSkipGate(cfg.MaxSkipped, parseSeverity(cfg.SkipSeverity)))
	}
	if cfg.MaxOtherShare >= 0 {
		p.AddGate(NewOtherShareGate(cfg.MaxOtherShare, parseSeverity(cfg.OtherSeverity)))
	}
	return p
}

// FormatReport returns a human-readable quality gate report.
func FormatReport(result *PipelineResult) string {
	var b strings.Builder
	b.WriteString("Quality gates:\n")

	for _, gr := range result.Gates {
		icon := "ok  "
		switch gr.Status {
		case GateFailed:
			icon = "FAIL"
		case GateSkipped:
			icon = "skip"
		case GateWarning:
			icon = "warn"
		}
		fmt.Fprintf(&b, "  [%s] %-12s %-9s %s\n", icon, gr.Name, gr.Severity, gr.Message)
		for _, d := range gr.Details {
			fmt.Fprintf(&b, "         %s\n", d)
		}
	}

	status := "PASSED"
	if !result.Passed() {
		status = "FAILED"
	}
	fmt.Fprintf(&b, "Result: %s (%s)\n", status, result.Summary)
	return b.String()
}
