// Package qualitygate evaluates an analysis report against configured limits
// so CI can fail a build that introduces cycles or layering violations.
package qualitygate

import (
	"fmt"
	"time"

	"github.com/efebarandurmaz/layermap/internal/report"
)

// GateStatus represents the result of a quality gate check.
type GateStatus string

const (
	GatePassed  GateStatus = "passed"
	GateFailed  GateStatus = "failed"
	GateSkipped GateStatus = "skipped"
	GateWarning GateStatus = "warning"
)

// GateSeverity indicates how critical a gate failure is.
type GateSeverity string

const (
	SeverityCritical GateSeverity = "critical" // later gates are skipped
	SeverityRequired GateSeverity = "required" // fails the run
	SeverityAdvisory GateSeverity = "advisory" // reported as a warning
)

// GateResult captures the outcome of a single gate evaluation.
type GateResult struct {
	Name     string        `json:"name"`
	Status   GateStatus    `json:"status"`
	Severity GateSeverity  `json:"severity"`
	Value    float64       `json:"value"`
	Limit    float64       `json:"limit"`
	Message  string        `json:"message"`
	Details  []string      `json:"details,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Gate is the interface all quality gates implement.
type Gate interface {
	Name() string
	Severity() GateSeverity
	Evaluate(r *report.Report) (*GateResult, error)
}

// PipelineResult captures the complete gate pipeline evaluation.
type PipelineResult struct {
	Status       GateStatus    `json:"status"`
	Gates        []GateResult  `json:"gates"`
	PassedCount  int           `json:"passed_count"`
	FailedCount  int           `json:"failed_count"`
	SkippedCount int           `json:"skipped_count"`
	WarningCount int           `json:"warning_count"`
	Duration     time.Duration `json:"duration"`
	Summary      string        `json:"summary"`
}

// Passed reports whether no critical or required gate failed.
func (r *PipelineResult) Passed() bool {
	return r.Status != GateFailed
}

// Pipeline runs gates in order.
type Pipeline struct {
	gates []Gate
}

// NewPipeline creates a new quality gate pipeline.
func NewPipeline(gates ...Gate) *Pipeline {
	return &Pipeline{gates: gates}
}

// AddGate appends a gate to the pipeline.
func (p *Pipeline) AddGate(g Gate) {
	p.gates = append(p.gates, g)
}

// Len returns the number of gates.
func (p *Pipeline) Len() int {
	return len(p.gates)
}

// Run evaluates all gates against r. A failed advisory gate is downgraded to
// a warning; a failed critical gate skips the remaining gates.
func (p *Pipeline) Run(r *report.Report) *PipelineResult {
	start := time.Now()
	result := &PipelineResult{Status: GatePassed}

	aborted := false
	for _, gate := range p.gates {
		if aborted {
			result.Gates = append(result.Gates, GateResult{
				Name:     gate.Name(),
				Status:   GateSkipped,
				Severity: gate.Severity(),
				Message:  "Skipped after critical gate failure",
			})
			result.SkippedCount++
			continue
		}

		gateStart := time.Now()
		gr, err := gate.Evaluate(r)
		if err != nil {
			gr = &GateResult{
				Name:     gate.Name(),
				Status:   GateFailed,
				Severity: gate.Severity(),
				Message:  fmt.Sprintf("Gate evaluation error: %v", err),
			}
		}
		if gr.Status == GateFailed && gr.Severity == SeverityAdvisory {
			gr.Status = GateWarning
		}
		gr.Duration = time.Since(gateStart)
		result.Gates = append(result.Gates, *gr)

		switch gr.Status {
		case GatePassed:
			result.PassedCount++
		case GateFailed:
			result.FailedCount++
			result.Status = GateFailed
			if gr.Severity == SeverityCritical {
				aborted = true
			}
		case GateWarning:
			result.WarningCount++
		case GateSkipped:
			result.SkippedCount++
		}
	}

	result.Duration = time.Since(start)
	result.Summary = fmt.Sprintf("%d passed, %d failed, %d warnings, %d skipped",
		result.PassedCount, result.FailedCount, result.WarningCount, result.SkippedCount)
	return result
}
