package qualitygate

import (
	"fmt"
	"sort"

	"github.com/efebarandurmaz/layermap/internal/category"
	"github.com/efebarandurmaz/layermap/internal/report"
)

// CycleGate limits the number of dependency cycles.
type CycleGate struct {
	MaxCycles int
	severity  GateSeverity
}

func NewCycleGate(maxCycles int, severity GateSeverity) *CycleGate {
	return &CycleGate{MaxCycles: maxCycles, severity: severity}
}

func (g *CycleGate) Name() string           { return "cycles" }
func (g *CycleGate) Severity() GateSeverity { return g.severity }
func (g *CycleGate) Evaluate(r *report.Report) (*GateResult, error) {
	n := len(r.Cycles)
	res := &GateResult{
		Name:     g.Name(),
		Severity: g.severity,
		Value:    float64(n),
		Limit:    float64(g.MaxCycles),
	}
	for _, c := range r.Cycles {
		res.Details = append(res.Details, formatCycle(c))
	}
	if n <= g.MaxCycles {
		res.Status = GatePassed
		res.Message = fmt.Sprintf("%d cycles within limit %d", n, g.MaxCycles)
	} else {
		res.Status = GateFailed
		res.Message = fmt.Sprintf("%d cycles exceed limit %d", n, g.MaxCycles)
	}
	return res, nil
}

func formatCycle(c []category.Category) string {
	s := ""
	for i, n := range c {
		if i > 0 {
			s += " -> "
		}
		s += string(n)
	}
	if len(c) > 0 {
		s += " -> " + string(c[0])
	}
	return s
}

// LayeringGate limits upward edges: a category referencing one that sits
// later in the layer order.
type LayeringGate struct {
	MaxUpward int
	severity  GateSeverity
}

func NewLayeringGate(maxUpward int, severity GateSeverity) *LayeringGate {
	return &LayeringGate{MaxUpward: maxUpward, severity: severity}
}

func (g *LayeringGate) Name() string           { return "layering" }
func (g *LayeringGate) Severity() GateSeverity { return g.severity }
func (g *LayeringGate) Evaluate(r *report.Report) (*GateResult, error) {
	upward := UpwardEdges(r)
	res := &GateResult{
		Name:     g.Name(),
		Severity: g.severity,
		Value:    float64(len(upward)),
		Limit:    float64(g.MaxUpward),
		Details:  upward,
	}
	if len(upward) <= g.MaxUpward {
		res.Status = GatePassed
		res.Message = fmt.Sprintf("%d upward edges within limit %d", len(upward), g.MaxUpward)
	} else {
		res.Status = GateFailed
		res.Message = fmt.Sprintf("%d upward edges exceed limit %d", len(upward), g.MaxUpward)
	}
	return res, nil
}

// UpwardEdges lists "source -> target" for every edge whose target ranks
// after its source. Self-edges are ignored.
func UpwardEdges(r *report.Report) []string {
	var out []string
	for s, targets := range r.Dependencies {
		for t := range targets {
			if s != t && category.Rank(t) > category.Rank(s) {
				out = append(out, fmt.Sprintf("%s -> %s", s, t))
			}
		}
	}
	sort.Strings(out)
	return out
}

// SkipGate limits the number of files the scan could not read.
type SkipGate struct {
	MaxSkipped int
	severity   GateSeverity
}

func NewSkipGate(maxSkipped int, severity GateSeverity) *SkipGate {
	return &SkipGate{MaxSkipped: maxSkipped, severity: severity}
}

func (g *SkipGate) Name() string           { return "skipped" }
func (g *SkipGate) Severity() GateSeverity { return g.severity }
func (g *SkipGate) Evaluate(r *report.Report) (*GateResult, error) {
	n := len(r.Skipped)
	res := &GateResult{
		Name:     g.Name(),
		Severity: g.severity,
		Value:    float64(n),
		Limit:    float64(g.MaxSkipped),
	}
	for _, s := range r.Skipped {
		res.Details = append(res.Details, fmt.Sprintf("%s: %s", s.Path, s.Reason))
	}
	if n <= g.MaxSkipped {
		res.Status = GatePassed
		res.Message = fmt.Sprintf("%d skipped files within limit %d", n, g.MaxSkipped)
	} else {
		res.Status = GateFailed
		res.Message = fmt.Sprintf("%d skipped files exceed limit %d", n, g.MaxSkipped)
	}
	return res, nil
}

// OtherShareGate limits the fraction of files that fell through to the
// other category, a sign the path rules no longer fit the tree.
type OtherShareGate struct {
	MaxShare float64
	severity GateSeverity
}

func NewOtherShareGate(maxShare float64, severity GateSeverity) *OtherShareGate {
	return &OtherShareGate{MaxShare: maxShare, severity: severity}
}

func (g *OtherShareGate) Name() string           { return "other_share" }
func (g *OtherShareGate) Severity() GateSeverity { return g.severity }
func (g *OtherShareGate) Evaluate(r *report.Report) (*GateResult, error) {
	res := &GateResult{
		Name:     g.Name(),
		Severity: g.severity,
		Limit:    g.MaxShare,
	}
	total := len(r.ModuleCategories)
	if total == 0 {
		res.Status = GateSkipped
		res.Message = "No files to evaluate"
		return res, nil
	}

	other := 0
	for _, c := range r.ModuleCategories {
		if c == category.Other {
			other++
		}
	}
	share := float64(other) / float64(total)
	res.Value = share

	if share <= g.MaxShare {
		res.Status = GatePassed
		res.Message = fmt.Sprintf("%.1f%% of files unclassified, limit %.1f%%", share*100, g.MaxShare*100)
	} else {
		res.Status = GateFailed
		res.Message = fmt.Sprintf("%.1f%% of files unclassified exceeds %.1f%% (%d/%d)",
			share*100, g.MaxShare*100, other, total)
	}
	return res, nil
}
