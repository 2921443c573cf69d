package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/efebarandurmaz/layermap/internal/category"
)

// DiffType indicates the kind of change.
type DiffType string

const (
	DiffAdded    DiffType = "added"
	DiffRemoved  DiffType = "removed"
	DiffModified DiffType = "modified"
)

// Diff is the difference between two reports of the same tree.
type Diff struct {
	OldFingerprint string      `json:"old_fingerprint"`
	NewFingerprint string      `json:"new_fingerprint"`
	Files          []FileDiff  `json:"files"`
	Edges          []EdgeDiff  `json:"edges"`
	Order          []OrderDiff `json:"order"`
	CyclesDelta    int         `json:"cycles_delta"`
	Summary        DiffSummary `json:"summary"`
}

// FileDiff is a file that appeared, disappeared or changed category.
type FileDiff struct {
	Path        string            `json:"path"`
	Type        DiffType          `json:"type"`
	OldCategory category.Category `json:"old_category,omitempty"`
	NewCategory category.Category `json:"new_category,omitempty"`
}

// EdgeDiff is a category edge whose reference set changed.
type EdgeDiff struct {
	Source  category.Category `json:"source"`
	Target  category.Category `json:"target"`
	Type    DiffType          `json:"type"`
	Added   []string          `json:"added,omitempty"`
	Removed []string          `json:"removed,omitempty"`
}

// OrderDiff is a category whose migration position moved. A zero position
// means the category is absent from that side's order.
type OrderDiff struct {
	Category    category.Category `json:"category"`
	OldPosition int               `json:"old_position"`
	NewPosition int               `json:"new_position"`
}

// DiffSummary provides aggregate counts.
type DiffSummary struct {
	FilesAdded    int  `json:"files_added"`
	FilesRemoved  int  `json:"files_removed"`
	FilesMoved    int  `json:"files_moved"`
	EdgesAdded    int  `json:"edges_added"`
	EdgesRemoved  int  `json:"edges_removed"`
	EdgesModified int  `json:"edges_modified"`
	OrderChanged  bool `json:"order_changed"`
}

// Empty reports whether the two reports describe the same graph and files.
func (d *Diff) Empty() bool {
	return len(d.Files) == 0 && len(d.Edges) == 0 && len(d.Order) == 0 && d.CyclesDelta == 0
}

// Compare computes the differences from old to new.
func Compare(old, new *Report) *Diff {
	d := &Diff{
		OldFingerprint: old.Fingerprint,
		NewFingerprint: new.Fingerprint,
		Files:          diffFiles(old.ModuleCategories, new.ModuleCategories),
		Edges:          diffEdges(old.Dependencies, new.Dependencies),
		Order:          diffOrder(old, new),
		CyclesDelta:    len(new.Cycles) - len(old.Cycles),
	}
	d.Summary = summarize(d)
	return d
}

func diffFiles(oldFiles, newFiles map[string]category.Category) []FileDiff {
	var diffs []FileDiff
	for path, oc := range oldFiles {
		nc, ok := newFiles[path]
		switch {
		case !ok:
			diffs = append(diffs, FileDiff{Path: path, Type: DiffRemoved, OldCategory: oc})
		case nc != oc:
			diffs = append(diffs, FileDiff{Path: path, Type: DiffModified, OldCategory: oc, NewCategory: nc})
		}
	}
	for path, nc := range newFiles {
		if _, ok := oldFiles[path]; !ok {
			diffs = append(diffs, FileDiff{Path: path, Type: DiffAdded, NewCategory: nc})
		}
	}
	sort.Slice(diffs, func(i, j int) bool { return diffs[i].Path < diffs[j].Path })
	return diffs
}

type edgeKey struct{ source, target category.Category }

func flatten(deps map[category.Category]map[category.Category][]string) map[edgeKey][]string {
	out := make(map[edgeKey][]string)
	for s, targets := range deps {
		for t, refs := range targets {
			out[edgeKey{s, t}] = refs
		}
	}
	return out
}

func diffEdges(oldDeps, newDeps map[category.Category]map[category.Category][]string) []EdgeDiff {
	oldEdges, newEdges := flatten(oldDeps), flatten(newDeps)

	var diffs []EdgeDiff
	for k, oldRefs := range oldEdges {
		newRefs, ok := newEdges[k]
		if !ok {
			diffs = append(diffs, EdgeDiff{Source: k.source, Target: k.target, Type: DiffRemoved, Removed: oldRefs})
			continue
		}
		added, removed := setDelta(oldRefs, newRefs)
		if len(added) > 0 || len(removed) > 0 {
			diffs = append(diffs, EdgeDiff{Source: k.source, Target: k.target, Type: DiffModified, Added: added, Removed: removed})
		}
	}
	for k, newRefs := range newEdges {
		if _, ok := oldEdges[k]; !ok {
			diffs = append(diffs, EdgeDiff{Source: k.source, Target: k.target, Type: DiffAdded, Added: newRefs})
		}
	}
	sort.Slice(diffs, func(i, j int) bool {
		if diffs[i].Source != diffs[j].Source {
			return diffs[i].Source < diffs[j].Source
		}
		return diffs[i].Target < diffs[j].Target
	})
	return diffs
}

// setDelta returns the sorted elements only in b and only in a.
func setDelta(a, b []string) (added, removed []string) {
	inA := make(map[string]bool, len(a))
	for _, s := range a {
		inA[s] = true
	}
	inB := make(map[string]bool, len(b))
	for _, s := range b {
		inB[s] = true
		if !inA[s] {
			added = append(added, s)
		}
	}
	for _, s := range a {
		if !inB[s] {
			removed = append(removed, s)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}

func diffOrder(old, new *Report) []OrderDiff {
	positions := func(r *Report) map[category.Category]int {
		m := make(map[category.Category]int, len(r.MigrationOrder))
		for i, s := range r.MigrationOrder {
			m[s.Category] = i + 1
		}
		return m
	}
	oldPos, newPos := positions(old), positions(new)

	seen := make(map[category.Category]bool)
	var diffs []OrderDiff
	for _, m := range []map[category.Category]int{oldPos, newPos} {
		for c := range m {
			if seen[c] {
				continue
			}
			seen[c] = true
			if oldPos[c] != newPos[c] {
				diffs = append(diffs, OrderDiff{Category: c, OldPosition: oldPos[c], NewPosition: newPos[c]})
			}
		}
	}
	sort.Slice(diffs, func(i, j int) bool {
		ri, rj := category.Rank(diffs[i].Category), category.Rank(diffs[j].Category)
		if ri != rj {
			return ri < rj
		}
		return diffs[i].Category < diffs[j].Category
	})
	return diffs
}

func summarize(d *Diff) DiffSummary {
	s := DiffSummary{OrderChanged: len(d.Order) > 0}
	for _, f := range d.Files {
		switch f.Type {
		case DiffAdded:
			s.FilesAdded++
		case DiffRemoved:
			s.FilesRemoved++
		case DiffModified:
			s.FilesMoved++
		}
	}
	for _, e := range d.Edges {
		switch e.Type {
		case DiffAdded:
			s.EdgesAdded++
		case DiffRemoved:
			s.EdgesRemoved++
		case DiffModified:
			s.EdgesModified++
		}
	}
	return s
}

// FormatDiff returns a human-readable rendering of the diff.
func FormatDiff(d *Diff) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Fingerprint: %s -> %s\n", short(d.OldFingerprint), short(d.NewFingerprint))
	if d.Empty() {
		sb.WriteString("No changes\n")
		return sb.String()
	}

	fmt.Fprintf(&sb, "Files: +%d -%d ~%d\n", d.Summary.FilesAdded, d.Summary.FilesRemoved, d.Summary.FilesMoved)
	fmt.Fprintf(&sb, "Edges: +%d -%d ~%d\n", d.Summary.EdgesAdded, d.Summary.EdgesRemoved, d.Summary.EdgesModified)
	if d.CyclesDelta != 0 {
		fmt.Fprintf(&sb, "Cycles: %+d\n", d.CyclesDelta)
	}

	if len(d.Files) > 0 {
		sb.WriteString("\nFiles:\n")
		for _, f := range d.Files {
			switch f.Type {
			case DiffAdded:
				fmt.Fprintf(&sb, "  + %s (%s)\n", f.Path, f.NewCategory)
			case DiffRemoved:
				fmt.Fprintf(&sb, "  - %s (%s)\n", f.Path, f.OldCategory)
			default:
				fmt.Fprintf(&sb, "  ~ %s (%s -> %s)\n", f.Path, f.OldCategory, f.NewCategory)
			}
		}
	}

	if len(d.Edges) > 0 {
		sb.WriteString("\nEdges:\n")
		for _, e := range d.Edges {
			icon := "~"
			switch e.Type {
			case DiffAdded:
				icon = "+"
			case DiffRemoved:
				icon = "-"
			}
			fmt.Fprintf(&sb, "  %s %s -> %s", icon, e.Source, e.Target)
			if e.Type == DiffModified {
				fmt.Fprintf(&sb, " (+%d/-%d refs)", len(e.Added), len(e.Removed))
			}
			sb.WriteString("\n")
		}
	}

	if len(d.Order) > 0 {
		sb.WriteString("\nMigration order:\n")
		for _, o := range d.Order {
			fmt.Fprintf(&sb, "  %s: %s -> %s\n", o.Category, position(o.OldPosition), position(o.NewPosition))
		}
	}
	return sb.String()
}

func position(p int) string {
	if p == 0 {
		return "absent"
	}
	return fmt.Sprintf("%d", p)
}

func short(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	if fp == "" {
		return "-"
	}
	return fp
}
