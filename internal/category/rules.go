package category

import (
	"path/filepath"
	"strings"
)

// Rule is one entry of an ordered, first-match-wins rule table.
type Rule struct {
	// Name describes the predicate for listings.
	Name     string
	Category Category
	match    func(s string) bool
}

// Matches reports whether the rule's predicate holds for s.
func (r Rule) Matches(s string) bool {
	return r.match(s)
}

func containsAny(needles ...string) func(string) bool {
	return func(s string) bool {
		for _, n := range needles {
			if strings.Contains(s, n) {
				return true
			}
		}
		return false
	}
}

func rule(c Category, needles ...string) Rule {
	return Rule{
		Name:     "contains " + strings.Join(quoteAll(needles), " | "),
		Category: c,
		match:    containsAny(needles...),
	}
}

func quoteAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = `"` + s + `"`
	}
	return out
}

// pathRules is evaluated top to bottom. The order is load-bearing:
// a path under domain/entities is types even if it also contains "review".
var pathRules = []Rule{
	rule(Types, "/domain/entities/"),
	rule(CoreInterfaces, "/domain/interfaces/"),
	rule(CoreServices, "/domain/services/"),
	rule(Analysis, "/tree_sitter/"),
	rule(MessagingInterface, "/mcp/"),
	rule(CLI, "/cli/"),
	rule(Observability, "/metrics/"),
	rule(Security, "scan.rs", "security_"),
	rule(Analysis, "review", "analysis.rs"),
	rule(Core, "config.rs", "git.rs", "devops.rs", "context.rs"),
}

// referenceRules maps reference text to a target category. It is keyed on
// reference text rather than paths and deliberately differs from pathRules:
// interface and service references both land in core, and anything
// unmatched is dropped instead of falling back to other.
var referenceRules = []Rule{
	rule(Types, "domain::entities", "gitai_types"),
	rule(Core, "domain::interfaces", "domain::services"),
	rule(Analysis, "tree_sitter"),
	rule(MessagingInterface, "mcp"),
	rule(Security, "scan", "security"),
	rule(Observability, "metrics"),
	rule(CLI, "cli"),
}

// Classify maps a file path relative to the scan root to exactly one
// category. It never fails: empty or unmatched paths are Other.
func Classify(path string) Category {
	p := normalize(path)
	for _, r := range pathRules {
		if r.match(p) {
			return r.Category
		}
	}
	return Other
}

// Target resolves the category a raw reference points at. ok is false when
// no rule matches and the reference should be dropped.
func Target(ref string) (c Category, ok bool) {
	for _, r := range referenceRules {
		if r.match(ref) {
			return r.Category, true
		}
	}
	return "", false
}

// PathRules returns the ordered path classification table.
func PathRules() []Rule {
	return append([]Rule(nil), pathRules...)
}

// ReferenceRules returns the ordered reference resolution table.
func ReferenceRules() []Rule {
	return append([]Rule(nil), referenceRules...)
}

// normalize converts separators to slashes and anchors the path with a
// leading slash so directory predicates also match the first segment.
func normalize(path string) string {
	p := filepath.ToSlash(path)
	p = strings.ReplaceAll(p, `\`, "/")
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}
