package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/efebarandurmaz/layermap/internal/category"
	"github.com/efebarandurmaz/layermap/internal/migration"
)

// DefaultPreviewLimit caps how many files are listed per category.
const DefaultPreviewLimit = 10

// RenderConsole writes the human-readable report: files grouped by category,
// cross-category dependency counts and the advisory migration order.
func RenderConsole(w io.Writer, r *Report, plan *migration.Plan, previewLimit int) error {
	if previewLimit <= 0 {
		previewLimit = DefaultPreviewLimit
	}
	cw := &consoleWriter{w: w}

	cw.printf("\n=== Module Categories ===\n")
	grouped := make(map[category.Category][]string)
	for path, c := range r.ModuleCategories {
		grouped[c] = append(grouped[c], path)
	}
	for _, c := range sortedKeys(grouped) {
		files := grouped[c]
		sort.Strings(files)
		cw.printf("\n%s:\n", c)
		for i, f := range files {
			if i == previewLimit {
				break
			}
			cw.printf("  - %s\n", f)
		}
		if len(files) > previewLimit {
			cw.printf("  ... and %d more\n", len(files)-previewLimit)
		}
	}

	cw.printf("\n\n=== Cross-Category Dependencies ===\n")
	for _, src := range sortedKeys(r.Dependencies) {
		targets := r.Dependencies[src]
		var lines []string
		for _, tgt := range sortedKeys(targets) {
			refs := targets[tgt]
			if tgt == src || len(refs) == 0 {
				continue
			}
			lines = append(lines, fmt.Sprintf("  - %s: %d imports\n", tgt, len(refs)))
		}
		if len(lines) == 0 {
			continue
		}
		cw.printf("\n%s depends on:\n", src)
		for _, l := range lines {
			cw.printf("%s", l)
		}
	}

	if len(r.Skipped) > 0 {
		cw.printf("\n\n=== Skipped Files ===\n")
		for _, s := range r.Skipped {
			cw.printf("  - %s: %s\n", s.Path, s.Reason)
		}
	}

	cw.printf("\n=== Suggested Migration Order ===\n\n")
	if cw.err != nil {
		return cw.err
	}
	return plan.Format(w)
}

type consoleWriter struct {
	w   io.Writer
	err error
}

func (c *consoleWriter) printf(format string, args ...any) {
	if c.err != nil {
		return
	}
	_, c.err = fmt.Fprintf(c.w, format, args...)
}

func sortedKeys[V any](m map[category.Category]V) []category.Category {
	keys := make([]category.Category, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
