package scan

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// fileEntry is a discovered source file.
type fileEntry struct {
	Path    string // Relative to root, forward slashes
	AbsPath string
	Size    int64
}

// ValidateRoot resolves root to an absolute directory path.
func ValidateRoot(root string) (string, error) {
	if root == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidRoot)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidRoot, root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidRoot, root, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", ErrInvalidRoot, root)
	}
	return abs, nil
}

// Discover lists the source files under root that a scan would visit, as
// sorted slash-separated relative paths.
func Discover(root string, opts Options) ([]string, error) {
	abs, err := ValidateRoot(root)
	if err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	entries, _, err := discover(context.Background(), abs, opts)
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(entries))
	for i, e := range entries {
		paths[i] = e.Path
	}
	return paths, nil
}

// discover walks root and returns matching files plus unreadable entries.
// Symlinks are not followed.
func discover(ctx context.Context, root string, opts Options) ([]fileEntry, []Skip, error) {
	var gi *ignore.GitIgnore
	if opts.RespectGitignore {
		gi = loadGitignore(root)
	}

	exts := make(map[string]struct{}, len(opts.Extensions))
	for _, e := range opts.Extensions {
		exts[e] = struct{}{}
	}

	var results []fileEntry
	var skips []Skip

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if path == root {
			return err
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if err != nil {
			skips = append(skips, newSkip(rel, &FileReadError{Path: rel, Err: err}))
			return nil
		}

		if excluded(rel, opts.Exclude) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if gi != nil && gi.MatchesPath(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type()&os.ModeSymlink != 0 || !d.Type().IsRegular() {
			return nil
		}

		if _, ok := exts[filepath.Ext(d.Name())]; !ok {
			return nil
		}

		if gi != nil && gi.MatchesPath(rel) {
			return nil
		}

		var size int64
		if info, infoErr := d.Info(); infoErr == nil {
			size = info.Size()
		}
		results = append(results, fileEntry{Path: rel, AbsPath: path, Size: size})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Path < results[j].Path
	})
	return results, skips, nil
}

// excluded reports whether rel contains any exclusion substring.
func excluded(rel string, patterns []string) bool {
	for _, p := range patterns {
		if p != "" && strings.Contains(rel, p) {
			return true
		}
	}
	return false
}

func loadGitignore(root string) *ignore.GitIgnore {
	gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	return gi
}
