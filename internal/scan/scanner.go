// Package scan walks a source tree, extracts module references from each
// file and aggregates them into a category dependency graph.
package scan

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/efebarandurmaz/layermap/internal/category"
	"github.com/efebarandurmaz/layermap/internal/depgraph"
	"github.com/efebarandurmaz/layermap/internal/extract"
	"github.com/efebarandurmaz/layermap/internal/metrics"
	"github.com/efebarandurmaz/layermap/internal/observability"
)

// Options configures a scan.
type Options struct {
	// Extensions selects files by extension, e.g. ".rs".
	Extensions []string
	// Exclude skips any relative path containing one of these substrings.
	Exclude []string
	// Workers is the number of files processed concurrently. Values below 1 mean 1.
	Workers int
	// RespectGitignore skips paths matched by the root .gitignore.
	RespectGitignore bool
	// MaxFileSize skips files larger than this many bytes. Zero disables the limit.
	MaxFileSize int64

	Logger  *slog.Logger
	Metrics *observability.ScanMetrics
	Audit   *observability.AuditLogger
	// ScanID identifies the run in audit events; generated when empty.
	ScanID string
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Extensions:  []string{".rs"},
		Exclude:     []string{"target", "src.backup"},
		Workers:     1,
		MaxFileSize: 1 << 20,
	}
}

func (o Options) withDefaults() Options {
	if len(o.Extensions) == 0 {
		o.Extensions = DefaultOptions().Extensions
	}
	if o.Workers < 1 {
		o.Workers = 1
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Metrics == nil {
		o.Metrics = observability.Metrics()
	}
	if o.Audit == nil {
		o.Audit = observability.Audit()
	}
	if o.ScanID == "" {
		o.ScanID = uuid.NewString()
	}
	return o
}

// SourceFile is one categorized file.
type SourceFile struct {
	Path     string            `json:"path"`
	Category category.Category `json:"category"`
}

// Skip records a file the scan could not use.
type Skip struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

func newSkip(path string, err error) Skip {
	return Skip{Path: path, Reason: err.Error(), Err: err}
}

// Result is the outcome of a scan.
type Result struct {
	Root    string
	ScanID  string
	Files   []SourceFile // sorted by path
	Skipped []Skip       // sorted by path
	Graph   *depgraph.Graph
	Dropped int
	Summary *metrics.ScanSummary
}

// Categories maps every scanned relative path to its category.
func (r *Result) Categories() map[string]category.Category {
	out := make(map[string]category.Category, len(r.Files))
	for _, f := range r.Files {
		out[f.Path] = f.Category
	}
	return out
}

// Scanner runs scans with fixed options.
type Scanner struct {
	opts Options
}

// New creates a scanner. Zero-valued options fall back to defaults.
func New(opts Options) *Scanner {
	return &Scanner{opts: opts.withDefaults()}
}

type fileResult struct {
	index     int
	file      SourceFile
	skip      *Skip
	partial   *depgraph.Aggregator
	size      int64
	extracted int
	kept      int
	dropped   int
}

// Run scans root. It fails fast with ErrInvalidRoot before touching any
// file; every per-file failure becomes a Skip and the scan continues.
func (s *Scanner) Run(ctx context.Context, root string) (*Result, error) {
	start := time.Now()
	opts := s.opts
	log := opts.Logger

	ctx, span := observability.StartScanSpan(ctx, root, opts.Workers)
	defer span.End()

	abs, err := ValidateRoot(root)
	if err != nil {
		observability.RecordError(span, err)
		opts.Metrics.RecordScan(time.Since(start), err)
		opts.Audit.LogScanError(ctx, opts.ScanID, root, err)
		return nil, err
	}

	opts.Audit.LogScanStart(ctx, opts.ScanID, abs, opts.Workers)
	log.Info("scan started", "root", abs, "workers", opts.Workers, "scan_id", opts.ScanID)

	summary := metrics.New(abs, opts.Workers)

	walkStart := time.Now()
	walkCtx, walkSpan := observability.StartWalkSpan(ctx, abs)
	files, walkSkips, err := discover(walkCtx, abs, opts)
	if err != nil {
		observability.RecordError(walkSpan, err)
		walkSpan.End()
		observability.RecordError(span, err)
		opts.Metrics.RecordScan(time.Since(start), err)
		return nil, fmt.Errorf("walk %s: %w", abs, err)
	}
	observability.RecordWalkResult(walkSpan, len(files))
	walkSpan.End()
	summary.AddStage("walk", time.Since(walkStart))
	summary.Files.Discovered = len(files)
	log.Debug("discovered files", "count", len(files))

	res := &Result{
		Root:   abs,
		ScanID: opts.ScanID,
		Files:  make([]SourceFile, 0, len(files)),
	}
	for _, sk := range walkSkips {
		s.recordSkip(ctx, res, summary, sk)
	}

	agg := depgraph.NewAggregator()
	extractStart := time.Now()
	for r := range s.process(ctx, files) {
		if r.skip != nil {
			s.recordSkip(ctx, res, summary, *r.skip)
			continue
		}
		agg.Merge(r.partial)
		res.Files = append(res.Files, r.file)
		summary.AddFile(r.size, r.extracted, r.kept, r.dropped)
		opts.Metrics.RecordFile(r.kept, r.dropped)
	}
	if err := ctx.Err(); err != nil {
		observability.RecordError(span, err)
		opts.Metrics.RecordScan(time.Since(start), err)
		return nil, fmt.Errorf("scan %s: %w", abs, err)
	}
	summary.AddStage("extract", time.Since(extractStart))

	sort.Slice(res.Files, func(i, j int) bool { return res.Files[i].Path < res.Files[j].Path })
	sort.Slice(res.Skipped, func(i, j int) bool { return res.Skipped[i].Path < res.Skipped[j].Path })

	res.Graph = agg.Graph()
	res.Dropped = agg.Dropped()
	summary.CollectGraph(res.Graph)
	summary.Finish()
	res.Summary = summary

	duration := time.Since(start)
	observability.RecordScanResult(span, len(res.Files), len(res.Skipped), summary.References.Kept, res.Dropped, duration)
	opts.Metrics.RecordScan(duration, nil)
	opts.Audit.LogScanComplete(ctx, opts.ScanID, duration, len(res.Files), len(res.Skipped), len(res.Graph.Edges()), summary.Graph.Fingerprint)
	log.Info("scan complete",
		"files", len(res.Files),
		"skipped", len(res.Skipped),
		"edges", summary.Graph.Edges,
		"dropped_refs", res.Dropped,
		"duration", duration.Round(time.Millisecond),
	)
	return res, nil
}

func (s *Scanner) recordSkip(ctx context.Context, res *Result, summary *metrics.ScanSummary, sk Skip) {
	s.opts.Logger.Warn("skipping file", "path", sk.Path, "error", sk.Err)
	s.opts.Metrics.RecordSkip()
	s.opts.Audit.LogFileSkip(ctx, s.opts.ScanID, sk.Path, sk.Err)
	summary.AddSkip(sk.Path, sk.Err)
	res.Skipped = append(res.Skipped, sk)
}

// process fans files out to a bounded worker pool. Each file yields exactly
// one result unless ctx is cancelled first. The channel closes when all
// workers are done.
func (s *Scanner) process(ctx context.Context, files []fileEntry) <-chan fileResult {
	numWorkers := s.opts.Workers
	if numWorkers > len(files) {
		numWorkers = len(files)
	}

	work := make(chan int, len(files))
	results := make(chan fileResult, len(files))
	for i := range files {
		work <- i
	}
	close(work)

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range work {
				if ctx.Err() != nil {
					return
				}
				s.opts.Metrics.ActiveWorkers.Inc()
				results <- s.processFile(idx, files[idx])
				s.opts.Metrics.ActiveWorkers.Dec()
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()
	return results
}

func (s *Scanner) processFile(idx int, f fileEntry) fileResult {
	fail := func(err error) fileResult {
		sk := newSkip(f.Path, &FileReadError{Path: f.Path, Err: err})
		return fileResult{index: idx, skip: &sk}
	}

	if s.opts.MaxFileSize > 0 && f.Size > s.opts.MaxFileSize {
		return fail(fmt.Errorf("%w: %d bytes", ErrFileTooLarge, f.Size))
	}

	data, err := os.ReadFile(f.AbsPath)
	if err != nil {
		return fail(err)
	}
	text, err := extract.Decode(data)
	if err != nil {
		return fail(err)
	}

	refs := extract.Extract(text)
	cat := category.Classify(f.Path)
	partial := depgraph.NewAggregator()
	kept, dropped := partial.Add(cat, refs)

	return fileResult{
		index:     idx,
		file:      SourceFile{Path: f.Path, Category: cat},
		partial:   partial,
		size:      int64(len(data)),
		extracted: len(refs),
		kept:      kept,
		dropped:   dropped,
	}
}
