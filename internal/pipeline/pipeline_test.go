package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/efebarandurmaz/layermap/internal/category"
	"github.com/efebarandurmaz/layermap/internal/config"
	"github.com/efebarandurmaz/layermap/internal/depgraph"
	"github.com/efebarandurmaz/layermap/internal/graph"
	"github.com/efebarandurmaz/layermap/internal/observability"
	"github.com/efebarandurmaz/layermap/internal/report"
	"github.com/efebarandurmaz/layermap/internal/scan"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
}

var tree = map[string]string{
	"src/domain/entities/user.rs": "pub struct User;\n",
	"src/cli/main.rs":             "use crate::mcp::server;\nuse crate::domain::entities::User;\n",
	"src/mcp/server.rs":           "use crate::cli::Args;\n",
	"src/scan.rs":                 "use crate::scan::rules;\n",
}

func testOptions() Options {
	opts := FromConfig(config.Default())
	opts.Logger = observability.NewDiscardLogger()
	opts.Metrics = observability.NewScanMetrics()
	return opts
}

type failingRepo struct{}

func (failingRepo) StoreGraph(context.Context, string, *depgraph.Graph) error {
	return errors.New("connection refused")
}

func (failingRepo) LoadGraph(context.Context, string) (*depgraph.Graph, error) {
	return nil, graph.ErrNotFound
}

func (failingRepo) QueryDependents(context.Context, string, category.Category) ([]category.Category, error) {
	return nil, graph.ErrNotFound
}

func (failingRepo) Close(context.Context) error { return nil }

func TestFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Scan.Workers = 3
	cfg.Plan.IncludeUnobserved = true
	cfg.Graph.Project = "gitai"

	opts := FromConfig(cfg)
	if opts.Scan.Workers != 3 || !opts.Plan.IncludeUnobserved || opts.Project != "gitai" {
		t.Errorf("unexpected options %+v", opts)
	}
	if !reflect.DeepEqual(opts.Scan.Exclude, []string{"target", "src.backup"}) {
		t.Errorf("unexpected exclude %v", opts.Scan.Exclude)
	}
	if opts.Output != report.DefaultOutput || !opts.Write {
		t.Errorf("unexpected report options %q %v", opts.Output, opts.Write)
	}
}

func TestRun_WritesReport(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, tree)

	res, err := Run(context.Background(), root, testOptions())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := filepath.Join(res.Scan.Root, "tools", "dependency_analysis.json")
	if res.ReportPath != want {
		t.Errorf("expected report at %s, got %s", want, res.ReportPath)
	}
	loaded, err := report.Load(res.ReportPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Fingerprint != res.Scan.Graph.Fingerprint() {
		t.Error("written report does not match scan")
	}
	wantOrder := []category.Category{category.Security, category.Types, category.MessagingInterface, category.CLI}
	if got := res.Plan.Order(); !reflect.DeepEqual(got, wantOrder) {
		t.Errorf("expected order %v, got %v", wantOrder, got)
	}
	if len(res.Plan.Cycles) != 1 {
		t.Errorf("expected cli <-> messaging-interface cycle, got %v", res.Plan.Cycles)
	}
	if res.Stored {
		t.Error("nothing should be stored without a repository")
	}

	stages := map[string]bool{}
	for _, s := range res.Scan.Summary.Stages {
		stages[s.Name] = true
	}
	for _, name := range []string{"walk", "extract", "plan", "report"} {
		if !stages[name] {
			t.Errorf("missing stage %q", name)
		}
	}
}

func TestRun_NoWrite(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, tree)

	opts := testOptions()
	opts.Write = false
	res, err := Run(context.Background(), root, opts)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.ReportPath != "" {
		t.Errorf("expected no report path, got %s", res.ReportPath)
	}
	if _, err := os.Stat(filepath.Join(root, "tools")); !os.IsNotExist(err) {
		t.Error("expected no tools directory")
	}
	if res.Report == nil || len(res.Report.ModuleCategories) != len(tree) {
		t.Error("expected report to be built in memory")
	}
}

func TestRun_InvalidRoot(t *testing.T) {
	_, err := Run(context.Background(), filepath.Join(t.TempDir(), "missing"), testOptions())
	if !errors.Is(err, scan.ErrInvalidRoot) {
		t.Errorf("expected ErrInvalidRoot, got %v", err)
	}
}

func TestRun_StoresGraph(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, tree)

	repo := graph.NewMemoryRepository()
	opts := testOptions()
	opts.Write = false
	opts.Repository = repo
	opts.Project = "gitai"

	res, err := Run(context.Background(), root, opts)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.Stored {
		t.Error("expected graph to be stored")
	}
	stored, err := repo.LoadGraph(context.Background(), "gitai")
	if err != nil {
		t.Fatalf("LoadGraph failed: %v", err)
	}
	if stored.Fingerprint() != res.Scan.Graph.Fingerprint() {
		t.Error("stored graph differs from scanned graph")
	}
	if opts.Metrics.GraphStoresTotal.Value() != 1 {
		t.Errorf("expected 1 graph store, got %f", opts.Metrics.GraphStoresTotal.Value())
	}
}

func TestRun_StoreFailure(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, tree)

	opts := testOptions()
	opts.Write = false
	opts.Repository = failingRepo{}

	res, err := Run(context.Background(), root, opts)
	if err == nil {
		t.Fatal("expected store error")
	}
	if res == nil || res.Report == nil {
		t.Error("expected partial result with report")
	}
	if opts.Metrics.GraphStoreFailures.Value() != 1 {
		t.Errorf("expected 1 store failure, got %f", opts.Metrics.GraphStoreFailures.Value())
	}
}

func TestStoreGraph_NoRepository(t *testing.T) {
	err := StoreGraph(context.Background(), testOptions(), &scan.Result{Graph: depgraph.NewGraph()})
	if err == nil {
		t.Error("expected error without repository")
	}
}

func TestRun_AuditsWrittenSize(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, tree)

	auditPath := filepath.Join(t.TempDir(), "audit.jsonl")
	audit, err := observability.NewAuditLogger(&observability.AuditConfig{Enabled: true, OutputPath: auditPath})
	if err != nil {
		t.Fatalf("NewAuditLogger failed: %v", err)
	}
	defer audit.Close()

	opts := testOptions()
	opts.Audit = audit
	res, err := Run(context.Background(), root, opts)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	info, err := os.Stat(res.ReportPath)
	if err != nil {
		t.Fatalf("stat report: %v", err)
	}

	data, err := os.ReadFile(auditPath)
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	var found bool
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var ev observability.AuditEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("bad audit line %q: %v", line, err)
		}
		if ev.EventType != observability.AuditEventReportWrite {
			continue
		}
		found = true
		if size, _ := ev.Details["size"].(float64); int64(size) != info.Size() {
			t.Errorf("expected audited size %d, got %v", info.Size(), ev.Details["size"])
		}
	}
	if !found {
		t.Error("expected a report.write audit event")
	}
}
