package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/vbsb/internal/history"
	"github.com/starford/vbsb/internal/models"
	"github.com/starford/vbsb/internal/pipeline"
	"github.com/starford/vbsb/internal/report"
	"github.com/starford/vbsb/internal/storage"
	"github.com/starford/vbsb/internal/testutil"
)

// failNamed fails units whose base name is in the set.
type failNamed map[string]bool

func (f failNamed) Validate(_ context.Context, u models.Unit) (models.ValidationResult, error) {
	res := models.ValidationResult{Path: u.Path, RelativePath: filepath.Base(u.Path)}
	if f[filepath.Base(u.Path)] {
		res.IsError = true
		res.Kind = models.KindCompilation
		res.Line, res.Column = 2, 5
		res.Message = "Expected end of statement"
	}
	return res, nil
}

func testServer(t *testing.T, failing failNamed) (*Server, string, string) {
	t.Helper()

	dir := testutil.TestTree(t, map[string]string{"a.vbs": "A\n", "^h.vbs": "H\n", "$f.vbs": "F\n", "a.spec.vbs": "S\n"})
	out := filepath.Join(t.TempDir(), "bundle.vbs")

	fs, err := storage.NewFS(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	db := testutil.TestDB(t)

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	p := pipeline.New(pipeline.Config{Output: out}, failing,
		pipeline.WithLister(fs),
		pipeline.WithReporter(report.New(io.Discard)),
		pipeline.WithObserver(history.NewRecorder(db, logger)),
		pipeline.WithLogger(logger))

	return New(p, fs, db), fs.Root(), out
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so handlers are invoked
	// directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_units":
		result, err = srv.listUnits(ctx, req)
	case "validate_unit":
		result, err = srv.validateUnit(ctx, req)
	case "build":
		result, err = srv.build(ctx, req)
	case "build_history":
		result, err = srv.buildHistory(ctx, req)
	case "get_conventions":
		result, err = srv.getConventions(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestListUnits(t *testing.T) {
	srv, _, _ := testServer(t, nil)

	r := callTool(t, srv, "list_units", map[string]any{})
	var units []unitEntry
	if err := json.Unmarshal([]byte(resultText(r)), &units); err != nil {
		t.Fatalf("decode: %v (%s)", err, resultText(r))
	}
	if len(units) != 4 {
		t.Fatalf("units = %+v", units)
	}
	got := map[string]unitEntry{}
	for _, u := range units {
		got[u.Path] = u
	}
	if got["^h.vbs"].Category != "header" || got["$f.vbs"].Category != "footer" || !got["a.spec.vbs"].Test {
		t.Errorf("categories = %+v", got)
	}
}

func TestBuildWritesBundle(t *testing.T) {
	srv, _, out := testServer(t, nil)

	r := callTool(t, srv, "build", map[string]any{})
	if r.IsError {
		t.Fatalf("build error: %s", resultText(r))
	}
	var res models.CycleResult
	if err := json.Unmarshal([]byte(resultText(r)), &res); err != nil {
		t.Fatal(err)
	}
	if !res.Bundled || res.Units != 4 {
		t.Errorf("result = %+v", res)
	}
	got, _ := os.ReadFile(out)
	if string(got) != "H\nA\nF\n" {
		t.Errorf("bundle = %q", got)
	}
}

func TestBuildDryRun(t *testing.T) {
	srv, _, out := testServer(t, nil)

	r := callTool(t, srv, "build", map[string]any{"write": false})
	if !strings.Contains(resultText(r), models.SkipDryRun) {
		t.Errorf("result = %s", resultText(r))
	}
	if _, err := os.Stat(out); err == nil {
		t.Error("dry run must not write the bundle")
	}
}

func TestValidateUnit(t *testing.T) {
	srv, dir, _ := testServer(t, failNamed{"a.vbs": true})

	r := callTool(t, srv, "validate_unit", map[string]any{"path": "^h.vbs"})
	if resultText(r) != "ok: ^h.vbs" {
		t.Errorf("validate ok = %q", resultText(r))
	}

	r = callTool(t, srv, "validate_unit", map[string]any{"path": filepath.Join(dir, "a.vbs")})
	var res models.ValidationResult
	if err := json.Unmarshal([]byte(resultText(r)), &res); err != nil {
		t.Fatal(err)
	}
	if !res.IsError || res.Kind != models.KindCompilation || res.Line != 2 || res.Column != 5 {
		t.Errorf("result = %+v", res)
	}
}

func TestValidateUnitMissingPath(t *testing.T) {
	srv, _, _ := testServer(t, nil)
	r := callTool(t, srv, "validate_unit", map[string]any{})
	if !r.IsError {
		t.Error("expected error for missing path")
	}
}

func TestValidateUnitOutsideRoot(t *testing.T) {
	srv, _, _ := testServer(t, nil)
	outside := filepath.Join(t.TempDir(), "evil.vbs")
	if err := os.WriteFile(outside, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{"../../../etc/evil.vbs", outside} {
		r := callTool(t, srv, "validate_unit", map[string]any{"path": p})
		if !r.IsError {
			t.Errorf("validate_unit(%q) = %q, want error", p, resultText(r))
		}
	}
}

func TestBuildHistory(t *testing.T) {
	srv, _, _ := testServer(t, failNamed{"a.vbs": true})
	_ = callTool(t, srv, "build", map[string]any{})
	_ = callTool(t, srv, "build", map[string]any{})

	r := callTool(t, srv, "build_history", map[string]any{"limit": float64(1)})
	var builds []history.Build
	if err := json.Unmarshal([]byte(resultText(r)), &builds); err != nil {
		t.Fatal(err)
	}
	if len(builds) != 1 || builds[0].Failures != 1 || builds[0].Bundled {
		t.Errorf("builds = %+v", builds)
	}
}

func TestBuildHistoryDisabled(t *testing.T) {
	fs, err := storage.NewFS(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	srv := New(nil, fs, nil)
	r := callTool(t, srv, "build_history", map[string]any{})
	if !r.IsError {
		t.Error("expected error when history is disabled")
	}
}

func TestGetConventions(t *testing.T) {
	srv, _, _ := testServer(t, nil)
	r := callTool(t, srv, "get_conventions", map[string]any{})
	if !strings.Contains(resultText(r), "header") {
		t.Errorf("conventions = %q", resultText(r))
	}
}
