package validator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/starford/vbsb/internal/apperr"
	"github.com/starford/vbsb/internal/models"
)

func TestDiagnosticParser_Runtime(t *testing.T) {
	p := NewDiagnosticParser(".vbs", "VBScript")
	d, err := p.Parse(`C:\x.vbs(4, 2) Microsoft VBScript runtime error: Object required`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if d.Path != `C:\x.vbs` {
		t.Errorf("path = %q", d.Path)
	}
	if d.Line != 4 || d.Column != 2 {
		t.Errorf("position = %d:%d, want 4:2", d.Line, d.Column)
	}
	if d.Kind != models.KindRuntime {
		t.Errorf("kind = %v, want runtime", d.Kind)
	}
	if d.Message != "Object required" {
		t.Errorf("message = %q", d.Message)
	}
}

func TestDiagnosticParser_KindsAndWhitespace(t *testing.T) {
	p := NewDiagnosticParser(".vbs", "VBScript")
	cases := []struct {
		text string
		kind models.ErrorKind
		msg  string
	}{
		{"C:\\a.vbs(1, 1) Microsoft VBScript compilation error: Expected statement\r\n", models.KindCompilation, "Expected statement"},
		{"/src/b.vbs(10,  7) Microsoft VBScript Runtime error: Type mismatch", models.KindRuntime, "Type mismatch"},
		{"C:\\c.vbs(3, 5) Microsoft VBScript weird error: Something", models.KindUnknown, "Something"},
		{"\n\nC:\\d.vbs(2, 9) Microsoft VBScript runtime error:Division by zero\n", models.KindRuntime, "Division by zero"},
	}
	for _, tc := range cases {
		d, err := p.Parse(tc.text)
		if err != nil {
			t.Errorf("Parse(%q): %v", tc.text, err)
			continue
		}
		if d.Kind != tc.kind {
			t.Errorf("Parse(%q) kind = %v, want %v", tc.text, d.Kind, tc.kind)
		}
		if d.Message != tc.msg {
			t.Errorf("Parse(%q) message = %q, want %q", tc.text, d.Message, tc.msg)
		}
	}
}

func TestDiagnosticParser_Malformed(t *testing.T) {
	p := NewDiagnosticParser(".vbs", "VBScript")
	for _, text := range []string{
		"Input Error: Can not find script file",
		"C:\\x.vbs(a, b) Microsoft VBScript runtime error: nope",
		"C:\\x.js(4, 2) Microsoft VBScript runtime error: wrong ext",
		"C:\\x.vbs(4, 2) Microsoft JScript runtime error: wrong engine",
	} {
		_, err := p.Parse(text)
		if err == nil {
			t.Errorf("Parse(%q) should fail", text)
			continue
		}
		if !errors.Is(err, apperr.ErrMalformedDiagnostic) {
			t.Errorf("Parse(%q) err = %v, want ErrMalformedDiagnostic", text, err)
		}
		var de *DiagnosticError
		if !errors.As(err, &de) || de.Text != text {
			t.Errorf("Parse(%q) err should be *DiagnosticError carrying the text", text)
		}
	}
}

func writeUnit(t *testing.T, dir, name, content string) models.Unit {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return models.NewUnit(p)
}

func stderrRunner(text string) Runner {
	return RunnerFunc(func(context.Context, string) (string, error) { return text, nil })
}

func TestValidate_Success(t *testing.T) {
	dir := t.TempDir()
	u := writeUnit(t, dir, "ok.vbs", "WScript.Echo 1\n")
	v := New(stderrRunner("  \n"), WithWorkDir(dir))

	res, err := v.Validate(context.Background(), u)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if res.IsError {
		t.Error("expected success")
	}
	if res.Path != u.Path || res.RelativePath != "ok.vbs" {
		t.Errorf("paths = %q, %q", res.Path, res.RelativePath)
	}
	if res.Line != 0 || res.Column != 0 || res.Message != "" || res.Snippet != "" || res.Kind != models.KindUnknown {
		t.Errorf("diagnostic fields should be empty: %+v", res)
	}
}

func TestValidate_RuntimeError(t *testing.T) {
	dir := t.TempDir()
	u := writeUnit(t, dir, "x.vbs", "Dim a\nDim b\nDim c\nSet a = Nothing.Foo\nDim d\nDim e\nDim f\n")
	diag := u.Path + "(4, 2) Microsoft VBScript runtime error: Object required"
	v := New(stderrRunner(diag), WithWorkDir(dir))

	res, err := v.Validate(context.Background(), u)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !res.IsError || res.Kind != models.KindRuntime || res.Line != 4 || res.Column != 2 {
		t.Errorf("unexpected result: %+v", res)
	}
	if res.Message != "Object required" {
		t.Errorf("message = %q", res.Message)
	}
	lines := strings.Split(strings.TrimSuffix(res.Snippet, "\n"), "\n")
	if len(lines) != 6 {
		t.Fatalf("snippet has %d lines, want 5 source lines + pointer:\n%s", len(lines), res.Snippet)
	}
	if lines[0] != "  2 | Dim b" || lines[2] != "> 4 | Set a = Nothing.Foo" || lines[5] != "  6 | Dim e" {
		t.Errorf("unexpected snippet:\n%s", res.Snippet)
	}
}

func TestValidate_MalformedIsFatal(t *testing.T) {
	dir := t.TempDir()
	u := writeUnit(t, dir, "x.vbs", "x\n")
	v := New(stderrRunner("CScript Error: Loading your settings failed."), WithWorkDir(dir))

	_, err := v.Validate(context.Background(), u)
	if !errors.Is(err, apperr.ErrMalformedDiagnostic) {
		t.Fatalf("err = %v, want ErrMalformedDiagnostic", err)
	}
}

func TestValidate_RunnerErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	v := New(RunnerFunc(func(context.Context, string) (string, error) { return "", boom }))
	_, err := v.Validate(context.Background(), models.NewUnit("/nowhere/a.vbs"))
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestValidate_ReexecutesEveryCall(t *testing.T) {
	dir := t.TempDir()
	u := writeUnit(t, dir, "a.vbs", "x\n")
	calls := 0
	v := New(RunnerFunc(func(context.Context, string) (string, error) {
		calls++
		return "", nil
	}))
	for i := 0; i < 3; i++ {
		if _, err := v.Validate(context.Background(), u); err != nil {
			t.Fatal(err)
		}
	}
	if calls != 3 {
		t.Errorf("runner called %d times, want 3", calls)
	}
}

func TestExecRunner_CapturesStderrIgnoringExitCode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	r := NewExecRunner("sh", "-c", `echo "$1(1, 1) Microsoft VBScript runtime error: boom" >&2; echo out; exit 3`, "sh")
	out, err := r.Run(context.Background(), "/tmp/a.vbs")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.TrimSpace(out) != "/tmp/a.vbs(1, 1) Microsoft VBScript runtime error: boom" {
		t.Errorf("stderr = %q", out)
	}
}

func TestExecRunner_NoStderr(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	out, err := NewExecRunner("sh", "-c", "exit 0", "sh").Run(context.Background(), "/tmp/a.vbs")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "" {
		t.Errorf("stderr = %q, want empty", out)
	}
}

func TestExecRunner_MissingBinary(t *testing.T) {
	r := NewExecRunner("vbsb-no-such-interpreter-" + t.Name())
	_, err := r.Run(context.Background(), "a.vbs")
	if !errors.Is(err, apperr.ErrInterpreter) {
		t.Errorf("err = %v, want ErrInterpreter", err)
	}
}
