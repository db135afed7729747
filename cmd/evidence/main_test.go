package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/deixis/evidence/internal/config"
	"github.com/deixis/evidence/internal/record"
	"go.uber.org/zap"
)

var now = time.Date(2026, 10, 17, 12, 0, 0, 123_000_000, time.UTC)

func decode(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("invalid JSON %q: %v", data, err)
	}
	return m
}

// decodeStream decodes every JSON document written to stdout, in order.
func decodeStream(t *testing.T, data []byte) []map[string]any {
	t.Helper()
	var docs []map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var m map[string]any
		if err := dec.Decode(&m); err != nil {
			t.Fatalf("invalid JSON stream %q: %v", data, err)
		}
		docs = append(docs, m)
	}
	return docs
}

// stdoutRecord checks that a "-" run printed the indented record followed by
// an identical compact copy, and returns the record.
func stdoutRecord(t *testing.T, data []byte) map[string]any {
	t.Helper()
	docs := decodeStream(t, data)
	if len(docs) != 2 {
		t.Fatalf("got %d documents on stdout, want indented + compact: %q", len(docs), data)
	}
	if !reflect.DeepEqual(docs[0], docs[1]) {
		t.Errorf("indented and compact documents differ:\n%v\n%v", docs[0], docs[1])
	}
	if !bytes.HasPrefix(data, []byte("{\n  ")) {
		t.Errorf("first document should be indented: %q", data)
	}
	return docs[0]
}

func readJSON(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return decode(t, data)
}

func TestRunProbe_Defaults(t *testing.T) {
	var stdout bytes.Buffer
	if err := runProbe(nil, &stdout, now, zap.NewNop()); err != nil {
		t.Fatalf("runProbe: %v", err)
	}

	m := stdoutRecord(t, stdout.Bytes())
	if len(m) != 7 {
		t.Errorf("got %d fields, want 7: %v", len(m), m)
	}
	if m["host_os"] != record.ProbeHost {
		t.Errorf("host_os = %v, want %q", m["host_os"], record.ProbeHost)
	}
	if v, ok := m["exit_code"]; !ok || v != nil {
		t.Errorf("exit_code = %v (present %v), want null", v, ok)
	}
	if m["cmd"] != "" {
		t.Errorf("cmd = %v, want empty", m["cmd"])
	}
	if m["sim_path"] != record.DefaultSimPath {
		t.Errorf("sim_path = %v, want %q", m["sim_path"], record.DefaultSimPath)
	}
	if m["timestamp"] != "2026-10-17T12:00:00.123Z" {
		t.Errorf("timestamp = %v", m["timestamp"])
	}
}

func TestRunProbe_PathAndSimPath(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.json")
	var stdout bytes.Buffer
	if err := runProbe([]string{out, "/a:/b"}, &stdout, now, zap.NewNop()); err != nil {
		t.Fatalf("runProbe: %v", err)
	}

	m := readJSON(t, out)
	if m["sim_path"] != "/a:/b" {
		t.Errorf("sim_path = %v, want /a:/b", m["sim_path"])
	}
	if m["host_os"] != record.ProbeHost || m["exit_code"] != nil {
		t.Errorf("unexpected probe fields: %v", m)
	}
	if m["stdout_truncated"] != "" || m["stderr_truncated"] != "" {
		t.Errorf("expected empty streams: %v", m)
	}

	echo := decode(t, stdout.Bytes())
	if echo["sim_path"] != "/a:/b" {
		t.Errorf("stdout echo sim_path = %v", echo["sim_path"])
	}
	if strings.Contains(strings.TrimSpace(stdout.String()), "\n") {
		t.Errorf("stdout echo should be compact, got %q", stdout.String())
	}
}

func TestRunProbe_UnwritablePath(t *testing.T) {
	var stdout bytes.Buffer
	out := filepath.Join(t.TempDir(), "missing", "out.json")
	if err := runProbe([]string{out}, &stdout, now, zap.NewNop()); err == nil {
		t.Fatal("expected write error")
	}
}

func TestRunWrite_Basic(t *testing.T) {
	dir := t.TempDir()
	outCap := filepath.Join(dir, "stdout.txt")
	if err := os.WriteFile(outCap, []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "evidence.json")

	var stdout bytes.Buffer
	err := runWrite([]string{out, outCap, filepath.Join(dir, "none.txt"), "0"}, &stdout, now, zap.NewNop())
	if err != nil {
		t.Fatalf("runWrite: %v", err)
	}

	m := readJSON(t, out)
	if m["stdout_truncated"] != "hello world" {
		t.Errorf("stdout_truncated = %v, want hello world", m["stdout_truncated"])
	}
	if m["stderr_truncated"] != "" {
		t.Errorf("stderr_truncated = %v, want empty", m["stderr_truncated"])
	}
	if m["exit_code"] != float64(0) {
		t.Errorf("exit_code = %v, want 0", m["exit_code"])
	}
	if m["host_os"] != record.DefaultHostOS {
		t.Errorf("host_os = %v, want %q", m["host_os"], record.DefaultHostOS)
	}
	if m["cmd"] != "" || m["sim_path"] != "" {
		t.Errorf("cmd/sim_path should default to empty: %v", m)
	}
}

func TestRunWrite_AllArguments(t *testing.T) {
	dir := t.TempDir()
	outCap := filepath.Join(dir, "stdout.txt")
	if err := os.WriteFile(outCap, []byte(strings.Repeat("0123456789", 500)), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "evidence.json")

	var stdout bytes.Buffer
	args := []string{out, outCap, outCap, "137", "ls -la", "/x:/y", "linux", "10"}
	if err := runWrite(args, &stdout, now, zap.NewNop()); err != nil {
		t.Fatalf("runWrite: %v", err)
	}

	m := readJSON(t, out)
	want := map[string]any{
		"exit_code":        float64(137),
		"cmd":              "ls -la",
		"sim_path":         "/x:/y",
		"host_os":          "linux",
		"stdout_truncated": "0123456789",
		"stderr_truncated": "0123456789",
	}
	for k, v := range want {
		if m[k] != v {
			t.Errorf("%s = %v, want %v", k, m[k], v)
		}
	}
}

func TestRunWrite_BadArguments(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "e.json")
	tests := []struct {
		name      string
		args      []string
		wantUsage bool
	}{
		{"too few", []string{out, "a", "b"}, true},
		{"exit code not integer", []string{out, "a", "b", "zero"}, false},
		{"truncate not integer", []string{out, "a", "b", "0", "", "", "", "ten"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout bytes.Buffer
			err := runWrite(tt.args, &stdout, now, zap.NewNop())
			if err == nil {
				t.Fatal("expected error")
			}
			if errors.Is(err, errUsage) != tt.wantUsage {
				t.Errorf("errors.Is(err, errUsage) = %v, want %v (err: %v)", !tt.wantUsage, tt.wantUsage, err)
			}
			if _, statErr := os.Stat(out); statErr == nil {
				t.Error("output written despite argument error")
			}
		})
	}
}

func TestRunWrite_StdoutMarker(t *testing.T) {
	var stdout bytes.Buffer
	if err := runWrite([]string{"-", "a", "b", "-1"}, &stdout, now, zap.NewNop()); err != nil {
		t.Fatalf("runWrite: %v", err)
	}
	m := stdoutRecord(t, stdout.Bytes())
	if m["exit_code"] != float64(-1) {
		t.Errorf("exit_code = %v, want -1", m["exit_code"])
	}
}

func TestRunWrite_NegativeTruncateLength(t *testing.T) {
	dir := t.TempDir()
	capture := filepath.Join(dir, "stdout.txt")
	if err := os.WriteFile(capture, []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}

	var stdout bytes.Buffer
	args := []string{"-", capture, capture, "0", "", "", "", "-3"}
	if err := runWrite(args, &stdout, now, zap.NewNop()); err != nil {
		t.Fatalf("runWrite: %v", err)
	}
	m := stdoutRecord(t, stdout.Bytes())
	if m["stdout_truncated"] != "hello wo" {
		t.Errorf("stdout_truncated = %q, want %q", m["stdout_truncated"], "hello wo")
	}
}

func TestRunWrite_CRLFCapture(t *testing.T) {
	dir := t.TempDir()
	capture := filepath.Join(dir, "stderr.txt")
	if err := os.WriteFile(capture, []byte("a\r\nb\rc"), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "evidence.json")

	var stdout bytes.Buffer
	if err := runWrite([]string{out, capture, capture, "1"}, &stdout, now, zap.NewNop()); err != nil {
		t.Fatalf("runWrite: %v", err)
	}
	m := readJSON(t, out)
	if m["stderr_truncated"] != "a\nb\nc" {
		t.Errorf("stderr_truncated = %q, want %q", m["stderr_truncated"], "a\nb\nc")
	}
}

func TestRunWrite_LogsUnreadableCaptureAtDebug(t *testing.T) {
	var logs bytes.Buffer
	logger := newLogger(&logs, true)

	var stdout bytes.Buffer
	missing := filepath.Join(t.TempDir(), "missing.txt")
	if err := runWrite([]string{"-", missing, missing, "1"}, &stdout, now, logger); err != nil {
		t.Fatalf("runWrite: %v", err)
	}
	if !strings.Contains(logs.String(), "capture unreadable") {
		t.Errorf("expected debug log for unreadable capture, got %q", logs.String())
	}

	logs.Reset()
	quiet := newLogger(&logs, false)
	if err := runWrite([]string{"-", missing, missing, "1"}, &stdout, now, quiet); err != nil {
		t.Fatalf("runWrite: %v", err)
	}
	if logs.Len() != 0 {
		t.Errorf("expected no logs without -v, got %q", logs.String())
	}
}

func TestRunClassify(t *testing.T) {
	root := t.TempDir()
	paths := (&config.Config{}).ClassifyPaths(root)
	if err := os.MkdirAll(paths.Dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(paths.Execution, []byte(`{"exit_code":1,"stderr_truncated":"boom","cmd":"x"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	var stdout bytes.Buffer
	if err := runClassify(root, false, &stdout, zap.NewNop()); err != nil {
		t.Fatalf("runClassify: %v", err)
	}
	m := decode(t, stdout.Bytes())
	if m["failure_mode"] != "UNKNOWN" {
		t.Errorf("failure_mode = %v, want UNKNOWN", m["failure_mode"])
	}

	stdout.Reset()
	err := runClassify(root, true, &stdout, zap.NewNop())
	if !errors.Is(err, errFailed) {
		t.Errorf("strict run error = %v, want errFailed", err)
	}
}

func TestRunClassify_ConfigFile(t *testing.T) {
	root := t.TempDir()
	cfg := "classify:\n  dir: evidence\n  output: verdict.json\n"
	if err := os.WriteFile(filepath.Join(root, config.FileName), []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(root, "jobs")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	var stdout bytes.Buffer
	if err := runClassify(sub, true, &stdout, zap.NewNop()); err != nil {
		t.Fatalf("runClassify: %v", err)
	}
	// Names come from the ancestor config, the directory stays under sub.
	m := readJSON(t, filepath.Join(sub, "evidence", "verdict.json"))
	if m["failure_mode"] != "OK" {
		t.Errorf("failure_mode = %v, want OK", m["failure_mode"])
	}
	if _, err := os.Stat(filepath.Join(root, "evidence")); err == nil {
		t.Error("classification written under the config directory instead of the requested root")
	}
}

func TestRunClassify_AncestorConfigKeepsRoot(t *testing.T) {
	parent := t.TempDir()
	if err := os.WriteFile(filepath.Join(parent, config.FileName), []byte("host_os: ci\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	proj := filepath.Join(parent, "proj")
	paths := (&config.Config{}).ClassifyPaths(proj)
	if err := os.MkdirAll(paths.Dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(paths.Execution, []byte(`{"exit_code":1,"stderr_truncated":"sh: x: command not found"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	var stdout bytes.Buffer
	if err := runClassify(proj, false, &stdout, zap.NewNop()); err != nil {
		t.Fatalf("runClassify: %v", err)
	}
	if m := decode(t, stdout.Bytes()); m["failure_mode"] != "BINARY_NOT_FOUND" {
		t.Errorf("failure_mode = %v, want BINARY_NOT_FOUND", m["failure_mode"])
	}
	m := readJSON(t, paths.Output)
	if m["failure_mode"] != "BINARY_NOT_FOUND" {
		t.Errorf("written failure_mode = %v, want BINARY_NOT_FOUND", m["failure_mode"])
	}
	parentOut := (&config.Config{}).ClassifyPaths(parent).Output
	if _, err := os.Stat(parentOut); err == nil {
		t.Errorf("classification written under the ancestor: %s", parentOut)
	}
}
