package logger

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

func TestJSONLevelFiltering(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelWarn)
	log.Info("dropped")

	if buf.Len() > 0 {
		t.Fatalf("expected no output below warn, got: %s", buf.String())
	}

	log.Warn("kept", "method", "freeze")
	out := buf.String()
	if !strings.Contains(out, "kept") || !strings.Contains(out, `"method":"freeze"`) {
		t.Fatalf("unexpected JSON output: %s", out)
	}
}

func TestDiscardWritesNothing(t *testing.T) {
	t.Parallel()
	log := Discard()
	// Must not panic at any level.
	log.Error("nothing")
	log.Named("x").Info("nothing")
}

func TestPrettyRendersName(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := Pretty(&buf, slog.LevelInfo).Named("sweep").Named("trainer")
	log.Info("step done", "loss", 1.5)

	out := buf.String()
	if !strings.Contains(out, "sweep.trainer:") {
		t.Fatalf("expected dotted name in output, got: %s", out)
	}
	if strings.Contains(out, NameKey+"=") {
		t.Fatalf("name leaked as attribute: %s", out)
	}
	if !strings.Contains(out, "loss=1.5") {
		t.Fatalf("expected loss attr, got: %s", out)
	}
}

func TestPrettyGroups(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, nil)
	slog.New(h.WithGroup("eval").WithGroup("bleu")).Info("scored", "n", 4)

	if !strings.Contains(buf.String(), "eval.bleu.n=4") {
		t.Fatalf("expected grouped key, got: %s", buf.String())
	}
	if h.WithGroup("") != slog.Handler(h) {
		t.Fatal("WithGroup(\"\") should return the receiver")
	}
}

func TestPrettyQuoting(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	slog.New(NewPrettyHandler(&buf, nil)).Info("x", "msg", "hello world", "key", "simple")

	out := buf.String()
	if !strings.Contains(out, `msg="hello world"`) {
		t.Fatalf("expected quoted value, got: %s", out)
	}
	if !strings.Contains(out, "key=simple") {
		t.Fatalf("expected bare value, got: %s", out)
	}
}

var lineRE = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2},\d{3} - (\S+) - (\S+) - (.*)$`)

func TestLineFormat(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := Line(&buf, slog.LevelDebug)
	log.Named("results").Warn("saved", "path", "out/freeze")
	log.Info("root")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	m := lineRE.FindStringSubmatch(lines[0])
	if m == nil {
		t.Fatalf("line does not match format: %q", lines[0])
	}
	if m[1] != "results" || m[2] != "WARNING" || m[3] != "saved path=out/freeze" {
		t.Fatalf("unexpected fields: %q", m[1:])
	}
	m = lineRE.FindStringSubmatch(lines[1])
	if m == nil || m[1] != "tunebench" || m[2] != "INFO" {
		t.Fatalf("unexpected root line: %q", lines[1])
	}
}

func TestSetupMirrorsToFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	var console bytes.Buffer

	log, closer, err := Setup(Options{Level: slog.LevelInfo, Format: "text", Console: &console, Dir: dir})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	log.Named("sweep").Info("starting", "models", 3)
	log.Debug("hidden")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, DefaultLogFile))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	for name, got := range map[string]string{"file": string(data), "console": console.String()} {
		if !strings.Contains(got, " - sweep - INFO - starting models=3") {
			t.Errorf("%s missing record: %q", name, got)
		}
		if strings.Contains(got, "hidden") {
			t.Errorf("%s contains debug record: %q", name, got)
		}
	}
}

func TestSetupRejectsUnknownFormat(t *testing.T) {
	t.Parallel()
	if _, _, err := Setup(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestFanoutRespectsEachLevel(t *testing.T) {
	t.Parallel()
	var info, errs bytes.Buffer
	h := Fanout(
		NewLineHandler(&info, &slog.HandlerOptions{Level: slog.LevelInfo}),
		NewLineHandler(&errs, &slog.HandlerOptions{Level: slog.LevelError}),
	)
	log := slog.New(h)
	log.Info("progress")
	log.Error("failed")

	if !strings.Contains(info.String(), "progress") || !strings.Contains(info.String(), "failed") {
		t.Fatalf("info sink: %q", info.String())
	}
	if strings.Contains(errs.String(), "progress") || !strings.Contains(errs.String(), "failed") {
		t.Fatalf("error sink: %q", errs.String())
	}
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	ctx := WithContext(context.Background(), JSON(&buf, slog.LevelInfo))
	FromContext(ctx).Info("roundtrip")
	if !strings.Contains(buf.String(), "roundtrip") {
		t.Fatalf("expected message via context logger, got: %s", buf.String())
	}
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext without logger returned nil")
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"DEBUG", slog.LevelInfo},
	}

	for _, tc := range tests {
		if got := ParseLevel(tc.input); got != tc.expected {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.input, got, tc.expected)
		}
	}
}
