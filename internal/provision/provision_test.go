package provision

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/samcharles93/tunebench/internal/experiment"
	"github.com/samcharles93/tunebench/internal/logger"
	"github.com/samcharles93/tunebench/internal/model"
)

func testContext() context.Context {
	return logger.WithContext(context.Background(), logger.Discard())
}

func scaffold(t *testing.T, modelsDir, id string) string {
	t.Helper()
	dir := filepath.Join(modelsDir, filepath.FromSlash(id))
	if _, err := model.Scaffold(dir, id, model.ScaffoldOptions{Corpus: []string{"question: context:"}, VocabSize: 280, DModel: 8, Seed: 1}); err != nil {
		t.Fatalf("Scaffold: %v", err)
	}
	return dir
}

func TestParseID(t *testing.T) {
	t.Parallel()

	for _, id := range []string{"google/flan-t5-small", "local/tiny.v2"} {
		if _, _, err := ParseID(id); err != nil {
			t.Errorf("ParseID(%q): %v", id, err)
		}
	}
	for _, id := range []string{"", "flan", "a/b/c", "../x", "a/..", "/b", "a/ b"} {
		if _, _, err := ParseID(id); err == nil {
			t.Errorf("ParseID(%q): expected error", id)
		}
	}
}

func TestProvisionReturnsFreshHandles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	scaffold(t, dir, "local/tiny")
	p := Provisioner{ModelsDir: dir, Backend: "cpu"}

	a, err := p.Provision(testContext(), "local/tiny")
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	b, err := p.Provision(testContext(), "local/tiny")
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if a == b {
		t.Fatal("Provision returned the same handle twice")
	}
	if a.Device() != "cpu" || a.Name() != "local/tiny" {
		t.Fatalf("handle = %s on %s", a.Name(), a.Device())
	}
	a.FreezeAll()
	if n, _ := b.ParamCount(); n == 0 {
		t.Fatal("freezing one handle affected another")
	}
}

func TestProvisionFailuresAreResolutionErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	scaffold(t, dir, "local/tiny")
	partial := scaffold(t, dir, "local/partial")
	if err := os.Remove(filepath.Join(partial, model.WeightsFile)); err != nil {
		t.Fatal(err)
	}
	foreign := scaffold(t, dir, "local/foreign")
	if err := os.WriteFile(filepath.Join(foreign, model.ConfigFile), []byte(`{"model_type":"t5","vocab_size":10,"d_model":4}`), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		id      string
		backend string
		want    string
	}{
		{"malformed id", "tiny", "cpu", "vendor/name"},
		{"missing dir", "local/absent", "cpu", "no such file"},
		{"missing weights", "local/partial", "cpu", "missing model.safetensors"},
		{"unknown arch", "local/foreign", "cpu", "unsupported architecture"},
		{"bad backend", "local/tiny", "tpu", "unknown backend"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := Provisioner{ModelsDir: dir, Backend: tt.backend}
			_, err := p.Provision(testContext(), tt.id)
			if !errors.Is(err, experiment.ErrResolution) {
				t.Fatalf("err = %v, want ErrResolution", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}
