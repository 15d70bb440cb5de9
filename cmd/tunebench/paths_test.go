package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/samcharles93/tunebench/internal/experiment"
)

func TestLoadExperiment(t *testing.T) {
	t.Run("empty path uses defaults", func(t *testing.T) {
		cfg, source, err := loadExperiment("  ")
		if err != nil {
			t.Fatalf("loadExperiment returned error: %v", err)
		}
		if source != "built-in defaults" {
			t.Fatalf("unexpected source: %q", source)
		}
		if diff := cmp.Diff(experiment.DefaultModels, cfg.Models()); diff != "" {
			t.Fatalf("models (-want +got):\n%s", diff)
		}
	})

	t.Run("file is parsed", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "experiment.yaml")
		doc := `dataset: squad
dataset_split: "train[:10]"
models: [local/tiny]
methods:
  freeze:
    type: freeze
    learning_rate: 0.01
    batch_size: 2
    num_epochs: 1
    max_input_length: 32
    max_target_length: 8
    output_dir: ./out/freeze
    logging_steps: 1
`
		if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
			t.Fatalf("write experiment: %v", err)
		}
		cfg, source, err := loadExperiment(path)
		if err != nil {
			t.Fatalf("loadExperiment returned error: %v", err)
		}
		if source != path || cfg.DatasetSplit() != "train[:10]" || len(cfg.Methods()) != 1 {
			t.Fatalf("unexpected config from %q: %+v", source, cfg.Spec())
		}
	})

	t.Run("missing file is a configuration error", func(t *testing.T) {
		_, _, err := loadExperiment(filepath.Join(t.TempDir(), "missing.yaml"))
		if experiment.KindOf(err) != experiment.ErrConfiguration {
			t.Fatalf("expected configuration error, got %v", err)
		}
	})
}

func TestResolveResultsPath(t *testing.T) {
	if got := resolveResultsPath(""); got != experiment.DefaultReportPath {
		t.Fatalf("default results path: got %q", got)
	}
	if got := resolveResultsPath("out//report.json"); got != filepath.Join("out", "report.json") {
		t.Fatalf("cleaned results path: got %q", got)
	}
}

func TestDiscoverModelsSorted(t *testing.T) {
	dir := t.TempDir()
	for _, id := range []string{"vendor-b/model", "vendor-a/small", "vendor-a/empty"} {
		if err := os.MkdirAll(filepath.Join(dir, id), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", id, err)
		}
	}
	for _, id := range []string{"vendor-b/model", "vendor-a/small"} {
		if err := os.WriteFile(filepath.Join(dir, id, "config.json"), []byte("{}"), 0o644); err != nil {
			t.Fatalf("write config %s: %v", id, err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "README"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write readme: %v", err)
	}

	got, err := discoverModels(dir)
	if err != nil {
		t.Fatalf("discoverModels returned error: %v", err)
	}
	want := []string{"vendor-a/small", "vendor-b/model"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("models (-want +got):\n%s", diff)
	}

	if _, err := discoverModels(filepath.Join(dir, "README")); err == nil {
		t.Fatalf("expected error for a file path")
	}
}

func TestLoadConfigFileAppliesOnlyKnownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := "models_dir: /srv/models\nseed: 7\nlog_dir: \"\"\nserver_address: 0.0.0.0:9000\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg := loadConfigFile(path)
	if cfg.ModelsDir != "/srv/models" || cfg.Seed == nil || *cfg.Seed != 7 || cfg.ServerAddress != "0.0.0.0:9000" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.LogDir == nil || *cfg.LogDir != "" {
		t.Fatalf("explicit empty log_dir should disable the file: %+v", cfg.LogDir)
	}
	if got := loadConfigFile(filepath.Join(t.TempDir(), "absent.yaml")); got.ModelsDir != "" {
		t.Fatalf("missing file should give zero config: %+v", got)
	}
}
