// Package results persists experiment outcomes: the aggregate JSON report
// and the per-method trainer state.
package results

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"

	"github.com/samcharles93/tunebench/internal/evaluate"
	"github.com/samcharles93/tunebench/internal/experiment"
	"github.com/samcharles93/tunebench/internal/logger"
	"github.com/samcharles93/tunebench/internal/model"
	"github.com/samcharles93/tunebench/internal/trainer"
)

// TrainerStateFile is written next to the saved model.
const TrainerStateFile = "trainer_state.json"

// Result is one entry of the report. A failed pair carries Error instead of
// Metrics.
type Result struct {
	Model   string            `json:"model"`
	Method  string            `json:"method"`
	Metrics *evaluate.Metrics `json:"metrics,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// Failed reports whether the entry is a failure marker.
func (r Result) Failed() bool { return r.Metrics == nil }

// Encode renders results as the report document: a JSON array indented by
// four spaces with HTML characters left unescaped.
func Encode(results []Result) ([]byte, error) {
	if results == nil {
		results = []Result{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(results); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SaveReport atomically replaces path with the encoded report.
func SaveReport(path string, results []Result) error {
	data, err := Encode(results)
	if err != nil {
		return experiment.Fail(experiment.ErrPersistence, "encode report", err)
	}
	if err := writeAtomic(path, data); err != nil {
		return experiment.Fail(experiment.ErrPersistence, "save report", err)
	}
	return nil
}

// LoadReport reads a report written by SaveReport.
func LoadReport(path string) ([]Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []Result
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return out, nil
}

// SaveModel writes the model artifacts and trainer_state.json into dir and
// returns the file names written.
func SaveModel(ctx context.Context, s model.Saver, dir string, st trainer.State) ([]string, error) {
	log := logger.FromContext(ctx).Named("results").With("dir", dir)
	files, err := s.Save(dir)
	if err != nil {
		log.Error("model save failed", "error", err)
		return nil, experiment.Fail(experiment.ErrPersistence, "save model", err)
	}
	if err := SaveTrainerState(dir, st); err != nil {
		log.Error("trainer state save failed", "error", err)
		return nil, err
	}
	files = append(files, TrainerStateFile)
	log.Info("model saved", "files", files)
	return files, nil
}

// SaveTrainerState writes trainer_state.json into dir.
func SaveTrainerState(dir string, st trainer.State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return experiment.Fail(experiment.ErrPersistence, "encode trainer state", err)
	}
	if err := writeAtomic(filepath.Join(dir, TrainerStateFile), append(data, '\n')); err != nil {
		return experiment.Fail(experiment.ErrPersistence, "save trainer state", err)
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
