// Package provision resolves model identifiers to loaded, device-placed
// model handles.
package provision

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samcharles93/tunebench/internal/backend"
	"github.com/samcharles93/tunebench/internal/experiment"
	"github.com/samcharles93/tunebench/internal/logger"
	"github.com/samcharles93/tunebench/internal/model"
	"github.com/samcharles93/tunebench/internal/tokenizer"
)

// Provisioner loads models from ModelsDir, laid out as
// <ModelsDir>/<vendor>/<name>/.
type Provisioner struct {
	ModelsDir string
	// Backend is the requested device: auto, cpu or cuda.
	Backend string
}

// requiredFiles must exist in every model directory.
var requiredFiles = []string{model.ConfigFile, model.WeightsFile, tokenizer.JSONFile}

// ParseID splits a "vendor/name" identifier.
func ParseID(id string) (vendor, name string, err error) {
	vendor, name, ok := strings.Cut(id, "/")
	if !ok || !validPart(vendor) || !validPart(name) {
		return "", "", fmt.Errorf("model identifier %q must look like vendor/name", id)
	}
	return vendor, name, nil
}

func validPart(s string) bool {
	if s == "" || s == "." || s == ".." || strings.TrimSpace(s) != s {
		return false
	}
	return !strings.ContainsAny(s, `/\`)
}

// Dir returns the directory an identifier resolves to.
func (p Provisioner) Dir(id string) (string, error) {
	vendor, name, err := ParseID(id)
	if err != nil {
		return "", err
	}
	return filepath.Join(p.ModelsDir, vendor, name), nil
}

// Provision loads a fresh handle for id and places it on the resolved
// device. Every failure is an ErrResolution.
func (p Provisioner) Provision(ctx context.Context, id string) (model.Handle, error) {
	log := logger.FromContext(ctx).Named("provision").With("model", id)
	op := "provision " + id
	if err := ctx.Err(); err != nil {
		return nil, experiment.Fail(experiment.ErrResolution, op, err)
	}

	dir, err := p.Dir(id)
	if err != nil {
		return nil, experiment.Fail(experiment.ErrResolution, op, err)
	}
	if err := checkDir(dir); err != nil {
		log.Error("model directory is incomplete", "dir", dir, "error", err)
		return nil, experiment.Fail(experiment.ErrResolution, op, err)
	}
	device, err := backend.Resolve(p.Backend)
	if err != nil {
		return nil, experiment.Fail(experiment.ErrResolution, op, err)
	}

	log.Info("loading model", "dir", dir)
	m, err := model.Load(dir, id)
	if err != nil {
		log.Error("load failed", "error", err)
		return nil, experiment.Fail(experiment.ErrResolution, op, err)
	}
	if err := m.SetDevice(device); err != nil {
		return nil, experiment.Fail(experiment.ErrResolution, op, err)
	}
	trainable, total := m.ParamCount()
	log.Info("model loaded",
		"device", m.Device(),
		"vocab_size", m.Config().VocabSize,
		"d_model", m.Config().DModel,
		"params", total,
		"trainable", trainable,
	)
	return m, nil
}

func checkDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	var errs []error
	for _, name := range requiredFiles {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			errs = append(errs, fmt.Errorf("missing %s", name))
		}
	}
	return errors.Join(errs...)
}
