package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/samcharles93/tunebench/internal/experiment"
	"github.com/samcharles93/tunebench/internal/model"
)

// loadExperiment reads the experiment file, falling back to the built-in
// registry when no path is given.
func loadExperiment(path string) (experiment.Config, string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return experiment.Default(), "built-in defaults", nil
	}
	cfg, err := experiment.Load(filepath.Clean(path))
	if err != nil {
		return experiment.Config{}, "", err
	}
	return cfg, path, nil
}

func resolveResultsPath(flag string) string {
	flag = strings.TrimSpace(flag)
	if flag == "" {
		return experiment.DefaultReportPath
	}
	return filepath.Clean(flag)
}

// discoverModels lists the <vendor>/<name> identifiers found under dir. A
// model directory counts when it holds a config.json.
func discoverModels(dir string) ([]string, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("models directory is empty")
	}
	st, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("models path is not a directory: %s", dir)
	}

	vendors, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, v := range vendors {
		if !v.IsDir() {
			continue
		}
		names, err := os.ReadDir(filepath.Join(dir, v.Name()))
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			if !n.IsDir() {
				continue
			}
			if _, err := os.Stat(filepath.Join(dir, v.Name(), n.Name(), model.ConfigFile)); err != nil {
				continue
			}
			ids = append(ids, v.Name()+"/"+n.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}
