// Package backend names the compute devices a run can target and reports
// what the host offers.
package backend

import (
	"fmt"
	"runtime"
	"strings"
)

const (
	CPU  = "cpu"
	CUDA = "cuda"
	Auto = "auto"
)

// Normalize lower-cases name and maps "" to Auto.
func Normalize(name string) (string, error) {
	backend := strings.ToLower(strings.TrimSpace(name))
	if backend == "" {
		return Auto, nil
	}
	switch backend {
	case CPU, CUDA, Auto:
		return backend, nil
	default:
		return "", fmt.Errorf("unknown backend %q (expected auto, cpu, or cuda)", backend)
	}
}

// Resolve turns a requested backend into a concrete device for this build.
// Auto prefers CUDA when compiled in.
func Resolve(name string) (string, error) {
	backend, err := Normalize(name)
	if err != nil {
		return "", err
	}
	if backend == Auto {
		if Has(CUDA) {
			return CUDA, nil
		}
		return CPU, nil
	}
	if !Has(backend) {
		return "", fmt.Errorf("backend %q is not available in this build (available: %s)", backend, Available())
	}
	return backend, nil
}

// Report describes the host for the startup device check.
type Report struct {
	Device     string
	Available  string
	GoOS       string
	GoArch     string
	CPUs       int
	GOMAXPROCS int
	Features   []string
}

// Detect builds a Report for the resolved device.
func Detect(device string) Report {
	return Report{
		Device:     device,
		Available:  Available(),
		GoOS:       runtime.GOOS,
		GoArch:     runtime.GOARCH,
		CPUs:       runtime.NumCPU(),
		GOMAXPROCS: runtime.GOMAXPROCS(0),
		Features:   cpuFeatures(),
	}
}

// LogArgs flattens the report into slog key/value pairs.
func (r Report) LogArgs() []any {
	return []any{
		"device", r.Device,
		"available", r.Available,
		"os", r.GoOS,
		"arch", r.GoArch,
		"cpus", r.CPUs,
		"gomaxprocs", r.GOMAXPROCS,
		"features", strings.Join(r.Features, ","),
	}
}
