package api

import (
	"os"
	"sync"
	"time"

	"github.com/samcharles93/tunebench/internal/results"
)

type reportSnapshot struct {
	Results []results.Result
	ModTime time.Time
	size    int64
}

// ReportStore serves the report file, re-reading it only when its
// modification time or size changes.
type ReportStore struct {
	path string

	mu     sync.Mutex
	cached *reportSnapshot
}

func NewReportStore(path string) *ReportStore {
	return &ReportStore{path: path}
}

func (s *ReportStore) Path() string { return s.path }

func (s *ReportStore) Load() (reportSnapshot, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return reportSnapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached != nil && s.cached.ModTime.Equal(info.ModTime()) && s.cached.size == info.Size() {
		return *s.cached, nil
	}
	out, err := results.LoadReport(s.path)
	if err != nil {
		return reportSnapshot{}, err
	}
	s.cached = &reportSnapshot{Results: out, ModTime: info.ModTime(), size: info.Size()}
	return *s.cached, nil
}
