// Package api exposes a finished experiment report over HTTP.
package api

import (
	"cmp"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/tunebench/internal/evaluate"
	"github.com/samcharles93/tunebench/internal/results"
	"github.com/samcharles93/tunebench/internal/webui"
)

var metricAliases = map[string]string{
	"em":          evaluate.KeyExactMatch,
	"exact_match": evaluate.KeyExactMatch,
	"f1":          evaluate.KeyF1,
	"bleu":        evaluate.KeyBLEU,
	"token_f1":    evaluate.KeyTokenF1,
}

type Server struct {
	store *ReportStore
	clock func() time.Time
}

func NewServer(store *ReportStore) *Server {
	return &Server{
		store: store,
		clock: time.Now,
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/", s.handleIndex)
	e.GET("/healthz", s.handleHealth)
	e.GET("/v1/results", s.handleListResults)
	e.GET("/v1/results/:method", s.handleMethodResults)
	e.GET("/v1/leaderboard", s.handleLeaderboard)
}

func (s *Server) handleIndex(c *echo.Context) error {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/html; charset=utf-8")
	res.WriteHeader(http.StatusOK)
	_, err := res.Write(webui.Index())
	return err
}

func (s *Server) handleHealth(c *echo.Context) error {
	status := "ok"
	if _, err := s.store.Load(); err != nil {
		status = "no_report"
	}
	return c.JSON(http.StatusOK, HealthResponse{
		Status: status,
		Report: s.store.Path(),
		Time:   s.clock().Unix(),
	})
}

func (s *Server) handleListResults(c *echo.Context) error {
	snap, err := s.store.Load()
	if err != nil {
		return writeRequestError(c, err)
	}
	data := snap.Results
	if id := strings.TrimSpace(c.QueryParam("model")); id != "" {
		data = filterResults(data, func(r results.Result) bool { return r.Model == id })
	}
	return c.JSON(http.StatusOK, ResultsResponse{
		Object:    "list",
		Data:      nonNil(data),
		UpdatedAt: snap.ModTime.Unix(),
	})
}

func (s *Server) handleMethodResults(c *echo.Context) error {
	method := c.Param("method")
	snap, err := s.store.Load()
	if err != nil {
		return writeRequestError(c, err)
	}
	data := filterResults(snap.Results, func(r results.Result) bool { return r.Method == method })
	if len(data) == 0 {
		return writeNotFound(c, fmt.Sprintf("no results for method %q", method))
	}
	return c.JSON(http.StatusOK, ResultsResponse{
		Object:    "list",
		Data:      data,
		UpdatedAt: snap.ModTime.Unix(),
	})
}

func (s *Server) handleLeaderboard(c *echo.Context) error {
	key, err := resolveMetric(c.QueryParam("metric"))
	if err != nil {
		return writeRequestError(c, err)
	}
	snap, err := s.store.Load()
	if err != nil {
		return writeRequestError(c, err)
	}
	board, failed := leaderboard(snap.Results, key)
	return c.JSON(http.StatusOK, LeaderboardResponse{
		Object: "leaderboard",
		Metric: key,
		Data:   board,
		Failed: failed,
	})
}

// resolveMetric accepts a report key or a short alias. Empty means BLEU.
func resolveMetric(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return evaluate.KeyBLEU, nil
	}
	if key, ok := metricAliases[strings.ToLower(name)]; ok {
		return key, nil
	}
	switch name {
	case evaluate.KeyExactMatch, evaluate.KeyF1, evaluate.KeyBLEU, evaluate.KeyTokenF1:
		return name, nil
	}
	return "", newInvalidRequest("metric", fmt.Sprintf("unknown metric %q", name))
}

// leaderboard ranks successful entries by the metric, highest first. Entries
// without the metric are skipped; failures are counted.
func leaderboard(in []results.Result, key string) ([]LeaderboardEntry, int) {
	board := []LeaderboardEntry{}
	failed := 0
	for _, r := range in {
		if r.Failed() {
			failed++
			continue
		}
		v, ok := r.Metrics.Get(key)
		if !ok {
			continue
		}
		board = append(board, LeaderboardEntry{Model: r.Model, Method: r.Method, Value: v})
	}
	slices.SortStableFunc(board, func(a, b LeaderboardEntry) int {
		if c := cmp.Compare(b.Value, a.Value); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Model, b.Model); c != 0 {
			return c
		}
		return cmp.Compare(a.Method, b.Method)
	})
	for i := range board {
		board[i].Rank = i + 1
	}
	return board, failed
}

func filterResults(in []results.Result, keep func(results.Result) bool) []results.Result {
	var out []results.Result
	for _, r := range in {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func nonNil(in []results.Result) []results.Result {
	if in == nil {
		return []results.Result{}
	}
	return in
}
