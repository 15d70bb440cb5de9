package api

import "github.com/samcharles93/tunebench/internal/results"

type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Report string `json:"report"`
	Time   int64  `json:"time"`
}

type ResultsResponse struct {
	Object string           `json:"object"`
	Data   []results.Result `json:"data"`
	// UpdatedAt is the report file's modification time in Unix seconds.
	UpdatedAt int64 `json:"updated_at"`
}

type LeaderboardEntry struct {
	Rank   int     `json:"rank"`
	Model  string  `json:"model"`
	Method string  `json:"method"`
	Value  float64 `json:"value"`
}

type LeaderboardResponse struct {
	Object string             `json:"object"`
	Metric string             `json:"metric"`
	Data   []LeaderboardEntry `json:"data"`
	// Failed counts entries left off the board because the pair failed.
	Failed int `json:"failed"`
}
