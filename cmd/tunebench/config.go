package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the user defaults file (~/.config/tunebench/config.yaml).
// Values only apply when the matching flag was not set on the command line.
type Config struct {
	ModelsDir   string `yaml:"models_dir"`
	DatasetsDir string `yaml:"datasets_dir"`
	ResultsPath string `yaml:"results_path"`
	Experiment  string `yaml:"experiment"`

	Backend       string `yaml:"backend"`
	FailurePolicy string `yaml:"failure_policy"`
	Seed          *int64 `yaml:"seed"`

	// Output
	LogLevel  string  `yaml:"log_level"`
	LogFormat string  `yaml:"log_format"`
	LogDir    *string `yaml:"log_dir"`

	// Server
	ServerAddress string `yaml:"server_address"`
}

var userConfig Config

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "tunebench", "config.yaml")
}

// applyLoggingConfig runs before any command so the logger honours the file.
func applyLoggingConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
	if cfg.LogDir != nil && !c.IsSet("log-dir") {
		logDir = *cfg.LogDir
	}
}

func applyPathConfig(c *cli.Command, cfg Config) {
	if cfg.ModelsDir != "" && !c.IsSet("models-dir") {
		modelsDir = cfg.ModelsDir
	}
	if cfg.DatasetsDir != "" && !c.IsSet("datasets-dir") {
		datasetsDir = cfg.DatasetsDir
	}
	if cfg.Backend != "" && !c.IsSet("backend") {
		backendName = cfg.Backend
	}
}

// applyRunConfig applies config file defaults to run command variables
// when the corresponding CLI flag was not explicitly set.
func applyRunConfig(c *cli.Command, cfg Config,
	experimentPath, resultsPath, policy *string, seed *int64,
) {
	applyPathConfig(c, cfg)
	if cfg.Experiment != "" && !c.IsSet("experiment") {
		*experimentPath = cfg.Experiment
	}
	if cfg.ResultsPath != "" && !c.IsSet("results") {
		*resultsPath = cfg.ResultsPath
	}
	if cfg.FailurePolicy != "" && !c.IsSet("failure-policy") {
		*policy = cfg.FailurePolicy
	}
	if cfg.Seed != nil && !c.IsSet("seed") {
		*seed = *cfg.Seed
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg Config, addr, resultsPath *string) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
	if cfg.ResultsPath != "" && !c.IsSet("results") {
		*resultsPath = cfg.ResultsPath
	}
}

// LoadConfig reads the config file. Returns a zero Config if the file doesn't exist.
func LoadConfig() Config {
	return loadConfigFile(configPath())
}

func loadConfigFile(path string) Config {
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}
