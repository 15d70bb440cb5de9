package main

import "github.com/urfave/cli/v3"

var (
	modelsDir   string
	datasetsDir string
	backendName string
	logLevel    string
	logFormat   string
	logDir      string
	debug       bool
)

func commonPathFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "models-dir",
			Aliases:     []string{"models-path"},
			Usage:       "directory holding <vendor>/<name> model directories",
			Value:       "./models",
			Destination: &modelsDir,
		},
		&cli.StringFlag{
			Name:        "datasets-dir",
			Usage:       "directory holding <dataset>/<split>.jsonl files",
			Value:       "./datasets",
			Destination: &datasetsDir,
		},
		&cli.StringFlag{
			Name:        "backend",
			Usage:       "execution backend (auto, cpu, cuda)",
			Value:       "auto",
			Destination: &backendName,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.StringFlag{
			Name:        "log-dir",
			Usage:       "directory for training.log (empty disables the file)",
			Value:       "./logs",
			Destination: &logDir,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}
