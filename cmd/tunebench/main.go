package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/urfave/cli/v3"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/samcharles93/tunebench/internal/logger"
)

var logCloser io.Closer

func main() {
	var procsMsg string
	undo, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		procsMsg = fmt.Sprintf(format, args...)
	}))
	defer undo()
	if err != nil {
		procsMsg = "maxprocs: " + err.Error()
	}

	app := &cli.Command{
		Name:  "tunebench",
		Usage: "Compare fine-tuning methods across seq2seq models",
		Flags: loggingFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			runCmd(),
			planCmd(),
			initModelCmd(),
			serveCmd(),
			versionCmd(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx = context.WithValue(ctx, procsKey{}, procsMsg)
	err = app.Run(ctx, os.Args)
	stop()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type procsKey struct{}

// setupLogging is the Before hook of every command that logs. It reads the
// user config, builds the console and file logger and stores it in ctx.
func setupLogging(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	userConfig = LoadConfig()
	applyLoggingConfig(cmd, userConfig)

	level := logger.ParseLevel(logLevel)
	if debug {
		level = logger.ParseLevel("debug")
	}
	log, closer, err := logger.Setup(logger.Options{
		Level:  level,
		Format: logFormat,
		Dir:    logDir,
	})
	if err != nil {
		return ctx, err
	}
	logCloser = closer
	log.Debug("runtime", "gomaxprocs", runtime.GOMAXPROCS(0), "maxprocs", ctx.Value(procsKey{}))
	return logger.WithContext(ctx, log), nil
}

func closeLogging(context.Context, *cli.Command) error {
	if logCloser == nil {
		return nil
	}
	err := logCloser.Close()
	logCloser = nil
	return err
}
