package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	acceptor "github.com/servicelab/svc-acceptor"
	"github.com/servicelab/svc-acceptor/exitcodes"
	"github.com/servicelab/svc-acceptor/flags"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "svc-acceptor"
	app.Usage = "Service Acceptance Test Runner"
	app.Description = "svc-acceptor runs ordered acceptance modules against HTTP services"
	app.Flags = flags.Flags
	app.Action = run
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			if acceptor.IsRuntimeError(err) {
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.RuntimeErr))
			} else if acceptor.IsTestFailureError(err) {
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.TestFailure))
			} else {
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.TestFailure))
			}
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func run(ctx *cli.Context) error {
	logger, err := setupLogging(ctx)
	if err != nil {
		return acceptor.NewRuntimeError("logging", err)
	}

	cfg, err := acceptor.NewConfig(ctx, logger)
	if err != nil {
		return acceptor.NewRuntimeError("config", err)
	}

	runCtx, cancel := context.WithCancel(ctx.Context)
	defer cancel()

	svc, err := acceptor.New(runCtx, cfg, Version, nil, func(error) { cancel() })
	if err != nil {
		return acceptor.NewRuntimeError("startup", err)
	}

	if err := svc.Start(runCtx); err != nil {
		return err
	}

	// Block until shutdown is requested, either by signal or by the run-once
	// completion callback.
	<-runCtx.Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.ModuleTimeout)
	defer stopCancel()
	return svc.Stop(stopCtx)
}

func setupLogging(ctx *cli.Context) (log.Logger, error) {
	lvl, err := log.LvlFromString(ctx.String(flags.LogLevel.Name))
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	var handler slog.Handler
	switch ctx.String(flags.LogFormat.Name) {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	case "terminal":
		handler = log.NewTerminalHandlerWithLevel(os.Stderr, lvl, true)
	default:
		return nil, fmt.Errorf("invalid log format %q", ctx.String(flags.LogFormat.Name))
	}

	logger := log.NewLogger(handler)
	log.SetDefault(logger)
	return logger, nil
}
