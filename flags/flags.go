package flags

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
)

const EnvVarPrefix = "SVC_ACCEPTOR"

func prefixEnvVars(name string) []string {
	return []string{EnvVarPrefix + "_" + name}
}

var (
	ServicesConfig = &cli.StringFlag{
		Name:     "config",
		Value:    "",
		Required: true,
		EnvVars:  prefixEnvVars("CONFIG"),
		Usage:    "Path to the services config file (eg. 'services.yaml')",
	}
	ScenarioDir = &cli.StringFlag{
		Name:    "scenarios",
		Value:   "",
		EnvVars: prefixEnvVars("SCENARIOS"),
		Usage:   "Path to the scenario directory from which to discover modules",
	}
	Service = &cli.StringFlag{
		Name:    "service",
		Value:   "",
		EnvVars: prefixEnvVars("SERVICE"),
		Usage:   "Run only the named service",
	}
	Module = &cli.StringFlag{
		Name:    "module",
		Value:   "",
		EnvVars: prefixEnvVars("MODULE"),
		Usage:   "Run only modules whose name contains this substring",
	}
	Parallelism = &cli.IntFlag{
		Name:    "parallelism",
		Value:   1,
		EnvVars: prefixEnvVars("PARALLELISM"),
		Usage:   "Number of services to run concurrently",
	}
	FailFast = &cli.BoolFlag{
		Name:    "fail-fast",
		Value:   false,
		EnvVars: prefixEnvVars("FAIL_FAST"),
		Usage:   "Halt a service's module sequence on its first failure",
	}
	DryRun = &cli.BoolFlag{
		Name:    "dry-run",
		Value:   false,
		EnvVars: prefixEnvVars("DRY_RUN"),
		Usage:   "Discover and report modules without executing them",
	}
	ModuleTimeout = &cli.DurationFlag{
		Name:    "timeout",
		Value:   2 * time.Minute,
		EnvVars: prefixEnvVars("TIMEOUT"),
		Usage:   "Wall-clock ceiling for a single module",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: prefixEnvVars("RUN_INTERVAL"),
		Usage:   "Interval between runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	StatusAddr = &cli.StringFlag{
		Name:    "status-addr",
		Value:   "",
		EnvVars: prefixEnvVars("STATUS_ADDR"),
		Usage:   "Listen address for the status/metrics server (disabled when empty)",
	}
	LogLevel = &cli.StringFlag{
		Name:    "log-level",
		Value:   "info",
		EnvVars: prefixEnvVars("LOG_LEVEL"),
		Usage:   "Log level (trace, debug, info, warn, error, crit)",
	}
	LogFormat = &cli.StringFlag{
		Name:    "log-format",
		Value:   "terminal",
		EnvVars: prefixEnvVars("LOG_FORMAT"),
		Usage:   "Log format (terminal, json)",
	}
)

var requiredFlags = []cli.Flag{
	ServicesConfig,
}

var optionalFlags = []cli.Flag{
	ScenarioDir,
	Service,
	Module,
	Parallelism,
	FailFast,
	DryRun,
	ModuleTimeout,
	RunInterval,
	StatusAddr,
	LogLevel,
	LogFormat,
}

var Flags []cli.Flag

func init() {
	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}
