package acceptor

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/servicelab/svc-acceptor/config"
	"github.com/servicelab/svc-acceptor/flags"
	"github.com/servicelab/svc-acceptor/types"
)

// Config holds the application configuration
type Config struct {
	Services      []types.ServiceDescriptor
	ScenarioDir   string        // scenario root, empty when only registered modules run
	ServiceFilter string        // run only the named service
	ModuleFilter  string        // run only modules whose name contains this substring
	Parallelism   int           // concurrent service runs
	FailFast      bool          // halt a service's sequence on its first failure
	DryRun        bool          // discover and report without executing
	ModuleTimeout time.Duration // wall-clock ceiling per module
	RunInterval   time.Duration // interval between runs
	RunOnce       bool          // exit after one run
	StatusAddr    string        // status server listen address, disabled when empty
	Log           log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, logger log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	services, err := config.LoadServices(ctx.String(flags.ServicesConfig.Name))
	if err != nil {
		return nil, fmt.Errorf("loading services config: %w", err)
	}

	scenarioDir := ctx.String(flags.ScenarioDir.Name)
	if scenarioDir != "" {
		scenarioDir, err = filepath.Abs(scenarioDir)
		if err != nil {
			return nil, fmt.Errorf("resolving scenario directory: %w", err)
		}
	}

	serviceFilter := ctx.String(flags.Service.Name)
	if serviceFilter != "" {
		found := false
		for _, svc := range services {
			if svc.Name == serviceFilter {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("service filter %q matches no configured service", serviceFilter)
		}
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)

	return &Config{
		Services:      services,
		ScenarioDir:   scenarioDir,
		ServiceFilter: serviceFilter,
		ModuleFilter:  ctx.String(flags.Module.Name),
		Parallelism:   ctx.Int(flags.Parallelism.Name),
		FailFast:      ctx.Bool(flags.FailFast.Name),
		DryRun:        ctx.Bool(flags.DryRun.Name),
		ModuleTimeout: ctx.Duration(flags.ModuleTimeout.Name),
		RunInterval:   runInterval,
		RunOnce:       runInterval == 0,
		StatusAddr:    ctx.String(flags.StatusAddr.Name),
		Log:           logger,
	}, nil
}
