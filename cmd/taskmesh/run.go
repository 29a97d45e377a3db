package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hupe1980/taskmesh"
	"github.com/hupe1980/taskmesh/backend"
	"github.com/hupe1980/taskmesh/config"
	"github.com/hupe1980/taskmesh/contextstore"
	"github.com/hupe1980/taskmesh/contextstore/sqlite"
	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/orchestrator"
	anthropicstrategy "github.com/hupe1980/taskmesh/strategy/anthropic"
	openaistrategy "github.com/hupe1980/taskmesh/strategy/openai"
)

var (
	runWorkspace string
	runTimeout   time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run <objective>",
	Short: "Run a session against an objective",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		objective := strings.Join(args, " ")

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if runWorkspace != "" {
			cfg.Workspace = runWorkspace
		}

		store, closeStore, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		local, err := backend.NewLocal(cfg.Workspace)
		if err != nil {
			return err
		}

		logger := logging.NewSlogLogger(logLevel(cfg.Log.Level), cfg.Log.Format, false)

		mesh := taskmesh.New(providerFrom(cfg, logger), func(o *taskmesh.Options) {
			o.Store = store
			o.Backend = local
			o.SessionMaxTurns = cfg.Session.MaxTurns
			o.DefaultTaskMaxTurns = cfg.Worker.DefaultMaxTurns
			o.BatchMaxConcurrency = cfg.Batch.MaxConcurrency
			o.MaxConsecutiveFailures = cfg.Session.MaxConsecutiveFailures
			o.Logger = logger
		})

		ctx := cmd.Context()
		if runTimeout > 0 {
			var cancel func()
			ctx, cancel = context.WithTimeout(ctx, runTimeout)
			defer cancel()
		}

		result, err := mesh.RunSession(ctx, objective)
		if err != nil {
			return err
		}
		printResult(result)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runWorkspace, "workspace", "", "workspace directory (overrides config)")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "session wall-clock limit, e.g. 30m")
}

func openStore(cfg *config.Config) (core.ContextStore, func(), error) {
	if cfg.Store.Backend == "sqlite" {
		s, err := sqlite.Open(cfg.Store.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	}
	return contextstore.NewInMemoryStore(), func() {}, nil
}

func providerFrom(cfg *config.Config, logger logging.Logger) core.StrategyProvider {
	return func(agentType core.AgentType) core.Strategy {
		m := cfg.ModelFor(agentType)
		switch m.Provider {
		case "openai":
			return openaistrategy.New(func(o *openaistrategy.Options) {
				o.Model = m.Model
				o.Logger = logger
			})
		default:
			return anthropicstrategy.New(func(o *anthropicstrategy.Options) {
				o.Model = anthropic.Model(m.Model)
				o.APIKey = m.APIKey
				o.Logger = logger
			})
		}
	}
}

func logLevel(s string) logging.LogLevel {
	switch s {
	case "debug":
		return logging.LogLevelDebug
	case "warn":
		return logging.LogLevelWarn
	case "error":
		return logging.LogLevelError
	default:
		return logging.LogLevelInfo
	}
}

func printResult(result *orchestrator.SessionResult) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	switch {
	case result.Status == orchestrator.SessionFinished:
		fmt.Printf("%s %s\n", green("✓"), result.Message)
	case result.PartialSuccess():
		fmt.Printf("%s %s\n", yellow("⚠"), result.Message)
	default:
		fmt.Printf("%s %s\n", red("✗"), result.Message)
	}

	fmt.Printf("turns used: %d, tasks completed: %d, tasks failed: %d\n",
		result.TurnsUsed, len(result.CompletedTasks), len(result.FailedTasks))
	if len(result.ContextIDs) > 0 {
		fmt.Printf("contexts: %s\n", strings.Join(result.ContextIDs, ", "))
	}
}
