// Package cli implements the tileschedctl command-line tool. Unlike a
// typical client/server CLI, every subcommand here drives an in-process
// engine.Engine directly — there is no transport layer to speak to.
package cli

import (
	"context"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/wsiflow/tilesched/internal/config"
	"github.com/wsiflow/tilesched/internal/engine"
	"github.com/wsiflow/tilesched/internal/logging"
)

var (
	flagConfigFile string
	flagDebug      bool
	flagLogLevel   string
	flagLogFormat  string
	flagTenantID   string
)

type engineCtxKey struct{}

// engineFromContext retrieves the engine.Engine PersistentPreRunE stashed on
// this invocation's context. Keeping it on the context rather than a
// package-level var means two root commands executed concurrently (as
// tests may do) never see each other's engine.
func engineFromContext(cmd *cobra.Command) *engine.Engine {
	return cmd.Context().Value(engineCtxKey{}).(*engine.Engine)
}

func defaultTenantID() string {
	if t := os.Getenv("TILESCHED_TENANT"); t != "" {
		return t
	}
	return "default"
}

// NewRootCmd creates the root cobra command for the tileschedctl CLI. The
// engine is constructed and started in PersistentPreRun so every
// subcommand sees a running instance, and stopped in PersistentPostRun.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tileschedctl",
		Short: "tileschedctl — branch-aware tile scheduler for WSI inference",
		Long:  "tileschedctl creates workflows and jobs, tracks admission and tiled execution, and fetches job artifacts, all against an in-process engine instance.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger := logging.NewLogger(logging.ParseLevel(flagLogLevel), flagLogFormat)

			cfg, err := config.Load(flagConfigFile)
			if err != nil {
				return err
			}

			eng, err := engine.New(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			ctx = context.WithValue(ctx, engineCtxKey{}, eng)
			cmd.SetContext(ctx)
			go func() {
				if err := eng.Start(ctx); err != nil && ctx.Err() == nil {
					logger.Error("engine stopped with error", "error", err)
				}
			}()
			invocationsMu.Lock()
			invocations[cmd.Root()] = invocation{cancel: cancel, eng: eng}
			invocationsMu.Unlock()
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			invocationsMu.Lock()
			inv, ok := invocations[cmd.Root()]
			if ok {
				delete(invocations, cmd.Root())
			}
			invocationsMu.Unlock()
			if !ok {
				return nil
			}
			inv.cancel()
			return inv.eng.Stop()
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagConfigFile, "config", "", "Path to a YAML config file")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")
	root.PersistentFlags().StringVar(&flagTenantID, "tenant", defaultTenantID(), "Tenant id (or TILESCHED_TENANT env)")

	root.AddCommand(
		newCreateWorkflowCmd(),
		newSubmitJobCmd(),
		newStatusCmd(),
		newListCmd(),
		newCancelCmd(),
		newRetryCmd(),
		newQueueStatusCmd(),
		newWatchCmd(),
	)

	return root
}

// invocation carries the per-run engine and its stop function.
type invocation struct {
	cancel context.CancelFunc
	eng    *engine.Engine
}

// invocations tracks each root command invocation by its root command
// pointer rather than a single package-level var, since tests may
// construct and run the root command more than once, including
// concurrently. invocationsMu guards concurrent access to the map itself.
var (
	invocationsMu sync.Mutex
	invocations   = map[*cobra.Command]invocation{}
)
