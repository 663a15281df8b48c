// Command statectl reads and writes transaction context state on a remote
// context manager, or serves an in-memory one for development.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"github.com/tailored-agentic-units/statecontext/client"
	"github.com/tailored-agentic-units/statecontext/observability"
	"github.com/tailored-agentic-units/statecontext/state"
)

type globalFlags struct {
	config   string
	endpoint string
	timeout  time.Duration
	verbose  bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "statectl",
		Short:         "Read and write transaction context state",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if flags.verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
				Level: level,
			}))
			slog.SetDefault(logger)
			observability.RegisterObserver("slog", observability.NewSlogObserver(logger))
		},
	}

	root.PersistentFlags().StringVar(&flags.config, "config", "", "Path to client config JSON file")
	root.PersistentFlags().StringVar(&flags.endpoint, "endpoint", "", "Context manager base URL (overrides config)")
	root.PersistentFlags().DurationVar(&flags.timeout, "timeout", 0, "Per-wait reply timeout (overrides config)")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable debug logging to stderr")

	root.AddCommand(newGetCmd(flags))
	root.AddCommand(newSetCmd(flags))
	root.AddCommand(newServeCmd(flags))

	return root
}

// loadConfig resolves the client config from the config file and flag
// overrides.
func (f *globalFlags) loadConfig() (*client.Config, error) {
	cfg := client.DefaultConfig()
	if f.config != "" {
		loaded, err := client.LoadConfig(f.config)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}

	if f.endpoint != "" {
		cfg.Endpoint = f.endpoint
	}
	if f.timeout > 0 {
		cfg.State.WaitTimeout = state.Duration(f.timeout)
	}
	cfg.Stream.Logger = slog.Default()
	return &cfg, nil
}

func (f *globalFlags) newClient() (*client.Client, error) {
	cfg, err := f.loadConfig()
	if err != nil {
		return nil, err
	}
	return client.New(cfg)
}
