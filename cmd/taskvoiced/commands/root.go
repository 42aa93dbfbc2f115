package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"taskvoice/internal/api"
	"taskvoice/internal/bootstrap"
	"taskvoice/internal/config"
)

type options struct {
	configFile string
	logLevel   string
	outputJSON bool
}

// Execute runs the CLI with os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "taskvoiced",
		Short: "Headless push-to-talk voice assistant",
		Long: `taskvoiced runs the taskvoice assistant without the desktop shell.

The serve command exposes the session controls over a local HTTP API with a
websocket event stream at /api/events. The other commands work on the same
data directory and cannot run while serve holds it.

Configuration is read from ~/.config/taskvoice/config.yaml (or --config) and
overridden by environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if opts.configFile != "" {
				return os.Setenv("TASKVOICE_CONFIG", opts.configFile)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default is ~/.config/taskvoice/config.yaml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error (default from TASKVOICE_LOG_LEVEL)")
	root.PersistentFlags().BoolVar(&opts.outputJSON, "json", false, "output as JSON (for piping)")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newThreadsCmd(opts))
	root.AddCommand(newUsageCmd(opts))
	root.AddCommand(newPrefsCmd(opts))
	return root
}

// newLogger returns a JSON logger on stderr so stdout stays parseable.
func (o *options) newLogger(cfg config.Config) *slog.Logger {
	name := o.logLevel
	if name == "" {
		name = cfg.Log.Level
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// build loads configuration and wires the services with a hub as the event
// sink.
func (o *options) build(ctx context.Context) (*bootstrap.Services, *api.Hub, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger := o.newLogger(cfg)
	slog.SetDefault(logger)

	hub := api.NewHub(logger.With("component", "hub"))
	services, err := bootstrap.BuildWithConfig(ctx, cfg, hub, logger)
	if err != nil {
		return nil, nil, err
	}
	return services, hub, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printf(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format, args...)
}
