package cli

import (
	"io"
	"os"
	"time"

	"slotbook/internal/config"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// ConfigEnv names the environment variable consulted when --config is unset.
const ConfigEnv = "SLOTBOOK_CONFIG_PATH"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
}

// NewRootCommand creates the root command for the slotbook CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "slotbook",
		Short: "Time-slot booking service",
		Long:  "Generates bookable time slots, takes reservations and streams changes to subscribers.",
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", os.Getenv(ConfigEnv), "path to config.yaml")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewGenerateCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))

	return cmd
}

// logger writes human-readable logs to w; stdout stays free for command output.
func (o *RootOptions) logger(w io.Writer) zerolog.Logger {
	level := zerolog.InfoLevel
	if o.Verbose {
		level = zerolog.DebugLevel
	}
	output := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}

func (o *RootOptions) loadConfig() (*config.Config, error) {
	return config.Load(o.ConfigPath)
}
