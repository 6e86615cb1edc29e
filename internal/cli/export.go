package cli

import (
	"context"
	"fmt"
	"time"

	"slotbook/internal/database"
	"slotbook/internal/report"

	"github.com/spf13/cobra"
)

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:           "export",
		Short:         "Write all slots and bookings to an Excel workbook",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd.Context(), rootOpts, out, cmd)
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default slotbook_<timestamp>.xlsx)")

	return cmd
}

func runExport(ctx context.Context, rootOpts *RootOptions, out string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := rootOpts.logger(cmd.ErrOrStderr())

	cfg, err := rootOpts.loadConfig()
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if out == "" {
		out = report.Filename(time.Now().In(loc))
	}
	if err := report.NewExporter(db, loc, &logger).ExportFile(ctx, out); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}
