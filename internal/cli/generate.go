package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"slotbook/internal/config"
	"slotbook/internal/database"
	"slotbook/internal/models"
	"slotbook/internal/slots"

	"github.com/spf13/cobra"
)

// GenerateOptions holds flags for the generate command.
type GenerateOptions struct {
	File      string
	Day       string
	StartHour int
	EndHour   int
}

// NewGenerateCommand creates the generate command.
func NewGenerateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GenerateOptions{}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Create the slots of one or more day configurations",
		Long: `Create the missing slots of day configurations.

Either pass a single configuration with --day, --start and --end, or a YAML
file of configurations with --file. Without flags the slots file from the
config is used. Slots that already exist are left alone.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd.Context(), rootOpts, opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "YAML file with slot configurations")
	cmd.Flags().StringVar(&opts.Day, "day", "", "day to generate (YYYY-MM-DD)")
	cmd.Flags().IntVar(&opts.StartHour, "start", 9, "first hour of the day")
	cmd.Flags().IntVar(&opts.EndHour, "end", 17, "hour the last slot ends")
	cmd.MarkFlagsMutuallyExclusive("file", "day")

	return cmd
}

func runGenerate(ctx context.Context, rootOpts *RootOptions, opts *GenerateOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()
	logger := rootOpts.logger(cmd.ErrOrStderr())

	cfg, err := rootOpts.loadConfig()
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	cfgs, err := opts.configurations(cfg, out)
	if err != nil {
		return err
	}
	if len(cfgs) == 0 {
		return errors.New("no slot configurations to generate")
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	gen := slots.NewGenerator(db,
		slots.WithLocation(loc),
		slots.WithStep(cfg.SlotStep()),
		slots.WithLogger(&logger),
	)
	result := gen.GenerateBatch(ctx, cfgs)
	printBatch(out, result)

	if failed := result.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d of %d configurations failed", len(failed), len(result.Results))
	}
	return nil
}

// configurations resolves the flags to the list to generate. Entries of a
// file that do not parse are reported to out and skipped.
func (o *GenerateOptions) configurations(cfg *config.Config, out io.Writer) ([]models.SlotConfiguration, error) {
	if o.Day != "" {
		c, err := models.ParseSlotConfiguration(o.Day, o.StartHour, o.EndHour)
		if err != nil {
			return nil, err
		}
		return []models.SlotConfiguration{c}, nil
	}

	path := o.File
	if path == "" {
		path = cfg.Slots.ConfigPath
	}
	if path == "" {
		return nil, errors.New("pass --day or --file, or set slots.config_path")
	}

	f, err := config.LoadSlotsFile(path)
	if err != nil {
		return nil, err
	}
	cfgs, err := f.SlotConfigurations()
	if err != nil {
		fmt.Fprintf(out, "skipped: %v\n", err)
	}
	return cfgs, nil
}

func printBatch(out io.Writer, result slots.BatchResult) {
	for _, res := range result.Results {
		if res.Err != nil {
			fmt.Fprintf(out, "%s: failed: %v\n", res.Config, res.Err)
			continue
		}
		fmt.Fprintf(out, "%s: created %d\n", res.Config, res.Created)
	}
	fmt.Fprintf(out, "total created: %d\n", result.Total)
}
