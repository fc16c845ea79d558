package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/voxrow/voxrow/internal/app"
	"github.com/voxrow/voxrow/pkg/config"
	"github.com/voxrow/voxrow/pkg/env"
	"github.com/voxrow/voxrow/pkg/pipeline"
)

const (
	exitFailure       = 1
	exitConfiguration = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(exitCode(err))
	}
}

// exitCode maps configuration problems to 2 and everything else to 1.
func exitCode(err error) int {
	if pipeline.IsConfiguration(err) {
		return exitConfiguration
	}
	return exitFailure
}

type rootOptions struct {
	configPath string
	envDir     string
}

func newRootCmd(outW, errW io.Writer) *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "voxrow",
		Short:         "Voxrow ETL engine",
		Long:          "Captures Indonesian public economic data into a datalake and publishes datamarts.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(outW)
	rootCmd.SetErr(errW)
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to a YAML configuration file (defaults are used when empty)")
	rootCmd.PersistentFlags().StringVar(&opts.envDir, "env-dir", ".", "Directory holding the optional .env file")

	rootCmd.AddCommand(
		newExtractBPSInflationCmd(opts),
		newExtractIDXStockSummaryCmd(opts),
		newServeCmd(opts),
		newValidateCmd(opts),
		newInitCmd(),
	)
	return rootCmd
}

func newExtractBPSInflationCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "extract-bps-inflation",
		Short: "Capture the BPS inflation table and publish the inflation datamart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.build(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			loc, err := a.ExtractBPSInflation(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), loc)
			return nil
		},
	}
}

func newExtractIDXStockSummaryCmd(opts *rootOptions) *cobra.Command {
	var endDate string
	cmd := &cobra.Command{
		Use:   "extract-idx-stock-summary START_DATE",
		Short: "Capture the IDX stock summary of one day or of a date range",
		Long: "Captures START_DATE alone, or every day from START_DATE to --end-date. " +
			"Dates are YYYY-MM-DD; weekends are skipped.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.build(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			start, err := a.ParseDate(args[0])
			if err != nil {
				return &pipeline.ConfigurationError{Msg: err.Error()}
			}
			var end *time.Time
			if endDate != "" {
				d, err := a.ParseDate(endDate)
				if err != nil {
					return &pipeline.ConfigurationError{Msg: err.Error()}
				}
				end = &d
			}
			return a.ExtractIDXStockSummary(cmd.Context(), start, end)
		},
	}
	cmd.Flags().StringVar(&endDate, "end-date", "", "Last day of the range, YYYY-MM-DD")
	return cmd
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the authenticated HTTP trigger server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.build(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Serve(cmd.Context())
		},
	}
}

// build loads settings and configuration and wires the application.
func (o *rootOptions) build(cmd *cobra.Command) (*app.App, error) {
	settings, err := env.Load(o.envDir)
	if err != nil {
		return nil, err
	}
	cfg := config.Default()
	if o.configPath != "" {
		if cfg, err = config.NewParser().Parse(o.configPath); err != nil {
			return nil, &pipeline.ConfigurationError{Msg: err.Error()}
		}
	}
	return app.NewApp(cmd.Context(), cmd.ErrOrStderr(), cfg, settings)
}
