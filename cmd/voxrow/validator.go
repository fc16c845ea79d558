package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/voxrow/voxrow/pkg/config"
	"github.com/voxrow/voxrow/pkg/pipeline"
)

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate-config",
		Short: "Validate the file given with --config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runValidate(cmd, opts.configPath)
		},
	}
}

func runValidate(cmd *cobra.Command, configPath string) error {
	if configPath == "" {
		return &pipeline.ConfigurationError{Msg: "--config is required"}
	}
	cfg, err := validateConfig(configPath)
	if err != nil {
		return &pipeline.ConfigurationError{Msg: fmt.Sprintf("configuration validation failed: %v", err)}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Configuration is valid! (timezone %s, datalake %q, datamart %q)\n",
		cfg.Timezone, cfg.Buckets.Datalake, cfg.Buckets.Datamart)
	return nil
}

func validateConfig(configPath string) (*config.Config, error) {
	parser := config.NewParser()
	return parser.Parse(configPath)
}
