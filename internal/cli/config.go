package cli

import (
	"github.com/spf13/cobra"

	"github.com/astronomer/astronomer/internal/config"
	apperrors "github.com/astronomer/astronomer/internal/errors"
)

func newConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loader := config.NewLoader(config.EnvPrefix)
			if err := loader.LoadWithDefaults(config.Defaults(), a.configPath); err != nil {
				return apperrors.Wrap(apperrors.ErrCodeInvalidRequest, "invalid configuration", err)
			}
			if err := loader.LoadFlags(cmd.Flags(), flagMappings); err != nil {
				return apperrors.Wrap(apperrors.ErrCodeInvalidRequest, "invalid configuration", err)
			}
			return loader.DumpYAML(cmd.OutOrStdout())
		},
	}
}
