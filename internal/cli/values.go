package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"helm.sh/helm/v3/pkg/strvals"

	apperrors "github.com/astronomer/astronomer/internal/errors"
	"github.com/astronomer/astronomer/internal/values"
)

// valueFlags are the -f/--set flags shared by commands that render.
type valueFlags struct {
	files []string
	sets  []string
}

func (v *valueFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&v.files, "values", "f", nil, "values file, may be repeated")
	cmd.Flags().StringArrayVar(&v.sets, "set", nil, "set a value on the command line (a.b=c), may be repeated")
}

// load merges the values files in order, then applies --set.
func (v *valueFlags) load() (map[string]any, error) {
	merged := map[string]any{}
	for _, file := range v.files {
		vals, err := values.ReadFile(file)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrCodeInvalidRequest, "failed to read values file", err)
		}
		if merged, err = values.Merge(merged, vals); err != nil {
			return nil, err
		}
	}
	for _, set := range v.sets {
		if err := strvals.ParseInto(set, merged); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrCodeInvalidRequest, fmt.Sprintf("failed to parse --set %s", set), err)
		}
	}
	return merged, nil
}

func newValuesCmd(a *app) *cobra.Command {
	var (
		vf     valueFlags
		mounts []string
		asPath bool
	)
	cmd := &cobra.Command{
		Use:   "values [chart]",
		Short: "Print the merged values of a chart and all of its subcharts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := a.cfg.Chart.Dir
			if len(args) == 1 {
				dir = args[0]
			}
			user, err := vf.load()
			if err != nil {
				return err
			}

			loader := values.NewLoader()
			workDir, err := os.MkdirTemp("", "astro-chart-values-")
			if err != nil {
				return err
			}
			defer os.RemoveAll(workDir)
			loader.WorkDir = workDir

			merged, err := loader.Generate(cmd.Context(), dir, user, mounts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asPath {
				for _, line := range values.AsPaths(merged) {
					fmt.Fprintln(out, line)
				}
				return nil
			}
			data, err := values.Marshal(merged)
			if err != nil {
				return err
			}
			_, err = out.Write(data)
			return err
		},
	}
	vf.register(cmd)
	cmd.Flags().StringArrayVar(&mounts, "mount", nil, "mount a chart directory or values file at a dotted key (a.b=path), may be repeated")
	cmd.Flags().BoolVar(&asPath, "as-path", false, "print values as foo.bar=value lines")
	return cmd
}
