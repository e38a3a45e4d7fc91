package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/astronomer/astronomer/internal/chart"
	apperrors "github.com/astronomer/astronomer/internal/errors"
	"github.com/astronomer/astronomer/internal/manifest"
)

func newRenderCmd(a *app) *cobra.Command {
	var (
		vf       valueFlags
		showOnly []string
		list     bool
		repos    []string
	)
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render the chart, validating every object against its Kubernetes schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			user, err := vf.load()
			if err != nil {
				return err
			}
			r, err := a.renderer()
			if err != nil {
				return err
			}

			for _, repo := range repos {
				name, url, ok := strings.Cut(repo, "=")
				if !ok {
					return apperrors.New(apperrors.ErrCodeInvalidRequest, fmt.Sprintf("invalid --repo %q, want <name>=<url>", repo))
				}
				cli, ok := r.(*chart.CLIRenderer)
				if !ok {
					a.log.Warn("ignoring --repo for a renderer without a helm binary", "renderer", r.Name(), "repo", name)
					continue
				}
				if err := cli.RepoAdd(ctx, name, url); err != nil {
					return apperrors.Wrap(apperrors.ErrCodeUnavailable, "failed to add chart repository", err)
				}
			}

			opts, err := a.renderOptions(user)
			if err != nil {
				return err
			}
			opts.ShowOnly = showOnly

			out := cmd.OutOrStdout()
			if list {
				objs, err := chart.Render(ctx, r, opts)
				if err != nil {
					return err
				}
				for _, name := range manifest.Names(objs) {
					fmt.Fprintln(out, name)
				}
				return nil
			}

			output, err := chart.RenderString(ctx, r, opts)
			if err != nil {
				return err
			}
			if opts.Validate {
				objs, err := manifest.Parse([]byte(output))
				if err != nil {
					return err
				}
				for _, obj := range objs {
					if err := opts.Validator.Validate(ctx, obj, opts.KubeVersion); err != nil {
						return err
					}
				}
			}
			_, err = fmt.Fprint(out, output)
			return err
		},
	}
	vf.register(cmd)
	cmd.Flags().StringArrayVarP(&showOnly, "show-only", "s", nil, "only render the template at this chart relative path, may be repeated")
	cmd.Flags().BoolVar(&list, "list", false, "print Kind/name of every rendered object instead of the manifests")
	cmd.Flags().StringArrayVar(&repos, "repo", nil, "add a chart repository before rendering (name=url), may be repeated")
	return cmd
}
