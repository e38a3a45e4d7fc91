package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/astronomer/astronomer/internal/chart"
	apperrors "github.com/astronomer/astronomer/internal/errors"
	"github.com/astronomer/astronomer/internal/schema"
	"github.com/astronomer/astronomer/internal/versions"
)

func newSchemaCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Manage the Kubernetes JSON schema cache",
	}

	var (
		vf          valueFlags
		allVersions bool
	)
	prefetch := &cobra.Command{
		Use:   "prefetch [apiVersion/Kind]...",
		Short: "Download schemas so chart tests can run offline",
		Long: "Downloads the schemas of the given references, or of every kind the chart\n" +
			"renders when none are given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var refs []schema.Ref
			for _, arg := range args {
				ref, err := schema.ParseRef(arg)
				if err != nil {
					return apperrors.Wrap(apperrors.ErrCodeInvalidRequest, "invalid schema reference", err)
				}
				refs = append(refs, ref)
			}

			if len(refs) == 0 {
				user, err := vf.load()
				if err != nil {
					return err
				}
				r, err := a.renderer()
				if err != nil {
					return err
				}
				opts, err := a.renderOptions(user)
				if err != nil {
					return err
				}
				opts.Validate = false
				objs, err := chart.Render(ctx, r, opts)
				if err != nil {
					return err
				}
				seen := map[schema.Ref]bool{}
				for _, obj := range objs {
					ref := schema.Ref{APIVersion: obj.GetAPIVersion(), Kind: obj.GetKind()}
					if !seen[ref] {
						seen[ref] = true
						refs = append(refs, ref)
					}
				}
				sort.Slice(refs, func(i, j int) bool {
					return refs[i].APIVersion+"/"+refs[i].Kind < refs[j].APIVersion+"/"+refs[j].Kind
				})
			}

			var kubeVersions []string
			if allVersions {
				kubeVersions = versions.Supported()
			} else {
				v, err := versions.Normalize(a.cfg.Chart.KubeVersion)
				if err != nil {
					return apperrors.Wrap(apperrors.ErrCodeInvalidRequest, "invalid kube version", err)
				}
				kubeVersions = []string{v}
			}

			v, err := a.validator()
			if err != nil {
				return err
			}
			if err := v.Prefetch(ctx, refs, kubeVersions); err != nil {
				return apperrors.Wrap(apperrors.ErrCodeUnavailable, "failed to prefetch schemas", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cached %d schemas for %d Kubernetes versions in %s\n",
				len(refs), len(kubeVersions), v.CacheDir())
			return nil
		},
	}
	vf.register(prefetch)
	prefetch.Flags().BoolVar(&allVersions, "all-versions", false, "prefetch for every supported Kubernetes version")

	cmd.AddCommand(prefetch)
	return cmd
}
