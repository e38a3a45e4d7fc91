package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"github.com/astronomer/astronomer/internal/chart"
	apperrors "github.com/astronomer/astronomer/internal/errors"
	"github.com/astronomer/astronomer/internal/images"
	"github.com/astronomer/astronomer/internal/values"
)

// privateRegistryValues switches the chart to a private registry.
func privateRegistryValues() map[string]any {
	return map[string]any{
		"global": map[string]any{
			"privateRegistry": map[string]any{
				"enabled":    true,
				"repository": "example.com/the-private-registry",
			},
		},
	}
}

func newImagesCmd(a *app) *cobra.Command {
	var (
		vf              valueFlags
		privateRegistry bool
		withHouston     bool
	)
	cmd := &cobra.Command{
		Use:   "images",
		Short: "List the container images deployed by the chart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			user, err := vf.load()
			if err != nil {
				return err
			}
			if privateRegistry {
				if user, err = values.Merge(user, privateRegistryValues()); err != nil {
					return err
				}
			}

			r, err := a.renderer()
			if err != nil {
				return err
			}
			opts, err := a.renderOptions(user)
			if err != nil {
				return err
			}
			objs, err := chart.Render(ctx, r, opts)
			if err != nil {
				return err
			}

			res, err := images.Collect(objs, images.Options{
				WithHouston:     withHouston,
				PrivateRegistry: privateRegistry,
				ReleaseName:     opts.Name,
			})
			if err != nil {
				return err
			}
			if len(res.PublicRegistryUsers) > 0 {
				for _, u := range res.PublicRegistryUsers {
					fmt.Fprintln(cmd.ErrOrStderr(), u)
				}
				return apperrors.New(apperrors.ErrCodeInvalidRequest,
					fmt.Sprintf("%d objects still pull from the public registry", len(res.PublicRegistryUsers)))
			}
			return images.Report(cmd.OutOrStdout(), res.Images)
		},
	}
	vf.register(cmd)
	cmd.Flags().BoolVar(&privateRegistry, "private-registry", false, "render with a private registry and report objects still using quay.io")
	cmd.Flags().BoolVar(&withHouston, "with-houston", false, "include images referenced by the houston configmap")
	return cmd
}

func newVerifyTagsCmd(a *app) *cobra.Command {
	var (
		vf     valueFlags
		prefix string
	)
	cmd := &cobra.Command{
		Use:   "verify-tags",
		Short: "Fail when an image is deployed with more than one tag",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
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

			output, err := chart.RenderString(cmd.Context(), r, opts)
			if err != nil {
				return err
			}
			err = images.VerifySingleTag(images.ScanReferences(output, prefix), prefix)
			var multi *images.MultipleTagsError
			if errors.As(err, &multi) {
				fmt.Fprintln(cmd.ErrOrStderr(), "ERROR:", multi.Error())
			}
			return err
		},
	}
	vf.register(cmd)
	cmd.Flags().StringVar(&prefix, "prefix", "quay.io/astronomer", "only check images under this prefix")
	return cmd
}

func newPinDigestsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pin-digests [values-file]",
		Short: "Print the image and tag entries of a values file pinned to sha256 digests",
		Long: "Reads a values file (or stdin) and prints a values document holding only the\n" +
			"entries whose tags were replaced by registry digests.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if len(args) == 1 {
				data, err = os.ReadFile(args[0])
			} else {
				data, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return apperrors.Wrap(apperrors.ErrCodeInvalidRequest, "failed to read values", err)
			}

			var vals map[string]any
			if err := yaml.Unmarshal(data, &vals); err != nil {
				return apperrors.Wrap(apperrors.ErrCodeInvalidRequest, "failed to parse values", err)
			}

			pinned, err := images.PinDigests(cmd.Context(), vals, images.NewRemoteResolver())
			if err != nil {
				// Entries that resolved are still printed.
				a.log.Error("some images could not be pinned", "error", err)
			}
			out, merr := yaml.Marshal(pinned)
			if merr != nil {
				return merr
			}
			if _, werr := cmd.OutOrStdout().Write(out); werr != nil {
				return werr
			}
			if err != nil {
				return apperrors.Wrap(apperrors.ErrCodeUnavailable, "digest lookup failed", err)
			}
			return nil
		},
	}
	return cmd
}
