package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"github.com/astronomer/astronomer/internal/certs"
	"github.com/astronomer/astronomer/internal/cron"
	apperrors "github.com/astronomer/astronomer/internal/errors"
	"github.com/astronomer/astronomer/internal/lint"
	"github.com/astronomer/astronomer/internal/versions"
)

func newCronCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cron <release-name>...",
		Short: "Print the default daily schedule assigned to each release",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, name := range args {
				if len(args) == 1 {
					fmt.Fprintln(out, cron.Schedule(name))
					continue
				}
				fmt.Fprintf(out, "%s\t%s\n", name, cron.Schedule(name))
			}
			return nil
		},
	}
}

func newCertsCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "certs",
		Short: "Create and validate certificates for functional tests",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Root().PersistentPreRunE(cmd, args); err != nil {
				return err
			}
			if dir != "" {
				return nil
			}
			d, err := certs.DefaultDir()
			if err != nil {
				return err
			}
			dir = d
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", "", "certificate directory (default ~/.local/share/astronomer-software/certs)")

	var domain string
	generateTLS := &cobra.Command{
		Use:   "generate-tls",
		Short: "Create the astronomer-tls certificate and key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return certs.GenerateTLS(cmd.Context(), dir, domain)
		},
	}
	generateTLS.Flags().StringVar(&domain, "domain", certs.DefaultDomain, "domain the wildcard certificate is issued for")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "cleanup",
			Short: "Remove certificates that expire within four weeks",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				_, err := certs.CleanupOld(cmd.Context(), dir, certs.DefaultWindow)
				return err
			},
		},
		generateTLS,
		&cobra.Command{
			Use:   "generate-private-ca",
			Short: "Create the astronomer-private-ca certificate and key",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return certs.GeneratePrivateCA(cmd.Context(), dir)
			},
		},
		&cobra.Command{
			Use:   "validate <cert-path>",
			Short: "Check that a certificate is currently valid",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := certs.Validate(args[0]); err != nil {
					return apperrors.Wrap(apperrors.ErrCodeInvalidRequest, "invalid certificate", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Certificate is valid")
				return nil
			},
		},
	)
	return cmd
}

func newLintCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lint",
		Short: "Repository checks",
	}

	unittests := &cobra.Command{
		Use:   "unittests [repo-root]",
		Short: "Check that templates referenced by helm-unittest suites exist",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}
			report, err := lint.ValidateUnittestTemplates(root)
			if err != nil {
				return err
			}
			for _, perr := range report.ParseErrors {
				fmt.Fprintln(cmd.ErrOrStderr(), "ERROR:", perr)
			}
			for _, missing := range report.Missing {
				fmt.Fprintln(cmd.OutOrStdout(), "Missing:", missing)
			}
			if !report.OK() {
				return apperrors.New(apperrors.ErrCodeNotFound, "helm-unittest suites reference missing templates")
			}
			return nil
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "filenames <file>...",
			Short: "Refuse filenames containing misspelled component names",
			RunE: func(_ *cobra.Command, args []string) error {
				if err := lint.RefuseFilenames(args, lint.DefaultPairs); err != nil {
					return apperrors.Wrap(apperrors.ErrCodeInvalidRequest, "refused filename", err)
				}
				return nil
			},
		},
		unittests,
	)
	return cmd
}

func newKubeVersionsCmd() *cobra.Command {
	var (
		remote bool
		repo   string
		n      int
	)
	cmd := &cobra.Command{
		Use:   "kube-versions",
		Short: "Print the Kubernetes versions the chart is tested against",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list := versions.Supported()
			if remote {
				tags, err := versions.FetchTags(cmd.Context(), nil, versions.DockerHubTagsURL, repo, 100)
				if err != nil {
					return apperrors.Wrap(apperrors.ErrCodeUnavailable, "failed to list tags", err)
				}
				list = versions.LatestPatches(tags, n)
			}
			data, err := yaml.Marshal(list)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().BoolVar(&remote, "remote", false, "list the newest patch releases published on Docker Hub instead")
	cmd.Flags().StringVar(&repo, "repo", "kindest/node", "Docker Hub repository to list")
	cmd.Flags().IntVarP(&n, "count", "n", 5, "number of versions to include")
	return cmd
}
