// Package cli implements the astro-chart command tree.
package cli

import (
	"context"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/astronomer/astronomer/internal/chart"
	"github.com/astronomer/astronomer/internal/config"
	apperrors "github.com/astronomer/astronomer/internal/errors"
	"github.com/astronomer/astronomer/internal/logging"
	"github.com/astronomer/astronomer/internal/metrics"
	"github.com/astronomer/astronomer/internal/schema"
	"github.com/astronomer/astronomer/internal/versions"
)

// flagMappings maps persistent flags onto configuration keys.
var flagMappings = map[string]string{
	"chart-dir":        "chart.dir",
	"release-name":     "chart.release_name",
	"kube-version":     "chart.kube_version",
	"base-domain":      "chart.base_domain",
	"namespace":        "chart.namespace",
	"renderer":         "chart.renderer",
	"helm-binary":      "chart.helm_binary",
	"validate":         "schema.validate",
	"schema-cache-dir": "schema.cache_dir",
	"schema-base-url":  "schema.base_url",
	"log-level":        "log.level",
	"log-format":       "log.format",
	"metrics-file":     "metrics.file",
	"debug":            "debug",
}

// app carries what every command needs once configuration is loaded.
type app struct {
	configPath string
	cfg        *config.Config
	log        *slog.Logger
}

// NewRootCmd builds the astro-chart command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}
	defaults := config.Defaults()

	root := &cobra.Command{
		Use:           "astro-chart",
		Short:         "Render, validate and audit the Astronomer platform chart",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.configPath, cmd.Flags(), flagMappings)
			if err != nil {
				return apperrors.Wrap(apperrors.ErrCodeInvalidRequest, "invalid configuration", err)
			}
			a.cfg = cfg
			a.log = logging.NewWithWriter(cfg.Log, cmd.ErrOrStderr())
			cmd.SetContext(logging.NewContext(cmd.Context(), a.log))
			return nil
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			if a.cfg == nil || a.cfg.Metrics.File == "" {
				return nil
			}
			if err := metrics.WriteFile(a.cfg.Metrics.File); err != nil {
				return apperrors.Wrap(apperrors.ErrCodeInternal, "failed to write metrics file", err)
			}
			return nil
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&a.configPath, "config", "", "path to a YAML configuration file")
	f.String("chart-dir", defaults.Chart.Dir, "chart to render")
	f.String("release-name", defaults.Chart.ReleaseName, "release name")
	f.String("kube-version", defaults.Chart.KubeVersion, "Kubernetes version to render for")
	f.String("base-domain", defaults.Chart.BaseDomain, "value of global.baseDomain")
	f.String("namespace", "", "release namespace")
	f.String("renderer", defaults.Chart.Renderer, "renderer to use (cli, engine)")
	f.String("helm-binary", defaults.Chart.HelmBinary, "helm executable used by the cli renderer")
	f.Bool("validate", defaults.Schema.Validate, "validate rendered objects against Kubernetes JSON schemas")
	f.String("schema-cache-dir", defaults.Schema.CacheDir, "directory caching downloaded schemas")
	f.String("schema-base-url", defaults.Schema.BaseURL, "schema repository root")
	f.String("log-level", defaults.Log.Level, "log level (debug, info, warn, error)")
	f.String("log-format", defaults.Log.Format, "log format (text, json)")
	f.String("metrics-file", "", "write Prometheus text metrics to this file on exit")
	f.Bool("debug", false, "keep temporary values files and log helm command lines")

	root.AddCommand(
		newRenderCmd(a),
		newImagesCmd(a),
		newVerifyTagsCmd(a),
		newProbesCmd(a),
		newValuesCmd(a),
		newPinDigestsCmd(a),
		newCronCmd(),
		newCertsCmd(),
		newLintCmd(),
		newKubeVersionsCmd(),
		newSchemaCmd(a),
		newConfigCmd(a),
	)
	return root
}

// Execute runs the command tree and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		root.PrintErrln("Error:", err)
		return ExitCode(err)
	}
	return 0
}

// ExitCode maps an error to a process exit code: 2 for invalid input, 1
// otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if apperrors.CodeOf(err) == apperrors.ErrCodeInvalidRequest {
		return 2
	}
	return 1
}

func (a *app) renderer() (chart.Renderer, error) {
	r, err := chart.NewRenderer(a.cfg.Chart.Renderer, a.cfg.Chart.HelmBinary, a.cfg.Debug)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInvalidRequest, "invalid renderer", err)
	}
	return r, nil
}

func (a *app) validator() (*schema.Validator, error) {
	return schema.New(
		schema.WithCacheDir(a.cfg.Schema.CacheDir),
		schema.WithBaseURL(a.cfg.Schema.BaseURL),
	)
}

// renderOptions builds render options from configuration and user values.
func (a *app) renderOptions(values map[string]any) (chart.RenderOptions, error) {
	opts := chart.NewRenderOptions(a.cfg.Chart.Dir)
	opts.Name = a.cfg.Chart.ReleaseName
	kubeVersion, err := versions.Normalize(a.cfg.Chart.KubeVersion)
	if err != nil {
		return opts, apperrors.Wrap(apperrors.ErrCodeInvalidRequest, "invalid kube version", err)
	}
	opts.KubeVersion = kubeVersion
	opts.BaseDomain = a.cfg.Chart.BaseDomain
	opts.Namespace = a.cfg.Chart.Namespace
	opts.Values = values
	opts.Validate = a.cfg.Schema.Validate
	if opts.Validate {
		v, err := a.validator()
		if err != nil {
			return opts, err
		}
		opts.Validator = v
	}
	return opts, nil
}
