package chart

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"sigs.k8s.io/yaml"

	"github.com/astronomer/astronomer/internal/logging"
)

// CLIRenderer renders charts by running the helm binary.
type CLIRenderer struct {
	// Binary is the helm executable, "helm" when empty.
	Binary string
	// Debug keeps the generated values file and logs the full command.
	Debug bool
}

// NewCLIRenderer returns a renderer that shells out to binary.
func NewCLIRenderer(binary string, debug bool) *CLIRenderer {
	return &CLIRenderer{Binary: binary, Debug: debug}
}

func (r *CLIRenderer) Name() string {
	return "cli"
}

func (r *CLIRenderer) binary() string {
	if r.Binary == "" {
		return "helm"
	}
	return r.Binary
}

// Args builds the helm template command line for opts, excluding the binary.
func Args(opts RenderOptions, valuesFile string) []string {
	args := []string{
		"template",
		"--kube-version", opts.KubeVersion,
		opts.Name,
		opts.ChartDir,
		"--set", "global.baseDomain=" + opts.BaseDomain,
		"--values", valuesFile,
	}
	if opts.Namespace != "" {
		args = append(args, "--namespace", opts.Namespace)
	}
	for _, p := range opts.ShowOnly {
		args = append(args, "--show-only", p)
	}
	return args
}

// Render runs helm template and returns its stdout.
func (r *CLIRenderer) Render(ctx context.Context, opts RenderOptions) ([]byte, error) {
	opts = opts.withDefaults()
	logger := logging.FromContext(ctx)

	if err := opts.checkShowOnly(); err != nil {
		return nil, err
	}

	valuesFile, err := writeValuesToFile(opts.Values)
	if err != nil {
		return nil, fmt.Errorf("failed to write values to file: %w", err)
	}
	if r.Debug {
		logger.Debug("keeping values file", "path", valuesFile)
	} else {
		defer os.Remove(valuesFile)
	}

	args := Args(opts, valuesFile)
	command := append([]string{r.binary()}, args...)
	logger.Debug("running helm", "command", command)

	cmd := exec.CommandContext(ctx, r.binary(), args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		renderErr := newRenderError(command, stdout.String(), stderr.String(), exitCode, err)
		if r.Debug {
			content, _ := yaml.Marshal(opts.Values)
			logger.Debug("helm template failed",
				"command", renderErr.CommandLine(),
				"values", string(content),
				"stdout", renderErr.Stdout,
				"stderr", renderErr.Stderr,
			)
		}
		return nil, renderErr
	}

	return stdout.Bytes(), nil
}

// RepoAdd registers a chart repository, replacing an existing entry of the
// same name.
func (r *CLIRenderer) RepoAdd(ctx context.Context, name, url string) error {
	cmd := exec.CommandContext(ctx, r.binary(), "repo", "add", name, "--force-update", url)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("helm repo add %s failed: %w\n%s", name, err, string(output))
	}
	logging.FromContext(ctx).Debug("added helm repository", "name", name, "url", url)
	return nil
}
