package chart

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"helm.sh/helm/v3/pkg/chart/loader"
	"helm.sh/helm/v3/pkg/chartutil"
	"helm.sh/helm/v3/pkg/engine"
	"helm.sh/helm/v3/pkg/releaseutil"
	"helm.sh/helm/v3/pkg/strvals"
	"sigs.k8s.io/yaml"

	"github.com/astronomer/astronomer/internal/logging"
)

// EngineRenderer renders charts in-process with the Helm SDK. Its output
// matches `helm template` for the options it supports.
type EngineRenderer struct{}

// NewEngineRenderer returns an in-process renderer.
func NewEngineRenderer() *EngineRenderer {
	return &EngineRenderer{}
}

func (r *EngineRenderer) Name() string {
	return "engine"
}

// Render loads the chart from disk and renders it.
func (r *EngineRenderer) Render(ctx context.Context, opts RenderOptions) ([]byte, error) {
	opts = opts.withDefaults()
	logger := logging.FromContext(ctx)

	if err := opts.checkShowOnly(); err != nil {
		return nil, err
	}

	command := []string{"engine", opts.Name, opts.ChartDir}
	fail := func(err error) ([]byte, error) {
		return nil, newRenderError(command, "", err.Error(), 1, err)
	}

	chrt, err := loader.Load(opts.ChartDir)
	if err != nil {
		return fail(fmt.Errorf("failed to load chart: %w", err))
	}

	vals, err := userValues(opts)
	if err != nil {
		return fail(err)
	}
	if err := chartutil.ProcessDependencies(chrt, vals); err != nil {
		return fail(fmt.Errorf("failed to process dependencies: %w", err))
	}

	caps := chartutil.DefaultCapabilities.Copy()
	kubeVersion, err := chartutil.ParseKubeVersion(opts.KubeVersion)
	if err != nil {
		return fail(fmt.Errorf("invalid kube version %q: %w", opts.KubeVersion, err))
	}
	caps.KubeVersion = *kubeVersion

	namespace := opts.Namespace
	if namespace == "" {
		namespace = "default"
	}
	releaseOpts := chartutil.ReleaseOptions{
		Name:      opts.Name,
		Namespace: namespace,
		Revision:  1,
		IsInstall: true,
	}
	renderVals, err := chartutil.ToRenderValues(chrt, vals, releaseOpts, caps)
	if err != nil {
		return fail(err)
	}

	files, err := engine.Render(chrt, renderVals)
	if err != nil {
		return fail(err)
	}
	for name := range files {
		if strings.HasSuffix(name, "NOTES.txt") {
			delete(files, name)
		}
	}

	hooks, manifests, err := releaseutil.SortManifests(files, caps.APIVersions, releaseutil.InstallOrder)
	if err != nil {
		return fail(fmt.Errorf("failed to sort manifests: %w", err))
	}

	var docs []sourceDoc
	for _, m := range manifests {
		docs = append(docs, sourceDoc{path: m.Name, content: m.Content})
	}
	for _, h := range hooks {
		docs = append(docs, sourceDoc{path: h.Path, content: h.Manifest})
	}

	if len(opts.ShowOnly) > 0 {
		docs, err = filterShowOnly(docs, opts.ShowOnly)
		if err != nil {
			return fail(err)
		}
	}

	var out strings.Builder
	for _, d := range docs {
		fmt.Fprintf(&out, "---\n# Source: %s\n%s\n", d.path, d.content)
	}
	logger.Debug("rendered chart in process", "chart", chrt.Name(), "documents", len(docs))
	return []byte(out.String()), nil
}

// userValues merges the caller's values with global.baseDomain, which takes
// precedence the same way --set does on the command line.
func userValues(opts RenderOptions) (map[string]any, error) {
	data, err := yaml.Marshal(opts.Values)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal values to YAML: %w", err)
	}
	vals, err := chartutil.ReadValues(data)
	if err != nil {
		return nil, fmt.Errorf("failed to read values: %w", err)
	}
	if err := strvals.ParseInto("global.baseDomain="+opts.BaseDomain, vals); err != nil {
		return nil, fmt.Errorf("failed parsing --set data: %w", err)
	}
	return vals, nil
}

type sourceDoc struct {
	path    string
	content string
}

// filterShowOnly keeps documents whose chart-relative source path matches one
// of patterns, in pattern order. A pattern matching nothing is an error, as
// with helm.
func filterShowOnly(docs []sourceDoc, patterns []string) ([]sourceDoc, error) {
	var kept []sourceDoc
	seen := map[int]bool{}
	for _, pattern := range patterns {
		pattern = filepath.ToSlash(pattern)
		missing := true
		for i, d := range docs {
			_, rel, _ := strings.Cut(d.path, "/")
			if matched, _ := filepath.Match(pattern, rel); !matched {
				continue
			}
			missing = false
			if !seen[i] {
				seen[i] = true
				kept = append(kept, d)
			}
		}
		if missing {
			return nil, fmt.Errorf("%w %s in chart", ErrTemplateNotFound, pattern)
		}
	}
	return kept, nil
}
