// Package chart renders the platform chart and turns the output into
// Kubernetes objects for assertions.
package chart

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/astronomer/astronomer/internal/versions"
)

const (
	DefaultReleaseName = "release-name"
	DefaultBaseDomain  = "example.com"
)

// ObjectValidator checks a rendered object against the schema of its kind.
type ObjectValidator interface {
	Validate(ctx context.Context, obj *unstructured.Unstructured, kubeVersion string) error
}

// RenderOptions describes one `helm template` run.
type RenderOptions struct {
	// Name is the release name.
	Name string
	// ChartDir is the chart to render.
	ChartDir string
	// Values is marshalled into a values file.
	Values map[string]any
	// ShowOnly restricts output to templates at these chart-relative paths,
	// e.g. "charts/astronomer/templates/houston/houston-configmap.yaml".
	ShowOnly    []string
	KubeVersion string
	// BaseDomain is always passed as --set global.baseDomain.
	BaseDomain string
	Namespace  string
	// Validate checks every rendered object against its JSON schema.
	Validate bool
	// Validator overrides the schema validator used when Validate is set.
	Validator ObjectValidator
}

// NewRenderOptions returns options with the defaults used by the chart tests.
func NewRenderOptions(chartDir string) RenderOptions {
	return RenderOptions{
		Name:        DefaultReleaseName,
		ChartDir:    chartDir,
		KubeVersion: versions.Default(),
		BaseDomain:  DefaultBaseDomain,
		Validate:    true,
	}
}

func (o RenderOptions) withDefaults() RenderOptions {
	if o.Name == "" {
		o.Name = DefaultReleaseName
	}
	if o.KubeVersion == "" {
		o.KubeVersion = versions.Default()
	}
	if o.BaseDomain == "" {
		o.BaseDomain = DefaultBaseDomain
	}
	if o.ChartDir == "" {
		o.ChartDir = "."
	}
	if o.Values == nil {
		o.Values = map[string]any{}
	}
	return o
}

// checkShowOnly rejects show-only paths that do not exist in the chart.
// Glob patterns are left for helm to resolve.
func (o RenderOptions) checkShowOnly() error {
	for _, p := range o.ShowOnly {
		if strings.ContainsAny(p, "*?[") {
			continue
		}
		full := p
		if !filepath.IsAbs(p) {
			full = filepath.Join(o.ChartDir, p)
		}
		if _, err := os.Stat(full); err != nil {
			return &TemplateNotFoundError{Path: p}
		}
	}
	return nil
}
