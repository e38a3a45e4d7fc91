package testhelpers

import (
	"context"
	"os/exec"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/astronomer/astronomer/internal/chart"
	"github.com/astronomer/astronomer/internal/config"
)

// RenderOption adjusts the render options built by the helpers.
type RenderOption func(*chart.RenderOptions)

func WithShowOnly(paths ...string) RenderOption {
	return func(o *chart.RenderOptions) { o.ShowOnly = paths }
}

func WithReleaseName(name string) RenderOption {
	return func(o *chart.RenderOptions) { o.Name = name }
}

func WithNamespace(ns string) RenderOption {
	return func(o *chart.RenderOptions) { o.Namespace = ns }
}

func WithKubeVersion(v string) RenderOption {
	return func(o *chart.RenderOptions) { o.KubeVersion = v }
}

func WithBaseDomain(domain string) RenderOption {
	return func(o *chart.RenderOptions) { o.BaseDomain = domain }
}

// WithoutValidation skips schema validation for tests that run offline.
func WithoutValidation() RenderOption {
	return func(o *chart.RenderOptions) { o.Validate = false }
}

// Settings loads the tooling configuration from ASTRO_CHART__* variables.
func Settings() (*config.Config, error) {
	return config.Load("", nil, nil)
}

// NewRenderer returns the configured renderer. The cli renderer falls back
// to the in-process engine when the helm binary is not installed.
func NewRenderer(cfg *config.Config) (chart.Renderer, error) {
	kind := cfg.Chart.Renderer
	if kind == config.RendererCLI {
		if _, err := exec.LookPath(cfg.Chart.HelmBinary); err != nil {
			kind = config.RendererEngine
		}
	}
	return chart.NewRenderer(kind, cfg.Chart.HelmBinary, cfg.Debug)
}

func renderOptions(cfg *config.Config, chartPath string, values PlatformValues, opts []RenderOption) (chart.RenderOptions, error) {
	vals, err := values.ToMap()
	if err != nil {
		return chart.RenderOptions{}, err
	}
	o := chart.NewRenderOptions(chartPath)
	o.Values = vals
	o.Validate = cfg.Schema.Validate
	for _, opt := range opts {
		opt(&o)
	}
	return o, nil
}

// RenderHelmTemplate renders the chart and returns the raw manifest stream.
func RenderHelmTemplate(chartPath string, values PlatformValues, opts ...RenderOption) (string, error) {
	cfg, err := Settings()
	if err != nil {
		return "", err
	}
	r, err := NewRenderer(cfg)
	if err != nil {
		return "", err
	}
	o, err := renderOptions(cfg, chartPath, values, opts)
	if err != nil {
		return "", err
	}
	return chart.RenderString(context.Background(), r, o)
}

// RenderObjects renders the chart and returns the parsed objects, validated
// against their schemas unless disabled.
func RenderObjects(chartPath string, values PlatformValues, opts ...RenderOption) ([]*unstructured.Unstructured, error) {
	cfg, err := Settings()
	if err != nil {
		return nil, err
	}
	r, err := NewRenderer(cfg)
	if err != nil {
		return nil, err
	}
	o, err := renderOptions(cfg, chartPath, values, opts)
	if err != nil {
		return nil, err
	}
	return chart.Render(context.Background(), r, o)
}
