package chart

import (
	"context"
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/astronomer/astronomer/internal/logging"
	"github.com/astronomer/astronomer/internal/manifest"
	"github.com/astronomer/astronomer/internal/metrics"
	"github.com/astronomer/astronomer/internal/schema"
)

// Renderer produces the multi-document YAML stream of a chart, "# Source:"
// comments included.
type Renderer interface {
	Name() string
	Render(ctx context.Context, opts RenderOptions) ([]byte, error)
}

// Render renders the chart, parses the output and, when opts.Validate is set,
// validates every object against its Kubernetes JSON schema. Output with no
// documents yields nil objects and no error.
func Render(ctx context.Context, r Renderer, opts RenderOptions) ([]*unstructured.Unstructured, error) {
	opts = opts.withDefaults()
	logger := logging.FromContext(ctx).With("renderer", r.Name(), "release", opts.Name)

	started := time.Now()
	out, err := r.Render(ctx, opts)
	metrics.ObserveRender(r.Name(), started, err)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}

	objs, err := manifest.Parse(out)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rendered chart: %w", err)
	}
	metrics.AddRenderedObjects(len(objs))
	logger.Debug("rendered chart", "objects", len(objs), "duration", time.Since(started))

	if opts.Validate {
		validator := opts.Validator
		if validator == nil {
			validator = schema.Default()
		}
		for _, obj := range objs {
			if err := validator.Validate(ctx, obj, opts.KubeVersion); err != nil {
				return nil, err
			}
		}
	}
	return objs, nil
}

// RenderString is Render for callers that only need the raw output.
func RenderString(ctx context.Context, r Renderer, opts RenderOptions) (string, error) {
	started := time.Now()
	out, err := r.Render(ctx, opts.withDefaults())
	metrics.ObserveRender(r.Name(), started, err)
	return string(out), err
}

// NewRenderer returns the renderer registered under kind ("cli" or "engine").
func NewRenderer(kind, helmBinary string, debug bool) (Renderer, error) {
	switch kind {
	case "", "cli":
		return NewCLIRenderer(helmBinary, debug), nil
	case "engine":
		return NewEngineRenderer(), nil
	default:
		return nil, fmt.Errorf("unknown renderer %q", kind)
	}
}
