package chart

import (
	"context"
	"errors"
	"os/exec"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/astronomer/astronomer/internal/manifest"
)

const (
	cronJobTemplate     = "charts/astronomer/templates/config-syncer/config-syncer-cronjob.yaml"
	roleTemplate        = "charts/astronomer/templates/config-syncer/config-syncer-role.yaml"
	roleBindingTemplate = "charts/astronomer/templates/config-syncer/config-syncer-rolebinding.yaml"
	configMapTemplate   = "charts/astronomer/templates/houston/houston-configmap.yaml"
)

// Both renderers must honour the same contract, so they share these specs.
func rendererContract(newRenderer func() Renderer) {
	var (
		ctx context.Context
		r   Renderer
	)

	BeforeEach(func() {
		ctx = context.Background()
		r = newRenderer()
	})

	render := func(opts RenderOptions) (string, error) {
		opts.Validate = false
		out, err := r.Render(ctx, opts)
		return string(out), err
	}

	It("should render every template with source comments", func() {
		out, err := render(NewRenderOptions(fixtureChart))
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("# Source: platform/" + configMapTemplate))
		Expect(out).NotTo(ContainSubstring("NOTES.txt"))

		objs, err := manifest.Parse([]byte(out))
		Expect(err).NotTo(HaveOccurred())
		Expect(manifest.Names(objs)).To(ContainElements(
			"ConfigMap/release-name-houston-config",
			"Deployment/release-name-houston",
			"CronJob/release-name-config-syncer",
			"ClusterRole/release-name-config-syncer",
			"Job/release-name-houston-db-migrations",
			"Ingress/release-name-houston-ingress",
		))
	})

	It("should pass the base domain with --set precedence", func() {
		opts := NewRenderOptions(fixtureChart)
		opts.BaseDomain = "astro.example.org"
		opts.Values = map[string]any{"global": map[string]any{"baseDomain": "ignored.example.com"}}
		opts.ShowOnly = []string{"charts/astronomer/templates/houston/houston-ingress.yaml"}

		out, err := render(opts)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("houston.astro.example.org"))
		Expect(out).NotTo(ContainSubstring("ignored.example.com"))
	})

	It("should restrict output to show-only templates in order", func() {
		opts := NewRenderOptions(fixtureChart)
		opts.Values = map[string]any{"global": map[string]any{
			"features": map[string]any{"namespacePools": map[string]any{
				"enabled":    true,
				"namespaces": map[string]any{"create": true, "names": []any{"my-namespace-1", "my-namespace-2"}},
			}},
		}}
		opts.ShowOnly = []string{roleTemplate, roleBindingTemplate}

		out, err := render(opts)
		Expect(err).NotTo(HaveOccurred())
		objs, err := manifest.Parse([]byte(out))
		Expect(err).NotTo(HaveOccurred())
		Expect(objs).To(HaveLen(6))
		for i, ns := range []string{"my-namespace-1", "my-namespace-2", "default"} {
			Expect(objs[i].GetKind()).To(Equal("Role"))
			Expect(objs[i].GetNamespace()).To(Equal(ns))
			Expect(objs[i+3].GetKind()).To(Equal("RoleBinding"))
			Expect(objs[i+3].GetNamespace()).To(Equal(ns))
		}
	})

	It("should use the release namespace", func() {
		opts := NewRenderOptions(fixtureChart)
		opts.Namespace = "astronomer"
		opts.ShowOnly = []string{roleBindingTemplate}
		out, err := render(opts)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("namespace: astronomer"))
	})

	It("should fail for show-only templates with null output", func() {
		opts := NewRenderOptions(fixtureChart)
		opts.Values = map[string]any{"global": map[string]any{"rbacEnabled": false}}
		opts.ShowOnly = []string{roleTemplate}

		_, err := render(opts)
		Expect(errors.Is(err, ErrTemplateNotFound)).To(BeTrue())
		var renderErr *RenderError
		Expect(errors.As(err, &renderErr)).To(BeTrue())
	})

	It("should surface template failures as RenderError", func() {
		opts := NewRenderOptions(fixtureChart)
		opts.Values = map[string]any{"global": map[string]any{"privateRegistry": map[string]any{"enabled": true}}}

		_, err := render(opts)
		var renderErr *RenderError
		Expect(errors.As(err, &renderErr)).To(BeTrue())
		Expect(renderErr.Stderr).To(ContainSubstring("global.privateRegistry.repository is required"))
	})

	It("should derive the cron schedule from the release name", func() {
		opts := NewRenderOptions(fixtureChart)
		opts.Name = "development-angular-system-6091"
		opts.ShowOnly = []string{cronJobTemplate}

		out, err := render(opts)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring(`schedule: "0 5 * * *"`))
	})
}

var _ = Describe("EngineRenderer", func() {
	rendererContract(func() Renderer { return NewEngineRenderer() })
})

var _ = Describe("CLIRenderer", func() {
	BeforeEach(func() {
		if _, err := exec.LookPath("helm"); err != nil {
			Skip("helm binary not available")
		}
	})

	rendererContract(func() Renderer { return NewCLIRenderer("", false) })

	It("should report the failing command", func() {
		opts := NewRenderOptions(fixtureChart)
		opts.Values = map[string]any{"global": map[string]any{"privateRegistry": map[string]any{"enabled": true}}}
		_, err := NewCLIRenderer("", false).Render(context.Background(), opts)

		var renderErr *RenderError
		Expect(errors.As(err, &renderErr)).To(BeTrue())
		Expect(renderErr.ExitCode).To(Equal(1))
		Expect(strings.Join(renderErr.Command[:2], " ")).To(Equal("helm template"))
	})
})

var _ = Describe("CLIRenderer without helm", func() {
	It("should fail with a RenderError when the binary is missing", func() {
		r := NewCLIRenderer("/nonexistent/helm", false)
		_, err := r.Render(context.Background(), NewRenderOptions(fixtureChart))
		var renderErr *RenderError
		Expect(errors.As(err, &renderErr)).To(BeTrue())
		Expect(renderErr.ExitCode).To(Equal(-1))
	})
})
