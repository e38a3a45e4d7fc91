package chart_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/astronomer/astronomer/internal/metrics"
	"github.com/astronomer/astronomer/tests/testhelpers"
)

var _ = Describe("Render metrics", func() {
	It("should count successful renders in the metrics file", func() {
		cfg, err := testhelpers.Settings()
		Expect(err).NotTo(HaveOccurred())
		r, err := testhelpers.NewRenderer(cfg)
		Expect(err).NotTo(HaveOccurred())

		_, err = render(testhelpers.PlatformValues{})
		Expect(err).NotTo(HaveOccurred())

		path := filepath.Join(GinkgoT().TempDir(), "metrics.prom")
		Expect(metrics.WriteFile(path)).To(Succeed())
		content, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())

		value, err := testhelpers.GetMetricValue(string(content), "chart_renders_total",
			map[string]string{"renderer": r.Name(), "result": "success"})
		Expect(err).NotTo(HaveOccurred())
		Expect(value).To(BeNumerically(">=", 1))
	})
})
