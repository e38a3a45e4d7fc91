package chart_test

import (
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/astronomer/astronomer/internal/probes"
	"github.com/astronomer/astronomer/tests/testhelpers"
)

var _ = Describe("Default container probes", func() {
	DescribeTable("should match the golden files",
		func(probeType, golden string) {
			objs, err := render(testhelpers.PlatformValues{})
			Expect(err).NotTo(HaveOccurred())

			diff, err := probes.Compare(filepath.Join("testdata", golden), probes.Extract(objs, probeType, testhelpers.ReleaseName))
			Expect(err).NotTo(HaveOccurred())
			Expect(diff).To(BeEmpty(), "Probes changed, regenerate with: astro-chart probes --write tests/chart/testdata")
		},
		Entry("liveness", probes.Liveness, "default_container_liveness_probes.yaml"),
		Entry("readiness", probes.Readiness, "default_container_readiness_probes.yaml"),
	)
})
