package probes

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/astronomer/astronomer/internal/manifest"
)

const rendered = `---
apiVersion: apps/v1
kind: Deployment
metadata:
  name: release-name-houston
spec:
  template:
    spec:
      containers:
        - name: houston
          livenessProbe:
            httpGet:
              path: /v1/healthz
              port: 8871
            initialDelaySeconds: 30
          readinessProbe:
            httpGet:
              path: /v1/healthz
              port: 8871
        - name: sidecar
---
apiVersion: v1
kind: Pod
metadata:
  name: release-name-test-connection
spec:
  containers:
    - name: wget
      livenessProbe:
        exec:
          command: ["true"]
---
apiVersion: batch/v1
kind: CronJob
metadata:
  name: release-name-config-syncer
spec:
  jobTemplate:
    spec:
      template:
        spec:
          containers:
            - name: config-syncer
              livenessProbe:
                exec:
                  command: ["true"]
`

var _ = Describe("Probes", func() {
	var objs []*unstructured.Unstructured

	BeforeEach(func() {
		var err error
		objs, err = manifest.Parse([]byte(rendered))
		Expect(err).NotTo(HaveOccurred())
	})

	It("should key probes by pod and container", func() {
		liveness := Extract(objs, Liveness, "release-name")
		Expect(liveness).To(HaveLen(2))
		Expect(liveness).To(HaveKey("houston_houston"))
		Expect(liveness).To(HaveKey("test-connection_wget"))

		readiness := Extract(objs, Readiness, "release-name")
		Expect(readiness).To(HaveLen(1))
	})

	It("should write a commented, sorted golden file", func() {
		out, err := Format(Extract(objs, Liveness, "release-name"))
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(HavePrefix("# Each key here is a pod_container.\n\nhouston_houston:\n"))
		Expect(out).To(ContainSubstring("test-connection_wget:\n  exec:"))
	})

	It("should round trip through Load and report drift", func() {
		probes := Extract(objs, Readiness, "release-name")
		path := filepath.Join(GinkgoT().TempDir(), "readiness.yaml")
		content, err := Format(probes)
		Expect(err).NotTo(HaveOccurred())
		Expect(os.WriteFile(path, []byte(content), 0o644)).To(Succeed())

		loaded, err := Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded).To(HaveKey("houston_houston"))

		diff, err := Compare(path, probes)
		Expect(err).NotTo(HaveOccurred())
		Expect(diff).To(BeEmpty())

		probes["houston_houston"].(map[string]any)["periodSeconds"] = int64(5)
		diff, err = Compare(path, probes)
		Expect(err).NotTo(HaveOccurred())
		Expect(diff).To(ContainSubstring("+  periodSeconds: 5"))
		Expect(diff).To(ContainSubstring("--- " + path))
	})
})
