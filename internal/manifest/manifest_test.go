package manifest

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

const renderedOutput = `---
# Source: platform/charts/astronomer/templates/houston/houston-configmap.yaml
apiVersion: v1
kind: ConfigMap
metadata:
  name: release-name-houston-config
data:
  production.yaml: |
    deployments:
      namespacePools: false
---
# Source: platform/charts/astronomer/templates/houston/houston-service.yaml
apiVersion: v1
kind: Service
metadata:
  name: release-name-houston
spec:
  ports:
    - name: houston-http
      port: 8871
      targetPort: 8871
---
# Source: platform/charts/astronomer/templates/houston/houston-deployment.yaml
apiVersion: apps/v1
kind: Deployment
metadata:
  name: release-name-houston
spec:
  replicas: 2
  selector:
    matchLabels:
      component: houston
  template:
    metadata:
      labels:
        component: houston
    spec:
      serviceAccountName: release-name-houston
      initContainers:
        - name: wait-for-db
          image: quay.io/astronomer/ap-houston-api:1.0.0
      containers:
        - name: houston
          image: quay.io/astronomer/ap-houston-api:1.0.0
          env:
            - name: NODE_ENV
              value: production
            - name: DATABASE__CONNECTION
              valueFrom:
                secretKeyRef:
                  name: release-name-houston-backend
                  key: connection
          securityContext:
            runAsNonRoot: true
---
# Source: platform/charts/astronomer/templates/config-syncer/config-syncer-cronjob.yaml
apiVersion: batch/v1
kind: CronJob
metadata:
  name: release-name-config-syncer
spec:
  schedule: "18 8 * * *"
  jobTemplate:
    spec:
      template:
        spec:
          serviceAccountName: release-name-config-syncer
          containers:
            - name: config-syncer
              image: quay.io/astronomer/ap-commander:1.0.0
          restartPolicy: Never
---
# empty document produced by a disabled template
---
`

var _ = Describe("Parse", func() {
	It("should drop empty documents and keep order", func() {
		objs, err := Parse([]byte(renderedOutput))
		Expect(err).NotTo(HaveOccurred())
		Expect(Names(objs)).To(Equal([]string{
			"ConfigMap/release-name-houston-config",
			"Service/release-name-houston",
			"Deployment/release-name-houston",
			"CronJob/release-name-config-syncer",
		}))
	})

	It("should decode integers as int64", func() {
		objs, err := Parse([]byte(renderedOutput))
		Expect(err).NotTo(HaveOccurred())
		replicas := objs[2].Object["spec"].(map[string]any)["replicas"]
		Expect(replicas).To(Equal(int64(2)))
	})

	It("should return nothing for empty output", func() {
		objs, err := Parse(nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(objs).To(BeEmpty())
	})

	It("should fail on broken yaml", func() {
		_, err := Parse([]byte("kind: [unterminated"))
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Lookups", func() {
	var objs = mustParse(renderedOutput)

	It("should index by kind and name", func() {
		lookup := LookupByKindName(objs)
		Expect(lookup).To(HaveLen(4))
		Expect(lookup).To(HaveKey(Key{Kind: "Service", Name: "release-name-houston"}))
		Expect(lookup).To(HaveKey(Key{Kind: "Deployment", Name: "release-name-houston"}))
	})

	It("should find and filter", func() {
		Expect(Find(objs, "CronJob", "release-name-config-syncer")).NotTo(BeNil())
		Expect(Find(objs, "CronJob", "missing")).To(BeNil())
		Expect(FilterKinds(objs, "deployment", "cronjob")).To(HaveLen(2))
	})

	It("should extract a rendered section by source path", func() {
		section := ExtractSection(renderedOutput, "platform/charts/astronomer/templates/houston/houston-service.yaml")
		Expect(section).To(ContainSubstring("kind: Service"))
		Expect(section).NotTo(ContainSubstring("kind: Deployment"))
		Expect(ExtractSection(renderedOutput, "platform/templates/missing.yaml")).To(BeEmpty())
	})
})

var _ = Describe("Pod helpers", func() {
	var objs = mustParse(renderedOutput)

	It("should return containers by name with and without init containers", func() {
		deploy := Find(objs, "Deployment", "release-name-houston")

		c, err := ContainersByName(deploy, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(c).To(HaveLen(1))
		Expect(c["houston"]["securityContext"]).To(Equal(map[string]any{"runAsNonRoot": true}))

		c, err = ContainersByName(deploy, true)
		Expect(err).NotTo(HaveOccurred())
		Expect(c).To(HaveKey("wait-for-db"))
	})

	It("should read CronJob pod specs", func() {
		cron := Find(objs, "CronJob", "release-name-config-syncer")
		c, err := ContainersByName(cron, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(c).To(HaveKey("config-syncer"))
		Expect(ServiceAccountName(cron)).To(Equal("release-name-config-syncer"))
	})

	It("should reject kinds that do not manage pods", func() {
		_, err := ContainersByName(Find(objs, "Service", "release-name-houston"), false)
		Expect(err).To(MatchError(ErrUnhandledKind))
		Expect(ServiceAccountName(Find(objs, "Service", "release-name-houston"))).To(BeEmpty())
	})

	It("should map env vars to values or references", func() {
		c, err := ContainersByName(Find(objs, "Deployment", "release-name-houston"), false)
		Expect(err).NotTo(HaveOccurred())
		env := EnvVars(c["houston"])
		Expect(env["NODE_ENV"]).To(Equal("production"))
		Expect(env["DATABASE__CONNECTION"]).To(HaveKey("secretKeyRef"))
	})

	It("should map service ports by name", func() {
		ports := ServicePortsByName(Find(objs, "Service", "release-name-houston"))
		Expect(ports).To(HaveKey("houston-http"))
		Expect(ports["houston-http"]["port"]).To(Equal(int64(8871)))
	})

	It("should convert pod specs to typed objects", func() {
		spec, err := TypedPodSpec(Find(objs, "CronJob", "release-name-config-syncer"))
		Expect(err).NotTo(HaveOccurred())
		Expect(spec.RestartPolicy).To(BeEquivalentTo("Never"))
		Expect(spec.Containers[0].Image).To(Equal("quay.io/astronomer/ap-commander:1.0.0"))
	})
})

var _ = Describe("ChartContainers", func() {
	var objs = mustParse(renderedOutput)

	It("should key containers by version, object and container", func() {
		containers := ChartContainers(objs, "1.33.0", ContainerFilter{})
		Expect(containers).To(HaveLen(2))
		Expect(containers).To(HaveKey("1.33.0_release-name-houston_houston"))
		Expect(containers).To(HaveKey("1.33.0_release-name-houston_wait-for-db"))
		Expect(containers["1.33.0_release-name-houston_houston"]["kind"]).To(Equal("Deployment"))
		Expect(containers["1.33.0_release-name-houston_houston"]["key"]).To(Equal("1.33.0_release-name-houston_houston"))
	})

	It("should honour include and exclude filters", func() {
		Expect(ChartContainers(objs, "1.33.0", ContainerFilter{ExcludeKinds: []string{"Deployment"}})).To(BeEmpty())
		Expect(ChartContainers(objs, "1.33.0", ContainerFilter{IncludeKinds: []string{"statefulset"}})).To(BeEmpty())
		Expect(ChartContainers(objs, "1.33.0", ContainerFilter{IncludeKinds: []string{"DEPLOYMENT"}})).To(HaveLen(2))
	})
})

var _ = Describe("Decode", func() {
	var objs = mustParse(renderedOutput)

	It("should produce typed objects", func() {
		typed, err := Decode(Find(objs, "Deployment", "release-name-houston"))
		Expect(err).NotTo(HaveOccurred())
		deploy, ok := typed.(*appsv1.Deployment)
		Expect(ok).To(BeTrue())
		Expect(*deploy.Spec.Replicas).To(BeEquivalentTo(2))
	})

	It("should decode into a provided object", func() {
		var cron batchv1.CronJob
		Expect(DecodeInto(Find(objs, "CronJob", "release-name-config-syncer"), &cron)).To(Succeed())
		Expect(cron.Spec.Schedule).To(Equal("18 8 * * *"))
	})
})

var _ = DescribeTable("DotNotationToMap",
	func(in string, want map[string]any) {
		Expect(DotNotationToMap(in, 0)).To(Equal(want))
	},
	Entry("single key", "a", map[string]any{"a": 0}),
	Entry("nested", "a.b.c", map[string]any{"a": map[string]any{"b": map[string]any{"c": 0}}}),
	Entry("trailing dot", "a.b.", map[string]any{"a": map[string]any{"b": 0}}),
)

func mustParse(s string) []*unstructured.Unstructured {
	objs, err := Parse([]byte(s))
	if err != nil {
		panic(err)
	}
	return objs
}
