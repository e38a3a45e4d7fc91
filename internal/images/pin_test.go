package images_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"net/url"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/registry"
	"github.com/google/go-containerregistry/pkg/v1/random"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/astronomer/astronomer/internal/images"
)

type staticResolver map[string]string

func (s staticResolver) Digest(_ context.Context, ref string) (string, error) {
	if d, ok := s[ref]; ok {
		return d, nil
	}
	return "", errors.New("manifest unknown: " + ref)
}

var _ = Describe("PinDigests", func() {
	resolver := staticResolver{
		"quay.io/astronomer/ap-houston-api:0.37.1":       "sha256:1111",
		"quay.io/astronomer/ap-commander:0.37.2":         "sha256:2222",
		"docker.io/postgres:15":                          "sha256:3333",
		"registry.example.com/astronomer/ap-airflow:2.9": "sha256:4444",
		"quay.io/astronomer/astro-runtime:12.1.0":        "sha256:5555",
	}

	It("should return only the pinned subtree", func() {
		values := map[string]any{
			"astronomer": map[string]any{
				"images": map[string]any{
					"houston":   map[string]any{"repository": "quay.io/astronomer/ap-houston-api", "tag": "0.37.1", "pullPolicy": "IfNotPresent"},
					"commander": map[string]any{"repository": "quay.io/astronomer/ap-commander", "tag": "0.37.2"},
				},
				"replicas": int64(2),
			},
			"postgresql": map[string]any{"image": "postgres:15"},
			"private":    map[string]any{"registry": "registry.example.com", "repository": "astronomer/ap-airflow", "tag": 2.9},
			"airflow": map[string]any{
				"defaultAirflowRepository": "quay.io/astronomer/astro-runtime",
				"defaultAirflowTag":        "12.1.0",
				"defaultAirflowDigest":     "old",
			},
			"sidecars": []any{
				map[string]any{"name": "a", "image": "postgres:15"},
				map[string]any{"name": "b"},
			},
		}

		pinned, err := images.PinDigests(context.Background(), values, resolver)
		Expect(err).NotTo(HaveOccurred())
		Expect(pinned).To(Equal(map[string]any{
			"astronomer": map[string]any{
				"images": map[string]any{
					"houston":   map[string]any{"repository": "quay.io/astronomer/ap-houston-api@sha256", "tag": "1111"},
					"commander": map[string]any{"repository": "quay.io/astronomer/ap-commander@sha256", "tag": "2222"},
				},
			},
			"postgresql": map[string]any{"image": "docker.io/postgres@sha256:3333"},
			"private":    map[string]any{"repository": "astronomer/ap-airflow@sha256", "tag": "4444"},
			"airflow": map[string]any{
				"defaultAirflowRepository": "quay.io/astronomer/astro-runtime@sha256",
				"defaultAirflowTag":        "5555",
				"defaultAirflowDigest":     "5555",
			},
			"sidecars": []any{
				map[string]any{"image": "docker.io/postgres@sha256:3333"},
			},
		}))
	})

	It("should skip unresolvable images and report them", func() {
		values := map[string]any{
			"good": map[string]any{"image": "postgres:15"},
			"bad":  map[string]any{"repository": "quay.io/astronomer/missing", "tag": "1.0.0"},
			"none": map[string]any{"repository": "quay.io/astronomer/missing", "tag": nil},
		}
		pinned, err := images.PinDigests(context.Background(), values, resolver)
		Expect(err).To(MatchError(ContainSubstring("quay.io/astronomer/missing:1.0.0")))
		Expect(pinned).To(Equal(map[string]any{
			"good": map[string]any{"image": "docker.io/postgres@sha256:3333"},
		}))
	})
})

var _ = Describe("RemoteResolver", func() {
	It("should resolve digests from a registry", func() {
		server := httptest.NewServer(registry.New())
		DeferCleanup(server.Close)
		u, err := url.Parse(server.URL)
		Expect(err).NotTo(HaveOccurred())

		ref, err := name.ParseReference(u.Host + "/astronomer/ap-houston-api:0.37.1")
		Expect(err).NotTo(HaveOccurred())
		img, err := random.Image(256, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(remote.Write(ref, img)).To(Succeed())
		want, err := img.Digest()
		Expect(err).NotTo(HaveOccurred())

		digest, err := images.NewRemoteResolver().Digest(context.Background(), ref.String())
		Expect(err).NotTo(HaveOccurred())
		Expect(digest).To(Equal(want.String()))

		pinned, err := images.PinDigests(context.Background(),
			map[string]any{"image": u.Host + "/astronomer/ap-houston-api:0.37.1"}, images.NewRemoteResolver())
		Expect(err).NotTo(HaveOccurred())
		Expect(pinned["image"]).To(Equal(u.Host + "/astronomer/ap-houston-api@" + want.String()))
		Expect(strings.HasPrefix(want.String(), "sha256:")).To(BeTrue())
	})

	It("should fail for unknown tags", func() {
		server := httptest.NewServer(registry.New())
		DeferCleanup(server.Close)
		u, err := url.Parse(server.URL)
		Expect(err).NotTo(HaveOccurred())

		_, err = images.NewRemoteResolver().Digest(context.Background(), u.Host+"/astronomer/missing:1.0.0")
		Expect(err).To(HaveOccurred())
	})
})
