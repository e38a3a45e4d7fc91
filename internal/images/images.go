// Package images reports the container images a rendered chart deploys and
// pins image tags in values files to registry digests.
package images

import (
	"fmt"
	"io"
	"regexp"
	"slices"
	"sort"
	"strings"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/yaml"
)

const publicRegistry = "quay.io"

// Options controls which images Collect reports.
type Options struct {
	// WithHouston adds the sidecar images referenced by houston's config.
	WithHouston bool
	// PrivateRegistry reports objects that still pull from quay.io.
	PrivateRegistry bool
	// ReleaseName is stripped from object names in reports.
	ReleaseName string
}

// Result is the outcome of Collect.
type Result struct {
	// Images holds unique "repository:tag" references, sorted.
	Images []string
	// PublicRegistryUsers names objects that pull from quay.io in private
	// registry mode, e.g. "Deployment houston uses quay.io".
	PublicRegistryUsers []string
}

// Collect gathers the images of every pod template in objs.
func Collect(objs []*unstructured.Unstructured, opts Options) (*Result, error) {
	releasePrefix := opts.ReleaseName
	if releasePrefix == "" {
		releasePrefix = "release-name"
	}
	releasePrefix += "-"

	images := map[string]struct{}{}
	res := &Result{}

	for _, obj := range objs {
		var podSpec map[string]any
		if spec, found, _ := unstructured.NestedMap(obj.Object, "spec", "template", "spec"); found {
			podSpec = spec
		} else if spec, found, _ := unstructured.NestedMap(obj.Object, "spec", "jobTemplate", "spec", "template", "spec"); found {
			podSpec = spec
		} else if obj.GetKind() == "ConfigMap" && strings.HasSuffix(obj.GetName(), "-houston-config") {
			if !opts.WithHouston {
				continue
			}
			found, err := houstonImages(obj)
			if err != nil {
				return nil, err
			}
			for _, img := range found {
				images[img] = struct{}{}
			}
			continue
		} else {
			continue
		}

		containerImages := specImages(podSpec)
		for _, img := range containerImages {
			images[img] = struct{}{}
		}

		if opts.PrivateRegistry && usesRegistry(containerImages, publicRegistry) {
			res.PublicRegistryUsers = append(res.PublicRegistryUsers,
				fmt.Sprintf("%s %s uses %s", obj.GetKind(), strings.TrimPrefix(obj.GetName(), releasePrefix), publicRegistry))
		}
	}

	for img := range images {
		res.Images = append(res.Images, img)
	}
	sort.Strings(res.Images)
	return res, nil
}

func specImages(spec map[string]any) []string {
	var out []string
	for _, field := range []string{"containers", "initContainers"} {
		items, _, _ := unstructured.NestedSlice(spec, field)
		for _, item := range items {
			c, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if img, ok := c["image"].(string); ok && img != "" {
				out = append(out, img)
			}
		}
	}
	return out
}

func usesRegistry(images []string, registry string) bool {
	for _, img := range images {
		if strings.Contains(img, registry) {
			return true
		}
	}
	return false
}

type houstonConfig struct {
	Deployments struct {
		AuthSideCar struct {
			Repository string `json:"repository"`
			Tag        string `json:"tag"`
		} `json:"authSideCar"`
		LoggingSidecar struct {
			Image string `json:"image"`
		} `json:"loggingSidecar"`
	} `json:"deployments"`
}

// houstonImages returns the auth and logging sidecar images configured in
// houston's production.yaml.
func houstonImages(cm *unstructured.Unstructured) ([]string, error) {
	raw, _, _ := unstructured.NestedString(cm.Object, "data", "production.yaml")
	var cfg houstonConfig
	if err := yaml.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse houston config: %w", err)
	}

	var out []string
	if a := cfg.Deployments.AuthSideCar; a.Repository != "" {
		out = append(out, a.Repository+":"+a.Tag)
	}
	if img := cfg.Deployments.LoggingSidecar.Image; img != "" {
		out = append(out, img)
	}
	return out, nil
}

// SplitReference extracts repository and tag from an image reference.
// Handles both digest (@sha256:xxx) and tag (:vX.Y.Z) formats; a reference
// without either is "latest".
func SplitReference(image string) (repo, tag string) {
	if strings.Contains(image, "@sha256:") {
		parts := strings.SplitN(image, "@", 2)
		return parts[0], parts[1]
	}
	lastColon := strings.LastIndex(image, ":")
	if lastColon > strings.LastIndex(image, "/") {
		return image[:lastColon], image[lastColon+1:]
	}
	return image, "latest"
}

// Report prints an https URL and the pull reference for every image, with
// URLs padded to a common width.
func Report(w io.Writer, images []string) error {
	sorted := append([]string(nil), images...)
	sort.Strings(sorted)

	width := 0
	for _, img := range sorted {
		repo, _ := SplitReference(img)
		width = max(width, len(repo))
	}
	for _, img := range sorted {
		repo, tag := SplitReference(img)
		sep := ":"
		if strings.HasPrefix(tag, "sha256:") {
			sep = "@"
		}
		if _, err := fmt.Fprintf(w, "https://%-*s  %s%s%s\n", width, repo, repo, sep, tag); err != nil {
			return err
		}
	}
	return nil
}

// ScanReferences finds every image reference starting with prefix in raw
// rendered output, including references embedded in config files.
func ScanReferences(output, prefix string) []string {
	re := regexp.MustCompile(regexp.QuoteMeta(prefix) + `[^"'\s]*`)
	seen := map[string]struct{}{}
	var out []string
	for _, m := range re.FindAllString(output, -1) {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// MultipleTagsError lists repositories referenced with more than one tag.
type MultipleTagsError struct {
	Tags map[string][]string
}

func (e *MultipleTagsError) Error() string {
	repos := make([]string, 0, len(e.Tags))
	for repo := range e.Tags {
		repos = append(repos, repo)
	}
	sort.Strings(repos)

	lines := make([]string, 0, len(repos))
	for _, repo := range repos {
		lines = append(lines, fmt.Sprintf("image %s has multiple tags: %s", repo, strings.Join(e.Tags[repo], ", ")))
	}
	return strings.Join(lines, "\n")
}

// VerifySingleTag fails when a repository starting with prefix is referenced
// with more than one tag. References without a tag are ignored.
func VerifySingleTag(images []string, prefix string) error {
	tags := map[string][]string{}
	for _, img := range images {
		if !strings.HasPrefix(img, prefix) {
			continue
		}
		i := strings.LastIndex(img, ":")
		if i < 0 {
			continue
		}
		repo, tag := img[:i], strings.Trim(img[i+1:], " \"'\t\n\r")
		if tag != "" && !slices.Contains(tags[repo], tag) {
			tags[repo] = append(tags[repo], tag)
		}
	}

	multi := map[string][]string{}
	for repo, t := range tags {
		if len(t) > 1 {
			multi[repo] = t
		}
	}
	if len(multi) > 0 {
		return &MultipleTagsError{Tags: multi}
	}
	return nil
}
