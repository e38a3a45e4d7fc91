// Package versions tracks the Kubernetes versions the chart is rendered against.
package versions

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
)

// supported must stay sorted; patch is always 0.
var supported = []string{
	"1.29.0",
	"1.30.0",
	"1.31.0",
	"1.32.0",
	"1.33.0",
}

// Supported returns the Kubernetes versions the chart is tested against, oldest first.
func Supported() []string {
	return append([]string(nil), supported...)
}

// Default returns the newest supported Kubernetes version.
func Default() string {
	return supported[len(supported)-1]
}

// Normalize turns "1.29", "v1.29" or "1.29.3" into a full "major.minor.patch" string.
func Normalize(version string) (string, error) {
	v, err := semver.NewVersion(strings.TrimSpace(version))
	if err != nil {
		return "", fmt.Errorf("invalid kubernetes version %q: %w", version, err)
	}
	return fmt.Sprintf("%d.%d.%d", v.Major(), v.Minor(), v.Patch()), nil
}

// IsSupported reports whether the major.minor of version is in the supported list.
func IsSupported(version string) bool {
	v, err := semver.NewVersion(version)
	if err != nil {
		return false
	}
	for _, s := range supported {
		sv := semver.MustParse(s)
		if sv.Major() == v.Major() && sv.Minor() == v.Minor() {
			return true
		}
	}
	return false
}

// LatestPatches keeps the highest patch release of every major.minor found in
// tags and returns the newest n of them, oldest first, without a "v" prefix.
// Tags that are not semantic versions are ignored.
func LatestPatches(tags []string, n int) []string {
	best := map[string]*semver.Version{}
	for _, tag := range tags {
		v, err := semver.NewVersion(strings.TrimPrefix(tag, "v"))
		if err != nil || v.Prerelease() != "" {
			continue
		}
		key := fmt.Sprintf("%d.%d", v.Major(), v.Minor())
		if cur, ok := best[key]; !ok || v.GreaterThan(cur) {
			best[key] = v
		}
	}

	list := make([]*semver.Version, 0, len(best))
	for _, v := range best {
		list = append(list, v)
	}
	sort.Sort(semver.Collection(list))

	if n > 0 && len(list) > n {
		list = list[len(list)-n:]
	}

	out := make([]string, 0, len(list))
	for _, v := range list {
		out = append(out, v.String())
	}
	return out
}

// DockerHubTagsURL lists the tags of a Docker Hub repository such as kindest/node.
const DockerHubTagsURL = "https://hub.docker.com/v2/repositories/%s/tags?page_size=%d&ordering=last_updated"

type tagList struct {
	Results []struct {
		Name string `json:"name"`
	} `json:"results"`
}

// FetchTags returns the most recently updated tags of a Docker Hub repository.
// urlFormat is normally DockerHubTagsURL; tests point it at a local server.
func FetchTags(ctx context.Context, client *http.Client, urlFormat, repository string, pageSize int) ([]string, error) {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(urlFormat, repository, pageSize), nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags for %s: %w", repository, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to list tags for %s: status %d", repository, resp.StatusCode)
	}

	var list tagList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to decode tag list: %w", err)
	}

	tags := make([]string, 0, len(list.Results))
	for _, r := range list.Results {
		tags = append(tags, r.Name)
	}
	return tags, nil
}
