// Package values collects the effective values of a chart and all of its
// dependencies into one tree, for auditing and digest pinning.
package values

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"dario.cat/mergo"
	"helm.sh/helm/v3/pkg/chart"
	"helm.sh/helm/v3/pkg/chartutil"
	"sigs.k8s.io/yaml"

	"github.com/astronomer/astronomer/internal/logging"
)

// DefaultRepository serves dependencies that name no repository.
const DefaultRepository = "https://charts.helm.sh/stable"

// Loader loads chart values, downloading dependencies that are not vendored
// under charts/.
type Loader struct {
	Client *http.Client
	// Repository is used for dependencies without a repository.
	Repository string
	// WorkDir receives downloaded charts; a temp dir when empty.
	WorkDir string
}

// NewLoader returns a Loader with a 30s download timeout.
func NewLoader() *Loader {
	return &Loader{
		Client:     &http.Client{Timeout: 30 * time.Second},
		Repository: DefaultRepository,
	}
}

// Merge deep merges src into dst. Values in src win; lists are replaced, not
// appended as the old generate-all-values script did.
func Merge(dst, src map[string]any) (map[string]any, error) {
	if dst == nil {
		dst = map[string]any{}
	}
	if err := mergo.Merge(&dst, src, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge values: %w", err)
	}
	return dst, nil
}

// ReadFile loads a YAML values file. A "~" prefix is expanded.
func ReadFile(path string) (map[string]any, error) {
	path, err := expand(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	vals, err := chartutil.ReadValuesFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return vals, nil
}

// LoadChart returns the name of the chart in dir and its values merged with
// values, recursing into every dependency listed in Chart.yaml. Each
// dependency's values land under its name with the caller's values taking
// priority.
func (l *Loader) LoadChart(ctx context.Context, dir string, values map[string]any) (string, map[string]any, error) {
	dir, err := expand(dir)
	if err != nil {
		return "", nil, err
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return "", nil, fmt.Errorf("expected a directory for the chart path, but found: %s", dir)
	}

	meta, err := chartutil.LoadChartfile(filepath.Join(dir, chartutil.ChartfileName))
	if err != nil {
		return "", nil, fmt.Errorf("failed to load chart file: %w", err)
	}

	chartValues := map[string]any{}
	valuesPath := filepath.Join(dir, chartutil.ValuesfileName)
	if info, err := os.Stat(valuesPath); err == nil && !info.IsDir() {
		if chartValues, err = chartutil.ReadValuesFile(valuesPath); err != nil {
			return "", nil, fmt.Errorf("failed to read %s: %w", valuesPath, err)
		}
	}

	merged, err := Merge(chartValues, values)
	if err != nil {
		return "", nil, err
	}

	deps, err := l.dependencies(ctx, dir, meta.Dependencies)
	if err != nil {
		return "", nil, err
	}
	for _, dep := range deps {
		own, _ := merged[dep.name].(map[string]any)
		_, subValues, err := l.LoadChart(ctx, dep.dir, own)
		if err != nil {
			return "", nil, err
		}
		if own != nil {
			if subValues, err = Merge(subValues, own); err != nil {
				return "", nil, err
			}
		}
		merged[dep.name] = subValues
	}

	return meta.Name, merged, nil
}

type dependency struct {
	name string
	dir  string
}

// dependencies resolves the listed dependencies of the chart in dir, followed
// by charts vendored under charts/ that Chart.yaml does not list.
func (l *Loader) dependencies(ctx context.Context, dir string, listed []*chart.Dependency) ([]dependency, error) {
	var deps []dependency
	seen := map[string]bool{}
	for _, dep := range listed {
		subDir := filepath.Join(dir, "charts", dep.Name)
		if _, err := os.Stat(subDir); err != nil {
			if subDir, err = l.download(ctx, dep.Name, dep.Version, dep.Repository); err != nil {
				return nil, err
			}
		}
		seen[dep.Name] = true
		deps = append(deps, dependency{name: dep.Name, dir: subDir})
	}

	entries, err := os.ReadDir(filepath.Join(dir, "charts"))
	if err != nil {
		if os.IsNotExist(err) {
			return deps, nil
		}
		return nil, err
	}
	for _, e := range entries {
		if !e.IsDir() || seen[e.Name()] {
			continue
		}
		subDir := filepath.Join(dir, "charts", e.Name())
		if _, err := os.Stat(filepath.Join(subDir, chartutil.ChartfileName)); err != nil {
			continue
		}
		deps = append(deps, dependency{name: e.Name(), dir: subDir})
	}
	return deps, nil
}

// ArchiveURL returns where a dependency archive is downloaded from.
func ArchiveURL(repository, name, version string) string {
	repository = strings.TrimSuffix(repository, "/")
	if version != "" {
		return fmt.Sprintf("%s/%s-%s.tgz", repository, name, version)
	}
	return fmt.Sprintf("%s/%s.tgz", repository, name)
}

func (l *Loader) download(ctx context.Context, name, version, repository string) (string, error) {
	if repository == "" {
		repository = l.Repository
	}
	if repository == "" {
		repository = DefaultRepository
	}
	url := ArchiveURL(repository, name, version)
	logging.FromContext(ctx).Info("downloading chart", "name", name, "url", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download %s: status %d", url, resp.StatusCode)
	}

	dest, err := os.MkdirTemp(l.WorkDir, "chart-"+name+"-")
	if err != nil {
		return "", err
	}
	archive := filepath.Join(dest, name+".tgz")
	f, err := os.Create(archive)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to save %s: %w", url, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	if err := chartutil.ExpandFile(dest, archive); err != nil {
		return "", fmt.Errorf("failed to unpack %s: %w", url, err)
	}
	if err := os.Remove(archive); err != nil {
		return "", err
	}
	return filepath.Join(dest, name), nil
}

// ParseMounts turns "a.b.c=path" arguments into a nested tree whose leaves
// are absolute paths.
func ParseMounts(args []string) (map[string]any, error) {
	mounts := map[string]any{}
	for _, arg := range args {
		key, path, found := strings.Cut(arg, "=")
		if !found || key == "" || path == "" {
			return nil, fmt.Errorf("invalid mount %q, want <dotted.key>=<path>", arg)
		}
		abs, err := expand(path)
		if err != nil {
			return nil, err
		}

		keys := strings.Split(key, ".")
		current := mounts
		for _, k := range keys[:len(keys)-1] {
			next, ok := current[k].(map[string]any)
			if !ok {
				next = map[string]any{}
				current[k] = next
			}
			current = next
		}
		current[keys[len(keys)-1]] = abs
	}
	return mounts, nil
}

// FetchMounts replaces every leaf path of mounts with the values it points
// to: the merged values of a chart directory, or the content of a values
// file.
func (l *Loader) FetchMounts(ctx context.Context, mounts map[string]any) (map[string]any, error) {
	out := map[string]any{}
	for key, value := range mounts {
		switch v := value.(type) {
		case map[string]any:
			nested, err := l.FetchMounts(ctx, v)
			if err != nil {
				return nil, err
			}
			out[key] = nested
		case string:
			var vals map[string]any
			var err error
			if info, statErr := os.Stat(v); statErr == nil && info.IsDir() {
				_, vals, err = l.LoadChart(ctx, v, nil)
			} else {
				vals, err = ReadFile(v)
			}
			if err != nil {
				return nil, err
			}
			out[key] = vals
		default:
			return nil, fmt.Errorf("invalid mount %s: %v", key, value)
		}
	}
	return out, nil
}

// Generate returns the values of the chart in dir with mounts and user
// values applied, user values taking priority over mounts.
func (l *Loader) Generate(ctx context.Context, dir string, userValues map[string]any, mountArgs []string) (map[string]any, error) {
	mounts, err := ParseMounts(mountArgs)
	if err != nil {
		return nil, err
	}
	fetched, err := l.FetchMounts(ctx, mounts)
	if err != nil {
		return nil, err
	}
	merged, err := Merge(fetched, userValues)
	if err != nil {
		return nil, err
	}
	_, vals, err := l.LoadChart(ctx, dir, merged)
	return vals, err
}

// AsPaths flattens values into sorted "foo.bar=value" lines, the form
// accepted by --set. Lists and maps inside lists are written as JSON.
func AsPaths(values map[string]any) []string {
	var out []string
	flatten(values, "", &out)
	sort.Strings(out)
	return out
}

func flatten(data map[string]any, parent string, out *[]string) {
	for k, v := range data {
		key := k
		if parent != "" {
			key = parent + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			flatten(val, key, out)
		case nil:
			*out = append(*out, key+"=null")
		case []any:
			data, _ := json.Marshal(val)
			*out = append(*out, key+"="+string(data))
		default:
			*out = append(*out, fmt.Sprintf("%s=%v", key, val))
		}
	}
}

// Marshal renders values as YAML.
func Marshal(values map[string]any) ([]byte, error) {
	return yaml.Marshal(values)
}

func expand(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return filepath.Abs(path)
}
