// Package schema validates Kubernetes objects against the standalone JSON
// schemas published in yannh/kubernetes-json-schema.
package schema

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/astronomer/astronomer/internal/logging"
	"github.com/astronomer/astronomer/internal/metrics"
)

const (
	DefaultBaseURL = "https://raw.githubusercontent.com/yannh/kubernetes-json-schema/refs/heads/master"

	defaultTimeout   = 30 * time.Second
	defaultCacheSize = 256
)

// annotationFormats are the formats the validator knows how to assert. The
// published schemas are checked the way a default Draft 7 validator checks
// them, which treats format as an annotation.
var annotationFormats = []string{
	"json-pointer", "relative-json-pointer", "uuid", "duration", "period",
	"ipv4", "ipv6", "hostname", "email", "date", "time", "date-time",
	"uri", "iri", "uri-reference", "iri-reference", "uri-template", "semver",
}

func acceptAny(any) error { return nil }

// Path returns the location of the schema for apiVersion and kind relative to
// the schema repository root, e.g. "v1.33.0-standalone/deployment-apps-v1.json".
func Path(apiVersion, kind, kubeVersion string) string {
	apiVersion = strings.ToLower(apiVersion)
	kind = strings.ToLower(kind)

	if group, version, found := strings.Cut(apiVersion, "/"); found {
		group, _, _ = strings.Cut(group, ".")
		return fmt.Sprintf("v%s-standalone/%s-%s-%s.json", kubeVersion, kind, group, version)
	}
	return fmt.Sprintf("v%s-standalone/%s-%s.json", kubeVersion, kind, apiVersion)
}

type cacheKey struct {
	apiVersion  string
	kind        string
	kubeVersion string
}

// Validator fetches, caches and compiles schemas. It is safe for concurrent
// use.
type Validator struct {
	baseURL  string
	cacheDir string
	client   *http.Client
	compiled *lru.Cache[cacheKey, *jsonschema.Schema]
}

// Option configures a Validator.
type Option func(*Validator)

// WithBaseURL sets the schema repository root.
func WithBaseURL(url string) Option {
	return func(v *Validator) {
		v.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithCacheDir sets where downloaded schemas are kept.
func WithCacheDir(dir string) Option {
	return func(v *Validator) {
		v.cacheDir = dir
	}
}

// WithHTTPClient sets the client used for downloads.
func WithHTTPClient(c *http.Client) Option {
	return func(v *Validator) {
		v.client = c
	}
}

// New returns a Validator. Without options it downloads from DefaultBaseURL
// into DefaultCacheDir.
func New(opts ...Option) (*Validator, error) {
	compiled, err := lru.New[cacheKey, *jsonschema.Schema](defaultCacheSize)
	if err != nil {
		return nil, err
	}
	v := &Validator{
		baseURL:  DefaultBaseURL,
		client:   &http.Client{Timeout: defaultTimeout},
		compiled: compiled,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.cacheDir == "" {
		v.cacheDir = DefaultCacheDir()
	}
	return v, nil
}

var (
	defaultOnce      sync.Once
	defaultValidator *Validator
)

// Default returns a process wide Validator with default settings.
func Default() *Validator {
	defaultOnce.Do(func() {
		v, err := New()
		if err != nil {
			panic(err)
		}
		defaultValidator = v
	})
	return defaultValidator
}

// DefaultCacheDir returns tests/k8s_schema under the enclosing Go module, or
// under the working directory when there is none.
func DefaultCacheDir() string {
	wd, err := os.Getwd()
	if err != nil {
		return filepath.Join("tests", "k8s_schema")
	}
	for dir := wd; ; {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return filepath.Join(dir, "tests", "k8s_schema")
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return filepath.Join(wd, "tests", "k8s_schema")
		}
		dir = parent
	}
}

// CacheDir returns where schemas are stored on disk.
func (v *Validator) CacheDir() string {
	return v.cacheDir
}

// Fetch returns the raw schema document, downloading it into the cache dir
// on first use.
func (v *Validator) Fetch(ctx context.Context, apiVersion, kind, kubeVersion string) ([]byte, error) {
	rel := Path(apiVersion, kind, kubeVersion)
	local := filepath.Join(v.cacheDir, filepath.FromSlash(rel))

	if data, err := os.ReadFile(local); err == nil {
		metrics.ObserveSchemaFetch("cache")
		return data, nil
	}

	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create schema cache dir: %w", err)
	}

	// Another process may be downloading the same schema.
	lock := flock.New(local + ".lock")
	if err := lock.Lock(); err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", lock.Path(), err)
	}
	defer lock.Unlock()

	if data, err := os.ReadFile(local); err == nil {
		metrics.ObserveSchemaFetch("cache")
		return data, nil
	}

	data, err := v.download(ctx, rel)
	if err != nil {
		return nil, err
	}

	tmp := local + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write schema cache: %w", err)
	}
	if err := os.Rename(tmp, local); err != nil {
		return nil, fmt.Errorf("failed to write schema cache: %w", err)
	}
	metrics.ObserveSchemaFetch("remote")
	logging.FromContext(ctx).Debug("downloaded schema", "path", rel)
	return data, nil
}

func (v *Validator) download(ctx context.Context, rel string) ([]byte, error) {
	url := v.baseURL + "/" + rel
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download schema %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download schema %s: status %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema %s: %w", url, err)
	}
	return data, nil
}

// Compile returns the compiled Draft 7 schema for apiVersion and kind.
func (v *Validator) Compile(ctx context.Context, apiVersion, kind, kubeVersion string) (*jsonschema.Schema, error) {
	key := cacheKey{apiVersion: apiVersion, kind: kind, kubeVersion: kubeVersion}
	if sch, ok := v.compiled.Get(key); ok {
		return sch, nil
	}

	data, err := v.Fetch(ctx, apiVersion, kind, kubeVersion)
	if err != nil {
		return nil, err
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("invalid schema for %s %s: %w", apiVersion, kind, err)
	}

	// The standalone schemas declare "http://json-schema.org/schema#", which
	// would select the latest draft. They are written against Draft 7.
	if m, ok := doc.(map[string]any); ok {
		delete(m, "$schema")
	}

	loc := "file:///" + Path(apiVersion, kind, kubeVersion)
	c := jsonschema.NewCompiler()
	c.DefaultDraft(jsonschema.Draft7)
	for _, name := range annotationFormats {
		c.RegisterFormat(&jsonschema.Format{Name: name, Validate: acceptAny})
	}
	if err := c.AddResource(loc, doc); err != nil {
		return nil, fmt.Errorf("failed to add schema %s: %w", loc, err)
	}
	sch, err := c.Compile(loc)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %s: %w", loc, err)
	}

	v.compiled.Add(key, sch)
	return sch, nil
}

// Validate checks obj against the schema for its apiVersion and kind.
// Violations are reported as *ValidationError.
func (v *Validator) Validate(ctx context.Context, obj *unstructured.Unstructured, kubeVersion string) error {
	apiVersion, kind := obj.GetAPIVersion(), obj.GetKind()
	if apiVersion == "" || kind == "" {
		err := &ValidationError{Kind: kind, Name: obj.GetName(), APIVersion: apiVersion, KubeVersion: kubeVersion,
			Cause: fmt.Errorf("object has no apiVersion or kind")}
		metrics.ObserveValidation(kind, err)
		return err
	}

	sch, err := v.Compile(ctx, apiVersion, kind, kubeVersion)
	if err != nil {
		return err
	}

	data, err := obj.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode %s/%s: %w", kind, obj.GetName(), err)
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to decode %s/%s: %w", kind, obj.GetName(), err)
	}

	if err := sch.Validate(instance); err != nil {
		verr := &ValidationError{Kind: kind, Name: obj.GetName(), APIVersion: apiVersion, KubeVersion: kubeVersion, Cause: err}
		metrics.ObserveValidation(kind, verr)
		return verr
	}
	metrics.ObserveValidation(kind, nil)
	return nil
}

// Ref names a schema to prefetch.
type Ref struct {
	APIVersion string
	Kind       string
}

// ParseRef parses "apps/v1/Deployment" or "v1/Service".
func ParseRef(s string) (Ref, error) {
	i := strings.LastIndex(s, "/")
	if i <= 0 || i == len(s)-1 {
		return Ref{}, fmt.Errorf("invalid schema reference %q, want <apiVersion>/<Kind>", s)
	}
	return Ref{APIVersion: s[:i], Kind: s[i+1:]}, nil
}

// Prefetch downloads the schemas of refs for every kube version so tests can
// run offline.
func (v *Validator) Prefetch(ctx context.Context, refs []Ref, kubeVersions []string) error {
	for _, kubeVersion := range kubeVersions {
		for _, ref := range refs {
			if _, err := v.Fetch(ctx, ref.APIVersion, ref.Kind, kubeVersion); err != nil {
				return err
			}
		}
	}
	return nil
}
