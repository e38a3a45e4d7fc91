package images

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"

	"github.com/astronomer/astronomer/internal/logging"
)

const dockerHub = "docker.io"

// Resolver looks up the manifest digest ("sha256:...") of an image reference.
type Resolver interface {
	Digest(ctx context.Context, ref string) (string, error)
}

// RemoteResolver resolves digests against the registry API.
type RemoteResolver struct {
	Options []remote.Option
}

// NewRemoteResolver returns a resolver using the given remote options, for
// example remote.WithAuthFromKeychain(authn.DefaultKeychain).
func NewRemoteResolver(opts ...remote.Option) *RemoteResolver {
	return &RemoteResolver{Options: opts}
}

func (r *RemoteResolver) Digest(ctx context.Context, ref string) (string, error) {
	parsed, err := name.ParseReference(ref)
	if err != nil {
		return "", fmt.Errorf("invalid image reference %q: %w", ref, err)
	}
	opts := append([]remote.Option{remote.WithContext(ctx)}, r.Options...)
	desc, err := remote.Head(parsed, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to look up %s: %w", parsed, err)
	}
	return desc.Digest.String(), nil
}

// ParseImage splits image into registry host, repository and tag. The host is
// the first path segment when it looks like a hostname, explicitHost when
// given, and docker.io otherwise.
func ParseImage(image, explicitHost string) (host, repository, tag string) {
	repository, tag = SplitReference(image)

	first, rest, found := strings.Cut(repository, "/")
	switch {
	case explicitHost != "":
		host = explicitHost
	case found && strings.ContainsAny(first, ".:"):
		host, repository = first, rest
	default:
		host = dockerHub
	}
	return host, repository, tag
}

// PinDigests walks a values tree and replaces image tags with digests. Only
// the changed entries are returned, with just enough of the surrounding tree
// to place them. Lookups that fail are skipped and reported in the returned
// error; the result still holds every successful replacement.
//
//   - image: "host/repo:tag" becomes "host/repo@sha256:<hex>"
//   - tag next to image or repository: tag becomes "<hex>" and repository
//     becomes "host/repo@sha256" (or "repo@sha256" with an explicit registry)
//   - defaultAirflowTag: defaultAirflowRepository gains "@sha256" and the tag
//     (and defaultAirflowDigest, if set) become "<hex>"
func PinDigests(ctx context.Context, values map[string]any, resolver Resolver) (map[string]any, error) {
	p := &pinner{resolver: resolver}
	out := map[string]any{}
	p.walk(ctx, values, out)
	return out, errors.Join(p.failures...)
}

type pinner struct {
	resolver Resolver
	failures []error
}

func (p *pinner) lookup(ctx context.Context, host, repository, tag string) (algorithm, hex string, ok bool) {
	ref := host + "/" + repository + ":" + tag
	logging.FromContext(ctx).Info("looking up digest", "registry", host, "image", repository+":"+tag)

	digest, err := p.resolver.Digest(ctx, ref)
	if err != nil {
		p.failures = append(p.failures, err)
		return "", "", false
	}
	algorithm, hex, found := strings.Cut(digest, ":")
	if !found || hex == "" {
		p.failures = append(p.failures, fmt.Errorf("unexpected digest %q for %s", digest, ref))
		return "", "", false
	}
	return algorithm, hex, true
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (p *pinner) walk(ctx context.Context, data, out map[string]any) {
	for _, key := range sortedKeys(data) {
		switch value := data[key].(type) {
		case map[string]any:
			nested := map[string]any{}
			p.walk(ctx, value, nested)
			if len(nested) > 0 {
				out[key] = nested
			}
		case []any:
			var items []any
			for _, item := range value {
				m, ok := item.(map[string]any)
				if !ok {
					continue
				}
				nested := map[string]any{}
				p.walk(ctx, m, nested)
				if len(nested) > 0 {
					items = append(items, nested)
				}
			}
			if len(items) > 0 {
				out[key] = items
			}
		case string:
			p.pinScalar(ctx, data, out, key, value)
		case nil, bool:
		default:
			// Unquoted tags such as 1.10 decode as numbers.
			p.pinScalar(ctx, data, out, key, fmt.Sprint(value))
		}
	}
}

func (p *pinner) pinScalar(ctx context.Context, data, out map[string]any, key, value string) {
	registry, _ := data["registry"].(string)

	switch key {
	case "image":
		host, repository, tag := ParseImage(value, "")
		if alg, hex, ok := p.lookup(ctx, host, repository, tag); ok {
			out[key] = fmt.Sprintf("%s/%s@%s:%s", host, repository, alg, hex)
		}

	case "defaultAirflowTag":
		repoValue, _ := data["defaultAirflowRepository"].(string)
		if repoValue == "" || value == "" {
			return
		}
		host, repository, _ := ParseImage(repoValue, "")
		if alg, hex, ok := p.lookup(ctx, host, repository, value); ok {
			out["defaultAirflowRepository"] = repoValue + "@" + alg
			out["defaultAirflowTag"] = hex
			if digest, present := data["defaultAirflowDigest"]; present && digest != nil {
				out["defaultAirflowDigest"] = hex
			}
		}

	case "tag":
		if value == "" {
			return
		}
		var sibling string
		for _, k := range []string{"image", "repository"} {
			if s, ok := data[k].(string); ok && s != "" {
				sibling = s
				break
			}
		}
		if sibling == "" {
			return
		}
		host, repository, _ := ParseImage(sibling, registry)
		if alg, hex, ok := p.lookup(ctx, host, repository, value); ok {
			out["tag"] = hex
			if registry != "" {
				out["repository"] = repository + "@" + alg
			} else {
				out["repository"] = host + "/" + repository + "@" + alg
			}
		}
	}
}
