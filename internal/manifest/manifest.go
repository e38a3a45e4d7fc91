// Package manifest parses rendered chart output and offers lookups over the
// resulting Kubernetes objects.
package manifest

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	utiljson "k8s.io/apimachinery/pkg/util/json"
	utilyaml "k8s.io/apimachinery/pkg/util/yaml"
	"sigs.k8s.io/yaml"
)

// Key identifies an object by kind and name.
type Key struct {
	Kind string
	Name string
}

// Parse splits a multi-document YAML stream into objects. Empty and null
// documents are dropped. Integral numbers decode as int64.
func Parse(data []byte) ([]*unstructured.Unstructured, error) {
	reader := utilyaml.NewYAMLReader(bufio.NewReader(bytes.NewReader(data)))

	var objs []*unstructured.Unstructured
	for {
		doc, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read yaml document: %w", err)
		}

		jsonDoc, err := yaml.YAMLToJSON(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to convert yaml document: %w", err)
		}

		var content map[string]any
		if err := utiljson.Unmarshal(jsonDoc, &content); err != nil {
			return nil, fmt.Errorf("failed to decode document: %w", err)
		}
		if len(content) == 0 {
			continue
		}
		objs = append(objs, &unstructured.Unstructured{Object: content})
	}
	return objs, nil
}

// LookupByKindName indexes objects by kind and name. Later duplicates win.
func LookupByKindName(objs []*unstructured.Unstructured) map[Key]*unstructured.Unstructured {
	lookup := make(map[Key]*unstructured.Unstructured, len(objs))
	for _, obj := range objs {
		lookup[Key{Kind: obj.GetKind(), Name: obj.GetName()}] = obj
	}
	return lookup
}

// Find returns the first object with the given kind and name, or nil.
func Find(objs []*unstructured.Unstructured, kind, name string) *unstructured.Unstructured {
	for _, obj := range objs {
		if obj.GetKind() == kind && obj.GetName() == name {
			return obj
		}
	}
	return nil
}

// FilterKinds returns the objects whose kind is one of kinds (case-insensitive).
func FilterKinds(objs []*unstructured.Unstructured, kinds ...string) []*unstructured.Unstructured {
	var out []*unstructured.Unstructured
	for _, obj := range objs {
		for _, k := range kinds {
			if strings.EqualFold(obj.GetKind(), k) {
				out = append(out, obj)
				break
			}
		}
	}
	return out
}

// Names returns "<Kind>/<name>" for every object, in order.
func Names(objs []*unstructured.Unstructured) []string {
	names := make([]string, 0, len(objs))
	for _, obj := range objs {
		names = append(names, obj.GetKind()+"/"+obj.GetName())
	}
	return names
}

// ExtractSection returns the raw text of the template rendered from sourcePath
// (e.g. "platform/charts/astronomer/templates/houston/houston-configmap.yaml"),
// located through the "# Source:" comment helm writes before every document.
func ExtractSection(output, sourcePath string) string {
	marker := "# Source: " + sourcePath
	lines := strings.Split(output, "\n")
	var sectionLines []string
	inSection := false

	for _, line := range lines {
		if strings.TrimSpace(line) == marker {
			inSection = true
			continue
		}

		// Stop capturing when we hit the next resource
		if inSection && strings.HasPrefix(line, "---") {
			break
		}

		if inSection {
			sectionLines = append(sectionLines, line)
		}
	}

	return strings.Join(sectionLines, "\n")
}

// DotNotationToMap turns "a.b.c" into {"a": {"b": {"c": value}}}.
func DotNotationToMap(dotted string, value any) map[string]any {
	head, rest, found := strings.Cut(dotted, ".")
	if !found || rest == "" {
		return map[string]any{head: value}
	}
	return map[string]any{head: DotNotationToMap(rest, value)}
}
