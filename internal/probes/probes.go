// Package probes extracts container probe definitions from rendered objects
// and compares them against golden files.
package probes

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/yaml"
)

const (
	Liveness  = "livenessProbe"
	Readiness = "readinessProbe"

	header = "# Each key here is a pod_container.\n\n"
)

// Extract maps "<pod>_<container>" to the probeType definition of every
// container that has one. Pods are Pod objects and objects with a pod
// template; the release name prefix is removed from pod names.
func Extract(objs []*unstructured.Unstructured, probeType, releaseName string) map[string]any {
	prefix := releaseName + "-"
	out := map[string]any{}

	for _, obj := range objs {
		var containers []any
		if obj.GetKind() == "Pod" {
			containers, _, _ = unstructured.NestedSlice(obj.Object, "spec", "containers")
		} else {
			containers, _, _ = unstructured.NestedSlice(obj.Object, "spec", "template", "spec", "containers")
		}

		pod := strings.TrimPrefix(obj.GetName(), prefix)
		for _, item := range containers {
			c, ok := item.(map[string]any)
			if !ok {
				continue
			}
			name, _ := c["name"].(string)
			probe, ok := c[probeType].(map[string]any)
			if name == "" || !ok || len(probe) == 0 {
				continue
			}
			out[pod+"_"+name] = probe
		}
	}
	return out
}

// Write renders probes as YAML with sorted keys.
func Write(w io.Writer, probes map[string]any) error {
	data, err := yaml.Marshal(probes)
	if err != nil {
		return fmt.Errorf("failed to marshal probes: %w", err)
	}
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// Format returns the golden file content for probes.
func Format(probes map[string]any) (string, error) {
	var b strings.Builder
	if err := Write(&b, probes); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Load reads a golden probes file.
func Load(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	probes := map[string]any{}
	if err := yaml.Unmarshal(data, &probes); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return probes, nil
}

// Diff returns a unified diff between the golden content and the freshly
// generated one, or "" when they match.
func Diff(expected, actual, name string) (string, error) {
	if expected == actual {
		return "", nil
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(expected),
		B:        difflib.SplitLines(actual),
		FromFile: name,
		ToFile:   name + " (rendered)",
		Context:  3,
	})
}

// Compare formats probes and diffs them against the golden file at path.
func Compare(path string, probes map[string]any) (string, error) {
	expected, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	actual, err := Format(probes)
	if err != nil {
		return "", err
	}
	return Diff(string(expected), actual, path)
}
