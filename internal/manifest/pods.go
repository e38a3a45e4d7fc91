package manifest

import (
	"errors"
	"fmt"
	"strings"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
)

// ErrUnhandledKind is returned for objects that do not manage pods.
var ErrUnhandledKind = errors.New("unhandled kind")

// podSpecPaths maps pod managing kinds to the location of their pod spec.
var podSpecPaths = map[string][]string{
	"Pod":         {"spec"},
	"Deployment":  {"spec", "template", "spec"},
	"StatefulSet": {"spec", "template", "spec"},
	"ReplicaSet":  {"spec", "template", "spec"},
	"DaemonSet":   {"spec", "template", "spec"},
	"Job":         {"spec", "template", "spec"},
	"CronJob":     {"spec", "jobTemplate", "spec", "template", "spec"},
}

// PodSpec returns the raw pod spec of a pod managing object.
func PodSpec(obj *unstructured.Unstructured) (map[string]any, error) {
	path, ok := podSpecPaths[obj.GetKind()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnhandledKind, obj.GetKind())
	}
	spec, found, err := unstructured.NestedMap(obj.Object, path...)
	if err != nil {
		return nil, fmt.Errorf("failed to read pod spec of %s/%s: %w", obj.GetKind(), obj.GetName(), err)
	}
	if !found {
		return map[string]any{}, nil
	}
	return spec, nil
}

// TypedPodSpec converts the pod spec of obj into a corev1.PodSpec.
func TypedPodSpec(obj *unstructured.Unstructured) (*corev1.PodSpec, error) {
	raw, err := PodSpec(obj)
	if err != nil {
		return nil, err
	}
	var spec corev1.PodSpec
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(raw, &spec); err != nil {
		return nil, fmt.Errorf("failed to convert pod spec of %s/%s: %w", obj.GetKind(), obj.GetName(), err)
	}
	return &spec, nil
}

func containerList(spec map[string]any, field string) []map[string]any {
	items, _, _ := unstructured.NestedSlice(spec, field)
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if c, ok := item.(map[string]any); ok {
			out = append(out, c)
		}
	}
	return out
}

// ContainersByName returns the containers of a pod managing object keyed by
// name, optionally including init containers.
func ContainersByName(obj *unstructured.Unstructured, includeInit bool) (map[string]map[string]any, error) {
	spec, err := PodSpec(obj)
	if err != nil {
		return nil, err
	}

	byName := map[string]map[string]any{}
	for _, c := range containerList(spec, "containers") {
		byName[fmt.Sprint(c["name"])] = c
	}
	if includeInit {
		for _, c := range containerList(spec, "initContainers") {
			byName[fmt.Sprint(c["name"])] = c
		}
	}
	return byName, nil
}

// ServiceAccountName returns the service account used by a pod managing
// object, or "" when the object does not manage pods or sets none.
func ServiceAccountName(obj *unstructured.Unstructured) string {
	spec, err := PodSpec(obj)
	if err != nil {
		return ""
	}
	name, _, _ := unstructured.NestedString(spec, "serviceAccountName")
	return name
}

// EnvVars maps a container's environment variable names to their value, or
// to their valueFrom reference when no literal value is set.
func EnvVars(container map[string]any) map[string]any {
	env := map[string]any{}
	items, _, _ := unstructured.NestedSlice(container, "env")
	for _, item := range items {
		e, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name := fmt.Sprint(e["name"])
		if v, ok := e["value"]; ok && v != nil && v != "" {
			env[name] = v
		} else {
			env[name] = e["valueFrom"]
		}
	}
	return env
}

// ServicePortsByName returns the ports of a Service keyed by port name.
func ServicePortsByName(svc *unstructured.Unstructured) map[string]map[string]any {
	ports := map[string]map[string]any{}
	items, _, _ := unstructured.NestedSlice(svc.Object, "spec", "ports")
	for _, item := range items {
		if p, ok := item.(map[string]any); ok {
			ports[fmt.Sprint(p["name"])] = p
		}
	}
	return ports
}

// ContainerFilter narrows ChartContainers to or away from kinds. Matching is
// case-insensitive.
type ContainerFilter struct {
	IncludeKinds []string
	ExcludeKinds []string
}

func (f ContainerFilter) allows(kind string) bool {
	kind = strings.ToLower(kind)
	for _, k := range f.ExcludeKinds {
		if strings.ToLower(k) == kind {
			return false
		}
	}
	if len(f.IncludeKinds) == 0 {
		return true
	}
	for _, k := range f.IncludeKinds {
		if strings.ToLower(k) == kind {
			return true
		}
	}
	return false
}

// ChartContainers collects every container and init container of objects
// with a spec.template.spec pod template, keyed
// "<kubeVersion>_<objectName>_<containerName>". Each entry is a copy of the
// container with "key" and "kind" added.
func ChartContainers(objs []*unstructured.Unstructured, kubeVersion string, filter ContainerFilter) map[string]map[string]any {
	out := map[string]map[string]any{}
	for _, obj := range objs {
		spec, found, err := unstructured.NestedMap(obj.Object, "spec", "template", "spec")
		if err != nil || !found {
			continue
		}
		if !filter.allows(obj.GetKind()) {
			continue
		}

		containers := append(containerList(spec, "containers"), containerList(spec, "initContainers")...)
		for _, c := range containers {
			key := fmt.Sprintf("%s_%s_%v", kubeVersion, obj.GetName(), c["name"])
			entry := runtime.DeepCopyJSON(c)
			entry["key"] = key
			entry["kind"] = obj.GetKind()
			out[key] = entry
		}
	}
	return out
}
