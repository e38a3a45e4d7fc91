package manifest

import (
	"fmt"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/scheme"
)

// Decode converts a rendered object into its typed Kubernetes representation
// (e.g. *appsv1.Deployment) using the client-go scheme.
func Decode(obj *unstructured.Unstructured) (runtime.Object, error) {
	data, err := obj.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s/%s: %w", obj.GetKind(), obj.GetName(), err)
	}
	typed, _, err := scheme.Codecs.UniversalDeserializer().Decode(data, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s/%s: %w", obj.GetKind(), obj.GetName(), err)
	}
	return typed, nil
}

// DecodeInto converts a rendered object into out, which must be a pointer to
// the matching typed object.
func DecodeInto(obj *unstructured.Unstructured, out any) error {
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(obj.Object, out); err != nil {
		return fmt.Errorf("failed to convert %s/%s: %w", obj.GetKind(), obj.GetName(), err)
	}
	return nil
}
