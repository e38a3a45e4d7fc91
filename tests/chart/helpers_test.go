package chart_test

import "k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

func unstructuredString(obj *unstructured.Unstructured, fields ...string) (string, bool, error) {
	return unstructured.NestedString(obj.Object, fields...)
}

func unstructuredSlice(obj *unstructured.Unstructured, fields ...string) ([]any, bool, error) {
	return unstructured.NestedSlice(obj.Object, fields...)
}
