package chart

import (
	"fmt"
	"os"

	"sigs.k8s.io/yaml"
)

var createTemp = os.CreateTemp

// writeValuesToFile writes the given values in YAML format to a temp file and
// returns the path to the file.
func writeValuesToFile(values map[string]any) (string, error) {
	data, err := yaml.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("failed to marshal values to YAML: %w", err)
	}

	f, err := createTemp("", "values-*.yaml")
	if err != nil {
		return "", fmt.Errorf("failed to create temp values file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write temp values file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to close temp values file: %w", err)
	}

	return f.Name(), nil
}
