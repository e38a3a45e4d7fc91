package chart

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

var errFound = errors.New("found")

// FindChartRoot walks up from start and returns the first directory that
// contains a Chart.yaml.
func FindChartRoot(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "Chart.yaml")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no Chart.yaml found above %s", start)
		}
		dir = parent
	}
}

// FindChartDirectory finds the directory of the first Helm chart below the
// repository. It starts from the directory containing this source file and
// walks up the tree, searching each directory and its subdirectories for a
// Chart.yaml.
func FindChartDirectory() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("unable to determine caller information")
	}

	dir := filepath.Dir(filename)
	for {
		chartYamlPath, err := findChartYamlInDirectory(dir)
		if err == nil {
			return filepath.Dir(chartYamlPath), nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no Chart.yaml found in any subdirectory")
		}
		dir = parent
	}
}

// findChartYamlInDirectory searches for a Chart.yaml in the given directory
// and its subdirectories. Hidden, underscore-prefixed and testdata
// directories are skipped, like the go tool does.
func findChartYamlInDirectory(rootDir string) (string, error) {
	var chartYamlPath string

	err := filepath.WalkDir(rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && path != rootDir {
			name := d.Name()
			if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == "testdata" {
				return filepath.SkipDir
			}
		}
		if d.Name() == "Chart.yaml" {
			chartYamlPath = path
			return errFound
		}
		return nil
	})
	if err != nil && !errors.Is(err, errFound) {
		return "", err
	}

	if chartYamlPath == "" {
		return "", fmt.Errorf("no Chart.yaml found")
	}

	return chartYamlPath, nil
}
