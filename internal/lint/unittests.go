package lint

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	utilyaml "k8s.io/apimachinery/pkg/util/yaml"
	"sigs.k8s.io/yaml"
)

// UnittestGlob locates helm-unittest suites relative to the repository root.
const UnittestGlob = "charts/*/tests/*_test.yaml"

type unittestSuite struct {
	Templates []string `json:"templates"`
	Tests     []struct {
		Template string `json:"template"`
	} `json:"tests"`
}

// UnittestReport lists the templates referenced by helm-unittest suites that
// do not exist, and the suites that could not be parsed.
type UnittestReport struct {
	Missing     []string
	ParseErrors []error
}

// OK reports whether every suite parsed and every template exists.
func (r UnittestReport) OK() bool {
	return len(r.Missing) == 0 && len(r.ParseErrors) == 0
}

// ValidateUnittestTemplates checks every suite matching UnittestGlob under
// root. Template paths are resolved against the chart's templates directory;
// a leading "templates/" is accepted.
func ValidateUnittestTemplates(root string) (UnittestReport, error) {
	var report UnittestReport
	files, err := filepath.Glob(filepath.Join(root, UnittestGlob))
	if err != nil {
		return report, err
	}
	sort.Strings(files)

	missing := map[string]bool{}
	for _, file := range files {
		suites, err := readSuites(file)
		if err != nil {
			report.ParseErrors = append(report.ParseErrors, fmt.Errorf("%s could not be parsed: %w", file, err))
			continue
		}

		chartDir := filepath.Dir(filepath.Dir(file))
		for _, suite := range suites {
			refs := append([]string(nil), suite.Templates...)
			for _, t := range suite.Tests {
				if t.Template != "" {
					refs = append(refs, t.Template)
				}
			}
			for _, ref := range refs {
				path := templatePath(chartDir, ref)
				if _, err := os.Stat(path); err != nil && !missing[path] {
					missing[path] = true
					report.Missing = append(report.Missing, path)
				}
			}
		}
	}
	return report, nil
}

func templatePath(chartDir, ref string) string {
	ref = filepath.FromSlash(ref)
	if strings.HasPrefix(ref, "templates"+string(filepath.Separator)) {
		return filepath.Join(chartDir, ref)
	}
	return filepath.Join(chartDir, "templates", ref)
}

func readSuites(file string) ([]unittestSuite, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}

	reader := utilyaml.NewYAMLReader(bufio.NewReader(bytes.NewReader(data)))
	var suites []unittestSuite
	for {
		doc, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(bytes.TrimSpace(doc)) == 0 {
			continue
		}
		var s unittestSuite
		if err := yaml.Unmarshal(doc, &s); err != nil {
			return nil, err
		}
		suites = append(suites, s)
	}
	return suites, nil
}
