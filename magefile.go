//go:build mage

package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"

	"github.com/astronomer/astronomer/internal/cron"
	"github.com/astronomer/astronomer/internal/lint"
)

const (
	binary   = "bin/astro-chart"
	chartDir = "tests/charts/platform"
)

var Default = Test

// Build compiles the astro-chart CLI.
func Build() error {
	return sh.RunV("go", "build", "-o", binary, "./cmd/astro-chart")
}

// Unit runs the package tests.
func Unit() error {
	return sh.RunV("go", "run", "github.com/onsi/ginkgo/v2/ginkgo", "-r", "--randomize-all", "./internal")
}

// Chart runs the chart template suite. Schema validation can be turned off
// with ASTRO_CHART__SCHEMA__VALIDATE=false when offline.
func Chart() error {
	return sh.RunV("go", "run", "github.com/onsi/ginkgo/v2/ginkgo", "-v", "./tests/chart")
}

// Test runs the unit and chart suites.
func Test() {
	mg.SerialDeps(Unit, Chart)
}

// Lint checks chart filenames and helm-unittest template references.
func Lint() error {
	var files []string
	err := filepath.WalkDir(chartDir, func(path string, _ fs.DirEntry, err error) error {
		files = append(files, path)
		return err
	})
	if err != nil {
		return err
	}
	if err := lint.RefuseFilenames(files, lint.DefaultPairs); err != nil {
		return err
	}
	report, err := lint.ValidateUnittestTemplates(chartDir)
	if err != nil {
		return err
	}
	if !report.OK() {
		return fmt.Errorf("unittest references: %d missing templates, %d unparsable files", len(report.Missing), len(report.ParseErrors))
	}
	return nil
}

// Schemas warms the JSON schema cache for every supported kubernetes version.
func Schemas() error {
	mg.Deps(Build)
	return sh.RunV(binary, "--chart-dir", chartDir, "schema", "prefetch", "--all-versions")
}

// Schedule prints the CronJob schedule of a release, e.g. `mage schedule my-release`.
func Schedule(release string) {
	fmt.Println(cron.Schedule(release))
}

// Clean removes build output.
func Clean() error {
	return os.RemoveAll(filepath.Dir(binary))
}
