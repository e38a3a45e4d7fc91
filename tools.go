//go:build tools
// +build tools

// This file declares dependencies on tools used in the build process.
// See: https://github.com/go-modules-by-example/index/blob/master/010_tools/README.md

package tools

import (
	_ "github.com/magefile/mage"
	_ "github.com/onsi/ginkgo/v2/ginkgo"
	_ "helm.sh/helm/v3/cmd/helm"
	// Test dependencies - pinned here so `go mod download` fetches them for offline runs
	_ "github.com/pmezard/go-difflib/difflib"
	_ "github.com/prashantv/gostub"
	_ "github.com/stretchr/testify/assert"
)
