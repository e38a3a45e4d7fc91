// Package lint holds repository checks run from pre-commit and CI.
package lint

import (
	"fmt"
	"strings"
)

// Pair is a filename fragment that is refused and its suggested spelling.
type Pair struct {
	Refused   string
	Suggested string
}

// DefaultPairs are the fragments refused in chart filenames.
var DefaultPairs = []Pair{
	{Refused: "authsidecar", Suggested: "auth-sidecar"},
}

// RefusedFilenameError reports a filename containing a refused fragment.
type RefusedFilenameError struct {
	File string
	Pair Pair
}

func (e *RefusedFilenameError) Error() string {
	return fmt.Sprintf("filename '%s' contains the blocked string '%s' which should probably be '%s'",
		e.File, e.Pair.Refused, e.Pair.Suggested)
}

// RefuseFilenames returns an error for the first file containing a refused
// fragment.
func RefuseFilenames(files []string, pairs []Pair) error {
	for _, file := range files {
		for _, p := range pairs {
			if strings.Contains(file, p.Refused) {
				return &RefusedFilenameError{File: file, Pair: p}
			}
		}
	}
	return nil
}
