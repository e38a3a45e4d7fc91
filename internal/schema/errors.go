package schema

import (
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidationError reports an object that does not match its schema.
type ValidationError struct {
	Kind        string
	Name        string
	APIVersion  string
	KubeVersion string
	Cause       error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %q (%s) is invalid for kubernetes %s: %v", e.Kind, e.Name, e.APIVersion, e.KubeVersion, e.Cause)
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// Violations returns the instance locations that failed validation, such as
// "/spec/replicas".
func (e *ValidationError) Violations() []string {
	var verr *jsonschema.ValidationError
	if !errors.As(e.Cause, &verr) {
		return nil
	}
	var out []string
	collectLocations(verr, &out)
	return out
}

func collectLocations(verr *jsonschema.ValidationError, out *[]string) {
	if len(verr.Causes) == 0 {
		loc := ""
		for _, tok := range verr.InstanceLocation {
			loc += "/" + tok
		}
		if loc == "" {
			loc = "/"
		}
		*out = append(*out, loc)
		return
	}
	for _, c := range verr.Causes {
		collectLocations(c, out)
	}
}
