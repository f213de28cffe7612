// Package errors joins multiple independent failures (e.g. one per pipeline
// in a best-effort batch operation) into a single error, skipping nils.
package errors

import (
	"fmt"
	"strings"
)

// Chain joins a set of non-nil errors into a single error, skipping nils.
// It returns nil if errs contains no non-nil error.
func Chain(errs ...error) error {
	var msgs []string
	for _, e := range errs {
		if e != nil {
			msgs = append(msgs, e.Error())
		}
	}
	switch len(msgs) {
	case 0:
		return nil
	case 1:
		return fmt.Errorf("%s", msgs[0])
	default:
		return fmt.Errorf("multiple errors: %s", strings.Join(msgs, "; "))
	}
}
