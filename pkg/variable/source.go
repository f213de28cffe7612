package variable

import (
	"context"
	"errors"
)

// ErrNotFound is returned by a PropertySource when it has no value for the
// requested name. The Resolver treats it specially: it continues to the
// next source in the chain rather than aborting.
var ErrNotFound = errors.New("variable: not found")

// PropertySource is one link in the Resolver's ordered chain. Sources own
// any caching of their own; the Resolver itself is stateless.
type PropertySource interface {
	// Lookup returns the Variable for name, ErrNotFound if this source has
	// no such variable, or any other error to abort the whole chain.
	Lookup(ctx context.Context, name string) (Variable, error)

	// Synchronize reports which variable names changed since the previous
	// call (or since construction, for the first call) and refreshes
	// whatever internal cache the source keeps.
	Synchronize(ctx context.Context) ([]string, error)

	// Name identifies the source for logging/diagnostics.
	Name() string
}
