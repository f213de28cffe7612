package variable

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/go-logr/logr"

	sharederrors "github.com/edgepipe/runtime/internal/shared/errors"
)

// Resolver iterates an ordered chain of PropertySources and returns the
// first successful lookup. It is itself stateless: all caching lives in the
// sources.
type Resolver struct {
	sources []PropertySource
	log     logr.Logger
}

// NewResolver builds a Resolver over the given ordered sources. Order
// matters: the first source to resolve a name wins.
func NewResolver(log logr.Logger, sources ...PropertySource) *Resolver {
	return &Resolver{sources: sources, log: log}
}

// Get resolves name against the source chain. A NotFound from every source
// is reported as ErrNotFound; any other source error aborts the chain
// immediately and is returned wrapped with the failing source's name.
func (r *Resolver) Get(ctx context.Context, name string) (Variable, error) {
	for _, src := range r.sources {
		v, err := src.Lookup(ctx, name)
		switch {
		case err == nil:
			return v, nil
		case errors.Is(err, ErrNotFound):
			continue
		default:
			return Variable{}, errors.Wrapf(err, "resolve %q via source %q", name, src.Name())
		}
	}
	return Variable{}, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Refresh calls Synchronize on every source in the chain and aggregates the
// changed-variable names across all of them. A failure from one source does
// not prevent the others from synchronizing; errors are joined.
func (r *Resolver) Refresh(ctx context.Context) ([]string, error) {
	var changed []string
	var errs []error
	for _, src := range r.sources {
		names, err := src.Synchronize(ctx)
		if err != nil {
			errs = append(errs, errors.Wrapf(err, "synchronize source %q", src.Name()))
			continue
		}
		changed = append(changed, names...)
	}
	if len(errs) > 0 {
		return changed, sharederrors.Chain(errs...)
	}
	return changed, nil
}

// Sources returns the ordered chain, primarily for diagnostics/tests.
func (r *Resolver) Sources() []PropertySource {
	return r.sources
}
