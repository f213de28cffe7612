package graph

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Builder is the Graph Builder (component C): it hands an already-expanded
// launch string to the streaming framework and resolves every Binding's
// node handle by logical name. Any lookup failure fails the build
// atomically: no partially built Graph escapes, and the framework-native
// graph is closed before returning.
type Builder struct {
	framework Framework
}

// NewBuilder wraps a Framework implementation.
func NewBuilder(framework Framework) *Builder {
	return &Builder{framework: framework}
}

// Build parses expandedLaunchString via the framework, attaches id to the
// resulting Graph (so bus events can be attributed back to the owning
// pipeline), and resolves every binding's node handle.
func (b *Builder) Build(ctx context.Context, id, expandedLaunchString string, bindings []Binding) (*Graph, error) {
	native, err := b.framework.Parse(ctx, expandedLaunchString)
	if err != nil {
		return nil, fmt.Errorf("graph: build %q: %w", id, err)
	}

	resolved := make([]Binding, len(bindings))
	copy(resolved, bindings)
	nodes := make(map[string]Node)

	for i, binding := range resolved {
		n, err := native.FindNode(binding.NodeName)
		if err != nil {
			_ = native.Close()
			return nil, fmt.Errorf("graph: build %q: resolve binding for node %q: %w", id, binding.NodeName, err)
		}
		resolved[i].Node = n
		nodes[binding.NodeName] = n
	}

	return &Graph{
		ID:            id,
		Native:        native,
		Nodes:         nodes,
		Bindings:      resolved,
		CorrelationID: uuid.New().String(),
	}, nil
}
