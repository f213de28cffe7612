package graph_test

import (
	"context"
	"testing"

	"github.com/edgepipe/runtime/pkg/graph"
	"github.com/edgepipe/runtime/pkg/graph/fakeframework"
)

func TestBuilderResolvesBindings(t *testing.T) {
	fw := fakeframework.New()
	b := graph.NewBuilder(fw)

	g, err := b.Build(context.Background(), "p1", "videotestsrc name=src pattern=1 ! fakesink", []graph.Binding{
		{NodeName: "src", PropertyName: "pattern", VariableName: "PATTERN"},
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if g.ID != "p1" {
		t.Errorf("ID = %q", g.ID)
	}
	if _, ok := g.Nodes["src"]; !ok {
		t.Error("Nodes missing \"src\"")
	}
	if g.Bindings[0].Node == nil {
		t.Error("Binding node handle not resolved")
	}
}

func TestBuilderFailsAtomicallyOnUnresolvedBinding(t *testing.T) {
	fw := fakeframework.New()
	b := graph.NewBuilder(fw)

	_, err := b.Build(context.Background(), "p1", "videotestsrc ! fakesink", []graph.Binding{
		{NodeName: "nonexistent", PropertyName: "pattern", VariableName: "PATTERN"},
	})
	if err == nil {
		t.Fatal("Build() expected error for unresolved binding")
	}
}

func TestBuilderFailsOnMalformedDefinition(t *testing.T) {
	fw := &fakeframework.Framework{FailSubstring: "notaplugin"}
	b := graph.NewBuilder(fw)

	_, err := b.Build(context.Background(), "p1", "notaplugin ! fakesink", nil)
	if err == nil {
		t.Fatal("Build() expected error for malformed definition")
	}
}
