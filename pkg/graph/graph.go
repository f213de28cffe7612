// Package graph defines the Graph Builder (component C)'s output types and
// the StreamingFramework contract (spec.md §6) that the real media
// framework is consumed through. The framework itself is out of scope:
// this package only defines the interface and a Graph handle around it.
package graph

import "context"

// Node is an opaque handle to one element inside a built Graph, as returned
// by Framework.FindNode.
type Node interface {
	// SetProperty sets a named property to value on the underlying element.
	// value is either a parsed numeric type or a string, per spec.md §4.E
	// Refresh semantics ("numeric if parseable, else string").
	SetProperty(name string, value interface{}) error
}

// Binding records one ${NAME} reference resolved during expansion: which
// logical node/property it was found on and which variable it came from.
// Node is nil until a Graph has been built from the expansion this Binding
// belongs to; the Graph Builder fills it in on every (re)build.
type Binding struct {
	NodeName     string
	PropertyName string
	VariableName string
	Node         Node
}

// State mirrors the framework's own state machine as observed by a Graph.
type State int

const (
	StateNull State = iota
	StateReady
	StatePaused
	StatePlaying
)

// Message is a single bus event as emitted by the framework, already
// shaped for the Error Classifier (component D) to consume. The
// StreamingFramework contract only promises an ordered stream of these;
// the concrete wire format is whatever the real binding's bus produces.
type Message struct {
	Type           MessageType
	SourceElement  string
	SourceFactory  string
	Text           string
	DebugDetail    string
	Code           int
	RawDomain      int
	NewState       State
	OldState       State
}

// MessageType is the raw bus message kind, before classification.
type MessageType int

const (
	MessageError MessageType = iota
	MessageWarning
	MessageEndOfStream
	MessageStateChanged
	MessageOther
)

// Framework is the external streaming-media collaborator (spec.md §6): it
// parses a launch string into a running Graph, drives state transitions,
// and exposes an ordered bus. The real implementation (e.g. a GStreamer
// binding) lives outside this module; tests use pkg/graph/fakeframework.
type Framework interface {
	// Parse builds a live graph from an expanded launch string and returns
	// its framework-native handle, through which Builder resolves bindings
	// by logical node name (FrameworkGraph.FindNode).
	Parse(ctx context.Context, launchString string) (FrameworkGraph, error)
}

// FrameworkGraph is the framework-native handle returned by Framework.Parse.
type FrameworkGraph interface {
	// FindNode resolves a logical element name (its `name=` attribute) to a
	// Node handle within this graph.
	FindNode(name string) (Node, error)

	// SetState requests a transition and, if wait is true, blocks until the
	// framework reaches it or reports an error.
	SetState(ctx context.Context, target State, wait bool) (State, error)

	// Bus returns a channel of bus messages. Closed when Close is called.
	Bus() <-chan Message

	// Close tears down the graph: stops the main loop, releases bus
	// subscriptions, and frees framework resources. Idempotent.
	Close() error
}

// Graph is the Graph Builder's (component C) output: the framework handle,
// a lookup of logical node name to Node handle, and the ordered list of
// Bindings that apply (so Refresh can walk them without recomputing them).
type Graph struct {
	ID       string
	Native   FrameworkGraph
	Nodes    map[string]Node
	Bindings []Binding

	// CorrelationID is generated once per Build and stamped onto every
	// Fault classified from this Graph's bus, so log lines and external
	// alerts from the same build generation can be joined together.
	CorrelationID string
}
