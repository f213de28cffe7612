// Package fakeframework is a test double for graph.Framework, grounded on
// the fake-client pattern the teacher corpus uses to exercise business
// logic without a real external system (e.g. controller-runtime's
// fake.NewClientBuilder()). It parses a launch string well enough to
// discover `name=` attributes and element types, and drives a trivial,
// deterministic state machine so Controller/Manager/Supervisor tests don't
// need a real streaming engine.
package fakeframework

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/edgepipe/runtime/pkg/graph"
)

// Framework is the fake graph.Framework implementation.
type Framework struct {
	mu sync.Mutex

	// FailSubstring, if set, makes every Parse call for a launch string
	// containing this substring fail with an error (simulating a
	// malformed definition, e.g. an unknown element).
	FailSubstring string

	// EmitFault and EOSAfterBuffers, when set, are copied onto every graph
	// this Framework parses, so tests can inject a fault or a short-lived
	// source without reaching into the unexported graph type.
	EmitFault       *graph.Message
	EOSAfterBuffers int
}

// New builds an empty fake Framework.
func New() *Framework {
	return &Framework{}
}

func (f *Framework) Parse(ctx context.Context, launchString string) (graph.FrameworkGraph, error) {
	if f.FailSubstring != "" && strings.Contains(launchString, f.FailSubstring) {
		return nil, fmt.Errorf("fakeframework: no such element factory in %q", launchString)
	}
	nodes := make(map[string]*node)
	for _, elem := range strings.Split(launchString, "!") {
		fields := strings.Fields(elem)
		if len(fields) == 0 {
			continue
		}
		n := &node{factory: fields[0], properties: map[string]interface{}{}}
		name := fields[0]
		for _, tok := range fields[1:] {
			idx := strings.Index(tok, "=")
			if idx < 0 {
				continue
			}
			key, val := tok[:idx], tok[idx+1:]
			n.properties[key] = val
			if key == "name" {
				name = val
			}
		}
		nodes[name] = n
	}
	return &fgraph{
		nodes:           nodes,
		bus:             make(chan graph.Message, 64),
		EmitFault:       f.EmitFault,
		EOSAfterBuffers: f.EOSAfterBuffers,
	}, nil
}

type node struct {
	mu         sync.Mutex
	factory    string
	properties map[string]interface{}
}

func (n *node) SetProperty(name string, value interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.properties[name] = value
	return nil
}

// Property returns the current value of a property, for test assertions.
func (n *node) Property(name string) interface{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.properties[name]
}

type fgraph struct {
	mu     sync.Mutex
	nodes  map[string]*node
	state  graph.State
	bus    chan graph.Message
	closed bool

	// EOSAfterBuffers, when >0, makes the graph emit an EndOfStream message
	// each time SetState(Playing) is reached, from the EOSAfterBuffers'th
	// time on, simulating
	// a short-lived source (spec.md §8 scenario 6).
	EOSAfterBuffers int
	playCount       int

	// EmitFault, if non-nil, is sent on the bus the first time SetState
	// reaches Playing, simulating an injected runtime fault (spec.md §8
	// scenario 5).
	EmitFault *graph.Message
	faultSent bool
}

func (g *fgraph) FindNode(name string) (graph.Node, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[name]
	if !ok {
		return nil, fmt.Errorf("fakeframework: no such node %q", name)
	}
	return n, nil
}

// NodeProperty is a test helper to read back a property value.
func (g *fgraph) NodeProperty(nodeName, propName string) (interface{}, error) {
	n, err := g.FindNode(nodeName)
	if err != nil {
		return nil, err
	}
	return n.(*node).Property(propName), nil
}

func (g *fgraph) SetState(ctx context.Context, target graph.State, wait bool) (graph.State, error) {
	g.mu.Lock()
	old := g.state
	g.state = target
	closed := g.closed
	g.mu.Unlock()
	if closed {
		return old, fmt.Errorf("fakeframework: graph is closed")
	}

	g.emit(graph.Message{Type: graph.MessageStateChanged, OldState: old, NewState: target})

	if target == graph.StatePlaying {
		g.mu.Lock()
		g.playCount++
		count := g.playCount
		fault := g.EmitFault
		faultSent := g.faultSent
		if fault != nil && !faultSent {
			g.faultSent = true
		}
		eosAt := g.EOSAfterBuffers
		g.mu.Unlock()

		if fault != nil && !faultSent {
			g.emit(*fault)
		}
		if eosAt > 0 && count >= eosAt {
			g.emit(graph.Message{Type: graph.MessageEndOfStream})
		}
	}
	return target, nil
}

func (g *fgraph) emit(msg graph.Message) {
	select {
	case g.bus <- msg:
	default:
	}
}

func (g *fgraph) Bus() <-chan graph.Message {
	return g.bus
}

func (g *fgraph) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	close(g.bus)
	return nil
}

// ParseNumeric mirrors the Controller's Refresh-path property coercion
// (spec.md §4.E: "numeric if parseable, else string") so fake-framework
// based tests can assert on the coerced type the same way the real
// Controller would produce it.
func ParseNumeric(s string) interface{} {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
