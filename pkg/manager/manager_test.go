package manager

import (
	"context"
	"testing"

	"github.com/go-logr/logr"

	"github.com/edgepipe/runtime/pkg/controller"
	"github.com/edgepipe/runtime/pkg/fault"
	"github.com/edgepipe/runtime/pkg/graph/fakeframework"
	"github.com/edgepipe/runtime/pkg/variable"
)

type noopObserver struct {
	addPreview    func(desc PipelineDescription) bool
	removePreview func(id string) bool
	defPreview    func(id, newDefinition string) bool
	added         []string
	removed       []string
}

func (o *noopObserver) OnFault(string, fault.Fault)                      {}
func (o *noopObserver) OnStateChange(string, controller.State, controller.State) {}
func (o *noopObserver) OnAdded(id string)                                { o.added = append(o.added, id) }
func (o *noopObserver) OnRemoved(id string)                              { o.removed = append(o.removed, id) }
func (o *noopObserver) OnAddPreview(desc PipelineDescription) bool {
	if o.addPreview != nil {
		return o.addPreview(desc)
	}
	return false
}
func (o *noopObserver) OnRemovePreview(id string) bool {
	if o.removePreview != nil {
		return o.removePreview(id)
	}
	return false
}
func (o *noopObserver) OnDefinitionChangePreview(id, newDefinition string) bool {
	if o.defPreview != nil {
		return o.defPreview(id, newDefinition)
	}
	return false
}

func newTestManager(pipelinesJSON string) *Manager {
	var mem *variable.MemorySource
	if pipelinesJSON != "" {
		mem = variable.NewMemorySource(variable.Variable{Name: "pipelines", Kind: variable.KindJSON, Value: pipelinesJSON})
	} else {
		mem = variable.NewMemorySource()
	}
	resolver := variable.NewResolver(logr.Discard(), mem)
	return New(resolver, fakeframework.New(), logr.Discard())
}

func TestManagerInitializeEmptyPipelinesIsNoError(t *testing.T) {
	m := newTestManager("")
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if len(m.IDs()) != 0 {
		t.Fatalf("IDs() = %v, want empty", m.IDs())
	}
}

func TestManagerInitializeBuildsControllers(t *testing.T) {
	m := newTestManager(`[{"id":"p1","definition":"videotestsrc pattern=0 ! fakesink"}]`)
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if len(m.IDs()) != 1 {
		t.Fatalf("IDs() = %v, want 1 entry", m.IDs())
	}
	status, ok := m.Status("p1")
	if !ok {
		t.Fatal("Status(p1) not found")
	}
	if status.State != controller.StateInitialized {
		t.Errorf("Status().State = %v, want Initialized", status.State)
	}
}

func TestManagerInitializeAggregatesBuildFailures(t *testing.T) {
	var mem *variable.MemorySource
	mem = variable.NewMemorySource(variable.Variable{
		Name: "pipelines", Kind: variable.KindJSON,
		Value: `[{"id":"bad","definition":"notaplugin ! fakesink"},{"id":"good","definition":"videotestsrc ! fakesink"}]`,
	})
	resolver := variable.NewResolver(logr.Discard(), mem)
	fw := &fakeframework.Framework{FailSubstring: "notaplugin"}
	m := New(resolver, fw, logr.Discard())

	err := m.Initialize(context.Background())
	if err == nil {
		t.Fatal("Initialize() expected aggregated error")
	}
	if len(m.IDs()) != 1 {
		t.Fatalf("IDs() = %v, want the surviving controller kept", m.IDs())
	}
}

func TestManagerAddPreviewVeto(t *testing.T) {
	m := newTestManager("")
	obs := &noopObserver{addPreview: func(PipelineDescription) bool { return true }}
	m.Observe(obs)

	if err := m.Add(context.Background(), PipelineDescription{ID: "p1", Definition: "videotestsrc"}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if len(m.IDs()) != 0 {
		t.Fatalf("IDs() = %v, want empty (vetoed)", m.IDs())
	}
	if len(obs.added) != 0 {
		t.Error("OnAdded should not fire when vetoed")
	}
}

func TestManagerAddAndRemove(t *testing.T) {
	m := newTestManager("")
	obs := &noopObserver{}
	m.Observe(obs)

	if err := m.Add(context.Background(), PipelineDescription{ID: "p1", Definition: "videotestsrc pattern=0 ! fakesink"}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if len(obs.added) != 1 || obs.added[0] != "p1" {
		t.Errorf("added = %v, want [p1]", obs.added)
	}

	if err := m.Remove(context.Background(), "p1"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if len(obs.removed) != 1 || obs.removed[0] != "p1" {
		t.Errorf("removed = %v, want [p1]", obs.removed)
	}
	if len(m.IDs()) != 0 {
		t.Fatalf("IDs() = %v, want empty after remove", m.IDs())
	}
}

func TestManagerRefreshIsNoopWhenUnchanged(t *testing.T) {
	m := newTestManager(`[{"id":"p1","definition":"videotestsrc pattern=0 ! fakesink"}]`)
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	obs := &noopObserver{}
	m.Observe(obs)

	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if len(obs.added) != 0 || len(obs.removed) != 0 {
		t.Errorf("unchanged refresh should not add/remove: added=%v removed=%v", obs.added, obs.removed)
	}
}

func TestManagerRefreshReconcilesAddedAndRemoved(t *testing.T) {
	mem := variable.NewMemorySource(variable.Variable{
		Name: "pipelines", Kind: variable.KindJSON,
		Value: `[{"id":"p1","definition":"videotestsrc ! fakesink"}]`,
	})
	resolver := variable.NewResolver(logr.Discard(), mem)
	m := New(resolver, fakeframework.New(), logr.Discard())
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	mem.Set(variable.Variable{
		Name: "pipelines", Kind: variable.KindJSON,
		Value: `[{"id":"p2","definition":"videotestsrc ! fakesink"}]`,
	})
	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	ids := m.IDs()
	if len(ids) != 1 || ids[0] != "p2" {
		t.Fatalf("IDs() = %v, want [p2]", ids)
	}
}
