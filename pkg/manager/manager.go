// Package manager implements the Pipeline Manager (component G): it owns
// a set of Controllers keyed by pipeline id, reconciles them against the
// `pipelines` configuration property, and relays their events to
// registered observers with a preview-veto hook for add/remove/update.
package manager

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/go-logr/logr"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	sharederrors "github.com/edgepipe/runtime/internal/shared/errors"
	"github.com/edgepipe/runtime/internal/pipelineerr"
	"github.com/edgepipe/runtime/pkg/controller"
	"github.com/edgepipe/runtime/pkg/fault"
	"github.com/edgepipe/runtime/pkg/graph"
	"github.com/edgepipe/runtime/pkg/retry"
	"github.com/edgepipe/runtime/pkg/variable"
)

// PipelineDescription is one element of the `pipelines` configuration
// property (spec.md §6).
type PipelineDescription struct {
	ID           string `json:"id" validate:"required"`
	Definition   string `json:"definition" validate:"required"`
	RetryEnabled bool   `json:"retry_enabled"`
}

var structValidator = validator.New()

// ParsePipelineDescriptions decodes the `pipelines` JSON array property.
// Non-string id/definition fields fail during json.Unmarshal itself; empty
// id/definition are rejected by the validator tags. Unknown fields are
// silently ignored, matching encoding/json's default behavior.
func ParsePipelineDescriptions(raw []byte) ([]PipelineDescription, error) {
	var descs []PipelineDescription
	if err := json.Unmarshal(raw, &descs); err != nil {
		return nil, pipelineerr.Wrap(err, pipelineerr.InvalidArgument, "parse pipelines property")
	}

	seen := make(map[string]bool, len(descs))
	for i, d := range descs {
		if err := structValidator.Struct(d); err != nil {
			return nil, pipelineerr.Wrapf(err, pipelineerr.InvalidArgument, "pipelines[%d] invalid", i)
		}
		if seen[d.ID] {
			return nil, pipelineerr.Newf(pipelineerr.InvalidState, "duplicate pipeline id %q", d.ID)
		}
		seen[d.ID] = true
	}
	return descs, nil
}

// Observer receives Manager-level events and may veto add/remove/update
// during their preview phase (spec.md §4.G / §6 "Subscriber contract").
type Observer interface {
	OnFault(id string, f fault.Fault)
	OnStateChange(id string, old, new controller.State)
	OnAdded(id string)
	OnRemoved(id string)
	OnAddPreview(desc PipelineDescription) bool
	OnRemovePreview(id string) bool
	OnDefinitionChangePreview(id string, newDefinition string) bool
}

type observerHandle struct {
	id  int
	obs Observer
}

type entry struct {
	ctrl  *controller.Controller
	desc  PipelineDescription
	subID int
}

// Manager is the Pipeline Manager (component G).
type Manager struct {
	resolver  *variable.Resolver
	framework graph.Framework
	log       logr.Logger

	mu             sync.Mutex
	entries        map[string]*entry
	startOnAdd     bool
	retrySupervisor *retry.Supervisor

	obsMu     sync.Mutex
	observers []observerHandle
	nextObsID int
}

// New builds an empty Manager. Call Initialize to populate it from the
// `pipelines` property.
func New(resolver *variable.Resolver, framework graph.Framework, log logr.Logger) *Manager {
	return &Manager{
		resolver:  resolver,
		framework: framework,
		log:       log,
		entries:   make(map[string]*entry),
	}
}

// Observe registers o and returns a handle for Unobserve.
func (m *Manager) Observe(o Observer) int {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	m.nextObsID++
	id := m.nextObsID
	m.observers = append(m.observers, observerHandle{id: id, obs: o})
	return id
}

// Unobserve removes a previously registered Observer.
func (m *Manager) Unobserve(id int) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	for i, h := range m.observers {
		if h.id == id {
			m.observers = append(m.observers[:i:i], m.observers[i+1:]...)
			return
		}
	}
}

func (m *Manager) observerSnapshot() []observerHandle {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	snap := make([]observerHandle, len(m.observers))
	copy(snap, m.observers)
	return snap
}

// managerRelay forwards a single Controller's events to every Manager
// observer, tagging them with the owning pipeline id.
type managerRelay struct {
	m  *Manager
	id string
}

func (r *managerRelay) OnFault(ctrl *controller.Controller, f fault.Fault) {
	for _, h := range r.m.observerSnapshot() {
		h.obs.OnFault(r.id, f)
	}
}

func (r *managerRelay) OnStateChange(ctrl *controller.Controller, old, new controller.State) {
	for _, h := range r.m.observerSnapshot() {
		h.obs.OnStateChange(r.id, old, new)
	}
}

// Initialize reads the `pipelines` property and builds a Controller for
// each entry. An absent property yields zero Controllers and no error
// (spec.md §8 boundary behavior). If any Controller build fails, the
// Manager keeps the Controllers that did succeed and returns an error
// aggregated over the failures.
func (m *Manager) Initialize(ctx context.Context) error {
	v, err := m.resolver.Get(ctx, "pipelines")
	if err != nil {
		if errors.Is(err, variable.ErrNotFound) {
			return nil
		}
		return err
	}

	descs, err := ParsePipelineDescriptions([]byte(v.String()))
	if err != nil {
		return err
	}

	var failures []error
	for _, d := range descs {
		if err := m.buildAndRegister(ctx, d); err != nil {
			failures = append(failures, err)
		}
	}
	if len(failures) > 0 {
		return sharederrors.Chain(failures...)
	}
	return nil
}

func (m *Manager) buildAndRegister(ctx context.Context, d PipelineDescription) error {
	ctrl := controller.New(d.ID, d.Definition, m.resolver, m.framework, m.log)
	if err := ctrl.Build(ctx); err != nil {
		return err
	}
	subID := ctrl.Subscribe(&managerRelay{m: m, id: d.ID})

	m.mu.Lock()
	m.entries[d.ID] = &entry{ctrl: ctrl, desc: d, subID: subID}
	sup := m.retrySupervisor
	m.mu.Unlock()

	if d.RetryEnabled && sup != nil {
		sup.Watch(ctrl)
	}
	return nil
}

// Add builds and registers a new pipeline. Each registered observer is
// first consulted via OnAddPreview; if any claims the add, the Manager
// builds no Controller for this id.
func (m *Manager) Add(ctx context.Context, desc PipelineDescription) error {
	for _, h := range m.observerSnapshot() {
		if h.obs.OnAddPreview(desc) {
			return nil
		}
	}

	m.mu.Lock()
	if _, exists := m.entries[desc.ID]; exists {
		m.mu.Unlock()
		return pipelineerr.Newf(pipelineerr.InvalidState, "duplicate pipeline id %q", desc.ID)
	}
	startOnAdd := m.startOnAdd
	m.mu.Unlock()

	if err := m.buildAndRegister(ctx, desc); err != nil {
		return err
	}

	for _, h := range m.observerSnapshot() {
		h.obs.OnAdded(desc.ID)
	}

	if startOnAdd {
		m.mu.Lock()
		e := m.entries[desc.ID]
		m.mu.Unlock()
		if e != nil {
			if _, err := e.ctrl.Start(ctx); err != nil {
				m.log.Error(err, "start on add failed", "pipeline", desc.ID)
			}
		}
	}
	return nil
}

// Remove stops and drops a pipeline, symmetric with Add: OnRemovePreview
// may veto the removal.
func (m *Manager) Remove(ctx context.Context, id string) error {
	for _, h := range m.observerSnapshot() {
		if h.obs.OnRemovePreview(id) {
			return nil
		}
	}

	m.mu.Lock()
	e, ok := m.entries[id]
	if ok {
		delete(m.entries, id)
	}
	sup := m.retrySupervisor
	m.mu.Unlock()

	if !ok {
		return pipelineerr.Newf(pipelineerr.NotFound, "pipeline %q not found", id)
	}

	if e.desc.RetryEnabled && sup != nil {
		sup.Unwatch(e.ctrl)
	}
	e.ctrl.Unsubscribe(e.subID)
	_ = e.ctrl.Stop(ctx)

	for _, h := range m.observerSnapshot() {
		h.obs.OnRemoved(id)
	}
	return nil
}

// Update applies a changed PipelineDescription. An unknown id is
// equivalent to Add. Otherwise OnDefinitionChangePreview may veto the
// change; on non-veto, Controller.ChangeDefinition is invoked.
func (m *Manager) Update(ctx context.Context, desc PipelineDescription) error {
	m.mu.Lock()
	e, ok := m.entries[desc.ID]
	m.mu.Unlock()
	if !ok {
		return m.Add(ctx, desc)
	}

	for _, h := range m.observerSnapshot() {
		if h.obs.OnDefinitionChangePreview(desc.ID, desc.Definition) {
			return nil
		}
	}

	if err := e.ctrl.ChangeDefinition(ctx, desc.Definition); err != nil {
		return err
	}

	m.mu.Lock()
	e.desc = desc
	m.mu.Unlock()
	return nil
}

func (m *Manager) entrySnapshot() []*entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	return out
}

// Start starts every Controller and marks start_on_add so future Add calls
// also start their Controller. Individual failures are logged, not fatal.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	m.startOnAdd = true
	m.mu.Unlock()
	return m.batch(ctx, func(ctx context.Context, e *entry) error {
		_, err := e.ctrl.Start(ctx)
		return err
	}, "start")
}

// Stop stops every Controller, best-effort.
func (m *Manager) Stop(ctx context.Context) error {
	return m.batch(ctx, func(ctx context.Context, e *entry) error {
		return e.ctrl.Stop(ctx)
	}, "stop")
}

// Restart restarts every Controller, best-effort.
func (m *Manager) Restart(ctx context.Context) error {
	return m.batch(ctx, func(ctx context.Context, e *entry) error {
		return e.ctrl.Restart(ctx)
	}, "restart")
}

// batch fans out op across every Controller concurrently via errgroup,
// logging (never propagating) individual failures, matching spec.md §4.G's
// "best-effort across all" contract for start/restart/stop.
func (m *Manager) batch(ctx context.Context, op func(context.Context, *entry) error, name string) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, e := range m.entrySnapshot() {
		e := e
		g.Go(func() error {
			if err := op(gctx, e); err != nil {
				m.log.Error(err, name+" failed", "pipeline", e.ctrl.ID())
			}
			return nil
		})
	}
	return g.Wait()
}

// Refresh re-reads the `pipelines` property, computes added/removed/
// definition-changed sets by id and definition diff, applies add/remove/
// update accordingly, and calls Refresh on every unchanged Controller so
// it can process stale variables.
func (m *Manager) Refresh(ctx context.Context) error {
	v, err := m.resolver.Get(ctx, "pipelines")
	raw := []byte("[]")
	if err != nil {
		if !errors.Is(err, variable.ErrNotFound) {
			return err
		}
	} else {
		raw = []byte(v.String())
	}

	wanted, err := ParsePipelineDescriptions(raw)
	if err != nil {
		return err
	}
	wantByID := make(map[string]PipelineDescription, len(wanted))
	for _, d := range wanted {
		wantByID[d.ID] = d
	}

	m.mu.Lock()
	var toRemove, toUpsert, unchanged []string
	for id := range m.entries {
		if _, ok := wantByID[id]; !ok {
			toRemove = append(toRemove, id)
		}
	}
	for id, d := range wantByID {
		if e, ok := m.entries[id]; ok {
			if e.desc.Definition != d.Definition || e.desc.RetryEnabled != d.RetryEnabled {
				toUpsert = append(toUpsert, id)
			} else {
				unchanged = append(unchanged, id)
			}
		} else {
			toUpsert = append(toUpsert, id)
		}
	}
	m.mu.Unlock()

	for _, id := range toRemove {
		if err := m.Remove(ctx, id); err != nil {
			m.log.Error(err, "refresh: remove failed", "pipeline", id)
		}
	}
	for _, id := range toUpsert {
		d := wantByID[id]
		m.mu.Lock()
		_, exists := m.entries[id]
		m.mu.Unlock()
		var err error
		if exists {
			err = m.Update(ctx, d)
		} else {
			err = m.Add(ctx, d)
		}
		if err != nil {
			m.log.Error(err, "refresh: add/update failed", "pipeline", id)
		}
	}
	for _, id := range unchanged {
		m.mu.Lock()
		e := m.entries[id]
		m.mu.Unlock()
		if e == nil {
			continue
		}
		if err := e.ctrl.Refresh(ctx); err != nil {
			m.log.Error(err, "refresh failed", "pipeline", id)
		}
	}
	return nil
}

// SetRetryMechanism attaches sup to every pipeline whose description has
// retry_enabled=true, replacing any prior handler.
func (m *Manager) SetRetryMechanism(sup *retry.Supervisor) {
	m.mu.Lock()
	old := m.retrySupervisor
	m.retrySupervisor = sup
	var retryEnabled []*entry
	for _, e := range m.entries {
		if e.desc.RetryEnabled {
			retryEnabled = append(retryEnabled, e)
		}
	}
	m.mu.Unlock()

	for _, e := range retryEnabled {
		if old != nil {
			old.Unwatch(e.ctrl)
		}
		if sup != nil {
			sup.Watch(e.ctrl)
		}
	}
}

// IDs returns the currently registered pipeline ids.
func (m *Manager) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	return ids
}

// Status returns the Status of pipeline id, if it is registered.
func (m *Manager) Status(id string) (controller.Status, bool) {
	m.mu.Lock()
	e, ok := m.entries[id]
	m.mu.Unlock()
	if !ok {
		return controller.Status{}, false
	}
	return e.ctrl.Status(), true
}
