package controller

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/edgepipe/runtime/internal/metrics"
	"github.com/edgepipe/runtime/internal/pipelineerr"
	"github.com/edgepipe/runtime/pkg/expansion"
	"github.com/edgepipe/runtime/pkg/fault"
	"github.com/edgepipe/runtime/pkg/graph"
	"github.com/edgepipe/runtime/pkg/variable"
)

// Subscriber receives Controller events. Handlers run on the bus-loop
// thread and must not block indefinitely (spec.md §4.E).
type Subscriber interface {
	OnFault(ctrl *Controller, f fault.Fault)
	OnStateChange(ctrl *Controller, old, new State)
}

type subscription struct {
	id  int
	sub Subscriber
}

// Controller is the Pipeline Controller (component E): it owns one Graph,
// drives its state machine, and dispatches subscriber callbacks.
type Controller struct {
	id         string
	resolver   *variable.Resolver
	graphBuild *graph.Builder
	classifier *fault.Classifier
	log        logr.Logger

	mu                    sync.Mutex
	cond                  *sync.Cond
	definition            string
	state                 State
	status                Status
	latestRequestedTarget State
	g                     *graph.Graph
	lastFault             *fault.Fault
	busDone               chan struct{}

	subsMu    sync.Mutex
	subs      []subscription
	nextSubID int
}

// New builds a Controller over definition, not yet built (state zero value
// is StateInitialized only after a successful Build; before the first
// Build, Start refuses with InvalidState).
func New(id, definition string, resolver *variable.Resolver, framework graph.Framework, log logr.Logger) *Controller {
	c := &Controller{
		id:         id,
		definition: definition,
		resolver:   resolver,
		graphBuild: graph.NewBuilder(framework),
		classifier: fault.NewClassifier(),
		log:        log.WithValues("pipeline", id),
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

func (c *Controller) ID() string { return c.id }

// State returns the Controller's current PipelineState.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns the Controller's current human-readable Status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Definition returns the PipelineDescription's current launch string.
func (c *Controller) Definition() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.definition
}

// LastFault returns the most recently recorded Fault, if any.
func (c *Controller) LastFault() *fault.Fault {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastFault
}

// Subscribe registers a Subscriber and returns a handle for Unsubscribe.
func (c *Controller) Subscribe(s Subscriber) int {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	c.nextSubID++
	id := c.nextSubID
	c.subs = append(c.subs, subscription{id: id, sub: s})
	return id
}

// Unsubscribe removes a previously registered Subscriber. A handler removed
// mid-dispatch does not receive further events, but the in-flight call it
// is already running completes (dispatch snapshots the subscriber list).
func (c *Controller) Unsubscribe(id int) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for i, s := range c.subs {
		if s.id == id {
			c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
			return
		}
	}
}

func (c *Controller) subscriberSnapshot() []subscription {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	snap := make([]subscription, len(c.subs))
	copy(snap, c.subs)
	return snap
}

func (c *Controller) dispatchFault(f fault.Fault) {
	metrics.Faults.WithLabelValues(c.id, f.Severity.String(), f.Domain.String()).Inc()
	for _, s := range c.subscriberSnapshot() {
		s.sub.OnFault(c, f)
	}
}

func (c *Controller) dispatchStateChange(old, new State) {
	metrics.StateTransitions.WithLabelValues(c.id, new.String()).Inc()
	metrics.PipelineState.WithLabelValues(c.id, old.String()).Set(0)
	metrics.PipelineState.WithLabelValues(c.id, new.String()).Set(1)
	for _, s := range c.subscriberSnapshot() {
		s.sub.OnStateChange(c, old, new)
	}
}

// Build parses and compiles the current definition into a live Graph.
// Build failures are sticky: the Controller refuses Start until the next
// successful Build, and no bus-loop thread or Graph resources are left
// behind (spec.md invariants §3).
func (c *Controller) Build(ctx context.Context) error {
	ctx, span := metrics.Tracer.Start(ctx, "Controller.Build")
	defer span.End()

	c.mu.Lock()
	definition := c.definition
	c.mu.Unlock()

	res, err := expansion.Expand(ctx, c.resolver, definition)
	if err != nil {
		span.RecordError(err)
		c.fail(err)
		return pipelineerr.Wrap(err, pipelineerr.InvalidArgument, fmt.Sprintf("expand definition for pipeline %q", c.id))
	}

	g, err := c.graphBuild.Build(ctx, c.id, res.Expanded, res.Bindings)
	if err != nil {
		span.RecordError(err)
		c.fail(err)
		return pipelineerr.Wrap(err, pipelineerr.InvalidArgument, fmt.Sprintf("build graph for pipeline %q", c.id))
	}

	c.mu.Lock()
	old := c.state
	c.g = g
	c.state = StateInitialized
	c.status = Status{State: StateInitialized, Description: "graph built"}
	c.latestRequestedTarget = StateInitialized
	c.busDone = make(chan struct{})
	bus := g.Native.Bus()
	busDone := c.busDone
	c.mu.Unlock()

	go c.busLoop(bus, g.CorrelationID, busDone)

	if old != StateInitialized {
		c.dispatchStateChange(old, StateInitialized)
	}
	return nil
}

func (c *Controller) fail(cause error) {
	c.mu.Lock()
	old := c.state
	c.g = nil
	c.state = StateErrored
	c.status = Status{State: StateErrored, Description: cause.Error()}
	c.busDone = nil
	c.mu.Unlock()
	if old != StateErrored {
		c.dispatchStateChange(old, StateErrored)
	}
	c.mu.Lock()
	c.cond.Broadcast()
	c.mu.Unlock()
}

func (c *Controller) busLoop(bus <-chan graph.Message, correlationID string, done chan struct{}) {
	for msg := range bus {
		switch msg.Type {
		case graph.MessageStateChanged:
			c.applyStateChange(mapFrameworkState(msg.NewState))
		default:
			if f, ok := c.classifier.Classify(msg); ok {
				f.CorrelationID = correlationID
				f.Timestamp = time.Now()
				c.dispatchFault(f)
				if f.Severity == fault.SeverityError || f.Severity == fault.SeverityEndOfStream {
					c.applyFault(f)
				}
			}
		}
	}
	close(done)
}

func mapFrameworkState(s graph.State) State {
	switch s {
	case graph.StatePlaying:
		return StateRunning
	case graph.StatePaused:
		return StateSuspended
	case graph.StateReady:
		return StateInitialized
	default:
		return StateStopped
	}
}

func (c *Controller) applyStateChange(new State) {
	c.mu.Lock()
	old := c.state
	if old == new {
		c.mu.Unlock()
		return
	}
	c.state = new
	c.status = Status{State: new, Description: fmt.Sprintf("transitioned to %s", new)}
	c.mu.Unlock()

	c.dispatchStateChange(old, new)

	c.mu.Lock()
	c.cond.Broadcast()
	c.mu.Unlock()
}

// applyFault records a Fault that carries Error/EndOfStream severity onto
// the state machine. Ordering guarantee (spec.md §5): the Fault is always
// dispatched to subscribers (in busLoop, above) before this state-change
// notification for the same incident.
func (c *Controller) applyFault(f fault.Fault) {
	c.mu.Lock()
	old := c.state
	new := StateErrored
	if f.Severity == fault.SeverityEndOfStream {
		new = StateEndOfStream
	}
	c.state = new
	c.lastFault = &f
	c.status = Status{State: new, Description: f.Message}
	c.mu.Unlock()

	if old != new {
		c.dispatchStateChange(old, new)
	}

	c.mu.Lock()
	c.cond.Broadcast()
	c.mu.Unlock()
}

// Start requests the Running state, waiting for it to be reached (or for
// the Controller to transition to Errored). Start refuses with
// InvalidState if the Controller has no successful Build.
func (c *Controller) Start(ctx context.Context) (bool, error) {
	return c.requestState(ctx, StateRunning, true)
}

// Pause requests the Suspended state from Running.
func (c *Controller) Pause(ctx context.Context) (bool, error) {
	c.mu.Lock()
	cur := c.state
	c.mu.Unlock()
	if cur != StateRunning {
		return false, pipelineerr.Newf(pipelineerr.InvalidState, "pipeline %q: Pause requires Running, got %s", c.id, cur)
	}
	return c.requestState(ctx, StateSuspended, true)
}

// requestState drives the framework toward target and, if wait is true,
// blocks until it is reached or the Controller errors out.
//
// "Latest-requested-target" resolves racing requests: only the request
// whose target is still current when a waiter wakes returns success,
// matching spec.md §4.E/§8.
func (c *Controller) requestState(ctx context.Context, target State, wait bool) (bool, error) {
	c.mu.Lock()
	g := c.g
	cur := c.state
	if g == nil || cur == StateErrored && target != StateStopped {
		c.mu.Unlock()
		return false, pipelineerr.Newf(pipelineerr.InvalidState, "pipeline %q has no successful build", c.id)
	}
	c.latestRequestedTarget = target
	c.mu.Unlock()

	if err := c.driveFramework(ctx, g, target); err != nil {
		return false, err
	}

	if !wait {
		return true, nil
	}

	c.mu.Lock()
	for c.state != target && c.status.State != StateErrored && c.latestRequestedTarget == target {
		c.cond.Wait()
	}
	reached := c.state == target && c.latestRequestedTarget == target
	c.mu.Unlock()
	return reached, nil
}

// driveFramework issues the native SetState calls for target. Moving to
// Running always passes through Paused first: this is the "preparing"
// window spec.md's invariants require between Initialized and Running,
// mirroring the real streaming framework's Null→Ready→Paused→Playing ramp.
func (c *Controller) driveFramework(ctx context.Context, g *graph.Graph, target State) error {
	switch target {
	case StateRunning:
		if _, err := g.Native.SetState(ctx, graph.StatePaused, false); err != nil {
			return pipelineerr.Wrap(err, pipelineerr.Transient, "request Paused en route to Running")
		}
		if _, err := g.Native.SetState(ctx, graph.StatePlaying, false); err != nil {
			return pipelineerr.Wrap(err, pipelineerr.Transient, "request Playing")
		}
	case StateSuspended:
		if _, err := g.Native.SetState(ctx, graph.StatePaused, false); err != nil {
			return pipelineerr.Wrap(err, pipelineerr.Transient, "request Paused")
		}
	}
	return nil
}

// Stop tears down the Graph: quits the bus loop, joins it, and frees
// framework resources. Stop is best-effort: transport teardown errors are
// logged, never propagated as Errored, and it always drives state to
// Stopped (spec.md §4.E).
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	c.latestRequestedTarget = StateStopped
	g := c.g
	busDone := c.busDone
	c.mu.Unlock()

	if g != nil {
		if err := g.Native.Close(); err != nil {
			c.log.V(1).Info("stop: teardown error, continuing", "error", err.Error())
		}
	}
	if busDone != nil {
		<-busDone
	}

	c.mu.Lock()
	old := c.state
	c.g = nil
	c.state = StateStopped
	c.status = Status{State: StateStopped, Description: "stopped"}
	c.busDone = nil
	c.mu.Unlock()

	if old != StateStopped {
		c.dispatchStateChange(old, StateStopped)
	}
	c.mu.Lock()
	c.cond.Broadcast()
	c.mu.Unlock()
	return nil
}

// Restart performs Stop → Build → Start, used by the Retry Supervisor and
// by Refresh when an immutable variable changed.
func (c *Controller) Restart(ctx context.Context) error {
	_ = c.Stop(ctx)
	if err := c.Build(ctx); err != nil {
		return err
	}
	_, err := c.requestState(ctx, StateRunning, true)
	return err
}

// ChangeDefinition stops the Controller, rebuilds it against newDefinition,
// and starts it again. On Build failure the Controller remains
// Stopped-resource-wise but Errored-status-wise, and the description is
// rolled back to the prior definition (spec.md §4.E: "atomic: on Build
// failure remain Stopped+Errored with description unchanged").
func (c *Controller) ChangeDefinition(ctx context.Context, newDefinition string) error {
	c.mu.Lock()
	cur := c.state
	oldDefinition := c.definition
	c.mu.Unlock()

	if cur != StateRunning && cur != StateSuspended {
		return pipelineerr.Newf(pipelineerr.InvalidState, "pipeline %q: ChangeDefinition requires Running or Suspended, got %s", c.id, cur)
	}

	_ = c.Stop(ctx)

	c.mu.Lock()
	c.definition = newDefinition
	c.mu.Unlock()

	if err := c.Build(ctx); err != nil {
		c.mu.Lock()
		c.definition = oldDefinition
		c.mu.Unlock()
		return err
	}

	_, err := c.requestState(ctx, StateRunning, true)
	return err
}

// Refresh walks every ExpansionBinding whose variable changed since the
// last Refresh: immutable variables trigger a full Restart; mutable
// variables are patched in place on their bound node.
func (c *Controller) Refresh(ctx context.Context) error {
	changed, err := c.resolver.Refresh(ctx)
	if err != nil {
		return err
	}
	if len(changed) == 0 {
		return nil
	}
	changedSet := make(map[string]bool, len(changed))
	for _, name := range changed {
		changedSet[name] = true
	}

	c.mu.Lock()
	g := c.g
	c.mu.Unlock()
	if g == nil {
		return nil
	}

	needsRestart := false
	for _, b := range g.Bindings {
		if !changedSet[b.VariableName] {
			continue
		}
		v, err := c.resolver.Get(ctx, b.VariableName)
		if err != nil {
			continue
		}
		if v.Immutable {
			needsRestart = true
			continue
		}
		if b.Node != nil {
			_ = b.Node.SetProperty(b.PropertyName, coercePropertyValue(v.String()))
		}
	}

	if needsRestart {
		return c.Restart(ctx)
	}
	return nil
}

// coercePropertyValue mirrors spec.md §4.E's Refresh rule for in-place
// property patches: "numeric if parseable, else string".
func coercePropertyValue(s string) interface{} {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
