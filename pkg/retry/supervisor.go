package retry

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/edgepipe/runtime/internal/metrics"
	"github.com/edgepipe/runtime/pkg/controller"
	"github.com/edgepipe/runtime/pkg/fault"
)

// idlePoll is how often a worker re-checks awaiting_success/no-matching-rule
// state while it has nothing to do. spec.md §4.F calls this a "cheap sleep".
const idlePoll = 25 * time.Millisecond

// Supervisor is the Retry Supervisor (component F). It implements
// controller.Subscriber so it can watch any number of Controllers; it
// spawns one worker goroutine per watched Controller, matching the
// teacher's one-worker-per-resource pattern.
type Supervisor struct {
	mu     sync.Mutex
	policy Policy
	states map[string]*retryState
	log    logr.Logger
}

type retryState struct {
	mu              sync.Mutex
	ctrl            *controller.Controller
	attemptCount    int
	lastFault       fault.Fault
	haveFault       bool
	awaitingSuccess bool

	subID  int
	stopCh chan struct{}
	wake   chan struct{}
	done   chan struct{}
}

// NewSupervisor builds a Supervisor using policy (use DefaultPolicy() for
// the spec's fallback behavior).
func NewSupervisor(policy Policy, log logr.Logger) *Supervisor {
	return &Supervisor{
		policy: policy,
		states: make(map[string]*retryState),
		log:    log,
	}
}

// Watch begins observing ctrl: it creates ctrl's RetryState and starts its
// worker goroutine at once, and the worker idles until a Fault is recorded.
// Creation is not deferred to the first Fault. Watching an id that is
// already watched is a no-op.
func (s *Supervisor) Watch(ctrl *controller.Controller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.states[ctrl.ID()]; ok {
		return
	}
	st := &retryState{
		ctrl:   ctrl,
		stopCh: make(chan struct{}),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	st.subID = ctrl.Subscribe(s)
	s.states[ctrl.ID()] = st
	go s.run(st)
}

// Unwatch stops observing ctrl: sets stop_flag, wakes the worker, and joins
// it before releasing the RetryState (spec.md §4.F "On Controller removal").
func (s *Supervisor) Unwatch(ctrl *controller.Controller) {
	s.mu.Lock()
	st, ok := s.states[ctrl.ID()]
	if ok {
		delete(s.states, ctrl.ID())
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	ctrl.Unsubscribe(st.subID)
	close(st.stopCh)
	<-st.done
}

// OnFault implements controller.Subscriber. For a watched Controller it
// records the latest Fault, clears awaiting_success and wakes the worker;
// it creates no RetryState, so a Fault from a Controller that is not
// watched is ignored.
func (s *Supervisor) OnFault(ctrl *controller.Controller, f fault.Fault) {
	s.mu.Lock()
	st, ok := s.states[ctrl.ID()]
	s.mu.Unlock()
	if !ok {
		return
	}

	st.mu.Lock()
	st.lastFault = f
	st.haveFault = true
	st.awaitingSuccess = false
	st.mu.Unlock()

	select {
	case st.wake <- struct{}{}:
	default:
	}
}

// OnStateChange implements controller.Subscriber: reaching Running resets
// the attempt counter and marks the RetryState as awaiting a subsequent
// Fault, per spec.md §4.F.
func (s *Supervisor) OnStateChange(ctrl *controller.Controller, old, new controller.State) {
	if new != controller.StateRunning {
		return
	}
	s.mu.Lock()
	st, ok := s.states[ctrl.ID()]
	s.mu.Unlock()
	if !ok {
		return
	}
	st.mu.Lock()
	st.awaitingSuccess = true
	st.attemptCount = 0
	st.mu.Unlock()
}

func (s *Supervisor) policySnapshot() Policy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.policy
}

// SetPolicy replaces the policy used for future delay computations.
func (s *Supervisor) SetPolicy(p Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policy = p
}

func (s *Supervisor) run(st *retryState) {
	defer close(st.done)
	for {
		select {
		case <-st.stopCh:
			return
		case <-st.wake:
		case <-time.After(idlePoll):
		}

		select {
		case <-st.stopCh:
			return
		default:
		}

		st.mu.Lock()
		awaiting := st.awaitingSuccess
		haveFault := st.haveFault
		f := st.lastFault
		attempt := st.attemptCount
		st.mu.Unlock()

		if awaiting || !haveFault {
			continue
		}

		policy := s.policySnapshot()
		if !policy.Matches(f) {
			continue
		}

		delayMs, nextAttempt := policy.computeDelay(attempt)
		select {
		case <-time.After(time.Duration(delayMs) * time.Millisecond):
		case <-st.stopCh:
			return
		}

		st.mu.Lock()
		st.attemptCount = nextAttempt
		st.awaitingSuccess = true
		st.mu.Unlock()

		metrics.RetryAttempts.WithLabelValues(st.ctrl.ID()).Inc()
		_ = st.ctrl.Restart(context.Background())
	}
}
