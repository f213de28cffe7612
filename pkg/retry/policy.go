// Package retry implements the Retry Supervisor (component F): it watches
// a set of pipeline Controllers, matches their Faults against a configured
// rule set, and schedules Restart calls with a linear or exponential
// backoff. Grounded on the teacher corpus's worker-per-resource pattern
// (one goroutine per watched Controller, cancellable via a stop channel)
// rather than a general-purpose backoff library: the formula below
// preserves two deliberately odd quirks from the upstream implementation
// (the exponential "+1" seed and the clamp-sticky attempt counter) that no
// off-the-shelf backoff package models, so the math is hand-rolled here and
// wired directly against pkg/fault's wire-integer mapping for configuration.
package retry

import (
	"math"

	"github.com/edgepipe/runtime/pkg/fault"
)

// Mode selects the backoff curve.
type Mode string

const (
	Linear      Mode = "linear"
	Exponential Mode = "exponential"
)

// FaultRule is a pattern a Fault either matches or doesn't; any field may
// be the wildcard "Any" value (SeverityAny / DomainAny / CodeAny).
type FaultRule struct {
	Severity fault.Severity
	Domain   fault.Domain
	Code     int
}

// CodeAny is the wildcard value for FaultRule.Code.
const CodeAny = -1

// Matches reports whether f satisfies every (non-Any) field of r.
func (r FaultRule) Matches(f fault.Fault) bool {
	if r.Severity != fault.SeverityAny && r.Severity != f.Severity {
		return false
	}
	if r.Domain != fault.DomainAny && r.Domain != f.Domain {
		return false
	}
	if r.Code != CodeAny && r.Code != f.Code {
		return false
	}
	return true
}

// Policy is a RetryPolicy (spec.md §3/§6).
type Policy struct {
	Mode         Mode
	MinDelayMs   int64
	MaxDelayMs   int64
	Increment    float64
	Rules        []FaultRule
}

// defaultFailedCode is the streaming framework's generic "operation
// failed" core-error code; spec.md §4.F names the default rule's code only
// as "Failed" without fixing a wire value, so this constant is this
// module's resolution of that otherwise-unspecified number.
const defaultFailedCode = 1

// DefaultPolicy is the policy used when no `retry` configuration is
// present: Linear, min=10ms, max=300000ms, increment=2500, matching a
// Core/Error Fault carrying the default "Failed" code (spec.md §4.F).
func DefaultPolicy() Policy {
	return Policy{
		Mode:       Linear,
		MinDelayMs: 10,
		MaxDelayMs: 300000,
		Increment:  2500,
		Rules: []FaultRule{
			{Severity: fault.SeverityError, Domain: fault.DomainCore, Code: defaultFailedCode},
		},
	}
}

// Matches reports whether f satisfies any rule in p.
func (p Policy) Matches(f fault.Fault) bool {
	for _, r := range p.Rules {
		if r.Matches(f) {
			return true
		}
	}
	return false
}

// computeDelay implements spec.md §4.F/§8's delay formula exactly,
// including its two documented quirks:
//
//   - attempt_count=0 seeds at min_delay_ms for Linear but min_delay_ms+1
//     for Exponential, keeping pow(increment, n) monotonic from the first
//     retry. This is part of the contract, not a bug to fix.
//   - when the computed value exceeds max_delay_ms, the delay clamps to
//     max_delay_ms AND the attempt counter that would normally advance is
//     held at its current value, making the clamped delay sticky on every
//     subsequent retry (attempt_count visibly "freezes").
//
// It returns the delay to sleep and the attempt_count to store afterward.
func (p Policy) computeDelay(attemptCount int) (delayMs int64, nextAttemptCount int) {
	var raw float64
	if attemptCount == 0 {
		if p.Mode == Exponential {
			raw = float64(p.MinDelayMs + 1)
		} else {
			raw = float64(p.MinDelayMs)
		}
	} else {
		switch p.Mode {
		case Exponential:
			raw = float64(p.MinDelayMs) + math.Pow(p.Increment, float64(attemptCount))
		default:
			raw = float64(p.MinDelayMs) + p.Increment*float64(attemptCount)
		}
	}

	next := attemptCount + 1
	if raw > float64(p.MaxDelayMs) {
		raw = float64(p.MaxDelayMs)
		next = attemptCount
	}
	return int64(raw), next
}
