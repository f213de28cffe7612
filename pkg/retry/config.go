package retry

import (
	"encoding/json"

	"github.com/go-logr/logr"

	"github.com/edgepipe/runtime/pkg/fault"
)

// wireConfig mirrors the `retry` property's JSON shape from spec.md §6.
type wireConfig struct {
	Mode      string `json:"Mode"`
	Min       int64  `json:"Min"`
	Max       int64  `json:"Max"`
	Increment float64 `json:"Increment"`
	Messages  []struct {
		Type   int `json:"Type"`
		Domain int `json:"Domain"`
		Code   int `json:"Code"`
	} `json:"Messages"`
}

// DecodePolicy parses the `retry` configuration property. Any missing or
// invalid field falls back to DefaultPolicy()'s corresponding field. A
// warning is logged for an unparseable document (all defaults), an unknown
// Mode, and an out-of-range Min/Max pair; a missing field, or an Increment
// that is zero or negative, falls back without a warning.
// A nil/empty raw value yields DefaultPolicy() with no warnings.
func DecodePolicy(raw []byte, log logr.Logger) Policy {
	def := DefaultPolicy()
	if len(raw) == 0 {
		return def
	}

	var wc wireConfig
	if err := json.Unmarshal(raw, &wc); err != nil {
		log.Info("retry configuration invalid, using defaults", "error", err.Error())
		return def
	}

	policy := def

	switch wc.Mode {
	case string(Linear):
		policy.Mode = Linear
	case string(Exponential):
		policy.Mode = Exponential
	case "":
		// keep default mode
	default:
		log.Info("retry configuration: unknown Mode, falling back to default", "mode", wc.Mode)
	}

	if wc.Min > 0 || wc.Max > 0 {
		if wc.Max >= wc.Min && wc.Min >= 0 {
			policy.MinDelayMs = wc.Min
			policy.MaxDelayMs = wc.Max
		} else {
			log.Info("retry configuration: Min/Max out of range, falling back to default")
		}
	}

	if wc.Increment > 0 {
		policy.Increment = wc.Increment
	}

	if len(wc.Messages) > 0 {
		rules := make([]FaultRule, 0, len(wc.Messages))
		for _, msg := range wc.Messages {
			rules = append(rules, FaultRule{
				Severity: fault.SeverityFromWire(msg.Type),
				Domain:   fault.DomainFromWire(msg.Domain),
				Code:     msg.Code,
			})
		}
		policy.Rules = rules
	}

	return policy
}
