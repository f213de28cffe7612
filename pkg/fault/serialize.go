package fault

import (
	"github.com/go-faster/jx"
)

// severityToWire/domainToWire and their inverses map the closed enums to the wire integers
// spec.md §6 fixes for Fault serialization (and §6's Retry configuration
// severity/domain integers, which share the same numbering).
func severityToWire(s Severity) int {
	switch s {
	case SeverityEndOfStream:
		return 0
	case SeverityError:
		return 1
	case SeverityWarning:
		return 2
	case SeverityAny:
		return -1
	default:
		return 2
	}
}

func severityFromWire(n int) Severity {
	switch n {
	case 0:
		return SeverityEndOfStream
	case 1:
		return SeverityError
	case 2:
		return SeverityWarning
	case -1:
		return SeverityAny
	default:
		return SeverityWarning
	}
}

// SeverityFromWire exposes the wire-integer mapping for the Retry
// configuration's `Messages[].Type` field (spec.md §6), which shares the
// Fault severity numbering including -1=Any.
func SeverityFromWire(n int) Severity { return severityFromWire(n) }

// DomainFromWire exposes the wire-integer mapping for the Retry
// configuration's `Messages[].Domain` field (spec.md §6), which shares the
// Fault domain numbering including -1=Any.
func DomainFromWire(n int) Domain { return domainFromWire(n) }

func domainToWire(d Domain) int {
	switch d {
	case DomainCore:
		return 0
	case DomainLibrary:
		return 1
	case DomainResource:
		return 2
	case DomainStream:
		return 3
	case DomainNotDefined:
		return 4
	case DomainAny:
		return -1
	default:
		return 5
	}
}

func domainFromWire(n int) Domain {
	switch n {
	case 0:
		return DomainCore
	case 1:
		return DomainLibrary
	case 2:
		return DomainResource
	case 3:
		return DomainStream
	case 4:
		return DomainNotDefined
	case -1:
		return DomainAny
	default:
		return DomainUnknown
	}
}

// Serialize renders a Fault to the stable JSON shape from spec.md §6 using
// go-faster/jx, a streaming encoder, in place of reflection-based
// encoding/json marshalling.
func Serialize(f Fault) []byte {
	e := jx.Encoder{}
	e.ObjStart()
	e.FieldStart("factory")
	e.Str(f.ElementFactory)
	e.FieldStart("name")
	e.Str(f.ElementName)
	e.FieldStart("debug_info")
	e.Str(f.DebugDetail)
	e.FieldStart("code")
	e.Int(f.Code)
	e.FieldStart("domain")
	e.Int(domainToWire(f.Domain))
	e.FieldStart("domain_string")
	e.Str(f.Domain.String())
	e.FieldStart("message")
	e.Str(f.Message)
	e.FieldStart("type")
	e.Int(severityToWire(f.Severity))
	e.FieldStart("type_string")
	e.Str(f.Severity.String())
	e.ObjEnd()
	return e.Bytes()
}

// Deserialize parses the JSON shape Serialize produces back into a Fault.
// Classify(Serialize(F)) in spec.md §8's round-trip property refers to this
// inverse: decoding a previously-serialized Fault reproduces the original
// matching fields exactly (CorrelationID/Timestamp are not part of the wire
// shape and are zero-valued on the result).
func Deserialize(data []byte) (Fault, error) {
	d := jx.DecodeBytes(data)
	var f Fault
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "factory":
			s, err := d.Str()
			f.ElementFactory = s
			return err
		case "name":
			s, err := d.Str()
			f.ElementName = s
			return err
		case "debug_info":
			s, err := d.Str()
			f.DebugDetail = s
			return err
		case "code":
			n, err := d.Int()
			f.Code = n
			return err
		case "domain":
			n, err := d.Int()
			f.Domain = domainFromWire(n)
			return err
		case "domain_string":
			return d.Skip()
		case "message":
			s, err := d.Str()
			f.Message = s
			return err
		case "type":
			n, err := d.Int()
			f.Severity = severityFromWire(n)
			return err
		case "type_string":
			return d.Skip()
		default:
			return d.Skip()
		}
	})
	return f, err
}
