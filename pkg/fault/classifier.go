package fault

import "github.com/edgepipe/runtime/pkg/graph"

// Classifier converts raw streaming-framework bus messages into Faults.
// Classification is deterministic and does no I/O.
type Classifier struct{}

// NewClassifier builds a stateless Classifier.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify maps a raw bus message to a Fault. It returns ok=false for
// message types the Classifier has no Fault mapping for (state-change
// messages are handled directly by the Controller, not surfaced as
// Faults).
func (c *Classifier) Classify(msg graph.Message) (Fault, bool) {
	switch msg.Type {
	case graph.MessageError:
		return Fault{
			Severity:       SeverityError,
			Domain:         domainFromRawTag(rawDomainTag(msg.RawDomain)),
			Code:           msg.Code,
			Message:        msg.Text,
			DebugDetail:    msg.DebugDetail,
			ElementName:    msg.SourceElement,
			ElementFactory: msg.SourceFactory,
			RawDomainTag:   rawDomainTag(msg.RawDomain),
		}, true
	case graph.MessageWarning:
		return Fault{
			Severity:       SeverityWarning,
			Domain:         domainFromRawTag(rawDomainTag(msg.RawDomain)),
			Code:           msg.Code,
			Message:        msg.Text,
			DebugDetail:    msg.DebugDetail,
			ElementName:    msg.SourceElement,
			ElementFactory: msg.SourceFactory,
			RawDomainTag:   rawDomainTag(msg.RawDomain),
		}, true
	case graph.MessageEndOfStream:
		return Fault{
			Severity:     SeverityEndOfStream,
			Domain:       DomainNotDefined,
			Code:         0,
			Message:      "End of Stream",
			RawDomainTag: "",
		}, true
	default:
		return Fault{}, false
	}
}

// rawDomainTag renders the framework's raw integer domain tag back to the
// string keys domainFromRawTag understands. Real bindings carry a string
// quark name; the fake framework and tests use small integers for the same
// four well-known domains plus "unknown" for anything else.
func rawDomainTag(raw int) string {
	switch raw {
	case 0:
		return "core"
	case 1:
		return "library"
	case 2:
		return "resource"
	case 3:
		return "stream"
	default:
		return "unknown"
	}
}
