package fault

import (
	"testing"

	"github.com/edgepipe/runtime/pkg/graph"
)

func TestClassifyError(t *testing.T) {
	c := NewClassifier()
	f, ok := c.Classify(graph.Message{
		Type:          graph.MessageError,
		Text:          "failed",
		DebugDetail:   "detail",
		Code:          42,
		RawDomain:     0,
		SourceElement: "src",
		SourceFactory: "videotestsrc",
	})
	if !ok {
		t.Fatal("Classify() expected ok=true")
	}
	if f.Severity != SeverityError || f.Domain != DomainCore || f.Code != 42 {
		t.Errorf("Classify() = %+v", f)
	}
}

func TestClassifyWarning(t *testing.T) {
	c := NewClassifier()
	f, ok := c.Classify(graph.Message{Type: graph.MessageWarning, RawDomain: 2})
	if !ok || f.Severity != SeverityWarning || f.Domain != DomainResource {
		t.Errorf("Classify() = %+v, ok=%v", f, ok)
	}
}

func TestClassifyEndOfStream(t *testing.T) {
	c := NewClassifier()
	f, ok := c.Classify(graph.Message{Type: graph.MessageEndOfStream})
	if !ok {
		t.Fatal("Classify() expected ok=true")
	}
	if f.Severity != SeverityEndOfStream || f.Message != "End of Stream" || f.Code != 0 {
		t.Errorf("Classify() = %+v", f)
	}
}

func TestClassifyStateChangeYieldsNoFault(t *testing.T) {
	c := NewClassifier()
	_, ok := c.Classify(graph.Message{Type: graph.MessageStateChanged})
	if ok {
		t.Error("Classify() expected ok=false for state-change message")
	}
}

func TestClassifyUnknownDomainTag(t *testing.T) {
	c := NewClassifier()
	f, _ := c.Classify(graph.Message{Type: graph.MessageError, RawDomain: 99})
	if f.Domain != DomainUnknown {
		t.Errorf("Domain = %v, want Unknown", f.Domain)
	}
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	original := Fault{
		Severity:       SeverityError,
		Domain:         DomainCore,
		Code:           7,
		Message:        "boom",
		DebugDetail:    "stack trace",
		ElementName:    "src",
		ElementFactory: "videotestsrc",
		RawDomainTag:   "core",
	}
	data := Serialize(original)
	decoded, err := Deserialize(data)
	if err != nil {
		t.Fatalf("Deserialize() error = %v", err)
	}
	if decoded.Severity != original.Severity ||
		decoded.Domain != original.Domain ||
		decoded.Code != original.Code ||
		decoded.Message != original.Message ||
		decoded.DebugDetail != original.DebugDetail ||
		decoded.ElementName != original.ElementName ||
		decoded.ElementFactory != original.ElementFactory {
		t.Errorf("round trip mismatch: got %+v, want %+v", decoded, original)
	}
}
