package variable

import (
	"context"
	"testing"

	"github.com/go-logr/logr"
)

func TestResolverChainFirstWins(t *testing.T) {
	first := NewMemorySource(Variable{Name: "PATTERN", Kind: KindString, Value: "0"})
	second := NewMemorySource(Variable{Name: "PATTERN", Kind: KindString, Value: "1"})
	r := NewResolver(logr.Discard(), first, second)

	v, err := r.Get(context.Background(), "PATTERN")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if v.Value != "0" {
		t.Errorf("Get() = %v, want value from first source", v.Value)
	}
}

func TestResolverChainFallsThroughOnNotFound(t *testing.T) {
	first := NewMemorySource()
	second := NewMemorySource(Variable{Name: "PATTERN", Kind: KindString, Value: "1"})
	r := NewResolver(logr.Discard(), first, second)

	v, err := r.Get(context.Background(), "PATTERN")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if v.Value != "1" {
		t.Errorf("Get() = %v, want fallthrough value", v.Value)
	}
}

func TestResolverNotFoundEverywhere(t *testing.T) {
	r := NewResolver(logr.Discard(), NewMemorySource(), NewMemorySource())
	_, err := r.Get(context.Background(), "MISSING")
	if err == nil {
		t.Fatal("Get() expected error, got nil")
	}
}

type erroringSource struct{}

func (erroringSource) Name() string { return "erroring" }
func (erroringSource) Lookup(context.Context, string) (Variable, error) {
	return Variable{}, errBoom
}
func (erroringSource) Synchronize(context.Context) ([]string, error) { return nil, nil }

var errBoom = &boomError{"boom"}

type boomError struct{ msg string }

func (b *boomError) Error() string { return b.msg }

func TestResolverAbortsOnNonNotFoundError(t *testing.T) {
	neverReached := NewMemorySource(Variable{Name: "X", Kind: KindString, Value: "reached"})
	r := NewResolver(logr.Discard(), erroringSource{}, neverReached)

	_, err := r.Get(context.Background(), "X")
	if err == nil {
		t.Fatal("Get() expected abort error, got nil")
	}
}

func TestMemorySourceSynchronizeReportsChanges(t *testing.T) {
	m := NewMemorySource(Variable{Name: "A", Kind: KindString, Value: "1"})
	if _, err := m.Synchronize(context.Background()); err != nil {
		t.Fatal(err)
	}
	m.Set(Variable{Name: "A", Kind: KindString, Value: "2"})
	changed, err := m.Synchronize(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(changed) != 1 || changed[0] != "A" {
		t.Errorf("Synchronize() changed = %v, want [A]", changed)
	}
}

func TestCLISourceParsesJSONEnvelope(t *testing.T) {
	src := NewCLISource([]string{"--PATTERN", `{"type":"string","value":"1"}`})
	v, err := src.Lookup(context.Background(), "PATTERN")
	if err != nil {
		t.Fatal(err)
	}
	if v.Kind != KindString || v.Value != "1" {
		t.Errorf("Lookup() = %+v, want kind string value 1", v)
	}
}

func TestCLISourceParsesImmutableFlag(t *testing.T) {
	src := NewCLISource([]string{"--PATTERN", `{"type":"string","value":"1","immutable":true}`})
	v, err := src.Lookup(context.Background(), "PATTERN")
	if err != nil {
		t.Fatal(err)
	}
	if !v.Immutable {
		t.Error("Lookup() expected Immutable=true")
	}
}

func TestCLISourcePlainString(t *testing.T) {
	src := NewCLISource([]string{"--NAME", "videotestsrc"})
	v, err := src.Lookup(context.Background(), "NAME")
	if err != nil {
		t.Fatal(err)
	}
	if v.Kind != KindString || v.Value != "videotestsrc" {
		t.Errorf("Lookup() = %+v, want plain string", v)
	}
}
