// Package expansion implements the Expansion Engine (component B): it
// tokenizes a streaming-framework launch string, finds ${NAME} references
// and per-node property bindings, and substitutes them with values pulled
// from a variable.Resolver.
package expansion

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/edgepipe/runtime/pkg/graph"
	"github.com/edgepipe/runtime/pkg/variable"
)

// ErrInvalidArgument is returned (wrapped with detail) for malformed
// expansion input: an anonymous element carrying a ${NAME} reference, or an
// unresolved variable.
var ErrInvalidArgument = fmt.Errorf("expansion: invalid argument")

var refPattern = regexp.MustCompile(`\$\{([A-Za-z0-9_]+)\}`)

// Result is the Expansion Engine's output: the fully substituted launch
// string plus the ordered list of Bindings that were expanded.
type Result struct {
	Expanded string
	Bindings []graph.Binding
}

// Expand tokenizes launchString by element ("!") and by whitespace-
// separated "key=value" pairs within each element, resolves every ${NAME}
// reference through resolver, and substitutes the expanded textual form.
//
// Compound values such as "caps=video/x-raw,format=GRAY8" are kept as a
// single value token even though they contain "," and "=": splitting is by
// whitespace, not by every "=" or ",".
func Expand(ctx context.Context, resolver *variable.Resolver, launchString string) (Result, error) {
	elements := strings.Split(launchString, "!")
	var bindings []graph.Binding
	expandedElements := make([]string, len(elements))

	for i, elem := range elements {
		expandedElem, elemBindings, err := expandElement(ctx, resolver, elem)
		if err != nil {
			return Result{}, err
		}
		expandedElements[i] = expandedElem
		bindings = append(bindings, elemBindings...)
	}

	expanded := strings.Join(expandedElements, " ! ")
	expanded = normalizeCaps(expanded)
	return Result{Expanded: expanded, Bindings: bindings}, nil
}

func expandElement(ctx context.Context, resolver *variable.Resolver, elem string) (string, []graph.Binding, error) {
	tokens := tokenizeElement(elem)
	nodeName := findNameAttribute(tokens)

	var bindings []graph.Binding
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		key, value, isPair := splitKeyValue(tok)
		if !isPair || !strings.Contains(value, "${") {
			out[i] = tok
			continue
		}

		expandedValue, boundNames, err := expandValue(ctx, resolver, value)
		if err != nil {
			return "", nil, err
		}
		if len(boundNames) > 0 && nodeName == "" {
			return "", nil, fmt.Errorf("%w: element with property %q references a variable but carries no name= attribute", ErrInvalidArgument, key)
		}
		for _, varName := range boundNames {
			bindings = append(bindings, graph.Binding{
				NodeName:     nodeName,
				PropertyName: key,
				VariableName: varName,
			})
		}
		out[i] = key + "=" + expandedValue
	}
	return strings.Join(out, " "), bindings, nil
}

// tokenizeElement splits an element body on whitespace while respecting
// leading/trailing blank tokens from the "!" split (e.g. " videotestsrc
// name=src pattern=${P} ").
func tokenizeElement(elem string) []string {
	fields := strings.Fields(elem)
	return fields
}

func findNameAttribute(tokens []string) string {
	for _, tok := range tokens {
		key, value, ok := splitKeyValue(tok)
		if ok && key == "name" {
			return value
		}
	}
	return ""
}

// splitKeyValue splits a single "key=value" token on the first "=" only,
// so compound values like "caps=video/x-raw,format=GRAY8" keep their
// internal "=" characters intact.
func splitKeyValue(tok string) (key, value string, ok bool) {
	idx := strings.Index(tok, "=")
	if idx < 0 {
		return "", "", false
	}
	return tok[:idx], tok[idx+1:], true
}

// expandValue resolves every ${NAME} in value and substitutes it, escaping
// backslashes and double quotes in the substituted text.
func expandValue(ctx context.Context, resolver *variable.Resolver, value string) (string, []string, error) {
	var names []string
	var resolveErr error

	expanded := refPattern.ReplaceAllStringFunc(value, func(match string) string {
		if resolveErr != nil {
			return match
		}
		name := refPattern.FindStringSubmatch(match)[1]
		v, err := resolver.Get(ctx, name)
		if err != nil {
			resolveErr = fmt.Errorf("%w: unresolved variable %q: %v", ErrInvalidArgument, name, err)
			return match
		}
		names = append(names, name)
		return escapeForLaunchString(v.String())
	})
	if resolveErr != nil {
		return "", nil, resolveErr
	}
	return expanded, names, nil
}

func escapeForLaunchString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}

var (
	quotedCapsPattern         = regexp.MustCompile(`!\s*"([^"]*)"\s*!`)
	quotedCapsfilterPattern   = regexp.MustCompile(`!\s*capsfilter\s+"([^"]*)"\s*!`)
)

// normalizeCaps applies the two post-substitution normalizations spec.md
// §4.B requires, in order: a bare quoted caps expression between "!" loses
// its quotes, then the same for an explicit "capsfilter" element.
func normalizeCaps(s string) string {
	s = quotedCapsPattern.ReplaceAllString(s, "! $1 !")
	s = quotedCapsfilterPattern.ReplaceAllString(s, "! capsfilter $1 !")
	return s
}
