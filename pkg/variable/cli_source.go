package variable

import (
	"context"
	"encoding/json"
	"strings"
)

// CLISource resolves variables from command-line arguments of the form
// `--NAME {json_or_string}`. Each pair is parsed once at construction; CLI
// arguments never change over a process's lifetime, so Synchronize always
// reports no changes.
type CLISource struct {
	vars map[string]Variable
}

// NewCLISource parses argv (typically os.Args[1:]) into a CLISource.
// Unrecognized tokens (anything not starting with "--", or a flag with no
// following value) are ignored.
func NewCLISource(argv []string) *CLISource {
	vars := make(map[string]Variable)
	for i := 0; i < len(argv); i++ {
		arg := argv[i]
		if !strings.HasPrefix(arg, "--") {
			continue
		}
		name := strings.TrimPrefix(arg, "--")
		if i+1 >= len(argv) {
			break
		}
		raw := argv[i+1]
		i++
		vars[name] = parseCLIValue(name, raw)
	}
	return &CLISource{vars: vars}
}

func parseCLIValue(name, raw string) Variable {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") {
		var envelope struct {
			Type      string      `json:"type"`
			Value     interface{} `json:"value"`
			Immutable bool        `json:"immutable"`
		}
		if err := json.Unmarshal([]byte(trimmed), &envelope); err == nil && envelope.Type != "" {
			return Variable{Name: name, Kind: Kind(envelope.Type), Value: envelope.Value, Immutable: envelope.Immutable}
		}
		var generic interface{}
		if err := json.Unmarshal([]byte(trimmed), &generic); err == nil {
			return Variable{Name: name, Kind: KindJSON, Value: generic}
		}
	}
	return Variable{Name: name, Kind: KindString, Value: raw}
}

func (c *CLISource) Name() string { return "cli" }

func (c *CLISource) Lookup(_ context.Context, name string) (Variable, error) {
	v, ok := c.vars[name]
	if !ok {
		return Variable{}, ErrNotFound
	}
	return v, nil
}

func (c *CLISource) Synchronize(_ context.Context) ([]string, error) {
	return nil, nil
}
