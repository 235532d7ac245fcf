package main

import (
	"encoding/json"
	"fmt"
	"strings"
)

// parseArguments merges a JSON object (--args) with key=value pairs. Values
// that parse as JSON keep their type (numbers, bools, arrays); anything else
// is sent as a string. Pairs override keys of the JSON object.
func parseArguments(raw string, pairs []string) (map[string]any, error) {
	args := map[string]any{}

	if strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return nil, fmt.Errorf("invalid --args JSON: %w", err)
		}
		if args == nil {
			args = map[string]any{}
		}
	}

	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid argument %q: expected key=value", pair)
		}

		var decoded any
		if err := json.Unmarshal([]byte(value), &decoded); err != nil {
			decoded = value
		}
		args[key] = decoded
	}

	return args, nil
}
