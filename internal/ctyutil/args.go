package ctyutil

import (
	"fmt"
	"time"

	"github.com/zclconf/go-cty/cty"
)

// StringArg reads a required string argument.
func StringArg(args map[string]cty.Value, name string) (string, error) {
	val, ok := args[name]
	if !ok || val.IsNull() {
		return "", fmt.Errorf("missing required argument %q", name)
	}
	if val.Type() != cty.String {
		return "", fmt.Errorf("argument %q must be a string, got %s", name, val.Type().FriendlyName())
	}
	return val.AsString(), nil
}

// StringArgDefault reads an optional string argument with a fallback.
func StringArgDefault(args map[string]cty.Value, name, fallback string) (string, error) {
	val, ok := args[name]
	if !ok || val.IsNull() {
		return fallback, nil
	}
	if val.Type() != cty.String {
		return "", fmt.Errorf("argument %q must be a string, got %s", name, val.Type().FriendlyName())
	}
	return val.AsString(), nil
}

// IntArgDefault reads an optional whole-number argument with a fallback.
func IntArgDefault(args map[string]cty.Value, name string, fallback int) (int, error) {
	val, ok := args[name]
	if !ok || val.IsNull() {
		return fallback, nil
	}
	if val.Type() != cty.Number {
		return 0, fmt.Errorf("argument %q must be a number, got %s", name, val.Type().FriendlyName())
	}
	n, _ := val.AsBigFloat().Int64()
	return int(n), nil
}

// DurationArgDefault reads an optional duration argument ("500ms", "5s").
func DurationArgDefault(args map[string]cty.Value, name string, fallback time.Duration) (time.Duration, error) {
	raw, err := StringArgDefault(args, name, "")
	if err != nil {
		return 0, err
	}
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("argument %q is not a valid duration: %w", name, err)
	}
	return d, nil
}

// StringSliceArg reads an optional list-of-strings argument.
func StringSliceArg(args map[string]cty.Value, name string) ([]string, error) {
	val, ok := args[name]
	if !ok || val.IsNull() {
		return nil, nil
	}
	if !val.Type().IsTupleType() && !val.Type().IsListType() {
		return nil, fmt.Errorf("argument %q must be a list of strings", name)
	}
	var out []string
	for it := val.ElementIterator(); it.Next(); {
		_, v := it.Element()
		if v.Type() != cty.String {
			return nil, fmt.Errorf("argument %q must contain only strings", name)
		}
		out = append(out, v.AsString())
	}
	return out, nil
}

// StringMapArg reads an optional map-of-strings argument.
func StringMapArg(args map[string]cty.Value, name string) (map[string]string, error) {
	val, ok := args[name]
	if !ok || val.IsNull() {
		return nil, nil
	}
	if !val.Type().IsObjectType() && !val.Type().IsMapType() {
		return nil, fmt.Errorf("argument %q must be a map of strings", name)
	}
	out := make(map[string]string)
	for it := val.ElementIterator(); it.Next(); {
		k, v := it.Element()
		if v.Type() != cty.String {
			return nil, fmt.Errorf("argument %q must contain only string values", name)
		}
		out[k.AsString()] = v.AsString()
	}
	return out, nil
}
