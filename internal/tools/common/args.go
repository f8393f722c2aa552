package common

import (
	"fmt"
	"time"
)

// StringArg returns args[name] when it is a non-empty string.
func StringArg(args map[string]interface{}, name string) (string, bool) {
	v, ok := args[name].(string)
	return v, ok && v != ""
}

// IntArg returns args[name] as an int. JSON numbers arrive as float64.
func IntArg(args map[string]interface{}, name string, def int) int {
	switch v := args[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}

// BoolArg returns args[name] when it is a bool, def otherwise.
func BoolArg(args map[string]interface{}, name string, def bool) bool {
	if v, ok := args[name].(bool); ok {
		return v
	}
	return def
}

// TimeArg parses args[name] as RFC 3339 or YYYY-MM-DD (local midnight).
// A missing argument yields def.
func TimeArg(args map[string]interface{}, name string, def time.Time) (time.Time, error) {
	v, ok := StringArg(args, name)
	if !ok {
		return def, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", v, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be RFC3339 or YYYY-MM-DD, got %q", name, v)
	}
	return t, nil
}
