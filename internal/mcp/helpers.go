package mcpserver

import (
	"fmt"
	"strconv"
)

func getFloat(args map[string]any, key string, fallback float64) float64 {
	if v, ok := args[key].(float64); ok {
		return v
	}
	return fallback
}

// getUint reads a non-negative integer argument sent as a JSON number or
// a numeric string.
func getUint(args map[string]any, key string) (uint64, bool, error) {
	switch v := args[key].(type) {
	case nil:
		return 0, false, nil
	case float64:
		if v < 0 || v != float64(uint64(v)) {
			return 0, true, fmt.Errorf("%s must be a non-negative integer", key)
		}
		return uint64(v), true, nil
	case string:
		if v == "" {
			return 0, false, nil
		}
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return 0, true, fmt.Errorf("%s must be a non-negative integer", key)
		}
		return n, true, nil
	default:
		return 0, true, fmt.Errorf("%s must be a number", key)
	}
}
