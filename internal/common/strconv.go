package common

import "strconv"

// AtoiDefault parses an integer, returning def for empty or invalid input.
func AtoiDefault(value string, def int) int {
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}
