package types

// JSONMap is a free-form JSONB column.
type JSONMap map[string]any

// StringSlice is a JSONB-backed list of strings.
type StringSlice []string
