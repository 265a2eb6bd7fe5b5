package api

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
)

type (
	// Variables represents a map of named values bound to a workflow state
	// or loop execution scope
	Variables map[Name]any

	// Name is a string identifier for variables and steps
	Name string

	varPair struct {
		K string `json:"k"`
		V any    `json:"v"`
	}
)

var (
	ErrMarshalVariables = errors.New("failed to marshal variables")
)

// Set creates a new Variables with the specified name-value pair added
func (v Variables) Set(name Name, value any) Variables {
	if v == nil {
		return Variables{name: value}
	}
	res := maps.Clone(v)
	res[name] = value
	return res
}

// Apply creates a new Variables with all pairs of the other set merged in,
// later values overwriting earlier ones
func (v Variables) Apply(other Variables) Variables {
	if len(other) == 0 {
		return v
	}
	res := maps.Clone(v)
	if res == nil {
		res = Variables{}
	}
	maps.Copy(res, other)
	return res
}

// Clone returns a shallow copy of the variable set
func (v Variables) Clone() Variables {
	if v == nil {
		return Variables{}
	}
	return maps.Clone(v)
}

// Names returns the sorted variable names in the set
func (v Variables) Names() []Name {
	names := make([]Name, 0, len(v))
	for name := range v {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// GetString retrieves a string value, returning defaultValue if not found
// or wrong type
func (v Variables) GetString(name Name, defaultValue string) string {
	val, ok := v[name]
	if !ok {
		return defaultValue
	}
	str, ok := val.(string)
	if !ok {
		return defaultValue
	}
	return str
}

// GetBool retrieves a boolean value, returning defaultValue if not found or
// wrong type
func (v Variables) GetBool(name Name, defaultValue bool) bool {
	val, ok := v[name]
	if !ok {
		return defaultValue
	}
	b, ok := val.(bool)
	if !ok {
		return defaultValue
	}
	return b
}

// GetInt retrieves an integer value, returning defaultValue if not found or
// wrong type. Supports both int and float64 (converting from JSON numbers)
func (v Variables) GetInt(name Name, defaultValue int) int {
	val, ok := v[name]
	if !ok {
		return defaultValue
	}
	if i, ok := val.(int); ok {
		return i
	}
	if f, ok := val.(float64); ok {
		return int(f)
	}
	return defaultValue
}

// GetSlice retrieves a slice value, returning nil if not found or wrong type
func (v Variables) GetSlice(name Name) []any {
	val, ok := v[name]
	if !ok {
		return nil
	}
	s, ok := val.([]any)
	if !ok {
		return nil
	}
	return s
}

// HashKey computes a deterministic SHA256 hash key of the Variables. Keys
// are sorted alphabetically to ensure consistent hashing regardless of map
// iteration order. Returns hex string (64 chars) for use as a cache key
func (v Variables) HashKey() (string, error) {
	if len(v) == 0 {
		return sha256Hex(""), nil
	}

	keys := v.Names()
	pairs := make([]varPair, len(keys))
	for i, k := range keys {
		pairs[i] = varPair{K: string(k), V: v[k]}
	}

	data, err := json.Marshal(pairs)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMarshalVariables, err)
	}

	return sha256Hex(string(data)), nil
}

func sha256Hex(s string) string {
	hash := sha256.Sum256([]byte(s))
	return hex.EncodeToString(hash[:])
}
