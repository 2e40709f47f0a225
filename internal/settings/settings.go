// Package settings is the configuration provider handed to plugins at init.
//
// Keys, types and defaults are declared once in a Schema. Plugins read
// typed values through a Provider and never touch a shared key/value
// namespace directly.
package settings

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
)

// Type is the declared type of a setting.
type Type string

const (
	TypeString Type = "string"
	TypeBool   Type = "bool"
	TypeInt    Type = "int"
	TypeFloat  Type = "float"
)

// IsValid returns true if the type is recognized.
func (t Type) IsValid() bool {
	switch t {
	case TypeString, TypeBool, TypeInt, TypeFloat:
		return true
	default:
		return false
	}
}

// Field declares a single setting.
type Field struct {
	Key         string
	Type        Type
	Default     string
	Description string
}

func (f Field) check(raw string) error {
	var err error
	switch f.Type {
	case TypeBool:
		_, err = strconv.ParseBool(raw)
	case TypeInt:
		_, err = strconv.Atoi(raw)
	case TypeFloat:
		_, err = strconv.ParseFloat(raw, 64)
	}
	if err != nil {
		return fmt.Errorf("setting %s: %q is not a valid %s", f.Key, raw, f.Type)
	}
	return nil
}

func zeroValue(t Type) string {
	switch t {
	case TypeBool:
		return "false"
	case TypeInt, TypeFloat:
		return "0"
	default:
		return ""
	}
}

// Schema is the central set of declared settings.
type Schema struct {
	mu     sync.RWMutex
	fields map[string]Field
}

// NewSchema creates a schema from the given fields.
func NewSchema(fields ...Field) (*Schema, error) {
	s := &Schema{fields: make(map[string]Field, len(fields))}
	for _, f := range fields {
		if err := s.Declare(f); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Declare adds a field. Re-declaring an identical field is allowed so that
// plugins and config can both name the same key; conflicting declarations
// are rejected.
func (s *Schema) Declare(f Field) error {
	if f.Key == "" {
		return fmt.Errorf("setting key is required")
	}
	if f.Type == "" {
		f.Type = TypeString
	}
	if !f.Type.IsValid() {
		return fmt.Errorf("setting %s: invalid type %q", f.Key, f.Type)
	}
	if f.Default == "" {
		f.Default = zeroValue(f.Type)
	}
	if err := f.check(f.Default); err != nil {
		return fmt.Errorf("invalid default: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.fields[f.Key]; ok {
		if existing.Type != f.Type || existing.Default != f.Default {
			return fmt.Errorf("setting %s already declared as %s (default %q)", f.Key, existing.Type, existing.Default)
		}
		return nil
	}
	s.fields[f.Key] = f
	return nil
}

// Lookup returns the declared field for key.
func (s *Schema) Lookup(key string) (Field, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.fields[key]
	return f, ok
}

// Fields returns all declared fields sorted by key.
func (s *Schema) Fields() []Field {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Field, 0, len(s.fields))
	for _, f := range s.fields {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
