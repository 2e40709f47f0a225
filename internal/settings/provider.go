package settings

import (
	"fmt"
	"strconv"
)

// Provider gives typed read access to settings.
type Provider interface {
	String(key string) (string, error)
	Bool(key string) (bool, error)
	Int(key string) (int, error)
	Float(key string) (float64, error)
}

// Values resolves settings against a Schema: explicit values first, then
// the declared default.
type Values struct {
	schema *Schema
	values map[string]string
}

// NewValues validates raw values against the schema.
func NewValues(schema *Schema, raw map[string]string) (*Values, error) {
	if schema == nil {
		schema = &Schema{fields: map[string]Field{}}
	}
	values := make(map[string]string, len(raw))
	for k, v := range raw {
		f, ok := schema.Lookup(k)
		if !ok {
			return nil, fmt.Errorf("unknown setting %q", k)
		}
		if err := f.check(v); err != nil {
			return nil, err
		}
		values[k] = v
	}
	return &Values{schema: schema, values: values}, nil
}

// Schema returns the schema the values resolve against.
func (v *Values) Schema() *Schema { return v.schema }

// Defaults returns a view of the same schema with every explicit value dropped.
func (v *Values) Defaults() *Values {
	return &Values{schema: v.schema, values: map[string]string{}}
}

// Effective describes the resolved value of one setting.
type Effective struct {
	Field
	Value     string
	IsDefault bool
}

// Effective lists all declared settings with their resolved values.
func (v *Values) Effective() []Effective {
	fields := v.schema.Fields()
	out := make([]Effective, 0, len(fields))
	for _, f := range fields {
		val, ok := v.values[f.Key]
		if !ok {
			val = f.Default
		}
		out = append(out, Effective{Field: f, Value: val, IsDefault: !ok})
	}
	return out
}

func (v *Values) raw(key string, want Type) (string, error) {
	f, ok := v.schema.Lookup(key)
	if !ok {
		return "", fmt.Errorf("unknown setting %q", key)
	}
	if want != "" && f.Type != want {
		return "", fmt.Errorf("setting %s is %s, not %s", key, f.Type, want)
	}
	if val, ok := v.values[key]; ok {
		return val, nil
	}
	return f.Default, nil
}

// String returns the raw string value of any declared setting.
func (v *Values) String(key string) (string, error) {
	return v.raw(key, "")
}

// Bool returns a bool setting.
func (v *Values) Bool(key string) (bool, error) {
	raw, err := v.raw(key, TypeBool)
	if err != nil {
		return false, err
	}
	return strconv.ParseBool(raw)
}

// Int returns an int setting.
func (v *Values) Int(key string) (int, error) {
	raw, err := v.raw(key, TypeInt)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(raw)
}

// Float returns a float setting.
func (v *Values) Float(key string) (float64, error) {
	raw, err := v.raw(key, TypeFloat)
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(raw, 64)
}

// Enabled reports whether a bool gate is on. An empty key means "no gate".
// Unknown or malformed gates count as disabled.
func Enabled(p Provider, key string) bool {
	if key == "" {
		return true
	}
	if p == nil {
		return false
	}
	on, err := p.Bool(key)
	return err == nil && on
}
