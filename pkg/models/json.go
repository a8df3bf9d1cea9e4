package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// JSONMap is a map column stored as JSONB. It implements driver.Valuer and
// sql.Scanner so it works with both PostgreSQL JSONB and SQLite JSON columns
// without pulling in gorm.io/datatypes.
type JSONMap map[string]interface{}

// Value implements driver.Valuer for database writes.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON map: %w", err)
	}
	return data, nil
}

// Scan implements sql.Scanner for database reads.
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to scan JSON map: unsupported type")
	}

	if len(bytes) == 0 {
		*m = nil
		return nil
	}

	result := make(map[string]interface{})
	if err := json.Unmarshal(bytes, &result); err != nil {
		return fmt.Errorf("invalid JSON in database: %w", err)
	}
	*m = result
	return nil
}

// Clone returns a shallow copy safe to mutate at the top level.
func (m JSONMap) Clone() JSONMap {
	if m == nil {
		return nil
	}
	out := make(JSONMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// GetString returns the string value for key, or "" when absent or not a string.
func (m JSONMap) GetString(key string) string {
	if m == nil {
		return ""
	}
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// GetStrings returns the value for key as a string slice, accepting both
// []string and JSON-decoded []interface{} shapes.
func (m JSONMap) GetStrings(key string) []string {
	if m == nil {
		return nil
	}
	switch v := m[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// StringArray is a string slice stored as a JSONB array.
type StringArray []string

// Value implements driver.Valuer for database writes.
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal string array: %w", err)
	}
	return data, nil
}

// Scan implements sql.Scanner for database reads.
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to scan string array: unsupported type")
	}

	if len(bytes) == 0 {
		*a = nil
		return nil
	}
	return json.Unmarshal(bytes, a)
}

// Contains reports whether the array holds s.
func (a StringArray) Contains(s string) bool {
	for _, item := range a {
		if item == s {
			return true
		}
	}
	return false
}

// Vector is a fixed-dimension embedding stored as a JSON number array.
// The text form ("[0.1,0.2,...]") is also the literal format pgvector
// accepts, so the column can be cast to a native vector type on PostgreSQL.
type Vector []float32

// Value implements driver.Valuer for database writes.
func (v Vector) Value() (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	return v.String(), nil
}

// Scan implements sql.Scanner for database reads. It accepts both JSON
// arrays and pgvector output literals, which share the same syntax.
func (v *Vector) Scan(value interface{}) error {
	if value == nil {
		*v = nil
		return nil
	}

	var s string
	switch raw := value.(type) {
	case []byte:
		s = string(raw)
	case string:
		s = raw
	default:
		return errors.New("failed to scan vector: unsupported type")
	}

	s = strings.TrimSpace(s)
	if s == "" || s == "null" {
		*v = nil
		return nil
	}

	var out []float32
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return fmt.Errorf("invalid vector in database: %w", err)
	}
	*v = out
	return nil
}

// String renders the vector in the shared JSON/pgvector literal form.
func (v Vector) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%g", f)
	}
	b.WriteByte(']')
	return b.String()
}

// Dimensions returns the vector length.
func (v Vector) Dimensions() int {
	return len(v)
}
