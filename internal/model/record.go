package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// IDField is the canonical name of the report identity field
const IDField = "report_id"

// Field is a single key/value pair of a row or record
type Field struct {
	Key   string
	Value any
}

// Row is an ordered field mapping as delivered by a collaborator
// (a structured table row or an extracted-field record)
type Row []Field

// Get returns the value stored under key
func (r Row) Get(key string) (any, bool) {
	for _, f := range r {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Record is a unified report record. It is immutable once created:
// every accessor returns copies and absence is reported through defaults.
type Record struct {
	id     string
	keys   []string
	values map[string]any
}

// NewRecord creates a record with the given identity. Later fields with
// a key already seen overwrite the earlier value but keep its position.
func NewRecord(id string, fields ...Field) Record {
	rec := Record{
		id:     id,
		keys:   make([]string, 0, len(fields)),
		values: make(map[string]any, len(fields)),
	}
	for _, f := range fields {
		if _, exists := rec.values[f.Key]; !exists {
			rec.keys = append(rec.keys, f.Key)
		}
		rec.values[f.Key] = f.Value
	}
	return rec
}

// ID returns the report identity assigned at creation
func (r Record) ID() string {
	return r.id
}

// Len returns the number of fields
func (r Record) Len() int {
	return len(r.keys)
}

// Keys returns field names in insertion order
func (r Record) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Fields returns a copy of the record's fields in order
func (r Record) Fields() []Field {
	out := make([]Field, 0, len(r.keys))
	for _, k := range r.keys {
		out = append(out, Field{Key: k, Value: r.values[k]})
	}
	return out
}

// Get returns the raw value for key. A nil value counts as absent.
func (r Record) Get(key string) (any, bool) {
	v, ok := r.values[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Has reports whether key is present with a non-nil value
func (r Record) Has(key string) bool {
	_, ok := r.Get(key)
	return ok
}

// String returns the value of key rendered as text, or def when absent
func (r Record) String(key, def string) string {
	v, ok := r.Get(key)
	if !ok {
		return def
	}
	return FormatValue(v)
}

// Float returns the numeric value of key, or def when absent.
// A present value that is not numeric is an error.
func (r Record) Float(key string, def float64) (float64, error) {
	v, ok := r.Get(key)
	if !ok {
		return def, nil
	}
	f, err := toFloat(v)
	if err != nil {
		return def, fmt.Errorf("field %q: %w", key, err)
	}
	return f, nil
}

// Bool returns the boolean value of key, or def when absent.
// A present value that cannot be read as a flag is an error.
func (r Record) Bool(key string, def bool) (bool, error) {
	v, ok := r.Get(key)
	if !ok {
		return def, nil
	}
	b, err := toBool(v)
	if err != nil {
		return def, fmt.Errorf("field %q: %w", key, err)
	}
	return b, nil
}

// Strings returns a collection field. Text values are split on common
// list separators; an absent field yields nil.
func (r Record) Strings(key string) []string {
	v, ok := r.Get(key)
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case []string:
		out := make([]string, 0, len(t))
		for _, s := range t {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s := strings.TrimSpace(FormatValue(item)); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return SplitList(FormatValue(v))
	}
}

// FallbackID returns the positional identity used when a record carries none
func FallbackID(index int) string {
	return fmt.Sprintf("Report_%d", index+1)
}

// ResolveID returns the record's identity, falling back to its batch position
func ResolveID(rec Record, index int) string {
	if rec.ID() != "" {
		return rec.ID()
	}
	return FallbackID(index)
}

// SplitList splits free text into list items on , ; | and their
// full-width forms, plus the ideographic enumeration comma.
func SplitList(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		switch r {
		case ',', ';', '|', '，', '；', '、', '\n':
			return true
		}
		return false
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// FormatValue renders a scalar value as text
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case []string:
		return strings.Join(t, ", ")
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// ParseNumber parses numeric text, tolerating thousands separators,
// surrounding whitespace and a leading currency symbol
func ParseNumber(s string) (float64, error) {
	clean := strings.TrimSpace(s)
	clean = strings.TrimLeft(clean, "¥￥$€£")
	clean = strings.ReplaceAll(clean, ",", "")
	clean = strings.ReplaceAll(clean, "，", "")
	clean = strings.TrimSpace(clean)
	f, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a finite number: %q", s)
	}
	return f, nil
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case uint:
		return float64(t), nil
	case uint64:
		return float64(t), nil
	case json.Number:
		return t.Float64()
	case string:
		return ParseNumber(t)
	default:
		return 0, fmt.Errorf("unsupported numeric type %T", v)
	}
}

func toBool(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "t", "yes", "y", "1", "是", "有":
			return true, nil
		case "false", "f", "no", "n", "0", "否", "无", "":
			return false, nil
		}
		return false, fmt.Errorf("not a boolean: %q", t)
	default:
		f, err := toFloat(v)
		if err != nil {
			return false, fmt.Errorf("unsupported boolean type %T", v)
		}
		return f != 0, nil
	}
}
