package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecord_DuplicateKeysOverwriteInPlace(t *testing.T) {
	rec := NewRecord("R1",
		Field{Key: "a", Value: 1},
		Field{Key: "b", Value: 2},
		Field{Key: "a", Value: 3},
	)

	assert.Equal(t, 2, rec.Len())
	assert.Equal(t, []string{"a", "b"}, rec.Keys())
	v, ok := rec.Get("a")
	require.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestRecord_FieldsAreCopies(t *testing.T) {
	rec := NewRecord("R1", Field{Key: "a", Value: "x"})

	keys := rec.Keys()
	keys[0] = "changed"
	fields := rec.Fields()
	fields[0].Value = "changed"

	assert.Equal(t, []string{"a"}, rec.Keys())
	assert.Equal(t, "x", rec.String("a", ""))
}

func TestRecord_Defaults(t *testing.T) {
	rec := NewRecord("R1", Field{Key: "nil", Value: nil})

	assert.False(t, rec.Has("nil"))
	assert.False(t, rec.Has("missing"))
	assert.Equal(t, "N/A", rec.String("missing", "N/A"))

	n, err := rec.Float("nil", 7)
	require.NoError(t, err)
	assert.Equal(t, 7.0, n)

	b, err := rec.Bool("missing", true)
	require.NoError(t, err)
	assert.True(t, b)

	assert.Nil(t, rec.Strings("missing"))
}

func TestRecord_Float(t *testing.T) {
	tests := []struct {
		value   any
		expect  float64
		wantErr bool
	}{
		{1000000, 1000000, false},
		{int64(5), 5, false},
		{12.5, 12.5, false},
		{json.Number("3.25"), 3.25, false},
		{"1,234,567.89", 1234567.89, false},
		{" ￥88 ", 88, false},
		{"$1,000", 1000, false},
		{"abc", 0, true},
		{"NaN", 0, true},
		{true, 0, true},
	}

	for _, tt := range tests {
		rec := NewRecord("R1", Field{Key: "v", Value: tt.value})
		got, err := rec.Float("v", 0)
		if tt.wantErr {
			assert.Error(t, err, "value %v", tt.value)
			continue
		}
		require.NoError(t, err, "value %v", tt.value)
		assert.InDelta(t, tt.expect, got, 1e-9, "value %v", tt.value)
	}
}

func TestRecord_Bool(t *testing.T) {
	tests := []struct {
		value   any
		expect  bool
		wantErr bool
	}{
		{true, true, false},
		{"True", true, false},
		{"yes", true, false},
		{"是", true, false},
		{"否", false, false},
		{"", false, false},
		{1, true, false},
		{0.0, false, false},
		{"perhaps", false, true},
	}

	for _, tt := range tests {
		rec := NewRecord("R1", Field{Key: "v", Value: tt.value})
		got, err := rec.Bool("v", false)
		if tt.wantErr {
			assert.Error(t, err, "value %v", tt.value)
			continue
		}
		require.NoError(t, err, "value %v", tt.value)
		assert.Equal(t, tt.expect, got, "value %v", tt.value)
	}
}

func TestRecord_Strings(t *testing.T) {
	rec := NewRecord("R1",
		Field{Key: "slice", Value: []string{" 函证 ", "", "监盘"}},
		Field{Key: "any", Value: []any{"a", 2}},
		Field{Key: "text", Value: "函证、监盘；分析性复核, 询问"},
	)

	assert.Equal(t, []string{"函证", "监盘"}, rec.Strings("slice"))
	assert.Equal(t, []string{"a", "2"}, rec.Strings("any"))
	assert.Equal(t, []string{"函证", "监盘", "分析性复核", "询问"}, rec.Strings("text"))
}

func TestResolveID(t *testing.T) {
	assert.Equal(t, "Report_1", FallbackID(0))
	assert.Equal(t, "R9", ResolveID(NewRecord("R9"), 3))
	assert.Equal(t, "Report_4", ResolveID(NewRecord(""), 3))
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "", FormatValue(nil))
	assert.Equal(t, "1000000", FormatValue(1000000.0))
	assert.Equal(t, "0.5", FormatValue(0.5))
	assert.Equal(t, "true", FormatValue(true))
	assert.Equal(t, "函证, 监盘", FormatValue([]string{"函证", "监盘"}))
}
