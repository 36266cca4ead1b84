package outwriter

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkmeta/metaspot/internal/contract"
)

func TestFormatCounts(t *testing.T) {
	fmtFloat, _ := createFormatters(1)
	tests := []struct {
		name     string
		counts   map[string]float64
		expected string
	}{
		{"empty", nil, ""},
		{"single", map[string]float64{"mage": 2}, "mage=2.0"},
		{"highest first", map[string]float64{"mage": 2, "tank": 3}, "tank=3.0|mage=2.0"},
		{"ties by name", map[string]float64{"b": 1, "a": 1, "c": 4}, "c=4.0|a=1.0|b=1.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatCounts(tt.counts, fmtFloat, "|"))
		})
	}
}

func TestFormatSignatureAndSynergies(t *testing.T) {
	assert.Equal(t, "knight=4 guardian=2.5", formatSignature(map[string]float64{"guardian": 2.5, "knight": 4}))
	assert.Equal(t, "a=2|b=4", formatSynergies(map[string]int{"b": 4, "a": 2}))
	assert.Equal(t, "", formatSynergies(nil))
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeJSON(&buf, map[string]int{"a": 1}))
	assert.Equal(t, "{\n  \"a\": 1\n}\n", buf.String())

	assert.Error(t, writeJSON(&buf, func() {}))
}

func TestGetMaxNameWidth(t *testing.T) {
	tests := []struct {
		width    int
		expected int
	}{
		{80, minNameWidth},
		{120, 30},
		{400, maxNameWidth},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, getMaxNameWidth(&contract.Config{Width: tt.width}))
	}
}
