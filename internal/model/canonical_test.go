package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalTags_NormalizesDeduplicatesSorts(t *testing.T) {
	got := CanonicalTags([]string{"B", " a ", "a"})
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestCanonicalTags_EmptyResultIsNil(t *testing.T) {
	assert.Nil(t, CanonicalTags(nil))
	assert.Nil(t, CanonicalTags([]string{}))
	assert.Nil(t, CanonicalTags([]string{"", "   ", "\t"}))
}

func TestCanonicalTags_PermutationAndCasingInvariant(t *testing.T) {
	base := CanonicalTags([]string{"alpha", "beta", "gamma"})
	variants := [][]string{
		{"gamma", "alpha", "beta"},
		{"ALPHA", "Beta", "GaMmA"},
		{"beta", "beta", " gamma", "alpha "},
	}
	for _, v := range variants {
		assert.Equal(t, base, CanonicalTags(v), "input %v", v)
	}
}

func TestCanonicalAnnotation(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"x", "x"},
		{"  x  ", "x"},
		{"", ""},
		{"   \t ", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanonicalAnnotation(tt.in), "input %q", tt.in)
	}
}

func TestCanonicalLabels_Deterministic(t *testing.T) {
	a, err := CanonicalLabels(map[string]string{"site": "Gotland", "turbine": "T01"})
	require.NoError(t, err)
	b, err := CanonicalLabels(map[string]string{"turbine": "T01", "site": "Gotland"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, `{"site":"Gotland","turbine":"T01"}`, a)
}

func TestCanonicalLabels_Empty(t *testing.T) {
	s, err := CanonicalLabels(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", s)

	m, err := ParseLabels(s)
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestCanonicalLabels_RejectsEmptyKey(t *testing.T) {
	_, err := CanonicalLabels(map[string]string{"  ": "v"})
	assert.Error(t, err)
}

func TestEncodeDecodeTags_NullRoundTrip(t *testing.T) {
	s, err := EncodeTags(nil)
	require.NoError(t, err)
	assert.Equal(t, "", s)

	tags, err := DecodeTags("")
	require.NoError(t, err)
	assert.Nil(t, tags)
}

func TestDecodeTags_RecanonicalizesStoredRows(t *testing.T) {
	// Rows written before a normalization rule tightened must still compare
	// equal to fresh canonical input.
	tags, err := DecodeTags(`["B"," a ","a"]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tags)
}
