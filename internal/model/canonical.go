package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeTag canonicalizes a single tag: NFC normalization, whitespace
// trim, lowercase. Returns "" for tags that are empty after trimming.
func NormalizeTag(s string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(s)))
}

// CanonicalTags canonicalizes a tag set: each tag normalized, empties
// dropped, duplicates removed, result sorted. The canonical empty set is
// nil, never a zero-length slice.
func CanonicalTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		n := NormalizeTag(t)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}

// TagsEqual compares two canonical tag sets.
func TagsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// CanonicalAnnotation canonicalizes an annotation: NFC normalization and
// whitespace trim. Whitespace-only annotations canonicalize to "", the
// null representation.
func CanonicalAnnotation(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

// CanonicalLabels renders a label map as deterministic JSON: keys and
// values NFC-normalized and trimmed, keys sorted. A nil or empty map
// renders as "{}". Empty keys are rejected.
func CanonicalLabels(labels map[string]string) (string, error) {
	cleaned := make(map[string]string, len(labels))
	for k, v := range labels {
		ck := strings.TrimSpace(norm.NFC.String(k))
		if ck == "" {
			return "", fmt.Errorf("label key %q is empty after normalization", k)
		}
		if _, dup := cleaned[ck]; dup {
			return "", fmt.Errorf("label key %q duplicated after normalization", ck)
		}
		cleaned[ck] = strings.TrimSpace(norm.NFC.String(v))
	}
	// json.Marshal emits map keys in sorted order, which is exactly the
	// deterministic rendering the (name, labels) uniqueness constraint needs.
	data, err := json.Marshal(cleaned)
	if err != nil {
		return "", fmt.Errorf("marshal labels: %w", err)
	}
	return string(data), nil
}

// ParseLabels decodes a canonical labels rendering back into a map.
// Returns nil for "{}" so the empty map round-trips to its canonical form.
func ParseLabels(data string) (map[string]string, error) {
	if data == "" || data == "{}" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil, fmt.Errorf("unmarshal labels: %w", err)
	}
	if len(m) == 0 {
		return nil, nil
	}
	return m, nil
}

// EncodeTags renders a canonical tag set as JSON for storage. Nil renders
// as "", the store's null representation.
func EncodeTags(tags []string) (string, error) {
	if tags == nil {
		return "", nil
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("marshal tags: %w", err)
	}
	return string(data), nil
}

// DecodeTags parses a stored tag rendering. The stored form is already
// canonical, but the decode re-canonicalizes so comparisons never depend
// on historical rows predating a normalization rule.
func DecodeTags(data string) ([]string, error) {
	if data == "" {
		return nil, nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(data), &tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	return CanonicalTags(tags), nil
}
