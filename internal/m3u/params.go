package m3u

import (
	"github.com/dlclark/regexp2"
)

var (
	// Pairs are separated by whitespace that follows a closing quote, so
	// values may themselves contain spaces.
	paramSeparator = regexp2.MustCompile(`(?<=")\s+`, regexp2.None)
	paramPair      = regexp2.MustCompile(`(?<name>[\w-]+)="(?<value>[^\t\n\r\f\v]+)"`, regexp2.None)
)

// ParseParams parses a raw `key="value" key2="value2"` attribute string.
// A nil raw yields an empty map. Fragments that do not form a quoted pair are
// skipped; a repeated key keeps its first position and its last value.
func ParseParams(raw *string) *Attrs {
	attrs := NewAttrs()
	if raw == nil {
		return attrs
	}
	for _, piece := range splitParams(*raw) {
		m, err := paramPair.FindStringMatch(piece)
		for err == nil && m != nil {
			attrs.Set(m.GroupByName("name").String(), m.GroupByName("value").String())
			m, err = paramPair.FindNextMatch(m)
		}
	}
	return attrs
}

// ParseParamString is ParseParams for a string that is always present.
func ParseParamString(s string) *Attrs {
	return ParseParams(&s)
}

// splitParams cuts s at every separator match. regexp2 reports rune offsets,
// so slicing happens on the rune form of s.
func splitParams(s string) []string {
	var (
		pieces []string
		start  int
	)
	runes := []rune(s)
	m, err := paramSeparator.FindRunesMatch(runes)
	for err == nil && m != nil {
		pieces = append(pieces, string(runes[start:m.Index]))
		start = m.Index + m.Length
		m, err = paramSeparator.FindNextMatch(m)
	}
	return append(pieces, string(runes[start:]))
}
