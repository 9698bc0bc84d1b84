package domain

import (
	"regexp"
	"strings"
)

// Canonical size tokens
const (
	SizeSmall  = "small"
	SizeMedium = "medium"
	SizeLarge  = "large"
	SizeFamily = "family"
)

// SizeDetector infers a canonical size token from an item name.
// Returns the empty string when no size can be inferred.
type SizeDetector interface {
	DetectSize(name string) string
}

type sizePattern struct {
	pattern *regexp.Regexp
	size    string
}

// NameSizeDetector recognizes size tokens embedded in marketplace item
// names, including the Portuguese forms aggregator menus commonly use.
type NameSizeDetector struct {
	patterns []sizePattern
}

// NewNameSizeDetector creates the default detector
func NewNameSizeDetector() *NameSizeDetector {
	return &NameSizeDetector{
		patterns: []sizePattern{
			{regexp.MustCompile(`\b(broto|pequen[ao]|small|mini)\b`), SizeSmall},
			{regexp.MustCompile(`\b(m[eé]dia|m[eé]dio|medium)\b`), SizeMedium},
			{regexp.MustCompile(`\b(grande|large|big)\b`), SizeLarge},
			{regexp.MustCompile(`\b(fam[ií]lia|family|giga|gigante)\b`), SizeFamily},
		},
	}
}

// DetectSize scans the name for a known size token
func (d *NameSizeDetector) DetectSize(name string) string {
	lower := strings.ToLower(name)
	for _, sp := range d.patterns {
		if sp.pattern.MatchString(lower) {
			return sp.size
		}
	}
	return ""
}
