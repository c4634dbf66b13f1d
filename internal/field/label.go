package field

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// MaxInferredLabelLength caps labels inferred from nearby page text.
const MaxInferredLabelLength = 100

// labelPunctuation is stripped from label ends and disqualifies labels
// made of nothing else.
const labelPunctuation = ".:;,!?-_"

var (
	whitespaceRe = regexp.MustCompile(`\s+`)

	// Numbered fallback labels emitted by the detectors.
	genericLabelRe = regexp.MustCompile(`^(Field|Text Field|Checkbox|Signature|Widget|XObject Field) \d+$`)
)

// CleanLabel normalizes a label candidate extracted from page text:
// NFKC fold, whitespace collapse, trailing punctuation strip, and a cap
// of MaxInferredLabelLength characters. It returns the empty string
// when nothing usable remains.
func CleanLabel(raw string) string {
	label := norm.NFKC.String(raw)
	label = whitespaceRe.ReplaceAllString(label, " ")
	label = strings.TrimSpace(label)
	label = strings.TrimRight(label, labelPunctuation+" ")
	if runes := []rune(label); len(runes) > MaxInferredLabelLength {
		label = strings.TrimSpace(string(runes[:MaxInferredLabelLength]))
	}
	if len([]rune(label)) < 2 {
		return ""
	}
	if strings.Trim(label, labelPunctuation+" ") == "" {
		return ""
	}
	return label
}

// IsGenericLabel reports whether a label is blank or one of the
// detectors' numbered fallbacks, so a better label may replace it
// during merging.
func IsGenericLabel(label string) bool {
	trimmed := strings.TrimSpace(label)
	if trimmed == "" {
		return true
	}
	return genericLabelRe.MatchString(trimmed)
}

// TruncateLabel caps a label at MaxLabelLength characters, substituting
// DefaultLabel when the input is blank.
func TruncateLabel(label string) string {
	if strings.TrimSpace(label) == "" {
		return DefaultLabel
	}
	if runes := []rune(label); len(runes) > MaxLabelLength {
		return string(runes[:MaxLabelLength])
	}
	return label
}
