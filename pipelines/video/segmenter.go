package video

import (
	"regexp"
	"strings"

	"slidecast/common"
)

const (
	FallbackTitle        = "Document Overview"
	FallbackSummaryChars = 250
	FallbackMarker       = "..."
)

var headingLine = regexp.MustCompile(`^\d+\.\s*(.*)$`)

// Segment splits document text into at most maxUnits content units, one per
// numbered heading ("1. Introduction"), in document order. It always returns
// at least one unit.
func Segment(text string, maxUnits int) []ContentUnit {
	if maxUnits < 1 {
		maxUnits = 1
	}

	var units []ContentUnit
	for _, block := range splitSections(text) {
		unit, ok := parseSection(block)
		if !ok {
			continue
		}
		units = append(units, unit)
		if len(units) == maxUnits {
			break
		}
	}

	if len(units) == 0 {
		return []ContentUnit{fallbackUnit(text)}
	}
	return units
}

// splitSections cuts text at every newline that is directly followed by a
// heading marker. The marker stays with the block after the cut.
func splitSections(text string) []string {
	var blocks []string
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' && startsWithMarker(text[i+1:]) {
			blocks = append(blocks, text[start:i])
			start = i + 1
		}
	}
	return append(blocks, text[start:])
}

// startsWithMarker reports whether s begins with digits, a period and whitespace.
func startsWithMarker(s string) bool {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 || i+1 >= len(s) || s[i] != '.' {
		return false
	}
	switch s[i+1] {
	case ' ', '\t', '\n', '\r', '\f', '\v':
		return true
	}
	return false
}

func parseSection(block string) (ContentUnit, bool) {
	block = strings.TrimSpace(block)
	if block == "" {
		return ContentUnit{}, false
	}

	first, rest, _ := strings.Cut(block, "\n")
	m := headingLine.FindStringSubmatch(strings.TrimRight(first, "\r"))
	if m == nil {
		return ContentUnit{}, false
	}
	title := strings.TrimSpace(m[1])
	if title == "" {
		return ContentUnit{}, false
	}

	summary := firstSentence(firstParagraph(rest))
	if summary == "" {
		summary = title
	}
	return ContentUnit{Title: title, Summary: summary}, true
}

// firstParagraph returns the whitespace-collapsed text up to the first blank line.
func firstParagraph(s string) string {
	var lines []string
	for _, line := range strings.Split(strings.TrimLeft(s, " \t\r\n"), "\n") {
		if strings.TrimSpace(line) == "" {
			break
		}
		lines = append(lines, line)
	}
	return common.CollapseWhitespace(strings.Join(lines, " "))
}

// firstSentence keeps text through the first period, or all of it.
func firstSentence(s string) string {
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return s[:i+1]
	}
	return s
}

func fallbackUnit(text string) ContentUnit {
	summary := common.Shorten(text, FallbackSummaryChars, FallbackMarker)
	if summary == "" {
		summary = FallbackTitle
	}
	return ContentUnit{Title: FallbackTitle, Summary: summary}
}
