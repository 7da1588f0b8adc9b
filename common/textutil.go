package common

import (
	"strings"
	"unicode/utf8"
)

// CollapseWhitespace joins all whitespace runs into single spaces and trims.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Shorten collapses whitespace and, when the result is longer than width
// runes, keeps as many leading whole words as fit together with placeholder.
// If not even the first word fits, only the placeholder is returned.
func Shorten(text string, width int, placeholder string) string {
	words := strings.Fields(text)
	joined := strings.Join(words, " ")
	if utf8.RuneCountInString(joined) <= width {
		return joined
	}

	budget := width - utf8.RuneCountInString(placeholder)
	var sb strings.Builder
	n := 0
	for _, w := range words {
		wl := utf8.RuneCountInString(w)
		add := wl
		if n > 0 {
			add++
		}
		if n+add > budget {
			break
		}
		if n > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(w)
		n += add
	}
	if n == 0 {
		return strings.TrimSpace(placeholder)
	}
	return sb.String() + placeholder
}

// Wrap breaks text into lines of at most width runes on word boundaries.
// Words longer than width are split.
func Wrap(text string, width int) []string {
	if width <= 0 {
		return []string{CollapseWhitespace(text)}
	}

	var lines []string
	var cur []rune
	for _, w := range strings.Fields(text) {
		word := []rune(w)
		for len(word) > width {
			if len(cur) > 0 {
				lines = append(lines, string(cur))
				cur = nil
			}
			lines = append(lines, string(word[:width]))
			word = word[width:]
		}
		if len(word) == 0 {
			continue
		}
		switch {
		case len(cur) == 0:
			cur = word
		case len(cur)+1+len(word) <= width:
			cur = append(append(cur, ' '), word...)
		default:
			lines = append(lines, string(cur))
			cur = word
		}
	}
	if len(cur) > 0 {
		lines = append(lines, string(cur))
	}
	return lines
}

// Single pass, so the braces emitted for a backslash are not escaped again.
var latexReplacer = strings.NewReplacer(
	"\\", "\\textbackslash{}",
	"&", "\\&",
	"%", "\\%",
	"$", "\\$",
	"#", "\\#",
	"_", "\\_",
	"{", "\\{",
	"}", "\\}",
	"~", "\\textasciitilde{}",
	"^", "\\textasciicircum{}",
)

// EscapeLatex escapes special LaTeX characters in text
func EscapeLatex(text string) string {
	return latexReplacer.Replace(text)
}
