package pipeline

import (
	"strings"
	"unicode"
)

const themeWords = 8

// ThemeOf reduces text to a short phrase: the first non-blank line, stripped
// of markup and punctuation, cut to eight words and lowercased.
func ThemeOf(text string) string {
	var line string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			line = l
			break
		}
	}
	words := strings.FieldsFunc(line, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\'' && r != '-'
	})
	if len(words) > themeWords {
		words = words[:themeWords]
	}
	return strings.ToLower(strings.Join(words, " "))
}

// PromptWithAvoid appends the recently used themes to brief.
func PromptWithAvoid(brief string, avoid []string) string {
	if len(avoid) == 0 {
		return brief
	}
	var b strings.Builder
	b.WriteString(brief)
	b.WriteString("\n\nRecent pieces already covered these themes; choose something clearly different:\n")
	for _, t := range avoid {
		b.WriteString("- " + t + "\n")
	}
	return b.String()
}
