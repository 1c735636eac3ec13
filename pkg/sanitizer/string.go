package sanitizer

import (
	"html"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	tagRegex   = regexp.MustCompile(`<[^>]*>`)
	spaceRegex = regexp.MustCompile(`\s+`)
)

// RemoveControlChars drops control characters except line breaks and tabs.
func RemoveControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)
}

// StripHTML removes tags and unescapes entities.
func StripHTML(s string) string {
	return html.UnescapeString(tagRegex.ReplaceAllString(s, ""))
}

// SingleLine collapses every run of whitespace, line breaks included, into
// one space and drops control characters.
func SingleLine(s string) string {
	return strings.TrimSpace(spaceRegex.ReplaceAllString(RemoveControlChars(s), " "))
}

// MaxRunes returns a transform that cuts strings to at most n runes.
func MaxRunes(n int) func(string) string {
	return func(s string) string {
		if n < 0 || utf8.RuneCountInString(s) <= n {
			return s
		}
		i := 0
		for pos := range s {
			if i == n {
				return strings.TrimRightFunc(s[:pos], unicode.IsSpace)
			}
			i++
		}
		return s
	}
}
