package utils

import (
	"strings"
	"unicode/utf8"
)

// charsPerToken is the rough English average used for budget estimates.
const charsPerToken = 4

// CountTokens estimates the prompt cost of text. Non-empty text is at least one token.
func CountTokens(text string) int {
	n := utf8.RuneCountInString(text)
	switch {
	case n == 0:
		return 0
	case n < charsPerToken:
		return 1
	}
	return n / charsPerToken
}

// TruncateToTokenLimit keeps the leading whole lines of text that fit in
// limit tokens, so a markdown table is never cut mid-row. A first line
// longer than the budget is cut at a rune boundary instead.
func TruncateToTokenLimit(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	budget := limit * charsPerToken
	if utf8.RuneCountInString(text) <= budget {
		return text
	}
	used, end := 0, 0
	for end < len(text) {
		nl := strings.IndexByte(text[end:], '\n')
		next := len(text)
		if nl >= 0 {
			next = end + nl + 1
		}
		w := utf8.RuneCountInString(text[end:next])
		if used+w > budget {
			break
		}
		used += w
		end = next
	}
	if end > 0 {
		return text[:end]
	}
	runes := []rune(text)
	return string(runes[:budget])
}
