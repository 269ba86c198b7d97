package morse

import (
	"strings"
	"unicode"
)

// Translate converts a space-delimited Morse string to text. Groups are split on
// runs of whitespace, "/" becomes a space, unknown groups become Unknown.
//
//	Translate(".... .. / - .... . .-. .")  == "HI THERE"
//	Translate(".......")                   == "?"
//	Translate("")                          == ""
func Translate(code string) string {
	groups := strings.Fields(code)
	if len(groups) == 0 {
		return ""
	}
	var b strings.Builder
	b.Grow(len(groups))
	for _, group := range groups {
		b.WriteString(Decode(group))
	}
	return b.String()
}

// TranslateWords converts already-segmented words (each a list of symbol
// groups) to text with single spaces between words.
func TranslateWords(words [][]string) string {
	var b strings.Builder
	for i, word := range words {
		if i > 0 {
			b.WriteByte(' ')
		}
		for _, group := range word {
			b.WriteString(Decode(group))
		}
	}
	return b.String()
}

// Encode renders text in the canonical Morse form used by Translate. Runs of
// whitespace become a single word separator. Characters without a table entry
// are dropped and returned in skipped so callers can report them.
func Encode(text string) (code string, skipped []rune) {
	var groups []string
	pendingSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			pendingSpace = len(groups) > 0
			continue
		}
		group, ok := Symbols(r)
		if !ok {
			skipped = append(skipped, r)
			continue
		}
		if pendingSpace {
			groups = append(groups, WordSeparator)
			pendingSpace = false
		}
		groups = append(groups, group)
	}
	return strings.Join(groups, " "), skipped
}

// Render joins segmented words into a raw Morse string using caller-chosen
// delimiters, e.g. Render(words, " ", " / ").
func Render(words [][]string, charDelimiter, wordDelimiter string) string {
	parts := make([]string, 0, len(words))
	for _, word := range words {
		parts = append(parts, strings.Join(word, charDelimiter))
	}
	return strings.Join(parts, wordDelimiter)
}
