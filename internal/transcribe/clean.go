package transcribe

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// \s alone misses vertical tab, the ASCII separators and NEL.
var whitespaceRun = regexp.MustCompile(`[\s\v\x{1c}-\x{1f}\x{85}\p{Z}]+`)

// commonFix rewrites a lowercase ASR token into its written form.
type commonFix struct {
	pattern     *regexp.Regexp
	replacement string
}

// commonFixes are applied in order, case-insensitively, on whole words.
var commonFixes = buildFixes([][2]string{
	{`i`, "I"},
	{`im`, "I'm"},
	{`ive`, "I've"},
	{`youre`, "you're"},
	{`were`, "we're"},
	{`theres`, "there's"},
	{`dont`, "don't"},
	{`wont`, "won't"},
	{`cant`, "can't"},
	{`shouldnt`, "shouldn't"},
	{`couldnt`, "couldn't"},
	{`wouldnt`, "wouldn't"},
	{`isnt`, "isn't"},
	{`aren't`, "aren't"},
	{`wasnt`, "wasn't"},
	{`werent`, "weren't"},
	{`havent`, "haven't"},
	{`hasnt`, "hasn't"},
	{`hadnt`, "hadn't"},
	{`doesnt`, "doesn't"},
	{`didnt`, "didn't"},
})

func buildFixes(pairs [][2]string) []commonFix {
	fixes := make([]commonFix, len(pairs))
	for i, p := range pairs {
		fixes[i] = commonFix{
			pattern:     regexp.MustCompile(`(?i)` + regexp.QuoteMeta(p[0])),
			replacement: p[1],
		}
	}
	return fixes
}

// apply replaces every match of f that stands as a whole word. Word runes
// are Unicode letters, digits and underscore, so accented neighbors keep a
// match like "im" inside "imágenes" from counting.
func (f commonFix) apply(text string) string {
	matches := f.pattern.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return text
	}

	var b strings.Builder
	prev := 0
	for _, m := range matches {
		if !wordBoundary(text, m[0]) || !wordBoundary(text, m[1]) {
			continue
		}
		b.WriteString(text[prev:m[0]])
		b.WriteString(f.replacement)
		prev = m[1]
	}
	if prev == 0 {
		return text
	}
	b.WriteString(text[prev:])
	return b.String()
}

// wordBoundary reports whether exactly one side of byte offset i is a word rune.
func wordBoundary(text string, i int) bool {
	before, after := false, false
	if i > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:i])
		before = isWordRune(r)
	}
	if i < len(text) {
		r, _ := utf8.DecodeRuneInString(text[i:])
		after = isWordRune(r)
	}
	return before != after
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r) || r == '_'
}

// Clean formats raw model output for reading: whitespace is collapsed, each
// ". "-separated sentence is capitalized, a final period is added when the
// text has no terminal punctuation, and common unpunctuated contractions
// are repaired.
func Clean(text string) string {
	text = norm.NFC.String(text)
	text = whitespaceRun.ReplaceAllString(text, " ")

	parts := strings.Split(text, ". ")
	sentences := parts[:0]
	for _, s := range parts {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		sentences = append(sentences, capitalize(s))
	}
	text = strings.Join(sentences, ". ")

	if text != "" {
		last, _ := utf8.DecodeLastRuneInString(text)
		if last != '.' && last != '!' && last != '?' {
			text += "."
		}
	}

	for _, f := range commonFixes {
		text = f.apply(text)
	}

	return strings.TrimSpace(text)
}

// capitalize upper-cases the first rune and lower-cases the rest.
func capitalize(s string) string {
	first, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToTitle(first)) + strings.ToLower(s[size:])
}
