// Package tokenizer derives index terms from source strings. Words are
// lower-cased runs of letters, digits and combining marks; every character
// of an ideographic or unsegmented script is a term of its own. English
// gets stop words dropped and a light stemmer so inflected UI strings
// ("Save", "Saving", "Saved") meet.
package tokenizer

import (
	"strings"
	"unicode"
)

// Token is one term and its ordinal in the string.
type Token struct {
	Term  string
	Index int
}

// analyzer turns a raw lower-cased word into a term, or "" to drop it.
type analyzer func(word string) string

func plain(word string) string {
	if len([]rune(word)) < 2 {
		return ""
	}
	return word
}

func english(word string) string {
	if len(word) < 2 || englishStop[word] {
		return ""
	}
	return stem(word)
}

func analyzerFor(locale string) analyzer {
	lang, _, _ := strings.Cut(strings.ToLower(locale), "_")
	lang, _, _ = strings.Cut(lang, "-")
	if lang == "en" {
		return english
	}
	return plain
}

// Tokenize splits text written in locale into tokens, keeping repeats.
func Tokenize(text, locale string) []Token {
	analyze := analyzerFor(locale)
	var out []Token
	add := func(term string) {
		if term != "" {
			out = append(out, Token{Term: term, Index: len(out)})
		}
	}

	start := -1
	lower := strings.ToLower(text)
	for i, r := range lower {
		inWord := !unsegmented(r) && (unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r))
		switch {
		case inWord && start < 0:
			start = i
		case !inWord && start >= 0:
			add(analyze(lower[start:i]))
			start = -1
		}
		if unsegmented(r) {
			add(string(r))
		}
	}
	if start >= 0 {
		add(analyze(lower[start:]))
	}
	return out
}

// Terms returns the distinct terms of text in first-seen order.
func Terms(text, locale string) []string {
	tokens := Tokenize(text, locale)
	terms := make([]string, 0, len(tokens))
	seen := make(map[string]bool, len(tokens))
	for _, tok := range tokens {
		if !seen[tok.Term] {
			seen[tok.Term] = true
			terms = append(terms, tok.Term)
		}
	}
	return terms
}

// Normalize folds case and collapses whitespace. Strings with equal
// normal forms are the same source text for exact matching.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// unsegmented reports scripts written without spaces between words.
func unsegmented(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul, unicode.Thai)
}
