package tokenizer

import "strings"

// englishStop holds function words too common in UI strings to help rank
// candidates.
var englishStop = toSet(`a an and are as at be but by can do each for from
had has have he if in is it its of on or so that the their they this to
was were what when where which who will with you your`)

func toSet(words string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(words) {
		set[w] = true
	}
	return set
}

// derivational endings rewritten before inflections are stripped.
var derivational = []struct{ from, to string }{
	{"ization", "ize"},
	{"ational", "ate"},
	{"iveness", "ive"},
	{"fulness", "ful"},
	{"tional", "tion"},
	{"encies", "ence"},
	{"ously", "ous"},
	{"ively", "ive"},
	{"iness", "y"},
}

// stem reduces an English word to a crude stem. It is not a full Porter
// stemmer; it only needs inflections of one word to collide.
func stem(w string) string {
	for _, d := range derivational {
		if base, ok := strings.CutSuffix(w, d.from); ok && len(base) >= 2 {
			w = base + d.to
			break
		}
	}

	switch {
	case strings.HasSuffix(w, "sses"):
		w = w[:len(w)-2]
	case strings.HasSuffix(w, "ies") && len(w) > 4:
		w = w[:len(w)-3] + "y"
	case strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") && !strings.HasSuffix(w, "us") && len(w) > 3:
		w = w[:len(w)-1]
	}

	for _, infl := range []string{"ing", "ed"} {
		if base, ok := strings.CutSuffix(w, infl); ok && len(base) >= 3 && hasVowel(base) {
			w = undouble(base)
			break
		}
	}

	// Silent e: "save" and "saved" share "sav".
	if len(w) > 3 && strings.HasSuffix(w, "e") {
		w = w[:len(w)-1]
	}
	return w
}

func hasVowel(s string) bool {
	return strings.ContainsAny(s, "aeiouy")
}

// undouble turns "stopp" back into "stop" but leaves "fall" and "pass".
func undouble(s string) string {
	n := len(s)
	if n >= 4 && s[n-1] == s[n-2] && !strings.ContainsRune("lsz", rune(s[n-1])) && !strings.ContainsRune("aeiou", rune(s[n-1])) {
		return s[:n-1]
	}
	return s
}
