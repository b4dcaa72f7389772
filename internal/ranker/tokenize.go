package ranker

import (
	"strings"
	"unicode"
)

// stopwords are excluded from scoring and keyword matching.
// The set covers Spanish and English function words; it is intentionally
// small, favoring recall over precision.
var stopwords = map[string]struct{}{
	// Spanish
	"a": {}, "al": {}, "ante": {}, "como": {}, "con": {}, "de": {},
	"del": {}, "desde": {}, "donde": {}, "el": {}, "ella": {}, "en": {},
	"entre": {}, "es": {}, "ese": {}, "eso": {}, "esta": {}, "este": {},
	"esto": {}, "hay": {}, "la": {}, "las": {}, "le": {}, "lo": {},
	"los": {}, "mas": {}, "más": {}, "me": {}, "mi": {}, "muy": {},
	"no": {}, "o": {}, "para": {}, "pero": {}, "por": {}, "que": {},
	"qué": {}, "se": {}, "si": {}, "sin": {}, "sobre": {}, "son": {},
	"su": {}, "sus": {}, "te": {}, "tu": {}, "un": {}, "una": {},
	"uno": {}, "y": {}, "ya": {},
	// English
	"an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"but": {}, "by": {}, "can": {}, "do": {}, "for": {}, "from": {},
	"has": {}, "have": {}, "how": {}, "i": {}, "in": {}, "is": {},
	"it": {}, "of": {}, "on": {}, "or": {}, "the": {}, "this": {},
	"that": {}, "to": {}, "was": {}, "what": {}, "when": {},
	"where": {}, "which": {}, "who": {}, "why": {}, "with": {},
	"you": {}, "your": {},
}

// Tokenize lowers text and splits it into content words, dropping
// punctuation and stopwords. Accented characters are preserved so
// Spanish terms keep their identity.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, stop := stopwords[f]; stop {
			continue
		}
		if len(f) < 2 {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// tokenSet converts text into a set of content words.
func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range Tokenize(text) {
		set[tok] = struct{}{}
	}
	return set
}
