package query

import (
	"strings"
	"unicode"
)

// Patterns is the externally configurable rule set for intent
// classification. Phrases match as lowercase substrings; anaphora
// entries match whole words. Both lists may be replaced per deployment
// without touching the classifier contract.
type Patterns struct {
	// MetaPhrases mark questions about the conversation itself.
	MetaPhrases []string

	// AnaphoraWords are referring expressions whose antecedent lives in
	// a previous turn.
	AnaphoraWords []string
}

// DefaultPatterns covers Spanish and English conversational usage.
func DefaultPatterns() Patterns {
	return Patterns{
		MetaPhrases: []string{
			// Spanish
			"de qué hablamos",
			"de que hablamos",
			"hablamos antes",
			"qué te pregunté",
			"que te pregunte",
			"qué me dijiste",
			"que me dijiste",
			"me dijiste antes",
			"qué dijiste",
			"nuestra conversación",
			"nuestra conversacion",
			"resumen de la conversación",
			"qué me recomendaste",
			// English
			"what did we talk",
			"what did we discuss",
			"what we discussed",
			"you said earlier",
			"you told me",
			"earlier in our conversation",
			"earlier in the conversation",
			"summarize our conversation",
			"what did i ask",
		},
		AnaphoraWords: []string{
			// Spanish pronouns, clitics and deictic adverbs
			"él", "ella", "ellos", "ellas",
			"eso", "esto", "aquello", "ese", "esa", "esos", "esas", "aquel",
			"le", "les",
			"allí", "ahí", "allá",
			// English
			"it", "that", "this", "those", "them", "there",
			"he", "she", "they",
		},
	}
}

// Classifier is a pure, stateless intent classifier built from a
// Patterns rule set.
type Classifier struct {
	metaPhrases []string
	anaphora    map[string]struct{}
	minWords    int
}

// NewClassifier compiles a Patterns set. minWords is the token
// threshold below which an utterance counts as a follow-up candidate
// (given prior history, which the caller checks).
func NewClassifier(p Patterns, minWords int) *Classifier {
	anaphora := make(map[string]struct{}, len(p.AnaphoraWords))
	for _, w := range p.AnaphoraWords {
		anaphora[strings.ToLower(w)] = struct{}{}
	}
	phrases := make([]string, len(p.MetaPhrases))
	for i, ph := range p.MetaPhrases {
		phrases[i] = strings.ToLower(ph)
	}
	if minWords < 1 {
		minWords = 3
	}
	return &Classifier{
		metaPhrases: phrases,
		anaphora:    anaphora,
		minWords:    minWords,
	}
}

// IsConversationalMeta reports whether text asks about the conversation
// itself rather than the world.
func (c *Classifier) IsConversationalMeta(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range c.metaPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// IsFollowUpCandidate reports whether text contains referring
// expressions without an in-sentence antecedent, or is too short to
// stand on its own. History gating is the caller's responsibility.
func (c *Classifier) IsFollowUpCandidate(text string) bool {
	words := splitWords(text)
	if len(words) == 0 {
		return false
	}
	if len(words) < c.minWords {
		return true
	}
	for _, w := range words {
		if _, ok := c.anaphora[w]; ok {
			return true
		}
	}
	return false
}

// splitWords lowercases and splits on anything that is not a letter or
// digit, so inverted punctuation (¿¡) never sticks to the first word.
func splitWords(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
