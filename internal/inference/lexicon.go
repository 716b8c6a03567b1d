package inference

import (
	"context"
	"sort"
	"strings"

	"github.com/seenimoa/newsbrief/pkg/models"
)

// ------------------------------------------------------------------
// Keyword-based offline engine. Deterministic: the same text always
// yields the same summary, label and topics, so cached responses stay
// byte-identical across runs.
// ------------------------------------------------------------------

// positive / negative keyword dictionaries (lowercase).
var positiveWords = map[string]float64{
	"surge": 0.7, "rally": 0.6, "growth": 0.4, "profit": 0.4,
	"record": 0.5, "beat": 0.5, "beats": 0.5, "strong": 0.4,
	"upgrade": 0.6, "expansion": 0.4, "recovery": 0.5, "wins": 0.5,
	"positive": 0.4, "soars": 0.7, "upbeat": 0.5, "dividend": 0.3,
	"breakthrough": 0.6, "partnership": 0.3, "launch": 0.3,
}

var negativeWords = map[string]float64{
	"crash": 0.8, "plunge": 0.7, "slump": 0.6, "loss": 0.4,
	"losses": 0.4, "downgrade": 0.6, "weak": 0.4, "decline": 0.5,
	"fraud": 0.8, "scam": 0.8, "lawsuit": 0.6, "probe": 0.5,
	"investigation": 0.5, "layoffs": 0.6, "recall": 0.5, "fine": 0.4,
	"negative": 0.4, "warning": 0.5, "miss": 0.5, "misses": 0.5,
	"falls": 0.4, "cut": 0.3, "shutdown": 0.6,
}

// neutralBand is the score magnitude below which text is NEUTRAL.
const neutralBand = 0.15

// stopwords excluded from topic extraction.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true,
	"at": true, "be": true, "but": true, "by": true, "for": true,
	"from": true, "had": true, "has": true, "have": true, "in": true,
	"is": true, "it": true, "its": true, "of": true, "on": true,
	"or": true, "said": true, "that": true, "the": true, "their": true,
	"this": true, "to": true, "was": true, "were": true, "which": true,
	"will": true, "with": true, "after": true, "over": true, "also": true,
}

const (
	summaryMaxRunes = 220
	topicCount      = 5
)

// Lexicon is the offline inference engine.
type Lexicon struct{}

// NewLexicon creates the offline engine.
func NewLexicon() *Lexicon { return &Lexicon{} }

// Infer extracts a leading-sentence summary, a keyword-scored
// sentiment label and a frequency-ranked topic set from text.
func (l *Lexicon) Infer(_ context.Context, text string) (*Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return &Result{
			Summary:   "No summary available.",
			Sentiment: models.SentimentNeutral,
			Topics:    []string{},
		}, nil
	}

	summary := leadingSentences(text, summaryMaxRunes)
	return &Result{
		Summary:   summary,
		Sentiment: Score(summary),
		Topics:    topTerms(summary, topicCount),
	}, nil
}

// Score classifies text by net keyword weight.
func Score(text string) models.Sentiment {
	lower := strings.ToLower(text)

	pos, neg := 0.0, 0.0
	for word, weight := range positiveWords {
		if containsWord(lower, word) {
			pos += weight
		}
	}
	for word, weight := range negativeWords {
		if containsWord(lower, word) {
			neg += weight
		}
	}

	total := pos + neg
	if total == 0 {
		return models.SentimentNeutral
	}
	score := (pos - neg) / total
	switch {
	case score > neutralBand:
		return models.SentimentPositive
	case score < -neutralBand:
		return models.SentimentNegative
	default:
		return models.SentimentNeutral
	}
}

// containsWord matches word on token boundaries so "cut" does not
// match "execute".
func containsWord(text, word string) bool {
	for _, tok := range strings.FieldsFunc(text, isSeparator) {
		if tok == word {
			return true
		}
	}
	return false
}

// leadingSentences returns whole sentences from the front of text up
// to maxRunes.
func leadingSentences(text string, maxRunes int) string {
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	cut := maxRunes
	for i := maxRunes; i > 0; i-- {
		if runes[i-1] == '.' || runes[i-1] == '!' || runes[i-1] == '?' {
			cut = i
			break
		}
	}
	return strings.TrimSpace(string(runes[:cut]))
}

// topTerms returns the k most frequent non-stopword terms, ranked by
// count with alphabetical tie-break for determinism.
func topTerms(text string, k int) []string {
	counts := make(map[string]int)
	for _, tok := range strings.FieldsFunc(strings.ToLower(text), isSeparator) {
		if len(tok) < 3 || stopwords[tok] || isNumeric(tok) {
			continue
		}
		counts[tok]++
	}

	terms := make([]string, 0, len(counts))
	for term := range counts {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if counts[terms[i]] != counts[terms[j]] {
			return counts[terms[i]] > counts[terms[j]]
		}
		return terms[i] < terms[j]
	})

	if len(terms) > k {
		terms = terms[:k]
	}
	return terms
}

func isSeparator(r rune) bool {
	return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '\'')
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
