package store

import (
	"strings"
	"unicode"
)

// DefaultStopWords are filtered out of queries before index lookup. These
// are high-frequency function words that carry no ranking signal for
// researcher and publication text.
var DefaultStopWords = []string{
	"a", "an", "and", "are", "as", "at", "be", "by", "for", "from",
	"in", "is", "it", "of", "on", "or", "that", "the", "to", "with",
}

// CleanToken strips every rune that is not a letter, digit, hyphen, or
// underscore, and lowercases the remainder. Returns "" when nothing
// survives.
func CleanToken(token string) string {
	var b strings.Builder
	for _, r := range token {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// TokenizeQuery splits a free-text query into cleaned, lowercased tokens.
// Hyphens and underscores are preserved inside tokens ("open-access",
// "digital_twin"); everything else non-alphanumeric is stripped. A query
// that cleans to nothing returns an empty slice.
func TokenizeQuery(query string) []string {
	fields := strings.Fields(query)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if t := CleanToken(f); t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

// FilterStopWords removes stop words from a token list.
func FilterStopWords(tokens []string, stopWords map[string]struct{}) []string {
	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, isStop := stopWords[strings.ToLower(token)]; !isStop {
			result = append(result, token)
		}
	}
	return result
}

// BuildStopWordMap converts a slice of stop words to a lookup map.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, word := range stopWords {
		m[strings.ToLower(word)] = struct{}{}
	}
	return m
}
