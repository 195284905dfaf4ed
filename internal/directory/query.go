package directory

import (
	"strings"
	"unicode/utf8"

	"github.com/cburnette/deaddrop/internal/apperr"
)

const (
	MaxPhrases   = 10
	MaxPhraseLen = 256
)

// activeFilter restricts every query to active agents.
const activeFilter = "@active:{true}"

// queryMetachars are stripped from phrases so callers cannot inject
// RediSearch syntax.
const queryMetachars = `@!{}()|-=>[]:;*~\"'/<.,$%^&#+?`

// Sanitize strips query metacharacters and collapses whitespace.
func Sanitize(phrase string) string {
	cleaned := strings.Map(func(r rune) rune {
		if strings.ContainsRune(queryMetachars, r) {
			return -1
		}
		return r
	}, phrase)
	return strings.Join(strings.Fields(cleaned), " ")
}

// ValidatePhrases checks the phrase count and raw lengths.
func ValidatePhrases(phrases []string) error {
	if len(phrases) == 0 || len(phrases) > MaxPhrases {
		return apperr.New(apperr.InvalidArgument, "phrases must contain 1-%d items", MaxPhrases)
	}
	for _, p := range phrases {
		if n := utf8.RuneCountInString(p); n == 0 || n > MaxPhraseLen {
			return apperr.New(apperr.InvalidArgument, "each phrase must be 1-%d characters", MaxPhraseLen)
		}
	}
	return nil
}

// BuildQuery ORs the sanitized phrases together as exact phrases and
// ANDs them with the active filter. Phrases that sanitize to nothing are
// dropped; if none survive the query is rejected.
func BuildQuery(phrases []string) (string, error) {
	terms := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if s := Sanitize(p); s != "" {
			terms = append(terms, `"`+s+`"`)
		}
	}
	if len(terms) == 0 {
		return "", apperr.New(apperr.InvalidArgument, "phrases contain no searchable content after sanitization")
	}
	return activeFilter + " (" + strings.Join(terms, " | ") + ")", nil
}
