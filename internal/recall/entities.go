package recall

import (
	"strings"
	"unicode"
)

// extractEntityTokens pulls out the query tokens most likely to name a
// specific thing (a symbol, file, or proper noun) rather than a common
// word, so they can be used to boost search hits that actually mention
// them. A token qualifies if it looks like an identifier (snake_case,
// camelCase, dotted path) or starts with a capital letter and isn't the
// first word of a sentence-cased query.
func extractEntityTokens(query string) []string {
	fields := strings.Fields(query)
	seen := make(map[string]bool, len(fields))
	var tokens []string
	for i, f := range fields {
		trimmed := strings.Trim(f, ".,;:!?()[]{}\"'")
		if len(trimmed) < 3 {
			continue
		}
		if !looksLikeEntity(trimmed, i == 0) {
			continue
		}
		lower := strings.ToLower(trimmed)
		if seen[lower] {
			continue
		}
		seen[lower] = true
		tokens = append(tokens, lower)
	}
	return tokens
}

func looksLikeEntity(token string, isFirstWord bool) bool {
	if strings.ContainsAny(token, "_./") {
		return true
	}
	runes := []rune(token)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			// An internal capital marks camelCase/PascalCase identifiers
			// regardless of sentence position.
			return true
		}
	}
	// A capitalized word in the middle of the query (not the sentence's
	// first word, where English just capitalizes whatever comes first)
	// reads as a proper noun: a type, file, or identifier.
	return !isFirstWord && unicode.IsUpper(runes[0])
}

// containsEntity reports whether content mentions any of the extracted
// entity tokens, case-insensitively.
func containsEntity(content string, tokens []string) bool {
	lower := strings.ToLower(content)
	for _, t := range tokens {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}
