package fuse

import "strings"

// Token counting uses a word-based approximation: one word is roughly
// 3/4 of a token for the kind of prose found in manufacturing manuals.
// The same estimator is used at build time and when trimming, so the
// budget invariants hold regardless of its absolute accuracy.

// EstimateTokens approximates the token count of text.
func EstimateTokens(text string) int {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	return (words*4 + 2) / 3
}

// tokensToWords converts a token budget into a word count.
func tokensToWords(tokens int) int {
	return (tokens*3 + 3) / 4
}

// TailByTokens returns the trailing portion of text measuring roughly
// n tokens, used for chunk overlap.
func TailByTokens(text string, n int) string {
	if n <= 0 {
		return ""
	}
	words := strings.Fields(text)
	keep := tokensToWords(n)
	if keep >= len(words) {
		return text
	}
	return strings.Join(words[len(words)-keep:], " ")
}

// TrimToTokens truncates text to roughly n tokens.
func TrimToTokens(text string, n int) string {
	if n <= 0 {
		return ""
	}
	words := strings.Fields(text)
	keep := tokensToWords(n)
	if keep >= len(words) {
		return text
	}
	return strings.Join(words[:keep], " ")
}

// splitByTokens splits text into pieces of at most n tokens each.
func splitByTokens(text string, n int) []string {
	if n <= 0 || EstimateTokens(text) <= n {
		return []string{text}
	}
	words := strings.Fields(text)
	step := tokensToWords(n)
	if step < 1 {
		step = 1
	}
	var pieces []string
	for i := 0; i < len(words); i += step {
		end := i + step
		if end > len(words) {
			end = len(words)
		}
		pieces = append(pieces, strings.Join(words[i:end], " "))
	}
	return pieces
}
