package vectorindex

import (
	"math"
	"strings"
	"unicode"
)

// BM25 parameters, standard values.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// tokenize lowercases and splits on non-alphanumeric runes.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// lexicalScores computes BM25 scores for the query against each candidate
// text. Document frequencies are taken over the candidate pool itself,
// which keeps scores comparable within one query.
func lexicalScores(query string, texts []string) []float64 {
	queryTerms := tokenize(query)
	scores := make([]float64, len(texts))
	if len(queryTerms) == 0 || len(texts) == 0 {
		return scores
	}

	termFreqs := make([]map[string]int, len(texts))
	docLens := make([]int, len(texts))
	var totalLen int
	for i, text := range texts {
		tokens := tokenize(text)
		tf := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			tf[tok]++
		}
		termFreqs[i] = tf
		docLens[i] = len(tokens)
		totalLen += len(tokens)
	}
	avgLen := float64(totalLen) / float64(len(texts))
	if avgLen == 0 {
		return scores
	}

	for _, term := range queryTerms {
		df := 0
		for _, tf := range termFreqs {
			if tf[term] > 0 {
				df++
			}
		}
		if df == 0 {
			continue
		}
		idf := math.Log(1 + (float64(len(texts))-float64(df)+0.5)/(float64(df)+0.5))

		for i, tf := range termFreqs {
			f := float64(tf[term])
			if f == 0 {
				continue
			}
			norm := f * (bm25K1 + 1) / (f + bm25K1*(1-bm25B+bm25B*float64(docLens[i])/avgLen))
			scores[i] += idf * norm
		}
	}
	return scores
}

// normalize rescales scores to [0,1] by min-max over the pool. A pool
// with no spread maps to all zeros.
func normalize(scores []float64) []float64 {
	if len(scores) == 0 {
		return scores
	}
	min, max := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	out := make([]float64, len(scores))
	if max == min {
		return out
	}
	for i, s := range scores {
		out[i] = (s - min) / (max - min)
	}
	return out
}
