package vectorindex

import (
	"context"
	"fmt"
	"sort"
)

// poolFactor controls how many candidates the hybrid query pulls from
// the vector side before lexical rescoring.
const (
	poolFactor = 4
	poolFloor  = 50
)

// HybridQuery blends vector similarity with BM25 lexical relevance.
// alpha weights the vector side: 1 is pure vector, 0 is pure lexical.
// Results are sorted by blended score, ties broken by page, section
// path, then unit id so identical queries return identical orderings.
func (idx *Index) HybridQuery(ctx context.Context, queryText string, queryVector []float32, alpha float64, limit int, filter Filter) ([]Hit, error) {
	if limit <= 0 {
		limit = 10
	}
	if alpha < 0 || alpha > 1 {
		return nil, fmt.Errorf("alpha must be in [0,1], got %v", alpha)
	}

	count := idx.collection.Count()
	if count == 0 {
		return nil, nil
	}

	poolSize := limit * poolFactor
	if poolSize < poolFloor {
		poolSize = poolFloor
	}
	if poolSize > count {
		poolSize = count
	}

	results, err := idx.collection.QueryEmbedding(ctx, queryVector, poolSize, whereClause(filter), nil)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	hits := make([]Hit, 0, len(results))
	texts := make([]string, 0, len(results))
	for _, r := range results {
		h := hitFromResult(r)
		if !hasAllTags(h.Tags, filter.Tags) {
			continue
		}
		hits = append(hits, h)
		texts = append(texts, r.Content)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	vectorScores := make([]float64, len(hits))
	for i, h := range hits {
		vectorScores[i] = h.VectorScore
	}
	vecNorm := normalize(vectorScores)
	lexNorm := normalize(lexicalScores(queryText, texts))

	for i := range hits {
		hits[i].LexicalScore = lexNorm[i]
		hits[i].BlendedScore = alpha*vecNorm[i] + (1-alpha)*lexNorm[i]
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].BlendedScore != hits[j].BlendedScore {
			return hits[i].BlendedScore > hits[j].BlendedScore
		}
		if hits[i].PageNumber != hits[j].PageNumber {
			return hits[i].PageNumber < hits[j].PageNumber
		}
		if hits[i].SectionPath != hits[j].SectionPath {
			return hits[i].SectionPath < hits[j].SectionPath
		}
		return hits[i].UnitID < hits[j].UnitID
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// whereClause maps the filter's equality fields to chromem metadata.
// Tag containment cannot be expressed there and is applied afterwards.
func whereClause(filter Filter) map[string]string {
	where := make(map[string]string)
	if filter.DocID != "" {
		where["doc_id"] = filter.DocID
	}
	if filter.UnitType != "" {
		where["unit_type"] = string(filter.UnitType)
	}
	if len(where) == 0 {
		return nil
	}
	return where
}

func hasAllTags(have, want []string) bool {
	for _, w := range want {
		found := false
		for _, h := range have {
			if h == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
