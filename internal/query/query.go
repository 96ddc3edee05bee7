// Package query runs the retrieval pipeline: embed the query, hybrid
// search, optional rerank, then assembly of full content units with
// provenance from the metadata store.
package query

import (
	"time"

	"github.com/mkoblar/machdoc/internal/model"
)

// Request is one retrieval request.
type Request struct {
	Query string   `json:"query"`
	TopK  int      `json:"top_k,omitempty"`
	Alpha *float64 `json:"alpha,omitempty"`

	// Filters narrow the search before ranking.
	DocID    string   `json:"doc_id,omitempty"`
	UnitType string   `json:"unit_type,omitempty"`
	Tags     []string `json:"tags,omitempty"`

	// Rerank defaults to true; set false to force blended ordering
	// even when a reranker is configured.
	Rerank *bool `json:"rerank,omitempty"`
}

// Scores carries every stage's score for one result so callers can see
// how the ranking was produced.
type Scores struct {
	Vector   float64  `json:"vector"`
	Lexical  float64  `json:"lexical"`
	Blended  float64  `json:"blended"`
	Rerank   *float64 `json:"rerank,omitempty"`
	Combined float64  `json:"combined"`
}

// Provenance points a result back to its source document.
type Provenance struct {
	DocID       string `json:"doc_id"`
	Title       string `json:"title"`
	FilePath    string `json:"file_path"`
	PageNumber  int    `json:"page_number"`
	SectionPath string `json:"section_path"`
}

// Result is one ranked content unit.
type Result struct {
	Unit       model.ContentUnit `json:"unit"`
	Scores     Scores            `json:"scores"`
	Provenance Provenance        `json:"provenance"`
}

// Response is the full answer to a Request.
type Response struct {
	Results  []Result `json:"results"`
	Reranked bool     `json:"reranked"`
	Degraded bool     `json:"degraded"`
	Timing   Timing   `json:"timing_ms"`
}

// Timing records per-stage latency in milliseconds.
type Timing struct {
	Embed    int64 `json:"embed"`
	Search   int64 `json:"search"`
	Rerank   int64 `json:"rerank"`
	Assemble int64 `json:"assemble"`
	Total    int64 `json:"total"`
}

func millisSince(t time.Time) int64 {
	return time.Since(t).Milliseconds()
}
