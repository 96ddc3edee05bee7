package query

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/mkoblar/machdoc/internal/metastore"
	"github.com/mkoblar/machdoc/internal/model"
	"github.com/mkoblar/machdoc/internal/rerank"
	"github.com/mkoblar/machdoc/internal/vectorindex"
)

// Options configures the orchestrator's defaults. Requests may override
// top_k and alpha per call.
type Options struct {
	Alpha           float64
	TopK            int
	OverfetchFactor int
	RerankPoolFloor int
	RerankWeight    float64
	SearchTimeout   time.Duration
	RerankTimeout   time.Duration
}

// Embedder is the slice of the embeddings dispatcher the orchestrator
// needs for query-time vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// assembleMargin is how many extra hits to fetch beyond top_k so that
// hits dropped as stale during assembly do not shrink the response.
const assembleMargin = 5

// Orchestrator runs requests through embed, search, rerank and assemble.
type Orchestrator struct {
	embedder Embedder
	index    *vectorindex.Index
	store    *metastore.Store
	reranker rerank.Reranker
	opts     Options
}

// New creates an orchestrator. reranker may be nil to disable reranking.
func New(embedder Embedder, index *vectorindex.Index, store *metastore.Store, reranker rerank.Reranker, opts Options) *Orchestrator {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.OverfetchFactor <= 0 {
		opts.OverfetchFactor = 3
	}
	if opts.RerankPoolFloor <= 0 {
		opts.RerankPoolFloor = 20
	}
	return &Orchestrator{
		embedder: embedder,
		index:    index,
		store:    store,
		reranker: reranker,
		opts:     opts,
	}
}

// Run executes one retrieval request end to end. A rerank failure does
// not fail the request: the response degrades to blended ordering and
// says so.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp := &Response{}

	topK := req.TopK
	if topK <= 0 {
		topK = o.opts.TopK
	}
	alpha := o.opts.Alpha
	if req.Alpha != nil {
		alpha = *req.Alpha
	}
	filter := vectorindex.Filter{
		DocID:    req.DocID,
		UnitType: model.UnitType(req.UnitType),
		Tags:     req.Tags,
	}

	useRerank := o.reranker != nil && (req.Rerank == nil || *req.Rerank)

	embedStart := time.Now()
	queryVector, err := o.embedQuery(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	resp.Timing.Embed = millisSince(embedStart)

	// When reranking, pull a larger pool so the reranker has room to
	// promote results the blended ordering buried. Without reranking a
	// small margin still keeps the response at top_k when assembly
	// drops stale hits.
	fetchK := topK + assembleMargin
	if useRerank {
		fetchK = topK * o.opts.OverfetchFactor
		if fetchK < o.opts.RerankPoolFloor {
			fetchK = o.opts.RerankPoolFloor
		}
	}

	searchStart := time.Now()
	hits, err := o.search(ctx, req.Query, queryVector, alpha, fetchK, filter)
	if err != nil {
		return nil, fmt.Errorf("hybrid search: %w", err)
	}
	resp.Timing.Search = millisSince(searchStart)

	if len(hits) == 0 {
		resp.Results = []Result{}
		resp.Timing.Total = millisSince(start)
		return resp, nil
	}

	assembleStart := time.Now()
	results, err := o.assemble(ctx, hits)
	if err != nil {
		return nil, fmt.Errorf("assembling results: %w", err)
	}
	resp.Timing.Assemble = millisSince(assembleStart)

	if useRerank {
		rerankStart := time.Now()
		reranked, err := o.applyRerank(ctx, req.Query, results)
		resp.Timing.Rerank = millisSince(rerankStart)
		if err != nil {
			log.Printf("rerank failed, returning blended ordering: %v", err)
			resp.Degraded = true
		} else {
			results = reranked
			resp.Reranked = true
		}
	}

	sortResults(results)
	if len(results) > topK {
		results = results[:topK]
	}
	resp.Results = results
	resp.Timing.Total = millisSince(start)
	return resp, nil
}

func (o *Orchestrator) embedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := o.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("expected 1 query vector, got %d", len(vecs))
	}
	return vecs[0], nil
}

func (o *Orchestrator) search(ctx context.Context, queryText string, queryVector []float32, alpha float64, limit int, filter vectorindex.Filter) ([]vectorindex.Hit, error) {
	if o.opts.SearchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.SearchTimeout)
		defer cancel()
	}
	return o.index.HybridQuery(ctx, queryText, queryVector, alpha, limit, filter)
}

// assemble joins hits with their stored units. A hit whose unit is no
// longer in the store points at a stale vector; it is dropped with a
// warning rather than surfaced half-empty.
func (o *Orchestrator) assemble(ctx context.Context, hits []vectorindex.Hit) ([]Result, error) {
	docs := make(map[string]*model.Document)

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		unit, err := o.store.GetUnit(ctx, h.UnitID)
		if err == metastore.ErrNotFound {
			log.Printf("index/store drift: unit %s has a vector but no metadata row, dropping", h.UnitID)
			continue
		}
		if err != nil {
			return nil, err
		}

		doc, ok := docs[unit.DocID]
		if !ok {
			doc, err = o.store.GetDocument(ctx, unit.DocID)
			if err == metastore.ErrNotFound {
				log.Printf("index/store drift: unit %s references missing document %s, dropping", h.UnitID, unit.DocID)
				continue
			}
			if err != nil {
				return nil, err
			}
			docs[unit.DocID] = doc
		}

		results = append(results, Result{
			Unit: *unit,
			Scores: Scores{
				Vector:   h.VectorScore,
				Lexical:  h.LexicalScore,
				Blended:  h.BlendedScore,
				Combined: h.BlendedScore,
			},
			Provenance: Provenance{
				DocID:       doc.DocID,
				Title:       doc.Title,
				FilePath:    doc.FilePath,
				PageNumber:  unit.PageNumber,
				SectionPath: unit.SectionPathString(),
			},
		})
	}
	return results, nil
}

// applyRerank rescores the assembled pool. The combined score mixes the
// rerank score with the blended score so a confident lexical+vector
// match is not discarded on the reranker's word alone.
func (o *Orchestrator) applyRerank(ctx context.Context, queryText string, results []Result) ([]Result, error) {
	if o.opts.RerankTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.RerankTimeout)
		defer cancel()
	}

	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Unit.Text
	}

	scores, err := o.reranker.Rerank(ctx, queryText, texts)
	if err != nil {
		return nil, err
	}
	if len(scores) != len(results) {
		return nil, fmt.Errorf("reranker returned %d scores for %d documents", len(scores), len(results))
	}

	w := o.opts.RerankWeight
	out := make([]Result, len(results))
	copy(out, results)
	for i := range out {
		s := scores[i]
		out[i].Scores.Rerank = &s
		out[i].Scores.Combined = w*s + (1-w)*out[i].Scores.Blended
	}
	return out, nil
}

// sortResults orders by combined score with a deterministic tie-break
// on page, section path, then unit id.
func sortResults(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Scores.Combined != b.Scores.Combined {
			return a.Scores.Combined > b.Scores.Combined
		}
		if a.Unit.PageNumber != b.Unit.PageNumber {
			return a.Unit.PageNumber < b.Unit.PageNumber
		}
		ap, bp := a.Unit.SectionPathString(), b.Unit.SectionPathString()
		if ap != bp {
			return ap < bp
		}
		return a.Unit.UnitID < b.Unit.UnitID
	})
}
