package vectorindex

import (
	"context"
	"testing"

	"github.com/mkoblar/machdoc/internal/model"
)

// fixedEmbedder satisfies the embedder interface but is never exercised
// because every write carries a precomputed vector.
type fixedEmbedder struct{}

func (fixedEmbedder) Name() string    { return "fixed" }
func (fixedEmbedder) Dimensions() int { return 3 }
func (fixedEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i := range texts {
		vecs[i] = []float32{1, 0, 0}
	}
	return vecs, nil
}

func testIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := New(fixedEmbedder{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return idx
}

func unit(id, docID string, page int, section, text string, tags ...string) model.ContentUnit {
	return model.ContentUnit{
		UnitID:      id,
		DocID:       docID,
		PageNumber:  page,
		SectionPath: model.ParseSectionPath(section),
		Text:        text,
		UnitType:    model.TextOnly,
		Tags:        tags,
	}
}

func seedIndex(t *testing.T, idx *Index) {
	t.Helper()
	entries := []Entry{
		{
			UnitID: "u1",
			Text:   "hydraulic pump maintenance schedule and oil change intervals",
			Vector: []float32{1, 0, 0},
			Unit:   unit("u1", "doc1", 3, "Maintenance", "hydraulic pump maintenance schedule and oil change intervals", "procedure"),
		},
		{
			UnitID: "u2",
			Text:   "conveyor belt alignment adjustment",
			Vector: []float32{0.9, 0.4359, 0},
			Unit:   unit("u2", "doc1", 7, "Conveyor", "conveyor belt alignment adjustment"),
		},
		{
			UnitID: "u3",
			Text:   "emergency stop button locations and safety interlocks",
			Vector: []float32{0, 1, 0},
			Unit:   unit("u3", "doc2", 1, "Safety", "emergency stop button locations and safety interlocks", "safety"),
		},
	}
	if err := idx.Upsert(context.Background(), entries); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
}

func TestUpsertAndCount(t *testing.T) {
	idx := testIndex(t)
	seedIndex(t, idx)
	if idx.Count() != 3 {
		t.Errorf("expected 3 units, got %d", idx.Count())
	}
}

func TestHybridQuery_PureVector(t *testing.T) {
	idx := testIndex(t)
	seedIndex(t, idx)

	hits, err := idx.HybridQuery(context.Background(), "anything", []float32{1, 0, 0}, 1.0, 3, Filter{})
	if err != nil {
		t.Fatalf("HybridQuery: %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(hits))
	}
	if hits[0].UnitID != "u1" {
		t.Errorf("expected u1 first at alpha=1, got %s", hits[0].UnitID)
	}
	if hits[2].UnitID != "u3" {
		t.Errorf("expected u3 last at alpha=1, got %s", hits[2].UnitID)
	}
}

func TestHybridQuery_PureLexical(t *testing.T) {
	idx := testIndex(t)
	seedIndex(t, idx)

	// Query text matches u3 strongly; its vector is orthogonal to the
	// query vector, so alpha=0 must still rank it first.
	hits, err := idx.HybridQuery(context.Background(), "emergency stop safety interlocks", []float32{1, 0, 0}, 0.0, 3, Filter{})
	if err != nil {
		t.Fatalf("HybridQuery: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("expected hits")
	}
	if hits[0].UnitID != "u3" {
		t.Errorf("expected u3 first at alpha=0, got %s", hits[0].UnitID)
	}
	if hits[0].LexicalScore != 1.0 {
		t.Errorf("top lexical hit should normalize to 1, got %v", hits[0].LexicalScore)
	}
}

func TestHybridQuery_AlphaBlends(t *testing.T) {
	idx := testIndex(t)
	seedIndex(t, idx)

	// u3 wins lexically, u1 wins on vectors. Mid alpha keeps both in
	// the result with nonzero blended scores.
	hits, err := idx.HybridQuery(context.Background(), "emergency stop safety", []float32{1, 0, 0}, 0.5, 3, Filter{})
	if err != nil {
		t.Fatalf("HybridQuery: %v", err)
	}
	scores := map[string]float64{}
	for _, h := range hits {
		scores[h.UnitID] = h.BlendedScore
	}
	if scores["u1"] == 0 || scores["u3"] == 0 {
		t.Errorf("both leaders should carry score at alpha=0.5: %v", scores)
	}
}

func TestHybridQuery_DocFilter(t *testing.T) {
	idx := testIndex(t)
	seedIndex(t, idx)

	hits, err := idx.HybridQuery(context.Background(), "maintenance", []float32{1, 0, 0}, 0.5, 10, Filter{DocID: "doc1"})
	if err != nil {
		t.Fatalf("HybridQuery: %v", err)
	}
	for _, h := range hits {
		if h.DocID != "doc1" {
			t.Errorf("filter leaked doc %s", h.DocID)
		}
	}
	if len(hits) != 2 {
		t.Errorf("expected 2 hits from doc1, got %d", len(hits))
	}
}

func TestHybridQuery_TagFilter(t *testing.T) {
	idx := testIndex(t)
	seedIndex(t, idx)

	hits, err := idx.HybridQuery(context.Background(), "stop", []float32{0, 1, 0}, 0.5, 10, Filter{Tags: []string{"safety"}})
	if err != nil {
		t.Fatalf("HybridQuery: %v", err)
	}
	if len(hits) != 1 || hits[0].UnitID != "u3" {
		t.Fatalf("expected only u3, got %+v", hits)
	}
}

func TestHybridQuery_EmptyIndex(t *testing.T) {
	idx := testIndex(t)
	hits, err := idx.HybridQuery(context.Background(), "anything", []float32{1, 0, 0}, 0.5, 5, Filter{})
	if err != nil {
		t.Fatalf("HybridQuery: %v", err)
	}
	if hits != nil {
		t.Errorf("expected nil hits on empty index, got %v", hits)
	}
}

func TestHybridQuery_RejectsBadAlpha(t *testing.T) {
	idx := testIndex(t)
	seedIndex(t, idx)
	if _, err := idx.HybridQuery(context.Background(), "q", []float32{1, 0, 0}, 1.5, 5, Filter{}); err == nil {
		t.Error("expected error for alpha > 1")
	}
}

func TestDeleteByDoc(t *testing.T) {
	idx := testIndex(t)
	seedIndex(t, idx)

	if err := idx.DeleteByDoc(context.Background(), "doc1"); err != nil {
		t.Fatalf("DeleteByDoc: %v", err)
	}
	if idx.Count() != 1 {
		t.Errorf("expected 1 unit after delete, got %d", idx.Count())
	}

	hits, err := idx.HybridQuery(context.Background(), "maintenance", []float32{1, 0, 0}, 1.0, 1, Filter{})
	if err != nil {
		t.Fatalf("HybridQuery: %v", err)
	}
	if len(hits) != 1 || hits[0].DocID != "doc2" {
		t.Errorf("only doc2 should remain, got %+v", hits)
	}
}

func TestPersistAndLoad(t *testing.T) {
	idx := testIndex(t)
	seedIndex(t, idx)

	dir := t.TempDir()
	if err := idx.Persist(dir); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	restored := testIndex(t)
	if err := restored.Load(dir); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if restored.Count() != 3 {
		t.Errorf("expected 3 units after load, got %d", restored.Count())
	}
}

func TestLexicalScores(t *testing.T) {
	texts := []string{
		"replace the hydraulic filter",
		"hydraulic hydraulic hydraulic system overview",
		"electrical wiring diagram",
	}
	scores := lexicalScores("hydraulic filter", texts)
	if scores[0] <= scores[2] {
		t.Errorf("matching text should outscore non-matching: %v", scores)
	}
	if scores[2] != 0 {
		t.Errorf("no-overlap text should score 0, got %v", scores[2])
	}
}

func TestNormalize(t *testing.T) {
	out := normalize([]float64{2, 4, 6})
	if out[0] != 0 || out[2] != 1 {
		t.Errorf("min-max endpoints wrong: %v", out)
	}
	flat := normalize([]float64{3, 3, 3})
	for _, v := range flat {
		if v != 0 {
			t.Errorf("no-spread pool should be zeros, got %v", flat)
		}
	}
}
