package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mkoblar/machdoc/internal/embeddings"
	"github.com/mkoblar/machdoc/internal/fuse"
	"github.com/mkoblar/machdoc/internal/metastore"
	"github.com/mkoblar/machdoc/internal/model"
	"github.com/mkoblar/machdoc/internal/vectorindex"
)

type testEmbedder struct {
	failSubstring string
}

func (e *testEmbedder) Name() string    { return "test" }
func (e *testEmbedder) Dimensions() int { return 3 }

func (e *testEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, t := range texts {
		if e.failSubstring != "" && strings.Contains(t, e.failSubstring) {
			return nil, fmt.Errorf("refusing text containing %q", e.failSubstring)
		}
		vecs[i] = []float32{float32(len(t) % 7), 1, 2}
	}
	return vecs, nil
}

type harness struct {
	pipeline *Pipeline
	store    *metastore.Store
	index    *vectorindex.Index
	dataDir  string
}

func newHarness(t *testing.T, embedder embeddings.Embedder) *harness {
	t.Helper()
	store, err := metastore.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	idx, err := vectorindex.New(embedder)
	if err != nil {
		t.Fatalf("vectorindex.New: %v", err)
	}

	dispatcher := embeddings.NewDispatcher(embedder, embeddings.DispatcherConfig{
		BatchSize:   4,
		MaxAttempts: 2,
		BackoffBase: time.Millisecond,
		MaxInFlight: 2,
	})
	builder := fuse.NewBuilder(1, 800, 0, nil)
	dataDir := t.TempDir()

	return &harness{
		pipeline: NewPipeline(dispatcher, store, idx, builder, dataDir, 2),
		store:    store,
		index:    idx,
		dataDir:  dataDir,
	}
}

// writeLayout writes a minimal layout file with a heading, body text,
// a caption and an image the caption sits directly above.
func writeLayout(t *testing.T, dir, name, hash string, withImage bool) string {
	t.Helper()

	blocks := []map[string]any{
		{"kind": "text", "heading_level": 1, "text": "Maintenance",
			"bbox": map[string]float64{"x1": 50, "y1": 40, "x2": 500, "y2": 60}},
		{"kind": "text", "text": "Drain the oil reservoir before removing the pump housing.",
			"bbox": map[string]float64{"x1": 50, "y1": 80, "x2": 500, "y2": 120}},
	}
	if withImage {
		blocks = append(blocks,
			map[string]any{"kind": "text", "text": "Figure 1: pump housing bolts",
				"bbox": map[string]float64{"x1": 50, "y1": 400, "x2": 500, "y2": 415}},
			map[string]any{"kind": "image", "image_path": "images/p1_0.png", "image_hash": "imghash",
				"bbox": map[string]float64{"x1": 50, "y1": 420, "x2": 400, "y2": 600}},
		)
	}

	doc := map[string]any{
		"title":        "Pump Manual",
		"source_path":  "/pdfs/pump.pdf",
		"content_hash": hash,
		"total_pages":  1,
		"pages": []map[string]any{
			{"page_number": 1, "width": 612, "height": 792, "blocks": blocks},
		},
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		t.Fatalf("marshal layout: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write layout: %v", err)
	}
	return path
}

func TestRun_IngestsDocument(t *testing.T) {
	h := newHarness(t, &testEmbedder{})
	dir := t.TempDir()
	path := writeLayout(t, dir, "pump.layout.json", "hash1", true)

	var progressed []DocReport
	h.pipeline.SetProgressFunc(func(done, total int, report DocReport) {
		progressed = append(progressed, report)
	})

	result, err := h.pipeline.Run(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.DocsProcessed != 1 || result.DocsFailed != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(progressed) != 1 || progressed[0].Title != "Pump Manual" || progressed[0].Units == 0 || progressed[0].Failed {
		t.Errorf("unexpected progress reports: %+v", progressed)
	}
	if result.UnitsFailed != 0 {
		t.Errorf("expected no failed units, got %d", result.UnitsFailed)
	}

	ctx := context.Background()
	docID := model.DocIDFromHash("hash1")
	doc, err := h.store.GetDocument(ctx, docID)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if doc.Title != "Pump Manual" {
		t.Errorf("unexpected title %q", doc.Title)
	}

	ids, err := h.store.UnitIDsByDoc(ctx, docID)
	if err != nil {
		t.Fatalf("UnitIDsByDoc: %v", err)
	}
	if len(ids) == 0 {
		t.Fatal("expected stored units")
	}
	if h.index.Count() != len(ids) {
		t.Errorf("index has %d vectors for %d stored units", h.index.Count(), len(ids))
	}

	var imageUnits int
	for _, id := range ids {
		u, err := h.store.GetUnit(ctx, id)
		if err != nil {
			t.Fatalf("GetUnit: %v", err)
		}
		if u.UnitType == model.ImageWithContext {
			imageUnits++
			if u.ImageID == "" {
				t.Error("image unit missing image id")
			}
			if _, err := h.store.GetImage(ctx, u.ImageID); err != nil {
				t.Errorf("image asset for unit not stored: %v", err)
			}
		}
	}
	if imageUnits != 1 {
		t.Errorf("expected 1 image unit, got %d", imageUnits)
	}

	// The vector snapshot and state file land in the data dir.
	if _, err := os.Stat(filepath.Join(h.dataDir, "vectors.gob.gz")); err != nil {
		t.Errorf("vector snapshot not persisted: %v", err)
	}
	if _, err := os.Stat(filepath.Join(h.dataDir, "ingest_state.json")); err != nil {
		t.Errorf("ingest state not persisted: %v", err)
	}
}

func TestRun_SkipsUnchangedDocument(t *testing.T) {
	h := newHarness(t, &testEmbedder{})
	dir := t.TempDir()
	path := writeLayout(t, dir, "pump.layout.json", "hash1", true)

	if _, err := h.pipeline.Run(context.Background(), []string{path}); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	result, err := h.pipeline.Run(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if result.DocsSkipped != 1 || result.DocsProcessed != 0 {
		t.Errorf("expected skip on unchanged hash: %+v", result)
	}
}

func TestRun_ReingestReplacesDocument(t *testing.T) {
	h := newHarness(t, &testEmbedder{})
	dir := t.TempDir()
	path := writeLayout(t, dir, "pump.layout.json", "hash1", true)

	ctx := context.Background()
	if _, err := h.pipeline.Run(ctx, []string{path}); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	docID := model.DocIDFromHash("hash1")

	// Same document revised: the image page was dropped.
	writeLayout(t, dir, "pump.layout.json", "hash2", false)
	result, err := h.pipeline.Run(ctx, []string{path})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if result.DocsProcessed != 1 {
		t.Fatalf("revised document should be reprocessed: %+v", result)
	}

	newDocID := model.DocIDFromHash("hash2")
	newIDs, err := h.store.UnitIDsByDoc(ctx, newDocID)
	if err != nil {
		t.Fatalf("UnitIDsByDoc: %v", err)
	}
	if len(newIDs) == 0 {
		t.Fatal("revised document has no units")
	}

	// The revision carries a new doc id, so the old document's rows and
	// vectors must be gone entirely.
	if _, err := h.store.GetDocument(ctx, docID); err == nil {
		t.Error("old document rows should be replaced")
	}

	total, err := h.store.CountUnits(ctx)
	if err != nil {
		t.Fatalf("CountUnits: %v", err)
	}
	if h.index.Count() != total {
		t.Errorf("index/store drift after re-ingest: %d vectors, %d rows", h.index.Count(), total)
	}
	for _, id := range newIDs {
		u, err := h.store.GetUnit(ctx, id)
		if err != nil {
			t.Fatalf("GetUnit: %v", err)
		}
		if u.UnitType == model.ImageWithContext {
			t.Error("image unit should be gone after image removal")
		}
	}
}

func TestRun_EmbedFailureIsIsolatedAndRetried(t *testing.T) {
	embedder := &testEmbedder{failSubstring: "reservoir"}
	h := newHarness(t, embedder)
	dir := t.TempDir()
	path := writeLayout(t, dir, "pump.layout.json", "hash1", true)

	ctx := context.Background()
	result, err := h.pipeline.Run(ctx, []string{path})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.DocsProcessed != 1 {
		t.Fatalf("document with one bad unit should still land: %+v", result)
	}
	if result.UnitsFailed != 1 {
		t.Fatalf("expected 1 failed unit, got %d", result.UnitsFailed)
	}

	// Failed unit excluded from both stores.
	docID := model.DocIDFromHash("hash1")
	ids, err := h.store.UnitIDsByDoc(ctx, docID)
	if err != nil {
		t.Fatalf("UnitIDsByDoc: %v", err)
	}
	for _, id := range ids {
		u, err := h.store.GetUnit(ctx, id)
		if err != nil {
			t.Fatalf("GetUnit: %v", err)
		}
		if strings.Contains(u.Text, "reservoir") {
			t.Error("failed unit should not be persisted")
		}
	}
	if h.index.Count() != len(ids) {
		t.Errorf("index/store drift: %d vectors, %d rows", h.index.Count(), len(ids))
	}

	// The incomplete document is retried on the next run even though
	// its hash is unchanged.
	state, err := LoadState(h.dataDir)
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if !state.NeedsIngest(path, "hash1") {
		t.Error("document with failed units should need re-ingestion")
	}

	embedder.failSubstring = ""
	result2, err := h.pipeline.Run(ctx, []string{path})
	if err != nil {
		t.Fatalf("retry Run: %v", err)
	}
	if result2.DocsProcessed != 1 || result2.UnitsFailed != 0 {
		t.Fatalf("retry should complete the document: %+v", result2)
	}
	state, err = LoadState(h.dataDir)
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if state.NeedsIngest(path, "hash1") {
		t.Error("completed document should not need re-ingestion")
	}
}

func TestState_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := LoadState(dir)
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	s.RecordSuccess("/a.layout.json", "h1")
	s.RecordPartial("/b.layout.json", "h2", []string{"u9"})
	if err := s.Save(dir); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := LoadState(dir)
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if loaded.NeedsIngest("/a.layout.json", "h1") {
		t.Error("unchanged complete document should not need ingest")
	}
	if !loaded.NeedsIngest("/a.layout.json", "h1-changed") {
		t.Error("changed hash should need ingest")
	}
	if !loaded.NeedsIngest("/b.layout.json", "h2") {
		t.Error("document with failed units should need ingest")
	}
	if !loaded.NeedsIngest("/new.layout.json", "h3") {
		t.Error("unseen document should need ingest")
	}
}
