package vectorindex

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	chromem "github.com/philippgille/chromem-go"

	"github.com/mkoblar/machdoc/internal/embeddings"
	"github.com/mkoblar/machdoc/internal/model"
)

const collectionName = "content_units"

// Entry is one content unit staged for indexing, carrying a precomputed
// vector from the embedding dispatcher.
type Entry struct {
	UnitID string
	Text   string
	Vector []float32
	Unit   model.ContentUnit
}

// Hit is a scored match from the index. BlendedScore combines the
// normalized vector and lexical scores by the query's alpha.
type Hit struct {
	UnitID       string
	DocID        string
	PageNumber   int
	SectionPath  string
	UnitType     model.UnitType
	Tags         []string
	VectorScore  float64
	LexicalScore float64
	BlendedScore float64
}

// Filter narrows a hybrid query. Zero values mean no restriction; Tags
// requires every listed tag to be present on the unit.
type Filter struct {
	DocID    string
	UnitType model.UnitType
	Tags     []string
}

// Index stores unit vectors and serves hybrid queries over them. It is
// backed by chromem with the lexical half computed over the candidate
// pool at query time.
type Index struct {
	db         *chromem.DB
	collection *chromem.Collection
	embedFunc  chromem.EmbeddingFunc
}

// New creates an empty in-memory index. The embedder is only used when
// chromem needs to embed on its own; normal writes carry vectors.
func New(embedder embeddings.Embedder) (*Index, error) {
	db := chromem.NewDB()
	ef := embeddings.ToChromemFunc(embedder)

	col, err := db.GetOrCreateCollection(collectionName, nil, ef)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	return &Index{db: db, collection: col, embedFunc: ef}, nil
}

// Upsert writes the entries' vectors and metadata to the index.
func (idx *Index) Upsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	docs := make([]chromem.Document, len(entries))
	for i, e := range entries {
		docs[i] = chromem.Document{
			ID:        e.UnitID,
			Content:   e.Text,
			Embedding: e.Vector,
			Metadata:  unitMetadata(e.Unit),
		}
	}

	return idx.collection.AddDocuments(ctx, docs, 1)
}

// DeleteByDoc removes every vector belonging to a document. Used both
// for re-ingestion and to reconcile orphans left by a failed run.
func (idx *Index) DeleteByDoc(ctx context.Context, docID string) error {
	if idx.collection.Count() == 0 {
		return nil
	}
	return idx.collection.Delete(ctx, map[string]string{"doc_id": docID}, nil)
}

// Persist saves the index to dir as a compressed gob snapshot.
func (idx *Index) Persist(dir string) error {
	return idx.db.ExportToFile(dir+"/vectors.gob.gz", true, "")
}

// Load restores the index from a Persist snapshot.
func (idx *Index) Load(dir string) error {
	if err := idx.db.ImportFromFile(dir+"/vectors.gob.gz", ""); err != nil {
		return fmt.Errorf("import from file: %w", err)
	}

	// Re-acquire collection reference after import.
	col := idx.db.GetCollection(collectionName, idx.embedFunc)
	if col == nil {
		return fmt.Errorf("collection %q not found after import", collectionName)
	}
	idx.collection = col
	return nil
}

// Count returns the number of indexed units.
func (idx *Index) Count() int {
	return idx.collection.Count()
}

// unitMetadata flattens a content unit to chromem's string metadata.
func unitMetadata(u model.ContentUnit) map[string]string {
	return map[string]string{
		"doc_id":       u.DocID,
		"page_number":  strconv.Itoa(u.PageNumber),
		"section_path": u.SectionPathString(),
		"unit_type":    string(u.UnitType),
		"tags":         strings.Join(u.Tags, ","),
	}
}

func hitFromResult(r chromem.Result) Hit {
	page, _ := strconv.Atoi(r.Metadata["page_number"])
	var tags []string
	if t := r.Metadata["tags"]; t != "" {
		tags = strings.Split(t, ",")
	}
	return Hit{
		UnitID:      r.ID,
		DocID:       r.Metadata["doc_id"],
		PageNumber:  page,
		SectionPath: r.Metadata["section_path"],
		UnitType:    model.UnitType(r.Metadata["unit_type"]),
		Tags:        tags,
		VectorScore: float64(r.Similarity),
	}
}
