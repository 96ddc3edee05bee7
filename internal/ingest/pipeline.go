// Package ingest runs layout files through fusion, embedding and the two
// stores. Each document lands atomically: its metadata rows commit only
// after its vectors are written, and re-ingestion replaces everything
// the previous run left behind.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mkoblar/machdoc/internal/embeddings"
	"github.com/mkoblar/machdoc/internal/fuse"
	"github.com/mkoblar/machdoc/internal/layout"
	"github.com/mkoblar/machdoc/internal/metastore"
	"github.com/mkoblar/machdoc/internal/model"
	"github.com/mkoblar/machdoc/internal/vectorindex"
)

// Pipeline orchestrates the full ingestion workflow:
// load -> fuse -> embed -> persist -> index.
type Pipeline struct {
	dispatcher *embeddings.Dispatcher
	store      *metastore.Store
	index      *vectorindex.Index
	builder    *fuse.Builder
	dataDir    string
	workers    int
	onProgress ProgressFunc
}

// NewPipeline creates a Pipeline writing to the given stores.
func NewPipeline(dispatcher *embeddings.Dispatcher, store *metastore.Store, index *vectorindex.Index, builder *fuse.Builder, dataDir string, workers int) *Pipeline {
	if workers < 1 {
		workers = 1
	}
	return &Pipeline{
		dispatcher: dispatcher,
		store:      store,
		index:      index,
		builder:    builder,
		dataDir:    dataDir,
		workers:    workers,
	}
}

// SetProgressFunc sets the progress callback.
func (p *Pipeline) SetProgressFunc(fn ProgressFunc) {
	p.onProgress = fn
}

// Run ingests the given layout files, skipping documents whose content
// hash is unchanged since the last complete run.
func (p *Pipeline) Run(ctx context.Context, files []string) (*RunResult, error) {
	start := time.Now()
	result := &RunResult{RunID: uuid.NewString()}

	state, err := LoadState(p.dataDir)
	if err != nil {
		return nil, fmt.Errorf("load ingest state: %w", err)
	}

	total := len(files)
	sem := make(chan struct{}, p.workers)
	var mu sync.Mutex
	var processed int64
	var wg sync.WaitGroup

	for _, file := range files {
		select {
		case <-ctx.Done():
			mu.Lock()
			result.Errors = append(result.Errors, ctx.Err())
			mu.Unlock()
			continue
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			defer func() { <-sem }()

			report, err := p.ingestFile(ctx, state, &mu, path)

			mu.Lock()
			if err != nil {
				result.Errors = append(result.Errors, fmt.Errorf("ingest %s: %w", path, err))
				result.DocsFailed++
			} else if report.Skipped {
				result.DocsSkipped++
				result.Reports = append(result.Reports, *report)
			} else {
				result.DocsProcessed++
				result.UnitsIndexed += report.Units - len(report.FailedUnits)
				result.UnitsFailed += len(report.FailedUnits)
				result.Reports = append(result.Reports, *report)
			}
			mu.Unlock()

			count := atomic.AddInt64(&processed, 1)
			if p.onProgress != nil {
				ev := DocReport{FilePath: path, Failed: true}
				if report != nil {
					ev = *report
					ev.Failed = err != nil
				}
				p.onProgress(int(count), total, ev)
			}
		}(file)
	}

	wg.Wait()

	if err := p.index.Persist(p.dataDir); err != nil {
		return result, fmt.Errorf("persist vector index: %w", err)
	}
	if err := state.Save(p.dataDir); err != nil {
		return result, fmt.Errorf("save ingest state: %w", err)
	}

	result.Duration = time.Since(start)
	return result, nil
}

// ingestFile processes one layout file. stateMu guards the shared state
// map; everything else is per-document.
func (p *Pipeline) ingestFile(ctx context.Context, state *State, stateMu *sync.Mutex, path string) (*DocReport, error) {
	doc, blocks, err := layout.LoadFile(path)
	if err != nil {
		return nil, err
	}

	stateMu.Lock()
	needed := state.NeedsIngest(path, doc.ContentHash)
	stateMu.Unlock()
	if !needed {
		return &DocReport{DocID: doc.DocID, Title: doc.Title, FilePath: path, Skipped: true}, nil
	}

	units, images := p.builder.Build(doc.DocID, blocks)

	texts := make([]string, len(units))
	for i, u := range units {
		texts[i] = u.Text
	}
	vectors, failed, err := p.dispatcher.EmbedAll(ctx, texts)
	if err != nil {
		return nil, err
	}

	// Units without a vector are excluded from this run; the state file
	// remembers them so the document is retried next time.
	var failedIDs []string
	for _, f := range failed {
		failedIDs = append(failedIDs, units[f.Index].UnitID)
	}

	var indexed []model.ContentUnit
	var entries []vectorindex.Entry
	for i, u := range units {
		if vectors[i] == nil {
			continue
		}
		indexed = append(indexed, u)
		entries = append(entries, vectorindex.Entry{
			UnitID: u.UnitID,
			Text:   u.Text,
			Vector: vectors[i],
			Unit:   u,
		})
	}

	if err := p.persistDocument(ctx, doc, path, images, indexed, entries); err != nil {
		return nil, err
	}

	stateMu.Lock()
	if len(failedIDs) > 0 {
		state.RecordPartial(path, doc.ContentHash, failedIDs)
	} else {
		state.RecordSuccess(path, doc.ContentHash)
	}
	stateMu.Unlock()

	return &DocReport{
		DocID:       doc.DocID,
		Title:       doc.Title,
		FilePath:    path,
		Units:       len(units),
		Images:      len(images),
		FailedUnits: failedIDs,
	}, nil
}

// persistDocument lands one document in both stores. The metadata
// transaction stays open across the vector writes and commits last, so
// a vector-side failure rolls the document back to its previous state.
// Vectors written before such a failure are orphans; DeleteByDoc at the
// start of the next attempt reconciles them.
func (p *Pipeline) persistDocument(ctx context.Context, doc *layout.ParsedDocument, path string, images []model.ImageAsset, units []model.ContentUnit, entries []vectorindex.Entry) error {
	// A revision changes the content hash and with it the doc id, so
	// the predecessor's vectors are keyed under a different id.
	if prev, err := p.store.GetDocumentByPath(ctx, path); err == nil && prev.DocID != doc.DocID {
		if err := p.index.DeleteByDoc(ctx, prev.DocID); err != nil {
			return fmt.Errorf("clearing superseded vectors: %w", err)
		}
	} else if err != nil && !errors.Is(err, metastore.ErrNotFound) {
		return err
	}

	replace, err := p.store.BeginReplace(ctx, doc.DocID, path)
	if err != nil {
		return err
	}
	defer replace.Rollback()

	err = replace.StageDocument(ctx, model.Document{
		DocID:       doc.DocID,
		Title:       doc.Title,
		FilePath:    path,
		TotalPages:  doc.TotalPages,
		ContentHash: doc.ContentHash,
	})
	if err != nil {
		return err
	}
	if err := replace.StageImages(ctx, images); err != nil {
		return err
	}
	if err := replace.StageUnits(ctx, units); err != nil {
		return err
	}

	if err := p.index.DeleteByDoc(ctx, doc.DocID); err != nil {
		return fmt.Errorf("clearing previous vectors: %w", err)
	}
	if err := p.index.Upsert(ctx, entries); err != nil {
		return fmt.Errorf("writing vectors: %w", err)
	}

	return replace.Commit()
}
