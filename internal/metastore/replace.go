package metastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/mkoblar/machdoc/internal/model"
)

// Replace is a staged replacement of one document's rows. All writes go
// through a single transaction held open while vectors are written
// elsewhere; only Commit makes any of it visible. Re-ingesting a document
// therefore either fully lands or leaves the previous state intact.
type Replace struct {
	tx    *sql.Tx
	docID string
	done  bool
}

// BeginReplace deletes the document's previous rows inside a new
// transaction and returns a handle for staging the replacement. Rows
// from an earlier revision ingested under the same file path are
// cleared too, since a content change gives the document a new id.
func (s *Store) BeginReplace(ctx context.Context, docID, filePath string) (*Replace, error) {
	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning replace transaction: %w", err)
	}

	// Cascades to content_units and image_assets.
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE doc_id = ? OR file_path = ?`, docID, filePath); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("clearing previous document rows: %w", err)
	}

	return &Replace{tx: tx, docID: docID}, nil
}

// StageDocument stages the document row.
func (r *Replace) StageDocument(ctx context.Context, doc model.Document) error {
	_, err := r.tx.ExecContext(ctx,
		`INSERT INTO documents (doc_id, title, file_path, total_pages, content_hash)
		 VALUES (?, ?, ?, ?, ?)`,
		doc.DocID, doc.Title, doc.FilePath, doc.TotalPages, doc.ContentHash)
	if err != nil {
		return fmt.Errorf("staging document %s: %w", doc.DocID, err)
	}
	return nil
}

// StageImages stages the document's image assets. Must run before
// StageUnits so unit image references resolve.
func (r *Replace) StageImages(ctx context.Context, images []model.ImageAsset) error {
	for _, img := range images {
		_, err := r.tx.ExecContext(ctx,
			`INSERT INTO image_assets (image_id, doc_id, page_number,
			     bbox_x1, bbox_y1, bbox_x2, bbox_y2, image_path, auto_caption, image_hash)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			img.ImageID, img.DocID, img.PageNumber,
			img.BBox.X1, img.BBox.Y1, img.BBox.X2, img.BBox.Y2,
			img.ImagePath, img.AutoCaption, img.ImageHash)
		if err != nil {
			return fmt.Errorf("staging image %s: %w", img.ImageID, err)
		}
	}
	return nil
}

// StageUnits stages the document's content units.
func (r *Replace) StageUnits(ctx context.Context, units []model.ContentUnit) error {
	stmt, err := r.tx.PrepareContext(ctx,
		`INSERT INTO content_units (unit_id, doc_id, page_number, section_path,
		     text, unit_type, image_id, token_count, tags)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing unit insert: %w", err)
	}
	defer stmt.Close()

	for _, u := range units {
		tags, err := json.Marshal(u.Tags)
		if err != nil {
			return fmt.Errorf("encoding tags for unit %s: %w", u.UnitID, err)
		}
		var imageID any
		if u.ImageID != "" {
			imageID = u.ImageID
		}
		_, err = stmt.ExecContext(ctx,
			u.UnitID, u.DocID, u.PageNumber, u.SectionPathString(),
			u.Text, string(u.UnitType), imageID, u.TokenCount, string(tags))
		if err != nil {
			return fmt.Errorf("staging unit %s: %w", u.UnitID, err)
		}
	}
	return nil
}

// Commit makes the staged replacement visible.
func (r *Replace) Commit() error {
	if r.done {
		return nil
	}
	r.done = true
	if err := r.tx.Commit(); err != nil {
		return fmt.Errorf("committing replace for %s: %w", r.docID, err)
	}
	return nil
}

// Rollback discards the staged replacement. Safe to call after Commit.
func (r *Replace) Rollback() error {
	if r.done {
		return nil
	}
	r.done = true
	return r.tx.Rollback()
}
