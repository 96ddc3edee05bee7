package metastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mkoblar/machdoc/internal/model"
)

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = errors.New("not found")

// GetDocument returns the document with the given id.
func (s *Store) GetDocument(ctx context.Context, docID string) (*model.Document, error) {
	row := s.QueryRowContext(ctx,
		`SELECT doc_id, title, file_path, total_pages, content_hash, ingested_at
		 FROM documents WHERE doc_id = ?`, docID)
	return scanDocument(row)
}

// GetDocumentByPath returns the document ingested from the given file path.
func (s *Store) GetDocumentByPath(ctx context.Context, path string) (*model.Document, error) {
	row := s.QueryRowContext(ctx,
		`SELECT doc_id, title, file_path, total_pages, content_hash, ingested_at
		 FROM documents WHERE file_path = ?`, path)
	return scanDocument(row)
}

// ListDocuments returns all documents ordered by title.
func (s *Store) ListDocuments(ctx context.Context) ([]model.Document, error) {
	rows, err := s.QueryContext(ctx,
		`SELECT doc_id, title, file_path, total_pages, content_hash, ingested_at
		 FROM documents ORDER BY title`)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// GetUnit returns a single content unit by id.
func (s *Store) GetUnit(ctx context.Context, unitID string) (*model.ContentUnit, error) {
	row := s.QueryRowContext(ctx, selectUnit+` WHERE unit_id = ?`, unitID)
	return scanUnit(row)
}

// UnitsByIDs returns the units for the given ids, preserving the input
// order. Ids with no matching unit are silently absent from the result;
// the caller detects the drift by comparing lengths.
func (s *Store) UnitsByIDs(ctx context.Context, unitIDs []string) ([]model.ContentUnit, error) {
	units := make([]model.ContentUnit, 0, len(unitIDs))
	for _, id := range unitIDs {
		u, err := s.GetUnit(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		units = append(units, *u)
	}
	return units, nil
}

// GetImage returns an image asset by id.
func (s *Store) GetImage(ctx context.Context, imageID string) (*model.ImageAsset, error) {
	row := s.QueryRowContext(ctx,
		`SELECT image_id, doc_id, page_number, bbox_x1, bbox_y1, bbox_x2, bbox_y2,
		        image_path, auto_caption, image_hash
		 FROM image_assets WHERE image_id = ?`, imageID)

	var img model.ImageAsset
	err := row.Scan(&img.ImageID, &img.DocID, &img.PageNumber,
		&img.BBox.X1, &img.BBox.Y1, &img.BBox.X2, &img.BBox.Y2,
		&img.ImagePath, &img.AutoCaption, &img.ImageHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning image asset: %w", err)
	}
	return &img, nil
}

// SectionUnits returns every unit that shares the given unit's document
// and section path, in page then id order. This reconstructs the full
// section a search hit came from.
func (s *Store) SectionUnits(ctx context.Context, unitID string) ([]model.ContentUnit, error) {
	anchor, err := s.GetUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}

	rows, err := s.QueryContext(ctx,
		selectUnit+` WHERE doc_id = ? AND section_path = ? ORDER BY page_number, unit_id`,
		anchor.DocID, anchor.SectionPathString())
	if err != nil {
		return nil, fmt.Errorf("querying section units: %w", err)
	}
	defer rows.Close()

	var units []model.ContentUnit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		units = append(units, *u)
	}
	return units, rows.Err()
}

// UnitIDsByDoc returns the ids of every unit belonging to a document.
func (s *Store) UnitIDsByDoc(ctx context.Context, docID string) ([]string, error) {
	rows, err := s.QueryContext(ctx,
		`SELECT unit_id FROM content_units WHERE doc_id = ?`, docID)
	if err != nil {
		return nil, fmt.Errorf("querying unit ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountUnits returns the number of stored content units.
func (s *Store) CountUnits(ctx context.Context) (int, error) {
	var n int
	err := s.QueryRowContext(ctx, `SELECT COUNT(*) FROM content_units`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting units: %w", err)
	}
	return n, nil
}

const selectUnit = `SELECT unit_id, doc_id, page_number, section_path, text,
       unit_type, image_id, token_count, tags
  FROM content_units`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*model.Document, error) {
	var doc model.Document
	var ingestedAt string
	err := row.Scan(&doc.DocID, &doc.Title, &doc.FilePath, &doc.TotalPages,
		&doc.ContentHash, &ingestedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	if t, perr := time.Parse("2006-01-02 15:04:05", ingestedAt); perr == nil {
		doc.IngestedAt = t
	} else if t, perr := time.Parse(time.RFC3339, ingestedAt); perr == nil {
		doc.IngestedAt = t
	}
	return &doc, nil
}

func scanUnit(row rowScanner) (*model.ContentUnit, error) {
	var u model.ContentUnit
	var sectionPath, tags string
	var imageID sql.NullString
	err := row.Scan(&u.UnitID, &u.DocID, &u.PageNumber, &sectionPath, &u.Text,
		&u.UnitType, &imageID, &u.TokenCount, &tags)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning content unit: %w", err)
	}
	u.SectionPath = model.ParseSectionPath(sectionPath)
	u.ImageID = imageID.String
	if err := json.Unmarshal([]byte(tags), &u.Tags); err != nil {
		return nil, fmt.Errorf("decoding unit tags: %w", err)
	}
	return &u, nil
}
