// Package model defines the core entities shared by the ingestion and
// query paths: Document, ImageAsset, and ContentUnit.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// UnitType categorizes a content unit.
type UnitType string

const (
	TextOnly         UnitType = "TEXT_ONLY"
	ImageWithContext UnitType = "IMAGE_WITH_CONTEXT"
)

// Document is one ingested source file. It owns all ImageAssets and
// ContentUnits derived from that file.
type Document struct {
	DocID       string
	Title       string
	FilePath    string
	TotalPages  int
	ContentHash string
	IngestedAt  time.Time
}

// BBox is a page-local bounding box in PDF points.
type BBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// YCenter returns the vertical center of the box.
func (b BBox) YCenter() float64 { return (b.Y1 + b.Y2) / 2 }

// Within reports whether the box lies inside a page of the given size.
func (b BBox) Within(width, height float64) bool {
	return b.X1 >= 0 && b.Y1 >= 0 && b.X2 <= width && b.Y2 <= height && b.X1 <= b.X2 && b.Y1 <= b.Y2
}

// ImageAsset is one image extracted from a document page.
type ImageAsset struct {
	ImageID     string
	DocID       string
	PageNumber  int
	BBox        BBox
	ImagePath   string
	AutoCaption string
	ImageHash   string
}

// ContentUnit is the retrieval atom: a text chunk, or an image fused
// with its associated text.
type ContentUnit struct {
	UnitID      string
	DocID       string
	PageNumber  int
	SectionPath []string
	Text        string
	UnitType    UnitType
	ImageID     string // set iff UnitType == ImageWithContext
	TokenCount  int
	Tags        []string
}

// HasImage reports whether the unit carries an image reference.
func (u *ContentUnit) HasImage() bool {
	return u.UnitType == ImageWithContext && u.ImageID != ""
}

// SectionPathString renders the section path in "A > B > C" form for
// storage and display.
func (u *ContentUnit) SectionPathString() string {
	return strings.Join(u.SectionPath, " > ")
}

// ParseSectionPath is the inverse of SectionPathString.
func ParseSectionPath(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, " > ")
}

// BlockKind distinguishes raw layout block types.
type BlockKind string

const (
	BlockText  BlockKind = "text"
	BlockImage BlockKind = "image"
)

// RawBlock is a transient parsed layout primitive. Blocks arrive in
// reading order; Seq is the position within the document.
type RawBlock struct {
	Kind         BlockKind
	PageNumber   int
	BBox         BBox
	HeadingLevel int // 0 for non-headings, 1-6 for h1-h6
	Text         string
	ImagePath    string
	ImageHash    string
	Seq          int
}

// IsHeading reports whether the block is a section heading.
func (b *RawBlock) IsHeading() bool {
	return b.Kind == BlockText && b.HeadingLevel > 0
}

// DocIDFromHash derives a stable document id from a content hash, so
// re-ingesting identical bytes yields the same id.
func DocIDFromHash(contentHash string) string {
	if len(contentHash) >= 16 {
		return contentHash[:16]
	}
	return contentHash
}

// UnitID derives a deterministic unit id from the owning document and
// the unit's stable position within it. Re-ingesting unchanged content
// reproduces identical ids.
func UnitID(docID string, page, seq int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%d", docID, page, seq)))
	return hex.EncodeToString(sum[:16])
}

// ImageID derives a deterministic image asset id from the owning
// document, the page, and the image's index on that page.
func ImageID(docID string, page, index int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:img:%d:%d", docID, page, index)))
	return hex.EncodeToString(sum[:16])
}
