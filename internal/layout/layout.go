// Package layout converts raw parser output into typed, ordered blocks.
//
// The byte-level PDF parsing happens outside this system; the parser
// emits one <name>.layout.json file per document containing pages of
// text and image blocks with positions. This package normalizes that
// output into model.RawBlock sequences in reading order.
package layout

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mkoblar/machdoc/internal/model"
)

// ParsedDocument is the decoded form of one .layout.json file.
type ParsedDocument struct {
	DocID       string       `json:"doc_id"`
	Title       string       `json:"title"`
	SourcePath  string       `json:"source_path"`
	ContentHash string       `json:"content_hash"`
	TotalPages  int          `json:"total_pages"`
	Pages       []ParsedPage `json:"pages"`
}

// ParsedPage is one page of parser output.
type ParsedPage struct {
	PageNumber int           `json:"page_number"`
	Width      float64       `json:"width"`
	Height     float64       `json:"height"`
	Blocks     []ParsedBlock `json:"blocks"`
}

// ParsedBlock is one raw layout primitive as emitted by the parser.
type ParsedBlock struct {
	Kind         string     `json:"kind"` // "text" or "image"
	BBox         model.BBox `json:"bbox"`
	HeadingLevel int        `json:"heading_level,omitempty"`
	Text         string     `json:"text,omitempty"`
	ImagePath    string     `json:"image_path,omitempty"`
	ImageHash    string     `json:"image_hash,omitempty"`
}

// LoadFile reads and normalizes one layout file.
func LoadFile(path string) (*ParsedDocument, []model.RawBlock, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading layout file %s: %w", path, err)
	}

	var doc ParsedDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("decoding layout file %s: %w", path, err)
	}

	if doc.ContentHash == "" {
		return nil, nil, fmt.Errorf("layout file %s: missing content_hash", path)
	}
	if doc.DocID == "" {
		doc.DocID = model.DocIDFromHash(doc.ContentHash)
	}
	if doc.Title == "" {
		base := filepath.Base(doc.SourcePath)
		doc.Title = strings.ReplaceAll(strings.TrimSuffix(base, filepath.Ext(base)), "_", " ")
	}
	if doc.TotalPages == 0 {
		doc.TotalPages = len(doc.Pages)
	}

	blocks, err := Normalize(&doc)
	if err != nil {
		return nil, nil, fmt.Errorf("layout file %s: %w", path, err)
	}
	return &doc, blocks, nil
}

// Normalize flattens a parsed document into typed blocks in reading
// order. Blocks on a page are ordered top-to-bottom, then
// left-to-right; pages are visited in page order. Bounding boxes are
// clamped to page bounds. Empty text blocks are dropped.
func Normalize(doc *ParsedDocument) ([]model.RawBlock, error) {
	pages := make([]ParsedPage, len(doc.Pages))
	copy(pages, doc.Pages)
	sort.SliceStable(pages, func(i, j int) bool { return pages[i].PageNumber < pages[j].PageNumber })

	var blocks []model.RawBlock
	seq := 0
	for _, page := range pages {
		if page.PageNumber < 1 {
			return nil, fmt.Errorf("invalid page number %d", page.PageNumber)
		}

		ordered := make([]ParsedBlock, len(page.Blocks))
		copy(ordered, page.Blocks)
		sort.SliceStable(ordered, func(i, j int) bool {
			if ordered[i].BBox.Y1 != ordered[j].BBox.Y1 {
				return ordered[i].BBox.Y1 < ordered[j].BBox.Y1
			}
			return ordered[i].BBox.X1 < ordered[j].BBox.X1
		})

		for _, pb := range ordered {
			switch pb.Kind {
			case string(model.BlockText):
				text := strings.TrimSpace(pb.Text)
				if text == "" {
					continue
				}
				level := pb.HeadingLevel
				if level < 0 || level > 6 {
					level = 0
				}
				blocks = append(blocks, model.RawBlock{
					Kind:         model.BlockText,
					PageNumber:   page.PageNumber,
					BBox:         clamp(pb.BBox, page.Width, page.Height),
					HeadingLevel: level,
					Text:         text,
					Seq:          seq,
				})
			case string(model.BlockImage):
				blocks = append(blocks, model.RawBlock{
					Kind:       model.BlockImage,
					PageNumber: page.PageNumber,
					BBox:       clamp(pb.BBox, page.Width, page.Height),
					ImagePath:  pb.ImagePath,
					ImageHash:  pb.ImageHash,
					Seq:        seq,
				})
			default:
				return nil, fmt.Errorf("unknown block kind %q on page %d", pb.Kind, page.PageNumber)
			}
			seq++
		}
	}

	return blocks, nil
}

// clamp constrains a bounding box to page bounds. Pages with unknown
// dimensions (zero width/height) pass boxes through unchanged.
func clamp(b model.BBox, width, height float64) model.BBox {
	if width <= 0 || height <= 0 {
		return b
	}
	if b.X1 < 0 {
		b.X1 = 0
	}
	if b.Y1 < 0 {
		b.Y1 = 0
	}
	if b.X2 > width {
		b.X2 = width
	}
	if b.Y2 > height {
		b.Y2 = height
	}
	return b
}
