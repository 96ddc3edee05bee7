package fuse

import (
	"strings"

	"github.com/mkoblar/machdoc/internal/model"
)

// Builder aggregates normalized blocks into content units under a
// token budget, preserving the document's heading hierarchy.
type Builder struct {
	minTokens       int
	maxTokens       int
	chunkOverlap    int
	machineKeywords map[string]string
}

// NewBuilder creates a Builder. The budget and overlap are measured in
// tokens; machineKeywords feeds tag extraction.
func NewBuilder(minTokens, maxTokens, chunkOverlap int, machineKeywords map[string]string) *Builder {
	return &Builder{
		minTokens:       minTokens,
		maxTokens:       maxTokens,
		chunkOverlap:    chunkOverlap,
		machineKeywords: machineKeywords,
	}
}

// Build runs association and chunking over a document's blocks and
// returns its content units and image assets. Unit ids are derived
// from the doc id and the unit's creation-order position, so building
// the same blocks twice yields identical ids.
func (b *Builder) Build(docID string, blocks []model.RawBlock) ([]model.ContentUnit, []model.ImageAsset) {
	assoc := Associate(blocks)

	bySeq := make(map[int]*model.RawBlock, len(blocks))
	for i := range blocks {
		bySeq[blocks[i].Seq] = &blocks[i]
	}

	assets := b.buildImageAssets(docID, blocks, assoc, bySeq)
	assetForSeq := make(map[int]*model.ImageAsset)
	{
		n := 0
		for i := range blocks {
			if blocks[i].Kind == model.BlockImage {
				assetForSeq[blocks[i].Seq] = &assets[n]
				n++
			}
		}
	}

	st := &buildState{builder: b, docID: docID}

	for i := range blocks {
		blk := &blocks[i]
		switch {
		case blk.IsHeading():
			st.flushSection()
			st.pushHeading(blk.HeadingLevel, blk.Text)

		case blk.Kind == model.BlockImage:
			textSeq, ok := assoc.TextFor[blk.Seq]
			if !ok {
				// No qualifying text: the asset is recorded without a
				// fused unit and nearby text stays in the chunking pool.
				continue
			}
			st.emitImageUnit(blk, assetForSeq[blk.Seq], bySeq[textSeq].Text)

		default: // plain text
			if assoc.Consumed[blk.Seq] {
				continue
			}
			st.addText(blk.Text, blk.PageNumber)
		}
	}
	st.flushSection()

	return st.units, assets
}

// buildImageAssets records every image block as an asset, with the
// associated text (when any) as the auto caption.
func (b *Builder) buildImageAssets(docID string, blocks []model.RawBlock, assoc Association, bySeq map[int]*model.RawBlock) []model.ImageAsset {
	var assets []model.ImageAsset
	perPage := make(map[int]int)

	for i := range blocks {
		blk := &blocks[i]
		if blk.Kind != model.BlockImage {
			continue
		}
		perPage[blk.PageNumber]++

		caption := ""
		if textSeq, ok := assoc.TextFor[blk.Seq]; ok {
			caption = bySeq[textSeq].Text
		}

		assets = append(assets, model.ImageAsset{
			ImageID:     model.ImageID(docID, blk.PageNumber, perPage[blk.PageNumber]),
			DocID:       docID,
			PageNumber:  blk.PageNumber,
			BBox:        blk.BBox,
			ImagePath:   blk.ImagePath,
			AutoCaption: caption,
			ImageHash:   blk.ImageHash,
		})
	}
	return assets
}

// buildState carries the heading stack and the greedy accumulation
// buffer across one document walk.
type buildState struct {
	builder *Builder
	docID   string

	headingStack []string
	units        []model.ContentUnit
	unitSeq      int

	pieces    []string
	curTokens int
	firstPage int
	overlap   string // seeded from the previous unit in this section
}

// pushHeading truncates the stack to the heading's parent level and
// appends the new title, keeping section paths prefix-consistent.
func (s *buildState) pushHeading(level int, title string) {
	if level-1 < len(s.headingStack) {
		s.headingStack = s.headingStack[:level-1]
	}
	s.headingStack = append(s.headingStack, title)
}

// addText appends a text block to the accumulation buffer, emitting a
// unit whenever the budget would overflow. Blocks larger than the
// budget headroom are split first so no emitted unit exceeds
// maxTokens.
func (s *buildState) addText(text string, page int) {
	headroom := s.builder.maxTokens - s.builder.minTokens
	if headroom < 1 {
		headroom = s.builder.maxTokens
	}

	for _, piece := range splitByTokens(text, headroom) {
		if len(s.pieces) > 0 && s.curTokens >= s.builder.minTokens &&
			EstimateTokens(s.bufTextWith(piece)) > s.builder.maxTokens {
			s.emitTextUnit()
		}
		if len(s.pieces) == 0 {
			s.firstPage = page
		}
		s.pieces = append(s.pieces, piece)
		s.curTokens = EstimateTokens(s.bufText())
	}
}

// bufText is the unit text the buffer would emit right now. The emit
// decision and the stored token_count both count this one string, so a
// unit's recorded tokens always reflect the budget it was cut against.
func (s *buildState) bufText() string {
	text := strings.Join(s.pieces, " ")
	if s.overlap == "" {
		return text
	}
	if text == "" {
		return s.overlap
	}
	return s.overlap + " " + text
}

func (s *buildState) bufTextWith(piece string) string {
	if t := s.bufText(); t != "" {
		return t + " " + piece
	}
	return piece
}

// emitTextUnit flushes the buffer into a TEXT_ONLY unit and seeds the
// configured overlap for the next unit in the same section.
func (s *buildState) emitTextUnit() {
	text := s.bufText()

	s.appendUnit(model.ContentUnit{
		DocID:      s.docID,
		PageNumber: s.firstPage,
		Text:       text,
		UnitType:   model.TextOnly,
		TokenCount: EstimateTokens(text),
	})

	s.overlap = TailByTokens(text, s.builder.chunkOverlap)
	s.pieces = s.pieces[:0]
	s.curTokens = EstimateTokens(s.overlap)
}

// flushSection emits whatever remains in the buffer (the final unit of
// a section may be below minTokens so no text is dropped) and resets
// the overlap seed; overlap never crosses section boundaries.
func (s *buildState) flushSection() {
	if len(s.pieces) > 0 {
		s.emitTextUnit()
	}
	s.pieces = s.pieces[:0]
	s.curTokens = 0
	s.overlap = ""
}

// emitImageUnit creates one IMAGE_WITH_CONTEXT unit from an image and
// its associated text, trimmed to the token budget.
func (s *buildState) emitImageUnit(img *model.RawBlock, asset *model.ImageAsset, text string) {
	fused := TrimToTokens(text, s.builder.maxTokens)
	s.appendUnit(model.ContentUnit{
		DocID:      s.docID,
		PageNumber: img.PageNumber,
		Text:       fused,
		UnitType:   model.ImageWithContext,
		ImageID:    asset.ImageID,
		TokenCount: EstimateTokens(fused),
	})
}

func (s *buildState) appendUnit(u model.ContentUnit) {
	u.UnitID = model.UnitID(s.docID, u.PageNumber, s.unitSeq)
	u.SectionPath = append([]string(nil), s.headingStack...)
	u.Tags = ExtractTags(u.Text, s.builder.machineKeywords)
	s.unitSeq++
	s.units = append(s.units, u)
}
