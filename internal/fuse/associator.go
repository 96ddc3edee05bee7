// Package fuse builds queryable content units from normalized layout
// blocks: it decides which images belong with which text, and chunks
// the remaining text under token budgets while preserving the document
// heading hierarchy.
package fuse

import (
	"math"
	"strings"

	"github.com/mkoblar/machdoc/internal/model"
)

// Association heuristics. Scores are dimensionless; a candidate must
// clear minAssociationScore to be chosen at all.
const (
	proximityRadius     = 50.0 // pt, y-center distance on the same page
	captionRadiusFactor = 2.0  // captions above an image may sit further away
	readingOrderWindow  = 2    // candidate must be within +-2 positions
	captionBonus        = 0.5
	adjacencyWeight     = 0.3
	crossPageScore      = 0.2
	minAssociationScore = 0.3
)

// captionMarkers are prefixes that identify caption text, including the
// Slovenian "Slika" found in the source manuals.
var captionMarkers = []string{"figure", "fig.", "fig ", "image", "diagram", "scheme", "slika"}

// Association maps an image block's sequence index to its chosen text
// block, and records which text blocks were consumed so the builder
// excludes them from the plain chunking pool.
type Association struct {
	// TextFor maps image Seq -> chosen text block Seq. Images with no
	// qualifying candidate are absent.
	TextFor map[int]int
	// Consumed holds the Seq of every chosen text block.
	Consumed map[int]bool
}

// HasCaptionMarker reports whether text begins with a known caption
// marker ("Figure", "Fig.", "Slika", ...).
func HasCaptionMarker(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, marker := range captionMarkers {
		if strings.HasPrefix(lower, marker) {
			return true
		}
	}
	return false
}

// Associate finds the best-matching text block for each image block.
// Candidates must be within the reading-order window and spatially
// close; they are scored by proximity, caption markers, and adjacency.
// Ties break toward the smaller spatial distance, then the earlier
// reading-order index.
func Associate(blocks []model.RawBlock) Association {
	assoc := Association{
		TextFor:  make(map[int]int),
		Consumed: make(map[int]bool),
	}

	bySeq := make(map[int]*model.RawBlock, len(blocks))
	for i := range blocks {
		bySeq[blocks[i].Seq] = &blocks[i]
	}

	for i := range blocks {
		img := &blocks[i]
		if img.Kind != model.BlockImage {
			continue
		}

		bestSeq := -1
		bestScore := 0.0
		bestDist := math.MaxFloat64

		for d := -readingOrderWindow; d <= readingOrderWindow; d++ {
			if d == 0 {
				continue
			}
			cand, ok := bySeq[img.Seq+d]
			if !ok || cand.Kind != model.BlockText || cand.IsHeading() {
				continue
			}
			if assoc.Consumed[cand.Seq] {
				continue
			}

			score, dist, ok := scoreCandidate(img, cand)
			if !ok || score < minAssociationScore {
				continue
			}

			better := score > bestScore ||
				(score == bestScore && dist < bestDist) ||
				(score == bestScore && dist == bestDist && bestSeq >= 0 && cand.Seq < bestSeq)
			if better {
				bestSeq = cand.Seq
				bestScore = score
				bestDist = dist
			}
		}

		if bestSeq >= 0 {
			assoc.TextFor[img.Seq] = bestSeq
			assoc.Consumed[bestSeq] = true
		}
	}

	return assoc
}

// scoreCandidate scores one text block as a match for an image. The
// returned distance is the spatial tie-break key.
func scoreCandidate(img, text *model.RawBlock) (score, dist float64, ok bool) {
	isCaption := HasCaptionMarker(text.Text)
	seqDiff := math.Abs(float64(text.Seq - img.Seq))

	if text.PageNumber == img.PageNumber {
		dist = verticalGap(text, img)
		radius := proximityRadius
		// Caption text above the image may sit further away.
		if isCaption && text.BBox.Y2 <= img.BBox.Y1 {
			radius = proximityRadius * captionRadiusFactor
		}
		if dist > radius {
			return 0, 0, false
		}
		score = 1 - dist/radius
	} else if abs(text.PageNumber-img.PageNumber) == 1 {
		// Page-boundary case: adjacency in reading order stands in for
		// spatial proximity.
		dist = proximityRadius * captionRadiusFactor
		score = crossPageScore
	} else {
		return 0, 0, false
	}

	if isCaption {
		score += captionBonus
	}
	score += adjacencyWeight / seqDiff

	return score, dist, true
}

// verticalGap measures the spatial distance between a text block and
// an image on the same page: the gap between the boxes when they do
// not overlap vertically, else the distance between their centers.
func verticalGap(text, img *model.RawBlock) float64 {
	switch {
	case text.BBox.Y2 <= img.BBox.Y1:
		return img.BBox.Y1 - text.BBox.Y2
	case text.BBox.Y1 >= img.BBox.Y2:
		return text.BBox.Y1 - img.BBox.Y2
	default:
		return math.Abs(text.BBox.YCenter() - img.BBox.YCenter())
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
