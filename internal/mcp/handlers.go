package mcp

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mkoblar/machdoc/internal/metastore"
	"github.com/mkoblar/machdoc/internal/model"
	"github.com/mkoblar/machdoc/internal/query"
)

// handleSearchContentUnits runs a hybrid search over the documentation.
func (s *Server) handleSearchContentUnits(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	queryText, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}

	req := query.Request{
		Query:    queryText,
		TopK:     request.GetInt("top_k", 0),
		DocID:    request.GetString("doc_id", ""),
		UnitType: request.GetString("unit_type", ""),
	}
	if alpha := request.GetFloat("alpha", -1); alpha >= 0 {
		if alpha > 1 {
			return mcp.NewToolResultError("alpha must be between 0 and 1"), nil
		}
		req.Alpha = &alpha
	}
	if tags := request.GetString("tags", ""); tags != "" {
		for _, t := range strings.Split(tags, ",") {
			if t = strings.TrimSpace(t); t != "" {
				req.Tags = append(req.Tags, t)
			}
		}
	}

	resp, err := s.orchestrator.Run(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	if len(resp.Results) == 0 {
		return mcp.NewToolResultText("No results found. The documentation may not be ingested yet. Run `machdoc ingest` first."), nil
	}

	return mcp.NewToolResultText(formatResults(resp)), nil
}

// handleGetPDFSection returns the full section a unit belongs to.
func (s *Server) handleGetPDFSection(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	unitID, err := request.RequireString("unit_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: unit_id"), nil
	}

	units, err := s.store.SectionUnits(ctx, unitID)
	if errors.Is(err, metastore.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("no content unit with id %q", unitID)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("section lookup failed: %v", err)), nil
	}

	var sb strings.Builder
	if len(units) > 0 {
		sb.WriteString(fmt.Sprintf("Section: %s\n\n", units[0].SectionPathString()))
	}
	for _, u := range units {
		sb.WriteString(fmt.Sprintf("--- page %d (unit %s)", u.PageNumber, u.UnitID))
		if u.HasImage() {
			sb.WriteString(fmt.Sprintf(" [image %s]", u.ImageID))
		}
		sb.WriteString(" ---\n")
		sb.WriteString(u.Text)
		sb.WriteString("\n\n")
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// handleGetImage returns an extracted image inline, with its caption as text.
func (s *Server) handleGetImage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	imageID, err := request.RequireString("image_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: image_id"), nil
	}

	img, err := s.store.GetImage(ctx, imageID)
	if errors.Is(err, metastore.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("no image with id %q", imageID)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("image lookup failed: %v", err)), nil
	}

	data, err := os.ReadFile(filepath.Join(s.imageDir, img.ImagePath))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("reading image file: %v", err)), nil
	}

	caption := img.AutoCaption
	if caption == "" {
		caption = fmt.Sprintf("Image from document %s, page %d", img.DocID, img.PageNumber)
	}
	return mcp.NewToolResultImage(caption, base64.StdEncoding.EncodeToString(data), mimeType(img.ImagePath)), nil
}

func mimeType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/png"
	}
}

// formatResults renders a query response as text for agent consumption.
func formatResults(resp *query.Response) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d result(s)", len(resp.Results)))
	if resp.Reranked {
		sb.WriteString(" (reranked)")
	} else if resp.Degraded {
		sb.WriteString(" (rerank unavailable, blended ordering)")
	}
	sb.WriteString(":\n\n")

	for i, r := range resp.Results {
		sb.WriteString(fmt.Sprintf("%d. [%s] %s, page %d\n", i+1, r.Unit.UnitID, r.Provenance.Title, r.Provenance.PageNumber))
		if r.Provenance.SectionPath != "" {
			sb.WriteString(fmt.Sprintf("   Section: %s\n", r.Provenance.SectionPath))
		}
		sb.WriteString(fmt.Sprintf("   Score: %.3f", r.Scores.Combined))
		if r.Unit.UnitType == model.ImageWithContext {
			sb.WriteString(fmt.Sprintf(" | image: %s", r.Unit.ImageID))
		}
		if len(r.Unit.Tags) > 0 {
			sb.WriteString(" | tags: " + strings.Join(r.Unit.Tags, ", "))
		}
		sb.WriteString("\n   ")
		sb.WriteString(truncate(r.Unit.Text, 400))
		sb.WriteString("\n\n")
	}
	return sb.String()
}

// truncate cuts long text on a rune boundary so multi-byte characters
// survive intact.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
