package mcp

import "github.com/mark3labs/mcp-go/mcp"

// searchContentUnitsTool defines the search_content_units MCP tool.
var searchContentUnitsTool = mcp.NewTool("search_content_units",
	mcp.WithDescription("Search the ingested machine documentation. Returns ranked content units with text, section path, page number and provenance."),
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description("Natural language search query"),
	),
	mcp.WithNumber("top_k",
		mcp.Description("Maximum number of results to return (default 5)"),
	),
	mcp.WithNumber("alpha",
		mcp.Description("Hybrid search weight: 1 is pure vector, 0 is pure keyword (default from config)"),
	),
	mcp.WithString("doc_id",
		mcp.Description("Restrict results to one document"),
	),
	mcp.WithString("unit_type",
		mcp.Description("Restrict results by unit type"),
		mcp.Enum("TEXT_ONLY", "IMAGE_WITH_CONTEXT"),
	),
	mcp.WithString("tags",
		mcp.Description("Comma-separated tags a result must carry, e.g. \"safety,machine_ptl007\""),
	),
)

// getPDFSectionTool defines the get_pdf_section MCP tool.
var getPDFSectionTool = mcp.NewTool("get_pdf_section",
	mcp.WithDescription("Get every content unit of the manual section a search result came from, in reading order."),
	mcp.WithString("unit_id",
		mcp.Required(),
		mcp.Description("Id of a content unit returned by search_content_units"),
	),
)

// getImageTool defines the get_image MCP tool.
var getImageTool = mcp.NewTool("get_image",
	mcp.WithDescription("Get an extracted manual image by id, returned inline with its caption."),
	mcp.WithString("image_id",
		mcp.Required(),
		mcp.Description("Id of an image asset referenced by an IMAGE_WITH_CONTEXT unit"),
	),
)
