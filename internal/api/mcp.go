// Package api exposes the file index to MCP clients over stdio.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/codeprimate/askmyfiles/internal/indexer"
	"github.com/codeprimate/askmyfiles/internal/retrieval"
)

// MCPRetriever abstracts semantic search for the MCP layer.
type MCPRetriever interface {
	Context(ctx context.Context, query string, maxChars int) (string, error)
}

// MCPIndexer abstracts the index operations exposed as tools.
type MCPIndexer interface {
	Run(ctx context.Context, root string) (*indexer.Summary, error)
	Info(ctx context.Context, path string) ([]retrieval.Record, error)
	List(ctx context.Context) ([]retrieval.DocumentSummary, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Retriever MCPRetriever
	Indexer   MCPIndexer
	MaxChars  int
	Version   string
}

type mcpHandlers struct {
	deps MCPDeps

	// Index runs are sequential; concurrent tool calls queue here.
	indexMu sync.Mutex
}

// NewMCPServer creates an MCP server with the askmyfiles tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	if deps.Version == "" {
		deps.Version = "dev"
	}
	h := &mcpHandlers{deps: deps}

	s := server.NewMCPServer(
		"askmyfiles",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("askmyfiles: semantic search over the user's locally indexed files."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("search_files",
			mcp.WithDescription("Semantically search the indexed files and return the most relevant passages as one text block."),
			mcp.WithString("query", mcp.Description("What to search for"), mcp.Required()),
			mcp.WithNumber("max_chars", mcp.Description("Maximum characters of context to return (default 60000)")),
		),
		h.searchFiles,
	)

	s.AddTool(
		mcp.NewTool("index_path",
			mcp.WithDescription("Index a file or directory so its content becomes searchable. Unchanged files are skipped."),
			mcp.WithString("path", mcp.Description("File or directory path"), mcp.Required()),
		),
		h.indexPath,
	)

	s.AddTool(
		mcp.NewTool("file_info",
			mcp.WithDescription("Show the stored chunks of one indexed file."),
			mcp.WithString("path", mcp.Description("Path of the indexed file"), mcp.Required()),
		),
		h.fileInfo,
	)

	s.AddTool(
		mcp.NewTool("list_files",
			mcp.WithDescription("List every indexed file with its chunk count."),
		),
		h.listFiles,
	)

	s.AddResource(
		mcp.NewResource(
			"askmyfiles://files",
			"Indexed Files",
			mcp.WithResourceDescription("Indexed files with chunk counts and modification times as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		h.resourceFiles,
	)

	return s
}

func (h *mcpHandlers) searchFiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil || query == "" {
		return mcpError("query is required"), nil
	}

	maxChars := req.GetInt("max_chars", h.deps.MaxChars)
	if maxChars <= 0 {
		maxChars = h.deps.MaxChars
	}

	text, err := h.deps.Retriever.Context(ctx, query, maxChars)
	if err != nil {
		return mcpError(fmt.Sprintf("search failed: %v", err)), nil
	}
	if text == "" {
		return mcpText("No matching content. Index files with the index_path tool first."), nil
	}
	return mcpText(text), nil
}

type fileResult struct {
	Path    string `json:"path"`
	Status  string `json:"status"`
	Records int    `json:"records"`
	Error   string `json:"error,omitempty"`
}

type runResult struct {
	RunID   string       `json:"run_id"`
	Indexed int          `json:"indexed"`
	Skipped int          `json:"skipped"`
	Failed  int          `json:"failed"`
	Records int          `json:"records"`
	Files   []fileResult `json:"files"`
	Error   string       `json:"error,omitempty"`
}

func (h *mcpHandlers) indexPath(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil || path == "" {
		return mcpError("path is required"), nil
	}

	h.indexMu.Lock()
	sum, runErr := h.deps.Indexer.Run(ctx, path)
	h.indexMu.Unlock()

	if sum == nil {
		return mcpError(fmt.Sprintf("indexing failed: %v", runErr)), nil
	}

	out := runResult{
		RunID:   sum.RunID,
		Indexed: sum.Indexed,
		Skipped: sum.Skipped,
		Failed:  sum.Failed,
		Records: sum.Records,
		Files:   make([]fileResult, len(sum.Results)),
	}
	for i, r := range sum.Results {
		out.Files[i] = fileResult{Path: r.Path, Status: string(r.Status), Records: r.Records}
		if r.Err != nil {
			out.Files[i].Error = r.Err.Error()
		}
	}
	if runErr != nil {
		out.Error = runErr.Error()
	}

	b, err := json.Marshal(out)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal summary: %v", err)), nil
	}
	if runErr != nil {
		return mcpError(string(b)), nil
	}
	return mcpText(string(b)), nil
}

type chunkInfo struct {
	ID            string `json:"id"`
	SequenceIndex int    `json:"sequence_index"`
	Chars         int    `json:"chars"`
	Preview       string `json:"preview"`
}

type fileInfo struct {
	Path        string      `json:"path"`
	DocumentKey string      `json:"document_key"`
	Modified    string      `json:"modified"`
	IndexedAt   string      `json:"indexed_at"`
	Chunks      []chunkInfo `json:"chunks"`
}

func (h *mcpHandlers) fileInfo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil || path == "" {
		return mcpError("path is required"), nil
	}

	records, err := h.deps.Indexer.Info(ctx, path)
	if errors.Is(err, indexer.ErrRecordNotFound) {
		return mcpError(fmt.Sprintf("%s is not indexed", path)), nil
	}
	if err != nil {
		return mcpError(fmt.Sprintf("info failed: %v", err)), nil
	}

	first := records[0]
	out := fileInfo{
		Path:        first.SourcePath,
		DocumentKey: first.DocumentKey,
		Modified:    first.ModifiedTime.UTC().Format(time.RFC3339),
		IndexedAt:   first.IndexedAt.UTC().Format(time.RFC3339),
		Chunks:      make([]chunkInfo, len(records)),
	}
	for i, r := range records {
		out.Chunks[i] = chunkInfo{
			ID:            r.ID,
			SequenceIndex: r.SequenceIndex,
			Chars:         len([]rune(r.Text)),
			Preview:       preview(r.Text, 80),
		}
	}

	b, err := json.Marshal(out)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal info: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

type listedFile struct {
	Path     string `json:"path"`
	Chunks   int    `json:"chunks"`
	Modified string `json:"modified"`
}

func (h *mcpHandlers) listed(ctx context.Context) ([]byte, error) {
	docs, err := h.deps.Indexer.List(ctx)
	if err != nil {
		return nil, err
	}
	files := make([]listedFile, len(docs))
	for i, d := range docs {
		files[i] = listedFile{Path: d.SourcePath, Chunks: d.Chunks, Modified: d.ModifiedTime.UTC().Format(time.RFC3339)}
	}
	return json.Marshal(files)
}

func (h *mcpHandlers) listFiles(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	b, err := h.listed(ctx)
	if err != nil {
		return mcpError(fmt.Sprintf("list failed: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func (h *mcpHandlers) resourceFiles(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	b, err := h.listed(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}

// preview returns the first n runes of s followed by "..." when cut.
func preview(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
