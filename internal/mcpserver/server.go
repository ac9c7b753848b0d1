// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes reconciliation tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/denote-reconcile/internal/apperr"
	"github.com/starford/denote-reconcile/internal/denote"
	"github.com/starford/denote-reconcile/internal/passservice"
	"github.com/starford/denote-reconcile/internal/storage"
)

const noteFormatURI = "denote://note-format"

// Server wraps the MCP server with reconciliation tools.
type Server struct {
	mcp   *server.MCPServer
	svc   *passservice.Service
	store storage.Provider
}

// New creates a new MCP server with all tools registered.
func New(svc *passservice.Service, store storage.Provider, version string) *Server {
	s := &Server{svc: svc, store: store}

	s.mcp = server.NewMCPServer(
		"denote-reconcile",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("reconcile",
		mcp.WithDescription("Run a metadata reconciliation pass over the note corpus and return its report. "+
			"Defaults to a dry run; pass dry_run=false to write changes."),
		mcp.WithBoolean("dry_run", mcp.Description("Compute the report without writing (default true)")),
	), s.reconcile)

	s.mcp.AddTool(mcp.NewTool("list_passes",
		mcp.WithDescription("List recorded reconciliation passes, newest first."),
		mcp.WithNumber("limit", mcp.Description("Page size (default 20)")),
		mcp.WithNumber("offset", mcp.Description("Page offset")),
	), s.listPasses)

	s.mcp.AddTool(mcp.NewTool("get_pass",
		mcp.WithDescription("Get one recorded pass with all of its report line items."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Pass id")),
	), s.getPass)

	s.mcp.AddTool(mcp.NewTool("note_history",
		mcp.WithDescription("List what past passes reported about one note."),
		mcp.WithString("note", mcp.Required(), mcp.Description("Note filename")),
	), s.noteHistory)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List the note filenames in the corpus."),
		mcp.WithString("type", mcp.Description("Optional filter: task, project, other")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("parse_filename",
		mcp.WithDescription("Decode a Denote filename into identifier, slug, tags and type."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Filename, e.g. 20250114T100100--website-redesign__project.md")),
	), s.parseFilename)

	s.mcp.AddTool(mcp.NewTool("get_note_contract",
		mcp.WithDescription("Returns the note filename and frontmatter conventions. "+
			"Call this before creating or renaming notes."),
	), s.getNoteContract)

	s.mcp.AddResource(
		mcp.NewResource(noteFormatURI, "Note Format Contract",
			mcp.WithResourceDescription("Filename and frontmatter conventions the reconciler enforces."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) reconcile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dryRun := req.GetBool("dry_run", true)
	res, err := s.svc.TryReconcile(ctx, dryRun)
	if err != nil {
		if res.Report == nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		var b strings.Builder
		_ = res.Report.WriteText(&b)
		return mcp.NewToolResultError(fmt.Sprintf("%v\n\n%s", err, b.String())), nil
	}
	var b strings.Builder
	if res.PassID != 0 {
		fmt.Fprintf(&b, "pass %d\n", res.PassID)
	}
	if err := res.Report.WriteText(&b); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) listPasses(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	passes, total, err := s.svc.ListPasses(ctx, req.GetInt("limit", 0), req.GetInt("offset", 0))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"passes": passes, "total": total})
}

func (s *Server) getPass(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetInt("id", 0)
	if id <= 0 {
		return mcp.NewToolResultError("id must be a positive integer"), nil
	}
	pass, err := s.svc.GetPass(ctx, int64(id))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("pass %d not found", id)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(pass)
}

func (s *Server) noteHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	note, err := req.RequireString("note")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	hits, err := s.svc.NoteHistory(ctx, note, 0)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(hits) == 0 {
		return mcp.NewToolResultText("no history found"), nil
	}
	return jsonResult(hits)
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	want := req.GetString("type", "")
	filter := want != ""
	if want == "other" {
		want = denote.TypeOther
	}

	metas, err := s.store.List("")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var names []string
	for _, m := range metas {
		if filter {
			fn, perr := denote.ParseFilename(m.Path)
			if perr != nil || fn.Type() != want {
				continue
			}
		}
		names = append(names, m.Path)
	}
	return mcp.NewToolResultText(strings.Join(names, "\n")), nil
}

func (s *Server) parseFilename(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	fn, err := denote.ParseFilename(name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	typ := fn.Type()
	if typ == denote.TypeOther {
		typ = "other"
	}
	return jsonResult(map[string]any{
		"identifier": fn.ID.String(),
		"slug":       fn.Slug,
		"tags":       fn.Tags,
		"type":       typ,
	})
}

func (s *Server) getNoteContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NoteFormatContract), nil
}

func (s *Server) readNoteFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      noteFormatURI,
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}
