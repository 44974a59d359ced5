// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes mynotes tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/mynotes/internal/notes"
	"github.com/starford/mynotes/internal/store"
)

const contractURI = "mynotes://data-model"

// Server wraps the MCP server with mynotes tools.
type Server struct {
	mcp *server.MCPServer
	svc *notes.Service
}

// New creates a new MCP server with all mynotes tools registered.
func New(svc *notes.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"mynotes",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List every stored note as JSON."),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read a single note by id."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Note id")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a note owned by an existing user. "+
			"Read the data model first via the get_data_model tool or the "+contractURI+" resource."),
		mcp.WithString("email", mcp.Required(), mcp.Description("Owner email")),
		mcp.WithString("text", mcp.Description("Initial text (may be empty)")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("update_note",
		mcp.WithDescription("Replace the text of a note. Clears its cloud sync flag."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Note id")),
		mcp.WithString("text", mcp.Required(), mcp.Description("New text")),
	), s.updateNote)

	s.mcp.AddTool(mcp.NewTool("delete_note",
		mcp.WithDescription("Delete a note by id."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Note id")),
	), s.deleteNote)

	s.mcp.AddTool(mcp.NewTool("delete_all_notes",
		mcp.WithDescription("Delete the notes of every user."),
	), s.deleteAllNotes)

	s.mcp.AddTool(mcp.NewTool("get_data_model",
		mcp.WithDescription("Returns the mynotes data model. "+
			"Call this before creating or updating notes."),
	), s.getDataModel)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Data Model",
			mcp.WithResourceDescription("Users, notes and the rules the note tools enforce."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readDataModelResource,
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

func noteID(req mcp.CallToolRequest) (int64, error) {
	id, err := req.RequireInt("id")
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, fmt.Errorf("invalid note id %d", id)
	}
	return int64(id), nil
}

func (s *Server) listNotes(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	all, err := s.svc.GetAllNotes(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if all == nil {
		all = notes.Snapshot{}
	}
	return jsonResult(all)
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := noteID(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.GetNote(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("note %d: %v", id, err)), nil
	}
	return jsonResult(note)
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	email, err := req.RequireString("email")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text := req.GetString("text", "")

	owner, err := s.svc.GetUser(ctx, email)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("owner %s: %v", email, err)), nil
	}
	note, err := s.svc.CreateNoteWithText(ctx, owner, text)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(note)
}

func (s *Server) updateNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := noteID(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.UpdateNote(ctx, store.Note{ID: id}, text)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("note %d: %v", id, err)), nil
	}
	return jsonResult(note)
}

func (s *Server) deleteNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := noteID(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.DeleteNote(ctx, id); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("note %d: %v", id, err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %d", id)), nil
}

func (s *Server) deleteAllNotes(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, err := s.svc.DeleteAllNotes(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %d", n)), nil
}

func (s *Server) getDataModel(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NotesContract), nil
}

func (s *Server) readDataModelResource(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     NotesContract,
		},
	}, nil
}
