package mcp

import (
	"context"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/siteflow/server/internal/domain/todos"
)

// TodoSource is the data layer behind the tools; *client.Client satisfies it.
type TodoSource interface {
	GetAll(ctx context.Context) ([]todos.Todo, error)
	Create(ctx context.Context, text string) (todos.Todo, error)
	Toggle(ctx context.Context, id int64, completed bool) (todos.MutationResult, error)
	Delete(ctx context.Context, id int64) (todos.MutationResult, error)
}

// Server wraps the MCP server with the todo tools.
type Server struct {
	mcp    *mcpserver.MCPServer
	source TodoSource
	logger zerolog.Logger
}

type Config struct {
	Name    string
	Version string
}

func NewServer(cfg Config, source TodoSource, logger zerolog.Logger) *Server {
	mcpServer := mcpserver.NewMCPServer(
		cfg.Name,
		cfg.Version,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithRecovery(),
		mcpserver.WithInstructions("Manage the signed-in user's todo list: list, create, complete and delete todos."),
	)

	srv := &Server{
		mcp:    mcpServer,
		source: source,
		logger: logger.With().Str("component", "mcp").Logger(),
	}
	srv.registerTools()
	return srv
}

// MCPServer returns the underlying server for ServeStdio and the HTTP
// transports.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcp
}

func (s *Server) registerTools() {
	s.mcp.AddTool(listTodosTool(), s.listTodos)
	s.mcp.AddTool(createTodoTool(), s.createTodo)
	s.mcp.AddTool(toggleTodoTool(), s.toggleTodo)
	s.mcp.AddTool(deleteTodoTool(), s.deleteTodo)
}
