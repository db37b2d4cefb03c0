package mcp

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/siteflow/server/internal/client"
)

func listTodosTool() mcp.Tool {
	return mcp.NewTool(
		"list_todos",
		mcp.WithDescription("List every todo with its id, text and completion state."),
		mcp.WithTitleAnnotation("List todos"),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func createTodoTool() mcp.Tool {
	return mcp.NewTool(
		"create_todo",
		mcp.WithDescription("Create a todo. Returns the stored todo with its id."),
		mcp.WithTitleAnnotation("Create todo"),
		mcp.WithString("text",
			mcp.Description("What needs doing"),
			mcp.Required(),
			mcp.MinLength(1),
		),
	)
}

func toggleTodoTool() mcp.Tool {
	return mcp.NewTool(
		"toggle_todo",
		mcp.WithDescription("Mark a todo completed or not completed. rowsAffected is 0 when no todo has the id."),
		mcp.WithTitleAnnotation("Toggle todo"),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithNumber("id",
			mcp.Description("Todo id"),
			mcp.Required(),
		),
		mcp.WithBoolean("completed",
			mcp.Description("New completion state"),
			mcp.Required(),
		),
	)
}

func deleteTodoTool() mcp.Tool {
	return mcp.NewTool(
		"delete_todo",
		mcp.WithDescription("Delete a todo. rowsAffected is 0 when no todo has the id."),
		mcp.WithTitleAnnotation("Delete todo"),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithNumber("id",
			mcp.Description("Todo id"),
			mcp.Required(),
		),
	)
}

func (s *Server) listTodos(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := s.source.GetAll(ctx)
	if err != nil {
		return s.toolError("list_todos", err), nil
	}
	return toolResultJSON(list)
}

func (s *Server) createTodo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	todo, err := s.source.Create(ctx, text)
	if err != nil {
		return s.toolError("create_todo", err), nil
	}
	return toolResultJSON(todo)
}

func (s *Server) toggleTodo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireInt("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	completed, err := req.RequireBool("completed")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.source.Toggle(ctx, int64(id), completed)
	if err != nil {
		return s.toolError("toggle_todo", err), nil
	}
	return toolResultJSON(res)
}

func (s *Server) deleteTodo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireInt("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.source.Delete(ctx, int64(id))
	if err != nil {
		return s.toolError("delete_todo", err), nil
	}
	return toolResultJSON(res)
}

// toolError reports err to the model as a tool failure. Transport and server
// failures are logged; the model only sees a short message.
func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	var cerr *client.Error
	switch {
	case errors.Is(err, client.ErrUnauthorized):
		return mcp.NewToolResultError("not signed in: run `server todo login` or set SITEFLOW_TOKEN")
	case errors.As(err, &cerr) && cerr.Status < 500:
		return mcp.NewToolResultError(cerr.Message)
	}
	s.logger.Error().Err(err).Str("tool", tool).Msg("tool call failed")
	return mcp.NewToolResultErrorFromErr(tool+" failed", err)
}

func toolResultJSON(payload any) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(payload)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("failed to build response", err), nil
	}
	return result, nil
}
