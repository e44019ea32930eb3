package mcp

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/relayforge/taskrelay/internal/app"
)

const (
	serverName    = "taskrelay"
	serverVersion = "0.1.0"
)

// Server exposes the task-session operations over the MCP protocol.
type Server struct {
	mcpServer *mcpsdk.Server
}

// NewServer creates an MCP server with every task tool registered.
func NewServer(service *app.Service) (*Server, error) {
	if service == nil {
		return nil, fmt.Errorf("service is required")
	}

	mcpServer := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    serverName,
		Version: serverVersion,
	}, nil)

	mcpsdk.AddTool(mcpServer, TaskStartTool(), TaskStartHandler(service))
	mcpsdk.AddTool(mcpServer, TaskAddProgressTool(), TaskAddProgressHandler(service))
	mcpsdk.AddTool(mcpServer, TaskReportBlockTool(), TaskReportBlockHandler(service))
	mcpsdk.AddTool(mcpServer, TaskResolveBlockTool(), TaskResolveBlockHandler(service))
	mcpsdk.AddTool(mcpServer, TaskPauseTool(), TaskPauseHandler(service))
	mcpsdk.AddTool(mcpServer, TaskResumeTool(), TaskResumeHandler(service))
	mcpsdk.AddTool(mcpServer, TaskCompleteTool(), TaskCompleteHandler(service))
	mcpsdk.AddTool(mcpServer, TaskCancelTool(), TaskCancelHandler(service))
	mcpsdk.AddTool(mcpServer, TaskListTool(), TaskListHandler(service))

	return &Server{mcpServer: mcpServer}, nil
}

// Serve runs the MCP server on stdio and blocks until it stops or the
// context ends.
func (s *Server) Serve(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}
