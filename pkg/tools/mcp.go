package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// MCPConfig configures an MCP tool source.
type MCPConfig struct {
	// Name identifies this source.
	Name string

	// ServerURL is the MCP server URL (streamable HTTP transport).
	ServerURL string

	// Command starts a subprocess MCP server (stdio transport).
	Command string

	// Args for the stdio command.
	Args []string

	// Env for the stdio command, as KEY=VALUE pairs.
	Env []string

	// Headers are sent with every HTTP request.
	Headers map[string]string

	// Timeout bounds each request (default 30s).
	Timeout time.Duration
}

// MCPToolSource serves tools from a single MCP server. The connection is
// established on DiscoverTools.
type MCPToolSource struct {
	cfg MCPConfig

	mu     sync.RWMutex
	client *client.Client
	tools  map[string]Tool
}

// mcpTool proxies one remote tool through the source's client.
type mcpTool struct {
	info   ToolInfo
	source *MCPToolSource
}

// NewMCPToolSource creates an MCP source. ServerURL or Command is required.
func NewMCPToolSource(cfg MCPConfig) (*MCPToolSource, error) {
	if cfg.ServerURL == "" && cfg.Command == "" {
		return nil, fmt.Errorf("either server_url or command is required for MCP source")
	}
	if cfg.Name == "" {
		cfg.Name = "mcp"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &MCPToolSource{
		cfg:   cfg,
		tools: make(map[string]Tool),
	}, nil
}

func (s *MCPToolSource) Name() string { return s.cfg.Name }
func (s *MCPToolSource) Type() string { return "mcp" }

// DiscoverTools connects to the server and lists its tools, replacing any
// previously discovered set.
func (s *MCPToolSource) DiscoverTools(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		mcpClient, err := s.connect(ctx)
		if err != nil {
			return fmt.Errorf("failed to connect to MCP server %s: %w", s.cfg.Name, err)
		}
		s.client = mcpClient
	}

	listResp, err := s.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return fmt.Errorf("failed to list tools from %s: %w", s.cfg.Name, err)
	}

	s.tools = make(map[string]Tool, len(listResp.Tools))
	for _, remote := range listResp.Tools {
		s.tools[remote.Name] = &mcpTool{
			info: ToolInfo{
				Name:        remote.Name,
				Description: remote.Description,
				Parameters:  schemaToMap(remote.InputSchema),
				ServerURL:   s.cfg.ServerURL,
			},
			source: s,
		}
	}

	slog.Info("Discovered MCP tools",
		"source", s.cfg.Name,
		"tools", len(s.tools),
	)
	return nil
}

func (s *MCPToolSource) connect(ctx context.Context) (*client.Client, error) {
	var mcpClient *client.Client
	var err error

	if s.cfg.Command != "" {
		mcpClient, err = client.NewStdioMCPClient(s.cfg.Command, s.cfg.Env, s.cfg.Args...)
	} else {
		mcpClient, err = client.NewStreamableHttpClient(s.cfg.ServerURL,
			transport.WithHTTPHeaders(s.cfg.Headers),
			transport.WithHTTPTimeout(s.cfg.Timeout),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create MCP client: %w", err)
	}

	if err := mcpClient.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start MCP client: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "ham",
		Version: "0.1.0",
	}

	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return nil, fmt.Errorf("failed to initialize MCP session: %w", err)
	}

	return mcpClient, nil
}

func (s *MCPToolSource) ListTools() []ToolInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]ToolInfo, 0, len(s.tools))
	for _, tool := range s.tools {
		infos = append(infos, tool.Info())
	}
	return infos
}

func (s *MCPToolSource) GetTool(name string) (Tool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tool, exists := s.tools[name]
	return tool, exists
}

// Close shuts down the MCP connection.
func (s *MCPToolSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		err := s.client.Close()
		s.client = nil
		s.tools = make(map[string]Tool)
		return err
	}
	return nil
}

func (t *mcpTool) Info() ToolInfo      { return t.info }
func (t *mcpTool) Name() string        { return t.info.Name }
func (t *mcpTool) Description() string { return t.info.Description }

// Execute calls the remote tool and flattens its text content.
func (t *mcpTool) Execute(ctx context.Context, args map[string]interface{}) (ToolResult, error) {
	start := time.Now()

	t.source.mu.RLock()
	mcpClient := t.source.client
	t.source.mu.RUnlock()

	metadata := map[string]interface{}{
		"source":    t.source.cfg.Name,
		"tool_type": "remote",
	}

	if mcpClient == nil {
		err := fmt.Errorf("MCP source %s is not connected", t.source.cfg.Name)
		return ToolResult{
			Success:       false,
			Error:         err.Error(),
			ToolName:      t.info.Name,
			ExecutionTime: time.Since(start),
			Metadata:      metadata,
		}, err
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = t.info.Name
	req.Params.Arguments = args

	resp, err := mcpClient.CallTool(ctx, req)
	if err != nil {
		err = fmt.Errorf("MCP call failed: %w", err)
		return ToolResult{
			Success:       false,
			Error:         err.Error(),
			ToolName:      t.info.Name,
			ExecutionTime: time.Since(start),
			Metadata:      metadata,
		}, err
	}

	content := extractTextContent(resp.Content)

	if resp.IsError {
		errMsg := content
		if errMsg == "" {
			errMsg = "unknown MCP error"
		}
		err := fmt.Errorf("MCP error: %s", errMsg)
		return ToolResult{
			Success:       false,
			Error:         err.Error(),
			ToolName:      t.info.Name,
			ExecutionTime: time.Since(start),
			Metadata:      metadata,
		}, err
	}

	return ToolResult{
		Success:       true,
		Content:       strings.TrimSpace(content),
		ToolName:      t.info.Name,
		ExecutionTime: time.Since(start),
		Metadata:      metadata,
	}, nil
}

func extractTextContent(contents []mcp.Content) string {
	var sb strings.Builder
	for _, content := range contents {
		if text, ok := content.(mcp.TextContent); ok {
			sb.WriteString(text.Text)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// schemaToMap converts an MCP input schema to a plain map via JSON.
func schemaToMap(schema mcp.ToolInputSchema) map[string]interface{} {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

var (
	_ ToolSource = (*MCPToolSource)(nil)
	_ Tool       = (*mcpTool)(nil)
)
