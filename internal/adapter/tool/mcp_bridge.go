package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"costcompass/internal/domain"
	"costcompass/internal/infra/config"
)

// defaultCallTimeout bounds a single MCP tool call.
const defaultCallTimeout = 30 * time.Second

// mcpClient abstracts the MCP client interface for testability.
type mcpClient interface {
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

type mcpServerConn struct {
	name   string
	client mcpClient
}

// mcpToolRef binds an exposed tool name to its origin server and raw name.
type mcpToolRef struct {
	conn    *mcpServerConn
	rawName string
}

// MCPBridge connects to configured MCP servers, discovers their tools, and
// exposes them behind domain.ToolSource. Availability is a cheap cached flag:
// it flips false on a transport-level call failure and back on success, so
// callers can pick an execution tier without probing the network.
type MCPBridge struct {
	servers     []*mcpServerConn
	callTimeout time.Duration
	logger      *slog.Logger

	mu        sync.RWMutex
	tools     []domain.Tool
	refs      map[string]mcpToolRef
	available bool
}

// NewMCPBridge connects to all configured servers and discovers their tools.
// A server that connects but fails discovery is skipped; the bridge errors
// only when every server is unusable.
func NewMCPBridge(ctx context.Context, cfg config.MCPConfig, logger *slog.Logger) (*MCPBridge, error) {
	b := &MCPBridge{
		callTimeout: cfg.CallTimeout,
		logger:      logger,
		refs:        make(map[string]mcpToolRef),
	}
	if b.callTimeout <= 0 {
		b.callTimeout = defaultCallTimeout
	}

	for _, srv := range cfg.Servers {
		conn, err := b.connectServer(ctx, srv)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("mcp server %q: %w", srv.Name, err)
		}
		b.servers = append(b.servers, conn)
	}

	if err := b.discoverTools(ctx); err != nil {
		b.Close()
		return nil, domain.WrapOp("MCPBridge.discover", err)
	}

	b.available = len(b.tools) > 0
	return b, nil
}

// newMCPBridgeWithClients creates a bridge over pre-built clients (for testing).
func newMCPBridgeWithClients(ctx context.Context, servers []*mcpServerConn, logger *slog.Logger) (*MCPBridge, error) {
	b := &MCPBridge{
		servers:     servers,
		callTimeout: defaultCallTimeout,
		logger:      logger,
		refs:        make(map[string]mcpToolRef),
	}
	if err := b.discoverTools(ctx); err != nil {
		return nil, err
	}
	b.available = len(b.tools) > 0
	return b, nil
}

func (b *MCPBridge) connectServer(ctx context.Context, srv config.MCPServer) (*mcpServerConn, error) {
	var c mcpClient
	var err error

	switch srv.Transport {
	case "stdio":
		c, err = mcpclient.NewStdioMCPClient(srv.Command, envSlice(srv.Env), srv.Args...)
		if err != nil {
			return nil, fmt.Errorf("create stdio client: %w", err)
		}
	case "http":
		t, tErr := transport.NewStreamableHTTP(srv.URL)
		if tErr != nil {
			return nil, fmt.Errorf("create http transport: %w", tErr)
		}
		httpClient := mcpclient.NewClient(t)
		if err = httpClient.Start(ctx); err != nil {
			return nil, fmt.Errorf("start http client: %w", err)
		}
		c = httpClient
	default:
		return nil, fmt.Errorf("unsupported transport %q", srv.Transport)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "costcompass",
		Version: "1.0.0",
	}

	if ic, ok := c.(interface {
		Initialize(ctx context.Context, request mcp.InitializeRequest) (*mcp.InitializeResult, error)
	}); ok {
		if _, err = ic.Initialize(ctx, initReq); err != nil {
			c.Close()
			return nil, domain.WrapOp("initialize", err)
		}
	}

	b.logger.Info("mcp server connected", "name", srv.Name, "transport", srv.Transport)
	return &mcpServerConn{name: srv.Name, client: c}, nil
}

func (b *MCPBridge) discoverTools(ctx context.Context) error {
	var errs []string
	successCount := 0

	for _, srv := range b.servers {
		result, err := srv.client.ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			b.logger.Warn("mcp server discovery failed, skipping", "server", srv.name, "error", err)
			errs = append(errs, fmt.Sprintf("%s: %v", srv.name, err))
			continue
		}

		for _, t := range result.Tools {
			name := sanitizeName(t.Name)
			if _, taken := b.refs[name]; taken {
				// First server wins the bare name; later ones get a prefix.
				name = sanitizeName(srv.name) + "_" + name
			}
			b.refs[name] = mcpToolRef{conn: srv, rawName: t.Name}
			b.tools = append(b.tools, domain.Tool{
				Name:        name,
				Description: toolDescription(srv.name, t),
				Schema:      toDomainSchema(t),
			})
			b.logger.Debug("mcp tool discovered", "server", srv.name, "tool", t.Name, "exposed_as", name)
		}

		b.logger.Info("mcp tools discovered", "server", srv.name, "count", len(result.Tools))
		successCount++
	}

	if successCount == 0 && len(errs) > 0 {
		return fmt.Errorf("all mcp servers failed discovery: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Tools implements domain.ToolExecutor.
func (b *MCPBridge) Tools() []domain.Tool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.tools
}

// Available implements domain.ToolSource.
func (b *MCPBridge) Available() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.available
}

// Execute implements domain.ToolExecutor. Transport failures return an
// error and flip the availability flag; a tool-reported failure returns a
// ToolResult with IsError set instead.
func (b *MCPBridge) Execute(ctx context.Context, call domain.ToolCall) (*domain.ToolResult, error) {
	b.mu.RLock()
	ref, ok := b.refs[call.Name]
	timeout := b.callTimeout
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrToolNotFound, call.Name)
	}

	callReq := mcp.CallToolRequest{}
	callReq.Params.Name = ref.rawName
	callReq.Params.Arguments = call.Arguments

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	b.logger.Debug("mcp tool call", "server", ref.conn.name, "tool", ref.rawName)

	result, err := ref.conn.client.CallTool(callCtx, callReq)
	if err != nil {
		b.setAvailable(false)
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrMCPTransport, call.Name, err)
	}
	b.setAvailable(true)

	return &domain.ToolResult{
		CallID:  call.ID,
		Content: extractContent(result),
		IsError: result.IsError,
	}, nil
}

func (b *MCPBridge) setAvailable(v bool) {
	b.mu.Lock()
	if b.available != v {
		b.logger.Warn("mcp availability changed", "available", v)
	}
	b.available = v
	b.mu.Unlock()
}

// Close shuts down all server connections.
func (b *MCPBridge) Close() {
	for _, srv := range b.servers {
		if err := srv.client.Close(); err != nil {
			b.logger.Warn("mcp server close error", "server", srv.name, "error", err)
		}
	}
	b.setAvailable(false)
}

func toolDescription(serverName string, t mcp.Tool) string {
	if t.Description != "" {
		return t.Description
	}
	return fmt.Sprintf("MCP tool %q from server %q", t.Name, serverName)
}

// toDomainSchema converts an MCP input schema through JSON into the domain
// shape. A schema that fails conversion degrades to a bare object.
func toDomainSchema(t mcp.Tool) domain.ToolSchema {
	schema := domain.ToolSchema{Type: "object"}

	data, err := json.Marshal(t.InputSchema)
	if err != nil {
		return schema
	}
	var raw struct {
		Type       string         `json:"type"`
		Properties map[string]any `json:"properties"`
		Required   []string       `json:"required"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return schema
	}

	if raw.Type != "" {
		schema.Type = raw.Type
	}
	schema.Properties = raw.Properties
	schema.Required = raw.Required
	return schema
}

// extractContent flattens MCP result content to text. Non-text blocks are
// carried as JSON.
func extractContent(result *mcp.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		switch v := c.(type) {
		case mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		default:
			if data, err := json.Marshal(v); err == nil {
				parts = append(parts, string(data))
			}
		}
	}
	return strings.Join(parts, "\n")
}

// sanitizeName replaces characters that are not valid in tool names.
func sanitizeName(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	result := make([]string, 0, len(env))
	for k, v := range env {
		result = append(result, k+"="+v)
	}
	return result
}

var _ domain.ToolSource = (*MCPBridge)(nil)
