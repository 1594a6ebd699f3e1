package toolsession

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// NewMCPDialer returns a Dialer that opens an MCP session over streamable
// HTTP. An optional bearer token is injected for hosted backends.
func NewMCPDialer(serverURL, token, clientName string) Dialer {
	return func(ctx context.Context) (Session, error) {
		if serverURL == "" {
			return nil, errors.New("tool server URL is not configured")
		}

		var opts []transport.StreamableHTTPCOption
		if token != "" {
			opts = append(opts, transport.WithHTTPHeaders(map[string]string{
				"Authorization": "Bearer " + token,
			}))
		}

		c, err := client.NewStreamableHttpClient(serverURL, opts...)
		if err != nil {
			return nil, fmt.Errorf("create MCP client: %w", err)
		}

		if err := c.Start(ctx); err != nil {
			c.Close()
			return nil, fmt.Errorf("start MCP transport: %w", err)
		}

		initReq := mcp.InitializeRequest{}
		initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
		initReq.Params.ClientInfo = mcp.Implementation{
			Name:    clientName,
			Version: "1.0.0",
		}
		if _, err := c.Initialize(ctx, initReq); err != nil {
			c.Close()
			return nil, fmt.Errorf("initialize MCP session: %w", err)
		}

		return &mcpSession{client: c}, nil
	}
}

type mcpSession struct {
	client *client.Client
}

func (s *mcpSession) ListTools(ctx context.Context) ([]Tool, error) {
	res, err := s.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}

	out := make([]Tool, 0, len(res.Tools))
	for _, t := range res.Tools {
		schema, err := json.Marshal(t.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("marshal input schema for %s: %w", t.Name, err)
		}
		out = append(out, Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		})
	}
	return out, nil
}

func (s *mcpSession) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	res, err := s.client.CallTool(ctx, req)
	if err != nil {
		return "", err
	}

	text := contentText(res.Content)
	if res.IsError {
		if text == "" {
			text = "tool reported an error"
		}
		return "", errors.New(text)
	}
	return text, nil
}

func (s *mcpSession) Close() error {
	return s.client.Close()
}

func contentText(content []mcp.Content) string {
	var parts []string
	for _, c := range content {
		switch tc := c.(type) {
		case mcp.TextContent:
			parts = append(parts, tc.Text)
		case *mcp.TextContent:
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}
