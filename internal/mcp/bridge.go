package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/hearthside/domo/internal/tools"
)

// bridgeTool adapts one remote MCP tool to the registry's Tool interface.
// The registered name is server__tool so collisions across servers are
// impossible and the owning server is visible in audit entries.
type bridgeTool struct {
	serverName  string
	remoteName  string
	description string
	schema      map[string]interface{}
	client      *mcpclient.Client
	timeoutSec  int
	connected   *atomic.Bool
}

func newBridgeTool(serverName string, remote mcpgo.Tool, client *mcpclient.Client, timeoutSec int, connected *atomic.Bool) *bridgeTool {
	return &bridgeTool{
		serverName:  serverName,
		remoteName:  remote.Name,
		description: remote.Description,
		schema:      schemaToMap(remote.InputSchema),
		client:      client,
		timeoutSec:  timeoutSec,
		connected:   connected,
	}
}

func (t *bridgeTool) Name() string { return t.serverName + "__" + t.remoteName }

func (t *bridgeTool) Description() string {
	if t.description != "" {
		return t.description
	}
	return fmt.Sprintf("Remote tool %s on server %s", t.remoteName, t.serverName)
}

func (t *bridgeTool) Parameters() map[string]interface{} {
	if t.schema != nil {
		return t.schema
	}
	return map[string]interface{}{"type": "object"}
}

func (t *bridgeTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	if !t.connected.Load() {
		return tools.ErrorResult(fmt.Sprintf("mcp server %s is not connected", t.serverName))
	}

	callCtx, cancel := context.WithTimeout(ctx, time.Duration(t.timeoutSec)*time.Second)
	defer cancel()

	req := mcpgo.CallToolRequest{}
	req.Params.Name = t.remoteName
	req.Params.Arguments = args

	result, err := t.client.CallTool(callCtx, req)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return tools.ErrorResult(fmt.Sprintf("mcp call to %s timed out after %ds", t.Name(), t.timeoutSec))
		}
		return tools.ErrorResult(fmt.Sprintf("mcp call failed: %v", err))
	}

	text := flattenContent(result.Content)
	if result.IsError {
		if text == "" {
			text = "remote tool reported an error"
		}
		return tools.ErrorResult(text)
	}
	if text == "" {
		text = "(empty result)"
	}
	return tools.SilentResult(text)
}

// flattenContent joins the textual parts of a tool result. Non-text blocks
// are represented by a type marker.
func flattenContent(content []mcpgo.Content) string {
	var parts []string
	for _, block := range content {
		switch c := block.(type) {
		case mcpgo.TextContent:
			parts = append(parts, c.Text)
		case *mcpgo.TextContent:
			parts = append(parts, c.Text)
		default:
			parts = append(parts, fmt.Sprintf("[%T content omitted]", block))
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// schemaToMap converts the typed input schema to the generic map shape the
// registry validates against.
func schemaToMap(schema mcpgo.ToolInputSchema) map[string]interface{} {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
