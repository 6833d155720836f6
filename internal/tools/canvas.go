package tools

import (
	"context"
	"fmt"
)

// CanvasSink receives rendered artifacts; the gateway wires it to the
// dashboard event stream.
type CanvasSink func(title, format, content string)

// RenderCanvasTool publishes an artifact (markdown, HTML or plain text) to
// the dashboard canvas.
type RenderCanvasTool struct {
	sink CanvasSink
}

func NewRenderCanvasTool(sink CanvasSink) *RenderCanvasTool {
	return &RenderCanvasTool{sink: sink}
}

func (t *RenderCanvasTool) Name() string { return "render_canvas" }

func (t *RenderCanvasTool) Description() string {
	return "Render content to the dashboard canvas as a shareable artifact"
}

func (t *RenderCanvasTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"title": map[string]interface{}{
				"type":        "string",
				"description": "Artifact title",
			},
			"format": map[string]interface{}{
				"type":        "string",
				"description": "Content format",
				"enum":        []string{"markdown", "html", "text"},
			},
			"content": map[string]interface{}{
				"type":        "string",
				"description": "The content to render",
			},
		},
		"required": []string{"title", "content"},
	}
}

func (t *RenderCanvasTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	title, _ := args["title"].(string)
	content, _ := args["content"].(string)
	if title == "" || content == "" {
		return ErrorResult("title and content are required")
	}
	format, _ := args["format"].(string)
	switch format {
	case "markdown", "html", "text":
	default:
		format = "markdown"
	}

	if t.sink == nil {
		return ErrorResult("canvas is not available: dashboard disabled")
	}
	t.sink(title, format, content)
	return SilentResult(fmt.Sprintf("rendered %q to the canvas (%s, %d chars)", title, format, len(content)))
}
