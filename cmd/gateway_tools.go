package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/hearthside/domo/internal/bus"
	"github.com/hearthside/domo/internal/config"
	"github.com/hearthside/domo/internal/secrets"
	"github.com/hearthside/domo/internal/tools"
	"github.com/hearthside/domo/pkg/protocol"
)

// buildToolRegistry assembles the built-in tools from config. Tools with
// missing prerequisites (no search backend, browser disabled) are skipped
// rather than registered broken.
func buildToolRegistry(cfg *config.Config, sec *secrets.Store, rt *runtime) (*tools.Registry, *tools.ProcessManager) {
	registry := tools.NewRegistry()
	workspace := cfg.WorkspacePath()
	restrict := cfg.Agents.Defaults.RestrictToWorkspace

	registry.Register(tools.NewCurrentTimeTool())
	registry.Register(tools.NewCalculatorTool())
	registry.Register(tools.NewReadFileTool(workspace, restrict))
	registry.Register(tools.NewWriteFileTool(workspace, restrict))
	registry.Register(tools.NewListFilesTool(workspace, restrict))

	registry.Register(tools.NewWebFetchTool(tools.WebFetchConfig{
		MaxKB: cfg.Tools.Web.FetchMaxKB,
	}))
	if search := tools.NewWebSearchTool(tools.WebSearchConfig{
		BraveAPIKey:  mustResolve(sec, cfg.Tools.Web.Brave.APIKey),
		BraveEnabled: cfg.Tools.Web.Brave.Enabled,
		DDGEnabled:   cfg.Tools.Web.DuckDuckGo.Enabled,
	}); search != nil {
		registry.Register(search)
	}
	if cfg.Tools.Browser.Enabled {
		registry.Register(tools.NewBrowserTool(cfg.Tools.Browser.Headless))
	}

	shellTimeout := time.Duration(cfg.Tools.Shell.TimeoutSec) * time.Second
	registry.Register(tools.NewShellExecTool(workspace, restrict, shellTimeout, cfg.Tools.Shell.DenyExtra))

	procMgr := tools.NewProcessManager(workspace)
	registry.Register(tools.NewProcessStartTool(procMgr))
	registry.Register(tools.NewProcessStatusTool(procMgr))
	registry.Register(tools.NewProcessOutputTool(procMgr))
	registry.Register(tools.NewProcessStopTool(procMgr))

	registry.Register(tools.NewRenderCanvasTool(func(title, format, content string) {
		rt.bus.Broadcast(bus.Event{Name: protocol.EventCanvas, Payload: map[string]any{
			"title":   title,
			"format":  format,
			"content": content,
		}})
	}))

	registry.Register(tools.NewSendMessageTool(func(ctx context.Context, channel, recipient, content string) error {
		return rt.channels.Send(ctx, bus.OutboundMessage{
			Channel: channel,
			ChatID:  recipient,
			Content: content,
		})
	}, rt.queue))

	for _, server := range cfg.Tools.HTTP {
		for _, t := range tools.NewHTTPTools(server, sec) {
			registry.Register(t)
		}
	}

	if len(cfg.Tools.Deny) > 0 {
		registry.Deny(cfg.Tools.Deny...)
	}
	return registry, procMgr
}

func mustResolve(sec *secrets.Store, template string) string {
	out, err := sec.Resolve(template)
	if err != nil {
		slog.Warn("secret reference unresolved", "error", err)
		return ""
	}
	return out
}
