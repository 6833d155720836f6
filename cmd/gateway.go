package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hearthside/domo/internal/agent"
	"github.com/hearthside/domo/internal/approvals"
	"github.com/hearthside/domo/internal/audit"
	"github.com/hearthside/domo/internal/bootstrap"
	"github.com/hearthside/domo/internal/bus"
	"github.com/hearthside/domo/internal/channels"
	"github.com/hearthside/domo/internal/channels/cli"
	"github.com/hearthside/domo/internal/channels/discord"
	"github.com/hearthside/domo/internal/channels/telegram"
	"github.com/hearthside/domo/internal/config"
	"github.com/hearthside/domo/internal/delivery"
	"github.com/hearthside/domo/internal/gateway"
	"github.com/hearthside/domo/internal/heartbeat"
	"github.com/hearthside/domo/internal/mcp"
	"github.com/hearthside/domo/internal/memory"
	"github.com/hearthside/domo/internal/providers"
	"github.com/hearthside/domo/internal/router"
	"github.com/hearthside/domo/internal/secrets"
	"github.com/hearthside/domo/internal/store"
	"github.com/hearthside/domo/internal/store/db"
	"github.com/hearthside/domo/internal/store/file"
	"github.com/hearthside/domo/internal/tools"
	"github.com/hearthside/domo/internal/tracing"
	"github.com/hearthside/domo/internal/trust"
	"github.com/hearthside/domo/pkg/protocol"
)

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Run the agent runtime",
		Run: func(cmd *cobra.Command, args []string) {
			runGateway()
		},
	}
}

// runtime bundles everything runGateway wires together, so the shutdown
// fan-out and the health probe can see it all.
type runtime struct {
	cfg      *config.Config
	stores   *store.Stores
	auditLog audit.Log
	kernel   *trust.Kernel
	bus      *bus.MessageBus
	queue    *delivery.Queue
	router   *router.Router
	memory   *memory.Manager
	registry *tools.Registry
	procMgr  *tools.ProcessManager
	mcpMgr   *mcp.Manager
	resolver *agent.Resolver
	pairing  *channels.Pairing
	channels *channels.Manager
	broker   *approvals.Broker
	hb       *heartbeat.Heartbeat
	dash     *gateway.Server
}

func runGateway() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("config load failed", "path", cfgPath, "error", err)
		os.Exit(1)
	}
	if created, err := bootstrap.Seed(cfg.Dir); err != nil {
		slog.Warn("first-run seeding incomplete", "error", err)
	} else if len(created) > 0 {
		slog.Info("seeded starter files", "files", created)
	}

	shutdownTracing, err := tracing.Setup(ctx, cfg.Observability.Tracing)
	if err != nil {
		slog.Warn("tracing disabled", "error", err)
		shutdownTracing = func(context.Context) error { return nil }
	}

	rt, err := buildRuntime(ctx, cfg)
	if err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}

	go func() {
		if err := config.Watch(ctx, cfgPath, cfg, func(fresh *config.Config) {
			cfg.ReplaceFrom(fresh)
			slog.Info("config reloaded")
		}); err != nil {
			slog.Warn("config watch unavailable", "error", err)
		}
	}()
	go func() {
		if err := rt.kernel.Watch(ctx); err != nil {
			slog.Warn("constitution watch unavailable", "error", err)
		}
	}()

	rt.channels.StartAll(ctx)
	registerDeliverySenders(rt)
	go rt.queue.Run(ctx)
	go rt.broker.Run(ctx)
	go rt.hb.Start(ctx)
	rt.mcpMgr.Start(ctx)

	if rt.dash != nil {
		go func() {
			if err := rt.dash.Start(ctx); err != nil {
				slog.Error("dashboard stopped", "error", err)
			}
		}()
		go func() {
			if err := rt.dash.StartTailscale(ctx); err != nil {
				slog.Error("tailnet listener stopped", "error", err)
			}
		}()
	}

	slog.Info("domo running", "version", Version, "storage", rt.stores.Driver,
		"channels", rt.channels.Names(), "agents", rt.resolver.Names())

	runInbound(ctx, rt)

	// Shutdown fan-out. Best effort, each stage bounded; a failed stage
	// never blocks the next.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	rt.channels.StopAll(shutdownCtx)
	if rt.dash != nil {
		if err := rt.dash.Stop(shutdownCtx); err != nil {
			slog.Warn("dashboard shutdown", "error", err)
		}
	}
	rt.procMgr.StopAll()
	rt.mcpMgr.Stop()
	if err := rt.memory.Close(shutdownCtx); err != nil {
		slog.Warn("memory close", "error", err)
	}
	if err := rt.stores.Close(); err != nil {
		slog.Warn("store close", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Warn("tracing flush", "error", err)
	}
	slog.Info("domo stopped")
}

func buildRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	rt := &runtime{cfg: cfg}

	sec, err := secrets.Open(cfg.Dir)
	if err != nil {
		return nil, err
	}
	resolve := func(template string) string {
		out, err := sec.Resolve(template)
		if err != nil {
			slog.Warn("secret reference unresolved", "error", err)
		}
		return out
	}

	rt.stores = openStores(ctx, cfg)
	rt.auditLog = openAudit(cfg, rt.stores)
	rt.kernel = trust.Load(cfg.ConstitutionFile())
	rt.bus = bus.NewMessageBus()
	rt.queue = delivery.New(rt.stores.Delivery)

	rt.router, err = router.New(cfg.Models, cfg.Memory.Embedding, resolve)
	if err != nil {
		return nil, err
	}
	completeFast := func(ctx context.Context, system, prompt string) (string, error) {
		res, err := rt.router.Complete(ctx, router.SlotFast, providers.ChatRequest{
			System:   system,
			Messages: []providers.Message{{Role: "user", Content: prompt}},
		})
		if err != nil {
			return "", err
		}
		return res.Content, nil
	}

	vector := memory.NewVectorIndex(ctx, rt.stores.Vectors, rt.router.Embedder())
	go vector.AutoFlush(ctx)
	var cognee *memory.CogneeClient
	if cfg.Memory.Cognee.Enabled {
		cg := cfg.Memory.Cognee
		cognee = memory.NewCogneeClient(cg.URL, resolve(cg.APIKey), cg.Email, resolve(cg.Password), cg.Dataset)
		if err := cognee.Connect(ctx); err != nil {
			slog.Warn("knowledge graph service offline, using local graph", "error", err)
		}
		go cognee.ReconnectLoop(ctx)
	}
	rt.memory = memory.NewManager(memory.Options{
		Stores:   rt.stores,
		Vector:   vector,
		Cognee:   cognee,
		Complete: completeFast,
	})

	rt.broker = approvals.New(rt.stores.Approvals,
		time.Duration(cfg.Security.ApprovalTimeoutMin)*time.Minute)
	if rt.auditLog != nil {
		rt.broker.SetAudit(rt.auditLog)
	}
	rt.pairing = channels.NewPairing(rt.stores.Pairing)
	rt.channels = channels.NewManager(rt.bus, rt.queue)

	rt.registry, rt.procMgr = buildToolRegistry(cfg, sec, rt)
	rt.mcpMgr = mcp.NewManager(rt.registry, cfg.Tools.MCPServers)

	rt.resolver, err = buildAgents(cfg, rt)
	if err != nil {
		return nil, err
	}

	buildChannels(cfg, rt, resolve)

	defaultAgent := rt.resolver.Default()
	rt.hb = heartbeat.New(heartbeat.Options{
		Config: cfg.Heartbeat,
		Run: func(ctx context.Context, agentName, prompt string) (string, float64, error) {
			target, ok := rt.resolver.Get(agentName)
			if !ok {
				target = rt.resolver.Default()
			}
			reply, err := target.Process(ctx, agent.Message{
				Text:    prompt,
				Channel: "heartbeat",
				UserID:  "heartbeat",
			})
			if err != nil {
				return "", 0, err
			}
			return reply.Content, reply.CostGBP, nil
		},
		Complete: completeFast,
		Memory:   rt.memory,
		Contexts: rt.stores.Context,
		Queue:    rt.queue,
		Bus:      rt.bus,
		Agent:    defaultAgent.Name(),
	})

	if cfg.Dashboard.Enabled {
		rt.dash = gateway.NewServer(cfg.Dashboard, gateway.Deps{
			Resolver:  rt.resolver,
			Memory:    rt.memory,
			Audit:     rt.auditLog,
			Channels:  rt.channels,
			Pairing:   rt.pairing,
			Approvals: rt.broker,
			Bus:       rt.bus,
			Health:    rt.health,
		})
	}
	wireDashboardEvents(rt)

	return rt, nil
}

// openStores picks the persistence backend: SQL when configured and
// reachable, JSON files otherwise.
func openStores(ctx context.Context, cfg *config.Config) *store.Stores {
	driver := cfg.Storage.Driver
	if driver == "json" {
		return file.New(cfg.Dir)
	}
	sqlDB, actual, err := store.OpenSQL(ctx, store.OpenOptions{
		Driver:      driver,
		SQLitePath:  cfg.SQLitePath(),
		PostgresDSN: cfg.Storage.PostgresDSN,
	})
	if err != nil {
		slog.Warn("database unavailable, falling back to JSON files", "error", err)
		return file.New(cfg.Dir)
	}
	return db.New(sqlDB, actual)
}

func openAudit(cfg *config.Config, stores *store.Stores) audit.Log {
	if stores.DB != nil {
		return audit.NewSQLStore(stores.DB)
	}
	fl, err := audit.NewFileLog(cfg.AuditJSONLPath())
	if err != nil {
		slog.Warn("audit log unavailable, actions will not be recorded", "error", err)
		return nil
	}
	return fl
}

func buildAgents(cfg *config.Config, rt *runtime) (*agent.Resolver, error) {
	skills, err := agent.LoadSkills(cfg.SkillsDir())
	if err != nil {
		slog.Warn("skills not loaded", "error", err)
	}

	defaults := cfg.Agents.Defaults
	executor := agent.NewExecutor(rt.router, rt.registry, rt.kernel, defaults.MaxToolIterations)

	newAgent := func(id string) *agent.Agent {
		spec := cfg.Agents.List[id]
		soulPath := spec.Soul
		if soulPath == "" {
			soulPath = cfg.SoulsDir() + "/" + id + ".md"
		}
		agentSkills := skills
		if spec.Skills != nil {
			allowed := make(map[string]bool, len(spec.Skills))
			for _, s := range spec.Skills {
				allowed[s] = true
			}
			agentSkills = nil
			for _, s := range skills {
				if allowed[s.Name] {
					agentSkills = append(agentSkills, s)
				}
			}
		}
		return agent.New(agent.Options{
			Name:         id,
			SoulPath:     soulPath,
			Skills:       agentSkills,
			Router:       rt.router,
			Executor:     executor,
			Memory:       rt.memory,
			Kernel:       rt.kernel,
			Audit:        rt.auditLog,
			HistoryLimit: defaults.HistoryLimit,
			ContextChars: defaults.ContextCeilingChars,
		})
	}

	defaultID := cfg.ResolveDefaultAgentID()
	defaultAgent := newAgent(defaultID)
	var others []*agent.Agent
	for _, id := range cfg.AgentIDs() {
		if id == defaultID {
			continue
		}
		others = append(others, newAgent(id))
	}
	return agent.NewResolver(defaultAgent, others...), nil
}

func buildChannels(cfg *config.Config, rt *runtime, resolve func(string) string) {
	if tg := cfg.Channels.Telegram; tg.Enabled {
		tg.Token = resolve(tg.Token)
		opts := telegram.Options{}
		if t := firstTranscriber(cfg.Voice, resolve); t != nil {
			opts.Transcriber = t
		}
		if cfg.Voice.TTS.Enabled {
			tts := cfg.Voice.TTS
			opts.Speaker = providers.NewSpeaker(resolve(tts.APIKey), tts.APIBase, tts.Model, tts.Voice)
		}
		adapter, err := telegram.New(tg, rt.bus, rt.pairing, opts)
		if err != nil {
			slog.Error("telegram not available", "error", err)
		} else {
			rt.channels.Register(adapter)
		}
	}
	if dc := cfg.Channels.Discord; dc.Enabled {
		dc.Token = resolve(dc.Token)
		adapter, err := discord.New(dc, rt.bus, rt.pairing)
		if err != nil {
			slog.Error("discord not available", "error", err)
		} else {
			rt.channels.Register(adapter)
		}
	}
	if cfg.Channels.CLI.Enabled {
		rt.channels.Register(cli.New(rt.bus))
	}
}

// firstTranscriber returns the first configured STT endpoint, or nil.
func firstTranscriber(cfg config.VoiceConfig, resolve func(string) string) *providers.Transcriber {
	for _, stt := range cfg.STT {
		if stt.Provider == "" {
			continue
		}
		return providers.NewTranscriber(stt.Provider, resolve(stt.APIKey), stt.APIBase, stt.Model)
	}
	return nil
}

// registerDeliverySenders lets the retry loop flush parked messages through
// the live adapters.
func registerDeliverySenders(rt *runtime) {
	for _, name := range rt.channels.Names() {
		rt.queue.RegisterSender(name, func(ctx context.Context, item store.DeliveryItem) error {
			chatID := item.Metadata["chat_id"]
			if chatID == "" {
				chatID = item.Recipient
			}
			return rt.channels.Send(ctx, bus.OutboundMessage{
				Channel: item.Channel,
				ChatID:  chatID,
				Content: item.Content,
			})
		})
	}
}

// wireDashboardEvents forwards queue and approval transitions to websocket
// clients.
func wireDashboardEvents(rt *runtime) {
	rt.queue.OnTransition(func(item store.DeliveryItem) {
		rt.bus.Broadcast(bus.Event{Name: protocol.EventDelivery, Payload: map[string]any{
			"id":       item.ID,
			"channel":  item.Channel,
			"status":   string(item.Status),
			"attempts": item.Attempts,
		}})
	})
	rt.broker.OnChange(func(a store.Approval) {
		name := protocol.EventApprovalResolved
		if a.Status == store.ApprovalPending {
			name = protocol.EventApprovalRequested
		}
		rt.bus.Broadcast(bus.Event{Name: name, Payload: map[string]any{
			"id":     a.ID,
			"agent":  a.Agent,
			"action": a.Action,
			"risk":   a.RiskLevel,
			"status": string(a.Status),
		}})
	})
}

// health computes the degradation level for the dashboard.
// 1 all green, 2 knowledge graph offline, 3 fast model offline,
// 4 persistent memory unavailable.
func (rt *runtime) health() gateway.HealthStatus {
	level := 1
	if rt.cfg.Memory.Cognee.Enabled && !rt.memory.CogneeAlive() {
		level = 2
	}
	if rt.cfg.Models.Fast.Configured() && !rt.router.FastConfigured() {
		level = 3
	}
	if rt.stores.Ephemeral {
		level = 4
	}
	status := "ok"
	if level > 1 {
		status = "degraded"
	}
	tunnel := ""
	if rt.cfg.Dashboard.Tailscale.Enabled {
		tunnel = "tailscale"
	}
	return gateway.HealthStatus{
		Status:           status,
		DegradationLevel: level,
		Agents:           rt.resolver.Names(),
		Cognee:           rt.memory.CogneeAlive(),
		Tunnel:           tunnel,
		Channels:         rt.channels.Status(),
	}
}

// runInbound is the main dispatch loop: every inbound message resolves to an
// agent and runs concurrently so one slow model call never blocks the bus.
func runInbound(ctx context.Context, rt *runtime) {
	for {
		msg, ok := rt.bus.ConsumeInbound(ctx)
		if !ok {
			return
		}
		go handleInbound(ctx, rt, msg)
	}
}

func handleInbound(ctx context.Context, rt *runtime, msg bus.InboundMessage) {
	target, text := rt.resolver.Resolve(msg.Content)
	if msg.Agent != "" {
		if named, ok := rt.resolver.Get(msg.Agent); ok {
			target, text = named, msg.Content
		}
	}

	reply, err := target.Process(ctx, agent.Message{
		Text:     text,
		Channel:  msg.Channel,
		UserID:   msg.SenderID,
		Username: msg.Username,
		Images:   agent.LoadImages(msg.Media),
	})
	if err != nil {
		slog.Error("agent run failed", "agent", target.Name(), "channel", msg.Channel, "error", err)
		rt.bus.PublishOutbound(bus.OutboundMessage{
			Channel: msg.Channel,
			ChatID:  msg.ChatID,
			Content: "Sorry, something went wrong handling that. Please try again.",
		})
		return
	}
	if reply.Content == "" {
		return
	}
	rt.bus.PublishOutbound(bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Content: reply.Content,
		AsVoice: msg.WantsVoice,
	})
}
