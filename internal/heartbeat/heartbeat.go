// Package heartbeat drives the proactive side of the runtime: fixed-interval
// prompts, graph discovery summaries, and auto-learn questions. All three
// schedulers draw on one shared daily cost cap.
package heartbeat

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/hearthside/domo/internal/bus"
	"github.com/hearthside/domo/internal/config"
	"github.com/hearthside/domo/internal/delivery"
	"github.com/hearthside/domo/internal/memory"
	"github.com/hearthside/domo/internal/store"
)

const (
	tickInterval      = time.Minute
	autoLearnInterval = 30 * time.Minute

	defaultDailyCostCap = 1.0 // GBP
	defaultGraphHours   = 6
)

// Channel is the synthetic channel name heartbeat turns run under.
const Channel = "heartbeat"

// RunFunc invokes an agent with a prompt on the heartbeat channel and
// returns the reply text and its cost.
type RunFunc func(ctx context.Context, agentName, prompt string) (content string, costGBP float64, err error)

// CompleteFunc asks the fast model directly, bypassing the agent pipeline.
// Used for auto-learn question generation.
type CompleteFunc func(ctx context.Context, system, prompt string) (string, error)

// task is one validated fixed-interval prompt.
type task struct {
	expr   string
	agent  string
	prompt string
}

// Heartbeat owns the three scheduler loops. Start launches them; Stop is
// context cancellation.
type Heartbeat struct {
	cfg      config.HeartbeatConfig
	run      RunFunc
	complete CompleteFunc
	memory   *memory.Manager
	contexts store.ContextStore
	queue    *delivery.Queue
	bus      *bus.MessageBus
	tasks    []task
	cron     gronx.Gronx
	agent    string // default agent name for graph/auto-learn runs

	mu             sync.Mutex
	dayStart       time.Time
	spentToday     float64
	questionsToday int
	lastQuestion   time.Time

	now func() time.Time // test override
}

// Options wires a Heartbeat.
type Options struct {
	Config   config.HeartbeatConfig
	Run      RunFunc
	Complete CompleteFunc
	Memory   *memory.Manager
	Contexts store.ContextStore
	Queue    *delivery.Queue
	Bus      *bus.MessageBus
	Agent    string // default agent name
}

func New(opts Options) *Heartbeat {
	h := &Heartbeat{
		cfg:      opts.Config,
		run:      opts.Run,
		complete: opts.Complete,
		memory:   opts.Memory,
		contexts: opts.Contexts,
		queue:    opts.Queue,
		bus:      opts.Bus,
		agent:    opts.Agent,
		cron:     *gronx.New(),
		now:      time.Now,
	}
	h.dayStart = h.now()

	for _, t := range opts.Config.Tasks {
		expr := cronExpr(t.Every)
		if !h.cron.IsValid(expr) {
			slog.Warn("heartbeat task skipped, bad schedule", "every", t.Every)
			continue
		}
		if strings.TrimSpace(t.Prompt) == "" {
			slog.Warn("heartbeat task skipped, empty prompt", "every", t.Every)
			continue
		}
		h.tasks = append(h.tasks, task{expr: expr, agent: t.Agent, prompt: t.Prompt})
	}
	h.loadLearnState()
	return h
}

// cronExpr maps the friendly interval names onto cron syntax. Anything else
// is treated as a raw cron expression and validated by the caller.
func cronExpr(every string) string {
	switch every {
	case "every-minute":
		return "* * * * *"
	case "5-minutes":
		return "*/5 * * * *"
	case "hour":
		return "0 * * * *"
	case "day":
		return "0 9 * * *"
	default:
		return every
	}
}

// Start launches the scheduler loops and blocks until ctx is cancelled.
func (h *Heartbeat) Start(ctx context.Context) {
	if !h.cfg.Enabled {
		slog.Info("heartbeat disabled")
		return
	}
	var wg sync.WaitGroup
	if len(h.tasks) > 0 {
		wg.Add(1)
		go func() { defer wg.Done(); h.taskLoop(ctx) }()
	}
	if h.cfg.Graph.Enabled && h.memory != nil {
		wg.Add(1)
		go func() { defer wg.Done(); h.graphLoop(ctx) }()
	}
	if h.cfg.AutoLearn.Enabled {
		wg.Add(1)
		go func() { defer wg.Done(); h.autoLearnLoop(ctx) }()
	}
	slog.Info("heartbeat started", "tasks", len(h.tasks),
		"graph", h.cfg.Graph.Enabled, "auto_learn", h.cfg.AutoLearn.Enabled)
	wg.Wait()
}

// taskLoop fires due tasks once per minute.
func (h *Heartbeat) taskLoop(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, t := range h.tasks {
				due, err := h.cron.IsDue(t.expr, now)
				if err != nil || !due {
					continue
				}
				h.fire(ctx, t.agent, t.prompt)
			}
		}
	}
}

// graphLoop runs the discovery queries every N hours and asks the agent to
// summarise whatever the graph returned.
func (h *Heartbeat) graphLoop(ctx context.Context) {
	hours := h.cfg.Graph.EveryHours
	if hours <= 0 {
		hours = defaultGraphHours
	}
	ticker := time.NewTicker(time.Duration(hours) * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.runGraphDiscovery(ctx)
		}
	}
}

func (h *Heartbeat) runGraphDiscovery(ctx context.Context) {
	var findings []string
	for _, q := range h.cfg.Graph.Queries {
		if result := h.memory.GraphQuery(ctx, q); strings.TrimSpace(result) != "" {
			findings = append(findings, result)
		}
	}
	if len(findings) == 0 {
		return
	}
	prompt := "Review what the knowledge graph surfaced and mention anything " +
		"worth telling the user. Reply NO_REPLY if nothing stands out.\n\n" +
		strings.Join(findings, "\n\n")
	h.fire(ctx, h.agent, prompt)
}

// fire invokes the agent under the cost cap and routes any reply to the
// default delivery target.
func (h *Heartbeat) fire(ctx context.Context, agentName, prompt string) {
	if !h.underCap() {
		slog.Info("heartbeat skipped, daily cost cap reached")
		return
	}
	content, cost, err := h.run(ctx, agentName, prompt)
	h.addCost(cost)
	if err != nil {
		slog.Warn("heartbeat run failed", "error", err)
		return
	}
	h.deliver(content)
}

// deliver publishes non-silent output to the configured default target.
func (h *Heartbeat) deliver(content string) {
	content = strings.TrimSpace(content)
	if content == "" || isNoReply(content) {
		return
	}
	if h.cfg.DefaultChannel == "" || h.cfg.DefaultTo == "" {
		slog.Debug("heartbeat output dropped, no default delivery target")
		return
	}
	if h.bus != nil {
		h.bus.PublishOutbound(bus.OutboundMessage{
			Channel: h.cfg.DefaultChannel,
			ChatID:  h.cfg.DefaultTo,
			Content: content,
		})
	}
}

func isNoReply(s string) bool {
	return strings.Contains(s, "NO_REPLY")
}

// costCap returns the shared daily budget.
func (h *Heartbeat) costCap() float64 {
	if h.cfg.DailyCostCap > 0 {
		return h.cfg.DailyCostCap
	}
	return defaultDailyCostCap
}

// underCap reports whether spending is still allowed, rolling the day over
// on 24 h boundaries.
func (h *Heartbeat) underCap() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rollDayLocked()
	return h.spentToday < h.costCap()
}

func (h *Heartbeat) addCost(cost float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rollDayLocked()
	h.spentToday += cost
}

// SpentToday reports the current day's spend for the health endpoint.
func (h *Heartbeat) SpentToday() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rollDayLocked()
	return h.spentToday
}

func (h *Heartbeat) rollDayLocked() {
	now := h.now()
	if now.Sub(h.dayStart) >= 24*time.Hour {
		h.dayStart = now
		h.spentToday = 0
		h.questionsToday = 0
	}
}
