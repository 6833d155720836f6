package agent

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/hearthside/domo/internal/providers"
	"github.com/hearthside/domo/internal/router"
	"github.com/hearthside/domo/internal/tools"
	"github.com/hearthside/domo/internal/tracing"
	"github.com/hearthside/domo/internal/trust"
)

const (
	defaultMaxToolCycles = 10
	toolCallTimeout      = 30 * time.Second
)

// Completer is the slice of the router the executor needs. Satisfied by
// *router.Router; tests substitute a scripted fake.
type Completer interface {
	Complete(ctx context.Context, slot router.Slot, req providers.ChatRequest) (*router.Result, error)
}

// ToolEvent notifies an observer (the dashboard) about tool activity.
type ToolEvent struct {
	Tool    string `json:"tool"`
	Phase   string `json:"phase"` // "call" or "result"
	Detail  string `json:"detail,omitempty"`
	IsError bool   `json:"is_error,omitempty"`
}

// Executor runs the model/tool loop: complete, dispatch any requested tool
// calls, feed the results back, repeat until the model answers in text or
// the cycle bound is hit.
type Executor struct {
	completer Completer
	registry  *tools.Registry
	kernel    *trust.Kernel
	maxCycles int

	// OnEvent, when set, receives tool call/result notifications. Must be
	// safe for concurrent use.
	OnEvent func(ToolEvent)
}

// RunResult is the outcome of one executor run with usage summed over all
// cycles.
type RunResult struct {
	Content      string
	Usage        providers.Usage
	CostGBP      float64
	Cycles       int
	Model        string
	Provider     string
	LimitReached bool
}

func NewExecutor(c Completer, registry *tools.Registry, kernel *trust.Kernel, maxCycles int) *Executor {
	if maxCycles <= 0 {
		maxCycles = defaultMaxToolCycles
	}
	return &Executor{completer: c, registry: registry, kernel: kernel, maxCycles: maxCycles}
}

// Run drives the loop. messages must already end with the user turn; system
// is passed through to the provider on every cycle. Tool calls within one
// cycle are dispatched in parallel and their results appended in call order.
func (e *Executor) Run(ctx context.Context, slot router.Slot, system string, messages []providers.Message) (*RunResult, error) {
	var defs []providers.ToolDefinition
	if e.registry != nil {
		defs = e.registry.ProviderDefs()
	}

	out := &RunResult{}
	for cycle := 1; cycle <= e.maxCycles; cycle++ {
		out.Cycles = cycle

		res, err := e.completer.Complete(ctx, slot, providers.ChatRequest{
			Messages: messages,
			System:   system,
			Tools:    defs,
		})
		if err != nil {
			return nil, err
		}
		out.Usage.Add(res.Usage)
		out.CostGBP += res.CostGBP
		out.Model = res.Model
		out.Provider = res.Provider
		out.Content = res.Content

		if len(res.ToolCalls) == 0 {
			return out, nil
		}

		messages = append(messages, providers.Message{
			Role:      "assistant",
			Content:   res.Content,
			ToolCalls: res.ToolCalls,
		})
		for i, text := range e.dispatch(ctx, res.ToolCalls) {
			messages = append(messages, providers.Message{
				Role:       "tool",
				Content:    text,
				ToolCallID: res.ToolCalls[i].ID,
			})
		}
	}

	out.LimitReached = true
	if out.Content != "" {
		out.Content += "\n\n"
	}
	out.Content += "(stopped: tool cycle limit reached before the task finished)"
	return out, nil
}

// dispatch executes one cycle's tool calls concurrently and returns their
// textual results in the original call order.
func (e *Executor) dispatch(ctx context.Context, calls []providers.ToolCall) []string {
	type indexed struct {
		idx  int
		text string
	}
	ch := make(chan indexed, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(idx int, call providers.ToolCall) {
			defer wg.Done()
			ch <- indexed{idx: idx, text: e.runOne(ctx, call)}
		}(i, call)
	}
	wg.Wait()
	close(ch)

	collected := make([]indexed, 0, len(calls))
	for r := range ch {
		collected = append(collected, r)
	}
	sort.Slice(collected, func(a, b int) bool { return collected[a].idx < collected[b].idx })

	texts := make([]string, len(collected))
	for i, r := range collected {
		texts[i] = r.text
	}
	return texts
}

// runOne gates a single call through the trust kernel and executes it with
// its own timeout. A blocked or failed call becomes an error result the
// model sees on the next cycle; it never aborts the run.
func (e *Executor) runOne(ctx context.Context, call providers.ToolCall) string {
	ctx, span := tracing.Start(ctx, "tool."+call.Name)
	defer span.End()
	e.emit(ToolEvent{Tool: call.Name, Phase: "call", Detail: compactArgs(call.Arguments)})

	if e.kernel != nil {
		decision := e.kernel.Check(call.Name + " " + compactArgs(call.Arguments))
		if !decision.Allowed {
			text := "blocked by trust rules: " + decision.Reason
			e.emit(ToolEvent{Tool: call.Name, Phase: "result", Detail: text, IsError: true})
			return "Error: " + text
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, toolCallTimeout)
	defer cancel()

	res := e.registry.Execute(callCtx, call.Name, call.Arguments)
	text := res.ForLLM
	if text == "" {
		text = "(no output)"
	}
	if res.IsError {
		e.emit(ToolEvent{Tool: call.Name, Phase: "result", Detail: text, IsError: true})
		return "Error: " + text
	}
	e.emit(ToolEvent{Tool: call.Name, Phase: "result", Detail: truncateForEvent(text)})
	return text
}

func (e *Executor) emit(ev ToolEvent) {
	if e.OnEvent != nil {
		e.OnEvent(ev)
	}
}

func compactArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

func truncateForEvent(s string) string {
	const max = 300
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
