package heartbeat

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/hearthside/domo/internal/store"
)

const (
	defaultMaxPerDay   = 3
	defaultMinInterval = 4 * time.Hour
	defaultQuietStart  = 22
	defaultQuietEnd    = 8

	learnStateKey = "autolearn_state"
)

// questionBank is the fallback rotation when the fast model cannot produce
// a contextual question.
var questionBank = []string{
	"What does a really good day look like for you?",
	"Is there a routine or habit you wish I could help you keep?",
	"What kind of updates do you prefer: short summaries or full detail?",
	"Are there topics you never want me to bring up proactively?",
	"What time of day do you usually want to plan things?",
	"Who are the people you coordinate with most often?",
	"What is a recurring chore you would happily hand over?",
	"Do you prefer I ask before acting, or act and report back?",
	"What projects are you trying to make progress on right now?",
	"Is there anything I got wrong recently that I should remember?",
}

// learnState is the persisted auto-learn bookkeeping.
type learnState struct {
	AskedIdx   []int     `json:"asked_idx"`
	LastAsk    time.Time `json:"last_ask"`
	Day        string    `json:"day"` // YYYY-MM-DD of the counter below
	CountToday int       `json:"count_today"`
}

// autoLearnLoop asks the user an occasional question so the knowledge
// stores fill without waiting for volunteered facts.
func (h *Heartbeat) autoLearnLoop(ctx context.Context) {
	ticker := time.NewTicker(autoLearnInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.maybeAsk(ctx)
		}
	}
}

// maybeAsk applies the gates and, when they all pass, emits one question
// through the delivery queue.
func (h *Heartbeat) maybeAsk(ctx context.Context) {
	now := h.now()
	if !h.learnAllowed(now) {
		return
	}
	if h.cfg.DefaultChannel == "" || h.cfg.DefaultTo == "" {
		slog.Debug("auto-learn skipped, no delivery target")
		return
	}

	question := h.contextualQuestion(ctx)
	bankIdx := -1
	if question == "" {
		question, bankIdx = h.bankQuestion(ctx)
	}
	if question == "" {
		return
	}

	if h.queue == nil {
		return
	}
	if _, err := h.queue.Enqueue(ctx, h.cfg.DefaultChannel, h.cfg.DefaultTo, question, nil); err != nil {
		slog.Warn("auto-learn question not queued", "error", err)
		return
	}
	h.markAsked(ctx, bankIdx)
	h.recordAsk(ctx, now)
	slog.Info("auto-learn question queued", "question", question)
}

// learnAllowed checks every gate: per-day count, minimum spacing, quiet
// hours, and the shared cost cap.
func (h *Heartbeat) learnAllowed(now time.Time) bool {
	maxPerDay := h.cfg.AutoLearn.MaxPerDay
	if maxPerDay <= 0 {
		maxPerDay = defaultMaxPerDay
	}
	minInterval := time.Duration(h.cfg.AutoLearn.MinIntervalHours) * time.Hour
	if minInterval <= 0 {
		minInterval = defaultMinInterval
	}

	h.mu.Lock()
	h.rollDayLocked()
	count := h.questionsToday
	last := h.lastQuestion
	spent := h.spentToday
	h.mu.Unlock()

	if count >= maxPerDay {
		return false
	}
	if !last.IsZero() && now.Sub(last) < minInterval {
		return false
	}
	if h.inQuietHours(now.Hour()) {
		return false
	}
	return spent < h.costCap()
}

// inQuietHours handles windows that wrap midnight: start 22, end 8 silences
// 22:00 through 07:59.
func (h *Heartbeat) inQuietHours(hour int) bool {
	start, end := h.cfg.AutoLearn.QuietStart, h.cfg.AutoLearn.QuietEnd
	if start == 0 && end == 0 {
		start, end = defaultQuietStart, defaultQuietEnd
	}
	if start == end {
		return false
	}
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

// contextualQuestion asks the fast model for a question grounded in recent
// conversation. Empty on any failure; the bank covers it.
func (h *Heartbeat) contextualQuestion(ctx context.Context) string {
	if h.complete == nil || h.memory == nil {
		return ""
	}
	history, err := h.memory.History(ctx, h.agent, 10, store.HistoryFilter{})
	if err != nil || len(history) == 0 {
		return ""
	}
	var b strings.Builder
	for _, m := range history {
		b.WriteString(m.Role + ": " + m.Content + "\n")
	}
	system := "You help a personal assistant learn about its user. Given recent " +
		"conversation, write ONE short, friendly question that would teach the " +
		"assistant something new and useful about the user. Reply with the " +
		"question only, or NONE if nothing is worth asking."
	reply, err := h.complete(ctx, system, b.String())
	if err != nil {
		slog.Debug("contextual question failed", "error", err)
		return ""
	}
	reply = strings.TrimSpace(reply)
	if reply == "" || strings.EqualFold(reply, "NONE") || len(reply) > 300 {
		return ""
	}
	return reply
}

// bankQuestion rotates through the template bank. It only selects; the
// index is committed by markAsked once the question is actually queued,
// so a delivery failure re-offers the same question next round.
func (h *Heartbeat) bankQuestion(ctx context.Context) (string, int) {
	state := h.readLearnState(ctx)
	asked := make(map[int]bool, len(state.AskedIdx))
	for _, i := range state.AskedIdx {
		asked[i] = true
	}
	if len(asked) >= len(questionBank) {
		asked = map[int]bool{}
	}
	for i, q := range questionBank {
		if !asked[i] {
			return q, i
		}
	}
	return "", -1
}

// markAsked persists a consumed bank index, clearing the set first when
// the rotation has wrapped. Contextual questions pass -1 and skip it.
func (h *Heartbeat) markAsked(ctx context.Context, idx int) {
	if idx < 0 {
		return
	}
	state := h.readLearnState(ctx)
	if len(state.AskedIdx) >= len(questionBank) {
		state.AskedIdx = nil
	}
	state.AskedIdx = append(state.AskedIdx, idx)
	h.writeLearnState(ctx, state)
}

// recordAsk bumps the counters and persists them.
func (h *Heartbeat) recordAsk(ctx context.Context, now time.Time) {
	h.mu.Lock()
	h.questionsToday++
	h.lastQuestion = now
	count := h.questionsToday
	h.mu.Unlock()

	state := h.readLearnState(ctx)
	state.LastAsk = now
	state.Day = now.Format("2006-01-02")
	state.CountToday = count
	h.writeLearnState(ctx, state)
}

// loadLearnState restores counters across restarts so a reboot cannot reset
// the per-day budget.
func (h *Heartbeat) loadLearnState() {
	state := h.readLearnState(context.Background())
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastQuestion = state.LastAsk
	if state.Day == h.now().Format("2006-01-02") {
		h.questionsToday = state.CountToday
	}
}

func (h *Heartbeat) readLearnState(ctx context.Context) learnState {
	var state learnState
	if h.contexts == nil {
		return state
	}
	raw, ok, err := h.contexts.GetValue(ctx, learnStateKey)
	if err != nil || !ok {
		return state
	}
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		slog.Warn("auto-learn state unreadable, starting fresh", "error", err)
		return learnState{}
	}
	return state
}

func (h *Heartbeat) writeLearnState(ctx context.Context, state learnState) {
	if h.contexts == nil {
		return
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return
	}
	if err := h.contexts.SetValue(ctx, learnStateKey, string(raw)); err != nil {
		slog.Warn("auto-learn state not persisted", "error", err)
	}
}
