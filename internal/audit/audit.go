// Package audit keeps an append-only record of everything the runtime does:
// completions, tool calls, deliveries, pairing decisions. Completion entries
// carry the model spend so cost reporting can read straight from the trail.
package audit

import (
	"context"
	"math"
	"time"
)

// Period selects the window for cost queries.
type Period string

const (
	PeriodToday Period = "today"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// ActionCompletion marks entries that represent a paid model call. Cost
// queries only consider these.
const ActionCompletion = "completion"

// ActionApproval marks entries recording a human (or timeout) decision on a
// parked request.
const ActionApproval = "approval"

// Entry is one audit record. The well-known meta keys (channel, model,
// provider, tier, approved, cost, duration_ms) are lifted into fields at
// write time so queries never parse JSON.
type Entry struct {
	ID         int64          `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	Agent      string         `json:"agent"`
	Action     string         `json:"action"`
	Detail     string         `json:"detail,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Model      string         `json:"model,omitempty"`
	Provider   string         `json:"provider,omitempty"`
	Tier       string         `json:"tier,omitempty"`
	Approved   *bool          `json:"approved,omitempty"`
	DurationMS int64          `json:"duration_ms,omitempty"`
	CostGBP    float64        `json:"cost_gbp,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// CostSummary aggregates completion spend over the standard windows.
type CostSummary struct {
	TodayGBP      float64 `json:"today_gbp"`
	WeekGBP       float64 `json:"week_gbp"`
	MonthGBP      float64 `json:"month_gbp"`
	TodayMessages int     `json:"today_messages"`
	WeekMessages  int     `json:"week_messages"`
}

// Log is the audit trail. Implementations append only; entries are never
// updated or removed.
type Log interface {
	Log(ctx context.Context, agent, action, detail string, meta map[string]any) error
	Recent(ctx context.Context, limit int, agent string) ([]Entry, error)
	CostSummary(ctx context.Context) (CostSummary, error)
	CostsByChannel(ctx context.Context, period Period) (map[string]float64, error)
}

// RoundGBP normalises spend to four decimal places, the smallest unit the
// rate table produces.
func RoundGBP(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// periodStart returns the inclusive lower bound for a window. Today starts at
// local midnight; week and month are rolling 7 and 30 days.
func periodStart(now time.Time, p Period) time.Time {
	switch p {
	case PeriodWeek:
		return now.AddDate(0, 0, -7)
	case PeriodMonth:
		return now.AddDate(0, 0, -30)
	default:
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	}
}

func entryFromMeta(now time.Time, agent, action, detail string, meta map[string]any) Entry {
	e := Entry{
		Timestamp: now,
		Agent:     agent,
		Action:    action,
		Detail:    detail,
		Meta:      meta,
	}
	if meta == nil {
		return e
	}
	e.Channel = metaString(meta, "channel")
	e.Model = metaString(meta, "model")
	e.Provider = metaString(meta, "provider")
	e.Tier = metaString(meta, "tier")
	if v, ok := meta["approved"].(bool); ok {
		e.Approved = &v
	}
	e.DurationMS = int64(metaFloat(meta, "duration_ms"))
	e.CostGBP = RoundGBP(metaFloat(meta, "cost"))
	return e
}

func metaString(meta map[string]any, key string) string {
	if v, ok := meta[key].(string); ok {
		return v
	}
	return ""
}

func metaFloat(meta map[string]any, key string) float64 {
	switch v := meta[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}
