package heartbeat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hearthside/domo/internal/config"
	"github.com/hearthside/domo/internal/delivery"
	"github.com/hearthside/domo/internal/store"
	"github.com/hearthside/domo/internal/store/file"
)

func learnConfig() config.HeartbeatConfig {
	return config.HeartbeatConfig{
		Enabled: true,
		AutoLearn: config.AutoLearnConfig{
			Enabled:          true,
			MaxPerDay:        2,
			MinIntervalHours: 1,
			QuietStart:       22,
			QuietEnd:         8,
		},
		DailyCostCap:   1.0,
		DefaultChannel: "telegram",
		DefaultTo:      "42",
	}
}

func newTestHeartbeat(t *testing.T, ds store.DeliveryStore, cs store.ContextStore) *Heartbeat {
	t.Helper()
	h := New(Options{
		Config:   learnConfig(),
		Run:      func(ctx context.Context, agent, prompt string) (string, float64, error) { return "", 0, nil },
		Contexts: cs,
		Queue:    delivery.New(ds),
	})
	return h
}

func TestCronExprMapping(t *testing.T) {
	tests := []struct {
		every string
		want  string
	}{
		{"every-minute", "* * * * *"},
		{"5-minutes", "*/5 * * * *"},
		{"hour", "0 * * * *"},
		{"day", "0 9 * * *"},
		{"*/10 * * * *", "*/10 * * * *"},
	}
	for _, tt := range tests {
		if got := cronExpr(tt.every); got != tt.want {
			t.Errorf("cronExpr(%q) = %q, want %q", tt.every, got, tt.want)
		}
	}
}

func TestInvalidTaskSchedulesAreDropped(t *testing.T) {
	h := New(Options{
		Config: config.HeartbeatConfig{
			Enabled: true,
			Tasks: []config.HeartbeatTask{
				{Every: "hour", Prompt: "check in"},
				{Every: "whenever", Prompt: "never runs"},
				{Every: "day", Prompt: ""},
			},
		},
		Run: func(ctx context.Context, agent, prompt string) (string, float64, error) { return "", 0, nil },
	})
	if len(h.tasks) != 1 {
		t.Fatalf("tasks = %d, want 1", len(h.tasks))
	}
}

func TestAutoLearnGates(t *testing.T) {
	ds := file.NewDeliveryStore("", false)
	cs := file.NewMemoryFile("", false)
	h := newTestHeartbeat(t, ds, cs)

	base := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	now := base
	h.now = func() time.Time { return now }
	h.dayStart = base

	ctx := context.Background()
	count := func() int {
		items, err := ds.All(ctx, 50)
		if err != nil {
			t.Fatal(err)
		}
		return len(items)
	}

	h.maybeAsk(ctx)
	if count() != 1 {
		t.Fatalf("first ask: queued = %d", count())
	}

	// Too soon: within the minimum interval.
	now = base.Add(10 * time.Minute)
	h.maybeAsk(ctx)
	if count() != 1 {
		t.Fatalf("interval gate failed: queued = %d", count())
	}

	// Past the interval: second question allowed.
	now = base.Add(2 * time.Hour)
	h.maybeAsk(ctx)
	if count() != 2 {
		t.Fatalf("second ask: queued = %d", count())
	}

	// Per-day cap of 2 reached.
	now = base.Add(5 * time.Hour)
	h.maybeAsk(ctx)
	if count() != 2 {
		t.Fatalf("daily cap failed: queued = %d", count())
	}
}

func TestAutoLearnQuietHours(t *testing.T) {
	ds := file.NewDeliveryStore("", false)
	h := newTestHeartbeat(t, ds, file.NewMemoryFile("", false))

	now := time.Date(2026, 8, 26, 23, 30, 0, 0, time.UTC)
	h.now = func() time.Time { return now }
	h.dayStart = now

	h.maybeAsk(context.Background())
	if items, _ := ds.All(context.Background(), 10); len(items) != 0 {
		t.Fatalf("asked during quiet hours: %d", len(items))
	}
}

func TestAutoLearnCostCap(t *testing.T) {
	ds := file.NewDeliveryStore("", false)
	h := newTestHeartbeat(t, ds, file.NewMemoryFile("", false))

	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return now }
	h.dayStart = now
	h.addCost(1.5) // over the 1.0 cap

	h.maybeAsk(context.Background())
	if items, _ := ds.All(context.Background(), 10); len(items) != 0 {
		t.Fatalf("asked over the cost cap: %d", len(items))
	}
}

func TestQuietHoursWindow(t *testing.T) {
	h := newTestHeartbeat(t, file.NewDeliveryStore("", false), file.NewMemoryFile("", false))
	tests := []struct {
		hour int
		want bool
	}{
		{23, true},
		{3, true},
		{7, true},
		{8, false},
		{12, false},
		{21, false},
		{22, true},
	}
	for _, tt := range tests {
		if got := h.inQuietHours(tt.hour); got != tt.want {
			t.Errorf("inQuietHours(%d) = %v", tt.hour, got)
		}
	}
}

func TestBankRotationPersistsAcrossRestarts(t *testing.T) {
	ds := file.NewDeliveryStore("", false)
	cs := file.NewMemoryFile("", false)
	ctx := context.Background()

	h1 := newTestHeartbeat(t, ds, cs)
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	h1.now = func() time.Time { return now }
	h1.dayStart = now
	h1.maybeAsk(ctx)

	items, err := ds.All(ctx, 10)
	if err != nil || len(items) != 1 {
		t.Fatalf("items = %v err = %v", items, err)
	}
	if items[0].Content != questionBank[0] {
		t.Fatalf("first question = %q", items[0].Content)
	}

	// A fresh instance sharing the context store continues the rotation.
	h2 := newTestHeartbeat(t, ds, cs)
	now2 := now.Add(26 * time.Hour)
	h2.now = func() time.Time { return now2 }
	h2.dayStart = now2
	h2.maybeAsk(ctx)

	items, _ = ds.All(ctx, 10)
	if len(items) != 2 {
		t.Fatalf("items = %d", len(items))
	}
	asked := map[string]bool{items[0].Content: true, items[1].Content: true}
	if !asked[questionBank[0]] || !asked[questionBank[1]] {
		t.Fatalf("rotation repeated a question: %v", asked)
	}
}

// flakyDeliveryStore fails enqueues until fail is cleared, then delegates.
type flakyDeliveryStore struct {
	store.DeliveryStore
	fail bool
}

func (s *flakyDeliveryStore) Enqueue(ctx context.Context, item store.DeliveryItem) (store.DeliveryItem, error) {
	if s.fail {
		return store.DeliveryItem{}, errors.New("store offline")
	}
	return s.DeliveryStore.Enqueue(ctx, item)
}

func TestFailedEnqueueDoesNotConsumeBankQuestion(t *testing.T) {
	ds := &flakyDeliveryStore{DeliveryStore: file.NewDeliveryStore("", false), fail: true}
	cs := file.NewMemoryFile("", false)
	h := newTestHeartbeat(t, ds, cs)

	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return now }
	h.dayStart = now
	ctx := context.Background()

	h.maybeAsk(ctx)
	if state := h.readLearnState(ctx); len(state.AskedIdx) != 0 {
		t.Fatalf("failed enqueue consumed bank index: %v", state.AskedIdx)
	}

	// Once delivery recovers the same question goes out.
	ds.fail = false
	h.maybeAsk(ctx)
	items, err := ds.All(ctx, 10)
	if err != nil || len(items) != 1 {
		t.Fatalf("items = %v err = %v", items, err)
	}
	if items[0].Content != questionBank[0] {
		t.Fatalf("question after recovery = %q, want %q", items[0].Content, questionBank[0])
	}
	if state := h.readLearnState(ctx); len(state.AskedIdx) != 1 || state.AskedIdx[0] != 0 {
		t.Fatalf("asked indices = %v", state.AskedIdx)
	}
}

func TestDailyCounterResets(t *testing.T) {
	h := newTestHeartbeat(t, file.NewDeliveryStore("", false), file.NewMemoryFile("", false))
	base := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	now := base
	h.now = func() time.Time { return now }
	h.dayStart = base
	h.addCost(0.9)

	if got := h.SpentToday(); got != 0.9 {
		t.Fatalf("spent = %f", got)
	}
	now = base.Add(25 * time.Hour)
	if got := h.SpentToday(); got != 0 {
		t.Fatalf("spend not reset: %f", got)
	}
}
