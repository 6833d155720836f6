package audit

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

var fixedNow = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(`CREATE TABLE audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts INTEGER NOT NULL,
		agent TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		channel TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		provider TEXT NOT NULL DEFAULT '',
		tier TEXT NOT NULL DEFAULT '',
		approved INTEGER,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		cost_gbp REAL NOT NULL DEFAULT 0,
		meta TEXT
	)`)
	if err != nil {
		t.Fatal(err)
	}
	return db
}

// seedTrail writes a known spread of entries: one completion today, one two
// days back, one ten days back, plus a non-completion today that must never
// count toward spend.
func seedTrail(t *testing.T, log Log, setNow func(time.Time)) {
	t.Helper()
	ctx := context.Background()

	setNow(fixedNow.AddDate(0, 0, -10))
	if err := log.Log(ctx, "domo", ActionCompletion, "old", map[string]any{"cost": 0.125, "channel": "telegram"}); err != nil {
		t.Fatal(err)
	}
	setNow(fixedNow.AddDate(0, 0, -2))
	if err := log.Log(ctx, "domo", ActionCompletion, "midweek", map[string]any{"cost": 0.25, "channel": "discord"}); err != nil {
		t.Fatal(err)
	}
	setNow(fixedNow)
	if err := log.Log(ctx, "domo", ActionCompletion, "fresh", map[string]any{"cost": 0.5, "channel": "telegram", "model": "sonnet"}); err != nil {
		t.Fatal(err)
	}
	if err := log.Log(ctx, "scout", "tool_call", "current_time", map[string]any{"cost": 99.0}); err != nil {
		t.Fatal(err)
	}
}

func checkSummary(t *testing.T, log Log) {
	t.Helper()
	sum, err := log.CostSummary(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.TodayGBP != 0.5 || sum.TodayMessages != 1 {
		t.Fatalf("today = %+v", sum)
	}
	if sum.WeekGBP != 0.75 || sum.WeekMessages != 2 {
		t.Fatalf("week = %+v", sum)
	}
	if sum.MonthGBP != 0.875 {
		t.Fatalf("month = %.4f, want 0.8750", sum.MonthGBP)
	}
}

func checkByChannel(t *testing.T, log Log) {
	t.Helper()
	byCh, err := log.CostsByChannel(context.Background(), PeriodWeek)
	if err != nil {
		t.Fatal(err)
	}
	if byCh["telegram"] != 0.5 || byCh["discord"] != 0.25 {
		t.Fatalf("by channel = %v", byCh)
	}
	if _, ok := byCh["unknown"]; ok {
		t.Fatal("non-completion entries must not appear")
	}
}

func TestFileLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	log, err := NewFileLog(path)
	if err != nil {
		t.Fatal(err)
	}
	now := fixedNow
	log.now = func() time.Time { return now }
	seedTrail(t, log, func(ts time.Time) { now = ts })
	log.now = func() time.Time { return fixedNow }

	t.Run("summary", func(t *testing.T) { checkSummary(t, log) })
	t.Run("by channel", func(t *testing.T) { checkByChannel(t, log) })

	t.Run("recent newest first", func(t *testing.T) {
		entries, err := log.Recent(context.Background(), 10, "")
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 4 {
			t.Fatalf("len = %d", len(entries))
		}
		if entries[0].Detail != "current_time" || entries[3].Detail != "old" {
			t.Fatalf("order wrong: %q .. %q", entries[0].Detail, entries[3].Detail)
		}
	})

	t.Run("agent filter", func(t *testing.T) {
		entries, err := log.Recent(context.Background(), 10, "scout")
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 1 || entries[0].Agent != "scout" {
			t.Fatalf("entries = %+v", entries)
		}
	})

	t.Run("ids survive reopen", func(t *testing.T) {
		reopened, err := NewFileLog(path)
		if err != nil {
			t.Fatal(err)
		}
		if err := reopened.Log(context.Background(), "domo", "delivery", "queued", nil); err != nil {
			t.Fatal(err)
		}
		entries, _ := reopened.Recent(context.Background(), 1, "")
		if entries[0].ID != 5 {
			t.Fatalf("id after reopen = %d, want 5", entries[0].ID)
		}
	})
}

func TestFileLogSkipsCorruptLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	log, err := NewFileLog(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := log.Log(context.Background(), "domo", "startup", "", nil); err != nil {
		t.Fatal(err)
	}
	f, _ := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	f.WriteString("{torn write\n")
	f.Close()
	if err := log.Log(context.Background(), "domo", "shutdown", "", nil); err != nil {
		t.Fatal(err)
	}

	entries, err := log.Recent(context.Background(), 10, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("len = %d, want 2 (corrupt line skipped)", len(entries))
	}
}

func TestSQLStore(t *testing.T) {
	store := NewSQLStore(openTestDB(t))
	now := fixedNow
	store.now = func() time.Time { return now }
	seedTrail(t, store, func(ts time.Time) { now = ts })
	store.now = func() time.Time { return fixedNow }

	t.Run("summary", func(t *testing.T) { checkSummary(t, store) })
	t.Run("by channel", func(t *testing.T) { checkByChannel(t, store) })

	t.Run("recent with meta round-trip", func(t *testing.T) {
		entries, err := store.Recent(context.Background(), 2, "domo")
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 2 {
			t.Fatalf("len = %d", len(entries))
		}
		if entries[0].Model != "sonnet" || entries[0].CostGBP != 0.5 {
			t.Fatalf("entry = %+v", entries[0])
		}
		if entries[0].Meta["channel"] != "telegram" {
			t.Fatalf("meta = %v", entries[0].Meta)
		}
	})

	t.Run("approved tri-state", func(t *testing.T) { checkApproved(t, store) })
}

// checkApproved verifies the decision field: absent on ordinary entries,
// false/true on approval resolutions, surviving a round-trip.
func checkApproved(t *testing.T, log Log) {
	t.Helper()
	ctx := context.Background()
	if err := log.Log(ctx, "domo", ActionApproval, "delete old backups", map[string]any{"approved": true, "resolved_by": "owner"}); err != nil {
		t.Fatal(err)
	}
	if err := log.Log(ctx, "domo", ActionApproval, "send money", map[string]any{"approved": false, "reason": "not today"}); err != nil {
		t.Fatal(err)
	}
	entries, err := log.Recent(ctx, 3, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("len = %d", len(entries))
	}
	if entries[0].Approved == nil || *entries[0].Approved {
		t.Fatalf("denied entry approved = %v", entries[0].Approved)
	}
	if entries[1].Approved == nil || !*entries[1].Approved {
		t.Fatalf("approved entry approved = %v", entries[1].Approved)
	}
	if entries[2].Approved != nil {
		t.Fatalf("ordinary entry approved = %v, want nil", *entries[2].Approved)
	}
}

func TestRoundGBP(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0.00004, 0},
		{0.00005, 0.0001},
		{1.23456789, 1.2346},
		{0, 0},
	}
	for _, tt := range tests {
		if got := RoundGBP(tt.in); got != tt.want {
			t.Errorf("RoundGBP(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
