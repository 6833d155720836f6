package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// FileLog appends JSON lines to audit.jsonl. It backs the trail when no
// database is available; reads rescan the file, which is fine at personal
// scale.
type FileLog struct {
	mu     sync.Mutex
	path   string
	nextID int64
	now    func() time.Time
}

// NewFileLog opens or creates the JSONL trail at path.
func NewFileLog(path string) (*FileLog, error) {
	l := &FileLog{path: path, nextID: 1, now: time.Now}
	entries, err := l.readAll()
	if err != nil {
		return nil, err
	}
	if n := len(entries); n > 0 {
		l.nextID = entries[n-1].ID + 1
	}
	return l, nil
}

func (l *FileLog) Log(ctx context.Context, agent, action, detail string, meta map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := entryFromMeta(l.now(), agent, action, detail, meta)
	e.ID = l.nextID

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("audit: encode entry: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("audit: open trail: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("audit: append: %w", err)
	}
	l.nextID++
	return nil
}

func (l *FileLog) Recent(ctx context.Context, limit int, agent string) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	entries, err := l.readAll()
	if err != nil {
		return nil, err
	}
	var out []Entry
	for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
		if agent != "" && entries[i].Agent != agent {
			continue
		}
		out = append(out, entries[i])
	}
	return out, nil
}

func (l *FileLog) CostSummary(ctx context.Context) (CostSummary, error) {
	entries, err := l.readAll()
	if err != nil {
		return CostSummary{}, err
	}
	now := l.now()
	today := periodStart(now, PeriodToday)
	week := periodStart(now, PeriodWeek)
	month := periodStart(now, PeriodMonth)

	var sum CostSummary
	for _, e := range entries {
		if e.Action != ActionCompletion {
			continue
		}
		if !e.Timestamp.Before(month) {
			sum.MonthGBP += e.CostGBP
		}
		if !e.Timestamp.Before(week) {
			sum.WeekGBP += e.CostGBP
			sum.WeekMessages++
		}
		if !e.Timestamp.Before(today) {
			sum.TodayGBP += e.CostGBP
			sum.TodayMessages++
		}
	}
	sum.TodayGBP = RoundGBP(sum.TodayGBP)
	sum.WeekGBP = RoundGBP(sum.WeekGBP)
	sum.MonthGBP = RoundGBP(sum.MonthGBP)
	return sum, nil
}

func (l *FileLog) CostsByChannel(ctx context.Context, period Period) (map[string]float64, error) {
	entries, err := l.readAll()
	if err != nil {
		return nil, err
	}
	start := periodStart(l.now(), period)
	out := make(map[string]float64)
	for _, e := range entries {
		if e.Action != ActionCompletion || e.Timestamp.Before(start) {
			continue
		}
		channel := e.Channel
		if channel == "" {
			channel = "unknown"
		}
		out[channel] = RoundGBP(out[channel] + e.CostGBP)
	}
	return out, nil
}

// readAll parses every line, skipping corrupt ones so a torn write cannot
// take down reporting.
func (l *FileLog) readAll() ([]Entry, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("audit: open trail: %w", err)
	}
	defer f.Close()

	var out []Entry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("audit: read trail: %w", err)
	}
	return out, nil
}

var _ Log = (*FileLog)(nil)
