package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// SQLStore writes the trail to an audit_log table. The SQL sticks to the
// subset SQLite and Postgres share, so one implementation serves both
// drivers.
type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLStore wraps an open database. The schema comes from the store
// migrations.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

func (s *SQLStore) Log(ctx context.Context, agent, action, detail string, meta map[string]any) error {
	e := entryFromMeta(s.now(), agent, action, detail, meta)
	var metaJSON []byte
	if len(e.Meta) > 0 {
		b, err := json.Marshal(e.Meta)
		if err != nil {
			return fmt.Errorf("audit: encode meta: %w", err)
		}
		metaJSON = b
	}
	// approved is tri-state: NULL for entries where the concept does not
	// apply, 0/1 for resolved requests. Integers keep the SQL portable.
	var approved any
	if e.Approved != nil {
		approved = 0
		if *e.Approved {
			approved = 1
		}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (ts, agent, action, detail, channel, model, provider, tier, approved, duration_ms, cost_gbp, meta)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.Timestamp.UnixMilli(), e.Agent, e.Action, e.Detail, e.Channel, e.Model, e.Provider, e.Tier, approved, e.DurationMS, e.CostGBP, string(metaJSON))
	if err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}

func (s *SQLStore) Recent(ctx context.Context, limit int, agent string) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, ts, agent, action, detail, channel, model, provider, tier, approved, duration_ms, cost_gbp, meta
		 FROM audit_log ORDER BY id DESC LIMIT $1`
	args := []any{limit}
	if agent != "" {
		query = `SELECT id, ts, agent, action, detail, channel, model, provider, tier, approved, duration_ms, cost_gbp, meta
		 FROM audit_log WHERE agent = $1 ORDER BY id DESC LIMIT $2`
		args = []any{agent, limit}
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: query recent: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ts int64
		var approved sql.NullInt64
		var metaJSON sql.NullString
		if err := rows.Scan(&e.ID, &ts, &e.Agent, &e.Action, &e.Detail, &e.Channel, &e.Model, &e.Provider, &e.Tier, &approved, &e.DurationMS, &e.CostGBP, &metaJSON); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		e.Timestamp = time.UnixMilli(ts)
		if approved.Valid {
			v := approved.Int64 != 0
			e.Approved = &v
		}
		if metaJSON.Valid && metaJSON.String != "" {
			_ = json.Unmarshal([]byte(metaJSON.String), &e.Meta)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLStore) CostSummary(ctx context.Context) (CostSummary, error) {
	now := s.now()
	var sum CostSummary

	var monthGBP float64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cost_gbp), 0) FROM audit_log WHERE action = $1 AND ts >= $2`,
		ActionCompletion, periodStart(now, PeriodMonth).UnixMilli()).Scan(&monthGBP)
	if err != nil {
		return sum, fmt.Errorf("audit: month total: %w", err)
	}

	var weekGBP float64
	var weekMsgs int
	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cost_gbp), 0), COUNT(*) FROM audit_log WHERE action = $1 AND ts >= $2`,
		ActionCompletion, periodStart(now, PeriodWeek).UnixMilli()).Scan(&weekGBP, &weekMsgs)
	if err != nil {
		return sum, fmt.Errorf("audit: week total: %w", err)
	}

	var todayGBP float64
	var todayMsgs int
	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cost_gbp), 0), COUNT(*) FROM audit_log WHERE action = $1 AND ts >= $2`,
		ActionCompletion, periodStart(now, PeriodToday).UnixMilli()).Scan(&todayGBP, &todayMsgs)
	if err != nil {
		return sum, fmt.Errorf("audit: today total: %w", err)
	}

	sum.TodayGBP = RoundGBP(todayGBP)
	sum.WeekGBP = RoundGBP(weekGBP)
	sum.MonthGBP = RoundGBP(monthGBP)
	sum.TodayMessages = todayMsgs
	sum.WeekMessages = weekMsgs
	return sum, nil
}

func (s *SQLStore) CostsByChannel(ctx context.Context, period Period) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT COALESCE(NULLIF(channel, ''), 'unknown'), COALESCE(SUM(cost_gbp), 0)
		 FROM audit_log WHERE action = $1 AND ts >= $2 GROUP BY 1`,
		ActionCompletion, periodStart(s.now(), period).UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("audit: costs by channel: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var channel string
		var gbp float64
		if err := rows.Scan(&channel, &gbp); err != nil {
			return nil, fmt.Errorf("audit: scan channel: %w", err)
		}
		out[channel] = RoundGBP(gbp)
	}
	return out, rows.Err()
}

var _ Log = (*SQLStore)(nil)
