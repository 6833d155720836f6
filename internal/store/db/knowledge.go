package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hearthside/domo/internal/store"
)

// KnowledgeStore implements store.KnowledgeStore over SQL.
type KnowledgeStore struct {
	db *sql.DB
}

func NewKnowledgeStore(db *sql.DB) *KnowledgeStore {
	return &KnowledgeStore{db: db}
}

func (s *KnowledgeStore) Add(ctx context.Context, e store.KnowledgeEntry) (store.KnowledgeEntry, bool, error) {
	e.Content = strings.TrimSpace(store.TruncateRunes(e.Content, store.MaxKnowledgeContentLen))
	if e.Content == "" {
		return store.KnowledgeEntry{}, false, fmt.Errorf("knowledge: empty content")
	}
	if e.Confidence <= 0 || e.Confidence > 1 {
		e.Confidence = 0.7
	}
	now := time.Now()

	// Duplicate check: same partition, same content prefix. Partitions are
	// small (caps ≤ 200) so scanning them is cheap and keeps the prefix
	// comparison in one place.
	prefix := store.PrefixRunes(e.Content, store.DedupePrefixLen)
	rows, err := s.db.QueryContext(ctx, `SELECT id, content FROM knowledge WHERE type = $1`, string(e.Type))
	if err != nil {
		return store.KnowledgeEntry{}, false, fmt.Errorf("knowledge: dedupe scan: %w", err)
	}
	var dupID int64
	for rows.Next() {
		var id int64
		var content string
		if err := rows.Scan(&id, &content); err != nil {
			rows.Close()
			return store.KnowledgeEntry{}, false, fmt.Errorf("knowledge: scan: %w", err)
		}
		if store.PrefixRunes(content, store.DedupePrefixLen) == prefix {
			dupID = id
			break
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return store.KnowledgeEntry{}, false, err
	}

	if dupID != 0 {
		_, err := s.db.ExecContext(ctx,
			`UPDATE knowledge SET content = $1, confidence = $2, source = $3, updated_at = $4 WHERE id = $5`,
			e.Content, e.Confidence, e.Source, now.UnixMilli(), dupID)
		if err != nil {
			return store.KnowledgeEntry{}, false, fmt.Errorf("knowledge: update duplicate: %w", err)
		}
		stored, err := s.get(ctx, dupID)
		return stored, false, err
	}

	if err := s.evictForCap(ctx, e.Type); err != nil {
		return store.KnowledgeEntry{}, false, err
	}

	e.Created = now
	e.Updated = now
	e.AccessCount = 0
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO knowledge (type, content, confidence, source, created_at, updated_at, access_count)
		 VALUES ($1, $2, $3, $4, $5, $6, 0) RETURNING id`,
		string(e.Type), e.Content, e.Confidence, e.Source, now.UnixMilli(), now.UnixMilli(),
	).Scan(&e.ID)
	if err != nil {
		return store.KnowledgeEntry{}, false, fmt.Errorf("knowledge: insert: %w", err)
	}
	return e, true, nil
}

// evictForCap removes least-accessed-then-oldest entries until the partition
// has room for one more.
func (s *KnowledgeStore) evictForCap(ctx context.Context, t store.KnowledgeType) error {
	limit, ok := store.KnowledgeCaps[t]
	if !ok {
		return fmt.Errorf("knowledge: unknown type %q", t)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM knowledge WHERE type = $1`, string(t)).Scan(&count); err != nil {
		return fmt.Errorf("knowledge: count: %w", err)
	}
	if count < limit {
		return nil
	}
	excess := count - limit + 1
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM knowledge WHERE id IN (
			SELECT id FROM knowledge WHERE type = $1 ORDER BY access_count ASC, created_at ASC LIMIT $2
		)`, string(t), excess)
	if err != nil {
		return fmt.Errorf("knowledge: evict: %w", err)
	}
	return nil
}

func (s *KnowledgeStore) GetByType(ctx context.Context, t store.KnowledgeType, limit int) ([]store.KnowledgeEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, content, confidence, source, created_at, updated_at, access_count
		 FROM knowledge WHERE type = $1 ORDER BY confidence DESC, updated_at DESC LIMIT $2`,
		string(t), limit)
	if err != nil {
		return nil, fmt.Errorf("knowledge: get by type: %w", err)
	}
	entries, err := scanKnowledge(rows)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return entries, nil
	}

	ids := make([]any, len(entries))
	marks := make([]string, len(entries))
	for i := range entries {
		ids[i] = entries[i].ID
		marks[i] = fmt.Sprintf("$%d", i+1)
	}
	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE knowledge SET access_count = access_count + 1 WHERE id IN (%s)`, strings.Join(marks, ", ")),
		ids...)
	if err != nil {
		return nil, fmt.Errorf("knowledge: bump access: %w", err)
	}
	for i := range entries {
		entries[i].AccessCount++
	}
	return entries, nil
}

func (s *KnowledgeStore) Search(ctx context.Context, query string, limit int) ([]store.KnowledgeEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	tokens := store.QueryTokens(query)
	if len(tokens) == 0 {
		return nil, nil
	}
	conds := make([]string, len(tokens))
	args := make([]any, 0, len(tokens)+1)
	for i, tok := range tokens {
		args = append(args, "%"+tok+"%")
		conds[i] = fmt.Sprintf("LOWER(content) LIKE $%d", len(args))
	}
	args = append(args, limit)
	q := fmt.Sprintf(
		`SELECT id, type, content, confidence, source, created_at, updated_at, access_count
		 FROM knowledge WHERE %s ORDER BY confidence DESC, updated_at DESC LIMIT $%d`,
		strings.Join(conds, " OR "), len(args))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("knowledge: search: %w", err)
	}
	return scanKnowledge(rows)
}

func (s *KnowledgeStore) CountByType(ctx context.Context) (map[store.KnowledgeType]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM knowledge GROUP BY type`)
	if err != nil {
		return nil, fmt.Errorf("knowledge: count by type: %w", err)
	}
	defer rows.Close()
	out := make(map[store.KnowledgeType]int)
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, err
		}
		out[store.KnowledgeType(t)] = n
	}
	return out, rows.Err()
}

func (s *KnowledgeStore) get(ctx context.Context, id int64) (store.KnowledgeEntry, error) {
	var e store.KnowledgeEntry
	var t string
	var created, updated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, type, content, confidence, source, created_at, updated_at, access_count
		 FROM knowledge WHERE id = $1`, id,
	).Scan(&e.ID, &t, &e.Content, &e.Confidence, &e.Source, &created, &updated, &e.AccessCount)
	if err != nil {
		return store.KnowledgeEntry{}, fmt.Errorf("knowledge: get: %w", err)
	}
	e.Type = store.KnowledgeType(t)
	e.Created = time.UnixMilli(created)
	e.Updated = time.UnixMilli(updated)
	return e, nil
}

func scanKnowledge(rows *sql.Rows) ([]store.KnowledgeEntry, error) {
	defer rows.Close()
	var out []store.KnowledgeEntry
	for rows.Next() {
		var e store.KnowledgeEntry
		var t string
		var created, updated int64
		if err := rows.Scan(&e.ID, &t, &e.Content, &e.Confidence, &e.Source, &created, &updated, &e.AccessCount); err != nil {
			return nil, fmt.Errorf("knowledge: scan: %w", err)
		}
		e.Type = store.KnowledgeType(t)
		e.Created = time.UnixMilli(created)
		e.Updated = time.UnixMilli(updated)
		out = append(out, e)
	}
	return out, rows.Err()
}

var _ store.KnowledgeStore = (*KnowledgeStore)(nil)
