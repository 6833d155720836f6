package memory

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hearthside/domo/internal/providers"
	"github.com/hearthside/domo/internal/store"
)

const (
	// MaxDocLen caps stored text per document.
	MaxDocLen = 10_000
	// MaxDocs caps the index; the oldest documents are pruned first.
	MaxDocs = 5_000

	// flushInterval is how often a dirty index persists.
	flushInterval = 30 * time.Second

	// recencyWindow and recencyWeight shape the TF-IDF recency bonus: it
	// decays linearly to zero over the window.
	recencyWindow = 30 * 24 * time.Hour
	recencyWeight = 0.1
)

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "can": true, "had": true,
	"her": true, "was": true, "one": true, "our": true, "out": true,
	"has": true, "have": true, "this": true, "that": true, "with": true,
	"they": true, "them": true, "from": true, "what": true, "when": true,
	"where": true, "will": true, "would": true, "there": true, "their": true,
	"about": true, "which": true, "been": true, "were": true, "some": true,
	"into": true, "than": true, "then": true, "its": true, "also": true,
	"just": true, "like": true, "very": true, "your": true,
}

// VectorIndex holds the searchable documents. Embeddings are regenerated on
// demand and never persisted; only text, tokens and metadata reach disk.
type VectorIndex struct {
	mu       sync.RWMutex
	docs     []store.VectorDoc
	embeds   map[string][]float64 // doc ID → embedding, in-memory only
	df       map[string]int       // lazy document frequencies
	dfStale  bool
	dirty    bool
	store    store.VectorStore
	embedder providers.Embedder
}

// SearchHit is one scored result.
type SearchHit struct {
	Doc   store.VectorDoc `json:"doc"`
	Score float64         `json:"score"`
}

// NewVectorIndex loads the persisted documents. A nil embedder disables the
// embedding strategy; search then starts at TF-IDF.
func NewVectorIndex(ctx context.Context, vs store.VectorStore, embedder providers.Embedder) *VectorIndex {
	idx := &VectorIndex{
		embeds:   make(map[string][]float64),
		store:    vs,
		embedder: embedder,
		dfStale:  true,
	}
	if vs != nil {
		docs, err := vs.LoadAll(ctx)
		if err != nil {
			slog.Warn("vector index load failed, starting empty", "error", err)
		} else {
			idx.docs = docs
		}
	}
	return idx
}

// Add indexes one document, capping its text, pre-tokenising, and pruning
// the oldest documents beyond MaxDocs.
func (v *VectorIndex) Add(text string, metadata map[string]string) store.VectorDoc {
	text = store.TruncateRunes(text, MaxDocLen)
	doc := store.VectorDoc{
		ID:       uuid.NewString(),
		Text:     text,
		Tokens:   Tokenize(text),
		Metadata: metadata,
		Created:  time.Now().UTC(),
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.docs = append(v.docs, doc)
	if len(v.docs) > MaxDocs {
		for _, old := range v.docs[:len(v.docs)-MaxDocs] {
			delete(v.embeds, old.ID)
		}
		v.docs = append([]store.VectorDoc(nil), v.docs[len(v.docs)-MaxDocs:]...)
	}
	v.dfStale = true
	v.dirty = true
	return doc
}

// Len reports the number of indexed documents.
func (v *VectorIndex) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.docs)
}

// Search tries the three strategies in order: embedding cosine similarity,
// TF-IDF with recency bonus, then plain recency when the query tokenises to
// nothing.
func (v *VectorIndex) Search(ctx context.Context, query string, limit int) []SearchHit {
	if limit <= 0 {
		limit = 5
	}
	tokens := Tokenize(query)
	if len(tokens) == 0 {
		return v.recent(limit)
	}
	if v.embedder != nil {
		if hits, err := v.embeddingSearch(ctx, query, limit); err == nil {
			return hits
		} else {
			slog.Debug("embedding search unavailable, falling back to tf-idf", "error", err)
		}
	}
	return v.tfidfSearch(tokens, limit)
}

func (v *VectorIndex) embeddingSearch(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	v.mu.RLock()
	var missing []store.VectorDoc
	for _, d := range v.docs {
		if _, ok := v.embeds[d.ID]; !ok {
			missing = append(missing, d)
		}
	}
	v.mu.RUnlock()

	// Regenerate absent embeddings in batches; they were never persisted.
	const batch = 64
	for i := 0; i < len(missing); i += batch {
		end := min(i+batch, len(missing))
		texts := make([]string, 0, end-i)
		for _, d := range missing[i:end] {
			texts = append(texts, d.Text)
		}
		vecs, err := v.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, err
		}
		v.mu.Lock()
		for j, d := range missing[i:end] {
			if j < len(vecs) && len(vecs[j]) > 0 {
				v.embeds[d.ID] = vecs[j]
			}
		}
		v.mu.Unlock()
	}

	qvecs, err := v.embedder.Embed(ctx, []string{query})
	if err != nil || len(qvecs) == 0 || len(qvecs[0]) == 0 {
		return nil, err
	}
	qvec := qvecs[0]

	v.mu.RLock()
	defer v.mu.RUnlock()
	hits := make([]SearchHit, 0, len(v.docs))
	for _, d := range v.docs {
		emb, ok := v.embeds[d.ID]
		if !ok {
			continue
		}
		if score := cosine(qvec, emb); score > 0 {
			hits = append(hits, SearchHit{Doc: d, Score: score})
		}
	}
	sortHits(hits)
	return clipHits(hits, limit), nil
}

func (v *VectorIndex) tfidfSearch(queryTokens []string, limit int) []SearchHit {
	v.mu.Lock()
	if v.dfStale {
		v.df = make(map[string]int)
		for _, d := range v.docs {
			seen := make(map[string]bool, len(d.Tokens))
			for _, t := range d.Tokens {
				if !seen[t] {
					seen[t] = true
					v.df[t]++
				}
			}
		}
		v.dfStale = false
	}
	docs := v.docs
	df := v.df
	v.mu.Unlock()

	n := len(docs)
	if n == 0 {
		return nil
	}
	now := time.Now().UTC()

	var hits []SearchHit
	for _, d := range docs {
		tf := make(map[string]int, len(d.Tokens))
		for _, t := range d.Tokens {
			tf[t]++
		}
		score := 0.0
		for _, q := range queryTokens {
			freq := tf[q]
			if freq == 0 {
				continue
			}
			idf := math.Log(1 + float64(n)/float64(1+df[q]))
			score += float64(freq) * idf
		}
		if score <= 0 {
			continue
		}
		age := now.Sub(d.Created)
		if age < recencyWindow {
			score += recencyWeight * (1 - float64(age)/float64(recencyWindow))
		}
		hits = append(hits, SearchHit{Doc: d, Score: score})
	}
	sortHits(hits)
	return clipHits(hits, limit)
}

func (v *VectorIndex) recent(limit int) []SearchHit {
	v.mu.RLock()
	defer v.mu.RUnlock()
	var hits []SearchHit
	for i := len(v.docs) - 1; i >= 0 && len(hits) < limit; i-- {
		hits = append(hits, SearchHit{Doc: v.docs[i]})
	}
	return hits
}

// Flush persists the documents when dirty.
func (v *VectorIndex) Flush(ctx context.Context) error {
	v.mu.Lock()
	if !v.dirty || v.store == nil {
		v.mu.Unlock()
		return nil
	}
	docs := append([]store.VectorDoc(nil), v.docs...)
	v.dirty = false
	v.mu.Unlock()

	if err := v.store.SaveAll(ctx, docs); err != nil {
		v.mu.Lock()
		v.dirty = true
		v.mu.Unlock()
		return err
	}
	return nil
}

// AutoFlush persists the index every 30 s while the context lives, with a
// final flush on shutdown.
func (v *VectorIndex) AutoFlush(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := v.Flush(context.Background()); err != nil {
				slog.Warn("vector index final flush failed", "error", err)
			}
			return
		case <-ticker.C:
			if err := v.Flush(ctx); err != nil {
				slog.Warn("vector index flush failed", "error", err)
			}
		}
	}
}

// Tokenize lowercases, splits on non-alphanumerics, and drops short tokens
// and stop words. This is the persisted token form.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r > 127)
	})
	var out []string
	for _, f := range fields {
		if len([]rune(f)) > 2 && !stopWords[f] {
			out = append(out, f)
		}
	}
	return out
}

func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func sortHits(hits []SearchHit) {
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
}

func clipHits(hits []SearchHit, limit int) []SearchHit {
	if len(hits) > limit {
		return hits[:limit]
	}
	return hits
}
