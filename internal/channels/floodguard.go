package channels

import (
	"sync"
	"time"
)

const (
	floodWindow    = time.Minute
	floodLimit     = 30
	maxTrackedKeys = 4096
)

// floodGuard is a per-sender sliding window limiter. It only protects the
// inbound path; outbound pacing is the platform SDK's problem.
type floodGuard struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	now     func() time.Time
}

func newFloodGuard() *floodGuard {
	return &floodGuard{
		windows: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// allow records one message from key and reports whether it is within the
// rate. When the tracked-key table overflows it is cleared rather than
// evicted piecemeal; a momentary reset is preferable to unbounded growth.
func (f *floodGuard) allow(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	cutoff := now.Add(-floodWindow)

	recent := f.windows[key][:0]
	for _, t := range f.windows[key] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	if len(recent) >= floodLimit {
		f.windows[key] = recent
		return false
	}

	if len(f.windows) >= maxTrackedKeys {
		f.windows = make(map[string][]time.Time)
		recent = nil
	}
	f.windows[key] = append(recent, now)
	return true
}
