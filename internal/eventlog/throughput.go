package eventlog

import (
	"sync"
	"time"
)

// opWindow keeps recent operation timestamps for one channel. Entries older
// than retain are dropped lazily whenever the window is touched.
type opWindow struct {
	mu     sync.Mutex
	retain time.Duration
	ts     []time.Time
}

func newOpWindow(retain time.Duration) *opWindow {
	return &opWindow{retain: retain}
}

func (w *opWindow) record(now time.Time) {
	w.mu.Lock()
	w.pruneLocked(now)
	w.ts = append(w.ts, now)
	w.mu.Unlock()
}

// count returns the number of operations in (now-window, now]. Callers
// bound window by retain; anything older has already been pruned.
func (w *opWindow) count(now time.Time, window time.Duration) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pruneLocked(now)
	if window <= 0 {
		window = w.retain
	}
	cutoff := now.Add(-window)
	n := 0
	for i := len(w.ts) - 1; i >= 0; i-- {
		if !w.ts[i].After(cutoff) {
			break
		}
		n++
	}
	return n
}

func (w *opWindow) pruneLocked(now time.Time) {
	cutoff := now.Add(-w.retain)
	i := 0
	for i < len(w.ts) && !w.ts[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return
	}
	w.ts = append(w.ts[:0], w.ts[i:]...)
}
