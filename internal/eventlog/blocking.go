package eventlog

import (
	"context"
	"time"
)

// WaitForAppend blocks until an append lands on channel, the store is reset,
// ctx is done, or timeout elapses. It returns true when woken by the store.
// A non-positive timeout waits on ctx alone.
func (s *Store) WaitForAppend(ctx context.Context, channelName string, timeout time.Duration) bool {
	var ch <-chan struct{}
	if c := s.lookup(channelName); c != nil {
		c.mu.Lock()
		ch = c.notifyCh
		c.mu.Unlock()
	}
	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}
	select {
	case <-ch:
		return true
	case <-timer:
		return false
	case <-ctx.Done():
		return false
	}
}
