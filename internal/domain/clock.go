package domain

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

var (
	clockMu sync.RWMutex
	clock   = clockwork.NewRealClock()
)

// SetClock replaces the time source behind the VTEC current-year fallback.
// Pass nil to restore the real clock.
func SetClock(c clockwork.Clock) {
	if c == nil {
		c = clockwork.NewRealClock()
	}
	clockMu.Lock()
	clock = c
	clockMu.Unlock()
}

func now() time.Time {
	clockMu.RLock()
	defer clockMu.RUnlock()
	return clock.Now()
}
