package channel

import (
	"sync"
	"time"
)

// Connection loss reasons reported to the session.
const (
	ReasonFailed       = "Failed to establish connection"
	ReasonTimeout      = "Connection timeout - please check your network"
	ReasonSubscription = "Subscription error occurred"
)

// watchdog turns connection state changes into a single loss report.
// A failed connection is lost at once; an unavailable one is lost only if
// it stays unavailable for the whole grace period.
type watchdog struct {
	grace  time.Duration
	onLoss func(reason string)

	mu       sync.Mutex
	timer    *time.Timer
	reported bool
	stopped  bool
}

func newWatchdog(grace time.Duration, onLoss func(string)) *watchdog {
	return &watchdog{grace: grace, onLoss: onLoss}
}

// observe feeds one state change to the watchdog.
func (w *watchdog) observe(s State) {
	switch s {
	case StateFailed:
		w.lose(ReasonFailed)
	case StateUnavailable:
		w.mu.Lock()
		if w.stopped || w.reported || w.timer != nil {
			w.mu.Unlock()
			return
		}
		w.timer = time.AfterFunc(w.grace, func() { w.lose(ReasonTimeout) })
		w.mu.Unlock()
	default:
		w.mu.Lock()
		w.clearTimer()
		w.mu.Unlock()
	}
}

// lose reports a loss once.
func (w *watchdog) lose(reason string) {
	w.mu.Lock()
	if w.stopped || w.reported {
		w.mu.Unlock()
		return
	}
	w.reported = true
	w.clearTimer()
	fn := w.onLoss
	w.mu.Unlock()
	if fn != nil {
		fn(reason)
	}
}

// stop cancels any pending timer and suppresses further reports.
func (w *watchdog) stop() {
	w.mu.Lock()
	w.stopped = true
	w.clearTimer()
	w.mu.Unlock()
}

// clearTimer must be called with w.mu held.
func (w *watchdog) clearTimer() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}
