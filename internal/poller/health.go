package poller

import (
	"sync"
	"time"

	"github.com/vitalwatch/monitor/internal/client"
)

// HealthStatus summarises how a feed has been doing over recent ticks.
type HealthStatus string

const (
	StatusHealthy  HealthStatus = "healthy"
	StatusDegraded HealthStatus = "degraded"
	StatusFailed   HealthStatus = "failed"
)

// FeedHealth is a snapshot of one feed's failure tracking. Only committed
// results count as successes; cancelled or superseded fetches count as
// neither.
type FeedHealth struct {
	Feed                client.Feed
	Status              HealthStatus
	ConsecutiveFailures int
	LastError           string
	LastFailure         time.Time
	LastSuccess         time.Time
}

// feedHealth tracks consecutive failures for a single feed. Fetch
// goroutines write it while the UI reads snapshots, hence the mutex.
type feedHealth struct {
	mu          sync.Mutex
	failures    int
	lastErr     string
	lastFailure time.Time
	lastSuccess time.Time
}

func newFeedHealth() *feedHealth {
	return &feedHealth{}
}

func (h *feedHealth) recordSuccess(at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures = 0
	h.lastErr = ""
	h.lastSuccess = at
}

func (h *feedHealth) recordFailure(err error, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures++
	h.lastErr = err.Error()
	h.lastFailure = at
}

// snapshot returns a consistent copy under the lock. A feed is degraded
// after any failure and failed once threshold consecutive failures have
// accumulated.
func (h *feedHealth) snapshot(feed client.Feed, threshold int) FeedHealth {
	h.mu.Lock()
	defer h.mu.Unlock()
	return FeedHealth{
		Feed:                feed,
		Status:              h.statusLocked(threshold),
		ConsecutiveFailures: h.failures,
		LastError:           h.lastErr,
		LastFailure:         h.lastFailure,
		LastSuccess:         h.lastSuccess,
	}
}

// statusLocked computes health status. Caller must hold h.mu.
func (h *feedHealth) statusLocked(threshold int) HealthStatus {
	switch {
	case h.failures >= threshold:
		return StatusFailed
	case h.failures > 0:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}
