package registry

import (
	"sort"
	"sync"

	"github.com/vitalwatch/monitor/internal/client"
)

// Alerts is the alert ledger. Alerts are never modified client-side.
type Alerts struct {
	mu        sync.RWMutex
	alerts    []client.Alert
	bySession map[int][]client.Alert
}

// NewAlerts creates an empty alert ledger.
func NewAlerts() *Alerts {
	return &Alerts{bySession: make(map[int][]client.Alert)}
}

// Replace swaps the cached set for alerts.
func (l *Alerts) Replace(alerts []client.Alert) {
	sorted := make([]client.Alert, len(alerts))
	copy(sorted, alerts)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		}
		return sorted[i].ID < sorted[j].ID
	})

	bySession := make(map[int][]client.Alert)
	for _, a := range sorted {
		bySession[a.SessionID] = append(bySession[a.SessionID], a)
	}

	l.mu.Lock()
	l.alerts = sorted
	l.bySession = bySession
	l.mu.Unlock()
}

// List returns the snapshot ordered by timestamp.
func (l *Alerts) List() []client.Alert {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]client.Alert, len(l.alerts))
	copy(out, l.alerts)
	return out
}

// ForSession returns the alerts raised during sessionID.
func (l *Alerts) ForSession(sessionID int) []client.Alert {
	l.mu.RLock()
	defer l.mu.RUnlock()
	src := l.bySession[sessionID]
	out := make([]client.Alert, len(src))
	copy(out, src)
	return out
}

func (l *Alerts) UnacknowledgedCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, a := range l.alerts {
		if !a.Acknowledged {
			n++
		}
	}
	return n
}
