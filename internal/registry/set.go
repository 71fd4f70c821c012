package registry

import (
	"go.uber.org/zap"

	"github.com/vitalwatch/monitor/internal/client"
)

// Set bundles the four caches the poller writes.
type Set struct {
	Patients *Patients
	Sessions *Sessions
	Alerts   *Alerts
	Stats    *Stats
}

// NewSet creates the four empty caches.
func NewSet(logger *zap.Logger) *Set {
	return &Set{
		Patients: NewPatients(),
		Sessions: NewSessions(logger),
		Alerts:   NewAlerts(),
		Stats:    NewStats(),
	}
}

// Reset empties every cache. Login and logout call it; auth expiry does
// not.
func (s *Set) Reset() {
	s.Patients.Replace(nil)
	s.Sessions.Replace(nil)
	s.Alerts.Replace(nil)
	s.Stats.Replace(nil)
}

// Snapshot is a point-in-time copy of every cache, for rendering.
type Snapshot struct {
	Patients  []client.Patient
	Sessions  []client.MonitoringSession
	Alerts    []client.Alert
	Stats     client.DashboardStats
	HasStats  bool
	Anomalies []Anomaly
}

// Snapshot copies all four caches. Each cache is read atomically; the set
// as a whole may straddle a commit.
func (s *Set) Snapshot() Snapshot {
	stats, ok := s.Stats.Get()
	return Snapshot{
		Patients:  s.Patients.List(),
		Sessions:  s.Sessions.List(),
		Alerts:    s.Alerts.List(),
		Stats:     stats,
		HasStats:  ok,
		Anomalies: s.Sessions.Anomalies(),
	}
}
