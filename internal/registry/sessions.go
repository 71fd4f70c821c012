// Package registry holds the read caches fed by the sync poller: the
// session registry, the alert ledger, the patient directory and the
// dashboard stats. Each Replace swaps a whole snapshot atomically; readers
// always receive copies.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/vitalwatch/monitor/internal/client"
)

// Anomaly records a snapshot that shows more than one active session for
// the same patient. The registry still exposes a single active session,
// the one with the earliest start time.
type Anomaly struct {
	PatientID  int
	SessionIDs []int // every active session, earliest start first
	Chosen     int
}

func (a Anomaly) String() string {
	return fmt.Sprintf("patient %d has %d active sessions %v, using %d",
		a.PatientID, len(a.SessionIDs), a.SessionIDs, a.Chosen)
}

// Sessions is the session registry.
type Sessions struct {
	mu        sync.RWMutex
	sessions  []client.MonitoringSession
	active    map[int]client.MonitoringSession // keyed by patient id
	anomalies []Anomaly
	version   uint64
	tick      uint64 // poll tick that produced the snapshot, 0 if none
	logger    *zap.Logger
}

// NewSessions creates an empty session registry.
func NewSessions(logger *zap.Logger) *Sessions {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sessions{
		active: make(map[int]client.MonitoringSession),
		logger: logger.Named("sessions"),
	}
}

// Replace swaps the cached set for sessions outside any poll tick, as the
// login and logout reset does.
func (r *Sessions) Replace(sessions []client.MonitoringSession) {
	r.ReplaceAt(0, sessions)
}

// ReplaceAt swaps the cached set for sessions fetched by poll tick tick.
func (r *Sessions) ReplaceAt(tick uint64, sessions []client.MonitoringSession) {
	sorted := make([]client.MonitoringSession, len(sessions))
	copy(sorted, sessions)
	sortSessions(sorted)

	active := make(map[int]client.MonitoringSession)
	extra := make(map[int][]int)
	for _, s := range sorted {
		if !s.IsActive() {
			continue
		}
		if chosen, ok := active[s.PatientID]; ok {
			if len(extra[s.PatientID]) == 0 {
				extra[s.PatientID] = []int{chosen.ID}
			}
			extra[s.PatientID] = append(extra[s.PatientID], s.ID)
			continue
		}
		active[s.PatientID] = s
	}

	var anomalies []Anomaly
	for patientID, ids := range extra {
		anomalies = append(anomalies, Anomaly{
			PatientID:  patientID,
			SessionIDs: ids,
			Chosen:     active[patientID].ID,
		})
	}
	sort.Slice(anomalies, func(i, j int) bool {
		return anomalies[i].PatientID < anomalies[j].PatientID
	})

	r.mu.Lock()
	r.sessions = sorted
	r.active = active
	r.anomalies = anomalies
	r.version++
	r.tick = tick
	r.mu.Unlock()

	for _, a := range anomalies {
		r.logger.Warn("multiple active sessions for patient",
			zap.Int("patient_id", a.PatientID),
			zap.Ints("session_ids", a.SessionIDs),
			zap.Int("chosen_session_id", a.Chosen),
		)
	}
}

// List returns the snapshot ordered by start time.
func (r *Sessions) List() []client.MonitoringSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]client.MonitoringSession, len(r.sessions))
	copy(out, r.sessions)
	return out
}

// Get returns the session with the given id.
func (r *Sessions) Get(id int) (client.MonitoringSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if s.ID == id {
			return s, true
		}
	}
	return client.MonitoringSession{}, false
}

// ActiveFor returns the active session for patientID, if any.
func (r *Sessions) ActiveFor(patientID int) (client.MonitoringSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.active[patientID]
	return s, ok
}

// ForPatient returns every session, active or stopped, for patientID.
func (r *Sessions) ForPatient(patientID int) []client.MonitoringSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []client.MonitoringSession
	for _, s := range r.sessions {
		if s.PatientID == patientID {
			out = append(out, s)
		}
	}
	return out
}

// ActiveCount returns the number of patients with an active session.
func (r *Sessions) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}

// Anomalies returns the integrity problems found in the current snapshot.
func (r *Sessions) Anomalies() []Anomaly {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Anomaly, len(r.anomalies))
	copy(out, r.anomalies)
	return out
}

// Version increases by one on every Replace.
func (r *Sessions) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// Tick returns the poll tick that produced the current snapshot, or 0 when
// it was not produced by a poll.
func (r *Sessions) Tick() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tick
}

func sortSessions(s []client.MonitoringSession) {
	sort.SliceStable(s, func(i, j int) bool {
		if !s[i].StartTime.Equal(s[j].StartTime) {
			return s[i].StartTime.Before(s[j].StartTime)
		}
		return s[i].ID < s[j].ID
	})
}
