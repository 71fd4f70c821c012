package mockserver

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vitalwatch/monitor/internal/client"
	"github.com/vitalwatch/monitor/internal/config"
)

var (
	errNotFound       = errors.New("not found")
	errConflict       = errors.New("conflict")
	errBadCredentials = errors.New("invalid username or password")
)

// Store is the in-memory backing store. It owns the at-most-one-active
// session rule.
type Store struct {
	mu sync.RWMutex

	users    map[string]config.MockUser
	tokens   map[string]client.User // session cookie value -> user
	patients []client.Patient
	sessions []client.MonitoringSession
	alerts   []client.Alert

	nextPatientID int
	nextSessionID int
	nextAlertID   int

	now func() time.Time
}

// NewStore creates an empty store that accepts the given users.
func NewStore(users map[string]config.MockUser) *Store {
	u := make(map[string]config.MockUser, len(users))
	for name, mu := range users {
		u[name] = mu
	}
	return &Store{
		users:         u,
		tokens:        make(map[string]client.User),
		nextPatientID: 1,
		nextSessionID: 1,
		nextAlertID:   1,
		now:           time.Now,
	}
}

// Seed loads a small ward so a fresh backend has something to show.
func (s *Store) Seed() {
	cardiac := "post-op cardiac"
	fall := "fall risk"
	contact := "+1 555 0100"
	for _, p := range []client.NewPatient{
		{Name: "Ada Lovelace", Age: 72, Gender: "F", RoomNumber: "101", Condition: &cardiac, EmergencyContact: &contact},
		{Name: "Grace Hopper", Age: 85, Gender: "F", RoomNumber: "102", Condition: &fall},
		{Name: "Alan Turing", Age: 41, Gender: "M", RoomNumber: "103"},
		{Name: "Edsger Dijkstra", Age: 66, Gender: "M", RoomNumber: "104"},
	} {
		s.AddPatient(p)
	}
	if sess, err := s.Start(1); err == nil {
		s.AddAlert(sess.ID, client.SeverityModerate, "Patient left bed")
	}
	_, _ = s.Start(2)
}

// Login checks credentials and returns a fresh session token.
func (s *Store) Login(username, password string) (string, client.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok || u.Password != password {
		return "", client.User{}, errBadCredentials
	}
	user := client.User{Username: username, Role: u.Role}
	token := uuid.NewString()
	s.tokens[token] = user
	return token, user, nil
}

func (s *Store) Logout(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
}

// Authorize returns the user behind token.
func (s *Store) Authorize(token string) (client.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.tokens[token]
	return u, ok
}

// ExpireAll invalidates every session token.
func (s *Store) ExpireAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = make(map[string]client.User)
}

func (s *Store) Patients() []client.Patient {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]client.Patient, len(s.patients))
	copy(out, s.patients)
	return out
}

func (s *Store) AddPatient(p client.NewPatient) client.Patient {
	s.mu.Lock()
	defer s.mu.Unlock()
	created := client.Patient{
		ID:               s.nextPatientID,
		Name:             p.Name,
		Age:              p.Age,
		Gender:           p.Gender,
		RoomNumber:       p.RoomNumber,
		Condition:        p.Condition,
		EmergencyContact: p.EmergencyContact,
	}
	s.nextPatientID++
	s.patients = append(s.patients, created)
	return created
}

func (s *Store) Sessions() []client.MonitoringSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]client.MonitoringSession, len(s.sessions))
	copy(out, s.sessions)
	return out
}

// Start opens a session for patientID. It fails with errConflict when the
// patient already has an active one.
func (s *Store) Start(patientID int) (client.MonitoringSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasPatientLocked(patientID) {
		return client.MonitoringSession{}, fmt.Errorf("patient %d: %w", patientID, errNotFound)
	}
	for _, sess := range s.sessions {
		if sess.PatientID == patientID && sess.IsActive() {
			return client.MonitoringSession{}, fmt.Errorf("patient %d already monitored by session %d: %w", patientID, sess.ID, errConflict)
		}
	}
	sess := client.MonitoringSession{
		ID:        s.nextSessionID,
		PatientID: patientID,
		Status:    client.SessionActive,
		StartTime: s.now().UTC(),
	}
	s.nextSessionID++
	s.sessions = append(s.sessions, sess)
	return sess, nil
}

// Stop marks sessionID stopped. Sessions are kept for history.
func (s *Store) Stop(sessionID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.sessions {
		if s.sessions[i].ID != sessionID {
			continue
		}
		if !s.sessions[i].IsActive() {
			return fmt.Errorf("session %d already stopped: %w", sessionID, errConflict)
		}
		s.sessions[i].Status = client.SessionStopped
		return nil
	}
	return fmt.Errorf("session %d: %w", sessionID, errNotFound)
}

// ActiveSessionIDs returns the ids of active sessions in ascending order.
func (s *Store) ActiveSessionIDs() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []int
	for _, sess := range s.sessions {
		if sess.IsActive() {
			ids = append(ids, sess.ID)
		}
	}
	sort.Ints(ids)
	return ids
}

func (s *Store) Alerts() []client.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]client.Alert, len(s.alerts))
	copy(out, s.alerts)
	return out
}

// AddAlert records an alert against sessionID.
func (s *Store) AddAlert(sessionID int, severity client.Severity, message string) (client.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := false
	for _, sess := range s.sessions {
		if sess.ID == sessionID {
			found = true
			break
		}
	}
	if !found {
		return client.Alert{}, fmt.Errorf("session %d: %w", sessionID, errNotFound)
	}
	a := client.Alert{
		ID:        s.nextAlertID,
		SessionID: sessionID,
		Severity:  severity,
		Message:   message,
		Timestamp: s.now().UTC(),
	}
	s.nextAlertID++
	s.alerts = append(s.alerts, a)
	return a, nil
}

// Stats computes the dashboard counters.
func (s *Store) Stats(systemStatus string) client.DashboardStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := client.DashboardStats{
		TotalPatients: len(s.patients),
		TotalUsers:    len(s.users),
		SystemStatus:  systemStatus,
	}
	for _, sess := range s.sessions {
		if sess.IsActive() {
			st.ActiveSessions++
		}
	}
	for _, a := range s.alerts {
		if !a.Acknowledged {
			st.UnacknowledgedAlerts++
		}
	}
	return st
}

func (s *Store) hasPatientLocked(id int) bool {
	for _, p := range s.patients {
		if p.ID == id {
			return true
		}
	}
	return false
}
