// Package client provides the REST and change-hint clients for the
// vitalwatch monitoring backend. Types mirror the backend wire format.
package client

import "time"

// SessionStatus is the lifecycle state of a monitoring session.
type SessionStatus string

const (
	SessionActive  SessionStatus = "active"
	SessionStopped SessionStatus = "stopped"
)

// Severity is the alert level reported by the detection pipeline. Values
// outside the known set are kept verbatim.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityModerate Severity = "moderate"
)

// Patient is a monitored patient record.
type Patient struct {
	ID               int     `json:"id"`
	Name             string  `json:"name"`
	Age              int     `json:"age"`
	Gender           string  `json:"gender"`
	RoomNumber       string  `json:"room_number"`
	Condition        *string `json:"condition,omitempty"`
	EmergencyContact *string `json:"emergency_contact,omitempty"`
}

// NewPatient is the body of an add-patient request.
type NewPatient struct {
	Name             string  `json:"name"`
	Age              int     `json:"age"`
	Gender           string  `json:"gender"`
	RoomNumber       string  `json:"room_number"`
	Condition        *string `json:"condition,omitempty"`
	EmergencyContact *string `json:"emergency_contact,omitempty"`
}

// MonitoringSession is a bounded interval of camera observation for one
// patient.
type MonitoringSession struct {
	ID        int           `json:"id"`
	PatientID int           `json:"patient_id"`
	Status    SessionStatus `json:"status"`
	StartTime time.Time     `json:"start_time"`
}

// IsActive reports whether the session is currently running.
func (s MonitoringSession) IsActive() bool {
	return s.Status == SessionActive
}

// Alert is an event raised by the detection pipeline during a session.
type Alert struct {
	ID           int       `json:"id"`
	SessionID    int       `json:"session_id"`
	Severity     Severity  `json:"severity"`
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
	Acknowledged bool      `json:"acknowledged"`
}

// DashboardStats mirrors the aggregate counters returned by /dashboard.
type DashboardStats struct {
	TotalPatients        int    `json:"total_patients"`
	ActiveSessions       int    `json:"active_sessions"`
	TotalUsers           int    `json:"total_users"`
	UnacknowledgedAlerts int    `json:"unacknowledged_alerts"`
	SystemStatus         string `json:"system_status"`
}

// User is the authenticated principal returned by /login.
type User struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the body returned by POST /login.
type LoginResponse struct {
	User User `json:"user"`
}

// StartRequest is the body of POST /monitoring/start.
type StartRequest struct {
	PatientID int `json:"patient_id"`
}

// StartResponse is the body returned by POST /monitoring/start.
type StartResponse struct {
	Status string `json:"status"`
}

// Feed names a change-hint channel. They match the poll feeds.
type Feed string

const (
	FeedPatients Feed = "patients"
	FeedStats    Feed = "stats"
	FeedAlerts   Feed = "alerts"
	FeedSessions Feed = "sessions"
)

// HintType identifies the kind of change-hint frame.
type HintType string

const (
	HintChanged HintType = "changed"
)

// HintMessage is the envelope for every /events frame.
type HintMessage struct {
	Type    HintType    `json:"type"`
	Seq     uint64      `json:"seq"`
	Payload HintPayload `json:"payload"`
}

// HintPayload names the feed whose data changed.
type HintPayload struct {
	Feed Feed `json:"feed"`
}
