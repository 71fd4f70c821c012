// Package status derives a patient's clinical status from synced sessions
// and alerts. Everything here is a pure function of its arguments.
package status

import "github.com/vitalwatch/monitor/internal/client"

// Level is a patient's aggregate clinical status.
type Level int

const (
	Stable Level = iota
	Moderate
	High
	Critical
)

func (l Level) String() string {
	switch l {
	case Stable:
		return "stable"
	case Moderate:
		return "moderate"
	case High:
		return "high"
	case Critical:
		return "critical"
	default:
		return "unknown"
	}
}

// Resolve returns the status for patient. Every alert raised in any of
// the patient's sessions counts, stopped sessions included. Precedence is
// strict: one critical alert outweighs any number of lower ones.
func Resolve(patient client.Patient, sessions []client.MonitoringSession, alerts []client.Alert) Level {
	return levelOf(linkedAlerts(patient.ID, sessions, alerts))
}

func levelOf(alerts []client.Alert) Level {
	level := Stable
	for _, a := range alerts {
		switch a.Severity {
		case client.SeverityCritical:
			return Critical
		case client.SeverityHigh:
			level = High
		default:
			if level < Moderate {
				level = Moderate
			}
		}
	}
	return level
}

// linkedAlerts joins alerts → sessions → patient.
func linkedAlerts(patientID int, sessions []client.MonitoringSession, alerts []client.Alert) []client.Alert {
	owned := make(map[int]bool)
	for _, s := range sessions {
		if s.PatientID == patientID {
			owned[s.ID] = true
		}
	}
	if len(owned) == 0 {
		return nil
	}
	var out []client.Alert
	for _, a := range alerts {
		if owned[a.SessionID] {
			out = append(out, a)
		}
	}
	return out
}
