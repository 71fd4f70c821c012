package status

import (
	"sort"

	"github.com/vitalwatch/monitor/internal/client"
)

// Summary is the per-patient row shown on the board.
type Summary struct {
	Patient        client.Patient
	Level          Level
	Critical       int
	High           int
	Moderate       int // every non-critical, non-high alert
	Unacknowledged int
	Sessions       int
	Latest         *client.Alert
	Active         *client.MonitoringSession
}

// AlertCount returns the number of alerts linked to the patient.
func (s Summary) AlertCount() int {
	return s.Critical + s.High + s.Moderate
}

// Summarize computes the Summary for one patient. When the snapshot holds
// several active sessions for the patient the earliest start is reported.
func Summarize(patient client.Patient, sessions []client.MonitoringSession, alerts []client.Alert) Summary {
	sum := Summary{Patient: patient}

	for i := range sessions {
		s := sessions[i]
		if s.PatientID != patient.ID {
			continue
		}
		sum.Sessions++
		if !s.IsActive() {
			continue
		}
		if sum.Active == nil || earlier(s, *sum.Active) {
			sum.Active = &s
		}
	}

	linked := linkedAlerts(patient.ID, sessions, alerts)
	for i := range linked {
		a := linked[i]
		switch a.Severity {
		case client.SeverityCritical:
			sum.Critical++
		case client.SeverityHigh:
			sum.High++
		default:
			sum.Moderate++
		}
		if !a.Acknowledged {
			sum.Unacknowledged++
		}
		if sum.Latest == nil || newer(a, *sum.Latest) {
			sum.Latest = &a
		}
	}
	sum.Level = levelOf(linked)
	return sum
}

// Board summarizes every patient, most severe first, then by room number
// and id.
func Board(patients []client.Patient, sessions []client.MonitoringSession, alerts []client.Alert) []Summary {
	out := make([]Summary, 0, len(patients))
	for _, p := range patients {
		out = append(out, Summarize(p, sessions, alerts))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level > out[j].Level
		}
		if out[i].Patient.RoomNumber != out[j].Patient.RoomNumber {
			return out[i].Patient.RoomNumber < out[j].Patient.RoomNumber
		}
		return out[i].Patient.ID < out[j].Patient.ID
	})
	return out
}

func earlier(a, b client.MonitoringSession) bool {
	if !a.StartTime.Equal(b.StartTime) {
		return a.StartTime.Before(b.StartTime)
	}
	return a.ID < b.ID
}

func newer(a, b client.Alert) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	return a.ID > b.ID
}
