package status

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalwatch/monitor/internal/client"
)

var base = time.Date(2026, 5, 2, 9, 30, 0, 0, time.UTC)

func alert(id, sessionID int, sev client.Severity) client.Alert {
	return client.Alert{ID: id, SessionID: sessionID, Severity: sev, Timestamp: base.Add(time.Duration(id) * time.Minute)}
}

func TestResolve(t *testing.T) {
	p := client.Patient{ID: 1, Name: "Ada"}
	sessions := []client.MonitoringSession{
		{ID: 10, PatientID: 1, Status: client.SessionStopped, StartTime: base},
		{ID: 11, PatientID: 1, Status: client.SessionActive, StartTime: base.Add(time.Hour)},
		{ID: 20, PatientID: 2, Status: client.SessionActive, StartTime: base},
	}

	tests := []struct {
		name   string
		alerts []client.Alert
		want   Level
	}{
		{"no alerts → stable", nil, Stable},
		{"other patient's alerts only → stable", []client.Alert{alert(1, 20, client.SeverityCritical)}, Stable},
		{"moderate → moderate", []client.Alert{alert(1, 11, client.SeverityModerate)}, Moderate},
		{"unknown severity counts as moderate", []client.Alert{alert(1, 11, "medium")}, Moderate},
		{"high beats moderate", []client.Alert{
			alert(1, 11, client.SeverityModerate),
			alert(2, 10, client.SeverityHigh),
			alert(3, 11, client.SeverityModerate),
		}, High},
		{"one critical beats many lower", []client.Alert{
			alert(1, 11, client.SeverityHigh),
			alert(2, 11, client.SeverityHigh),
			alert(3, 10, client.SeverityModerate),
			alert(4, 10, client.SeverityCritical),
			alert(5, 11, client.SeverityModerate),
		}, Critical},
		{"stopped session alerts still count", []client.Alert{alert(1, 10, client.SeverityHigh)}, High},
		{"orphan alert ignored", []client.Alert{alert(1, 99, client.SeverityCritical)}, Stable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(p, sessions, tt.alerts))
		})
	}
}

func TestResolveNoSessions(t *testing.T) {
	p := client.Patient{ID: 3}
	alerts := []client.Alert{alert(1, 10, client.SeverityCritical)}
	assert.Equal(t, Stable, Resolve(p, nil, alerts))
}

func TestResolveOrderIndependent(t *testing.T) {
	p := client.Patient{ID: 1}
	sessions := []client.MonitoringSession{{ID: 1, PatientID: 1, Status: client.SessionActive}}
	alerts := []client.Alert{
		alert(1, 1, client.SeverityModerate),
		alert(2, 1, client.SeverityCritical),
		alert(3, 1, client.SeverityHigh),
	}
	reversed := []client.Alert{alerts[2], alerts[1], alerts[0]}

	assert.Equal(t, Resolve(p, sessions, alerts), Resolve(p, sessions, reversed))
	// Repeated calls see the same inputs unchanged.
	assert.Equal(t, Critical, Resolve(p, sessions, alerts))
	assert.Equal(t, client.SeverityModerate, alerts[0].Severity)
}

// Patient P has a stopped session S1 with a moderate alert and an active
// session S2 with none; then a critical alert lands on S2.
func TestResolveStoppedThenCritical(t *testing.T) {
	p := client.Patient{ID: 42, Name: "P"}
	sessions := []client.MonitoringSession{
		{ID: 1, PatientID: 42, Status: client.SessionStopped, StartTime: base},
		{ID: 2, PatientID: 42, Status: client.SessionActive, StartTime: base.Add(2 * time.Hour)},
	}
	alerts := []client.Alert{alert(1, 1, client.SeverityModerate)}
	assert.Equal(t, Moderate, Resolve(p, sessions, alerts))

	alerts = append(alerts, alert(2, 2, client.SeverityCritical))
	assert.Equal(t, Critical, Resolve(p, sessions, alerts))
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "stable", Stable.String())
	assert.Equal(t, "moderate", Moderate.String())
	assert.Equal(t, "high", High.String())
	assert.Equal(t, "critical", Critical.String())
	assert.Equal(t, "unknown", Level(17).String())
}

func TestSummarize(t *testing.T) {
	p := client.Patient{ID: 1}
	sessions := []client.MonitoringSession{
		{ID: 1, PatientID: 1, Status: client.SessionStopped, StartTime: base},
		{ID: 2, PatientID: 1, Status: client.SessionActive, StartTime: base.Add(time.Hour)},
		{ID: 3, PatientID: 1, Status: client.SessionActive, StartTime: base.Add(2 * time.Hour)},
	}
	alerts := []client.Alert{
		alert(1, 1, client.SeverityModerate),
		alert(2, 2, client.SeverityHigh),
		alert(3, 3, "medium"),
	}
	alerts[0].Acknowledged = true

	sum := Summarize(p, sessions, alerts)
	assert.Equal(t, High, sum.Level)
	assert.Equal(t, 3, sum.Sessions)
	assert.Equal(t, 0, sum.Critical)
	assert.Equal(t, 1, sum.High)
	assert.Equal(t, 2, sum.Moderate)
	assert.Equal(t, 3, sum.AlertCount())
	assert.Equal(t, 2, sum.Unacknowledged)
	require.NotNil(t, sum.Latest)
	assert.Equal(t, 3, sum.Latest.ID)
	require.NotNil(t, sum.Active)
	assert.Equal(t, 2, sum.Active.ID, "earliest active session is reported")
}

func TestBoardOrdering(t *testing.T) {
	patients := []client.Patient{
		{ID: 1, RoomNumber: "104"},
		{ID: 2, RoomNumber: "101"},
		{ID: 3, RoomNumber: "103"},
		{ID: 4, RoomNumber: "102"},
	}
	sessions := []client.MonitoringSession{
		{ID: 10, PatientID: 3, Status: client.SessionActive},
		{ID: 11, PatientID: 4, Status: client.SessionActive},
	}
	alerts := []client.Alert{
		alert(1, 10, client.SeverityCritical),
		alert(2, 11, client.SeverityModerate),
	}

	board := Board(patients, sessions, alerts)
	require.Len(t, board, 4)
	var ids []int
	for _, s := range board {
		ids = append(ids, s.Patient.ID)
	}
	assert.Equal(t, []int{3, 4, 2, 1}, ids)
	assert.Equal(t, Critical, board[0].Level)
	assert.Equal(t, Stable, board[3].Level)
}
