package mockserver

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalwatch/monitor/internal/client"
	"github.com/vitalwatch/monitor/internal/config"
)

func newTestServer(t *testing.T, seed bool) (*Server, *client.HTTPClient) {
	t.Helper()
	cfg := config.Default().Mock
	cfg.Seed = seed
	store := NewStore(cfg.Users)
	if seed {
		store.Seed()
	}
	srv := NewServer(store, NewBroadcaster(nil), StaticProbe(SystemOperational), nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, client.NewHTTPClient(ts.URL, 2*time.Second, nil)
}

func TestRequiresLogin(t *testing.T) {
	_, c := newTestServer(t, true)
	ctx := context.Background()

	_, err := c.Patients(ctx)
	assert.ErrorIs(t, err, client.ErrAuthExpired)

	_, err = c.Login(ctx, "nurse", "wrong")
	assert.ErrorIs(t, err, client.ErrAuthExpired)

	user, err := c.Login(ctx, "nurse", "nurse")
	require.NoError(t, err)
	assert.Equal(t, "nurse", user.Role)

	patients, err := c.Patients(ctx)
	require.NoError(t, err)
	assert.Len(t, patients, 4)
}

func TestDashboardCounts(t *testing.T) {
	_, c := newTestServer(t, true)
	ctx := context.Background()
	_, err := c.Login(ctx, "admin", "admin")
	require.NoError(t, err)

	stats, err := c.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalPatients)
	assert.Equal(t, 2, stats.ActiveSessions)
	assert.Equal(t, 2, stats.TotalUsers)
	assert.Equal(t, 1, stats.UnacknowledgedAlerts)
	assert.Equal(t, SystemOperational, stats.SystemStatus)
}

func TestAtMostOneActiveSession(t *testing.T) {
	_, c := newTestServer(t, true)
	ctx := context.Background()
	_, err := c.Login(ctx, "nurse", "nurse")
	require.NoError(t, err)

	// Patient 1 is seeded with an active session.
	_, err = c.StartMonitoring(ctx, 1)
	require.ErrorIs(t, err, client.ErrRejected)
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)

	resp, err := c.StartMonitoring(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "Monitoring started", resp.Status)

	sessions, err := c.Sessions(ctx)
	require.NoError(t, err)
	active := map[int]int{}
	var started client.MonitoringSession
	for _, s := range sessions {
		if s.IsActive() {
			active[s.PatientID]++
		}
		if s.PatientID == 3 {
			started = s
		}
	}
	for pid, n := range active {
		assert.Equal(t, 1, n, "patient %d", pid)
	}

	require.NoError(t, c.StopMonitoring(ctx, started.ID))
	err = c.StopMonitoring(ctx, started.ID)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode, "stopping a stopped session")

	err = c.StopMonitoring(ctx, 999)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)

	_, err = c.StartMonitoring(ctx, 999)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)

	// Restart after stop is allowed and keeps the old session as history.
	_, err = c.StartMonitoring(ctx, 3)
	require.NoError(t, err)
	sessions, err = c.Sessions(ctx)
	require.NoError(t, err)
	var forThree int
	for _, s := range sessions {
		if s.PatientID == 3 {
			forThree++
		}
	}
	assert.Equal(t, 2, forThree)
}

func TestMalformedBodies(t *testing.T) {
	srv, c := newTestServer(t, false)
	ctx := context.Background()
	_, err := c.Login(ctx, "nurse", "nurse")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewBufferString("{"))
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	_, err = c.AddPatient(ctx, client.NewPatient{Name: "No Room", Age: 3, Gender: "F"})
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)

	_, err = c.StartMonitoring(ctx, 0)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

func TestAddPatient(t *testing.T) {
	_, c := newTestServer(t, false)
	ctx := context.Background()
	_, err := c.Login(ctx, "nurse", "nurse")
	require.NoError(t, err)

	created, err := c.AddPatient(ctx, client.NewPatient{Name: "Cy", Age: 30, Gender: "F", RoomNumber: "201"})
	require.NoError(t, err)
	assert.Equal(t, 1, created.ID)

	patients, err := c.Patients(ctx)
	require.NoError(t, err)
	require.Len(t, patients, 1)
	assert.Equal(t, "201", patients[0].RoomNumber)
}

func TestExpireAllSessions(t *testing.T) {
	srv, c := newTestServer(t, true)
	ctx := context.Background()
	_, err := c.Login(ctx, "nurse", "nurse")
	require.NoError(t, err)

	srv.ExpireAllSessions()
	_, err = c.Alerts(ctx)
	assert.ErrorIs(t, err, client.ErrAuthExpired)
}

func TestLogoutInvalidatesCookie(t *testing.T) {
	_, c := newTestServer(t, true)
	ctx := context.Background()
	_, err := c.Login(ctx, "nurse", "nurse")
	require.NoError(t, err)
	require.NoError(t, c.Logout(ctx))

	_, err = c.Dashboard(ctx)
	assert.ErrorIs(t, err, client.ErrAuthExpired)
}

func TestGeneratorStep(t *testing.T) {
	store := NewStore(nil)
	gen := NewGenerator(store, nil, time.Hour, 1, nil)
	assert.False(t, gen.Step(), "no active session, no alert")

	store.AddPatient(client.NewPatient{Name: "A", Age: 1, Gender: "F", RoomNumber: "1"})
	sess, err := store.Start(1)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		require.True(t, gen.Step())
	}
	alerts := store.Alerts()
	require.Len(t, alerts, 20)
	for _, a := range alerts {
		assert.Equal(t, sess.ID, a.SessionID)
		assert.NotEmpty(t, a.Message)
	}
}

func TestGeneratorPickCoversMix(t *testing.T) {
	gen := NewGenerator(NewStore(nil), nil, time.Hour, 7, nil)
	seen := map[client.Severity]bool{}
	for i := 0; i < 2000; i++ {
		seen[gen.pick().severity] = true
	}
	for _, tpl := range alertMix {
		assert.True(t, seen[tpl.severity], "severity %s never picked", tpl.severity)
	}
}
