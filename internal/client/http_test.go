package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.Handler) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewHTTPClient(srv.URL, 2*time.Second, nil)
}

func TestLoginKeepsCookieForLaterCalls(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Password != "nurse" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "vw_session", Value: "tok", Path: "/"})
		_ = json.NewEncoder(w).Encode(LoginResponse{User: User{Username: req.Username, Role: "nurse"}})
	})
	mux.HandleFunc("/dashboard", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("vw_session"); err != nil || c.Value != "tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(DashboardStats{TotalPatients: 4, SystemStatus: "operational"})
	})
	mux.HandleFunc("/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	_, err := c.Dashboard(ctx)
	require.Error(t, err)
	assert.True(t, IsAuthExpired(err))

	_, err = c.Login(ctx, "ana", "wrong")
	assert.ErrorIs(t, err, ErrAuthExpired)

	user, err := c.Login(ctx, "ana", "nurse")
	require.NoError(t, err)
	assert.Equal(t, "ana", user.Username)
	assert.Equal(t, "nurse", user.Role)

	stats, err := c.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalPatients)
	assert.Equal(t, "operational", stats.SystemStatus)

	require.NoError(t, c.Logout(ctx))
	_, err = c.Dashboard(ctx)
	assert.ErrorIs(t, err, ErrAuthExpired, "logout drops the local cookie")
}

func TestRejectedCarriesStatusAndBody(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/monitoring/start", r.URL.Path)
		var req StartRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 3, req.PatientID)
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"detail":"already active"}` + "\n"))
	}))

	_, err := c.StartMonitoring(context.Background(), 3)
	require.ErrorIs(t, err, ErrRejected)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, `{"detail":"already active"}`, apiErr.Body)
	assert.Equal(t, "start monitoring", apiErr.Op)
	assert.Contains(t, err.Error(), "409")
}

func TestStopMonitoringPath(t *testing.T) {
	var got string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Method + " " + r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	require.NoError(t, c.StopMonitoring(context.Background(), 42))
	assert.Equal(t, "POST /monitoring/stop/42", got)
}

func TestListDecoding(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/patients":
			_, _ = w.Write([]byte(`[{"id":1,"name":"Ada","age":72,"gender":"F","room_number":"101","condition":null}]`))
		case "/monitoring/sessions":
			_, _ = w.Write([]byte(`[{"id":5,"patient_id":1,"status":"active","start_time":"2026-03-14T08:00:00Z"}]`))
		case "/alerts":
			_, _ = w.Write([]byte(`[{"id":9,"session_id":5,"severity":"medium","message":"Restless","timestamp":"2026-03-14T08:05:00Z","acknowledged":false}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	ctx := context.Background()

	patients, err := c.Patients(ctx)
	require.NoError(t, err)
	require.Len(t, patients, 1)
	assert.Equal(t, "101", patients[0].RoomNumber)
	assert.Nil(t, patients[0].Condition)

	sessions, err := c.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.True(t, sessions[0].IsActive())
	assert.Equal(t, 1, sessions[0].PatientID)

	alerts, err := c.Alerts(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, Severity("medium"), alerts[0].Severity, "unknown severities are kept verbatim")
}

func TestNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewHTTPClient(url, time.Second, nil)
	_, err := c.Patients(context.Background())
	require.ErrorIs(t, err, ErrNetwork)
	assert.False(t, IsAuthExpired(err))
}

func TestMalformedBodyIsNetworkFailure(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	_, err := c.Alerts(context.Background())
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestEventsURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"http://127.0.0.1:8000", "ws://127.0.0.1:8000/events"},
		{"https://ward.example.org/api/", "wss://ward.example.org/api/events"},
		{"not a url", "ws://127.0.0.1:8000/events"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EventsURL(tt.in), tt.in)
	}
}
