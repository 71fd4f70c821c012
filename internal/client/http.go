package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// HTTPClient makes REST calls to the monitoring backend. Session
// credentials travel as cookies held in the client's jar.
type HTTPClient struct {
	baseURL string
	rest    *resty.Client
	logger  *zap.Logger
}

// NewHTTPClient creates a client targeting the given base URL (e.g. "http://127.0.0.1:8000").
func NewHTTPClient(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	baseURL = strings.TrimRight(baseURL, "/")
	rest := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetLogger(logger.Named("resty").Sugar())

	return &HTTPClient{
		baseURL: baseURL,
		rest:    rest,
		logger:  logger.Named("http"),
	}
}

// BaseURL returns the backend root this client talks to.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// Jar returns the cookie jar holding the session credentials.
func (c *HTTPClient) Jar() http.CookieJar {
	return c.rest.GetClient().Jar
}

// Login sends POST /login. On success the session cookie is kept in the jar.
func (c *HTTPClient) Login(ctx context.Context, username, password string) (*User, error) {
	var out LoginResponse
	body := LoginRequest{Username: username, Password: password}
	if err := c.do(ctx, "login", http.MethodPost, "/login", body, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

// Logout sends POST /logout and drops the local session cookie either way.
func (c *HTTPClient) Logout(ctx context.Context) error {
	err := c.do(ctx, "logout", http.MethodPost, "/logout", nil, nil)
	c.clearCookies()
	return err
}

// Dashboard fetches /dashboard. It doubles as the authentication probe.
func (c *HTTPClient) Dashboard(ctx context.Context) (*DashboardStats, error) {
	var out DashboardStats
	if err := c.do(ctx, "dashboard", http.MethodGet, "/dashboard", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Patients fetches /patients.
func (c *HTTPClient) Patients(ctx context.Context) ([]Patient, error) {
	var out []Patient
	if err := c.do(ctx, "list patients", http.MethodGet, "/patients", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AddPatient sends POST /patients.
func (c *HTTPClient) AddPatient(ctx context.Context, p NewPatient) (*Patient, error) {
	var out Patient
	if err := c.do(ctx, "add patient", http.MethodPost, "/patients", p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Alerts fetches /alerts.
func (c *HTTPClient) Alerts(ctx context.Context) ([]Alert, error) {
	var out []Alert
	if err := c.do(ctx, "list alerts", http.MethodGet, "/alerts", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Sessions fetches /monitoring/sessions.
func (c *HTTPClient) Sessions(ctx context.Context) ([]MonitoringSession, error) {
	var out []MonitoringSession
	if err := c.do(ctx, "list sessions", http.MethodGet, "/monitoring/sessions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// StartMonitoring sends POST /monitoring/start.
func (c *HTTPClient) StartMonitoring(ctx context.Context, patientID int) (*StartResponse, error) {
	var out StartResponse
	body := StartRequest{PatientID: patientID}
	if err := c.do(ctx, "start monitoring", http.MethodPost, "/monitoring/start", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StopMonitoring sends POST /monitoring/stop/{sessionID}.
func (c *HTTPClient) StopMonitoring(ctx context.Context, sessionID int) error {
	path := "/monitoring/stop/" + strconv.Itoa(sessionID)
	return c.do(ctx, "stop monitoring", http.MethodPost, path, nil, nil)
}

func (c *HTTPClient) do(ctx context.Context, op, method, path string, body, out any) error {
	req := c.rest.R().SetContext(ctx)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	if out != nil {
		req.SetResult(out).ForceContentType("application/json")
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		c.logger.Debug("request failed",
			zap.String("op", op),
			zap.String("path", path),
			zap.Error(err),
		)
		return &APIError{Op: op, Kind: ErrNetwork, Cause: err}
	}

	status := resp.StatusCode()
	switch {
	case status == http.StatusUnauthorized:
		return &APIError{Op: op, StatusCode: status, Kind: ErrAuthExpired}
	case status >= 300:
		return &APIError{Op: op, StatusCode: status, Body: strings.TrimSpace(resp.String()), Kind: ErrRejected}
	}
	return nil
}

func (c *HTTPClient) clearCookies() {
	jar := c.Jar()
	if jar == nil {
		return
	}
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return
	}
	var expired []*http.Cookie
	for _, ck := range jar.Cookies(u) {
		expired = append(expired, &http.Cookie{Name: ck.Name, Value: "", Path: "/", MaxAge: -1})
	}
	if len(expired) > 0 {
		jar.SetCookies(u, expired)
	}
}
