// Package mockserver is an in-memory monitoring backend for local runs
// and integration tests. It serves the same REST surface as the real
// backend plus a websocket stream of change hints.
package mockserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vitalwatch/monitor/internal/client"
	"github.com/vitalwatch/monitor/internal/config"
)

// CookieName is the session cookie set by /login.
const CookieName = "vw_session"

type ctxKey struct{}

type Server struct {
	store       *Store
	broadcaster *Broadcaster
	probe       Probe
	logger      *zap.Logger
	router      *mux.Router
}

// NewServer creates the REST and websocket handler over store.
func NewServer(store *Store, broadcaster *Broadcaster, probe Probe, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if probe == nil {
		probe = StaticProbe(SystemOperational)
	}
	s := &Server{
		store:       store,
		broadcaster: broadcaster,
		probe:       probe,
		logger:      logger.Named("mockserver"),
	}
	s.router = s.routes()
	return s
}

// New builds a store, broadcaster and server from cfg. The generator is
// returned unstarted.
func New(cfg config.MockConfig, logger *zap.Logger) (*Server, *Generator) {
	store := NewStore(cfg.Users)
	if cfg.Seed {
		store.Seed()
	}
	b := NewBroadcaster(logger)
	srv := NewServer(store, b, NewSystemProbe(cfg.CPUDegradedPercent, logger), logger)
	gen := NewGenerator(store, b, cfg.AlertInterval, time.Now().UnixNano(), logger)
	return srv, gen
}

func (s *Server) Store() *Store { return s.store }

func (s *Server) Broadcaster() *Broadcaster { return s.broadcaster }

// ExpireAllSessions invalidates every login so the next request answers
// 401.
func (s *Server) ExpireAllSessions() {
	s.store.ExpireAll()
	s.broadcaster.CloseAll()
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)

	authed := r.NewRoute().Subrouter()
	authed.Use(s.requireSession)
	authed.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)
	authed.HandleFunc("/dashboard", s.handleDashboard).Methods(http.MethodGet)
	authed.HandleFunc("/patients", s.handlePatients).Methods(http.MethodGet)
	authed.HandleFunc("/patients", s.handleAddPatient).Methods(http.MethodPost)
	authed.HandleFunc("/alerts", s.handleAlerts).Methods(http.MethodGet)
	authed.HandleFunc("/monitoring/sessions", s.handleSessions).Methods(http.MethodGet)
	authed.HandleFunc("/monitoring/start", s.handleStart).Methods(http.MethodPost)
	authed.HandleFunc("/monitoring/stop/{id}", s.handleStop).Methods(http.MethodPost)
	authed.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	return r
}

func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(CookieName)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		user, ok := s.store.Authorize(cookie.Value)
		if !ok {
			writeError(w, http.StatusUnauthorized, "session expired")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, user)))
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req client.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	token, user, err := s.store.Login(req.Username, req.Password)
	if err != nil {
		s.logger.Info("login rejected", zap.String("username", req.Username))
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	s.logger.Info("login", zap.String("username", user.Username), zap.String("role", user.Role))
	writeJSON(w, http.StatusOK, client.LoginResponse{User: user})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(CookieName); err == nil {
		s.store.Logout(cookie.Value)
	}
	if user, ok := r.Context().Value(ctxKey{}).(client.User); ok {
		s.logger.Info("logout", zap.String("username", user.Username))
	}
	http.SetCookie(w, &http.Cookie{Name: CookieName, Value: "", Path: "/", MaxAge: -1})
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Stats(s.probe.Status()))
}

func (s *Server) handlePatients(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Patients())
}

func (s *Server) handleAddPatient(w http.ResponseWriter, r *http.Request) {
	var req client.NewPatient
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.Age <= 0 || req.Gender == "" || req.RoomNumber == "" {
		writeError(w, http.StatusBadRequest, "name, age, gender and room_number are required")
		return
	}
	p := s.store.AddPatient(req)
	s.logger.Info("patient added", zap.Int("patient_id", p.ID), zap.String("room", p.RoomNumber))
	s.broadcaster.Hint(client.FeedPatients)
	s.broadcaster.Hint(client.FeedStats)
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Alerts())
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Sessions())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req client.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PatientID <= 0 {
		writeError(w, http.StatusBadRequest, "patient_id is required")
		return
	}
	sess, err := s.store.Start(req.PatientID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.logger.Info("monitoring started", zap.Int("patient_id", req.PatientID), zap.Int("session_id", sess.ID))
	s.broadcaster.Hint(client.FeedSessions)
	s.broadcaster.Hint(client.FeedStats)
	writeJSON(w, http.StatusOK, client.StartResponse{Status: "Monitoring started"})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	if err := s.store.Stop(id); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.logger.Info("monitoring stopped", zap.Int("session_id", id))
	s.broadcaster.Hint(client.FeedSessions)
	s.broadcaster.Hint(client.FeedStats)
	writeJSON(w, http.StatusOK, map[string]string{"status": "Monitoring stopped"})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("events upgrade failed", zap.Error(err))
		return
	}
	sub := s.broadcaster.add(conn)
	s.logger.Debug("events client connected", zap.String("remote", r.RemoteAddr))

	go func() {
		defer func() {
			s.broadcaster.remove(sub)
			s.logger.Debug("events client disconnected", zap.String("remote", r.RemoteAddr))
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, errConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("store failure", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, host string, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.broadcaster.CloseAll()
	return srv.Shutdown(shutdownCtx)
}
