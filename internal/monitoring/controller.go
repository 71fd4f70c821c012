// Package monitoring issues the session start/stop and add-patient
// requests. It never writes the registries: a request's effect becomes
// visible only once a later poll brings back the backend's view.
package monitoring

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/vitalwatch/monitor/internal/auth"
	"github.com/vitalwatch/monitor/internal/client"
	"github.com/vitalwatch/monitor/internal/registry"
)

// ErrValidation is returned when a request violates a local precondition.
// No request is sent.
var ErrValidation = errors.New("validation failed")

// Phase is a patient's position in the session lifecycle as seen by this
// client.
type Phase int

const (
	Idle Phase = iota
	Starting
	Active
	Stopping
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Active:
		return "active"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// API is the write side of the REST client.
type API interface {
	StartMonitoring(ctx context.Context, patientID int) (*client.StartResponse, error)
	StopMonitoring(ctx context.Context, sessionID int) error
	AddPatient(ctx context.Context, p client.NewPatient) (*client.Patient, error)
}

// Reconciler is asked for an immediate poll after a successful request.
// Seq is the latest poll tick issued so far.
type Reconciler interface {
	Nudge()
	Seq() uint64
}

// pending is an outstanding start or stop for one patient. While the
// request is in flight inFlight is set; after it succeeds the entry
// waits for a sessions snapshot from a poll tick issued after tick.
type pending struct {
	phase     Phase
	sessionID int
	inFlight  bool
	tick      uint64
}

// Controller issues start, stop and add-patient requests without touching
// the caches, and tracks each patient's phase until a poll confirms it.
type Controller struct {
	api        API
	guard      *auth.Guard
	patients   *registry.Patients
	sessions   *registry.Sessions
	reconciler Reconciler
	logger     *zap.Logger

	mu      sync.Mutex
	pending map[int]pending // by patient id
}

// NewController creates a controller reading the caches in regs.
func NewController(api API, guard *auth.Guard, regs *registry.Set, reconciler Reconciler, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		api:        api,
		guard:      guard,
		patients:   regs.Patients,
		sessions:   regs.Sessions,
		reconciler: reconciler,
		logger:     logger.Named("monitoring"),
		pending:    make(map[int]pending),
	}
}

// Phase reports where patientID stands. Outstanding requests win over
// the registry until a sessions snapshot from a later poll tick has
// landed.
func (c *Controller) Phase(patientID int) Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	if op, ok := c.pendingLocked(patientID); ok {
		return op.phase
	}
	if _, ok := c.sessions.ActiveFor(patientID); ok {
		return Active
	}
	return Idle
}

// pendingLocked returns the live entry for patientID, dropping it if a
// sessions snapshot from a later poll tick has settled it. Caller holds c.mu.
func (c *Controller) pendingLocked(patientID int) (pending, bool) {
	op, ok := c.pending[patientID]
	if !ok {
		return pending{}, false
	}
	if !op.inFlight && c.sessions.Tick() > op.tick {
		delete(c.pending, patientID)
		return pending{}, false
	}
	return op, true
}

// Reset forgets every outstanding request. It runs on login and logout
// alongside the registry reset.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = make(map[int]pending)
}

// StartMonitoring asks the backend to open a session for patientID. It is
// rejected locally when the last snapshot already shows an active session
// or another request for the patient is outstanding.
func (c *Controller) StartMonitoring(ctx context.Context, patientID int) error {
	st := c.guard.State()
	if !st.Authenticated {
		return auth.ErrUnauthenticated
	}
	if _, ok := c.patients.Get(patientID); !ok {
		return fmt.Errorf("%w: unknown patient %d", ErrValidation, patientID)
	}

	c.mu.Lock()
	if op, ok := c.pendingLocked(patientID); ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: patient %d is %s", ErrValidation, patientID, op.phase)
	}
	if s, ok := c.sessions.ActiveFor(patientID); ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: patient %d already has active session %d", ErrValidation, patientID, s.ID)
	}
	c.pending[patientID] = pending{phase: Starting, inFlight: true}
	c.mu.Unlock()

	resp, err := c.api.StartMonitoring(ctx, patientID)
	if err != nil {
		c.fail(patientID, st.Generation, "start monitoring", err)
		return fmt.Errorf("start monitoring for patient %d: %w", patientID, err)
	}

	c.confirm(patientID)
	c.logger.Info("monitoring start accepted",
		zap.Int("patient_id", patientID),
		zap.String("status", resp.Status),
	)
	return nil
}

// StopMonitoring asks the backend to stop sessionID, which must be active
// in the last snapshot.
func (c *Controller) StopMonitoring(ctx context.Context, sessionID int) error {
	st := c.guard.State()
	if !st.Authenticated {
		return auth.ErrUnauthenticated
	}
	s, ok := c.sessions.Get(sessionID)
	if !ok {
		return fmt.Errorf("%w: unknown session %d", ErrValidation, sessionID)
	}
	if !s.IsActive() {
		return fmt.Errorf("%w: session %d is %s", ErrValidation, sessionID, s.Status)
	}

	c.mu.Lock()
	if op, ok := c.pendingLocked(s.PatientID); ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: patient %d is %s", ErrValidation, s.PatientID, op.phase)
	}
	c.pending[s.PatientID] = pending{phase: Stopping, sessionID: sessionID, inFlight: true}
	c.mu.Unlock()

	if err := c.api.StopMonitoring(ctx, sessionID); err != nil {
		c.fail(s.PatientID, st.Generation, "stop monitoring", err)
		return fmt.Errorf("stop monitoring session %d: %w", sessionID, err)
	}

	c.confirm(s.PatientID)
	c.logger.Info("monitoring stop accepted",
		zap.Int("patient_id", s.PatientID),
		zap.Int("session_id", sessionID),
	)
	return nil
}

// AddPatient validates and submits a new patient record. The created
// record is returned but not cached; it appears after the next poll.
func (c *Controller) AddPatient(ctx context.Context, p client.NewPatient) (*client.Patient, error) {
	st := c.guard.State()
	if !st.Authenticated {
		return nil, auth.ErrUnauthenticated
	}
	p = normalize(p)
	if err := Validate(p); err != nil {
		return nil, err
	}

	created, err := c.api.AddPatient(ctx, p)
	if err != nil {
		if errors.Is(err, client.ErrAuthExpired) {
			c.guard.Expire(st.Generation, "401 on add patient")
		}
		return nil, fmt.Errorf("add patient: %w", err)
	}
	c.logger.Info("patient added", zap.Int("patient_id", created.ID), zap.String("room", created.RoomNumber))
	if c.reconciler != nil {
		c.reconciler.Nudge()
	}
	return created, nil
}

// Validate checks a new patient record before it is sent.
func Validate(p client.NewPatient) error {
	var problems []string
	if strings.TrimSpace(p.Name) == "" {
		problems = append(problems, "name is required")
	}
	if p.Age <= 0 || p.Age > 150 {
		problems = append(problems, "age must be between 1 and 150")
	}
	if strings.TrimSpace(p.Gender) == "" {
		problems = append(problems, "gender is required")
	}
	if strings.TrimSpace(p.RoomNumber) == "" {
		problems = append(problems, "room number is required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrValidation, strings.Join(problems, "; "))
	}
	return nil
}

func normalize(p client.NewPatient) client.NewPatient {
	p.Name = strings.TrimSpace(p.Name)
	p.Gender = strings.TrimSpace(p.Gender)
	p.RoomNumber = strings.TrimSpace(p.RoomNumber)
	p.Condition = blankToNil(p.Condition)
	p.EmergencyContact = blankToNil(p.EmergencyContact)
	return p
}

func blankToNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func (c *Controller) fail(patientID int, gen uint64, op string, err error) {
	c.mu.Lock()
	delete(c.pending, patientID)
	c.mu.Unlock()

	if errors.Is(err, client.ErrAuthExpired) {
		c.guard.Expire(gen, "401 on "+op)
	}
	c.logger.Warn(op+" failed", zap.Int("patient_id", patientID), zap.Error(err))
}

// confirm marks the request done. Ticks issued up to now may have read
// the backend before it applied the request, so only a snapshot from a
// later tick settles it.
func (c *Controller) confirm(patientID int) {
	var issued uint64
	if c.reconciler != nil {
		issued = c.reconciler.Seq()
	}

	c.mu.Lock()
	if op, ok := c.pending[patientID]; ok {
		op.inFlight = false
		op.tick = issued
		c.pending[patientID] = op
	}
	c.mu.Unlock()

	if c.reconciler != nil {
		c.reconciler.Nudge()
	}
}
