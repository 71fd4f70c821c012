// Package app is the Bubble Tea root model of the ward dashboard. It
// renders the synced caches and turns key presses into sign-in, poll and
// monitoring requests; it never writes the caches itself.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/vitalwatch/monitor/internal/auth"
	"github.com/vitalwatch/monitor/internal/client"
	"github.com/vitalwatch/monitor/internal/monitoring"
	"github.com/vitalwatch/monitor/internal/poller"
	"github.com/vitalwatch/monitor/internal/registry"
	"github.com/vitalwatch/monitor/internal/status"
	"github.com/vitalwatch/monitor/internal/theme"
	"github.com/vitalwatch/monitor/internal/views/board"
	"github.com/vitalwatch/monitor/internal/views/debug"
	"github.com/vitalwatch/monitor/internal/views/detail"
	"github.com/vitalwatch/monitor/internal/views/form"
	"github.com/vitalwatch/monitor/internal/views/help"
	statusbar "github.com/vitalwatch/monitor/internal/views/status"
)

// Overlay identifies which modal is active.
type Overlay int

const (
	OverlayNone Overlay = iota
	OverlayDetail
	OverlayDebug
	OverlayHelp
	OverlayAddPatient
)

// Deps are the collaborators the dashboard drives.
type Deps struct {
	Authenticator *auth.Authenticator
	Guard         *auth.Guard
	Registries    *registry.Set
	Poller        *poller.Poller
	Controller    *monitoring.Controller
	Logger        *zap.Logger

	// Username and Password prefill the sign-in form; with both set the
	// dashboard signs in on its own when the startup probe finds no session.
	Username string
	Password string

	RequestTimeout time.Duration
	// MarkdownStyle is the glamour style for help and notes.
	MarkdownStyle string
}

type (
	reportMsg      struct{ report poller.Report }
	authMsg        struct{ state auth.State }
	hintMsg        struct{ hint client.HintMessage }
	frameMsg       time.Time
	probeResultMsg struct {
		ok  bool
		err error
	}
	loginResultMsg struct {
		user *client.User
		err  error
	}
	logoutResultMsg struct{ err error }
	actionResultMsg struct {
		op  string
		err error
	}
	patientResultMsg struct {
		patient *client.Patient
		err     error
	}
)

// Model is the root Bubble Tea model.
type Model struct {
	deps   Deps
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc

	events    chan tea.Msg
	states    <-chan auth.State
	stopWatch func()

	keys   KeyMap
	width  int
	height int

	authed   bool
	stale    bool
	username string

	overlay  Overlay
	detailID int

	login     form.Model
	patient   form.Model
	statusBar statusbar.Model
	board     board.Model
	debug     debug.Model
	help      *help.Model
}

// New creates the root model and subscribes it to the guard and poller.
func New(deps Deps) Model {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan tea.Msg, 64)
	states, stopWatch := deps.Guard.Watch()

	deps.Poller.OnTick(func(r poller.Report) {
		select {
		case events <- reportMsg{report: r}:
		default:
		}
	})

	keys := DefaultKeyMap()
	h := help.New(keys.Bindings(), deps.MarkdownStyle)
	m := Model{
		deps:      deps,
		logger:    deps.Logger.Named("ui"),
		ctx:       ctx,
		cancel:    cancel,
		events:    events,
		states:    states,
		stopWatch: stopWatch,
		keys:      keys,
		username:  deps.Username,
		login:     form.NewLogin(deps.Username),
		statusBar: statusbar.New(deps.Poller.Interval()),
		board:     board.New(),
		debug:     debug.New(),
		help:      &h,
	}
	return m
}

// HintFunc returns a callback for the change-hint stream. It is safe to
// call from any goroutine.
func (m Model) HintFunc() func(client.HintMessage) {
	events := m.events
	return func(h client.HintMessage) {
		select {
		case events <- hintMsg{hint: h}:
		default:
		}
	}
}

// Close releases the guard subscription and cancels outstanding requests.
func (m Model) Close() {
	m.cancel()
	m.stopWatch()
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.waitEvent(),
		m.waitAuth(),
		m.probe(),
		m.login.Init(),
		frame(),
	)
}

func (m Model) waitEvent() tea.Cmd {
	events, ctx := m.events, m.ctx
	return func() tea.Msg {
		select {
		case msg := <-events:
			return msg
		case <-ctx.Done():
			return nil
		}
	}
}

func (m Model) waitAuth() tea.Cmd {
	states, ctx := m.states, m.ctx
	return func() tea.Msg {
		select {
		case st := <-states:
			return authMsg{state: st}
		case <-ctx.Done():
			return nil
		}
	}
}

func frame() tea.Cmd {
	return tea.Tick(time.Second/statusbar.FPS, func(t time.Time) tea.Msg { return frameMsg(t) })
}

func (m Model) probe() tea.Cmd {
	a, ctx, timeout := m.deps.Authenticator, m.ctx, m.deps.RequestTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		ok, err := a.Probe(ctx)
		return probeResultMsg{ok: ok, err: err}
	}
}

func (m Model) signIn(username, password string) tea.Cmd {
	a, ctx, timeout := m.deps.Authenticator, m.ctx, m.deps.RequestTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		user, err := a.Login(ctx, username, password)
		return loginResultMsg{user: user, err: err}
	}
}

func (m Model) signOut() tea.Cmd {
	a, ctx, timeout := m.deps.Authenticator, m.ctx, m.deps.RequestTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return logoutResultMsg{err: a.Logout(ctx)}
	}
}

func (m Model) action(op string, fn func(ctx context.Context) error) tea.Cmd {
	ctx, timeout := m.ctx, m.deps.RequestTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return actionResultMsg{op: op, err: fn(ctx)}
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.board.Width = msg.Width
		return m, nil

	case frameMsg:
		m.statusBar.Animate(time.Time(msg))
		return m, frame()

	case reportMsg:
		r := msg.report
		m.debug.AddReport(r)
		if !r.Skipped {
			m.statusBar.LastTick = r.Finished
		}
		m.refresh()
		return m, m.waitEvent()

	case hintMsg:
		m.debug.Add(debug.KindHint, fmt.Sprintf("%s changed (#%d)", msg.hint.Payload.Feed, msg.hint.Seq))
		m.deps.Poller.Nudge()
		return m, m.waitEvent()

	case authMsg:
		m.applyAuth(msg.state)
		return m, m.waitAuth()

	case probeResultMsg:
		switch {
		case msg.err != nil:
			m.login.Err = "Backend unreachable: " + msg.err.Error()
			m.debug.Add(debug.KindError, msg.err.Error())
		case !msg.ok && m.deps.Username != "" && m.deps.Password != "":
			m.login.Busy = true
			return m, m.signIn(m.deps.Username, m.deps.Password)
		}
		return m, nil

	case loginResultMsg:
		m.login.Busy = false
		if msg.err != nil {
			m.login.Err = describeLoginError(msg.err)
			m.login.ClearSecret()
			m.debug.Add(debug.KindAuth, "sign-in failed: "+msg.err.Error())
			return m, nil
		}
		m.username = msg.user.Username
		m.login.Err = ""
		return m, nil

	case logoutResultMsg:
		if msg.err != nil {
			m.debug.Add(debug.KindError, msg.err.Error())
		}
		return m, nil

	case actionResultMsg:
		m.handleActionResult(msg)
		m.refresh()
		return m, nil

	case patientResultMsg:
		m.patient.Busy = false
		if msg.err != nil {
			m.patient.Err = describeActionError(msg.err)
			m.debug.Add(debug.KindError, "add patient: "+msg.err.Error())
			return m, nil
		}
		m.overlay = OverlayNone
		m.statusBar.SetNotice(fmt.Sprintf("Added %s in room %s; it appears after the next sync.", msg.patient.Name, msg.patient.RoomNumber), false)
		m.debug.Add(debug.KindAction, fmt.Sprintf("patient %d added", msg.patient.ID))
		return m, nil

	case form.SubmitMsg:
		return m.handleSubmit(msg)

	case form.CancelMsg:
		if msg.Kind == form.KindPatient {
			m.overlay = OverlayNone
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	// Cursor blinks and other input-internal messages.
	var cmd tea.Cmd
	switch {
	case !m.authed:
		m.login, cmd = m.login.Update(msg)
	case m.overlay == OverlayAddPatient:
		m.patient, cmd = m.patient.Update(msg)
	}
	return m, cmd
}

func (m *Model) applyAuth(st auth.State) {
	if st.Authenticated {
		m.authed = true
		m.stale = false
		if st.User.Username != "" {
			m.username = st.User.Username
		}
		m.statusBar.SetNotice("", false)
		m.debug.Add(debug.KindAuth, fmt.Sprintf("signed in (generation %d)", st.Generation))
		m.refresh()
		return
	}

	m.authed = false
	m.overlay = OverlayNone
	m.stale = st.Reason != "logout" && st.Reason != ""
	m.login = form.NewLogin(m.username)
	if m.stale {
		m.login.Err = "Your session expired. Sign in again to resume updates."
	}
	m.debug.Add(debug.KindAuth, "signed out: "+st.Reason)
	m.logger.Info("signed out", zap.String("reason", st.Reason))
	m.refresh()
}

func (m *Model) handleActionResult(msg actionResultMsg) {
	if msg.err != nil {
		m.statusBar.SetNotice(fmt.Sprintf("%s failed: %s (press again to retry)", msg.op, describeActionError(msg.err)), true)
		m.debug.Add(debug.KindError, msg.op+": "+msg.err.Error())
		m.logger.Warn("action failed", zap.String("op", msg.op), zap.Error(msg.err))
		return
	}
	m.statusBar.SetNotice(msg.op+" requested; waiting for the backend to confirm.", false)
	m.debug.Add(debug.KindAction, msg.op+" accepted")
}

func (m Model) handleSubmit(msg form.SubmitMsg) (tea.Model, tea.Cmd) {
	switch msg.Kind {
	case form.KindLogin:
		u, p := msg.Values[form.FieldUsername], msg.Values[form.FieldPassword]
		if u == "" || p == "" {
			m.login.Err = "Username and password are required."
			return m, nil
		}
		m.login.Busy = true
		m.login.Err = ""
		m.username = u
		return m, m.signIn(u, p)

	case form.KindPatient:
		np, err := form.ToNewPatient(msg.Values)
		if err != nil {
			m.patient.Err = err.Error()
			return m, nil
		}
		if err := monitoring.Validate(np); err != nil {
			m.patient.Err = describeActionError(err)
			return m, nil
		}
		m.patient.Busy = true
		m.patient.Err = ""
		ctl, ctx, timeout := m.deps.Controller, m.ctx, m.deps.RequestTimeout
		return m, func() tea.Msg {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			p, err := ctl.AddPatient(ctx, np)
			return patientResultMsg{patient: p, err: err}
		}
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		m.Close()
		return m, tea.Quit
	}

	if !m.authed {
		var cmd tea.Cmd
		m.login, cmd = m.login.Update(msg)
		return m, cmd
	}

	switch m.overlay {
	case OverlayAddPatient:
		var cmd tea.Cmd
		m.patient, cmd = m.patient.Update(msg)
		return m, cmd
	case OverlayDebug:
		switch {
		case key.Matches(msg, m.keys.Escape), key.Matches(msg, m.keys.Debug):
			m.overlay = OverlayNone
		case key.Matches(msg, m.keys.Up):
			m.debug.ScrollUp(1)
		case key.Matches(msg, m.keys.Down):
			m.debug.ScrollDown(1)
		}
		return m, nil
	case OverlayHelp:
		if key.Matches(msg, m.keys.Escape) || key.Matches(msg, m.keys.Help) {
			m.overlay = OverlayNone
		}
		return m, nil
	case OverlayDetail:
		switch {
		case key.Matches(msg, m.keys.Escape):
			m.overlay = OverlayNone
			return m, nil
		case key.Matches(msg, m.keys.Start):
			return m, m.startSelected()
		case key.Matches(msg, m.keys.Stop):
			return m, m.stopSelected()
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.Close()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Down):
		m.board.Move(1)

	case key.Matches(msg, m.keys.Up):
		m.board.Move(-1)

	case key.Matches(msg, m.keys.Enter):
		if row, ok := m.board.Selected(); ok {
			m.detailID = row.Summary.Patient.ID
			m.overlay = OverlayDetail
		}

	case key.Matches(msg, m.keys.Start):
		return m, m.startSelected()

	case key.Matches(msg, m.keys.Stop):
		return m, m.stopSelected()

	case key.Matches(msg, m.keys.Add):
		m.patient = form.NewPatient()
		m.overlay = OverlayAddPatient
		return m, m.patient.Init()

	case key.Matches(msg, m.keys.Refresh):
		m.deps.Poller.Nudge()
		m.statusBar.SetNotice("Refresh requested.", false)

	case key.Matches(msg, m.keys.Debug):
		m.overlay = OverlayDebug

	case key.Matches(msg, m.keys.Help):
		m.overlay = OverlayHelp

	case key.Matches(msg, m.keys.Logout):
		return m, m.signOut()
	}
	return m, nil
}

// targetRow is the patient acted on: the detail overlay's patient when it
// is open, otherwise the board cursor.
func (m Model) targetRow() (board.Row, bool) {
	if m.overlay == OverlayDetail {
		for _, r := range m.rows() {
			if r.Summary.Patient.ID == m.detailID {
				return r, true
			}
		}
		return board.Row{}, false
	}
	return m.board.Selected()
}

func (m *Model) startSelected() tea.Cmd {
	row, ok := m.targetRow()
	if !ok {
		return nil
	}
	id := row.Summary.Patient.ID
	ctl := m.deps.Controller
	m.clearNotice()
	return m.action(fmt.Sprintf("Start monitoring %s", row.Summary.Patient.Name), func(ctx context.Context) error {
		return ctl.StartMonitoring(ctx, id)
	})
}

func (m *Model) stopSelected() tea.Cmd {
	row, ok := m.targetRow()
	if !ok {
		return nil
	}
	if row.Summary.Active == nil {
		m.statusBar.SetNotice(fmt.Sprintf("%s has no active session.", row.Summary.Patient.Name), true)
		return nil
	}
	sessionID := row.Summary.Active.ID
	ctl := m.deps.Controller
	m.clearNotice()
	return m.action(fmt.Sprintf("Stop monitoring %s", row.Summary.Patient.Name), func(ctx context.Context) error {
		return ctl.StopMonitoring(ctx, sessionID)
	})
}

// clearNotice drops an old notice so the pending phase is what shows.
func (m *Model) clearNotice() {
	m.statusBar.SetNotice("", false)
}

func (m Model) rows() []board.Row {
	snap := m.deps.Registries.Snapshot()
	sums := status.Board(snap.Patients, snap.Sessions, snap.Alerts)
	rows := make([]board.Row, len(sums))
	for i, s := range sums {
		rows[i] = board.Row{Summary: s, Phase: m.deps.Controller.Phase(s.Patient.ID).String()}
	}
	return rows
}

// refresh rebuilds everything derived from the caches.
func (m *Model) refresh() {
	snap := m.deps.Registries.Snapshot()
	m.board.SetRows(m.rows())
	m.board.Stale = m.stale
	m.statusBar.Authenticated = m.authed
	m.statusBar.Stale = m.stale
	m.statusBar.Username = m.username
	m.statusBar.Stats = snap.Stats
	m.statusBar.HasStats = snap.HasStats
	m.statusBar.Anomalies = len(snap.Anomalies)
	m.statusBar.Health = m.deps.Poller.Health()
}

// View renders the full dashboard.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}
	now := time.Now()

	if !m.authed {
		sections := []string{m.statusBar.View(), m.login.View()}
		if m.stale {
			sections = append(sections, m.board.View(now))
		}
		return lipgloss.JoinVertical(lipgloss.Left, sections...)
	}

	var body string
	switch m.overlay {
	case OverlayDetail:
		body = m.detailView(now)
	case OverlayDebug:
		body = m.debug.View(m.width, m.height-4)
	case OverlayHelp:
		body = m.help.View(m.width)
	case OverlayAddPatient:
		body = m.patient.View()
	default:
		body = m.board.View(now)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.statusBar.View(),
		body,
		theme.StyleDimmed.Render("  j/k:navigate  enter:detail  s:start  x:stop  a:add  r:refresh  d:log  ?:help  L:sign out  q:quit"),
	)
}

func (m Model) detailView(now time.Time) string {
	snap := m.deps.Registries.Snapshot()
	p, ok := m.deps.Registries.Patients.Get(m.detailID)
	if !ok {
		return theme.StyleDimmed.Render("  Patient no longer listed.")
	}
	sum := status.Summarize(p, snap.Sessions, snap.Alerts)
	d := detail.New(sum, m.deps.Controller.Phase(p.ID).String(), snap.Sessions, snap.Alerts)
	if m.deps.MarkdownStyle != "" {
		d.Style = m.deps.MarkdownStyle
	}
	return d.View(now)
}

func describeLoginError(err error) string {
	switch {
	case errors.Is(err, client.ErrAuthExpired):
		return "Invalid username or password."
	case errors.Is(err, client.ErrNetwork):
		return "Backend unreachable. Check the server URL and try again."
	default:
		return err.Error()
	}
}

func describeActionError(err error) string {
	var apiErr *client.APIError
	switch {
	case errors.Is(err, auth.ErrUnauthenticated), errors.Is(err, client.ErrAuthExpired):
		return "not signed in"
	case errors.Is(err, monitoring.ErrValidation):
		return err.Error()
	case errors.As(err, &apiErr) && errors.Is(err, client.ErrRejected):
		if apiErr.Body != "" {
			return fmt.Sprintf("rejected by backend (%d): %s", apiErr.StatusCode, apiErr.Body)
		}
		return fmt.Sprintf("rejected by backend (%d)", apiErr.StatusCode)
	case errors.Is(err, client.ErrNetwork):
		return "backend unreachable"
	default:
		return err.Error()
	}
}
