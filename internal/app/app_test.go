package app

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalwatch/monitor/internal/auth"
	"github.com/vitalwatch/monitor/internal/client"
	"github.com/vitalwatch/monitor/internal/config"
	"github.com/vitalwatch/monitor/internal/mockserver"
	"github.com/vitalwatch/monitor/internal/monitoring"
	"github.com/vitalwatch/monitor/internal/poller"
	"github.com/vitalwatch/monitor/internal/registry"
	"github.com/vitalwatch/monitor/internal/views/form"
)

type harness struct {
	server *mockserver.Server
	guard  *auth.Guard
	poller *poller.Poller
	ctl    *monitoring.Controller
	model  Model
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.Sync.PollInterval = time.Hour

	store := mockserver.NewStore(cfg.Mock.Users)
	store.Seed()
	srv := mockserver.NewServer(store, mockserver.NewBroadcaster(nil), mockserver.StaticProbe("operational"), nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	h := &harness{server: srv}
	api := client.NewHTTPClient(ts.URL, 2*time.Second, nil)
	h.guard = auth.NewGuard(nil)
	regs := registry.NewSet(nil)
	h.poller = poller.New(api, h.guard, regs, cfg.Sync, nil)
	h.ctl = monitoring.NewController(api, h.guard, regs, h.poller, nil)
	authn := auth.NewAuthenticator(api, h.guard, auth.Resetters{regs, h.ctl}, nil)

	h.model = New(Deps{
		Authenticator:  authn,
		Guard:          h.guard,
		Registries:     regs,
		Poller:         h.poller,
		Controller:     h.ctl,
		RequestTimeout: 2 * time.Second,
		MarkdownStyle:  "notty",
	})
	t.Cleanup(h.model.Close)
	h.send(tea.WindowSizeMsg{Width: 300, Height: 50})
	return h
}

// send runs one Update and returns the follow-up command.
func (h *harness) send(msg tea.Msg) tea.Cmd {
	next, cmd := h.model.Update(msg)
	h.model = next.(Model)
	return cmd
}

// run executes cmd synchronously and feeds its message back.
func (h *harness) run(t *testing.T, cmd tea.Cmd) {
	t.Helper()
	require.NotNil(t, cmd)
	h.send(cmd())
}

func (h *harness) key(s string) tea.Cmd {
	switch s {
	case "enter":
		return h.send(tea.KeyMsg{Type: tea.KeyEnter})
	case "esc":
		return h.send(tea.KeyMsg{Type: tea.KeyEsc})
	case "ctrl+c":
		return h.send(tea.KeyMsg{Type: tea.KeyCtrlC})
	}
	return h.send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
}

func (h *harness) signIn(t *testing.T) {
	t.Helper()
	cmd := h.send(form.SubmitMsg{Kind: form.KindLogin, Values: map[string]string{
		form.FieldUsername: "nurse",
		form.FieldPassword: "nurse",
	}})
	h.run(t, cmd)
	require.True(t, h.guard.IsAuthenticated())
	h.send(authMsg{state: h.guard.State()})
	h.poll()
}

func (h *harness) poll() {
	h.send(reportMsg{report: h.poller.Tick(context.Background())})
}

func TestViewBeforeWindowSize(t *testing.T) {
	m := Model{}
	assert.Equal(t, "Initializing...", m.View())
}

func TestSignedOutShowsLoginForm(t *testing.T) {
	h := newHarness(t)

	view := h.model.View()
	assert.Contains(t, view, "Sign in")
	assert.NotContains(t, view, "Ada Lovelace")

	// q is typed into the form, not treated as quit.
	h.key("q")
	assert.Equal(t, "q", h.model.login.Values()[form.FieldUsername])
}

func TestLoginFailureKeepsFormOpen(t *testing.T) {
	h := newHarness(t)

	cmd := h.send(form.SubmitMsg{Kind: form.KindLogin, Values: map[string]string{
		form.FieldUsername: "nurse",
		form.FieldPassword: "wrong",
	}})
	h.run(t, cmd)

	assert.False(t, h.guard.IsAuthenticated())
	assert.Equal(t, "Invalid username or password.", h.model.login.Err)
	assert.False(t, h.model.login.Busy)
}

func TestEmptyCredentialsSendNothing(t *testing.T) {
	h := newHarness(t)

	cmd := h.send(form.SubmitMsg{Kind: form.KindLogin, Values: map[string]string{}})
	assert.Nil(t, cmd)
	assert.NotEmpty(t, h.model.login.Err)
}

func TestSignInPopulatesBoard(t *testing.T) {
	h := newHarness(t)
	h.signIn(t)

	view := h.model.View()
	for _, name := range []string{"Ada Lovelace", "Grace Hopper", "Alan Turing", "Edsger Dijkstra"} {
		assert.Contains(t, view, name)
	}
	assert.Equal(t, 4, h.model.board.Len())

	row, ok := h.model.board.Selected()
	require.True(t, ok)
	assert.Equal(t, "Ada Lovelace", row.Summary.Patient.Name, "most severe patient sorts first")
}

func TestStartShowsPendingUntilConfirmed(t *testing.T) {
	h := newHarness(t)
	h.signIn(t)

	// Ada, Grace, Alan, Edsger; Alan has no session.
	h.key("j")
	h.key("j")
	row, _ := h.model.board.Selected()
	require.Equal(t, "Alan Turing", row.Summary.Patient.Name)

	h.run(t, h.key("s"))
	assert.Equal(t, monitoring.Starting, h.ctl.Phase(row.Summary.Patient.ID))
	assert.Contains(t, h.model.statusBar.Notice, "waiting for the backend")
	assert.Nil(t, h.model.rows()[2].Summary.Active, "no session appears before the poll")

	h.poll()
	assert.Equal(t, monitoring.Active, h.ctl.Phase(row.Summary.Patient.ID))
	sel, _ := h.model.board.Selected()
	assert.Equal(t, "Alan Turing", sel.Summary.Patient.Name, "selection follows the patient across refreshes")
	assert.NotNil(t, sel.Summary.Active)
}

func TestStartRejectedShowsError(t *testing.T) {
	h := newHarness(t)
	h.signIn(t)

	// Ada already has an active session.
	h.run(t, h.key("s"))
	assert.True(t, h.model.statusBar.NoticeErr)
	assert.Equal(t, monitoring.Active, h.ctl.Phase(1))
}

func TestStopWithoutSessionSendsNothing(t *testing.T) {
	h := newHarness(t)
	h.signIn(t)

	h.key("j")
	h.key("j")
	assert.Nil(t, h.key("x"))
	assert.True(t, h.model.statusBar.NoticeErr)
	assert.Contains(t, h.model.statusBar.Notice, "no active session")
}

func TestAuthExpiryFreezesBoard(t *testing.T) {
	h := newHarness(t)
	h.signIn(t)

	gen := h.guard.State().Generation
	require.True(t, h.guard.Expire(gen, "401 on alerts"))
	h.send(authMsg{state: h.guard.State()})

	view := h.model.View()
	assert.Contains(t, view, "Sign in")
	assert.Contains(t, view, "Ada Lovelace", "frozen data stays visible")
	assert.Contains(t, view, "Showing last synced data")
	assert.True(t, h.model.statusBar.Stale)
}

func TestLogoutClearsBoard(t *testing.T) {
	h := newHarness(t)
	h.signIn(t)

	h.run(t, h.key("L"))
	assert.False(t, h.guard.IsAuthenticated())
	h.send(authMsg{state: h.guard.State()})

	view := h.model.View()
	assert.Contains(t, view, "Sign in")
	assert.NotContains(t, view, "Ada Lovelace")
	assert.False(t, h.model.stale)
}

func TestOverlays(t *testing.T) {
	h := newHarness(t)
	h.signIn(t)

	h.key("enter")
	assert.Equal(t, OverlayDetail, h.model.overlay)
	assert.Contains(t, h.model.View(), "Ada Lovelace")
	h.key("esc")
	assert.Equal(t, OverlayNone, h.model.overlay)

	h.key("d")
	assert.Equal(t, OverlayDebug, h.model.overlay)
	h.key("d")
	assert.Equal(t, OverlayNone, h.model.overlay)

	h.key("?")
	assert.Equal(t, OverlayHelp, h.model.overlay)
	h.key("esc")

	h.key("a")
	assert.Equal(t, OverlayAddPatient, h.model.overlay)
	h.send(form.CancelMsg{Kind: form.KindPatient})
	assert.Equal(t, OverlayNone, h.model.overlay)
}

func TestAddPatientAppearsAfterPoll(t *testing.T) {
	h := newHarness(t)
	h.signIn(t)
	h.key("a")

	cmd := h.send(form.SubmitMsg{Kind: form.KindPatient, Values: map[string]string{
		form.FieldName:   "Barbara Liskov",
		form.FieldAge:    "86",
		form.FieldGender: "F",
		form.FieldRoom:   "105",
	}})
	h.run(t, cmd)

	assert.Equal(t, OverlayNone, h.model.overlay)
	assert.Contains(t, h.model.statusBar.Notice, "Barbara Liskov")
	assert.Equal(t, 4, h.model.board.Len())

	h.poll()
	assert.Equal(t, 5, h.model.board.Len())
}

func TestAddPatientValidationKeepsForm(t *testing.T) {
	h := newHarness(t)
	h.signIn(t)
	h.key("a")

	cmd := h.send(form.SubmitMsg{Kind: form.KindPatient, Values: map[string]string{
		form.FieldName:   "Nobody",
		form.FieldAge:    "0",
		form.FieldGender: "F",
		form.FieldRoom:   "105",
	}})
	assert.Nil(t, cmd)
	assert.Equal(t, OverlayAddPatient, h.model.overlay)
	assert.NotEmpty(t, h.model.patient.Err)
}

func TestHintNudgesPoller(t *testing.T) {
	h := newHarness(t)
	h.signIn(t)

	h.model.HintFunc()(client.HintMessage{Type: client.HintChanged, Seq: 3, Payload: client.HintPayload{Feed: client.FeedAlerts}})
	var hint hintMsg
	timeout := time.After(time.Second)
	for found := false; !found; {
		select {
		case msg := <-h.model.events:
			hint, found = msg.(hintMsg)
		case <-timeout:
			t.Fatal("hint never reached the event queue")
		}
	}
	assert.Equal(t, client.FeedAlerts, hint.hint.Payload.Feed)

	h.send(hint)
	last := h.model.debug.Entries[len(h.model.debug.Entries)-1]
	assert.Contains(t, last.Message, "alerts changed")
}

func TestQuit(t *testing.T) {
	h := newHarness(t)
	h.signIn(t)

	cmd := h.key("q")
	require.NotNil(t, cmd)
	_, ok := cmd().(tea.QuitMsg)
	assert.True(t, ok)
}

func TestCtrlCQuitsFromLogin(t *testing.T) {
	h := newHarness(t)

	cmd := h.key("ctrl+c")
	require.NotNil(t, cmd)
	_, ok := cmd().(tea.QuitMsg)
	assert.True(t, ok)
}
