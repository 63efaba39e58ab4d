package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strrl/ng12-assist/internal/api"
	"github.com/strrl/ng12-assist/internal/api/apitest"
	"github.com/strrl/ng12-assist/internal/sessions"
	"github.com/strrl/ng12-assist/pkg/models"
)

type testEnv struct {
	srv    *apitest.Server
	client *api.Client
	opts   Options
}

func newTestEnv(t *testing.T, link string) *testEnv {
	t.Helper()

	srv := apitest.NewServer()
	t.Cleanup(srv.Close)

	router, err := sessions.NewRouter(link)
	require.NoError(t, err)

	client := api.NewClient(srv.URL)
	return &testEnv{
		srv:    srv,
		client: client,
		opts: Options{
			Router:       router,
			Resolver:     sessions.NewResolver("default-session-1", router),
			Directory:    sessions.NewDirectory(client, router),
			Synchronizer: sessions.NewSynchronizer(client, nil),
			Exchange:     sessions.NewExchange(client, 0, nil),
			GlamourStyle: "notty",
		},
	}
}

// loaded returns a sized model whose initial history load has been applied
func (e *testEnv) loaded(t *testing.T) model {
	t.Helper()

	m := initialModel(context.Background(), e.opts)
	m = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})

	msg := loadHistoryCmd(context.Background(), e.opts.Synchronizer, m.conv.Ticket())()
	m = update(t, m, msg)
	require.Equal(t, sessions.StateReady, m.conv.State())
	return m
}

func update(t *testing.T, m model, msg tea.Msg) model {
	t.Helper()
	next, _ := m.Update(msg)
	out, ok := next.(model)
	require.True(t, ok)
	return out
}

func TestInitialModelActivatesResolvedSession(t *testing.T) {
	env := newTestEnv(t, "/chat?session_id=s1")

	m := initialModel(context.Background(), env.opts)

	assert.Equal(t, "s1", m.conv.SessionID())
	assert.Equal(t, sessions.StateLoadingHistory, m.conv.State())
	assert.NotNil(t, m.initCmd)
	assert.NotNil(t, m.Init())
}

func TestInitialModelFallsBackToDefaultSession(t *testing.T) {
	env := newTestEnv(t, "")

	m := initialModel(context.Background(), env.opts)

	assert.Equal(t, "default-session-1", m.conv.SessionID())
}

func TestHistoryLoadedShowsTranscript(t *testing.T) {
	env := newTestEnv(t, "/chat?session_id=s1")
	env.srv.SetTranscript("s1", []string{"User: hello", "Agent: hi there"}, time.Now())

	m := env.loaded(t)

	messages := m.conv.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, models.RoleUser, messages[0].Role)
	assert.Equal(t, "hi there", messages[1].Content)
	assert.Contains(t, m.View(), "hello")
}

func TestEmptyHistoryShowsWelcome(t *testing.T) {
	env := newTestEnv(t, "/chat?session_id=fresh")

	m := env.loaded(t)

	messages := m.conv.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, sessions.WelcomeText, messages[0].Content)
}

func TestStaleHistoryIsIgnored(t *testing.T) {
	env := newTestEnv(t, "/chat?session_id=a")

	m := initialModel(context.Background(), env.opts)
	staleTicket := m.conv.Ticket()

	env.opts.Router.Navigate("b")
	m.activateFromNavigation()
	require.Equal(t, "b", m.conv.SessionID())

	m = update(t, m, HistoryLoadedMsg{
		Ticket:   staleTicket,
		Messages: []models.Message{{Role: models.RoleUser, Content: "from a"}},
	})

	assert.Equal(t, sessions.StateLoadingHistory, m.conv.State())
	assert.Equal(t, 0, m.conv.Len())
}

func TestSendFlow(t *testing.T) {
	env := newTestEnv(t, "/chat?session_id=s1")
	env.srv.SetReply(apitest.Reply{
		Answer:    "Refer urgently.",
		Citations: []models.Citation{{Source: "NG12", Page: "12", Excerpt: "Refer people"}},
	})
	m := env.loaded(t)

	m.input.SetValue("  what is a red flag?  ")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(model)

	require.NotNil(t, cmd)
	assert.True(t, m.conv.Waiting())
	assert.Equal(t, "", m.input.Value())
	messages := m.conv.Messages()
	assert.Equal(t, "what is a red flag?", messages[len(messages)-1].Content)
	assert.Contains(t, m.View(), "Thinking...")

	reply, err := env.opts.Exchange.Request(context.Background(), api.SendRequest{SessionID: "s1", Message: "what is a red flag?"})
	require.NoError(t, err)
	m = update(t, m, ReplyReceivedMsg{Ticket: m.conv.Ticket(), Reply: reply})

	assert.False(t, m.conv.Waiting())
	messages = m.conv.Messages()
	last := messages[len(messages)-1]
	assert.Equal(t, models.RoleAgent, last.Role)
	assert.Equal(t, "Refer urgently.", last.Content)
	assert.Contains(t, m.View(), "[NG12 p.12]")
}

func TestSendIgnoresEmptyInput(t *testing.T) {
	env := newTestEnv(t, "/chat?session_id=s1")
	m := env.loaded(t)
	before := m.conv.Len()

	m.input.SetValue("   ")
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Equal(t, before, m.conv.Len())
	assert.False(t, m.conv.Waiting())
}

func TestSendFailureAppendsApology(t *testing.T) {
	env := newTestEnv(t, "/chat?session_id=s1")
	m := env.loaded(t)

	m.input.SetValue("hello")
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.True(t, m.conv.Waiting())

	m = update(t, m, ReplyReceivedMsg{Ticket: m.conv.Ticket(), Error: errors.New("connection refused")})

	assert.Equal(t, sessions.StateSendError, m.conv.State())
	messages := m.conv.Messages()
	assert.Equal(t, sessions.ApologyText, messages[len(messages)-1].Content)
}

func TestSendCmdReleasesOnPanic(t *testing.T) {
	ex := sessions.NewExchange(nil, 0, nil)
	ticket := sessions.Ticket{SessionID: "s1", Generation: 1}

	msg := sendCmd(context.Background(), ex, ticket, api.SendRequest{SessionID: "s1", Message: "x"})()

	reply, ok := msg.(ReplyReceivedMsg)
	require.True(t, ok)
	assert.Equal(t, ticket, reply.Ticket)
	assert.Error(t, reply.Error)
}

func TestNewChatSwitchesSession(t *testing.T) {
	env := newTestEnv(t, "/chat?session_id=s1")
	m := env.loaded(t)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlN})
	m = next.(model)

	require.NotNil(t, cmd)
	assert.NotEqual(t, "s1", m.conv.SessionID())
	assert.Equal(t, m.conv.SessionID(), env.opts.Router.Query().Get(sessions.SessionParam))
	assert.Equal(t, sessions.StateLoadingHistory, m.conv.State())
}

func TestClearResetsConversation(t *testing.T) {
	env := newTestEnv(t, "/chat?session_id=s1")
	env.srv.SetTranscript("s1", []string{"User: hello", "Agent: hi"}, time.Now())
	m := env.loaded(t)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlL})
	m = next.(model)
	require.NotNil(t, cmd)
	assert.True(t, m.clearing)

	msg := clearCmd(context.Background(), env.opts.Exchange, m.conv.Ticket())()
	m = update(t, m, msg)

	assert.False(t, m.clearing)
	messages := m.conv.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, sessions.ClearedText, messages[0].Content)
	assert.Empty(t, env.srv.Transcript("s1"))
}

func TestClearFailureStillResets(t *testing.T) {
	env := newTestEnv(t, "/chat?session_id=s1")
	env.srv.FailNext("clear", 1)
	m := env.loaded(t)

	msg := clearCmd(context.Background(), env.opts.Exchange, m.conv.Ticket())()
	cleared, ok := msg.(SessionClearedMsg)
	require.True(t, ok)
	require.Error(t, cleared.Error)

	m = update(t, m, msg)
	assert.Equal(t, sessions.ClearedText, m.conv.Messages()[0].Content)
}

func TestDirectoryUpdateAndSelect(t *testing.T) {
	env := newTestEnv(t, "/chat?session_id=s1")
	m := env.loaded(t)

	list := []models.SessionSummary{
		{ID: "s2", LastActiveAt: time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)},
		{ID: "s1", LastActiveAt: time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)},
	}
	next, cmd := m.Update(DirectoryUpdatedMsg{Sessions: list})
	m = next.(model)
	require.NotNil(t, cmd)
	assert.Equal(t, 1, m.sidebarCursor)

	m = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	require.Equal(t, focusSidebar, m.focus)

	m = update(t, m, tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 0, m.sidebarCursor)

	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, focusInput, m.focus)
	assert.Equal(t, "s2", m.conv.SessionID())
	assert.Equal(t, "/chat?session_id=s2", env.opts.Router.Location())
}

func TestSidebarEmptyState(t *testing.T) {
	env := newTestEnv(t, "/chat?session_id=s1")
	m := env.loaded(t)

	assert.Contains(t, m.renderSessionsList(), "No history yet.")
}

func TestTickStopsWhenIdle(t *testing.T) {
	env := newTestEnv(t, "/chat?session_id=s1")
	m := env.loaded(t)
	m.ticking = true

	next, cmd := m.Update(TickMsg(time.Now()))
	m = next.(model)

	assert.Nil(t, cmd)
	assert.False(t, m.ticking)
}

func TestViewBeforeResize(t *testing.T) {
	env := newTestEnv(t, "")
	m := initialModel(context.Background(), env.opts)

	if !strings.Contains(m.View(), "Initializing") {
		t.Error("View should show initializing before the first window size")
	}
}

func TestSpinnerAnimation(t *testing.T) {
	spinner := NewSpinner()

	initialFrame := spinner.View()
	spinner.Next()
	if spinner.View() == initialFrame {
		t.Error("Spinner should advance to next frame")
	}

	for i := 0; i < len(spinner.frames)-1; i++ {
		spinner.Next()
	}
	if spinner.View() != initialFrame {
		t.Error("Spinner should cycle back to first frame")
	}
}

func TestLoadingIndicator(t *testing.T) {
	indicator := NewLoadingIndicator("Thinking...")
	if !strings.Contains(indicator.View(), "Thinking...") {
		t.Error("Loading indicator should show message")
	}

	indicator.SetMessage("Loading history...")
	if !strings.Contains(indicator.View(), "Loading history...") {
		t.Error("Loading indicator should show updated message")
	}
}

func TestWrapText(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		width int
		want  []string
	}{
		{"fits", "short text", 20, []string{"short text"}},
		{"wraps", "one two three four", 9, []string{"one two", "three", "four"}},
		{"zero width", "anything goes", 0, []string{"anything goes"}},
		{"empty", "", 10, []string{""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, wrapText(tt.text, tt.width))
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "abcde...", truncate("abcdefgh", 5))
}
