package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/strrl/ng12-assist/internal/logging"
	"github.com/strrl/ng12-assist/internal/sessions"
	"github.com/strrl/ng12-assist/pkg/models"
)

type focusArea int

const (
	focusInput focusArea = iota
	focusSidebar
)

const sidebarWidth = 28

// Options wires the conversation core into the UI
type Options struct {
	Router       *sessions.Router
	Resolver     *sessions.Resolver
	Directory    *sessions.Directory
	Synchronizer *sessions.Synchronizer
	Exchange     *sessions.Exchange
	Logger       *zap.Logger
	// GlamourStyle is a glamour standard style name; empty means auto-detect.
	GlamourStyle string
}

type model struct {
	opts   Options
	ctx    context.Context
	logger *zap.Logger

	conv          *sessions.Conversation
	sessions      []models.SessionSummary
	sidebarCursor int
	focus         focusArea
	clearing      bool
	status        string

	input         textinput.Model
	leftViewport  viewport.Model // session directory
	rightViewport viewport.Model // conversation
	indicator     *LoadingIndicator
	renderer      *glamour.TermRenderer
	ticking       bool
	initCmd       tea.Cmd
	ready         bool
	width         int
	height        int
}

func initialModel(ctx context.Context, opts Options) model {
	input := textinput.New()
	input.Placeholder = "Type your message..."
	input.Prompt = "> "
	input.CharLimit = 4000
	input.Focus()

	m := model{
		opts:      opts,
		ctx:       ctx,
		logger:    logging.OrNop(opts.Logger),
		conv:      sessions.NewConversation(),
		focus:     focusInput,
		input:     input,
		indicator: NewLoadingIndicator("Thinking..."),
	}
	m.initCmd = m.activateFromNavigation()
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.initCmd,
		waitForDirectoryCmd(m.ctx, m.opts.Directory.Updates()),
		textinput.Blink,
	)
}

// activateFromNavigation loads the session named by the router when it differs from
// the active one. The returned command is nil when nothing changed.
func (m *model) activateFromNavigation() tea.Cmd {
	id := m.opts.Resolver.Resolve(m.opts.Router.Query())
	if id == m.conv.SessionID() && m.conv.State() != sessions.StateIdle {
		return nil
	}

	ticket := m.conv.Activate(id)
	m.clearing = false
	m.status = ""
	m.logger.Debug("session activated", zap.String("session_id", id), zap.Uint64("generation", ticket.Generation))
	m.syncSidebarCursor()
	m.updateViewport()
	return tea.Batch(loadHistoryCmd(m.ctx, m.opts.Synchronizer, ticket), m.startTicking())
}

func (m *model) startTicking() tea.Cmd {
	if m.ticking {
		return nil
	}
	m.ticking = true
	return tickCmd()
}

func (m *model) busy() bool {
	return m.conv.Waiting() || m.conv.State() == sessions.StateLoadingHistory
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)

	case HistoryLoadedMsg:
		if !m.conv.ApplyHistory(msg.Ticket, msg.Messages, msg.Error) {
			m.logger.Debug("discarded stale history", zap.String("session_id", msg.Ticket.SessionID))
			return m, nil
		}
		m.updateViewport()
		m.rightViewport.GotoBottom()

	case ReplyReceivedMsg:
		if m.opts.Exchange.Finish(m.conv, msg.Ticket, msg.Reply, msg.Error) {
			cmds = append(cmds, refreshDirectoryCmd(m.ctx, m.opts.Directory))
		}
		cmds = append(cmds, m.input.Focus())
		m.updateViewport()
		m.rightViewport.GotoBottom()

	case SessionClearedMsg:
		m.clearing = false
		if m.conv.Current(msg.Ticket) {
			m.conv.Reset()
			m.updateViewport()
		}

	case DirectoryUpdatedMsg:
		m.sessions = msg.Sessions
		m.syncSidebarCursor()
		m.updateViewport()
		cmds = append(cmds, waitForDirectoryCmd(m.ctx, m.opts.Directory.Updates()))

	case TickMsg:
		if !m.busy() {
			m.ticking = false
			return m, nil
		}
		m.indicator.Tick()
		m.updateViewport()
		cmds = append(cmds, tickCmd())

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.rightViewport, cmd = m.rightViewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit

	case "tab":
		if m.focus == focusInput {
			m.focus = focusSidebar
			m.input.Blur()
		} else {
			m.focus = focusInput
			m.updateViewport()
			return m, m.input.Focus()
		}
		m.updateViewport()
		return m, nil

	case "ctrl+n":
		m.opts.Resolver.StartNew()
		return m, m.activateFromNavigation()

	case "ctrl+l":
		if m.clearing || m.conv.State() == sessions.StateIdle {
			return m, nil
		}
		m.clearing = true
		return m, clearCmd(m.ctx, m.opts.Exchange, m.conv.Ticket())

	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.rightViewport, cmd = m.rightViewport.Update(msg)
		return m, cmd
	}

	if m.focus == focusSidebar {
		return m.handleSidebarKey(msg)
	}
	return m.handleInputKey(msg)
}

func (m model) handleSidebarKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.sidebarCursor > 0 {
			m.sidebarCursor--
			m.updateViewport()
		}
	case "down", "j":
		if m.sidebarCursor < len(m.sessions)-1 {
			m.sidebarCursor++
			m.updateViewport()
		}
	case "enter":
		if m.sidebarCursor < len(m.sessions) {
			m.opts.Directory.Select(m.sessions[m.sidebarCursor].ID)
			m.focus = focusInput
			return m, tea.Batch(m.activateFromNavigation(), m.input.Focus())
		}
	case "esc":
		m.focus = focusInput
		m.updateViewport()
		return m, m.input.Focus()
	}
	return m, nil
}

func (m model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyEnter {
		if m.clearing {
			return m, nil
		}
		ticket, req, err := m.opts.Exchange.Begin(m.conv, m.input.Value())
		switch {
		case errors.Is(err, sessions.ErrEmptyMessage), errors.Is(err, sessions.ErrSendInFlight):
			return m, nil
		case err != nil:
			m.status = err.Error()
			return m, nil
		}

		m.status = ""
		m.input.Reset()
		m.input.Blur()
		m.indicator.SetMessage("Thinking...")
		m.updateViewport()
		m.rightViewport.GotoBottom()
		return m, tea.Batch(sendCmd(m.ctx, m.opts.Exchange, ticket, req), m.startTicking())
	}

	if m.conv.Waiting() {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// syncSidebarCursor points the sidebar cursor at the active session when it is listed
func (m *model) syncSidebarCursor() {
	for i, s := range m.sessions {
		if s.ID == m.conv.SessionID() {
			m.sidebarCursor = i
			return
		}
	}
	if m.sidebarCursor >= len(m.sessions) {
		m.sidebarCursor = 0
	}
}

func (m *model) resize(width, height int) {
	m.width = width
	m.height = height

	leftWidth := sidebarWidth
	if width < 3*sidebarWidth {
		leftWidth = width / 3
	}
	rightWidth := width - leftWidth - 1
	viewHeight := height - 4

	if !m.ready {
		m.leftViewport = viewport.New(leftWidth, viewHeight)
		m.rightViewport = viewport.New(rightWidth, viewHeight)
		m.ready = true
	} else {
		m.leftViewport.Width = leftWidth
		m.leftViewport.Height = viewHeight
		m.rightViewport.Width = rightWidth
		m.rightViewport.Height = viewHeight
	}
	m.input.Width = width - 4

	style := glamour.WithAutoStyle()
	if m.opts.GlamourStyle != "" {
		style = glamour.WithStandardStyle(m.opts.GlamourStyle)
	}
	renderer, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(rightWidth-4))
	if err != nil {
		m.logger.Warn("failed to create markdown renderer", zap.Error(err))
		renderer = nil
	}
	m.renderer = renderer

	m.updateViewport()
}

func (m *model) updateViewport() {
	if !m.ready {
		return
	}
	m.leftViewport.SetContent(m.renderSessionsList())
	m.rightViewport.SetContent(m.renderMessages())
}

func (m model) renderSessionsList() string {
	var s strings.Builder

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("229"))
	s.WriteString(headerStyle.Render("History") + "\n")
	s.WriteString(strings.Repeat("─", max(m.leftViewport.Width-2, 1)) + "\n\n")

	if len(m.sessions) == 0 {
		emptyStyle := lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)
		s.WriteString(emptyStyle.Render("No history yet."))
		return s.String()
	}

	for i, entry := range sessions.Mark(m.sessions, m.conv.SessionID()) {
		cursor := "  "
		if m.focus == focusSidebar && i == m.sidebarCursor {
			cursor = "> "
		}

		style := lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
		if entry.Active {
			style = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
		}

		s.WriteString(style.Render(cursor+entry.Session.DisplayName()) + "\n")

		idStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
		s.WriteString(idStyle.Render("  "+truncate(entry.Session.ID, 12)) + "\n")
	}

	return s.String()
}

func (m model) renderMessages() string {
	var s strings.Builder

	messages := m.conv.Messages()
	if len(messages) == 0 && m.conv.State() == sessions.StateLoadingHistory {
		loading := NewLoadingIndicator("Loading history...")
		loading.spinner.frame = m.indicator.spinner.frame
		s.WriteString(loading.View())
		return s.String()
	}

	wrapWidth := max(m.rightViewport.Width-4, 20)

	userLabel := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	agentLabel := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	refStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	refHeader := refStyle.Bold(true)

	for i, msg := range messages {
		if msg.Role == models.RoleUser {
			s.WriteString(userLabel.Render("You") + "\n")
			for _, line := range wrapText(msg.Content, wrapWidth) {
				s.WriteString(line + "\n")
			}
		} else {
			s.WriteString(agentLabel.Render("NG12 Assistant") + "\n")
			s.WriteString(m.renderMarkdown(msg.Content, wrapWidth))
		}

		if len(msg.Citations) > 0 {
			s.WriteString(refHeader.Render("References:") + "\n")
			for _, c := range msg.Citations {
				s.WriteString(refStyle.Render(c.Label()) + "\n")
				for _, line := range wrapText(fmt.Sprintf("%q", c.Excerpt), wrapWidth-2) {
					s.WriteString(refStyle.Render("  "+line) + "\n")
				}
			}
		}

		if i < len(messages)-1 {
			s.WriteString("\n")
		}
	}

	if m.conv.Waiting() {
		s.WriteString("\n" + agentLabel.Render("NG12 Assistant") + "\n")
		s.WriteString(m.indicator.View() + "\n")
	}

	return s.String()
}

func (m model) renderMarkdown(content string, wrapWidth int) string {
	if m.renderer != nil {
		if out, err := m.renderer.Render(content); err == nil {
			return strings.Trim(out, "\n") + "\n"
		}
	}
	var s strings.Builder
	for _, line := range wrapText(content, wrapWidth) {
		s.WriteString(line + "\n")
	}
	return s.String()
}

// wrapText wraps text to fit within the specified width
func wrapText(text string, width int) []string {
	if width <= 0 {
		return []string{text}
	}

	var lines []string
	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{text}
	}

	currentLine := words[0]
	for _, word := range words[1:] {
		if len(currentLine)+1+len(word) > width {
			lines = append(lines, currentLine)
			currentLine = word
		} else {
			currentLine += " " + word
		}
	}
	if currentLine != "" {
		lines = append(lines, currentLine)
	}

	return lines
}

func (m model) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}

	return fmt.Sprintf("%s\n%s\n%s\n%s", m.renderHeader(), m.renderSplitView(), m.renderInput(), m.renderFooter())
}

func (m model) renderSplitView() string {
	leftStyle := lipgloss.NewStyle().
		Width(m.leftViewport.Width).
		Height(m.leftViewport.Height)

	rightStyle := lipgloss.NewStyle().
		Width(m.rightViewport.Width).
		Height(m.rightViewport.Height)

	dividerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("238")).
		Height(m.leftViewport.Height)

	divider := strings.TrimSuffix(strings.Repeat("│\n", max(m.leftViewport.Height, 1)), "\n")

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		leftStyle.Render(m.leftViewport.View()),
		dividerStyle.Render(divider),
		rightStyle.Render(m.rightViewport.View()),
	)
}

func (m model) renderHeader() string {
	title := fmt.Sprintf("NG12 Assistant - %s", truncate(m.conv.SessionID(), 36))

	style := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("63"))

	return style.Render(title)
}

func (m model) renderInput() string {
	if m.conv.Waiting() {
		return lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Render("> waiting for reply...")
	}
	if m.status != "" {
		return lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render(m.status) + "  " + m.input.View()
	}
	return m.input.View()
}

func (m model) renderFooter() string {
	info := "enter: send • tab: sessions • ctrl+n: new chat • ctrl+l: clear • ctrl+c: quit"
	if m.focus == focusSidebar {
		info = "↑/↓: navigate • enter: open • tab/esc: back to chat • ctrl+c: quit"
	}

	style := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	return style.Render(info)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// ShowTUI runs the chat UI until the user quits. The session directory polls for
// as long as the UI is open.
func ShowTUI(ctx context.Context, opts Options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts.Directory.Start(ctx)
	defer opts.Directory.Stop()

	p := tea.NewProgram(
		initialModel(ctx, opts),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)

	_, err := p.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}
