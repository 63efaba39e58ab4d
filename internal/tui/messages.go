package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/strrl/ng12-assist/internal/api"
	"github.com/strrl/ng12-assist/internal/sessions"
	"github.com/strrl/ng12-assist/pkg/models"
)

// Message types for async operations
type (
	// HistoryLoadedMsg carries a session's history, tagged with the activation it was fetched for
	HistoryLoadedMsg struct {
		Ticket   sessions.Ticket
		Messages []models.Message
		Error    error
	}

	// ReplyReceivedMsg carries the outcome of one send
	ReplyReceivedMsg struct {
		Ticket sessions.Ticket
		Reply  models.Message
		Error  error
	}

	// SessionClearedMsg indicates the backend delete finished (successfully or not)
	SessionClearedMsg struct {
		Ticket sessions.Ticket
		Error  error
	}

	// DirectoryUpdatedMsg contains a fresh session directory snapshot
	DirectoryUpdatedMsg struct {
		Sessions []models.SessionSummary
	}

	// TickMsg is sent periodically for spinner animation
	TickMsg time.Time
)

// Commands for async operations

// loadHistoryCmd loads a session's history asynchronously
func loadHistoryCmd(ctx context.Context, syncer *sessions.Synchronizer, ticket sessions.Ticket) tea.Cmd {
	return func() tea.Msg {
		messages, err := syncer.Load(ctx, ticket.SessionID)
		return HistoryLoadedMsg{
			Ticket:   ticket,
			Messages: messages,
			Error:    err,
		}
	}
}

// sendCmd performs the backend half of an exchange. It always yields a
// ReplyReceivedMsg so the waiting state is released.
func sendCmd(ctx context.Context, ex *sessions.Exchange, ticket sessions.Ticket, req api.SendRequest) tea.Cmd {
	return func() (msg tea.Msg) {
		var reply models.Message
		err := fmt.Errorf("send did not complete")
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("send panicked: %v", r)
			}
			msg = ReplyReceivedMsg{Ticket: ticket, Reply: reply, Error: err}
		}()
		reply, err = ex.Request(ctx, req)
		return msg
	}
}

// clearCmd deletes a session's transcript asynchronously
func clearCmd(ctx context.Context, ex *sessions.Exchange, ticket sessions.Ticket) tea.Cmd {
	return func() tea.Msg {
		err := ex.ClearRemote(ctx, ticket.SessionID)
		return SessionClearedMsg{Ticket: ticket, Error: err}
	}
}

// waitForDirectoryCmd blocks until the directory publishes a snapshot
func waitForDirectoryCmd(ctx context.Context, updates <-chan []models.SessionSummary) tea.Cmd {
	return func() tea.Msg {
		select {
		case list := <-updates:
			return DirectoryUpdatedMsg{Sessions: list}
		case <-ctx.Done():
			return nil
		}
	}
}

// refreshDirectoryCmd asks the directory for an out-of-band refresh; the result
// arrives through the directory's update channel.
func refreshDirectoryCmd(ctx context.Context, dir *sessions.Directory) tea.Cmd {
	return func() tea.Msg {
		_ = dir.Refresh(ctx)
		return nil
	}
}

// tickCmd creates a ticker for spinner animation
func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
