package sessions

import (
	"errors"
	"strings"

	"github.com/strrl/ng12-assist/pkg/models"
)

// State is the lifecycle state of the conversation view
type State int

const (
	StateIdle State = iota
	StateLoadingHistory
	StateReady
	StateSending
	StateSendError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoadingHistory:
		return "loading-history"
	case StateReady:
		return "ready"
	case StateSending:
		return "sending"
	case StateSendError:
		return "send-error"
	default:
		return "unknown"
	}
}

const (
	// ApologyText replaces the agent turn when a send fails
	ApologyText = "Sorry, I encountered an error connecting to the server."
	// ClearedText is the greeting shown after a session is cleared
	ClearedText = "Chat history cleared. How can I help?"
)

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrSendInFlight = errors.New("a message is already being sent")
	ErrNotReady     = errors.New("conversation is not ready")
)

// Ticket tags an outstanding request with the activation it was issued for
type Ticket struct {
	SessionID  string
	Generation uint64
}

// Conversation is the message list of the active session and its state machine.
// It is owned by a single goroutine (the UI loop) and is not safe for concurrent use.
type Conversation struct {
	sessionID  string
	generation uint64
	state      State
	messages   []models.Message
}

// NewConversation returns an idle conversation with no active session
func NewConversation() *Conversation {
	return &Conversation{state: StateIdle}
}

// SessionID returns the active session id
func (c *Conversation) SessionID() string {
	return c.sessionID
}

// State returns the current state
func (c *Conversation) State() State {
	return c.state
}

// Waiting reports whether an agent reply is outstanding
func (c *Conversation) Waiting() bool {
	return c.state == StateSending
}

// Messages returns a copy of the message list
func (c *Conversation) Messages() []models.Message {
	return append([]models.Message(nil), c.messages...)
}

// Len returns the number of messages
func (c *Conversation) Len() int {
	return len(c.messages)
}

// Current reports whether t was issued for the present activation
func (c *Conversation) Current(t Ticket) bool {
	return t.SessionID == c.sessionID && t.Generation == c.generation
}

// Ticket returns the tag for requests issued against the present activation
func (c *Conversation) Ticket() Ticket {
	return Ticket{SessionID: c.sessionID, Generation: c.generation}
}

// Activate makes sessionID the active session. The message list is emptied and every
// ticket issued before this call becomes stale.
func (c *Conversation) Activate(sessionID string) Ticket {
	c.generation++
	c.sessionID = sessionID
	c.messages = nil
	c.state = StateLoadingHistory
	return c.Ticket()
}

// ApplyHistory replaces the message list with a loaded history. A failed load leaves
// the list empty. Results for stale tickets are discarded and false is returned.
func (c *Conversation) ApplyHistory(t Ticket, messages []models.Message, err error) bool {
	if !c.Current(t) || c.state != StateLoadingHistory {
		return false
	}
	if err != nil {
		c.messages = nil
	} else {
		c.messages = append([]models.Message(nil), messages...)
	}
	c.state = StateReady
	return true
}

// BeginSend appends the user's turn and enters the sending state. The trimmed text
// is returned for the backend request.
func (c *Conversation) BeginSend(text string) (Ticket, string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Ticket{}, "", ErrEmptyMessage
	}
	switch c.state {
	case StateSending:
		return Ticket{}, "", ErrSendInFlight
	case StateIdle, StateLoadingHistory:
		return Ticket{}, "", ErrNotReady
	}

	c.messages = append(c.messages, models.Message{Role: models.RoleUser, Content: text})
	c.state = StateSending
	return c.Ticket(), text, nil
}

// CompleteSend appends the agent's reply, or the apology turn when err is non-nil,
// and leaves the sending state. A stale ticket changes nothing and returns false.
func (c *Conversation) CompleteSend(t Ticket, reply models.Message, err error) bool {
	if !c.Current(t) || c.state != StateSending {
		return false
	}
	if err != nil {
		c.messages = append(c.messages, models.Message{Role: models.RoleAgent, Content: ApologyText})
		c.state = StateSendError
		return true
	}
	reply.Role = models.RoleAgent
	reply.Citations = append([]models.Citation(nil), reply.Citations...)
	c.messages = append(c.messages, reply)
	c.state = StateReady
	return true
}

// Reset replaces the list with a single cleared greeting. Outstanding tickets become stale.
func (c *Conversation) Reset() {
	c.generation++
	c.messages = []models.Message{{Role: models.RoleAgent, Content: ClearedText}}
	c.state = StateReady
}
