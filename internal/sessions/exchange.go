package sessions

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/strrl/ng12-assist/internal/api"
	"github.com/strrl/ng12-assist/internal/logging"
	"github.com/strrl/ng12-assist/pkg/models"
)

// ChatBackend sends turns to and clears transcripts on the conversation backend
type ChatBackend interface {
	Send(ctx context.Context, req api.SendRequest) (*api.SendResponse, error)
	Clear(ctx context.Context, sessionID string) error
}

var errSendAborted = errors.New("send aborted before a reply arrived")

// Exchange sends user turns and records the agent's replies
type Exchange struct {
	backend ChatBackend
	logger  *zap.Logger
	topK    int
}

// NewExchange creates a message exchange. topK is forwarded to the backend when positive.
func NewExchange(backend ChatBackend, topK int, logger *zap.Logger) *Exchange {
	return &Exchange{backend: backend, topK: topK, logger: logging.OrNop(logger)}
}

// Begin appends the user's turn and builds the backend request
func (e *Exchange) Begin(conv *Conversation, text string) (Ticket, api.SendRequest, error) {
	ticket, text, err := conv.BeginSend(text)
	if err != nil {
		return Ticket{}, api.SendRequest{}, err
	}
	return ticket, api.SendRequest{SessionID: ticket.SessionID, Message: text, TopK: e.topK}, nil
}

// Request performs the backend call. It touches no conversation state and may run
// off the UI goroutine.
func (e *Exchange) Request(ctx context.Context, req api.SendRequest) (models.Message, error) {
	resp, err := e.backend.Send(ctx, req)
	if err != nil {
		e.logger.Error("failed to send message", zap.String("session_id", req.SessionID), zap.Error(err))
		return models.Message{}, err
	}
	return models.Message{Role: models.RoleAgent, Content: resp.Answer, Citations: resp.Citations}, nil
}

// Finish records the outcome of Request and leaves the sending state
func (e *Exchange) Finish(conv *Conversation, ticket Ticket, reply models.Message, err error) bool {
	applied := conv.CompleteSend(ticket, reply, err)
	if !applied {
		e.logger.Debug("dropped reply for superseded session", zap.String("session_id", ticket.SessionID))
	}
	return applied
}

// Send runs one full exchange. Only precondition failures are returned; backend
// failures become the apology turn.
func (e *Exchange) Send(ctx context.Context, conv *Conversation, text string) error {
	ticket, req, err := e.Begin(conv, text)
	if err != nil {
		return err
	}

	reply, sendErr := models.Message{}, errSendAborted
	defer func() {
		e.Finish(conv, ticket, reply, sendErr)
	}()

	reply, sendErr = e.Request(ctx, req)
	return nil
}

// ClearRemote deletes the stored transcript. Failures are logged and returned.
func (e *Exchange) ClearRemote(ctx context.Context, sessionID string) error {
	if err := e.backend.Clear(ctx, sessionID); err != nil {
		e.logger.Warn("failed to clear history", zap.String("session_id", sessionID), zap.Error(err))
		return err
	}
	return nil
}

// Clear deletes the active session's transcript and resets the list to one greeting,
// whether or not the delete succeeded.
func (e *Exchange) Clear(ctx context.Context, conv *Conversation) {
	_ = e.ClearRemote(ctx, conv.SessionID())
	conv.Reset()
}
