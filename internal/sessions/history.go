package sessions

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/strrl/ng12-assist/internal/logging"
	"github.com/strrl/ng12-assist/pkg/models"
)

const (
	userPrefix  = "User: "
	agentPrefix = "Agent: "

	// WelcomeText greets the user when a session has no stored turns
	WelcomeText = "Hello! I am your NICE NG12 assistant. How can I help you today?"
)

// HistorySource returns the stored, role-prefixed transcript of a session
type HistorySource interface {
	History(ctx context.Context, sessionID string) ([]string, error)
}

// ParseTranscript converts prefixed transcript lines into messages, preserving order.
// Lines without a recognised prefix are attributed to the agent.
func ParseTranscript(lines []string) []models.Message {
	messages := make([]models.Message, 0, len(lines))
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, userPrefix):
			messages = append(messages, models.Message{Role: models.RoleUser, Content: strings.TrimPrefix(line, userPrefix)})
		case strings.HasPrefix(line, agentPrefix):
			messages = append(messages, models.Message{Role: models.RoleAgent, Content: strings.TrimPrefix(line, agentPrefix)})
		default:
			messages = append(messages, models.Message{Role: models.RoleAgent, Content: line})
		}
	}
	return messages
}

// WithGreeting returns messages, or a single welcome message when there are none
func WithGreeting(messages []models.Message) []models.Message {
	if len(messages) > 0 {
		return messages
	}
	return []models.Message{{Role: models.RoleAgent, Content: WelcomeText}}
}

// Synchronizer loads a session's prior turns from the backend
type Synchronizer struct {
	source HistorySource
	logger *zap.Logger
}

// NewSynchronizer creates a history synchronizer
func NewSynchronizer(source HistorySource, logger *zap.Logger) *Synchronizer {
	return &Synchronizer{source: source, logger: logging.OrNop(logger)}
}

// Load fetches and parses the transcript for sessionID. Failures are logged and returned;
// callers keep an empty list rather than showing an error.
func (s *Synchronizer) Load(ctx context.Context, sessionID string) ([]models.Message, error) {
	lines, err := s.source.History(ctx, sessionID)
	if err != nil {
		s.logger.Warn("failed to load history", zap.String("session_id", sessionID), zap.Error(err))
		return nil, fmt.Errorf("failed to load history for %s: %w", sessionID, err)
	}
	s.logger.Debug("history loaded", zap.String("session_id", sessionID), zap.Int("lines", len(lines)))
	return WithGreeting(ParseTranscript(lines)), nil
}

// Sync activates sessionID on conv and loads its history. It reports whether the result
// was applied; a result superseded by a later activation is dropped.
func (s *Synchronizer) Sync(ctx context.Context, conv *Conversation, sessionID string) bool {
	ticket := conv.Activate(sessionID)
	messages, err := s.Load(ctx, sessionID)
	return conv.ApplyHistory(ticket, messages, err)
}
