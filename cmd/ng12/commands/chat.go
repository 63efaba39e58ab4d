package commands

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/strrl/ng12-assist/internal/sessions"
	"github.com/strrl/ng12-assist/pkg/models"
)

var errNotDelivered = errors.New("the assistant could not be reached")

func newSessionsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List conversations known to the backend, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := a.client().ListSessions(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list sessions: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "No history yet.")
				return nil
			}

			fmt.Fprintln(out, "Sessions:")
			fmt.Fprintln(out, "=========")
			for i, s := range list {
				fmt.Fprintf(out, "%d. %s\n", i+1, s.ID)
				fmt.Fprintf(out, "   Last Activity: %s\n", s.DisplayName())
			}
			return nil
		},
	}
}

func newHistoryCommand(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <session-id>",
		Short: "Show the messages of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			syncer := sessions.NewSynchronizer(a.client(), a.logger)
			messages, err := syncer.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Messages for session '%s':\n", args[0])
			fmt.Fprintln(out, "================================================")
			for i, msg := range messages {
				if limit > 0 && i >= limit {
					fmt.Fprintf(out, "\n(showing first %d messages only)\n", limit)
					break
				}
				content := msg.Content
				if limit > 0 {
					content = truncateString(content, 200)
				}
				fmt.Fprintf(out, "\n%d. [%s] %s\n", i+1, msg.Role, content)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Show at most this many messages, truncated")
	return cmd
}

func newAskCommand(a *app) *cobra.Command {
	var topK int

	cmd := &cobra.Command{
		Use:   "ask <session-id> <message...>",
		Short: "Send one message to a conversation and print the reply",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := a.client()
			ctx := cmd.Context()

			conv := sessions.NewConversation()
			sessions.NewSynchronizer(client, a.logger).Sync(ctx, conv, args[0])

			ex := sessions.NewExchange(client, topK, a.logger)
			if err := ex.Send(ctx, conv, strings.Join(args[1:], " ")); err != nil {
				return err
			}

			messages := conv.Messages()
			printAgentTurn(cmd.OutOrStdout(), messages[len(messages)-1])
			if conv.State() == sessions.StateSendError {
				return errNotDelivered
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&topK, "top-k", 0, "Number of guideline passages to retrieve (backend default when 0)")
	return cmd
}

func newClearCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <session-id>",
		Short: "Delete the stored history of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ex := sessions.NewExchange(a.client(), 0, a.logger)
			if err := ex.ClearRemote(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("failed to clear history: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared history for session '%s'\n", args[0])
			return nil
		},
	}
}

func printAgentTurn(out io.Writer, msg models.Message) {
	fmt.Fprintln(out, msg.Content)
	if len(msg.Citations) == 0 {
		return
	}
	fmt.Fprintln(out, "\nReferences:")
	for _, c := range msg.Citations {
		fmt.Fprintf(out, "  %s %q\n", c.Label(), truncateString(c.Excerpt, 120))
	}
}
