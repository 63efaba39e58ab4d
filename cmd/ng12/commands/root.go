package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/strrl/ng12-assist/internal/api"
	"github.com/strrl/ng12-assist/internal/config"
	"github.com/strrl/ng12-assist/internal/logging"
	"github.com/strrl/ng12-assist/internal/sessions"
	"github.com/strrl/ng12-assist/internal/tui"
)

// app carries what every command needs once flags and environment are resolved
type app struct {
	apiURL    string
	debugMode bool
	sessionID string

	cfg    *config.Config
	logger *zap.Logger
}

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "ng12 [link]",
		Short: "Chat with the NICE NG12 assistant and run patient assessments",
		Long: `ng12 is a terminal client for the NG12 clinical decision-support backend.
Without a subcommand it opens the chat UI. A link such as "/chat?session_id=abc"
or --session opens that conversation; otherwise the default session is used.`,
		Args:              cobra.MaximumNArgs(1),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
		RunE: a.runTUI,
	}

	rootCmd.PersistentFlags().StringVar(&a.apiURL, "api-url", "", "Backend base URL (overrides NG12_API_URL)")
	rootCmd.PersistentFlags().BoolVar(&a.debugMode, "debug", false, "Enable debug logging")
	rootCmd.Flags().StringVar(&a.sessionID, "session", "", "Open this session id")

	rootCmd.AddCommand(newSessionsCommand(a))
	rootCmd.AddCommand(newHistoryCommand(a))
	rootCmd.AddCommand(newAskCommand(a))
	rootCmd.AddCommand(newClearCommand(a))
	rootCmd.AddCommand(newAssessCommand(a))

	return rootCmd
}

// Execute runs the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// setup loads configuration and builds the logger. The chat UI owns the terminal,
// so it logs to a file; every other command logs to stderr.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	config.LoadDotEnv()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if a.apiURL != "" {
		cfg.APIURL = a.apiURL
	}
	if a.debugMode {
		cfg.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg

	opts := logging.Options{Debug: cfg.Debug}
	if cmd == cmd.Root() {
		opts.File = cfg.LogFile
	}
	logger, err := logging.New(opts)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	a.logger = logger.With(zap.String("api_url", cfg.APIURL))
	return nil
}

func (a *app) client() *api.Client {
	return api.NewClient(a.cfg.APIURL, api.WithTimeout(a.cfg.RequestTimeout))
}

func (a *app) runTUI(cmd *cobra.Command, args []string) error {
	link := ""
	if len(args) == 1 {
		link = args[0]
	}
	router, err := sessions.NewRouter(link)
	if err != nil {
		return err
	}
	if a.sessionID != "" {
		router.Navigate(a.sessionID)
	}

	client := a.client()
	dir := sessions.NewDirectory(client, router,
		sessions.WithPollInterval(a.cfg.PollInterval),
		sessions.WithDirectoryLogger(a.logger),
	)
	opts := tui.Options{
		Router:       router,
		Resolver:     sessions.NewResolver(a.cfg.DefaultSessionID, router),
		Directory:    dir,
		Synchronizer: sessions.NewSynchronizer(client, a.logger),
		Exchange:     sessions.NewExchange(client, 0, a.logger),
		Logger:       a.logger,
	}

	a.logger.Info("starting chat UI", zap.String("location", router.Location()))
	if err := tui.ShowTUI(cmd.Context(), opts); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
