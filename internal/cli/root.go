// Package cli implements the carechat command line client.
package cli

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/xiaot623/carechat/internal/adapter/chatclient"
	"github.com/xiaot623/carechat/internal/chat"
	"github.com/xiaot623/carechat/internal/config"
	"github.com/xiaot623/carechat/internal/logging"
)

// NewRootCmd builds the carechat command tree. Flags default to the
// environment loaded by config.LoadClient.
func NewRootCmd() *cobra.Command {
	cfg := config.LoadClient()

	cmd := &cobra.Command{
		Use:   "carechat",
		Short: "Healthcare support chat client",
		Long: `Chat with the healthcare support assistant and watch its agents work.

Every turn is streamed from the server. The orchestrator, ServiceNow and
Salesforce agents report their activity as it happens, followed by the
response and the turn's metrics.

Examples:
  carechat chat
  carechat ask "What's wrong with my bill? PAT-2847"
  carechat watch --session 6f1c2a9e
  carechat health`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg.ServerURL = strings.TrimSuffix(cfg.ServerURL, "/")
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "Chat server URL")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	flags.DurationVar(&cfg.GraceDelay, "grace", cfg.GraceDelay, "How long the last active agent stays highlighted")
	flags.DurationVar(&cfg.StreamTimeout, "timeout", cfg.StreamTimeout, "Maximum duration of one turn (0 waits indefinitely)")

	cmd.AddCommand(newChatCmd(cfg))
	cmd.AddCommand(newAskCmd(cfg))
	cmd.AddCommand(newWatchCmd(cfg))
	cmd.AddCommand(newHealthCmd(cfg))

	return cmd
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

func newLogger(cmd *cobra.Command, cfg *config.ClientConfig) zerolog.Logger {
	return logging.New(logging.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
		Output: cmd.ErrOrStderr(),
	})
}

func newSession(cmd *cobra.Command, cfg *config.ClientConfig, view chat.View) *chat.Session {
	return chat.NewSession(chatclient.NewClient(cfg.ServerURL), view, chat.Options{
		GraceDelay:    cfg.GraceDelay,
		StreamTimeout: cfg.StreamTimeout,
		Logger:        newLogger(cmd, cfg),
	})
}
