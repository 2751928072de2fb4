package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xiaot623/carechat/internal/config"
	"github.com/xiaot623/carechat/internal/protocol"
	"github.com/xiaot623/carechat/internal/ui"
	"github.com/xiaot623/carechat/internal/watch"
)

func newWatchCmd(cfg *config.ClientConfig) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the live trace feed",
		Long: `Follow the agents' activity as the server produces it.

Without --session every session on the server is followed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := newLogger(cmd, cfg)

			client, err := watch.Dial(ctx, cfg.ServerURL, sessionID)
			if err != nil {
				return fmt.Errorf("failed to connect to trace feed: %w", err)
			}
			defer client.Close()

			target := client.SessionID()
			if target == protocol.AllSessions {
				target = "all sessions"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Watching %s on %s\n", target, cfg.ServerURL)

			printer := ui.NewFeedPrinter(cmd.OutOrStdout())
			err = client.Run(ctx, func(msg watch.Message) {
				switch msg.Type {
				case protocol.TypeTrace:
					printer.Trace(msg.Trace.SessionID, msg.Trace.Event)
				case protocol.TypeTurnDone:
					printer.TurnDone(msg.TurnDone.SessionID, msg.TurnDone.Metrics, msg.TurnDone.Error)
				case protocol.TypeSessionDeleted:
					printer.Notice(msg.SessionDeleted.SessionID, "session deleted")
				case protocol.TypeError:
					printer.Error(msg.Error.Code, msg.Error.Message)
				}
			})
			if err != nil {
				return fmt.Errorf("trace feed closed: %w", err)
			}
			log.Debug().Msg("trace feed closed")
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session to follow (default: all sessions)")

	return cmd
}
