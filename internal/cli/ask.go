package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xiaot623/carechat/internal/adapter/chatclient"
	"github.com/xiaot623/carechat/internal/config"
	"github.com/xiaot623/carechat/internal/domain"
	"github.com/xiaot623/carechat/internal/trace"
	"github.com/xiaot623/carechat/internal/ui"
)

// errTurnFailed is returned once the server's error has been rendered.
var errTurnFailed = errors.New("turn failed")

func newAskCmd(cfg *config.ClientConfig) *cobra.Command {
	var (
		printTrace bool
		quiet      bool
		noStream   bool
		sessionID  string
	)

	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Send one message and print the response",
		Long: `Send one message, render the agents' activity and print the response.

With --trace the turn's trace log is printed as JSON after the response.
With --no-stream the whole turn is fetched in a single request.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := strings.Join(args, " ")

			console := ui.NewConsole(cmd.OutOrStdout())
			console.Quiet = quiet

			if noStream {
				return askOnce(cmd, cfg, console, message, sessionID, printTrace)
			}

			session := newSession(cmd, cfg, console)
			defer session.Close()

			if sessionID != "" {
				if err := session.Resume(sessionID); err != nil {
					return err
				}
			}

			if err := session.Send(cmd.Context(), message); err != nil {
				return err
			}

			if printTrace {
				data, err := session.ExportTrace()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
			}
			if session.Snapshot().Phase == trace.PhaseFailed {
				return errTurnFailed
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&printTrace, "trace", false, "Print the trace log as JSON")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only print the response")
	cmd.Flags().BoolVar(&noStream, "no-stream", false, "Wait for the full response instead of streaming")
	cmd.Flags().StringVar(&sessionID, "session", "", "Continue an existing session")

	return cmd
}

// askOnce runs a turn against the non-streaming endpoint.
func askOnce(cmd *cobra.Command, cfg *config.ClientConfig, console *ui.Console, message, sessionID string, printTrace bool) error {
	message = strings.TrimSpace(message)
	if message == "" {
		return errors.New("message is empty")
	}
	req := domain.ChatRequest{Message: message}
	if id := strings.TrimSpace(sessionID); id != "" {
		req.SessionID = &id
	}

	resp, err := chatclient.NewClient(cfg.ServerURL).Chat(cmd.Context(), req)
	if err != nil {
		return err
	}

	if resp.Metrics != nil {
		console.Render(trace.ShowMetrics{Metrics: *resp.Metrics, Segments: trace.Segments(*resp.Metrics)})
	}
	console.Render(trace.ShowResponse{Text: resp.Response, SessionID: resp.SessionID})

	if printTrace {
		data, err := json.MarshalIndent(resp.Trace, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
	}
	return nil
}
