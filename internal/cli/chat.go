package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/xiaot623/carechat/internal/chat"
	"github.com/xiaot623/carechat/internal/config"
	"github.com/xiaot623/carechat/internal/ui"
)

const chatHelp = `Commands:
  /reset   start a new conversation
  /trace   print the last turn's trace log as JSON
  /status  show the session status
  /help    show this help
  /quit    leave the chat`

func newChatCmd(cfg *config.ClientConfig) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Long: `Start an interactive chat session with the support assistant.

Type a message and press enter. Lines starting with / are commands;
type /help to list them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			session := newSession(cmd, cfg, ui.NewConsole(cmd.OutOrStdout()))
			defer session.Close()

			if sessionID != "" {
				if err := session.Resume(sessionID); err != nil {
					return err
				}
			}

			r := &repl{
				session: session,
				in:      cmd.InOrStdin(),
				out:     cmd.OutOrStdout(),
				log:     newLogger(cmd, cfg),
			}
			fmt.Fprintf(r.out, "Connected to %s. Type /help for commands.\n", cfg.ServerURL)
			return r.run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Continue an existing session")

	return cmd
}

type repl struct {
	session *chat.Session
	in      io.Reader
	out     io.Writer
	log     zerolog.Logger
}

// run reads lines until EOF, /quit or ctx is done.
func (r *repl) run(ctx context.Context) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		fmt.Fprint(r.out, "> ")

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(r.out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(r.out)
				return <-scanErr
			}
			line = strings.TrimSpace(l)
		}

		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := r.command(ctx, line); quit {
				return nil
			}
			continue
		}

		if err := r.session.Send(ctx, line); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// Already rendered by the console
			r.log.Debug().Err(err).Msg("send failed")
		}
	}
}

// command handles a slash command and reports whether the chat should end.
func (r *repl) command(ctx context.Context, line string) bool {
	name, _, _ := strings.Cut(line, " ")
	switch strings.ToLower(name) {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(r.out, chatHelp)
	case "/reset":
		if err := r.session.Reset(ctx); err != nil {
			fmt.Fprintf(r.out, "cannot reset: %v\n", err)
		}
	case "/trace":
		data, err := r.session.ExportTrace()
		if err != nil {
			if errors.Is(err, chat.ErrEmptyTrace) {
				fmt.Fprintln(r.out, "No trace yet. Send a message first.")
				return false
			}
			fmt.Fprintf(r.out, "cannot export trace: %v\n", err)
			return false
		}
		fmt.Fprintln(r.out, string(data))
	case "/status":
		r.status()
	default:
		fmt.Fprintf(r.out, "unknown command %s, type /help\n", name)
	}
	return false
}

func (r *repl) status() {
	state := r.session.Snapshot()

	sessionID := state.SessionID
	if sessionID == "" {
		sessionID = "(new)"
	}
	fmt.Fprintf(r.out, "session:  %s\n", sessionID)
	fmt.Fprintf(r.out, "status:   %s\n", state.Phase)
	fmt.Fprintf(r.out, "events:   %d\n", len(state.Log))
	if state.Highlighted != "" {
		fmt.Fprintf(r.out, "active:   %s\n", ui.DisplayName(state.Highlighted))
	}
	if m := state.Metrics; m != nil {
		fmt.Fprintf(r.out, "metrics:  %.2fs, %d tokens, $%.4f\n", m.TotalTime, m.Tokens.Total(), m.EstimatedCost)
	}
}
