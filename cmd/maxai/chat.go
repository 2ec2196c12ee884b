package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ent0n29/maxai/internal/agent"
	"github.com/ent0n29/maxai/internal/app"
	"github.com/ent0n29/maxai/internal/provider"
)

func newChatCmd(load loader) *cobra.Command {
	var (
		userID string
		stream bool
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the assistant from the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			// Keep the REPL readable: only warnings and above reach stderr.
			logger = logger.Level(zerolog.WarnLevel)

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			res, err := app.Build(ctx, cfg, app.Options{Logger: logger})
			if err != nil {
				return err
			}
			defer res.Cleanup()

			sess := res.Sessions.Create(userID)
			defer res.Sessions.End(sess.ID)

			fmt.Fprintf(cmd.OutOrStdout(), "maxai (%s). Type /quit to exit, /clear to forget this conversation.\n", res.Gateway.Selected().Name())
			mem := res.Stores.Aggregator
			return runChat(ctx, res.Agent, chatSession{
				userID:    sess.UserID,
				sessionID: sess.ID,
				stream:    stream,
				clear:     func(ctx context.Context) error { return mem.ClearHistory(ctx, sess.ID) },
			}, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&userID, "user", "default", "user id for preferences and long-term memory")
	cmd.Flags().BoolVar(&stream, "stream", false, "print raw model fragments instead of running the agent loop")
	return cmd
}

// chatAgent is the orchestrator surface used by the REPL.
type chatAgent interface {
	Handle(ctx context.Context, t agent.Turn) (agent.Result, error)
	HandleStream(ctx context.Context, t agent.Turn, onDelta provider.DeltaHandler) error
}

type chatSession struct {
	userID    string
	sessionID string
	stream    bool
	// clear forgets the conversation; nil disables /clear.
	clear func(ctx context.Context) error
}

func runChat(ctx context.Context, a chatAgent, sess chatSession, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/clear":
			if sess.clear != nil {
				if err := sess.clear(ctx); err != nil {
					fmt.Fprintf(out, "error: %v\n", err)
					continue
				}
			}
			fmt.Fprintln(out, "(conversation cleared)")
			continue
		}

		turn := agent.Turn{UserID: sess.userID, SessionID: sess.sessionID, Text: line}
		if sess.stream {
			err := a.HandleStream(ctx, turn, func(delta string) error {
				_, err := io.WriteString(out, delta)
				return err
			})
			fmt.Fprintln(out)
			if err != nil {
				return err
			}
			continue
		}

		res, err := a.Handle(ctx, turn)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, res.Message)
		if res.Action != nil {
			b, _ := json.Marshal(res.Action.Params)
			confirm := ""
			if res.Action.NeedsConfirmation {
				confirm = " (needs confirmation)"
			}
			fmt.Fprintf(out, "  action: %s %s%s\n", res.Action.Name, b, confirm)
		}
	}
}
