package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tomato-app/tomato-support/agents/support"
	"github.com/tomato-app/tomato-support/internal/bootstrap"
	"github.com/tomato-app/tomato-support/orderservice"
	"github.com/tomato-app/tomato-support/websocket"
)

var (
	askUser    string
	askServer  string
	askToken   string
	askCookie  string
	askTimeout time.Duration
)

var askCmd = &cobra.Command{
	Use:   "ask [message]",
	Short: "Ask the support agent",
	Long: `Ask the support agent one question, or start a conversation when no
message is given (one message per line, EOF to quit).

By default the agent runs in-process against the configured stores. With
--server the messages go to a running service over its /ws endpoint.`,
	Example: `  tomato ask "what desserts do you have"
  tomato ask --user 65f0c2 "did my payment go through"
  tomato ask --server ws://localhost:8000`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askUser, "user", "u", "", "User id for order and cart questions")
	askCmd.Flags().StringVar(&askServer, "server", "", "Chat server URL (ws:// or http://)")
	askCmd.Flags().StringVar(&askToken, "token", "", "Bearer token forwarded to the order service")
	askCmd.Flags().StringVar(&askCookie, "cookie", "", "Cookie forwarded to the order service")
	askCmd.Flags().DurationVar(&askTimeout, "timeout", 30*time.Second, "Per-message timeout")
}

type asker func(ctx context.Context, message string) (string, error)

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	ctx := cmd.Context()

	var ask asker
	if askServer != "" {
		header := http.Header{}
		if askToken != "" {
			header.Set("Authorization", "Bearer "+askToken)
		}
		if askCookie != "" {
			header.Set("x-forwarded-cookie", askCookie)
		}
		client, err := websocket.NewChatClient(askServer, websocket.ClientOptions{
			Secret: cfg.SharedSecret,
			Header: header,
			Log:    log,
		})
		if err != nil {
			return err
		}
		defer client.Close()
		ask = func(ctx context.Context, message string) (string, error) {
			return client.Ask(ctx, message, askUser)
		}
	} else {
		svc, err := bootstrap.Build(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer svc.Close(context.Background())
		if svc.Menu != nil {
			if _, err := svc.Seed(ctx); err != nil {
				log.Error("menu bootstrap failed", err)
			}
		}
		creds := orderservice.Credentials{Token: askToken, Cookie: askCookie}
		ask = func(ctx context.Context, message string) (string, error) {
			reply, err := svc.Agent.Handle(ctx, support.Turn{
				Message:     message,
				UserID:      askUser,
				Credentials: creds,
				RequestID:   uuid.NewString(),
			})
			return reply.Text, err
		}
	}

	if len(args) == 1 {
		return askOnce(ctx, cmd.OutOrStdout(), ask, args[0])
	}
	return converse(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), ask)
}

func askOnce(ctx context.Context, out io.Writer, ask asker, message string) error {
	ctx, cancel := context.WithTimeout(ctx, askTimeout)
	defer cancel()
	reply, err := ask(ctx, message)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, reply)
	return nil
}

func converse(ctx context.Context, in io.Reader, out io.Writer, ask asker) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			if err := askOnce(ctx, out, ask, line); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
		}
		fmt.Fprint(out, "> ")
	}
	fmt.Fprintln(out)
	return scanner.Err()
}
