package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"chatrelay/internal/chatbot"
	"chatrelay/internal/server"
	"chatrelay/internal/session"
)

// defaultChatSender is the session key used by the local REPL.
const defaultChatSender = "cli:local"

// responder is what the chat loop needs from the bot.
type responder interface {
	Respond(ctx context.Context, sender, text string) chatbot.Reply
}

// NewChatCmd creates the chat command.
func NewChatCmd() *cobra.Command {
	var sender string

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Talk to the bot from the terminal",
		Long: `Talk to the bot from the terminal, without the webhook.

Messages go through the same command handling, history and model
settings as WhatsApp messages. History lives only for the duration
of the command.

If no message is provided as an argument, it will start an interactive chat session.`,
		Example: `  # Send a single message
  chatrelay chat "What are your opening hours?"

  # Interactive chat
  chatrelay chat

  # Pipe questions, one per line
  printf 'hola\nwhat is 2+2?\n' | chatrelay chat`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := requireCLIContext(cmd)
			if err != nil {
				return err
			}

			bot, err := chatbot.New(server.BotConfig(
				cliCtx.Config,
				cliCtx.Backend(),
				session.NewStore(cliCtx.Config.Session.Window),
			))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			out := cmd.OutOrStdout()
			if len(args) > 0 {
				reply := bot.Respond(ctx, sender, strings.Join(args, " "))
				fmt.Fprintln(out, reply.Text)
				return nil
			}

			interactive := term.IsTerminal(int(os.Stdin.Fd()))
			if interactive {
				fmt.Fprintf(out, "chatrelay chat with %s. Type \"exit\" or press Ctrl-D to quit.\n", bot.Model())
			}
			return runChatLoop(ctx, bot, sender, cmd.InOrStdin(), out, interactive)
		},
	}

	cmd.Flags().StringVarP(&sender, "sender", "s", defaultChatSender, "session key to chat as")

	return cmd
}

// runChatLoop answers each input line until EOF, "exit" or ctx is done.
// The prompt is only printed when interactive.
func runChatLoop(ctx context.Context, bot responder, sender string, in io.Reader, out io.Writer, interactive bool) error {
	scanner := bufio.NewScanner(in)
	for {
		if interactive {
			fmt.Fprint(out, "> ")
		}
		if !scanner.Scan() {
			if interactive {
				fmt.Fprintln(out)
			}
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		reply := bot.Respond(ctx, sender, line)
		fmt.Fprintln(out, reply.Text)
		if interactive {
			fmt.Fprintln(out)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}
